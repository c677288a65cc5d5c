package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/common"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

var (
	ErrIndexCreationFailed = errors.New(errors.ErrCodeExternalService, "index creation failed")
	ErrDocumentIndexFailed = errors.New(errors.ErrCodeExternalService, "document index failed")
	ErrDocumentNotFound    = errors.New(errors.ErrCodeNotFound, "document not found")
)

// IndexerConfig holds configuration for the Indexer.
type IndexerConfig struct {
	BulkBatchSize int
	RefreshPolicy string
	Shards        int
	Replicas      int
}

// IndexedEntity is one entity inside an indexed document.
type IndexedEntity struct {
	Text        string `json:"text"`
	Label       string `json:"label"`
	Start       int    `json:"start"`
	End         int    `json:"end"`
	Source      string `json:"source"`
	SentenceIdx int    `json:"sentence_idx"`
	Normalized  string `json:"normalized,omitempty"`
	DateISO     string `json:"date_iso,omitempty"`
}

// IndexedDocument is the source stored per resolved document.
type IndexedDocument struct {
	DocumentID    string          `json:"document_id"`
	TablesVersion string          `json:"tables_version,omitempty"`
	Sentences     int             `json:"sentences"`
	Labels        []string        `json:"labels"`
	Entities      []IndexedEntity `json:"entities"`
	IndexedAt     time.Time       `json:"indexed_at"`
}

// NewIndexedDocument converts a result to its index representation.
func NewIndexedDocument(res *entity.Result, now time.Time) IndexedDocument {
	doc := IndexedDocument{
		DocumentID:    res.DocumentID,
		TablesVersion: res.TablesVersion,
		Sentences:     res.Sentences,
		Labels:        []string{},
		Entities:      make([]IndexedEntity, 0, len(res.Entities)),
		IndexedAt:     now.UTC(),
	}
	seen := make(map[string]bool)
	for _, e := range res.Entities {
		doc.Entities = append(doc.Entities, IndexedEntity{
			Text:        e.Text,
			Label:       e.Label,
			Start:       e.Start,
			End:         e.End,
			Source:      string(e.Source),
			SentenceIdx: e.SentenceIdx,
			Normalized:  e.Normalized,
			DateISO:     e.DateISO,
		})
		if !seen[e.Label] {
			seen[e.Label] = true
			doc.Labels = append(doc.Labels, e.Label)
		}
	}
	return doc
}

// Entity converts back to the engine record.
func (e IndexedEntity) Entity() entity.Entity {
	return entity.Entity{
		Text:        e.Text,
		Label:       e.Label,
		Start:       e.Start,
		End:         e.End,
		Source:      entity.Source(e.Source),
		SentenceIdx: e.SentenceIdx,
		Normalized:  e.Normalized,
		DateISO:     e.DateISO,
	}
}

// Indexer writes resolved documents into one entity index.
type Indexer struct {
	client *Client
	index  string
	config IndexerConfig
	logger logging.Logger
	now    func() time.Time
}

// NewIndexer creates a new Indexer.
func NewIndexer(client *Client, index string, cfg IndexerConfig, logger logging.Logger) *Indexer {
	if cfg.BulkBatchSize == 0 {
		cfg.BulkBatchSize = 500
	}
	if cfg.RefreshPolicy == "" {
		cfg.RefreshPolicy = "false"
	}
	if cfg.Shards == 0 {
		cfg.Shards = 1
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Indexer{client: client, index: index, config: cfg, logger: logger, now: time.Now}
}

// Name identifies the index when used as a result sink.
func (i *Indexer) Name() string { return "opensearch" }

// Index returns the target index name.
func (i *Indexer) Index() string { return i.index }

// IndexExists checks if the entity index exists.
func (i *Indexer) IndexExists(ctx context.Context) (bool, error) {
	resp, err := i.client.API().Indices.Exists(ctx, opensearchapi.IndicesExistsReq{Indices: []string{i.index}})
	if resp != nil {
		defer resp.Body.Close()
		switch resp.StatusCode {
		case http.StatusOK:
			return true, nil
		case http.StatusNotFound:
			return false, nil
		}
	}
	if err != nil {
		return false, errors.Wrap(err, errors.ErrCodeExternalService, "failed to check index existence")
	}
	return false, errors.Newf(errors.ErrCodeExternalService, "unexpected status %d checking index", resp.StatusCode)
}

// EnsureIndex creates the entity index with EntityIndexMapping when missing.
func (i *Indexer) EnsureIndex(ctx context.Context) error {
	exists, err := i.IndexExists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return nil
	}

	body, err := json.Marshal(EntityIndexMapping(i.config.Shards, i.config.Replicas))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal index mapping")
	}
	if _, err := i.client.API().Indices.Create(ctx, opensearchapi.IndicesCreateReq{
		Index: i.index,
		Body:  bytes.NewReader(body),
	}); err != nil {
		return ErrIndexCreationFailed.WithCause(err).WithDetail(i.index)
	}

	i.logger.Info("Index created", logging.String("index", i.index))
	return nil
}

// Write indexes a single result, replacing any earlier version.
func (i *Indexer) Write(ctx context.Context, res *entity.Result) error {
	if res == nil || res.DocumentID == "" {
		return errors.New(errors.ErrCodeValidation, "result requires a document id")
	}
	out, err := i.BulkIndex(ctx, []*entity.Result{res})
	if err != nil {
		return err
	}
	if out.Failed > 0 {
		e := out.Errors[0]
		return ErrDocumentIndexFailed.WithDetail(e.ErrorType + ": " + e.Reason)
	}
	return nil
}

type bulkAction struct {
	Index  *bulkMeta `json:"index,omitempty"`
	Delete *bulkMeta `json:"delete,omitempty"`
}

type bulkMeta struct {
	Index string `json:"_index"`
	ID    string `json:"_id"`
}

type bulkItemError struct {
	Type   string `json:"type"`
	Reason string `json:"reason"`
}

// BulkIndex indexes results in batches of BulkBatchSize. Results without a
// document id are reported as failed items and skipped.
func (i *Indexer) BulkIndex(ctx context.Context, results []*entity.Result) (*common.BulkResult, error) {
	result := &common.BulkResult{}
	now := i.now()

	for start := 0; start < len(results); start += i.config.BulkBatchSize {
		end := start + i.config.BulkBatchSize
		if end > len(results) {
			end = len(results)
		}

		var buf bytes.Buffer
		enc := json.NewEncoder(&buf)
		pending := 0
		for _, res := range results[start:end] {
			if res == nil || res.DocumentID == "" {
				result.Failed++
				result.Errors = append(result.Errors, common.BulkItemError{
					ErrorType: "validation_error",
					Reason:    "missing document id",
				})
				continue
			}
			// Encoder.Encode appends the newline the bulk format needs.
			if err := enc.Encode(bulkAction{Index: &bulkMeta{Index: i.index, ID: res.DocumentID}}); err != nil {
				return result, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
			}
			if err := enc.Encode(NewIndexedDocument(res, now)); err != nil {
				return result, errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode document")
			}
			pending++
		}
		if pending == 0 {
			continue
		}

		if err := i.sendBulk(ctx, &buf, result); err != nil {
			return result, err
		}
	}

	i.logger.Debug("Bulk index completed",
		logging.String("index", i.index),
		logging.Int("total", len(results)),
		logging.Int("succeeded", result.Succeeded),
		logging.Int("failed", result.Failed))
	return result, nil
}

func (i *Indexer) sendBulk(ctx context.Context, body *bytes.Buffer, result *common.BulkResult) error {
	resp, err := i.client.API().Bulk(ctx, opensearchapi.BulkReq{
		Body:   bytes.NewReader(body.Bytes()),
		Params: opensearchapi.BulkParams{Refresh: i.config.RefreshPolicy},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "bulk request failed")
	}

	for _, item := range resp.Items {
		for _, v := range item {
			if v.Status >= 200 && v.Status < 300 {
				result.Succeeded++
				continue
			}
			result.Failed++
			itemErr := decodeItemError(v.Error)
			result.Errors = append(result.Errors, common.BulkItemError{
				DocID:     v.ID,
				ErrorType: itemErr.Type,
				Reason:    itemErr.Reason,
			})
		}
	}
	return nil
}

// decodeItemError reads type and reason from the client's item error value.
func decodeItemError(raw interface{}) bulkItemError {
	var out bulkItemError
	b, err := json.Marshal(raw)
	if err != nil {
		return out
	}
	_ = json.Unmarshal(b, &out)
	return out
}

// DeleteDocument removes an indexed document.
func (i *Indexer) DeleteDocument(ctx context.Context, id string) error {
	var buf bytes.Buffer
	if err := json.NewEncoder(&buf).Encode(bulkAction{Delete: &bulkMeta{Index: i.index, ID: id}}); err != nil {
		return errors.Wrap(err, errors.ErrCodeSerialization, "failed to encode bulk action")
	}

	resp, err := i.client.API().Bulk(ctx, opensearchapi.BulkReq{
		Body:   bytes.NewReader(buf.Bytes()),
		Params: opensearchapi.BulkParams{Refresh: i.config.RefreshPolicy},
	})
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeExternalService, "delete request failed")
	}
	for _, item := range resp.Items {
		for _, v := range item {
			if v.Status == http.StatusNotFound {
				return ErrDocumentNotFound.WithDetail(id)
			}
			if v.Status >= 300 {
				e := decodeItemError(v.Error)
				return errors.Newf(errors.ErrCodeExternalService, "delete failed: %s", e.Reason)
			}
		}
	}
	return nil
}

// EntityIndexMapping is the mapping for the entity index: one document per
// resolved text, entities as nested objects so label and text match together.
func EntityIndexMapping(shards, replicas int) common.IndexMapping {
	return common.IndexMapping{
		Settings: map[string]interface{}{
			"number_of_shards":   shards,
			"number_of_replicas": replicas,
			"analysis": map[string]interface{}{
				"analyzer": map[string]interface{}{
					"folded": map[string]interface{}{
						"type":      "custom",
						"tokenizer": "standard",
						"filter":    []string{"lowercase", "asciifolding"},
					},
				},
			},
		},
		Mappings: map[string]interface{}{
			"properties": map[string]interface{}{
				"document_id":    map[string]interface{}{"type": "keyword"},
				"tables_version": map[string]interface{}{"type": "keyword"},
				"sentences":      map[string]interface{}{"type": "integer"},
				"labels":         map[string]interface{}{"type": "keyword"},
				"indexed_at":     map[string]interface{}{"type": "date"},
				"entities": map[string]interface{}{
					"type": "nested",
					"properties": map[string]interface{}{
						"text": map[string]interface{}{
							"type":     "text",
							"analyzer": "folded",
							"fields":   map[string]interface{}{"raw": map[string]interface{}{"type": "keyword"}},
						},
						"label":        map[string]interface{}{"type": "keyword"},
						"start":        map[string]interface{}{"type": "integer"},
						"end":          map[string]interface{}{"type": "integer"},
						"source":       map[string]interface{}{"type": "keyword"},
						"sentence_idx": map[string]interface{}{"type": "integer"},
						"normalized":   map[string]interface{}{"type": "keyword"},
						"date_iso":     map[string]interface{}{"type": "date", "format": "yyyy-MM-dd"},
					},
				},
			},
		},
	}
}

//Personal.AI order the ending
