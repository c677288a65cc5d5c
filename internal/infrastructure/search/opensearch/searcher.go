package opensearch

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"

	"github.com/opensearch-project/opensearch-go/v3/opensearchapi"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// SearcherConfig holds configuration for the Searcher.
type SearcherConfig struct {
	DefaultPageSize int
	MaxPageSize     int
}

// EntityQuery selects documents containing a matching entity.
type EntityQuery struct {
	// Text is matched against entity surface text; empty matches any text.
	Text string
	// Label restricts matches to one canonical label; empty matches any label.
	Label  string
	Offset int
	Limit  int
}

// DocumentHit is one matching document with the entities that matched.
type DocumentHit struct {
	DocumentID string          `json:"document_id"`
	Score      float64         `json:"score"`
	Matches    []entity.Entity `json:"matches"`
}

// SearchResult holds the search response.
type SearchResult struct {
	Total  int64         `json:"total"`
	Hits   []DocumentHit `json:"hits"`
	TookMs int64         `json:"took_ms"`
}

// Searcher performs entity searches over the index written by Indexer.
type Searcher struct {
	client *Client
	index  string
	config SearcherConfig
	logger logging.Logger
}

// NewSearcher creates a new Searcher.
func NewSearcher(client *Client, index string, cfg SearcherConfig, logger logging.Logger) *Searcher {
	if cfg.DefaultPageSize <= 0 {
		cfg.DefaultPageSize = 20
	}
	if cfg.MaxPageSize <= 0 {
		cfg.MaxPageSize = 200
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &Searcher{client: client, index: index, config: cfg, logger: logger}
}

// BuildQuery renders the request body for q.
func (s *Searcher) BuildQuery(q EntityQuery) map[string]interface{} {
	size := q.Limit
	if size <= 0 {
		size = s.config.DefaultPageSize
	}
	if size > s.config.MaxPageSize {
		size = s.config.MaxPageSize
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	inner := map[string]interface{}{}
	if q.Text != "" {
		inner["must"] = []interface{}{
			map[string]interface{}{"match": map[string]interface{}{
				"entities.text": map[string]interface{}{"query": q.Text, "operator": "and"},
			}},
		}
	} else {
		inner["must"] = []interface{}{map[string]interface{}{"match_all": map[string]interface{}{}}}
	}
	if q.Label != "" {
		inner["filter"] = []interface{}{
			map[string]interface{}{"term": map[string]interface{}{"entities.label": q.Label}},
		}
	}

	return map[string]interface{}{
		"from":             offset,
		"size":             size,
		"track_total_hits": true,
		"query": map[string]interface{}{
			"nested": map[string]interface{}{
				"path":       "entities",
				"query":      map[string]interface{}{"bool": inner},
				"score_mode": "sum",
			},
		},
		"sort": []interface{}{
			map[string]interface{}{"_score": "desc"},
			map[string]interface{}{"document_id": "asc"},
		},
	}
}

// Search returns documents containing an entity that matches q.
func (s *Searcher) Search(ctx context.Context, q EntityQuery) (*SearchResult, error) {
	if q.Text == "" && q.Label == "" {
		return nil, errors.InvalidParam("text or label is required")
	}
	body, err := json.Marshal(s.BuildQuery(q))
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to marshal search query")
	}

	resp, err := s.client.API().Search(ctx, &opensearchapi.SearchReq{
		Indices: []string{s.index},
		Body:    bytes.NewReader(body),
	})
	if err != nil {
		s.logger.Error("entity search failed", logging.Err(err), logging.String("index", s.index))
		return nil, errors.Wrap(err, errors.ErrCodeExternalService, "search request failed")
	}

	out := &SearchResult{
		Total:  int64(resp.Hits.Total.Value),
		TookMs: int64(resp.Took),
		Hits:   make([]DocumentHit, 0, len(resp.Hits.Hits)),
	}
	for _, h := range resp.Hits.Hits {
		var doc IndexedDocument
		if err := json.Unmarshal(h.Source, &doc); err != nil {
			return nil, errors.Wrap(err, errors.ErrCodeSerialization, "failed to decode hit").WithDetail(h.ID)
		}
		id := doc.DocumentID
		if id == "" {
			id = h.ID
		}
		out.Hits = append(out.Hits, DocumentHit{
			DocumentID: id,
			Score:      float64(h.Score),
			Matches:    matchingEntities(doc.Entities, q),
		})
	}
	return out, nil
}

// matchingEntities re-applies the query to the nested entities of one hit,
// since the source carries every entity of the document.
func matchingEntities(ents []IndexedEntity, q EntityQuery) []entity.Entity {
	needle := strings.Fields(strings.ToLower(q.Text))
	out := make([]entity.Entity, 0)
	for _, ie := range ents {
		if q.Label != "" && ie.Label != q.Label {
			continue
		}
		if len(needle) > 0 {
			hay := strings.ToLower(ie.Text)
			ok := true
			for _, w := range needle {
				if !strings.Contains(hay, w) {
					ok = false
					break
				}
			}
			if !ok {
				continue
			}
		}
		out = append(out, ie.Entity())
	}
	return out
}

//Personal.AI order the ending
