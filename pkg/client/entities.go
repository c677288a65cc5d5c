package client

import (
	"context"
	"encoding/json"
	"net/url"
	"strconv"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// EntitiesClient calls the /api/v1/entities endpoints.
type EntitiesClient struct {
	client *Client
}

// ResolveOptions are the query flags of a resolve call.
type ResolveOptions struct {
	// Explain returns the intermediate pipeline stages in Trace.
	Explain bool
	// DryRun skips persistence and event publication.
	DryRun bool
	// NoCache forces a fresh resolution.
	NoCache bool
}

func (o *ResolveOptions) query() string {
	if o == nil {
		return ""
	}
	q := url.Values{}
	if o.Explain {
		q.Set("explain", "true")
	}
	if o.DryRun {
		q.Set("dry_run", "true")
	}
	if o.NoCache {
		q.Set("no_cache", "true")
	}
	if len(q) == 0 {
		return ""
	}
	return "?" + q.Encode()
}

// ResolveOutput is the outcome of one resolution.
type ResolveOutput struct {
	Result *entity.Result `json:"result"`
	// Trace is the raw pipeline trace; present only with Explain.
	Trace      json.RawMessage   `json:"trace,omitempty"`
	CacheHit   bool              `json:"cache_hit"`
	SinkErrors map[string]string `json:"sink_errors,omitempty"`
}

// BatchItem is the outcome for the document at Index.  Exactly one of
// Output and Error is set.
type BatchItem struct {
	Index  int            `json:"index"`
	Output *ResolveOutput `json:"output,omitempty"`
	Error  *ErrorBody  `json:"error,omitempty"`
}

// Err returns the item's failure as an *APIError, or nil.
func (b BatchItem) Err() error {
	if b.Error == nil {
		return nil
	}
	return &APIError{Code: b.Error.Code, Message: b.Error.Message, Details: b.Error.Details}
}

// BatchOutput summarises a batch.
type BatchOutput struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// Resolve resolves one document.  A document without ID is assigned one by
// the server.
func (e *EntitiesClient) Resolve(ctx context.Context, doc *entity.Document, opts *ResolveOptions) (*ResolveOutput, error) {
	if doc == nil {
		return nil, errors.InvalidParam("client: document is nil")
	}
	var out ResolveOutput
	if err := e.client.post(ctx, "/api/v1/entities/resolve"+opts.query(), doc, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ResolveBatch resolves several documents in one request.
func (e *EntitiesClient) ResolveBatch(ctx context.Context, docs []*entity.Document, dryRun bool) (*BatchOutput, error) {
	if len(docs) == 0 {
		return nil, errors.InvalidParam("client: no documents")
	}
	path := "/api/v1/entities/resolve/batch"
	if dryRun {
		path += "?dry_run=true"
	}
	var out BatchOutput
	body := struct {
		Documents []*entity.Document `json:"documents"`
	}{docs}
	if err := e.client.post(ctx, path, body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SearchQuery selects documents with a matching entity.  Empty fields match
// anything.
type SearchQuery struct {
	Text   string
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

// SearchResult is one page of search hits.
type SearchResult struct {
	Total  int64         `json:"total"`
	Hits   []DocumentHit `json:"hits"`
	TookMs int64         `json:"took_ms"`
}

// Search queries the entity search index.
func (e *EntitiesClient) Search(ctx context.Context, q SearchQuery) (*SearchResult, error) {
	v := url.Values{}
	if q.Text != "" {
		v.Set("text", q.Text)
	}
	if q.Label != "" {
		v.Set("label", q.Label)
	}
	if q.Offset > 0 {
		v.Set("offset", strconv.Itoa(q.Offset))
	}
	if q.Limit > 0 {
		v.Set("limit", strconv.Itoa(q.Limit))
	}
	path := "/api/v1/entities/search"
	if len(v) > 0 {
		path += "?" + v.Encode()
	}
	var out SearchResult
	if err := e.client.get(ctx, path, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// Mention is one stored occurrence of an entity.
type Mention struct {
	DocumentID string        `json:"document_id"`
	Entity     entity.Entity `json:"entity"`
	ResolvedAt time.Time     `json:"resolved_at"`
}

// CoMention is an entity appearing in the same documents as the queried one.
type CoMention struct {
	Label     string `json:"label"`
	Name      string `json:"name"`
	Documents int64  `json:"documents"`
}

// MentionOutput is what the server knows about one entity.
type MentionOutput struct {
	Mentions   []Mention   `json:"mentions"`
	Documents  []string    `json:"documents"`
	CoMentions []CoMention `json:"co_mentions"`
}

// Mentions looks up where an entity, identified by label and surface text,
// was mentioned.
func (e *EntitiesClient) Mentions(ctx context.Context, label, text string, limit int) (*MentionOutput, error) {
	v := url.Values{}
	v.Set("label", label)
	v.Set("text", text)
	if limit > 0 {
		v.Set("limit", strconv.Itoa(limit))
	}
	var out MentionOutput
	if err := e.client.get(ctx, "/api/v1/entities/mentions?"+v.Encode(), &out); err != nil {
		return nil, err
	}
	return &out, nil
}
