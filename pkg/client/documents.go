package client

import (
	"context"
	"net/url"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// DocumentsClient reads stored results and exposes text cleaning.
type DocumentsClient struct {
	client *Client
}

// StoredResult is a persisted resolution result.
type StoredResult struct {
	entity.Result
	ResolvedAt time.Time `json:"resolved_at"`
}

// Get fetches the stored result of document id.
func (d *DocumentsClient) Get(ctx context.Context, id string) (*StoredResult, error) {
	if id == "" {
		return nil, errors.InvalidParam("client: document id is required")
	}
	var out StoredResult
	if err := d.client.get(ctx, "/api/v1/documents/"+url.PathEscape(id), &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// CleanedText is the server's cleaned form of a text.
type CleanedText struct {
	Text  string `json:"text"`
	Runes int    `json:"runes"`
}

// Clean returns text as the resolver sees it after cleaning.  Token offsets
// produced by a tagger should refer to this text.
func (d *DocumentsClient) Clean(ctx context.Context, text string) (*CleanedText, error) {
	var out CleanedText
	body := struct {
		Text string `json:"text"`
	}{text}
	if err := d.client.post(ctx, "/api/v1/text/clean", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

//Personal.AI order the ending
