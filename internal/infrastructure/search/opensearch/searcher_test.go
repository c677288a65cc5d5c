package opensearch

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	pkgerrors "github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

func newTestSearcher(t *testing.T, serverURL string) *Searcher {
	t.Helper()
	return NewSearcher(newTestClient(t, serverURL), "legaldoc-entities", SearcherConfig{DefaultPageSize: 10, MaxPageSize: 50}, nil)
}

func TestSearcher_BuildQuery(t *testing.T) {
	s := newTestSearcher(t, "http://127.0.0.1:1")

	cases := []struct {
		name      string
		q         EntityQuery
		wantSize  int
		wantFrom  int
		hasFilter bool
		matchAll  bool
	}{
		{"default size", EntityQuery{Text: "an"}, 10, 0, false, false},
		{"capped size", EntityQuery{Text: "an", Limit: 500, Offset: 20}, 50, 20, false, false},
		{"label only", EntityQuery{Label: entity.LabelPerson, Offset: -1}, 10, 0, true, true},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			body := s.BuildQuery(tc.q)
			assert.Equal(t, tc.wantSize, body["size"])
			assert.Equal(t, tc.wantFrom, body["from"])

			nested := body["query"].(map[string]interface{})["nested"].(map[string]interface{})
			assert.Equal(t, "entities", nested["path"])
			boolQ := nested["query"].(map[string]interface{})["bool"].(map[string]interface{})
			_, hasFilter := boolQ["filter"]
			assert.Equal(t, tc.hasFilter, hasFilter)

			raw, err := json.Marshal(boolQ["must"])
			require.NoError(t, err)
			assert.Equal(t, tc.matchAll, strings.Contains(string(raw), "match_all"))
		})
	}
}

func TestSearcher_Search(t *testing.T) {
	var sent []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !strings.Contains(r.URL.Path, "legaldoc-entities/_search") {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		sent, _ = io.ReadAll(r.Body)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{
			"took": 4,
			"timed_out": false,
			"_shards": {"total": 1, "successful": 1, "skipped": 0, "failed": 0},
			"hits": {
				"total": {"value": 1, "relation": "eq"},
				"max_score": 1.5,
				"hits": [{
					"_index": "legaldoc-entities",
					"_id": "doc-1",
					"_score": 1.5,
					"_source": {
						"document_id": "doc-1",
						"labels": ["PERSON", "LOCATION"],
						"entities": [
							{"text": "Nguyễn Văn An", "label": "PERSON", "start": 4, "end": 17, "source": "statistical", "sentence_idx": 0},
							{"text": "Hà Nội", "label": "LOCATION", "start": 21, "end": 27, "source": "statistical", "sentence_idx": 0},
							{"text": "Văn Bình", "label": "PERSON", "start": 30, "end": 38, "source": "statistical", "sentence_idx": 0}
						]
					}
				}]
			}
		}`))
	}))
	defer server.Close()

	res, err := newTestSearcher(t, server.URL).Search(context.Background(), EntityQuery{Text: "văn an", Label: entity.LabelPerson})
	require.NoError(t, err)

	assert.Contains(t, string(sent), `"entities.label":"PERSON"`)
	assert.Equal(t, int64(1), res.Total)
	assert.Equal(t, int64(4), res.TookMs)
	require.Len(t, res.Hits, 1)
	assert.Equal(t, "doc-1", res.Hits[0].DocumentID)
	assert.InDelta(t, 1.5, res.Hits[0].Score, 0.001)
	require.Len(t, res.Hits[0].Matches, 1)
	assert.Equal(t, "Nguyễn Văn An", res.Hits[0].Matches[0].Text)
}

func TestSearcher_Search_RequiresCriteria(t *testing.T) {
	_, err := newTestSearcher(t, "http://127.0.0.1:1").Search(context.Background(), EntityQuery{})
	assert.True(t, pkgerrors.IsValidation(err))
}

func TestSearcher_Search_ServerError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error":{"type":"search_phase_execution_exception","reason":"all shards failed"},"status":400}`))
	}))
	defer server.Close()

	_, err := newTestSearcher(t, server.URL).Search(context.Background(), EntityQuery{Label: entity.LabelPerson})
	assert.True(t, pkgerrors.IsCode(err, pkgerrors.ErrCodeExternalService))
}

func TestMatchingEntities(t *testing.T) {
	ents := []IndexedEntity{
		{Text: "Bộ Tư pháp", Label: entity.LabelOrganization},
		{Text: "Bộ Tài chính", Label: entity.LabelOrganization},
		{Text: "Tư pháp", Label: entity.LabelMiscellaneous},
	}
	got := matchingEntities(ents, EntityQuery{Text: "tư PHÁP", Label: entity.LabelOrganization})
	require.Len(t, got, 1)
	assert.Equal(t, "Bộ Tư pháp", got[0].Text)

	assert.Len(t, matchingEntities(ents, EntityQuery{Label: entity.LabelOrganization}), 2)
}

//Personal.AI order the ending
