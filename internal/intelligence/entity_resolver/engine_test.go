package entity_resolver

import (
	"context"
	"encoding/json"
	"math/rand"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// ---------------------------------------------------------------------------
// Mocks
// ---------------------------------------------------------------------------

type mockMetrics struct {
	mu       sync.Mutex
	statuses []string
	stats    []entity.Stats
}

func (m *mockMetrics) ObserveResolve(_ context.Context, status string, _ time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.statuses = append(m.statuses, status)
}

func (m *mockMetrics) ObserveStats(_ context.Context, s entity.Stats) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.stats = append(m.stats, s)
}

type staticRecognizer struct {
	name     string
	priority int
	ents     []entity.Entity
	err      error
}

func (r staticRecognizer) Name() string  { return r.name }
func (r staticRecognizer) Priority() int { return r.priority }
func (r staticRecognizer) Recognize(context.Context, *entity.Document) ([]entity.Entity, error) {
	return r.ents, r.err
}

type upperCleaner struct{}

func (upperCleaner) Clean(s string) string { return strings.ToUpper(s) }

// ---------------------------------------------------------------------------
// Fixtures
// ---------------------------------------------------------------------------

const decisionText = "QUYẾT ĐỊNH Số: 2827/QĐ-BGDĐT Hà Nội, ngày 14 tháng 10 năm 2025. Bộ trưởng Nguyễn Kim Sơn ký."

func decisionDoc() *entity.Document {
	return &entity.Document{
		ID:   "doc-1",
		Text: decisionText,
		Tokens: toks(
			"QUYẾT", "O", "ĐỊNH", "O", "Số", "O", ":", "O",
			"Hà", "B-LOC", "Nội", "I-LOC", ",", "O",
			"14", "B-MISC", "tháng", "I-MISC", "10", "I-MISC",
			"Bộ", "B-ORG", "trưởng", "I-ORG",
			"Nguyễn", "B-PER", "Kim", "I-PER", "Sơn", "I-PER", "ký", "O",
		),
	}
}

func newTestEngine(opts ...Option) *Engine {
	return NewEngine(NewTableStore(nil), DefaultEngineConfig(), opts...)
}

func assertWellFormed(t *testing.T, text string, ents []entity.Entity) {
	t.Helper()
	rs := []rune(text)
	for i, e := range ents {
		require.True(t, 0 <= e.Start && e.Start < e.End && e.End <= len(rs), "bad span %v", e)
		assert.Equal(t, string(rs[e.Start:e.End]), e.Text)
		if i > 0 {
			assert.LessOrEqual(t, ents[i-1].End, e.Start, "overlap or disorder at %d", i)
		}
	}
}

// ---------------------------------------------------------------------------
// Pipeline
// ---------------------------------------------------------------------------

func TestEngine_Resolve_DecisionDocument(t *testing.T) {
	t.Parallel()

	m := &mockMetrics{}
	eng := newTestEngine(WithMetrics(m), WithLogger(logging.NewNopLogger()))

	res, err := eng.Resolve(context.Background(), decisionDoc())
	require.NoError(t, err)

	type view struct {
		Label, Text, Normalized, DateISO string
		Source                           entity.Source
		Sentence                         int
	}
	got := make([]view, len(res.Entities))
	for i, e := range res.Entities {
		got[i] = view{e.Label, e.Text, e.Normalized, e.DateISO, e.Source, e.SentenceIdx}
	}
	assert.Equal(t, []view{
		{entity.LabelDecisionID, "2827/QĐ-BGDĐT", "2827/QĐ-BGDĐT", "", entity.SourceRuleBased, 0},
		{entity.LabelLocation, "Hà Nội", "", "", entity.SourceStatistical, 0},
		{entity.LabelIssueDate, "ngày 14 tháng 10 năm 2025", "", "2025-10-14", entity.SourceRuleBased, 0},
		{entity.LabelPerson, "Nguyễn Kim Sơn", "Nguyễn Kim Sơn", "", entity.SourceStatistical, 1},
	}, got)
	assertWellFormed(t, decisionText, res.Entities)

	assert.Equal(t, "doc-1", res.DocumentID)
	assert.Equal(t, 2, res.Sentences)
	assert.Equal(t, entity.Stats{
		TokensIn:              16,
		StatisticalFound:      4,
		StatisticalFiltered:   1,
		StatisticalKept:       3,
		StatisticalOverlapped: 1,
		RuleBased:             2,
		Final:                 4,
		FilterReasons: map[string]int{
			string(ReasonGazetteerExact): 1,
			string(ReasonKept):           2,
			string(ReasonDenylist):       1,
		},
		Labels: map[string]int{
			entity.LabelDecisionID: 1,
			entity.LabelLocation:   1,
			entity.LabelIssueDate:  1,
			entity.LabelPerson:     1,
		},
	}, res.Stats)

	assert.Equal(t, []string{"ok"}, m.statuses)
	require.Len(t, m.stats, 1)
	assert.Equal(t, 4, m.stats[0].Final)
}

func TestEngine_Resolve_EmptyText(t *testing.T) {
	t.Parallel()

	res, err := newTestEngine().Resolve(context.Background(), &entity.Document{ID: "e", Tokens: toks("a", "B-PER")})
	require.NoError(t, err)
	assert.NotNil(t, res.Entities)
	assert.Empty(t, res.Entities)
	assert.Equal(t, 1, res.Stats.TokensIn)
}

func TestEngine_Resolve_NilDocument(t *testing.T) {
	t.Parallel()

	_, err := newTestEngine().Resolve(context.Background(), nil)
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeBadRequest))
}

func TestEngine_Resolve_InvalidCallerOffsets(t *testing.T) {
	t.Parallel()

	cases := []entity.PatternMatch{
		{Label: "X", Start: -1, End: 2},
		{Label: "X", Start: 2, End: 2},
		{Label: "X", Start: 3, End: 1},
		{Label: "X", Start: 0, End: 4},
	}
	eng := newTestEngine()
	for _, p := range cases {
		_, err := eng.Resolve(context.Background(), &entity.Document{Text: "abc", Patterns: []entity.PatternMatch{p}})
		require.Error(t, err, "%+v", p)
		assert.True(t, errors.IsCode(err, errors.ErrCodeInvalidOffset))
		var ae *errors.AppError
		require.ErrorAs(t, err, &ae)
		assert.Equal(t, 400, ae.HTTPStatus())
	}
}

func TestEngine_Resolve_CallerPatternsReplaceProducer(t *testing.T) {
	t.Parallel()

	doc := decisionDoc()
	doc.Patterns = []entity.PatternMatch{}

	res, err := newTestEngine().Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Zero(t, res.Stats.RuleBased)
	for _, e := range res.Entities {
		assert.Equal(t, entity.SourceStatistical, e.Source)
	}
	// without the ISSUE_DATE rule the statistical MISC span survives
	assert.Contains(t, res.Stats.Labels, entity.LabelMiscellaneous)

	text := []rune(decisionText)
	s := indexRunes(text, []rune("Nguyễn"), 0)
	doc.Patterns = []entity.PatternMatch{{Label: "SIGNER", Text: "Nguyễn Kim", Start: s, End: s + 10}}
	res, err = newTestEngine().Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.RuleBased)
	assert.Equal(t, 1, res.Stats.Labels["SIGNER"])
	assert.NotContains(t, res.Stats.Labels, entity.LabelPerson)
}

func TestEngine_Resolve_EmptyPatternsSurviveJSON(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name     string
		patterns []entity.PatternMatch
		wantJSON string
		wantRule int
	}{
		{"empty disables producer", []entity.PatternMatch{}, `"patterns":[]`, 0},
		{"nil runs producer", nil, `"patterns":null`, 1},
	}
	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()

			raw, err := json.Marshal(&entity.Document{ID: "d", Text: "Số: 2827/QĐ-BGDĐT", Patterns: tc.patterns})
			require.NoError(t, err)
			assert.Contains(t, string(raw), tc.wantJSON)

			var doc entity.Document
			require.NoError(t, json.Unmarshal(raw, &doc))
			assert.Equal(t, tc.patterns == nil, doc.Patterns == nil)

			res, err := newTestEngine().Resolve(context.Background(), &doc)
			require.NoError(t, err)
			assert.Equal(t, tc.wantRule, res.Stats.RuleBased)
		})
	}
}

func TestEngine_Resolve_DocumentTooLarge(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	cfg.MaxTextRunes = 5
	_, err := NewEngine(nil, cfg).Resolve(context.Background(), &entity.Document{Text: "Hà Nội đẹp"})
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeDocumentTooLarge))
}

func TestEngine_Resolve_Cancelled(t *testing.T) {
	t.Parallel()

	m := &mockMetrics{}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := newTestEngine(WithMetrics(m)).Resolve(ctx, decisionDoc())
	require.Error(t, err)
	assert.Equal(t, []string{string(errors.ErrCodeTimeout)}, m.statuses)
	assert.Empty(t, m.stats)
}

func TestEngine_Resolve_CleanText(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	cfg.CleanText = true
	eng := NewEngine(nil, cfg)

	doc := &entity.Document{
		Text:   "Ông Nguyễn\nKim Sơn , tại Đà   Nẵng",
		Tokens: toks("Đà", "B-LOC", "Nẵng", "I-LOC"),
	}
	res, err := eng.Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Equal(t, "Ông Nguyễn Kim Sơn, tại Đà Nẵng", res.Text)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "Đà Nẵng", res.Entities[0].Text)
	assertWellFormed(t, res.Text, res.Entities)
}

func TestEngine_Resolve_CustomCleanerAndNoNormalize(t *testing.T) {
	t.Parallel()

	cfg := DefaultEngineConfig()
	cfg.Normalize = false
	eng := NewEngine(nil, cfg, WithCleaner(upperCleaner{}))

	res, err := eng.Resolve(context.Background(), &entity.Document{Text: "ngày 1 tháng 2 năm 2024"})
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, "NGÀY 1 THÁNG 2 NĂM 2024", res.Entities[0].Text)
	assert.Empty(t, res.Entities[0].DateISO)
}

func TestEngine_Resolve_ExtraRecognizer(t *testing.T) {
	t.Parallel()

	text := []rune(decisionText)
	s := indexRunes(text, []rune("Bộ trưởng"), 0)
	extra := staticRecognizer{
		name:     "signer_title",
		priority: 50,
		ents: []entity.Entity{
			{Text: "Bộ trưởng Nguyễn", Label: "TITLE", Start: s, End: s + 16, Source: "dictionary", SentenceIdx: -1},
		},
	}
	res, err := newTestEngine(WithRecognizers(extra)).Resolve(context.Background(), decisionDoc())
	require.NoError(t, err)
	assert.Equal(t, 1, res.Stats.Labels["TITLE"])
	assert.NotContains(t, res.Stats.Labels, entity.LabelPerson)
	assertWellFormed(t, decisionText, res.Entities)

	failing := staticRecognizer{name: "broken", priority: 1, err: assert.AnError}
	_, err = newTestEngine(WithRecognizers(failing)).Resolve(context.Background(), decisionDoc())
	require.Error(t, err)
	assert.True(t, errors.IsCode(err, errors.ErrCodeExternalService))
}

func TestEngine_ResolveExplain(t *testing.T) {
	t.Parallel()

	eng := newTestEngine()
	res, tr, err := eng.ResolveExplain(context.Background(), decisionDoc())
	require.NoError(t, err)
	require.NotNil(t, tr)
	assert.Equal(t, eng.Tables().Version(), tr.TablesVersion)
	assert.Len(t, tr.Statistical, 4)
	assert.Len(t, tr.Decisions, 4)
	assert.Len(t, tr.Patterns, 2)
	assert.Len(t, tr.Merged, 4)
	assert.Len(t, res.Entities, 4)
}

func TestEngine_TableSwapAffectsNewResolutions(t *testing.T) {
	t.Parallel()

	eng := newTestEngine()
	doc := &entity.Document{Text: "Ông Lê Văn Tám", Tokens: toks("Lê", "B-PER", "Văn", "I-PER", "Tám", "I-PER")}

	res, err := eng.Resolve(context.Background(), doc)
	require.NoError(t, err)
	require.Len(t, res.Entities, 1)
	assert.Equal(t, eng.Tables().Version(), res.TablesVersion)

	custom, err := ParseTables([]byte("denylist:\n  - lê\nlabel_aliases:\n  PER: PERSON\n"))
	require.NoError(t, err)
	eng.Store().Swap(custom)

	res, err = eng.Resolve(context.Background(), doc)
	require.NoError(t, err)
	assert.Empty(t, res.Entities)
	assert.Equal(t, 1, res.Stats.FilterReasons[string(ReasonDenylistPrefix)])
	assert.Equal(t, custom.Version(), res.TablesVersion)
}

// ---------------------------------------------------------------------------
// Properties
// ---------------------------------------------------------------------------

func randomDocument(r *rand.Rand) *entity.Document {
	words := strings.Fields(decisionText)
	tags := []string{"O", "O", "B-PER", "I-PER", "B-LOC", "I-LOC", "B-ORG", "I-ORG", "I-MISC", "bogus"}
	n := 1 + r.Intn(len(words))
	tokens := make([]entity.TaggedToken, 0, n)
	for i := 0; i < n; i++ {
		tokens = append(tokens, entity.TaggedToken{
			Text: words[r.Intn(len(words))],
			Tag:  tags[r.Intn(len(tags))],
		})
	}
	return &entity.Document{Text: decisionText, Tokens: tokens}
}

func TestEngine_Properties(t *testing.T) {
	t.Parallel()

	eng := newTestEngine()
	base, err := eng.Resolve(context.Background(), &entity.Document{Text: decisionText})
	require.NoError(t, err)
	rules := map[[2]int]string{}
	for _, e := range base.Entities {
		rules[[2]int{e.Start, e.End}] = e.Label
	}
	require.Len(t, rules, 2)

	r := rand.New(rand.NewSource(42))
	for i := 0; i < 200; i++ {
		doc := randomDocument(r)

		res, err := eng.Resolve(context.Background(), doc)
		require.NoError(t, err)

		// non-overlap, sortedness and exact slicing
		assertWellFormed(t, decisionText, res.Entities)

		// rule survival: every built-in match reaches the output unchanged
		found := 0
		for _, e := range res.Entities {
			if label, ok := rules[[2]int{e.Start, e.End}]; ok && label == e.Label && e.Source == entity.SourceRuleBased {
				found++
			}
		}
		assert.Equal(t, len(rules), found)

		// statistical subordination: no statistical entity touches a rule span
		for _, e := range res.Entities {
			if e.Source != entity.SourceStatistical {
				continue
			}
			for sp := range rules {
				assert.False(t, e.Start < sp[1] && sp[0] < e.End, "statistical %v overlaps rule span %v", e, sp)
			}
		}

		// idempotence
		again, err := eng.Resolve(context.Background(), doc)
		require.NoError(t, err)
		assert.Equal(t, res, again)
	}
}
