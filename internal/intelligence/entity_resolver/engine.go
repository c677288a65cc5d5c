package entity_resolver

import (
	"context"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/textclean"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// ---------------------------------------------------------------------------
// Configuration
// ---------------------------------------------------------------------------

// EngineConfig holds tuneable parameters for the resolution pipeline.
type EngineConfig struct {
	// CleanText runs textclean over the document before anything else.
	// Caller-supplied pattern offsets must then index the cleaned text.
	CleanText bool `json:"clean_text" yaml:"clean_text" mapstructure:"clean_text"`

	// Normalize fills Entity.Normalized and Entity.DateISO.
	Normalize bool `json:"normalize" yaml:"normalize" mapstructure:"normalize"`

	// MaxTextRunes rejects longer documents; 0 disables the check.
	MaxTextRunes int `json:"max_text_runes" yaml:"max_text_runes" mapstructure:"max_text_runes"`

	// BatchConcurrency bounds ResolveBatch parallelism.
	BatchConcurrency int `json:"batch_concurrency" yaml:"batch_concurrency" mapstructure:"batch_concurrency"`
}

// DefaultEngineConfig returns production defaults.
func DefaultEngineConfig() EngineConfig {
	return EngineConfig{
		CleanText:        false,
		Normalize:        true,
		MaxTextRunes:     1 << 20,
		BatchConcurrency: 4,
	}
}

// ---------------------------------------------------------------------------
// Collaborators
// ---------------------------------------------------------------------------

// Metrics records engine telemetry.
type Metrics interface {
	ObserveResolve(ctx context.Context, status string, duration time.Duration)
	ObserveStats(ctx context.Context, stats entity.Stats)
}

// TextCleaner repairs raw document text.
type TextCleaner interface {
	Clean(text string) string
}

// EntityNormalizer annotates final entities with canonical values.
type EntityNormalizer interface {
	NormalizeEntities(ents []entity.Entity)
}

// Option customises an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l logging.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics sink.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// WithCleaner sets the text cleaner; a non-nil cleaner always runs.
func WithCleaner(c TextCleaner) Option {
	return func(e *Engine) { e.cleaner = c }
}

// WithNormalizer sets the entity normalizer; a non-nil normalizer always runs.
func WithNormalizer(n EntityNormalizer) Option {
	return func(e *Engine) { e.normalizer = n }
}

// WithRecognizers adds recognizers whose output is merged with the built-in
// sources according to their priority.
func WithRecognizers(rs ...Recognizer) Option {
	return func(e *Engine) { e.extra = append(e.extra, rs...) }
}

// ---------------------------------------------------------------------------
// Engine
// ---------------------------------------------------------------------------

// Trace exposes the intermediate stages of one resolution.
type Trace struct {
	TablesVersion string                `json:"tables_version"`
	Statistical   []entity.Entity       `json:"statistical"`
	Decisions     []FilterDecision      `json:"decisions"`
	Patterns      []entity.PatternMatch `json:"patterns"`
	Merged        []entity.Entity       `json:"merged"`
}

// Engine runs the hybrid entity resolution pipeline.  It holds no per-document
// state and is safe for concurrent use.
type Engine struct {
	store      *TableStore
	cfg        EngineConfig
	logger     logging.Logger
	metrics    Metrics
	cleaner    TextCleaner
	normalizer EntityNormalizer
	extra      []Recognizer
}

// NewEngine constructs an engine reading tables from store.  A nil store is
// seeded with the embedded defaults.
func NewEngine(store *TableStore, cfg EngineConfig, opts ...Option) *Engine {
	if store == nil {
		store = NewTableStore(nil)
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = DefaultEngineConfig().BatchConcurrency
	}
	e := &Engine{
		store:   store,
		cfg:     cfg,
		logger:  logging.NewNopLogger(),
		metrics: noopMetrics{},
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.cleaner == nil && cfg.CleanText {
		e.cleaner = textclean.New(textclean.DefaultOptions())
	}
	if e.normalizer == nil && cfg.Normalize {
		e.normalizer = normalizer.New()
	}
	e.logger = e.logger.Named("entity_resolver")
	return e
}

// Tables returns the snapshot new resolutions will use.
func (e *Engine) Tables() *Tables { return e.store.Load() }

// Store returns the engine's table store.
func (e *Engine) Store() *TableStore { return e.store }

// TablesVersion reports the version of the tables new resolutions will use.
func (e *Engine) TablesVersion() string { return e.store.Load().Version() }

// Config returns the engine configuration.
func (e *Engine) Config() EngineConfig { return e.cfg }

// Resolve produces the final entity list for doc.
func (e *Engine) Resolve(ctx context.Context, doc *entity.Document) (*entity.Result, error) {
	res, _, err := e.run(ctx, doc, false)
	return res, err
}

// ResolveExplain is Resolve plus the intermediate stages.
func (e *Engine) ResolveExplain(ctx context.Context, doc *entity.Document) (*entity.Result, *Trace, error) {
	return e.run(ctx, doc, true)
}

func (e *Engine) run(ctx context.Context, doc *entity.Document, trace bool) (*entity.Result, *Trace, error) {
	start := time.Now()
	res, tr, err := e.resolve(ctx, doc, trace)
	status := "ok"
	if err != nil {
		status = string(errors.GetCode(err))
	}
	e.metrics.ObserveResolve(ctx, status, time.Since(start))
	if err != nil {
		return nil, nil, err
	}
	e.metrics.ObserveStats(ctx, res.Stats)
	return res, tr, nil
}

func (e *Engine) resolve(ctx context.Context, doc *entity.Document, trace bool) (*entity.Result, *Trace, error) {
	if doc == nil {
		return nil, nil, errors.InvalidParam("document is required")
	}
	if err := ctx.Err(); err != nil {
		return nil, nil, errors.Wrap(err, errors.ErrCodeTimeout, "resolution cancelled")
	}

	tables := e.store.Load()
	log := e.logger.With(logging.DocumentID(doc.ID), logging.String("tables_version", tables.Version()))

	text := doc.Text
	if e.cleaner != nil {
		text = e.cleaner.Clean(text)
	}
	runes := []rune(text)
	if e.cfg.MaxTextRunes > 0 && len(runes) > e.cfg.MaxTextRunes {
		return nil, nil, errors.Newf(errors.ErrCodeDocumentTooLarge, "document exceeds %d characters", e.cfg.MaxTextRunes).
			WithDetail(doc.ID)
	}

	res := &entity.Result{
		DocumentID:    doc.ID,
		Text:          text,
		Entities:      []entity.Entity{},
		Stats:         entity.Stats{TokensIn: len(doc.Tokens)},
		TablesVersion: tables.Version(),
	}
	var tr *Trace
	if trace {
		tr = &Trace{TablesVersion: tables.Version()}
	}
	if len(runes) == 0 {
		return res, tr, nil
	}

	// caller patterns are external input: reject bad spans before any work
	for _, p := range doc.Patterns {
		if p.Start < 0 || p.End > len(runes) || p.Start >= p.End {
			return nil, nil, errors.InvalidOffset(p.Start, p.End, len(runes))
		}
	}

	view := NewDocView(runes, tables)

	stat, rs := ReconstructSpans(runes, doc.Tokens, tables)
	filtered, decisions := NewNoiseFilter(tables).Apply(runes, stat)
	log.Debug("statistical candidates",
		logging.Int("chunks", rs.Chunks),
		logging.Int("unlocated", rs.Unlocated),
		logging.Int("kept", len(filtered)))

	matches := doc.Patterns
	if matches == nil {
		matches = tables.Producer().Match(view)
	}
	rule := patternEntities(matches)

	merged, ms, err := e.merge(ctx, doc, rule, filtered)
	if err != nil {
		return nil, nil, err
	}
	for _, m := range merged {
		if m.Start < 0 || m.End > len(runes) || m.Start >= m.End {
			return nil, nil, errors.Wrap(errors.InvalidOffset(m.Start, m.End, len(runes)), errors.ErrCodeInternal,
				"merged entity outside document bounds")
		}
	}

	final, dropped := Materialize(view, merged)
	if final == nil {
		final = []entity.Entity{}
	}
	if e.normalizer != nil {
		e.normalizer.NormalizeEntities(final)
	}

	res.Entities = final
	res.Sentences = len(view.Sentences)
	res.Stats = buildStats(doc, rs, decisions, filtered, rule, ms, dropped, final)
	log.Debug("document resolved",
		logging.Int("rule_based", len(rule)),
		logging.Int("overlapped", ms.Overlapped),
		logging.Int("materializer_dropped", dropped),
		logging.Int("final", len(final)))

	if tr != nil {
		tr.Statistical = stat
		tr.Decisions = decisions
		tr.Patterns = matches
		tr.Merged = merged
	}
	return res, tr, nil
}

func (e *Engine) merge(ctx context.Context, doc *entity.Document, rule, stat []entity.Entity) ([]entity.Entity, MergeStats, error) {
	if len(e.extra) == 0 {
		merged, ms := ResolveRuleFirst(rule, stat)
		return merged, ms, nil
	}
	batches := []SourceBatch{
		{Name: string(entity.SourceRuleBased), Priority: PriorityRuleBased, Entities: rule},
		{Name: string(entity.SourceStatistical), Priority: PriorityStatistical, Entities: stat},
	}
	for _, r := range e.extra {
		ents, err := r.Recognize(ctx, doc)
		if err != nil {
			return nil, MergeStats{}, errors.Wrap(err, errors.ErrCodeExternalService, "recognizer failed").WithDetail(r.Name())
		}
		batches = append(batches, SourceBatch{Name: r.Name(), Priority: r.Priority(), Entities: ents})
	}
	merged, ms := Merge(batches...)
	return merged, ms, nil
}

func buildStats(doc *entity.Document, rs ReconstructStats, decisions []FilterDecision, filtered, rule []entity.Entity,
	ms MergeStats, dropped int, final []entity.Entity) entity.Stats {
	st := entity.Stats{
		TokensIn:              len(doc.Tokens),
		StatisticalFound:      rs.Chunks,
		StatisticalUnlocated:  rs.Unlocated,
		StatisticalKept:       len(filtered),
		StatisticalOverlapped: ms.Overlapped,
		RuleBased:             len(rule),
		MaterializerDropped:   dropped,
		Final:                 len(final),
		FilterReasons:         make(map[string]int),
		Labels:                make(map[string]int),
	}
	for _, d := range decisions {
		st.FilterReasons[string(d.Reason)]++
		switch {
		case d.Emitted != nil:
			st.StatisticalSplit++
		case !d.Kept:
			st.StatisticalFiltered++
		}
	}
	for _, f := range final {
		st.Labels[f.Label]++
	}
	return st
}

// ---------------------------------------------------------------------------
// No-op metrics
// ---------------------------------------------------------------------------

type noopMetrics struct{}

func (noopMetrics) ObserveResolve(context.Context, string, time.Duration) {}
func (noopMetrics) ObserveStats(context.Context, entity.Stats)            {}
