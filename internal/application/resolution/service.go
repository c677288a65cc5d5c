// Package resolution provides the application-level service for entity
// resolution.  It sits between the HTTP handlers, the CLI and the Kafka
// worker on one side and the engine, cache and result sinks on the other.
package resolution

import (
	"context"
	stderrors "errors"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	graphrepo "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/neo4j/repositories"
	pgrepo "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/postgres/repositories"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/database/redis"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/messaging/kafka"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/search/opensearch"
	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/common"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/types/entity"
)

// Service defines the interface for entity resolution operations.
type Service interface {
	Resolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error)
	ResolveBatch(ctx context.Context, input *BatchInput) (*BatchOutput, error)
	GetDocument(ctx context.Context, id string) (*pgrepo.StoredResult, error)
	SearchEntities(ctx context.Context, input *SearchInput) (*opensearch.SearchResult, error)
	FindMentions(ctx context.Context, input *MentionInput) (*MentionOutput, error)
	HandleMessage(ctx context.Context, msg *common.Message) error
}

// ─────────────────────────────────────────────────────────────────────────────
// Collaborators
// ─────────────────────────────────────────────────────────────────────────────

// Resolver is the engine surface the service needs.
type Resolver interface {
	Resolve(ctx context.Context, doc *entity.Document) (*entity.Result, error)
	ResolveExplain(ctx context.Context, doc *entity.Document) (*entity.Result, *er.Trace, error)
	TablesVersion() string
}

// ResultCache memoizes results by document content.
type ResultCache interface {
	GetOrResolve(ctx context.Context, key string,
		resolve func(ctx context.Context) (*entity.Result, error)) (*entity.Result, bool, error)
}

// ResultSink receives every result that carries a document ID.
type ResultSink interface {
	Name() string
	Write(ctx context.Context, res *entity.Result) error
}

// DocumentStore reads back persisted results.
type DocumentStore interface {
	Get(ctx context.Context, id string) (*pgrepo.StoredResult, error)
	FindMentions(ctx context.Context, label, text string, limit int) ([]pgrepo.Mention, error)
}

// EntitySearcher queries the entity search index.
type EntitySearcher interface {
	Search(ctx context.Context, q opensearch.EntityQuery) (*opensearch.SearchResult, error)
}

// MentionGraph answers co-occurrence questions.
type MentionGraph interface {
	DocumentsMentioning(ctx context.Context, e entity.Entity, limit int) ([]string, error)
	CoMentions(ctx context.Context, e entity.Entity, limit int) ([]graphrepo.CoMention, error)
}

// ─────────────────────────────────────────────────────────────────────────────
// Inputs and outputs
// ─────────────────────────────────────────────────────────────────────────────

// ResolveInput contains input for resolving one document.
type ResolveInput struct {
	Document *entity.Document
	// Explain returns the intermediate stages; explained runs bypass the cache.
	Explain bool
	// NoCache forces a fresh resolution.
	NoCache bool
	// DryRun skips sinks and publication.
	DryRun bool
	// TraceID is propagated onto the published event.
	TraceID string
}

// ResolveOutput is the outcome of one resolution.
type ResolveOutput struct {
	Result     *entity.Result    `json:"result"`
	Trace      *er.Trace         `json:"trace,omitempty"`
	CacheHit   bool              `json:"cache_hit"`
	SinkErrors map[string]string `json:"sink_errors,omitempty"`
}

// BatchInput contains input for resolving several documents.
type BatchInput struct {
	Documents []*entity.Document
	DryRun    bool
}

// BatchItem is the outcome for the document at Index.
type BatchItem struct {
	Index  int                 `json:"index"`
	Output *ResolveOutput      `json:"output,omitempty"`
	Error  *common.ErrorDetail `json:"error,omitempty"`
}

// BatchOutput summarises a batch.
type BatchOutput struct {
	Items     []BatchItem `json:"items"`
	Succeeded int         `json:"succeeded"`
	Failed    int         `json:"failed"`
}

// SearchInput contains input for an entity search.
type SearchInput struct {
	Text   string
	Label  string
	Offset int
	Limit  int
}

// MentionInput identifies an entity by label and surface text.
type MentionInput struct {
	Label string
	Text  string
	Limit int
}

// MentionOutput combines what the relational store and the graph know about
// one entity.  Either part is empty when its backend is not configured.
type MentionOutput struct {
	Mentions   []pgrepo.Mention      `json:"mentions"`
	Documents  []string              `json:"documents"`
	CoMentions []graphrepo.CoMention `json:"co_mentions"`
}

// ─────────────────────────────────────────────────────────────────────────────
// Construction
// ─────────────────────────────────────────────────────────────────────────────

// Config holds service tunables.
type Config struct {
	// Source names this process on published events.
	Source string
	// ResultTopic receives EntitiesResolved events.
	ResultTopic string
	// SinkTimeout bounds each sink write.
	SinkTimeout time.Duration
	// BatchConcurrency caps documents in flight in ResolveBatch.
	BatchConcurrency int
}

// DefaultConfig returns the defaults used by the API server.
func DefaultConfig() Config {
	return Config{
		Source:           "legaldoc-apiserver",
		ResultTopic:      kafka.TopicEntitiesResolved,
		SinkTimeout:      5 * time.Second,
		BatchConcurrency: 4,
	}
}

// Option configures the service.
type Option func(*serviceImpl)

func WithCache(c ResultCache) Option { return func(s *serviceImpl) { s.cache = c } }

func WithSinks(sinks ...ResultSink) Option {
	return func(s *serviceImpl) { s.sinks = append(s.sinks, sinks...) }
}

func WithPublisher(p kafka.Publisher) Option { return func(s *serviceImpl) { s.publisher = p } }

func WithDocumentStore(d DocumentStore) Option { return func(s *serviceImpl) { s.store = d } }

func WithSearcher(es EntitySearcher) Option { return func(s *serviceImpl) { s.searcher = es } }

func WithMentionGraph(g MentionGraph) Option { return func(s *serviceImpl) { s.graph = g } }

func WithMetrics(m *prometheus.AppMetrics) Option { return func(s *serviceImpl) { s.metrics = m } }

type serviceImpl struct {
	resolver  Resolver
	cfg       Config
	cache     ResultCache
	sinks     []ResultSink
	publisher kafka.Publisher
	store     DocumentStore
	searcher  EntitySearcher
	graph     MentionGraph
	metrics   *prometheus.AppMetrics
	logger    logging.Logger
	now       func() time.Time
}

// NewService creates a new resolution service.
func NewService(resolver Resolver, cfg Config, logger logging.Logger, opts ...Option) Service {
	def := DefaultConfig()
	if cfg.Source == "" {
		cfg.Source = def.Source
	}
	if cfg.ResultTopic == "" {
		cfg.ResultTopic = def.ResultTopic
	}
	if cfg.SinkTimeout <= 0 {
		cfg.SinkTimeout = def.SinkTimeout
	}
	if cfg.BatchConcurrency <= 0 {
		cfg.BatchConcurrency = def.BatchConcurrency
	}
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	s := &serviceImpl{
		resolver: resolver,
		cfg:      cfg,
		logger:   logger.Named("resolution"),
		now:      time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// ─────────────────────────────────────────────────────────────────────────────
// Resolution
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) Resolve(ctx context.Context, input *ResolveInput) (*ResolveOutput, error) {
	if input == nil || input.Document == nil {
		return nil, errors.InvalidParam("document is required")
	}
	doc := input.Document

	out := &ResolveOutput{}
	var err error
	switch {
	case input.Explain:
		out.Result, out.Trace, err = s.resolver.ResolveExplain(ctx, doc)
	case s.cache == nil || input.NoCache:
		out.Result, err = s.resolver.Resolve(ctx, doc)
	default:
		out.Result, out.CacheHit, err = s.resolveCached(ctx, doc)
	}
	if err != nil {
		return nil, err
	}

	if input.DryRun || out.Result.DocumentID == "" {
		return out, nil
	}
	out.SinkErrors = s.writeSinks(ctx, out.Result)
	if err := s.publish(ctx, out, input.TraceID); err != nil {
		return out, err
	}
	return out, nil
}

// resolveCached keys the cache by content, so a hit may come from another
// document with the same text; the result is re-labelled with doc's ID.
func (s *serviceImpl) resolveCached(ctx context.Context, doc *entity.Document) (*entity.Result, bool, error) {
	key := redis.DocumentKey(doc, s.resolver.TablesVersion())
	res, hit, err := s.cache.GetOrResolve(ctx, key, func(ctx context.Context) (*entity.Result, error) {
		return s.resolver.Resolve(ctx, doc)
	})
	if s.metrics != nil && err == nil {
		prometheus.RecordCacheAccess(s.metrics, "result", hit)
	}
	if err != nil {
		return nil, false, err
	}
	if res.DocumentID != doc.ID {
		cp := *res
		cp.DocumentID = doc.ID
		res = &cp
	}
	return res, hit, nil
}

// writeSinks fans res out to every sink and returns the failures by sink
// name.  A failing sink never blocks the others.
func (s *serviceImpl) writeSinks(ctx context.Context, res *entity.Result) map[string]string {
	if len(s.sinks) == 0 {
		return nil
	}
	var (
		mu     sync.Mutex
		failed map[string]string
	)
	g, gctx := errgroup.WithContext(ctx)
	for _, sink := range s.sinks {
		sink := sink
		g.Go(func() error {
			wctx, cancel := context.WithTimeout(gctx, s.cfg.SinkTimeout)
			defer cancel()

			start := time.Now()
			err := sink.Write(wctx, res)
			if s.metrics != nil {
				prometheus.RecordSinkWrite(s.metrics, sink.Name(), time.Since(start), err)
			}
			if err == nil {
				return nil
			}
			s.logger.Warn("sink write failed",
				logging.String("sink", sink.Name()),
				logging.DocumentID(res.DocumentID),
				logging.Err(err))
			mu.Lock()
			if failed == nil {
				failed = make(map[string]string)
			}
			failed[sink.Name()] = err.Error()
			mu.Unlock()
			return nil
		})
	}
	_ = g.Wait()
	return failed
}

func (s *serviceImpl) publish(ctx context.Context, out *ResolveOutput, traceID string) error {
	if s.publisher == nil {
		return nil
	}
	env, err := kafka.NewEventEnvelope(kafka.EventEntitiesResolved, s.cfg.Source, kafka.EntitiesResolvedPayload{
		Result:        *out.Result,
		TablesVersion: out.Result.TablesVersion,
		CacheHit:      out.CacheHit,
		ResolvedAt:    s.now().UTC(),
	})
	if err != nil {
		return err
	}
	env.TraceID = traceID
	msg, err := env.ToMessage(s.cfg.ResultTopic, out.Result.DocumentID)
	if err != nil {
		return err
	}
	if err := s.publisher.Publish(ctx, msg); err != nil {
		s.logger.Error("failed to publish resolved entities",
			logging.DocumentID(out.Result.DocumentID), logging.Err(err))
		return errors.Wrap(err, errors.ErrCodeMessaging, "failed to publish result")
	}
	return nil
}

func (s *serviceImpl) ResolveBatch(ctx context.Context, input *BatchInput) (*BatchOutput, error) {
	if input == nil || len(input.Documents) == 0 {
		return nil, errors.InvalidParam("documents are required")
	}

	out := &BatchOutput{Items: make([]BatchItem, len(input.Documents))}
	var g errgroup.Group
	g.SetLimit(s.cfg.BatchConcurrency)
	for i, doc := range input.Documents {
		i, doc := i, doc
		out.Items[i].Index = i
		g.Go(func() error {
			var (
				res *ResolveOutput
				err error
			)
			if cerr := ctx.Err(); cerr != nil {
				err = errors.Wrap(cerr, errors.ErrCodeTimeout, "batch cancelled before document started")
			} else {
				res, err = s.Resolve(ctx, &ResolveInput{Document: doc, DryRun: input.DryRun})
			}
			if err != nil {
				d := ErrorDetail(err)
				out.Items[i].Error = &d
				return nil
			}
			out.Items[i].Output = res
			return nil
		})
	}
	_ = g.Wait()

	for _, it := range out.Items {
		if it.Error != nil {
			out.Failed++
		} else {
			out.Succeeded++
		}
	}
	return out, nil
}

// ErrorDetail converts err into the API error shape.
func ErrorDetail(err error) common.ErrorDetail {
	var appErr *errors.AppError
	if stderrors.As(err, &appErr) {
		d := common.ErrorDetail{Code: string(appErr.Code), Message: appErr.Message}
		if appErr.Detail != "" {
			d.Details = map[string]interface{}{"detail": appErr.Detail}
		}
		return d
	}
	return common.ErrorDetail{Code: string(errors.ErrCodeInternal), Message: err.Error()}
}

// ─────────────────────────────────────────────────────────────────────────────
// Queries
// ─────────────────────────────────────────────────────────────────────────────

func (s *serviceImpl) GetDocument(ctx context.Context, id string) (*pgrepo.StoredResult, error) {
	if id == "" {
		return nil, errors.InvalidParam("document id is required")
	}
	if s.store == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "document store is not configured")
	}
	return s.store.Get(ctx, id)
}

func (s *serviceImpl) SearchEntities(ctx context.Context, input *SearchInput) (*opensearch.SearchResult, error) {
	if input == nil {
		return nil, errors.InvalidParam("search input is required")
	}
	if s.searcher == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "entity search is not configured")
	}
	return s.searcher.Search(ctx, opensearch.EntityQuery{
		Text:   input.Text,
		Label:  input.Label,
		Offset: input.Offset,
		Limit:  input.Limit,
	})
}

func (s *serviceImpl) FindMentions(ctx context.Context, input *MentionInput) (*MentionOutput, error) {
	if input == nil || input.Label == "" || input.Text == "" {
		return nil, errors.InvalidParam("label and text are required")
	}
	if s.store == nil && s.graph == nil {
		return nil, errors.New(errors.ErrCodeFeatureDisabled, "no mention backend is configured")
	}

	out := &MentionOutput{
		Mentions:   []pgrepo.Mention{},
		Documents:  []string{},
		CoMentions: []graphrepo.CoMention{},
	}
	if s.store != nil {
		m, err := s.store.FindMentions(ctx, input.Label, input.Text, input.Limit)
		if err != nil {
			return nil, err
		}
		out.Mentions = m
	}
	if s.graph != nil {
		probe := entity.Entity{Text: input.Text, Label: input.Label}
		docs, err := s.graph.DocumentsMentioning(ctx, probe, input.Limit)
		if err != nil {
			return nil, err
		}
		co, err := s.graph.CoMentions(ctx, probe, input.Limit)
		if err != nil {
			return nil, err
		}
		out.Documents, out.CoMentions = docs, co
	}
	return out, nil
}

// ─────────────────────────────────────────────────────────────────────────────
// Worker
// ─────────────────────────────────────────────────────────────────────────────

// HandleMessage resolves the document carried by a ResolveRequested event.
// Sink failures are returned so that the consumer retries the message; other
// event types are acknowledged and ignored.
func (s *serviceImpl) HandleMessage(ctx context.Context, msg *common.Message) error {
	start := time.Now()
	err := s.handleMessage(ctx, msg)
	if s.metrics != nil {
		status := "ok"
		if err != nil {
			status = string(errors.GetCode(err))
		}
		prometheus.RecordMessage(s.metrics, msg.Topic, status, time.Since(start))
	}
	return err
}

func (s *serviceImpl) handleMessage(ctx context.Context, msg *common.Message) error {
	env, err := kafka.MessageToEventEnvelope(msg)
	if err != nil {
		return err
	}
	if env.EventType != kafka.EventResolveRequested {
		s.logger.Debug("ignoring event", logging.String("event_type", env.EventType), logging.String("event_id", env.EventID))
		return nil
	}

	var payload kafka.ResolveRequestedPayload
	if err := env.DecodePayload(&payload); err != nil {
		return err
	}
	if payload.Document.ID == "" {
		return errors.New(errors.ErrCodeValidation, "document id is required").WithDetail(env.EventID)
	}

	out, err := s.Resolve(ctx, &ResolveInput{Document: &payload.Document, TraceID: env.TraceID})
	if err != nil {
		return err
	}
	if len(out.SinkErrors) > 0 {
		return errors.Newf(errors.ErrCodeStorage, "%d sink(s) failed", len(out.SinkErrors)).
			WithDetail(payload.Document.ID)
	}
	s.logger.Info("document resolved",
		logging.DocumentID(payload.Document.ID),
		logging.Int("entities", len(out.Result.Entities)),
		logging.Bool("cache_hit", out.CacheHit))
	return nil
}

var _ ResultCache = (*redis.ResultCache)(nil)
