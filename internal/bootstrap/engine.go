package bootstrap

import (
	"context"

	"github.com/turtacn/LegalDoc-Intelligence/internal/config"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/prometheus"
	minioclient "github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/storage/minio"
	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/normalizer"
	"github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/textclean"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

// Reloader keeps the engine's tables current until ctx is done.
type Reloader interface {
	Run(ctx context.Context) error
}

// TablesOrigin names where the initial tables came from.
type TablesOrigin string

const (
	OriginBuiltin TablesOrigin = "builtin"
	OriginFile    TablesOrigin = "file"
	OriginObject  TablesOrigin = "object"
)

// Engine is the assembled resolver with its optional tables reloader.
type Engine struct {
	*er.Engine
	Origin   TablesOrigin
	Reloader Reloader
}

// NewEngine loads the tables named by cfg.Resolver and builds the engine.
//
// resolver.tables_path (read from disk, watched when watch_tables is set)
// wins over resolver.tables_object (read from MinIO, polled for changes);
// without either the embedded defaults are used.  minio is required only for
// tables_object.  metrics may be nil.
func NewEngine(ctx context.Context, cfg config.ResolverConfig, minio *minioclient.MinIOClient,
	logger logging.Logger, metrics *prometheus.AppMetrics) (*Engine, error) {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	log := logger.Named("engine")

	onSwap := func(old, cur *er.Tables) {
		if metrics != nil {
			prometheus.RecordTablesReload(metrics, nil)
		}
		prev := ""
		if old != nil {
			prev = old.Version()
		}
		log.Info("tables swapped", logging.String("from", prev), logging.String("to", cur.Version()))
	}

	var (
		tables   = er.DefaultTables()
		origin   = OriginBuiltin
		reloader Reloader
		store    *er.TableStore
	)

	switch {
	case cfg.TablesPath != "":
		t, err := er.LoadTablesFile(cfg.TablesPath)
		if err != nil {
			return nil, err
		}
		store = er.NewTableStore(t)
		origin = OriginFile
		if cfg.WatchTables {
			reloader = er.NewTableWatcher(cfg.TablesPath, store, logger, onSwap)
		}

	case cfg.TablesObject != "":
		if minio == nil {
			return nil, errors.New(errors.ErrCodeValidation, "resolver.tables_object requires minio.enabled")
		}
		store = er.NewTableStore(tables)
		src := minioclient.NewTablesSource(minio, cfg.TablesObject, store, 0, logger, onSwap)
		if err := src.Reload(ctx); err != nil {
			return nil, err
		}
		origin, reloader = OriginObject, src

	default:
		store = er.NewTableStore(tables)
	}

	opts := []er.Option{
		er.WithLogger(log),
		er.WithCleaner(textclean.New(textclean.DefaultOptions())),
		er.WithNormalizer(normalizer.New()),
	}
	if metrics != nil {
		opts = append(opts, er.WithMetrics(metrics))
	}

	eng := er.NewEngine(store, cfg.EngineConfig, opts...)
	log.Info("engine ready",
		logging.String("tables_origin", string(origin)),
		logging.String("tables_version", eng.TablesVersion()),
		logging.Bool("reloading", reloader != nil))
	return &Engine{Engine: eng, Origin: origin, Reloader: reloader}, nil
}

// RunReloader runs e.Reloader in the background.  It is a no-op without one.
func (e *Engine) RunReloader(ctx context.Context, logger logging.Logger) {
	if e.Reloader == nil {
		return
	}
	go func() {
		if err := e.Reloader.Run(ctx); err != nil {
			logger.Error("tables reloader stopped", logging.Err(err))
		}
	}()
}
