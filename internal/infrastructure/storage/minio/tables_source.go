package minio

import (
	"context"
	"time"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	er "github.com/turtacn/LegalDoc-Intelligence/internal/intelligence/entity_resolver"
)

const defaultTablesPollInterval = 30 * time.Second

// TablesSource loads gazetteer/denylist tables from an object and keeps a
// TableStore in sync with it by polling the object's ETag.
type TablesSource struct {
	client   *MinIOClient
	key      string
	store    *er.TableStore
	logger   logging.Logger
	interval time.Duration
	onSwap   func(old, cur *er.Tables)

	etag string
}

// NewTablesSource creates a source for key.  onSwap may be nil; interval <= 0
// uses 30s.
func NewTablesSource(client *MinIOClient, key string, store *er.TableStore, interval time.Duration,
	log logging.Logger, onSwap func(old, cur *er.Tables)) *TablesSource {
	if log == nil {
		log = logging.NewNopLogger()
	}
	if interval <= 0 {
		interval = defaultTablesPollInterval
	}
	return &TablesSource{
		client:   client,
		key:      key,
		store:    store,
		logger:   log.Named("tables_source"),
		interval: interval,
		onSwap:   onSwap,
	}
}

// Load fetches and compiles the object without installing it.
func (s *TablesSource) Load(ctx context.Context) (*er.Tables, string, error) {
	data, etag, err := s.client.ReadObject(ctx, s.key)
	if err != nil {
		return nil, "", err
	}
	t, err := er.ParseTables(data)
	if err != nil {
		return nil, "", err
	}
	return t, etag, nil
}

// Reload installs the object's tables.  A failure keeps the current snapshot.
func (s *TablesSource) Reload(ctx context.Context) error {
	t, etag, err := s.Load(ctx)
	if err != nil {
		s.logger.Warn("tables object reload failed, keeping current snapshot",
			logging.String("key", s.key), logging.Err(err))
		return err
	}
	s.etag = etag
	old := s.store.Swap(t)
	if old != nil && old.Version() == t.Version() {
		return nil
	}
	s.logger.Info("tables reloaded from object", logging.String("key", s.key), logging.String("version", t.Version()))
	if s.onSwap != nil {
		s.onSwap(old, t)
	}
	return nil
}

// Poll reloads when the object's ETag differs from the last one loaded and
// reports whether it did.
func (s *TablesSource) Poll(ctx context.Context) (bool, error) {
	etag, err := s.client.StatETag(ctx, s.key)
	if err != nil {
		return false, err
	}
	if etag == s.etag {
		return false, nil
	}
	if err := s.Reload(ctx); err != nil {
		return false, err
	}
	return true, nil
}

// Run polls until ctx is cancelled.
func (s *TablesSource) Run(ctx context.Context) error {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			if _, err := s.Poll(ctx); err != nil && ctx.Err() == nil {
				s.logger.Debug("tables poll failed", logging.Err(err))
			}
		}
	}
}
