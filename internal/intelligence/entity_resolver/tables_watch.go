package entity_resolver

import (
	"context"
	"path/filepath"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/turtacn/LegalDoc-Intelligence/internal/infrastructure/monitoring/logging"
	"github.com/turtacn/LegalDoc-Intelligence/pkg/errors"
)

const defaultReloadDebounce = 200 * time.Millisecond

// TableWatcher reloads a tables file into a TableStore whenever it changes on
// disk.  A file that fails to compile is logged and the previous snapshot is
// kept.
type TableWatcher struct {
	path     string
	store    *TableStore
	logger   logging.Logger
	debounce time.Duration
	onSwap   func(old, cur *Tables)
}

// NewTableWatcher watches path and swaps reloaded tables into store.  onSwap
// may be nil.
func NewTableWatcher(path string, store *TableStore, logger logging.Logger, onSwap func(old, cur *Tables)) *TableWatcher {
	if logger == nil {
		logger = logging.NewNopLogger()
	}
	return &TableWatcher{
		path:     filepath.Clean(path),
		store:    store,
		logger:   logger.Named("tables_watch"),
		debounce: defaultReloadDebounce,
		onSwap:   onSwap,
	}
}

// Reload compiles the file now and installs it.
func (w *TableWatcher) Reload() error {
	t, err := LoadTablesFile(w.path)
	if err != nil {
		w.logger.Warn("tables reload failed, keeping current snapshot",
			logging.String("path", w.path), logging.Err(err))
		return err
	}
	old := w.store.Swap(t)
	if old != nil && old.Version() == t.Version() {
		return nil
	}
	w.logger.Info("tables reloaded", logging.String("path", w.path), logging.String("version", t.Version()))
	if w.onSwap != nil {
		w.onSwap(old, t)
	}
	return nil
}

// Run blocks until ctx is done.  The parent directory is watched so that
// editors and config-map updates that replace the file are seen.
func (w *TableWatcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeTableLoad, "failed to create tables watcher")
	}
	defer fw.Close()

	if err := fw.Add(filepath.Dir(w.path)); err != nil {
		return errors.Wrap(err, errors.ErrCodeTableLoad, "failed to watch tables directory").WithDetail(w.path)
	}

	var (
		timer   *time.Timer
		pending <-chan time.Time
	)
	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil
		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(ev.Name) != w.path || ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) == 0 {
				continue
			}
			if timer == nil {
				timer = time.NewTimer(w.debounce)
			} else {
				timer.Reset(w.debounce)
			}
			pending = timer.C
		case <-pending:
			pending = nil
			_ = w.Reload()
		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn("tables watcher error", logging.Err(err))
		}
	}
}
