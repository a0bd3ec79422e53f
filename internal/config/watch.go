package config

import (
	"context"
	"os"
	"time"

	"github.com/rs/zerolog"
)

// catalogWatcher remembers the file state of the last accepted catalog.
type catalogWatcher struct {
	path     string
	logger   zerolog.Logger
	onUpdate func(*CatalogConfig)

	modTime time.Time
	size    int64
}

// load parses the file and hands it to onUpdate. The file state is recorded only
// for a valid catalog, so a broken edit is retried on the next change.
func (w *catalogWatcher) load(info os.FileInfo) error {
	cat, err := LoadCatalog(w.path)
	if err != nil {
		return err
	}
	w.modTime, w.size = info.ModTime(), info.Size()
	if w.onUpdate != nil {
		w.onUpdate(cat)
	}
	return nil
}

// poll reloads the catalog when the file changed since the last accepted load.
func (w *catalogWatcher) poll() bool {
	info, err := os.Stat(w.path)
	if err != nil {
		w.logger.Debug().Err(err).Str("path", w.path).Msg("catalog stat failed")
		return false
	}
	if info.ModTime().Equal(w.modTime) && info.Size() == w.size {
		return false
	}
	if err := w.load(info); err != nil {
		w.logger.Warn().Err(err).Str("path", w.path).Msg("catalog reload rejected, keeping previous")
		w.modTime, w.size = info.ModTime(), info.Size()
		return false
	}
	w.logger.Info().Str("path", w.path).Msg("catalog reloaded")
	return true
}

// WatchCatalog loads the catalog once, then polls the file every interval and calls
// onUpdate for each valid new version until ctx is done. An invalid initial catalog
// is returned as an error; invalid later edits are logged and skipped.
func WatchCatalog(ctx context.Context, path string, interval time.Duration, logger zerolog.Logger, onUpdate func(*CatalogConfig)) error {
	if path == "" {
		path = "configs/catalog.yaml"
	}
	if interval <= 0 {
		interval = 30 * time.Second
	}

	w := &catalogWatcher{path: path, logger: logger, onUpdate: onUpdate}
	info, err := os.Stat(path)
	if err != nil {
		return err
	}
	if err := w.load(info); err != nil {
		return err
	}

	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				w.poll()
			}
		}
	}()
	return nil
}
