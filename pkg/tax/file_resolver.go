package tax

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/fsnotify/fsnotify"

	"github.com/platinummonkey/tenantcart/pkg/observability"
)

// FileResolver serves rates from a YAML file and reloads them when it changes
type FileResolver struct {
	*StaticResolver
	path   string
	logger *observability.Logger
}

// NewFileResolver loads the rate file at path
func NewFileResolver(path string, logger *observability.Logger) (*FileResolver, error) {
	rates, err := LoadRates(path)
	if err != nil {
		return nil, err
	}
	if logger == nil {
		logger = observability.NewNopLogger()
	}
	return &FileResolver{
		StaticResolver: NewStaticResolver(rates),
		path:           path,
		logger:         logger.WithField("tax_rates", path),
	}, nil
}

// Reload re-reads the rate file. The previous table is kept on error.
func (r *FileResolver) Reload() error {
	rates, err := LoadRates(r.path)
	if err != nil {
		return err
	}
	r.set(rates)
	r.logger.Infof("Loaded %d tax rates", len(rates))
	return nil
}

// Watch reloads the file on every write until ctx is cancelled. The parent
// directory is watched so editors that replace the file are picked up too.
func (r *FileResolver) Watch(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create watcher: %w", err)
	}
	defer watcher.Close()

	if err := watcher.Add(filepath.Dir(r.path)); err != nil {
		return fmt.Errorf("failed to watch %s: %w", r.path, err)
	}

	target := filepath.Clean(r.path)
	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if filepath.Clean(event.Name) != target {
				continue
			}
			if event.Op&(fsnotify.Write|fsnotify.Create) == 0 {
				continue
			}
			if err := r.Reload(); err != nil {
				r.logger.WithError(err).Warn("Failed to reload tax rates, keeping previous table")
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			r.logger.WithError(err).Warn("Tax rate watcher error")
		}
	}
}
