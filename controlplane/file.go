package controlplane

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	"github.com/fsnotify/fsnotify"

	"github.com/aponysus/callscope/policy"
)

// LoadFunc reads and parses the configuration file at path.
type LoadFunc func(ctx context.Context, path string) (Snapshot, error)

// FileProvider is a Provider backed by a configuration file, with hot reload.
type FileProvider struct {
	path   string
	load   LoadFunc
	logger *slog.Logger

	mu      sync.Mutex
	watcher *fsnotify.Watcher
}

// FileOption configures a FileProvider.
type FileOption func(*FileProvider)

// WithFileLogger sets the logger used for reload events.
func WithFileLogger(l *slog.Logger) FileOption {
	return func(p *FileProvider) {
		if l != nil {
			p.logger = l
		}
	}
}

// NewFileProvider creates a provider reading path with load.
func NewFileProvider(path string, load LoadFunc, opts ...FileOption) (*FileProvider, error) {
	if path == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	if load == nil {
		return nil, fmt.Errorf("config loader cannot be nil")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("resolve %s: %w", path, err)
	}

	p := &FileProvider{
		path:   filepath.Clean(abs),
		load:   load,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(p)
		}
	}
	return p, nil
}

// Path returns the absolute path of the watched file.
func (p *FileProvider) Path() string { return p.path }

// Snapshot loads the file once.
func (p *FileProvider) Snapshot(ctx context.Context) (Snapshot, error) {
	s, err := p.load(ctx, p.path)
	if err != nil {
		return Snapshot{}, fmt.Errorf("load config from %s: %w", p.path, err)
	}
	s.Source = policy.PolicySourceFile
	return s, nil
}

// Watch reloads the file into store whenever it is written or replaced.
// A file that fails to load or validate is logged and the store keeps its
// last good snapshot. Watching stops when ctx is done or Close is called.
func (p *FileProvider) Watch(ctx context.Context, store *Store) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}

	// Watch the directory so editors that replace the file by rename are seen.
	if err := watcher.Add(filepath.Dir(p.path)); err != nil {
		watcher.Close()
		return fmt.Errorf("watch %s: %w", p.path, err)
	}

	p.mu.Lock()
	p.watcher = watcher
	p.mu.Unlock()

	p.logger.Info("watching config file for changes", slog.String("path", p.path))

	go func() {
		defer watcher.Close()

		for {
			select {
			case <-ctx.Done():
				p.logger.Debug("config watch stopped")
				return

			case event, ok := <-watcher.Events:
				if !ok {
					return
				}
				if filepath.Clean(event.Name) != p.path {
					continue
				}
				if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
					continue
				}

				p.logger.Info("config file changed, reloading", slog.String("path", event.Name))
				if err := store.Refresh(ctx, p); err != nil {
					p.logger.Error("failed to reload config, keeping last good snapshot",
						slog.String("error", err.Error()),
						slog.String("path", p.path))
					continue
				}
				p.logger.Info("config reloaded", slog.Uint64("version", store.Load().Version))

			case err, ok := <-watcher.Errors:
				if !ok {
					return
				}
				p.logger.Error("config watch error", slog.String("error", err.Error()))
			}
		}
	}()

	return nil
}

// Close stops watching the config file.
func (p *FileProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.watcher != nil {
		err := p.watcher.Close()
		p.watcher = nil
		return err
	}
	return nil
}
