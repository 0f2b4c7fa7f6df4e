// Package fileregistry implements the extension allow-list as a YAML
// file that reloads when it changes on disk, so operators can roll out
// new extension ids without restarting the gateway.
//
// The document shape is:
//
//	extensions:
//	  - id: abcdefghijklmnop
//	    browser: chrome
package fileregistry

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/fsnotify/fsnotify"
	"github.com/joeshaw/envdecode"
	"gopkg.in/yaml.v3"

	"github.com/ethgate-dev/ethgate/origins"
)

// Config for the file-backed extension registry.
type Config struct {
	// Path of the YAML allow-list. ENV: EXTENSIONS_FILE
	Path string `env:"EXTENSIONS_FILE"`
}

type document struct {
	Extensions []struct {
		ID      string `yaml:"id"`
		Browser string `yaml:"browser"`
		Note    string `yaml:"note"`
	} `yaml:"extensions"`
}

// Registry is an origins.Registry backed by a YAML allow-list.
type Registry struct {
	path string
	log  *slog.Logger

	mu  sync.RWMutex
	ids map[string]struct{}

	watcher *fsnotify.Watcher
}

var _ origins.Registry = (*Registry)(nil)

// Option configures a Registry.
type Option func(*Registry)

// WithLogger sets a custom logger for the Registry.
func WithLogger(l *slog.Logger) Option {
	return func(r *Registry) {
		if l != nil {
			r.log = l
		}
	}
}

// New loads the allow-list and starts watching it for changes. The
// initial load must succeed; later reload failures keep the previous
// list and are logged. Hot reload is best-effort: if no watcher can be
// established the registry still serves the loaded list.
func New(cfg Config, opts ...Option) (*Registry, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("extensions file path is required")
	}

	r := &Registry{
		path: filepath.Clean(cfg.Path),
		log:  slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(r)
		}
	}

	if err := r.load(); err != nil {
		return nil, err
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		r.log.Debug("fsnotify unavailable", slog.String("err", err.Error()))
		return r, nil
	}
	// Watch the directory rather than the file itself: editors and
	// config rollouts typically replace the file, which would silently
	// detach a file-level watch.
	if err := w.Add(filepath.Dir(r.path)); err != nil {
		r.log.Debug("fsnotify add failed", slog.String("err", err.Error()))
		_ = w.Close()
		return r, nil
	}
	r.watcher = w
	go r.watch()

	return r, nil
}

// NewFromEnv builds a Registry using envdecode to populate Config.
func NewFromEnv(opts ...Option) (*Registry, error) {
	var cfg Config
	// Use envdecode; defaults are provided via struct tags.
	_ = envdecode.Decode(&cfg)
	return New(cfg, opts...)
}

// Close stops watching the allow-list file.
func (r *Registry) Close() error {
	if r.watcher == nil {
		return nil
	}
	return r.watcher.Close()
}

func (r *Registry) ResolveKnownExtension(_ context.Context, ext origins.Extension) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.ids[strings.ToLower(ext.ID)]
	return ok, nil
}

func (r *Registry) load() error {
	data, err := os.ReadFile(r.path)
	if err != nil {
		return fmt.Errorf("read extensions file: %w", err)
	}

	var doc document
	if err := yaml.Unmarshal(data, &doc); err != nil {
		return fmt.Errorf("parse extensions file: %w", err)
	}

	ids := make(map[string]struct{}, len(doc.Extensions))
	for _, e := range doc.Extensions {
		if e.ID == "" {
			continue
		}
		ids[strings.ToLower(e.ID)] = struct{}{}
	}

	r.mu.Lock()
	r.ids = ids
	r.mu.Unlock()

	r.log.Debug("extension allow-list loaded", slog.Int("count", len(ids)), slog.String("path", r.path))
	return nil
}

func (r *Registry) watch() {
	for {
		select {
		case ev, ok := <-r.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != r.path {
				continue
			}
			if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename|fsnotify.Chmod) == 0 {
				continue
			}
			if err := r.load(); err != nil {
				r.log.Warn("extension allow-list reload failed", slog.String("err", err.Error()))
			}
		case err, ok := <-r.watcher.Errors:
			if !ok {
				return
			}
			r.log.Debug("fsnotify error", slog.String("err", err.Error()))
		}
	}
}
