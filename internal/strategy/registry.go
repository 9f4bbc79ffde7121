// Package strategy holds the file-backed strategy catalog. Strategies are
// operator-managed configuration rather than user data, so they live in a
// YAML registry that hot-reloads on change instead of the main store.
package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"tradefan/internal/logger"
	symbolpkg "tradefan/internal/pkg/symbol"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"
)

// Strategy describes one signal-emitting strategy and the instrument
// defaults applied when a webhook payload omits them.
type Strategy struct {
	ID      string `mapstructure:"id" yaml:"id"`
	Name    string `mapstructure:"name" yaml:"name"`
	Segment string `mapstructure:"segment" yaml:"segment"`
	Symbol  string `mapstructure:"symbol" yaml:"symbol"`
	Enabled bool   `mapstructure:"enabled" yaml:"enabled"`
}

type fileConfig struct {
	Strategies map[string]Strategy `yaml:"strategies"`
}

// Snapshot is an immutable view of the catalog.
type Snapshot struct {
	Version    int64
	LoadedAt   time.Time
	Strategies map[string]Strategy
}

// ChangeListener fires after every successful reload.
type ChangeListener func(Snapshot)

// Registry loads the strategy catalog and watches it for updates.
type Registry struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  Snapshot
	listeners []ChangeListener
}

// NewRegistry reads the catalog file and starts watching it.
func NewRegistry(path string) (*Registry, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("strategy registry requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read strategy registry failed: %w", err)
	}
	r := &Registry{path: path, v: v}
	if err := r.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := r.reload(); err != nil {
			logger.Errorf("strategy registry reload failed: %v", err)
			return
		}
		r.notifyListeners()
	})
	v.WatchConfig()
	return r, nil
}

// Strategy returns the enabled strategy with the given id.
func (r *Registry) Strategy(id string) (Strategy, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.snapshot.Strategies[strings.TrimSpace(id)]
	if !ok || !s.Enabled {
		return Strategy{}, false
	}
	return s, true
}

// Snapshot returns the current catalog view.
func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneSnapshot(r.snapshot)
}

// OnChange registers a reload listener.
func (r *Registry) OnChange(fn ChangeListener) {
	if fn == nil {
		return
	}
	r.mu.Lock()
	r.listeners = append(r.listeners, fn)
	r.mu.Unlock()
}

func (r *Registry) reload() error {
	cfg, err := readRegistryFile(r.path)
	if err != nil {
		return err
	}
	strategies := make(map[string]Strategy, len(cfg.Strategies))
	for name, s := range cfg.Strategies {
		norm, err := normalizeStrategy(name, s)
		if err != nil {
			return err
		}
		strategies[norm.ID] = norm
	}
	r.mu.Lock()
	r.snapshot = Snapshot{
		Version:    r.snapshot.Version + 1,
		LoadedAt:   time.Now(),
		Strategies: strategies,
	}
	r.mu.Unlock()
	logger.Infof("strategy registry loaded %d strategies from %s", len(strategies), filepath.Base(r.path))
	return nil
}

func (r *Registry) notifyListeners() {
	r.mu.RLock()
	snap := cloneSnapshot(r.snapshot)
	listeners := append([]ChangeListener(nil), r.listeners...)
	r.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer safeRecover("strategy registry listener")
			cb(snap)
		}(fn)
	}
}

func readRegistryFile(path string) (fileConfig, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return fileConfig{}, err
	}
	var cfg fileConfig
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return fileConfig{}, fmt.Errorf("parse strategy registry failed: %w", err)
	}
	return cfg, nil
}

func normalizeStrategy(name string, s Strategy) (Strategy, error) {
	s.ID = strings.TrimSpace(s.ID)
	if s.ID == "" {
		s.ID = strings.TrimSpace(name)
	}
	if s.ID == "" {
		return Strategy{}, fmt.Errorf("strategy entry %q missing id", name)
	}
	s.Name = strings.TrimSpace(s.Name)
	s.Segment = strings.ToUpper(strings.TrimSpace(s.Segment))
	if s.Segment == "" {
		return Strategy{}, fmt.Errorf("strategy %s missing segment", s.ID)
	}
	s.Symbol = symbolpkg.Canonical(s.Symbol)
	if s.Symbol == "" {
		return Strategy{}, fmt.Errorf("strategy %s missing symbol", s.ID)
	}
	return s, nil
}

func cloneSnapshot(src Snapshot) Snapshot {
	dst := Snapshot{
		Version:    src.Version,
		LoadedAt:   src.LoadedAt,
		Strategies: make(map[string]Strategy, len(src.Strategies)),
	}
	for id, s := range src.Strategies {
		dst.Strategies[id] = s
	}
	return dst
}

func safeRecover(tag string) {
	if r := recover(); r != nil {
		logger.Errorf("%s panic: %v", tag, r)
	}
}
