package loader

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/Logarithm-Labs/curator-agent/internal/logger"

	"github.com/fsnotify/fsnotify"
	"github.com/spf13/viper"
)

// VaultDefinition describes one vault in the investable universe file.
type VaultDefinition struct {
	Name      string  `mapstructure:"-"`
	Label     string  `mapstructure:"label"`
	MaxWeight float64 `mapstructure:"max_weight"`
	Enabled   bool    `mapstructure:"enabled"`
}

// FileConfig is the full universe file shape.
type FileConfig struct {
	Vaults map[string]VaultDefinition `mapstructure:"vaults"`
}

// UniverseSnapshot is the read-only view handed to subscribers.
type UniverseSnapshot struct {
	Version  int64
	LoadedAt time.Time
	Vaults   map[string]VaultDefinition
}

// VaultIDs returns the enabled vault names in sorted order.
func (s UniverseSnapshot) VaultIDs() []string {
	ids := make([]string, 0, len(s.Vaults))
	for id, def := range s.Vaults {
		if def.Enabled {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}

// MaxWeights returns the per-vault cap overrides for the engine config.
func (s UniverseSnapshot) MaxWeights() map[string]float64 {
	out := make(map[string]float64, len(s.Vaults))
	for id, def := range s.Vaults {
		if def.Enabled && def.MaxWeight > 0 {
			out[id] = def.MaxWeight
		}
	}
	return out
}

// ChangeListener is invoked when the universe file changes on disk.
type ChangeListener func(UniverseSnapshot)

// UniverseLoader loads the vault universe from a YAML file and watches it
// for hot updates.
type UniverseLoader struct {
	path string
	v    *viper.Viper

	mu        sync.RWMutex
	snapshot  UniverseSnapshot
	listeners []ChangeListener
}

// NewUniverseLoader reads the file and begins watching FS events.
func NewUniverseLoader(path string) (*UniverseLoader, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("universe loader requires path")
	}
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read universe config failed: %w", err)
	}
	l := &UniverseLoader{path: path, v: v}
	if err := l.reload(); err != nil {
		return nil, err
	}
	v.OnConfigChange(func(evt fsnotify.Event) {
		if err := l.reload(); err != nil {
			logger.Errorf("universe reload failed (%s): %v", evt.Name, err)
			return
		}
		l.notify()
	})
	v.WatchConfig()
	return l, nil
}

// Snapshot returns the current universe (deep copy).
func (l *UniverseLoader) Snapshot() UniverseSnapshot {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return cloneSnapshot(l.snapshot)
}

// Subscribe registers a listener and immediately delivers the current
// snapshot to it.
func (l *UniverseLoader) Subscribe(fn ChangeListener) {
	if fn == nil {
		return
	}
	l.mu.Lock()
	l.listeners = append(l.listeners, fn)
	snap := cloneSnapshot(l.snapshot)
	l.mu.Unlock()
	go func() {
		defer func() {
			if r := recover(); r != nil {
				logger.Errorf("universe listener panic: %v", r)
			}
		}()
		fn(snap)
	}()
}

func (l *UniverseLoader) notify() {
	l.mu.RLock()
	snap := cloneSnapshot(l.snapshot)
	listeners := append([]ChangeListener(nil), l.listeners...)
	l.mu.RUnlock()
	for _, fn := range listeners {
		if fn == nil {
			continue
		}
		go func(cb ChangeListener) {
			defer func() {
				if r := recover(); r != nil {
					logger.Errorf("universe listener panic: %v", r)
				}
			}()
			cb(snap)
		}(fn)
	}
}

func (l *UniverseLoader) reload() error {
	if err := l.v.ReadInConfig(); err != nil {
		return err
	}
	var file FileConfig
	if err := l.v.Unmarshal(&file); err != nil {
		return fmt.Errorf("parse universe config failed: %w", err)
	}
	if len(file.Vaults) == 0 {
		return fmt.Errorf("universe file %s defines no vaults", l.path)
	}
	vaults := make(map[string]VaultDefinition, len(file.Vaults))
	for name, def := range file.Vaults {
		name = strings.TrimSpace(name)
		if name == "" {
			continue
		}
		def.Name = name
		if def.MaxWeight < 0 || def.MaxWeight > 1 {
			return fmt.Errorf("vault %s: max_weight must be in [0, 1]", name)
		}
		vaults[name] = def
	}
	l.mu.Lock()
	l.snapshot = UniverseSnapshot{
		Version:  l.snapshot.Version + 1,
		LoadedAt: time.Now(),
		Vaults:   vaults,
	}
	l.mu.Unlock()
	return nil
}

func cloneSnapshot(snap UniverseSnapshot) UniverseSnapshot {
	out := UniverseSnapshot{
		Version:  snap.Version,
		LoadedAt: snap.LoadedAt,
		Vaults:   make(map[string]VaultDefinition, len(snap.Vaults)),
	}
	for k, v := range snap.Vaults {
		out.Vaults[k] = v
	}
	return out
}
