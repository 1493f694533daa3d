// Package config loads and validates the curator's YAML configuration.
package config

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/mitchellh/mapstructure"
	"github.com/spf13/viper"
)

// Load reads a config file, resolves its include chain depth-first, applies
// defaults for fields left unset, and validates eagerly so a bad file never
// reaches a run. Included files merge first, so the including file wins on
// conflicts.
func Load(path string) (*Config, error) {
	if strings.TrimSpace(path) == "" {
		return nil, fmt.Errorf("config path cannot be empty")
	}
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	resolver := &includeResolver{
		visited: make(map[string]bool),
		pending: make(map[string]bool),
	}
	files, err := resolver.resolve(abs)
	if err != nil {
		return nil, err
	}

	v := viper.New()
	for _, file := range files {
		v.SetConfigFile(file)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config %s: %w", file, err)
		}
	}

	var cfg Config
	hook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, hook); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	// Fields present in the files must not be overwritten by defaulting,
	// even when explicitly set to zero.
	set := make(keySet)
	for _, key := range v.AllKeys() {
		set.mark(key)
	}
	cfg.applyDefaults(set)

	if err := validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// includeResolver walks the include graph depth-first and returns the files
// in merge order, each at most once.
type includeResolver struct {
	visited map[string]bool
	pending map[string]bool
}

func (r *includeResolver) resolve(path string) ([]string, error) {
	path = filepath.Clean(path)
	if r.pending[path] {
		return nil, fmt.Errorf("config include cycle detected at %s", path)
	}
	if r.visited[path] {
		return nil, nil
	}
	r.pending[path] = true
	defer delete(r.pending, path)

	includes, err := readIncludeList(path)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(path)
	var ordered []string
	for _, inc := range includes {
		inc = strings.TrimSpace(inc)
		if inc == "" {
			continue
		}
		if !filepath.IsAbs(inc) {
			inc = filepath.Join(dir, inc)
		}
		sub, err := r.resolve(inc)
		if err != nil {
			return nil, err
		}
		ordered = append(ordered, sub...)
	}
	r.visited[path] = true
	return append(ordered, path), nil
}

func readIncludeList(path string) ([]string, error) {
	v := viper.New()
	v.SetConfigFile(path)
	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}
	if !v.IsSet("include") {
		return nil, nil
	}
	return v.GetStringSlice("include"), nil
}
