package router

import (
	"errors"
	"fmt"
)

var (
	// ErrDuplicateAlias is returned when two configs share an alias, ignoring case
	ErrDuplicateAlias = errors.New("duplicate provider alias")

	// ErrEmptyAlias is returned for a config without an alias
	ErrEmptyAlias = errors.New("provider alias cannot be empty")
)

// Table is the immutable alias -> ProviderConfig map. Build it once with
// NewTable and share it; there is no way to modify it afterwards.
type Table struct {
	entries map[string]ProviderConfig
}

// NewTable builds a table, rejecting empty and duplicate aliases.
func NewTable(configs ...ProviderConfig) (*Table, error) {
	entries := make(map[string]ProviderConfig, len(configs))
	for _, cfg := range configs {
		if cfg.Alias == "" {
			return nil, fmt.Errorf("%w (model %q)", ErrEmptyAlias, cfg.Model)
		}
		key := normalize(cfg.Alias)
		if existing, exists := entries[key]; exists {
			return nil, fmt.Errorf("%w: %q conflicts with %q", ErrDuplicateAlias, cfg.Alias, existing.Alias)
		}
		entries[key] = cfg
	}
	return &Table{entries: entries}, nil
}

// Lookup returns the config for alias, matched case-insensitively.
func (t *Table) Lookup(alias string) (ProviderConfig, error) {
	cfg, ok := t.entries[normalize(alias)]
	if !ok {
		return ProviderConfig{}, UnknownProviderError(alias)
	}
	return cfg, nil
}

// Len returns the number of configured providers.
func (t *Table) Len() int {
	return len(t.entries)
}

// Aliases returns the configured aliases, sorted, in their configured case.
func (t *Table) Aliases() []string {
	keys := sortedKeys(t.entries)
	aliases := make([]string, len(keys))
	for i, k := range keys {
		aliases[i] = t.entries[k].Alias
	}
	return aliases
}

// Configs returns a copy of every config, sorted by alias.
func (t *Table) Configs() []ProviderConfig {
	keys := sortedKeys(t.entries)
	configs := make([]ProviderConfig, len(keys))
	for i, k := range keys {
		configs[i] = t.entries[k]
	}
	return configs
}
