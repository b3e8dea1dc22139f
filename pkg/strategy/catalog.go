package strategy

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"

	"gopkg.in/yaml.v3"
)

// Built-in strategy names.
const (
	Performance = "performance"
	Balanced    = "balanced"
	Economical  = "economical"
)

// FileExt is the extension of strategy files in the strategies directory.
const FileExt = ".jsonc"

// Entry describes one strategy known to the catalog.
type Entry struct {
	Name        string `yaml:"name" json:"name"`
	File        string `yaml:"file" json:"file"`
	Description string `yaml:"description,omitempty" json:"description,omitempty"`
	Economical  bool   `yaml:"economical,omitempty" json:"economical,omitempty"`
}

// CatalogFile is the YAML document that extends the built-in catalog.
type CatalogFile struct {
	Strategies []Entry `yaml:"strategies"`
}

// Catalog maps strategy names to their source files.
type Catalog struct {
	mu      sync.RWMutex
	entries map[string]Entry
}

// NewCatalog creates an empty catalog.
func NewCatalog() *Catalog {
	return &Catalog{entries: make(map[string]Entry)}
}

// DefaultCatalog returns the built-in strategies, each resolved to
// <dir>/<name>.jsonc.
func DefaultCatalog(dir string) *Catalog {
	c := NewCatalog()
	for _, e := range []Entry{
		{Name: Performance, Description: "Strongest models for every agent"},
		{Name: Balanced, Description: "Strong models for planning, cheaper models for bulk work"},
		{Name: Economical, Description: "Cheapest available models", Economical: true},
	} {
		e.File = filepath.Join(dir, e.Name+FileExt)
		c.entries[e.Name] = e
	}
	return c
}

// Register adds a strategy. Names must be unique.
func (c *Catalog) Register(e Entry) error {
	if e.Name == "" {
		return fmt.Errorf("strategy entry: missing name")
	}
	if e.File == "" {
		return fmt.Errorf("strategy %q: missing file", e.Name)
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[e.Name]; exists {
		return fmt.Errorf("strategy %q already registered", e.Name)
	}
	c.entries[e.Name] = e
	return nil
}

// Merge adds or replaces entries from a catalog file.
func (c *Catalog) Merge(entries []Entry) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, e := range entries {
		c.entries[e.Name] = e
	}
}

// Has reports whether name is a known strategy.
func (c *Catalog) Has(name string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.entries[name]
	return ok
}

// Get returns the entry for name.
func (c *Catalog) Get(name string) (Entry, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	e, ok := c.entries[name]
	return e, ok
}

// Path returns the source file for name.
func (c *Catalog) Path(name string) (string, bool) {
	e, ok := c.Get(name)
	return e.File, ok
}

// Describe returns the description of name, or "" when unknown.
func (c *Catalog) Describe(name string) string {
	e, _ := c.Get(name)
	return e.Description
}

// Names returns all strategy names in sorted order.
func (c *Catalog) Names() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	names := make([]string, 0, len(c.entries))
	for name := range c.entries {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Entries returns all entries sorted by name.
func (c *Catalog) Entries() []Entry {
	names := c.Names()
	out := make([]Entry, 0, len(names))
	for _, name := range names {
		e, _ := c.Get(name)
		out = append(out, e)
	}
	return out
}

// MostEconomical returns the economical strategy to fall back to under quota
// pressure, preferring preferred when it is known.
func (c *Catalog) MostEconomical(preferred string) (string, bool) {
	if preferred != "" && c.Has(preferred) {
		return preferred, true
	}
	for _, e := range c.Entries() {
		if e.Economical {
			return e.Name, true
		}
	}
	return "", false
}

// LoadCatalogFile reads a YAML catalog. Relative file paths are resolved
// against the catalog's directory.
func LoadCatalogFile(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read catalog file %s: %w", path, err)
	}

	var cf CatalogFile
	if err := yaml.Unmarshal(data, &cf); err != nil {
		return nil, fmt.Errorf("parse catalog file %s: %w", path, err)
	}
	if len(cf.Strategies) == 0 {
		return nil, fmt.Errorf("catalog file %s: no strategies defined", path)
	}

	base := filepath.Dir(path)
	seen := make(map[string]struct{}, len(cf.Strategies))
	for i, e := range cf.Strategies {
		if e.Name == "" {
			return nil, fmt.Errorf("catalog file %s: entry %d missing name", path, i)
		}
		if _, dup := seen[e.Name]; dup {
			return nil, fmt.Errorf("catalog file %s: duplicate strategy %q", path, e.Name)
		}
		seen[e.Name] = struct{}{}
		if e.File == "" {
			return nil, fmt.Errorf("catalog file %s: strategy %q missing file", path, e.Name)
		}
		if !filepath.IsAbs(e.File) {
			cf.Strategies[i].File = filepath.Join(base, e.File)
		}
	}
	return cf.Strategies, nil
}

// LoadCatalog builds the built-in catalog for dir and, when catalogPath is set,
// merges the entries it defines.
func LoadCatalog(dir, catalogPath string) (*Catalog, error) {
	c := DefaultCatalog(dir)
	if catalogPath == "" {
		return c, nil
	}
	entries, err := LoadCatalogFile(catalogPath)
	if err != nil {
		return nil, err
	}
	c.Merge(entries)
	return c, nil
}
