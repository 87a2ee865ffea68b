package data

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// TimingCategory maps a canonical timing category to the actor stat that
// drives its tempo, plus the baseline value at which tempo == 1.0.
type TimingCategory struct {
	Name     string
	Stat     string
	Baseline int
}

// TimingTable resolves tag aliases to canonical timing categories.
type TimingTable struct {
	categories map[string]*TimingCategory
	aliases    map[string]string // tag → category name
	fallback   string
}

// Category resolves a single tag to its category, following aliases. Returns
// nil when the tag maps to nothing.
func (t *TimingTable) Category(tag string) *TimingCategory {
	if name, ok := t.aliases[tag]; ok {
		return t.categories[name]
	}
	return t.categories[tag]
}

// Fallback returns the default category used when no tag matches.
func (t *TimingTable) Fallback() *TimingCategory {
	return t.categories[t.fallback]
}

// Count returns the number of loaded categories.
func (t *TimingTable) Count() int {
	return len(t.categories)
}

// NewTimingTable builds a table in memory. Used by tests; LoadTimingTable is
// the production path.
func NewTimingTable(categories []TimingCategory, aliases map[string]string, fallback string) *TimingTable {
	t := &TimingTable{
		categories: make(map[string]*TimingCategory, len(categories)),
		aliases:    aliases,
		fallback:   fallback,
	}
	if t.aliases == nil {
		t.aliases = map[string]string{}
	}
	for i := range categories {
		c := categories[i]
		t.categories[c.Name] = &c
	}
	return t
}

// --- YAML loading ---

type timingCategoryEntry struct {
	Name     string `yaml:"name"`
	Stat     string `yaml:"stat"`
	Baseline int    `yaml:"baseline"`
}

type timingAliasEntry struct {
	Tag      string `yaml:"tag"`
	Category string `yaml:"category"`
}

type timingListFile struct {
	Categories []timingCategoryEntry `yaml:"categories"`
	Aliases    []timingAliasEntry    `yaml:"aliases"`
	Fallback   string                `yaml:"fallback"`
}

// LoadTimingTable loads timing categories and tag aliases from YAML.
func LoadTimingTable(path string) (*TimingTable, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read timing: %w", err)
	}
	var f timingListFile
	if err := yaml.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("parse timing: %w", err)
	}
	cats := make([]TimingCategory, 0, len(f.Categories))
	for _, e := range f.Categories {
		if e.Baseline <= 0 {
			return nil, fmt.Errorf("timing category %q: baseline must be positive", e.Name)
		}
		cats = append(cats, TimingCategory{Name: e.Name, Stat: e.Stat, Baseline: e.Baseline})
	}
	aliases := make(map[string]string, len(f.Aliases))
	for _, a := range f.Aliases {
		aliases[a.Tag] = a.Category
	}
	fallback := f.Fallback
	if fallback == "" {
		fallback = "melee"
	}
	return NewTimingTable(cats, aliases, fallback), nil
}
