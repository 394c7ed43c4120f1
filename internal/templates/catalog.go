package templates

import (
	"embed"
	"fmt"
	"io/fs"
	"sort"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/jimiryquai/power-platform-orchestration-agent-sub000/internal/prd"
)

//go:embed templates/*.yml
var files embed.FS

// Template is a reusable project blueprint. Its PRD is copied into each
// operation started from it, never mutated in place.
type Template struct {
	Name        string       `json:"name" yaml:"name"`
	DisplayName string       `json:"display_name" yaml:"display_name"`
	Description string       `json:"description" yaml:"description"`
	Category    string       `json:"category" yaml:"category"`
	Tags        []string     `json:"tags,omitempty" yaml:"tags,omitempty"`
	PRD         prd.Document `json:"prd" yaml:"prd"`
}

// Catalog holds the embedded templates, loaded once on first use.
type Catalog struct {
	once   sync.Once
	byName map[string]Template
	err    error
}

func (c *Catalog) load() {
	c.byName = map[string]Template{}
	entries, err := fs.Glob(files, "templates/*.yml")
	if err != nil {
		c.err = err
		return
	}
	for _, name := range entries {
		raw, err := files.ReadFile(name)
		if err != nil {
			c.err = err
			return
		}
		var t Template
		if err := yaml.Unmarshal(raw, &t); err != nil {
			c.err = fmt.Errorf("parse template %s: %w", name, err)
			return
		}
		if t.Name == "" {
			c.err = fmt.Errorf("template %s has no name", name)
			return
		}
		c.byName[t.Name] = t
	}
}

// Get returns the named template.
func (c *Catalog) Get(name string) (Template, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return Template{}, c.err
	}
	t, ok := c.byName[name]
	if !ok {
		return Template{}, fmt.Errorf("unknown template %q", name)
	}
	return t, nil
}

// List returns all templates sorted by name, optionally filtered by
// category (case-insensitive).
func (c *Catalog) List(category string) ([]Template, error) {
	c.once.Do(c.load)
	if c.err != nil {
		return nil, c.err
	}
	var out []Template
	for _, t := range c.byName {
		if category != "" && !strings.EqualFold(t.Category, category) {
			continue
		}
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}
