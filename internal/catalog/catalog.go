// Package catalog holds the immutable set of catechism entries and resource
// links the viewer displays. A catalog is built once and never mutated.
package catalog

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"io"
	"os"

	"gopkg.in/yaml.v3"
)

//go:embed catechism.yml
var defaultDocument []byte

var (
	// ErrInvalidID is returned when an entry id is not a positive integer.
	ErrInvalidID = errors.New("entry id must be positive")
	// ErrDuplicateID is returned when two entries share an id.
	ErrDuplicateID = errors.New("duplicate entry id")
)

// Catalog is a read-only collection of entries and resources.
type Catalog struct {
	entries   []Entry
	byID      map[int]int
	resources []Resource
}

// New builds a catalog from entries and resources, keeping their order.
func New(entries []Entry, resources []Resource) (*Catalog, error) {
	c := &Catalog{
		entries:   make([]Entry, len(entries)),
		byID:      make(map[int]int, len(entries)),
		resources: make([]Resource, len(resources)),
	}
	for i, e := range entries {
		c.entries[i] = e.clone()
	}
	copy(c.resources, resources)

	for i, e := range c.entries {
		if e.ID <= 0 {
			return nil, fmt.Errorf("entry %d: %w (got %d)", i, ErrInvalidID, e.ID)
		}
		if _, dup := c.byID[e.ID]; dup {
			return nil, fmt.Errorf("entry %d: %w %d", i, ErrDuplicateID, e.ID)
		}
		if e.Question == "" || e.Answer == "" {
			return nil, fmt.Errorf("entry %d: question and answer are required", e.ID)
		}
		c.byID[e.ID] = i
	}

	for i, r := range c.resources {
		if r.Title == "" || r.URL == "" {
			return nil, fmt.Errorf("resource %d: title and url are required", i)
		}
	}

	return c, nil
}

// Load decodes a YAML catalog document.
func Load(r io.Reader) (*Catalog, error) {
	var doc document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decoding catalog: %w", err)
	}
	return New(doc.Entries, doc.Resources)
}

// LoadFile reads a YAML catalog from disk.
func LoadFile(path string) (*Catalog, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("opening catalog %s: %w", path, err)
	}
	defer f.Close()

	c, err := Load(f)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Default returns the built-in catalog.
func Default() (*Catalog, error) {
	return Load(bytes.NewReader(defaultDocument))
}

// Entries returns copies of all entries in catalog order.
func (c *Catalog) Entries() []Entry {
	out := make([]Entry, len(c.entries))
	for i, e := range c.entries {
		out[i] = e.clone()
	}
	return out
}

// Len returns the number of entries.
func (c *Catalog) Len() int { return len(c.entries) }

// Entry looks up an entry by id and returns a copy of it.
func (c *Catalog) Entry(id int) (Entry, bool) {
	i, ok := c.byID[id]
	if !ok {
		return Entry{}, false
	}
	return c.entries[i].clone(), true
}

// Resources returns all resources in definition order.
func (c *Catalog) Resources() []Resource {
	out := make([]Resource, len(c.resources))
	copy(out, c.resources)
	return out
}

// GroupResources groups resources by category. Categories appear in the
// order they are first seen; resources keep their definition order.
func (c *Catalog) GroupResources() []ResourceGroup {
	var groups []ResourceGroup
	index := make(map[string]int)
	for _, r := range c.resources {
		i, ok := index[r.Category]
		if !ok {
			i = len(groups)
			index[r.Category] = i
			groups = append(groups, ResourceGroup{Category: r.Category})
		}
		groups[i].Resources = append(groups[i].Resources, r)
	}
	return groups
}
