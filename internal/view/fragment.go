package view

import (
	"html/template"
	"sync"
)

// ID names one of the views the renderer can produce.
type ID string

const (
	Welcome   ID = "welcome"
	Index     ID = "index"
	Detail    ID = "detail"
	Resources ID = "resources"
)

// IntentKind is what a bound UI action asks the navigation layer to do.
type IntentKind string

const (
	IntentSelectEntry  IntentKind = "select-entry"
	IntentBack         IntentKind = "back"
	IntentDonate       IntentKind = "donate"
	IntentOpenLink     IntentKind = "open-link"
	IntentOpenAndPrint IntentKind = "open-and-print"
)

// Intent is the target of one entry in a fragment's dispatch table.
type Intent struct {
	Kind    IntentKind `json:"kind"`
	EntryID int        `json:"entry_id,omitempty"`
	URL     string     `json:"url,omitempty"`
}

// Fragment is a fully rendered view. Actions maps the data-action attribute
// of every interactive element in HTML to its intent.
type Fragment struct {
	View    ID                `json:"view"`
	EntryID int               `json:"entry_id,omitempty"`
	HTML    template.HTML     `json:"html"`
	Actions map[string]Intent `json:"actions"`
}

// Display is the single region a renderer writes into. Replace swaps the
// whole region for the fragment.
type Display interface {
	Replace(Fragment)
}

// Region is an in-memory Display that keeps the last fragment it was given.
type Region struct {
	mu       sync.RWMutex
	current  Fragment
	set      bool
	replaced int
}

// Replace implements Display.
func (r *Region) Replace(f Fragment) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.current = f
	r.set = true
	r.replaced++
}

// Current returns the displayed fragment, if any.
func (r *Region) Current() (Fragment, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.current, r.set
}

// Replacements counts how many times the region has been replaced.
func (r *Region) Replacements() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.replaced
}
