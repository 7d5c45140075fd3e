package nav

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ziadkadry99/catechiseme/internal/view"
)

// Page is one page context: a display region and the controller driving it.
type Page struct {
	ID         string
	Region     *view.Region
	Controller *Controller
	lastSeen   time.Time
}

// Sessions keeps one Page per page load.
type Sessions struct {
	mu       sync.Mutex
	renderer *view.Renderer
	pages    map[string]*Page
	now      func() time.Time
}

// NewSessions returns an empty session set rendering with r.
func NewSessions(r *view.Renderer) *Sessions {
	return &Sessions{
		renderer: r,
		pages:    make(map[string]*Page),
		now:      time.Now,
	}
}

// Start creates a page context on the welcome view. Every page load gets its
// own, so reloads and separate tabs never share a dispatch table.
func (s *Sessions) Start() (*Page, error) {
	region := &view.Region{}
	p := &Page{
		ID:         uuid.NewString(),
		Region:     region,
		Controller: NewController(s.renderer, region),
	}
	if err := p.Controller.Start(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	p.lastSeen = s.now()
	s.pages[p.ID] = p
	return p, nil
}

// Lookup returns an existing page.
func (s *Sessions) Lookup(id string) (*Page, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.pages[id]
	if ok {
		p.lastSeen = s.now()
	}
	return p, ok
}

// Len returns the number of live pages.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pages)
}

// Prune drops pages not seen for maxIdle and returns how many were removed.
func (s *Sessions) Prune(maxIdle time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	cutoff := s.now().Add(-maxIdle)
	removed := 0
	for id, p := range s.pages {
		if p.lastSeen.Before(cutoff) {
			delete(s.pages, id)
			removed++
		}
	}
	return removed
}
