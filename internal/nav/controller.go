// Package nav maps UI actions onto view renders and tracks which top-level
// navigation button is marked active.
package nav

import (
	"errors"
	"fmt"
	"sync"

	"github.com/ziadkadry99/catechiseme/internal/view"
)

// Button identifies a top-level navigation control.
type Button string

const (
	ButtonWelcome   Button = "welcome-nav-btn"
	ButtonIndex     Button = "toc-nav-btn"
	ButtonResources Button = "resources-nav-btn"
)

// Buttons lists the navigation controls in display order.
var Buttons = []Button{ButtonWelcome, ButtonIndex, ButtonResources}

var buttonViews = map[Button]view.ID{
	ButtonWelcome:   view.Welcome,
	ButtonIndex:     view.Index,
	ButtonResources: view.Resources,
}

// ParseButton validates a button id.
func ParseButton(s string) (Button, error) {
	b := Button(s)
	if _, ok := buttonViews[b]; !ok {
		return "", fmt.Errorf("%w: %q", ErrUnknownButton, s)
	}
	return b, nil
}

var (
	ErrUnknownButton = errors.New("unknown navigation button")
	ErrUnknownAction = errors.New("unknown action")
)

// EffectKind is a side effect the page must carry out outside the display region.
type EffectKind string

const (
	// EffectOpen opens the URL in a new browsing context.
	EffectOpen EffectKind = "open"
	// EffectOpenAndPrint opens the URL in a new browsing context and prints it.
	EffectOpenAndPrint EffectKind = "open-and-print"
)

// Effect is one external side effect produced by dispatching an action.
type Effect struct {
	Kind EffectKind `json:"kind"`
	URL  string     `json:"url"`
}

// State is the view currently shown.
type State struct {
	View    view.ID `json:"view"`
	EntryID int     `json:"entry_id,omitempty"`
}

// Controller owns one display region and its navigation state.
type Controller struct {
	mu       sync.Mutex
	renderer *view.Renderer
	display  view.Display
	state    State
	active   Button
	actions  map[string]view.Intent
}

// NewController returns a controller that writes into display. Call Start
// to show the initial view.
func NewController(r *view.Renderer, display view.Display) *Controller {
	return &Controller{renderer: r, display: display}
}

// target is the Display handed to the renderer. It takes the dispatch table
// and state from the fragment actually displayed, then forwards it. It runs
// with c.mu held.
type target struct{ c *Controller }

func (t target) Replace(f view.Fragment) {
	t.c.actions = f.Actions
	t.c.state = State{View: f.View, EntryID: f.EntryID}
	t.c.display.Replace(f)
}

// Start shows the welcome view and marks its button active.
func (c *Controller) Start() error {
	return c.Press(ButtonWelcome)
}

// Press handles a top-level navigation button.
func (c *Controller) Press(b Button) error {
	v, ok := buttonViews[b]
	if !ok {
		return fmt.Errorf("%w: %q", ErrUnknownButton, b)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	c.active = b
	_, err := c.renderer.Render(target{c}, v, 0)
	return err
}

// Select shows the detail view for id. Detail is only reachable from the
// index, so the active button is left as it is. An unknown id is a no-op.
func (c *Controller) Select(id int) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderer.RenderDetail(target{c}, id)
}

// Back returns from a detail view to the index.
func (c *Controller) Back() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.renderer.RenderIndex(target{c})
}

// Dispatch runs the action bound under id by the last render. Actions that
// leave the page are returned as effects.
func (c *Controller) Dispatch(id string) ([]Effect, error) {
	c.mu.Lock()
	intent, ok := c.actions[id]
	c.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownAction, id)
	}

	switch intent.Kind {
	case view.IntentSelectEntry:
		_, err := c.Select(intent.EntryID)
		return nil, err
	case view.IntentBack:
		return nil, c.Back()
	case view.IntentDonate, view.IntentOpenLink:
		return []Effect{{Kind: EffectOpen, URL: intent.URL}}, nil
	case view.IntentOpenAndPrint:
		return []Effect{{Kind: EffectOpenAndPrint, URL: intent.URL}}, nil
	default:
		return nil, fmt.Errorf("%w: %q has kind %q", ErrUnknownAction, id, intent.Kind)
	}
}

// State returns the view currently displayed.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Active returns the navigation button currently marked active.
func (c *Controller) Active() Button {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.active
}
