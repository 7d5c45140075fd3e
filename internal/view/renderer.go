// Package view renders catalog views into HTML fragments. Every render
// replaces the whole display region and ships a fresh dispatch table, so no
// binding outlives the view that created it.
package view

import (
	"bytes"
	_ "embed"
	"fmt"
	"html/template"
	"io"
	"strconv"

	"github.com/yuin/goldmark"
	"github.com/yuin/goldmark/extension"

	"github.com/ziadkadry99/catechiseme/internal/catalog"
)

//go:embed welcome.md
var welcomeMarkdown []byte

//go:embed notice.md
var noticeMarkdown []byte

// Action ids used in rendered markup.
const (
	ActionDonate = "donate"
	ActionBack   = "back"
)

// SelectAction is the action id of the index item for entry id.
func SelectAction(id int) string { return "select-" + strconv.Itoa(id) }

// LinkAction is the action id of the i-th scripture link on a detail view.
func LinkAction(i int) string { return "link-" + strconv.Itoa(i) }

// PrintAction is the action id of the i-th resource link.
func PrintAction(i int) string { return "print-" + strconv.Itoa(i) }

// Renderer produces view fragments from a catalog.
type Renderer struct {
	catalog     *catalog.Catalog
	md          goldmark.Markdown
	tmpl        *template.Template
	donationURL string
	title       string

	welcome template.HTML
	notice  template.HTML
}

// Option configures a Renderer.
type Option func(*Renderer)

// WithDonationURL sets the payment link behind the donate button.
func WithDonationURL(u string) Option {
	return func(r *Renderer) { r.donationURL = u }
}

// WithTitle sets the title used on the printable page.
func WithTitle(title string) Option {
	return func(r *Renderer) { r.title = title }
}

// NewRenderer parses the view templates and pre-renders the static welcome text.
func NewRenderer(c *catalog.Catalog, opts ...Option) (*Renderer, error) {
	r := &Renderer{
		catalog: c,
		md:      goldmark.New(goldmark.WithExtensions(extension.GFM)),
		title:   "CatechiseMe",
	}
	for _, opt := range opts {
		opt(r)
	}

	tmpl, err := template.New("views").Parse(viewTemplates)
	if err != nil {
		return nil, fmt.Errorf("parsing view templates: %w", err)
	}
	r.tmpl = tmpl

	if r.welcome, err = r.markdown(welcomeMarkdown); err != nil {
		return nil, fmt.Errorf("rendering welcome text: %w", err)
	}
	if r.notice, err = r.markdown(noticeMarkdown); err != nil {
		return nil, fmt.Errorf("rendering scripture notice: %w", err)
	}
	return r, nil
}

// Catalog returns the catalog the renderer reads from.
func (r *Renderer) Catalog() *catalog.Catalog { return r.catalog }

// markdown converts trusted catalog text. Raw HTML is escaped by goldmark.
func (r *Renderer) markdown(src []byte) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.md.Convert(src, &buf); err != nil {
		return "", err
	}
	return template.HTML(buf.String()), nil
}

func (r *Renderer) execute(name string, data any) (template.HTML, error) {
	var buf bytes.Buffer
	if err := r.tmpl.ExecuteTemplate(&buf, name, data); err != nil {
		return "", fmt.Errorf("executing %s template: %w", name, err)
	}
	return template.HTML(buf.String()), nil
}

type link struct {
	Label  string
	URL    string
	Action string
}

// WelcomeFragment builds the welcome view.
func (r *Renderer) WelcomeFragment() (Fragment, error) {
	html, err := r.execute("welcome", struct {
		Body, Notice template.HTML
		DonateAction string
	}{r.welcome, r.notice, ActionDonate})
	if err != nil {
		return Fragment{}, err
	}

	actions := map[string]Intent{}
	if r.donationURL != "" {
		actions[ActionDonate] = Intent{Kind: IntentDonate, URL: r.donationURL}
	}
	return Fragment{View: Welcome, HTML: html, Actions: actions}, nil
}

// IndexFragment builds the index view: one item per entry, in catalog order.
func (r *Renderer) IndexFragment() (Fragment, error) {
	type item struct {
		ID       int
		Question string
		Action   string
	}
	entries := r.catalog.Entries()
	items := make([]item, len(entries))
	actions := make(map[string]Intent, len(entries))
	for i, e := range entries {
		a := SelectAction(e.ID)
		items[i] = item{ID: e.ID, Question: e.Question, Action: a}
		actions[a] = Intent{Kind: IntentSelectEntry, EntryID: e.ID}
	}

	html, err := r.execute("index", struct{ Items []item }{items})
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{View: Index, HTML: html, Actions: actions}, nil
}

// DetailFragment builds the detail view for id. The boolean is false when
// no entry has that id.
func (r *Renderer) DetailFragment(id int) (Fragment, bool, error) {
	e, ok := r.catalog.Entry(id)
	if !ok {
		return Fragment{}, false, nil
	}

	explanation, err := r.markdown([]byte(e.Explanation))
	if err != nil {
		return Fragment{}, true, fmt.Errorf("rendering explanation for %d: %w", id, err)
	}

	actions := map[string]Intent{
		ActionBack: {Kind: IntentBack},
	}
	links := make([]link, len(e.OtherScriptures))
	for i, s := range e.OtherScriptures {
		a := LinkAction(i)
		links[i] = link{Label: s.Ref, URL: s.Link, Action: a}
		actions[a] = Intent{Kind: IntentOpenLink, URL: s.Link}
	}

	html, err := r.execute("detail", struct {
		Entry       catalog.Entry
		Links       []link
		Explanation template.HTML
		BackAction  string
	}{e, links, explanation, ActionBack})
	if err != nil {
		return Fragment{}, true, err
	}
	return Fragment{View: Detail, EntryID: id, HTML: html, Actions: actions}, true, nil
}

// ResourcesFragment builds the resources view, one section per category.
// Resource links open the target and print it.
func (r *Renderer) ResourcesFragment() (Fragment, error) {
	type group struct {
		Category string
		Links    []link
	}
	actions := map[string]Intent{}
	var groups []group
	n := 0
	for _, g := range r.catalog.GroupResources() {
		out := group{Category: g.Category}
		for _, res := range g.Resources {
			a := PrintAction(n)
			n++
			out.Links = append(out.Links, link{Label: res.Title, URL: res.URL, Action: a})
			actions[a] = Intent{Kind: IntentOpenAndPrint, URL: res.URL}
		}
		groups = append(groups, out)
	}

	html, err := r.execute("resources", struct{ Groups []group }{groups})
	if err != nil {
		return Fragment{}, err
	}
	return Fragment{View: Resources, HTML: html, Actions: actions}, nil
}

// RenderWelcome replaces the display with the welcome view.
func (r *Renderer) RenderWelcome(d Display) error {
	f, err := r.WelcomeFragment()
	if err != nil {
		return err
	}
	d.Replace(f)
	return nil
}

// RenderIndex replaces the display with the index view.
func (r *Renderer) RenderIndex(d Display) error {
	f, err := r.IndexFragment()
	if err != nil {
		return err
	}
	d.Replace(f)
	return nil
}

// RenderDetail replaces the display with the entry's detail view. An unknown
// id leaves the display untouched and reports false.
func (r *Renderer) RenderDetail(d Display, id int) (bool, error) {
	f, ok, err := r.DetailFragment(id)
	if !ok || err != nil {
		return ok, err
	}
	d.Replace(f)
	return true, nil
}

// RenderResources replaces the display with the resources view.
func (r *Renderer) RenderResources(d Display) error {
	f, err := r.ResourcesFragment()
	if err != nil {
		return err
	}
	d.Replace(f)
	return nil
}

// Render dispatches to the render operation for view. id is only used by Detail.
func (r *Renderer) Render(d Display, v ID, id int) (bool, error) {
	switch v {
	case Welcome:
		return true, r.RenderWelcome(d)
	case Index:
		return true, r.RenderIndex(d)
	case Detail:
		return r.RenderDetail(d, id)
	case Resources:
		return true, r.RenderResources(d)
	default:
		return false, fmt.Errorf("unknown view %q", v)
	}
}

// Printable writes a standalone page listing every entry, for printing.
func (r *Renderer) Printable(w io.Writer) error {
	type printed struct {
		Entry       catalog.Entry
		Explanation template.HTML
	}
	entries := r.catalog.Entries()
	out := make([]printed, len(entries))
	for i, e := range entries {
		explanation, err := r.markdown([]byte(e.Explanation))
		if err != nil {
			return fmt.Errorf("rendering explanation for %d: %w", e.ID, err)
		}
		out[i] = printed{Entry: e, Explanation: explanation}
	}
	return r.tmpl.ExecuteTemplate(w, "printable", struct {
		Title   string
		Entries []printed
	}{r.title, out})
}
