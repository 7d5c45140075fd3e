// Package site exports a static snapshot of every view.
package site

import (
	"encoding/json"
	"fmt"
	"html/template"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/ziadkadry99/catechiseme/internal/nav"
	"github.com/ziadkadry99/catechiseme/internal/progress"
	"github.com/ziadkadry99/catechiseme/internal/view"
)

// Exporter writes every view, the printable page, the catalog and the static
// assets into OutputDir.
type Exporter struct {
	Renderer  *view.Renderer
	Assets    fs.FS
	OutputDir string
	Title     string
	Reporter  progress.Reporter
}

// NewExporter creates an Exporter with a terminal or CI reporter.
func NewExporter(r *view.Renderer, assets fs.FS, outputDir string) *Exporter {
	return &Exporter{
		Renderer:  r,
		Assets:    assets,
		OutputDir: outputDir,
		Title:     "CatechiseMe",
		Reporter:  progress.NewReporter("Exporting"),
	}
}

// Result counts what was written.
type Result struct {
	Pages  int
	Assets int
}

type navLink struct {
	ID     nav.Button
	Label  string
	Href   string
	Active bool
}

type route struct {
	Href  string `json:"href,omitempty"`
	URL   string `json:"url,omitempty"`
	Print bool   `json:"print,omitempty"`
}

type pageData struct {
	Title    string
	Base     string
	Nav      []navLink
	Fragment template.HTML
	Routes   map[string]route
}

var buttonPages = []struct {
	button nav.Button
	label  string
	file   string
}{
	{nav.ButtonWelcome, "Welcome", "index.html"},
	{nav.ButtonIndex, "Index", "toc.html"},
	{nav.ButtonResources, "Resources", "resources.html"},
}

func detailFile(id int) string { return "q/" + strconv.Itoa(id) + ".html" }

// Export builds the snapshot.
func (e *Exporter) Export() (Result, error) {
	var res Result
	tmpl, err := template.New("page").Parse(pageTemplate)
	if err != nil {
		return res, fmt.Errorf("parsing page template: %w", err)
	}

	var assets []string
	if e.Assets != nil {
		err := fs.WalkDir(e.Assets, ".", func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			// The live shell is replaced by the exported welcome page.
			if d.Type().IsRegular() && p != "index.html" {
				assets = append(assets, p)
			}
			return nil
		})
		if err != nil {
			return res, fmt.Errorf("walking assets: %w", err)
		}
	}

	entries := e.Renderer.Catalog().Entries()
	total := len(buttonPages) + len(entries) + 2 + len(assets)
	rep := e.Reporter
	if rep == nil {
		rep = progress.Discard{}
	}
	rep.Start(total)
	defer rep.Finish()
	step := 0
	advance := func(msg string) {
		step++
		rep.Update(step, msg)
	}

	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return res, err
	}

	// Views are produced by a navigation controller so every page shows
	// exactly what the live viewer would.
	region := &view.Region{}
	ctl := nav.NewController(e.Renderer, region)

	for _, bp := range buttonPages {
		if err := ctl.Press(bp.button); err != nil {
			return res, fmt.Errorf("rendering %s: %w", bp.file, err)
		}
		if err := e.writeView(tmpl, bp.file, region, ctl.Active()); err != nil {
			return res, err
		}
		res.Pages++
		advance(bp.file)
	}

	// Details are reached from the index.
	if err := ctl.Press(nav.ButtonIndex); err != nil {
		return res, err
	}
	for _, entry := range entries {
		file := detailFile(entry.ID)
		if _, err := ctl.Select(entry.ID); err != nil {
			return res, fmt.Errorf("rendering %s: %w", file, err)
		}
		if err := e.writeView(tmpl, file, region, ctl.Active()); err != nil {
			return res, err
		}
		res.Pages++
		advance(file)
	}

	if err := e.writeFile("printable.html", func(f *os.File) error { return e.Renderer.Printable(f) }); err != nil {
		return res, err
	}
	res.Pages++
	advance("printable.html")

	if err := e.writeFile("catalog.json", func(f *os.File) error {
		c := e.Renderer.Catalog()
		enc := json.NewEncoder(f)
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{"entries": c.Entries(), "resources": c.Resources()})
	}); err != nil {
		return res, err
	}
	advance("catalog.json")

	for _, p := range assets {
		data, err := fs.ReadFile(e.Assets, p)
		if err != nil {
			return res, fmt.Errorf("reading asset %s: %w", p, err)
		}
		if err := e.writeFile(p, func(f *os.File) error {
			_, err := f.Write(data)
			return err
		}); err != nil {
			return res, err
		}
		res.Assets++
		advance(p)
	}

	return res, nil
}

func (e *Exporter) writeView(tmpl *template.Template, file string, region *view.Region, active nav.Button) error {
	frag, ok := region.Current()
	if !ok {
		return fmt.Errorf("nothing rendered for %s", file)
	}

	base := strings.Repeat("../", strings.Count(file, "/"))
	data := pageData{
		Title:    e.Title,
		Base:     base,
		Fragment: frag.HTML,
		Routes:   routes(frag.Actions, base),
	}
	for _, bp := range buttonPages {
		data.Nav = append(data.Nav, navLink{
			ID:     bp.button,
			Label:  bp.label,
			Href:   bp.file,
			Active: bp.button == active,
		})
	}

	return e.writeFile(file, func(f *os.File) error {
		if err := tmpl.Execute(f, data); err != nil {
			return fmt.Errorf("rendering %s: %w", file, err)
		}
		return nil
	})
}

// routes resolves a dispatch table into static targets.
func routes(actions map[string]view.Intent, base string) map[string]route {
	out := make(map[string]route, len(actions))
	local := func(u string) string {
		if strings.HasPrefix(u, "/") {
			return base + strings.TrimPrefix(u, "/")
		}
		return u
	}
	for id, in := range actions {
		switch in.Kind {
		case view.IntentSelectEntry:
			out[id] = route{Href: base + detailFile(in.EntryID)}
		case view.IntentBack:
			out[id] = route{Href: base + "toc.html"}
		case view.IntentDonate, view.IntentOpenLink:
			out[id] = route{URL: local(in.URL)}
		case view.IntentOpenAndPrint:
			out[id] = route{URL: local(in.URL), Print: true}
		}
	}
	return out
}

func (e *Exporter) writeFile(rel string, write func(*os.File) error) error {
	out := filepath.Join(e.OutputDir, filepath.FromSlash(path.Clean(rel)))
	if err := os.MkdirAll(filepath.Dir(out), 0o755); err != nil {
		return err
	}
	f, err := os.Create(out)
	if err != nil {
		return err
	}
	if err := write(f); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}
