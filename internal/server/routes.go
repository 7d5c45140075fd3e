package server

import (
	"encoding/json"
	"errors"
	"io/fs"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/ziadkadry99/catechiseme/internal/assetcache"
	"github.com/ziadkadry99/catechiseme/internal/catalog"
	"github.com/ziadkadry99/catechiseme/internal/nav"
	"github.com/ziadkadry99/catechiseme/internal/view"
	"github.com/ziadkadry99/catechiseme/internal/web"
)

// PageHeader carries the page-context id handed out by GET /view.
const PageHeader = "X-Catechiseme-Page"

// errPageExpired answers actions for a page context that no longer exists.
var errPageExpired = errors.New("page expired")

// pageResponse is what every view endpoint returns. Fragment is only set when
// the display region was replaced.
type pageResponse struct {
	ID       string         `json:"id"`
	Page     nav.State      `json:"page"`
	Active   nav.Button     `json:"active"`
	Fragment *view.Fragment `json:"fragment,omitempty"`
	Effects  []nav.Effect   `json:"effects,omitempty"`
}

type catalogResponse struct {
	Entries   []catalog.Entry    `json:"entries"`
	Resources []catalog.Resource `json:"resources"`
}

type cacheStatus struct {
	Active     *assetcache.WorkerInfo `json:"active,omitempty"`
	Waiting    *assetcache.WorkerInfo `json:"waiting,omitempty"`
	Installing *assetcache.WorkerInfo `json:"installing,omitempty"`
}

func (s *Server) handleShell(w http.ResponseWriter, r *http.Request) {
	data, err := fs.ReadFile(s.assets, strings.TrimPrefix(web.ShellPath, "/"))
	if err != nil {
		s.logger.Error("reading shell", zap.Error(err))
		http.Error(w, "shell unavailable", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write(data)
}

func (s *Server) handleCatalog(w http.ResponseWriter, r *http.Request) {
	c := s.renderer.Catalog()
	writeJSON(w, http.StatusOK, catalogResponse{Entries: c.Entries(), Resources: c.Resources()})
}

func (s *Server) handlePrintable(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	if err := s.renderer.Printable(w); err != nil {
		s.logger.Error("rendering printable page", zap.Error(err))
	}
}

func (s *Server) handleStatic(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet && r.Method != http.MethodHead {
		writeError(w, http.StatusNotFound, "not found")
		return
	}
	http.FileServer(http.FS(s.assets)).ServeHTTP(w, r)
}

// startPage creates a page context on the welcome view.
func (s *Server) startPage(w http.ResponseWriter) (*nav.Page, error) {
	p, err := s.sessions.Start()
	if err != nil {
		return nil, err
	}
	w.Header().Set(PageHeader, p.ID)
	s.rendered(p)
	return p, nil
}

// lookupPage returns the page context named by the request header.
func (s *Server) lookupPage(r *http.Request) (*nav.Page, bool) {
	id := r.Header.Get(PageHeader)
	if id == "" {
		return nil, false
	}
	return s.sessions.Lookup(id)
}

func (s *Server) rendered(p *nav.Page) {
	if s.metrics != nil {
		s.metrics.ViewRendered(string(p.Controller.State().View))
	}
}

// respond writes the page state. before is the region's replacement count
// when the request started; a negative value always includes the fragment.
func (s *Server) respond(w http.ResponseWriter, p *nav.Page, before int, effects []nav.Effect) {
	resp := pageResponse{
		ID:      p.ID,
		Page:    p.Controller.State(),
		Active:  p.Controller.Active(),
		Effects: effects,
	}
	replaced := p.Region.Replacements() != before
	if replaced && before >= 0 {
		s.rendered(p)
	}
	if f, ok := p.Region.Current(); ok && replaced {
		resp.Fragment = &f
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleView starts a new page context. Each page load begins on welcome.
func (s *Server) handleView(w http.ResponseWriter, r *http.Request) {
	p, err := s.startPage(w)
	if err != nil {
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	// A page load always gets the current fragment.
	s.respond(w, p, -1, nil)
}

func (s *Server) handleNav(w http.ResponseWriter, r *http.Request) {
	b, err := nav.ParseButton(chi.URLParam(r, "button"))
	if err != nil {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	// Navigation buttons do not depend on the displayed fragment, so a page
	// whose context expired continues in a fresh one.
	p, ok := s.lookupPage(r)
	before := -1
	if !ok {
		if p, err = s.startPage(w); err != nil {
			writeError(w, http.StatusInternalServerError, err.Error())
			return
		}
	} else {
		before = p.Region.Replacements()
	}

	if err := p.Controller.Press(b); err != nil {
		s.logger.Error("navigation failed", zap.String("button", string(b)), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, p, before, nil)
}

func (s *Server) handleAction(w http.ResponseWriter, r *http.Request) {
	p, ok := s.lookupPage(r)
	if !ok {
		writeError(w, http.StatusGone, errPageExpired.Error())
		return
	}

	action := chi.URLParam(r, "action")
	before := p.Region.Replacements()
	effects, err := p.Controller.Dispatch(action)
	if errors.Is(err, nav.ErrUnknownAction) {
		writeError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		s.logger.Error("action failed", zap.String("action", action), zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.respond(w, p, before, effects)
}

func (s *Server) handleCacheStatus(w http.ResponseWriter, r *http.Request) {
	var st cacheStatus
	if info, ok := s.cache.Active(); ok {
		st.Active = &info
	}
	if info, ok := s.cache.Waiting(); ok {
		st.Waiting = &info
	}
	if info, ok := s.cache.Installing(); ok {
		st.Installing = &info
	}
	writeJSON(w, http.StatusOK, st)
}

func (s *Server) handlePromote(w http.ResponseWriter, r *http.Request) {
	info, err := s.cache.Promote(r.Context())
	if errors.Is(err, assetcache.ErrNoWaiting) {
		writeError(w, http.StatusConflict, err.Error())
		return
	}
	if err != nil {
		// Activation happened; only stale bucket cleanup failed.
		s.logger.Warn("promote", zap.Error(err))
	}
	writeJSON(w, http.StatusOK, info)
}

type pruneResponse struct {
	Deleted int `json:"deleted"`
}

func (s *Server) handlePrune(w http.ResponseWriter, r *http.Request) {
	n, err := s.cache.Prune(r.Context())
	if err != nil {
		s.logger.Error("prune", zap.Error(err))
		writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	writeJSON(w, http.StatusOK, pruneResponse{Deleted: n})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
