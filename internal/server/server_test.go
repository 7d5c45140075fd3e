package server

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/ziadkadry99/catechiseme/internal/assetcache"
	"github.com/ziadkadry99/catechiseme/internal/catalog"
	"github.com/ziadkadry99/catechiseme/internal/db"
	"github.com/ziadkadry99/catechiseme/internal/metrics"
	"github.com/ziadkadry99/catechiseme/internal/nav"
	"github.com/ziadkadry99/catechiseme/internal/view"
	"github.com/ziadkadry99/catechiseme/internal/web"
)

const donationURL = "https://donate.example/catechiseme"

func newRenderer(t *testing.T) *view.Renderer {
	t.Helper()
	c, err := catalog.Default()
	if err != nil {
		t.Fatalf("catalog.Default: %v", err)
	}
	r, err := view.NewRenderer(c, view.WithDonationURL(donationURL))
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}
	return r
}

func newTestServer(t *testing.T, cfg Config) *Server {
	t.Helper()
	return New(cfg, Deps{Renderer: newRenderer(t), Assets: web.Embedded()})
}

// newCachedServer wires a server to an asset cache whose network handler is
// the server itself, the way serve does.
func newCachedServer(t *testing.T) (*Server, *assetcache.Registration, *metrics.Metrics) {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })

	var srv *Server
	reg, err := assetcache.NewRegistration(assetcache.Options{
		Prefix:   "catechisem-cache",
		Manifest: []string{"/", "/index.html", "/css/style.css", "/js/app.js", "/catalog.json", "/printable.html", "/manifest.json"},
		Store:    assetcache.NewSQLStore(database),
		Fetcher: assetcache.HandlerFetcher{Handler: http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			srv.ServeHTTP(w, r)
		})},
	})
	if err != nil {
		t.Fatalf("NewRegistration: %v", err)
	}
	m := metrics.New()
	srv = New(Config{}, Deps{
		Renderer: newRenderer(t),
		Assets:   web.Embedded(),
		Cache:    reg,
		Channel:  assetcache.NewChannel(reg, nil),
		Metrics:  m,
	})
	t.Cleanup(func() { srv.Shutdown(context.Background()) })
	return srv, reg, m
}

// client replays the page id the way app.js does.
type client struct {
	t    *testing.T
	h    http.Handler
	page string
}

func (c *client) do(method, path string) (*httptest.ResponseRecorder, pageResponse) {
	c.t.Helper()
	req := httptest.NewRequest(method, path, nil)
	if c.page != "" {
		req.Header.Set(PageHeader, c.page)
	}
	w := httptest.NewRecorder()
	c.h.ServeHTTP(w, req)

	var resp pageResponse
	if w.Code == http.StatusOK {
		if err := json.Unmarshal(w.Body.Bytes(), &resp); err != nil {
			c.t.Fatalf("%s %s: unmarshal: %v", method, path, err)
		}
		if resp.ID != "" {
			c.page = resp.ID
		}
	}
	return w, resp
}

func TestHealthCheck(t *testing.T) {
	srv := newTestServer(t, Config{Port: 0})

	req := httptest.NewRequest("GET", "/healthz", nil)
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}

	var body map[string]string
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if body["status"] != "ok" {
		t.Errorf("expected status 'ok', got %q", body["status"])
	}
}

func TestCORSHeaders(t *testing.T) {
	srv := newTestServer(t, Config{Port: 0, AllowAll: true})

	req := httptest.NewRequest("OPTIONS", "/healthz", nil)
	req.Header.Set("Origin", "http://example.com")
	req.Header.Set("Access-Control-Request-Method", "GET")
	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)

	if w.Header().Get("Access-Control-Allow-Origin") == "" {
		t.Error("expected CORS Allow-Origin header")
	}
}

func TestViewStartsOnWelcome(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := &client{t: t, h: srv}

	w, resp := c.do("GET", "/view")
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d: %s", w.Code, w.Body.String())
	}
	if resp.ID == "" || w.Header().Get(PageHeader) != resp.ID {
		t.Fatalf("page id: body %q header %q", resp.ID, w.Header().Get(PageHeader))
	}
	if resp.Page.View != view.Welcome || resp.Active != nav.ButtonWelcome {
		t.Errorf("page = %+v active = %s", resp.Page, resp.Active)
	}
	if resp.Fragment == nil || !strings.Contains(string(resp.Fragment.HTML), "Welcome") {
		t.Fatalf("missing welcome fragment: %+v", resp.Fragment)
	}
}

func TestReloadStartsOnWelcome(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := &client{t: t, h: srv}

	_, first := c.do("GET", "/view")
	c.do("POST", "/nav/"+string(nav.ButtonIndex))
	_, resp := c.do("POST", "/action/"+view.SelectAction(1))
	if resp.Page.View != view.Detail {
		t.Fatalf("before reload: %+v", resp.Page)
	}

	// A reload sends the old id along; it still gets a new page on welcome.
	w, resp := c.do("GET", "/view")
	if resp.Page.View != view.Welcome || resp.Active != nav.ButtonWelcome || resp.Fragment == nil {
		t.Errorf("after reload: view=%s active=%s", resp.Page.View, resp.Active)
	}
	if resp.ID == first.ID || w.Header().Get(PageHeader) == first.ID {
		t.Error("reload reused the page context")
	}
}

func TestPageContextsAreIndependent(t *testing.T) {
	srv := newTestServer(t, Config{})
	a := &client{t: t, h: srv}
	b := &client{t: t, h: srv}

	a.do("GET", "/view")
	a.do("POST", "/nav/"+string(nav.ButtonIndex))

	b.do("GET", "/view")
	_, resp := b.do("POST", "/nav/"+string(nav.ButtonResources))
	if resp.Page.View != view.Resources {
		t.Fatalf("second page: %+v", resp.Page)
	}
	if srv.Sessions().Len() != 2 {
		t.Errorf("pages = %d, want 2", srv.Sessions().Len())
	}

	// The first page's index items still work.
	w, resp := a.do("POST", "/action/"+view.SelectAction(1))
	if w.Code != http.StatusOK {
		t.Fatalf("select on first page: %d %s", w.Code, w.Body.String())
	}
	if resp.Page.View != view.Detail || resp.Page.EntryID != 1 {
		t.Errorf("first page after select: %+v", resp.Page)
	}
}

func TestExpiredPage(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := &client{t: t, h: srv}

	c.do("GET", "/view")
	c.do("POST", "/nav/"+string(nav.ButtonIndex))
	old := c.page
	srv.Sessions().Prune(-time.Hour)

	w, _ := c.do("POST", "/action/"+view.SelectAction(1))
	if w.Code != http.StatusGone {
		t.Errorf("action on expired page: %d", w.Code)
	}

	w, resp := c.do("POST", "/nav/"+string(nav.ButtonResources))
	if w.Code != http.StatusOK {
		t.Fatalf("nav on expired page: %d %s", w.Code, w.Body.String())
	}
	if resp.ID == old || resp.Page.View != view.Resources || resp.Fragment == nil {
		t.Errorf("nav on expired page: id=%q page=%+v", resp.ID, resp.Page)
	}
	if w.Header().Get(PageHeader) != resp.ID {
		t.Errorf("header %q, body %q", w.Header().Get(PageHeader), resp.ID)
	}

	// Actions without any page id are refused too.
	anon := &client{t: t, h: srv}
	if w, _ := anon.do("POST", "/action/"+view.ActionDonate); w.Code != http.StatusGone {
		t.Errorf("action without page: %d", w.Code)
	}
}

func TestNavigationRoundTrip(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := &client{t: t, h: srv}
	c.do("GET", "/view")

	_, resp := c.do("POST", "/nav/"+string(nav.ButtonIndex))
	if resp.Page.View != view.Index || resp.Active != nav.ButtonIndex || resp.Fragment == nil {
		t.Fatalf("after index: %+v", resp)
	}

	_, resp = c.do("POST", "/action/"+view.SelectAction(1))
	if resp.Page.View != view.Detail || resp.Page.EntryID != 1 {
		t.Fatalf("after select: %+v", resp.Page)
	}
	if resp.Active != nav.ButtonIndex {
		t.Errorf("detail should keep index active, got %s", resp.Active)
	}
	if !strings.Contains(string(resp.Fragment.HTML), "Question 1") {
		t.Errorf("detail fragment: %s", resp.Fragment.HTML)
	}

	_, resp = c.do("POST", "/action/"+view.ActionBack)
	if resp.Page.View != view.Index {
		t.Errorf("after back: %+v", resp.Page)
	}

	// The detail view's back action is gone once the index is displayed.
	w, _ := c.do("POST", "/action/"+view.ActionBack)
	if w.Code != http.StatusNotFound {
		t.Errorf("stale action status = %d", w.Code)
	}

	w, _ = c.do("POST", "/nav/settings-nav-btn")
	if w.Code != http.StatusNotFound {
		t.Errorf("unknown button status = %d", w.Code)
	}
}

func TestActionEffects(t *testing.T) {
	srv := newTestServer(t, Config{})
	c := &client{t: t, h: srv}
	c.do("GET", "/view")

	_, resp := c.do("POST", "/action/"+view.ActionDonate)
	if resp.Fragment != nil {
		t.Error("donate should not replace the view")
	}
	if len(resp.Effects) != 1 || resp.Effects[0] != (nav.Effect{Kind: nav.EffectOpen, URL: donationURL}) {
		t.Errorf("donate effects = %+v", resp.Effects)
	}

	c.do("POST", "/nav/"+string(nav.ButtonResources))
	_, resp = c.do("POST", "/action/"+view.PrintAction(0))
	want := nav.Effect{Kind: nav.EffectOpenAndPrint, URL: "/printable.html"}
	if len(resp.Effects) != 1 || resp.Effects[0] != want {
		t.Errorf("print effects = %+v, want %+v", resp.Effects, want)
	}
	if resp.Page.View != view.Resources {
		t.Errorf("page = %+v", resp.Page)
	}
}

func TestCatalogJSON(t *testing.T) {
	srv := newTestServer(t, Config{})
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/catalog.json", nil))

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d", w.Code)
	}
	var body catalogResponse
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if len(body.Entries) == 0 || body.Entries[0].ID != 1 || len(body.Resources) == 0 {
		t.Errorf("unexpected catalog: %d entries, %d resources", len(body.Entries), len(body.Resources))
	}
}

func TestShellPrintableAndStatic(t *testing.T) {
	srv := newTestServer(t, Config{})

	for _, tc := range []struct {
		path, contentType, contains string
	}{
		{"/", "text/html", `id="app-container"`},
		{"/index.html", "text/html", `id="update-banner"`},
		{"/printable.html", "text/html", "Question 1"},
		{"/css/style.css", "text/css", ".update-banner"},
		{"/js/app.js", "javascript", "SKIP_WAITING"},
	} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest("GET", tc.path, nil))
		if w.Code != http.StatusOK {
			t.Errorf("%s: status %d", tc.path, w.Code)
			continue
		}
		if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, tc.contentType) {
			t.Errorf("%s: content type %q", tc.path, ct)
		}
		if !strings.Contains(w.Body.String(), tc.contains) {
			t.Errorf("%s: body missing %q", tc.path, tc.contains)
		}
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/no/such/file.txt", nil))
	if w.Code != http.StatusNotFound {
		t.Errorf("missing file status = %d", w.Code)
	}
}

func TestAssetCacheServesShell(t *testing.T) {
	srv, reg, _ := newCachedServer(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	for _, path := range []string{"/", "/css/style.css", "/catalog.json"} {
		w := httptest.NewRecorder()
		srv.ServeHTTP(w, httptest.NewRequest("GET", path, nil))
		if w.Header().Get(assetcache.CacheHeader) != "HIT" {
			t.Errorf("%s not served from cache", path)
		}
	}

	// Page state is never cached.
	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/view", nil))
	if w.Header().Get(assetcache.CacheHeader) != "" {
		t.Error("/view served from cache")
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", assetcache.ServiceWorkerPath, nil))
	if w.Code != http.StatusOK || w.Header().Get("Service-Worker-Allowed") != "/" {
		t.Errorf("service worker: %d %v", w.Code, w.Header())
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/metrics", nil))
	if !strings.Contains(w.Body.String(), "catechiseme_asset_cache_hits_total") {
		t.Error("metrics missing cache hits")
	}
}

func TestPromoteEndpoint(t *testing.T) {
	srv, reg, _ := newCachedServer(t)
	ctx := context.Background()

	if _, err := reg.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}

	w := httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("POST", "/sw/promote", nil))
	if w.Code != http.StatusConflict {
		t.Errorf("promote with nothing waiting: %d", w.Code)
	}

	if _, err := reg.Update(ctx, "v2"); err != nil {
		t.Fatalf("Update: %v", err)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("GET", "/sw/status", nil))
	var st cacheStatus
	if err := json.Unmarshal(w.Body.Bytes(), &st); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if st.Active == nil || st.Active.Version != "v1" || st.Waiting == nil || st.Waiting.Version != "v2" {
		t.Fatalf("status = %+v", st)
	}

	w = httptest.NewRecorder()
	srv.ServeHTTP(w, httptest.NewRequest("POST", "/sw/promote", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("promote status = %d: %s", w.Code, w.Body.String())
	}
	var info assetcache.WorkerInfo
	if err := json.Unmarshal(w.Body.Bytes(), &info); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	if info.Version != "v2" || info.State != assetcache.StateActivated {
		t.Errorf("promoted = %+v", info)
	}
}
