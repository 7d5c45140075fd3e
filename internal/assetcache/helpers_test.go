package assetcache

import (
	"context"
	"net/http"
	"sync"
	"testing"

	"github.com/ziadkadry99/catechiseme/internal/db"
)

// fakeFetcher serves "<tag>:<path>" for every path, except paths listed in
// fail.
type fakeFetcher struct {
	mu    sync.Mutex
	tag   string
	fail  map[string]bool
	calls int
}

func newFakeFetcher(tag string) *fakeFetcher {
	return &fakeFetcher{tag: tag, fail: map[string]bool{}}
}

func (f *fakeFetcher) setTag(tag string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tag = tag
}

func (f *fakeFetcher) failOn(path string, fail bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.fail[path] = fail
}

func (f *fakeFetcher) Fetch(ctx context.Context, path string) (Asset, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.fail[path] {
		return Asset{}, &FetchError{Path: path, Status: http.StatusNotFound}
	}
	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	return Asset{
		Path:        path,
		Status:      http.StatusOK,
		ContentType: "text/plain; charset=utf-8",
		Header:      http.Header{"Cache-Control": {"no-cache"}},
		Body:        []byte(f.tag + ":" + path),
	}, nil
}

type signal struct {
	sig     Signal
	version string
}

type recordingNotifier struct {
	mu      sync.Mutex
	signals []signal
}

func (n *recordingNotifier) Notify(sig Signal, version string) {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.signals = append(n.signals, signal{sig, version})
}

func (n *recordingNotifier) all() []signal {
	n.mu.Lock()
	defer n.mu.Unlock()
	return append([]signal(nil), n.signals...)
}

type countingObserver struct {
	mu          sync.Mutex
	hits        int
	misses      int
	installsOK  int
	installsBad int
	activated   []string
	deleted     int
	clients     int
}

func (o *countingObserver) CacheHit(string)  { o.mu.Lock(); o.hits++; o.mu.Unlock() }
func (o *countingObserver) CacheMiss(string) { o.mu.Lock(); o.misses++; o.mu.Unlock() }
func (o *countingObserver) Installed(_ string, ok bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if ok {
		o.installsOK++
	} else {
		o.installsBad++
	}
}
func (o *countingObserver) Activated(v string) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.activated = append(o.activated, v)
}
func (o *countingObserver) BucketsDeleted(n int)   { o.mu.Lock(); o.deleted += n; o.mu.Unlock() }
func (o *countingObserver) ClientsConnected(n int) { o.mu.Lock(); o.clients = n; o.mu.Unlock() }

var testManifest = []string{"/", "/index.html", "/css/style.css", "/js/app.js", "/catalog.json"}

func newTestRegistration(t *testing.T, store Store, f Fetcher, obs Observer) *Registration {
	t.Helper()
	reg, err := NewRegistration(Options{
		Prefix:   "catechisem-cache",
		Manifest: testManifest,
		Store:    store,
		Fetcher:  f,
		Observer: obs,
	})
	if err != nil {
		t.Fatalf("NewRegistration: %v", err)
	}
	return reg
}

func newSQLStore(t *testing.T) *SQLStore {
	t.Helper()
	database, err := db.OpenMemory()
	if err != nil {
		t.Fatalf("OpenMemory: %v", err)
	}
	t.Cleanup(func() { database.Close() })
	return NewSQLStore(database)
}

// stores runs fn once per Store implementation.
func stores(t *testing.T, fn func(t *testing.T, newStore func() Store)) {
	t.Run("memory", func(t *testing.T) {
		fn(t, func() Store { return NewMemoryStore() })
	})
	t.Run("sqlite", func(t *testing.T) {
		fn(t, func() Store { return newSQLStore(t) })
	})
}
