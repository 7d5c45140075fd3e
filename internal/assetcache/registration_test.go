package assetcache

import (
	"context"
	"errors"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestNewRegistrationValidates(t *testing.T) {
	f := newFakeFetcher("v1")
	store := NewMemoryStore()
	tests := []struct {
		name string
		opts Options
	}{
		{"no store", Options{Prefix: "c", Manifest: testManifest, Fetcher: f}},
		{"no fetcher", Options{Prefix: "c", Manifest: testManifest, Store: store}},
		{"no prefix", Options{Manifest: testManifest, Store: store, Fetcher: f}},
		{"empty manifest", Options{Prefix: "c", Store: store, Fetcher: f}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := NewRegistration(tt.opts); err == nil {
				t.Error("expected error")
			}
		})
	}
}

func TestFirstInstallActivatesImmediately(t *testing.T) {
	stores(t, func(t *testing.T, newStore func() Store) {
		ctx := context.Background()
		store := newStore()
		obs := &countingObserver{}
		reg := newTestRegistration(t, store, newFakeFetcher("v1"), obs)
		n := &recordingNotifier{}
		reg.Subscribe(n)

		info, err := reg.Register(ctx, "v1")
		if err != nil {
			t.Fatalf("Register: %v", err)
		}
		if info.State != StateActivated || info.Bucket != "catechisem-cache-v1" {
			t.Errorf("unexpected worker: %+v", info)
		}
		if _, ok := reg.Waiting(); ok {
			t.Error("first version should not wait")
		}

		entries, err := reg.ActiveEntries(ctx)
		if err != nil {
			t.Fatalf("ActiveEntries: %v", err)
		}
		if diff := cmp.Diff([]string{"/", "/catalog.json", "/css/style.css", "/index.html", "/js/app.js"}, entries); diff != "" {
			t.Errorf("cached entries mismatch (-want +got):\n%s", diff)
		}

		a, ok, err := reg.Match(ctx, "/index.html")
		if err != nil || !ok {
			t.Fatalf("Match = %v, %v", ok, err)
		}
		if string(a.Body) != "v1:/index.html" {
			t.Errorf("body = %q", a.Body)
		}

		rec, _ := store.LoadRecord(ctx)
		if rec != (Record{Active: "v1"}) {
			t.Errorf("record = %+v", rec)
		}
		want := []signal{{SignalControllerChanged, "v1"}}
		if diff := cmp.Diff(want, n.all(), cmp.AllowUnexported(signal{})); diff != "" {
			t.Errorf("signals mismatch (-want +got):\n%s", diff)
		}
		if obs.installsOK != 1 || len(obs.activated) != 1 {
			t.Errorf("observer = %+v", obs)
		}
	})
}

func TestInstallIsAllOrNothing(t *testing.T) {
	stores(t, func(t *testing.T, newStore func() Store) {
		ctx := context.Background()
		store := newStore()
		f := newFakeFetcher("v1")
		f.failOn("/js/app.js", true)
		obs := &countingObserver{}
		reg := newTestRegistration(t, store, f, obs)

		info, err := reg.Register(ctx, "v1")
		if !errors.Is(err, ErrInstallFailed) {
			t.Fatalf("expected ErrInstallFailed, got %v", err)
		}
		var fe *FetchError
		if !errors.As(err, &fe) || fe.Path != "/js/app.js" {
			t.Errorf("expected wrapped FetchError for /js/app.js, got %v", err)
		}
		if info.State != StateRedundant {
			t.Errorf("failed worker state = %s", info.State)
		}

		keys, _ := store.Keys(ctx)
		if len(keys) != 0 {
			t.Errorf("failed install left buckets: %v", keys)
		}
		if _, ok := reg.Active(); ok {
			t.Error("failed install became active")
		}
		if _, ok := reg.Installing(); ok {
			t.Error("failed install still installing")
		}
		if _, ok, _ := reg.Match(ctx, "/"); ok {
			t.Error("nothing should match without an active version")
		}
		if _, err := reg.ActiveEntries(ctx); !errors.Is(err, ErrNotActive) {
			t.Errorf("ActiveEntries error = %v, want ErrNotActive", err)
		}
		if obs.installsBad != 1 {
			t.Errorf("installsBad = %d", obs.installsBad)
		}

		// A later attempt with every asset reachable succeeds.
		f.failOn("/js/app.js", false)
		if _, err := reg.Update(ctx, "v1"); err != nil {
			t.Fatalf("retry Update: %v", err)
		}
		if _, ok := reg.Active(); !ok {
			t.Error("retry did not activate")
		}
	})
}

func TestMigrationKeepsOnlyNewBucket(t *testing.T) {
	stores(t, func(t *testing.T, newStore func() Store) {
		ctx := context.Background()
		store := newStore()
		f := newFakeFetcher("v1")
		reg := newTestRegistration(t, store, f, nil)
		n := &recordingNotifier{}
		reg.Subscribe(n)

		if _, err := reg.Register(ctx, "v1"); err != nil {
			t.Fatalf("Register v1: %v", err)
		}

		f.setTag("v2")
		info, err := reg.Update(ctx, "v2")
		if err != nil {
			t.Fatalf("Update v2: %v", err)
		}
		if info.State != StateInstalled {
			t.Errorf("v2 state = %s, want installed", info.State)
		}

		// v1 keeps serving until promotion.
		a, _, _ := reg.Match(ctx, "/")
		if string(a.Body) != "v1:/" {
			t.Errorf("served %q before promotion", a.Body)
		}
		keys, _ := store.Keys(ctx)
		if diff := cmp.Diff([]string{"catechisem-cache-v1", "catechisem-cache-v2"}, keys); diff != "" {
			t.Errorf("keys before promotion (-want +got):\n%s", diff)
		}
		rec, _ := store.LoadRecord(ctx)
		if rec != (Record{Active: "v1", Waiting: "v2"}) {
			t.Errorf("record = %+v", rec)
		}

		// Updating to the waiting version again is a no-op: no second signal.
		if _, err := reg.Update(ctx, "v2"); err != nil {
			t.Fatalf("repeat Update: %v", err)
		}

		info, err = reg.Promote(ctx)
		if err != nil {
			t.Fatalf("Promote: %v", err)
		}
		if info.Version != "v2" || info.State != StateActivated {
			t.Errorf("promoted = %+v", info)
		}

		keys, _ = store.Keys(ctx)
		if diff := cmp.Diff([]string{"catechisem-cache-v2"}, keys); diff != "" {
			t.Errorf("keys after promotion (-want +got):\n%s", diff)
		}
		a, _, _ = reg.Match(ctx, "/")
		if string(a.Body) != "v2:/" {
			t.Errorf("served %q after promotion", a.Body)
		}
		rec, _ = store.LoadRecord(ctx)
		if rec != (Record{Active: "v2"}) {
			t.Errorf("record = %+v", rec)
		}

		want := []signal{
			{SignalControllerChanged, "v1"},
			{SignalUpdateAvailable, "v2"},
			{SignalControllerChanged, "v2"},
		}
		if diff := cmp.Diff(want, n.all(), cmp.AllowUnexported(signal{})); diff != "" {
			t.Errorf("signals mismatch (-want +got):\n%s", diff)
		}
	})
}

func TestActivationDeletesForeignBuckets(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	for _, b := range []string{"catechisem-cache-v0", "other-app-cache"} {
		if err := store.Put(ctx, b, []Asset{asset("/", b)}); err != nil {
			t.Fatalf("Put: %v", err)
		}
	}
	obs := &countingObserver{}
	reg := newTestRegistration(t, store, newFakeFetcher("v1"), obs)

	if _, err := reg.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	keys, _ := store.Keys(ctx)
	if diff := cmp.Diff([]string{"catechisem-cache-v1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
	if obs.deleted != 2 {
		t.Errorf("deleted = %d, want 2", obs.deleted)
	}
}

func TestPromoteWithoutWaiting(t *testing.T) {
	reg := newTestRegistration(t, NewMemoryStore(), newFakeFetcher("v1"), nil)
	if _, err := reg.Promote(context.Background()); !errors.Is(err, ErrNoWaiting) {
		t.Errorf("Promote error = %v, want ErrNoWaiting", err)
	}

	if _, err := reg.Register(context.Background(), "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Promote(context.Background()); !errors.Is(err, ErrNoWaiting) {
		t.Errorf("Promote after activation error = %v, want ErrNoWaiting", err)
	}
}

func TestFailedUpdateKeepsActiveVersion(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := newFakeFetcher("v1")
	reg := newTestRegistration(t, store, f, nil)
	n := &recordingNotifier{}
	reg.Subscribe(n)

	if _, err := reg.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	f.setTag("v2")
	f.failOn("/catalog.json", true)
	if _, err := reg.Update(ctx, "v2"); !errors.Is(err, ErrInstallFailed) {
		t.Fatalf("Update error = %v", err)
	}

	active, ok := reg.Active()
	if !ok || active.Version != "v1" {
		t.Errorf("active = %+v, %v", active, ok)
	}
	if _, ok := reg.Waiting(); ok {
		t.Error("failed version is waiting")
	}
	if len(n.all()) != 1 {
		t.Errorf("unexpected signals after failed update: %v", n.all())
	}
	keys, _ := store.Keys(ctx)
	if diff := cmp.Diff([]string{"catechisem-cache-v1"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestNewerWaitingReplacesOlder(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	f := newFakeFetcher("v1")
	reg := newTestRegistration(t, store, f, nil)

	if _, err := reg.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Update(ctx, "v2"); err != nil {
		t.Fatalf("Update v2: %v", err)
	}
	if _, err := reg.Update(ctx, "v3"); err != nil {
		t.Fatalf("Update v3: %v", err)
	}

	waiting, ok := reg.Waiting()
	if !ok || waiting.Version != "v3" {
		t.Fatalf("waiting = %+v, %v", waiting, ok)
	}
	if _, err := reg.Promote(ctx); err != nil {
		t.Fatalf("Promote: %v", err)
	}
	keys, _ := store.Keys(ctx)
	if diff := cmp.Diff([]string{"catechisem-cache-v3"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestRegisterRestoresPersistedState(t *testing.T) {
	ctx := context.Background()
	store := newSQLStore(t)
	f := newFakeFetcher("v1")

	first := newTestRegistration(t, store, f, nil)
	if _, err := first.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register v1: %v", err)
	}
	f.setTag("v2")
	if _, err := first.Update(ctx, "v2"); err != nil {
		t.Fatalf("Update v2: %v", err)
	}

	// A restart with the same version refetches nothing and keeps v2 waiting.
	f.mu.Lock()
	f.calls = 0
	f.mu.Unlock()
	second := newTestRegistration(t, store, f, nil)
	info, err := second.Register(ctx, "v2")
	if err != nil {
		t.Fatalf("Register after restart: %v", err)
	}
	if info.Version != "v2" || info.State != StateInstalled {
		t.Errorf("restored = %+v", info)
	}
	if active, ok := second.Active(); !ok || active.Version != "v1" {
		t.Errorf("active after restart = %+v, %v", active, ok)
	}
	if f.calls != 0 {
		t.Errorf("restart fetched %d assets", f.calls)
	}
}

func TestUpdateWhileInstalling(t *testing.T) {
	ctx := context.Background()
	block := make(chan struct{})
	started := make(chan struct{}, len(testManifest))
	f := blockingFetcher{inner: newFakeFetcher("v1"), started: started, release: block}
	reg := newTestRegistration(t, NewMemoryStore(), f, nil)

	done := make(chan error, 1)
	go func() {
		_, err := reg.Update(ctx, "v1")
		done <- err
	}()
	<-started

	if _, err := reg.Update(ctx, "v2"); !errors.Is(err, ErrInstallInProgress) {
		t.Errorf("concurrent Update error = %v, want ErrInstallInProgress", err)
	}
	if info, ok := reg.Installing(); !ok || info.Version != "v1" || info.State != StateInstalling {
		t.Errorf("installing = %+v, %v", info, ok)
	}

	close(block)
	if err := <-done; err != nil {
		t.Fatalf("Update: %v", err)
	}
}

type blockingFetcher struct {
	inner   Fetcher
	started chan<- struct{}
	release <-chan struct{}
}

func (b blockingFetcher) Fetch(ctx context.Context, path string) (Asset, error) {
	select {
	case b.started <- struct{}{}:
	default:
	}
	<-b.release
	return b.inner.Fetch(ctx, path)
}

func TestPrune(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	reg := newTestRegistration(t, store, newFakeFetcher("v1"), nil)

	if _, err := reg.Register(ctx, "v1"); err != nil {
		t.Fatalf("Register: %v", err)
	}
	if _, err := reg.Update(ctx, "v2"); err != nil {
		t.Fatalf("Update: %v", err)
	}
	if err := store.Put(ctx, "catechisem-cache-v0", []Asset{asset("/", "old")}); err != nil {
		t.Fatalf("Put: %v", err)
	}

	n, err := reg.Prune(ctx)
	if err != nil {
		t.Fatalf("Prune: %v", err)
	}
	if n != 1 {
		t.Errorf("pruned %d buckets, want 1", n)
	}
	keys, _ := store.Keys(ctx)
	if diff := cmp.Diff([]string{"catechisem-cache-v1", "catechisem-cache-v2"}, keys); diff != "" {
		t.Errorf("keys mismatch (-want +got):\n%s", diff)
	}
}

func TestRestoreActivatesOrphanedWaiting(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	if err := store.Put(ctx, "catechisem-cache-v2", []Asset{asset("/", "v2")}); err != nil {
		t.Fatalf("Put: %v", err)
	}
	// v1's bucket is gone, so v2 has nothing to wait for.
	if err := store.SaveRecord(ctx, Record{Active: "v1", Waiting: "v2"}); err != nil {
		t.Fatalf("SaveRecord: %v", err)
	}

	reg := newTestRegistration(t, store, newFakeFetcher("v3"), nil)
	if err := reg.Restore(ctx); err != nil {
		t.Fatalf("Restore: %v", err)
	}
	active, ok := reg.Active()
	if !ok || active.Version != "v2" {
		t.Errorf("active = %+v, %v", active, ok)
	}
	rec, _ := store.LoadRecord(ctx)
	if rec != (Record{Active: "v2"}) {
		t.Errorf("record = %+v", rec)
	}
}
