// Package assetcache keeps a versioned, offline copy of the viewer's shell
// assets. A Registration drives the lifecycle of cache versions: a new
// version is installed into its own bucket all-or-nothing, waits while an
// older version is serving, and is activated only when promoted. Activation
// deletes every other bucket and tells every page context to reload.
package assetcache

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// State is the lifecycle state of one cache version.
type State string

const (
	StateInstalling State = "installing"
	StateInstalled  State = "installed"
	StateActivating State = "activating"
	StateActivated  State = "activated"
	StateRedundant  State = "redundant"
)

var (
	ErrInstallFailed     = errors.New("asset cache install failed")
	ErrInstallInProgress = errors.New("asset cache install already in progress")
	ErrNoWaiting         = errors.New("no waiting version to promote")
	ErrNotActive         = errors.New("no active asset cache version")
)

// BucketName joins a cache prefix and a version tag.
func BucketName(prefix, version string) string {
	return prefix + "-" + version
}

// WorkerInfo is a snapshot of one cache version.
type WorkerInfo struct {
	ID      string `json:"id"`
	Version string `json:"version"`
	Bucket  string `json:"bucket"`
	State   State  `json:"state"`
}

type worker struct {
	id      string
	version string
	bucket  string
	state   State
}

func (w *worker) info() WorkerInfo {
	return WorkerInfo{ID: w.id, Version: w.version, Bucket: w.bucket, State: w.state}
}

// Options configures a Registration.
type Options struct {
	Prefix   string
	Manifest []string
	Store    Store
	Fetcher  Fetcher
	Logger   *zap.Logger
	Observer Observer
	// FetchConcurrency bounds parallel fetches during install. Zero means 4.
	FetchConcurrency int
}

// Registration owns the active, waiting, and installing cache versions.
type Registration struct {
	prefix      string
	manifest    []string
	store       Store
	fetcher     Fetcher
	logger      *zap.Logger
	observer    Observer
	concurrency int

	// lifecycle serializes bucket commits and activations so an activation
	// never deletes a bucket that is concurrently becoming the waiting one.
	lifecycle sync.Mutex

	mu         sync.Mutex
	active     *worker
	waiting    *worker
	installing *worker
	notifiers  []Notifier
}

// NewRegistration validates opts and returns an empty registration.
func NewRegistration(opts Options) (*Registration, error) {
	if opts.Store == nil {
		return nil, errors.New("assetcache: store is required")
	}
	if opts.Fetcher == nil {
		return nil, errors.New("assetcache: fetcher is required")
	}
	if opts.Prefix == "" {
		return nil, errors.New("assetcache: prefix is required")
	}
	if len(opts.Manifest) == 0 {
		return nil, errors.New("assetcache: manifest is empty")
	}

	r := &Registration{
		prefix:      opts.Prefix,
		manifest:    append([]string(nil), opts.Manifest...),
		store:       opts.Store,
		fetcher:     opts.Fetcher,
		logger:      opts.Logger,
		observer:    opts.Observer,
		concurrency: opts.FetchConcurrency,
	}
	if r.logger == nil {
		r.logger = zap.NewNop()
	}
	if r.observer == nil {
		r.observer = nopObserver{}
	}
	if r.concurrency <= 0 {
		r.concurrency = 4
	}
	return r, nil
}

// Subscribe adds a notifier for update and controller-change signals.
func (r *Registration) Subscribe(n Notifier) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.notifiers = append(r.notifiers, n)
}

// Manifest returns the enumerated asset paths every version caches.
func (r *Registration) Manifest() []string {
	return append([]string(nil), r.manifest...)
}

// Prefix returns the bucket name prefix.
func (r *Registration) Prefix() string { return r.prefix }

// Register restores the persisted registration, then makes sure version is
// installed. When another version is already active, version ends up waiting.
func (r *Registration) Register(ctx context.Context, version string) (WorkerInfo, error) {
	if err := r.Restore(ctx); err != nil {
		return WorkerInfo{}, err
	}
	return r.Update(ctx, version)
}

// Restore loads the active and waiting versions recorded by an earlier run.
// Versions whose bucket is gone are forgotten. It does nothing once the
// registration already holds a version.
func (r *Registration) Restore(ctx context.Context) error {
	rec, err := r.store.LoadRecord(ctx)
	if err != nil {
		return fmt.Errorf("restoring registration: %w", err)
	}

	restore := func(v string, state State) (*worker, error) {
		if v == "" {
			return nil, nil
		}
		b := BucketName(r.prefix, v)
		ok, err := r.store.Has(ctx, b)
		if err != nil || !ok {
			return nil, err
		}
		return &worker{id: uuid.NewString(), version: v, bucket: b, state: state}, nil
	}

	active, err := restore(rec.Active, StateActivated)
	if err != nil {
		return fmt.Errorf("restoring active version: %w", err)
	}
	var waiting *worker
	if rec.Waiting != rec.Active {
		if waiting, err = restore(rec.Waiting, StateInstalled); err != nil {
			return fmt.Errorf("restoring waiting version: %w", err)
		}
	}

	r.mu.Lock()
	if r.active != nil || r.waiting != nil || r.installing != nil {
		r.mu.Unlock()
		return nil
	}
	r.active, r.waiting = active, waiting
	r.mu.Unlock()

	if active != nil {
		r.logger.Info("asset cache restored", zap.String("version", active.version))
	}
	if active == nil && waiting != nil {
		// A waiting version with nothing serving has no reason to wait.
		if _, err := r.activate(ctx, waiting); err != nil {
			return err
		}
	}
	return nil
}

// Update installs version. If nothing is active it is activated right away;
// otherwise it waits for Promote and pages are told an update is available.
func (r *Registration) Update(ctx context.Context, version string) (WorkerInfo, error) {
	if version == "" {
		return WorkerInfo{}, errors.New("assetcache: version is required")
	}

	r.mu.Lock()
	switch {
	case r.installing != nil:
		info := r.installing.info()
		r.mu.Unlock()
		return info, ErrInstallInProgress
	case r.active != nil && r.active.version == version:
		info := r.active.info()
		r.mu.Unlock()
		return info, nil
	case r.waiting != nil && r.waiting.version == version:
		info := r.waiting.info()
		r.mu.Unlock()
		return info, nil
	}
	w := &worker{
		id:      uuid.NewString(),
		version: version,
		bucket:  BucketName(r.prefix, version),
		state:   StateInstalling,
	}
	r.installing = w
	r.mu.Unlock()

	r.logger.Info("installing asset cache",
		zap.String("version", version),
		zap.String("bucket", w.bucket),
		zap.Int("assets", len(r.manifest)))

	assets, err := r.fetchAll(ctx)
	if err == nil {
		r.lifecycle.Lock()
		err = r.store.Put(ctx, w.bucket, assets)
		if err == nil {
			r.commitInstalled(w)
		}
		r.lifecycle.Unlock()
	}
	if err != nil {
		r.mu.Lock()
		w.state = StateRedundant
		r.installing = nil
		info := w.info()
		r.mu.Unlock()

		r.observer.Installed(version, false)
		r.logger.Error("asset cache install failed", zap.String("version", version), zap.Error(err))
		return info, fmt.Errorf("%w: %s: %w", ErrInstallFailed, version, err)
	}
	r.observer.Installed(version, true)

	r.mu.Lock()
	first := r.active == nil
	info := w.info()
	r.mu.Unlock()

	if first {
		return r.activate(ctx, w)
	}

	r.persist(ctx)
	r.logger.Info("asset cache version waiting", zap.String("version", version))
	r.notify(SignalUpdateAvailable, version)
	return info, nil
}

func (r *Registration) fetchAll(ctx context.Context) ([]Asset, error) {
	assets := make([]Asset, len(r.manifest))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(r.concurrency)
	for i, path := range r.manifest {
		i, path := i, path
		g.Go(func() error {
			a, err := r.fetcher.Fetch(gctx, path)
			if err != nil {
				return err
			}
			assets[i] = a
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return assets, nil
}

func (r *Registration) commitInstalled(w *worker) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.installing = nil
	w.state = StateInstalled
	if r.waiting != nil {
		r.waiting.state = StateRedundant
	}
	r.waiting = w
}

// Promote activates the waiting version.
func (r *Registration) Promote(ctx context.Context) (WorkerInfo, error) {
	r.mu.Lock()
	w := r.waiting
	r.mu.Unlock()
	if w == nil {
		return WorkerInfo{}, ErrNoWaiting
	}
	return r.activate(ctx, w)
}

// activate makes w the active version, deletes every other bucket, and
// claims all page contexts.
func (r *Registration) activate(ctx context.Context, w *worker) (WorkerInfo, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	if w.state != StateInstalled {
		r.mu.Unlock()
		return WorkerInfo{}, ErrNoWaiting
	}
	if r.active != nil {
		r.active.state = StateRedundant
	}
	w.state = StateActivating
	r.active = w
	if r.waiting == w {
		r.waiting = nil
	}
	r.mu.Unlock()

	deleted, cleanErr := r.deleteExcept(ctx, w.bucket)

	r.mu.Lock()
	w.state = StateActivated
	info := w.info()
	r.mu.Unlock()

	r.persist(ctx)
	r.observer.Activated(w.version)
	r.observer.BucketsDeleted(deleted)
	r.logger.Info("asset cache activated",
		zap.String("version", w.version),
		zap.Int("stale_buckets_deleted", deleted))
	r.notify(SignalControllerChanged, w.version)

	if cleanErr != nil {
		r.logger.Warn("deleting stale asset buckets", zap.Error(cleanErr))
		return info, fmt.Errorf("deleting stale buckets: %w", cleanErr)
	}
	return info, nil
}

func (r *Registration) deleteExcept(ctx context.Context, keep string) (int, error) {
	keys, err := r.store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	var errs []error
	for _, k := range keys {
		if k == keep {
			continue
		}
		ok, err := r.store.Delete(ctx, k)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		if ok {
			deleted++
		}
	}
	return deleted, errors.Join(errs...)
}

// Prune deletes every bucket that belongs to neither the active nor the
// waiting version.
func (r *Registration) Prune(ctx context.Context) (int, error) {
	r.lifecycle.Lock()
	defer r.lifecycle.Unlock()

	r.mu.Lock()
	keep := map[string]bool{}
	for _, w := range []*worker{r.active, r.waiting} {
		if w != nil {
			keep[w.bucket] = true
		}
	}
	r.mu.Unlock()

	keys, err := r.store.Keys(ctx)
	if err != nil {
		return 0, err
	}
	deleted := 0
	for _, k := range keys {
		if keep[k] {
			continue
		}
		ok, err := r.store.Delete(ctx, k)
		if err != nil {
			return deleted, err
		}
		if ok {
			deleted++
		}
	}
	r.observer.BucketsDeleted(deleted)
	return deleted, nil
}

// Match returns the active version's cached response for path.
func (r *Registration) Match(ctx context.Context, path string) (Asset, bool, error) {
	r.mu.Lock()
	w := r.active
	serving := w != nil && w.state == StateActivated
	r.mu.Unlock()
	if !serving {
		return Asset{}, false, nil
	}
	return r.store.Match(ctx, w.bucket, path)
}

// ActiveEntries lists the paths cached by the active version.
func (r *Registration) ActiveEntries(ctx context.Context) ([]string, error) {
	info, ok := r.Active()
	if !ok {
		return nil, ErrNotActive
	}
	return r.store.Entries(ctx, info.Bucket)
}

// Active returns the serving version.
func (r *Registration) Active() (WorkerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.active == nil {
		return WorkerInfo{}, false
	}
	return r.active.info(), true
}

// Waiting returns the version waiting to be promoted.
func (r *Registration) Waiting() (WorkerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.waiting == nil {
		return WorkerInfo{}, false
	}
	return r.waiting.info(), true
}

// Installing returns the version currently being installed.
func (r *Registration) Installing() (WorkerInfo, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.installing == nil {
		return WorkerInfo{}, false
	}
	return r.installing.info(), true
}

func (r *Registration) persist(ctx context.Context) {
	r.mu.Lock()
	var rec Record
	if r.active != nil {
		rec.Active = r.active.version
	}
	if r.waiting != nil {
		rec.Waiting = r.waiting.version
	}
	r.mu.Unlock()

	if err := r.store.SaveRecord(ctx, rec); err != nil {
		r.logger.Warn("persisting asset cache registration", zap.Error(err))
	}
}

func (r *Registration) notify(sig Signal, version string) {
	r.mu.Lock()
	notifiers := append([]Notifier(nil), r.notifiers...)
	r.mu.Unlock()
	for _, n := range notifiers {
		n.Notify(sig, version)
	}
}
