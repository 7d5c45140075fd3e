package assetcache

// Observer receives cache events, typically to record metrics.
type Observer interface {
	CacheHit(path string)
	CacheMiss(path string)
	Installed(version string, ok bool)
	Activated(version string)
	BucketsDeleted(n int)
	ClientsConnected(n int)
}

type nopObserver struct{}

func (nopObserver) CacheHit(string)        {}
func (nopObserver) CacheMiss(string)       {}
func (nopObserver) Installed(string, bool) {}
func (nopObserver) Activated(string)       {}
func (nopObserver) BucketsDeleted(int)     {}
func (nopObserver) ClientsConnected(int)   {}

// Signal is a message from the cache to every page context.
type Signal string

const (
	// SignalUpdateAvailable tells pages a new version is waiting to be promoted.
	SignalUpdateAvailable Signal = "update-available"
	// SignalControllerChanged tells pages the active version changed and they
	// must reload.
	SignalControllerChanged Signal = "controller-changed"
)

// Notifier delivers signals to page contexts.
type Notifier interface {
	Notify(sig Signal, version string)
}
