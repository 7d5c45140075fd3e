package assetcache

import (
	"context"
	"net/http"
)

// Asset is one cached response.
type Asset struct {
	Path        string
	Status      int
	ContentType string
	Header      http.Header
	Body        []byte
}

// Record is the persisted registration: the versions of the active and
// waiting workers, if any.
type Record struct {
	Active  string
	Waiting string
}

// Store holds version-tagged asset buckets.
type Store interface {
	// Keys lists bucket names in creation order.
	Keys(ctx context.Context) ([]string, error)
	// Has reports whether the bucket exists.
	Has(ctx context.Context, bucket string) (bool, error)
	// Put stores every asset in bucket, creating it if needed. Either all
	// assets are stored or none are.
	Put(ctx context.Context, bucket string, assets []Asset) error
	// Match returns the asset cached under path in bucket.
	Match(ctx context.Context, bucket, path string) (Asset, bool, error)
	// Entries lists the paths cached in bucket.
	Entries(ctx context.Context, bucket string) ([]string, error)
	// Delete removes a bucket and everything in it.
	Delete(ctx context.Context, bucket string) (bool, error)

	LoadRecord(ctx context.Context) (Record, error)
	SaveRecord(ctx context.Context, rec Record) error
}
