package assetcache

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
)

// Fetcher retrieves an asset from the network, bypassing the cache.
type Fetcher interface {
	Fetch(ctx context.Context, path string) (Asset, error)
}

// FetchError reports a fetch that completed with a non-success status.
type FetchError struct {
	Path   string
	Status int
}

func (e *FetchError) Error() string {
	return fmt.Sprintf("fetching %s: status %d", e.Path, e.Status)
}

type bypassKey struct{}

// WithBypass marks ctx so that Middleware passes the request straight to the
// network handler.
func WithBypass(ctx context.Context) context.Context {
	return context.WithValue(ctx, bypassKey{}, true)
}

func bypassed(ctx context.Context) bool {
	v, _ := ctx.Value(bypassKey{}).(bool)
	return v
}

// HandlerFetcher fetches assets by calling an in-process handler.
type HandlerFetcher struct {
	Handler http.Handler
}

func (f HandlerFetcher) Fetch(ctx context.Context, path string) (Asset, error) {
	req, err := http.NewRequestWithContext(WithBypass(ctx), http.MethodGet, path, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("building request for %s: %w", path, err)
	}

	rec := newBufferedResponse()
	f.Handler.ServeHTTP(rec, req)

	if err := ctx.Err(); err != nil {
		return Asset{}, err
	}
	return toAsset(path, rec.status, rec.header, rec.body.Bytes())
}

// HTTPFetcher fetches assets from a remote origin.
type HTTPFetcher struct {
	Client  *http.Client
	BaseURL string
}

func (f HTTPFetcher) Fetch(ctx context.Context, path string) (Asset, error) {
	target, err := url.JoinPath(f.BaseURL, path)
	if err != nil {
		return Asset{}, fmt.Errorf("resolving %s: %w", path, err)
	}
	// JoinPath drops the trailing slash of the root path.
	if strings.HasSuffix(path, "/") && !strings.HasSuffix(target, "/") {
		target += "/"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return Asset{}, fmt.Errorf("building request for %s: %w", path, err)
	}

	client := f.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return Asset{}, fmt.Errorf("fetching %s: %w", path, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Asset{}, fmt.Errorf("reading %s: %w", path, err)
	}
	return toAsset(path, resp.StatusCode, resp.Header, body)
}

func toAsset(path string, status int, header http.Header, body []byte) (Asset, error) {
	if status < 200 || status > 299 {
		return Asset{}, &FetchError{Path: path, Status: status}
	}
	h := header.Clone()
	// Hop-by-hop and length headers are recomputed when the asset is served.
	for _, k := range []string{"Content-Length", "Connection", "Transfer-Encoding", "Date", "Set-Cookie"} {
		h.Del(k)
	}
	return Asset{
		Path:        path,
		Status:      status,
		ContentType: header.Get("Content-Type"),
		Header:      h,
		Body:        body,
	}, nil
}

// bufferedResponse is a minimal in-memory http.ResponseWriter.
type bufferedResponse struct {
	header      http.Header
	status      int
	wroteHeader bool
	body        bytes.Buffer
}

func newBufferedResponse() *bufferedResponse {
	return &bufferedResponse{header: http.Header{}, status: http.StatusOK}
}

func (b *bufferedResponse) Header() http.Header { return b.header }

func (b *bufferedResponse) WriteHeader(status int) {
	if b.wroteHeader {
		return
	}
	b.status = status
	b.wroteHeader = true
}

func (b *bufferedResponse) Write(p []byte) (int, error) {
	if !b.wroteHeader {
		b.WriteHeader(http.StatusOK)
		if b.header.Get("Content-Type") == "" {
			b.header.Set("Content-Type", http.DetectContentType(p))
		}
	}
	return b.body.Write(p)
}
