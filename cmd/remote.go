package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/ziadkadry99/catechiseme/internal/assetcache"
)

var (
	cacheServer string
	cacheLocal  bool
)

// cacheClient drives the asset cache of a running server, so lifecycle
// changes reach its pages instead of happening behind its back.
type cacheClient struct {
	baseURL string
	client  *http.Client
}

func newCacheClient(baseURL string) *cacheClient {
	return &cacheClient{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		client:  &http.Client{Timeout: 30 * time.Second},
	}
}

// runningServer returns a client for the server the cache commands should go
// through, if one answers its health check.
func runningServer(ctx context.Context, port int) (*cacheClient, bool) {
	if cacheLocal {
		return nil, false
	}
	base := cacheServer
	if base == "" {
		base = fmt.Sprintf("http://127.0.0.1:%d", port)
	}
	c := newCacheClient(base)
	if !c.alive(ctx) {
		if cacheServer != "" {
			fmt.Printf("Server %s is not reachable; using the local store\n", base)
		}
		return nil, false
	}
	return c, true
}

func (c *cacheClient) alive(ctx context.Context) bool {
	if ctx == nil {
		ctx = context.Background()
	}
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return false
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return false
	}
	resp.Body.Close()
	return resp.StatusCode == http.StatusOK
}

func (c *cacheClient) promote(ctx context.Context) (assetcache.WorkerInfo, error) {
	var info assetcache.WorkerInfo
	status, err := c.post(ctx, "/sw/promote", &info)
	if status == http.StatusConflict {
		return info, assetcache.ErrNoWaiting
	}
	return info, err
}

func (c *cacheClient) prune(ctx context.Context) (int, error) {
	var body struct {
		Deleted int `json:"deleted"`
	}
	_, err := c.post(ctx, "/sw/prune", &body)
	return body.Deleted, err
}

func (c *cacheClient) post(ctx context.Context, path string, out any) (int, error) {
	if ctx == nil {
		ctx = context.Background()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+path, nil)
	if err != nil {
		return 0, err
	}
	resp, err := c.client.Do(req)
	if err != nil {
		return 0, fmt.Errorf("calling %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		var e struct {
			Error string `json:"error"`
		}
		json.NewDecoder(resp.Body).Decode(&e)
		return resp.StatusCode, fmt.Errorf("%s: status %d: %s", path, resp.StatusCode, e.Error)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return resp.StatusCode, fmt.Errorf("decoding %s response: %w", path, err)
	}
	return resp.StatusCode, nil
}
