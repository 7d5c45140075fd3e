package assetcache

import (
	"net/http"
	"strconv"

	"go.uber.org/zap"
)

// CacheHeader marks responses served from the active bucket.
const CacheHeader = "X-Cache"

// Middleware answers GET requests from the active version's bucket and falls
// through to next on a miss. Nothing is added to the cache at request time.
func (r *Registration) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		if req.Method != http.MethodGet || bypassed(req.Context()) {
			next.ServeHTTP(w, req)
			return
		}

		path := req.URL.Path
		asset, ok, err := r.Match(req.Context(), path)
		if err != nil {
			r.logger.Warn("asset cache lookup", zap.String("path", path), zap.Error(err))
		}
		if err != nil || !ok {
			r.observer.CacheMiss(path)
			next.ServeHTTP(w, req)
			return
		}

		r.observer.CacheHit(path)
		h := w.Header()
		for k, vs := range asset.Header {
			for _, v := range vs {
				h.Add(k, v)
			}
		}
		if asset.ContentType != "" {
			h.Set("Content-Type", asset.ContentType)
		}
		h.Set("Content-Length", strconv.Itoa(len(asset.Body)))
		h.Set(CacheHeader, "HIT")
		w.WriteHeader(asset.Status)
		_, _ = w.Write(asset.Body)
	})
}
