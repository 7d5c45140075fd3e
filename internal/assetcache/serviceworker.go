package assetcache

import (
	"bytes"
	"encoding/json"
	"fmt"
	"net/http"
	"text/template"
)

// ServiceWorkerPath is where browsers expect the script.
const ServiceWorkerPath = "/service-worker.js"

var serviceWorkerTmpl = template.Must(template.New("sw").Parse(`// Generated for {{.Bucket}}. Do not edit.
const CACHE_PREFIX = {{.PrefixJSON}};
const CACHE_NAME = {{.BucketJSON}};
const ASSETS = {{.ManifestJSON}};

self.addEventListener("install", (event) => {
  event.waitUntil(caches.open(CACHE_NAME).then((cache) => cache.addAll(ASSETS)));
});

self.addEventListener("activate", (event) => {
  event.waitUntil(
    caches.keys()
      .then((keys) => Promise.all(keys.filter((k) => k !== CACHE_NAME).map((k) => caches.delete(k))))
      .then(() => self.clients.claim())
  );
});

self.addEventListener("fetch", (event) => {
  if (event.request.method !== "GET") {
    return;
  }
  event.respondWith(
    caches.open(CACHE_NAME)
      .then((cache) => cache.match(event.request))
      .then((hit) => hit || fetch(event.request))
  );
});

self.addEventListener("message", (event) => {
  if (event.data && event.data.type === "SKIP_WAITING") {
    self.skipWaiting();
  }
});
`))

// ServiceWorkerScript renders the browser-side counterpart of a cache version
// from the same prefix, version and manifest.
func ServiceWorkerScript(prefix, version string, manifest []string) ([]byte, error) {
	js := func(v any) (string, error) {
		b, err := json.Marshal(v)
		return string(b), err
	}
	bucket := BucketName(prefix, version)
	prefixJSON, err := js(prefix)
	if err != nil {
		return nil, err
	}
	bucketJSON, err := js(bucket)
	if err != nil {
		return nil, err
	}
	manifestJSON, err := js(manifest)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = serviceWorkerTmpl.Execute(&buf, map[string]string{
		"Bucket":       bucket,
		"PrefixJSON":   prefixJSON,
		"BucketJSON":   bucketJSON,
		"ManifestJSON": manifestJSON,
	})
	if err != nil {
		return nil, fmt.Errorf("rendering service worker: %w", err)
	}
	return buf.Bytes(), nil
}

// ServiceWorkerHandler serves the script for the waiting version, falling
// back to the active one. The script must never be
// cached by the browser or updates would not be seen.
func (r *Registration) ServiceWorkerHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
		info, ok := r.Waiting()
		if !ok {
			info, ok = r.Active()
		}
		if !ok {
			http.Error(w, "no asset cache version registered", http.StatusServiceUnavailable)
			return
		}

		body, err := ServiceWorkerScript(r.prefix, info.Version, r.manifest)
		if err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		w.Header().Set("Content-Type", "text/javascript; charset=utf-8")
		w.Header().Set("Service-Worker-Allowed", "/")
		w.Header().Set("Cache-Control", "no-cache")
		_, _ = w.Write(body)
	})
}
