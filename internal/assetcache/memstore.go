package assetcache

import (
	"context"
	"net/http"
	"sort"
	"sync"
)

// MemoryStore is a Store that lives only as long as the process.
type MemoryStore struct {
	mu      sync.RWMutex
	order   []string
	buckets map[string]map[string]Asset
	record  Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{buckets: make(map[string]map[string]Asset)}
}

func (m *MemoryStore) Keys(ctx context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.order...), nil
}

func (m *MemoryStore) Has(ctx context.Context, bucket string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[bucket]
	return ok, nil
}

func (m *MemoryStore) Put(ctx context.Context, bucket string, assets []Asset) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	next := make(map[string]Asset, len(m.buckets[bucket])+len(assets))
	for p, a := range m.buckets[bucket] {
		next[p] = a
	}
	for _, a := range assets {
		next[a.Path] = cloneAsset(a)
	}

	if _, ok := m.buckets[bucket]; !ok {
		m.order = append(m.order, bucket)
	}
	m.buckets[bucket] = next
	return nil
}

func (m *MemoryStore) Match(ctx context.Context, bucket, path string) (Asset, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.buckets[bucket][path]
	if !ok {
		return Asset{}, false, nil
	}
	return cloneAsset(a), true, nil
}

func (m *MemoryStore) Entries(ctx context.Context, bucket string) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	paths := make([]string, 0, len(m.buckets[bucket]))
	for p := range m.buckets[bucket] {
		paths = append(paths, p)
	}
	sort.Strings(paths)
	return paths, nil
}

func (m *MemoryStore) Delete(ctx context.Context, bucket string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.buckets[bucket]; !ok {
		return false, nil
	}
	delete(m.buckets, bucket)
	for i, name := range m.order {
		if name == bucket {
			m.order = append(m.order[:i], m.order[i+1:]...)
			break
		}
	}
	return true, nil
}

func (m *MemoryStore) LoadRecord(ctx context.Context) (Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.record, nil
}

func (m *MemoryStore) SaveRecord(ctx context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.record = rec
	return nil
}

func cloneAsset(a Asset) Asset {
	out := a
	out.Header = a.Header.Clone()
	if out.Header == nil {
		out.Header = http.Header{}
	}
	out.Body = append([]byte(nil), a.Body...)
	return out
}
