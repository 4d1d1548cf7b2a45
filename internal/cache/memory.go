package cache

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Storage.
type Memory struct {
	mu      sync.RWMutex
	buckets map[string]*memoryBucket
	seq     int
}

type memoryBucket struct {
	name    string
	seq     int
	created time.Time

	mu      sync.RWMutex
	entries map[string]*Entry
	order   []string
	deleted bool
}

// NewMemory returns an empty in-memory Storage.
func NewMemory() *Memory {
	return &Memory{buckets: make(map[string]*memoryBucket)}
}

// Open returns the named bucket, creating it if needed.
func (m *Memory) Open(_ context.Context, name string) (Bucket, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		m.seq++
		b = &memoryBucket{
			name:    name,
			seq:     m.seq,
			created: time.Now().UTC(),
			entries: make(map[string]*Entry),
		}
		m.buckets[name] = b
	}
	return b, nil
}

// Has reports whether the named bucket exists.
func (m *Memory) Has(_ context.Context, name string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.buckets[name]
	return ok, nil
}

func (m *Memory) sorted() []*memoryBucket {
	buckets := make([]*memoryBucket, 0, len(m.buckets))
	for _, b := range m.buckets {
		buckets = append(buckets, b)
	}
	sort.Slice(buckets, func(i, j int) bool { return buckets[i].seq < buckets[j].seq })
	return buckets
}

// Keys returns bucket names in creation order.
func (m *Memory) Keys(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	names := []string{}
	for _, b := range m.sorted() {
		names = append(names, b.name)
	}
	return names, nil
}

// Delete removes the named bucket.
func (m *Memory) Delete(_ context.Context, name string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	b, ok := m.buckets[name]
	if !ok {
		return false, nil
	}
	b.mu.Lock()
	b.deleted = true
	b.mu.Unlock()
	delete(m.buckets, name)
	return true, nil
}

// Info summarizes every bucket.
func (m *Memory) Info(_ context.Context) ([]BucketInfo, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	infos := []BucketInfo{}
	for _, b := range m.sorted() {
		b.mu.RLock()
		info := BucketInfo{Name: b.name, Entries: len(b.entries), Created: b.created}
		for _, e := range b.entries {
			info.Bytes += int64(len(e.Body))
		}
		b.mu.RUnlock()
		infos = append(infos, info)
	}
	return infos, nil
}

// Close is a no-op.
func (m *Memory) Close() error {
	return nil
}

func (b *memoryBucket) Name() string {
	return b.name
}

func (b *memoryBucket) Match(_ context.Context, key string) (*Entry, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	e, ok := b.entries[key]
	if !ok {
		return nil, nil
	}
	c := *e
	c.Header = e.Header.Clone()
	return &c, nil
}

func (b *memoryBucket) Put(_ context.Context, e *Entry) error {
	c := *e
	c.Header = e.Header.Clone()
	c.Body = append([]byte(nil), e.Body...)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.deleted {
		return fmt.Errorf("put %s in %s: %w", e.Key, b.name, ErrBucketNotFound)
	}
	if _, ok := b.entries[e.Key]; !ok {
		b.order = append(b.order, e.Key)
	}
	b.entries[e.Key] = &c
	return nil
}

func (b *memoryBucket) Keys(_ context.Context) ([]string, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return append([]string{}, b.order...), nil
}
