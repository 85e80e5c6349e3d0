package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"sync"
	"time"
)

type memObject struct {
	data        []byte
	contentType string
	storedAt    time.Time
}

// MemoryStore is an in-process Store used by tests and local runs without a bucket.
type MemoryStore struct {
	mu      sync.RWMutex
	bucket  string
	objects map[string]memObject
}

func NewMemoryStore(bucket string) *MemoryStore {
	return &MemoryStore{bucket: bucket, objects: make(map[string]memObject)}
}

func (m *MemoryStore) Put(_ context.Context, key string, r io.Reader, opts PutOptions) (Info, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return Info{}, err
	}
	now := time.Now().UTC()
	m.mu.Lock()
	m.objects[key] = memObject{data: data, contentType: opts.ContentType, storedAt: now}
	m.mu.Unlock()
	return Info{
		Key:         key,
		Locator:     fmt.Sprintf("mem://%s/%s", m.bucket, key),
		Size:        int64(len(data)),
		ContentType: opts.ContentType,
		StoredAt:    now,
	}, nil
}

func (m *MemoryStore) Get(_ context.Context, key string) (io.ReadCloser, error) {
	m.mu.RLock()
	obj, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return nil, ErrNotFound
	}
	return io.NopCloser(bytes.NewReader(obj.data)), nil
}

func (m *MemoryStore) PresignURL(_ context.Context, key string, expiry time.Duration) (string, error) {
	m.mu.RLock()
	_, ok := m.objects[key]
	m.mu.RUnlock()
	if !ok {
		return "", ErrNotFound
	}
	return fmt.Sprintf("https://blob.local/%s/%s?expires=%d", m.bucket, key, int64(expiry.Seconds())), nil
}
