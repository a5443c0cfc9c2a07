package stop

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// StoreKey is the fixed key the stop list is stored under. The mobile app
// and widget read the same key.
const StoreKey = "savedTransportStops"

// ErrBlobNotFound is returned by a BlobStore when the key has never been written.
var ErrBlobNotFound = errors.New("blob not found")

// BlobStore is a byte key-value store shared across processes.
type BlobStore interface {
	Get(ctx context.Context, key string) ([]byte, error)
	Set(ctx context.Context, key string, value []byte) error
}

// Store loads and saves the whole stop list.
type Store interface {
	Load(ctx context.Context) ([]Record, error)
	Save(ctx context.Context, records []Record) error
}

// RecordStore persists the stop list as one JSON blob.
type RecordStore struct {
	blobs BlobStore
	key   string
}

// NewRecordStore creates a store over blobs using StoreKey.
func NewRecordStore(blobs BlobStore) *RecordStore {
	return &RecordStore{blobs: blobs, key: StoreKey}
}

// Load reads the stop list. A key that was never written is an empty list.
func (s *RecordStore) Load(ctx context.Context) ([]Record, error) {
	data, err := s.blobs.Get(ctx, s.key)
	if err != nil {
		if errors.Is(err, ErrBlobNotFound) {
			return nil, nil
		}
		return nil, fmt.Errorf("loading stops: %w", err)
	}
	return DecodeRecords(data)
}

// Save replaces the stored stop list.
func (s *RecordStore) Save(ctx context.Context, records []Record) error {
	data, err := EncodeRecords(records)
	if err != nil {
		return err
	}
	if err := s.blobs.Set(ctx, s.key, data); err != nil {
		return fmt.Errorf("saving stops: %w", err)
	}
	return nil
}

var _ Store = (*RecordStore)(nil)

// MemoryBlobStore is an in-memory BlobStore.
// This is intended for testing and single-process development.
type MemoryBlobStore struct {
	mu    sync.RWMutex
	blobs map[string][]byte
}

// NewMemoryBlobStore creates an empty in-memory blob store.
func NewMemoryBlobStore() *MemoryBlobStore {
	return &MemoryBlobStore{blobs: make(map[string][]byte)}
}

// Get returns a copy of the stored value.
func (m *MemoryBlobStore) Get(_ context.Context, key string) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	v, ok := m.blobs[key]
	if !ok {
		return nil, ErrBlobNotFound
	}

	cpy := make([]byte, len(v))
	copy(cpy, v)
	return cpy, nil
}

// Set stores a copy of value.
func (m *MemoryBlobStore) Set(_ context.Context, key string, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	cpy := make([]byte, len(value))
	copy(cpy, value)
	m.blobs[key] = cpy
	return nil
}

var _ BlobStore = (*MemoryBlobStore)(nil)
