package stop

import (
	"context"
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisBlobStore is a BlobStore backed by Redis, shared by the API and worker.
type RedisBlobStore struct {
	client redis.UniversalClient
	prefix string
}

// NewRedisBlobStore creates a Redis blob store. Keys are written as prefix+key.
func NewRedisBlobStore(client redis.UniversalClient, prefix string) *RedisBlobStore {
	return &RedisBlobStore{client: client, prefix: prefix}
}

// Get reads a key.
func (s *RedisBlobStore) Get(ctx context.Context, key string) ([]byte, error) {
	data, err := s.client.Get(ctx, s.prefix+key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrBlobNotFound
		}
		return nil, err
	}
	return data, nil
}

// Set writes a key with no expiry.
func (s *RedisBlobStore) Set(ctx context.Context, key string, value []byte) error {
	return s.client.Set(ctx, s.prefix+key, value, 0).Err()
}

// Ping checks the Redis connection.
func (s *RedisBlobStore) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

var _ BlobStore = (*RedisBlobStore)(nil)
