package storage

import (
	"context"

	"github.com/tessera-mmo/core/internal/cache"
)

// ColdStorageAdapter adapts *ChunkStore to internal/cache.ColdStorage, so
// RedisCache's write-behind flush and read-through miss path land on the
// same BadgerDB that backs chunk persistence.
type ColdStorageAdapter struct {
	store *ChunkStore
}

// NewColdStorageAdapter wraps store as a cache.ColdStorage.
func NewColdStorageAdapter(store *ChunkStore) *ColdStorageAdapter {
	return &ColdStorageAdapter{store: store}
}

func (a *ColdStorageAdapter) Load(_ context.Context, key string) ([]byte, error) {
	data, ok, err := a.store.LoadRaw(key)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, cache.ErrCacheMiss
	}
	return data, nil
}

func (a *ColdStorageAdapter) Store(_ context.Context, key string, value []byte) error {
	return a.store.StoreRaw(key, value)
}

func (a *ColdStorageAdapter) BatchLoad(_ context.Context, keys []string) (map[string][]byte, error) {
	return a.store.BatchLoadRaw(keys)
}

func (a *ColdStorageAdapter) BatchStore(_ context.Context, items map[string][]byte) error {
	return a.store.BatchStoreRaw(items)
}

func (a *ColdStorageAdapter) Close() error {
	return a.store.Close()
}
