// Package storage provides cold storage for tile-map chunks: a
// BadgerDB-backed key-value store keyed on chunk position, holding the
// exact bytes internal/tilemap.EncodeChunkSnapshot produces. This is a
// per-chunk complement to internal/tilemap.Save/Load's flat-file full-map
// snapshot (§6.1) — the flat file remains the canonical whole-map format;
// ChunkStore exists so a single hot/dirty chunk can be persisted or
// recovered without re-encoding the whole map, and so internal/cache's
// write-behind hot cache has somewhere to flush to.
package storage

import (
	"fmt"
	"path/filepath"
	"sync"

	"github.com/dgraph-io/badger/v3"
	"github.com/tessera-mmo/core/internal/tilemap"
)

// ChunkStore is a BadgerDB-backed cold store for individual chunk
// snapshots, keyed "chunk:X:Y:Z".
type ChunkStore struct {
	db      *badger.DB
	mutex   sync.RWMutex
	isReady bool
}

// NewChunkStore opens (creating if absent) a BadgerDB database under
// dataPath/chunks.
func NewChunkStore(dataPath string) (*ChunkStore, error) {
	dbPath := filepath.Join(dataPath, "chunks")
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = nil

	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("не удалось открыть BadgerDB: %w", err)
	}

	return &ChunkStore{db: db, isReady: true}, nil
}

// Close closes the underlying database.
func (s *ChunkStore) Close() error {
	s.mutex.Lock()
	defer s.mutex.Unlock()

	if !s.isReady {
		return nil
	}
	s.isReady = false
	return s.db.Close()
}

func chunkKey(pos tilemap.ChunkPos) []byte {
	return []byte(fmt.Sprintf("chunk:%d:%d:%d", pos.X, pos.Y, pos.Z))
}

// Store persists a single chunk's encoded snapshot.
func (s *ChunkStore) Store(pos tilemap.ChunkPos, snapshot []byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return fmt.Errorf("хранилище чанков не готово")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set(chunkKey(pos), snapshot)
	})
}

// BatchStore persists several chunk snapshots in one transaction.
// internal/cache's write-behind flush does not call it: it goes through
// ColdStorageAdapter, which uses BatchStoreRaw.
func (s *ChunkStore) BatchStore(snapshots map[tilemap.ChunkPos][]byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return fmt.Errorf("хранилище чанков не готово")
	}

	return s.db.Update(func(txn *badger.Txn) error {
		for pos, snapshot := range snapshots {
			if err := txn.Set(chunkKey(pos), snapshot); err != nil {
				return err
			}
		}
		return nil
	})
}

// Load returns the encoded snapshot for pos, or (nil, false) if absent.
func (s *ChunkStore) Load(pos tilemap.ChunkPos) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, false, fmt.Errorf("хранилище чанков не готово")
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(chunkKey(pos))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})

	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения чанка из BadgerDB: %w", err)
	}
	return data, true, nil
}

// SaveChunk is a convenience wrapper that encodes c before storing it.
func (s *ChunkStore) SaveChunk(c *tilemap.Chunk) error {
	data, err := tilemap.EncodeChunkSnapshot(c)
	if err != nil {
		return fmt.Errorf("ошибка кодирования чанка: %w", err)
	}
	return s.Store(c.Pos, data)
}

// LoadChunk loads and decodes the chunk at pos, or (nil, false) if absent.
func (s *ChunkStore) LoadChunk(pos tilemap.ChunkPos, sprites tilemap.SpriteRegistry) (*tilemap.Chunk, bool, error) {
	data, ok, err := s.Load(pos)
	if err != nil || !ok {
		return nil, ok, err
	}
	c, err := tilemap.DecodeChunkSnapshot(data, sprites)
	if err != nil {
		return nil, false, fmt.Errorf("ошибка декодирования чанка: %w", err)
	}
	return c, true, nil
}

// LoadRaw/StoreRaw/BatchStoreRaw/BatchLoadRaw address the store by an
// arbitrary string key rather than a ChunkPos — the surface
// internal/storage.ColdStorageAdapter needs to satisfy internal/cache.
// ColdStorage, whose keys are already-formatted strings chosen by the
// caller (e.g. "chunk:1:2:0").
func (s *ChunkStore) LoadRaw(key string) ([]byte, bool, error) {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return nil, false, fmt.Errorf("хранилище чанков не готово")
	}

	var data []byte
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		return item.Value(func(val []byte) error {
			data = append([]byte{}, val...)
			return nil
		})
	})
	if err == badger.ErrKeyNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("ошибка чтения из BadgerDB: %w", err)
	}
	return data, true, nil
}

func (s *ChunkStore) StoreRaw(key string, value []byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return fmt.Errorf("хранилище чанков не готово")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte(key), value)
	})
}

func (s *ChunkStore) BatchStoreRaw(items map[string][]byte) error {
	s.mutex.RLock()
	defer s.mutex.RUnlock()

	if !s.isReady {
		return fmt.Errorf("хранилище чанков не готово")
	}
	return s.db.Update(func(txn *badger.Txn) error {
		for key, value := range items {
			if err := txn.Set([]byte(key), value); err != nil {
				return err
			}
		}
		return nil
	})
}

func (s *ChunkStore) BatchLoadRaw(keys []string) (map[string][]byte, error) {
	result := make(map[string][]byte, len(keys))
	for _, key := range keys {
		val, ok, err := s.LoadRaw(key)
		if err != nil {
			return nil, err
		}
		if ok {
			result[key] = val
		}
	}
	return result, nil
}
