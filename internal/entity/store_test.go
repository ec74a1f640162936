package entity

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInsertGetRemove(t *testing.T) {
	store := NewStore(NewPool())
	id := store.Spawn()

	Insert(store, id, Position{X: 1, Y: 2, Z: 0})
	pos, ok := Get[Position](store, id)
	require.True(t, ok)
	assert.Equal(t, 1.0, pos.X)
	assert.Equal(t, 2.0, pos.Y)

	Remove[Position](store, id)
	_, ok = Get[Position](store, id)
	assert.False(t, ok, "expected component removed")
}

func TestObserverOnlyFiresOnReplace(t *testing.T) {
	store := NewStore(NewPool())
	id := store.Spawn()
	obs := NewObserver[Position](store)

	Insert(store, id, Position{X: 0, Y: 0, Z: 0})
	assert.Empty(t, obs.Drain(), "plain Insert must not notify the observer")

	Replace(store, id, Position{X: 5, Y: 5, Z: 0})
	got := obs.Drain()
	require.Len(t, got, 1)
	assert.Equal(t, id, got[0])

	// Draining clears the log.
	assert.Empty(t, obs.Drain())
}

func TestDestroyRemovesFromAllColumns(t *testing.T) {
	store := NewStore(NewPool())
	id := store.Spawn()
	Insert(store, id, Position{})
	Insert(store, id, Movement{})

	store.Destroy(id)

	assert.False(t, Has[Position](store, id))
	assert.False(t, Has[Movement](store, id))

	for _, e := range store.Entities() {
		assert.NotEqual(t, id, e, "destroyed entity still present in iteration order")
	}
}

func TestReplicatedComponentListTracksAttachedTypes(t *testing.T) {
	store := NewStore(NewPool())
	id := store.Spawn()

	Insert(store, id, Position{})
	Insert(store, id, Movement{})

	list, ok := Get[ReplicatedComponentList](store, id)
	require.True(t, ok, "expected ReplicatedComponentList to be created by hooks")
	assert.True(t, list.has(ComponentPosition))
	assert.True(t, list.has(ComponentMovement))

	Remove[Position](store, id)
	list, _ = Get[ReplicatedComponentList](store, id)
	assert.False(t, list.has(ComponentPosition), "expected Position removed from list after Remove")
	assert.True(t, list.has(ComponentMovement), "expected Movement to remain in list")
}

func TestView4OnlyYieldsFullyComponentEntities(t *testing.T) {
	store := NewStore(NewPool())
	complete := store.Spawn()
	Insert(store, complete, Input{})
	Insert(store, complete, Position{})
	Insert(store, complete, Movement{})
	Insert(store, complete, Collision{})

	partial := store.Spawn()
	Insert(store, partial, Input{})
	Insert(store, partial, Position{})

	var seen []ID
	View4(store, func(id ID, _ Input, _ Position, _ Movement, _ Collision) bool {
		seen = append(seen, id)
		return true
	})
	require.Len(t, seen, 1)
	assert.Equal(t, complete, seen[0])
}

func TestPoolGenerationInvalidatesStaleIDs(t *testing.T) {
	pool := NewPool()
	id := pool.Allocate()
	assert.True(t, pool.IsLive(id), "freshly allocated id should be live")

	pool.Release(id)
	assert.False(t, pool.IsLive(id), "released id should not be live")

	reused := pool.Allocate()
	assert.NotEqual(t, id, reused, "expected a different generation after reuse")
	assert.Equal(t, id.index(), reused.index(), "expected the same slot index to be reused")
}
