package tilemap

import "github.com/tessera-mmo/core/internal/vec"

// SpriteInfo describes the collision-relevant facts about a sprite asset
// that the core needs; everything else about rendering an asset (texture,
// animation frames) is out of scope (§1 — asset loading from disk).
type SpriteInfo struct {
	ID               SpriteID
	CollisionEnabled bool
	ModelBounds      vec.Box // local-space bounds, translated to world origin at insertion
}

// SpriteRegistry resolves sprite ids to their collision metadata. The core
// does not load assets; a project wires its own resolver (e.g. backed by
// the resource importer's output) and passes it to TileMap.
type SpriteRegistry interface {
	Lookup(id SpriteID) (SpriteInfo, bool)
}

// StaticSpriteRegistry is a simple in-memory SpriteRegistry, sufficient for
// the core and for tests; a real deployment may back this with a file
// loaded by the (out-of-scope) resource importer.
type StaticSpriteRegistry struct {
	sprites map[SpriteID]SpriteInfo
}

// NewStaticSpriteRegistry создаёт реестр спрайтов в памяти.
func NewStaticSpriteRegistry() *StaticSpriteRegistry {
	return &StaticSpriteRegistry{sprites: make(map[SpriteID]SpriteInfo)}
}

// Register добавляет или заменяет запись о спрайте.
func (r *StaticSpriteRegistry) Register(info SpriteInfo) {
	r.sprites[info.ID] = info
}

// Lookup implements SpriteRegistry.
func (r *StaticSpriteRegistry) Lookup(id SpriteID) (SpriteInfo, bool) {
	info, ok := r.sprites[id]
	return info, ok
}
