// Package tilemap implements the core's tile map data model (§3.3, §4.1):
// chunked, layered tiles, Morton-ordered within a chunk, with streaming
// dirty-tracking and a tagged binary persistence format (§6.1).
//
// Chunks are created lazily and changes are tracked per tile; there is no
// locking inside the package. Layers carry their kind and wall type, but
// the one-Floor/two-Wall-slot constraint is not enforced.
package tilemap

import "github.com/tessera-mmo/core/internal/vec"

// LayerKind классифицирует слой тайла (§3.3).
type LayerKind uint8

const (
	LayerFloor LayerKind = iota
	LayerFloorCovering
	LayerWall
	LayerObject
)

// WallType помечает, какую из двух разрешённых стен представляет слой
// (§3.3 — "At most two Wall slots with wall-type tag").
type WallType uint8

const (
	WallNone WallType = iota
	WallWest
	WallNorth
	WallNorthWestGapFill
	WallNorthEastGapFill
)

// SpriteID идентифицирует визуальный/коллизионный ресурс слоя. Ядро не
// интерпретирует его смысл за пределами таблицы SpriteRegistry (out of
// scope: asset loading, §1).
type SpriteID int32

// EmptySpriteID — зарезервированный id, означающий отсутствие спрайта.
const EmptySpriteID SpriteID = -1

// Layer — один слот в стеке слоёв тайла (§3.3).
type Layer struct {
	Kind        LayerKind
	SpriteID    SpriteID
	WallType    WallType // значим только при Kind == LayerWall
	Collidable  bool     // true если спрайт слоя имеет collisionEnabled
	WorldBounds vec.Box  // значим только при Collidable; §4.1 invariant
}

// IsEmpty сообщает, что слой не несёт визуальных данных.
func (l Layer) IsEmpty() bool { return l.SpriteID == EmptySpriteID }

// EmptyLayer возвращает пустой слой указанного вида.
func EmptyLayer(kind LayerKind) Layer {
	return Layer{Kind: kind, SpriteID: EmptySpriteID}
}

// Tile — упорядоченный стек слоёв (§3.3). Индекс 0 зарезервирован за Floor
// по соглашению. Ни Tile, ни TileMap.SetLayer не проверяют инварианты (один
// Floor, не более двух Wall): SetLayer лишь определяет collisionEnabled по
// SpriteRegistry.
type Tile struct {
	Layers []Layer
}

// LayerCount возвращает число слоёв, включая пустые (tileLayerCount чанка
// считает только непустые, см. NonEmptyLayerCount).
func (t *Tile) LayerCount() int { return len(t.Layers) }

// NonEmptyLayerCount считает непустые слои — именно это число управляет
// lazily-created/deleted lifecycle чанка (§3.3).
func (t *Tile) NonEmptyLayerCount() int {
	count := 0
	for _, l := range t.Layers {
		if !l.IsEmpty() {
			count++
		}
	}
	return count
}

// At возвращает слой по индексу, либо пустой слой Object, если индекс вне
// текущей длины стека.
func (t *Tile) At(index int) Layer {
	if index < 0 || index >= len(t.Layers) {
		return EmptyLayer(LayerObject)
	}
	return t.Layers[index]
}
