package vec

// Box — axis-aligned world-space bounding box, shared by the entity
// collision component and the tile map's sprite model bounds (§3.2, §4.1).
type Box struct {
	MinX, MinY, MinZ float64
	MaxX, MaxY, MaxZ float64
}

// Translated returns a Box shifted by the given offset.
func (b Box) Translated(dx, dy, dz float64) Box {
	return Box{
		MinX: b.MinX + dx, MinY: b.MinY + dy, MinZ: b.MinZ + dz,
		MaxX: b.MaxX + dx, MaxY: b.MaxY + dy, MaxZ: b.MaxZ + dz,
	}
}

// Intersects reports whether two AABBs overlap on every axis.
func (b Box) Intersects(other Box) bool {
	return b.MinX < other.MaxX && b.MaxX > other.MinX &&
		b.MinY < other.MaxY && b.MaxY > other.MinY &&
		b.MinZ < other.MaxZ && b.MaxZ > other.MinZ
}
