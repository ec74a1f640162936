package vec

// Vec2 is an integer 2D coordinate in chunk-grid space: chunk streaming
// distance checks only need X/Y, since a chunk's Z plane is requested
// explicitly by the client and isn't part of the radius cull.
type Vec2 struct {
	X, Y int
}

// ChebyshevDistance returns the Chebyshev (chessboard) distance to other —
// the metric a square streaming radius is culled against, where a chunk one
// step diagonally away is exactly as "close" as one step orthogonally.
func (v Vec2) ChebyshevDistance(other Vec2) int {
	dx := absInt(v.X - other.X)
	dy := absInt(v.Y - other.Y)
	if dx > dy {
		return dx
	}
	return dy
}

func absInt(n int) int {
	if n < 0 {
		return -n
	}
	return n
}
