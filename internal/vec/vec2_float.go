package vec

import "math"

// Vec2Float is a floating-point 2D coordinate, used for chunk-grid
// streaming radius checks where the integer Vec2 Chebyshev prefilter isn't
// precise enough and an actual Euclidean distance is needed.
type Vec2Float struct {
	X, Y float64
}

// ToVec2 truncates to integer chunk-grid coordinates.
func (v Vec2Float) ToVec2() Vec2 {
	return Vec2{X: int(v.X), Y: int(v.Y)}
}

// FromVec2 builds a Vec2Float from an integer Vec2.
func FromVec2(v Vec2) Vec2Float {
	return Vec2Float{X: float64(v.X), Y: float64(v.Y)}
}

// Add returns the sum of two vectors.
func (v Vec2Float) Add(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X + other.X, Y: v.Y + other.Y}
}

// Sub returns the difference of two vectors.
func (v Vec2Float) Sub(other Vec2Float) Vec2Float {
	return Vec2Float{X: v.X - other.X, Y: v.Y - other.Y}
}

// Mul scales the vector by a scalar.
func (v Vec2Float) Mul(scalar float64) Vec2Float {
	return Vec2Float{X: v.X * scalar, Y: v.Y * scalar}
}

// Normalized returns a unit vector in the same direction, or the zero
// vector if v has zero length.
func (v Vec2Float) Normalized() Vec2Float {
	length := v.Length()
	if length == 0 {
		return Vec2Float{}
	}
	return Vec2Float{X: v.X / length, Y: v.Y / length}
}

// Length returns the vector's magnitude.
func (v Vec2Float) Length() float64 {
	return math.Sqrt(v.X*v.X + v.Y*v.Y)
}

// DistanceTo returns the Euclidean distance to other.
func (v Vec2Float) DistanceTo(other Vec2Float) float64 {
	dx := v.X - other.X
	dy := v.Y - other.Y
	return math.Sqrt(dx*dx + dy*dy)
}
