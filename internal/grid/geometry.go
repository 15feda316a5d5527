package grid

import (
	"math"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"
)

// Distance calculates Euclidean distance between two cell centers
func Distance(a, b Cell) float64 {
	return planar.Distance(a.Point(), b.Point())
}

// Manhattan returns the axis-aligned distance between two cell centers
func Manhattan(a, b Cell) float64 {
	return math.Abs(float64(a.X-b.X)) + math.Abs(float64(a.Y-b.Y))
}

// FitToGrid snaps a real-valued coordinate to the center of the cell
// containing it: index*size + size/2.
func FitToGrid(v float64, size int) int {
	idx := int(math.Floor(v / float64(size)))
	return idx*size + size/2
}

// Snap converts a real-valued position to the empty cell containing it
func Snap(p orb.Point, size int) Cell {
	return NewCell(FitToGrid(p[0], size), FitToGrid(p[1], size))
}

// index maps a snapped center coordinate back to its grid index
func index(v, size int) int {
	return floorDiv(v-size/2, size)
}

func center(i, size int) int {
	return i*size + size/2
}

func floorDiv(a, b int) int {
	q := a / b
	if (a%b != 0) && ((a < 0) != (b < 0)) {
		q--
	}
	return q
}

// Bearing returns the turn in degrees needed to face `to` from `from` when the
// current heading is `heading`, normalized to (-180, 180].
func Bearing(from, to orb.Point, heading float64) float64 {
	angle := math.Atan2(to[1]-from[1], to[0]-from[0]) * 180 / math.Pi
	return NormalizeAngle(angle - heading)
}

// NormalizeAngle wraps degrees into (-180, 180]
func NormalizeAngle(deg float64) float64 {
	deg = math.Mod(deg, 360)
	if deg > 180 {
		deg -= 360
	} else if deg <= -180 {
		deg += 360
	}
	return deg
}
