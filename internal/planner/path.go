package planner

import (
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/planar"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
)

// Path is an ordered route from a start cell to a goal cell. It is either the
// dense cell-by-cell route found by the planner or a sparse waypoint route
// produced by the simplifier. Next consumes it from the start end.
type Path struct {
	cells []grid.Cell
}

// NewPath builds a path over the given cells, start first
func NewPath(cells ...grid.Cell) *Path {
	return &Path{cells: append([]grid.Cell(nil), cells...)}
}

// Cells returns a copy of the remaining cells
func (p *Path) Cells() []grid.Cell {
	if p == nil {
		return nil
	}
	return append([]grid.Cell(nil), p.cells...)
}

func (p *Path) Len() int {
	if p == nil {
		return 0
	}
	return len(p.cells)
}

// Empty reports whether the path is missing or fully consumed
func (p *Path) Empty() bool { return p.Len() == 0 }

// Next takes the next cell off the path
func (p *Path) Next() (grid.Cell, bool) {
	if p.Empty() {
		return grid.Cell{}, false
	}
	c := p.cells[0]
	p.cells = p.cells[1:]
	return c, true
}

// Peek returns the next cell without consuming it
func (p *Path) Peek() (grid.Cell, bool) {
	if p.Empty() {
		return grid.Cell{}, false
	}
	return p.cells[0], true
}

// Goal returns the last cell of the path
func (p *Path) Goal() (grid.Cell, bool) {
	if p.Empty() {
		return grid.Cell{}, false
	}
	return p.cells[len(p.cells)-1], true
}

// LineString returns the path geometry
func (p *Path) LineString() orb.LineString {
	ls := make(orb.LineString, 0, p.Len())
	for _, c := range p.Cells() {
		ls = append(ls, c.Point())
	}
	return ls
}

// Length is the Euclidean length of the route
func (p *Path) Length() float64 {
	return planar.Length(p.LineString())
}
