package planner

import (
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
)

// DefaultMinSimplifyLen is the shortest dense path worth compressing
const DefaultMinSimplifyLen = 5

// Simplifier compresses dense A* routes into line-of-sight waypoints
type Simplifier struct {
	planner *Planner
	minLen  int
}

func NewSimplifier(p *Planner, minLen int) *Simplifier {
	if minLen <= 0 {
		minLen = DefaultMinSimplifyLen
	}
	return &Simplifier{planner: p, minLen: minLen}
}

// Route plans from start to goal and simplifies the result
func (s *Simplifier) Route(start, goal grid.Cell) (*Path, error) {
	dense, err := s.planner.FindPath(start, goal)
	if err != nil {
		return nil, err
	}
	return s.Simplify(dense), nil
}

// Simplify walks the dense path keeping a confirmed waypoint and pushing a
// look-ahead cursor forward while the straight line to it stays clear. When
// the line would cross a wall, the last clear candidate becomes a waypoint and
// scanning resumes from there. The start and the goal are always kept, and
// every consecutive pair of waypoints is mutually visible.
func (s *Simplifier) Simplify(dense *Path) *Path {
	cells := dense.Cells()
	if len(cells) < s.minLen {
		return NewPath(cells...)
	}

	g := s.planner.Graph()
	out := []grid.Cell{cells[0]}
	current := 0
	for current < len(cells)-1 {
		next := current + 1
		for looking := next + 1; looking < len(cells); looking++ {
			if !Visible(g, cells[current], cells[looking]) {
				break
			}
			next = looking
		}
		out = append(out, cells[next])
		current = next
	}
	return NewPath(out...)
}

// Visible reports whether the straight rasterized line between a and b runs
// only through known, non-wall cells.
func Visible(g *grid.Graph, a, b grid.Cell) bool {
	for _, c := range g.Rasterize(a, b) {
		if c.IsWall() || !g.Has(c) {
			return false
		}
	}
	return true
}
