package grid

import (
	"fmt"

	"github.com/paulmach/orb"
)

// Content classifies what occupies a cell
type Content int

const (
	Empty Content = iota
	Wall
	Goal
)

func (c Content) String() string {
	switch c {
	case Wall:
		return "wall"
	case Goal:
		return "goal"
	default:
		return "empty"
	}
}

// ParseContent is the inverse of Content.String
func ParseContent(s string) (Content, error) {
	switch s {
	case "empty", "":
		return Empty, nil
	case "wall":
		return Wall, nil
	case "goal":
		return Goal, nil
	}
	return Empty, fmt.Errorf("unknown cell content %q", s)
}

// Coord is the identity of a cell: its snapped center coordinate
type Coord struct {
	X, Y int
}

// Cell is a grid-snapped coordinate plus a content tag.
// Two cells are the same cell iff their coordinates match.
type Cell struct {
	X       int     `json:"x"`
	Y       int     `json:"y"`
	Content Content `json:"content"`
}

// NewCell builds an empty cell at the given center coordinate
func NewCell(x, y int) Cell {
	return Cell{X: x, Y: y}
}

func (c Cell) Coord() Coord { return Coord{X: c.X, Y: c.Y} }

// Same reports whether two cells share a coordinate, ignoring content
func (c Cell) Same(other Cell) bool {
	return c.X == other.X && c.Y == other.Y
}

func (c Cell) IsWall() bool { return c.Content == Wall }

// Point returns the cell center as an orb point
func (c Cell) Point() orb.Point {
	return orb.Point{float64(c.X), float64(c.Y)}
}

func (c Cell) String() string {
	return fmt.Sprintf("(%d, %d %s)", c.X, c.Y, c.Content)
}
