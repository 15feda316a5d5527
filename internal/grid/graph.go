package grid

import (
	"errors"
	"sort"

	"github.com/zyedidia/generic/mapset"
)

// ErrUnknownCell is returned when an operation names a cell the graph has
// never observed.
var ErrUnknownCell = errors.New("unknown cell")

// Graph is the occupancy graph: every discovered cell, the 4-neighbor
// adjacency between passable cells, and the subset not yet explored.
//
// Walls stay vertices but never carry edges. A cell is unexplored iff it is a
// known non-wall cell that has never been marked explored.
type Graph struct {
	cellSize   int
	cells      map[Coord]Cell
	edges      map[Coord]mapset.Set[Coord]
	unexplored mapset.Set[Coord]
	explored   mapset.Set[Coord]
	index      *spatialIndex
	edgeCount  int
	rev        uint64
}

// NewGraph creates an empty graph for cells of the given size
func NewGraph(cellSize int) *Graph {
	if cellSize <= 0 {
		cellSize = 1
	}
	return &Graph{
		cellSize:   cellSize,
		cells:      make(map[Coord]Cell),
		edges:      make(map[Coord]mapset.Set[Coord]),
		unexplored: mapset.New[Coord](),
		explored:   mapset.New[Coord](),
		index:      newSpatialIndex(),
	}
}

func (g *Graph) CellSize() int { return g.cellSize }

// Len is the number of known cells
func (g *Graph) Len() int { return len(g.cells) }

// EdgeCount is the number of undirected edges
func (g *Graph) EdgeCount() int { return g.edgeCount }

func (g *Graph) UnexploredCount() int { return g.unexplored.Size() }

// Revision changes whenever a cell, an edge or the explored set changes
func (g *Graph) Revision() uint64 { return g.rev }

// Has determines whether the graph contains a cell at c's coordinate
func (g *Graph) Has(c Cell) bool {
	_, ok := g.cells[c.Coord()]
	return ok
}

// Lookup returns the stored cell (with its content) at c's coordinate
func (g *Graph) Lookup(c Cell) (Cell, bool) {
	stored, ok := g.cells[c.Coord()]
	return stored, ok
}

// Snap returns the cell containing a real-valued position, using the stored
// content when the cell is already known.
func (g *Graph) Snap(x, y float64) Cell {
	c := NewCell(FitToGrid(x, g.cellSize), FitToGrid(y, g.cellSize))
	if stored, ok := g.cells[c.Coord()]; ok {
		return stored
	}
	return c
}

// AddVertex records c if its coordinate is new and links it to any of its
// four grid neighbors that are already known. Returns false when c was
// already present, in which case nothing changes.
func (g *Graph) AddVertex(c Cell) bool {
	k := c.Coord()
	if _, ok := g.cells[k]; ok {
		return false
	}
	g.cells[k] = c
	g.edges[k] = mapset.New[Coord]()
	g.index.insert(k)
	g.rev++

	if c.IsWall() {
		return true
	}
	if !g.explored.Has(k) {
		g.unexplored.Put(k)
	}
	for _, n := range g.gridNeighbors(k) {
		g.link(k, n)
	}
	return true
}

// SetContent reclassifies a known cell. A cell that becomes a wall loses its
// edges and leaves the unexplored set; a wall that turns out to be passable
// is linked back to its known neighbors.
func (g *Graph) SetContent(c Cell, content Content) error {
	k := c.Coord()
	stored, ok := g.cells[k]
	if !ok {
		return ErrUnknownCell
	}
	if stored.Content == content {
		return nil
	}
	wasWall := stored.IsWall()
	stored.Content = content
	g.cells[k] = stored
	g.rev++

	switch {
	case content == Wall:
		g.isolate(k)
		g.unexplored.Remove(k)
	case wasWall:
		if !g.explored.Has(k) {
			g.unexplored.Put(k)
		}
		for _, n := range g.gridNeighbors(k) {
			g.link(k, n)
		}
	}
	return nil
}

// AddEdge creates an undirected edge between two known, non-wall cells
func (g *Graph) AddEdge(a, b Cell) {
	g.link(a.Coord(), b.Coord())
}

// RemoveEdge drops the edge between a and b if there is one
func (g *Graph) RemoveEdge(a, b Cell) {
	ka, kb := a.Coord(), b.Coord()
	ea, ok := g.edges[ka]
	if !ok || !ea.Has(kb) {
		return
	}
	ea.Remove(kb)
	g.edges[kb].Remove(ka)
	g.edgeCount--
	g.rev++
}

func (g *Graph) link(a, b Coord) {
	if a == b {
		return
	}
	ca, okA := g.cells[a]
	cb, okB := g.cells[b]
	if !okA || !okB || ca.IsWall() || cb.IsWall() {
		return
	}
	if g.edges[a].Has(b) {
		return
	}
	g.edges[a].Put(b)
	g.edges[b].Put(a)
	g.edgeCount++
	g.rev++
}

func (g *Graph) isolate(k Coord) {
	var linked []Coord
	g.edges[k].Each(func(n Coord) {
		linked = append(linked, n)
	})
	for _, n := range linked {
		g.edges[n].Remove(k)
		g.edgeCount--
	}
	g.edges[k] = mapset.New[Coord]()
}

// Neighbors returns the cells adjacent to c, ordered by coordinate.
// Unknown cells have no neighbors.
func (g *Graph) Neighbors(c Cell) []Cell {
	set, ok := g.edges[c.Coord()]
	if !ok {
		return nil
	}
	out := make([]Cell, 0, set.Size())
	set.Each(func(n Coord) {
		out = append(out, g.cells[n])
	})
	sortCells(out)
	return out
}

// HasEdge reports whether a and b are adjacent
func (g *Graph) HasEdge(a, b Cell) bool {
	set, ok := g.edges[a.Coord()]
	return ok && set.Has(b.Coord())
}

// NeighborIsWall reports whether any of c's four grid neighbors is a known
// wall.
func (g *Graph) NeighborIsWall(c Cell) bool {
	for _, n := range g.gridNeighbors(c.Coord()) {
		if stored, ok := g.cells[n]; ok && stored.IsWall() {
			return true
		}
	}
	return false
}

// KnownNeighborCount counts how many of c's four grid neighbors are known
func (g *Graph) KnownNeighborCount(c Cell) int {
	n := 0
	for _, k := range g.gridNeighbors(c.Coord()) {
		if _, ok := g.cells[k]; ok {
			n++
		}
	}
	return n
}

// MarkExplored removes c from the unexplored set. Marking an unknown cell is
// remembered so that it does not become unexplored when it is inserted later.
func (g *Graph) MarkExplored(c Cell) {
	g.markExplored(c.Coord())
}

// MarkExploredRadius marks center and every known cell within radius of it
func (g *Graph) MarkExploredRadius(center Cell, radius float64) {
	g.MarkExplored(center)
	for _, k := range g.index.within(center.Coord(), radius) {
		g.markExplored(k)
	}
}

func (g *Graph) markExplored(k Coord) {
	if g.explored.Has(k) {
		return
	}
	g.explored.Put(k)
	g.unexplored.Remove(k)
	g.rev++
}

func (g *Graph) IsUnexplored(c Cell) bool {
	return g.unexplored.Has(c.Coord())
}

// IsExplored reports whether c was explicitly marked explored
func (g *Graph) IsExplored(c Cell) bool {
	return g.explored.Has(c.Coord())
}

// Cells returns every known cell ordered by coordinate
func (g *Graph) Cells() []Cell {
	out := make([]Cell, 0, len(g.cells))
	for _, c := range g.cells {
		out = append(out, c)
	}
	sortCells(out)
	return out
}

// Unexplored returns the unexplored cells ordered by coordinate
func (g *Graph) Unexplored() []Cell {
	out := make([]Cell, 0, g.unexplored.Size())
	g.unexplored.Each(func(k Coord) {
		out = append(out, g.cells[k])
	})
	sortCells(out)
	return out
}

func (g *Graph) gridNeighbors(k Coord) [4]Coord {
	s := g.cellSize
	return [4]Coord{
		{X: k.X - s, Y: k.Y},
		{X: k.X + s, Y: k.Y},
		{X: k.X, Y: k.Y - s},
		{X: k.X, Y: k.Y + s},
	}
}

func sortCells(cells []Cell) {
	sort.Slice(cells, func(i, j int) bool {
		return coordLess(cells[i].Coord(), cells[j].Coord())
	})
}

func coordLess(a, b Coord) bool {
	if a.Y != b.Y {
		return a.Y < b.Y
	}
	return a.X < b.X
}
