package planner

import (
	"container/heap"
	"errors"
	"fmt"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
)

// ErrNoPath is returned when the goal cannot be reached from the start over
// the known graph.
var ErrNoPath = errors.New("no path found")

// Heuristic estimates the remaining cost between two cells
type Heuristic func(a, b grid.Cell) float64

var (
	Euclidean Heuristic = grid.Distance
	Manhattan Heuristic = grid.Manhattan
)

// HeuristicByName resolves "euclidean" or "manhattan"
func HeuristicByName(name string) (Heuristic, error) {
	switch name {
	case "", "euclidean":
		return Euclidean, nil
	case "manhattan":
		return Manhattan, nil
	}
	return nil, fmt.Errorf("unknown heuristic %q", name)
}

// Options tunes the search. The zero value is plain shortest-path A* with
// the Euclidean heuristic.
type Options struct {
	// WallAdjacentPenalty is added to a step into a cell that touches a wall
	WallAdjacentPenalty float64
	// WallPenalty is added to a step into a wall cell
	WallPenalty float64
	Heuristic   Heuristic
}

// DefaultOptions biases routes away from walls without forbidding cells next
// to them.
func DefaultOptions() Options {
	return Options{
		WallAdjacentPenalty: 5000,
		WallPenalty:         50000,
		Heuristic:           Euclidean,
	}
}

// Planner runs A* over an occupancy graph it does not own
type Planner struct {
	graph *grid.Graph
	opts  Options
}

func New(g *grid.Graph, opts Options) *Planner {
	if opts.Heuristic == nil {
		opts.Heuristic = Euclidean
	}
	return &Planner{graph: g, opts: opts}
}

func (p *Planner) Graph() *grid.Graph { return p.graph }

// node represents a cell in the A* search
type node struct {
	cell   grid.Cell
	g      float64 // Cost from start to this node
	h      float64 // Heuristic cost from this node to goal
	f      float64 // Total cost (g + h)
	parent *node
	index  int // Index in the heap
	seq    int // Insertion order, breaks f ties
}

// priorityQueue implements heap.Interface for the open set
type priorityQueue []*node

func (pq priorityQueue) Len() int { return len(pq) }

func (pq priorityQueue) Less(i, j int) bool {
	if pq[i].f != pq[j].f {
		return pq[i].f < pq[j].f
	}
	return pq[i].seq < pq[j].seq
}

func (pq priorityQueue) Swap(i, j int) {
	pq[i], pq[j] = pq[j], pq[i]
	pq[i].index = i
	pq[j].index = j
}

func (pq *priorityQueue) Push(x interface{}) {
	n := len(*pq)
	nd := x.(*node)
	nd.index = n
	*pq = append(*pq, nd)
}

func (pq *priorityQueue) Pop() interface{} {
	old := *pq
	n := len(old)
	nd := old[n-1]
	old[n-1] = nil
	nd.index = -1
	*pq = old[0 : n-1]
	return nd
}

// StepCost is the cost of moving from one cell into an adjacent one: the
// Euclidean step plus the wall penalties that apply to the destination.
func (p *Planner) StepCost(from, to grid.Cell) float64 {
	cost := grid.Distance(from, to)
	if stored, ok := p.graph.Lookup(to); ok {
		to = stored
	}
	if to.IsWall() {
		cost += p.opts.WallPenalty
	}
	if p.graph.NeighborIsWall(to) {
		cost += p.opts.WallAdjacentPenalty
	}
	return cost
}

// Cost sums the step costs along a path
func (p *Planner) Cost(path *Path) float64 {
	cells := path.Cells()
	total := 0.0
	for i := 1; i < len(cells); i++ {
		total += p.StepCost(cells[i-1], cells[i])
	}
	return total
}

// FindPath computes the cheapest cell-by-cell route from start to goal.
// Wall cells are never expanded. ErrNoPath is returned when either endpoint
// is unknown or the goal is not in the start's component.
func (p *Planner) FindPath(start, goal grid.Cell) (*Path, error) {
	if stored, ok := p.graph.Lookup(start); ok {
		start = stored
	} else {
		return nil, fmt.Errorf("%w: start %v: %w", ErrNoPath, start, grid.ErrUnknownCell)
	}
	if stored, ok := p.graph.Lookup(goal); ok {
		goal = stored
	} else {
		return nil, fmt.Errorf("%w: goal %v: %w", ErrNoPath, goal, grid.ErrUnknownCell)
	}
	if start.Same(goal) {
		return NewPath(start), nil
	}
	if goal.IsWall() {
		return nil, fmt.Errorf("%w: goal %v is a wall", ErrNoPath, goal)
	}

	openSet := &priorityQueue{}
	heap.Init(openSet)

	seq := 0
	startNode := &node{
		cell: start,
		h:    p.opts.Heuristic(start, goal),
	}
	startNode.f = startNode.h
	heap.Push(openSet, startNode)

	closedSet := make(map[grid.Coord]bool)
	openSetMap := map[grid.Coord]*node{start.Coord(): startNode}

	for openSet.Len() > 0 {
		current := heap.Pop(openSet).(*node)
		delete(openSetMap, current.cell.Coord())

		if current.cell.Same(goal) {
			return reconstruct(current), nil
		}
		closedSet[current.cell.Coord()] = true

		for _, neighbor := range p.graph.Neighbors(current.cell) {
			k := neighbor.Coord()
			if neighbor.IsWall() || closedSet[k] {
				continue
			}

			tentativeG := current.g + p.StepCost(current.cell, neighbor)

			existing, inOpen := openSetMap[k]
			if !inOpen {
				seq++
				nd := &node{
					cell:   neighbor,
					g:      tentativeG,
					h:      p.opts.Heuristic(neighbor, goal),
					parent: current,
					seq:    seq,
				}
				nd.f = nd.g + nd.h
				heap.Push(openSet, nd)
				openSetMap[k] = nd
			} else if tentativeG < existing.g {
				// Found a better path to this neighbor
				existing.g = tentativeG
				existing.f = existing.g + existing.h
				existing.parent = current
				heap.Fix(openSet, existing.index)
			}
		}
	}

	return nil, fmt.Errorf("%w: %v unreachable from %v", ErrNoPath, goal, start)
}

func reconstruct(end *node) *Path {
	var rev []grid.Cell
	for nd := end; nd != nil; nd = nd.parent {
		rev = append(rev, nd.cell)
	}
	cells := make([]grid.Cell, len(rev))
	for i, c := range rev {
		cells[len(rev)-1-i] = c
	}
	return &Path{cells: cells}
}
