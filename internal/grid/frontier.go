package grid

// Frontier heuristics. Each scans a candidate set and returns a single cell
// or false. The agent's own cell is never a candidate. Ties go to the
// candidate nearer to the agent, then to the lower coordinate, so the choice
// does not depend on map iteration order.

// DefaultMinClearance is the distance under which NearestUnexplored prefers
// to skip a candidate: those cells tend to get explored on the way anyway.
const DefaultMinClearance = 200.0

type pick struct {
	cell  Cell
	score float64
	dist  float64
	ok    bool
}

// offer keeps c if its score beats the current best (higher wins)
func (p *pick) offer(c Cell, score, dist float64) {
	if !p.ok || score > p.score ||
		(score == p.score && (dist < p.dist || (dist == p.dist && coordLess(c.Coord(), p.cell.Coord())))) {
		p.cell, p.score, p.dist, p.ok = c, score, dist, true
	}
}

func (g *Graph) eachUnexplored(from Cell, fn func(c Cell)) {
	fk := from.Coord()
	g.unexplored.Each(func(k Coord) {
		if k != fk {
			fn(g.cells[k])
		}
	})
}

// FarthestUnexplored picks the unexplored cell farthest from `from`
func (g *Graph) FarthestUnexplored(from Cell) (Cell, bool) {
	var best pick
	g.eachUnexplored(from, func(c Cell) {
		d := Distance(from, c)
		best.offer(c, d, 0)
	})
	return best.cell, best.ok
}

// NearestUnexplored picks the nearest unexplored cell that is at least
// minClearance away, falling back to the nearest overall.
func (g *Graph) NearestUnexplored(from Cell, minClearance float64) (Cell, bool) {
	var clear, any pick
	g.eachUnexplored(from, func(c Cell) {
		d := Distance(from, c)
		any.offer(c, -d, d)
		if d >= minClearance {
			clear.offer(c, -d, d)
		}
	})
	if clear.ok {
		return clear.cell, true
	}
	return any.cell, any.ok
}

// IsolatedUnexplored picks the unexplored cell with the most other
// unexplored cells within radius, steering toward the largest unexplored
// region rather than stray frontier cells.
func (g *Graph) IsolatedUnexplored(from Cell, radius float64) (Cell, bool) {
	var best pick
	g.eachUnexplored(from, func(c Cell) {
		count := 0
		for _, k := range g.index.within(c.Coord(), radius) {
			if k != c.Coord() && g.unexplored.Has(k) {
				count++
			}
		}
		best.offer(c, float64(count), Distance(from, c))
	})
	return best.cell, best.ok
}

// IsolatedUnseen picks the non-wall cell with the most nearby boundary
// cells, i.e. non-wall cells with fewer than four known grid neighbors. Used
// once frontier cells have become sparse.
func (g *Graph) IsolatedUnseen(from Cell, radius float64) (Cell, bool) {
	boundary := make(map[Coord]bool)
	for k, c := range g.cells {
		if !c.IsWall() && g.KnownNeighborCount(c) < 4 {
			boundary[k] = true
		}
	}

	var best pick
	fk := from.Coord()
	for k, c := range g.cells {
		if c.IsWall() || k == fk {
			continue
		}
		count := 0
		for _, n := range g.index.within(k, radius) {
			if boundary[n] {
				count++
			}
		}
		best.offer(c, float64(count), Distance(from, c))
	}
	return best.cell, best.ok
}
