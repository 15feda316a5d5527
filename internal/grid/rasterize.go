package grid

// Rasterize returns the cells covered by the straight segment from a to b,
// in order from a to b, without changing the graph. Known cells carry their
// stored content; unknown positions come back as empty cells.
func (g *Graph) Rasterize(a, b Cell) []Cell {
	coords := supercover(a.Coord(), b.Coord(), g.cellSize)
	out := make([]Cell, len(coords))
	for i, k := range coords {
		if c, ok := g.cells[k]; ok {
			out[i] = c
		} else {
			out[i] = Cell{X: k.X, Y: k.Y}
		}
	}
	return out
}

// AddLine rasterizes a to b like Rasterize, inserting every missing cell on
// the way as empty. The endpoint b is left to the caller, which knows what
// the sensor actually hit there.
func (g *Graph) AddLine(a, b Cell) []Cell {
	end := b.Coord()
	for _, k := range supercover(a.Coord(), end, g.cellSize) {
		if k == end {
			continue
		}
		if _, ok := g.cells[k]; !ok {
			g.AddVertex(Cell{X: k.X, Y: k.Y})
		}
	}
	return g.Rasterize(a, b)
}

// supercover is Bresenham's line walk in grid-index space, extended so that
// each diagonal step also visits the orthogonal cell the segment passes
// through (both when it passes exactly through the corner). The resulting
// chain is 4-connected, so a line cannot slip between two diagonal walls.
//
// Endpoints are normalized (axes swapped for steep lines, endpoints swapped
// so x increases) and the output reversed afterwards, which makes the
// covered set independent of direction.
func supercover(a, b Coord, size int) []Coord {
	x0, y0 := index(a.X, size), index(a.Y, size)
	x1, y1 := index(b.X, size), index(b.Y, size)

	steep := abs(y1-y0) > abs(x1-x0)
	if steep {
		x0, y0 = y0, x0
		x1, y1 = y1, x1
	}
	reversed := x0 > x1
	if reversed {
		x0, x1 = x1, x0
		y0, y1 = y1, y0
	}

	dx := x1 - x0
	dy := abs(y1 - y0)
	ystep := 1
	if y0 > y1 {
		ystep = -1
	}

	out := make([]Coord, 0, dx+dy+1)
	visit := func(x, y int) {
		if steep {
			x, y = y, x
		}
		out = append(out, Coord{X: center(x, size), Y: center(y, size)})
	}

	ddx, ddy := 2*dx, 2*dy
	errPrev, e := dx, dx
	x, y := x0, y0
	visit(x, y)
	for i := 0; i < dx; i++ {
		x++
		e += ddy
		if e > ddx {
			y += ystep
			e -= ddx
			switch {
			case e+errPrev < ddx:
				visit(x, y-ystep)
			case e+errPrev > ddx:
				visit(x-1, y)
			default:
				visit(x, y-ystep)
				visit(x-1, y)
			}
		}
		visit(x, y)
		errPrev = e
	}

	if reversed {
		for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
			out[i], out[j] = out[j], out[i]
		}
	}
	return out
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
