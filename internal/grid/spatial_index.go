package grid

import (
	"math"

	"github.com/dhconnelly/rtreego"
)

// cellEntry wraps a cell coordinate for R-tree storage
type cellEntry struct {
	Coord Coord
	BBox  rtreego.Rect
}

// Bounds implements rtreego.Spatial interface
func (e *cellEntry) Bounds() rtreego.Rect {
	return e.BBox
}

// spatialIndex answers radius queries over known cells. Cells are never
// removed from the graph, so the index is insert-only.
type spatialIndex struct {
	tree *rtreego.Rtree
}

func newSpatialIndex() *spatialIndex {
	return &spatialIndex{tree: rtreego.NewTree(2, 25, 50)} // 2D, min 25, max 50 entries per node
}

func (si *spatialIndex) insert(k Coord) {
	bbox, err := rtreego.NewRect(
		rtreego.Point{float64(k.X) - 0.5, float64(k.Y) - 0.5},
		[]float64{1, 1},
	)
	if err != nil {
		return
	}
	si.tree.Insert(&cellEntry{Coord: k, BBox: bbox})
}

// within returns the coordinates whose centers lie within radius of center
func (si *spatialIndex) within(center Coord, radius float64) []Coord {
	if radius < 0 {
		return nil
	}
	bbox, err := rtreego.NewRect(
		rtreego.Point{float64(center.X) - radius - 0.5, float64(center.Y) - radius - 0.5},
		[]float64{2*radius + 1, 2*radius + 1},
	)
	if err != nil {
		return nil
	}

	results := si.tree.SearchIntersect(bbox)
	coords := make([]Coord, 0, len(results))
	for _, item := range results {
		entry := item.(*cellEntry)
		dx := float64(entry.Coord.X - center.X)
		dy := float64(entry.Coord.Y - center.Y)
		if math.Sqrt(dx*dx+dy*dy) <= radius {
			coords = append(coords, entry.Coord)
		}
	}
	return coords
}
