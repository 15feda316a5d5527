package grid

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
)

// FeatureCollection renders the graph as GeoJSON: one Point feature per cell
// with its content and explored flag. The cell size travels as a foreign
// member of the collection.
func (g *Graph) FeatureCollection() *geojson.FeatureCollection {
	fc := geojson.NewFeatureCollection()
	fc.ExtraMembers = geojson.Properties{"cell_size": g.cellSize}
	for _, c := range g.Cells() {
		f := geojson.NewFeature(c.Point())
		f.Properties["content"] = c.Content.String()
		f.Properties["explored"] = g.explored.Has(c.Coord())
		f.Properties["degree"] = g.edges[c.Coord()].Size()
		fc.Append(f)
	}
	return fc
}

// SaveMap serializes the graph to a GeoJSON file
func SaveMap(g *Graph, filename string) error {
	data, err := json.MarshalIndent(g.FeatureCollection(), "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal map: %w", err)
	}
	if err := os.WriteFile(filename, data, 0644); err != nil {
		return fmt.Errorf("failed to write file: %w", err)
	}
	return nil
}

// LoadMap rebuilds a graph from a file written by SaveMap
func LoadMap(filename string) (*Graph, error) {
	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read file: %w", err)
	}
	return DecodeMap(data)
}

// DecodeMap rebuilds a graph from GeoJSON bytes
func DecodeMap(data []byte) (*Graph, error) {
	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal map: %w", err)
	}
	return FromFeatureCollection(fc)
}

// FromFeatureCollection rebuilds a graph from the output of
// Graph.FeatureCollection. Adjacency is derived from the cells, so edges
// removed after a failed motion come back.
func FromFeatureCollection(fc *geojson.FeatureCollection) (*Graph, error) {
	size := fc.ExtraMembers.MustInt("cell_size", 0)
	if size <= 0 {
		return nil, fmt.Errorf("map has no valid cell_size")
	}
	g := NewGraph(size)

	for i, f := range fc.Features {
		pt, ok := f.Geometry.(orb.Point)
		if !ok {
			return nil, fmt.Errorf("feature %d: expected Point geometry, got %s", i, f.Geometry.GeoJSONType())
		}
		content, err := ParseContent(f.Properties.MustString("content", "empty"))
		if err != nil {
			return nil, fmt.Errorf("feature %d: %w", i, err)
		}
		c := Cell{X: int(pt[0]), Y: int(pt[1]), Content: content}
		if f.Properties.MustBool("explored", false) {
			g.MarkExplored(c)
		}
		g.AddVertex(c)
	}
	return g, nil
}
