package explorer

import (
	"time"

	"github.com/paulmach/orb/geojson"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
)

// Snapshot is a read-only copy of the controller's view after an
// observation, for consumers outside the control loop.
type Snapshot struct {
	State      State
	Location   grid.Cell
	Located    bool
	Target     grid.Cell
	HasTarget  bool
	Route      []grid.Cell
	// Map is shared by consecutive snapshots while the graph is unchanged
	// and must not be modified.
	Map        *geojson.FeatureCollection
	Known      int
	Unexplored int
	Edges      int
	Time       time.Time
}

// Publisher receives snapshots. Publish is called from the control loop and
// must not block for long.
type Publisher interface {
	Publish(Snapshot)
}

// Snapshot copies the current state
func (c *Controller) Snapshot() Snapshot {
	s := Snapshot{
		State:      c.state,
		Location:   c.agent.Location,
		Located:    c.agent.Located,
		Target:     c.agent.Target,
		HasTarget:  c.agent.HasTarget,
		Map:        c.exportMap(),
		Known:      c.graph.Len(),
		Unexplored: c.graph.UnexploredCount(),
		Edges:      c.graph.EdgeCount(),
		Time:       time.Now(),
	}
	if c.agent.HasWaypoint {
		s.Route = append(s.Route, c.agent.Waypoint)
	}
	s.Route = append(s.Route, c.agent.Path.Cells()...)
	return s
}

func (c *Controller) exportMap() *geojson.FeatureCollection {
	if c.mapView == nil || c.mapRev != c.graph.Revision() {
		c.mapView = c.graph.FeatureCollection()
		c.mapRev = c.graph.Revision()
	}
	return c.mapView
}

func (c *Controller) publish() {
	if c.publisher == nil {
		return
	}
	c.publisher.Publish(c.Snapshot())
}
