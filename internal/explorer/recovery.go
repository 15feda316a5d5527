package explorer

// unstick handles a motion that produced negligible displacement. The step
// toward the waypoint is cut from the graph so the next plan does not walk
// into the same dead end, then the agent turns by a random 90-360 degrees and
// tries a short walk. Repeated failures repeat the maneuver.
func (c *Controller) unstick() error {
	c.metrics.Stuck()
	if c.state != StateUnsticking && c.agent.HasWaypoint {
		c.dropFailedStep()
	}
	c.agent.Path = nil
	c.agent.HasWaypoint = false
	c.state = StateUnsticking
	return c.reorient()
}

// reorient issues the random turn that opens the unstick maneuver
func (c *Controller) reorient() error {
	angle := 90 + c.rng.Intn(270)
	c.log.Warn().
		Stringer("at", c.agent.Location).
		Int("turn", angle).
		Msg("stuck, reorienting")
	return c.act.Turn(angle)
}

// dropFailedStep removes the edge from the current cell to the first cell on
// the straight line toward the waypoint.
func (c *Controller) dropFailedStep() {
	loc := c.agent.Location
	line := c.graph.Rasterize(loc, c.agent.Waypoint)
	for _, cell := range line[1:] {
		if c.graph.HasEdge(loc, cell) {
			c.graph.RemoveEdge(loc, cell)
			c.log.Debug().Stringer("from", loc).Stringer("to", cell).Msg("edge removed")
			return
		}
	}
}
