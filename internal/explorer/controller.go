package explorer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/paulmach/orb/planar"
	"github.com/rs/zerolog"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/config"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/observability"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/planner"
)

// State is the controller's control state
type State int

const (
	StateStart State = iota
	StateSearching
	StateUnsticking
)

func (s State) String() string {
	switch s {
	case StateSearching:
		return "searching"
	case StateUnsticking:
		return "unsticking"
	default:
		return "start"
	}
}

// Flags are the transient conditions threaded through the state machine
type Flags struct {
	// PursuingGoal is set while the route leads to a detected goal object
	PursuingGoal bool
	// MotionExpected is set while a walk is in flight
	MotionExpected bool
	// ResumeTarget asks the next plan to head back to the target held
	// before the agent got stuck
	ResumeTarget bool
}

// Agent is what the controller knows about its own body and intentions
type Agent struct {
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
	Velocity         float64

	Location grid.Cell
	Previous grid.Cell
	Located  bool

	Path        *planner.Path
	Waypoint    grid.Cell
	HasWaypoint bool
	Target      grid.Cell
	HasTarget   bool
}

func (a Agent) position() orb.Point { return orb.Point{a.X, a.Y} }

// Deps are the collaborators of a Controller. Everything except the
// actuator is optional.
type Deps struct {
	// Graph seeds the map, e.g. from a saved map file
	Graph     *grid.Graph
	Logger    zerolog.Logger
	Metrics   *observability.Metrics
	Rand      *rand.Rand
	Publisher Publisher
}

// Controller is the exploration state machine. It owns the occupancy graph
// and the agent state and touches them only from Handle, one observation at
// a time.
type Controller struct {
	cfg        config.Config
	act        Actuator
	graph      *grid.Graph
	planner    *planner.Planner
	simplifier *planner.Simplifier
	log        zerolog.Logger
	metrics    *observability.Metrics
	rng        *rand.Rand
	publisher  Publisher

	state State
	flags Flags
	agent Agent

	// map export reused across snapshots until the graph changes
	mapView *geojson.FeatureCollection
	mapRev  uint64
}

func New(cfg config.Config, act Actuator, deps Deps) (*Controller, error) {
	if act == nil {
		return nil, errors.New("explorer: nil actuator")
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("explorer: %w", err)
	}
	heuristic, err := planner.HeuristicByName(cfg.Heuristic)
	if err != nil {
		return nil, fmt.Errorf("explorer: %w", err)
	}

	g := deps.Graph
	if g == nil {
		g = grid.NewGraph(cfg.CellSize)
	} else if g.CellSize() != cfg.CellSize {
		return nil, fmt.Errorf("explorer: map cell size %d does not match configured %d", g.CellSize(), cfg.CellSize)
	}

	rng := deps.Rand
	if rng == nil {
		seed := cfg.Seed
		if seed == 0 {
			seed = time.Now().UnixNano()
		}
		rng = rand.New(rand.NewSource(seed))
	}

	p := planner.New(g, planner.Options{
		WallAdjacentPenalty: cfg.WallAdjacentPenalty,
		WallPenalty:         cfg.WallPenalty,
		Heuristic:           heuristic,
	})

	return &Controller{
		cfg:        cfg,
		act:        act,
		graph:      g,
		planner:    p,
		simplifier: planner.NewSimplifier(p, cfg.MinSimplifyLen),
		log: deps.Logger.With().
			Str("component", "explorer").
			Str("session", uuid.NewString()).
			Logger(),
		metrics:   deps.Metrics,
		rng:       rng,
		publisher: deps.Publisher,
	}, nil
}

func (c *Controller) State() State       { return c.state }
func (c *Controller) Flags() Flags       { return c.flags }
func (c *Controller) Graph() *grid.Graph { return c.graph }

// Agent returns a copy of the agent state; the path is copied too
func (c *Controller) Agent() Agent {
	a := c.agent
	if a.Path != nil {
		a.Path = planner.NewPath(a.Path.Cells()...)
	}
	return a
}

// Start bootstraps the session with a position query
func (c *Controller) Start() error {
	c.log.Info().
		Int("cell_size", c.cfg.CellSize).
		Int("known_cells", c.graph.Len()).
		Msg("starting exploration")
	return c.act.RequestPosition()
}

// Handle processes one observation to completion
func (c *Controller) Handle(obs Observation) error {
	if err := obs.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformed, err)
	}
	c.metrics.Observed(obs.Kind())

	var err error
	switch o := obs.(type) {
	case PositionReport:
		err = c.onPosition(o)
	case RayScanReport:
		err = c.onRays(o)
	case TurnReport:
		err = c.onTurned()
	case StopReport:
		err = c.onStop(o)
	case RadiusReport:
		err = c.onRadius(o)
	case DiedReport:
		return ErrConnectionLost
	default:
		return fmt.Errorf("%w: unsupported observation %T", ErrMalformed, obs)
	}

	c.metrics.GraphSize(c.graph.Len(), c.graph.UnexploredCount(), c.graph.EdgeCount())
	c.publish()
	return err
}

// HandleBatch processes a batch in order. A malformed observation is logged
// and the remainder of its batch dropped; any other error is returned. A
// transport error attached to the batch is looked at after the observations
// that were read before it.
func (c *Controller) HandleBatch(b Batch) error {
	for i, obs := range b.Observations {
		err := c.Handle(obs)
		if err == nil {
			continue
		}
		if errors.Is(err, ErrMalformed) {
			c.metrics.MalformedObservation()
			c.log.Warn().
				Err(err).
				Int("skipped", len(b.Observations)-i-1).
				Msg("malformed observation, skipping rest of batch")
			return nil
		}
		return err
	}
	if b.Err != nil {
		if errors.Is(b.Err, ErrConnectionLost) {
			return b.Err
		}
		c.metrics.MalformedObservation()
		c.log.Warn().Err(b.Err).Msg("dropping unreadable event")
	}
	return nil
}

func (c *Controller) onPosition(o PositionReport) error {
	c.agent.X, c.agent.Y, c.agent.Z = o.X, o.Y, o.Z
	c.agent.Roll, c.agent.Pitch, c.agent.Yaw = o.Roll, o.Pitch, o.Yaw
	c.agent.Velocity = o.Velocity

	loc := c.graph.Snap(o.X, o.Y)
	if c.agent.Located {
		c.agent.Previous = c.agent.Location
	}
	c.graph.MarkExploredRadius(loc, c.cfg.ExploreRadius)
	if !c.graph.AddVertex(loc) && loc.IsWall() {
		// the agent is standing in it, so it is not a wall
		if err := c.graph.SetContent(loc, grid.Empty); err != nil {
			return err
		}
		loc.Content = grid.Empty
	}
	c.agent.Location = loc
	c.agent.Located = true

	c.log.Debug().
		Float64("x", o.X).
		Float64("y", o.Y).
		Float64("yaw", o.Yaw).
		Stringer("cell", loc).
		Msg("position")

	if c.cfg.RadiusScan > 0 {
		return c.act.RequestRadiusScan(c.cfg.RadiusScan)
	}
	return c.act.RequestRays(c.cfg.RayCount)
}

func (c *Controller) onRays(o RayScanReport) error {
	if !c.agent.Located {
		return c.act.RequestPosition()
	}
	loc := c.agent.Location
	for _, hit := range o.Hits {
		end := c.graph.Snap(c.agent.X+hit.RelX, c.agent.Y+hit.RelY)
		if end.Same(loc) {
			continue
		}
		content := c.classify(hit.Label)
		if !c.graph.AddVertex(grid.Cell{X: end.X, Y: end.Y, Content: content}) && content != grid.Empty {
			if err := c.graph.SetContent(end, content); err != nil {
				return err
			}
		}
		c.graph.AddLine(loc, end)
	}
	// whatever the agent can see from here counts as explored
	c.graph.MarkExploredRadius(loc, c.cfg.ExploreRadius)

	c.log.Debug().
		Int("rays", len(o.Hits)).
		Int("known", c.graph.Len()).
		Int("unexplored", c.graph.UnexploredCount()).
		Msg("scan integrated")

	switch c.state {
	case StateStart:
		c.state = StateSearching
	case StateUnsticking:
		if c.flags.MotionExpected {
			return nil
		}
		// a turn or stop report was lost; start the maneuver over
		return c.reorient()
	}
	return c.navigate()
}

func (c *Controller) classify(label string) grid.Content {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "", "nothing", "none":
		return grid.Empty
	case strings.ToLower(c.cfg.GoalLabel):
		return grid.Goal
	default:
		return grid.Wall
	}
}

// navigate makes sure there is a route and heads for its next waypoint
func (c *Controller) navigate() error {
	if c.agent.Path.Empty() {
		if err := c.replan(); err != nil {
			return err
		}
	}
	return c.advance()
}

func (c *Controller) replan() error {
	loc := c.agent.Location

	if c.flags.ResumeTarget && c.agent.HasTarget && !c.agent.Target.Same(loc) {
		c.flags.ResumeTarget = false
		route, err := c.simplifier.Route(loc, c.agent.Target)
		if err == nil {
			c.setRoute(route, c.agent.Target, "resume")
			return nil
		}
		c.log.Debug().Err(err).Stringer("target", c.agent.Target).Msg("cannot resume target")
	}
	c.flags.ResumeTarget = false
	c.flags.PursuingGoal = false

	target, heuristic, ok := c.selectFrontier(loc)
	if !ok {
		return fmt.Errorf("plan from %v: %w", loc, ErrNoFrontier)
	}
	route, err := c.simplifier.Route(loc, target)
	if err != nil {
		c.log.Warn().Err(err).Stringer("target", target).Str("heuristic", heuristic).Msg("no route, retrying")
		retry, ok := c.graph.NearestUnexplored(loc, c.cfg.MinClearance)
		if !ok || retry.Same(target) {
			return fmt.Errorf("plan from %v: %w", loc, err)
		}
		target, heuristic = retry, "nearest_unexplored"
		if route, err = c.simplifier.Route(loc, target); err != nil {
			return fmt.Errorf("plan from %v after retry: %w", loc, err)
		}
	}
	c.setRoute(route, target, heuristic)
	return nil
}

// selectFrontier prefers the densest unexplored region while most of the map
// is unexplored, then the region with the most boundary cells.
func (c *Controller) selectFrontier(loc grid.Cell) (grid.Cell, string, bool) {
	if 2*c.graph.UnexploredCount() > c.graph.Len() {
		if t, ok := c.graph.IsolatedUnexplored(loc, c.cfg.FrontierRadius); ok {
			return t, "isolated_unexplored", true
		}
	}
	if t, ok := c.graph.IsolatedUnseen(loc, c.cfg.FrontierRadius); ok {
		return t, "isolated_unseen", true
	}
	return grid.Cell{}, "", false
}

func (c *Controller) setRoute(route *planner.Path, target grid.Cell, reason string) {
	c.agent.Path = route
	c.agent.Target = target
	c.agent.HasTarget = true
	c.metrics.Replanned(reason)
	c.log.Info().
		Stringer("from", c.agent.Location).
		Stringer("target", target).
		Int("waypoints", route.Len()).
		Str("reason", reason).
		Msg("route planned")
}

// advance takes the next waypoint off the route and turns toward it
func (c *Controller) advance() error {
	loc := c.agent.Location
	for {
		next, ok := c.agent.Path.Next()
		if !ok {
			c.agent.HasWaypoint = false
			return c.act.RequestPosition()
		}
		if next.Same(loc) {
			continue
		}
		c.agent.Waypoint = next
		c.agent.HasWaypoint = true
		angle := grid.Bearing(c.agent.position(), next.Point(), c.agent.Yaw)
		return c.act.Turn(int(math.Round(angle)))
	}
}

func (c *Controller) onTurned() error {
	if c.state == StateUnsticking {
		c.flags.MotionExpected = true
		return c.act.Walk(c.cfg.UnstickCells * c.cfg.CellSize)
	}
	if !c.agent.HasWaypoint {
		return c.act.RequestPosition()
	}
	dist := int(math.Round(planar.Distance(c.agent.position(), c.agent.Waypoint.Point())))
	if dist == 0 {
		c.agent.HasWaypoint = false
		return c.advance()
	}
	c.flags.MotionExpected = true
	return c.act.Walk(dist)
}

func (c *Controller) onStop(o StopReport) error {
	expected := c.flags.MotionExpected
	c.flags.MotionExpected = false

	if expected && o.DistanceTraveled < c.cfg.StuckThreshold {
		return c.unstick()
	}
	if expected && c.state == StateUnsticking {
		c.state = StateSearching
		c.agent.Path = nil
		c.agent.HasWaypoint = false
		c.flags.ResumeTarget = true
		c.log.Info().Float64("traveled", o.DistanceTraveled).Msg("unstuck")
	}
	return c.act.RequestPosition()
}

func (c *Controller) onRadius(o RadiusReport) error {
	var (
		found bool
		near  Hit
		dist  float64
	)
	for _, obj := range o.Objects {
		if c.classify(obj.Label) != grid.Goal {
			continue
		}
		d := math.Hypot(obj.RelX, obj.RelY)
		if !found || d < dist {
			found, near, dist = true, obj, d
		}
	}
	if !found {
		return c.act.RequestRays(c.cfg.RayCount)
	}

	if dist <= c.cfg.PickupRange {
		c.log.Info().Str("label", near.Label).Float64("distance", dist).Msg("picking up")
		c.metrics.PickedUp()
		if c.flags.PursuingGoal {
			c.flags.PursuingGoal = false
			c.agent.Path = nil
			c.agent.HasTarget = false
		}
		if err := c.act.Pickup(near.Label); err != nil {
			return err
		}
		return c.act.RequestRays(c.cfg.RayCount)
	}

	if !c.flags.PursuingGoal && c.state != StateUnsticking && c.agent.Located {
		c.pursue(c.graph.Snap(c.agent.X+near.RelX, c.agent.Y+near.RelY))
	}
	return c.act.RequestRays(c.cfg.RayCount)
}

// pursue redirects the route toward a goal object whose cell is already on
// the map. Failing to reach it is not fatal; exploration simply continues.
func (c *Controller) pursue(cell grid.Cell) {
	if !c.graph.Has(cell) || cell.Same(c.agent.Location) {
		return
	}
	route, err := c.simplifier.Route(c.agent.Location, cell)
	if err != nil {
		c.log.Debug().Err(err).Stringer("goal", cell).Msg("goal object not reachable yet")
		return
	}
	if err := c.graph.SetContent(cell, grid.Goal); err != nil {
		return
	}
	cell.Content = grid.Goal
	c.flags.PursuingGoal = true
	c.agent.HasWaypoint = false
	c.setRoute(route, cell, "goal")
}
