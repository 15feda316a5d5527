package explorer

import (
	"errors"
	"fmt"
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/config"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/observability"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/planner"
)

type command struct {
	Name  string
	Arg   int
	Label string
}

func (c command) String() string {
	switch {
	case c.Label != "":
		return c.Name + " " + c.Label
	case c.Name == "position":
		return c.Name
	}
	return fmt.Sprintf("%s %d", c.Name, c.Arg)
}

// recorder is an Actuator that remembers what it was told
type recorder struct {
	mu   sync.Mutex
	cmds []command
	fail error
}

func (r *recorder) add(c command) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.cmds = append(r.cmds, c)
	return r.fail
}

func (r *recorder) Turn(deg int) error            { return r.add(command{Name: "turn", Arg: deg}) }
func (r *recorder) Walk(dist int) error           { return r.add(command{Name: "walk", Arg: dist}) }
func (r *recorder) RequestPosition() error        { return r.add(command{Name: "position"}) }
func (r *recorder) RequestRays(n int) error       { return r.add(command{Name: "rays", Arg: n}) }
func (r *recorder) RequestRadiusScan(n int) error { return r.add(command{Name: "radius", Arg: n}) }
func (r *recorder) Pickup(label string) error     { return r.add(command{Name: "pickup", Label: label}) }

func (r *recorder) last() command {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.cmds) == 0 {
		return command{}
	}
	return r.cmds[len(r.cmds)-1]
}

func (r *recorder) count(name string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, c := range r.cmds {
		if c.Name == name {
			n++
		}
	}
	return n
}

func (r *recorder) len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cmds)
}

func testConfig() config.Config {
	cfg := config.Default()
	cfg.RadiusScan = 0
	cfg.Seed = 1
	return cfg
}

func newTestController(t *testing.T, cfg config.Config, deps Deps) (*Controller, *recorder) {
	t.Helper()
	act := &recorder{}
	if deps.Rand == nil {
		deps.Rand = rand.New(rand.NewSource(1))
	}
	deps.Logger = zerolog.Nop()
	c, err := New(cfg, act, deps)
	require.NoError(t, err)
	return c, act
}

func cell(x, y int) grid.Cell { return grid.NewCell(x, y) }

// corridor puts the agent at (96,96) facing +x with a wall ten cells ahead
func corridor(t *testing.T, c *Controller, act *recorder) {
	t.Helper()
	require.NoError(t, c.Start())
	require.Equal(t, "position", act.last().String())

	require.NoError(t, c.Handle(PositionReport{X: 96, Y: 96}))
	require.Equal(t, "rays 24", act.last().String())

	require.NoError(t, c.Handle(RayScanReport{Hits: []Hit{{Label: "wall", RelX: 640}}}))
}

func TestBootstrap(t *testing.T) {
	c, act := newTestController(t, testConfig(), Deps{})
	assert.Equal(t, StateStart, c.State())

	corridor(t, c, act)

	assert.Equal(t, StateSearching, c.State())
	g := c.Graph()
	assert.Equal(t, 11, g.Len())
	wall, ok := g.Lookup(cell(736, 96))
	require.True(t, ok)
	assert.True(t, wall.IsWall())
	assert.Equal(t, 6, g.UnexploredCount())

	// the densest unexplored stretch, nearest first
	agent := c.Agent()
	assert.True(t, agent.HasTarget)
	assert.Equal(t, cell(416, 96).Coord(), agent.Target.Coord())
	assert.Equal(t, "turn 0", act.last().String())

	require.NoError(t, c.Handle(TurnReport{}))
	assert.Equal(t, "walk 320", act.last().String())
	assert.True(t, c.Flags().MotionExpected)
}

func TestRaysBeforePositionRequestPosition(t *testing.T) {
	c, act := newTestController(t, testConfig(), Deps{})
	require.NoError(t, c.Handle(RayScanReport{Hits: []Hit{{Label: "wall", RelX: 100}}}))
	assert.Equal(t, "position", act.last().String())
	assert.Zero(t, c.Graph().Len())
}

func TestAgentCellIsNeverAWall(t *testing.T) {
	g := grid.NewGraph(64)
	g.AddVertex(grid.Cell{X: 96, Y: 96, Content: grid.Wall})
	c, _ := newTestController(t, testConfig(), Deps{Graph: g})

	require.NoError(t, c.Handle(PositionReport{X: 100, Y: 90}))
	stored, ok := g.Lookup(cell(96, 96))
	require.True(t, ok)
	assert.False(t, stored.IsWall())
	assert.Equal(t, cell(96, 96), c.Agent().Location)
}

func TestStuckRecovery(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	c, act := newTestController(t, testConfig(), Deps{Metrics: metrics})
	corridor(t, c, act)
	require.NoError(t, c.Handle(TurnReport{}))
	require.Equal(t, "walk 320", act.last().String())

	// barely moved
	require.NoError(t, c.Handle(StopReport{DistanceTraveled: 0.5}))
	assert.Equal(t, StateUnsticking, c.State())
	assert.False(t, c.Graph().HasEdge(cell(96, 96), cell(160, 96)), "blocked step is cut")
	assert.True(t, c.Graph().HasEdge(cell(160, 96), cell(224, 96)))

	turn := act.last()
	require.Equal(t, "turn", turn.Name)
	assert.GreaterOrEqual(t, turn.Arg, 90)
	assert.Less(t, turn.Arg, 360)

	require.NoError(t, c.Handle(TurnReport{Degrees: float64(turn.Arg)}))
	assert.Equal(t, "walk 128", act.last().String())

	t.Run("ray scans during the walk do not replan", func(t *testing.T) {
		before := act.len()
		require.NoError(t, c.Handle(RayScanReport{}))
		assert.Equal(t, before, act.len())
		assert.Equal(t, StateUnsticking, c.State())
	})

	t.Run("lost stop report restarts the maneuver", func(t *testing.T) {
		require.NoError(t, c.Watchdog())
		assert.Equal(t, "position", act.last().String())
		require.NoError(t, c.Handle(PositionReport{X: 96, Y: 96}))
		assert.Equal(t, "rays 24", act.last().String())
		require.NoError(t, c.Handle(RayScanReport{}))

		again := act.last()
		require.Equal(t, "turn", again.Name)
		assert.GreaterOrEqual(t, again.Arg, 90)
		assert.Less(t, again.Arg, 360)
		assert.Equal(t, StateUnsticking, c.State())

		// a stop report arriving late is not mistaken for the new walk
		require.NoError(t, c.Handle(StopReport{DistanceTraveled: 0}))
		assert.Equal(t, "position", act.last().String())
		assert.Equal(t, StateUnsticking, c.State())

		require.NoError(t, c.Handle(TurnReport{Degrees: float64(again.Arg)}))
		assert.Equal(t, "walk 128", act.last().String())
		assert.True(t, c.Flags().MotionExpected)
	})

	// still stuck: the maneuver repeats
	require.NoError(t, c.Handle(StopReport{DistanceTraveled: 0}))
	assert.Equal(t, StateUnsticking, c.State())
	assert.Equal(t, "turn", act.last().Name)
	require.NoError(t, c.Handle(TurnReport{}))
	assert.Equal(t, "walk 128", act.last().String())

	require.NoError(t, c.Handle(StopReport{DistanceTraveled: 128}))
	assert.Equal(t, StateSearching, c.State())
	assert.True(t, c.Flags().ResumeTarget)
	assert.Equal(t, "position", act.last().String())
	assert.Equal(t, 2.0, testutil.ToFloat64(metrics.StuckEvents))

	// moved up two cells; a scan links back toward the old target
	require.NoError(t, c.Handle(PositionReport{X: 96, Y: 224}))
	require.NoError(t, c.Handle(RayScanReport{Hits: []Hit{{Label: "nothing", RelX: 320, RelY: -128}}}))

	agent := c.Agent()
	assert.Equal(t, cell(96, 224), agent.Location)
	assert.Equal(t, cell(96, 96), agent.Previous)
	assert.Equal(t, cell(416, 96).Coord(), agent.Target.Coord())
	assert.False(t, c.Flags().ResumeTarget)
	assert.Equal(t, "turn", act.last().Name)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Replans.WithLabelValues("resume")))
}

func TestUnexpectedStopIsNotStuck(t *testing.T) {
	c, act := newTestController(t, testConfig(), Deps{})
	corridor(t, c, act)

	require.NoError(t, c.Handle(StopReport{DistanceTraveled: 0}))
	assert.Equal(t, StateSearching, c.State())
	assert.Equal(t, "position", act.last().String())
}

func TestGoalPursuitAndPickup(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	cfg := testConfig()
	cfg.RadiusScan = 300
	c, act := newTestController(t, cfg, Deps{Metrics: metrics})

	require.NoError(t, c.Handle(PositionReport{X: 96, Y: 96}))
	assert.Equal(t, "radius 300", act.last().String())
	require.NoError(t, c.Handle(RadiusReport{}))
	assert.Equal(t, "rays 24", act.last().String())
	require.NoError(t, c.Handle(RayScanReport{Hits: []Hit{{Label: "wall", RelX: 640}}}))
	require.Equal(t, "turn 0", act.last().String())

	require.NoError(t, c.Handle(RadiusReport{Objects: []Hit{
		{Label: "box", RelX: 64},
		{Label: "tofu", RelX: 192},
	}}))
	assert.Equal(t, "rays 24", act.last().String())
	assert.True(t, c.Flags().PursuingGoal)
	agent := c.Agent()
	assert.Equal(t, cell(288, 96).Coord(), agent.Target.Coord())
	goal, _ := c.Graph().Lookup(cell(288, 96))
	assert.Equal(t, grid.Goal, goal.Content)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Replans.WithLabelValues("goal")))

	t.Run("a second sighting does not replan", func(t *testing.T) {
		require.NoError(t, c.Handle(RadiusReport{Objects: []Hit{{Label: "tofu", RelX: 192}}}))
		assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Replans.WithLabelValues("goal")))
	})

	require.NoError(t, c.Handle(RayScanReport{}))
	assert.Equal(t, "turn 0", act.last().String())
	assert.Equal(t, cell(160, 96), c.Agent().Waypoint)

	require.NoError(t, c.Handle(RadiusReport{Objects: []Hit{{Label: "tofu", RelX: 40}}}))
	assert.Equal(t, 1, act.count("pickup"))
	assert.Equal(t, "rays 24", act.last().String())
	assert.False(t, c.Flags().PursuingGoal)
	assert.False(t, c.Agent().HasTarget)
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.Pickups))
}

func TestUnreachableGoalIsIgnored(t *testing.T) {
	cfg := testConfig()
	cfg.RadiusScan = 300
	c, act := newTestController(t, cfg, Deps{})
	require.NoError(t, c.Handle(PositionReport{X: 96, Y: 96}))

	// the object's cell is not on the map yet
	require.NoError(t, c.Handle(RadiusReport{Objects: []Hit{{Label: "tofu", RelX: 200, RelY: 200}}}))
	assert.False(t, c.Flags().PursuingGoal)
	assert.Equal(t, "rays 24", act.last().String())
}

func TestHandleBatch(t *testing.T) {
	reg := prometheus.NewRegistry()
	metrics := observability.NewMetrics(reg)
	c, act := newTestController(t, testConfig(), Deps{Metrics: metrics})

	t.Run("malformed observation skips the rest", func(t *testing.T) {
		err := c.HandleBatch(Batch{Observations: []Observation{
			PositionReport{X: math.NaN()},
			PositionReport{X: 96, Y: 96},
		}})
		assert.NoError(t, err)
		assert.Zero(t, act.len())
		assert.False(t, c.Agent().Located)
	})

	t.Run("negative stop distance is malformed", func(t *testing.T) {
		err := c.Handle(StopReport{DistanceTraveled: -3})
		assert.ErrorIs(t, err, ErrMalformed)
	})

	t.Run("unparseable batch is dropped", func(t *testing.T) {
		err := c.HandleBatch(Batch{Err: fmt.Errorf("%w: %q", ErrMalformed, "CMD_OK do nothing")})
		assert.NoError(t, err)
		assert.Equal(t, 2.0, testutil.ToFloat64(metrics.Malformed))
	})

	t.Run("observations are handled in order", func(t *testing.T) {
		err := c.HandleBatch(Batch{Observations: []Observation{
			PositionReport{X: 96, Y: 96},
			RayScanReport{Hits: []Hit{{Label: "wall", RelX: 640}}},
		}})
		require.NoError(t, err)
		assert.Equal(t, StateSearching, c.State())
		assert.Equal(t, "turn 0", act.last().String())
	})

	t.Run("died ends the session", func(t *testing.T) {
		err := c.HandleBatch(Batch{Observations: []Observation{DiedReport{}}})
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("lost connection", func(t *testing.T) {
		err := c.HandleBatch(Batch{Err: fmt.Errorf("read: %w", ErrConnectionLost)})
		assert.ErrorIs(t, err, ErrConnectionLost)
	})

	t.Run("observations before a parse error are kept", func(t *testing.T) {
		err := c.HandleBatch(Batch{
			Observations: []Observation{PositionReport{X: 160, Y: 96}},
			Err:          fmt.Errorf("%w: %q", ErrMalformed, "TELL STOPPED far"),
		})
		assert.NoError(t, err)
		assert.Equal(t, cell(160, 96), c.Agent().Location)
		assert.Equal(t, 3.0, testutil.ToFloat64(metrics.Malformed))
	})
}

func TestPlanningFailuresAreFatal(t *testing.T) {
	t.Run("nothing left to explore", func(t *testing.T) {
		c, _ := newTestController(t, testConfig(), Deps{})
		require.NoError(t, c.Handle(PositionReport{X: 96, Y: 96}))
		err := c.Handle(RayScanReport{})
		assert.ErrorIs(t, err, ErrNoFrontier)
	})

	t.Run("frontier cut off", func(t *testing.T) {
		g := grid.NewGraph(64)
		g.AddVertex(cell(416, 96))
		c, _ := newTestController(t, testConfig(), Deps{Graph: g})
		require.NoError(t, c.Handle(PositionReport{X: 96, Y: 96}))
		err := c.Handle(RayScanReport{})
		assert.ErrorIs(t, err, planner.ErrNoPath)
	})
}

func TestNew(t *testing.T) {
	_, err := New(testConfig(), nil, Deps{})
	assert.Error(t, err)

	_, err = New(testConfig(), &recorder{}, Deps{Graph: grid.NewGraph(32)})
	assert.ErrorContains(t, err, "cell size")

	cfg := testConfig()
	cfg.Heuristic = "chebyshev"
	_, err = New(cfg, &recorder{}, Deps{})
	assert.Error(t, err)
}

func TestActuatorErrorsPropagate(t *testing.T) {
	c, act := newTestController(t, testConfig(), Deps{})
	act.fail = errors.New("broken pipe")
	err := c.Handle(PositionReport{X: 96, Y: 96})
	assert.EqualError(t, err, "broken pipe")
}

type snapshots struct {
	mu  sync.Mutex
	got []Snapshot
}

func (s *snapshots) Publish(snap Snapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.got = append(s.got, snap)
}

func TestSnapshotsArePublished(t *testing.T) {
	pub := &snapshots{}
	c, act := newTestController(t, testConfig(), Deps{Publisher: pub})
	corridor(t, c, act)

	require.Len(t, pub.got, 2)
	last := pub.got[1]
	assert.Equal(t, StateSearching, last.State)
	assert.True(t, last.Located)
	assert.Equal(t, 11, last.Known)
	assert.Len(t, last.Map.Features, 11)
	require.NotEmpty(t, last.Route)
	assert.Equal(t, cell(416, 96).Coord(), last.Route[0].Coord())

	// the map export is rebuilt only when the graph changes
	require.NoError(t, c.Handle(TurnReport{}))
	require.Len(t, pub.got, 3)
	assert.Same(t, last.Map, pub.got[2].Map)

	require.NoError(t, c.Handle(PositionReport{X: 416, Y: 96}))
	require.Len(t, pub.got, 4)
	assert.NotSame(t, last.Map, pub.got[3].Map)
	assert.Len(t, pub.got[3].Map.Features, 11)
}
