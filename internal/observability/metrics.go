package observability

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Metrics are the explorer's Prometheus instruments. A nil *Metrics is valid
// and records nothing.
type Metrics struct {
	Observations    *prometheus.CounterVec
	Malformed       prometheus.Counter
	Replans         *prometheus.CounterVec
	StuckEvents     prometheus.Counter
	WatchdogFirings prometheus.Counter
	Pickups         prometheus.Counter
	KnownCells      prometheus.Gauge
	UnexploredCells prometheus.Gauge
	Edges           prometheus.Gauge
}

// NewMetrics creates the instruments and registers them with reg
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Observations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_observations_total",
			Help: "Observations processed, by kind.",
		}, []string{"kind"}),
		Malformed: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorer_malformed_observations_total",
			Help: "Observations rejected as malformed.",
		}),
		Replans: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "explorer_replans_total",
			Help: "Routes planned, by target heuristic.",
		}, []string{"heuristic"}),
		StuckEvents: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorer_stuck_events_total",
			Help: "Motions that ended with negligible displacement.",
		}),
		WatchdogFirings: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorer_watchdog_firings_total",
			Help: "Position queries forced by the liveness watchdog.",
		}),
		Pickups: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "explorer_pickups_total",
			Help: "Pickup actions issued.",
		}),
		KnownCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "explorer_known_cells",
			Help: "Cells in the occupancy graph.",
		}),
		UnexploredCells: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "explorer_unexplored_cells",
			Help: "Known cells not yet explored.",
		}),
		Edges: prometheus.NewGauge(prometheus.GaugeOpts{
			Name: "explorer_graph_edges",
			Help: "Edges in the occupancy graph.",
		}),
	}
	if reg != nil {
		reg.MustRegister(
			m.Observations, m.Malformed, m.Replans, m.StuckEvents,
			m.WatchdogFirings, m.Pickups, m.KnownCells, m.UnexploredCells, m.Edges,
		)
	}
	return m
}

func (m *Metrics) Observed(kind string) {
	if m != nil {
		m.Observations.WithLabelValues(kind).Inc()
	}
}

func (m *Metrics) MalformedObservation() {
	if m != nil {
		m.Malformed.Inc()
	}
}

func (m *Metrics) Replanned(heuristic string) {
	if m != nil {
		m.Replans.WithLabelValues(heuristic).Inc()
	}
}

func (m *Metrics) Stuck() {
	if m != nil {
		m.StuckEvents.Inc()
	}
}

func (m *Metrics) WatchdogFired() {
	if m != nil {
		m.WatchdogFirings.Inc()
	}
}

func (m *Metrics) PickedUp() {
	if m != nil {
		m.Pickups.Inc()
	}
}

// GraphSize records the current size of the occupancy graph
func (m *Metrics) GraphSize(known, unexplored, edges int) {
	if m == nil {
		return
	}
	m.KnownCells.Set(float64(known))
	m.UnexploredCells.Set(float64(unexplored))
	m.Edges.Set(float64(edges))
}
