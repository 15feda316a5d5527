package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/explorer"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/planner"
)

type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

type RouteRequest struct {
	Start Point `json:"start"`
	End   Point `json:"end"`
}

type RouteResponse struct {
	Path     []Point `json:"path"`
	Success  bool    `json:"success"`
	Message  string  `json:"message,omitempty"`
	Distance float64 `json:"distance,omitempty"`
}

// Server is the read-only status surface of a running explorer. It keeps the
// latest published snapshot and never touches the controller directly.
type Server struct {
	addr       string
	gatherer   prometheus.Gatherer
	opts       planner.Options
	minLen     int
	log        zerolog.Logger
	httpServer *http.Server

	mu     sync.RWMutex
	latest *explorer.Snapshot
}

var _ explorer.Publisher = (*Server)(nil)

func New(addr string, gatherer prometheus.Gatherer, opts planner.Options, minSimplifyLen int, log zerolog.Logger) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	return &Server{
		addr:     addr,
		gatherer: gatherer,
		opts:     opts,
		minLen:   minSimplifyLen,
		log:      log.With().Str("component", "status").Logger(),
	}
}

// Publish stores the snapshot served by the handlers
func (s *Server) Publish(snap explorer.Snapshot) {
	s.mu.Lock()
	s.latest = &snap
	s.mu.Unlock()
}

func (s *Server) snapshot() *explorer.Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.latest
}

// Handler returns the router
func (s *Server) Handler() http.Handler {
	r := chi.NewRouter()
	r.Use(s.loggingMiddleware)
	r.Use(corsMiddleware)

	r.Get("/health", s.handleHealth)
	r.Get("/map", s.handleMap)
	r.Get("/route", s.handleRoute)
	r.Post("/route", s.handlePlan)
	r.Get("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}).ServeHTTP)
	return r
}

// Start serves until ctx is done
func (s *Server) Start(ctx context.Context) error {
	s.httpServer = &http.Server{
		Addr:              s.addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errc := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", s.addr).Msg("status server listening")
		errc <- s.httpServer.ListenAndServe()
	}()

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("status server failed: %w", err)
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("failed to shutdown status server: %w", err)
		}
		return nil
	}
}

func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.log.Debug().Str("method", r.Method).Str("path", r.URL.Path).Msg("request")
		next.ServeHTTP(w, r)
	})
}

// corsMiddleware lets browser dashboards poll the status endpoints
func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "POST, GET, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type")

		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

// GET /health
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"status": "waiting for first observation",
		})
		return
	}

	body := map[string]interface{}{
		"status":     "ready",
		"state":      snap.State.String(),
		"known":      snap.Known,
		"unexplored": snap.Unexplored,
		"edges":      snap.Edges,
		"updated":    snap.Time.Format(time.RFC3339),
	}
	if snap.Located {
		body["location"] = Point{X: float64(snap.Location.X), Y: float64(snap.Location.Y)}
	}
	if snap.HasTarget {
		body["target"] = Point{X: float64(snap.Target.X), Y: float64(snap.Target.Y)}
	}
	writeJSON(w, http.StatusOK, body)
}

// GET /map - the occupancy graph as GeoJSON
func (s *Server) handleMap(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil || snap.Map == nil {
		http.Error(w, "no map yet", http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, http.StatusOK, snap.Map)
}

// GET /route - the remaining route as a GeoJSON LineString, starting at the
// agent's cell
func (s *Server) handleRoute(w http.ResponseWriter, r *http.Request) {
	snap := s.snapshot()
	if snap == nil || !snap.Located {
		http.Error(w, "agent not located yet", http.StatusServiceUnavailable)
		return
	}

	line := orb.LineString{snap.Location.Point()}
	for _, c := range snap.Route {
		line = append(line, c.Point())
	}
	f := geojson.NewFeature(line)
	f.Properties["state"] = snap.State.String()
	f.Properties["waypoints"] = len(snap.Route)
	writeJSON(w, http.StatusOK, f)
}

// POST /route - plan between two positions on the latest map
func (s *Server) handlePlan(w http.ResponseWriter, r *http.Request) {
	var req RouteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	snap := s.snapshot()
	if snap == nil || snap.Map == nil {
		http.Error(w, "no map yet", http.StatusServiceUnavailable)
		return
	}
	g, err := grid.FromFeatureCollection(snap.Map)
	if err != nil {
		s.log.Error().Err(err).Msg("snapshot map unreadable")
		http.Error(w, "map unavailable", http.StatusInternalServerError)
		return
	}

	start := g.Snap(req.Start.X, req.Start.Y)
	end := g.Snap(req.End.X, req.End.Y)
	route, err := planner.NewSimplifier(planner.New(g, s.opts), s.minLen).Route(start, end)
	if err != nil {
		s.log.Debug().Err(err).Stringer("start", start).Stringer("end", end).Msg("no route")
		writeJSON(w, http.StatusOK, RouteResponse{Success: false, Message: err.Error()})
		return
	}

	resp := RouteResponse{Success: true, Distance: route.Length()}
	for _, c := range route.Cells() {
		resp.Path = append(resp.Path, Point{X: float64(c.X), Y: float64(c.Y)})
	}
	writeJSON(w, http.StatusOK, resp)
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
