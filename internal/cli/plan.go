package cli

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/spf13/cobra"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/config"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/planner"
)

var planFlags struct {
	mapFile   string
	from      string
	to        string
	heuristic string
	dense     bool
	geoJSON   bool
}

var planCmd = &cobra.Command{
	Use:   "plan",
	Short: "Plan a route on a saved map",
	Long: `Plan a route between two positions on a map saved by "explorer run --map".

Positions are snapped to the map's grid. The route is printed one waypoint per
line, or as a GeoJSON LineString feature with --geojson.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if planFlags.heuristic != "" {
			cfg.Heuristic = planFlags.heuristic
		}
		heuristic, err := planner.HeuristicByName(cfg.Heuristic)
		if err != nil {
			return err
		}

		from, err := parsePoint(planFlags.from)
		if err != nil {
			return fmt.Errorf("--from: %w", err)
		}
		to, err := parsePoint(planFlags.to)
		if err != nil {
			return fmt.Errorf("--to: %w", err)
		}

		g, err := grid.LoadMap(planFlags.mapFile)
		if err != nil {
			return err
		}

		p := planner.New(g, planner.Options{
			WallAdjacentPenalty: cfg.WallAdjacentPenalty,
			WallPenalty:         cfg.WallPenalty,
			Heuristic:           heuristic,
		})
		start := g.Snap(from[0], from[1])
		goal := g.Snap(to[0], to[1])

		var route *planner.Path
		if planFlags.dense {
			route, err = p.FindPath(start, goal)
		} else {
			route, err = planner.NewSimplifier(p, cfg.MinSimplifyLen).Route(start, goal)
		}
		if err != nil {
			return err
		}

		out := cmd.OutOrStdout()
		if planFlags.geoJSON {
			f := geojson.NewFeature(route.LineString())
			f.Properties["length"] = route.Length()
			f.Properties["cost"] = p.Cost(route)
			enc := json.NewEncoder(out)
			enc.SetIndent("", "  ")
			return enc.Encode(f)
		}
		for _, c := range route.Cells() {
			fmt.Fprintf(out, "%d %d\n", c.X, c.Y)
		}
		fmt.Fprintf(out, "# %d waypoints, length %.1f\n", route.Len(), route.Length())
		return nil
	},
}

func init() {
	planCmd.Flags().StringVar(&planFlags.mapFile, "map", "", "GeoJSON map file")
	planCmd.Flags().StringVar(&planFlags.from, "from", "", "start position as x,y")
	planCmd.Flags().StringVar(&planFlags.to, "to", "", "goal position as x,y")
	planCmd.Flags().StringVar(&planFlags.heuristic, "heuristic", "", "euclidean or manhattan")
	planCmd.Flags().BoolVar(&planFlags.dense, "dense", false, "print every cell instead of waypoints")
	planCmd.Flags().BoolVar(&planFlags.geoJSON, "geojson", false, "print a GeoJSON feature")
	_ = planCmd.MarkFlagRequired("map")
	_ = planCmd.MarkFlagRequired("from")
	_ = planCmd.MarkFlagRequired("to")
}

func parsePoint(s string) (orb.Point, error) {
	parts := strings.Split(s, ",")
	if len(parts) != 2 {
		return orb.Point{}, fmt.Errorf("expected x,y, got %q", s)
	}
	var p orb.Point
	for i, part := range parts {
		v, err := strconv.ParseFloat(strings.TrimSpace(part), 64)
		if err != nil {
			return orb.Point{}, fmt.Errorf("bad coordinate %q", part)
		}
		p[i] = v
	}
	return p, nil
}
