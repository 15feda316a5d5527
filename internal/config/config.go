package config

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	EnvAddress    = "EXPLORER_ADDRESS"
	EnvStatusAddr = "EXPLORER_STATUS_ADDR"
	EnvLogLevel   = "EXPLORER_LOG_LEVEL"
	EnvMapFile    = "EXPLORER_MAP_FILE"
)

// Config holds every tunable of the explorer
type Config struct {
	// Environment connection
	Address    string
	StatusAddr string
	MapFile    string
	LogLevel   string

	// Map
	CellSize      int
	ExploreRadius float64

	// Frontier selection
	MinClearance   float64
	FrontierRadius float64

	// Sensing
	RayCount    int
	RadiusScan  int
	PickupRange float64
	GoalLabel   string

	// Motion and recovery
	StuckThreshold float64
	UnstickCells   int
	Watchdog       time.Duration
	Seed           int64

	// Planning
	WallAdjacentPenalty float64
	WallPenalty         float64
	Heuristic           string
	MinSimplifyLen      int
}

// Default returns the configuration used when no file is given
func Default() Config {
	return Config{
		Address:             "localhost:33333",
		LogLevel:            "info",
		CellSize:            64,
		ExploreRadius:       200,
		MinClearance:        200,
		FrontierRadius:      256,
		RayCount:            24,
		RadiusScan:          300,
		PickupRange:         60,
		GoalLabel:           "tofu",
		StuckThreshold:      1.0,
		UnstickCells:        2,
		Watchdog:            10 * time.Second,
		WallAdjacentPenalty: 5000,
		WallPenalty:         50000,
		Heuristic:           "euclidean",
		MinSimplifyLen:      5,
	}
}

type fileConfig struct {
	Address             string  `toml:"address"`
	StatusAddr          string  `toml:"status_addr"`
	MapFile             string  `toml:"map_file"`
	LogLevel            string  `toml:"log_level"`
	CellSize            int     `toml:"cell_size"`
	ExploreRadius       float64 `toml:"explore_radius"`
	MinClearance        float64 `toml:"min_clearance"`
	FrontierRadius      float64 `toml:"frontier_radius"`
	RayCount            int     `toml:"ray_count"`
	RadiusScan          int     `toml:"radius_scan"`
	PickupRange         float64 `toml:"pickup_range"`
	GoalLabel           string  `toml:"goal_label"`
	StuckThreshold      float64 `toml:"stuck_threshold"`
	UnstickCells        int     `toml:"unstick_cells"`
	Watchdog            string  `toml:"watchdog"`
	Seed                int64   `toml:"seed"`
	WallAdjacentPenalty float64 `toml:"wall_adjacent_penalty"`
	WallPenalty         float64 `toml:"wall_penalty"`
	Heuristic           string  `toml:"heuristic"`
	MinSimplifyLen      int     `toml:"min_simplify_len"`
}

// Load reads a TOML file over the defaults, then applies environment
// overrides. An empty path skips the file.
func Load(path string) (Config, error) {
	cfg := Default()
	if path != "" {
		if err := decodeFile(path, &cfg); err != nil {
			return Config{}, err
		}
	}
	applyEnvOverrides(&cfg)
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func decodeFile(path string, cfg *Config) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load explorer config: %w", err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("load explorer config: unknown key %q", undecoded[0].String())
	}

	if meta.IsDefined("address") {
		cfg.Address = strings.TrimSpace(raw.Address)
	}
	if meta.IsDefined("status_addr") {
		cfg.StatusAddr = strings.TrimSpace(raw.StatusAddr)
	}
	if meta.IsDefined("map_file") {
		cfg.MapFile = strings.TrimSpace(raw.MapFile)
	}
	if meta.IsDefined("log_level") {
		cfg.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("cell_size") {
		cfg.CellSize = raw.CellSize
	}
	if meta.IsDefined("explore_radius") {
		cfg.ExploreRadius = raw.ExploreRadius
	}
	if meta.IsDefined("min_clearance") {
		cfg.MinClearance = raw.MinClearance
	}
	if meta.IsDefined("frontier_radius") {
		cfg.FrontierRadius = raw.FrontierRadius
	}
	if meta.IsDefined("ray_count") {
		cfg.RayCount = raw.RayCount
	}
	if meta.IsDefined("radius_scan") {
		cfg.RadiusScan = raw.RadiusScan
	}
	if meta.IsDefined("pickup_range") {
		cfg.PickupRange = raw.PickupRange
	}
	if meta.IsDefined("goal_label") {
		cfg.GoalLabel = strings.TrimSpace(raw.GoalLabel)
	}
	if meta.IsDefined("stuck_threshold") {
		cfg.StuckThreshold = raw.StuckThreshold
	}
	if meta.IsDefined("unstick_cells") {
		cfg.UnstickCells = raw.UnstickCells
	}
	if meta.IsDefined("watchdog") {
		d, err := time.ParseDuration(strings.TrimSpace(raw.Watchdog))
		if err != nil {
			return fmt.Errorf("parse watchdog: %w", err)
		}
		cfg.Watchdog = d
	}
	if meta.IsDefined("seed") {
		cfg.Seed = raw.Seed
	}
	if meta.IsDefined("wall_adjacent_penalty") {
		cfg.WallAdjacentPenalty = raw.WallAdjacentPenalty
	}
	if meta.IsDefined("wall_penalty") {
		cfg.WallPenalty = raw.WallPenalty
	}
	if meta.IsDefined("heuristic") {
		cfg.Heuristic = strings.ToLower(strings.TrimSpace(raw.Heuristic))
	}
	if meta.IsDefined("min_simplify_len") {
		cfg.MinSimplifyLen = raw.MinSimplifyLen
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	if v := strings.TrimSpace(os.Getenv(EnvAddress)); v != "" {
		cfg.Address = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvStatusAddr)); v != "" {
		cfg.StatusAddr = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvLogLevel)); v != "" {
		cfg.LogLevel = v
	}
	if v := strings.TrimSpace(os.Getenv(EnvMapFile)); v != "" {
		cfg.MapFile = v
	}
}

// Validate rejects values the explorer cannot run with
func (c Config) Validate() error {
	var errs []error
	if c.CellSize <= 0 {
		errs = append(errs, fmt.Errorf("cell_size must be positive, got %d", c.CellSize))
	}
	if c.RayCount <= 0 {
		errs = append(errs, fmt.Errorf("ray_count must be positive, got %d", c.RayCount))
	}
	if c.UnstickCells <= 0 {
		errs = append(errs, fmt.Errorf("unstick_cells must be positive, got %d", c.UnstickCells))
	}
	if c.Watchdog <= 0 {
		errs = append(errs, fmt.Errorf("watchdog must be positive, got %s", c.Watchdog))
	}
	if c.ExploreRadius < 0 || c.FrontierRadius < 0 || c.MinClearance < 0 || c.PickupRange < 0 {
		errs = append(errs, errors.New("radii must not be negative"))
	}
	switch c.Heuristic {
	case "euclidean", "manhattan":
	default:
		errs = append(errs, fmt.Errorf("heuristic must be euclidean or manhattan, got %q", c.Heuristic))
	}
	return errors.Join(errs...)
}
