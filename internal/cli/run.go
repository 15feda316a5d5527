package cli

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/config"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/explorer"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/observability"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/planner"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/quagent"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/server"
)

var runFlags struct {
	address    string
	statusAddr string
	mapFile    string
	logLevel   string
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Connect to the environment and explore until the agent dies",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(configPath)
		if err != nil {
			return err
		}
		if runFlags.address != "" {
			cfg.Address = runFlags.address
		}
		if runFlags.statusAddr != "" {
			cfg.StatusAddr = runFlags.statusAddr
		}
		if runFlags.mapFile != "" {
			cfg.MapFile = runFlags.mapFile
		}
		if runFlags.logLevel != "" {
			cfg.LogLevel = runFlags.logLevel
		}

		log := observability.InitLogger("explorer", cfg.LogLevel)
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return runExplorer(ctx, cfg, log)
	},
}

func init() {
	runCmd.Flags().StringVar(&runFlags.address, "address", "", "environment address (host:port)")
	runCmd.Flags().StringVar(&runFlags.statusAddr, "status-addr", "", "serve status endpoints on this address")
	runCmd.Flags().StringVar(&runFlags.mapFile, "map", "", "GeoJSON map to seed from and save to")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "log level")
}

// runExplorer runs one exploration session. The session ending on the
// environment's side is a normal exit.
func runExplorer(ctx context.Context, cfg config.Config, log zerolog.Logger) error {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := observability.NewMetrics(reg)

	seed, err := loadSeedMap(cfg, log)
	if err != nil {
		return err
	}

	client, err := quagent.Dial(ctx, cfg.Address, log)
	if err != nil {
		return err
	}
	defer client.Close()
	log.Info().Str("address", cfg.Address).Msg("connected to environment")

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()
	g, gctx := errgroup.WithContext(ctx)

	deps := explorer.Deps{Graph: seed, Logger: log, Metrics: metrics}
	if cfg.StatusAddr != "" {
		heuristic, err := planner.HeuristicByName(cfg.Heuristic)
		if err != nil {
			return err
		}
		status := server.New(cfg.StatusAddr, reg, planner.Options{
			WallAdjacentPenalty: cfg.WallAdjacentPenalty,
			WallPenalty:         cfg.WallPenalty,
			Heuristic:           heuristic,
		}, cfg.MinSimplifyLen, log)
		deps.Publisher = status
		g.Go(func() error { return status.Start(gctx) })
	}

	ctrl, err := explorer.New(cfg, client, deps)
	if err != nil {
		return err
	}

	var runErr error
	g.Go(func() error {
		// stop the status server with the session
		defer cancel()
		runErr = ctrl.Run(gctx, client.Events(gctx))
		return nil
	})
	if err := g.Wait(); err != nil {
		return err
	}

	if cfg.MapFile != "" {
		if err := grid.SaveMap(ctrl.Graph(), cfg.MapFile); err != nil {
			log.Error().Err(err).Str("file", cfg.MapFile).Msg("failed to save map")
		} else {
			log.Info().Str("file", cfg.MapFile).Int("cells", ctrl.Graph().Len()).Msg("map saved")
		}
	}

	switch {
	case errors.Is(runErr, explorer.ErrConnectionLost):
		log.Info().Err(runErr).Msg("session ended")
		return nil
	case errors.Is(runErr, context.Canceled):
		log.Info().Msg("interrupted")
		return nil
	}
	return runErr
}

func loadSeedMap(cfg config.Config, log zerolog.Logger) (*grid.Graph, error) {
	if cfg.MapFile == "" {
		return nil, nil
	}
	g, err := grid.LoadMap(cfg.MapFile)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		log.Info().Str("file", cfg.MapFile).Msg("no saved map, starting fresh")
		return nil, nil
	case err != nil:
		return nil, fmt.Errorf("load map %s: %w", cfg.MapFile, err)
	}
	log.Info().Str("file", cfg.MapFile).Int("cells", g.Len()).Msg("loaded map")
	return g, nil
}
