package cli

import (
	"bufio"
	"bytes"
	"context"
	"net"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/paulmach/orb"
	"github.com/paulmach/orb/geojson"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/config"
	"github.com/MaastrichtU-BISS/grid-explorer/internal/grid"
)

func execute(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var buf bytes.Buffer
	rootCmd.SetOut(&buf)
	rootCmd.SetErr(&buf)
	rootCmd.SetArgs(args)
	err := rootCmd.Execute()
	return buf.String(), err
}

// savedMap writes an L-shaped corridor: along y=32 to x=288, then up to y=288
func savedMap(t *testing.T) string {
	t.Helper()
	g := grid.NewGraph(64)
	for x := 32; x <= 288; x += 64 {
		g.AddVertex(grid.NewCell(x, 32))
	}
	for y := 96; y <= 288; y += 64 {
		g.AddVertex(grid.NewCell(288, y))
	}
	path := filepath.Join(t.TempDir(), "map.geojson")
	require.NoError(t, grid.SaveMap(g, path))
	return path
}

func TestVersion(t *testing.T) {
	out, err := execute(t, "version")
	require.NoError(t, err)
	assert.Equal(t, rootCmd.Version+"\n", out)
}

func TestPlan(t *testing.T) {
	mapFile := savedMap(t)

	t.Run("waypoints", func(t *testing.T) {
		planFlags.dense, planFlags.geoJSON = false, false
		out, err := execute(t, "plan", "--map", mapFile, "--from", "40,20", "--to", "300, 270")
		require.NoError(t, err)
		assert.Equal(t, "32 32\n288 32\n288 288\n# 3 waypoints, length 512.0\n", out)
	})

	t.Run("dense", func(t *testing.T) {
		planFlags.dense, planFlags.geoJSON = false, false
		out, err := execute(t, "plan", "--map", mapFile, "--from", "32,32", "--to", "288,288", "--dense")
		require.NoError(t, err)
		lines := strings.Split(strings.TrimSpace(out), "\n")
		assert.Len(t, lines, 10)
		assert.Equal(t, "# 9 waypoints, length 512.0", lines[9])
	})

	t.Run("geojson", func(t *testing.T) {
		planFlags.dense, planFlags.geoJSON = false, false
		out, err := execute(t, "plan", "--map", mapFile, "--from", "32,32", "--to", "288,288", "--geojson")
		require.NoError(t, err)
		f, err := geojson.UnmarshalFeature([]byte(out))
		require.NoError(t, err)
		assert.Equal(t, orb.LineString{{32, 32}, {288, 32}, {288, 288}}, f.Geometry)
		assert.InDelta(t, 512, f.Properties.MustFloat64("length"), 1e-9)
	})

	t.Run("no route", func(t *testing.T) {
		planFlags.dense, planFlags.geoJSON = false, false
		_, err := execute(t, "plan", "--map", mapFile, "--from", "32,32", "--to", "900,900")
		assert.ErrorContains(t, err, "no path")
	})

	t.Run("bad position", func(t *testing.T) {
		_, err := execute(t, "plan", "--map", mapFile, "--from", "32", "--to", "288,288")
		assert.ErrorContains(t, err, "--from")
	})
}

func TestParsePoint(t *testing.T) {
	p, err := parsePoint(" 1.5, -2 ")
	require.NoError(t, err)
	assert.Equal(t, orb.Point{1.5, -2}, p)

	for _, bad := range []string{"", "1", "1,2,3", "a,2"} {
		_, err := parsePoint(bad)
		assert.Error(t, err, bad)
	}
}

// fakeEnvironment answers the first few commands of a session and then kills
// the agent.
func fakeEnvironment(t *testing.T, ln net.Listener, seen chan<- []string) {
	conn, err := ln.Accept()
	if err != nil {
		return
	}
	defer conn.Close()
	r := bufio.NewReader(conn)

	var got []string
	exchange := []struct{ expect, reply string }{
		{"do getwhere", "CMD_OK do getwhere 96 96 0 0 0 0 0\n"},
		{"ask rays 24", "CMD_OK ask rays 1 wall 640 0 0\n"},
		{"do turnby 0", "TELL DIED\n"},
	}
	for _, step := range exchange {
		line, err := r.ReadString('\n')
		if err != nil {
			break
		}
		got = append(got, strings.TrimSpace(line))
		if _, err := conn.Write([]byte(step.reply)); err != nil {
			break
		}
	}
	seen <- got
}

func TestRunExplorerSession(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer ln.Close()

	seen := make(chan []string, 1)
	go fakeEnvironment(t, ln, seen)

	cfg := config.Default()
	cfg.Address = ln.Addr().String()
	cfg.RadiusScan = 0
	cfg.Seed = 1
	cfg.MapFile = filepath.Join(t.TempDir(), "session.geojson")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, runExplorer(ctx, cfg, zerolog.Nop()))

	assert.Equal(t, []string{"do getwhere", "ask rays 24", "do turnby 0"}, <-seen)

	g, err := grid.LoadMap(cfg.MapFile)
	require.NoError(t, err)
	assert.Equal(t, 11, g.Len())
	wall, ok := g.Lookup(grid.NewCell(736, 96))
	require.True(t, ok)
	assert.True(t, wall.IsWall())
}

func TestRunExplorerDialFailure(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := ln.Addr().String()
	require.NoError(t, ln.Close())

	cfg := config.Default()
	cfg.Address = addr
	err = runExplorer(context.Background(), cfg, zerolog.Nop())
	assert.ErrorContains(t, err, "dial")
}
