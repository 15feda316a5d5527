package quagent

import (
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"github.com/MaastrichtU-BISS/grid-explorer/internal/explorer"
)

// Parse turns one event line into an observation. Lines the explorer has no
// use for (command acknowledgements other than getwhere, turnby and the
// scans) return a nil observation and no error.
func Parse(line string) (explorer.Observation, error) {
	tokens := strings.FieldsFunc(line, func(r rune) bool {
		return unicode.IsSpace(r) || r == '(' || r == ')' || r == ','
	})
	if len(tokens) < 2 {
		return nil, nil
	}

	switch tokens[0] {
	case "CMD_OK":
		if len(tokens) < 3 {
			return nil, nil
		}
		switch tokens[1] + " " + tokens[2] {
		case "do getwhere":
			return parsePosition(line, tokens[3:])
		case "do turnby":
			v, err := parseFloats(line, tokens[3:], 1)
			if err != nil {
				return nil, err
			}
			return explorer.TurnReport{Degrees: v[0]}, nil
		case "ask rays":
			hits, err := parseHits(line, tokens[3:])
			if err != nil {
				return nil, err
			}
			return explorer.RayScanReport{Hits: hits}, nil
		case "ask radius":
			if len(tokens) < 4 {
				return nil, malformed(line, "missing radius")
			}
			hits, err := parseHits(line, tokens[4:])
			if err != nil {
				return nil, err
			}
			return explorer.RadiusReport{Objects: hits}, nil
		}
	case "TELL":
		switch tokens[1] {
		case "STOPPED":
			v, err := parseFloats(line, tokens[2:], 1)
			if err != nil {
				return nil, err
			}
			return explorer.StopReport{DistanceTraveled: v[0]}, nil
		case "DIED":
			return explorer.DiedReport{}, nil
		}
	}
	return nil, nil
}

func parsePosition(line string, args []string) (explorer.Observation, error) {
	v, err := parseFloats(line, args, 7)
	if err != nil {
		return nil, err
	}
	return explorer.PositionReport{
		X: v[0], Y: v[1], Z: v[2],
		Roll: v[3], Pitch: v[4], Yaw: v[5],
		Velocity: v[6],
	}, nil
}

// parseHits reads "<n> (<label> <x> <y> <z>)*"
func parseHits(line string, args []string) ([]explorer.Hit, error) {
	if len(args) == 0 {
		return nil, malformed(line, "missing count")
	}
	n, err := strconv.Atoi(args[0])
	if err != nil || n < 0 {
		return nil, malformed(line, "bad count %q", args[0])
	}
	args = args[1:]
	if len(args) != 4*n {
		return nil, malformed(line, "expected %d objects, got %d fields", n, len(args))
	}

	hits := make([]explorer.Hit, 0, n)
	for i := 0; i < len(args); i += 4 {
		v, err := parseFloats(line, args[i+1:i+4], 3)
		if err != nil {
			return nil, err
		}
		hits = append(hits, explorer.Hit{Label: args[i], RelX: v[0], RelY: v[1]})
	}
	return hits, nil
}

func parseFloats(line string, args []string, n int) ([]float64, error) {
	if len(args) < n {
		return nil, malformed(line, "expected %d values, got %d", n, len(args))
	}
	out := make([]float64, n)
	for i := range out {
		v, err := strconv.ParseFloat(args[i], 64)
		if err != nil {
			return nil, malformed(line, "bad number %q", args[i])
		}
		out[i] = v
	}
	return out, nil
}

func malformed(line, format string, args ...any) error {
	return fmt.Errorf("%w: %q: %s", explorer.ErrMalformed, line, fmt.Sprintf(format, args...))
}
