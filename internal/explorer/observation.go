package explorer

import (
	"fmt"
	"math"
)

// Observation is a parsed report from the environment. The controller never
// sees raw wire text.
type Observation interface {
	Kind() string
	Validate() error
}

// PositionReport is the agent's pose as reported by the environment
type PositionReport struct {
	X, Y, Z          float64
	Roll, Pitch, Yaw float64
	Velocity         float64
}

// Hit is one ray return or nearby object, relative to the agent
type Hit struct {
	Label      string
	RelX, RelY float64
}

// RayScanReport carries the returns of a ray scan
type RayScanReport struct {
	Hits []Hit
}

// StopReport says the agent stopped after travelling DistanceTraveled
type StopReport struct {
	DistanceTraveled float64
}

// RadiusReport lists objects found by a proximity scan
type RadiusReport struct {
	Objects []Hit
}

// TurnReport acknowledges a completed turn
type TurnReport struct {
	Degrees float64
}

// DiedReport means the environment ended the agent's session
type DiedReport struct{}

func (PositionReport) Kind() string { return "position" }
func (RayScanReport) Kind() string  { return "rays" }
func (StopReport) Kind() string     { return "stop" }
func (RadiusReport) Kind() string   { return "radius" }
func (TurnReport) Kind() string     { return "turn" }
func (DiedReport) Kind() string     { return "died" }

func (o PositionReport) Validate() error {
	return finite("position", o.X, o.Y, o.Z, o.Roll, o.Pitch, o.Yaw, o.Velocity)
}

func (o RayScanReport) Validate() error {
	return validateHits("ray", o.Hits)
}

func (o StopReport) Validate() error {
	if err := finite("stop", o.DistanceTraveled); err != nil {
		return err
	}
	if o.DistanceTraveled < 0 {
		return fmt.Errorf("stop: negative distance %v", o.DistanceTraveled)
	}
	return nil
}

func (o RadiusReport) Validate() error {
	return validateHits("object", o.Objects)
}

func (o TurnReport) Validate() error { return finite("turn", o.Degrees) }

func (DiedReport) Validate() error { return nil }

func validateHits(what string, hits []Hit) error {
	for i, h := range hits {
		if err := finite(what, h.RelX, h.RelY); err != nil {
			return fmt.Errorf("%s %d: %w", what, i, err)
		}
	}
	return nil
}

func finite(what string, vals ...float64) error {
	for _, v := range vals {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return fmt.Errorf("%s: non-finite value %v", what, v)
		}
	}
	return nil
}

// Batch is a group of observations delivered together. A transport that
// cannot parse an event stops the batch there and reports it through Err.
type Batch struct {
	Observations []Observation
	Err          error
}

// Actuator issues intents to the environment. Commands are fire-and-forget:
// their effect shows up only in later observations. An error means the
// command could not be delivered.
type Actuator interface {
	Turn(degrees int) error
	Walk(distance int) error
	RequestPosition() error
	RequestRays(count int) error
	RequestRadiusScan(radius int) error
	Pickup(label string) error
}
