// Package sim generates deterministic signal values for the light control
// frame, standing in for real vehicle sensors. The ambient light curve
// drives the lamp state the way a twilight sensor would.
package sim

import "math"

// Defaults for the lamp source.
const (
	DefaultStep      = 0.05
	DefaultThreshold = 200.0
)

// Source produces one set of signal values per step.
type Source interface {
	// Next advances simulated time and returns the signal values for the
	// new instant.
	Next() map[string]float64
	// SimTime returns the current simulated time in seconds.
	SimTime() float64
}

// LampSource models ambient light as a slow sine sweep and derives the lamp
// signals from it. Headlamps and tail lamps switch on when ambient drops
// below the threshold.
type LampSource struct {
	t         float64
	step      float64
	threshold float64
}

// NewLampSource creates a lamp source. Zero step or threshold fall back to
// the package defaults.
func NewLampSource(step, threshold float64) *LampSource {
	if step <= 0 {
		step = DefaultStep
	}
	if threshold <= 0 {
		threshold = DefaultThreshold
	}
	return &LampSource{step: step, threshold: threshold}
}

// SimTime returns the current simulated time in seconds.
func (s *LampSource) SimTime() float64 {
	return s.t
}

// Next advances the simulation one step.
func (s *LampSource) Next() map[string]float64 {
	s.t += s.step

	ambient := 250 + 100*math.Sin(s.t)
	speed := 50 + 10*math.Sin(s.t)

	lightLevel := math.Floor(ambient / 400 * 100)
	if lightLevel < 0 {
		lightLevel = 0
	} else if lightLevel > 100 {
		lightLevel = 100
	}

	lampsOn := 0.0
	if ambient < s.threshold {
		lampsOn = 1.0
	}

	return map[string]float64{
		"headLamp":       lampsOn,
		"tailLamp":       lampsOn,
		"brakeLamp":      0,
		"indicatorLeft":  0,
		"indicatorRight": 0,
		"lightLevel":     lightLevel,
		"vehicleSpeed":   speed,
		"ambient":        ambient,
	}
}
