// Package room synthesizes the acoustic environment contribution: a
// small set of directionally filtered early reflections plus a feedback
// delay network for the late reverberant field. The output is wet only;
// the direct signal is mixed separately.
package room

import (
	"fmt"

	"github.com/cwbudde/algo-binaural/internal/dspmath"
	"github.com/cwbudde/algo-binaural/spatial"
)

// Preset selects a predefined room model.
type Preset int

const (
	// PresetSmallRoom is a damped domestic room.
	PresetSmallRoom Preset = iota
	// PresetMediumRoom is a rehearsal-space sized room.
	PresetMediumRoom
	// PresetLargeHall is a concert-hall sized space.
	PresetLargeHall
)

// Model holds the immutable acoustic parameters of a session. Replacing
// the model requires resetting the renderer state; it is never mutated
// mid-stream.
type Model struct {
	// Dimensions of the shoebox room in meters: X depth, Y width, Z
	// height.
	Dimensions spatial.Vec3

	// Absorption is the mean wall absorption coefficient in (0, 1].
	Absorption float64

	// DecayTime is the late-field RT60 in seconds.
	DecayTime float64

	// Damping controls high-frequency loss in the late field, in [0, 1).
	Damping float64
}

// PresetModel returns the model for a preset. Unknown presets fall back
// to the medium room.
func PresetModel(p Preset) Model {
	switch p {
	case PresetSmallRoom:
		return Model{
			Dimensions: spatial.Vec3{X: 4, Y: 3.5, Z: 2.5},
			Absorption: 0.35,
			DecayTime:  0.4,
			Damping:    0.45,
		}
	case PresetLargeHall:
		return Model{
			Dimensions: spatial.Vec3{X: 30, Y: 20, Z: 12},
			Absorption: 0.12,
			DecayTime:  2.4,
			Damping:    0.25,
		}
	default:
		return Model{
			Dimensions: spatial.Vec3{X: 8, Y: 6, Z: 3.5},
			Absorption: 0.25,
			DecayTime:  0.9,
			Damping:    0.35,
		}
	}
}

// Validate rejects parameter sets that would be unstable or meaningless
// before they can reach the processing path.
func (m Model) Validate() error {
	for _, d := range [...]float64{m.Dimensions.X, m.Dimensions.Y, m.Dimensions.Z} {
		if d <= 0 || !dspmath.IsFinite(d) {
			return fmt.Errorf("room: dimensions must be > 0 and finite: %+v", m.Dimensions)
		}
	}

	if m.Absorption <= 0 || m.Absorption > 1 || !dspmath.IsFinite(m.Absorption) {
		return fmt.Errorf("room: absorption must be in (0, 1]: %f", m.Absorption)
	}

	if m.DecayTime <= 0.05 || m.DecayTime > 30 || !dspmath.IsFinite(m.DecayTime) {
		return fmt.Errorf("room: decay time must be in (0.05, 30] s: %f", m.DecayTime)
	}

	if m.Damping < 0 || m.Damping >= 1 || !dspmath.IsFinite(m.Damping) {
		return fmt.Errorf("room: damping must be in [0, 1): %f", m.Damping)
	}

	return nil
}
