package hrtf

import (
	"fmt"
	"math"
)

// SyntheticConfig parameterizes the spherical-head model used by
// Synthetic.
type SyntheticConfig struct {
	// IRLength is the impulse response length in samples.
	IRLength int

	// Grid is the measurement grid to generate.
	Grid Grid

	// ShadowDB is the maximum level difference between ipsilateral and
	// contralateral ear at 90 degrees azimuth.
	ShadowDB float64

	// Decay controls the exponential tail of each response, in (0, 1).
	Decay float64
}

// DefaultSyntheticConfig returns a 10-degree full-sphere grid with
// 128-sample responses.
func DefaultSyntheticConfig() SyntheticConfig {
	return SyntheticConfig{
		IRLength: 128,
		Grid: Grid{
			AzimuthStep:   10,
			ElevationMin:  -40,
			ElevationMax:  90,
			ElevationStep: 10,
		},
		ShadowDB: 9,
		Decay:    0.55,
	}
}

// Synthetic generates a deterministic dataset from a simple spherical-head
// model: the ear facing the source receives a brighter, louder response,
// the far ear a duller, attenuated one. The responses carry level and
// spectral cues only; interaural time differences are applied separately
// by the renderer, so the generated pairs are time-aligned.
func Synthetic(cfg SyntheticConfig) (*Dataset, error) {
	if cfg.IRLength <= 0 {
		return nil, fmt.Errorf("hrtf: synthetic IR length must be > 0: %d", cfg.IRLength)
	}

	if cfg.Decay <= 0 || cfg.Decay >= 1 {
		return nil, fmt.Errorf("hrtf: synthetic decay must be in (0, 1): %f", cfg.Decay)
	}

	if cfg.ShadowDB < 0 {
		return nil, fmt.Errorf("hrtf: synthetic shadow must be >= 0 dB: %f", cfg.ShadowDB)
	}

	if err := cfg.Grid.Validate(); err != nil {
		return nil, err
	}

	nAz := cfg.Grid.AzimuthCount()
	nEl := cfg.Grid.ElevationCount()
	pairs := make([]Pair, 0, nAz*nEl)

	for ei := range nEl {
		el := cfg.Grid.ElevationMin + float64(ei)*cfg.Grid.ElevationStep

		for ai := range nAz {
			az := float64(ai) * cfg.Grid.AzimuthStep
			pairs = append(pairs, syntheticPair(az, el, cfg))
		}
	}

	return New(cfg.Grid, pairs)
}

// syntheticPair builds one response pair for a direction.
func syntheticPair(azimuthDeg, elevationDeg float64, cfg SyntheticConfig) Pair {
	azRad := azimuthDeg * math.Pi / 180
	elRad := elevationDeg * math.Pi / 180

	// lateral is +1 at the right ear, -1 at the left ear, 0 front/back.
	lateral := math.Sin(azRad) * math.Cos(elRad)

	rightGain := shadowGain(lateral, cfg.ShadowDB)
	leftGain := shadowGain(-lateral, cfg.ShadowDB)

	// The shadowed ear also loses high-frequency content: a lower one-pole
	// coefficient smears the pulse.
	rightAlpha := 0.35 + 0.6*0.5*(1+lateral)
	leftAlpha := 0.35 + 0.6*0.5*(1-lateral)

	return Pair{
		Left:  syntheticIR(cfg.IRLength, leftGain, leftAlpha, cfg.Decay),
		Right: syntheticIR(cfg.IRLength, rightGain, rightAlpha, cfg.Decay),
	}
}

// shadowGain converts a signed lateral position into a linear head-shadow
// gain for one ear. lateral = +1 faces the ear, -1 is fully shadowed.
func shadowGain(lateral, shadowDB float64) float64 {
	db := shadowDB / 2 * lateral

	return math.Pow(10, db/20)
}

// syntheticIR renders a one-pole-filtered exponentially decaying pulse
// normalized so its peak equals gain.
func syntheticIR(length int, gain, alpha, decay float64) []float64 {
	ir := make([]float64, length)

	state := 0.0
	peak := 0.0

	for i := range ir {
		var x float64
		if i == 0 {
			x = 1
		} else {
			x = math.Pow(decay, float64(i))
			if x < 1e-9 {
				x = 0
			}
		}

		state += alpha * (x - state)
		ir[i] = state

		if a := math.Abs(state); a > peak {
			peak = a
		}
	}

	if peak > 0 {
		scale := gain / peak
		for i := range ir {
			ir[i] *= scale
		}
	}

	return ir
}
