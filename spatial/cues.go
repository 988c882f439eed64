package spatial

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-binaural/internal/dspmath"
)

// Speed of sound in air at room temperature, m/s.
const speedOfSound = 343.0

// DistanceModel selects the distance attenuation law.
type DistanceModel int

const (
	// DistanceInverse attenuates with 1/d relative to the reference
	// distance.
	DistanceInverse DistanceModel = iota
	// DistanceInverseSquare attenuates with 1/d^2 relative to the
	// reference distance.
	DistanceInverseSquare
)

// CueConfig parameterizes the interaural cue model.
type CueConfig struct {
	// SampleRate in Hz; converts the time difference to samples.
	SampleRate float64

	// MaxITDSamples bounds the per-ear delay.
	MaxITDSamples float64

	// HeadRadius in meters for the Woodworth time-difference formula.
	HeadRadius float64

	// RefDistance is the distance at which attenuation is unity.
	RefDistance float64

	// MinDistance clamps the effective distance to avoid the 1/d
	// singularity.
	MinDistance float64

	// Model selects the attenuation law.
	Model DistanceModel

	// ShadowDB is the maximum interaural level difference from head
	// shadowing at 90 degrees azimuth and reference distance.
	ShadowDB float64
}

// DefaultCueConfig returns the cue model defaults for a sample rate.
func DefaultCueConfig(sampleRate float64) CueConfig {
	return CueConfig{
		SampleRate:    sampleRate,
		MaxITDSamples: math.Ceil(maxWoodworthITD(defaultHeadRadius) * sampleRate),
		HeadRadius:    defaultHeadRadius,
		RefDistance:   1,
		MinDistance:   0.1,
		Model:         DistanceInverse,
		ShadowDB:      6,
	}
}

const defaultHeadRadius = 0.0875

// Validate checks the configuration.
func (c CueConfig) Validate() error {
	if c.SampleRate <= 0 || !dspmath.IsFinite(c.SampleRate) {
		return fmt.Errorf("spatial: sample rate must be > 0 and finite: %f", c.SampleRate)
	}

	if c.MaxITDSamples < 0 || !dspmath.IsFinite(c.MaxITDSamples) {
		return fmt.Errorf("spatial: max ITD must be >= 0 and finite: %f", c.MaxITDSamples)
	}

	if c.HeadRadius <= 0 || !dspmath.IsFinite(c.HeadRadius) {
		return fmt.Errorf("spatial: head radius must be > 0 and finite: %f", c.HeadRadius)
	}

	if c.RefDistance <= 0 || !dspmath.IsFinite(c.RefDistance) {
		return fmt.Errorf("spatial: reference distance must be > 0 and finite: %f", c.RefDistance)
	}

	if c.MinDistance <= 0 || !dspmath.IsFinite(c.MinDistance) {
		return fmt.Errorf("spatial: minimum distance must be > 0 and finite: %f", c.MinDistance)
	}

	if c.Model != DistanceInverse && c.Model != DistanceInverseSquare {
		return fmt.Errorf("spatial: unknown distance model: %d", c.Model)
	}

	if c.ShadowDB < 0 || !dspmath.IsFinite(c.ShadowDB) {
		return fmt.Errorf("spatial: shadow must be >= 0 dB and finite: %f", c.ShadowDB)
	}

	return nil
}

// Cues are the per-ear delay and gain targets for one direction.
type Cues struct {
	DelayLeft  float64 // samples
	DelayRight float64 // samples
	GainLeft   float64
	GainRight  float64

	// MonoGain is the direction-independent distance attenuation, used
	// for send levels into the acoustic rendering path.
	MonoGain float64
}

// Compute derives the interaural cues for a direction.
//
// The time difference follows the Woodworth spherical-head formula on the
// lateral angle and is realized as extra delay on the far ear. The level
// difference splits a head-shadow term symmetrically across the ears and
// grows as the source moves inside the reference distance. Both cues are
// zero at the median plane and extremal at +/-90 degrees azimuth.
func Compute(dir Direction, cfg CueConfig) Cues {
	azRad := dir.AzimuthDeg * math.Pi / 180
	elRad := dir.ElevationDeg * math.Pi / 180

	// lateral in [-1, 1]: +1 at the right ear.
	lateral := math.Sin(azRad) * math.Cos(elRad)

	dist := math.Max(dir.Distance, cfg.MinDistance)
	monoGain := distanceGain(dist, cfg)

	// Woodworth: tau = a/c * (theta + sin theta) on the lateral angle.
	theta := math.Asin(dspmath.Clamp(lateral, -1, 1))
	itdSec := cfg.HeadRadius / speedOfSound * (math.Abs(theta) + math.Abs(math.Sin(theta)))
	itdSamples := dspmath.Clamp(itdSec*cfg.SampleRate, 0, cfg.MaxITDSamples)

	// The far ear is delayed; the near ear stays at zero.
	delayLeft, delayRight := 0.0, 0.0
	if lateral > 0 {
		delayLeft = itdSamples
	} else {
		delayRight = itdSamples
	}

	// Shadow grows up to 2x when the source comes closer than the
	// reference distance.
	proximity := dspmath.Clamp(cfg.RefDistance/dist, 1, 2)
	shadowDB := cfg.ShadowDB * lateral * proximity

	gainRight := monoGain * dspmath.DBToLinear(shadowDB/2)
	gainLeft := monoGain * dspmath.DBToLinear(-shadowDB/2)

	return Cues{
		DelayLeft:  delayLeft,
		DelayRight: delayRight,
		GainLeft:   gainLeft,
		GainRight:  gainRight,
		MonoGain:   monoGain,
	}
}

// distanceGain applies the configured attenuation law with the reference
// distance as the unity point.
func distanceGain(dist float64, cfg CueConfig) float64 {
	ratio := cfg.RefDistance / dist

	switch cfg.Model {
	case DistanceInverseSquare:
		return math.Min(ratio*ratio, maxDistanceBoost)
	default:
		return math.Min(ratio, maxDistanceBoost)
	}
}

// Sources inside the reference distance gain at most this factor.
const maxDistanceBoost = 16.0

// maxWoodworthITD returns the largest time difference the model can
// produce for a head radius, at 90 degrees azimuth.
func maxWoodworthITD(headRadius float64) float64 {
	return headRadius / speedOfSound * (math.Pi/2 + 1)
}
