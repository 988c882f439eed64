// Package mix provides the output stage: bus accumulation, a stereo
// soft-knee limiter and TPDF dither for integer export.
package mix

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-binaural/internal/dspmath"
)

// LimiterConfig parameterizes the output limiter.
type LimiterConfig struct {
	// ThresholdDB is the output ceiling in dBFS. Must be <= 0.
	ThresholdDB float64

	// KneeDB is the soft knee width in dB around the threshold.
	KneeDB float64

	// ReleaseMs is the envelope release time constant in milliseconds,
	// in [5, 1000]. The attack is instantaneous.
	ReleaseMs float64
}

// DefaultLimiterConfig returns the output-stage defaults.
func DefaultLimiterConfig() LimiterConfig {
	return LimiterConfig{
		ThresholdDB: -0.3,
		KneeDB:      6,
		ReleaseMs:   80,
	}
}

// Limiter is a stereo-linked peak limiter with instantaneous attack, an
// exponential release and a quadratic soft knee.
//
// Because the envelope never drops below the instantaneous peak and the
// gain curve satisfies level+gain <= threshold above the knee start, the
// output magnitude is bounded by the threshold on every sample, not just
// in steady state.
type Limiter struct {
	thresholdDB float64
	kneeDB      float64
	releaseCoef float64

	envelope float64 // linked peak envelope, linear
}

// NewLimiter creates a limiter for the given sample rate.
func NewLimiter(sampleRate float64, cfg LimiterConfig) (*Limiter, error) {
	if sampleRate <= 0 || !dspmath.IsFinite(sampleRate) {
		return nil, fmt.Errorf("mix: sample rate must be > 0 and finite: %f", sampleRate)
	}

	if cfg.ThresholdDB > 0 || !dspmath.IsFinite(cfg.ThresholdDB) {
		return nil, fmt.Errorf("mix: limiter threshold must be <= 0 dBFS: %f", cfg.ThresholdDB)
	}

	if cfg.KneeDB < 0 || !dspmath.IsFinite(cfg.KneeDB) {
		return nil, fmt.Errorf("mix: knee width must be >= 0 dB: %f", cfg.KneeDB)
	}

	if cfg.ReleaseMs < 5 || cfg.ReleaseMs > 1000 || !dspmath.IsFinite(cfg.ReleaseMs) {
		return nil, fmt.Errorf("mix: release must be in [5, 1000] ms: %f", cfg.ReleaseMs)
	}

	return &Limiter{
		thresholdDB: cfg.ThresholdDB,
		kneeDB:      cfg.KneeDB,
		releaseCoef: math.Exp(-1 / (cfg.ReleaseMs / 1000 * sampleRate)),
	}, nil
}

// Threshold returns the ceiling as a linear amplitude.
func (l *Limiter) Threshold() float64 {
	return dspmath.DBToLinear(l.thresholdDB)
}

// gainDB returns the gain reduction for an envelope level in dB.
func (l *Limiter) gainDB(levelDB float64) float64 {
	over := levelDB - l.thresholdDB

	switch {
	case over <= -l.kneeDB/2:
		return 0
	case over >= l.kneeDB/2 || l.kneeDB == 0:
		return -over
	default:
		d := over + l.kneeDB/2
		return -d * d / (2 * l.kneeDB)
	}
}

// ProcessBlockInPlace limits a stereo block. Both channels share one
// envelope so limiting never shifts the stereo image.
func (l *Limiter) ProcessBlockInPlace(left, right []float64) error {
	if len(left) != len(right) {
		return fmt.Errorf("mix: channel lengths differ: %d vs %d", len(left), len(right))
	}

	for i := range left {
		peak := math.Max(math.Abs(left[i]), math.Abs(right[i]))

		// Instant attack, exponential release.
		l.envelope = math.Max(peak, l.envelope*l.releaseCoef)

		if l.envelope <= 0 {
			continue
		}

		gain := dspmath.DBToLinear(l.gainDB(dspmath.LinearToDB(l.envelope)))

		left[i] *= gain
		right[i] *= gain
	}

	return nil
}

// Reset clears the envelope state.
func (l *Limiter) Reset() {
	l.envelope = 0
}
