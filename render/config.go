package render

import (
	"fmt"

	"github.com/cwbudde/algo-binaural/internal/dspmath"
	"github.com/cwbudde/algo-binaural/mix"
	"github.com/cwbudde/algo-binaural/room"
	"github.com/cwbudde/algo-binaural/spatial"
)

// Config is the engine configuration. Zero values select defaults where
// a default exists; NewEngine validates the resolved configuration and
// fails fast instead of degrading.
type Config struct {
	// SampleRate in Hz. Default 48000.
	SampleRate float64

	// BlockSize is the render quantum in samples and the convolution
	// partition size. Must be a power of two. Default 512.
	BlockSize int

	// CrossfadeBlocks is the impulse-response crossfade duration in
	// blocks. Default 2.
	CrossfadeBlocks int

	// MaxITDSamples bounds the interaural delay. Zero derives the bound
	// from the spherical-head model at the sample rate.
	MaxITDSamples float64

	// MaxObjects is the object arena capacity. Default 32.
	MaxObjects int

	// DistanceModel selects the attenuation law.
	DistanceModel spatial.DistanceModel

	// MinDistance clamps the effective source distance. Default 0.1 m.
	MinDistance float64

	// Room enables the acoustic rendering path. Nil renders dry.
	Room *room.Model

	// LimiterThresholdDB is the output ceiling in dBFS. Zero means a
	// ceiling of exactly full scale.
	LimiterThresholdDB float64

	// FadeOutBlocks is the removal ramp duration in blocks. Default 4.
	FadeOutBlocks int

	// Fallback selects the output policy when a tick misses its budget.
	Fallback mix.FallbackPolicy

	// DitherBits enables TPDF dither for the given target bit depth on
	// the final output. Zero disables dithering.
	DitherBits int

	// DitherSeed seeds the dither noise for reproducible renders.
	DitherSeed uint64
}

const maxObjectCapacity = 256

func (c Config) withDefaults() Config {
	if c.SampleRate == 0 {
		c.SampleRate = 48000
	}

	if c.BlockSize == 0 {
		c.BlockSize = 512
	}

	if c.CrossfadeBlocks == 0 {
		c.CrossfadeBlocks = 2
	}

	if c.MaxObjects == 0 {
		c.MaxObjects = 32
	}

	if c.MinDistance == 0 {
		c.MinDistance = 0.1
	}

	if c.FadeOutBlocks == 0 {
		c.FadeOutBlocks = 4
	}

	return c
}

func (c Config) validate() error {
	if c.SampleRate <= 0 || !dspmath.IsFinite(c.SampleRate) {
		return fmt.Errorf("render: sample rate must be > 0 and finite: %f", c.SampleRate)
	}

	if c.BlockSize <= 0 || !dspmath.IsPowerOf2(c.BlockSize) {
		return fmt.Errorf("render: block size must be a power of 2: %d", c.BlockSize)
	}

	if c.CrossfadeBlocks < 1 {
		return fmt.Errorf("render: crossfade blocks must be >= 1: %d", c.CrossfadeBlocks)
	}

	if c.MaxITDSamples < 0 || !dspmath.IsFinite(c.MaxITDSamples) {
		return fmt.Errorf("render: max ITD must be >= 0 and finite: %f", c.MaxITDSamples)
	}

	if c.MaxObjects < 1 || c.MaxObjects > maxObjectCapacity {
		return fmt.Errorf("render: max objects must be in [1, %d]: %d", maxObjectCapacity, c.MaxObjects)
	}

	if c.MinDistance <= 0 || !dspmath.IsFinite(c.MinDistance) {
		return fmt.Errorf("render: min distance must be > 0 and finite: %f", c.MinDistance)
	}

	if c.LimiterThresholdDB > 0 || !dspmath.IsFinite(c.LimiterThresholdDB) {
		return fmt.Errorf("render: limiter threshold must be <= 0 dBFS: %f", c.LimiterThresholdDB)
	}

	if c.FadeOutBlocks < 1 {
		return fmt.Errorf("render: fade out blocks must be >= 1: %d", c.FadeOutBlocks)
	}

	if c.Room != nil {
		if err := c.Room.Validate(); err != nil {
			return err
		}
	}

	if c.DitherBits != 0 && (c.DitherBits < 2 || c.DitherBits > 32) {
		return fmt.Errorf("render: dither bit depth must be 0 or in [2, 32]: %d", c.DitherBits)
	}

	return nil
}
