package mix

import (
	"errors"
	"fmt"
)

// ErrBlockSizeMismatch is returned when a buffer does not match the
// mixer's block size.
var ErrBlockSizeMismatch = errors.New("mix: buffer length does not match block size")

// FallbackPolicy selects what the output receives when a render tick
// cannot complete in time.
type FallbackPolicy int

const (
	// FallbackNone leaves the output untouched; the caller only counts
	// the event. Suitable for offline rendering where timing is advisory.
	FallbackNone FallbackPolicy = iota
	// FallbackSilence writes a silent block.
	FallbackSilence
	// FallbackHold repeats the last completed block.
	FallbackHold
)

// Mixer accumulates per-object stereo contributions into one bus,
// applies the output limiter and keeps the last completed block for
// hold-style fallback. It is not safe for concurrent use.
type Mixer struct {
	blockSize int
	limiter   *Limiter
	policy    FallbackPolicy

	busL, busR   []float64
	lastL, lastR []float64
	haveLast     bool
}

// NewMixer creates a mixer. limiter may be nil to bypass limiting, in
// which case the output bound is the caller's responsibility.
func NewMixer(blockSize int, limiter *Limiter, policy FallbackPolicy) (*Mixer, error) {
	if blockSize <= 0 {
		return nil, fmt.Errorf("mix: block size must be > 0: %d", blockSize)
	}

	switch policy {
	case FallbackNone, FallbackSilence, FallbackHold:
	default:
		return nil, fmt.Errorf("mix: unknown fallback policy: %d", policy)
	}

	return &Mixer{
		blockSize: blockSize,
		limiter:   limiter,
		policy:    policy,
		busL:      make([]float64, blockSize),
		busR:      make([]float64, blockSize),
		lastL:     make([]float64, blockSize),
		lastR:     make([]float64, blockSize),
	}, nil
}

// BlockSize returns the configured block size.
func (m *Mixer) BlockSize() int { return m.blockSize }

// Begin clears the bus for a new tick.
func (m *Mixer) Begin() {
	clear(m.busL)
	clear(m.busR)
}

// Add accumulates one stereo contribution onto the bus.
func (m *Mixer) Add(left, right []float64) error {
	if len(left) != m.blockSize || len(right) != m.blockSize {
		return fmt.Errorf("%w: have %d/%d, want %d", ErrBlockSizeMismatch, len(left), len(right), m.blockSize)
	}

	for i := range m.busL {
		m.busL[i] += left[i]
		m.busR[i] += right[i]
	}

	return nil
}

// Finish limits the bus, writes it to the outputs and records it as the
// last completed block.
func (m *Mixer) Finish(outLeft, outRight []float64) error {
	if len(outLeft) != m.blockSize || len(outRight) != m.blockSize {
		return fmt.Errorf("%w: have %d/%d, want %d", ErrBlockSizeMismatch, len(outLeft), len(outRight), m.blockSize)
	}

	if m.limiter != nil {
		if err := m.limiter.ProcessBlockInPlace(m.busL, m.busR); err != nil {
			return err
		}
	}

	copy(outLeft, m.busL)
	copy(outRight, m.busR)
	copy(m.lastL, m.busL)
	copy(m.lastR, m.busR)
	m.haveLast = true

	return nil
}

// WriteFallback fills the outputs according to the fallback policy. With
// FallbackNone the outputs are left untouched. FallbackHold degrades to
// silence until a first block has completed.
func (m *Mixer) WriteFallback(outLeft, outRight []float64) error {
	if len(outLeft) != m.blockSize || len(outRight) != m.blockSize {
		return fmt.Errorf("%w: have %d/%d, want %d", ErrBlockSizeMismatch, len(outLeft), len(outRight), m.blockSize)
	}

	switch m.policy {
	case FallbackSilence:
		clear(outLeft)
		clear(outRight)
	case FallbackHold:
		if m.haveLast {
			copy(outLeft, m.lastL)
			copy(outRight, m.lastR)
		} else {
			clear(outLeft)
			clear(outRight)
		}
	}

	return nil
}

// Reset clears the bus, the held block and the limiter state.
func (m *Mixer) Reset() {
	clear(m.busL)
	clear(m.busR)
	clear(m.lastL)
	clear(m.lastR)
	m.haveLast = false

	if m.limiter != nil {
		m.limiter.Reset()
	}
}
