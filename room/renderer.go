package room

import (
	"fmt"

	"github.com/cwbudde/algo-binaural/hrtf"
)

// Relative levels of the two wet stages. The early stage carries the
// spatial impression, the late field fills in the tail.
const (
	earlyLevel = 0.7
	lateLevel  = 0.5
)

// Renderer turns a mono room send into the stereo wet contribution for
// one acoustic model. It is not safe for concurrent use.
type Renderer struct {
	model     Model
	blockSize int

	early *earlyReflector
	late  *fdnNetwork
}

// NewRenderer builds the room processor for a model. The dataset
// provides the directional coloring of the early reflections.
func NewRenderer(m Model, ds *hrtf.Dataset, sampleRate float64, blockSize int) (*Renderer, error) {
	if err := m.Validate(); err != nil {
		return nil, err
	}

	if ds == nil {
		return nil, fmt.Errorf("room: dataset must not be nil")
	}

	if blockSize <= 0 {
		return nil, fmt.Errorf("room: block size must be > 0: %d", blockSize)
	}

	early, err := newEarlyReflector(m, ds, sampleRate)
	if err != nil {
		return nil, err
	}

	late, err := newFDNNetwork(sampleRate, m.DecayTime, m.Damping)
	if err != nil {
		return nil, err
	}

	return &Renderer{
		model:     m,
		blockSize: blockSize,
		early:     early,
		late:      late,
	}, nil
}

// Model returns the acoustic model the renderer was built with.
func (r *Renderer) Model() Model { return r.model }

// BlockSize returns the configured block size.
func (r *Renderer) BlockSize() int { return r.blockSize }

// ProcessBlock renders one block of the mono send into the stereo wet
// signal. The outputs are overwritten, not accumulated.
func (r *Renderer) ProcessBlock(send, outLeft, outRight []float64) error {
	if len(send) != r.blockSize || len(outLeft) != r.blockSize || len(outRight) != r.blockSize {
		return fmt.Errorf("room: block has %d/%d/%d samples, want %d",
			len(send), len(outLeft), len(outRight), r.blockSize)
	}

	for i, x := range send {
		eL, eR := r.early.processSample(x)
		lL, lR := r.late.processSample(x)

		outLeft[i] = eL*earlyLevel + lL*lateLevel
		outRight[i] = eR*earlyLevel + lR*lateLevel
	}

	return nil
}

// Reset clears all reverberant state to silence.
func (r *Renderer) Reset() {
	r.early.reset()
	r.late.reset()
}
