package conv

import (
	"fmt"

	"github.com/cwbudde/algo-binaural/delay"
	"github.com/cwbudde/algo-binaural/internal/dspmath"
)

// Binaural convolves a mono block into a left/right pair using one
// Partitioned engine per ear, then applies per-ear fractional delays
// (interaural time difference) and gains (interaural level difference
// plus distance attenuation). Delay and gain targets glide linearly
// across each block so per-tick cue updates stay free of zipper noise.
type Binaural struct {
	blockSize     int
	maxITDSamples float64

	left  *Partitioned
	right *Partitioned

	lineL *delay.Line
	lineR *delay.Line

	curDelayL, curDelayR float64
	tgtDelayL, tgtDelayR float64
	curGainL, curGainR   float64
	tgtGainL, tgtGainR   float64
	cuesSet              bool

	convL []float64
	convR []float64
}

// NewBinaural creates a binaural convolver. maxITDSamples bounds the
// per-ear delay; delays requested beyond it are clamped.
func NewBinaural(blockSize, irLen, crossfadeBlocks int, maxITDSamples float64) (*Binaural, error) {
	if maxITDSamples < 0 || !dspmath.IsFinite(maxITDSamples) {
		return nil, fmt.Errorf("conv: max ITD must be >= 0 and finite: %f", maxITDSamples)
	}

	left, err := NewPartitioned(blockSize, irLen, crossfadeBlocks)
	if err != nil {
		return nil, err
	}

	right, err := NewPartitioned(blockSize, irLen, crossfadeBlocks)
	if err != nil {
		return nil, err
	}

	lineSize := int(maxITDSamples) + 8

	lineL, err := delay.New(lineSize)
	if err != nil {
		return nil, err
	}

	lineR, err := delay.New(lineSize)
	if err != nil {
		return nil, err
	}

	return &Binaural{
		blockSize:     blockSize,
		maxITDSamples: maxITDSamples,
		left:          left,
		right:         right,
		lineL:         lineL,
		lineR:         lineR,
		curGainL:      1,
		curGainR:      1,
		tgtGainL:      1,
		tgtGainR:      1,
		convL:         make([]float64, blockSize),
		convR:         make([]float64, blockSize),
	}, nil
}

// BlockSize returns the configured block size.
func (b *Binaural) BlockSize() int { return b.blockSize }

// IRLength returns the declared impulse response length.
func (b *Binaural) IRLength() int { return b.left.IRLength() }

// SetIRs installs a response pair. With immediate set the swap skips the
// crossfade (initial setup); otherwise both ears crossfade in lockstep.
func (b *Binaural) SetIRs(irLeft, irRight []float64, immediate bool) error {
	if immediate {
		if err := b.left.SetIRImmediate(irLeft); err != nil {
			return err
		}

		return b.right.SetIRImmediate(irRight)
	}

	if err := b.left.SetIR(irLeft); err != nil {
		return err
	}

	return b.right.SetIR(irRight)
}

// SetCues sets the per-ear delay (samples) and gain targets the next
// block glides toward. Delays clamp to [0, maxITDSamples]; negative
// gains clamp to zero. Non-finite values are rejected.
func (b *Binaural) SetCues(delayLeft, delayRight, gainLeft, gainRight float64, immediate bool) error {
	for _, v := range [...]float64{delayLeft, delayRight, gainLeft, gainRight} {
		if !dspmath.IsFinite(v) {
			return fmt.Errorf("conv: cue values must be finite: %f", v)
		}
	}

	b.tgtDelayL = dspmath.Clamp(delayLeft, 0, b.maxITDSamples)
	b.tgtDelayR = dspmath.Clamp(delayRight, 0, b.maxITDSamples)
	b.tgtGainL = max(gainLeft, 0)
	b.tgtGainR = max(gainRight, 0)

	if immediate || !b.cuesSet {
		b.curDelayL = b.tgtDelayL
		b.curDelayR = b.tgtDelayR
		b.curGainL = b.tgtGainL
		b.curGainR = b.tgtGainR
	}

	b.cuesSet = true

	return nil
}

// ProcessBlock renders one mono block into a binaural pair.
func (b *Binaural) ProcessBlock(input, outLeft, outRight []float64) error {
	if len(outLeft) != b.blockSize || len(outRight) != b.blockSize {
		return fmt.Errorf("%w: output has %d/%d, want %d",
			ErrBlockSizeMismatch, len(outLeft), len(outRight), b.blockSize)
	}

	if err := b.left.ProcessBlock(input, b.convL); err != nil {
		return err
	}

	if err := b.right.ProcessBlock(input, b.convR); err != nil {
		return err
	}

	invN := 1.0 / float64(b.blockSize)

	for i := range b.blockSize {
		t := float64(i+1) * invN

		dL := b.curDelayL + (b.tgtDelayL-b.curDelayL)*t
		dR := b.curDelayR + (b.tgtDelayR-b.curDelayR)*t
		gL := b.curGainL + (b.tgtGainL-b.curGainL)*t
		gR := b.curGainR + (b.tgtGainR-b.curGainR)*t

		b.lineL.Write(b.convL[i])
		b.lineR.Write(b.convR[i])

		outLeft[i] = b.lineL.ReadFractional(dL) * gL
		outRight[i] = b.lineR.ReadFractional(dR) * gR
	}

	b.curDelayL = b.tgtDelayL
	b.curDelayR = b.tgtDelayR
	b.curGainL = b.tgtGainL
	b.curGainR = b.tgtGainR

	return nil
}

// Reset clears all signal history while keeping installed responses and
// cue targets.
func (b *Binaural) Reset() {
	b.left.Reset()
	b.right.Reset()
	b.lineL.Reset()
	b.lineR.Reset()
}
