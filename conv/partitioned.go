package conv

import (
	"errors"
	"fmt"
	"math"

	algofft "github.com/MeKo-Christian/algo-fft"

	"github.com/cwbudde/algo-binaural/internal/dspmath"
)

// Errors returned by the convolution engine.
var (
	ErrInvalidBlockSize  = errors.New("conv: block size must be a power of 2 and > 0")
	ErrInvalidIRLength   = errors.New("conv: impulse response length does not match engine configuration")
	ErrBlockSizeMismatch = errors.New("conv: input block length does not match configured block size")
	ErrIRNotSet          = errors.New("conv: no impulse response set")
)

// Partitioned convolves a mono block stream with an impulse response of
// fixed declared length using uniformly partitioned overlap-save
// convolution (partition size = block size, FFT size = 2x block size).
//
// The engine keeps two IR spectrum sets. While a crossfade is active both
// sets are convolved against the shared input spectrum history and the
// two time-domain results are blended with an equal-power curve, so an IR
// swap never produces a discontinuity.
type Partitioned struct {
	blockSize int
	irLen     int
	parts     int
	fftSize   int
	fadeTotal int // crossfade length in samples

	plan *algofft.Plan[complex128]

	// Frequency-domain delay line of input block spectra.
	fdl    [][]complex128
	fdlPos int

	curSpec  [][]complex128
	prevSpec [][]complex128
	haveIR   bool
	fading   bool
	fadeDone int

	prevInput []float64

	segBuf  []complex128
	accCur  []complex128
	accPrev []complex128
}

// NewPartitioned creates a convolver for the given block size, declared
// impulse response length, and crossfade duration in blocks. Every IR
// supplied later must have exactly irLen samples.
func NewPartitioned(blockSize, irLen, crossfadeBlocks int) (*Partitioned, error) {
	if blockSize <= 0 || !dspmath.IsPowerOf2(blockSize) {
		return nil, fmt.Errorf("%w: %d", ErrInvalidBlockSize, blockSize)
	}

	if irLen <= 0 {
		return nil, fmt.Errorf("%w: declared length must be > 0: %d", ErrInvalidIRLength, irLen)
	}

	if crossfadeBlocks < 1 {
		return nil, fmt.Errorf("conv: crossfade blocks must be >= 1: %d", crossfadeBlocks)
	}

	fftSize := 2 * blockSize

	plan, err := algofft.NewPlan64(fftSize)
	if err != nil {
		return nil, fmt.Errorf("conv: FFT plan init: %w", err)
	}

	parts := (irLen + blockSize - 1) / blockSize

	p := &Partitioned{
		blockSize: blockSize,
		irLen:     irLen,
		parts:     parts,
		fftSize:   fftSize,
		fadeTotal: crossfadeBlocks * blockSize,
		plan:      plan,
		fdl:       makeSpectra(parts, fftSize),
		curSpec:   makeSpectra(parts, fftSize),
		prevSpec:  makeSpectra(parts, fftSize),
		prevInput: make([]float64, blockSize),
		segBuf:    make([]complex128, fftSize),
		accCur:    make([]complex128, fftSize),
		accPrev:   make([]complex128, fftSize),
	}

	return p, nil
}

func makeSpectra(parts, fftSize int) [][]complex128 {
	s := make([][]complex128, parts)
	for i := range s {
		s[i] = make([]complex128, fftSize)
	}

	return s
}

// BlockSize returns the configured block size.
func (p *Partitioned) BlockSize() int { return p.blockSize }

// IRLength returns the declared impulse response length.
func (p *Partitioned) IRLength() int { return p.irLen }

// Partitions returns the number of IR partitions.
func (p *Partitioned) Partitions() int { return p.parts }

// Fading reports whether an IR crossfade is in progress.
func (p *Partitioned) Fading() bool { return p.fading }

// SetIRImmediate installs ir without a crossfade. Intended for initial
// setup; mid-stream swaps should use SetIR.
func (p *Partitioned) SetIRImmediate(ir []float64) error {
	if len(ir) != p.irLen {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidIRLength, len(ir), p.irLen)
	}

	if err := p.computeSpectra(p.curSpec, ir); err != nil {
		return err
	}

	p.haveIR = true
	p.fading = false
	p.fadeDone = 0

	return nil
}

// SetIR installs ir and crossfades from the previous response over the
// configured number of blocks. A swap arriving mid-fade abandons the
// oldest response and restarts the fade from the currently dominant one.
func (p *Partitioned) SetIR(ir []float64) error {
	if !p.haveIR {
		return p.SetIRImmediate(ir)
	}

	if len(ir) != p.irLen {
		return fmt.Errorf("%w: got %d, want %d", ErrInvalidIRLength, len(ir), p.irLen)
	}

	p.curSpec, p.prevSpec = p.prevSpec, p.curSpec

	if err := p.computeSpectra(p.curSpec, ir); err != nil {
		// Restore the old set so the engine keeps rendering with it.
		p.curSpec, p.prevSpec = p.prevSpec, p.curSpec
		return err
	}

	p.fading = true
	p.fadeDone = 0

	return nil
}

// computeSpectra fills dst with the per-partition spectra of ir.
func (p *Partitioned) computeSpectra(dst [][]complex128, ir []float64) error {
	for k := range p.parts {
		clear(p.segBuf)

		start := k * p.blockSize
		end := min(start+p.blockSize, len(ir))

		for i, v := range ir[start:end] {
			p.segBuf[i] = complex(v, 0)
		}

		if err := p.plan.Forward(dst[k], p.segBuf); err != nil {
			return fmt.Errorf("conv: IR partition FFT: %w", err)
		}
	}

	return nil
}

// ProcessBlock convolves one input block into output. Both must have
// exactly BlockSize samples. Accumulation is unclamped floating point;
// level control belongs to the output mixer.
func (p *Partitioned) ProcessBlock(input, output []float64) error {
	if len(input) != p.blockSize {
		return fmt.Errorf("%w: got %d, want %d", ErrBlockSizeMismatch, len(input), p.blockSize)
	}

	if len(output) != p.blockSize {
		return fmt.Errorf("%w: output has %d, want %d", ErrBlockSizeMismatch, len(output), p.blockSize)
	}

	if !p.haveIR {
		return ErrIRNotSet
	}

	// Overlap-save segment: previous block then current block.
	for i, v := range p.prevInput {
		p.segBuf[i] = complex(v, 0)
	}

	for i, v := range input {
		p.segBuf[p.blockSize+i] = complex(v, 0)
	}

	p.fdlPos = (p.fdlPos + 1) % p.parts
	if err := p.plan.Forward(p.fdl[p.fdlPos], p.segBuf); err != nil {
		return fmt.Errorf("conv: input FFT: %w", err)
	}

	if err := p.accumulate(p.accCur, p.curSpec); err != nil {
		return err
	}

	if p.fading {
		if err := p.accumulate(p.accPrev, p.prevSpec); err != nil {
			return err
		}

		p.blendOutput(output)
	} else {
		for i := range output {
			output[i] = real(p.accCur[p.blockSize+i])
		}
	}

	copy(p.prevInput, input)

	return nil
}

// accumulate multiplies the spectrum history with the given IR spectrum
// set, sums the products, and inverse-transforms the result in place.
func (p *Partitioned) accumulate(acc []complex128, spec [][]complex128) error {
	clear(acc)

	for k := range p.parts {
		x := p.fdl[(p.fdlPos-k+p.parts)%p.parts]
		h := spec[k]

		for i := range acc {
			acc[i] += x[i] * h[i]
		}
	}

	if err := p.plan.Inverse(acc, acc); err != nil {
		return fmt.Errorf("conv: inverse FFT: %w", err)
	}

	return nil
}

// blendOutput mixes the current- and previous-IR results with equal-power
// weights and advances the fade position.
func (p *Partitioned) blendOutput(output []float64) {
	for i := range output {
		t := float64(p.fadeDone+i+1) / float64(p.fadeTotal)
		if t > 1 {
			t = 1
		}

		gNew := math.Sin(t * math.Pi / 2)
		gOld := math.Cos(t * math.Pi / 2)

		cur := real(p.accCur[p.blockSize+i])
		prev := real(p.accPrev[p.blockSize+i])
		output[i] = gNew*cur + gOld*prev
	}

	p.fadeDone += p.blockSize
	if p.fadeDone >= p.fadeTotal {
		p.fading = false
		p.fadeDone = 0
	}
}

// Reset clears the input history and cancels any running crossfade. The
// installed impulse response is kept.
func (p *Partitioned) Reset() {
	for _, s := range p.fdl {
		clear(s)
	}

	clear(p.prevInput)
	p.fdlPos = 0
	p.fading = false
	p.fadeDone = 0
}
