package conv

import (
	"errors"
	"math"
	"math/rand/v2"
	"testing"
)

// makeTestSignal creates a deterministic signal using a fixed-seed generator.
func makeTestSignal(n int, seed uint64) []float64 {
	rng := rand.New(rand.NewPCG(seed, 0))
	sig := make([]float64, n)
	for i := range sig {
		sig[i] = rng.Float64()*2 - 1
	}
	return sig
}

// makeDecayKernel creates an exponentially decaying kernel.
func makeDecayKernel(n int) []float64 {
	k := make([]float64, n)
	k[0] = 1.0
	for i := 1; i < n; i++ {
		k[i] = k[i-1] * 0.97
	}
	return k
}

// convolveDirect is the time-domain reference.
func convolveDirect(signal, kernel []float64, n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		acc := 0.0
		for j, h := range kernel {
			if i-j >= 0 && i-j < len(signal) {
				acc += h * signal[i-j]
			}
		}
		out[i] = acc
	}
	return out
}

// processAll runs a signal through the engine block by block.
func processAll(t *testing.T, p *Partitioned, signal []float64) []float64 {
	t.Helper()

	blockSize := p.BlockSize()
	out := make([]float64, 0, len(signal))
	block := make([]float64, blockSize)
	outBlock := make([]float64, blockSize)

	for i := 0; i < len(signal); i += blockSize {
		clear(block)
		copy(block, signal[i:min(i+blockSize, len(signal))])

		if err := p.ProcessBlock(block, outBlock); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}

		out = append(out, outBlock...)
	}

	return out
}

func TestNewPartitionedValidation(t *testing.T) {
	cases := []struct {
		name            string
		blockSize       int
		irLen           int
		crossfadeBlocks int
	}{
		{"zero block", 0, 64, 1},
		{"non power of 2", 100, 64, 1},
		{"negative block", -4, 64, 1},
		{"zero IR length", 64, 0, 1},
		{"zero crossfade", 64, 64, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := NewPartitioned(tc.blockSize, tc.irLen, tc.crossfadeBlocks); err == nil {
				t.Fatalf("NewPartitioned(%d, %d, %d): expected error",
					tc.blockSize, tc.irLen, tc.crossfadeBlocks)
			}
		})
	}
}

func TestPartitionedRequiresIR(t *testing.T) {
	p, err := NewPartitioned(64, 128, 1)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	block := make([]float64, 64)
	if err := p.ProcessBlock(block, block); !errors.Is(err, ErrIRNotSet) {
		t.Fatalf("ProcessBlock without IR: got %v, want ErrIRNotSet", err)
	}
}

func TestPartitionedRejectsWrongIRLength(t *testing.T) {
	p, err := NewPartitioned(64, 128, 1)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	if err := p.SetIRImmediate(make([]float64, 100)); !errors.Is(err, ErrInvalidIRLength) {
		t.Fatalf("SetIRImmediate with wrong length: got %v, want ErrInvalidIRLength", err)
	}

	if err := p.SetIR(make([]float64, 129)); !errors.Is(err, ErrInvalidIRLength) {
		t.Fatalf("SetIR with wrong length: got %v, want ErrInvalidIRLength", err)
	}
}

func TestPartitionedRejectsWrongBlockLength(t *testing.T) {
	p, err := NewPartitioned(64, 64, 1)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	ir := make([]float64, 64)
	ir[0] = 1
	if err := p.SetIRImmediate(ir); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	if err := p.ProcessBlock(make([]float64, 32), make([]float64, 64)); !errors.Is(err, ErrBlockSizeMismatch) {
		t.Fatalf("short input: got %v, want ErrBlockSizeMismatch", err)
	}

	if err := p.ProcessBlock(make([]float64, 64), make([]float64, 32)); !errors.Is(err, ErrBlockSizeMismatch) {
		t.Fatalf("short output: got %v, want ErrBlockSizeMismatch", err)
	}
}

func TestPartitionedIdentityImpulse(t *testing.T) {
	const blockSize = 64

	p, err := NewPartitioned(blockSize, blockSize, 1)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	ir := make([]float64, blockSize)
	ir[0] = 1
	if err := p.SetIRImmediate(ir); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	signal := makeTestSignal(4*blockSize, 42)
	out := processAll(t, p, signal)

	for i, want := range signal {
		if math.Abs(out[i]-want) > 1e-9 {
			t.Fatalf("sample %d: got %g, want %g", i, out[i], want)
		}
	}
}

func TestPartitionedMatchesDirectConvolution(t *testing.T) {
	const (
		blockSize = 64
		irLen     = 200 // forces a partial final partition
	)

	p, err := NewPartitioned(blockSize, irLen, 1)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	ir := makeDecayKernel(irLen)
	if err := p.SetIRImmediate(ir); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	signal := makeTestSignal(8*blockSize, 7)
	got := processAll(t, p, signal)
	want := convolveDirect(signal, ir, len(got))

	for i := range got {
		if math.Abs(got[i]-want[i]) > 1e-6 {
			t.Fatalf("sample %d: got %g, want %g", i, got[i], want[i])
		}
	}
}

func TestPartitionedCrossfadeConvergesToNewIR(t *testing.T) {
	const (
		blockSize       = 64
		crossfadeBlocks = 2
	)

	p, err := NewPartitioned(blockSize, blockSize, crossfadeBlocks)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	irA := make([]float64, blockSize)
	irA[0] = 1
	irB := make([]float64, blockSize)
	irB[0] = 0.5

	if err := p.SetIRImmediate(irA); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	signal := make([]float64, blockSize)
	for i := range signal {
		signal[i] = 1
	}

	out := make([]float64, blockSize)

	// Settle with IR A.
	for range 4 {
		if err := p.ProcessBlock(signal, out); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}
	}

	if err := p.SetIR(irB); err != nil {
		t.Fatalf("SetIR: %v", err)
	}

	if !p.Fading() {
		t.Fatal("expected crossfade to be active after SetIR")
	}

	// Equal-power blending of two correlated DC levels a and b peaks at
	// sqrt(a*a+b*b); the fade must stay inside that envelope.
	upper := math.Sqrt(1*1+0.5*0.5) + 1e-9

	for range crossfadeBlocks {
		if err := p.ProcessBlock(signal, out); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}

		for i, v := range out {
			if v > upper || v < 0.5-1e-9 {
				t.Fatalf("fade sample %d out of range: %g", i, v)
			}
		}
	}

	if p.Fading() {
		t.Fatal("crossfade should have completed")
	}

	// After the fade the output must equal the new steady state.
	if err := p.ProcessBlock(signal, out); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	for i, v := range out {
		if math.Abs(v-0.5) > 1e-9 {
			t.Fatalf("post-fade sample %d: got %g, want 0.5", i, v)
		}
	}
}

func TestPartitionedCrossfadeContinuity(t *testing.T) {
	const blockSize = 64

	p, err := NewPartitioned(blockSize, blockSize, 4)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	irA := make([]float64, blockSize)
	irA[0] = 1
	irB := make([]float64, blockSize)
	irB[0] = -1

	if err := p.SetIRImmediate(irA); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	// A slow sine stays nearly constant between adjacent samples, so any
	// switching discontinuity would show as a large sample-to-sample jump.
	signal := make([]float64, 16*blockSize)
	for i := range signal {
		signal[i] = math.Sin(2 * math.Pi * float64(i) / 1024)
	}

	out := make([]float64, 0, len(signal))
	block := make([]float64, blockSize)

	for i := 0; i < len(signal); i += blockSize {
		if i == 4*blockSize {
			if err := p.SetIR(irB); err != nil {
				t.Fatalf("SetIR: %v", err)
			}
		}

		if err := p.ProcessBlock(signal[i:i+blockSize], block); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}

		out = append(out, block...)
	}

	maxStep := 2 * math.Pi / 1024 // slope bound of the input sine
	for i := 1; i < len(out); i++ {
		if math.Abs(out[i]-out[i-1]) > 50*maxStep {
			t.Fatalf("discontinuity at sample %d: %g -> %g", i, out[i-1], out[i])
		}
	}
}

func TestPartitionedMidFadeRetarget(t *testing.T) {
	const blockSize = 64

	p, err := NewPartitioned(blockSize, blockSize, 8)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	ir := make([]float64, blockSize)
	ir[0] = 1
	if err := p.SetIRImmediate(ir); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	signal := make([]float64, blockSize)
	for i := range signal {
		signal[i] = 1
	}
	out := make([]float64, blockSize)

	ir[0] = 0.5
	if err := p.SetIR(ir); err != nil {
		t.Fatalf("SetIR: %v", err)
	}

	if err := p.ProcessBlock(signal, out); err != nil {
		t.Fatalf("ProcessBlock: %v", err)
	}

	// Retarget mid-fade. The engine must keep rendering and settle on the
	// newest response.
	ir[0] = 0.25
	if err := p.SetIR(ir); err != nil {
		t.Fatalf("SetIR mid-fade: %v", err)
	}

	for range 16 {
		if err := p.ProcessBlock(signal, out); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}
	}

	for i, v := range out {
		if math.Abs(v-0.25) > 1e-9 {
			t.Fatalf("post-retarget sample %d: got %g, want 0.25", i, v)
		}
	}
}

func TestPartitionedReset(t *testing.T) {
	const blockSize = 64

	p, err := NewPartitioned(blockSize, 2*blockSize, 1)
	if err != nil {
		t.Fatalf("NewPartitioned: %v", err)
	}

	ir := makeDecayKernel(2 * blockSize)
	if err := p.SetIRImmediate(ir); err != nil {
		t.Fatalf("SetIRImmediate: %v", err)
	}

	signal := makeTestSignal(4*blockSize, 3)
	first := processAll(t, p, signal)

	p.Reset()

	second := processAll(t, p, signal)

	for i := range first {
		if math.Abs(first[i]-second[i]) > 1e-12 {
			t.Fatalf("sample %d differs after reset: %g vs %g", i, first[i], second[i])
		}
	}
}
