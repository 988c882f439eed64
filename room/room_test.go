package room

import (
	"math"
	"testing"

	"github.com/cwbudde/algo-binaural/hrtf"
	"github.com/cwbudde/algo-binaural/spatial"
)

func testDataset(t *testing.T) *hrtf.Dataset {
	t.Helper()

	cfg := hrtf.DefaultSyntheticConfig()
	cfg.IRLength = 64
	cfg.Grid = hrtf.Grid{
		AzimuthStep:   30,
		ElevationMin:  -90,
		ElevationMax:  90,
		ElevationStep: 30,
	}

	ds, err := hrtf.Synthetic(cfg)
	if err != nil {
		t.Fatalf("Synthetic: %v", err)
	}

	return ds
}

func TestModelValidate(t *testing.T) {
	base := PresetModel(PresetMediumRoom)
	if err := base.Validate(); err != nil {
		t.Fatalf("medium preset: %v", err)
	}

	mutations := []struct {
		name   string
		mutate func(*Model)
	}{
		{"zero dimension", func(m *Model) { m.Dimensions.Y = 0 }},
		{"negative dimension", func(m *Model) { m.Dimensions.X = -1 }},
		{"NaN dimension", func(m *Model) { m.Dimensions.Z = math.NaN() }},
		{"zero absorption", func(m *Model) { m.Absorption = 0 }},
		{"absorption above one", func(m *Model) { m.Absorption = 1.5 }},
		{"tiny decay", func(m *Model) { m.DecayTime = 0.01 }},
		{"huge decay", func(m *Model) { m.DecayTime = 100 }},
		{"damping at one", func(m *Model) { m.Damping = 1 }},
		{"negative damping", func(m *Model) { m.Damping = -0.1 }},
	}

	for _, mu := range mutations {
		t.Run(mu.name, func(t *testing.T) {
			m := base
			mu.mutate(&m)
			if err := m.Validate(); err == nil {
				t.Fatal("expected error")
			}
		})
	}
}

func TestPresetModelsAreValid(t *testing.T) {
	for _, p := range [...]Preset{PresetSmallRoom, PresetMediumRoom, PresetLargeHall} {
		if err := PresetModel(p).Validate(); err != nil {
			t.Fatalf("preset %d: %v", p, err)
		}
	}
}

func TestFDNDelaysAreCoprime(t *testing.T) {
	for _, rate := range [...]float64{44100, 48000, 96000} {
		lengths := scaledCoprimeDelays(rate / fdnReferenceSampleRate)

		for i := range lengths {
			for j := i + 1; j < len(lengths); j++ {
				if gcd(lengths[i], lengths[j]) != 1 {
					t.Fatalf("rate %g: lengths %d and %d share a factor", rate, lengths[i], lengths[j])
				}
			}
		}
	}
}

func TestFDNFeedbackBelowUnity(t *testing.T) {
	n, err := newFDNNetwork(48000, 2.4, 0.25)
	if err != nil {
		t.Fatalf("newFDNNetwork: %v", err)
	}

	if g := n.maxFeedbackGain(); g >= 1 {
		t.Fatalf("loop gain must stay below unity: %g", g)
	}
}

func TestFDNImpulseDecays(t *testing.T) {
	const (
		sampleRate = 48000
		decayTime  = 0.5
	)

	n, err := newFDNNetwork(sampleRate, decayTime, 0.3)
	if err != nil {
		t.Fatalf("newFDNNetwork: %v", err)
	}

	// Feed one impulse, then run for twice the decay time. RT60 says the
	// tail should be at least 60 dB down well before that.
	total := int(2 * decayTime * sampleRate)

	earlyPeak := 0.0
	latePeak := 0.0

	for i := range total {
		input := 0.0
		if i == 0 {
			input = 1
		}

		l, r := n.processSample(input)
		peak := math.Max(math.Abs(l), math.Abs(r))

		if i < total/4 {
			if peak > earlyPeak {
				earlyPeak = peak
			}
		} else if i >= 3*total/4 {
			if peak > latePeak {
				latePeak = peak
			}
		}
	}

	if earlyPeak == 0 {
		t.Fatal("network produced no output")
	}

	if latePeak >= earlyPeak/100 {
		t.Fatalf("tail did not decay: early %g, late %g", earlyPeak, latePeak)
	}
}

func TestFDNLongRunStability(t *testing.T) {
	model := PresetModel(PresetLargeHall)

	n, err := newFDNNetwork(48000, model.DecayTime, model.Damping)
	if err != nil {
		t.Fatalf("newFDNNetwork: %v", err)
	}

	// Constant full-scale input for a long run must never blow up.
	const samples = 10_000 * 64

	for i := range samples {
		l, r := n.processSample(1)

		if math.IsNaN(l) || math.IsInf(l, 0) || math.IsNaN(r) || math.IsInf(r, 0) {
			t.Fatalf("non-finite output at sample %d: %g/%g", i, l, r)
		}

		if math.Abs(l) > 1e6 || math.Abs(r) > 1e6 {
			t.Fatalf("runaway output at sample %d: %g/%g", i, l, r)
		}
	}
}

func TestRendererValidatesInput(t *testing.T) {
	ds := testDataset(t)

	bad := PresetModel(PresetSmallRoom)
	bad.Absorption = 2

	if _, err := NewRenderer(bad, ds, 48000, 64); err == nil {
		t.Fatal("expected error for invalid model")
	}

	if _, err := NewRenderer(PresetModel(PresetSmallRoom), nil, 48000, 64); err == nil {
		t.Fatal("expected error for nil dataset")
	}

	if _, err := NewRenderer(PresetModel(PresetSmallRoom), ds, 48000, 0); err == nil {
		t.Fatal("expected error for zero block size")
	}
}

func TestRendererProducesWetSignal(t *testing.T) {
	const blockSize = 64

	ds := testDataset(t)

	r, err := NewRenderer(PresetModel(PresetSmallRoom), ds, 48000, blockSize)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	send := make([]float64, blockSize)
	send[0] = 1

	outL := make([]float64, blockSize)
	outR := make([]float64, blockSize)

	energy := 0.0

	for range 64 {
		if err := r.ProcessBlock(send, outL, outR); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}

		clear(send)

		for i := range outL {
			energy += outL[i]*outL[i] + outR[i]*outR[i]
		}
	}

	if energy == 0 {
		t.Fatal("room output is silent")
	}
}

func TestRendererBlockSizeMismatch(t *testing.T) {
	ds := testDataset(t)

	r, err := NewRenderer(PresetModel(PresetSmallRoom), ds, 48000, 64)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	if err := r.ProcessBlock(make([]float64, 32), make([]float64, 64), make([]float64, 64)); err == nil {
		t.Fatal("expected error for short send block")
	}
}

func TestRendererResetSilences(t *testing.T) {
	const blockSize = 64

	ds := testDataset(t)

	r, err := NewRenderer(PresetModel(PresetMediumRoom), ds, 48000, blockSize)
	if err != nil {
		t.Fatalf("NewRenderer: %v", err)
	}

	send := make([]float64, blockSize)
	for i := range send {
		send[i] = 0.5
	}

	outL := make([]float64, blockSize)
	outR := make([]float64, blockSize)

	for range 32 {
		if err := r.ProcessBlock(send, outL, outR); err != nil {
			t.Fatalf("ProcessBlock: %v", err)
		}
	}

	r.Reset()

	clear(send)

	if err := r.ProcessBlock(send, outL, outR); err != nil {
		t.Fatalf("ProcessBlock after reset: %v", err)
	}

	for i := range outL {
		if outL[i] != 0 || outR[i] != 0 {
			t.Fatalf("state leaked after reset at sample %d: %g/%g", i, outL[i], outR[i])
		}
	}
}

func TestEarlyReflectorTiming(t *testing.T) {
	ds := testDataset(t)

	m := Model{
		Dimensions: spatial.Vec3{X: 6.86, Y: 6.86, Z: 6.86},
		Absorption: 0.3,
		DecayTime:  0.5,
		Damping:    0.3,
	}

	const sampleRate = 48000.0

	r, err := newEarlyReflector(m, ds, sampleRate)
	if err != nil {
		t.Fatalf("newEarlyReflector: %v", err)
	}

	// Wall distance is 3.43 m, so the round trip is 6.86 m: 20 ms, 960
	// samples. Nothing may arrive before that.
	firstArrival := int(6.86 / 343.0 * sampleRate)

	arrived := 0.0

	for i := range firstArrival + 100 {
		input := 0.0
		if i == 0 {
			input = 1
		}

		l, rr := r.processSample(input)

		if i < firstArrival-2 && (l != 0 || rr != 0) {
			t.Fatalf("reflection arrived early at sample %d: %g/%g", i, l, rr)
		}

		if i >= firstArrival-2 {
			arrived += l*l + rr*rr
		}
	}

	if arrived == 0 {
		t.Fatal("no reflection energy arrived")
	}
}
