package delay

import (
	"math"
	"testing"
)

func TestNewRejectsInvalidSize(t *testing.T) {
	if _, err := New(0); err == nil {
		t.Fatal("expected error for zero size")
	}

	if _, err := New(-3); err == nil {
		t.Fatal("expected error for negative size")
	}
}

func TestReadIntegerDelays(t *testing.T) {
	d, err := New(8)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	for i := range 8 {
		d.Write(float64(i))
	}

	// Delay 0 is the most recent sample.
	if got := d.Read(0); got != 7 {
		t.Fatalf("Read(0): got %g, want 7", got)
	}

	if got := d.Read(5); got != 2 {
		t.Fatalf("Read(5): got %g, want 2", got)
	}

	// Out-of-range delays clamp instead of wrapping into fresh samples.
	if got := d.Read(100); got != 0 {
		t.Fatalf("Read(100): got %g, want 0", got)
	}

	if got := d.Read(-1); got != 7 {
		t.Fatalf("Read(-1): got %g, want 7", got)
	}
}

func TestReadFractionalInterpolates(t *testing.T) {
	d, err := New(16)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	// A linear ramp is reproduced exactly by cubic interpolation.
	for i := range 16 {
		d.Write(float64(i))
	}

	if got := d.ReadFractional(2.5); math.Abs(got-12.5) > 1e-12 {
		t.Fatalf("ReadFractional(2.5): got %g, want 12.5", got)
	}

	// Integer positions match Read exactly.
	if got := d.ReadFractional(4); got != d.Read(4) {
		t.Fatalf("ReadFractional(4): got %g, want %g", got, d.Read(4))
	}
}

func TestReset(t *testing.T) {
	d, err := New(4)
	if err != nil {
		t.Fatalf("New: %v", err)
	}

	d.Write(1)
	d.Write(2)
	d.Reset()

	for i := range 4 {
		if got := d.Read(i); got != 0 {
			t.Fatalf("Read(%d) after reset: got %g, want 0", i, got)
		}
	}
}
