package mix

import (
	"fmt"
	"math/rand/v2"
)

// Ditherer adds triangular (TPDF) dither scaled to the target bit depth
// ahead of integer quantization. Two independent streams keep the left
// and right noise uncorrelated.
type Ditherer struct {
	lsb float64
	rng *rand.Rand
}

// NewDitherer creates a ditherer for a target bit depth. The seed makes
// renders reproducible.
func NewDitherer(bits int, seed uint64) (*Ditherer, error) {
	if bits < 2 || bits > 32 {
		return nil, fmt.Errorf("mix: dither bit depth must be in [2, 32]: %d", bits)
	}

	return &Ditherer{
		lsb: 1 / float64(int64(1)<<(bits-1)),
		rng: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)),
	}, nil
}

// ProcessBlockInPlace adds triangular noise spanning +/-1 LSB to both
// channels.
func (d *Ditherer) ProcessBlockInPlace(left, right []float64) error {
	if len(left) != len(right) {
		return fmt.Errorf("mix: channel lengths differ: %d vs %d", len(left), len(right))
	}

	for i := range left {
		left[i] += (d.rng.Float64() - d.rng.Float64()) * d.lsb
		right[i] += (d.rng.Float64() - d.rng.Float64()) * d.lsb
	}

	return nil
}
