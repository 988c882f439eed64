package hrtf

import (
	"errors"
	"fmt"
	"math"
)

// Errors returned by dataset construction.
var (
	ErrEmptyDataset     = errors.New("hrtf: dataset has no impulse responses")
	ErrGridMismatch     = errors.New("hrtf: impulse response count does not match grid")
	ErrIRLengthMismatch = errors.New("hrtf: impulse response lengths are not uniform")
	ErrInvalidGrid      = errors.New("hrtf: invalid grid")
	ErrLengthMismatch   = errors.New("hrtf: destination length does not match IR length")
)

// Pair holds one impulse response per ear.
type Pair struct {
	Left  []float64
	Right []float64
}

// Grid describes a regular azimuth/elevation measurement grid.
// Azimuths cover the full circle [0, 360) in AzimuthStep increments.
// Elevations run from ElevationMin to ElevationMax in ElevationStep
// increments, both ends inclusive.
type Grid struct {
	AzimuthStep   float64
	ElevationMin  float64
	ElevationMax  float64
	ElevationStep float64
}

// Validate checks grid parameters.
func (g Grid) Validate() error {
	if g.AzimuthStep <= 0 || math.Mod(360, g.AzimuthStep) != 0 {
		return fmt.Errorf("%w: azimuth step %f must divide 360", ErrInvalidGrid, g.AzimuthStep)
	}

	if g.ElevationMax < g.ElevationMin {
		return fmt.Errorf("%w: elevation max %f < min %f", ErrInvalidGrid, g.ElevationMax, g.ElevationMin)
	}

	if g.ElevationStep <= 0 && g.ElevationMax != g.ElevationMin {
		return fmt.Errorf("%w: elevation step must be > 0: %f", ErrInvalidGrid, g.ElevationStep)
	}

	return nil
}

// AzimuthCount returns the number of azimuth grid points.
func (g Grid) AzimuthCount() int {
	return int(math.Round(360 / g.AzimuthStep))
}

// ElevationCount returns the number of elevation grid points.
func (g Grid) ElevationCount() int {
	if g.ElevationMax == g.ElevationMin {
		return 1
	}

	return int(math.Round((g.ElevationMax-g.ElevationMin)/g.ElevationStep)) + 1
}

// Dataset is an immutable direction-indexed HRIR table.
type Dataset struct {
	grid  Grid
	irLen int
	nAz   int
	nEl   int
	pairs []Pair // row-major: elevation index * nAz + azimuth index
}

// New builds a dataset from measured pairs laid out row-major by
// elevation, then azimuth. All impulse responses must share one length.
// The pair slices are copied; callers may reuse their buffers.
func New(grid Grid, pairs []Pair) (*Dataset, error) {
	if err := grid.Validate(); err != nil {
		return nil, err
	}

	nAz := grid.AzimuthCount()
	nEl := grid.ElevationCount()

	if len(pairs) == 0 {
		return nil, ErrEmptyDataset
	}

	if len(pairs) != nAz*nEl {
		return nil, fmt.Errorf("%w: have %d pairs, grid needs %d", ErrGridMismatch, len(pairs), nAz*nEl)
	}

	irLen := len(pairs[0].Left)
	if irLen == 0 {
		return nil, ErrEmptyDataset
	}

	stored := make([]Pair, len(pairs))
	for i, p := range pairs {
		if len(p.Left) != irLen || len(p.Right) != irLen {
			return nil, fmt.Errorf("%w: pair %d has lengths %d/%d, want %d",
				ErrIRLengthMismatch, i, len(p.Left), len(p.Right), irLen)
		}

		stored[i] = Pair{
			Left:  append([]float64(nil), p.Left...),
			Right: append([]float64(nil), p.Right...),
		}
	}

	return &Dataset{
		grid:  grid,
		irLen: irLen,
		nAz:   nAz,
		nEl:   nEl,
		pairs: stored,
	}, nil
}

// IRLength returns the fixed impulse response length.
func (d *Dataset) IRLength() int { return d.irLen }

// Grid returns the measurement grid.
func (d *Dataset) Grid() Grid { return d.grid }

// Lookup returns the interpolated impulse response pair for the given
// direction. It allocates; use LookupTo on processing paths.
func (d *Dataset) Lookup(azimuthDeg, elevationDeg float64) Pair {
	p := Pair{
		Left:  make([]float64, d.irLen),
		Right: make([]float64, d.irLen),
	}

	// Lengths match by construction, error is impossible here.
	_ = d.LookupTo(p.Left, p.Right, azimuthDeg, elevationDeg)

	return p
}

// LookupTo writes the interpolated impulse response pair for the given
// direction into left and right, which must both have length IRLength.
// Azimuth wraps modulo 360, elevation clamps to the grid limits, and
// non-finite inputs resolve to the frontal direction, so the lookup is
// total over float inputs.
func (d *Dataset) LookupTo(left, right []float64, azimuthDeg, elevationDeg float64) error {
	if len(left) != d.irLen || len(right) != d.irLen {
		return fmt.Errorf("%w: have %d/%d, want %d", ErrLengthMismatch, len(left), len(right), d.irLen)
	}

	if math.IsNaN(azimuthDeg) || math.IsInf(azimuthDeg, 0) {
		azimuthDeg = 0
	}

	if math.IsNaN(elevationDeg) || math.IsInf(elevationDeg, 0) {
		elevationDeg = 0
	}

	az := math.Mod(azimuthDeg, 360)
	if az < 0 {
		az += 360
	}

	el := elevationDeg
	if el < d.grid.ElevationMin {
		el = d.grid.ElevationMin
	}

	if el > d.grid.ElevationMax {
		el = d.grid.ElevationMax
	}

	azPos := az / d.grid.AzimuthStep
	azIdx0 := int(math.Floor(azPos)) % d.nAz
	azIdx1 := (azIdx0 + 1) % d.nAz
	azFrac := azPos - math.Floor(azPos)

	elIdx0 := 0
	elFrac := 0.0

	if d.nEl > 1 {
		elPos := (el - d.grid.ElevationMin) / d.grid.ElevationStep
		elIdx0 = int(math.Floor(elPos))

		if elIdx0 >= d.nEl-1 {
			elIdx0 = d.nEl - 1
			elFrac = 0
		} else {
			elFrac = elPos - math.Floor(elPos)
		}
	}

	elIdx1 := elIdx0
	if elIdx0 < d.nEl-1 {
		elIdx1 = elIdx0 + 1
	}

	p00 := d.pairs[elIdx0*d.nAz+azIdx0]
	p01 := d.pairs[elIdx0*d.nAz+azIdx1]
	p10 := d.pairs[elIdx1*d.nAz+azIdx0]
	p11 := d.pairs[elIdx1*d.nAz+azIdx1]

	w00 := (1 - azFrac) * (1 - elFrac)
	w01 := azFrac * (1 - elFrac)
	w10 := (1 - azFrac) * elFrac
	w11 := azFrac * elFrac

	for i := range d.irLen {
		left[i] = w00*p00.Left[i] + w01*p01.Left[i] + w10*p10.Left[i] + w11*p11.Left[i]
		right[i] = w00*p00.Right[i] + w01*p01.Right[i] + w10*p10.Right[i] + w11*p11.Right[i]
	}

	return nil
}
