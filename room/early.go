package room

import (
	"fmt"
	"math"

	"github.com/cwbudde/algo-binaural/delay"
	"github.com/cwbudde/algo-binaural/hrtf"
	"github.com/cwbudde/algo-binaural/spatial"
)

const (
	earlyPathCount = 6
	earlyFIRLength = 32
	soundSpeed     = 343.0
)

// firFilter is a direct-form FIR with a circular state buffer.
type firFilter struct {
	coeffs []float64
	state  []float64
	pos    int
}

func newFIRFilter(coeffs []float64) *firFilter {
	return &firFilter{
		coeffs: append([]float64(nil), coeffs...),
		state:  make([]float64, len(coeffs)),
	}
}

func (f *firFilter) processSample(x float64) float64 {
	f.state[f.pos] = x

	acc := 0.0
	idx := f.pos

	for _, c := range f.coeffs {
		acc += c * f.state[idx]

		idx--
		if idx < 0 {
			idx = len(f.state) - 1
		}
	}

	f.pos++
	if f.pos >= len(f.state) {
		f.pos = 0
	}

	return acc
}

func (f *firFilter) reset() {
	clear(f.state)
	f.pos = 0
}

// earlyPath is one first-order wall reflection: an arrival delay, a
// distance/absorption gain and a short directional filter pair.
type earlyPath struct {
	delaySamples float64
	gain         float64
	left         *firFilter
	right        *firFilter
}

// earlyReflector renders the six first-order image sources of the
// shoebox model. The scene is reduced to its center: all sources share
// one mixed send, so the reflections describe the room rather than any
// individual source position. Each path is colored by a truncated
// impulse response for its arrival direction so reflections stay
// spatially distinct from the direct signal.
type earlyReflector struct {
	input *delay.Line
	paths [earlyPathCount]earlyPath
}

// earlyArrivals lists the arrival direction of each first-order wall
// reflection for a centered listener: front/back along X, right/left
// along Y, ceiling/floor along Z.
var earlyArrivals = [earlyPathCount]struct {
	azimuthDeg   float64
	elevationDeg float64
	halfExtent   func(dims spatial.Vec3) float64
}{
	{0, 0, func(d spatial.Vec3) float64 { return d.X / 2 }},
	{180, 0, func(d spatial.Vec3) float64 { return d.X / 2 }},
	{90, 0, func(d spatial.Vec3) float64 { return d.Y / 2 }},
	{-90, 0, func(d spatial.Vec3) float64 { return d.Y / 2 }},
	{0, 90, func(d spatial.Vec3) float64 { return d.Z / 2 }},
	{0, -90, func(d spatial.Vec3) float64 { return d.Z / 2 }},
}

func newEarlyReflector(m Model, ds *hrtf.Dataset, sampleRate float64) (*earlyReflector, error) {
	firLen := min(earlyFIRLength, ds.IRLength())

	irL := make([]float64, ds.IRLength())
	irR := make([]float64, ds.IRLength())

	r := &earlyReflector{}

	maxDelay := 0.0

	for i, arr := range earlyArrivals {
		// Center to wall and back.
		dist := 2 * arr.halfExtent(m.Dimensions)

		delaySamples := dist / soundSpeed * sampleRate
		if delaySamples > maxDelay {
			maxDelay = delaySamples
		}

		gain := (1 - m.Absorption) / math.Max(dist, 1)

		if err := ds.LookupTo(irL, irR, arr.azimuthDeg, arr.elevationDeg); err != nil {
			return nil, fmt.Errorf("room: reflection filter lookup: %w", err)
		}

		r.paths[i] = earlyPath{
			delaySamples: delaySamples,
			gain:         gain,
			left:         newFIRFilter(irL[:firLen]),
			right:        newFIRFilter(irR[:firLen]),
		}
	}

	line, err := delay.New(int(math.Ceil(maxDelay)) + 8)
	if err != nil {
		return nil, err
	}

	r.input = line

	return r, nil
}

// processSample feeds one mono input sample and returns the summed
// stereo reflection contribution.
func (r *earlyReflector) processSample(input float64) (left, right float64) {
	r.input.Write(input)

	for i := range r.paths {
		p := &r.paths[i]

		tap := r.input.ReadFractional(p.delaySamples) * p.gain

		left += p.left.processSample(tap)
		right += p.right.processSample(tap)
	}

	return left, right
}

func (r *earlyReflector) reset() {
	r.input.Reset()

	for i := range r.paths {
		r.paths[i].left.reset()
		r.paths[i].right.reset()
	}
}
