package room

import (
	"fmt"
	"math"
)

const (
	fdnSize                = 8
	fdnReferenceSampleRate = 44100.0
)

// Reference delay lengths at 44.1 kHz. Mutually coprime so the network's
// modes do not align into audible periodicity; after sample-rate scaling
// the lengths are re-adjusted to restore coprimality.
var fdnBaseDelays = [fdnSize]int{1537, 1753, 1999, 2251, 2473, 2689, 2851, 3067}

var fdnHadamard = [fdnSize][fdnSize]float64{
	{1, 1, 1, 1, 1, 1, 1, 1},
	{1, -1, 1, -1, 1, -1, 1, -1},
	{1, 1, -1, -1, 1, 1, -1, -1},
	{1, -1, -1, 1, 1, -1, -1, 1},
	{1, 1, 1, 1, -1, -1, -1, -1},
	{1, -1, 1, -1, -1, 1, -1, 1},
	{1, 1, -1, -1, -1, -1, 1, 1},
	{1, -1, -1, 1, -1, 1, 1, -1},
}

// fdnNetwork is an 8-line Hadamard feedback delay network with one-pole
// damping and decorrelated stereo output taps. The Hadamard matrix is
// orthogonal after scaling, so the loop gain equals the largest per-line
// feedback gain; construction guarantees that gain stays below unity.
type fdnNetwork struct {
	lines        [fdnSize]fdnLine
	feedbackGain [fdnSize]float64
	filterState  [fdnSize]float64
	damp         float64

	inputGain   float64
	matrixScale float64
	outGainL    [fdnSize]float64
	outGainR    [fdnSize]float64
}

type fdnLine struct {
	buffer   []float64
	writePos int
}

func (l *fdnLine) init(length int) {
	l.buffer = make([]float64, length)
	l.writePos = 0
}

func (l *fdnLine) reset() {
	clear(l.buffer)
	l.writePos = 0
}

// read returns the oldest sample, i.e. a delay of len(buffer).
func (l *fdnLine) read() float64 {
	return l.buffer[l.writePos]
}

func (l *fdnLine) write(x float64) {
	l.buffer[l.writePos] = x
	l.writePos++
	if l.writePos >= len(l.buffer) {
		l.writePos = 0
	}
}

// newFDNNetwork builds the late-field network for a sample rate and
// decay target. It fails if any derived feedback gain reaches unity.
func newFDNNetwork(sampleRate, decayTime, damping float64) (*fdnNetwork, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("room: sample rate must be > 0: %f", sampleRate)
	}

	n := &fdnNetwork{
		damp:        damping,
		inputGain:   1 / math.Sqrt(fdnSize),
		matrixScale: 1 / math.Sqrt(fdnSize),
	}

	scale := sampleRate / fdnReferenceSampleRate
	lengths := scaledCoprimeDelays(scale)

	for i := range fdnSize {
		n.lines[i].init(lengths[i])

		delaySeconds := float64(lengths[i]) / sampleRate
		g := math.Pow(10, -3*delaySeconds/decayTime)

		if g >= 1 || !isFiniteGain(g) {
			return nil, fmt.Errorf("room: unstable feedback gain %f for line %d (decay %f s)", g, i, decayTime)
		}

		n.feedbackGain[i] = g

		// Even lines feed the left tap, odd lines the right, with
		// alternating signs for decorrelation.
		sign := 1.0
		if i/2%2 == 1 {
			sign = -1
		}

		if i%2 == 0 {
			n.outGainL[i] = sign / math.Sqrt(fdnSize/2)
		} else {
			n.outGainR[i] = sign / math.Sqrt(fdnSize/2)
		}
	}

	return n, nil
}

func isFiniteGain(g float64) bool {
	return !math.IsNaN(g) && !math.IsInf(g, 0)
}

// scaledCoprimeDelays scales the reference lengths to the target sample
// rate, then nudges each length upward until it is coprime with all
// previous ones.
func scaledCoprimeDelays(scale float64) [fdnSize]int {
	var lengths [fdnSize]int

	for i, base := range fdnBaseDelays {
		l := int(math.Round(float64(base) * scale))
		if l < 4 {
			l = 4
		}

		for !coprimeWithAll(l, lengths[:i]) {
			l++
		}

		lengths[i] = l
	}

	return lengths
}

func coprimeWithAll(n int, others []int) bool {
	for _, o := range others {
		if gcd(n, o) != 1 {
			return false
		}
	}

	return true
}

func gcd(a, b int) int {
	for b != 0 {
		a, b = b, a%b
	}

	return a
}

// maxFeedbackGain returns the network's loop gain bound.
func (n *fdnNetwork) maxFeedbackGain() float64 {
	g := 0.0
	for _, v := range n.feedbackGain {
		if v > g {
			g = v
		}
	}

	return g
}

// processSample advances the network by one sample of mono input and
// returns the stereo late-field contribution.
func (n *fdnNetwork) processSample(input float64) (left, right float64) {
	var delayed [fdnSize]float64
	for i := range fdnSize {
		delayed[i] = n.lines[i].read()
	}

	for i := range fdnSize {
		feedback := 0.0
		for j := range fdnSize {
			feedback += fdnHadamard[i][j] * delayed[j]
		}

		feedback *= n.matrixScale

		filtered := feedback*(1-n.damp) + n.filterState[i]*n.damp
		n.filterState[i] = filtered

		n.lines[i].write(input*n.inputGain + filtered*n.feedbackGain[i])
	}

	for i := range fdnSize {
		left += delayed[i] * n.outGainL[i]
		right += delayed[i] * n.outGainR[i]
	}

	return left, right
}

// reset clears all delay and filter state to silence.
func (n *fdnNetwork) reset() {
	for i := range n.lines {
		n.lines[i].reset()
		n.filterState[i] = 0
	}
}
