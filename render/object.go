package render

import (
	"sync/atomic"

	"github.com/cwbudde/algo-binaural/conv"
	"github.com/cwbudde/algo-binaural/spatial"
)

// Source delivers mono samples to the renderer. ReadBlock fills dst
// from the front and returns the number of samples written; the engine
// zero-fills the remainder, so a short read simply pads with silence.
// ReadBlock is called on the render goroutine and must not block on
// slow I/O.
type Source interface {
	ReadBlock(dst []float64) int
}

// Handle identifies an object. Handles stay unique across slot reuse;
// operations on a handle whose object has been removed return
// ErrUnknownHandle.
type Handle uint64

func makeHandle(slot int, gen uint32) Handle {
	return Handle(uint64(gen)<<32 | uint64(uint32(slot)))
}

func (h Handle) slot() int   { return int(uint32(h)) }
func (h Handle) gen() uint32 { return uint32(h >> 32) }

// ObjectOptions are the initial parameters of a new object.
type ObjectOptions struct {
	Position spatial.Vec3

	// Gain scales the direct path. Negative values clamp to zero.
	Gain float64

	// Send scales the object's contribution to the room bus.
	Send float64
}

// objectParams is one immutable parameter snapshot. The control plane
// publishes whole snapshots through an atomic pointer; concurrent
// updates coalesce last-write-wins without blocking the render tick.
type objectParams struct {
	position spatial.Vec3
	gain     float64
	send     float64
}

// Slot lifecycle states. Transitions out of slotFree and slotActive are
// CAS-driven by the control plane; the render goroutine owns the
// slotFading exit back to slotFree.
const (
	slotFree uint32 = iota
	slotStaging
	slotActive
	slotFadeRequested
	slotFading
)

// slot is one arena entry. The atomic fields form the cross-goroutine
// interface; everything below them is owned by the render goroutine
// while the state is out of slotFree, except during staging when the
// claiming control call initializes it before publishing slotActive.
type slot struct {
	state  atomic.Uint32
	gen    atomic.Uint32
	params atomic.Pointer[objectParams]

	source Source

	engine *conv.Binaural
	irL    []float64
	irR    []float64
	haveIR bool
	lastAz float64
	lastEl float64

	fadePos int

	inBuf []float64
	outL  []float64
	outR  []float64
}

// matches reports whether h currently names this slot's occupant.
func (s *slot) matches(h Handle) bool {
	st := s.state.Load()
	if st == slotFree || st == slotStaging {
		return false
	}

	return s.gen.Load() == h.gen()
}

// releaseToFree returns the slot to the pool. Render goroutine only.
// The generation bump invalidates outstanding handles before the state
// transition makes the slot claimable again.
func (s *slot) releaseToFree() {
	s.engine.Reset()
	s.source = nil
	s.haveIR = false
	s.fadePos = 0

	s.gen.Add(1)
	s.state.Store(slotFree)
}
