// Package render ties the HRTF, convolution, spatial cue, room and
// mixing stages into a block-based binaural engine.
//
// The engine splits into two planes. The render plane is a single
// goroutine calling RenderNextBlock; it owns all signal state and never
// allocates, locks or returns errors. The control plane (any goroutine)
// adds, updates and removes objects and moves the listener by
// publishing immutable snapshots through atomic pointers, so a render
// tick always sees a consistent parameter set and concurrent updates
// coalesce last-write-wins.
package render

import (
	"fmt"
	"math"
	"sync/atomic"
	"time"

	"github.com/cwbudde/algo-vecmath"

	"github.com/cwbudde/algo-binaural/conv"
	"github.com/cwbudde/algo-binaural/hrtf"
	"github.com/cwbudde/algo-binaural/mix"
	"github.com/cwbudde/algo-binaural/room"
	"github.com/cwbudde/algo-binaural/spatial"
)

// Impulse responses are re-interpolated when the source direction moves
// more than this many degrees since the last lookup.
const irUpdateThresholdDeg = 0.5

// Stats is a snapshot of the engine's counters.
type Stats struct {
	Ticks       uint64
	Underruns   uint64
	LiveObjects int
}

// Engine is the binaural render engine. Control methods are safe for
// concurrent use; RenderNextBlock must be called from one goroutine.
type Engine struct {
	cfg    Config
	cueCfg spatial.CueConfig

	dataset *hrtf.Dataset
	slots   []slot

	listener atomic.Pointer[spatial.Listener]

	mixer    *mix.Mixer
	ditherer *mix.Ditherer
	room     *room.Renderer

	sendBus  []float64
	roomL    []float64
	roomR    []float64
	fadeRamp []float64
	outL     []float64
	outR     []float64

	fadeTotal   int // removal ramp length in samples
	blockBudget time.Duration

	ticks     atomic.Uint64
	underruns atomic.Uint64
	live      atomic.Int64
}

// NewEngine creates an engine rendering the given dataset. All arena
// slots, convolvers and scratch blocks are allocated here; the tick
// path allocates nothing.
func NewEngine(cfg Config, dataset *hrtf.Dataset) (*Engine, error) {
	cfg = cfg.withDefaults()

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	if dataset == nil {
		return nil, fmt.Errorf("render: dataset must not be nil")
	}

	cueCfg := spatial.DefaultCueConfig(cfg.SampleRate)
	cueCfg.Model = cfg.DistanceModel
	cueCfg.MinDistance = cfg.MinDistance

	if cfg.MaxITDSamples > 0 {
		cueCfg.MaxITDSamples = cfg.MaxITDSamples
	}

	if err := cueCfg.Validate(); err != nil {
		return nil, err
	}

	limiter, err := mix.NewLimiter(cfg.SampleRate, mix.LimiterConfig{
		ThresholdDB: cfg.LimiterThresholdDB,
		KneeDB:      6,
		ReleaseMs:   80,
	})
	if err != nil {
		return nil, err
	}

	mixer, err := mix.NewMixer(cfg.BlockSize, limiter, cfg.Fallback)
	if err != nil {
		return nil, err
	}

	e := &Engine{
		cfg:         cfg,
		cueCfg:      cueCfg,
		dataset:     dataset,
		slots:       make([]slot, cfg.MaxObjects),
		mixer:       mixer,
		sendBus:     make([]float64, cfg.BlockSize),
		roomL:       make([]float64, cfg.BlockSize),
		roomR:       make([]float64, cfg.BlockSize),
		fadeRamp:    make([]float64, cfg.BlockSize),
		outL:        make([]float64, cfg.BlockSize),
		outR:        make([]float64, cfg.BlockSize),
		fadeTotal:   cfg.FadeOutBlocks * cfg.BlockSize,
		blockBudget: time.Duration(float64(cfg.BlockSize) / cfg.SampleRate * float64(time.Second)),
	}

	if cfg.DitherBits != 0 {
		ditherer, err := mix.NewDitherer(cfg.DitherBits, cfg.DitherSeed)
		if err != nil {
			return nil, err
		}

		e.ditherer = ditherer
	}

	if cfg.Room != nil {
		roomRenderer, err := room.NewRenderer(*cfg.Room, dataset, cfg.SampleRate, cfg.BlockSize)
		if err != nil {
			return nil, err
		}

		e.room = roomRenderer
	}

	irLen := dataset.IRLength()

	for i := range e.slots {
		engine, err := conv.NewBinaural(cfg.BlockSize, irLen, cfg.CrossfadeBlocks, cueCfg.MaxITDSamples)
		if err != nil {
			return nil, err
		}

		s := &e.slots[i]
		s.engine = engine
		s.irL = make([]float64, irLen)
		s.irR = make([]float64, irLen)
		s.inBuf = make([]float64, cfg.BlockSize)
		s.outL = make([]float64, cfg.BlockSize)
		s.outR = make([]float64, cfg.BlockSize)
	}

	initial := spatial.Listener{Orientation: spatial.IdentityQuaternion()}
	e.listener.Store(&initial)

	return e, nil
}

// Config returns the resolved configuration.
func (e *Engine) Config() Config { return e.cfg }

// BlockSize returns the render quantum in samples.
func (e *Engine) BlockSize() int { return e.cfg.BlockSize }

// AddObject claims an arena slot for a new object and returns its
// handle. The slot becomes audible on the next render tick.
func (e *Engine) AddObject(source Source, opts ObjectOptions) (Handle, error) {
	if source == nil {
		return 0, ErrNilSource
	}

	gain := math.Max(opts.Gain, 0)
	send := math.Max(opts.Send, 0)

	for i := range e.slots {
		s := &e.slots[i]

		if !s.state.CompareAndSwap(slotFree, slotStaging) {
			continue
		}

		s.source = source
		s.fadePos = 0
		s.params.Store(&objectParams{
			position: opts.Position,
			gain:     gain,
			send:     send,
		})

		h := makeHandle(i, s.gen.Load())

		e.live.Add(1)
		s.state.Store(slotActive)

		return h, nil
	}

	return 0, ErrTooManyObjects
}

// lookup resolves a handle to its live slot.
func (e *Engine) lookup(h Handle) (*slot, error) {
	idx := h.slot()
	if idx < 0 || idx >= len(e.slots) {
		return nil, ErrUnknownHandle
	}

	s := &e.slots[idx]
	if !s.matches(h) {
		return nil, ErrUnknownHandle
	}

	return s, nil
}

// UpdatePosition publishes a new position for the object.
func (e *Engine) UpdatePosition(h Handle, pos spatial.Vec3) error {
	return e.updateParams(h, func(p *objectParams) {
		p.position = pos
	})
}

// UpdateGain publishes a new direct-path gain. Negative values clamp to
// zero.
func (e *Engine) UpdateGain(h Handle, gain float64) error {
	return e.updateParams(h, func(p *objectParams) {
		p.gain = math.Max(gain, 0)
	})
}

// UpdateSend publishes a new room-send level. Negative values clamp to
// zero.
func (e *Engine) UpdateSend(h Handle, send float64) error {
	return e.updateParams(h, func(p *objectParams) {
		p.send = math.Max(send, 0)
	})
}

func (e *Engine) updateParams(h Handle, apply func(*objectParams)) error {
	s, err := e.lookup(h)
	if err != nil {
		return err
	}

	next := *s.params.Load()
	apply(&next)
	s.params.Store(&next)

	return nil
}

// RemoveObject starts the object's fade-out ramp. Removing an object
// that is already fading is a no-op; the ramp is never restarted. The
// handle becomes unknown once the ramp completes and the slot is
// released.
func (e *Engine) RemoveObject(h Handle) error {
	s, err := e.lookup(h)
	if err != nil {
		return err
	}

	s.state.CompareAndSwap(slotActive, slotFadeRequested)

	return nil
}

// UpdateListener publishes a new listener pose. The orientation is
// normalized before use.
func (e *Engine) UpdateListener(pos spatial.Vec3, orient spatial.Quaternion) {
	l := spatial.Listener{
		Position:    pos,
		Orientation: orient.Normalize(),
	}

	e.listener.Store(&l)
}

// Stats returns the engine counters.
func (e *Engine) Stats() Stats {
	return Stats{
		Ticks:       e.ticks.Load(),
		Underruns:   e.underruns.Load(),
		LiveObjects: int(e.live.Load()),
	}
}

// RenderNextBlock renders one block and returns the stereo result. The
// returned slices are reused by the next call. It never fails: per
// object problems degrade to that object's silence and a missed tick
// budget is handled by the configured fallback policy.
func (e *Engine) RenderNextBlock() (left, right []float64) {
	start := time.Now()

	e.ticks.Add(1)
	e.mixer.Begin()
	clear(e.sendBus)

	listener := *e.listener.Load()

	for i := range e.slots {
		s := &e.slots[i]

		state := s.state.Load()

		if state == slotFadeRequested {
			if s.state.CompareAndSwap(slotFadeRequested, slotFading) {
				s.fadePos = 0
				state = slotFading
			} else {
				state = s.state.Load()
			}
		}

		if state != slotActive && state != slotFading {
			continue
		}

		e.renderSlot(s, listener, state == slotFading)
	}

	if e.room != nil {
		if err := e.room.ProcessBlock(e.sendBus, e.roomL, e.roomR); err == nil {
			_ = e.mixer.Add(e.roomL, e.roomR)
		}
	}

	_ = e.mixer.Finish(e.outL, e.outR)

	if e.ditherer != nil {
		_ = e.ditherer.ProcessBlockInPlace(e.outL, e.outR)
	}

	if time.Since(start) > e.blockBudget {
		e.underruns.Add(1)
		_ = e.mixer.WriteFallback(e.outL, e.outR)
	}

	return e.outL, e.outR
}

// renderSlot processes one object into the mix and send buses.
func (e *Engine) renderSlot(s *slot, listener spatial.Listener, fading bool) {
	params := s.params.Load()

	n := s.source.ReadBlock(s.inBuf)
	if n < 0 {
		n = 0
	}

	if n < len(s.inBuf) {
		clear(s.inBuf[n:])
	}

	dir := spatial.RelativeDirection(listener, params.position)
	cues := spatial.Compute(dir, e.cueCfg)

	if !s.haveIR ||
		math.Abs(dir.AzimuthDeg-s.lastAz) > irUpdateThresholdDeg ||
		math.Abs(dir.ElevationDeg-s.lastEl) > irUpdateThresholdDeg {
		// Lengths match by construction.
		_ = e.dataset.LookupTo(s.irL, s.irR, dir.AzimuthDeg, dir.ElevationDeg)

		if err := s.engine.SetIRs(s.irL, s.irR, !s.haveIR); err == nil {
			s.lastAz = dir.AzimuthDeg
			s.lastEl = dir.ElevationDeg
			s.haveIR = true
		}
	}

	_ = s.engine.SetCues(
		cues.DelayLeft, cues.DelayRight,
		cues.GainLeft*params.gain, cues.GainRight*params.gain,
		false,
	)

	if err := s.engine.ProcessBlock(s.inBuf, s.outL, s.outR); err != nil {
		return
	}

	sendGain := params.send * cues.MonoGain

	if fading {
		e.fillFadeRamp(s.fadePos)

		vecmath.MulBlockInPlace(s.outL, e.fadeRamp)
		vecmath.MulBlockInPlace(s.outR, e.fadeRamp)

		for i := range e.sendBus {
			e.sendBus[i] += s.inBuf[i] * sendGain * e.fadeRamp[i]
		}

		s.fadePos += e.cfg.BlockSize
	} else {
		for i := range e.sendBus {
			e.sendBus[i] += s.inBuf[i] * sendGain
		}
	}

	_ = e.mixer.Add(s.outL, s.outR)

	if fading && s.fadePos >= e.fadeTotal {
		e.live.Add(-1)
		s.releaseToFree()
	}
}

// fillFadeRamp writes the equal-power removal ramp segment starting at
// the given sample offset into the scratch ramp buffer.
func (e *Engine) fillFadeRamp(fadePos int) {
	for i := range e.fadeRamp {
		t := float64(fadePos+i+1) / float64(e.fadeTotal)
		if t > 1 {
			t = 1
		}

		e.fadeRamp[i] = math.Cos(t * math.Pi / 2)
	}
}
