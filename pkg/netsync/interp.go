package netsync

import (
	"math"

	"github.com/sirupsen/logrus"
)

// Pipeline is the Interpolation Pipeline: it owns state_a/state_b, the
// bounded lerp buffer, and the jitter-adaptive lerp-duration computation
// (spec §4.2).
type Pipeline struct {
	stateA *Snapshot
	stateB *Snapshot
	buffer []*Snapshot // ascending tick order, bounded bufferSize

	bufferSize       int
	lerpTimer        float64
	lerpDuration     float64
	adaptiveMidpoint float64
	tickPeriod       float64
	tickRate         int

	store    *Store
	rollback *RollbackEngine
	inputs   *InputQueue
	log      *logrus.Entry
}

// NewPipeline builds an interpolation pipeline. bufferSize is normally
// config.InterpolateBufferSize (10); tickRate is config.TickRate.
func NewPipeline(bufferSize, tickRate int, store *Store, rollback *RollbackEngine, inputs *InputQueue, log *logrus.Entry) *Pipeline {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Pipeline{
		bufferSize:       bufferSize,
		adaptiveMidpoint: 3.0,
		tickRate:         tickRate,
		tickPeriod:       1.0 / float64(tickRate),
		store:            store,
		rollback:         rollback,
		inputs:           inputs,
		log:              log.WithField("component", "interp"),
	}
}

// StateA returns the current base snapshot (nil before the first
// baseline arrives).
func (p *Pipeline) StateA() *Snapshot { return p.stateA }

// StateB returns the current target snapshot, or nil if none is queued.
func (p *Pipeline) StateB() *Snapshot { return p.stateB }

// LerpTimer returns the elapsed real seconds toward LerpDuration.
func (p *Pipeline) LerpTimer() float64 { return p.lerpTimer }

// LerpDuration returns the current target lerp duration in seconds.
func (p *Pipeline) LerpDuration() float64 { return p.lerpDuration }

// BufferLen reports the number of snapshots currently queued.
func (p *Pipeline) BufferLen() int { return len(p.buffer) }

// InstallBaseline replaces state_a with snap, clears state_b and the
// lerp buffer back to the pool, and resets timing state (spec §4.1
// "baseline path").
func (p *Pipeline) InstallBaseline(snap *Snapshot) {
	if p.stateA != nil {
		p.store.Release(p.stateA)
	}
	if p.stateB != nil {
		p.store.Release(p.stateB)
	}
	for _, b := range p.buffer {
		p.store.Release(b)
	}
	p.buffer = p.buffer[:0]
	p.stateA = snap
	p.stateB = nil
	p.lerpTimer = 0
	p.lerpDuration = 0
	p.adaptiveMidpoint = 3.0
}

// Insert accepts a freshly reassembled diff snapshot into the lerp
// buffer (spec §4.2). If the buffer is full and snap is newer than its
// current minimum, this forces one go_to_next before inserting; if
// older, snap is dropped back to the pool.
func (p *Pipeline) Insert(snap *Snapshot) {
	if p.stateA == nil {
		p.store.Release(snap)
		return
	}
	if len(p.buffer) < p.bufferSize {
		p.insertSorted(snap)
		return
	}

	min := p.buffer[0]
	if SeqDiff(snap.Tick, min.Tick) > 0 {
		if p.stateB == nil {
			// Nothing has primed state_b yet (no frame Tick has run
			// since the baseline installed); do so now so the forced
			// advance below has something to promote.
			p.PreloadNext()
		}
		p.lerpTimer = p.lerpDuration
		p.GoToNext()
		p.insertSorted(snap)
		return
	}
	p.store.Release(snap)
}

func (p *Pipeline) insertSorted(snap *Snapshot) {
	i := 0
	for i < len(p.buffer) && SeqDiff(p.buffer[i].Tick, snap.Tick) < 0 {
		i++
	}
	p.buffer = append(p.buffer, nil)
	copy(p.buffer[i+1:], p.buffer[i:])
	p.buffer[i] = snap
}

func (p *Pipeline) popMin() *Snapshot {
	if len(p.buffer) == 0 {
		return nil
	}
	m := p.buffer[0]
	p.buffer = p.buffer[1:]
	return m
}

// PreloadNext pops the buffer's minimum as the new state_b, scans its
// payload, and recomputes lerp_duration from the adaptive jitter model
// (spec §4.2 "preload-next"). Returns false if state_b is already set
// or the buffer is empty.
func (p *Pipeline) PreloadNext() bool {
	if p.stateB != nil {
		return false
	}
	next := p.popMin()
	if next == nil {
		return false
	}
	p.store.Scan(next)
	p.stateB = next

	p.updateAdaptiveMidpoint()

	diff := float64(SeqDiff(next.Tick, p.stateA.Tick))
	bufferLen := float64(len(p.buffer))
	p.lerpDuration = diff * p.tickPeriod * (1 - (bufferLen-p.adaptiveMidpoint)*0.02)

	if p.inputs != nil {
		p.inputs.DropAcked(next.ProcessedTick)
	}
	return true
}

// updateAdaptiveMidpoint recomputes adaptive_midpoint from the jitter
// sampler's ring, attacking immediately on a new high and decaying
// slowly otherwise (spec §4.2).
func (p *Pipeline) updateAdaptiveMidpoint() {
	samples := p.store.Jitter().Values()
	if len(samples) < 2 {
		return
	}
	fps := float64(p.tickRate)

	maxJitter := 0.0
	sum := 0.0
	for i := 0; i < len(samples)-1; i++ {
		j := math.Abs(samples[i]-samples[i+1]) * fps
		if j > maxJitter {
			maxJitter = j
		}
		sum += j
	}
	mean := sum / float64(len(samples)-1)

	if maxJitter > p.adaptiveMidpoint {
		p.adaptiveMidpoint = maxJitter
	} else {
		if mean < 1 {
			mean = 1
		}
		p.adaptiveMidpoint = lerpFloat(p.adaptiveMidpoint, mean, 0.05)
	}
	if p.adaptiveMidpoint < 1 {
		p.adaptiveMidpoint = 1
	}
}

func lerpFloat(a, b, t float64) float64 {
	return a + (b-a)*t
}

// AdaptiveMidpoint returns the current jitter midpoint estimate, always
// >= 1 after the first preload (spec §8 invariant).
func (p *Pipeline) AdaptiveMidpoint() float64 {
	return p.adaptiveMidpoint
}

// Tick advances the lerp timer by dt and fires GoToNext once it reaches
// lerp_duration (spec §4.2, the non-forced advance trigger checked every
// frame).
func (p *Pipeline) Tick(dt float64) {
	if p.stateB == nil {
		// Nothing queued for interpolation yet (e.g. just after a
		// baseline install): keep trying to prime state_b from the
		// buffer rather than waiting forever for a forced advance.
		p.PreloadNext()
		return
	}
	p.lerpTimer += dt
	if p.lerpTimer >= p.lerpDuration {
		p.GoToNext()
	}
}

// GoToNext promotes state_b to state_a, applies its fields, rolls back
// and replays predicted entities, and immediately attempts to preload
// the next target (spec §4.2 "go_to_next").
func (p *Pipeline) GoToNext() bool {
	if p.stateB == nil {
		return false
	}

	old := p.stateA
	p.stateA = p.stateB
	p.stateB = nil
	if old != nil {
		p.store.Release(old)
	}

	for _, entry := range p.stateA.Preload {
		p.store.Apply(entry, p.stateA.Records)
	}
	p.store.FlushOnSync()

	p.lerpTimer -= p.lerpDuration
	oldDuration := p.lerpDuration

	if p.rollback != nil {
		p.rollback.Rollback(p.stateA.ProcessedTick)
	}

	if p.PreloadNext() && oldDuration != 0 && p.lerpDuration != 0 {
		p.lerpTimer *= oldDuration / p.lerpDuration
	}
	return true
}
