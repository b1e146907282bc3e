package netsync

import (
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"

	"github.com/opd-ai/entitysync/pkg/config"
	"github.com/opd-ai/entitysync/pkg/pool"
)

// HeaderByte is the first byte of every packet the core exchanges with
// its transport, used by a host multiplexing several protocols over one
// socket to route bytes to this core before the kind byte is read
// (spec §6).
const HeaderByte = 0xE5

// Client ties together the Snapshot Store, Interpolation Pipeline,
// Prediction & Rollback Engine, State Reader, and Input Assembly into
// the single-threaded, tick-driven core described by spec §2. Receive
// and Update are the only two entry points a host calls; both must be
// serialized onto the same goroutine (spec §5).
type Client struct {
	cfg        config.Config
	classes    *Registry
	entities   *EntityTable
	store      *Store
	pipeline   *Pipeline
	rollback   *RollbackEngine
	reader     *StateReader
	assembler  *Assembler
	transport  Transport
	headerByte byte

	tick       Tick
	prevTick   Tick
	tickAccum  float64
	tickPeriod float64

	playerID        uint8
	remoteCallsTick Tick

	inputs      *InputQueue
	updateLimit *rate.Limiter
	tracer      Tracer
	log         *logrus.Entry

	// sessionID correlates this client's log lines across reconnects
	// (a fresh baseline does not get a fresh id; a new Client does).
	sessionID uuid.UUID
}

// NewClient builds a client wired entirely from cfg, ready to receive
// packets through transport once a baseline arrives. classes must be
// fully populated (via Registry.Register) before any packet is
// received.
func NewClient(cfg config.Config, classes *Registry, transport Transport, log *logrus.Entry) *Client {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	sessionID := uuid.New()
	log = log.WithFields(logrus.Fields{"component": "client", "session_id": sessionID})

	entities := NewEntityTable(cfg.MaxSyncedEntityCount)
	// Shared between the input queue and the assembler so a buffer
	// Generate hands out and the queue later drops/acks recycles back
	// into the same free list FlushPackets draws from (spec §3
	// Lifecycle "input writers: same free-pool pattern", §5 "steady-
	// state updates perform zero allocation").
	inputBufPool := pool.NewByteBufferPool(64)
	inputs := NewInputQueue(cfg.InputBufferSize, inputBufPool, log)
	rollback := NewRollbackEngine(entities, inputs, log)
	reader := NewStateReader(entities, classes, rollback, log)
	store := NewStore(cfg.MaxSavedStateDiff, cfg.MaxSavedStateDiff, cfg.JitterSampleCount, reader, log)
	pipeline := NewPipeline(cfg.InterpolateBufferSize, cfg.TickRate, store, rollback, inputs, log)
	assembler := NewAssembler(cfg.MaxUnreliableDataSize, inputBufPool, log)

	return &Client{
		cfg:        cfg,
		classes:    classes,
		entities:   entities,
		store:      store,
		pipeline:   pipeline,
		rollback:   rollback,
		reader:     reader,
		assembler:  assembler,
		transport:  transport,
		headerByte: HeaderByte,
		tickPeriod: 1.0 / float64(cfg.TickRate),
		inputs:     inputs,
		// One trigger_update() per logic tick is expected; the limiter
		// exists only to cap a runaway caller, mirroring the teacher's
		// MaxShotsPerSecond anticheat rail rather than gating normal
		// traffic.
		updateLimit: rate.NewLimiter(rate.Limit(cfg.TickRate), cfg.TickRate),
		log:         log,
		sessionID:   sessionID,
	}
}

// SessionID returns the opaque correlation id minted for this client
// instance, attached to every log line it emits so a host can group log
// output across reconnects that reuse the same process-local Client.
func (c *Client) SessionID() uuid.UUID { return c.sessionID }

// Entities exposes the live entity table, e.g. for rendering or test
// assertions.
func (c *Client) Entities() *EntityTable { return c.entities }

// Pipeline exposes the interpolation pipeline for diagnostics/tests.
func (c *Client) Pipeline() *Pipeline { return c.pipeline }

// Rollback exposes the rollback engine for diagnostics/tests.
func (c *Client) Rollback() *RollbackEngine { return c.rollback }

// Store exposes the snapshot store for diagnostics/tests.
func (c *Client) Store() *Store { return c.store }

// Inputs exposes the unacknowledged input queue for diagnostics/tests.
func (c *Client) Inputs() *InputQueue { return c.inputs }

// Tick returns the current local tick counter.
func (c *Client) Tick() Tick { return c.tick }

// PlayerID returns the internal player id assigned by the most recent
// baseline.
func (c *Client) PlayerID() uint8 { return c.playerID }

// SetTracer attaches a packet tracer, or detaches it when t is nil.
// Tracing is pure diagnostics; the client behaves identically with or
// without one attached.
func (c *Client) SetTracer(t Tracer) { c.tracer = t }

// AddController registers a human controller with both the input
// assembler (generation) and the rollback engine (replay), so the same
// set of controllers drives both paths (spec §4.3 step 2, §4.5 step 2).
func (c *Client) AddController(ctrl Controller) {
	c.assembler.AddController(ctrl)
	c.rollback.AddController(ctrl)
}

// SpawnPredicted creates a new locally controlled entity ahead of
// server acknowledgement and enqueues it on the pending-predicted-spawn
// queue, so it is destroyed automatically once state_a's processed_tick
// reaches the current tick (spec §3 "pending-predicted-spawn queue",
// §4.3 "predicted-spawn cleanup"). Cleanup destroys whichever entity
// holds id at that point; it does not check whether the server has sent
// its own record for that id in the meantime.
func (c *Client) SpawnPredicted(id EntityID, version uint8, class *ClassMetadata) *Entity {
	e := c.entities.Create(id, version, class)
	e.IsLocalControlled = true
	c.rollback.QueueSpawn(c.tick, id)
	return e
}

// Receive parses one inbound datagram and dispatches it by packet kind
// (spec §6). Mismatched header bytes are silently ignored, on the
// assumption a host multiplexes several protocols over one socket and
// routes only matching packets here. An error is returned only for a
// packet too short for its header or of an unknown kind, and is not
// logged here; failures inside the snapshot store are logged by the
// store and Receive returns nil for them.
func (c *Client) Receive(data []byte, now time.Time) error {
	if len(data) < 2 {
		return fmt.Errorf("netsync: packet too short")
	}
	if data[0] != c.headerByte {
		return nil
	}
	if c.tracer != nil {
		c.tracer.TraceInbound(data)
	}

	kind := PacketKind(data[1])
	rest := data[2:]

	switch kind {
	case PacketBaselineSync:
		return c.receiveBaseline(rest)
	case PacketDiffSync, PacketDiffSyncLast:
		return c.receiveDiffFragment(kind, rest, now)
	default:
		return fmt.Errorf("netsync: unknown packet kind %d", kind)
	}
}

func (c *Client) receiveBaseline(rest []byte) error {
	r := NewReader(rest)
	decompressedSize := r.ReadU32()
	playerID := r.ReadU8()
	if r.Poisoned() {
		return fmt.Errorf("netsync: baseline packet too short for header")
	}
	compressed := rest[r.Pos():]

	snap, pid, err := c.store.ReceiveBaseline(playerID, decompressedSize, compressed)
	if err != nil {
		// Already logged by the store; the prior state (if any) is
		// left untouched per spec §4.1/§7.
		return nil
	}

	c.pipeline.InstallBaseline(snap)
	c.inputs.Clear()
	c.playerID = pid
	c.tick = snap.Tick
	c.prevTick = snap.Tick
	c.tickAccum = 0
	c.remoteCallsTick = snap.Tick
	return nil
}

func (c *Client) receiveDiffFragment(kind PacketKind, rest []byte, now time.Time) error {
	r := NewReader(rest)
	tick := Tick(r.ReadU16())
	if r.Poisoned() {
		return fmt.Errorf("netsync: diff fragment too short for tick header")
	}
	fragment := rest[r.Pos():]

	stateA := c.pipeline.StateA()
	if stateA == nil {
		return nil // no baseline installed yet; nothing to diff against
	}

	snap, err := c.store.ReceiveDiffFragment(kind, tick, fragment, now, stateA.Tick)
	if err != nil {
		return nil
	}
	if snap != nil {
		c.pipeline.Insert(snap)
	}
	return nil
}

// Update runs the per-frame routine (spec §4.6): zero or more fixed
// logic ticks, the snapshot advance check, then remote and local
// interpolation, then each live entity's visual update. dt is the
// elapsed real time in seconds since the previous call.
func (c *Client) Update(dt float64) {
	c.tickAccum += dt
	for c.tickAccum >= c.tickPeriod {
		c.tickAccum -= c.tickPeriod
		c.logicTick()
	}

	c.pipeline.Tick(dt)
	c.applyInterpolation()

	c.entities.Each(func(e *Entity) {
		if e.Visual != nil {
			e.Visual.VisualUpdate(e)
		}
	})

	if c.tick != c.prevTick {
		c.flushInputs()
		c.prevTick = c.tick
	}
}

// logicTick is one fixed simulation step (spec §4.5, §4.7): assemble
// and apply this tick's input, run every updateable predicted entity,
// recapture interpolation scratch for predicted entities, and dispatch
// any RPCs that have come due.
func (c *Client) logicTick() {
	c.tick++

	c.rollback.AdvancePrevInterpolation()

	in := c.assembler.Generate(c.tick, c.pipeline.StateA(), c.pipeline.StateB(), c.pipeline.LerpTimer(), c.pipeline.LerpDuration())
	c.inputs.Enqueue(in)

	c.entities.Each(func(e *Entity) {
		if !e.IsLocalControlled || e.IsLocal {
			return
		}
		if e.Updater != nil && e.Class.IsUpdateable {
			e.Updater.Update(e)
		}
	})

	c.rollback.CaptureInterpolation()
	c.dispatchRPCs()
}

// dispatchRPCs implements spec §4.7: compute the rendered server tick
// from the current lerp progress, dispatch every cached RPC whose tick
// falls in (remote_calls_tick, server_tick], in non-decreasing tick
// order, then advance remote_calls_tick to the last one dispatched.
// This guarantees each RPC fires at most once even across several
// snapshot transitions (spec §8 invariant).
func (c *Client) dispatchRPCs() {
	stateA := c.pipeline.StateA()
	stateB := c.pipeline.StateB()
	if stateA == nil || stateB == nil || len(stateB.RemoteCalls) == 0 {
		return
	}

	logicLerpMsec := 0.0
	if ld := c.pipeline.LerpDuration(); ld > 0 {
		logicLerpMsec = c.pipeline.LerpTimer() / ld
	}
	diff := float64(SeqDiff(stateB.Tick, stateA.Tick))
	serverTick := stateA.Tick.Add(int(math.Round(diff * logicLerpMsec)))

	due := make([]RPCRecord, 0, len(stateB.RemoteCalls))
	for _, rpc := range stateB.RemoteCalls {
		if SeqDiff(rpc.Tick, c.remoteCallsTick) > 0 && SeqDiff(rpc.Tick, serverTick) <= 0 {
			due = append(due, rpc)
		}
	}
	if len(due) == 0 {
		return
	}
	sort.Slice(due, func(i, j int) bool { return SeqDiff(due[i].Tick, due[j].Tick) < 0 })

	for _, rpc := range due {
		c.dispatchRPC(rpc)
		if SeqDiff(rpc.Tick, c.remoteCallsTick) > 0 {
			c.remoteCallsTick = rpc.Tick
		}
	}
}

func (c *Client) dispatchRPC(rpc RPCRecord) {
	e, ok := c.entities.Get(rpc.EntityID)
	if !ok {
		return
	}
	if rpc.FieldID == EntityLevelRPC {
		if h, ok := e.Class.RPCHandlers[rpc.Delegate]; ok {
			h(e, rpc.Payload)
		}
		return
	}
	if int(rpc.FieldID) >= len(e.Class.SyncableFields) {
		return
	}
	sf := &e.Class.SyncableFields[rpc.FieldID]
	if sf.Reader != nil {
		sf.Reader.DispatchRPC(e.Fields[sf.Offset:], rpc.Payload)
	}
}

// applyInterpolation implements spec §4.6's two blending passes,
// writing only into each entity's Render buffer: Fields itself always
// holds the raw last-applied value so future diffs and rollback seeds
// stay exact.
func (c *Client) applyInterpolation() {
	c.applyRemoteInterpolation()
	c.applyLocalInterpolation()
}

func (c *Client) applyRemoteInterpolation() {
	stateB := c.pipeline.StateB()
	if stateB == nil {
		return
	}
	fTimer := 0.0
	if ld := c.pipeline.LerpDuration(); ld > 0 {
		fTimer = c.pipeline.LerpTimer() / ld
	}

	for _, idx := range stateB.InterpolatedFields {
		entry := stateB.Preload[idx]
		e, ok := c.entities.Get(entry.EntityID)
		if !ok {
			continue
		}
		class, values := c.reader.PeekFields(entry, stateB.Records)
		if class == nil {
			continue
		}
		for i := range class.Fields {
			f := &class.Fields[i]
			if !f.Interpolated() {
				continue
			}
			next := values[i]
			if next == nil {
				// Diff record did not touch this field; hold at the
				// entity's current live value.
				next = e.Fields[f.StructOffset : f.StructOffset+f.Size]
			}
			initial := e.InterpolatedInitial[f.WireOffset : f.WireOffset+f.Size]
			dst := e.Render[f.StructOffset : f.StructOffset+f.Size]
			f.Interpolator(initial, next, dst, fTimer)
		}
	}
}

func (c *Client) applyLocalInterpolation() {
	lerpFactor := 0.0
	if c.tickPeriod > 0 {
		lerpFactor = c.tickAccum / c.tickPeriod
	}

	c.entities.Each(func(e *Entity) {
		if !e.IsLocal && !e.IsLocalControlled {
			return
		}
		for i := range e.Class.Fields {
			f := &e.Class.Fields[i]
			if !f.Interpolated() {
				continue
			}
			prev := e.InterpolatedPrev[f.WireOffset : f.WireOffset+f.Size]
			cur := e.InterpolatedInitial[f.WireOffset : f.WireOffset+f.Size]
			dst := e.Render[f.StructOffset : f.StructOffset+f.Size]
			f.Interpolator(prev, cur, dst, lerpFactor)
		}
	})
}

func (c *Client) flushInputs() {
	if c.transport == nil {
		return
	}
	var lastReceived Tick
	if sa := c.pipeline.StateA(); sa != nil {
		lastReceived = sa.LastReceivedTick
	}
	mtu := c.transport.MaxSinglePacketSize(true)
	packets := c.assembler.FlushPackets(c.inputs, lastReceived, mtu, c.cfg.MaxSavedStateDiff, c.headerByte)
	for _, p := range packets {
		if err := c.transport.Send(p, true); err != nil {
			c.log.WithError(err).Warn("failed to send input packet")
		}
		if c.tracer != nil {
			c.tracer.TraceOutbound(p)
		}
		c.assembler.ReleasePacket(p)
	}
	if len(packets) > 0 && c.updateLimit.Allow() {
		c.transport.TriggerUpdate()
	}
}
