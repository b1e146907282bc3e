package netsync

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/entitysync/pkg/pool"
)

// InputHeaderSize is the byte length of the fixed header prefixed to
// every generated input buffer: state_a_tick, state_b_tick, lerp_msec,
// all u16 (spec §3, §4.5).
const InputHeaderSize = 6

// Input is one tick's generated (or buffered-for-replay) input command.
type Input struct {
	Tick    Tick
	Payload []byte // header-prefixed, as generated (spec §3)
}

// InputQueue is the FIFO of unacknowledged inputs, holding exactly the
// inputs for a contiguous suffix of ticks ending at the current tick
// (spec §3 invariant). Overflow past maxLen clears the whole queue, a
// safety rail rather than an intended trimming policy (spec §7, §9).
type InputQueue struct {
	items   []Input
	maxLen  int
	bufPool *pool.ByteBufferPool
	log     *logrus.Entry
}

// NewInputQueue creates a queue bounded at maxLen entries (normally
// config.InputBufferSize, 128). bufPool is the same writer pool handed
// to NewAssembler; dropped or cleared inputs return their payload
// buffers to it for reuse (spec §5 "pooled resources... reused without
// synchronization"). bufPool may be nil, in which case buffers are
// simply released to the garbage collector.
func NewInputQueue(maxLen int, bufPool *pool.ByteBufferPool, log *logrus.Entry) *InputQueue {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &InputQueue{maxLen: maxLen, bufPool: bufPool, log: log.WithField("component", "inputqueue")}
}

// Enqueue appends a generated input, clearing the entire queue if the
// safety-rail bound is exceeded (spec §4.5 step 4).
func (q *InputQueue) Enqueue(in Input) {
	q.items = append(q.items, in)
	if len(q.items) > q.maxLen {
		q.log.WithField("len", len(q.items)).Warn("input queue overflow; clearing")
		q.Clear()
	}
}

// Clear empties the queue, returning every discarded payload buffer to
// the writer pool.
func (q *InputQueue) Clear() {
	q.releaseRange(0, len(q.items))
	q.items = q.items[:0]
}

// Ordered returns the queue contents oldest-first. The returned slice
// must not be retained past the next mutating call.
func (q *InputQueue) Ordered() []Input {
	return q.items
}

// Len reports the number of buffered inputs.
func (q *InputQueue) Len() int {
	return len(q.items)
}

// DropAcked discards every buffered input whose tick is at or before
// processedTick — the server has acknowledged them (spec §4.2
// "preload-next... drop input commands whose predicted tick is ≤
// state_b.processed_tick").
func (q *InputQueue) DropAcked(processedTick Tick) {
	i := 0
	for i < len(q.items) && SeqDiff(q.items[i].Tick, processedTick) <= 0 {
		i++
	}
	q.releaseRange(0, i)
	q.items = q.items[i:]
}

// releaseRange returns items[lo:hi]'s payload buffers to the writer
// pool; they are never read again once dropped from the queue.
func (q *InputQueue) releaseRange(lo, hi int) {
	if q.bufPool == nil {
		return
	}
	for i := lo; i < hi; i++ {
		q.bufPool.Put(q.items[i].Payload)
	}
}

// Assembler implements Input Assembly (spec §4.5): per-tick generation
// of a header-prefixed input buffer, and MTU-aware batching of buffered
// inputs into outbound ClientSync packets.
type Assembler struct {
	controllers      []Controller
	maxUnreliableLen int
	bufPool          *pool.ByteBufferPool
	log              *logrus.Entry
}

// NewAssembler builds an input assembler. maxUnreliableLen is normally
// config.MaxUnreliableDataSize. bufPool backs both the per-tick input
// buffer handed out by Generate (same free-pool pattern as snapshots,
// spec §3 Lifecycle) and the per-packet buffers built by FlushPackets;
// callers return a Generate buffer to the pool by passing it through
// InputQueue's bufPool (sharing the same pool with NewInputQueue is the
// intended wiring), and a FlushPackets buffer via ReleasePacket once
// sent. bufPool may be nil, in which case every buffer is a fresh
// allocation.
func NewAssembler(maxUnreliableLen int, bufPool *pool.ByteBufferPool, log *logrus.Entry) *Assembler {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Assembler{maxUnreliableLen: maxUnreliableLen, bufPool: bufPool, log: log.WithField("component", "inputassembly")}
}

// ReleasePacket returns a packet buffer produced by FlushPackets to the
// writer pool once the caller has finished sending it.
func (a *Assembler) ReleasePacket(buf []byte) {
	if a.bufPool == nil {
		return
	}
	a.bufPool.Put(buf)
}

func (a *Assembler) newWriter(capacity int) *Writer {
	if a.bufPool != nil {
		return NewWriter(a.bufPool.Get())
	}
	return NewWriter(make([]byte, 0, capacity))
}

// AddController registers a controller invoked during generation.
func (a *Assembler) AddController(c Controller) {
	a.controllers = append(a.controllers, c)
}

// Generate builds this tick's input buffer: header, then each
// controller's payload in turn, truncating and stopping early if the
// cumulative length would exceed MAX_UNRELIABLE_DATA_SIZE-2 (spec §4.5
// steps 1-2). It then applies the assembled payload locally via
// ReadInput so prediction replay later sees identical bytes (step 3).
func (a *Assembler) Generate(tick Tick, stateA, stateB *Snapshot, lerpTimer, lerpDuration float64) Input {
	w := a.newWriter(64)

	var stateATick, stateBTick Tick
	if stateA != nil {
		stateATick = stateA.Tick
		stateBTick = stateA.Tick
	}
	if stateB != nil {
		stateBTick = stateB.Tick
	}
	lerpMsec := uint16(0)
	if lerpDuration > 0 {
		lerpMsec = uint16((lerpTimer / lerpDuration) * 1000)
	}
	w.WriteU16(uint16(stateATick))
	w.WriteU16(uint16(stateBTick))
	w.WriteU16(lerpMsec)

	limit := a.maxUnreliableLen - 2
	for _, c := range a.controllers {
		before := w.Len()
		if err := c.GenerateInput(w); err != nil {
			w.Truncate(before)
			a.log.WithError(err).Warn("controller input generation failed")
			break
		}
		if w.Len() > limit {
			w.Truncate(before)
			a.log.WithField("tick", tick).Error("input payload would exceed datagram ceiling; stopping generation for this tick")
			break
		}
	}

	payload := w.Bytes()
	body := payload[InputHeaderSize:]
	for _, c := range a.controllers {
		c.ReadInput(body)
	}

	return Input{Tick: tick, Payload: payload}
}

// FlushPackets batches queued inputs into MTU-sized ClientSync packets
// (spec §4.5, §6). Inputs at or before lastReceivedTick are skipped (the
// server already has them); at most maxPack inputs are packed in total,
// matching the source's MAX_SAVED_STATE_DIFF ceiling on a single burst.
func (a *Assembler) FlushPackets(queue *InputQueue, lastReceivedTick Tick, mtu uint16, maxPack int, headerByte byte) [][]byte {
	const packetPrefixLen = 4 // header_byte + kind + u16 start_tick
	var packets [][]byte
	var cur *Writer
	packed := 0

	startPacket := func(startTick Tick) {
		cur = a.newWriter(int(mtu))
		cur.WriteU8(headerByte)
		cur.WriteU8(uint8(PacketClientSync))
		cur.WriteU16(uint16(startTick))
	}

	for _, in := range queue.Ordered() {
		if SeqDiff(in.Tick, lastReceivedTick) <= 0 {
			continue
		}
		if packed >= maxPack {
			break
		}
		if cur == nil {
			startPacket(in.Tick)
		}

		entryLen := 2 + len(in.Payload)
		if cur.Len()+entryLen > int(mtu) {
			packets = append(packets, cur.Bytes())
			startPacket(in.Tick)
		}

		cur.WriteU16(uint16(len(in.Payload)))
		cur.WriteBytes(in.Payload)
		packed++
	}

	if cur != nil && cur.Len() > packetPrefixLen {
		packets = append(packets, cur.Bytes())
	}
	return packets
}
