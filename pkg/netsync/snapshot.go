package netsync

import (
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/entitysync/pkg/pool"
)

// RPCRecord is one parsed remote-call entry embedded in a snapshot
// (spec §3, §4.7). FieldID == EntityLevelRPC routes to the entity
// itself; otherwise it indexes the entity class's SyncableFields.
type RPCRecord struct {
	Tick     Tick
	EntityID EntityID
	FieldID  uint8
	Delegate uint8
	Payload  []byte
}

// Snapshot is one logical server tick's reconciled state (spec §3,
// ServerStateData). It is owned by whichever subsystem currently holds
// it (reassembly map, lerp buffer, state_a/state_b, or the free pool);
// ownership never overlaps.
type Snapshot struct {
	Tick             Tick
	IsBaseline       bool
	ProcessedTick    Tick
	LastReceivedTick Tick

	// Data is the full decoded payload (a baseline's starts with its tick
	// field, a diff's with processed_tick, since a diff's tick travels in
	// each fragment header); Records is the sub-slice Scan/Apply operate
	// on.
	Data    []byte
	Records []byte

	Preload            []PreloadEntry
	RemoteCalls        []RPCRecord
	InterpolatedFields []int // indices into Preload
}

func (s *Snapshot) reset() {
	s.Tick = 0
	s.IsBaseline = false
	s.ProcessedTick = 0
	s.LastReceivedTick = 0
	s.Data = s.Data[:0]
	s.Records = nil
	s.Preload = s.Preload[:0]
	s.RemoteCalls = s.RemoteCalls[:0]
	s.InterpolatedFields = s.InterpolatedFields[:0]
}

type reassemblyRecord struct {
	tick Tick
	buf  []byte
}

// Store is the Snapshot Store: bounded reassembly of fragmented diffs,
// LZ4 baseline decode, and a recycled snapshot pool (spec §4.1).
type Store struct {
	pool          []*Snapshot
	maxPool       int
	reassembly    map[Tick]*reassemblyRecord
	maxReassembly int
	jitter        *JitterSampler

	stateReader *StateReader
	log         *logrus.Entry
}

// NewStore creates a snapshot store bounded by maxPool/maxReassembly
// (both normally config.MaxSavedStateDiff) and jitterSamples entries of
// jitter history (config.JitterSampleCount).
func NewStore(maxPool, maxReassembly, jitterSamples int, sr *StateReader, log *logrus.Entry) *Store {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &Store{
		maxPool:       maxPool,
		reassembly:    make(map[Tick]*reassemblyRecord),
		maxReassembly: maxReassembly,
		jitter:        NewJitterSampler(jitterSamples),
		stateReader:   sr,
		log:           log.WithField("component", "snapshotstore"),
	}
}

// Jitter exposes the shared jitter sampler for the interpolation
// pipeline's adaptive_midpoint computation (spec §4.2).
func (s *Store) Jitter() *JitterSampler {
	return s.jitter
}

// Acquire removes a snapshot from the free pool, or allocates a fresh
// one if empty (spec §4.1 "pool discipline").
func (s *Store) Acquire() *Snapshot {
	if n := len(s.pool); n > 0 {
		snap := s.pool[n-1]
		s.pool = s.pool[:n-1]
		snap.reset()
		return snap
	}
	return &Snapshot{}
}

// Release returns a snapshot to the free pool, bounded by maxPool;
// snapshots beyond the bound are simply dropped for garbage collection.
func (s *Store) Release(snap *Snapshot) {
	if snap == nil {
		return
	}
	if len(s.pool) >= s.maxPool {
		return
	}
	snap.reset()
	s.pool = append(s.pool, snap)
}

// ReceiveBaseline decodes and parses a baseline packet into a ready
// snapshot, immediately scanning its payload (spec §4.1 "baseline
// path"). A decode length mismatch is a fatal parse error: the packet is
// dropped, the partially-filled snapshot is recycled, and the prior
// state is left untouched.
func (s *Store) ReceiveBaseline(playerID uint8, decompressedSize uint32, compressed []byte) (*Snapshot, uint8, error) {
	snap := s.Acquire()

	data, err := decompressBaseline(snap.Data, compressed, decompressedSize)
	if err != nil {
		s.log.WithError(err).Error("baseline decode failed")
		s.Release(snap)
		return nil, 0, err
	}
	snap.Data = data

	// Decompressed baseline payload is exactly "u16 tick | <entity
	// records>*" (spec §6) — unlike a reassembled diff body, it carries
	// no processed_tick/last_received_tick header. A fresh baseline
	// clears the input queue outright (Client.receiveBaseline), so
	// there is nothing pending to ack against; ProcessedTick is set to
	// the baseline's own tick (nothing before it remains outstanding)
	// and LastReceivedTick to 0 (unknown until the next diff reports
	// it).
	r := NewReader(data)
	tick := Tick(r.ReadU16())
	if r.Poisoned() {
		s.Release(snap)
		return nil, 0, fmt.Errorf("netsync: baseline payload too short for header fields")
	}

	snap.Tick = tick
	snap.ProcessedTick = tick
	snap.LastReceivedTick = 0
	snap.IsBaseline = true
	snap.Records = data[r.Pos():]

	entries, rpcs, ok := s.stateReader.Scan(snap.Records)
	snap.Preload = entries
	snap.RemoteCalls = rpcs
	if !ok {
		s.log.Warn("baseline payload parse was poisoned; partial entity set applied")
	}
	for i, pe := range entries {
		if pe.Interpolated {
			snap.InterpolatedFields = append(snap.InterpolatedFields, i)
		}
	}

	// The baseline installs directly as the new state_a, so its
	// full-sync records apply immediately rather than waiting for a
	// later preload_next/go_to_next cycle (spec §4.1 "baseline path").
	for _, entry := range entries {
		s.stateReader.Apply(entry, snap.Records)
	}
	s.stateReader.FlushOnSync()

	s.reassembly = make(map[Tick]*reassemblyRecord)
	s.jitter = NewJitterSampler(len(s.jitter.samples))

	return snap, playerID, nil
}

// ReceiveDiffFragment accepts one fragment of a diff set, sampling
// jitter and reassembling by tick (spec §4.1 "diff path"). A completed
// diff snapshot's payload is NOT scanned here; Pipeline.PreloadNext
// scans it once it is popped as the next state_b, matching the source's
// "preload-next" naming (spec §4.2). It returns a
// completed snapshot only once the terminating DiffSyncLast fragment
// arrives; otherwise it returns (nil, nil).
func (s *Store) ReceiveDiffFragment(kind PacketKind, tick Tick, fragment []byte, now time.Time, stateATick Tick) (*Snapshot, error) {
	if SeqDiff(tick, stateATick) <= 0 {
		return nil, nil // stale, silent drop
	}

	s.jitter.Sample(now)

	rec, exists := s.reassembly[tick]
	if !exists {
		if len(s.reassembly) >= s.maxReassembly {
			oldestTick, found := s.oldestReassemblyTick()
			if !found || SeqDiff(tick, oldestTick) <= 0 {
				return nil, nil // reassembly full and new tick isn't newer: drop
			}
			delete(s.reassembly, oldestTick)
			s.log.WithFields(logrus.Fields{"evicted_tick": oldestTick, "new_tick": tick}).Warn("evicting oldest reassembly record")
		}
		rec = &reassemblyRecord{tick: tick}
		s.reassembly[tick] = rec
	}

	rec.buf = append(rec.buf, fragment...)

	if kind != PacketDiffSyncLast {
		return nil, nil
	}
	delete(s.reassembly, tick)

	snap := s.Acquire()
	snap.Data = pool.GrowSlice(snap.Data, len(rec.buf))
	copy(snap.Data, rec.buf)
	snap.Data = snap.Data[:len(rec.buf)]
	snap.Tick = tick
	snap.IsBaseline = false

	r := NewReader(snap.Data)
	snap.ProcessedTick = Tick(r.ReadU16())
	snap.LastReceivedTick = Tick(r.ReadU16())
	if r.Poisoned() {
		s.log.WithField("tick", tick).Error("reassembled diff payload too short for header fields")
		s.Release(snap)
		return nil, fmt.Errorf("netsync: diff payload too short for header fields")
	}
	snap.Records = snap.Data[r.Pos():]

	return snap, nil
}

func (s *Store) oldestReassemblyTick() (Tick, bool) {
	var oldest Tick
	found := false
	for tick := range s.reassembly {
		if !found || SeqDiff(tick, oldest) < 0 {
			oldest = tick
			found = true
		}
	}
	return oldest, found
}

// Scan parses snap.Records into its preload index and RPC records,
// populating snap in place. Used by Pipeline.PreloadNext once a diff
// snapshot is popped as the next state_b (spec §4.2).
func (s *Store) Scan(snap *Snapshot) {
	entries, rpcs, ok := s.stateReader.Scan(snap.Records)
	snap.Preload = entries
	snap.RemoteCalls = rpcs
	if !ok {
		s.log.WithField("tick", snap.Tick).Warn("snapshot payload parse was poisoned; partial entity set applied")
	}
	for i, pe := range entries {
		if pe.Interpolated {
			snap.InterpolatedFields = append(snap.InterpolatedFields, i)
		}
	}
}

// Apply applies one preload entry's fields to live entity state,
// delegating to the bound state reader.
func (s *Store) Apply(entry PreloadEntry, records []byte) {
	s.stateReader.Apply(entry, records)
}

// FlushOnSync fires queued on-sync callbacks, delegating to the bound
// state reader.
func (s *Store) FlushOnSync() {
	s.stateReader.FlushOnSync()
}

// ReassemblyLen reports the number of in-flight (incomplete) diff
// reassembly records, bounded by maxReassembly.
func (s *Store) ReassemblyLen() int {
	return len(s.reassembly)
}
