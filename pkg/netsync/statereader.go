package netsync

import (
	"bytes"

	"github.com/sirupsen/logrus"
)

// PredictedStore is the slice of the prediction engine the state reader
// writes through: every field write to a locally controlled entity also
// lands in that entity's authoritative predicted image (spec §4.4,
// "this is the 'new authoritative' image used by the next rollback").
type PredictedStore interface {
	// Predicted returns the authoritative byte image for id, allocating
	// one of size bytes on first use.
	Predicted(id EntityID, size int) []byte
}

// PreloadEntry is the per-entity index computed by Scan: offsets
// into a snapshot's payload, resolved once so the later apply pass does
// not need to re-walk class metadata to find field boundaries (spec §3
// preload[], §4.2 "preload-next").
type PreloadEntry struct {
	EntityID EntityID
	// DataOffset is the offset of the record body: right after the
	// full-sync marker for a full-sync record, or the first field byte
	// after the bitfield for a diff record.
	DataOffset int
	// EntityFieldsOffset is -1 for a full-sync record, or the bitfield
	// offset for a diff record (spec §3).
	EntityFieldsOffset int
	// Interpolated reports whether this entry touched any interpolated
	// field, the membership test behind preload[]'s interpolated_fields
	// index (spec §3, §4.6).
	Interpolated bool
}

// IsFullSync reports whether this preload entry is a full-sync record.
func (p *PreloadEntry) IsFullSync() bool {
	return p.EntityFieldsOffset == -1
}

type pendingOnSync struct {
	entity    *Entity
	field     *FieldDescriptor
	prevBytes []byte
}

// StateReader parses entity records out of snapshot payloads against
// class metadata (spec §4.4).
type StateReader struct {
	entities  *EntityTable
	classes   *Registry
	predicted PredictedStore
	pending   []pendingOnSync
	log       *logrus.Entry
}

// NewStateReader builds a reader bound to the given entity table, class
// registry, and predicted-image store.
func NewStateReader(entities *EntityTable, classes *Registry, predicted PredictedStore, log *logrus.Entry) *StateReader {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &StateReader{
		entities:  entities,
		classes:   classes,
		predicted: predicted,
		log:       log.WithField("component", "statereader"),
	}
}

// Scan parses a payload (positioned after the leading tick field) into a
// per-entity preload index plus any embedded RPC records, without
// mutating any entity. ok is false if a fatal parse error poisoned the
// scan (spec §4.4 "entity_id out of range poisons the read").
//
// Wire shape: u16 entity_count | entity_count records | u16 rpc_count |
// rpc_count RPC records. Each record is entity_id (u16) | is_full_sync
// (u8) | body. The explicit counts and is_full_sync marker resolve
// underspecified details of the source format (see DESIGN.md Open
// Questions) so the decoder never needs to scan to EOF or guess a
// record's shape from entity state alone.
func (sr *StateReader) Scan(payload []byte) ([]PreloadEntry, []RPCRecord, bool) {
	r := NewReader(payload)
	var entries []PreloadEntry

	entityCount := int(r.ReadU16())
	for i := 0; i < entityCount && !r.Poisoned(); i++ {
		entityID := EntityID(r.ReadU16())
		if r.Poisoned() {
			break
		}
		if !sr.entities.InRange(entityID) {
			sr.log.WithField("entity_id", entityID).Error("entity id out of range")
			r.Poison()
			break
		}

		isFull := r.ReadU8() != 0
		if r.Poisoned() {
			break
		}

		if isFull {
			entry, ok := sr.scanFullSync(r, entityID)
			if !ok {
				break
			}
			entries = append(entries, entry)
			continue
		}

		entry, ok := sr.scanDiff(r, entityID)
		if !ok {
			break
		}
		entries = append(entries, entry)
	}

	if r.Poisoned() {
		return entries, nil, false
	}

	rpcs := sr.scanRPCs(r)
	return entries, rpcs, !r.Poisoned()
}

func (sr *StateReader) scanRPCs(r *Reader) []RPCRecord {
	count := int(r.ReadU16())
	if r.Poisoned() {
		return nil
	}
	rpcs := make([]RPCRecord, 0, count)
	for i := 0; i < count; i++ {
		rec := RPCRecord{
			Tick:     Tick(r.ReadU16()),
			EntityID: EntityID(r.ReadU16()),
			FieldID:  r.ReadU8(),
			Delegate: r.ReadU8(),
		}
		length := int(r.ReadU16())
		rec.Payload = r.ReadBytes(length)
		if r.Poisoned() {
			return rpcs
		}
		rpcs = append(rpcs, rec)
	}
	return rpcs
}

func (sr *StateReader) scanFullSync(r *Reader, entityID EntityID) (PreloadEntry, bool) {
	dataOffset := r.Pos()
	_ = r.ReadU8() // version
	classID := r.ReadU16()
	class, ok := sr.classes.Lookup(classID)
	if !ok || r.Poisoned() {
		sr.log.WithField("class_id", classID).Error("unknown class id in full-sync record")
		r.Poison()
		return PreloadEntry{}, false
	}

	entry := PreloadEntry{EntityID: entityID, DataOffset: dataOffset, EntityFieldsOffset: -1}
	for i := range class.Fields {
		f := &class.Fields[i]
		r.ReadBytes(f.Size)
		if f.Interpolated() {
			entry.Interpolated = true
		}
	}
	for range class.SyncableFields {
		blobLen := int(r.ReadU16())
		r.ReadBytes(blobLen)
	}
	if r.Poisoned() {
		return PreloadEntry{}, false
	}
	return entry, true
}

func (sr *StateReader) scanDiff(r *Reader, entityID EntityID) (PreloadEntry, bool) {
	e, ok := sr.entities.Get(entityID)
	if !ok {
		sr.log.WithField("entity_id", entityID).Error("diff record for unknown entity")
		r.Poison()
		return PreloadEntry{}, false
	}
	class := e.Class
	bitOffset := r.Pos()
	present := r.ReadBitfield(len(class.Fields))
	entry := PreloadEntry{EntityID: entityID, DataOffset: r.Pos(), EntityFieldsOffset: bitOffset}
	for i := range class.Fields {
		if !present(i) {
			continue
		}
		f := &class.Fields[i]
		r.ReadBytes(f.Size)
		if f.Interpolated() {
			entry.Interpolated = true
		}
	}
	if r.Poisoned() {
		return PreloadEntry{}, false
	}
	return entry, true
}

// Apply mutates live entity state for one preload entry, dispatching to
// a full-sync or diff application (spec §4.2 "go_to_next" step 2).
// On-sync callbacks triggered during diff application are queued, not
// fired; call FlushOnSync once the whole snapshot has been applied.
func (sr *StateReader) Apply(entry PreloadEntry, payload []byte) {
	if entry.IsFullSync() {
		sr.applyFullSync(entry, payload)
		return
	}
	sr.applyDiff(entry, payload)
}

func (sr *StateReader) applyFullSync(entry PreloadEntry, payload []byte) {
	r := NewReader(payload)
	r.SetPos(entry.DataOffset)

	version := r.ReadU8()
	classID := r.ReadU16()
	class, ok := sr.classes.Lookup(classID)
	if !ok || r.Poisoned() {
		return
	}

	e, exists := sr.entities.Get(entry.EntityID)
	if exists && e.Version != version {
		sr.entities.Destroy(entry.EntityID)
		exists = false
	}
	if !exists {
		e = sr.entities.Create(entry.EntityID, version, class)
	}

	for i := range class.Fields {
		f := &class.Fields[i]
		raw := r.ReadBytes(f.Size)
		if raw == nil {
			return
		}
		sr.writeField(e, f, raw, true)
	}
	for i := range class.SyncableFields {
		sf := &class.SyncableFields[i]
		blobLen := int(r.ReadU16())
		blob := r.ReadBytes(blobLen)
		if blob == nil {
			return
		}
		if sf.Reader != nil {
			sf.Reader.ReadFullSync(blob, e.Fields[sf.Offset:])
		}
	}
}

func (sr *StateReader) applyDiff(entry PreloadEntry, payload []byte) {
	e, ok := sr.entities.Get(entry.EntityID)
	if !ok {
		return
	}
	class := e.Class

	r := NewReader(payload)
	r.SetPos(entry.EntityFieldsOffset)
	present := r.ReadBitfield(len(class.Fields))

	for i := range class.Fields {
		if !present(i) {
			continue
		}
		f := &class.Fields[i]
		raw := r.ReadBytes(f.Size)
		if raw == nil {
			return
		}
		sr.writeField(e, f, raw, false)
	}
}

// writeField copies raw into the entity's live field buffer, queuing an
// on-sync callback on a diff-triggered change, mirroring interpolated
// fields into scratch, and mirroring into the predicted image for
// locally controlled entities (spec §4.4).
func (sr *StateReader) writeField(e *Entity, f *FieldDescriptor, raw []byte, fullSync bool) {
	if f.OnSync != nil && !fullSync {
		old := append([]byte(nil), e.Fields[f.StructOffset:f.StructOffset+f.Size]...)
		if !bytes.Equal(old, raw) {
			sr.pending = append(sr.pending, pendingOnSync{entity: e, field: f, prevBytes: old})
		}
	}

	CopyField(e.Fields, f.StructOffset, raw, 0, f.Size)

	if f.Interpolated() && (e.IsServerControlled || fullSync) {
		CopyField(e.InterpolatedInitial, f.WireOffset, raw, 0, f.Size)
	}

	if e.IsLocalControlled && !e.IsLocal && sr.predicted != nil {
		predicted := sr.predicted.Predicted(e.ID, e.Class.FixedFieldsSize)
		CopyField(predicted, f.StructOffset, raw, 0, f.Size)
	}
}

// PeekFields resolves one preload entry's per-field raw wire bytes
// without mutating any entity, for remote interpolation's "next" value
// (spec §4.6). The returned slice is indexed in class field order; an
// absent diff field is nil.
func (sr *StateReader) PeekFields(entry PreloadEntry, payload []byte) (*ClassMetadata, [][]byte) {
	r := NewReader(payload)

	if entry.IsFullSync() {
		r.SetPos(entry.DataOffset)
		_ = r.ReadU8() // version
		classID := r.ReadU16()
		class, ok := sr.classes.Lookup(classID)
		if !ok || r.Poisoned() {
			return nil, nil
		}
		values := make([][]byte, len(class.Fields))
		for i := range class.Fields {
			values[i] = r.ReadBytes(class.Fields[i].Size)
		}
		return class, values
	}

	e, ok := sr.entities.Get(entry.EntityID)
	if !ok {
		return nil, nil
	}
	class := e.Class
	r.SetPos(entry.EntityFieldsOffset)
	present := r.ReadBitfield(len(class.Fields))
	values := make([][]byte, len(class.Fields))
	for i := range class.Fields {
		if !present(i) {
			continue
		}
		values[i] = r.ReadBytes(class.Fields[i].Size)
	}
	return class, values
}

// FlushOnSync fires every queued on-sync callback once, in queue order,
// then clears the queue (spec §4.2 "go_to_next" step 3).
func (sr *StateReader) FlushOnSync() {
	pending := sr.pending
	sr.pending = sr.pending[:0]
	for _, p := range pending {
		p.field.OnSync(p.entity, p.field, p.prevBytes)
	}
}
