package netsync

// FieldKind tags how a field dispatches during read and interpolation,
// replacing the source's type-metadata-driven dispatch (spec §9).
type FieldKind uint8

const (
	// FieldValue is a plain fixed-size scalar or struct field.
	FieldValue FieldKind = iota
	// FieldEntityRef is an EntityRefSize-byte id+version pair, resolved
	// through an EntityTable via Entity.ResolveField rather than held as
	// an owning pointer (spec §9 "cyclic data"). It copies onto the wire
	// and into scratch exactly like FieldValue; only its accessor
	// differs.
	FieldEntityRef
	// FieldSyncableVar indirects one more level through a SyncableField's
	// own nested offset.
	FieldSyncableVar
)

// FieldFlags are bitwise flags on a FieldDescriptor.
type FieldFlags uint8

// OnlyForRemote marks a field that rollback's reset-to-authoritative step
// must skip (spec §4.3 step 1).
const OnlyForRemote FieldFlags = 1 << 0

// Interpolator blends src values at two points in time into dst, with t
// in [0, 1]. initial and next are pointers into scratch/snapshot buffers
// already offset to the field; dst is likewise pre-offset.
type Interpolator func(initial, next, dst []byte, t float64)

// OnSyncFunc is invoked once per changed diff field, after the full
// record has been parsed, with the pre-change bytes (spec §4.4).
type OnSyncFunc func(e *Entity, field *FieldDescriptor, prevBytes []byte)

// FieldDescriptor describes one field of a class: where it lives in the
// live entity buffer, where it lives in the flat wire layout, and how it
// dispatches. This is the "(offset_in_struct, fixed_offset_on_wire,
// size)" descriptor from spec §9.
type FieldDescriptor struct {
	Name         string
	StructOffset int // offset into Entity.Fields
	WireOffset   int // offset into the flat interpolated-fields layout
	Size         int
	Kind         FieldKind
	Interpolator Interpolator // nil if this field is not interpolated
	OnSync       OnSyncFunc   // nil if no change callback
	Flags        FieldFlags

	// SyncableIndex and NestedOffset apply only when Kind ==
	// FieldSyncableVar: the field is physically stored inside the
	// owning entity's SyncableFields[SyncableIndex] blob at
	// NestedOffset rather than directly at StructOffset (spec §4.3
	// step 1, "indirect one more level through a SyncableField").
	SyncableIndex int
	NestedOffset  int
}

// Interpolated reports whether this field participates in the
// interpolation scratch buffers.
func (f *FieldDescriptor) Interpolated() bool {
	return f.Interpolator != nil
}

// SyncableReader parses and dispatches RPCs for a syncable aggregate
// field's own nested wire format. Syncable blobs are length-prefixed on
// the wire (spec §9 generalizes the source's type-driven skip into a
// uniform, type-agnostic framing), so the reader is handed its exact
// byte span rather than an open-ended cursor.
type SyncableReader interface {
	// ReadFullSync parses blob (the syncable's full-sync bytes) into
	// dst (the entity's Fields buffer, already sliced to the
	// syncable's nested offset).
	ReadFullSync(blob []byte, dst []byte)
	// DispatchRPC applies an RPC payload targeting this syncable.
	DispatchRPC(dst []byte, payload []byte)
}

// SyncableFieldDescriptor locates one syncable aggregate field within a
// class, addressed by index when an RPC record's field_id selects it.
type SyncableFieldDescriptor struct {
	Name   string
	Offset int // offset into Entity.Fields where the nested blob begins
	Reader SyncableReader
}

// RPCHandler applies an entity-level (field_id == 0xFF) RPC payload.
type RPCHandler func(e *Entity, payload []byte)

// ClassMetadata is the immutable reflective description of one entity
// class, equivalent to the source's compile-time-generated class_data
// table (spec §6, §9). Implementations populate it via Registry.Register
// at startup; it is never mutated afterward.
type ClassMetadata struct {
	ClassID uint16
	Name    string

	Fields         []FieldDescriptor
	SyncableFields []SyncableFieldDescriptor

	// InterpolatedFieldsSize is the total byte length of the
	// interpolation scratch buffers (interpolated_initial / _prev).
	InterpolatedFieldsSize int
	// FixedFieldsSize is the total byte length of the live Fields
	// buffer and of a predicted-entity image.
	FixedFieldsSize int
	// FieldsFlagsSize is ceil(len(Fields)/8), the diff-record bitfield
	// width for this class.
	FieldsFlagsSize int

	IsUpdateable   bool
	UpdateOnClient bool

	RPCHandlers map[uint8]RPCHandler
}

// EntityLevelRPC is the field_id value that routes an RPC record to the
// entity itself rather than to a syncable field (spec §3, §4.7).
const EntityLevelRPC = 0xFF

// Registry is a read-only-after-build table of class metadata, resolved
// by class id. The engine never owns or mutates registered metadata.
type Registry struct {
	classes map[uint16]*ClassMetadata
}

// NewRegistry creates an empty class registry.
func NewRegistry() *Registry {
	return &Registry{classes: make(map[uint16]*ClassMetadata)}
}

// Register adds a class's metadata, computing FieldsFlagsSize if unset.
func (r *Registry) Register(m *ClassMetadata) {
	if m.FieldsFlagsSize == 0 && len(m.Fields) > 0 {
		m.FieldsFlagsSize = (len(m.Fields) + 7) / 8
	}
	r.classes[m.ClassID] = m
}

// Lookup resolves a class id to its metadata.
func (r *Registry) Lookup(classID uint16) (*ClassMetadata, bool) {
	m, ok := r.classes[classID]
	return m, ok
}
