package netsync

import "encoding/binary"

// EntityID is the dense 16-bit identifier bounded by
// config.MaxSyncedEntityCount.
type EntityID uint16

// EntityRefSize is the on-wire and in-struct width of a FieldEntityRef
// field: a 16-bit EntityID followed by its 8-bit version (spec §9
// "cyclic data").
const EntityRefSize = 3

// WriteEntityRef encodes an entity-ref field's id+version pair into dst,
// which must be at least EntityRefSize bytes.
func WriteEntityRef(dst []byte, id EntityID, version uint8) {
	binary.LittleEndian.PutUint16(dst, uint16(id))
	dst[2] = version
}

// ReadEntityRef decodes an entity-ref field's id+version pair from src,
// which must be at least EntityRefSize bytes.
func ReadEntityRef(src []byte) (EntityID, uint8) {
	return EntityID(binary.LittleEndian.Uint16(src)), src[2]
}

// Entity is a synchronized or locally spawned simulation object. Its
// Fields buffer holds the live field image in class-declared layout;
// InterpolatedInitial/InterpolatedPrev are the per-entity interpolation
// scratch buffers from spec §3.
type Entity struct {
	ID      EntityID
	Version uint8
	ClassID uint16
	Class   *ClassMetadata

	// Role flags, orthogonal (spec §3).
	IsLocal            bool
	IsLocalControlled  bool
	IsServerControlled bool

	// Fields is the live field image, length Class.FixedFieldsSize.
	Fields []byte

	// InterpolatedInitial is the value at the start of the current
	// visual frame; InterpolatedPrev at the start of the previous one.
	// Both are length Class.InterpolatedFieldsSize.
	InterpolatedInitial []byte
	InterpolatedPrev    []byte

	// Render is the blended-for-display field image, same layout as
	// Fields. Interpolation (spec §4.6) writes into Render; Fields
	// itself always holds the raw last-applied network or predicted
	// value, never a blended one, so future diffs and rollback seeds
	// stay exact.
	Render []byte

	Controller Controller
	Updater    Updater
	Visual     VisualUpdater
}

// Updater is implemented by entities whose class metadata marks them
// IsUpdateable; Update is invoked once per replayed input during
// rollback (spec §4.3) and once per logic tick in normal play.
type Updater interface {
	Update(e *Entity)
}

// VisualUpdater is invoked once per rendered frame, after interpolation
// has populated Render, so presentation code never touches network or
// prediction state directly (spec §4.6, "each live entity's visual
// update is invoked").
type VisualUpdater interface {
	VisualUpdate(e *Entity)
}

// NewEntity allocates an entity body sized per its class metadata.
func NewEntity(id EntityID, version uint8, class *ClassMetadata) *Entity {
	return &Entity{
		ID:                  id,
		Version:             version,
		ClassID:             class.ClassID,
		Class:               class,
		Fields:              make([]byte, class.FixedFieldsSize),
		InterpolatedInitial: make([]byte, class.InterpolatedFieldsSize),
		InterpolatedPrev:    make([]byte, class.InterpolatedFieldsSize),
		Render:              make([]byte, class.FixedFieldsSize),
	}
}

// ResolveField resolves a FieldEntityRef-kind field of e to its target
// entity through table (spec §9 "cyclic data"). f must belong to e's
// class and have Kind == FieldEntityRef.
func (e *Entity) ResolveField(f *FieldDescriptor, table *EntityTable) (*Entity, bool) {
	return table.ResolveRef(e.Fields[f.StructOffset : f.StructOffset+f.Size])
}

// EntityTable owns every live entity body, resolved by id. References
// between entities must always be resolved through this table rather
// than stored as owning pointers (spec §9 "cyclic data").
type EntityTable struct {
	entities map[EntityID]*Entity
	maxCount int
}

// NewEntityTable creates a table bounded to maxCount live entities,
// mirroring MAX_SYNCED_ENTITY_COUNT.
func NewEntityTable(maxCount int) *EntityTable {
	return &EntityTable{
		entities: make(map[EntityID]*Entity),
		maxCount: maxCount,
	}
}

// Get resolves an entity id to its body.
func (t *EntityTable) Get(id EntityID) (*Entity, bool) {
	e, ok := t.entities[id]
	return e, ok
}

// ResolveRef resolves a FieldEntityRef field's raw id+version bytes
// through the table rather than an owning pointer (spec §9 "cyclic
// data"). A reference whose version no longer matches the live
// occupant of that id — the original entity was destroyed and its id
// reused — resolves as not found, the same outcome a dangling pointer
// would never have given safely.
func (t *EntityTable) ResolveRef(src []byte) (*Entity, bool) {
	if len(src) < EntityRefSize {
		return nil, false
	}
	id, version := ReadEntityRef(src)
	e, ok := t.entities[id]
	if !ok || e.Version != version {
		return nil, false
	}
	return e, true
}

// InRange reports whether id is within the dense bound, the check behind
// the "entity_id out of range poisons the read" error policy (spec §4.4,
// §7).
func (t *EntityTable) InRange(id EntityID) bool {
	return int(id) < t.maxCount
}

// Create installs a new entity body, replacing and discarding any
// previous occupant of the same id (callers destroy first per spec
// §4.4's version-mismatch rule; Create itself does not check versions).
func (t *EntityTable) Create(id EntityID, version uint8, class *ClassMetadata) *Entity {
	e := NewEntity(id, version, class)
	t.entities[id] = e
	return e
}

// Destroy removes an entity body from the table.
func (t *EntityTable) Destroy(id EntityID) {
	delete(t.entities, id)
}

// Len returns the number of live entities.
func (t *EntityTable) Len() int {
	return len(t.entities)
}

// Each calls fn for every live entity. Iteration order is unspecified.
func (t *EntityTable) Each(fn func(*Entity)) {
	for _, e := range t.entities {
		fn(e)
	}
}
