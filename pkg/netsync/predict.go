package netsync

import (
	"github.com/sirupsen/logrus"

	"github.com/opd-ai/entitysync/pkg/pool"
)

// EngineMode distinguishes normal play from the straight-line input
// replay performed during rollback (spec §4.3 step 2).
type EngineMode uint8

const (
	// ModeNormal is the engine's steady-state mode.
	ModeNormal EngineMode = iota
	// ModePredictionRollback is set only while replaying buffered
	// inputs after a rollback reset.
	ModePredictionRollback
)

type pendingSpawn struct {
	spawnTick Tick
	entityID  EntityID
}

// RollbackEngine is the Prediction & Rollback Engine: it owns the
// authoritative predicted-entity images, performs the reset-then-replay
// rollback procedure on every snapshot advance, and manages the
// pending-predicted-spawn queue (spec §4.3).
type RollbackEngine struct {
	entities    *EntityTable
	predicted   map[EntityID][]byte
	inputs      *InputQueue
	controllers []Controller

	pendingSpawns []pendingSpawn
	mode          EngineMode

	log *logrus.Entry
}

// NewRollbackEngine builds a rollback engine bound to entities and the
// input queue it will replay from.
func NewRollbackEngine(entities *EntityTable, inputs *InputQueue, log *logrus.Entry) *RollbackEngine {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &RollbackEngine{
		entities:  entities,
		predicted: make(map[EntityID][]byte),
		inputs:    inputs,
		log:       log.WithField("component", "rollback"),
	}
}

// Mode reports the engine's current replay mode.
func (e *RollbackEngine) Mode() EngineMode {
	return e.mode
}

// AddController registers a human controller whose input is replayed
// during rollback and generated during input assembly.
func (e *RollbackEngine) AddController(c Controller) {
	e.controllers = append(e.controllers, c)
}

// Predicted implements PredictedStore: it returns the authoritative
// image for id, growing (never shrinking) the backing buffer to size on
// first use or on a class change.
func (e *RollbackEngine) Predicted(id EntityID, size int) []byte {
	buf, ok := e.predicted[id]
	if !ok || len(buf) < size {
		buf = pool.GrowSlice(buf, size)
		e.predicted[id] = buf
	}
	return buf
}

// ForgetPredicted drops the authoritative image for a destroyed entity.
func (e *RollbackEngine) ForgetPredicted(id EntityID) {
	delete(e.predicted, id)
}

// QueueSpawn enqueues an optimistically spawned entity awaiting
// acknowledgement at spawnTick (spec §3 "pending-predicted-spawn
// queue").
func (e *RollbackEngine) QueueSpawn(spawnTick Tick, id EntityID) {
	e.pendingSpawns = append(e.pendingSpawns, pendingSpawn{spawnTick: spawnTick, entityID: id})
}

// Rollback resets every predicted entity to its authoritative image,
// replays the buffered input queue against it, then recomputes
// interpolation scratch and retires acknowledged predicted spawns (spec
// §4.3). processedTick is the just-applied state_a's ProcessedTick.
func (e *RollbackEngine) Rollback(processedTick Tick) {
	e.resetToAuthoritative()
	e.replay()
	e.CaptureInterpolation()
	e.cleanupPredictedSpawns(processedTick)
}

// AdvancePrevInterpolation shifts InterpolatedPrev to the previous
// frame's InterpolatedInitial for every local or locally controlled
// entity. Call once per logic tick before CaptureInterpolation so local
// interpolation (spec §4.6) has a stable previous-frame baseline.
func (e *RollbackEngine) AdvancePrevInterpolation() {
	e.entities.Each(func(ent *Entity) {
		if !ent.IsLocal && !ent.IsLocalControlled {
			return
		}
		copy(ent.InterpolatedPrev, ent.InterpolatedInitial)
	})
}

func (e *RollbackEngine) resetToAuthoritative() {
	e.entities.Each(func(ent *Entity) {
		if !ent.IsLocalControlled || ent.IsLocal {
			return
		}
		predicted, ok := e.predicted[ent.ID]
		if !ok {
			return
		}
		e.resetFields(ent, predicted)
	})
}

// resetFields copies predicted's authoritative bytes back into ent's
// live field buffer at each field's declared offset, skipping
// ONLY_FOR_REMOTE fields and indirecting syncable-syncvar fields one
// more level into their owning SyncableField (spec §4.3 step 1).
func (e *RollbackEngine) resetFields(ent *Entity, predicted []byte) {
	for i := range ent.Class.Fields {
		f := &ent.Class.Fields[i]
		if f.Flags&OnlyForRemote != 0 {
			continue
		}
		if f.Kind == FieldSyncableVar && f.SyncableIndex >= 0 && f.SyncableIndex < len(ent.Class.SyncableFields) {
			sf := &ent.Class.SyncableFields[f.SyncableIndex]
			if err := CopyField(ent.Fields, sf.Offset+f.NestedOffset, predicted, f.StructOffset, f.Size); err != nil {
				e.log.WithError(err).WithField("field", f.Name).Error("rollback reset failed for syncable field")
			}
			continue
		}
		if err := CopyField(ent.Fields, f.StructOffset, predicted, f.StructOffset, f.Size); err != nil {
			e.log.WithError(err).WithField("field", f.Name).Error("rollback reset failed")
		}
	}
}

func (e *RollbackEngine) replay() {
	e.mode = ModePredictionRollback
	defer func() { e.mode = ModeNormal }()

	if e.inputs == nil {
		return
	}
	for _, input := range e.inputs.Ordered() {
		body := input.Payload
		if len(body) >= InputHeaderSize {
			body = body[InputHeaderSize:]
		}
		for _, c := range e.controllers {
			c.ReadInput(body)
		}
		e.entities.Each(func(ent *Entity) {
			if !ent.IsLocalControlled || ent.IsLocal {
				return
			}
			if ent.Updater != nil && ent.Class.IsUpdateable {
				ent.Updater.Update(ent)
			}
		})
	}
}

// CaptureInterpolation recaptures InterpolatedInitial from each
// predicted entity's current field values, the rollback step that seeds
// the next local-interpolation blend (spec §4.3 step 4).
func (e *RollbackEngine) CaptureInterpolation() {
	e.entities.Each(func(ent *Entity) {
		if !ent.IsLocalControlled || ent.IsLocal {
			return
		}
		for i := range ent.Class.Fields {
			f := &ent.Class.Fields[i]
			if !f.Interpolated() {
				continue
			}
			if err := CopyField(ent.InterpolatedInitial, f.WireOffset, ent.Fields, f.StructOffset, f.Size); err != nil {
				e.log.WithError(err).WithField("field", f.Name).Error("interpolation snapshot failed")
			}
		}
	})
}

func (e *RollbackEngine) cleanupPredictedSpawns(processedTick Tick) {
	for len(e.pendingSpawns) > 0 {
		head := e.pendingSpawns[0]
		if SeqDiff(processedTick, head.spawnTick) < 0 {
			break
		}
		e.entities.Destroy(head.entityID)
		e.ForgetPredicted(head.entityID)
		e.pendingSpawns = e.pendingSpawns[1:]
	}
}
