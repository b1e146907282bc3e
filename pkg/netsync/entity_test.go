package netsync

import "testing"

func refClass(classID uint16) *ClassMetadata {
	return &ClassMetadata{
		ClassID: classID,
		Name:    "holder",
		Fields: []FieldDescriptor{
			{Name: "target", StructOffset: 0, Size: EntityRefSize, Kind: FieldEntityRef},
		},
		FixedFieldsSize: EntityRefSize,
		FieldsFlagsSize: 1,
	}
}

func TestEntityRefRoundTrip(t *testing.T) {
	buf := make([]byte, EntityRefSize)
	WriteEntityRef(buf, 513, 9)
	id, version := ReadEntityRef(buf)
	if id != 513 || version != 9 {
		t.Fatalf("ReadEntityRef = (%d, %d), want (513, 9)", id, version)
	}
}

func TestResolveFieldFindsTarget(t *testing.T) {
	table := NewEntityTable(100)
	class := refClass(5)
	holder := table.Create(1, 0, class)
	target := table.Create(2, 3, class)

	f := &class.Fields[0]
	WriteEntityRef(holder.Fields[f.StructOffset:], target.ID, target.Version)

	got, ok := holder.ResolveField(f, table)
	if !ok {
		t.Fatal("ResolveField should find the live target")
	}
	if got != target {
		t.Fatalf("ResolveField returned entity %d, want %d", got.ID, target.ID)
	}
}

func TestResolveFieldVersionMismatchNotFound(t *testing.T) {
	table := NewEntityTable(100)
	class := refClass(5)
	holder := table.Create(1, 0, class)
	table.Create(2, 3, class)

	f := &class.Fields[0]
	WriteEntityRef(holder.Fields[f.StructOffset:], 2, 3)

	// Entity 2 dies; its id is reused by a new life with a bumped version.
	table.Destroy(2)
	table.Create(2, 4, class)

	if _, ok := holder.ResolveField(f, table); ok {
		t.Fatal("a ref to a previous life of a reused id must not resolve")
	}
}

func TestResolveFieldDestroyedTargetNotFound(t *testing.T) {
	table := NewEntityTable(100)
	class := refClass(5)
	holder := table.Create(1, 0, class)
	table.Create(2, 0, class)

	f := &class.Fields[0]
	WriteEntityRef(holder.Fields[f.StructOffset:], 2, 0)
	table.Destroy(2)

	if _, ok := holder.ResolveField(f, table); ok {
		t.Fatal("a ref to a destroyed entity must not resolve")
	}
}

func TestResolveRefRejectsShortBuffer(t *testing.T) {
	table := NewEntityTable(100)
	if _, ok := table.ResolveRef([]byte{1, 0}); ok {
		t.Fatal("ResolveRef should reject a buffer shorter than EntityRefSize")
	}
}

func TestEntityTableInRange(t *testing.T) {
	table := NewEntityTable(10)
	if !table.InRange(9) {
		t.Fatal("id 9 should be in range for maxCount 10")
	}
	if table.InRange(10) {
		t.Fatal("id 10 should be out of range for maxCount 10")
	}
}

func TestNewEntitySizesBuffersFromClass(t *testing.T) {
	class := &ClassMetadata{
		ClassID:                7,
		FixedFieldsSize:        12,
		InterpolatedFieldsSize: 8,
	}
	e := NewEntity(3, 1, class)
	if len(e.Fields) != 12 || len(e.Render) != 12 {
		t.Fatalf("Fields/Render sized %d/%d, want 12/12", len(e.Fields), len(e.Render))
	}
	if len(e.InterpolatedInitial) != 8 || len(e.InterpolatedPrev) != 8 {
		t.Fatalf("scratch sized %d/%d, want 8/8", len(e.InterpolatedInitial), len(e.InterpolatedPrev))
	}
}
