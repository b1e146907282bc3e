package netsync

import "testing"

type onSyncCall struct {
	old, new byte
}

func TestOnSyncFiresOnceOnDiffNotFullSync(t *testing.T) {
	var calls []onSyncCall
	class := &ClassMetadata{
		ClassID: 5,
		Name:    "onsync",
		Fields: []FieldDescriptor{
			{
				Name: "X", StructOffset: 0, WireOffset: 0, Size: 1, Kind: FieldValue,
				OnSync: func(e *Entity, f *FieldDescriptor, prev []byte) {
					calls = append(calls, onSyncCall{old: prev[0], new: e.Fields[0]})
				},
			},
		},
		FixedFieldsSize: 1,
		FieldsFlagsSize: 1,
	}
	reg := NewRegistry()
	reg.Register(class)
	entities := NewEntityTable(16)
	sr := NewStateReader(entities, reg, nil, nil)

	full := buildFullSyncRecord(1, 0, 5, 10)
	payload := buildRecordsSection([][]byte{full}, nil)
	entries, _, ok := sr.Scan(payload)
	if !ok {
		t.Fatal("scan of full-sync record should not poison")
	}
	for _, e := range entries {
		sr.Apply(e, payload)
	}
	sr.FlushOnSync()
	if len(calls) != 0 {
		t.Fatalf("full-sync application should not fire on-sync, got %d calls", len(calls))
	}

	x := byte(99)
	diff := buildDiffRecord(1, &x)
	payload2 := buildRecordsSection([][]byte{diff}, nil)
	entries2, _, ok2 := sr.Scan(payload2)
	if !ok2 {
		t.Fatal("scan of diff record should not poison")
	}
	for _, e := range entries2 {
		sr.Apply(e, payload2)
	}

	entity, _ := entities.Get(1)
	if entity.Fields[0] != 99 {
		t.Fatalf("field should already carry the new value before flush, got %d", entity.Fields[0])
	}

	sr.FlushOnSync()
	if len(calls) != 1 {
		t.Fatalf("expected exactly 1 on-sync callback after flush, got %d", len(calls))
	}
	if calls[0].old != 10 || calls[0].new != 99 {
		t.Fatalf("callback saw old=%d new=%d, want old=10 new=99", calls[0].old, calls[0].new)
	}

	sr.FlushOnSync()
	if len(calls) != 1 {
		t.Fatalf("second flush with nothing pending should not refire, got %d calls", len(calls))
	}
}

func TestOnSyncSkippedWhenDiffFieldUnchanged(t *testing.T) {
	var calls []onSyncCall
	class := &ClassMetadata{
		ClassID: 6,
		Name:    "onsync-unchanged",
		Fields: []FieldDescriptor{
			{
				Name: "X", StructOffset: 0, WireOffset: 0, Size: 1, Kind: FieldValue,
				OnSync: func(e *Entity, f *FieldDescriptor, prev []byte) {
					calls = append(calls, onSyncCall{old: prev[0], new: e.Fields[0]})
				},
			},
		},
		FixedFieldsSize: 1,
		FieldsFlagsSize: 1,
	}
	reg := NewRegistry()
	reg.Register(class)
	entities := NewEntityTable(16)
	sr := NewStateReader(entities, reg, nil, nil)

	full := buildFullSyncRecord(1, 0, 6, 42)
	payload := buildRecordsSection([][]byte{full}, nil)
	entries, _, _ := sr.Scan(payload)
	for _, e := range entries {
		sr.Apply(e, payload)
	}

	same := byte(42)
	diff := buildDiffRecord(1, &same)
	payload2 := buildRecordsSection([][]byte{diff}, nil)
	entries2, _, _ := sr.Scan(payload2)
	for _, e := range entries2 {
		sr.Apply(e, payload2)
	}
	sr.FlushOnSync()

	if len(calls) != 0 {
		t.Fatalf("on-sync should not fire when the diff value matches the prior value, got %d calls", len(calls))
	}
}

func TestVersionMismatchDestroysAndRecreatesEntity(t *testing.T) {
	class := buildClass(2, nil)
	reg := NewRegistry()
	reg.Register(class)
	entities := NewEntityTable(16)
	sr := NewStateReader(entities, reg, nil, nil)

	full1 := buildFullSyncRecord(1, 0, 2, 10)
	payload1 := buildRecordsSection([][]byte{full1}, nil)
	entries1, _, ok1 := sr.Scan(payload1)
	if !ok1 {
		t.Fatal("scan should not poison")
	}
	for _, e := range entries1 {
		sr.Apply(e, payload1)
	}

	original, ok := entities.Get(1)
	if !ok {
		t.Fatal("entity 1 should exist after first full-sync")
	}
	if original.Version != 0 {
		t.Fatalf("original version = %d, want 0", original.Version)
	}

	full2 := buildFullSyncRecord(1, 1, 2, 55) // same id, new version
	payload2 := buildRecordsSection([][]byte{full2}, nil)
	entries2, _, ok2 := sr.Scan(payload2)
	if !ok2 {
		t.Fatal("scan should not poison")
	}
	for _, e := range entries2 {
		sr.Apply(e, payload2)
	}

	replaced, ok := entities.Get(1)
	if !ok {
		t.Fatal("entity 1 should still exist after version-mismatch replacement")
	}
	if replaced == original {
		t.Fatal("entity should have been destroyed and recreated, not mutated in place")
	}
	if replaced.Version != 1 {
		t.Fatalf("replaced entity version = %d, want 1", replaced.Version)
	}
	if replaced.Fields[0] != 55 {
		t.Fatalf("replaced entity X = %d, want 55", replaced.Fields[0])
	}
}

func TestSameVersionFullSyncReusesEntity(t *testing.T) {
	class := buildClass(2, nil)
	reg := NewRegistry()
	reg.Register(class)
	entities := NewEntityTable(16)
	sr := NewStateReader(entities, reg, nil, nil)

	full1 := buildFullSyncRecord(1, 3, 2, 10)
	payload1 := buildRecordsSection([][]byte{full1}, nil)
	entries1, _, _ := sr.Scan(payload1)
	for _, e := range entries1 {
		sr.Apply(e, payload1)
	}
	original, _ := entities.Get(1)

	full2 := buildFullSyncRecord(1, 3, 2, 77) // same version, refreshed full-sync
	payload2 := buildRecordsSection([][]byte{full2}, nil)
	entries2, _, _ := sr.Scan(payload2)
	for _, e := range entries2 {
		sr.Apply(e, payload2)
	}

	same, ok := entities.Get(1)
	if !ok {
		t.Fatal("entity 1 should still exist")
	}
	if same != original {
		t.Fatal("same-version full-sync should reuse the entity, not recreate it")
	}
	if same.Fields[0] != 77 {
		t.Fatalf("X = %d, want 77", same.Fields[0])
	}
}
