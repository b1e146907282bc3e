package netsync

// Controller is a human input source. GenerateInput is called once per
// logic tick to append the controller's opaque payload to the outbound
// input writer (spec §4.5); ReadInput applies a previously generated (or
// replayed) payload to whatever locally controlled entities the
// controller owns, so that prediction and replay use identical bytes
// (spec §4.3 step 2, §4.5 step 3).
type Controller interface {
	// GenerateInput appends this tick's input payload to w. Returning
	// an error truncates generation for this tick per spec §4.5 step 2
	// (the oversize-input policy); the caller logs and stops invoking
	// further controllers.
	GenerateInput(w *Writer) error
	// ReadInput applies a payload (freshly generated, or replayed from
	// the input queue during rollback) to the controller's entities.
	ReadInput(payload []byte)
}

// NullController is a Controller that generates no input and ignores
// any payload delivered to it. It is the default for entities that have
// no attached human controller (e.g. remote players during replay, or
// a client with no local player yet).
type NullController struct{}

// GenerateInput is a no-op.
func (NullController) GenerateInput(w *Writer) error { return nil }

// ReadInput is a no-op.
func (NullController) ReadInput(payload []byte) {}
