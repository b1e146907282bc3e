// Package pool provides unsynchronized object pooling for the engine's
// single-threaded hot paths.
//
// The core (see pkg/netsync) never suspends and is driven exclusively from
// the caller's receive/update thread (spec §5), so these pools are plain
// free lists rather than sync.Pool-backed: no lock is ever contended
// because no lock exists. Buffers grow on demand and are never shrunk;
// allocation is concentrated on first overflow of a pool's free list.
//
// # Pooled Types
//
//   - ByteBufferPool: input-command buffers and outbound input packets,
//     shared by netsync's input queue and input assembler.
//   - GrowSlice (not a pool, a resize-or-create helper): snapshot payloads
//     and predicted-entity images. Interpolation scratch buffers are
//     allocated once per entity and are not pooled.
//
// # Usage
//
//	p := pool.NewByteBufferPool(256)
//	buf := p.Get()
//	// ... fill buf ...
//	p.Put(buf)
//
// # Bounding
//
// Callers are responsible for bounding pool size (e.g. MAX_SAVED_STATE_DIFF
// from pkg/config) by only calling Put up to that many times; the pool
// itself does not cap its free list, matching the source's "recycle into a
// bounded pool" discipline where the bound lives with the owning subsystem.
package pool
