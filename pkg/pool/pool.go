package pool

// ByteBufferPool is a free list of []byte buffers, reused without
// synchronization by a single-threaded owner.
type ByteBufferPool struct {
	free     [][]byte
	capacity int
}

// NewByteBufferPool creates a byte buffer pool; capacity is the initial
// buffer size handed out on a fresh allocation.
func NewByteBufferPool(capacity int) *ByteBufferPool {
	return &ByteBufferPool{capacity: capacity}
}

// Get removes a buffer from the free list, or allocates one if empty.
// The returned buffer is truncated to length zero.
func (p *ByteBufferPool) Get() []byte {
	if n := len(p.free); n > 0 {
		buf := p.free[n-1]
		p.free = p.free[:n-1]
		return buf[:0]
	}
	return make([]byte, 0, p.capacity)
}

// Put returns a buffer to the free list for reuse.
func (p *ByteBufferPool) Put(buf []byte) {
	if buf == nil {
		return
	}
	p.free = append(p.free, buf)
}

// Len reports the number of buffers currently idle in the free list.
func (p *ByteBufferPool) Len() int {
	return len(p.free)
}

// GrowSlice ensures s has at least n bytes of length, resizing in place
// (reallocating only when capacity is insufficient) and never shrinking.
// Mirrors the source's "resize-or-create, never shrink" buffer discipline
// (spec §5).
func GrowSlice(s []byte, n int) []byte {
	if cap(s) < n {
		grown := make([]byte, n)
		copy(grown, s)
		return grown
	}
	return s[:n]
}
