package netsync

import (
	"fmt"

	"github.com/pierrec/lz4/v4"

	"github.com/opd-ai/entitysync/pkg/pool"
)

// decompressBaseline inflates a raw block-mode LZ4 baseline payload into
// exactly decompressedSize bytes, growing dst as needed (reused across
// baselines to avoid steady-state allocation per spec §5). The wire
// format supplies the decompressed size out of band (spec §6), which is
// what block mode requires; the payload carries no frame header. A
// length mismatch is a fatal parse error per spec §4.1 / §7: the packet
// is dropped and the caller must not install the resulting buffer.
func decompressBaseline(dst []byte, compressed []byte, decompressedSize uint32) ([]byte, error) {
	dst = pool.GrowSlice(dst, int(decompressedSize))
	n, err := lz4.UncompressBlock(compressed, dst)
	if err != nil {
		return dst[:0], fmt.Errorf("netsync: lz4 decode failed: %w", err)
	}
	if n != int(decompressedSize) {
		return dst[:0], fmt.Errorf("netsync: lz4 decoded length mismatch: got %d, want %d", n, decompressedSize)
	}
	return dst[:n], nil
}
