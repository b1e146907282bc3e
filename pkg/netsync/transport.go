package netsync

// Transport is the unreliable datagram collaborator the core consumes
// (spec §6). The core never assumes delivery or ordering guarantees
// beyond what Receive enforces itself (stale-tick rejection).
type Transport interface {
	// Send transmits payload. unreliable is always true for this core;
	// the parameter is kept to mirror the source's dual-channel
	// signature in case a host later adds a reliable channel alongside.
	Send(payload []byte, unreliable bool) error
	// MaxSinglePacketSize reports the MTU-equivalent ceiling for one
	// outbound datagram on the given channel.
	MaxSinglePacketSize(unreliable bool) uint16
	// TriggerUpdate hints the transport to flush any buffered sends
	// immediately rather than waiting for its own tick.
	TriggerUpdate()
}

// PacketKind is the second byte of an inbound or outbound packet,
// selecting its routing after the header byte match (spec §6).
type PacketKind uint8

const (
	// PacketBaselineSync carries a compressed full-world image.
	PacketBaselineSync PacketKind = iota
	// PacketDiffSync is a non-terminal diff fragment.
	PacketDiffSync
	// PacketDiffSyncLast terminates a diff fragment set.
	PacketDiffSyncLast
	// PacketClientSync is the outbound input packet kind.
	PacketClientSync
)
