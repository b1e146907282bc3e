package netsync

// Tracer observes the raw packets a Client ingests and emits, for
// offline reproduction of reconciliation bugs: one call per received
// snapshot packet and one per produced input packet. Attaching a tracer
// never changes reconciliation behavior. Implementations must not
// retain data past the call; the backing buffer may be recycled into a
// pool immediately after.
type Tracer interface {
	// TraceInbound is called with every packet Receive accepts for this
	// protocol (header byte matched), before it is parsed.
	TraceInbound(data []byte)
	// TraceOutbound is called with every assembled input packet, after
	// it has been handed to the transport.
	TraceOutbound(data []byte)
}
