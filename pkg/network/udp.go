// Package network provides a UDP transport implementation of
// netsync.Transport, plus a latency-tier classification a hosting
// application can use to decide when to fall back to spectator mode.
package network

import (
	"fmt"
	"net"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/opd-ai/entitysync/pkg/netsync"
)

// Tier classifies a connection by its observed round-trip time.
type Tier int

const (
	// TierOptimal is 0-200ms RTT: full gameplay experience.
	TierOptimal Tier = iota
	// TierDegraded is 200-500ms RTT: noticeable lag but playable.
	TierDegraded
	// TierPoor is 500-5000ms RTT: significant lag, inputs still accepted.
	TierPoor
	// TierSpectator is >5000ms RTT: gameplay disabled, reconnect prompt.
	TierSpectator
)

const (
	degradedThreshold  = 200 * time.Millisecond
	poorThreshold      = 500 * time.Millisecond
	spectatorThreshold = 5000 * time.Millisecond
)

// ClassifyRTT maps a round-trip time sample to its latency tier.
func ClassifyRTT(rtt time.Duration) Tier {
	switch {
	case rtt < degradedThreshold:
		return TierOptimal
	case rtt < poorThreshold:
		return TierDegraded
	case rtt < spectatorThreshold:
		return TierPoor
	default:
		return TierSpectator
	}
}

func (t Tier) String() string {
	switch t {
	case TierOptimal:
		return "optimal"
	case TierDegraded:
		return "degraded"
	case TierPoor:
		return "poor"
	default:
		return "spectator"
	}
}

const maxUDPDatagram = 1400

// UDPTransport implements netsync.Transport over a connected UDP socket.
// One UDPTransport serves one remote peer; a server wraps several of
// these, one per client, behind its own dispatch loop.
type UDPTransport struct {
	conn    *net.UDPConn
	remote  *net.UDPAddr
	onSend  func(n int)
	mu      sync.Mutex
	lastRTT time.Duration
	log     *logrus.Entry
}

// Dial opens a client-side UDP transport to addr.
func Dial(addr string, log *logrus.Entry) (*UDPTransport, error) {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: resolve %s: %w", addr, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("network: dial %s: %w", addr, err)
	}
	return &UDPTransport{conn: conn, log: log.WithField("component", "udp_transport")}, nil
}

// Listen opens a server-side UDP socket on addr. Use ReadFrom to demux
// incoming datagrams by sender and hand each peer its own UDPTransport
// (via NewPeer) so every connection can be sent to independently.
func Listen(addr string, log *logrus.Entry) (*net.UDPConn, error) {
	laddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("network: resolve %s: %w", addr, err)
	}
	conn, err := net.ListenUDP("udp", laddr)
	if err != nil {
		return nil, fmt.Errorf("network: listen %s: %w", addr, err)
	}
	return conn, nil
}

// NewPeer wraps an already-bound server socket and a known remote
// address as a netsync.Transport for that single peer's outbound sends.
func NewPeer(conn *net.UDPConn, remote *net.UDPAddr, log *logrus.Entry) *UDPTransport {
	if log == nil {
		log = logrus.NewEntry(logrus.StandardLogger())
	}
	return &UDPTransport{conn: conn, log: log.WithField("component", "udp_transport"), remote: remote}
}

// Send writes data as a single UDP datagram (spec §5: the caller is
// responsible for fragmenting anything over MaxSinglePacketSize first).
// unreliable is accepted to satisfy netsync.Transport; UDP has no
// reliable channel to choose between.
func (t *UDPTransport) Send(data []byte, unreliable bool) error {
	var err error
	if t.remote != nil {
		_, err = t.conn.WriteToUDP(data, t.remote)
	} else {
		_, err = t.conn.Write(data)
	}
	if err != nil {
		return fmt.Errorf("network: send: %w", err)
	}
	if t.onSend != nil {
		t.onSend(len(data))
	}
	return nil
}

// ReadPacket blocks for the next datagram on a client-dialed transport's
// connected socket and copies it into buf. Server-side peers created via
// NewPeer share the listener socket and must read through it directly
// (net.UDPConn.ReadFromUDP), since a single peer has no demux of its own.
func (t *UDPTransport) ReadPacket(buf []byte) (int, error) {
	n, err := t.conn.Read(buf)
	if err != nil {
		return 0, fmt.Errorf("network: read: %w", err)
	}
	return n, nil
}

// MaxSinglePacketSize reports the datagram size below which a packet
// needs no further splitting, leaving headroom under common path MTUs.
func (t *UDPTransport) MaxSinglePacketSize(unreliable bool) uint16 {
	return maxUDPDatagram
}

// TriggerUpdate is a no-op: Send writes each datagram to the socket
// immediately, so there is nothing buffered to flush.
func (t *UDPTransport) TriggerUpdate() {}

// RecordRTT stores the latest observed round-trip time for Tier.
func (t *UDPTransport) RecordRTT(rtt time.Duration) {
	t.mu.Lock()
	t.lastRTT = rtt
	t.mu.Unlock()
}

// Tier reports the transport's current latency classification.
func (t *UDPTransport) Tier() Tier {
	t.mu.Lock()
	defer t.mu.Unlock()
	return ClassifyRTT(t.lastRTT)
}

// Close releases the underlying socket. Server-side peers created via
// NewPeer share the listener's socket and must not be closed directly;
// close the listener instead.
func (t *UDPTransport) Close() error {
	if t.remote != nil {
		return nil
	}
	return t.conn.Close()
}

var _ netsync.Transport = (*UDPTransport)(nil)
