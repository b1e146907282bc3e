package network

import (
	"testing"
	"time"
)

func TestClassifyRTT(t *testing.T) {
	cases := []struct {
		rtt  time.Duration
		want Tier
	}{
		{50 * time.Millisecond, TierOptimal},
		{199 * time.Millisecond, TierOptimal},
		{300 * time.Millisecond, TierDegraded},
		{499 * time.Millisecond, TierDegraded},
		{1 * time.Second, TierPoor},
		{4999 * time.Millisecond, TierPoor},
		{6 * time.Second, TierSpectator},
	}
	for _, c := range cases {
		if got := ClassifyRTT(c.rtt); got != c.want {
			t.Errorf("ClassifyRTT(%v) = %v, want %v", c.rtt, got, c.want)
		}
	}
}

func TestUDPTransportRoundTrip(t *testing.T) {
	serverConn, err := Listen("127.0.0.1:0", nil)
	if err != nil {
		t.Fatalf("Listen: %v", err)
	}
	defer serverConn.Close()

	client, err := Dial(serverConn.LocalAddr().String(), nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer client.Close()

	payload := []byte{0xE5, 1, 2, 3}
	if err := client.Send(payload, true); err != nil {
		t.Fatalf("Send: %v", err)
	}

	buf := make([]byte, 1500)
	serverConn.SetReadDeadline(time.Now().Add(time.Second))
	n, remote, err := serverConn.ReadFromUDP(buf)
	if err != nil {
		t.Fatalf("ReadFromUDP: %v", err)
	}
	if string(buf[:n]) != string(payload) {
		t.Fatalf("got %v, want %v", buf[:n], payload)
	}

	peer := NewPeer(serverConn, remote, nil)
	if err := peer.Send([]byte{9, 9}, true); err != nil {
		t.Fatalf("peer Send: %v", err)
	}
	if peer.Close() != nil {
		t.Fatal("closing a NewPeer transport must not close the shared listener socket")
	}
}

func TestTransportReportsMTUAndTier(t *testing.T) {
	client := &UDPTransport{}
	if client.MaxSinglePacketSize(true) != maxUDPDatagram {
		t.Fatalf("MaxSinglePacketSize(true) = %d, want %d", client.MaxSinglePacketSize(true), maxUDPDatagram)
	}
	client.RecordRTT(50 * time.Millisecond)
	if client.Tier() != TierOptimal {
		t.Fatalf("Tier() = %v, want TierOptimal", client.Tier())
	}
	client.RecordRTT(6 * time.Second)
	if client.Tier() != TierSpectator {
		t.Fatalf("Tier() = %v, want TierSpectator", client.Tier())
	}
}
