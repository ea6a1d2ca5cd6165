// Package network receives MAVLink telemetry over UDP and over a stream link
// (TCP or a serial radio) and feeds decoded messages to the aggregator.
package network

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// maxDatagram covers the largest MAVLink v2 frame with signature and leaves
// room for several frames per datagram.
const maxDatagram = 2048

// Applier consumes decoded messages.
type Applier interface {
	Apply(msg telemetry.Message)
}

// DatagramDecoder splits one datagram into messages.
type DatagramDecoder interface {
	DecodeDatagram(data []byte, ch telemetry.Channel) ([]telemetry.Message, error)
}

// UDPListenerConfig configures a UDPListener.
type UDPListenerConfig struct {
	Address     string
	RcvBuf      int
	LogInterval time.Duration
	Decoder     DatagramDecoder
	Applier     Applier
	Stats       *LinkStats
	Factory     UDPSocketFactory

	// Forwarder receives a copy of every datagram. The caller starts it.
	Forwarder *PacketForwarder
}

// UDPListener receives datagrams on one port. Each datagram may carry
// several frames; a datagram that fails to decode is skipped.
type UDPListener struct {
	address     string
	rcvBuf      int
	logInterval time.Duration
	decoder     DatagramDecoder
	applier     Applier
	stats       *LinkStats
	forwarder   *PacketForwarder
	factory     UDPSocketFactory
}

// NewUDPListener creates a listener; Start binds the socket.
func NewUDPListener(cfg UDPListenerConfig) *UDPListener {
	l := &UDPListener{
		address:     cfg.Address,
		rcvBuf:      cfg.RcvBuf,
		logInterval: cfg.LogInterval,
		decoder:     cfg.Decoder,
		applier:     cfg.Applier,
		stats:       cfg.Stats,
		forwarder:   cfg.Forwarder,
		factory:     cfg.Factory,
	}
	if l.logInterval <= 0 {
		l.logInterval = time.Minute
	}
	if l.stats == nil {
		l.stats = NewLinkStats("udp " + cfg.Address)
	}
	if l.factory == nil {
		l.factory = RealUDPSocketFactory{}
	}
	return l
}

// Stats returns the listener's counters.
func (l *UDPListener) Stats() *LinkStats { return l.stats }

// Start receives until ctx is cancelled or the socket fails.
func (l *UDPListener) Start(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", l.address)
	if err != nil {
		return fmt.Errorf("failed to resolve UDP address: %w", err)
	}
	conn, err := l.factory.ListenUDP("udp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on UDP address %s: %w", l.address, err)
	}
	defer conn.Close()

	if l.rcvBuf > 0 {
		if err := conn.SetReadBuffer(l.rcvBuf); err != nil {
			log.Printf("Warning: failed to set UDP receive buffer size to %d: %v", l.rcvBuf, err)
		}
	}
	log.Printf("UDP listener started on %s", l.address)

	done := make(chan struct{})
	defer close(done)
	go logStatsEvery(done, l.stats, l.logInterval)

	buf := make([]byte, maxDatagram)
	for {
		if ctx.Err() != nil {
			log.Printf("UDP listener on %s stopping", l.address)
			return ctx.Err()
		}

		// short deadline so cancellation is noticed between datagrams
		conn.SetReadDeadline(time.Now().Add(100 * time.Millisecond))
		n, from, err := conn.ReadFromUDP(buf)
		if err != nil {
			var netErr net.Error
			if errors.As(err, &netErr) && netErr.Timeout() {
				continue
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Printf("UDP listener on %s: read failed: %v", l.address, err)
			return fmt.Errorf("udp read on %s: %w", l.address, err)
		}
		l.handleDatagram(buf[:n], from)
	}
}

func (l *UDPListener) handleDatagram(data []byte, from *net.UDPAddr) {
	l.stats.AddPacket(len(data))
	if l.forwarder != nil {
		l.forwarder.ForwardAsync(data)
	}

	msgs, err := l.decoder.DecodeDatagram(data, telemetry.ChannelDatagram)
	if err != nil {
		l.stats.AddDecodeError()
		monitoring.Debugf("UDP %s: skipping datagram from %v: %v", l.address, from, err)
		return
	}
	for _, msg := range msgs {
		l.applier.Apply(msg)
	}
	l.stats.AddMessages(len(msgs))
}
