package network

import (
	"context"
	"fmt"
	"log"
	"net"
	"sync"
	"time"
)

// DropCounter records datagrams the forwarder could not queue.
type DropCounter interface {
	AddDropped()
}

// PacketForwarder relays raw datagrams to another ground station without
// blocking the receive loop. Datagrams are dropped when the queue is full.
type PacketForwarder struct {
	conn        net.Conn
	queue       chan []byte
	drops       DropCounter
	logInterval time.Duration
	address     string
	startOnce   sync.Once
}

// NewPacketForwarder dials address ("host:port") over UDP.
func NewPacketForwarder(address string, drops DropCounter, logInterval time.Duration) (*PacketForwarder, error) {
	raddr, err := net.ResolveUDPAddr("udp", address)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve forward address %s: %w", address, err)
	}
	conn, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("failed to create forward connection: %w", err)
	}
	return newPacketForwarder(conn, address, drops, logInterval), nil
}

func newPacketForwarder(conn net.Conn, address string, drops DropCounter, logInterval time.Duration) *PacketForwarder {
	if logInterval <= 0 {
		logInterval = time.Minute
	}
	return &PacketForwarder{
		conn:        conn,
		queue:       make(chan []byte, 256),
		drops:       drops,
		logInterval: logInterval,
		address:     address,
	}
}

// Start runs the write loop until ctx is cancelled. Only the first call has
// an effect; the owner of a forwarder shared between listeners starts it.
func (f *PacketForwarder) Start(ctx context.Context) {
	f.startOnce.Do(func() { f.start(ctx) })
}

func (f *PacketForwarder) start(ctx context.Context) {
	go func() {
		failed := 0
		var lastErr error
		ticker := time.NewTicker(f.logInterval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case pkt := <-f.queue:
				if _, err := f.conn.Write(pkt); err != nil {
					failed++
					lastErr = err
				}
			case <-ticker.C:
				if failed > 0 {
					log.Printf("\033[93mFailed to forward %d datagrams to %s (latest: %v)\033[0m", failed, f.address, lastErr)
					failed = 0
					lastErr = nil
				}
			}
		}
	}()

	log.Printf("Forwarding raw MAVLink datagrams to %s", f.address)
}

// ForwardAsync queues a copy of pkt.
func (f *PacketForwarder) ForwardAsync(pkt []byte) {
	buf := make([]byte, len(pkt))
	copy(buf, pkt)

	select {
	case f.queue <- buf:
	default:
		if f.drops != nil {
			f.drops.AddDropped()
		}
	}
}

// Close releases the forwarding socket.
func (f *PacketForwarder) Close() error {
	return f.conn.Close()
}
