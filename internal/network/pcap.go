package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"

	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// ReplayOptions controls ReplayPCAP.
type ReplayOptions struct {
	// Port keeps only UDP datagrams to this destination port; 0 keeps all.
	Port int
	// Speed scales capture timing; 0 replays as fast as possible.
	Speed float64
	Clock timeutil.Clock
	Stats *LinkStats
}

// ReplayPCAP feeds the UDP payloads of a capture file through dec into app.
// It returns the number of datagrams delivered.
func ReplayPCAP(ctx context.Context, path string, dec DatagramDecoder, app Applier, opts ReplayOptions) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("failed to open capture %s: %w", path, err)
	}
	defer f.Close()

	r, err := pcapgo.NewReader(f)
	if err != nil {
		return 0, fmt.Errorf("failed to read capture header: %w", err)
	}

	clock := opts.Clock
	if clock == nil {
		clock = timeutil.RealClock{}
	}
	stats := opts.Stats
	if stats == nil {
		stats = NewLinkStats("pcap " + path)
	}
	l := &UDPListener{address: path, decoder: dec, applier: app, stats: stats}

	delivered := 0
	var prev time.Time
	for {
		if err := ctx.Err(); err != nil {
			return delivered, err
		}
		data, ci, err := r.ReadPacketData()
		if errors.Is(err, io.EOF) {
			log.Printf("Capture replay complete: %d datagrams from %s", delivered, path)
			return delivered, nil
		}
		if err != nil {
			return delivered, fmt.Errorf("read capture %s: %w", path, err)
		}

		payload, ok := udpPayload(gopacket.NewPacket(data, r.LinkType(), gopacket.Default), opts.Port)
		if !ok {
			continue
		}

		if opts.Speed > 0 && !prev.IsZero() {
			gap := time.Duration(float64(ci.Timestamp.Sub(prev)) / opts.Speed)
			if gap > 0 {
				select {
				case <-ctx.Done():
					return delivered, ctx.Err()
				case <-clock.After(gap):
				}
			}
		}
		prev = ci.Timestamp

		l.handleDatagram(payload, nil)
		delivered++
	}
}

func udpPayload(pkt gopacket.Packet, port int) ([]byte, bool) {
	layer := pkt.Layer(layers.LayerTypeUDP)
	if layer == nil {
		return nil, false
	}
	udp, ok := layer.(*layers.UDP)
	if !ok || len(udp.Payload) == 0 {
		return nil, false
	}
	if port != 0 && int(udp.DstPort) != port {
		return nil, false
	}
	return udp.Payload, true
}
