//go:build pcap
// +build pcap

package network

import (
	"context"
	"fmt"
	"log"

	"github.com/google/gopacket"
	"github.com/google/gopacket/pcap"
)

// CaptureLive sniffs MAVLink datagrams addressed to port on iface and feeds
// them through dec into app until ctx is cancelled. Only available when
// building with the 'pcap' build tag.
func CaptureLive(ctx context.Context, iface string, port int, dec DatagramDecoder, app Applier, stats *LinkStats) error {
	handle, err := pcap.OpenLive(iface, 65535, true, pcap.BlockForever)
	if err != nil {
		return fmt.Errorf("failed to open interface %s: %w", iface, err)
	}
	defer handle.Close()

	filter := fmt.Sprintf("udp dst port %d", port)
	if err := handle.SetBPFFilter(filter); err != nil {
		return fmt.Errorf("failed to set BPF filter '%s': %w", filter, err)
	}
	log.Printf("Capturing on %s (%s)", iface, filter)

	if stats == nil {
		stats = NewLinkStats("live " + iface)
	}
	l := &UDPListener{address: iface, decoder: dec, applier: app, stats: stats}

	source := gopacket.NewPacketSource(handle, handle.LinkType())
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case pkt, ok := <-source.Packets():
			if !ok {
				return nil
			}
			if payload, ok := udpPayload(pkt, port); ok {
				l.handleDatagram(payload, nil)
			}
		}
	}
}
