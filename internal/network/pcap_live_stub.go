//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"errors"
)

// ErrPCAPDisabled is returned by CaptureLive in builds without libpcap.
var ErrPCAPDisabled = errors.New("live capture not enabled: rebuild with -tags=pcap")

// CaptureLive is unavailable without the 'pcap' build tag.
func CaptureLive(ctx context.Context, iface string, port int, dec DatagramDecoder, app Applier, stats *LinkStats) error {
	return ErrPCAPDisabled
}
