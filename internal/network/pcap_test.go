package network

import (
	"context"
	"net"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/gopacket"
	"github.com/google/gopacket/layers"
	"github.com/google/gopacket/pcapgo"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

func udpFrame(t *testing.T, dstPort uint16, payload []byte) []byte {
	t.Helper()
	eth := &layers.Ethernet{
		SrcMAC:       net.HardwareAddr{0, 1, 2, 3, 4, 5},
		DstMAC:       net.HardwareAddr{6, 7, 8, 9, 10, 11},
		EthernetType: layers.EthernetTypeIPv4,
	}
	ip := &layers.IPv4{
		Version:  4,
		TTL:      64,
		Protocol: layers.IPProtocolUDP,
		SrcIP:    net.IPv4(192, 168, 1, 10),
		DstIP:    net.IPv4(192, 168, 1, 20),
	}
	udp := &layers.UDP{SrcPort: 5760, DstPort: layers.UDPPort(dstPort)}
	require.NoError(t, udp.SetNetworkLayerForChecksum(ip))

	buf := gopacket.NewSerializeBuffer()
	opts := gopacket.SerializeOptions{FixLengths: true, ComputeChecksums: true}
	require.NoError(t, gopacket.SerializeLayers(buf, opts, eth, ip, udp, gopacket.Payload(payload)))
	return buf.Bytes()
}

func writeCapture(t *testing.T, frames ...[]byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "flight.pcap")
	f, err := os.Create(path)
	require.NoError(t, err)
	defer f.Close()

	w := pcapgo.NewWriter(f)
	require.NoError(t, w.WriteFileHeader(65536, layers.LinkTypeEthernet))
	ts := time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)
	for i, data := range frames {
		ci := gopacket.CaptureInfo{
			Timestamp:     ts.Add(time.Duration(i) * 10 * time.Millisecond),
			CaptureLength: len(data),
			Length:        len(data),
		}
		require.NoError(t, w.WritePacket(ci, data))
	}
	return path
}

func TestReplayPCAP_FiltersByPort(t *testing.T) {
	quietLogs(t)
	path := writeCapture(t,
		udpFrame(t, 14557, []byte{1, 2}),
		udpFrame(t, 9999, []byte{3}),
		udpFrame(t, 14557, []byte{0xFF}),
		udpFrame(t, 14557, []byte{4}),
	)
	app := &recordingApplier{}
	stats := NewLinkStats("replay")

	n, err := ReplayPCAP(context.Background(), path, byteDecoder{}, app, ReplayOptions{Port: 14557, Stats: stats})
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	msgs := app.messages()
	require.Len(t, msgs, 3)
	assert.Equal(t, telemetry.Wind{Speed: 4}, msgs[2].Payload)
	assert.Equal(t, int64(1), stats.Snapshot().DecodeErrors)
}

func TestReplayPCAP_AllPortsAndPacing(t *testing.T) {
	quietLogs(t)
	path := writeCapture(t,
		udpFrame(t, 14557, []byte{1}),
		udpFrame(t, 14558, []byte{2}),
	)
	app := &recordingApplier{}

	n, err := ReplayPCAP(context.Background(), path, byteDecoder{}, app, ReplayOptions{Speed: 10})
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Len(t, app.messages(), 2)
}

func TestReplayPCAP_MissingFile(t *testing.T) {
	_, err := ReplayPCAP(context.Background(), filepath.Join(t.TempDir(), "none.pcap"), byteDecoder{}, &recordingApplier{}, ReplayOptions{})
	assert.Error(t, err)
}

func TestReplayPCAP_Cancelled(t *testing.T) {
	path := writeCapture(t, udpFrame(t, 14557, []byte{1}))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := ReplayPCAP(ctx, path, byteDecoder{}, &recordingApplier{}, ReplayOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
