package emitter

import (
	"context"
	"errors"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type staticSource struct{ rec telemetry.Record }

func (s staticSource) Snapshot() telemetry.Record { return s.rec.Clone() }

type captureSink struct {
	name string
	err  error

	mu    sync.Mutex
	snaps []Snapshot
}

func (c *captureSink) Name() string { return c.name }

func (c *captureSink) Emit(s Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.snaps = append(c.snaps, s)
	return c.err
}

func (c *captureSink) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.snaps)
}

func TestEmit_AllSinksDespiteErrors(t *testing.T) {
	original := monitoring.Logf
	t.Cleanup(func() { monitoring.SetLogger(original) })
	monitoring.SetLogger(nil)

	sysid := 1
	rec := telemetry.NewRecord(telemetry.DefaultHome)
	rec.SysID = &sysid

	failing := &captureSink{name: "file", err: errors.New("disk full")}
	ok := &captureSink{name: "console"}
	e := New(Config{
		Source: staticSource{rec},
		Sinks:  []Sink{failing, ok},
		Host:   func() string { return "10.0.0.5" },
	})

	snap := e.Emit(epoch)
	assert.Equal(t, epoch, snap.Time)
	assert.Equal(t, "10.0.0.5", snap.Host)
	require.NotNil(t, snap.Record.SysID)
	assert.Equal(t, 1, failing.count())
	assert.Equal(t, 1, ok.count())
}

func TestRun_TicksOnInterval(t *testing.T) {
	clock := timeutil.NewMockClock(epoch)
	sink := &captureSink{name: "test"}
	e := New(Config{
		Source: staticSource{telemetry.NewRecord(telemetry.DefaultHome)},
		Sinks:  []Sink{sink},
		Clock:  clock,
		Host:   func() string { return "h" },
	})

	ctx, cancel := context.WithCancel(context.Background())
	errCh := make(chan error, 1)
	go func() { errCh <- e.Run(ctx) }()

	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, time.Second, time.Millisecond)
	assert.Equal(t, 0, sink.count())

	for i := 1; i <= 3; i++ {
		clock.Advance(DefaultInterval)
		want := i
		require.Eventually(t, func() bool { return sink.count() == want }, time.Second, time.Millisecond)
	}

	cancel()
	assert.ErrorIs(t, <-errCh, context.Canceled)
	assert.Equal(t, epoch.Add(3*time.Second), sink.snaps[2].Time)
}

func TestFirstIPv4(t *testing.T) {
	_, loop, _ := net.ParseCIDR("127.0.0.1/8")
	_, v6, _ := net.ParseCIDR("fe80::1/64")
	lan := &net.IPNet{IP: net.IPv4(192, 168, 4, 2), Mask: net.CIDRMask(24, 32)}

	assert.Equal(t, "192.168.4.2", firstIPv4([]net.Addr{loop, v6, lan}))
	assert.Equal(t, UnknownHost, firstIPv4([]net.Addr{loop}))
	assert.Equal(t, UnknownHost, firstIPv4(nil))
}
