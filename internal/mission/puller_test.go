package mission

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

var epoch = time.Date(2025, 3, 14, 9, 0, 0, 0, time.UTC)

type recordingSender struct {
	mu   sync.Mutex
	seqs []uint16
	err  error
}

func (r *recordingSender) RequestItem(seq uint16) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.seqs = append(r.seqs, seq)
	return r.err
}

func (r *recordingSender) requests() []uint16 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]uint16(nil), r.seqs...)
}

func newTestPuller(t *testing.T) (*Puller, *recordingSender, *timeutil.MockClock) {
	t.Helper()
	monitoring.SetLogger(t.Logf)
	t.Cleanup(func() { monitoring.SetLogger(nil) })

	clock := timeutil.NewMockClock(epoch)
	p := NewPuller(Config{Timeout: 2 * time.Second, MaxRetries: 3, Clock: clock})
	s := &recordingSender{}
	p.SetSender(s)
	return p, s, clock
}

func TestPuller_SequentialDownload(t *testing.T) {
	p, s, clock := newTestPuller(t)
	assert.Equal(t, Idle, p.State())

	p.OnMissionCountKnown(3)
	p.Start(1)
	assert.Equal(t, Requesting, p.State())
	assert.Equal(t, []uint16{0}, s.requests())

	p.OnItemReceived(0)
	assert.Equal(t, 1, p.Pending())
	p.OnItemReceived(1)
	assert.Equal(t, 2, p.Pending())
	p.OnItemReceived(2)

	assert.Equal(t, Done, p.State())
	assert.Equal(t, []uint16{0, 1, 2}, s.requests())

	clock.Advance(time.Minute)
	p.CheckTimeout(clock.Now())
	p.OnItemReceived(2)
	assert.Equal(t, []uint16{0, 1, 2}, s.requests(), "no requests after Done")
}

func TestPuller_BurstBeforeCount(t *testing.T) {
	p, s, _ := newTestPuller(t)

	p.Start(0)
	require.Len(t, s.requests(), DefaultBurst)

	p.OnItemReceived(0)
	p.OnItemReceived(1)
	p.OnItemReceived(2)
	assert.Equal(t, Requesting, p.State(), "waits for the count")
	assert.Equal(t, 3, p.Pending())
	assert.Len(t, s.requests(), DefaultBurst)

	p.OnMissionCountKnown(3)
	assert.Equal(t, Done, p.State())
	assert.Len(t, s.requests(), DefaultBurst)
}

func TestPuller_CountArrivesMidDownload(t *testing.T) {
	p, s, _ := newTestPuller(t)

	p.Start(2)
	p.OnItemReceived(0)
	p.OnItemReceived(1)
	p.OnMissionCountKnown(4)

	assert.Equal(t, Requesting, p.State())
	assert.Equal(t, 2, p.Pending())
	assert.Equal(t, []uint16{0, 1, 2}, s.requests())

	p.OnItemReceived(2)
	p.OnItemReceived(3)
	assert.Equal(t, Done, p.State())
	assert.Equal(t, []uint16{0, 1, 2, 3}, s.requests())
}

func TestPuller_GapRequestsLowestMissing(t *testing.T) {
	p, s, _ := newTestPuller(t)
	p.OnMissionCountKnown(4)
	p.Start(4)

	p.OnItemReceived(0)
	p.OnItemReceived(2)
	p.OnItemReceived(3)

	assert.Equal(t, Requesting, p.State())
	assert.Equal(t, 1, p.Pending())
	assert.Equal(t, []uint16{0, 1, 2, 3, 1, 3, 1}, s.requests())

	p.OnItemReceived(1)
	assert.Equal(t, Done, p.State())
}

func TestPuller_EmptyMission(t *testing.T) {
	p, s, _ := newTestPuller(t)
	p.OnMissionCountKnown(0)
	p.Start(0)

	assert.Equal(t, Done, p.State())
	assert.Empty(t, s.requests())
}

func TestPuller_CountChangeAfterDone(t *testing.T) {
	p, s, _ := newTestPuller(t)
	p.OnMissionCountKnown(1)
	p.Start(1)
	p.OnItemReceived(0)
	require.Equal(t, Done, p.State())

	p.OnMissionCountKnown(5)
	assert.Equal(t, Done, p.State())
	assert.Equal(t, 5, p.Status().Count)
	assert.Equal(t, []uint16{0}, s.requests())
}

func TestPuller_RetryBackoffThenAbandon(t *testing.T) {
	p, s, clock := newTestPuller(t)
	p.Start(1)
	require.Equal(t, []uint16{0}, s.requests())

	clock.Advance(1900 * time.Millisecond)
	p.CheckTimeout(clock.Now())
	assert.Len(t, s.requests(), 1)

	// backoff doubles: 2s, 4s, 8s
	for attempt, wait := range []time.Duration{100 * time.Millisecond, 4 * time.Second, 8 * time.Second} {
		clock.Advance(wait)
		p.CheckTimeout(clock.Now())
		assert.Equal(t, attempt+1, p.Attempts())
		assert.Len(t, s.requests(), attempt+2)
	}

	clock.Advance(15 * time.Second)
	p.CheckTimeout(clock.Now())
	assert.Equal(t, Requesting, p.State())

	clock.Advance(time.Second)
	p.CheckTimeout(clock.Now())
	assert.Equal(t, Abandoned, p.State())
	assert.Equal(t, []uint16{0, 0, 0, 0}, s.requests())

	p.OnItemReceived(0)
	assert.Equal(t, Abandoned, p.State())
}

func TestPuller_ProgressResetsAttempts(t *testing.T) {
	p, s, clock := newTestPuller(t)
	p.OnMissionCountKnown(2)
	p.Start(1)

	clock.Advance(2 * time.Second)
	p.CheckTimeout(clock.Now())
	assert.Equal(t, 1, p.Attempts())

	p.OnItemReceived(0)
	assert.Equal(t, 0, p.Attempts())
	assert.Equal(t, []uint16{0, 0, 1}, s.requests())
}

func TestPuller_SendErrorsAreLogged(t *testing.T) {
	p, s, _ := newTestPuller(t)
	s.err = errors.New("queue full")

	var logs []string
	monitoring.SetLogger(func(format string, v ...interface{}) {
		logs = append(logs, format)
	})

	p.Start(1)
	assert.Equal(t, Requesting, p.State())
	assert.Contains(t, logs, "mission: request for item %d failed: %v")
}

func TestPuller_NoSender(t *testing.T) {
	p := NewPuller(Config{Clock: timeutil.NewMockClock(epoch)})
	assert.NotPanics(t, func() { p.Start(2) })
	assert.Equal(t, Requesting, p.State())
}

func TestPuller_RunRetriesOnTicker(t *testing.T) {
	p, s, clock := newTestPuller(t)
	p.Start(1)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		p.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool { return clock.TickerCount() == 1 }, time.Second, time.Millisecond)
	clock.Advance(2 * time.Second)
	assert.Eventually(t, func() bool { return len(s.requests()) == 2 }, time.Second, time.Millisecond)

	cancel()
	<-done
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "idle", Idle.String())
	assert.Equal(t, "requesting", Requesting.String())
	assert.Equal(t, "done", Done.String())
	assert.Equal(t, "abandoned", Abandoned.String())
	assert.Equal(t, "unknown", State(42).String())
}
