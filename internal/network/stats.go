package network

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
)

// LinkStats counts traffic on one telemetry link.
type LinkStats struct {
	name string

	mu           sync.Mutex
	packets      int64
	bytes        int64
	messages     int64
	decodeErrors int64
	dropped      int64
	reconnects   int64
	lastReset    time.Time
	totals       StatsSnapshot
}

// StatsSnapshot is the cumulative view served by the API.
type StatsSnapshot struct {
	Name         string    `json:"name"`
	Packets      int64     `json:"packets"`
	Bytes        int64     `json:"bytes"`
	Messages     int64     `json:"messages"`
	DecodeErrors int64     `json:"decode_errors"`
	Dropped      int64     `json:"dropped"`
	Reconnects   int64     `json:"reconnects"`
	LastMessage  time.Time `json:"last_message,omitempty"`
}

// NewLinkStats creates counters for the named link.
func NewLinkStats(name string) *LinkStats {
	return &LinkStats{name: name, lastReset: time.Now(), totals: StatsSnapshot{Name: name}}
}

// Name returns the link name.
func (s *LinkStats) Name() string { return s.name }

func (s *LinkStats) AddPacket(bytes int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.packets++
	s.bytes += int64(bytes)
	s.totals.Packets++
	s.totals.Bytes += int64(bytes)
}

func (s *LinkStats) AddMessages(n int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages += int64(n)
	s.totals.Messages += int64(n)
	if n > 0 {
		s.totals.LastMessage = time.Now()
	}
}

func (s *LinkStats) AddDecodeError() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.decodeErrors++
	s.totals.DecodeErrors++
}

func (s *LinkStats) AddDropped() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.dropped++
	s.totals.Dropped++
}

func (s *LinkStats) AddReconnect() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.reconnects++
	s.totals.Reconnects++
}

// Snapshot returns cumulative counters.
func (s *LinkStats) Snapshot() StatsSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.totals
}

// LogStats logs the per-interval rates and resets the interval counters.
func (s *LinkStats) LogStats() {
	s.mu.Lock()
	now := time.Now()
	elapsed := now.Sub(s.lastReset).Seconds()
	packets, bytes, messages := s.packets, s.bytes, s.messages
	decodeErrors, dropped := s.decodeErrors, s.dropped
	s.packets, s.bytes, s.messages, s.decodeErrors, s.dropped = 0, 0, 0, 0, 0
	s.lastReset = now
	s.mu.Unlock()

	if packets == 0 && messages == 0 && dropped == 0 {
		return
	}
	if elapsed <= 0 {
		elapsed = 1
	}

	line := fmt.Sprintf("%s link: %s msgs, %s/s, %.1f msg/s",
		s.name, humanize.Comma(messages), humanize.Bytes(uint64(float64(bytes)/elapsed)), float64(messages)/elapsed)
	if decodeErrors > 0 {
		line += fmt.Sprintf(", %s decode errors", humanize.Comma(decodeErrors))
	}
	if dropped > 0 {
		line += fmt.Sprintf(", %s dropped on forward", humanize.Comma(dropped))
	}
	monitoring.Logf("%s", line)
}

// logStatsEvery logs s on interval until done is closed.
func logStatsEvery(done <-chan struct{}, s *LinkStats, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			s.LogStats()
		}
	}
}
