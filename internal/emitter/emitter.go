// Package emitter publishes a copy of the telemetry record to every sink on
// a fixed cadence.
package emitter

import (
	"context"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

// DefaultInterval is the snapshot cadence.
const DefaultInterval = time.Second

// Snapshot is one emitted copy of the record.
type Snapshot struct {
	Time   time.Time        `json:"time"`
	Host   string           `json:"host"`
	Record telemetry.Record `json:"record"`
}

// Sink receives snapshots. Emit runs on the emitter goroutine and should
// return promptly.
type Sink interface {
	Name() string
	Emit(Snapshot) error
}

// Source yields consistent record copies.
type Source interface {
	Snapshot() telemetry.Record
}

// Config configures an Emitter.
type Config struct {
	Source   Source
	Sinks    []Sink
	Interval time.Duration
	Clock    timeutil.Clock
	// Host returns the ground station address stamped on each snapshot.
	Host func() string
}

// Emitter ticks and fans snapshots out to sinks.
type Emitter struct {
	source   Source
	sinks    []Sink
	interval time.Duration
	clock    timeutil.Clock
	host     func() string
}

// New creates an Emitter.
func New(cfg Config) *Emitter {
	e := &Emitter{
		source:   cfg.Source,
		sinks:    cfg.Sinks,
		interval: cfg.Interval,
		clock:    cfg.Clock,
		host:     cfg.Host,
	}
	if e.interval <= 0 {
		e.interval = DefaultInterval
	}
	if e.clock == nil {
		e.clock = timeutil.RealClock{}
	}
	if e.host == nil {
		e.host = LocalIP
	}
	return e
}

// Run emits on every tick until ctx is cancelled. The first snapshot is
// emitted one interval after Run starts.
func (e *Emitter) Run(ctx context.Context) error {
	ticker := e.clock.NewTicker(e.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case now := <-ticker.C():
			e.Emit(now)
		}
	}
}

// Emit takes one snapshot and hands it to every sink. Sink errors are logged.
func (e *Emitter) Emit(now time.Time) Snapshot {
	snap := Snapshot{
		Time:   now,
		Host:   e.host(),
		Record: e.source.Snapshot(),
	}
	for _, s := range e.sinks {
		if err := s.Emit(snap); err != nil {
			monitoring.Logf("emitter: sink %s failed: %v", s.Name(), err)
		}
	}
	return snap
}
