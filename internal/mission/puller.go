// Package mission drives the MAVLink mission download: it requests items one
// at a time over the stream channel and tracks which have arrived.
package mission

import (
	"context"
	"sync"
	"time"

	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

const (
	// DefaultBurst is the number of items requested before the count is known.
	DefaultBurst = 14
	// DefaultTimeout is the wait before the first re-request of a pending item.
	DefaultTimeout = 2 * time.Second
	// DefaultMaxRetries bounds re-requests of a single item.
	DefaultMaxRetries = 5
	// DefaultCheckInterval is how often Run checks for an overdue item.
	DefaultCheckInterval = 250 * time.Millisecond
)

// State is the puller's position in the download.
type State int

const (
	Idle State = iota
	Requesting
	Done
	Abandoned
)

func (s State) String() string {
	switch s {
	case Idle:
		return "idle"
	case Requesting:
		return "requesting"
	case Done:
		return "done"
	case Abandoned:
		return "abandoned"
	default:
		return "unknown"
	}
}

// MarshalText lets State render by name in JSON.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// Sender transmits a MISSION_REQUEST_INT for one item. Implementations must
// not block; the stream listener queues the request for its writer.
type Sender interface {
	RequestItem(seq uint16) error
}

// Config tunes retry behaviour. Zero values select defaults.
type Config struct {
	Timeout       time.Duration
	MaxRetries    int
	CheckInterval time.Duration
	Clock         timeutil.Clock
}

// Status is a point-in-time view of the puller.
type Status struct {
	State    State `json:"state"`
	Pending  int   `json:"pending"`
	Count    int   `json:"count"`
	Received int   `json:"received"`
	Attempts int   `json:"attempts"`
}

// Puller requests mission items in order and retries lost requests with
// exponential backoff.
type Puller struct {
	mu sync.Mutex

	timeout       time.Duration
	maxRetries    int
	checkInterval time.Duration
	clock         timeutil.Clock

	sender   Sender
	state    State
	pending  int
	count    int // -1 until known
	received map[int]bool
	sent     map[int]bool
	attempts int
	lastSent time.Time
}

// NewPuller creates an idle puller.
func NewPuller(cfg Config) *Puller {
	p := &Puller{
		timeout:       cfg.Timeout,
		maxRetries:    cfg.MaxRetries,
		checkInterval: cfg.CheckInterval,
		clock:         cfg.Clock,
		count:         -1,
		received:      make(map[int]bool),
		sent:          make(map[int]bool),
	}
	if p.timeout <= 0 {
		p.timeout = DefaultTimeout
	}
	if p.maxRetries <= 0 {
		p.maxRetries = DefaultMaxRetries
	}
	if p.checkInterval <= 0 {
		p.checkInterval = DefaultCheckInterval
	}
	if p.clock == nil {
		p.clock = timeutil.RealClock{}
	}
	return p
}

// SetSender binds the puller to the current stream connection.
func (p *Puller) SetSender(s Sender) {
	p.mu.Lock()
	p.sender = s
	p.mu.Unlock()
}

// Start begins a download by requesting items 0..burst-1. Items already held
// are forgotten; a count learned earlier is kept and caps the burst.
func (p *Puller) Start(burst int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if burst <= 0 {
		burst = DefaultBurst
	}
	if p.count >= 0 && burst > p.count {
		burst = p.count
	}

	p.received = make(map[int]bool)
	p.sent = make(map[int]bool)
	p.pending = 0
	p.attempts = 0
	p.lastSent = p.clock.Now()

	if p.count == 0 {
		p.state = Done
		monitoring.Logf("mission: vehicle reports an empty mission")
		return
	}

	p.state = Requesting
	for seq := 0; seq < burst; seq++ {
		p.send(seq)
	}
}

// OnMissionCountKnown records the vehicle's item count.
func (p *Puller) OnMissionCountKnown(total int) {
	if total < 0 {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.count != total {
		monitoring.Debugf("mission: count %d", total)
	}
	p.count = total
	if p.state != Requesting {
		return
	}
	for seq := range p.received {
		if seq >= total {
			delete(p.received, seq)
		}
	}
	if p.complete() {
		p.finish()
		return
	}
	// items inside the burst are already in flight
	if next := p.lowestMissing(); next != p.pending || !p.sent[next] {
		p.requestNext(next)
	}
}

// OnItemReceived marks seq as held and requests the next item.
func (p *Puller) OnItemReceived(seq int) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Requesting || seq < 0 {
		return
	}
	if p.count >= 0 && seq >= p.count {
		return
	}
	p.received[seq] = true

	if p.count < 0 {
		// wait for MISSION_COUNT before deciding what comes next
		if seq == p.pending {
			p.pending = p.lowestMissing()
			p.attempts = 0
			p.lastSent = p.clock.Now()
		}
		return
	}
	if p.complete() {
		p.finish()
		return
	}

	next := -1
	for s := seq + 1; s < p.count; s++ {
		if !p.received[s] {
			next = s
			break
		}
	}
	if next < 0 {
		next = p.lowestMissing()
	}
	p.requestNext(next)
}

// CheckTimeout re-requests the pending item once its backoff has elapsed,
// and abandons the download after MaxRetries re-requests of the same item.
func (p *Puller) CheckTimeout(now time.Time) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.state != Requesting {
		return
	}
	wait := p.timeout << min(p.attempts, 16)
	if now.Sub(p.lastSent) < wait {
		return
	}
	if p.attempts >= p.maxRetries {
		p.state = Abandoned
		monitoring.Logf("mission: abandoning download, item %d unanswered after %d retries", p.pending, p.attempts)
		return
	}
	p.attempts++
	p.lastSent = now
	monitoring.Logf("mission: item %d overdue, retry %d/%d", p.pending, p.attempts, p.maxRetries)
	p.send(p.pending)
}

// Run drives CheckTimeout until ctx is cancelled.
func (p *Puller) Run(ctx context.Context) {
	ticker := p.clock.NewTicker(p.checkInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C():
			p.CheckTimeout(now)
		}
	}
}

// State returns the current state.
func (p *Puller) State() State {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.state
}

// Pending returns the sequence number the puller is waiting for.
func (p *Puller) Pending() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// Attempts returns the number of re-requests made for the pending item.
func (p *Puller) Attempts() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.attempts
}

// Status returns a snapshot of the puller for reporting.
func (p *Puller) Status() Status {
	p.mu.Lock()
	defer p.mu.Unlock()
	return Status{
		State:    p.state,
		Pending:  p.pending,
		Count:    p.count,
		Received: len(p.received),
		Attempts: p.attempts,
	}
}

func (p *Puller) complete() bool {
	if p.count < 0 {
		return false
	}
	for s := 0; s < p.count; s++ {
		if !p.received[s] {
			return false
		}
	}
	return true
}

func (p *Puller) lowestMissing() int {
	s := 0
	for p.received[s] {
		s++
	}
	return s
}

func (p *Puller) finish() {
	p.state = Done
	p.attempts = 0
	monitoring.Logf("mission: download complete, %d items", p.count)
}

func (p *Puller) requestNext(seq int) {
	p.pending = seq
	p.attempts = 0
	p.lastSent = p.clock.Now()
	p.send(seq)
}

func (p *Puller) send(seq int) {
	p.sent[seq] = true
	if p.sender == nil {
		monitoring.Logf("mission: no stream connection, dropping request for item %d", seq)
		return
	}
	monitoring.Debugf("mission: requesting item %d", seq)
	if err := p.sender.RequestItem(uint16(seq)); err != nil {
		monitoring.Logf("mission: request for item %d failed: %v", seq, err)
	}
}
