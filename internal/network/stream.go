package network

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net"
	"time"

	"github.com/banshee-data/telemetry.report/internal/mavlink"
	"github.com/banshee-data/telemetry.report/internal/mission"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/serialport"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/timeutil"
)

const (
	// DefaultReconnectDelay is the first wait after a stream failure.
	DefaultReconnectDelay = time.Second
	maxReconnectDelay     = 30 * time.Second
	defaultQueueSize      = 64
)

// ErrRequestQueueFull is returned when mission requests outpace the writer.
var ErrRequestQueueFull = errors.New("mission request queue full")

// Dialer opens the stream connection.
type Dialer interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
	String() string
}

// TCPDialer connects to a ground station TCP endpoint.
type TCPDialer struct {
	Address string
	Timeout time.Duration
}

func (d TCPDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	nd := net.Dialer{Timeout: d.Timeout}
	if nd.Timeout <= 0 {
		nd.Timeout = 5 * time.Second
	}
	return nd.DialContext(ctx, "tcp", d.Address)
}

func (d TCPDialer) String() string { return "tcp " + d.Address }

// SerialDialer opens a telemetry radio.
type SerialDialer struct {
	Path    string
	Options serialport.PortOptions
	Opener  serialport.Opener
}

func (d SerialDialer) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	return serialport.Open(d.Path, d.Options, d.Opener)
}

func (d SerialDialer) String() string { return "serial " + d.Path }

// MissionPuller is the part of mission.Puller the stream listener drives.
type MissionPuller interface {
	SetSender(s mission.Sender)
	Start(burst int)
}

// StreamListenerConfig configures a StreamListener.
type StreamListenerConfig struct {
	Dialer  Dialer
	Codec   *mavlink.Codec
	Applier Applier
	Mission MissionPuller
	Burst   int
	Request mavlink.RequestConfig

	// MaxReconnects bounds consecutive reconnect attempts. Zero stops the
	// listener on the first failure; negative retries forever.
	MaxReconnects  int
	ReconnectDelay time.Duration

	QueueSize   int
	LogInterval time.Duration
	Stats       *LinkStats
	Clock       timeutil.Clock
}

// StreamListener reads frames from a connected link, drives the mission
// download over it and reconnects with exponential backoff.
type StreamListener struct {
	cfg   StreamListenerConfig
	stats *LinkStats
	clock timeutil.Clock
}

// NewStreamListener creates a listener; Start dials.
func NewStreamListener(cfg StreamListenerConfig) *StreamListener {
	if cfg.ReconnectDelay <= 0 {
		cfg.ReconnectDelay = DefaultReconnectDelay
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = defaultQueueSize
	}
	if cfg.LogInterval <= 0 {
		cfg.LogInterval = time.Minute
	}
	l := &StreamListener{cfg: cfg, stats: cfg.Stats, clock: cfg.Clock}
	if l.stats == nil {
		l.stats = NewLinkStats(cfg.Dialer.String())
	}
	if l.clock == nil {
		l.clock = timeutil.RealClock{}
	}
	return l
}

// Stats returns the listener's counters.
func (l *StreamListener) Stats() *LinkStats { return l.stats }

// Start runs sessions until ctx is cancelled or reconnects are exhausted.
func (l *StreamListener) Start(ctx context.Context) error {
	done := make(chan struct{})
	defer close(done)
	go logStatsEvery(done, l.stats, l.cfg.LogInterval)

	attempt := 0
	for {
		received, err := l.session(ctx)
		if ctx.Err() != nil {
			log.Printf("Stream listener on %s stopping", l.cfg.Dialer)
			return ctx.Err()
		}
		if received {
			attempt = 0
		}
		log.Printf("Stream listener on %s: %v", l.cfg.Dialer, err)

		if l.cfg.MaxReconnects >= 0 && attempt >= l.cfg.MaxReconnects {
			return fmt.Errorf("stream %s: %w", l.cfg.Dialer, err)
		}
		delay := l.cfg.ReconnectDelay << min(attempt, 16)
		if delay > maxReconnectDelay {
			delay = maxReconnectDelay
		}
		attempt++
		l.stats.AddReconnect()
		log.Printf("Reconnecting to %s in %v (attempt %d)", l.cfg.Dialer, delay, attempt)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-l.clock.After(delay):
		}
	}
}

// session handles one connection. received reports whether any message
// was decoded before the connection failed.
func (l *StreamListener) session(ctx context.Context) (received bool, err error) {
	conn, err := l.cfg.Dialer.Dial(ctx)
	if err != nil {
		return false, fmt.Errorf("dial failed: %w", err)
	}
	defer conn.Close()

	sessionCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	// unblock the read when the session is cancelled
	stop := context.AfterFunc(sessionCtx, func() { conn.Close() })
	defer stop()

	log.Printf("Stream connected to %s", l.cfg.Dialer)

	dec, err := l.cfg.Codec.NewStreamDecoder(&countingReader{r: conn, stats: l.stats})
	if err != nil {
		return false, err
	}

	if l.cfg.Mission != nil {
		w, err := l.cfg.Codec.NewRequestWriter(conn, l.cfg.Request)
		if err != nil {
			return false, err
		}
		q := newRequestQueue(w, l.cfg.QueueSize)
		go q.run(sessionCtx)
		l.cfg.Mission.SetSender(q)
		defer l.cfg.Mission.SetSender(nil)
		l.cfg.Mission.Start(l.cfg.Burst)
	}

	for {
		msg, err := dec.Next()
		if err != nil {
			if mavlink.IsTransportError(err) || sessionCtx.Err() != nil {
				return received, fmt.Errorf("read failed: %w", err)
			}
			l.stats.AddDecodeError()
			monitoring.Debugf("stream %s: skipping frame: %v", l.cfg.Dialer, err)
			continue
		}
		received = true
		l.stats.AddMessages(1)
		l.cfg.Applier.Apply(msg)
	}
}

// requestQueue hands mission requests to a dedicated writer goroutine so
// callers holding the aggregator lock never touch the connection.
type requestQueue struct {
	w  *mavlink.RequestWriter
	ch chan uint16
}

func newRequestQueue(w *mavlink.RequestWriter, size int) *requestQueue {
	return &requestQueue{w: w, ch: make(chan uint16, size)}
}

// RequestItem queues seq without blocking.
func (q *requestQueue) RequestItem(seq uint16) error {
	select {
	case q.ch <- seq:
		return nil
	default:
		return ErrRequestQueueFull
	}
}

func (q *requestQueue) run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			return
		case seq := <-q.ch:
			if err := q.w.WriteRequest(seq); err != nil {
				monitoring.Logf("mission: failed to write request for item %d: %v", seq, err)
			}
		}
	}
}

type countingReader struct {
	r     io.Reader
	stats *LinkStats
}

func (c *countingReader) Read(p []byte) (int, error) {
	n, err := c.r.Read(p)
	if n > 0 {
		c.stats.AddPacket(n)
	}
	return n, err
}

var _ mission.Sender = (*requestQueue)(nil)
var _ Applier = (*telemetry.Aggregator)(nil)
