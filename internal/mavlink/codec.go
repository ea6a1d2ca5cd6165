// Package mavlink converts MAVLink frames to and from the engine's message
// types using the ardupilotmega dialect.
package mavlink

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net"
	"os"

	"github.com/bluenviron/gomavlib/v2/pkg/dialect"
	"github.com/bluenviron/gomavlib/v2/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v2/pkg/frame"

	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// ErrNoFrames is returned when a datagram holds no decodable frame.
var ErrNoFrames = errors.New("mavlink: no frames in datagram")

// Codec holds the shared dialect tables.
type Codec struct {
	rw *dialect.ReadWriter
}

// NewCodec builds a codec for the ardupilotmega dialect.
func NewCodec() (*Codec, error) {
	rw, err := dialect.NewReadWriter(ardupilotmega.Dialect)
	if err != nil {
		return nil, fmt.Errorf("failed to initialise ardupilotmega dialect: %w", err)
	}
	return &Codec{rw: rw}, nil
}

// DecodeDatagram decodes every frame in one datagram. Frames preceding a
// parse error are returned alongside the error.
func (c *Codec) DecodeDatagram(data []byte, ch telemetry.Channel) ([]telemetry.Message, error) {
	r, err := frame.NewReader(frame.ReaderConf{
		Reader:    bytes.NewReader(data),
		DialectRW: c.rw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frame reader: %w", err)
	}

	var msgs []telemetry.Message
	for {
		fr, err := r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) {
				if len(msgs) == 0 {
					return nil, ErrNoFrames
				}
				return msgs, nil
			}
			return msgs, fmt.Errorf("decode datagram: %w", err)
		}
		msgs = append(msgs, Translate(fr, ch))
	}
}

// StreamDecoder reads consecutive frames from a byte stream.
type StreamDecoder struct {
	r  *frame.Reader
	ch telemetry.Channel
}

// NewStreamDecoder wraps r. Messages are tagged with the stream channel.
func (c *Codec) NewStreamDecoder(r io.Reader) (*StreamDecoder, error) {
	fr, err := frame.NewReader(frame.ReaderConf{
		Reader:    r,
		DialectRW: c.rw,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frame reader: %w", err)
	}
	return &StreamDecoder{r: fr, ch: telemetry.ChannelStream}, nil
}

// Next returns the next decoded message. Errors for which IsTransportError
// reports false are per-frame decode failures and the stream remains usable.
func (d *StreamDecoder) Next() (telemetry.Message, error) {
	fr, err := d.r.Read()
	if err != nil {
		return telemetry.Message{}, err
	}
	return Translate(fr, d.ch), nil
}

// IsTransportError reports whether err came from the underlying connection
// rather than from frame parsing.
func IsTransportError(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF) ||
		errors.Is(err, io.ErrClosedPipe) || errors.Is(err, io.ErrNoProgress) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, os.ErrClosed) {
		return true
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		return true
	}
	var pathErr *os.PathError
	return errors.As(err, &pathErr)
}

// RequestConfig addresses outgoing mission requests.
type RequestConfig struct {
	TargetSystem    uint8
	TargetComponent uint8
	SystemID        uint8
	ComponentID     uint8
}

// RequestWriter encodes MISSION_REQUEST_INT frames onto a stream.
type RequestWriter struct {
	w   *frame.Writer
	cfg RequestConfig
}

// NewRequestWriter creates a MAVLink v2 writer identifying as the ground station.
func (c *Codec) NewRequestWriter(w io.Writer, cfg RequestConfig) (*RequestWriter, error) {
	fw, err := frame.NewWriter(frame.WriterConf{
		Writer:         w,
		DialectRW:      c.rw,
		OutVersion:     frame.V2,
		OutSystemID:    cfg.SystemID,
		OutComponentID: cfg.ComponentID,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create frame writer: %w", err)
	}
	return &RequestWriter{w: fw, cfg: cfg}, nil
}

// WriteRequest sends one MISSION_REQUEST_INT for seq.
func (w *RequestWriter) WriteRequest(seq uint16) error {
	return w.w.WriteMessage(&ardupilotmega.MessageMissionRequestInt{
		TargetSystem:    w.cfg.TargetSystem,
		TargetComponent: w.cfg.TargetComponent,
		Seq:             seq,
	})
}
