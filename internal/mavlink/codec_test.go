package mavlink

import (
	"bytes"
	"errors"
	"io"
	"net"
	"testing"

	"github.com/bluenviron/gomavlib/v2/pkg/dialects/ardupilotmega"
	"github.com/bluenviron/gomavlib/v2/pkg/frame"
	"github.com/bluenviron/gomavlib/v2/pkg/message"
	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

func newTestCodec(t *testing.T) *Codec {
	t.Helper()
	c, err := NewCodec()
	require.NoError(t, err)
	return c
}

// encode renders msgs as consecutive MAVLink v2 frames from system 1.
func encode(t *testing.T, c *Codec, msgs ...message.Message) []byte {
	t.Helper()
	var buf bytes.Buffer
	w, err := frame.NewWriter(frame.WriterConf{
		Writer:         &buf,
		DialectRW:      c.rw,
		OutVersion:     frame.V2,
		OutSystemID:    1,
		OutComponentID: 1,
	})
	require.NoError(t, err)
	for _, m := range msgs {
		require.NoError(t, w.WriteMessage(m))
	}
	return buf.Bytes()
}

func TestDecodeDatagram_MultipleFrames(t *testing.T) {
	c := newTestCodec(t)
	data := encode(t, c,
		&ardupilotmega.MessageGlobalPositionInt{Lat: 350766971, Lon: 437900000, Alt: 1500},
		&ardupilotmega.MessageAttitude{Roll: 0.1, Pitch: -0.2, Yaw: 1.5},
	)

	msgs, err := c.DecodeDatagram(data, telemetry.ChannelDatagram)
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	want := []telemetry.Message{
		{
			Channel:     telemetry.ChannelDatagram,
			SystemID:    1,
			ComponentID: 1,
			Payload:     telemetry.Position{Lat: 350766971, Lon: 437900000, Alt: 1500},
		},
		{
			Channel:     telemetry.ChannelDatagram,
			SystemID:    1,
			ComponentID: 1,
			Payload:     telemetry.Attitude{Roll: 0.1, Pitch: -0.2, Yaw: 1.5},
		},
	}
	if diff := cmp.Diff(want, msgs); diff != "" {
		t.Errorf("decoded messages mismatch (-want +got):\n%s", diff)
	}
}

func TestDecodeDatagram_Empty(t *testing.T) {
	c := newTestCodec(t)
	msgs, err := c.DecodeDatagram(nil, telemetry.ChannelDatagram)
	assert.ErrorIs(t, err, ErrNoFrames)
	assert.Empty(t, msgs)
}

func TestDecodeDatagram_Garbage(t *testing.T) {
	c := newTestCodec(t)
	msgs, err := c.DecodeDatagram([]byte{0x01, 0x02, 0x03, 0x04}, telemetry.ChannelDatagram)
	assert.Error(t, err)
	assert.Empty(t, msgs)
}

func TestTranslate_AllKinds(t *testing.T) {
	c := newTestCodec(t)
	data := encode(t, c,
		&ardupilotmega.MessageVfrHud{Airspeed: 12, Groundspeed: 11, Climb: 0.5},
		&ardupilotmega.MessageNavControllerOutput{WpDist: 420},
		&ardupilotmega.MessageMissionCount{TargetSystem: 255, Count: 7},
		&ardupilotmega.MessageMissionCurrent{Seq: 3, Total: 20},
		&ardupilotmega.MessageMissionItemInt{Seq: 2, X: 350000000, Y: 430000000, Z: 50},
		&ardupilotmega.MessageSysStatus{VoltageBattery: 12600, CurrentBattery: -1},
		&ardupilotmega.MessageGpsRawInt{Eph: 121},
		&ardupilotmega.MessageServoOutputRaw{Servo3Raw: 1500, Servo12Raw: 1900},
		&ardupilotmega.MessageWind{Speed: 4.5},
		&ardupilotmega.MessageHeartbeat{},
	)

	msgs, err := c.DecodeDatagram(data, telemetry.ChannelDatagram)
	require.NoError(t, err)
	require.Len(t, msgs, 10)

	assert.Equal(t, telemetry.VFR{Airspeed: 12, Groundspeed: 11, Climb: 0.5}, msgs[0].Payload)
	assert.Equal(t, telemetry.NavOutput{WPDist: 420}, msgs[1].Payload)
	assert.Equal(t, telemetry.MissionCount{Count: 7}, msgs[2].Payload)
	current, ok := msgs[3].Payload.(telemetry.MissionCurrent)
	require.True(t, ok)
	assert.Equal(t, uint16(3), current.Seq)
	assert.Equal(t, uint16(20), current.Total)
	assert.Equal(t, telemetry.MissionItem{Seq: 2, X: 350000000, Y: 430000000, Z: 50}, msgs[4].Payload)
	assert.Equal(t, telemetry.SystemStatus{VoltageBattery: 12600, CurrentBattery: -1}, msgs[5].Payload)
	assert.Equal(t, telemetry.GPSStatus{EPH: 121}, msgs[6].Payload)

	servo, ok := msgs[7].Payload.(telemetry.ServoOutput)
	require.True(t, ok)
	assert.Equal(t, uint16(1500), servo.Raw[2])
	assert.Equal(t, uint16(1900), servo.Raw[11])

	assert.Equal(t, telemetry.Wind{Speed: 4.5}, msgs[8].Payload)
	assert.Nil(t, msgs[9].Payload)
	assert.Equal(t, "unknown", msgs[9].Kind())
}

func TestStreamDecoder(t *testing.T) {
	c := newTestCodec(t)
	data := encode(t, c,
		&ardupilotmega.MessageWind{Speed: 2},
		&ardupilotmega.MessageGpsRawInt{Eph: 90},
	)

	d, err := c.NewStreamDecoder(bytes.NewReader(data))
	require.NoError(t, err)

	msg, err := d.Next()
	require.NoError(t, err)
	assert.Equal(t, telemetry.ChannelStream, msg.Channel)
	assert.Equal(t, uint8(1), msg.SystemID)
	assert.Equal(t, telemetry.Wind{Speed: 2}, msg.Payload)

	msg, err = d.Next()
	require.NoError(t, err)
	assert.Equal(t, telemetry.GPSStatus{EPH: 90}, msg.Payload)

	_, err = d.Next()
	require.Error(t, err)
	assert.True(t, IsTransportError(err))
}

func TestRequestWriter(t *testing.T) {
	c := newTestCodec(t)
	var buf bytes.Buffer
	w, err := c.NewRequestWriter(&buf, RequestConfig{
		TargetSystem:    1,
		TargetComponent: 1,
		SystemID:        255,
		ComponentID:     190,
	})
	require.NoError(t, err)
	require.NoError(t, w.WriteRequest(4))

	r, err := frame.NewReader(frame.ReaderConf{Reader: &buf, DialectRW: c.rw})
	require.NoError(t, err)
	fr, err := r.Read()
	require.NoError(t, err)

	assert.Equal(t, byte(255), fr.GetSystemID())
	assert.Equal(t, byte(190), fr.GetComponentID())
	req, ok := fr.GetMessage().(*ardupilotmega.MessageMissionRequestInt)
	require.True(t, ok)
	assert.Equal(t, uint8(1), req.TargetSystem)
	assert.Equal(t, uint8(1), req.TargetComponent)
	assert.Equal(t, uint16(4), req.Seq)
}

func TestIsTransportError(t *testing.T) {
	assert.False(t, IsTransportError(nil))
	assert.True(t, IsTransportError(io.EOF))
	assert.True(t, IsTransportError(net.ErrClosed))
	assert.True(t, IsTransportError(&net.OpError{Op: "read", Net: "tcp", Err: errors.New("connection reset")}))
	assert.False(t, IsTransportError(errors.New("invalid checksum")))
}
