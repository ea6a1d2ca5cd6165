package serialport

import (
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.bug.st/serial"
)

func TestPortOptions_NormalizeDefaults(t *testing.T) {
	opts, err := PortOptions{}.Normalize()
	require.NoError(t, err)
	assert.Equal(t, PortOptions{BaudRate: DefaultBaudRate, DataBits: 8, StopBits: 1, Parity: "N"}, opts)
}

func TestPortOptions_NormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		opts PortOptions
	}{
		{"data bits", PortOptions{DataBits: 9}},
		{"stop bits", PortOptions{StopBits: 3}},
		{"parity", PortOptions{Parity: "mark"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := tt.opts.Normalize()
			assert.Error(t, err)
		})
	}
}

func TestPortOptions_SerialMode(t *testing.T) {
	mode, err := PortOptions{BaudRate: 115200, StopBits: 2, Parity: "even"}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, 115200, mode.BaudRate)
	assert.Equal(t, 8, mode.DataBits)
	assert.Equal(t, serial.TwoStopBits, mode.StopBits)
	assert.Equal(t, serial.EvenParity, mode.Parity)

	mode, err = PortOptions{}.SerialMode()
	require.NoError(t, err)
	assert.Equal(t, serial.OneStopBit, mode.StopBits)
	assert.Equal(t, serial.NoParity, mode.Parity)
}

type fakePort struct {
	serial.Port
	timeout    time.Duration
	timeoutErr error
	closed     bool
}

func (f *fakePort) SetReadTimeout(t time.Duration) error {
	f.timeout = t
	return f.timeoutErr
}

func (f *fakePort) Close() error {
	f.closed = true
	return nil
}

func TestOpen(t *testing.T) {
	port := &fakePort{}
	var gotPath string
	var gotMode *serial.Mode
	opener := func(path string, mode *serial.Mode) (serial.Port, error) {
		gotPath, gotMode = path, mode
		return port, nil
	}

	rwc, err := Open("/dev/ttyUSB0", PortOptions{}, opener)
	require.NoError(t, err)
	assert.Same(t, port, rwc)
	assert.Equal(t, "/dev/ttyUSB0", gotPath)
	assert.Equal(t, DefaultBaudRate, gotMode.BaudRate)
	assert.Equal(t, serial.NoTimeout, port.timeout)
}

func TestOpen_Errors(t *testing.T) {
	_, err := Open("/dev/ttyUSB0", PortOptions{Parity: "x"}, nil)
	assert.Error(t, err)

	_, err = Open("/dev/ttyUSB0", PortOptions{}, func(string, *serial.Mode) (serial.Port, error) {
		return nil, errors.New("no such device")
	})
	assert.ErrorContains(t, err, "no such device")

	port := &fakePort{timeoutErr: errors.New("ioctl")}
	_, err = Open("/dev/ttyUSB0", PortOptions{}, func(string, *serial.Mode) (serial.Port, error) {
		return port, nil
	})
	assert.Error(t, err)
	assert.True(t, port.closed)
}
