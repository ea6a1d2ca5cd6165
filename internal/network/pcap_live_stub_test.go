//go:build !pcap
// +build !pcap

package network

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCaptureLive_Disabled(t *testing.T) {
	err := CaptureLive(context.Background(), "eth0", 14557, byteDecoder{}, &recordingApplier{}, nil)
	assert.ErrorIs(t, err, ErrPCAPDisabled)
}
