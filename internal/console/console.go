// Package console prints snapshots to a terminal, colouring fields by name.
package console

import (
	"bufio"
	"fmt"
	"io"
	"strings"
	"sync"

	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

const (
	colorReset = "\033[0m"
	colorRed   = "\033[91m"
	colorGreen = "\033[92m"
	header     = "\033[1;34m--- Telemetry Data ---\033[0m"
)

// Sink writes one block per snapshot to W.
type Sink struct {
	W io.Writer
	// Plain disables escape codes, for output that is not a terminal.
	Plain bool

	mu sync.Mutex
}

// New returns a coloured sink writing to w.
func New(w io.Writer) *Sink {
	return &Sink{W: w}
}

func (s *Sink) Name() string { return "console" }

func (s *Sink) Emit(snap emitter.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	bw := bufio.NewWriter(s.W)
	if s.Plain {
		fmt.Fprintln(bw, "--- Telemetry Data ---")
	} else {
		fmt.Fprintln(bw, header)
	}
	for _, f := range snap.Record.Fields() {
		value := telemetry.FormatValue(f.Value)
		color := fieldColor(f.Name)
		if s.Plain || color == "" {
			fmt.Fprintf(bw, "%-20s: %s\n", f.Name, value)
			continue
		}
		fmt.Fprintf(bw, "%s%-20s%s: %s\n", color, f.Name, colorReset, value)
	}
	return bw.Flush()
}

// fieldColor puts servo outputs in red and distance, altitude and most
// positional names in green.
func fieldColor(name string) string {
	switch {
	case strings.Contains(name, "out"):
		return colorRed
	case strings.Contains(name, "al"), strings.Contains(name, "dist"), strings.Contains(name, "l"):
		return colorGreen
	default:
		return ""
	}
}
