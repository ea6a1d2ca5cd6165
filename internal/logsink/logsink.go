// Package logsink appends each snapshot as one text line to a log file named
// after the snapshot time, the ground station address and the vehicle id.
package logsink

import (
	"fmt"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/fsutil"
	"github.com/banshee-data/telemetry.report/internal/security"
)

// UnknownSys replaces the vehicle id before the first stream message.
const UnknownSys = "UnknownSys"

const timestampLayout = "20060102_15h04m05s"

// FileName returns Received_<time>_GCSIP_<host>_SYSID_<sysid>_t.log. host is
// reduced to file name safe characters.
func FileName(t time.Time, host string, sysid *int) string {
	host = security.SanitizeFilename(host, emitter.UnknownHost)
	sys := UnknownSys
	if sysid != nil {
		sys = strconv.Itoa(*sysid)
	}
	return fmt.Sprintf("Received_%s_GCSIP_%s_SYSID_%s_t.log", t.Format(timestampLayout), host, sys)
}

// FileSink writes snapshots under Dir.
type FileSink struct {
	Dir string
	FS  fsutil.FileSystem
	// PerRun pins the timestamp in the file name to the first snapshot so a
	// run produces one file per vehicle id instead of one per second.
	PerRun bool

	once    sync.Once
	mkErr   error
	mu      sync.Mutex
	started time.Time
}

// New returns a sink writing to dir on the real filesystem.
func New(dir string, perRun bool) *FileSink {
	return &FileSink{Dir: dir, FS: fsutil.OSFileSystem{}, PerRun: perRun}
}

func (s *FileSink) Name() string { return "file" }

// Emit appends the record's text form to the file for this snapshot.
func (s *FileSink) Emit(snap emitter.Snapshot) error {
	fsys := s.FS
	if fsys == nil {
		fsys = fsutil.OSFileSystem{}
	}
	if s.Dir != "" {
		s.once.Do(func() { s.mkErr = fsys.MkdirAll(s.Dir, 0o755) })
		if s.mkErr != nil {
			return fmt.Errorf("create log directory %s: %w", s.Dir, s.mkErr)
		}
	}

	name := filepath.Join(s.Dir, FileName(s.stamp(snap.Time), snap.Host, snap.Record.SysID))
	if err := fsys.AppendFile(name, []byte(snap.Record.String()+"\n"), 0o644); err != nil {
		return fmt.Errorf("append %s: %w", name, err)
	}
	return nil
}

func (s *FileSink) stamp(t time.Time) time.Time {
	if !s.PerRun {
		return t
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.started.IsZero() {
		s.started = t
	}
	return s.started
}
