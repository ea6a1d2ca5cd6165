package db

import (
	"slices"
	"sync"

	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// Sink writes emitted snapshots into a session created on the first Emit.
type Sink struct {
	db *DB

	mu        sync.Mutex
	session   *Session
	waypoints []telemetry.Waypoint
}

func NewSink(db *DB) *Sink {
	return &Sink{db: db}
}

func (s *Sink) Name() string { return "sqlite" }

func (s *Sink) Emit(snap emitter.Snapshot) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.session == nil {
		session, err := s.db.CreateSession(snap.Host, snap.Record.Home, snap.Time)
		if err != nil {
			return err
		}
		s.session = session
	}
	if s.session.SysID == nil && snap.Record.SysID != nil {
		if err := s.db.SetSessionSysID(s.session.ID, *snap.Record.SysID); err != nil {
			return err
		}
		sysid := *snap.Record.SysID
		s.session.SysID = &sysid
	}

	if _, err := s.db.InsertSnapshot(s.session.ID, snap); err != nil {
		return err
	}

	if !slices.Equal(s.waypoints, snap.Record.Waypoints) {
		if err := s.db.ReplaceWaypoints(s.session.ID, snap.Record.Waypoints); err != nil {
			return err
		}
		s.waypoints = slices.Clone(snap.Record.Waypoints)
	}
	return nil
}

// SessionID returns the current session id, or "" before the first Emit.
func (s *Sink) SessionID() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.session == nil {
		return ""
	}
	return s.session.ID
}
