// Package api serves the live record, mission progress and stored history
// over HTTP.
package api

import (
	"errors"
	"fmt"
	"net/http"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/httputil"
	"github.com/banshee-data/telemetry.report/internal/mission"
	"github.com/banshee-data/telemetry.report/internal/network"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/units"
	"github.com/banshee-data/telemetry.report/internal/version"
)

const (
	defaultLimit = 100
	maxLimit     = 10000
)

// RecordSource yields the live record.
type RecordSource interface {
	Snapshot() telemetry.Record
}

// MissionSource reports mission download progress.
type MissionSource interface {
	Status() mission.Status
}

// Store is the history backend. *db.DB implements it.
type Store interface {
	ListSessions(limit int) ([]db.Session, error)
	GetSession(id string) (*db.Session, error)
	LatestSession() (*db.Session, error)
	ListSnapshots(sessionID string, limit int) ([]db.SnapshotRow, error)
	Track(sessionID string) ([]db.TrackPoint, error)
	Waypoints(sessionID string) ([]telemetry.Waypoint, error)
}

// Server holds the handlers' dependencies. Store, Mission and Links are
// optional.
type Server struct {
	records RecordSource
	mission MissionSource
	store   Store
	links   []*network.LinkStats
	units   string
}

// NewServer creates a Server. units sets the default speed units for
// /api/telemetry.
func NewServer(records RecordSource, missions MissionSource, store Store, links []*network.LinkStats, defaultUnits string) *Server {
	return &Server{
		records: records,
		mission: missions,
		store:   store,
		links:   links,
		units:   defaultUnits,
	}
}

func (s *Server) ServeMux() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/telemetry", s.showTelemetry)
	mux.HandleFunc("/api/waypoints", s.showWaypoints)
	mux.HandleFunc("/api/mission", s.showMission)
	mux.HandleFunc("/api/links", s.showLinks)
	mux.HandleFunc("/api/version", s.showVersion)
	mux.HandleFunc("/api/sessions", s.listSessions)
	mux.HandleFunc("/api/snapshots", s.listSnapshots)
	mux.HandleFunc("/charts/altitude", s.altitudeChart)
	mux.HandleFunc("/charts/track", s.trackChart)
	return mux
}

// convertSpeeds rewrites the speed fields of rec into the requested units.
func convertSpeeds(rec telemetry.Record, target string) telemetry.Record {
	rec.Groundspeed = units.ConvertSpeed(rec.Groundspeed, target)
	rec.Airspeed = units.ConvertSpeed(rec.Airspeed, target)
	rec.VerticalSpeed = units.ConvertSpeed(rec.VerticalSpeed, target)
	rec.WindVel = units.ConvertSpeed(rec.WindVel, target)
	return rec
}

func (s *Server) showTelemetry(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	target := s.units
	if u := r.URL.Query().Get("units"); u != "" {
		if !units.IsValid(u) {
			httputil.WriteJSONError(w, http.StatusBadRequest,
				fmt.Sprintf("invalid units %q: expected one of %s", u, units.GetValidUnitsString()))
			return
		}
		target = u
	}
	httputil.WriteJSON(w, http.StatusOK, convertSpeeds(s.records.Snapshot(), target))
}

func (s *Server) showWaypoints(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	rec := s.records.Snapshot()
	httputil.WriteJSON(w, http.StatusOK, map[string]any{
		"waypoints_count": rec.WaypointsCount,
		"waypoints":       rec.Waypoints,
	})
}

func (s *Server) showMission(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	if s.mission == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "no stream channel configured")
		return
	}
	httputil.WriteJSON(w, http.StatusOK, s.mission.Status())
}

func (s *Server) showLinks(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	out := make([]network.StatsSnapshot, 0, len(s.links))
	for _, l := range s.links {
		out = append(out, l.Snapshot())
	}
	httputil.WriteJSON(w, http.StatusOK, out)
}

func (s *Server) showVersion(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) {
		return
	}
	httputil.WriteJSON(w, http.StatusOK, version.Get())
}

func (s *Server) listSessions(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) || !s.requireStore(w) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	sessions, err := s.store.ListSessions(limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list sessions: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, sessions)
}

func (s *Server) listSnapshots(w http.ResponseWriter, r *http.Request) {
	if !httputil.RequireGet(w, r) || !s.requireStore(w) {
		return
	}
	limit, err := httputil.QueryInt(r, "limit", defaultLimit, maxLimit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusBadRequest, err.Error())
		return
	}
	session, ok := s.resolveSession(w, r)
	if !ok {
		return
	}
	rows, err := s.store.ListSnapshots(session.ID, limit)
	if err != nil {
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to list snapshots: %v", err))
		return
	}
	httputil.WriteJSON(w, http.StatusOK, rows)
}

func (s *Server) requireStore(w http.ResponseWriter) bool {
	if s.store == nil {
		httputil.WriteJSONError(w, http.StatusServiceUnavailable, "history database not configured")
		return false
	}
	return true
}

// resolveSession looks up ?session=, defaulting to the latest session.
func (s *Server) resolveSession(w http.ResponseWriter, r *http.Request) (*db.Session, bool) {
	var (
		session *db.Session
		err     error
	)
	if id := r.URL.Query().Get("session"); id != "" {
		session, err = s.store.GetSession(id)
	} else {
		session, err = s.store.LatestSession()
	}
	switch {
	case errors.Is(err, db.ErrSessionNotFound):
		httputil.WriteJSONError(w, http.StatusNotFound, err.Error())
		return nil, false
	case err != nil:
		httputil.WriteJSONError(w, http.StatusInternalServerError, fmt.Sprintf("Failed to load session: %v", err))
		return nil, false
	}
	return session, true
}
