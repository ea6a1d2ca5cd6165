package db

import (
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/banshee-data/telemetry.report/internal/geo"
)

// Session is one run of the ground station.
type Session struct {
	ID        string    `json:"session_id"`
	StartedAt time.Time `json:"started_at"`
	Host      string    `json:"host"`
	SysID     *int      `json:"sysid"`
	Home      geo.Point `json:"home"`
	Snapshots int       `json:"snapshots"`
}

// CreateSession inserts a session with a fresh id.
func (db *DB) CreateSession(host string, home geo.Point, started time.Time) (*Session, error) {
	s := &Session{
		ID:        uuid.NewString(),
		StartedAt: started.UTC(),
		Host:      host,
		Home:      home,
	}
	_, err := db.Exec(
		`INSERT INTO sessions (session_id, started_unix, host, home_lat, home_lon) VALUES (?, ?, ?, ?, ?)`,
		s.ID, unixSeconds(started), host, home.Lat, home.Lon,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return s, nil
}

// SetSessionSysID records the vehicle id once it is known.
func (db *DB) SetSessionSysID(id string, sysid int) error {
	res, err := db.Exec(`UPDATE sessions SET sysid = ? WHERE session_id = ?`, sysid, id)
	if err != nil {
		return fmt.Errorf("failed to update session %s: %w", id, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	return nil
}

const sessionColumns = `s.session_id, s.started_unix, s.host, s.sysid, s.home_lat, s.home_lon,
	(SELECT COUNT(*) FROM snapshots n WHERE n.session_id = s.session_id)`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*Session, error) {
	var (
		s       Session
		started float64
		sysid   sql.NullInt64
	)
	if err := row.Scan(&s.ID, &started, &s.Host, &sysid, &s.Home.Lat, &s.Home.Lon, &s.Snapshots); err != nil {
		return nil, err
	}
	s.StartedAt = fromUnixSeconds(started)
	s.SysID = intPtr(sysid)
	return &s, nil
}

// GetSession returns one session with its snapshot count.
func (db *DB) GetSession(id string) (*Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT `+sessionColumns+` FROM sessions s WHERE s.session_id = ?`, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("session %s: %w", id, ErrSessionNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session %s: %w", id, err)
	}
	return s, nil
}

// LatestSession returns the most recently started session.
func (db *DB) LatestSession() (*Session, error) {
	s, err := scanSession(db.QueryRow(`SELECT ` + sessionColumns + ` FROM sessions s ORDER BY s.started_unix DESC LIMIT 1`))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get latest session: %w", err)
	}
	return s, nil
}

// ListSessions returns up to limit sessions, newest first. A limit <= 0
// returns all of them.
func (db *DB) ListSessions(limit int) ([]Session, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(`SELECT `+sessionColumns+` FROM sessions s ORDER BY s.started_unix DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list sessions: %w", err)
	}
	defer rows.Close()

	sessions := []Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan session: %w", err)
		}
		sessions = append(sessions, *s)
	}
	return sessions, rows.Err()
}
