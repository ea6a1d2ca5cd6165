package db

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// SnapshotRow is a stored snapshot.
type SnapshotRow struct {
	ID        int64            `json:"snapshot_id"`
	SessionID string           `json:"session_id"`
	Time      time.Time        `json:"time"`
	Record    telemetry.Record `json:"record"`
}

// TrackPoint is a positioned sample used for reports and charts.
type TrackPoint struct {
	Time        time.Time `json:"time"`
	Lat         float64   `json:"lat"`
	Lon         float64   `json:"lon"`
	Alt         float64   `json:"alt"`
	Groundspeed float64   `json:"groundspeed"`
	TimeInAir   float64   `json:"time_in_air"`
}

// InsertSnapshot stores one snapshot. The full record is kept as JSON next to
// the columns used for queries.
func (db *DB) InsertSnapshot(sessionID string, snap emitter.Snapshot) (int64, error) {
	rec := snap.Record
	recordJSON, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("failed to encode record: %w", err)
	}
	res, err := db.Exec(
		`INSERT INTO snapshots (
			session_id, ts_unix, sysid, lat, lon, alt, dist_traveled,
			groundspeed, airspeed, vertical_speed, time_in_air, battery_voltage, record_json
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sessionID, unixSeconds(snap.Time), nullInt(rec.SysID),
		nullFloat(rec.Lat), nullFloat(rec.Lon), nullFloat(rec.Alt), nullFloat(rec.DistTraveled),
		rec.Groundspeed, rec.Airspeed, rec.VerticalSpeed, rec.TimeInAir, rec.BatteryVoltage,
		string(recordJSON),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert snapshot: %w", err)
	}
	return res.LastInsertId()
}

// ListSnapshots returns the most recent limit snapshots of a session in time
// order. A limit <= 0 returns all of them.
func (db *DB) ListSnapshots(sessionID string, limit int) ([]SnapshotRow, error) {
	if limit <= 0 {
		limit = -1
	}
	rows, err := db.Query(
		`SELECT snapshot_id, session_id, ts_unix, record_json FROM (
			SELECT snapshot_id, session_id, ts_unix, record_json FROM snapshots
			WHERE session_id = ? ORDER BY ts_unix DESC, snapshot_id DESC LIMIT ?
		) ORDER BY ts_unix ASC, snapshot_id ASC`,
		sessionID, limit,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list snapshots: %w", err)
	}
	defer rows.Close()

	out := []SnapshotRow{}
	for rows.Next() {
		var (
			row        SnapshotRow
			ts         float64
			recordJSON string
		)
		if err := rows.Scan(&row.ID, &row.SessionID, &ts, &recordJSON); err != nil {
			return nil, fmt.Errorf("failed to scan snapshot: %w", err)
		}
		if err := json.Unmarshal([]byte(recordJSON), &row.Record); err != nil {
			return nil, fmt.Errorf("snapshot %d: failed to decode record: %w", row.ID, err)
		}
		row.Time = fromUnixSeconds(ts)
		out = append(out, row)
	}
	return out, rows.Err()
}

// Track returns every snapshot of a session that has a position fix, in time
// order.
func (db *DB) Track(sessionID string) ([]TrackPoint, error) {
	rows, err := db.Query(
		`SELECT ts_unix, lat, lon, alt, groundspeed, time_in_air FROM snapshots
		WHERE session_id = ? AND lat IS NOT NULL AND lon IS NOT NULL
		ORDER BY ts_unix ASC, snapshot_id ASC`,
		sessionID,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to query track: %w", err)
	}
	defer rows.Close()

	track := []TrackPoint{}
	for rows.Next() {
		var (
			p   TrackPoint
			ts  float64
			alt sql.NullFloat64
		)
		if err := rows.Scan(&ts, &p.Lat, &p.Lon, &alt, &p.Groundspeed, &p.TimeInAir); err != nil {
			return nil, fmt.Errorf("failed to scan track point: %w", err)
		}
		p.Time = fromUnixSeconds(ts)
		p.Alt = alt.Float64
		track = append(track, p)
	}
	return track, rows.Err()
}
