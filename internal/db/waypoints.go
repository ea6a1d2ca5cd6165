package db

import (
	"fmt"

	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// ReplaceWaypoints stores the mission for a session, replacing what was there.
func (db *DB) ReplaceWaypoints(sessionID string, waypoints []telemetry.Waypoint) (err error) {
	tx, err := db.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	if _, err = tx.Exec(`DELETE FROM waypoints WHERE session_id = ?`, sessionID); err != nil {
		return fmt.Errorf("failed to clear waypoints: %w", err)
	}
	for _, wp := range waypoints {
		if _, err = tx.Exec(
			`INSERT INTO waypoints (session_id, seq, lat, lon, alt) VALUES (?, ?, ?, ?, ?)`,
			sessionID, wp.Seq, wp.Latitude, wp.Longitude, wp.Altitude,
		); err != nil {
			return fmt.Errorf("failed to insert waypoint %d: %w", wp.Seq, err)
		}
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit waypoints: %w", err)
	}
	return nil
}

// Waypoints returns the stored mission ordered by seq.
func (db *DB) Waypoints(sessionID string) ([]telemetry.Waypoint, error) {
	rows, err := db.Query(`SELECT seq, lat, lon, alt FROM waypoints WHERE session_id = ? ORDER BY seq`, sessionID)
	if err != nil {
		return nil, fmt.Errorf("failed to query waypoints: %w", err)
	}
	defer rows.Close()

	out := []telemetry.Waypoint{}
	for rows.Next() {
		var wp telemetry.Waypoint
		if err := rows.Scan(&wp.Seq, &wp.Latitude, &wp.Longitude, &wp.Altitude); err != nil {
			return nil, fmt.Errorf("failed to scan waypoint: %w", err)
		}
		out = append(out, wp)
	}
	return out, rows.Err()
}
