// Package testutil provides fixtures shared by tests that need a populated
// history database.
package testutil

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

// Epoch is the time of the first snapshot written by SeedSession.
var Epoch = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

// Ptr returns a pointer to v.
func Ptr[T any](v T) *T { return &v }

// NewDB opens a migrated database in a temp dir and closes it on cleanup.
func NewDB(t testing.TB) *db.DB {
	t.Helper()
	store, err := db.NewDB(filepath.Join(t.TempDir(), "telemetry.db"))
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

// SeedSession writes n snapshots one second apart through a db.Sink and
// returns the session id. record builds the i-th record.
func SeedSession(t testing.TB, store *db.DB, n int, record func(i int) telemetry.Record) string {
	t.Helper()
	sink := db.NewSink(store)
	for i := 0; i < n; i++ {
		snap := emitter.Snapshot{
			Time:   Epoch.Add(time.Duration(i) * time.Second),
			Host:   "127.0.0.1",
			Record: record(i),
		}
		if err := sink.Emit(snap); err != nil {
			t.Fatalf("failed to seed snapshot %d: %v", i, err)
		}
	}
	return sink.SessionID()
}

// ClimbingRecord is a record function for SeedSession: the vehicle moves
// north from the default home about 111 m and climbs 10 m per sample.
func ClimbingRecord(i int) telemetry.Record {
	rec := telemetry.NewRecord(telemetry.DefaultHome)
	rec.SysID = Ptr(1)
	rec.Lat = Ptr(telemetry.DefaultHome.Lat + float64(i)*0.001)
	rec.Lon = Ptr(telemetry.DefaultHome.Lon)
	rec.Alt = Ptr(float64(i * 10))
	rec.Groundspeed = 10
	return rec
}
