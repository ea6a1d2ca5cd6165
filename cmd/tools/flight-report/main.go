// Command flight-report summarises a session stored by the telemetry daemon
// and optionally plots its track and altitude profile.
package main

import (
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/dustin/go-humanize"

	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/report"
	"github.com/banshee-data/telemetry.report/internal/security"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

func main() {
	dbPath := flag.String("db", "telemetry.db", "SQLite history database")
	sessionID := flag.String("session", "", "Session id (default: most recent)")
	list := flag.Bool("list", false, "List sessions and exit")
	outDir := flag.String("out", "", "Write track.png and altitude.png into this directory")
	threshold := flag.Float64("airborne", telemetry.DefaultAirborneThreshold, "Altitude (m) above which the vehicle counts as airborne")
	asJSON := flag.Bool("json", false, "Print the summary as JSON")
	flag.Parse()

	if _, err := os.Stat(*dbPath); err != nil {
		log.Fatalf("database %s: %v", *dbPath, err)
	}
	database, err := db.OpenDB(*dbPath)
	if err != nil {
		log.Fatalf("failed to open database: %v", err)
	}
	defer database.Close()

	if *list {
		sessions, err := database.ListSessions(0)
		if err != nil {
			log.Fatalf("failed to list sessions: %v", err)
		}
		for _, s := range sessions {
			fmt.Printf("%s  %s  %-15s  %s snapshots\n",
				s.ID, s.StartedAt.Local().Format("2006-01-02 15:04:05"), s.Host, humanize.Comma(int64(s.Snapshots)))
		}
		return
	}

	var session *db.Session
	if *sessionID != "" {
		session, err = database.GetSession(*sessionID)
	} else {
		session, err = database.LatestSession()
	}
	if errors.Is(err, db.ErrSessionNotFound) {
		log.Fatalf("no such session in %s", *dbPath)
	}
	if err != nil {
		log.Fatalf("failed to load session: %v", err)
	}

	track, err := database.Track(session.ID)
	if err != nil {
		log.Fatalf("failed to load track: %v", err)
	}
	summary := report.Summarize(track, session.Home, *threshold)

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(struct {
			Session *db.Session    `json:"session"`
			Summary report.Summary `json:"summary"`
		}{session, summary}); err != nil {
			log.Fatalf("failed to encode summary: %v", err)
		}
	} else {
		fmt.Printf("session            %s (%s)\n", session.ID, humanize.Time(session.StartedAt))
		if err := summary.Write(os.Stdout); err != nil {
			log.Fatalf("failed to write summary: %v", err)
		}
	}

	if *outDir == "" {
		return
	}
	if err := security.ValidateExportPath(*outDir); err != nil {
		log.Fatalf("invalid -out: %v", err)
	}
	if err := os.MkdirAll(*outDir, 0o755); err != nil {
		log.Fatalf("failed to create %s: %v", *outDir, err)
	}
	waypoints, err := database.Waypoints(session.ID)
	if err != nil {
		log.Fatalf("failed to load waypoints: %v", err)
	}
	trackPNG := filepath.Join(*outDir, "track.png")
	if err := report.PlotTrack(trackPNG, track, waypoints, session.Home); err != nil {
		log.Fatalf("failed to plot track: %v", err)
	}
	altPNG := filepath.Join(*outDir, "altitude.png")
	if err := report.PlotAltitude(altPNG, track); err != nil {
		log.Fatalf("failed to plot altitude: %v", err)
	}
	log.Printf("wrote %s and %s", trackPNG, altPNG)
}
