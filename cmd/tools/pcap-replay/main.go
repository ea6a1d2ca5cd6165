// Command pcap-replay feeds MAVLink datagrams from a capture file (or, when
// built with -tags=pcap, a live interface) through the aggregator and prints
// the resulting record.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/banshee-data/telemetry.report/internal/console"
	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/geo"
	"github.com/banshee-data/telemetry.report/internal/mavlink"
	"github.com/banshee-data/telemetry.report/internal/network"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

func main() {
	pcapFile := flag.String("pcap", "", "Capture file to replay")
	iface := flag.String("live", "", "Capture live from this interface instead (needs -tags=pcap)")
	port := flag.Int("port", 14557, "UDP destination port to keep (0 keeps all)")
	speed := flag.Float64("speed", 0, "Replay speed multiplier (0 is as fast as possible)")
	homeLat := flag.Float64("home-lat", telemetry.DefaultHome.Lat, "Home latitude")
	homeLon := flag.Float64("home-lon", telemetry.DefaultHome.Lon, "Home longitude")
	dbPath := flag.String("db", "", "Store snapshots into this SQLite database")
	interval := flag.Duration("interval", time.Second, "Snapshot interval when -db is set")
	asJSON := flag.Bool("json", false, "Print the final record as JSON")
	flag.Parse()

	if (*pcapFile == "") == (*iface == "") {
		fmt.Fprintln(os.Stderr, "exactly one of -pcap or -live is required")
		flag.Usage()
		os.Exit(2)
	}

	codec, err := mavlink.NewCodec()
	if err != nil {
		log.Fatalf("failed to create MAVLink codec: %v", err)
	}

	home := geo.Point{Lat: *homeLat, Lon: *homeLon}
	agg := telemetry.NewAggregator(telemetry.Options{Home: &home})
	stats := network.NewLinkStats("replay")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var sink *db.Sink
	var emit *emitter.Emitter
	emitCtx, stopEmit := context.WithCancel(ctx)
	defer stopEmit()
	emitDone := make(chan struct{})
	if *dbPath != "" {
		database, err := db.NewDB(*dbPath)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		sink = db.NewSink(database)
		emit = emitter.New(emitter.Config{
			Source:   agg,
			Sinks:    []emitter.Sink{sink},
			Interval: *interval,
			Host:     func() string { return "replay" },
		})
		go func() {
			defer close(emitDone)
			emit.Run(emitCtx)
		}()
	}

	start := time.Now()
	if *pcapFile != "" {
		n, err := network.ReplayPCAP(ctx, *pcapFile, codec, agg, network.ReplayOptions{
			Port:  *port,
			Speed: *speed,
			Stats: stats,
		})
		if err != nil {
			log.Fatalf("replay failed after %d datagrams: %v", n, err)
		}
		log.Printf("replayed %d datagrams in %s", n, time.Since(start).Round(time.Millisecond))
	} else {
		log.Printf("capturing on %s port %d, interrupt to stop", *iface, *port)
		if err := network.CaptureLive(ctx, *iface, *port, codec, agg, stats); err != nil && err != context.Canceled {
			log.Fatalf("live capture failed: %v", err)
		}
	}
	stats.LogStats()

	// flush one final snapshot so short replays still leave a row
	if emit != nil {
		stopEmit()
		<-emitDone
		emit.Emit(time.Now())
		log.Printf("stored session %s in %s", sink.SessionID(), *dbPath)
	}

	rec := agg.Snapshot()
	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		if err := enc.Encode(rec); err != nil {
			log.Fatalf("failed to encode record: %v", err)
		}
		return
	}
	snap := emitter.Snapshot{Time: time.Now(), Record: rec}
	if err := console.New(os.Stdout).Emit(snap); err != nil {
		log.Fatalf("failed to print record: %v", err)
	}
}
