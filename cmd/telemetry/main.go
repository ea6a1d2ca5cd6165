package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/banshee-data/telemetry.report/internal/api"
	"github.com/banshee-data/telemetry.report/internal/broadcast"
	"github.com/banshee-data/telemetry.report/internal/config"
	"github.com/banshee-data/telemetry.report/internal/console"
	"github.com/banshee-data/telemetry.report/internal/db"
	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/logsink"
	"github.com/banshee-data/telemetry.report/internal/mavlink"
	"github.com/banshee-data/telemetry.report/internal/mission"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/mqttsink"
	"github.com/banshee-data/telemetry.report/internal/network"
	"github.com/banshee-data/telemetry.report/internal/serialport"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
	"github.com/banshee-data/telemetry.report/internal/units"
	"github.com/banshee-data/telemetry.report/internal/version"
)

var (
	configFile  = flag.String("config", "", "Path to a JSON or YAML config file")
	listen      = flag.String("listen", config.DefaultHTTPAddr, "HTTP listen address (empty disables the API)")
	udpPrimary  = flag.String("udp", config.DefaultUDPAddrPrimary, "Primary UDP listen address")
	udpExtra    = flag.String("udp2", config.DefaultUDPAddrSecondary, "Secondary UDP listen address")
	streamAddr  = flag.String("stream", config.DefaultStreamAddr, "TCP address of the MAVLink stream")
	serialPath  = flag.String("serial", "", "Serial device for the MAVLink stream (overrides -stream)")
	logDir      = flag.String("log-dir", config.DefaultLogDir, "Directory for snapshot log files")
	dbPath      = flag.String("db", "", "SQLite history database (empty disables)")
	mqttBroker  = flag.String("mqtt", "", "MQTT broker URL, e.g. tcp://localhost:1883 (empty disables)")
	forwardAddr = flag.String("forward", "", "Relay raw UDP datagrams to this host:port")
	quiet       = flag.Bool("quiet", false, "Do not print snapshots to the console")
	verbose     = flag.Bool("verbose", false, "Log every skipped frame and mission request")
	speedUnits  = flag.String("units", units.MPS, "Default speed units for /api/telemetry")
	listPorts   = flag.Bool("list-ports", false, "List serial ports and exit")
	showVersion = flag.Bool("version", false, "Print version and exit")
)

// applyFlags copies explicitly set flags over the loaded configuration.
func applyFlags(fs *flag.FlagSet, cfg *config.Config) {
	udp := cfg.GetUDPListen()
	fs.Visit(func(f *flag.Flag) {
		v := f.Value.String()
		switch f.Name {
		case "listen":
			cfg.HTTPListen = &v
		case "udp":
			udp[0] = v
			cfg.UDPListen = udp[:]
		case "udp2":
			udp[1] = v
			cfg.UDPListen = udp[:]
		case "stream":
			cfg.StreamAddr = &v
		case "serial":
			cfg.SerialPort = &v
		case "log-dir":
			cfg.LogDir = &v
		case "db":
			cfg.DBPath = &v
		case "mqtt":
			cfg.MQTTBroker = &v
		case "forward":
			cfg.ForwardAddr = &v
		case "quiet":
			on := v != "true"
			cfg.Console = &on
		}
	})
}

func banner() string {
	return "telemetry " + version.Get().String()
}

func loadConfig() (*config.Config, error) {
	cfg := &config.Config{}
	if *configFile != "" {
		var err error
		if cfg, err = config.Load(*configFile); err != nil {
			return nil, err
		}
	}
	applyFlags(flag.CommandLine, cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func main() {
	flag.Parse()

	if *showVersion {
		fmt.Println(banner())
		return
	}
	if *listPorts {
		ports, err := serialport.ListPorts()
		if err != nil {
			log.Fatalf("failed to list serial ports: %v", err)
		}
		for _, p := range ports {
			fmt.Println(p)
		}
		return
	}
	if !units.IsValid(*speedUnits) {
		log.Fatalf("invalid -units %q, valid: %s", *speedUnits, units.GetValidUnitsString())
	}
	monitoring.SetVerbose(*verbose)

	cfg, err := loadConfig()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	log.Print(banner())

	codec, err := mavlink.NewCodec()
	if err != nil {
		log.Fatalf("failed to create MAVLink codec: %v", err)
	}

	hub := broadcast.NewHub()
	defer hub.Close()

	home := cfg.GetHome()
	threshold := cfg.GetAirborneThreshold()
	updates := []telemetry.UpdateFunc{hub.PublishRecord}

	var mq *mqttsink.Sink
	if broker := cfg.GetMQTTBroker(); broker != "" {
		mq, err = mqttsink.Connect(mqttsink.Config{Broker: broker, Topic: cfg.GetMQTTTopic()})
		if err != nil {
			log.Fatalf("failed to connect to MQTT broker: %v", err)
		}
		defer mq.Close()
		updates = append(updates, mq.PublishRecord)
	}

	puller := mission.NewPuller(mission.Config{
		Timeout:    cfg.GetRequestTimeout(),
		MaxRetries: cfg.GetMaxRetries(),
	})
	agg := telemetry.NewAggregator(telemetry.Options{
		Home:              &home,
		AirborneThreshold: &threshold,
		Mission:           puller,
		OnUpdate: func(rec telemetry.Record) {
			for _, f := range updates {
				f(rec)
			}
		},
	})

	// sinks run in order on the emitter goroutine
	sinks := []emitter.Sink{logsink.New(cfg.GetLogDir(), cfg.GetLogPerRun())}
	if cfg.GetConsole() {
		sinks = append(sinks, console.New(os.Stdout))
	}

	var store api.Store
	var database *db.DB
	if path := cfg.GetDBPath(); path != "" {
		database, err = db.NewDB(path)
		if err != nil {
			log.Fatalf("failed to open database: %v", err)
		}
		defer database.Close()
		store = database
		sinks = append(sinks, db.NewSink(database))
	}
	if mq != nil {
		sinks = append(sinks, mq)
	}

	var wg sync.WaitGroup
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var forwarder *network.PacketForwarder
	if addr := cfg.GetForwardAddr(); addr != "" {
		forwarder, err = network.NewPacketForwarder(addr, network.NewLinkStats("forward "+addr), time.Minute)
		if err != nil {
			log.Fatalf("failed to create forwarder: %v", err)
		}
		defer forwarder.Close()
		forwarder.Start(ctx)
	}

	var links []*network.LinkStats

	for _, addr := range cfg.GetUDPListen() {
		if addr == "" {
			continue
		}
		l := network.NewUDPListener(network.UDPListenerConfig{
			Address:   addr,
			RcvBuf:    cfg.GetUDPRcvBuf(),
			Decoder:   codec,
			Applier:   agg,
			Forwarder: forwarder,
		})
		links = append(links, l.Stats())

		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := l.Start(ctx); err != nil && err != context.Canceled {
				log.Printf("UDP listener %s error: %v", addr, err)
			}
			log.Printf("UDP listener %s terminated", addr)
		}()
	}

	var dialer network.Dialer = network.TCPDialer{Address: cfg.GetStreamAddr(), Timeout: 5 * time.Second}
	if port := cfg.GetSerialPort(); port != "" {
		dialer = network.SerialDialer{Path: port, Options: cfg.GetSerialOptions()}
	}
	stream := network.NewStreamListener(network.StreamListenerConfig{
		Dialer:  dialer,
		Codec:   codec,
		Applier: agg,
		Mission: puller,
		Burst:   cfg.GetMissionBurst(),
		Request: mavlink.RequestConfig{
			TargetSystem:    cfg.GetTargetSystem(),
			TargetComponent: cfg.GetTargetComponent(),
			SystemID:        cfg.GetGCSSystem(),
			ComponentID:     cfg.GetGCSComponent(),
		},
		MaxReconnects:  cfg.GetMaxReconnects(),
		ReconnectDelay: cfg.GetReconnectDelay(),
	})
	links = append(links, stream.Stats())

	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := stream.Start(ctx); err != nil && err != context.Canceled {
			log.Printf("stream listener error: %v", err)
		}
		log.Printf("stream listener terminated")
	}()

	wg.Add(1)
	go func() {
		defer wg.Done()
		puller.Run(ctx)
		log.Printf("mission puller terminated")
	}()

	emit := emitter.New(emitter.Config{
		Source:   agg,
		Sinks:    sinks,
		Interval: cfg.GetSnapshotInterval(),
		Host:     emitter.LocalIP,
	})
	wg.Add(1)
	go func() {
		defer wg.Done()
		if err := emit.Run(ctx); err != nil && err != context.Canceled {
			log.Printf("emitter error: %v", err)
		}
		log.Printf("emitter terminated")
	}()

	if addr := cfg.GetHTTPListen(); addr != "" {
		wg.Add(1)
		go func() {
			defer wg.Done()

			mux := api.NewServer(agg, puller, store, links, *speedUnits).ServeMux()
			hub.AttachAdminRoutes(mux)
			if database != nil {
				if err := database.AttachAdminRoutes(mux); err != nil {
					log.Printf("failed to attach database admin routes: %v", err)
				}
			}

			server := &http.Server{
				Addr:    addr,
				Handler: api.LoggingMiddleware(mux),
			}

			go func() {
				if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					log.Fatalf("failed to start server: %v", err)
				}
			}()
			log.Printf("HTTP API listening on %s", addr)

			<-ctx.Done()
			log.Println("shutting down HTTP server...")

			shutdownCtx, cancel := context.WithTimeout(context.Background(), 1*time.Second)
			defer cancel()

			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Printf("HTTP server shutdown error: %v", err)
				if err := server.Close(); err != nil {
					log.Printf("HTTP server force close error: %v", err)
				}
			}
			log.Printf("HTTP server routine stopped")
		}()
	}

	wg.Wait()
	log.Printf("Graceful shutdown complete")
}
