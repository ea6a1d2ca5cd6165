// Package config loads the ground station configuration from JSON or YAML.
// Every field is optional; the Get* accessors supply defaults.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/banshee-data/telemetry.report/internal/geo"
	"github.com/banshee-data/telemetry.report/internal/mission"
	"github.com/banshee-data/telemetry.report/internal/serialport"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

const (
	DefaultUDPAddrPrimary   = ":14557"
	DefaultUDPAddrSecondary = ":14558"
	DefaultStreamAddr       = "localhost:14550"
	DefaultHTTPAddr         = "localhost:8090"
	DefaultLogDir           = "."
	DefaultTargetSystem     = 1
	DefaultTargetComponent  = 1
	DefaultGCSSystem        = 255
	DefaultGCSComponent     = 190
	DefaultReconnectDelay   = time.Second
	DefaultMQTTTopic        = "telemetry"

	maxFileSize = 1 * 1024 * 1024
)

// Config is the root configuration.
type Config struct {
	HomeLat           *float64 `json:"home_lat,omitempty" yaml:"home_lat,omitempty"`
	HomeLon           *float64 `json:"home_lon,omitempty" yaml:"home_lon,omitempty"`
	AirborneThreshold *float64 `json:"airborne_threshold,omitempty" yaml:"airborne_threshold,omitempty"`
	SnapshotInterval  *string  `json:"snapshot_interval,omitempty" yaml:"snapshot_interval,omitempty"` // e.g. "1s"

	// Datagram channels. An empty string disables a channel.
	UDPListen []string `json:"udp_listen,omitempty" yaml:"udp_listen,omitempty"`
	UDPRcvBuf *int     `json:"udp_rcvbuf,omitempty" yaml:"udp_rcvbuf,omitempty"`

	// Stream channel: SerialPort wins over StreamAddr when both are set.
	StreamAddr    *string                 `json:"stream_addr,omitempty" yaml:"stream_addr,omitempty"`
	SerialPort    *string                 `json:"serial_port,omitempty" yaml:"serial_port,omitempty"`
	SerialOptions *serialport.PortOptions `json:"serial_options,omitempty" yaml:"serial_options,omitempty"`

	MissionBurst    *int    `json:"mission_burst,omitempty" yaml:"mission_burst,omitempty"`
	RequestTimeout  *string `json:"request_timeout,omitempty" yaml:"request_timeout,omitempty"`
	MaxRetries      *int    `json:"max_retries,omitempty" yaml:"max_retries,omitempty"`
	TargetSystem    *int    `json:"target_system,omitempty" yaml:"target_system,omitempty"`
	TargetComponent *int    `json:"target_component,omitempty" yaml:"target_component,omitempty"`
	GCSSystem       *int    `json:"gcs_system,omitempty" yaml:"gcs_system,omitempty"`
	GCSComponent    *int    `json:"gcs_component,omitempty" yaml:"gcs_component,omitempty"`

	// MaxReconnects < 0 retries forever, 0 never reconnects.
	MaxReconnects  *int    `json:"max_reconnects,omitempty" yaml:"max_reconnects,omitempty"`
	ReconnectDelay *string `json:"reconnect_delay,omitempty" yaml:"reconnect_delay,omitempty"`

	LogDir    *string `json:"log_dir,omitempty" yaml:"log_dir,omitempty"`
	LogPerRun *bool   `json:"log_per_run,omitempty" yaml:"log_per_run,omitempty"`
	Console   *bool   `json:"console,omitempty" yaml:"console,omitempty"`
	DBPath    *string `json:"db_path,omitempty" yaml:"db_path,omitempty"`

	MQTTBroker *string `json:"mqtt_broker,omitempty" yaml:"mqtt_broker,omitempty"`
	MQTTTopic  *string `json:"mqtt_topic,omitempty" yaml:"mqtt_topic,omitempty"`

	ForwardAddr *string `json:"forward_addr,omitempty" yaml:"forward_addr,omitempty"`
	HTTPListen  *string `json:"http_listen,omitempty" yaml:"http_listen,omitempty"`
}

// Load reads a .json, .yaml or .yml file. Fields omitted from the file keep
// their defaults.
func Load(path string) (*Config, error) {
	cleanPath := filepath.Clean(path)
	ext := filepath.Ext(cleanPath)
	if ext != ".json" && ext != ".yaml" && ext != ".yml" {
		return nil, fmt.Errorf("config file must have .json, .yaml or .yml extension, got %q", ext)
	}

	fileInfo, err := os.Stat(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to stat config file: %w", err)
	}
	if fileInfo.Size() > maxFileSize {
		return nil, fmt.Errorf("config file too large: %d bytes (max %d)", fileInfo.Size(), maxFileSize)
	}

	data, err := os.ReadFile(cleanPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := &Config{}
	if ext == ".json" {
		err = json.Unmarshal(data, cfg)
	} else {
		err = yaml.Unmarshal(data, cfg)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to parse config %s: %w", cleanPath, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// Validate reports every invalid field.
func (c *Config) Validate() error {
	var errs []error
	if c.HomeLat != nil && (math.IsNaN(*c.HomeLat) || *c.HomeLat < -90 || *c.HomeLat > 90) {
		errs = append(errs, fmt.Errorf("home_lat must be between -90 and 90, got %v", *c.HomeLat))
	}
	if c.HomeLon != nil && (math.IsNaN(*c.HomeLon) || *c.HomeLon < -180 || *c.HomeLon > 180) {
		errs = append(errs, fmt.Errorf("home_lon must be between -180 and 180, got %v", *c.HomeLon))
	}
	if c.AirborneThreshold != nil && (math.IsNaN(*c.AirborneThreshold) || math.IsInf(*c.AirborneThreshold, 0)) {
		errs = append(errs, fmt.Errorf("airborne_threshold must be finite"))
	}
	for name, d := range map[string]*string{
		"snapshot_interval": c.SnapshotInterval,
		"request_timeout":   c.RequestTimeout,
		"reconnect_delay":   c.ReconnectDelay,
	} {
		if d == nil || *d == "" {
			continue
		}
		v, err := time.ParseDuration(*d)
		if err != nil {
			errs = append(errs, fmt.Errorf("invalid %s %q: %w", name, *d, err))
		} else if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %s", name, v))
		}
	}
	if c.SerialOptions != nil {
		if _, err := c.SerialOptions.Normalize(); err != nil {
			errs = append(errs, fmt.Errorf("serial_options: %w", err))
		}
	}
	if len(c.UDPListen) > 2 {
		errs = append(errs, fmt.Errorf("at most two udp_listen addresses are supported, got %d", len(c.UDPListen)))
	}
	if c.MissionBurst != nil && (*c.MissionBurst < 0 || *c.MissionBurst > math.MaxUint16) {
		errs = append(errs, fmt.Errorf("mission_burst must be between 0 and %d, got %d", math.MaxUint16, *c.MissionBurst))
	}
	if c.MaxRetries != nil && *c.MaxRetries < 1 {
		errs = append(errs, fmt.Errorf("max_retries must be at least 1, got %d", *c.MaxRetries))
	}
	for name, id := range map[string]*int{
		"target_system":    c.TargetSystem,
		"target_component": c.TargetComponent,
		"gcs_system":       c.GCSSystem,
		"gcs_component":    c.GCSComponent,
	} {
		if id != nil && (*id < 0 || *id > 255) {
			errs = append(errs, fmt.Errorf("%s must be between 0 and 255, got %d", name, *id))
		}
	}
	return errors.Join(errs...)
}

func duration(s *string, def time.Duration) time.Duration {
	if s == nil || *s == "" {
		return def
	}
	d, err := time.ParseDuration(*s)
	if err != nil || d <= 0 {
		return def
	}
	return d
}

func stringOr(s *string, def string) string {
	if s == nil {
		return def
	}
	return *s
}

func intOr(p *int, def int) int {
	if p == nil {
		return def
	}
	return *p
}

// GetHome returns the home coordinate used for dist_to_home.
func (c *Config) GetHome() geo.Point {
	home := telemetry.DefaultHome
	if c.HomeLat != nil {
		home.Lat = *c.HomeLat
	}
	if c.HomeLon != nil {
		home.Lon = *c.HomeLon
	}
	return home
}

func (c *Config) GetAirborneThreshold() float64 {
	if c.AirborneThreshold == nil {
		return telemetry.DefaultAirborneThreshold
	}
	return *c.AirborneThreshold
}

func (c *Config) GetSnapshotInterval() time.Duration {
	return duration(c.SnapshotInterval, time.Second)
}

// GetUDPListen returns the two datagram listen addresses. Unset entries take
// the defaults; an explicit "" disables that channel.
func (c *Config) GetUDPListen() [2]string {
	addrs := [2]string{DefaultUDPAddrPrimary, DefaultUDPAddrSecondary}
	for i, a := range c.UDPListen {
		if i < len(addrs) {
			addrs[i] = a
		}
	}
	return addrs
}

func (c *Config) GetUDPRcvBuf() int { return intOr(c.UDPRcvBuf, 4<<20) }

func (c *Config) GetStreamAddr() string { return stringOr(c.StreamAddr, DefaultStreamAddr) }

func (c *Config) GetSerialPort() string { return stringOr(c.SerialPort, "") }

// GetSerialOptions returns the options as configured. serialport.Open fills
// in defaults.
func (c *Config) GetSerialOptions() serialport.PortOptions {
	if c.SerialOptions == nil {
		return serialport.PortOptions{}
	}
	return *c.SerialOptions
}

func (c *Config) GetMissionBurst() int { return intOr(c.MissionBurst, mission.DefaultBurst) }

func (c *Config) GetRequestTimeout() time.Duration {
	return duration(c.RequestTimeout, mission.DefaultTimeout)
}

func (c *Config) GetMaxRetries() int { return intOr(c.MaxRetries, mission.DefaultMaxRetries) }

func (c *Config) GetTargetSystem() uint8 { return uint8(intOr(c.TargetSystem, DefaultTargetSystem)) }

func (c *Config) GetTargetComponent() uint8 {
	return uint8(intOr(c.TargetComponent, DefaultTargetComponent))
}

func (c *Config) GetGCSSystem() uint8 { return uint8(intOr(c.GCSSystem, DefaultGCSSystem)) }

func (c *Config) GetGCSComponent() uint8 { return uint8(intOr(c.GCSComponent, DefaultGCSComponent)) }

// GetMaxReconnects defaults to retrying forever.
func (c *Config) GetMaxReconnects() int { return intOr(c.MaxReconnects, -1) }

func (c *Config) GetReconnectDelay() time.Duration {
	return duration(c.ReconnectDelay, DefaultReconnectDelay)
}

func (c *Config) GetLogDir() string { return stringOr(c.LogDir, DefaultLogDir) }

func (c *Config) GetLogPerRun() bool { return c.LogPerRun != nil && *c.LogPerRun }

// GetConsole defaults to printing snapshots.
func (c *Config) GetConsole() bool { return c.Console == nil || *c.Console }

// GetDBPath returns "" when history is disabled.
func (c *Config) GetDBPath() string { return stringOr(c.DBPath, "") }

func (c *Config) GetMQTTBroker() string { return stringOr(c.MQTTBroker, "") }

func (c *Config) GetMQTTTopic() string { return stringOr(c.MQTTTopic, DefaultMQTTTopic) }

func (c *Config) GetForwardAddr() string { return stringOr(c.ForwardAddr, "") }

func (c *Config) GetHTTPListen() string { return stringOr(c.HTTPListen, DefaultHTTPAddr) }
