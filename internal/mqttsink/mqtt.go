// Package mqttsink publishes snapshots and live record updates to an MQTT
// broker.
package mqttsink

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/banshee-data/telemetry.report/internal/emitter"
	"github.com/banshee-data/telemetry.report/internal/monitoring"
	"github.com/banshee-data/telemetry.report/internal/telemetry"
)

const (
	DefaultTopic    = "telemetry"
	DefaultClientID = "telemetry-report"
	DefaultTimeout  = 5 * time.Second
)

// Config describes the broker connection.
type Config struct {
	Broker   string // e.g. tcp://localhost:1883
	Topic    string
	ClientID string
	QoS      byte
	Timeout  time.Duration
}

// Publisher is the part of mqtt.Client the sink uses.
type Publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// Sink publishes each snapshot to Topic and each live update to Topic/live.
type Sink struct {
	pub     Publisher
	client  mqtt.Client
	topic   string
	qos     byte
	timeout time.Duration
}

// Connect dials the broker and returns a connected sink.
func Connect(cfg Config) (*Sink, error) {
	if cfg.Broker == "" {
		return nil, errors.New("mqtt broker address required")
	}
	cfg = withDefaults(cfg)

	opts := mqtt.NewClientOptions().
		AddBroker(cfg.Broker).
		SetClientID(cfg.ClientID).
		SetAutoReconnect(true).
		SetCleanSession(true).
		SetConnectTimeout(cfg.Timeout).
		SetMaxReconnectInterval(cfg.Timeout * 3).
		SetKeepAlive(cfg.Timeout * 2).
		SetPingTimeout(cfg.Timeout).
		SetWriteTimeout(cfg.Timeout).
		SetOrderMatters(false).
		SetConnectionLostHandler(func(_ mqtt.Client, err error) {
			monitoring.Logf("mqtt: connection lost: %v", err)
		})
	client := mqtt.NewClient(opts)
	if err := tokenWait(client.Connect(), cfg.Timeout, "connect"); err != nil {
		return nil, err
	}
	s := New(client, cfg)
	s.client = client
	return s, nil
}

// New wraps an existing publisher.
func New(pub Publisher, cfg Config) *Sink {
	cfg = withDefaults(cfg)
	return &Sink{pub: pub, topic: cfg.Topic, qos: cfg.QoS, timeout: cfg.Timeout}
}

func withDefaults(cfg Config) Config {
	if cfg.Topic == "" {
		cfg.Topic = DefaultTopic
	}
	if cfg.ClientID == "" {
		cfg.ClientID = DefaultClientID
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.QoS > 2 {
		cfg.QoS = 2
	}
	return cfg
}

func (s *Sink) Name() string { return "mqtt" }

// Emit publishes the snapshot as JSON and waits for the broker to accept it.
func (s *Sink) Emit(snap emitter.Snapshot) error {
	payload, err := json.Marshal(snap)
	if err != nil {
		return fmt.Errorf("encode snapshot: %w", err)
	}
	return tokenWait(s.pub.Publish(s.topic, s.qos, false, payload), s.timeout, "publish "+s.topic)
}

// PublishRecord sends a live update without waiting for delivery, so it is
// safe to use as the aggregator's update hook.
func (s *Sink) PublishRecord(rec telemetry.Record) {
	payload, err := json.Marshal(rec)
	if err != nil {
		monitoring.Logf("mqtt: encode record: %v", err)
		return
	}
	s.pub.Publish(s.LiveTopic(), 0, false, payload)
}

// LiveTopic is where PublishRecord sends updates.
func (s *Sink) LiveTopic() string { return s.topic + "/live" }

// Close disconnects a sink created by Connect.
func (s *Sink) Close() {
	if s.client != nil {
		s.client.Disconnect(uint(s.timeout / time.Millisecond))
	}
}

func tokenWait(t mqtt.Token, timeout time.Duration, tag string) error {
	if !t.WaitTimeout(timeout) {
		return fmt.Errorf("mqtt %s: timeout after %s", tag, timeout)
	}
	if err := t.Error(); err != nil {
		return fmt.Errorf("mqtt %s: %w", tag, err)
	}
	return nil
}
