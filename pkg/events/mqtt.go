package events

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/teslashibe/parcelcam/internal/log"
)

// ErrNotConnected is returned by Emit before Connect succeeds or after the
// broker connection drops.
var ErrNotConnected = errors.New("events: mqtt not connected")

// MQTTConfig contains MQTT broker settings.
type MQTTConfig struct {
	Broker      string        `yaml:"broker"`       // host:port, or a full tcp:// URL
	ClientID    string        `yaml:"client_id"`    // defaults to "parcelcam-<station>"
	TopicPrefix string        `yaml:"topic_prefix"` // e.g. "parcelcam"
	Station     string        `yaml:"station"`      // packing station name
	QoS         byte          `yaml:"qos"`
	Username    string        `yaml:"username"`
	Password    string        `yaml:"password"`
	Timeout     time.Duration `yaml:"timeout"`
}

// Topic returns "{prefix}/{station}/{kind}".
func (c MQTTConfig) Topic(kind Kind) string {
	parts := []string{strings.Trim(c.TopicPrefix, "/"), c.Station, string(kind)}
	out := parts[:0]
	for _, p := range parts {
		if p != "" {
			out = append(out, p)
		}
	}
	return strings.Join(out, "/")
}

// publisher is the part of mqtt.Client the emitter uses.
type publisher interface {
	Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token
}

// MQTTEmitter publishes events to an MQTT broker.
type MQTTEmitter struct {
	cfg    MQTTConfig
	logger *slog.Logger

	client mqtt.Client
	pub    publisher

	mu        sync.RWMutex
	published map[string]uint64 // count per topic
	errors    uint64
	connected bool
}

// NewMQTTEmitter creates a new MQTT emitter. Call Connect before Emit.
func NewMQTTEmitter(cfg MQTTConfig) *MQTTEmitter {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 2 * time.Second
	}
	if cfg.ClientID == "" {
		cfg.ClientID = "parcelcam-" + cfg.Station
	}
	return &MQTTEmitter{
		cfg:       cfg,
		logger:    log.With("component", "mqtt", "broker", cfg.Broker),
		published: make(map[string]uint64),
	}
}

// Connect establishes connection to the MQTT broker.
func (e *MQTTEmitter) Connect(ctx context.Context) error {
	broker := e.cfg.Broker
	if !strings.Contains(broker, "://") {
		broker = "tcp://" + broker
	}

	opts := mqtt.NewClientOptions()
	opts.AddBroker(broker)
	opts.SetClientID(e.cfg.ClientID)
	opts.SetUsername(e.cfg.Username)
	opts.SetPassword(e.cfg.Password)
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(true)
	opts.SetConnectRetryInterval(2 * time.Second)
	opts.SetMaxReconnectInterval(30 * time.Second)

	opts.OnConnect = func(c mqtt.Client) {
		e.setConnected(true)
		e.logger.Info("mqtt connection established", "client_id", e.cfg.ClientID)
	}
	opts.OnConnectionLost = func(c mqtt.Client, err error) {
		e.setConnected(false)
		e.logger.Warn("mqtt connection lost, will auto-reconnect", "error", err)
	}

	client := mqtt.NewClient(opts)
	e.logger.Info("connecting to mqtt broker")

	token := client.Connect()
	select {
	case <-token.Done():
	case <-time.After(5 * time.Second):
		return fmt.Errorf("mqtt connection timeout")
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("mqtt connection failed: %w", err)
	}

	e.mu.Lock()
	e.client = client
	e.pub = client
	e.connected = true
	e.mu.Unlock()
	return nil
}

// Emit publishes e on its kind's topic. It returns once the message is
// queued; delivery failures are logged and counted.
func (e *MQTTEmitter) Emit(ev Event) error {
	e.mu.RLock()
	pub, connected := e.pub, e.connected
	e.mu.RUnlock()
	if !connected || pub == nil {
		e.countError()
		return ErrNotConnected
	}

	payload, err := ev.ToJSON()
	if err != nil {
		e.countError()
		return fmt.Errorf("failed to marshal event: %w", err)
	}

	topic := e.cfg.Topic(ev.Kind)
	token := pub.Publish(topic, e.cfg.QoS, false, payload)
	go e.await(token, topic, len(payload))
	return nil
}

func (e *MQTTEmitter) await(token mqtt.Token, topic string, size int) {
	if !token.WaitTimeout(e.cfg.Timeout) {
		e.countError()
		e.logger.Warn("event publish timeout", "topic", topic)
		return
	}
	if err := token.Error(); err != nil {
		e.countError()
		e.logger.Warn("event publish failed", "topic", topic, "error", err)
		return
	}
	e.mu.Lock()
	e.published[topic]++
	e.mu.Unlock()
	e.logger.Debug("event published", "topic", topic, "qos", e.cfg.QoS, "size", size)
}

// Disconnect closes the MQTT connection.
func (e *MQTTEmitter) Disconnect() error {
	e.mu.Lock()
	client := e.client
	e.connected = false
	e.mu.Unlock()

	if client != nil && client.IsConnected() {
		client.Disconnect(250) // 250ms grace period
		e.logger.Info("mqtt disconnected")
	}
	return nil
}

// Stats contains emitter statistics.
type Stats struct {
	Connected bool              `json:"connected"`
	Published map[string]uint64 `json:"published"`
	Errors    uint64            `json:"errors"`
}

// Stats returns emitter statistics.
func (e *MQTTEmitter) Stats() Stats {
	e.mu.RLock()
	defer e.mu.RUnlock()

	published := make(map[string]uint64, len(e.published))
	for k, v := range e.published {
		published[k] = v
	}
	return Stats{
		Connected: e.connected,
		Published: published,
		Errors:    e.errors,
	}
}

func (e *MQTTEmitter) setConnected(v bool) {
	e.mu.Lock()
	e.connected = v
	e.mu.Unlock()
}

func (e *MQTTEmitter) countError() {
	e.mu.Lock()
	e.errors++
	e.mu.Unlock()
}
