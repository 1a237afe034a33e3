package events

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	mqtt "github.com/eclipse/paho.mqtt.golang"
)

type fakeToken struct {
	err  error
	done chan struct{}
}

func newFakeToken(err error) *fakeToken {
	t := &fakeToken{err: err, done: make(chan struct{})}
	close(t.done)
	return t
}

func (t *fakeToken) Wait() bool                     { return true }
func (t *fakeToken) WaitTimeout(time.Duration) bool { return true }
func (t *fakeToken) Done() <-chan struct{}          { return t.done }
func (t *fakeToken) Error() error                   { return t.err }

type published struct {
	topic   string
	qos     byte
	payload []byte
}

type fakePublisher struct {
	mu   sync.Mutex
	msgs []published
	err  error
	sent chan struct{}
}

func (p *fakePublisher) Publish(topic string, qos byte, retained bool, payload interface{}) mqtt.Token {
	p.mu.Lock()
	p.msgs = append(p.msgs, published{topic: topic, qos: qos, payload: payload.([]byte)})
	p.mu.Unlock()
	return newFakeToken(p.err)
}

func connectedEmitter(cfg MQTTConfig, pub publisher) *MQTTEmitter {
	e := NewMQTTEmitter(cfg)
	e.pub = pub
	e.connected = true
	return e
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatal("condition not met in time")
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestTopic(t *testing.T) {
	tests := []struct {
		cfg  MQTTConfig
		want string
	}{
		{MQTTConfig{TopicPrefix: "parcelcam", Station: "bench-1"}, "parcelcam/bench-1/recording_started"},
		{MQTTConfig{TopicPrefix: "/wh/parcelcam/", Station: "a"}, "wh/parcelcam/a/recording_started"},
		{MQTTConfig{TopicPrefix: "parcelcam"}, "parcelcam/recording_started"},
	}
	for _, tt := range tests {
		if got := tt.cfg.Topic(KindRecordingStarted); got != tt.want {
			t.Errorf("Topic = %q, want %q", got, tt.want)
		}
	}
}

func TestMQTTEmitter_Emit(t *testing.T) {
	pub := &fakePublisher{}
	e := connectedEmitter(MQTTConfig{TopicPrefix: "parcelcam", Station: "bench-1", QoS: 1}, pub)

	ev := New(KindRecordingStopped, time.Date(2024, 5, 1, 14, 3, 22, 0, time.UTC))
	ev.Code = "SF1234567890123"
	ev.Carrier = "顺丰"
	ev.Frames = 150
	if err := e.Emit(ev); err != nil {
		t.Fatalf("Emit failed: %v", err)
	}

	waitFor(t, func() bool { return e.Stats().Published["parcelcam/bench-1/recording_stopped"] == 1 })

	pub.mu.Lock()
	defer pub.mu.Unlock()
	if len(pub.msgs) != 1 {
		t.Fatalf("published %d messages, want 1", len(pub.msgs))
	}
	msg := pub.msgs[0]
	if msg.qos != 1 {
		t.Errorf("qos = %d, want 1", msg.qos)
	}
	var got Event
	if err := json.Unmarshal(msg.payload, &got); err != nil {
		t.Fatalf("payload is not JSON: %v", err)
	}
	if got.ID != ev.ID || got.Code != ev.Code || got.Carrier != "顺丰" || got.Frames != 150 {
		t.Errorf("payload = %+v", got)
	}
}

func TestMQTTEmitter_NotConnected(t *testing.T) {
	e := NewMQTTEmitter(MQTTConfig{Broker: "localhost:1883"})
	if err := e.Emit(New(KindDetected, time.Now())); !errors.Is(err, ErrNotConnected) {
		t.Errorf("expected ErrNotConnected, got %v", err)
	}
	if e.Stats().Errors != 1 {
		t.Errorf("errors = %d, want 1", e.Stats().Errors)
	}
}

func TestMQTTEmitter_PublishFailureCounted(t *testing.T) {
	pub := &fakePublisher{err: errors.New("not authorized")}
	e := connectedEmitter(MQTTConfig{TopicPrefix: "parcelcam"}, pub)

	if err := e.Emit(New(KindDetected, time.Now())); err != nil {
		t.Fatalf("Emit should only queue, got %v", err)
	}
	waitFor(t, func() bool { return e.Stats().Errors == 1 })
}

func TestMemoryAndMulti(t *testing.T) {
	a, b := NewMemory(), NewMemory()
	m := Multi{a, Nop{}, b}
	m.Emit(New(KindDetected, time.Now()))
	m.Emit(New(KindRecordingStarted, time.Now()))

	for _, mem := range []*Memory{a, b} {
		kinds := mem.Kinds()
		if len(kinds) != 2 || kinds[0] != KindDetected || kinds[1] != KindRecordingStarted {
			t.Errorf("kinds = %v", kinds)
		}
	}
	if a.Events()[0].ID == "" {
		t.Error("events should carry an id")
	}
}
