// Package events publishes pipeline events (detections, recordings) to
// downstream systems such as a warehouse MQTT broker.
package events

import (
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Kind identifies an event type. It is also the last MQTT topic level.
type Kind string

// Event kinds.
const (
	KindDetected              Kind = "barcode_detected"
	KindConfirmationCancelled Kind = "confirmation_cancelled"
	KindRecordingStarted      Kind = "recording_started"
	KindRecordingStopped      Kind = "recording_stopped"
	KindRecordingFailed       Kind = "recording_failed"
	KindRecordingArchived     Kind = "recording_archived"
)

// Event is one pipeline occurrence.
type Event struct {
	ID          string        `json:"id"`
	Kind        Kind          `json:"kind"`
	At          time.Time     `json:"at"`
	Code        string        `json:"code,omitempty"`
	Carrier     string        `json:"carrier,omitempty"`
	RecordingID string        `json:"recording_id,omitempty"`
	Path        string        `json:"path,omitempty"`
	Location    string        `json:"location,omitempty"`
	Frames      uint64        `json:"frames,omitempty"`
	Dropped     uint64        `json:"dropped,omitempty"`
	Duration    time.Duration `json:"duration_ns,omitempty"`
	Error       string        `json:"error,omitempty"`
}

// New creates an event with a fresh ID stamped at now.
func New(kind Kind, now time.Time) Event {
	return Event{
		ID:   uuid.NewString(),
		Kind: kind,
		At:   now,
	}
}

// ToJSON encodes the event payload.
func (e Event) ToJSON() ([]byte, error) {
	return json.Marshal(e)
}

// Emitter delivers events. Emit must not block the caller on network I/O.
type Emitter interface {
	Emit(e Event) error
}

// Nop discards events.
type Nop struct{}

// Emit implements Emitter.
func (Nop) Emit(Event) error { return nil }

// Memory keeps events in order. Used in tests and by the dashboard log.
type Memory struct {
	mu     sync.Mutex
	events []Event
}

// NewMemory creates an empty in-memory emitter.
func NewMemory() *Memory {
	return &Memory{}
}

// Emit implements Emitter.
func (m *Memory) Emit(e Event) error {
	m.mu.Lock()
	m.events = append(m.events, e)
	m.mu.Unlock()
	return nil
}

// Events returns a copy of everything emitted so far.
func (m *Memory) Events() []Event {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]Event(nil), m.events...)
}

// Kinds returns the kinds emitted so far, in order.
func (m *Memory) Kinds() []Kind {
	m.mu.Lock()
	defer m.mu.Unlock()
	kinds := make([]Kind, len(m.events))
	for i, e := range m.events {
		kinds[i] = e.Kind
	}
	return kinds
}

// Multi fans an event out to several emitters and returns the first error.
type Multi []Emitter

// Emit implements Emitter.
func (m Multi) Emit(e Event) error {
	var first error
	for _, em := range m {
		if err := em.Emit(e); err != nil && first == nil {
			first = err
		}
	}
	return first
}
