// Package notify publishes detention lifecycle events to MQTT so a
// dispatcher can follow a driver's wait in real time.
package notify

import (
	"encoding/json"
	"strings"
	"time"
)

// EventType names a detention lifecycle transition.
type EventType string

const (
	CheckedIn        EventType = "checked_in"
	GraceWarning     EventType = "grace_warning"
	DetentionStarted EventType = "detention_started"
	CheckedOut       EventType = "checked_out"
)

// DefaultTopicPrefix is used when no prefix is configured.
const DefaultTopicPrefix = "dwell"

// Publisher publishes lifecycle events. Publishing failures are returned
// to the caller and never abort the underlying check-in or check-out.
type Publisher interface {
	Publish(event Event) error
	Close() error
}

// Event is a single lifecycle notification.
type Event struct {
	Type             EventType
	EventID          int64
	Facility         string
	LoadNumber       string
	Timestamp        time.Time
	ElapsedSeconds   int64
	DetentionSeconds int64
	Amount           float64
}

// Payload is the JSON body published for an event.
type Payload struct {
	Detention DetentionPayload `json:"detention"`
}

// DetentionPayload carries the event details.
type DetentionPayload struct {
	Timestamp        string  `json:"timestamp"`
	Event            string  `json:"event"`
	EventID          int64   `json:"event_id"`
	Facility         string  `json:"facility"`
	LoadNumber       string  `json:"load_number,omitempty"`
	ElapsedSeconds   int64   `json:"elapsed_seconds"`
	DetentionSeconds int64   `json:"detention_seconds"`
	Amount           float64 `json:"amount"`
}

// FormatPayload creates the JSON payload for an event.
func FormatPayload(event Event) ([]byte, error) {
	return json.Marshal(Payload{
		Detention: DetentionPayload{
			Timestamp:        event.Timestamp.UTC().Format(time.RFC3339),
			Event:            string(event.Type),
			EventID:          event.EventID,
			Facility:         event.Facility,
			LoadNumber:       event.LoadNumber,
			ElapsedSeconds:   event.ElapsedSeconds,
			DetentionSeconds: event.DetentionSeconds,
			Amount:           event.Amount,
		},
	})
}

// Topic returns the topic an event type is published on.
func Topic(prefix string, t EventType) string {
	prefix = strings.TrimRight(prefix, "/")
	if prefix == "" {
		prefix = DefaultTopicPrefix
	}
	return prefix + "/events/" + string(t)
}

// NopPublisher discards events. It is used when no broker is configured.
type NopPublisher struct{}

func (NopPublisher) Publish(Event) error { return nil }
func (NopPublisher) Close() error        { return nil }
