// Package mqtt provides MQTT publishing with abstraction for testing.
package mqtt

import (
	"encoding/json"
	"time"

	"github.com/sweeney/material-feed/internal/feed"
)

// Topic is the MQTT topic for feed events.
const Topic = "material/feed/events"

// TopicSystem is the MQTT topic for system lifecycle events.
const TopicSystem = "material/feed/system"

// Publisher publishes events to MQTT.
type Publisher interface {
	// Publish sends a feed event to the broker.
	// Returns error if publishing fails (should not crash the process).
	Publish(event feed.Event) error

	// PublishSystem sends a system lifecycle event to the broker.
	PublishSystem(event SystemEvent) error

	// Close disconnects from the broker.
	Close() error
}

// ConnectionStatus reports whether the MQTT connection is active.
type ConnectionStatus interface {
	IsConnected() bool
}

// SystemEvent represents a system lifecycle event (e.g., startup, shutdown, heartbeat).
type SystemEvent struct {
	Timestamp  time.Time
	Event      string // e.g., "STARTUP", "SHUTDOWN", "HEARTBEAT"
	Reason     string // e.g., "SIGTERM", "IO_ERROR" (shutdown only)
	RunID      string
	RawPayload []byte // Pre-formatted JSON payload; if set, FormatSystemPayload returns it directly
	Retained   bool   // Whether the message should be retained by the broker
}

// Payload represents the MQTT message payload structure.
type Payload struct {
	Feed FeedPayload `json:"feed"`
}

// FeedPayload contains the feed event details.
type FeedPayload struct {
	Timestamp string  `json:"timestamp"`
	Event     string  `json:"event"`
	Upper     float64 `json:"upper"`
	Lower     float64 `json:"lower"`
	Output    float64 `json:"output"`
}

// FormatPayload creates the JSON payload for a feed event.
func FormatPayload(event feed.Event) ([]byte, error) {
	payload := Payload{
		Feed: FeedPayload{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     string(event.Type),
			Upper:     event.Upper,
			Lower:     event.Lower,
			Output:    event.Feed,
		},
	}
	return json.Marshal(payload)
}

// SystemPayload represents the MQTT message payload for system events.
// Used for simple events (LWT, RECONNECTED) that don't carry a full status snapshot.
type SystemPayload struct {
	System SystemPayloadInner `json:"system"`
}

// SystemPayloadInner contains the system event details.
type SystemPayloadInner struct {
	Timestamp string `json:"timestamp"`
	Event     string `json:"event"`
	Reason    string `json:"reason,omitempty"`
	RunID     string `json:"run_id,omitempty"`
}

// FormatSystemPayload creates the JSON payload for a system event.
// If event.RawPayload is set, it is returned directly (used for full status snapshots).
func FormatSystemPayload(event SystemEvent) ([]byte, error) {
	if event.RawPayload != nil {
		return event.RawPayload, nil
	}

	payload := SystemPayload{
		System: SystemPayloadInner{
			Timestamp: event.Timestamp.UTC().Format(time.RFC3339),
			Event:     event.Event,
			Reason:    event.Reason,
			RunID:     event.RunID,
		},
	}
	return json.Marshal(payload)
}

// FormatWillPayload creates the last-will payload the broker publishes if
// the connection drops without a clean disconnect.
func FormatWillPayload(now time.Time, runID string) ([]byte, error) {
	return FormatSystemPayload(SystemEvent{
		Timestamp: now,
		Event:     "OFFLINE",
		Reason:    "MQTT_DISCONNECT",
		RunID:     runID,
	})
}
