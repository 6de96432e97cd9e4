// Package feed contains the material-feed decision logic: binding the three
// channels from configuration and the polling controller that starts and
// stops feeding from the sensor levels.
// This package performs no logging; callers report the returned events.
package feed

import (
	"fmt"
	"time"
)

// EventType is a feed output transition.
type EventType string

const (
	EventFeedStart EventType = "FEED_START"
	EventFeedStop  EventType = "FEED_STOP"
)

// Event is a feed output transition produced by a tick.
type Event struct {
	Timestamp time.Time
	Type      EventType
	Upper     float64
	Lower     float64
	Feed      float64
}

// Message returns the human-readable log line for the event.
func (e Event) Message() string {
	switch e.Type {
	case EventFeedStart:
		return "Starting material feed"
	case EventFeedStop:
		return "Stopping material feed"
	}
	return string(e.Type)
}

// State is a snapshot of the three channel values.
type State struct {
	Upper   float64
	Lower   float64
	Feed    float64
	Feeding bool
}

// EventCounts tracks the number of each event type since startup.
type EventCounts struct {
	Starts int
	Stops  int
}

// HeartbeatData contains information for a heartbeat event.
type HeartbeatData struct {
	Timestamp time.Time
	Uptime    time.Duration
	Counts    EventCounts
}

// IOError reports a failed read or write on a channel's handle.
type IOError struct {
	Channel string
	Op      string
	Err     error
}

func (e *IOError) Error() string {
	return fmt.Sprintf("%s %s channel: %v", e.Op, e.Channel, e.Err)
}

func (e *IOError) Unwrap() error {
	return e.Err
}
