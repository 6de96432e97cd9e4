package status

import (
	"encoding/json"
	"time"
)

// StatusJSON is the top-level JSON envelope for status output.
type StatusJSON struct {
	Status StatusInner `json:"status"`
}

// StatusInner contains the status details.
type StatusInner struct {
	Event         string       `json:"event,omitempty"`
	Reason        string       `json:"reason,omitempty"`
	RunID         string       `json:"run_id,omitempty"`
	Feed          string       `json:"feed"`
	Channels      ChannelsJSON `json:"channels"`
	Ready         bool         `json:"ready"`
	UptimeSeconds int64        `json:"uptime_seconds"`
	StartTime     string       `json:"start_time"`
	Timestamp     string       `json:"timestamp"`
	MQTT          MQTTStatus   `json:"mqtt"`
	Counts        CountsJSON   `json:"event_counts"`
	Network       *NetworkJSON `json:"network,omitempty"`
	Config        ConfigJSON   `json:"config"`
}

// ChannelsJSON reports the last observed or commanded channel values.
type ChannelsJSON struct {
	Upper float64 `json:"upper"`
	Lower float64 `json:"lower"`
	Feed  float64 `json:"feed"`
}

// MQTTStatus reports MQTT connection state.
type MQTTStatus struct {
	Connected bool   `json:"connected"`
	Broker    string `json:"broker"`
}

// CountsJSON is the JSON representation of event counts.
type CountsJSON struct {
	Starts int `json:"feed_start"`
	Stops  int `json:"feed_stop"`
}

// NetworkJSON is the JSON representation of network info.
type NetworkJSON struct {
	Type       string `json:"type"`
	IP         string `json:"ip"`
	Status     string `json:"status"`
	Gateway    string `json:"gateway"`
	WifiStatus string `json:"wifi_status"`
	SSID       string `json:"ssid"`
}

// PinsJSON is the JSON representation of the configured pins.
type PinsJSON struct {
	Upper string `json:"upper_sensor_pin"`
	Lower string `json:"lower_sensor_pin"`
	Feed  string `json:"feed_pin"`
}

// ConfigJSON is the JSON representation of daemon config.
type ConfigJSON struct {
	PollMs      int64    `json:"poll_ms"`
	HeartbeatMs int64    `json:"heartbeat_ms"`
	Broker      string   `json:"broker"`
	HTTPAddr    string   `json:"http_addr"`
	Backend     string   `json:"backend"`
	Pins        PinsJSON `json:"pins"`
}

// FeedString returns "FEEDING" or "IDLE", or "UNKNOWN" before the first tick.
func (s Snapshot) FeedString() string {
	switch {
	case !s.Ready:
		return "UNKNOWN"
	case s.State.Feeding:
		return "FEEDING"
	default:
		return "IDLE"
	}
}

func buildInner(snap Snapshot) StatusInner {
	inner := StatusInner{
		RunID: snap.Config.RunID,
		Feed:  snap.FeedString(),
		Channels: ChannelsJSON{
			Upper: snap.State.Upper,
			Lower: snap.State.Lower,
			Feed:  snap.State.Feed,
		},
		Ready:         snap.Ready,
		UptimeSeconds: int64(snap.Uptime().Truncate(time.Second).Seconds()),
		StartTime:     snap.StartTime.UTC().Format(time.RFC3339),
		Timestamp:     snap.Now.UTC().Format(time.RFC3339),
		MQTT:          MQTTStatus{Connected: snap.MQTTConnected, Broker: snap.Config.Broker},
		Counts: CountsJSON{
			Starts: snap.Counts.Starts,
			Stops:  snap.Counts.Stops,
		},
		Config: ConfigJSON{
			PollMs:      snap.Config.PollMs,
			HeartbeatMs: snap.Config.HeartbeatMs,
			Broker:      snap.Config.Broker,
			HTTPAddr:    snap.Config.HTTPAddr,
			Backend:     snap.Config.Backend,
			Pins: PinsJSON{
				Upper: snap.Config.Pins.Upper,
				Lower: snap.Config.Pins.Lower,
				Feed:  snap.Config.Pins.Feed,
			},
		},
	}

	if snap.Network != nil {
		inner.Network = &NetworkJSON{
			Type:       snap.Network.Type,
			IP:         snap.Network.IP,
			Status:     snap.Network.Status,
			Gateway:    snap.Network.Gateway,
			WifiStatus: snap.Network.WifiStatus,
			SSID:       snap.Network.SSID,
		}
	}
	return inner
}

// FormatJSON returns the JSON status for the web endpoint (no event/reason).
func FormatJSON(snap Snapshot) []byte {
	data, _ := json.MarshalIndent(StatusJSON{Status: buildInner(snap)}, "", "  ")
	return data
}

// FormatStatusEvent returns the JSON status for an MQTT system event.
func FormatStatusEvent(snap Snapshot, event, reason string) []byte {
	inner := buildInner(snap)
	inner.Event = event
	inner.Reason = reason

	data, _ := json.Marshal(StatusJSON{Status: inner})
	return data
}
