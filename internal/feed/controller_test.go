package feed

import (
	"errors"
	"testing"
	"time"

	"github.com/sweeney/material-feed/internal/gpio"
)

var t0 = time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)

type rig struct {
	ctrl  *Controller
	alloc *gpio.FakeAllocator
	upper *gpio.FakeHandle
	lower *gpio.FakeHandle
	feed  *gpio.FakeHandle
}

func newRig(t *testing.T, values map[string]any) *rig {
	t.Helper()
	cfg := baseConfig()
	for k, v := range values {
		cfg[k] = v
	}
	ch, alloc := bindWith(t, cfg)
	return &rig{
		ctrl:  NewController(ch, t0),
		alloc: alloc,
		upper: alloc.Handle("17"),
		lower: alloc.Handle("27"),
		feed:  alloc.Handle("22"),
	}
}

func (r *rig) tick(t *testing.T) *Event {
	t.Helper()
	ev, err := r.ctrl.Tick(t0)
	if err != nil {
		t.Fatalf("Tick: %v", err)
	}
	if fv := r.ctrl.State().Feed; fv != 0 && fv != 1 {
		t.Fatalf("feed value %v is not binary", fv)
	}
	return ev
}

func TestNewController(t *testing.T) {
	r := newRig(t, nil)
	if r.ctrl.Feeding() {
		t.Error("new controller should not be feeding")
	}
	if r.ctrl.Counts() != (EventCounts{}) {
		t.Errorf("expected zero counts, got %+v", r.ctrl.Counts())
	}
	if !r.ctrl.lastHeartbeat.Equal(t0) {
		t.Errorf("expected lastHeartbeat %v, got %v", t0, r.ctrl.lastHeartbeat)
	}
}

// Scenario A: everything inactive, nothing happens.
func TestTickAllInactive(t *testing.T) {
	r := newRig(t, nil)

	if ev := r.tick(t); ev != nil {
		t.Errorf("expected no event, got %+v", ev)
	}
	if r.ctrl.Feeding() {
		t.Error("should not be feeding")
	}
	if len(r.feed.Writes()) != 0 {
		t.Errorf("expected no writes, got %v", r.feed.Writes())
	}
}

// Scenarios B, C and D in sequence.
func TestTickFeedCycle(t *testing.T) {
	r := newRig(t, nil)

	// B: lower sensor active while idle starts the feed.
	r.lower.Set(1)
	ev := r.tick(t)
	if ev == nil || ev.Type != EventFeedStart {
		t.Fatalf("expected FEED_START, got %+v", ev)
	}
	if ev.Message() != "Starting material feed" {
		t.Errorf("message: got %q", ev.Message())
	}
	if ev.Feed != 1 || ev.Lower != 1 || ev.Upper != 0 {
		t.Errorf("unexpected event values: %+v", ev)
	}
	if !ev.Timestamp.Equal(t0) {
		t.Errorf("timestamp: got %v, want %v", ev.Timestamp, t0)
	}
	if !r.ctrl.Feeding() || r.feed.Value() != 1 {
		t.Errorf("expected feeding with pin high, feeding=%v pin=%v", r.ctrl.Feeding(), r.feed.Value())
	}

	// C: material reaches the upper sensor.
	r.lower.Set(0)
	r.upper.Set(1)
	ev = r.tick(t)
	if ev == nil || ev.Type != EventFeedStop {
		t.Fatalf("expected FEED_STOP, got %+v", ev)
	}
	if ev.Message() != "Stopping material feed" {
		t.Errorf("message: got %q", ev.Message())
	}
	if r.ctrl.Feeding() || r.feed.Value() != 0 {
		t.Errorf("expected idle with pin low, feeding=%v pin=%v", r.ctrl.Feeding(), r.feed.Value())
	}

	// D: no sensor change, nothing happens.
	if ev := r.tick(t); ev != nil {
		t.Errorf("expected no event, got %+v", ev)
	}
	if r.feed.Value() != 0 {
		t.Errorf("feed pin: got %v, want 0", r.feed.Value())
	}

	want := []float64{1, 0}
	got := r.feed.Writes()
	if len(got) != len(want) || got[0] != want[0] || got[1] != want[1] {
		t.Errorf("writes: got %v, want %v", got, want)
	}
	if c := r.ctrl.Counts(); c.Starts != 1 || c.Stops != 1 {
		t.Errorf("counts: got %+v, want 1 start and 1 stop", c)
	}
}

func TestTickIdempotent(t *testing.T) {
	r := newRig(t, nil)
	r.lower.Set(1)

	events := 0
	for i := 0; i < 10; i++ {
		if ev := r.tick(t); ev != nil {
			events++
		}
	}
	if events != 1 {
		t.Errorf("expected exactly 1 event over 10 ticks, got %d", events)
	}
	if len(r.feed.Writes()) != 1 {
		t.Errorf("expected 1 write, got %v", r.feed.Writes())
	}

	// Upper active while still feeding: exactly one stop, then quiet.
	r.upper.Set(1)
	r.lower.Set(0)
	events = 0
	for i := 0; i < 10; i++ {
		if ev := r.tick(t); ev != nil {
			events++
		}
	}
	if events != 1 {
		t.Errorf("expected exactly 1 stop over 10 ticks, got %d", events)
	}
}

func TestTickKeepsFeedingBetweenSensors(t *testing.T) {
	r := newRig(t, nil)
	r.lower.Set(1)
	r.tick(t)

	// Level rises above the lower sensor but is below the upper one.
	r.lower.Set(0)
	for i := 0; i < 5; i++ {
		if ev := r.tick(t); ev != nil {
			t.Fatalf("tick %d: unexpected event %+v", i, ev)
		}
	}
	if !r.ctrl.Feeding() {
		t.Error("should still be feeding")
	}
}

func TestTickBothSensorsActiveStartsFeeding(t *testing.T) {
	r := newRig(t, nil)
	r.upper.Set(1)
	r.lower.Set(1)

	ev := r.tick(t)
	if ev == nil || ev.Type != EventFeedStart {
		t.Fatalf("lower branch has priority: expected FEED_START, got %+v", ev)
	}

	// Next tick sees feeding with upper active and stops.
	ev = r.tick(t)
	if ev == nil || ev.Type != EventFeedStop {
		t.Fatalf("expected FEED_STOP, got %+v", ev)
	}
}

func TestTickConfiguredInitialValues(t *testing.T) {
	// Both sensors start active: the lower branch wins and feeding starts,
	// then the next tick stops it because upper is still active.
	r := newRig(t, map[string]any{"value_upper": 1.0, "value_lower": 1.0})
	if r.upper.Value() != 1 || r.lower.Value() != 1 {
		t.Fatalf("sensor pins should start at configured values, got upper=%v lower=%v",
			r.upper.Value(), r.lower.Value())
	}

	ev := r.tick(t)
	if ev == nil || ev.Type != EventFeedStart {
		t.Fatalf("expected FEED_START, got %+v", ev)
	}
	if ev.Upper != 1 || ev.Lower != 1 || ev.Feed != 1 {
		t.Errorf("event values: got %+v", ev)
	}

	ev = r.tick(t)
	if ev == nil || ev.Type != EventFeedStop {
		t.Fatalf("expected FEED_STOP, got %+v", ev)
	}
}

func TestTickPinOverridesConfiguredValue(t *testing.T) {
	// Sensor values are pulled from the pins on every tick, so a pin that
	// changed since binding wins over the configured start value.
	r := newRig(t, map[string]any{"value_lower": 1.0})
	r.lower.Set(0)
	if ev := r.tick(t); ev != nil {
		t.Errorf("expected no event, got %+v", ev)
	}
	if r.ctrl.State().Lower != 0 {
		t.Errorf("lower: got %v, want 0", r.ctrl.State().Lower)
	}
}

func TestTickFeedOnAtStartup(t *testing.T) {
	r := newRig(t, map[string]any{"value_feed": 1})
	if !r.ctrl.Feeding() {
		t.Fatal("expected feeding from configured start value")
	}
	r.upper.Set(1)
	ev := r.tick(t)
	if ev == nil || ev.Type != EventFeedStop {
		t.Fatalf("expected FEED_STOP, got %+v", ev)
	}
}

func TestTickReadError(t *testing.T) {
	r := newRig(t, nil)
	r.lower.Set(1)
	fault := errors.New("line gone")
	r.upper.SetReadError(fault)

	ev, err := r.ctrl.Tick(t0)
	if ev != nil {
		t.Errorf("expected no event, got %+v", ev)
	}
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %v", err)
	}
	if ioErr.Channel != ChannelUpper || ioErr.Op != "read" {
		t.Errorf("unexpected IOError: %+v", ioErr)
	}
	if !errors.Is(err, fault) {
		t.Error("IOError should wrap the handle error")
	}
	if r.ctrl.Feeding() {
		t.Error("a failed tick must not start feeding")
	}
}

func TestTickWriteError(t *testing.T) {
	r := newRig(t, nil)
	r.lower.Set(1)
	r.feed.SetWriteError(errors.New("write fault"))

	_, err := r.ctrl.Tick(t0)
	var ioErr *IOError
	if !errors.As(err, &ioErr) {
		t.Fatalf("expected *IOError, got %v", err)
	}
	if ioErr.Channel != ChannelFeed || ioErr.Op != "write" {
		t.Errorf("unexpected IOError: %+v", ioErr)
	}
	if ioErr.Error() != "write feed channel: write fault" {
		t.Errorf("message: got %q", ioErr.Error())
	}
	if r.ctrl.Feeding() {
		t.Error("cached feed value must not change on a failed write")
	}
	if r.ctrl.Counts().Starts != 0 {
		t.Error("failed start must not be counted")
	}
}

func TestShutdownAppliesFailSafeNotLastValue(t *testing.T) {
	r := newRig(t, map[string]any{"shutdown_value_feed": 0})
	r.lower.Set(1)
	r.tick(t)
	if r.feed.Value() != 1 {
		t.Fatalf("feed pin: got %v, want 1", r.feed.Value())
	}

	if err := r.alloc.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if r.feed.Value() != 0 {
		t.Errorf("feed pin after shutdown: got %v, want fail-safe 0", r.feed.Value())
	}
}

func TestState(t *testing.T) {
	r := newRig(t, nil)
	r.lower.Set(1)
	r.tick(t)

	want := State{Upper: 0, Lower: 1, Feed: 1, Feeding: true}
	if got := r.ctrl.State(); got != want {
		t.Errorf("State: got %+v, want %+v", got, want)
	}
}

func TestEventMessageUnknown(t *testing.T) {
	if got := (Event{Type: "OTHER"}).Message(); got != "OTHER" {
		t.Errorf("got %q, want OTHER", got)
	}
}

func TestCheckHeartbeat(t *testing.T) {
	r := newRig(t, nil)
	r.lower.Set(1)
	r.tick(t)

	if hb := r.ctrl.CheckHeartbeat(t0.Add(time.Minute), 0); hb != nil {
		t.Error("heartbeat disabled with interval 0")
	}
	if hb := r.ctrl.CheckHeartbeat(t0.Add(14*time.Minute), 15*time.Minute); hb != nil {
		t.Error("heartbeat should not fire before interval")
	}

	hb := r.ctrl.CheckHeartbeat(t0.Add(15*time.Minute), 15*time.Minute)
	if hb == nil {
		t.Fatal("expected heartbeat at interval")
	}
	if hb.Uptime != 15*time.Minute {
		t.Errorf("Uptime: got %v, want 15m", hb.Uptime)
	}
	if hb.Counts.Starts != 1 {
		t.Errorf("Counts.Starts: got %d, want 1", hb.Counts.Starts)
	}

	if hb := r.ctrl.CheckHeartbeat(t0.Add(20*time.Minute), 15*time.Minute); hb != nil {
		t.Error("heartbeat should reset after firing")
	}
	if hb := r.ctrl.CheckHeartbeat(t0.Add(30*time.Minute), 15*time.Minute); hb == nil {
		t.Error("expected second heartbeat")
	}
}
