package feed

import "time"

// Controller starts feeding when the lower sensor is active and stops once
// the upper sensor is. Tick must not be called concurrently.
type Controller struct {
	ch            *Channels
	startTime     time.Time
	counts        EventCounts
	lastHeartbeat time.Time
}

// NewController creates a controller over bound channels.
// The startTime is used for calculating uptime in heartbeat events.
func NewController(ch *Channels, startTime time.Time) *Controller {
	return &Controller{
		ch:            ch,
		startTime:     startTime,
		lastHeartbeat: startTime,
	}
}

// Tick reads both sensors and applies the decision rule once. It returns
// the resulting transition, or nil when the output is left unchanged.
// Read and write failures are returned as *IOError and are not retried.
//
// The rule is level-based and checked in priority order:
//   - lower active and not feeding: start feeding
//   - upper active and feeding: stop feeding
//
// Repeated ticks with unchanged sensors never fire twice, because each
// branch is guarded by the current feed state.
func (c *Controller) Tick(now time.Time) (*Event, error) {
	if err := c.ReadSensors(); err != nil {
		return nil, err
	}

	switch {
	case c.ch.Lower.Active() && !c.Feeding():
		return c.startFeeding(now)
	case c.ch.Upper.Active() && c.Feeding():
		return c.stopFeeding(now)
	}
	return nil, nil
}

// ReadSensors refreshes the lower and upper sensor values without
// evaluating the rule.
func (c *Controller) ReadSensors() error {
	if err := c.ch.Lower.refresh(); err != nil {
		return err
	}
	return c.ch.Upper.refresh()
}

func (c *Controller) startFeeding(now time.Time) (*Event, error) {
	if err := c.ch.Feed.command(1); err != nil {
		return nil, err
	}
	c.counts.Starts++
	return c.event(now, EventFeedStart), nil
}

func (c *Controller) stopFeeding(now time.Time) (*Event, error) {
	if err := c.ch.Feed.command(0); err != nil {
		return nil, err
	}
	c.counts.Stops++
	return c.event(now, EventFeedStop), nil
}

func (c *Controller) event(now time.Time, t EventType) *Event {
	return &Event{
		Timestamp: now,
		Type:      t,
		Upper:     c.ch.Upper.Value(),
		Lower:     c.ch.Lower.Value(),
		Feed:      c.ch.Feed.Value(),
	}
}

// Feeding reports whether the feed output is commanded on. It is derived
// from the feed channel value, never stored separately.
func (c *Controller) Feeding() bool {
	return c.ch.Feed.Value() != 0
}

// State returns the current channel values.
func (c *Controller) State() State {
	return State{
		Upper:   c.ch.Upper.Value(),
		Lower:   c.ch.Lower.Value(),
		Feed:    c.ch.Feed.Value(),
		Feeding: c.Feeding(),
	}
}

// Counts returns the number of starts and stops since creation.
func (c *Controller) Counts() EventCounts {
	return c.counts
}

// CheckHeartbeat returns heartbeat data if the interval has elapsed since the
// last heartbeat (or startup). Returns nil if the interval has not elapsed,
// or if interval is <= 0 (disabled).
func (c *Controller) CheckHeartbeat(now time.Time, interval time.Duration) *HeartbeatData {
	if interval <= 0 {
		return nil
	}
	if now.Sub(c.lastHeartbeat) < interval {
		return nil
	}

	c.lastHeartbeat = now
	return &HeartbeatData{
		Timestamp: now,
		Uptime:    now.Sub(c.startTime),
		Counts:    c.counts,
	}
}
