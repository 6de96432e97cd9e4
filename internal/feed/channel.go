package feed

import "github.com/sweeney/material-feed/internal/gpio"

// Channel names, also used as configuration key suffixes.
const (
	ChannelUpper = "upper"
	ChannelLower = "lower"
	ChannelFeed  = "feed"
)

// Channel is a logical IO endpoint: a cached value, the value applied on
// shutdown and the handle of the pin behind it.
type Channel struct {
	name     string
	pin      string
	value    float64
	failSafe float64
	handle   gpio.Handle
}

// Name returns the channel name.
func (c *Channel) Name() string { return c.name }

// Pin returns the configured pin identifier.
func (c *Channel) Pin() string { return c.pin }

// Value returns the last observed (sensor) or commanded (feed) value.
func (c *Channel) Value() float64 { return c.value }

// FailSafe returns the value the IO layer applies on shutdown.
func (c *Channel) FailSafe() float64 { return c.failSafe }

// Active reports whether the channel is at its active level.
func (c *Channel) Active() bool { return c.value == 1 }

// refresh reads the handle into the cached value.
func (c *Channel) refresh() error {
	v, err := c.handle.Read()
	if err != nil {
		return &IOError{Channel: c.name, Op: "read", Err: err}
	}
	c.value = v
	return nil
}

// command writes v to the handle. The cached value only changes once the
// write succeeded.
func (c *Channel) command(v float64) error {
	if err := c.handle.Write(v); err != nil {
		return &IOError{Channel: c.name, Op: "write", Err: err}
	}
	c.value = v
	return nil
}

// Channels holds the three bound channels.
type Channels struct {
	Upper *Channel
	Lower *Channel
	Feed  *Channel
}

// Close closes the three handles, which applies their fail-safe values.
func (cs *Channels) Close() error {
	var first error
	for _, c := range []*Channel{cs.Upper, cs.Lower, cs.Feed} {
		if c == nil || c.handle == nil {
			continue
		}
		if err := c.handle.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
