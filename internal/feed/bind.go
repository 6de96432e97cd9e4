package feed

import (
	"fmt"

	"github.com/sweeney/material-feed/internal/config"
	"github.com/sweeney/material-feed/internal/gpio"
)

// Configuration keys.
const (
	KeyUpperPin = "upper_sensor_pin"
	KeyLowerPin = "lower_sensor_pin"
	KeyFeedPin  = "feed_pin"
)

type channelSpec struct {
	name   string
	pinKey string
	kind   gpio.Kind
}

var channelSpecs = []channelSpec{
	{ChannelUpper, KeyUpperPin, gpio.Input},
	{ChannelLower, KeyLowerPin, gpio.Input},
	{ChannelFeed, KeyFeedPin, gpio.Output},
}

// Bind resolves the three channels from src and allocates their pins.
// Every option is validated before any pin is allocated, so a
// configuration error leaves the allocator untouched. Returned errors are
// *config.MissingKeyError, *config.RangeError or *config.TypeError for
// configuration problems, and wrapped allocator errors otherwise.
func Bind(src config.Source, alloc gpio.Allocator) (*Channels, error) {
	chans := make([]*Channel, len(channelSpecs))
	for i, spec := range channelSpecs {
		pin, err := src.Get(spec.pinKey)
		if err != nil {
			return nil, err
		}
		chans[i] = &Channel{name: spec.name, pin: pin}
	}

	for i, spec := range channelSpecs {
		v, err := src.GetFloat("value_"+spec.name, 0, 0, 1)
		if err != nil {
			return nil, err
		}
		fs, err := src.GetFloat("shutdown_value_"+spec.name, 0, 0, 1)
		if err != nil {
			return nil, err
		}
		// The feed output is digital: any non-zero start value means on.
		if spec.kind == gpio.Output && v != 0 {
			v = 1
		}
		chans[i].value = v
		chans[i].failSafe = fs
	}

	for i, spec := range channelSpecs {
		c := chans[i]
		h, err := alloc.Allocate(spec.kind, c.pin, c.value)
		if err != nil {
			closeBound(chans[:i])
			return nil, fmt.Errorf("bind %s channel: %w", c.name, err)
		}
		c.handle = h
		if err := h.SetFailSafe(c.failSafe); err != nil {
			closeBound(chans[:i+1])
			return nil, fmt.Errorf("bind %s channel: %w", c.name, err)
		}
	}

	return &Channels{Upper: chans[0], Lower: chans[1], Feed: chans[2]}, nil
}

func closeBound(chans []*Channel) {
	for _, c := range chans {
		c.handle.Close()
	}
}
