package feed

import (
	"errors"
	"testing"

	"github.com/sweeney/material-feed/internal/config"
	"github.com/sweeney/material-feed/internal/gpio"
)

func baseConfig() map[string]any {
	return map[string]any{
		KeyUpperPin: "^gpiochip0/17",
		KeyLowerPin: "^gpiochip0/27",
		KeyFeedPin:  "gpiochip0/22",
	}
}

func bindWith(t *testing.T, values map[string]any) (*Channels, *gpio.FakeAllocator) {
	t.Helper()
	alloc := gpio.NewFakeAllocator()
	ch, err := Bind(config.NewSection("material_feed", values), alloc)
	if err != nil {
		t.Fatalf("Bind: %v", err)
	}
	return ch, alloc
}

func TestBindDefaults(t *testing.T) {
	ch, alloc := bindWith(t, baseConfig())

	for _, c := range []*Channel{ch.Upper, ch.Lower, ch.Feed} {
		if c.Value() != 0 {
			t.Errorf("%s value: got %v, want 0", c.Name(), c.Value())
		}
		if c.FailSafe() != 0 {
			t.Errorf("%s fail-safe: got %v, want 0", c.Name(), c.FailSafe())
		}
	}

	if ch.Upper.Name() != ChannelUpper || ch.Lower.Name() != ChannelLower || ch.Feed.Name() != ChannelFeed {
		t.Errorf("unexpected names: %s %s %s", ch.Upper.Name(), ch.Lower.Name(), ch.Feed.Name())
	}
	if ch.Feed.Pin() != "gpiochip0/22" {
		t.Errorf("feed pin: got %q", ch.Feed.Pin())
	}

	up := alloc.Handle("17")
	if up == nil || up.Kind() != gpio.Input {
		t.Fatalf("upper sensor should be an allocated input, got %+v", up)
	}
	if lo := alloc.Handle("27"); lo == nil || lo.Kind() != gpio.Input {
		t.Fatal("lower sensor should be an allocated input")
	}
	feed := alloc.Handle("22")
	if feed == nil || feed.Kind() != gpio.Output {
		t.Fatal("feed should be an allocated output")
	}
	if len(feed.Writes()) != 0 {
		t.Errorf("bind should not write the feed pin, got %v", feed.Writes())
	}
}

func TestBindValues(t *testing.T) {
	cfg := baseConfig()
	cfg["value_upper"] = 1
	cfg["shutdown_value_upper"] = 0.5
	cfg["value_lower"] = 0.0
	cfg["shutdown_value_lower"] = 1.0
	cfg["value_feed"] = 0.3
	cfg["shutdown_value_feed"] = 0.0

	ch, alloc := bindWith(t, cfg)

	if ch.Upper.Value() != 1 {
		t.Errorf("upper value: got %v, want 1", ch.Upper.Value())
	}
	if ch.Upper.FailSafe() != 0.5 {
		t.Errorf("upper fail-safe: got %v, want 0.5", ch.Upper.FailSafe())
	}
	if ch.Lower.FailSafe() != 1 {
		t.Errorf("lower fail-safe: got %v, want 1", ch.Lower.FailSafe())
	}
	// Digital output: a fractional start value means on.
	if ch.Feed.Value() != 1 {
		t.Errorf("feed value: got %v, want 1", ch.Feed.Value())
	}
	if v := alloc.Handle("22").Value(); v != 1 {
		t.Errorf("feed pin start: got %v, want 1", v)
	}
	if v := alloc.Handle("17").Value(); v != 1 {
		t.Errorf("upper pin start: got %v, want 1", v)
	}
	if fs := alloc.Handle("17").FailSafe(); fs != 0.5 {
		t.Errorf("upper handle fail-safe: got %v, want 0.5", fs)
	}
}

func TestBindMissingKey(t *testing.T) {
	for _, key := range []string{KeyUpperPin, KeyLowerPin, KeyFeedPin} {
		t.Run(key, func(t *testing.T) {
			cfg := baseConfig()
			delete(cfg, key)
			alloc := gpio.NewFakeAllocator()

			ch, err := Bind(config.NewSection("material_feed", cfg), alloc)
			if ch != nil {
				t.Error("expected nil channels")
			}
			var mk *config.MissingKeyError
			if !errors.As(err, &mk) {
				t.Fatalf("expected *config.MissingKeyError, got %v", err)
			}
			if mk.Key != key {
				t.Errorf("missing key: got %q, want %q", mk.Key, key)
			}
			for _, pin := range []string{"17", "27", "22"} {
				if alloc.Handle(pin) != nil {
					t.Errorf("pin %s allocated despite config error", pin)
				}
			}
		})
	}
}

func TestBindRangeError(t *testing.T) {
	keys := []string{
		"value_upper", "shutdown_value_upper",
		"value_lower", "shutdown_value_lower",
		"value_feed", "shutdown_value_feed",
	}
	for _, key := range keys {
		for _, bad := range []float64{1.5, -0.5} {
			cfg := baseConfig()
			cfg[key] = bad
			alloc := gpio.NewFakeAllocator()

			ch, err := Bind(config.NewSection("material_feed", cfg), alloc)
			if ch != nil {
				t.Errorf("%s=%v: expected nil channels", key, bad)
			}
			var re *config.RangeError
			if !errors.As(err, &re) {
				t.Fatalf("%s=%v: expected *config.RangeError, got %v", key, bad, err)
			}
			if re.Key != key {
				t.Errorf("range error key: got %q, want %q", re.Key, key)
			}
			if alloc.Handle("22") != nil {
				t.Errorf("%s=%v: feed pin allocated despite config error", key, bad)
			}
		}
	}
}

func TestBindTypeError(t *testing.T) {
	cfg := baseConfig()
	cfg["value_feed"] = "on"
	_, err := Bind(config.NewSection("material_feed", cfg), gpio.NewFakeAllocator())
	var te *config.TypeError
	if !errors.As(err, &te) {
		t.Fatalf("expected *config.TypeError, got %v", err)
	}
}

func TestBindSharedPin(t *testing.T) {
	cfg := baseConfig()
	cfg[KeyFeedPin] = "17"
	alloc := gpio.NewFakeAllocator()

	_, err := Bind(config.NewSection("material_feed", cfg), alloc)
	if !errors.Is(err, gpio.ErrPinInUse) {
		t.Fatalf("expected gpio.ErrPinInUse, got %v", err)
	}
	// Already bound sensors are released.
	if !alloc.Handle("17").Closed() || !alloc.Handle("27").Closed() {
		t.Error("sensor handles should be closed after a failed bind")
	}
}

func TestBindAllocateError(t *testing.T) {
	alloc := gpio.NewFakeAllocator()
	alloc.AllocateError = errors.New("no chip")

	_, err := Bind(config.NewSection("material_feed", baseConfig()), alloc)
	if err == nil {
		t.Fatal("expected error")
	}
	if err.Error() != "bind upper channel: no chip" {
		t.Errorf("unexpected error: %v", err)
	}
}

func TestChannelsCloseAppliesFailSafe(t *testing.T) {
	cfg := baseConfig()
	cfg["value_feed"] = 1
	cfg["shutdown_value_feed"] = 0
	ch, alloc := bindWith(t, cfg)

	if err := ch.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	feed := alloc.Handle("22")
	if !feed.Closed() {
		t.Error("feed handle should be closed")
	}
	if feed.Value() != 0 {
		t.Errorf("feed after close: got %v, want 0", feed.Value())
	}
}
