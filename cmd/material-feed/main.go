// Command material-feed polls two level sensors and switches a feed output
// so material is dispensed below the lower sensor and withheld at the upper one.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/sweeney/material-feed/internal/config"
	"github.com/sweeney/material-feed/internal/feed"
	"github.com/sweeney/material-feed/internal/gpio"
	"github.com/sweeney/material-feed/internal/mqtt"
	"github.com/sweeney/material-feed/internal/status"
	"github.com/sweeney/material-feed/internal/web"
)

// sectionName is the configuration section holding the feed options.
const sectionName = "material_feed"

// Backends accepted by -backend.
const (
	backendChip = "gpiocdev"
	backendRPIO = "rpio"
	backendSim  = "sim"
)

type options struct {
	configPath string
	backend    string
	poll       time.Duration
	broker     string
	heartbeat  time.Duration
	httpAddr   string
	debug      bool
	printState bool
}

func main() {
	var opts options
	flag.StringVar(&opts.configPath, "config", "/etc/material-feed.yaml", "YAML configuration file")
	flag.StringVar(&opts.backend, "backend", backendChip, "pin backend: gpiocdev, rpio or sim")
	flag.DurationVar(&opts.poll, "poll", 100*time.Millisecond, "sensor polling interval")
	flag.StringVar(&opts.broker, "broker", "tcp://127.0.0.1:1883", "MQTT broker address (empty to disable)")
	flag.DurationVar(&opts.heartbeat, "heartbeat", 15*time.Minute, "Heartbeat interval (0 to disable)")
	flag.StringVar(&opts.httpAddr, "http", ":8080", "HTTP status address (empty to disable)")
	flag.BoolVar(&opts.debug, "debug", false, "log channel values on every tick")
	flag.BoolVar(&opts.printState, "print-state", false, "Print current channel values and exit")
	flag.Parse()

	logger := log.NewWithOptions(os.Stderr, log.Options{
		ReportTimestamp: true,
		TimeFormat:      time.DateTime,
	})
	if opts.debug {
		logger.SetLevel(log.DebugLevel)
	}

	if err := run(opts, logger); err != nil {
		logger.Fatal("fatal", "err", err)
	}
}

func newAllocator(backend string) (gpio.Allocator, *gpio.FakeAllocator, error) {
	switch backend {
	case backendChip:
		a, err := gpio.NewChipAllocator()
		return a, nil, err
	case backendRPIO:
		a, err := gpio.NewRPIOAllocator()
		return a, nil, err
	case backendSim:
		a := gpio.NewFakeAllocator()
		return a, a, nil
	}
	return nil, nil, fmt.Errorf("unknown backend %q", backend)
}

func run(opts options, logger *log.Logger) error {
	if opts.poll <= 0 {
		return fmt.Errorf("poll interval must be positive, got %v", opts.poll)
	}

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	section := cfg.Section(sectionName)

	alloc, sim, err := newAllocator(opts.backend)
	if err != nil {
		return fmt.Errorf("init gpio: %w", err)
	}
	// Closing the allocator drives every output to its fail-safe value.
	var releaseOnce sync.Once
	release := func() {
		releaseOnce.Do(func() {
			if err := alloc.Close(); err != nil {
				logger.Error("release gpio", "err", err)
			} else {
				logger.Info("applied fail-safe values")
			}
		})
	}
	defer release()

	channels, err := feed.Bind(section, alloc)
	if err != nil {
		return fmt.Errorf("bind channels: %w", err)
	}
	if err := section.CheckUnused(); err != nil {
		return err
	}

	startTime := time.Now()
	ctrl := feed.NewController(channels, startTime)

	// Print state mode
	if opts.printState {
		if err := ctrl.ReadSensors(); err != nil {
			return fmt.Errorf("read channels: %w", err)
		}
		s := ctrl.State()
		fmt.Printf("upper: %g, lower: %g, feed: %g\n", s.Upper, s.Lower, s.Feed)
		return nil
	}

	runID := uuid.NewString()

	var publisher mqtt.Publisher = discardPublisher{}
	var mqttStatus mqtt.ConnectionStatus
	if opts.broker != "" {
		rp := mqtt.NewRealPublisher(opts.broker, runID, logger.WithPrefix("mqtt"))
		defer rp.Close()
		publisher, mqttStatus = rp, rp
	}

	tracker := status.NewTracker(startTime, status.Config{
		PollMs:      opts.poll.Milliseconds(),
		HeartbeatMs: opts.heartbeat.Milliseconds(),
		Broker:      opts.broker,
		HTTPAddr:    opts.httpAddr,
		Backend:     opts.backend,
		Pins: status.Pins{
			Upper: channels.Upper.Pin(),
			Lower: channels.Lower.Pin(),
			Feed:  channels.Feed.Pin(),
		},
		RunID: runID,
	})
	if net := readNetworkInfo(); net != nil {
		tracker.SetNetwork(net)
	}

	// Publish startup event with full status snapshot
	snap := tracker.Snapshot()
	startupEvent := mqtt.SystemEvent{
		Timestamp:  snap.Now,
		Event:      "STARTUP",
		RunID:      runID,
		Retained:   true,
		RawPayload: status.FormatStatusEvent(snap, "STARTUP", ""),
	}
	if err := publisher.PublishSystem(startupEvent); err != nil {
		logger.Warn("failed to publish startup event", "err", err)
	}

	// Start HTTP status server
	if opts.httpAddr != "" {
		var setter web.InputSetter
		if sim != nil {
			setter = sim
		}
		srv := web.New(opts.httpAddr, tracker, setter)
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("http server error", "err", err)
			}
		}()
		defer srv.Shutdown(context.Background())
		logger.Info("http status server listening", "addr", opts.httpAddr)
	}

	logger.Info("started",
		"backend", opts.backend,
		"poll", opts.poll,
		"broker", opts.broker,
		"heartbeat", opts.heartbeat,
		"upper", channels.Upper.Pin(),
		"lower", channels.Lower.Pin(),
		"feed", channels.Feed.Pin())

	ticker := time.NewTicker(opts.poll)
	defer ticker.Stop()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	sched := &scheduler{
		ctrl:       ctrl,
		publisher:  publisher,
		mqttStatus: mqttStatus,
		tracker:    tracker,
		logger:     logger,
		heartbeat:  opts.heartbeat,
		runID:      runID,
		now:        time.Now,
	}
	err = sched.run(ticker.C, sigCh)
	// Outputs go to their fail-safe values before the publisher is given
	// time to flush the shutdown event.
	release()
	return err
}

// discardPublisher is used when MQTT is disabled.
type discardPublisher struct{}

func (discardPublisher) Publish(feed.Event) error             { return nil }
func (discardPublisher) PublishSystem(mqtt.SystemEvent) error { return nil }
func (discardPublisher) Close() error                         { return nil }

// pi-helper env var names (written to /run/pi-helper.env).
const (
	envNetworkType       = "NETWORK_TYPE"
	envNetworkIP         = "NETWORK_IP"
	envNetworkStatus     = "NETWORK_STATUS"
	envNetworkGateway    = "NETWORK_GATEWAY"
	envNetworkWifiStatus = "NETWORK_WIFI_STATUS"
	envNetworkWifiSSID   = "NETWORK_WIFI_SSID"
)

func readNetworkInfo() *status.NetworkInfo {
	s := os.Getenv(envNetworkStatus)
	if s == "" {
		return nil
	}
	return &status.NetworkInfo{
		Type:       os.Getenv(envNetworkType),
		IP:         os.Getenv(envNetworkIP),
		Status:     s,
		Gateway:    os.Getenv(envNetworkGateway),
		WifiStatus: os.Getenv(envNetworkWifiStatus),
		SSID:       os.Getenv(envNetworkWifiSSID),
	}
}
