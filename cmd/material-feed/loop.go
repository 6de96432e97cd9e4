package main

import (
	"fmt"
	"os"
	"syscall"
	"time"

	"github.com/charmbracelet/log"

	"github.com/sweeney/material-feed/internal/feed"
	"github.com/sweeney/material-feed/internal/mqtt"
	"github.com/sweeney/material-feed/internal/status"
)

// scheduler drives the controller from a tick channel until a signal
// arrives or a tick fails. It is the only caller of ctrl.Tick.
type scheduler struct {
	ctrl       *feed.Controller
	publisher  mqtt.Publisher
	mqttStatus mqtt.ConnectionStatus // may be nil
	tracker    *status.Tracker       // may be nil
	logger     *log.Logger
	heartbeat  time.Duration
	runID      string
	now        func() time.Time
}

// run returns nil on SIGINT/SIGTERM and the tick error on an IO failure.
// IO errors are not retried: the caller exits and the fail-safe values are
// applied when the pins are released.
func (s *scheduler) run(tick <-chan time.Time, sig <-chan os.Signal) error {
	for {
		select {
		case sg := <-sig:
			s.logger.Info("shutting down", "signal", sg)
			s.publishShutdown(signalName(sg))
			return nil

		case <-tick:
			if err := s.step(s.now()); err != nil {
				s.logger.Error("feed tick failed, halting", "err", err)
				s.publishShutdown("IO_ERROR")
				return fmt.Errorf("tick: %w", err)
			}
		}
	}
}

func (s *scheduler) step(t time.Time) error {
	event, err := s.ctrl.Tick(t)
	if err != nil {
		return err
	}

	state := s.ctrl.State()
	s.logger.Debug("channels", "upper", state.Upper, "lower", state.Lower, "feed", state.Feed)

	if event != nil {
		s.logger.Info(event.Message(), "upper", event.Upper, "lower", event.Lower)
		if err := s.publisher.Publish(*event); err != nil {
			// Don't stop feeding control on publish failure
			s.logger.Warn("publish error", "err", err)
		}
	}

	if s.tracker != nil {
		s.tracker.Update(state, s.ctrl.Counts())
		if s.mqttStatus != nil {
			s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
		}
	}

	// Check for heartbeat
	if hb := s.ctrl.CheckHeartbeat(t, s.heartbeat); hb != nil {
		s.logger.Info("heartbeat", "uptime", hb.Uptime, "starts", hb.Counts.Starts, "stops", hb.Counts.Stops)

		hbEvent := mqtt.SystemEvent{
			Timestamp: hb.Timestamp,
			Event:     "HEARTBEAT",
			RunID:     s.runID,
		}
		if s.tracker != nil {
			// Refresh network info for heartbeat
			if net := readNetworkInfo(); net != nil {
				s.tracker.SetNetwork(net)
			}
			hbEvent.RawPayload = status.FormatStatusEvent(s.tracker.Snapshot(), "HEARTBEAT", "")
		}
		if err := s.publisher.PublishSystem(hbEvent); err != nil {
			s.logger.Warn("heartbeat publish error", "err", err)
		}
	}
	return nil
}

func (s *scheduler) publishShutdown(reason string) {
	event := mqtt.SystemEvent{
		Timestamp: s.now(),
		Event:     "SHUTDOWN",
		Reason:    reason,
		RunID:     s.runID,
		Retained:  true,
	}
	if s.tracker != nil {
		if s.mqttStatus != nil {
			s.tracker.SetMQTTConnected(s.mqttStatus.IsConnected())
		}
		event.RawPayload = status.FormatStatusEvent(s.tracker.Snapshot(), "SHUTDOWN", reason)
	}
	if err := s.publisher.PublishSystem(event); err != nil {
		s.logger.Warn("failed to publish shutdown event", "err", err)
	}
}

func signalName(sg os.Signal) string {
	switch sg {
	case syscall.SIGINT:
		return "SIGINT"
	case syscall.SIGTERM:
		return "SIGTERM"
	}
	return "UNKNOWN"
}
