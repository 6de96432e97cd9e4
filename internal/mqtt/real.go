package mqtt

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/sweeney/material-feed/internal/feed"
)

const (
	// bufferCapacity is the number of messages kept while disconnected.
	bufferCapacity = 256

	// queueSize bounds messages waiting for the sender goroutine.
	queueSize = 64

	sendTimeout = 5 * time.Second
)

var (
	// ErrQueueFull is returned when the sender cannot keep up with publishes.
	ErrQueueFull = errors.New("mqtt: publish queue full")

	// ErrClosed is returned by publishes after Close.
	ErrClosed = errors.New("mqtt: publisher closed")
)

// RealPublisher publishes to an actual MQTT broker. Publish and
// PublishSystem only enqueue; a single sender goroutine talks to the broker,
// so a slow or stalled broker never blocks the caller. Messages published
// while the connection is down are buffered and replayed on reconnect, in
// publish order.
type RealPublisher struct {
	client  paho.Client
	topic   string
	runID   string
	logger  *log.Logger
	timeout time.Duration

	queue   chan bufferedMsg
	flush   chan struct{}
	done    chan struct{}
	stopped chan struct{}
	once    sync.Once

	mu            sync.Mutex
	buf           *ringBuffer
	connected     bool
	connectedOnce bool
}

// NewRealPublisher creates a publisher for the given broker. The connection
// is established in the background and retried until it succeeds.
func NewRealPublisher(broker, runID string, logger *log.Logger) *RealPublisher {
	return newRealPublisher(broker, runID, logger, bufferCapacity)
}

func newRealPublisher(broker, runID string, logger *log.Logger, capacity int) *RealPublisher {
	p := &RealPublisher{
		topic:   Topic,
		runID:   runID,
		logger:  logger,
		timeout: sendTimeout,
		queue:   make(chan bufferedMsg, queueSize),
		flush:   make(chan struct{}, 1),
		done:    make(chan struct{}),
		stopped: make(chan struct{}),
		buf:     newRingBuffer(capacity),
	}

	clientID := "material-feed"
	if len(runID) >= 8 {
		clientID += "-" + runID[:8]
	}

	opts := paho.NewClientOptions().
		AddBroker(broker).
		SetClientID(clientID).
		SetAutoReconnect(true).
		SetConnectRetry(true).
		SetConnectRetryInterval(5 * time.Second).
		SetMaxReconnectInterval(30 * time.Second).
		SetOnConnectHandler(p.onConnect).
		SetConnectionLostHandler(p.onConnectionLost)
	if will, err := FormatWillPayload(time.Now(), runID); err == nil {
		opts.SetBinaryWill(TopicSystem, will, 1, true)
	}

	p.client = paho.NewClient(opts)
	go p.run()
	p.client.Connect()
	return p
}

func (p *RealPublisher) onConnect(_ paho.Client) {
	p.mu.Lock()
	reconnect := p.connectedOnce
	p.connectedOnce = true
	p.connected = true
	if reconnect {
		if payload, err := FormatSystemPayload(SystemEvent{
			Timestamp: time.Now(),
			Event:     "RECONNECTED",
			RunID:     p.runID,
		}); err == nil {
			p.buf.push(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1})
		}
	}
	buffered := p.buf.len()
	p.mu.Unlock()

	p.logger.Info("connected to broker", "buffered", buffered)

	select {
	case p.flush <- struct{}{}:
	default:
	}
}

func (p *RealPublisher) onConnectionLost(_ paho.Client, err error) {
	p.mu.Lock()
	p.connected = false
	p.mu.Unlock()
	p.logger.Warn("connection to broker lost", "err", err)
}

// run is the sender goroutine. It owns every call to send.
func (p *RealPublisher) run() {
	defer close(p.stopped)
	for {
		select {
		case msg := <-p.queue:
			p.deliver(&msg)
		case <-p.flush:
			p.deliver(nil)
		case <-p.done:
			p.drain()
			return
		}
	}
}

// drain delivers what is still queued at Close, giving up on the first
// send that fails.
func (p *RealPublisher) drain() {
	for {
		select {
		case msg := <-p.queue:
			if err := p.deliver(&msg); err != nil {
				return
			}
		default:
			return
		}
	}
}

// deliver sends msg after any buffered messages, or buffers it while the
// connection is down. A nil msg only flushes the buffer.
func (p *RealPublisher) deliver(msg *bufferedMsg) error {
	p.mu.Lock()
	if !p.connected {
		var overflow bool
		if msg != nil {
			overflow = p.buf.push(*msg)
		}
		p.mu.Unlock()
		if overflow {
			p.logger.Warn("buffer full, dropping oldest", "capacity", p.buf.capacity)
		}
		return nil
	}
	pending := p.buf.drainAll()
	p.mu.Unlock()

	if msg != nil {
		pending = append(pending, *msg)
	}
	var lastErr error
	for _, m := range pending {
		if err := p.send(m); err != nil {
			p.logger.Warn("publish error", "topic", m.topic, "err", err)
			lastErr = err
		}
	}
	return lastErr
}

func (p *RealPublisher) send(m bufferedMsg) error {
	token := p.client.Publish(m.topic, m.qos, m.retained, m.payload)
	if !token.WaitTimeout(p.timeout) {
		return fmt.Errorf("publish timeout after %v", p.timeout)
	}
	if err := token.Error(); err != nil {
		return fmt.Errorf("publish: %w", err)
	}
	return nil
}

// enqueue hands the message to the sender without blocking.
func (p *RealPublisher) enqueue(msg bufferedMsg) error {
	select {
	case <-p.done:
		return ErrClosed
	default:
	}
	select {
	case p.queue <- msg:
		return nil
	default:
		return ErrQueueFull
	}
}

// Publish queues a feed event for the MQTT broker.
func (p *RealPublisher) Publish(event feed.Event) error {
	payload, err := FormatPayload(event)
	if err != nil {
		return fmt.Errorf("format payload: %w", err)
	}

	// QoS 1: transitions change the physical state and should not be lost.
	return p.enqueue(bufferedMsg{topic: p.topic, payload: payload, qos: 1})
}

// PublishSystem queues a system lifecycle event for the MQTT broker.
func (p *RealPublisher) PublishSystem(event SystemEvent) error {
	payload, err := FormatSystemPayload(event)
	if err != nil {
		return fmt.Errorf("format system payload: %w", err)
	}
	return p.enqueue(bufferedMsg{topic: TopicSystem, payload: payload, qos: 1, retained: event.Retained})
}

// IsConnected reports whether the broker connection is up.
func (p *RealPublisher) IsConnected() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.connected
}

// Close stops the sender after it has tried to deliver queued messages,
// then disconnects from the broker.
func (p *RealPublisher) Close() error {
	p.once.Do(func() {
		close(p.done)
		select {
		case <-p.stopped:
		case <-time.After(p.timeout + time.Second):
			p.logger.Warn("sender did not stop, disconnecting anyway")
		}
		p.client.Disconnect(1000) // 1 second timeout
	})
	return nil
}
