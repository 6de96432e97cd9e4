//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/stianeikeland/go-rpio/v4"
)

// RPIOAllocator drives Raspberry Pi pins through /dev/gpiomem. Offsets are
// BCM numbers; chip names other than DefaultChip are rejected. Only one
// RPIOAllocator may exist per process.
type RPIOAllocator struct {
	mu   sync.Mutex
	pins map[string]*rpioPin
}

// NewRPIOAllocator maps the GPIO registers.
func NewRPIOAllocator() (*RPIOAllocator, error) {
	if err := rpio.Open(); err != nil {
		return nil, fmt.Errorf("open rpio: %w", err)
	}
	return &RPIOAllocator{pins: make(map[string]*rpioPin)}, nil
}

// Allocate configures a BCM pin.
func (a *RPIOAllocator) Allocate(kind Kind, pin string, start float64) (Handle, error) {
	p, err := ParsePin(pin)
	if err != nil {
		return nil, err
	}
	if p.Chip != DefaultChip {
		return nil, fmt.Errorf("rpio: pin %q: only %s is supported", pin, DefaultChip)
	}
	if err := checkValue(start); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.pins[p.Key()]; ok {
		return nil, fmt.Errorf("allocate %s: %w", p.Key(), ErrPinInUse)
	}

	rp := &rpioPin{pin: rpio.Pin(p.Offset), kind: kind, activeLow: p.ActiveLow}
	if kind == Output {
		rp.write(level(start))
		rp.pin.Output()
	} else {
		rp.pin.Input()
		switch p.Pull {
		case PullUp:
			rp.pin.PullUp()
		case PullDown:
			rp.pin.PullDown()
		default:
			rp.pin.PullOff()
		}
	}
	a.pins[p.Key()] = rp
	return rp, nil
}

// Close applies fail-safe values and unmaps the registers.
func (a *RPIOAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, p := range a.pins {
		p.Close()
	}
	a.pins = make(map[string]*rpioPin)
	if err := rpio.Close(); err != nil {
		return fmt.Errorf("close rpio: %w", err)
	}
	return nil
}

// rpioPin inverts active-low pins in software.
type rpioPin struct {
	mu        sync.Mutex
	pin       rpio.Pin
	kind      Kind
	activeLow bool
	failSafe  float64
	closed    bool
}

func (p *rpioPin) write(lvl int) {
	if p.activeLow {
		lvl ^= 1
	}
	if lvl == 1 {
		p.pin.Write(rpio.High)
	} else {
		p.pin.Write(rpio.Low)
	}
}

func (p *rpioPin) Read() (float64, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return 0, ErrClosed
	}
	high := p.pin.Read() == rpio.High
	if high != p.activeLow {
		return 1, nil
	}
	return 0, nil
}

func (p *rpioPin) Write(v float64) error {
	if p.kind != Output {
		return ErrNotOutput
	}
	if err := checkValue(v); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return ErrClosed
	}
	p.write(level(v))
	return nil
}

func (p *rpioPin) SetFailSafe(v float64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	p.mu.Lock()
	p.failSafe = v
	p.mu.Unlock()
	return nil
}

func (p *rpioPin) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	if p.kind == Output {
		p.write(level(p.failSafe))
	}
	p.closed = true
	return nil
}
