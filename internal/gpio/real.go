//go:build linux

package gpio

import (
	"fmt"
	"sync"

	"github.com/warthog618/go-gpiocdev"
)

// consumer labels requested lines in the kernel (visible in gpioinfo).
const consumer = "material-feed"

// ChipAllocator allocates lines through the Linux GPIO character device.
type ChipAllocator struct {
	mu    sync.Mutex
	chips map[string]*gpiocdev.Chip
	lines map[string]*chipLine
}

// NewChipAllocator creates an allocator. Chips are opened on first use.
func NewChipAllocator() (*ChipAllocator, error) {
	return &ChipAllocator{
		chips: make(map[string]*gpiocdev.Chip),
		lines: make(map[string]*chipLine),
	}, nil
}

// Allocate requests the line described by pin.
func (a *ChipAllocator) Allocate(kind Kind, pin string, start float64) (Handle, error) {
	p, err := ParsePin(pin)
	if err != nil {
		return nil, err
	}
	if err := checkValue(start); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.lines[p.Key()]; ok {
		return nil, fmt.Errorf("allocate %s: %w", p.Key(), ErrPinInUse)
	}

	chip, ok := a.chips[p.Chip]
	if !ok {
		chip, err = gpiocdev.NewChip(p.Chip, gpiocdev.WithConsumer(consumer))
		if err != nil {
			return nil, fmt.Errorf("open gpio chip %s: %w", p.Chip, err)
		}
		a.chips[p.Chip] = chip
	}

	var opts []gpiocdev.LineReqOption
	if kind == Output {
		opts = append(opts, gpiocdev.AsOutput(level(start)))
	} else {
		opts = append(opts, gpiocdev.AsInput)
	}
	if p.ActiveLow {
		opts = append(opts, gpiocdev.AsActiveLow)
	}
	switch p.Pull {
	case PullUp:
		opts = append(opts, gpiocdev.WithPullUp)
	case PullDown:
		opts = append(opts, gpiocdev.WithPullDown)
	}

	line, err := chip.RequestLine(p.Offset, opts...)
	if err != nil {
		return nil, fmt.Errorf("request %s pin %s: %w", kind, p, err)
	}

	l := &chipLine{line: line, kind: kind, pin: p}
	a.lines[p.Key()] = l
	return l, nil
}

// Close releases all lines, driving outputs to their fail-safe values, then
// closes the chips.
func (a *ChipAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	for _, l := range a.lines {
		if err := l.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	for name, chip := range a.chips {
		if err := chip.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close chip %s: %w", name, err))
		}
	}
	a.lines = make(map[string]*chipLine)
	a.chips = make(map[string]*gpiocdev.Chip)

	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}

// chipLine is a single requested line. Active-low inversion is done by the
// kernel, so values here are always logical.
type chipLine struct {
	mu       sync.Mutex
	line     *gpiocdev.Line
	kind     Kind
	pin      Pin
	failSafe float64
	closed   bool
}

func (l *chipLine) Read() (float64, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return 0, ErrClosed
	}
	v, err := l.line.Value()
	if err != nil {
		return 0, fmt.Errorf("read pin %s: %w", l.pin, err)
	}
	return float64(v), nil
}

func (l *chipLine) Write(v float64) error {
	if l.kind != Output {
		return ErrNotOutput
	}
	if err := checkValue(v); err != nil {
		return err
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return ErrClosed
	}
	if err := l.line.SetValue(level(v)); err != nil {
		return fmt.Errorf("write pin %s: %w", l.pin, err)
	}
	return nil
}

func (l *chipLine) SetFailSafe(v float64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	l.mu.Lock()
	l.failSafe = v
	l.mu.Unlock()
	return nil
}

// Close drives an output to its fail-safe value before releasing the line.
// The line is released even if driving the fail-safe value fails.
func (l *chipLine) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.closed {
		return nil
	}
	l.closed = true

	var errs []error
	if l.kind == Output {
		if err := l.line.SetValue(level(l.failSafe)); err != nil {
			errs = append(errs, fmt.Errorf("apply fail-safe to pin %s: %w", l.pin, err))
		}
	}
	if err := l.line.Close(); err != nil {
		errs = append(errs, fmt.Errorf("close pin %s: %w", l.pin, err))
	}
	if len(errs) > 0 {
		return fmt.Errorf("close errors: %v", errs)
	}
	return nil
}
