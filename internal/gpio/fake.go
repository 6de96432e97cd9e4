package gpio

import (
	"fmt"
	"sync"
)

// FakeAllocator keeps pin state in memory. It backs the simulation mode
// and serves as a test double.
type FakeAllocator struct {
	mu      sync.Mutex
	handles map[string]*FakeHandle
	closed  bool

	// AllocateError, if set, is returned by Allocate.
	AllocateError error
}

// NewFakeAllocator creates an empty FakeAllocator.
func NewFakeAllocator() *FakeAllocator {
	return &FakeAllocator{handles: make(map[string]*FakeHandle)}
}

// Allocate creates a FakeHandle for the pin. Outputs start at the digital
// level of start; inputs read start until changed with SetInput.
func (a *FakeAllocator) Allocate(kind Kind, pin string, start float64) (Handle, error) {
	if a.AllocateError != nil {
		return nil, a.AllocateError
	}
	p, err := ParsePin(pin)
	if err != nil {
		return nil, err
	}
	if err := checkValue(start); err != nil {
		return nil, err
	}

	a.mu.Lock()
	defer a.mu.Unlock()
	if _, ok := a.handles[p.Key()]; ok {
		return nil, fmt.Errorf("allocate %s: %w", p.Key(), ErrPinInUse)
	}

	h := &FakeHandle{kind: kind, pin: p, value: start}
	if kind == Output {
		h.value = float64(level(start))
	}
	a.handles[p.Key()] = h
	return h, nil
}

// Handle returns the handle allocated for pin, or nil.
func (a *FakeAllocator) Handle(pin string) *FakeHandle {
	p, err := ParsePin(pin)
	if err != nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.handles[p.Key()]
}

// SetInput changes the state seen by reads of an allocated input pin.
func (a *FakeAllocator) SetInput(pin string, v float64) error {
	h := a.Handle(pin)
	if h == nil {
		return fmt.Errorf("gpio: pin %q not allocated", pin)
	}
	if h.kind != Input {
		return fmt.Errorf("gpio: pin %q is not an input", pin)
	}
	if err := checkValue(v); err != nil {
		return err
	}
	h.Set(v)
	return nil
}

// Close closes every handle, applying fail-safe values to outputs.
func (a *FakeAllocator) Close() error {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, h := range a.handles {
		h.Close()
	}
	a.closed = true
	return nil
}

// Closed reports whether Close was called.
func (a *FakeAllocator) Closed() bool {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.closed
}

// FakeHandle is an in-memory pin.
type FakeHandle struct {
	mu       sync.Mutex
	kind     Kind
	pin      Pin
	value    float64
	failSafe float64
	writes   []float64
	closed   bool
	readErr  error
	writeErr error
}

// Read returns the current value.
func (h *FakeHandle) Read() (float64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return 0, ErrClosed
	}
	if h.readErr != nil {
		return 0, h.readErr
	}
	return h.value, nil
}

// Write records and applies a digital value.
func (h *FakeHandle) Write(v float64) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.kind != Output {
		return ErrNotOutput
	}
	if h.closed {
		return ErrClosed
	}
	if h.writeErr != nil {
		return h.writeErr
	}
	if err := checkValue(v); err != nil {
		return err
	}
	h.value = float64(level(v))
	h.writes = append(h.writes, h.value)
	return nil
}

// SetFailSafe sets the value applied on Close.
func (h *FakeHandle) SetFailSafe(v float64) error {
	if err := checkValue(v); err != nil {
		return err
	}
	h.mu.Lock()
	h.failSafe = v
	h.mu.Unlock()
	return nil
}

// Close drives an output to its fail-safe value. Safe to call twice.
func (h *FakeHandle) Close() error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return nil
	}
	if h.kind == Output {
		h.value = float64(level(h.failSafe))
	}
	h.closed = true
	return nil
}

// Set changes the value directly, as external hardware would.
func (h *FakeHandle) Set(v float64) {
	h.mu.Lock()
	h.value = v
	h.mu.Unlock()
}

// Value returns the current pin value, including after Close.
func (h *FakeHandle) Value() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.value
}

// FailSafe returns the configured fail-safe value.
func (h *FakeHandle) FailSafe() float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.failSafe
}

// Writes returns a copy of every value written.
func (h *FakeHandle) Writes() []float64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]float64(nil), h.writes...)
}

// Closed reports whether the handle was closed.
func (h *FakeHandle) Closed() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.closed
}

// Kind returns the direction the handle was allocated for.
func (h *FakeHandle) Kind() Kind {
	return h.kind
}

// Pin returns the parsed pin identifier.
func (h *FakeHandle) Pin() Pin {
	return h.pin
}

// SetReadError makes subsequent reads fail with err (nil clears it).
func (h *FakeHandle) SetReadError(err error) {
	h.mu.Lock()
	h.readErr = err
	h.mu.Unlock()
}

// SetWriteError makes subsequent writes fail with err (nil clears it).
func (h *FakeHandle) SetWriteError(err error) {
	h.mu.Lock()
	h.writeErr = err
	h.mu.Unlock()
}
