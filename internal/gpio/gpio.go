// Package gpio provides digital pin access behind a small allocation API.
// The chip implementation uses the Linux GPIO character device, the rpio
// implementation maps BCM registers directly, and the fake implementation
// keeps pin state in memory for tests and simulation.
package gpio

import "errors"

// Kind is the direction a pin is allocated for.
type Kind int

const (
	Input Kind = iota
	Output
)

func (k Kind) String() string {
	if k == Output {
		return "output"
	}
	return "input"
}

var (
	// ErrPinInUse is returned when a pin is allocated more than once.
	ErrPinInUse = errors.New("gpio: pin already allocated")
	// ErrNotOutput is returned when writing to an input handle.
	ErrNotOutput = errors.New("gpio: pin is not an output")
	// ErrClosed is returned when using a handle after Close.
	ErrClosed = errors.New("gpio: handle closed")
)

// Allocator hands out exclusive handles to pins.
type Allocator interface {
	// Allocate requests the pin for the given direction. For outputs the
	// pin is driven to start as part of the request.
	Allocate(kind Kind, pin string, start float64) (Handle, error)

	// Close releases every allocated handle, driving outputs to their
	// fail-safe values first.
	Close() error
}

// Handle is a single allocated pin. Values are logical levels in [0, 1];
// digital pins treat any non-zero value as active.
type Handle interface {
	Read() (float64, error)
	Write(v float64) error

	// SetFailSafe sets the value applied when the handle is closed.
	SetFailSafe(v float64) error

	Close() error
}

// level converts a logical value to a digital line level.
func level(v float64) int {
	if v != 0 {
		return 1
	}
	return 0
}

func checkValue(v float64) error {
	if v < 0 || v > 1 {
		return errors.New("gpio: value must be in [0, 1]")
	}
	return nil
}
