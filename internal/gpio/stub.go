//go:build !linux

package gpio

import "errors"

var errUnsupported = errors.New("gpio: not supported on this platform (requires Linux)")

// ChipAllocator is not available on non-Linux platforms.
type ChipAllocator struct{}

// NewChipAllocator returns an error on non-Linux platforms.
func NewChipAllocator() (*ChipAllocator, error) {
	return nil, errUnsupported
}

// Allocate is not implemented on non-Linux platforms.
func (a *ChipAllocator) Allocate(kind Kind, pin string, start float64) (Handle, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (a *ChipAllocator) Close() error {
	return nil
}

// RPIOAllocator is not available on non-Linux platforms.
type RPIOAllocator struct{}

// NewRPIOAllocator returns an error on non-Linux platforms.
func NewRPIOAllocator() (*RPIOAllocator, error) {
	return nil, errUnsupported
}

// Allocate is not implemented on non-Linux platforms.
func (a *RPIOAllocator) Allocate(kind Kind, pin string, start float64) (Handle, error) {
	return nil, errUnsupported
}

// Close is not implemented on non-Linux platforms.
func (a *RPIOAllocator) Close() error {
	return nil
}
