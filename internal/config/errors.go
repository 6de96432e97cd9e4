package config

import "fmt"

// MissingKeyError reports a required option absent from a section.
type MissingKeyError struct {
	Section string
	Key     string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("config: option %q in section %q must be specified", e.Key, e.Section)
}

// RangeError reports a numeric option outside its allowed bounds.
type RangeError struct {
	Section string
	Key     string
	Value   float64
	Min     float64
	Max     float64
}

func (e *RangeError) Error() string {
	return fmt.Sprintf("config: option %q in section %q must be in [%g, %g], got %g",
		e.Key, e.Section, e.Min, e.Max, e.Value)
}

// TypeError reports an option whose value cannot be converted to the requested type.
type TypeError struct {
	Section string
	Key     string
	Want    string
	Value   any
}

func (e *TypeError) Error() string {
	return fmt.Sprintf("config: option %q in section %q must be a %s, got %v",
		e.Key, e.Section, e.Want, e.Value)
}

// UnknownKeyError reports options present in a section that nothing consumed.
type UnknownKeyError struct {
	Section string
	Keys    []string
}

func (e *UnknownKeyError) Error() string {
	return fmt.Sprintf("config: options %v are not valid in section %q", e.Keys, e.Section)
}
