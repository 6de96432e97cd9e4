// Package config loads the daemon's YAML configuration file and exposes
// typed, bounds-checked lookups over one section of it.
package config

import (
	"fmt"
	"math"
	"os"
	"sort"
	"strconv"

	"gopkg.in/yaml.v3"
)

// Source provides typed lookups by key.
type Source interface {
	// Get returns a required string option.
	// Returns *MissingKeyError if the key is absent.
	Get(key string) (string, error)

	// GetFloat returns a numeric option, or def when absent.
	// Returns *RangeError if the value lies outside [min, max].
	GetFloat(key string, def, min, max float64) (float64, error)
}

// File is a parsed configuration file: a mapping of section name to options.
type File struct {
	sections map[string]map[string]any
}

// Load reads and parses the YAML file at path.
func Load(path string) (*File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	f, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return f, nil
}

// Parse decodes YAML configuration data.
func Parse(data []byte) (*File, error) {
	sections := make(map[string]map[string]any)
	if err := yaml.Unmarshal(data, &sections); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	return &File{sections: sections}, nil
}

// Section returns the named section. A missing section yields an empty one,
// so lookups of required keys fail with *MissingKeyError.
func (f *File) Section(name string) *Section {
	return NewSection(name, f.sections[name])
}

// Section is a Source over a single configuration section.
// Not safe for concurrent use.
type Section struct {
	name   string
	values map[string]any
	used   map[string]bool
}

// NewSection creates a Section from already decoded values.
func NewSection(name string, values map[string]any) *Section {
	if values == nil {
		values = map[string]any{}
	}
	return &Section{
		name:   name,
		values: values,
		used:   make(map[string]bool),
	}
}

// Name returns the section name.
func (s *Section) Name() string {
	return s.name
}

// Get returns a required string option. Integer values are accepted and
// formatted in decimal, so `feed_pin: 22` works as well as `feed_pin: "22"`.
func (s *Section) Get(key string) (string, error) {
	s.used[key] = true
	v, ok := s.values[key]
	if !ok || v == nil {
		return "", &MissingKeyError{Section: s.name, Key: key}
	}
	switch t := v.(type) {
	case string:
		if t == "" {
			return "", &MissingKeyError{Section: s.name, Key: key}
		}
		return t, nil
	case int:
		return strconv.Itoa(t), nil
	default:
		return "", &TypeError{Section: s.name, Key: key, Want: "string", Value: v}
	}
}

// GetFloat returns a numeric option bounded by [min, max], or def when absent.
func (s *Section) GetFloat(key string, def, min, max float64) (float64, error) {
	s.used[key] = true
	v, ok := s.values[key]
	if !ok || v == nil {
		return def, nil
	}

	var f float64
	switch t := v.(type) {
	case float64:
		f = t
	case int:
		f = float64(t)
	case string:
		parsed, err := strconv.ParseFloat(t, 64)
		if err != nil {
			return 0, &TypeError{Section: s.name, Key: key, Want: "number", Value: v}
		}
		f = parsed
	default:
		return 0, &TypeError{Section: s.name, Key: key, Want: "number", Value: v}
	}

	if math.IsNaN(f) || f < min || f > max {
		return 0, &RangeError{Section: s.name, Key: key, Value: f, Min: min, Max: max}
	}
	return f, nil
}

// Unused returns the sorted keys present in the section that no lookup has
// requested yet.
func (s *Section) Unused() []string {
	var keys []string
	for k := range s.values {
		if !s.used[k] {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return keys
}

// CheckUnused returns *UnknownKeyError if any option was never looked up.
func (s *Section) CheckUnused() error {
	if keys := s.Unused(); len(keys) > 0 {
		return &UnknownKeyError{Section: s.name, Keys: keys}
	}
	return nil
}
