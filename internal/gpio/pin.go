package gpio

import (
	"fmt"
	"strconv"
	"strings"
)

// DefaultChip is used when a pin identifier names no chip.
const DefaultChip = "gpiochip0"

// Pull is the bias applied to an input line.
type Pull int

const (
	PullNone Pull = iota
	PullUp
	PullDown
)

// Pin is a parsed pin identifier.
type Pin struct {
	Chip      string
	Offset    int
	ActiveLow bool
	Pull      Pull
}

// ParsePin parses identifiers of the form `[^|~][!][chip/]offset`.
// `^` requests a pull-up, `~` a pull-down and `!` inverts the logical level.
// The offset may carry a `GPIO` prefix, e.g. `^!gpiochip0/17` or `GPIO22`.
func ParsePin(id string) (Pin, error) {
	p := Pin{Chip: DefaultChip}
	s := strings.TrimSpace(id)

modifiers:
	for len(s) > 0 {
		switch s[0] {
		case '^', '~':
			if p.Pull != PullNone {
				return Pin{}, fmt.Errorf("gpio: pin %q: more than one pull modifier", id)
			}
			p.Pull = PullUp
			if s[0] == '~' {
				p.Pull = PullDown
			}
		case '!':
			if p.ActiveLow {
				return Pin{}, fmt.Errorf("gpio: pin %q: repeated invert modifier", id)
			}
			p.ActiveLow = true
		default:
			break modifiers
		}
		s = strings.TrimSpace(s[1:])
	}

	if i := strings.LastIndex(s, "/"); i >= 0 {
		p.Chip = s[:i]
		s = s[i+1:]
		if p.Chip == "" {
			return Pin{}, fmt.Errorf("gpio: pin %q: empty chip name", id)
		}
	}
	if len(s) > 4 && strings.EqualFold(s[:4], "gpio") {
		s = s[4:]
	}
	off, err := strconv.Atoi(s)
	if err != nil || off < 0 {
		return Pin{}, fmt.Errorf("gpio: pin %q: invalid line offset", id)
	}
	p.Offset = off
	return p, nil
}

// Key identifies the physical line regardless of modifiers.
func (p Pin) Key() string {
	return p.Chip + "/" + strconv.Itoa(p.Offset)
}

func (p Pin) String() string {
	var b strings.Builder
	switch p.Pull {
	case PullUp:
		b.WriteByte('^')
	case PullDown:
		b.WriteByte('~')
	}
	if p.ActiveLow {
		b.WriteByte('!')
	}
	b.WriteString(p.Key())
	return b.String()
}
