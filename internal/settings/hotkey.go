package settings

import (
	"fmt"
	"strings"
)

// Hotkey is a global key combination registered by the hook daemon.
// Key may be empty for modifier-only combinations such as Ctrl+Shift.
type Hotkey struct {
	Ctrl  bool
	Alt   bool
	Shift bool
	Super bool
	Key   string
}

// DefaultSwitchKey toggles between Vietnamese and English.
var DefaultSwitchKey = Hotkey{Ctrl: true, Shift: true}

// HasModifier reports whether at least one modifier is held.
func (h Hotkey) HasModifier() bool {
	return h.Ctrl || h.Alt || h.Shift || h.Super
}

// Normalize returns a hotkey that always carries a modifier. An empty hotkey
// becomes DefaultSwitchKey; a bare key gets Ctrl.
func (h Hotkey) Normalize() Hotkey {
	h.Key = strings.ToLower(strings.TrimSpace(h.Key))
	if h.HasModifier() {
		return h
	}
	if h.Key == "" {
		return DefaultSwitchKey
	}
	h.Ctrl = true
	return h
}

func (h Hotkey) String() string {
	var parts []string
	if h.Ctrl {
		parts = append(parts, "ctrl")
	}
	if h.Alt {
		parts = append(parts, "alt")
	}
	if h.Shift {
		parts = append(parts, "shift")
	}
	if h.Super {
		parts = append(parts, "super")
	}
	if h.Key != "" {
		parts = append(parts, h.Key)
	}
	return strings.Join(parts, "+")
}

// ParseHotkey parses strings like "ctrl+shift" or "alt+z".
func ParseHotkey(s string) (Hotkey, error) {
	var h Hotkey
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" {
		return h, fmt.Errorf("empty hotkey")
	}
	for _, tok := range strings.Split(s, "+") {
		tok = strings.TrimSpace(tok)
		switch tok {
		case "ctrl", "control":
			h.Ctrl = true
		case "alt", "opt", "option":
			h.Alt = true
		case "shift":
			h.Shift = true
		case "super", "cmd", "command", "win", "meta":
			h.Super = true
		case "":
			return Hotkey{}, fmt.Errorf("malformed hotkey %q", s)
		default:
			if h.Key != "" {
				return Hotkey{}, fmt.Errorf("hotkey %q has more than one key", s)
			}
			h.Key = tok
		}
	}
	return h, nil
}

func (h Hotkey) MarshalText() ([]byte, error) {
	return []byte(h.String()), nil
}

func (h *Hotkey) UnmarshalText(b []byte) error {
	if strings.TrimSpace(string(b)) == "" {
		*h = Hotkey{}
		return nil
	}
	parsed, err := ParseHotkey(string(b))
	if err != nil {
		return err
	}
	*h = parsed
	return nil
}
