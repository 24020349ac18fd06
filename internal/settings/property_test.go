package settings

import (
	"encoding/json"
	"errors"
	"reflect"
	"testing"
)

func TestEveryPropertyHasUniqueKey(t *testing.T) {
	seen := make(map[string]Property)
	for _, p := range AllProperties() {
		key := p.Key()
		if key == "" {
			t.Errorf("property %d has no key", int(p))
			continue
		}
		if prev, ok := seen[key]; ok {
			t.Errorf("key %q used by %d and %d", key, int(prev), int(p))
		}
		seen[key] = p

		got, err := LookupKey(key)
		if err != nil || got != p {
			t.Errorf("LookupKey(%q) = %v, %v; want %v", key, got, err, p)
		}
	}
}

func TestLookupKeyUnknown(t *testing.T) {
	_, err := LookupKey("fontSize")
	if !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}
}

func TestTransientProperties(t *testing.T) {
	want := map[Property]bool{PropSelectedMacro: true, PropSelectedApp: true, PropMacroFilter: true}
	for _, p := range AllProperties() {
		if p.Transient() != want[p] {
			t.Errorf("%s.Transient() = %v, want %v", p, p.Transient(), want[p])
		}
	}
}

func TestAssign(t *testing.T) {
	tests := []struct {
		name string
		prop Property
		in   any
		want any
	}{
		{"go value", PropQuickTelex, true, true},
		{"enum value", PropInputMethod, VNI, VNI},
		{"text enum", PropCodeTable, ValueText("vni-windows"), VNIWindows},
		{"text bool", PropFreeMark, ValueText("true"), true},
		{"text hotkey", PropSwitchKey, ValueText("alt+z"), Hotkey{Alt: true, Key: "z"}},
		{"text bare hotkey gets ctrl", PropSwitchKey, ValueText("k"), Hotkey{Ctrl: true, Key: "k"}},
		{"text string", PropUILanguage, ValueText("en"), "en"},
		{"raw list", PropExcludedApps, json.RawMessage(`["a"," a ","b",""]`), []string{"a", "b"}},
		{"macros", PropMacros, []Macro{{Abbrev: "", Text: "dropped"}, {Abbrev: "hn", Text: "Hà Nội"}}, []Macro{{Abbrev: "hn", Text: "Hà Nội"}}},
		{"transient", PropMacroFilter, "abc", "abc"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := Default()
			if err := Assign(&s, tt.prop, tt.in); err != nil {
				t.Fatalf("Assign: %v", err)
			}
			if got := Value(&s, tt.prop); !reflect.DeepEqual(got, tt.want) {
				t.Errorf("value = %#v, want %#v", got, tt.want)
			}
		})
	}
}

func TestAssignErrorLeavesStateUntouched(t *testing.T) {
	s := Default()
	s.ExcludedApps = []string{"keep"}
	before := s.Clone()

	if err := Assign(&s, PropInputMethod, ValueText("dvorak")); err == nil {
		t.Fatal("expected error for unknown input method")
	}
	if err := Assign(&s, PropQuickTelex, "not a bool"); err == nil {
		t.Fatal("expected error for wrong type")
	}
	if err := Assign(&s, Property(999), true); !errors.Is(err, ErrUnknownKey) {
		t.Fatalf("err = %v, want ErrUnknownKey", err)
	}
	if !reflect.DeepEqual(s, before) {
		t.Errorf("state changed after failed assign: %+v", s)
	}
}

func TestCloneIsDeep(t *testing.T) {
	s := Default()
	s.Macros = []Macro{{Abbrev: "a", Text: "b"}}
	c := s.Clone()
	c.Macros[0].Text = "changed"
	if s.Macros[0].Text != "b" {
		t.Error("Clone shares macro storage")
	}
}
