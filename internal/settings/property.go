package settings

import (
	"encoding/json"
	"errors"
	"fmt"
)

// ErrUnknownKey is returned when a settings key does not name a Property.
var ErrUnknownKey = errors.New("unknown settings key")

// Property identifies one field of State. The set is closed: every mutation
// of State goes through a Property so the classifier can match on it.
type Property int

const (
	PropLanguage Property = iota
	PropInputMethod
	PropCodeTable
	PropSwitchKey

	PropSpellCheck
	PropModernOrthography
	PropQuickTelex
	PropFreeMark
	PropRestoreIfWrongSpelling
	PropUseMacro
	PropUseMacroInEnglish
	PropAutoCapsMacro
	PropUpperCaseFirstChar
	PropAllowConsonantZFWJ
	PropQuickStartConsonant
	PropQuickEndConsonant
	PropTempOffSpelling
	PropTempOffEngine
	PropSmartSwitchKey
	PropRememberCodeTable

	PropRestoreOnEscape
	PropRestoreKey
	PropPauseKeyEnabled
	PropPauseKey

	PropMacros
	PropExcludedApps
	PropEnglishApps

	PropRunAtStartup
	PropAlwaysOnTop
	PropShowDockIcon
	PropShowUIOnStartup
	PropCheckUpdates
	PropBeepOnSwitch
	PropUILanguage

	PropSelectedMacro
	PropSelectedApp
	PropMacroFilter

	propCount
)

type accessor struct {
	decode func(s *State, raw []byte) error
	value  func(s *State) any
}

func field[T any](get func(*State) *T) accessor {
	return accessor{
		decode: func(s *State, raw []byte) error {
			var v T
			if err := json.Unmarshal(raw, &v); err != nil {
				return err
			}
			*get(s) = v
			return nil
		},
		value: func(s *State) any { return *get(s) },
	}
}

type propertySpec struct {
	key       string
	transient bool
	accessor
}

var specs = [propCount]propertySpec{
	PropLanguage:    {key: "language", accessor: field(func(s *State) *Language { return &s.Language })},
	PropInputMethod: {key: "inputMethod", accessor: field(func(s *State) *InputMethod { return &s.InputMethod })},
	PropCodeTable:   {key: "codeTable", accessor: field(func(s *State) *CodeTable { return &s.CodeTable })},
	PropSwitchKey:   {key: "switchKey", accessor: field(func(s *State) *Hotkey { return &s.SwitchKey })},

	PropSpellCheck:             {key: "spellCheck", accessor: field(func(s *State) *bool { return &s.SpellCheck })},
	PropModernOrthography:      {key: "modernOrthography", accessor: field(func(s *State) *bool { return &s.ModernOrthography })},
	PropQuickTelex:             {key: "quickTelex", accessor: field(func(s *State) *bool { return &s.QuickTelex })},
	PropFreeMark:               {key: "freeMark", accessor: field(func(s *State) *bool { return &s.FreeMark })},
	PropRestoreIfWrongSpelling: {key: "restoreIfWrongSpelling", accessor: field(func(s *State) *bool { return &s.RestoreIfWrongSpelling })},
	PropUseMacro:               {key: "useMacro", accessor: field(func(s *State) *bool { return &s.UseMacro })},
	PropUseMacroInEnglish:      {key: "useMacroInEnglish", accessor: field(func(s *State) *bool { return &s.UseMacroInEnglish })},
	PropAutoCapsMacro:          {key: "autoCapsMacro", accessor: field(func(s *State) *bool { return &s.AutoCapsMacro })},
	PropUpperCaseFirstChar:     {key: "upperCaseFirstChar", accessor: field(func(s *State) *bool { return &s.UpperCaseFirstChar })},
	PropAllowConsonantZFWJ:     {key: "allowConsonantZFWJ", accessor: field(func(s *State) *bool { return &s.AllowConsonantZFWJ })},
	PropQuickStartConsonant:    {key: "quickStartConsonant", accessor: field(func(s *State) *bool { return &s.QuickStartConsonant })},
	PropQuickEndConsonant:      {key: "quickEndConsonant", accessor: field(func(s *State) *bool { return &s.QuickEndConsonant })},
	PropTempOffSpelling:        {key: "tempOffSpelling", accessor: field(func(s *State) *bool { return &s.TempOffSpelling })},
	PropTempOffEngine:          {key: "tempOffEngine", accessor: field(func(s *State) *bool { return &s.TempOffEngine })},
	PropSmartSwitchKey:         {key: "smartSwitchKey", accessor: field(func(s *State) *bool { return &s.SmartSwitchKey })},
	PropRememberCodeTable:      {key: "rememberCodeTable", accessor: field(func(s *State) *bool { return &s.RememberCodeTable })},

	PropRestoreOnEscape: {key: "restoreOnEscape", accessor: field(func(s *State) *bool { return &s.RestoreOnEscape })},
	PropRestoreKey:      {key: "restoreKey", accessor: field(func(s *State) *string { return &s.RestoreKey })},
	PropPauseKeyEnabled: {key: "pauseKeyEnabled", accessor: field(func(s *State) *bool { return &s.PauseKeyEnabled })},
	PropPauseKey:        {key: "pauseKey", accessor: field(func(s *State) *string { return &s.PauseKey })},

	PropMacros:       {key: "macros", accessor: field(func(s *State) *[]Macro { return &s.Macros })},
	PropExcludedApps: {key: "excludedApps", accessor: field(func(s *State) *[]string { return &s.ExcludedApps })},
	PropEnglishApps:  {key: "englishApps", accessor: field(func(s *State) *[]string { return &s.EnglishApps })},

	PropRunAtStartup:    {key: "runAtStartup", accessor: field(func(s *State) *bool { return &s.RunAtStartup })},
	PropAlwaysOnTop:     {key: "alwaysOnTop", accessor: field(func(s *State) *bool { return &s.AlwaysOnTop })},
	PropShowDockIcon:    {key: "showDockIcon", accessor: field(func(s *State) *bool { return &s.ShowDockIcon })},
	PropShowUIOnStartup: {key: "showUIOnStartup", accessor: field(func(s *State) *bool { return &s.ShowUIOnStartup })},
	PropCheckUpdates:    {key: "checkUpdates", accessor: field(func(s *State) *bool { return &s.CheckUpdates })},
	PropBeepOnSwitch:    {key: "beepOnSwitch", accessor: field(func(s *State) *bool { return &s.BeepOnSwitch })},
	PropUILanguage:      {key: "uiLanguage", accessor: field(func(s *State) *string { return &s.UILanguage })},

	PropSelectedMacro: {key: "selectedMacro", transient: true, accessor: field(func(s *State) *int { return &s.View.SelectedMacro })},
	PropSelectedApp:   {key: "selectedApp", transient: true, accessor: field(func(s *State) *int { return &s.View.SelectedApp })},
	PropMacroFilter:   {key: "macroFilter", transient: true, accessor: field(func(s *State) *string { return &s.View.MacroFilter })},
}

// AllProperties returns every known Property in declaration order.
func AllProperties() []Property {
	out := make([]Property, 0, propCount)
	for p := Property(0); p < propCount; p++ {
		out = append(out, p)
	}
	return out
}

// Valid reports whether p is a known Property.
func (p Property) Valid() bool {
	return p >= 0 && p < propCount
}

// Key returns the JSON key used in settings.json, backups and the control API.
func (p Property) Key() string {
	if !p.Valid() {
		return ""
	}
	return specs[p].key
}

// Transient reports whether p is view state that is never persisted.
func (p Property) Transient() bool {
	return p.Valid() && specs[p].transient
}

func (p Property) String() string {
	if !p.Valid() {
		return fmt.Sprintf("property(%d)", int(p))
	}
	return specs[p].key
}

// LookupKey resolves a JSON key to its Property.
func LookupKey(key string) (Property, error) {
	for p := Property(0); p < propCount; p++ {
		if specs[p].key == key {
			return p, nil
		}
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownKey, key)
}

// Value returns the current value of p in s.
func Value(s *State, p Property) any {
	if !p.Valid() {
		return nil
	}
	return specs[p].value(s)
}

// Assign decodes v into the field named by p and re-normalizes the state.
// v may be a Go value of the field's type, a json.RawMessage, or a
// ValueText holding user-typed text. On error s is left untouched.
func Assign(s *State, p Property, v any) error {
	if !p.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownKey, p)
	}
	next := s.Clone()
	if err := decodeInto(&next, p, v); err != nil {
		return fmt.Errorf("setting %s: %w", specs[p].key, err)
	}
	next.Normalize()
	*s = next
	return nil
}

// ValueText is free-form text (CLI arguments, form fields). It is decoded as
// JSON when it parses as JSON for the field, and as a JSON string otherwise.
type ValueText string

func decodeInto(s *State, p Property, v any) error {
	spec := specs[p]
	switch val := v.(type) {
	case json.RawMessage:
		return spec.decode(s, val)
	case ValueText:
		raw := []byte(val)
		if json.Valid(raw) {
			if err := spec.decode(s, raw); err == nil {
				return nil
			}
		}
		quoted, err := json.Marshal(string(val))
		if err != nil {
			return err
		}
		return spec.decode(s, quoted)
	default:
		raw, err := json.Marshal(val)
		if err != nil {
			return err
		}
		return spec.decode(s, raw)
	}
}
