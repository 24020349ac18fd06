package settings

import (
	"slices"
	"strings"
)

// State is the full mutable configuration of the input method. It is owned
// by a single writer (the controller loop) and never shared across goroutines.
type State struct {
	Language    Language
	InputMethod InputMethod
	CodeTable   CodeTable
	SwitchKey   Hotkey

	SpellCheck             bool
	ModernOrthography      bool
	QuickTelex             bool
	FreeMark               bool
	RestoreIfWrongSpelling bool
	UseMacro               bool
	UseMacroInEnglish      bool
	AutoCapsMacro          bool
	UpperCaseFirstChar     bool
	AllowConsonantZFWJ     bool
	QuickStartConsonant    bool
	QuickEndConsonant      bool
	TempOffSpelling        bool
	TempOffEngine          bool
	SmartSwitchKey         bool
	RememberCodeTable      bool

	RestoreOnEscape bool
	RestoreKey      string
	PauseKeyEnabled bool
	PauseKey        string

	Macros       []Macro
	ExcludedApps []string
	EnglishApps  []string

	RunAtStartup    bool
	AlwaysOnTop     bool
	ShowDockIcon    bool
	ShowUIOnStartup bool
	CheckUpdates    bool
	BeepOnSwitch    bool
	UILanguage      string

	View ViewState
}

// ViewState is selection and filter state of the settings window. It is
// never persisted and never reaches the daemon.
type ViewState struct {
	SelectedMacro int
	SelectedApp   int
	MacroFilter   string
}

// Default returns the first-run configuration.
func Default() State {
	return State{
		Language:               Vietnamese,
		InputMethod:            Telex,
		CodeTable:              Unicode,
		SwitchKey:              DefaultSwitchKey,
		SpellCheck:             true,
		ModernOrthography:      true,
		RestoreIfWrongSpelling: true,
		SmartSwitchKey:         true,
		RestoreKey:             "esc",
		PauseKey:               "alt",
		Macros:                 []Macro{},
		ExcludedApps:           []string{},
		EnglishApps:            []string{},
		ShowDockIcon:           true,
		ShowUIOnStartup:        true,
		CheckUpdates:           true,
		UILanguage:             "vi",
		View:                   ViewState{SelectedMacro: -1, SelectedApp: -1},
	}
}

// Normalize enforces the state invariants in place.
func (s *State) Normalize() {
	if s.Language < English || s.Language > Vietnamese {
		s.Language = Vietnamese
	}
	if s.InputMethod < Telex || s.InputMethod > SimpleTelex2 {
		s.InputMethod = Telex
	}
	if s.CodeTable < Unicode || s.CodeTable > CP1258 {
		s.CodeTable = Unicode
	}
	s.SwitchKey = s.SwitchKey.Normalize()

	s.RestoreKey = strings.ToLower(strings.TrimSpace(s.RestoreKey))
	if s.RestoreKey == "" {
		s.RestoreKey = "esc"
	}
	s.PauseKey = strings.ToLower(strings.TrimSpace(s.PauseKey))
	if s.PauseKey == "" {
		s.PauseKey = "alt"
	}

	macros := make([]Macro, 0, len(s.Macros))
	for _, m := range s.Macros {
		m.Abbrev = strings.TrimSpace(m.Abbrev)
		if m.Abbrev == "" {
			continue
		}
		macros = append(macros, m)
	}
	s.Macros = macros
	s.ExcludedApps = cleanList(s.ExcludedApps)
	s.EnglishApps = cleanList(s.EnglishApps)

	if s.UILanguage == "" {
		s.UILanguage = "vi"
	}
}

// Clone returns a deep copy so callers outside the loop can read it safely.
func (s State) Clone() State {
	s.Macros = slices.Clone(s.Macros)
	s.ExcludedApps = slices.Clone(s.ExcludedApps)
	s.EnglishApps = slices.Clone(s.EnglishApps)
	return s
}

func cleanList(in []string) []string {
	out := make([]string, 0, len(in))
	seen := make(map[string]bool, len(in))
	for _, v := range in {
		v = strings.TrimSpace(v)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
