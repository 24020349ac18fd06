// Package classify maps settings changes to the side effects they require.
package classify

import (
	"fmt"

	"github.com/kalambet/vnhook/internal/settings"
)

// Effect is what the controller must do after a property changes.
type Effect int

const (
	// Transient changes are view state. Nothing is written.
	Transient Effect = iota
	// ImmediatePersist changes are saved synchronously.
	ImmediatePersist
	// RuntimeSync changes rewrite the runtime artifact now and save later.
	RuntimeSync
	// HotkeyRestart changes need the daemon to re-register its hotkeys.
	HotkeyRestart
	// DebouncedSave changes are coalesced into one delayed save.
	DebouncedSave
)

var effectNames = []string{"transient", "immediate-persist", "runtime-sync", "hotkey-restart", "debounced-save"}

func (e Effect) String() string {
	if e < 0 || int(e) >= len(effectNames) {
		return fmt.Sprintf("effect(%d)", int(e))
	}
	return effectNames[e]
}

// Classify returns the effect for p. Properties outside the known set get
// DebouncedSave.
func Classify(p settings.Property) Effect {
	if e, ok := lookup(p); ok {
		return e
	}
	return DebouncedSave
}

// ForEvent classifies a change event. Values pushed by the daemon are a
// view refresh only and never feed back into a restart.
func ForEvent(ev settings.ChangeEvent) Effect {
	if ev.Origin == settings.OriginDaemon {
		return Transient
	}
	return Classify(ev.Property)
}

// lookup reports ok=false for properties with no explicit entry.
func lookup(p settings.Property) (Effect, bool) {
	switch p {
	case settings.PropSelectedMacro,
		settings.PropSelectedApp,
		settings.PropMacroFilter:
		return Transient, true

	case settings.PropAlwaysOnTop,
		settings.PropRunAtStartup,
		settings.PropRestoreOnEscape,
		settings.PropRestoreKey,
		settings.PropPauseKeyEnabled,
		settings.PropPauseKey:
		return ImmediatePersist, true

	case settings.PropInputMethod,
		settings.PropCodeTable,
		settings.PropSpellCheck,
		settings.PropModernOrthography,
		settings.PropQuickTelex,
		settings.PropFreeMark,
		settings.PropRestoreIfWrongSpelling,
		settings.PropUseMacro,
		settings.PropUseMacroInEnglish,
		settings.PropAutoCapsMacro,
		settings.PropUpperCaseFirstChar,
		settings.PropAllowConsonantZFWJ,
		settings.PropQuickStartConsonant,
		settings.PropQuickEndConsonant,
		settings.PropTempOffSpelling,
		settings.PropTempOffEngine,
		settings.PropSmartSwitchKey,
		settings.PropRememberCodeTable,
		settings.PropMacros,
		settings.PropExcludedApps,
		settings.PropEnglishApps:
		return RuntimeSync, true

	case settings.PropSwitchKey,
		settings.PropLanguage:
		return HotkeyRestart, true

	case settings.PropShowDockIcon,
		settings.PropShowUIOnStartup,
		settings.PropCheckUpdates,
		settings.PropBeepOnSwitch,
		settings.PropUILanguage:
		return DebouncedSave, true
	}
	return 0, false
}

// Table returns the classification of every known property, for display.
func Table() map[settings.Property]Effect {
	out := make(map[settings.Property]Effect)
	for _, p := range settings.AllProperties() {
		out[p] = Classify(p)
	}
	return out
}
