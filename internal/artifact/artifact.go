// Package artifact writes the runtime configuration read by the hook daemon
// and reads the status the daemon reports back.
package artifact

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	"github.com/kalambet/vnhook/internal/atomicfile"
	"github.com/kalambet/vnhook/internal/settings"
)

const (
	// RuntimeFile is the artifact written by the controller.
	RuntimeFile = "runtime.json"
	// StatusFile is written by the daemon.
	StatusFile = "status.json"
	// FormatVersion is bumped on incompatible artifact changes.
	FormatVersion = 1
)

// RuntimeConfig is the subset of settings the hook daemon acts on.
type RuntimeConfig struct {
	Version     int       `json:"version"`
	GeneratedAt time.Time `json:"generatedAt"`

	Language    settings.Language    `json:"language"`
	InputMethod settings.InputMethod `json:"inputMethod"`
	CodeTable   settings.CodeTable   `json:"codeTable"`
	SwitchKey   settings.Hotkey      `json:"switchKey"`

	RestoreOnEscape bool   `json:"restoreOnEscape"`
	RestoreKey      string `json:"restoreKey"`
	PauseKeyEnabled bool   `json:"pauseKeyEnabled"`
	PauseKey        string `json:"pauseKey"`

	Features Features `json:"features"`

	Macros       []settings.Macro `json:"macros"`
	ExcludedApps []string         `json:"excludedApps"`
	EnglishApps  []string         `json:"englishApps"`
}

// Features are the typing toggles.
type Features struct {
	SpellCheck             bool `json:"spellCheck"`
	ModernOrthography      bool `json:"modernOrthography"`
	QuickTelex             bool `json:"quickTelex"`
	FreeMark               bool `json:"freeMark"`
	RestoreIfWrongSpelling bool `json:"restoreIfWrongSpelling"`
	UseMacro               bool `json:"useMacro"`
	UseMacroInEnglish      bool `json:"useMacroInEnglish"`
	AutoCapsMacro          bool `json:"autoCapsMacro"`
	UpperCaseFirstChar     bool `json:"upperCaseFirstChar"`
	AllowConsonantZFWJ     bool `json:"allowConsonantZFWJ"`
	QuickStartConsonant    bool `json:"quickStartConsonant"`
	QuickEndConsonant      bool `json:"quickEndConsonant"`
	TempOffSpelling        bool `json:"tempOffSpelling"`
	TempOffEngine          bool `json:"tempOffEngine"`
	SmartSwitchKey         bool `json:"smartSwitchKey"`
	RememberCodeTable      bool `json:"rememberCodeTable"`
}

// Build derives the runtime configuration from s. Macros are only shipped
// when macro expansion is enabled.
func Build(s settings.State, now time.Time) RuntimeConfig {
	s = s.Clone()
	s.Normalize()
	rc := RuntimeConfig{
		Version:         FormatVersion,
		GeneratedAt:     now.UTC(),
		Language:        s.Language,
		InputMethod:     s.InputMethod,
		CodeTable:       s.CodeTable,
		SwitchKey:       s.SwitchKey,
		RestoreOnEscape: s.RestoreOnEscape,
		RestoreKey:      s.RestoreKey,
		PauseKeyEnabled: s.PauseKeyEnabled,
		PauseKey:        s.PauseKey,
		Features: Features{
			SpellCheck:             s.SpellCheck,
			ModernOrthography:      s.ModernOrthography,
			QuickTelex:             s.QuickTelex,
			FreeMark:               s.FreeMark,
			RestoreIfWrongSpelling: s.RestoreIfWrongSpelling,
			UseMacro:               s.UseMacro,
			UseMacroInEnglish:      s.UseMacroInEnglish,
			AutoCapsMacro:          s.AutoCapsMacro,
			UpperCaseFirstChar:     s.UpperCaseFirstChar,
			AllowConsonantZFWJ:     s.AllowConsonantZFWJ,
			QuickStartConsonant:    s.QuickStartConsonant,
			QuickEndConsonant:      s.QuickEndConsonant,
			TempOffSpelling:        s.TempOffSpelling,
			TempOffEngine:          s.TempOffEngine,
			SmartSwitchKey:         s.SmartSwitchKey,
			RememberCodeTable:      s.RememberCodeTable,
		},
		Macros:       []settings.Macro{},
		ExcludedApps: s.ExcludedApps,
		EnglishApps:  s.EnglishApps,
	}
	if s.UseMacro {
		rc.Macros = s.Macros
	}
	return rc
}

// Writer owns the runtime directory.
type Writer struct {
	dir string
	now func() time.Time
}

// NewWriter returns a Writer for dir. The directory is created on first write.
func NewWriter(dir string) *Writer {
	return &Writer{dir: dir, now: time.Now}
}

// Dir returns the runtime directory.
func (w *Writer) Dir() string {
	return w.dir
}

// RuntimePath returns the location of the runtime artifact.
func (w *Writer) RuntimePath() string {
	return filepath.Join(w.dir, RuntimeFile)
}

// StatusPath returns the location of the daemon status file.
func (w *Writer) StatusPath() string {
	return filepath.Join(w.dir, StatusFile)
}

// Write replaces the runtime artifact with one derived from s. The file is
// renamed into place so the daemon never reads a partial write.
func (w *Writer) Write(s settings.State) error {
	data, err := json.MarshalIndent(Build(s, w.now()), "", "  ")
	if err != nil {
		return fmt.Errorf("encoding runtime artifact: %w", err)
	}
	if err := atomicfile.Write(w.RuntimePath(), data, 0o644); err != nil {
		return fmt.Errorf("writing runtime artifact: %w", err)
	}
	return nil
}

// ReadRuntime loads the current runtime artifact.
func (w *Writer) ReadRuntime() (RuntimeConfig, error) {
	var rc RuntimeConfig
	data, err := os.ReadFile(w.RuntimePath())
	if err != nil {
		return rc, err
	}
	if err := json.Unmarshal(data, &rc); err != nil {
		return rc, fmt.Errorf("parsing runtime artifact: %w", err)
	}
	return rc, nil
}

// Status is the reverse channel written by the daemon.
type Status struct {
	Language  settings.Language `json:"language"`
	PID       int               `json:"pid"`
	UpdatedAt time.Time         `json:"updatedAt"`
}

// ReadStatus returns the daemon-reported status. ok is false when the daemon
// has not written one yet or the file is unreadable.
func (w *Writer) ReadStatus() (st Status, ok bool, err error) {
	data, err := os.ReadFile(w.StatusPath())
	if errors.Is(err, fs.ErrNotExist) {
		return st, false, nil
	}
	if err != nil {
		return st, false, err
	}
	if err := json.Unmarshal(data, &st); err != nil {
		return st, false, fmt.Errorf("parsing daemon status: %w", err)
	}
	return st, true, nil
}

// WriteStatus writes a status file the way the daemon does. Used by the
// in-process hook and tests.
func (w *Writer) WriteStatus(st Status) error {
	data, err := json.Marshal(st)
	if err != nil {
		return err
	}
	return atomicfile.Write(w.StatusPath(), data, 0o644)
}

// ClearStatus removes a stale status file before a daemon is started so an
// old language report is not reconciled into fresh state.
func (w *Writer) ClearStatus() error {
	err := os.Remove(w.StatusPath())
	if err != nil && !errors.Is(err, fs.ErrNotExist) {
		return err
	}
	return nil
}
