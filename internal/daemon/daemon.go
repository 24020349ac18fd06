// Package daemon supervises the keyboard hook process.
package daemon

import (
	"context"
	"errors"

	"github.com/kalambet/vnhook/internal/settings"
)

// ErrExecutableNotFound is returned when the hook binary cannot be located.
var ErrExecutableNotFound = errors.New("daemon executable not found")

// Result is the outcome of a lifecycle operation. Failures are reported in
// Message and never returned as errors, since callers only surface them.
type Result struct {
	OK      bool   `json:"ok"`
	Message string `json:"message"`
}

func okResult(msg string) Result { return Result{OK: true, Message: msg} }
func failResult(msg string) Result { return Result{OK: false, Message: msg} }

// Supervisor owns the hook process. Implementations must be safe for use
// from multiple goroutines; every blocking call takes a context.
type Supervisor interface {
	// IsSupported is false where the hook runs in-process.
	IsSupported() bool
	// IsRunning is a bounded, side-effect-free liveness probe.
	IsRunning(ctx context.Context) bool
	TryStart(ctx context.Context) Result
	TryStop(ctx context.Context) Result
	// TryRestart stops then starts the daemon. It reports failure rather
	// than leaving two instances when the stop half fails.
	TryRestart(ctx context.Context) Result
	ResolveExecutablePath() (string, error)
	// ReadReportedLanguageMode returns ok=false when the daemon has not
	// reported a language yet.
	ReadReportedLanguageMode() (settings.Language, bool)
}

// InProcess is the Supervisor for platforms where the hook lives inside the
// settings process. Every operation is a no-op.
type InProcess struct{}

func (InProcess) IsSupported() bool { return false }
func (InProcess) IsRunning(context.Context) bool { return false }
func (InProcess) TryStart(context.Context) Result { return okResult("hook runs in-process") }
func (InProcess) TryStop(context.Context) Result { return okResult("hook runs in-process") }
func (InProcess) TryRestart(context.Context) Result { return okResult("hook runs in-process") }
func (InProcess) ResolveExecutablePath() (string, error) {
	return "", ErrExecutableNotFound
}
func (InProcess) ReadReportedLanguageMode() (settings.Language, bool) {
	return 0, false
}
