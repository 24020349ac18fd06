// Package controller keeps the settings process and the hook daemon in sync.
//
// A Controller owns the settings state and is driven from a single Loop.
// Edits are classified and turned into saves, runtime artifact writes and
// debounced daemon restarts. A periodic health tick keeps the daemon alive
// and pulls its live language mode back into the state.
package controller

import (
	"context"
	"fmt"
	"log/slog"
	"reflect"
	"time"

	"github.com/kalambet/vnhook/internal/classify"
	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

// Store persists the settings snapshot.
type Store interface {
	Save(settings.State) error
}

// ArtifactWriter rewrites the runtime artifact read by the daemon.
type ArtifactWriter interface {
	Write(settings.State) error
}

// Journal records daemon lifecycle operations and imports. It is called off
// the loop.
type Journal interface {
	RecordDaemonEvent(ev storage.DaemonEvent) error
	RecordImport(rec storage.ImportRecord) error
}

// Timing holds the controller's delays.
type Timing struct {
	SaveDebounce     time.Duration
	HotkeyDebounce   time.Duration
	HealthInterval   time.Duration
	RecoveryCooldown time.Duration
	// OpTimeout bounds a single supervisor call.
	OpTimeout time.Duration
}

func DefaultTiming() Timing {
	return Timing{
		SaveDebounce:     400 * time.Millisecond,
		HotkeyDebounce:   800 * time.Millisecond,
		HealthInterval:   2 * time.Second,
		RecoveryCooldown: 5 * time.Second,
		OpTimeout:        15 * time.Second,
	}
}

// Option configures a Controller.
type Option func(*Controller)

func WithClock(c Clock) Option { return func(ctl *Controller) { ctl.clock = c } }

func WithTiming(t Timing) Option { return func(ctl *Controller) { ctl.timing = t } }

func WithJournal(j Journal) Option { return func(ctl *Controller) { ctl.journal = j } }

func WithRunner(r Runner) Option { return func(ctl *Controller) { ctl.runner = r } }

func WithLogger(l *slog.Logger) Option { return func(ctl *Controller) { ctl.logger = l } }

// Controller is not safe for concurrent use. Every method must run on the
// dispatcher passed to New; use Service from other goroutines.
type Controller struct {
	state     settings.State
	store     Store
	artifacts ArtifactWriter
	daemon    daemon.Supervisor
	journal   Journal
	clock     Clock
	runner    Runner
	timing    Timing
	logger    *slog.Logger

	saveTimer    *timer
	restartTimer *timer
	healthTimer  *timer

	applyingSnapshot bool
	closed           bool
	saveFailed       bool

	status        Status
	lastPublished Status
	lastRecovery  time.Time
	recoveries    int
	exeMissing    bool
	probing       bool
	// daemonBusy is set while a lifecycle operation is in flight.
	daemonBusy    bool
	restartQueued bool
	// userStopped suppresses auto-recovery after an explicit stop.
	userStopped bool

	changeListeners []func(settings.ChangeEvent)
	statusListeners []func(Status)
}

// New creates a controller owning state. d is the loop every method and
// timer callback runs on.
func New(d Dispatcher, state settings.State, store Store, artifacts ArtifactWriter, sup daemon.Supervisor, opts ...Option) *Controller {
	c := &Controller{
		state:     state.Clone(),
		store:     store,
		artifacts: artifacts,
		daemon:    sup,
		clock:     realClock{},
		timing:    DefaultTiming(),
		logger:    slog.Default(),
	}
	c.runner = asyncRunner{d: d}
	for _, opt := range opts {
		opt(c)
	}
	c.state.Normalize()
	c.saveTimer = newTimer(c.clock, d)
	c.restartTimer = newTimer(c.clock, d)
	c.healthTimer = newTimer(c.clock, d)
	return c
}

// OnChange registers fn for every effective settings change, including
// values reconciled from the daemon.
func (c *Controller) OnChange(fn func(settings.ChangeEvent)) {
	c.changeListeners = append(c.changeListeners, fn)
}

// OnStatus registers fn for status changes.
func (c *Controller) OnStatus(fn func(Status)) {
	c.statusListeners = append(c.statusListeners, fn)
}

// Settings returns a copy of the current state.
func (c *Controller) Settings() settings.State {
	return c.state.Clone()
}

func (c *Controller) Status() Status {
	st := c.status
	st.SavePending = c.saveTimer.Pending()
	st.RestartPending = c.restartTimer.Pending() || (c.daemonBusy && c.restartQueued)
	return st
}

// Set assigns value to p as a user edit and applies its effect. A value
// equal to the current one is a no-op.
func (c *Controller) Set(p settings.Property, value any) error {
	prev := settings.Value(&c.state, p)
	if err := settings.Assign(&c.state, p, value); err != nil {
		return err
	}
	cur := settings.Value(&c.state, p)
	if reflect.DeepEqual(prev, cur) {
		return nil
	}
	c.ApplyChange(settings.ChangeEvent{Property: p, Value: cur, Origin: settings.OriginUser})
	return nil
}

// ApplyChange performs the side effects ev requires. All effects are
// suppressed while a snapshot is being applied.
func (c *Controller) ApplyChange(ev settings.ChangeEvent) {
	if c.closed {
		return
	}
	for _, fn := range c.changeListeners {
		fn(ev)
	}
	if c.applyingSnapshot {
		return
	}

	effect := classify.ForEvent(ev)
	c.logger.Debug("settings change", "property", ev.Property, "origin", ev.Origin, "effect", effect)

	switch effect {
	case classify.Transient:
	case classify.ImmediatePersist:
		c.PersistNow()
	case classify.RuntimeSync:
		c.writeArtifact()
		c.ScheduleSave()
	case classify.HotkeyRestart:
		// The artifact is rewritten by RestartDaemonForHotkeyChange, right
		// before the daemon that reads it is restarted.
		c.ScheduleSave()
		c.ScheduleHotkeyRestart()
	default:
		c.ScheduleSave()
	}
	c.publish()
}

// PersistNow saves the settings and rewrites the runtime artifact. It is
// safe to call redundantly.
func (c *Controller) PersistNow() {
	c.saveTimer.Stop()
	if c.closed {
		return
	}
	if err := c.store.Save(c.state); err != nil {
		c.logger.Warn("saving settings failed", "error", err)
		c.status.Message = fmt.Sprintf("Could not save settings: %v", err)
		c.saveFailed = true
	} else {
		c.status.LastSaved = c.clock.Now()
		if c.saveFailed {
			c.saveFailed = false
			c.status.Message = "Settings saved"
		}
	}
	c.writeArtifact()
	c.publish()
}

// ScheduleSave debounces a full save.
func (c *Controller) ScheduleSave() {
	if c.closed {
		return
	}
	c.saveTimer.Reset(c.timing.SaveDebounce, c.PersistNow)
}

// ScheduleHotkeyRestart debounces a daemon restart for hotkey changes.
func (c *Controller) ScheduleHotkeyRestart() {
	if c.closed {
		return
	}
	c.restartTimer.Reset(c.timing.HotkeyDebounce, c.RestartDaemonForHotkeyChange)
}

// RestartDaemonForHotkeyChange rewrites the artifact and restarts the daemon
// so it registers the new hotkeys. A failed restart leaves the old daemon
// running. A daemon the user stopped stays stopped and picks the hotkeys up
// from the artifact when started.
func (c *Controller) RestartDaemonForHotkeyChange() {
	c.restartTimer.Stop()
	if c.closed {
		return
	}
	c.writeArtifact()
	if !c.daemon.IsSupported() || c.userStopped {
		return
	}
	c.restartDaemon(storage.EventRestart, nil)
}

func (c *Controller) writeArtifact() error {
	if err := c.artifacts.Write(c.state); err != nil {
		c.logger.Warn("writing runtime artifact failed", "error", err)
		c.status.Message = fmt.Sprintf("Could not write runtime config: %v", err)
		return err
	}
	return nil
}

// ExportBackup renders the current settings as a backup document.
func (c *Controller) ExportBackup() ([]byte, error) {
	return settings.ExportBackup(c.state, c.clock.Now())
}

// ImportBackup applies a full-settings backup as one change. The backup is
// validated before anything is touched; a corrupt one leaves the state as it
// was. It returns the number of fields that changed.
func (c *Controller) ImportBackup(data []byte, source string) (int, error) {
	fields, err := settings.ParseBackup(data)
	if err != nil {
		c.status.Message = fmt.Sprintf("Import rejected: %v", err)
		c.publish()
		c.recordImport(storage.ImportRecord{Source: source, Status: storage.ImportRejected, Error: err.Error()})
		return 0, err
	}

	next := c.state.Clone()
	for _, p := range fields.Properties() {
		if err := settings.Assign(&next, p, fields[p]); err != nil {
			c.recordImport(storage.ImportRecord{Source: source, Status: storage.ImportRejected, Error: err.Error()})
			return 0, fmt.Errorf("%w: %v", settings.ErrCorruptBackup, err)
		}
	}

	var events []settings.ChangeEvent
	needsRestart := false
	for _, p := range fields.Properties() {
		prev := settings.Value(&c.state, p)
		cur := settings.Value(&next, p)
		if reflect.DeepEqual(prev, cur) {
			continue
		}
		if classify.Classify(p) == classify.HotkeyRestart {
			needsRestart = true
		}
		events = append(events, settings.ChangeEvent{Property: p, Value: cur, Origin: settings.OriginSnapshot})
	}
	changed := len(events)

	c.state = next
	c.applyingSnapshot = true
	for _, ev := range events {
		c.ApplyChange(ev)
	}
	c.applyingSnapshot = false

	c.PersistNow()
	if needsRestart && c.daemon.IsSupported() && !c.userStopped {
		c.restartTimer.Stop()
		c.restartDaemon(storage.EventRestart, nil)
	}
	c.status.Message = fmt.Sprintf("Imported %d settings from %s", changed, source)
	c.publish()
	c.recordImport(storage.ImportRecord{Source: source, FieldCount: changed, Status: storage.ImportApplied})
	return changed, nil
}

func (c *Controller) recordImport(rec storage.ImportRecord) {
	if c.journal == nil {
		return
	}
	rec.CreatedAt = c.clock.Now()
	j, logger := c.journal, c.logger
	c.runner.Go(func() func() {
		if err := j.RecordImport(rec); err != nil {
			logger.Warn("journaling import failed", "error", err)
		}
		return nil
	})
}

// Close cancels the three timers. The daemon is left running.
func (c *Controller) Close() {
	c.closed = true
	c.saveTimer.Stop()
	c.restartTimer.Stop()
	c.healthTimer.Stop()
}

func (c *Controller) setDaemon(state DaemonState, msg string) {
	c.status.Daemon = state
	if msg != "" {
		c.status.Message = msg
	}
}

// publish notifies status listeners when the visible status changed.
func (c *Controller) publish() {
	st := c.Status()
	if st == c.lastPublished {
		return
	}
	c.lastPublished = st
	for _, fn := range c.statusListeners {
		fn(st)
	}
}

func (c *Controller) opContext() (context.Context, context.CancelFunc) {
	return context.WithTimeout(context.Background(), c.timing.OpTimeout)
}
