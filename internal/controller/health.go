package controller

import (
	"context"
	"fmt"

	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

var (
	resultBusy        = daemon.Result{Message: "another daemon operation is in progress"}
	resultUnsupported = daemon.Result{Message: "the hook runs inside the settings process on this platform"}
)

// Start writes the runtime artifact once and begins health polling. The
// first probe runs immediately.
func (c *Controller) Start() {
	if c.closed {
		return
	}
	c.writeArtifact()
	if !c.daemon.IsSupported() {
		c.setDaemon(DaemonUnsupported, "")
		c.publish()
		return
	}
	c.healthTick()
}

func (c *Controller) healthTick() {
	if c.closed {
		return
	}
	c.healthTimer.Reset(c.timing.HealthInterval, c.healthTick)
	c.probe()
}

// ReconcileNow runs a probe outside the polling schedule, e.g. when the
// daemon rewrites its status file.
func (c *Controller) ReconcileNow() {
	if c.closed || !c.daemon.IsSupported() {
		return
	}
	c.probe()
}

// RecoveryAttempts returns how many times auto-recovery tried to start the
// daemon.
func (c *Controller) RecoveryAttempts() int {
	return c.recoveries
}

type probeResult struct {
	running  bool
	exeErr   error
	language settings.Language
	reported bool
}

func (c *Controller) probe() {
	if c.probing {
		return
	}
	c.probing = true
	sup := c.daemon
	c.runner.Go(func() func() {
		ctx, cancel := c.opContext()
		defer cancel()
		var p probeResult
		p.running = sup.IsRunning(ctx)
		_, p.exeErr = sup.ResolveExecutablePath()
		p.language, p.reported = sup.ReadReportedLanguageMode()
		return func() {
			c.probing = false
			c.applyProbe(p)
		}
	})
}

// applyProbe runs liveness refresh, auto-recovery and language
// reconciliation, in that order.
func (c *Controller) applyProbe(p probeResult) {
	if c.closed {
		return
	}

	c.exeMissing = p.exeErr != nil
	switch {
	case p.running:
		if c.status.Daemon != DaemonRunning {
			c.setDaemon(DaemonRunning, "Daemon is running")
		}
	case c.exeMissing:
		c.setDaemon(DaemonNotRunning, fmt.Sprintf("Hook daemon unavailable: %v", p.exeErr))
	case c.status.Daemon != DaemonNotRunning:
		c.setDaemon(DaemonNotRunning, "Daemon is not running")
	}

	if !p.running && !c.daemonBusy && !c.userStopped {
		now := c.clock.Now()
		if c.lastRecovery.IsZero() || now.Sub(c.lastRecovery) >= c.timing.RecoveryCooldown {
			c.lastRecovery = now
			c.recover()
		}
	}

	// A pending or running restart will replace the daemon; its report is
	// about to be stale.
	if p.running && p.reported && !c.restartTimer.Pending() && !c.daemonBusy && p.language != c.state.Language {
		c.logger.Info("daemon switched language", "from", c.state.Language, "to", p.language)
		c.state.Language = p.language
		c.ApplyChange(settings.ChangeEvent{Property: settings.PropLanguage, Value: p.language, Origin: settings.OriginDaemon})
	}
	c.publish()
}

func (c *Controller) recover() {
	c.recoveries++
	c.daemonBusy = true
	c.logger.Info("daemon not running, attempting recovery", "attempt", c.recoveries)
	c.runOp(storage.EventRecover, c.daemon.TryStart, func(r daemon.Result, running bool) {
		switch {
		case r.OK && running:
			c.setDaemon(DaemonRunning, "Daemon started")
		case c.exeMissing:
			// The liveness message already names the missing executable.
		default:
			c.setDaemon(DaemonNotRunning, "Could not start daemon: "+r.Message)
		}
	})
}

// StartDaemon starts the daemon on request and re-enables auto-recovery.
func (c *Controller) StartDaemon(done func(daemon.Result)) {
	if !c.daemon.IsSupported() {
		report(done, resultUnsupported)
		return
	}
	if c.daemonBusy {
		report(done, resultBusy)
		return
	}
	c.userStopped = false
	c.daemonBusy = true
	c.writeArtifact()
	c.runOp(storage.EventStart, c.daemon.TryStart, func(r daemon.Result, running bool) {
		if r.OK {
			c.setDaemon(DaemonRunning, "Daemon started")
		} else {
			c.setDaemon(stateFor(running), "Could not start daemon: "+r.Message)
		}
		report(done, r)
	})
}

// StopDaemon stops the daemon on request. Auto-recovery stays off until the
// daemon is started or restarted again.
func (c *Controller) StopDaemon(done func(daemon.Result)) {
	if !c.daemon.IsSupported() {
		report(done, resultUnsupported)
		return
	}
	if c.daemonBusy {
		report(done, resultBusy)
		return
	}
	c.userStopped = true
	c.restartTimer.Stop()
	c.daemonBusy = true
	c.runOp(storage.EventStop, c.daemon.TryStop, func(r daemon.Result, running bool) {
		if r.OK {
			c.setDaemon(DaemonNotRunning, "Daemon stopped")
		} else {
			c.setDaemon(stateFor(running), "Could not stop daemon: "+r.Message)
		}
		report(done, r)
	})
}

// RestartDaemon restarts the daemon on request with the current settings.
func (c *Controller) RestartDaemon(done func(daemon.Result)) {
	if !c.daemon.IsSupported() {
		report(done, resultUnsupported)
		return
	}
	if c.daemonBusy {
		report(done, resultBusy)
		return
	}
	c.userStopped = false
	c.restartTimer.Stop()
	c.writeArtifact()
	c.restartDaemon(storage.EventRestart, done)
}

// restartDaemon queues behind an in-flight operation when done is nil.
func (c *Controller) restartDaemon(kind string, done func(daemon.Result)) {
	if c.daemonBusy {
		if done != nil {
			report(done, resultBusy)
			return
		}
		c.restartQueued = true
		return
	}
	c.daemonBusy = true
	c.runOp(kind, c.daemon.TryRestart, func(r daemon.Result, running bool) {
		if r.OK {
			c.setDaemon(stateFor(running), "Daemon restarted")
		} else {
			c.setDaemon(stateFor(running), "Could not restart daemon: "+r.Message)
		}
		report(done, r)
	})
}

// runOp runs a supervisor operation off the loop, journals it, and applies
// finish on the loop.
func (c *Controller) runOp(kind string, op func(context.Context) daemon.Result, finish func(daemon.Result, bool)) {
	sup, journal, logger := c.daemon, c.journal, c.logger
	at := c.clock.Now()
	c.runner.Go(func() func() {
		ctx, cancel := c.opContext()
		defer cancel()
		r := op(ctx)
		running := sup.IsRunning(ctx)
		if journal != nil {
			ev := storage.DaemonEvent{CreatedAt: at, Kind: kind, OK: r.OK, Message: r.Message}
			if err := journal.RecordDaemonEvent(ev); err != nil {
				logger.Warn("journaling daemon event failed", "error", err)
			}
		}
		return func() {
			c.daemonBusy = false
			logger.Info("daemon operation finished", "op", kind, "ok", r.OK, "message", r.Message)
			finish(r, running)
			if c.restartQueued && !c.closed {
				c.restartQueued = false
				c.writeArtifact()
				c.restartDaemon(storage.EventRestart, nil)
			}
			c.publish()
		}
	})
}

func stateFor(running bool) DaemonState {
	if running {
		return DaemonRunning
	}
	return DaemonNotRunning
}

func report(done func(daemon.Result), r daemon.Result) {
	if done != nil {
		done(r)
	}
}
