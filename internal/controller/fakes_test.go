package controller

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

// fakeClock fires timers in deadline order when advanced. Callbacks run on
// the goroutine calling Advance.
type fakeClock struct {
	now    time.Time
	seq    int
	timers []*fakeTimer
}

type fakeTimer struct {
	at      time.Time
	seq     int
	f       func()
	stopped bool
	fired   bool
}

func (t *fakeTimer) Stop() bool {
	active := !t.stopped && !t.fired
	t.stopped = true
	return active
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time { return c.now }

func (c *fakeClock) AfterFunc(d time.Duration, f func()) Stopper {
	c.seq++
	t := &fakeTimer{at: c.now.Add(d), seq: c.seq, f: f}
	c.timers = append(c.timers, t)
	return t
}

// Advance moves time forward by d, firing every timer that comes due.
func (c *fakeClock) Advance(d time.Duration) {
	end := c.now.Add(d)
	for {
		next := c.nextDue(end)
		if next == nil {
			break
		}
		c.now = next.at
		next.fired = true
		next.f()
	}
	c.now = end
}

func (c *fakeClock) nextDue(end time.Time) *fakeTimer {
	var live []*fakeTimer
	for _, t := range c.timers {
		if !t.stopped && !t.fired {
			live = append(live, t)
		}
	}
	c.timers = live
	sort.Slice(live, func(i, j int) bool {
		if live[i].at.Equal(live[j].at) {
			return live[i].seq < live[j].seq
		}
		return live[i].at.Before(live[j].at)
	})
	if len(live) == 0 || live[0].at.After(end) {
		return nil
	}
	return live[0]
}

// inline runs posted closures and offloaded work immediately, keeping the
// whole controller on the test goroutine.
type inline struct{}

func (inline) Post(fn func()) bool { fn(); return true }

func (inline) Go(work func() func()) {
	if next := work(); next != nil {
		next()
	}
}

type fakeStore struct {
	saves []settings.State
	err   error
}

func (s *fakeStore) Save(st settings.State) error {
	if s.err != nil {
		return s.err
	}
	s.saves = append(s.saves, st.Clone())
	return nil
}

type fakeArtifacts struct {
	writes []settings.State
	err    error
}

func (a *fakeArtifacts) Write(st settings.State) error {
	if a.err != nil {
		return a.err
	}
	a.writes = append(a.writes, st.Clone())
	return nil
}

// fakeSupervisor models a daemon process without spawning anything.
type fakeSupervisor struct {
	clock       *fakeClock
	unsupported bool
	running     bool
	exeMissing  bool
	startFails  bool
	restartFail bool
	language    settings.Language
	reported    bool

	starts     []time.Time
	stops      int
	restarts   int
	probeCalls int
}

var errNoExe = errors.New("daemon executable not found: vnhookd")

func (f *fakeSupervisor) IsSupported() bool { return !f.unsupported }

func (f *fakeSupervisor) IsRunning(context.Context) bool {
	f.probeCalls++
	return f.running && !f.exeMissing
}

func (f *fakeSupervisor) TryStart(context.Context) daemon.Result {
	f.starts = append(f.starts, f.clock.Now())
	if f.exeMissing {
		return daemon.Result{Message: errNoExe.Error()}
	}
	if f.startFails {
		return daemon.Result{Message: "vnhookd exited right after starting"}
	}
	f.running = true
	return daemon.Result{OK: true, Message: "started"}
}

func (f *fakeSupervisor) TryStop(context.Context) daemon.Result {
	f.stops++
	f.running = false
	return daemon.Result{OK: true, Message: "stopped"}
}

func (f *fakeSupervisor) TryRestart(context.Context) daemon.Result {
	f.restarts++
	if f.exeMissing || f.restartFail {
		return daemon.Result{Message: "restart skipped, previous daemon left running"}
	}
	f.running = true
	return daemon.Result{OK: true, Message: "restarted"}
}

func (f *fakeSupervisor) ResolveExecutablePath() (string, error) {
	if f.exeMissing {
		return "", errNoExe
	}
	return "/usr/local/bin/vnhookd", nil
}

func (f *fakeSupervisor) ReadReportedLanguageMode() (settings.Language, bool) {
	return f.language, f.reported && f.running
}

type fakeJournal struct {
	mu      sync.Mutex
	events  []storage.DaemonEvent
	imports []storage.ImportRecord
}

func (j *fakeJournal) RecordDaemonEvent(ev storage.DaemonEvent) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.events = append(j.events, ev)
	return nil
}

func (j *fakeJournal) RecordImport(rec storage.ImportRecord) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.imports = append(j.imports, rec)
	return nil
}

type harness struct {
	clock     *fakeClock
	store     *fakeStore
	artifacts *fakeArtifacts
	sup       *fakeSupervisor
	journal   *fakeJournal
	ctl       *Controller
}

func newHarness(opts ...Option) *harness {
	clock := newFakeClock()
	h := &harness{
		clock:     clock,
		store:     &fakeStore{},
		artifacts: &fakeArtifacts{},
		sup:       &fakeSupervisor{clock: clock, running: true},
		journal:   &fakeJournal{},
	}
	base := []Option{WithClock(clock), WithRunner(inline{}), WithJournal(h.journal)}
	h.ctl = New(inline{}, settings.Default(), h.store, h.artifacts, h.sup, append(base, opts...)...)
	return h
}

// deferredRunner holds offloaded work until the test runs it, to model
// operations that are still in flight.
type deferredRunner struct {
	work []func() func()
}

func (r *deferredRunner) Go(work func() func()) {
	r.work = append(r.work, work)
}

// runNext runs the oldest pending work and its continuation.
func (r *deferredRunner) runNext() bool {
	if len(r.work) == 0 {
		return false
	}
	w := r.work[0]
	r.work = r.work[1:]
	if next := w(); next != nil {
		next()
	}
	return true
}
