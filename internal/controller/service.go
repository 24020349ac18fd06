package controller

import (
	"context"

	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
)

// Service is the goroutine-safe face of a Controller. Every call is
// marshaled onto the controller's loop.
type Service struct {
	loop *Loop
	ctl  *Controller
}

func NewService(loop *Loop, ctl *Controller) *Service {
	return &Service{loop: loop, ctl: ctl}
}

func (s *Service) Status(ctx context.Context) (Status, error) {
	var st Status
	err := s.loop.Call(ctx, func() { st = s.ctl.Status() })
	return st, err
}

func (s *Service) Settings(ctx context.Context) (settings.State, error) {
	var st settings.State
	err := s.loop.Call(ctx, func() { st = s.ctl.Settings() })
	return st, err
}

// Set applies a user edit addressed by its settings key.
func (s *Service) Set(ctx context.Context, key string, value any) error {
	p, err := settings.LookupKey(key)
	if err != nil {
		return err
	}
	var setErr error
	if err := s.loop.Call(ctx, func() { setErr = s.ctl.Set(p, value) }); err != nil {
		return err
	}
	return setErr
}

func (s *Service) Import(ctx context.Context, data []byte, source string) (int, error) {
	var (
		n         int
		importErr error
	)
	if err := s.loop.Call(ctx, func() { n, importErr = s.ctl.ImportBackup(data, source) }); err != nil {
		return 0, err
	}
	return n, importErr
}

func (s *Service) Export(ctx context.Context) ([]byte, error) {
	var (
		data      []byte
		exportErr error
	)
	if err := s.loop.Call(ctx, func() { data, exportErr = s.ctl.ExportBackup() }); err != nil {
		return nil, err
	}
	return data, exportErr
}

func (s *Service) StartDaemon(ctx context.Context) (daemon.Result, error) {
	return s.daemonOp(ctx, s.ctl.StartDaemon)
}

func (s *Service) StopDaemon(ctx context.Context) (daemon.Result, error) {
	return s.daemonOp(ctx, s.ctl.StopDaemon)
}

func (s *Service) RestartDaemon(ctx context.Context) (daemon.Result, error) {
	return s.daemonOp(ctx, s.ctl.RestartDaemon)
}

// daemonOp waits for the operation to finish without holding the loop.
func (s *Service) daemonOp(ctx context.Context, op func(func(daemon.Result))) (daemon.Result, error) {
	results := make(chan daemon.Result, 1)
	if err := s.loop.Call(ctx, func() {
		op(func(r daemon.Result) { results <- r })
	}); err != nil {
		return daemon.Result{}, err
	}
	select {
	case r := <-results:
		return r, nil
	case <-ctx.Done():
		return daemon.Result{}, ctx.Err()
	case <-s.loop.Done():
		return daemon.Result{}, ErrLoopStopped
	}
}

// ReconcileNow asks for an immediate probe without waiting for it.
func (s *Service) ReconcileNow() {
	s.loop.Post(s.ctl.ReconcileNow)
}

// Close cancels the controller's timers.
func (s *Service) Close(ctx context.Context) error {
	return s.loop.Call(ctx, s.ctl.Close)
}

// Shutdown writes a save that is still waiting on its debounce, then closes
// the controller.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.loop.Call(ctx, func() {
		if s.ctl.Status().SavePending {
			s.ctl.PersistNow()
		}
		s.ctl.Close()
	})
}
