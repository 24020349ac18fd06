package api

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/kalambet/vnhook/internal/controller"
	"github.com/kalambet/vnhook/internal/daemon"
	"github.com/kalambet/vnhook/internal/settings"
	"github.com/kalambet/vnhook/internal/storage"
)

const testToken = "test-token-12345"

// mockService applies edits directly to a State without timers or a loop.
type mockService struct {
	mu       sync.Mutex
	state    settings.State
	status   controller.Status
	restarts int
	result   daemon.Result
	imported []string
	err      error
}

func newMockService() *mockService {
	return &mockService{
		state:  settings.Default(),
		status: controller.Status{Daemon: controller.DaemonRunning, Message: "Daemon is running"},
		result: daemon.Result{OK: true, Message: "daemon restarted"},
	}
}

func (m *mockService) Status(ctx context.Context) (controller.Status, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status, m.err
}

func (m *mockService) Settings(ctx context.Context) (settings.State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state.Clone(), m.err
}

func (m *mockService) Set(ctx context.Context, key string, value any) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	p, err := settings.LookupKey(key)
	if err != nil {
		return err
	}
	return settings.Assign(&m.state, p, value)
}

func (m *mockService) Import(ctx context.Context, data []byte, source string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	fields, err := settings.ParseBackup(data)
	if err != nil {
		return 0, err
	}
	next := m.state.Clone()
	for _, p := range fields.Properties() {
		if err := settings.Assign(&next, p, fields[p]); err != nil {
			return 0, err
		}
	}
	m.state = next
	m.imported = append(m.imported, source)
	return len(fields), nil
}

func (m *mockService) Export(ctx context.Context) ([]byte, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return settings.ExportBackup(m.state, time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
}

func (m *mockService) StartDaemon(ctx context.Context) (daemon.Result, error) {
	return daemon.Result{OK: true, Message: "daemon started"}, m.err
}

func (m *mockService) StopDaemon(ctx context.Context) (daemon.Result, error) {
	return daemon.Result{OK: true, Message: "daemon stopped"}, m.err
}

func (m *mockService) RestartDaemon(ctx context.Context) (daemon.Result, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.restarts++
	return m.result, m.err
}

func openTestStore(t *testing.T) *storage.Store {
	t.Helper()
	store, err := storage.Open(":memory:")
	if err != nil {
		t.Fatalf("Open(:memory:) failed: %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}
