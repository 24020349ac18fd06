package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// mockKeychain is a test double for the Keychain interface.
type mockKeychain struct {
	values map[string]string
	getErr error
	setErr error
}

func (m *mockKeychain) Get(service, account string) (string, error) {
	if m.getErr != nil {
		return "", m.getErr
	}
	v, ok := m.values[service+"/"+account]
	if !ok {
		return "", errors.New("not found")
	}
	return v, nil
}

func (m *mockKeychain) Set(service, account, value string) error {
	if m.setErr != nil {
		return m.setErr
	}
	if m.values == nil {
		m.values = make(map[string]string)
	}
	m.values[service+"/"+account] = value
	return nil
}

func writeTempConfig(t *testing.T, content string) string {
	t.Helper()
	dir := t.TempDir()
	path := filepath.Join(dir, "config.toml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
	return path
}

func loadFromPath(path string) (Config, error) {
	return loadWith(newFileBackend(path))
}

// TestDefaults verifies all default values are applied when loading an empty config file.
func TestDefaults(t *testing.T) {
	path := writeTempConfig(t, `# empty config`)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 4700 {
		t.Errorf("Server.Port = %d, want 4700", cfg.Server.Port)
	}
	if cfg.Sync.SaveDebounce != 400*time.Millisecond {
		t.Errorf("Sync.SaveDebounce = %v, want 400ms", cfg.Sync.SaveDebounce)
	}
	if cfg.Sync.HotkeyDebounce != 800*time.Millisecond {
		t.Errorf("Sync.HotkeyDebounce = %v, want 800ms", cfg.Sync.HotkeyDebounce)
	}
	if cfg.Sync.HealthInterval != 2*time.Second {
		t.Errorf("Sync.HealthInterval = %v, want 2s", cfg.Sync.HealthInterval)
	}
	if cfg.Sync.RecoveryCooldown != 5*time.Second {
		t.Errorf("Sync.RecoveryCooldown = %v, want 5s", cfg.Sync.RecoveryCooldown)
	}
	if !cfg.Daemon.Supervise {
		t.Error("Daemon.Supervise = false, want true")
	}
	if cfg.Log.Level != "info" {
		t.Errorf("Log.Level = %q, want info", cfg.Log.Level)
	}
	if want := filepath.Join(cfg.Paths.DataDir, "runtime"); cfg.RuntimeDir() != want {
		t.Errorf("RuntimeDir() = %q, want %q", cfg.RuntimeDir(), want)
	}
}

// TestEnvOverride verifies that environment variables override config file values.
func TestEnvOverride(t *testing.T) {
	path := writeTempConfig(t, `[server]
port = 5000

[sync]
save_debounce = "1s"
`)

	t.Setenv("VNHOOK_SERVER_PORT", "6000")
	t.Setenv("VNHOOK_SYNC_SAVE_DEBOUNCE", "250ms")
	t.Setenv("VNHOOK_DAEMON_SUPERVISE", "false")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Server.Port != 6000 {
		t.Errorf("Server.Port = %d, want 6000", cfg.Server.Port)
	}
	if cfg.Sync.SaveDebounce != 250*time.Millisecond {
		t.Errorf("Sync.SaveDebounce = %v, want 250ms", cfg.Sync.SaveDebounce)
	}
	if cfg.Daemon.Supervise {
		t.Error("Daemon.Supervise = true, want env override false")
	}
}

func TestInvalidEnvKeepsDefault(t *testing.T) {
	path := writeTempConfig(t, ``)
	t.Setenv("VNHOOK_SYNC_HEALTH_INTERVAL", "often")

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Sync.HealthInterval != 2*time.Second {
		t.Errorf("Sync.HealthInterval = %v, want default 2s", cfg.Sync.HealthInterval)
	}
}

// TestTOMLParsing verifies that all fields are correctly read from a TOML file.
func TestTOMLParsing(t *testing.T) {
	content := `
[paths]
data_dir = "/tmp/vnhook-test"
runtime_dir = "/tmp/vnhook-run"

[daemon]
executable = "/opt/vnhook/vnhookd"
supervise = false
stop_timeout = "5s"
start_grace = "1s"

[sync]
save_debounce = "500ms"
hotkey_debounce = "1s"
health_interval = "3s"
recovery_cooldown = "10s"

[server]
port = 5000

[log]
level = "debug"
`
	path := writeTempConfig(t, content)

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if cfg.Paths.DataDir != "/tmp/vnhook-test" {
		t.Errorf("Paths.DataDir = %q", cfg.Paths.DataDir)
	}
	if cfg.RuntimeDir() != "/tmp/vnhook-run" {
		t.Errorf("RuntimeDir() = %q", cfg.RuntimeDir())
	}
	if cfg.SettingsPath() != filepath.Join("/tmp/vnhook-test", "settings.json") {
		t.Errorf("SettingsPath() = %q", cfg.SettingsPath())
	}
	if cfg.Daemon.Executable != "/opt/vnhook/vnhookd" {
		t.Errorf("Daemon.Executable = %q", cfg.Daemon.Executable)
	}
	if cfg.Daemon.Supervise {
		t.Error("Daemon.Supervise = true")
	}
	if cfg.Daemon.StopTimeout != 5*time.Second || cfg.Daemon.StartGrace != time.Second {
		t.Errorf("Daemon timeouts = %v/%v", cfg.Daemon.StopTimeout, cfg.Daemon.StartGrace)
	}
	if cfg.Sync.SaveDebounce != 500*time.Millisecond || cfg.Sync.HotkeyDebounce != time.Second ||
		cfg.Sync.HealthInterval != 3*time.Second || cfg.Sync.RecoveryCooldown != 10*time.Second {
		t.Errorf("Sync = %+v", cfg.Sync)
	}
	if cfg.Server.Port != 5000 {
		t.Errorf("Server.Port = %d, want 5000", cfg.Server.Port)
	}
	if cfg.Log.Level != "debug" {
		t.Errorf("Log.Level = %q", cfg.Log.Level)
	}
}

func TestValidateRejectsNonPositiveDuration(t *testing.T) {
	path := writeTempConfig(t, `[sync]
save_debounce = "0s"
`)
	_, err := loadFromPath(path)
	if err == nil || !strings.Contains(err.Error(), "sync.save_debounce") {
		t.Fatalf("error = %v, want save_debounce rejected", err)
	}
}

func TestCorruptFileUsesDefaults(t *testing.T) {
	path := writeTempConfig(t, `[server
port = `)
	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Server.Port != 4700 {
		t.Errorf("Server.Port = %d, want default", cfg.Server.Port)
	}
}

func TestSetKeyRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vnhook", "config.toml")
	b := newFileBackend(path)

	for key, value := range map[string]string{
		"server.port":          "4800",
		"daemon.supervise":     "false",
		"sync.hotkey_debounce": "1.5s",
		"daemon.executable":    "/usr/bin/vnhookd",
	} {
		if err := setKey(b, key, value); err != nil {
			t.Fatalf("setKey(%s): %v", key, err)
		}
	}

	cfg, err := loadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4800 {
		t.Errorf("Server.Port = %d", cfg.Server.Port)
	}
	if cfg.Daemon.Supervise {
		t.Error("Daemon.Supervise = true")
	}
	if cfg.Sync.HotkeyDebounce != 1500*time.Millisecond {
		t.Errorf("Sync.HotkeyDebounce = %v", cfg.Sync.HotkeyDebounce)
	}
	if cfg.Daemon.Executable != "/usr/bin/vnhookd" {
		t.Errorf("Daemon.Executable = %q", cfg.Daemon.Executable)
	}

	if err := b.Delete("server.port"); err != nil {
		t.Fatal(err)
	}
	cfg, err = loadFromPath(path)
	if err != nil {
		t.Fatal(err)
	}
	if cfg.Server.Port != 4700 {
		t.Errorf("Server.Port after delete = %d, want default", cfg.Server.Port)
	}
}

func TestSetKeyRejectsBadValues(t *testing.T) {
	b := newFileBackend(filepath.Join(t.TempDir(), "config.toml"))
	tests := []struct {
		key, value, want string
	}{
		{"server.port", "abc", "invalid integer"},
		{"daemon.supervise", "maybe", "invalid bool"},
		{"sync.save_debounce", "soon", "invalid duration"},
		{"sync.save_debounce", "-1s", "must be positive"},
		{"nope.key", "1", "unknown config key"},
	}
	for _, tt := range tests {
		err := setKey(b, tt.key, tt.value)
		if err == nil || !strings.Contains(err.Error(), tt.want) {
			t.Errorf("setKey(%s, %s) = %v, want %q", tt.key, tt.value, err, tt.want)
		}
	}
}

func TestShowAllCoversEveryKey(t *testing.T) {
	keys := ValidKeys()
	infos := ShowAll(defaults())
	if len(infos) != len(keys) {
		t.Fatalf("ShowAll returned %d entries, want %d", len(infos), len(keys))
	}
	for i, info := range infos {
		if info.Key != keys[i] {
			t.Errorf("entry %d = %q, want %q", i, info.Key, keys[i])
		}
		if !strings.HasPrefix(info.EnvVar, "VNHOOK_") {
			t.Errorf("%s env var = %q", info.Key, info.EnvVar)
		}
	}
}

func TestGetAPITokenEnvWins(t *testing.T) {
	t.Setenv("VNHOOK_API_TOKEN", "env-token")
	kc := &mockKeychain{values: map[string]string{"vnhook/api_token": "stored"}}

	tok, err := GetAPIToken(kc)
	if err != nil {
		t.Fatal(err)
	}
	if tok != "env-token" {
		t.Errorf("token = %q, want env-token", tok)
	}
}

// TestGetAPITokenGeneratesOnce verifies a token is generated on first use
// and reused afterwards.
func TestGetAPITokenGeneratesOnce(t *testing.T) {
	t.Setenv("VNHOOK_API_TOKEN", "")
	kc := &mockKeychain{}

	first, err := GetAPIToken(kc)
	if err != nil {
		t.Fatal(err)
	}
	if len(first) != 32 {
		t.Errorf("generated token %q, want 32 hex chars", first)
	}
	second, err := GetAPIToken(kc)
	if err != nil {
		t.Fatal(err)
	}
	if first != second {
		t.Errorf("token changed between calls: %q then %q", first, second)
	}
}

func TestGetAPITokenStoreFailure(t *testing.T) {
	t.Setenv("VNHOOK_API_TOKEN", "")
	kc := &mockKeychain{setErr: errors.New("locked")}

	if _, err := GetAPIToken(kc); err == nil || !strings.Contains(err.Error(), "storing API token") {
		t.Errorf("error = %v", err)
	}
}
