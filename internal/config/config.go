package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

type Config struct {
	Paths  PathsConfig
	Daemon DaemonConfig
	Sync   SyncConfig
	Server ServerConfig
	Log    LogConfig
}

type PathsConfig struct {
	DataDir    string
	RuntimeDir string
}

type DaemonConfig struct {
	// Executable overrides the daemon lookup. Empty means next to vnhookctl,
	// then PATH.
	Executable string
	// Supervise selects an external daemon process. When false the hook is
	// assumed to run in-process and lifecycle calls are no-ops.
	Supervise   bool
	StopTimeout time.Duration
	StartGrace  time.Duration
}

type SyncConfig struct {
	SaveDebounce     time.Duration
	HotkeyDebounce   time.Duration
	HealthInterval   time.Duration
	RecoveryCooldown time.Duration
}

type ServerConfig struct {
	Port int
}

type LogConfig struct {
	Level string
}

func defaults() Config {
	return Config{
		Paths: PathsConfig{
			DataDir: defaultDataDir(),
		},
		Daemon: DaemonConfig{
			Supervise:   true,
			StopTimeout: 3 * time.Second,
			StartGrace:  300 * time.Millisecond,
		},
		Sync: SyncConfig{
			SaveDebounce:     400 * time.Millisecond,
			HotkeyDebounce:   800 * time.Millisecond,
			HealthInterval:   2 * time.Second,
			RecoveryCooldown: 5 * time.Second,
		},
		Server: ServerConfig{
			Port: 4700,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

// RuntimeDir is where the runtime artifact and daemon status file live.
// It defaults to a directory under the data dir.
func (c Config) RuntimeDir() string {
	if c.Paths.RuntimeDir != "" {
		return c.Paths.RuntimeDir
	}
	return filepath.Join(c.Paths.DataDir, "runtime")
}

// SettingsPath is the ConfigStore file.
func (c Config) SettingsPath() string {
	return filepath.Join(c.Paths.DataDir, "settings.json")
}

// Validate rejects values the controller cannot run with.
func (c Config) Validate() error {
	if c.Paths.DataDir == "" {
		return fmt.Errorf("paths.data_dir must not be empty")
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port %d out of range", c.Server.Port)
	}
	for _, d := range []struct {
		key string
		val time.Duration
	}{
		{"sync.save_debounce", c.Sync.SaveDebounce},
		{"sync.hotkey_debounce", c.Sync.HotkeyDebounce},
		{"sync.health_interval", c.Sync.HealthInterval},
		{"sync.recovery_cooldown", c.Sync.RecoveryCooldown},
		{"daemon.stop_timeout", c.Daemon.StopTimeout},
	} {
		if d.val <= 0 {
			return fmt.Errorf("%s must be positive, got %v", d.key, d.val)
		}
	}
	return nil
}

// Load reads configuration from the platform-native backend and
// environment variables.
//
// On macOS the backend is UserDefaults (domain: com.vnhook.app).
// Elsewhere it is a TOML file at $XDG_CONFIG_HOME/vnhook/config.toml.
//
// Environment variables (VNHOOK_*) override backend values on all platforms.
func Load() (Config, error) {
	return loadWith(newPlatformBackend())
}

func loadWith(b ConfigBackend) (Config, error) {
	cfg := defaults()

	if err := applyBackend(&cfg, b); err != nil {
		return Config{}, err
	}

	applyEnvOverrides(&cfg)

	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

const (
	keychainService = "vnhook"
	apiTokenAccount = "api_token"
	apiTokenEnv     = "VNHOOK_API_TOKEN"
)

// Keychain abstracts the platform secret store for testing.
type Keychain interface {
	Get(service, account string) (string, error)
	Set(service, account, value string) error
}

// NewKeychain returns the platform secret store.
func NewKeychain() Keychain {
	return systemKeychain{}
}

// GetAPIToken returns the bearer token guarding the control API. The
// environment wins; otherwise the token is read from the keychain and
// generated on first use.
func GetAPIToken(kc Keychain) (string, error) {
	if tok := os.Getenv(apiTokenEnv); tok != "" {
		return tok, nil
	}
	if tok, err := kc.Get(keychainService, apiTokenAccount); err == nil && tok != "" {
		return tok, nil
	}
	tok := strings.ReplaceAll(uuid.NewString(), "-", "")
	if err := kc.Set(keychainService, apiTokenAccount, tok); err != nil {
		return "", fmt.Errorf("storing API token: %w", err)
	}
	return tok, nil
}

type systemKeychain struct{}

func (systemKeychain) Get(service, account string) (string, error) {
	out, err := keychainGet(service, account)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(out)), nil
}

func (systemKeychain) Set(service, account, value string) error {
	return keychainSet(service, account, value)
}
