package config

import (
	"fmt"
	"os"
	"strconv"
	"time"
)

type keyType int

const (
	kString keyType = iota
	kInt
	kBool
	kDuration
)

type keySpec struct {
	key     string
	typ     keyType
	env     string
	apply   func(cfg *Config, v any)
	extract func(cfg Config) any
}

var specs = []keySpec{
	{
		key: "paths.data_dir", typ: kString, env: "VNHOOK_DATA_DIR",
		apply:   func(cfg *Config, v any) { cfg.Paths.DataDir = v.(string) },
		extract: func(cfg Config) any { return cfg.Paths.DataDir },
	},
	{
		key: "paths.runtime_dir", typ: kString, env: "VNHOOK_RUNTIME_DIR",
		apply:   func(cfg *Config, v any) { cfg.Paths.RuntimeDir = v.(string) },
		extract: func(cfg Config) any { return cfg.RuntimeDir() },
	},
	{
		key: "daemon.executable", typ: kString, env: "VNHOOK_DAEMON_EXECUTABLE",
		apply:   func(cfg *Config, v any) { cfg.Daemon.Executable = v.(string) },
		extract: func(cfg Config) any { return cfg.Daemon.Executable },
	},
	{
		key: "daemon.supervise", typ: kBool, env: "VNHOOK_DAEMON_SUPERVISE",
		apply:   func(cfg *Config, v any) { cfg.Daemon.Supervise = v.(bool) },
		extract: func(cfg Config) any { return cfg.Daemon.Supervise },
	},
	{
		key: "daemon.stop_timeout", typ: kDuration, env: "VNHOOK_DAEMON_STOP_TIMEOUT",
		apply:   func(cfg *Config, v any) { cfg.Daemon.StopTimeout = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Daemon.StopTimeout },
	},
	{
		key: "daemon.start_grace", typ: kDuration, env: "VNHOOK_DAEMON_START_GRACE",
		apply:   func(cfg *Config, v any) { cfg.Daemon.StartGrace = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Daemon.StartGrace },
	},
	{
		key: "sync.save_debounce", typ: kDuration, env: "VNHOOK_SYNC_SAVE_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Sync.SaveDebounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.SaveDebounce },
	},
	{
		key: "sync.hotkey_debounce", typ: kDuration, env: "VNHOOK_SYNC_HOTKEY_DEBOUNCE",
		apply:   func(cfg *Config, v any) { cfg.Sync.HotkeyDebounce = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.HotkeyDebounce },
	},
	{
		key: "sync.health_interval", typ: kDuration, env: "VNHOOK_SYNC_HEALTH_INTERVAL",
		apply:   func(cfg *Config, v any) { cfg.Sync.HealthInterval = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.HealthInterval },
	},
	{
		key: "sync.recovery_cooldown", typ: kDuration, env: "VNHOOK_SYNC_RECOVERY_COOLDOWN",
		apply:   func(cfg *Config, v any) { cfg.Sync.RecoveryCooldown = v.(time.Duration) },
		extract: func(cfg Config) any { return cfg.Sync.RecoveryCooldown },
	},
	{
		key: "server.port", typ: kInt, env: "VNHOOK_SERVER_PORT",
		apply:   func(cfg *Config, v any) { cfg.Server.Port = v.(int) },
		extract: func(cfg Config) any { return cfg.Server.Port },
	},
	{
		key: "log.level", typ: kString, env: "VNHOOK_LOG_LEVEL",
		apply:   func(cfg *Config, v any) { cfg.Log.Level = v.(string) },
		extract: func(cfg Config) any { return cfg.Log.Level },
	},
}

func applyBackend(cfg *Config, b ConfigBackend) error {
	for _, s := range specs {
		switch s.typ {
		case kString:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kInt:
			v, ok, err := b.GetInt(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok {
				s.apply(cfg, v)
			}
		case kBool:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if bv, err := strconv.ParseBool(v); err == nil {
					s.apply(cfg, bv)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		case kDuration:
			v, ok, err := b.GetString(s.key)
			if err != nil {
				return fmt.Errorf("reading %s: %w", s.key, err)
			}
			if ok && v != "" {
				if d, err := time.ParseDuration(v); err == nil {
					s.apply(cfg, d)
				} else {
					fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from config key %s=%q: %v. Using default value.\n", s.key, v, err)
				}
			}
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) {
	for _, s := range specs {
		if s.env == "" {
			continue
		}
		raw := os.Getenv(s.env)
		if raw == "" {
			continue
		}
		switch s.typ {
		case kString:
			s.apply(cfg, raw)
		case kInt:
			if i, err := strconv.Atoi(raw); err == nil {
				s.apply(cfg, i)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse integer from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kBool:
			if b, err := strconv.ParseBool(raw); err == nil {
				s.apply(cfg, b)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse bool from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		case kDuration:
			if d, err := time.ParseDuration(raw); err == nil {
				s.apply(cfg, d)
			} else {
				fmt.Fprintf(os.Stderr, "[WARN] could not parse duration from env var %s=%q: %v. Using default value.\n", s.env, raw, err)
			}
		}
	}
}
