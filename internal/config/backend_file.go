package config

import (
	"fmt"
	"math"
	"os"
	"strconv"
	"strings"

	"github.com/pelletier/go-toml/v2"

	"github.com/kalambet/vnhook/internal/atomicfile"
)

// fileBackend stores config as a TOML document. A dotted key such as
// "server.port" addresses the port entry of the [server] table.
type fileBackend struct {
	path string
	data map[string]any
}

func newFileBackend(path string) *fileBackend {
	b := &fileBackend{path: path, data: make(map[string]any)}
	b.load()
	return b
}

func (b *fileBackend) load() {
	data, err := os.ReadFile(b.path)
	if err != nil {
		if !os.IsNotExist(err) {
			fmt.Fprintf(os.Stderr, "[WARN] could not read config file %s: %v. Using default values.\n", b.path, err)
		}
		return
	}
	if err := toml.Unmarshal(data, &b.data); err != nil {
		fmt.Fprintf(os.Stderr, "[WARN] could not parse config file %s: %v. Using default values.\n", b.path, err)
		b.data = make(map[string]any)
	}
}

func (b *fileBackend) save() error {
	data, err := toml.Marshal(b.data)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(b.path, data, 0o600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}
	return nil
}

func (b *fileBackend) lookup(key string) (any, bool) {
	section, name, nested := strings.Cut(key, ".")
	if !nested {
		v, ok := b.data[key]
		return v, ok
	}
	tbl, ok := b.data[section].(map[string]any)
	if !ok {
		return nil, false
	}
	v, ok := tbl[name]
	return v, ok
}

func (b *fileBackend) put(key string, v any) {
	section, name, nested := strings.Cut(key, ".")
	if !nested {
		b.data[key] = v
		return
	}
	tbl, ok := b.data[section].(map[string]any)
	if !ok {
		tbl = make(map[string]any)
		b.data[section] = tbl
	}
	tbl[name] = v
}

func (b *fileBackend) GetString(key string) (string, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return "", false, nil
	}
	s, ok := v.(string)
	if !ok {
		return fmt.Sprintf("%v", v), true, nil
	}
	return s, true, nil
}

func (b *fileBackend) GetInt(key string) (int, bool, error) {
	v, ok := b.lookup(key)
	if !ok {
		return 0, false, nil
	}
	switch val := v.(type) {
	case int64:
		if val < math.MinInt || val > math.MaxInt {
			return 0, true, fmt.Errorf("value %v for %s is out of range", val, key)
		}
		return int(val), true, nil
	case float64:
		if val < math.MinInt || val > math.MaxInt || val != math.Trunc(val) {
			return 0, true, fmt.Errorf("value %v for %s is not a valid integer or is out of range", val, key)
		}
		return int(val), true, nil
	case string:
		i, err := strconv.Atoi(val)
		if err != nil {
			return 0, true, fmt.Errorf("invalid integer for %s: %w", key, err)
		}
		return i, true, nil
	default:
		return 0, true, fmt.Errorf("invalid type for %s", key)
	}
}

func (b *fileBackend) SetString(key, val string) error {
	b.put(key, val)
	return b.save()
}

func (b *fileBackend) SetInt(key string, val int) error {
	b.put(key, int64(val))
	return b.save()
}

func (b *fileBackend) SetBool(key string, val bool) error {
	b.put(key, val)
	return b.save()
}

func (b *fileBackend) Delete(key string) error {
	section, name, nested := strings.Cut(key, ".")
	if !nested {
		delete(b.data, key)
	} else if tbl, ok := b.data[section].(map[string]any); ok {
		delete(tbl, name)
		if len(tbl) == 0 {
			delete(b.data, section)
		}
	}
	return b.save()
}
