package settings

import (
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/tidwall/gjson"
	"github.com/tidwall/sjson"
)

// ErrCorruptBackup is returned when a backup cannot be applied. It is raised
// before any state is touched.
var ErrCorruptBackup = errors.New("corrupt settings backup")

// BackupVersion is the format version written by ExportBackup.
const BackupVersion = 1

// Fields is a validated set of property values read from a backup.
type Fields map[Property]json.RawMessage

// Properties returns the properties in f in declaration order.
func (f Fields) Properties() []Property {
	out := make([]Property, 0, len(f))
	for p := range f {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}

// ParseBackup validates a full-settings backup. Every known key present must
// decode; unknown keys are ignored. The whole backup is rejected on the first
// bad field.
func ParseBackup(data []byte) (Fields, error) {
	if !gjson.ValidBytes(data) {
		return nil, fmt.Errorf("%w: invalid JSON", ErrCorruptBackup)
	}
	root := gjson.ParseBytes(data)
	if !root.IsObject() {
		return nil, fmt.Errorf("%w: top level is not an object", ErrCorruptBackup)
	}
	if v := root.Get("version"); v.Exists() && v.Int() > BackupVersion {
		return nil, fmt.Errorf("%w: version %d is newer than supported version %d", ErrCorruptBackup, v.Int(), BackupVersion)
	}

	fields := make(Fields)
	scratch := Default()
	for _, p := range AllProperties() {
		if p.Transient() {
			continue
		}
		r := root.Get(specs[p].key)
		if !r.Exists() {
			continue
		}
		raw := []byte(r.Raw)
		if err := specs[p].decode(&scratch, raw); err != nil {
			return nil, fmt.Errorf("%w: field %s: %v", ErrCorruptBackup, specs[p].key, err)
		}
		fields[p] = json.RawMessage(raw)
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("%w: no settings found", ErrCorruptBackup)
	}
	return fields, nil
}

// ExportBackup renders s as a backup document.
func ExportBackup(s State, exportedAt time.Time) ([]byte, error) {
	doc, err := sjson.SetBytes([]byte("{}"), "version", BackupVersion)
	if err != nil {
		return nil, err
	}
	doc, err = sjson.SetBytes(doc, "exportedAt", exportedAt.UTC().Format(time.RFC3339))
	if err != nil {
		return nil, err
	}
	return encode(doc, &s)
}
