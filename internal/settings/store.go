package settings

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"

	"github.com/tidwall/gjson"
	"github.com/tidwall/pretty"
	"github.com/tidwall/sjson"

	"github.com/kalambet/vnhook/internal/atomicfile"
)

// FieldError reports a settings field that could not be decoded and was
// left at its default value.
type FieldError struct {
	Key string
	Err error
}

func (e FieldError) Error() string {
	if e.Key == "" {
		return e.Err.Error()
	}
	return fmt.Sprintf("%s: %v", e.Key, e.Err)
}

// Store persists State as a flat JSON object keyed by Property keys.
//
// Saves are applied onto the last document read, so keys written by a newer
// version of the app survive a round trip through an older one.
type Store struct {
	path   string
	doc    []byte
	logger *slog.Logger
}

// NewStore creates a Store backed by the file at path.
func NewStore(path string) *Store {
	return &Store{path: path, logger: slog.Default()}
}

// Path returns the settings file location.
func (st *Store) Path() string {
	return st.path
}

// Load reads the settings file. A missing file yields Default(). An
// unparseable file, or individual fields that fail to decode, fall back to
// defaults and are reported as FieldErrors. The error return is reserved for
// files that exist but cannot be read.
func (st *Store) Load() (State, []FieldError, error) {
	state := Default()

	data, err := os.ReadFile(st.path)
	if errors.Is(err, fs.ErrNotExist) {
		st.doc = nil
		return state, nil, nil
	}
	if err != nil {
		return state, nil, fmt.Errorf("reading settings %s: %w", st.path, err)
	}

	if !gjson.ValidBytes(data) || !gjson.ParseBytes(data).IsObject() {
		st.logger.Warn("settings file is not a JSON object, using defaults", "path", st.path)
		st.doc = nil
		return state, []FieldError{{Err: errors.New("settings file is not a JSON object")}}, nil
	}
	st.doc = data

	var warnings []FieldError
	for _, p := range AllProperties() {
		if p.Transient() {
			continue
		}
		r := gjson.GetBytes(data, specs[p].key)
		if !r.Exists() {
			continue
		}
		if err := specs[p].decode(&state, []byte(r.Raw)); err != nil {
			st.logger.Warn("could not decode settings field, using default", "key", specs[p].key, "error", err)
			warnings = append(warnings, FieldError{Key: specs[p].key, Err: err})
		}
	}
	state.Normalize()
	return state, warnings, nil
}

// Save writes every non-transient field of s and atomically replaces the file.
func (st *Store) Save(s State) error {
	doc, err := encode(st.doc, &s)
	if err != nil {
		return err
	}
	if err := atomicfile.Write(st.path, doc, 0o600); err != nil {
		return fmt.Errorf("saving settings: %w", err)
	}
	st.doc = doc
	return nil
}

func encode(base []byte, s *State) ([]byte, error) {
	doc := []byte("{}")
	if len(base) > 0 {
		doc = append([]byte(nil), base...)
	}
	for _, p := range AllProperties() {
		if p.Transient() {
			continue
		}
		var err error
		doc, err = sjson.SetBytes(doc, specs[p].key, specs[p].value(s))
		if err != nil {
			return nil, fmt.Errorf("encoding %s: %w", specs[p].key, err)
		}
	}
	return pretty.Pretty(doc), nil
}
