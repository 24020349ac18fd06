package settings

import (
	"fmt"
	"strings"
)

// Language is the active typing language of the hook.
type Language int

const (
	English Language = iota
	Vietnamese
)

var languageNames = []string{"english", "vietnamese"}

func (l Language) String() string {
	if l < 0 || int(l) >= len(languageNames) {
		return fmt.Sprintf("language(%d)", int(l))
	}
	return languageNames[l]
}

func (l Language) MarshalText() ([]byte, error) {
	if l < 0 || int(l) >= len(languageNames) {
		return nil, fmt.Errorf("invalid language %d", int(l))
	}
	return []byte(languageNames[l]), nil
}

func (l *Language) UnmarshalText(b []byte) error {
	i, err := parseEnum("language", string(b), languageNames)
	if err != nil {
		return err
	}
	*l = Language(i)
	return nil
}

// InputMethod selects the keystroke-to-diacritic scheme.
type InputMethod int

const (
	Telex InputMethod = iota
	VNI
	SimpleTelex1
	SimpleTelex2
)

var inputMethodNames = []string{"telex", "vni", "simple-telex-1", "simple-telex-2"}

func (m InputMethod) String() string {
	if m < 0 || int(m) >= len(inputMethodNames) {
		return fmt.Sprintf("input-method(%d)", int(m))
	}
	return inputMethodNames[m]
}

func (m InputMethod) MarshalText() ([]byte, error) {
	if m < 0 || int(m) >= len(inputMethodNames) {
		return nil, fmt.Errorf("invalid input method %d", int(m))
	}
	return []byte(inputMethodNames[m]), nil
}

func (m *InputMethod) UnmarshalText(b []byte) error {
	i, err := parseEnum("input method", string(b), inputMethodNames)
	if err != nil {
		return err
	}
	*m = InputMethod(i)
	return nil
}

// CodeTable is the character encoding the hook emits.
type CodeTable int

const (
	Unicode CodeTable = iota
	TCVN3
	VNIWindows
	UnicodeCompound
	CP1258
)

var codeTableNames = []string{"unicode", "tcvn3", "vni-windows", "unicode-compound", "cp1258"}

func (c CodeTable) String() string {
	if c < 0 || int(c) >= len(codeTableNames) {
		return fmt.Sprintf("code-table(%d)", int(c))
	}
	return codeTableNames[c]
}

func (c CodeTable) MarshalText() ([]byte, error) {
	if c < 0 || int(c) >= len(codeTableNames) {
		return nil, fmt.Errorf("invalid code table %d", int(c))
	}
	return []byte(codeTableNames[c]), nil
}

func (c *CodeTable) UnmarshalText(b []byte) error {
	i, err := parseEnum("code table", string(b), codeTableNames)
	if err != nil {
		return err
	}
	*c = CodeTable(i)
	return nil
}

func parseEnum(kind, s string, names []string) (int, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	for i, n := range names {
		if n == s {
			return i, nil
		}
	}
	return 0, fmt.Errorf("unknown %s %q (valid: %s)", kind, s, strings.Join(names, ", "))
}

// Macro expands an abbreviation into text while typing.
type Macro struct {
	Abbrev   string `json:"abbrev"`
	Text     string `json:"text"`
	Category string `json:"category,omitempty"`
}
