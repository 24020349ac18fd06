package daemon

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/kalambet/vnhook/internal/atomicfile"
)

// PIDFile is the name of the pid file kept in the runtime directory.
const PIDFile = "vnhookd.pid"

// pidRecord is the content of the pid file: the daemon's pid and the
// executable it was started from.
type pidRecord struct {
	PID int
	Exe string
}

func writePIDFile(path string, rec pidRecord) error {
	data := strconv.Itoa(rec.PID) + "\n" + rec.Exe + "\n"
	return atomicfile.Write(path, []byte(data), 0o644)
}

// readPIDFile also accepts a bare pid, in which case Exe is empty.
func readPIDFile(path string) (pidRecord, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return pidRecord{}, err
	}
	first, rest, _ := strings.Cut(string(data), "\n")
	pid, err := strconv.Atoi(strings.TrimSpace(first))
	if err != nil {
		return pidRecord{}, fmt.Errorf("parsing pid file: %w", err)
	}
	return pidRecord{PID: pid, Exe: strings.TrimSpace(rest)}, nil
}

func removePIDFile(path string) {
	os.Remove(path)
}

// sameExecutable reports whether a and b name the same file on disk.
func sameExecutable(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	if filepath.Clean(a) == filepath.Clean(b) {
		return true
	}
	if ra, err := filepath.EvalSymlinks(a); err == nil {
		if rb, err := filepath.EvalSymlinks(b); err == nil && ra == rb {
			return true
		}
	}
	ia, err := os.Stat(a)
	if err != nil {
		return false
	}
	ib, err := os.Stat(b)
	if err != nil {
		return false
	}
	return os.SameFile(ia, ib)
}
