package daemon

import (
	"fmt"
	"os"
	"strings"
)

// processExe returns the executable path of a running process.
func processExe(pid int) (string, error) {
	exe, err := os.Readlink(fmt.Sprintf("/proc/%d/exe", pid))
	if err != nil {
		return "", err
	}
	// The link keeps pointing at a binary replaced on disk, marked as deleted.
	return strings.TrimSuffix(exe, " (deleted)"), nil
}
