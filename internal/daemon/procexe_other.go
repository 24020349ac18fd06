//go:build !linux && !darwin && !windows

package daemon

import "errors"

// processExe is not available here; ownership falls back to the daemon's
// own status report.
func processExe(int) (string, error) {
	return "", errors.ErrUnsupported
}
