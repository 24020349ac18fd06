package daemon

import (
	"bytes"
	"errors"

	"golang.org/x/sys/unix"
)

// processExe returns the executable path of a running process.
// kern.procargs2 starts with argc followed by the NUL-terminated exec path.
func processExe(pid int) (string, error) {
	buf, err := unix.SysctlRaw("kern.procargs2", pid)
	if err != nil {
		return "", err
	}
	if len(buf) < 4 {
		return "", errors.New("short kern.procargs2 reply")
	}
	path := buf[4:]
	if i := bytes.IndexByte(path, 0); i >= 0 {
		path = path[:i]
	}
	if len(path) == 0 {
		return "", errors.New("empty exec path")
	}
	return string(path), nil
}
