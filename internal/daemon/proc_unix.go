//go:build !windows

package daemon

import (
	"errors"
	"os"
	"syscall"
)

const executableName = "vnhookd"

// detachAttr puts the daemon in its own session so it survives the
// settings process and its terminal.
func detachAttr() *syscall.SysProcAttr {
	return &syscall.SysProcAttr{Setsid: true}
}

func processAlive(pid int) bool {
	if pid <= 0 {
		return false
	}
	p, err := os.FindProcess(pid)
	if err != nil {
		return false
	}
	// Signal 0 checks existence without delivering anything. EPERM means the
	// process exists but belongs to someone else.
	err = p.Signal(syscall.Signal(0))
	return err == nil || errors.Is(err, syscall.EPERM)
}

func terminate(p *os.Process) error {
	return p.Signal(syscall.SIGTERM)
}
