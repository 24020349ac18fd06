package controller

import (
	"fmt"
	"time"
)

// DaemonState is the controller's view of the hook daemon.
type DaemonState int

const (
	DaemonUnknown DaemonState = iota
	DaemonRunning
	DaemonNotRunning
	DaemonUnsupported
)

func (s DaemonState) String() string {
	switch s {
	case DaemonUnknown:
		return "unknown"
	case DaemonRunning:
		return "running"
	case DaemonNotRunning:
		return "not-running"
	case DaemonUnsupported:
		return "unsupported"
	default:
		return fmt.Sprintf("daemon-state(%d)", int(s))
	}
}

func (s DaemonState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *DaemonState) UnmarshalText(b []byte) error {
	for st := DaemonUnknown; st <= DaemonUnsupported; st++ {
		if st.String() == string(b) {
			*s = st
			return nil
		}
	}
	return fmt.Errorf("unknown daemon state %q", b)
}

// Status is what the UI shows about synchronization and the daemon.
type Status struct {
	Daemon         DaemonState `json:"daemon"`
	Message        string      `json:"message"`
	RestartPending bool        `json:"restart_pending"`
	SavePending    bool        `json:"save_pending"`
	LastSaved      time.Time   `json:"last_saved,omitzero"`
}
