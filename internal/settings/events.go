package settings

// Origin tells the change pipeline who produced a mutation.
type Origin int

const (
	// OriginUser is an edit made in the settings UI or control API.
	OriginUser Origin = iota
	// OriginSnapshot is a field applied during a bulk import or initial load.
	OriginSnapshot
	// OriginDaemon is a value reconciled from daemon-reported state.
	OriginDaemon
)

func (o Origin) String() string {
	switch o {
	case OriginUser:
		return "user"
	case OriginSnapshot:
		return "snapshot"
	case OriginDaemon:
		return "daemon"
	default:
		return "unknown"
	}
}

// ChangeEvent is emitted once per effective mutation of State.
type ChangeEvent struct {
	Property Property
	Value    any
	Origin   Origin
}
