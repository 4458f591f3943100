package launcher

// State is the lifecycle position of a launcher task.
type State int32

const (
	NotStarted State = iota
	Starting
	ReadyRunning
	Stopping
	Stopped
	// StartFailed is terminal and only reachable from Starting.
	StartFailed
)

func (s State) String() string {
	switch s {
	case NotStarted:
		return "NotStarted"
	case Starting:
		return "Starting"
	case ReadyRunning:
		return "ReadyRunning"
	case Stopping:
		return "Stopping"
	case Stopped:
		return "Stopped"
	case StartFailed:
		return "StartFailed"
	default:
		return "Unknown"
	}
}
