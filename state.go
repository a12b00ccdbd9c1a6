package roomkit

// ConnectionState is the reconnection engine's phase.
type ConnectionState int32

const (
	StateDisconnected ConnectionState = iota
	StateConnecting
	StateConnected
	StateReconnecting
)

func (s ConnectionState) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	case StateReconnecting:
		return "reconnecting"
	default:
		return "unknown"
	}
}

// ReconnectMode selects how a dropped session is recovered: quick
// resumes the existing session via renegotiation, full tears down and
// rejoins from scratch.
type ReconnectMode int32

const (
	ReconnectModeQuick ReconnectMode = iota
	ReconnectModeFull
)

func (m ReconnectMode) String() string {
	if m == ReconnectModeFull {
		return "full"
	}
	return "quick"
}
