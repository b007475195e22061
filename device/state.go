package device

import "fmt"

// ConnectionState aggregates network join and transport session status.
// SessionEstablished implies NetworkJoined.
type ConnectionState uint8

const (
	Disconnected ConnectionState = iota
	NetworkJoined
	SessionEstablished
)

func (s ConnectionState) String() string {
	switch s {
	case Disconnected:
		return "Disconnected"
	case NetworkJoined:
		return "NetworkJoined"
	case SessionEstablished:
		return "SessionEstablished"
	}
	return fmt.Sprintf("ConnectionState(%d)", uint8(s))
}

// Recompute is the whole state machine: a pure function of two flags.
func Recompute(networkJoined, transportConnected bool) ConnectionState {
	switch {
	case networkJoined && transportConnected:
		return SessionEstablished
	case networkJoined:
		return NetworkJoined
	}
	return Disconnected
}

// message logged once when state changes to s
func (s ConnectionState) transitionMessage() string {
	switch s {
	case Disconnected:
		return "network session is disconnected"
	case NetworkJoined:
		return "network session is joined, no transport session"
	case SessionEstablished:
		return "network session is joined, transport session is established"
	}
	return "unrecognized state " + s.String()
}
