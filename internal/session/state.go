package session

import "fmt"

// State is the lifecycle position of one connection.
type State int

const (
	StateConnecting State = iota
	StateOnline
	StateClosed
)

func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateOnline:
		return "online"
	case StateClosed:
		return "closed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Signal drives lifecycle transitions.
type Signal int

const (
	SignalRegistered Signal = iota
	SignalDisconnected
)

// Transition returns the state reached from s on sig. Closed is terminal.
func Transition(s State, sig Signal) (State, error) {
	switch {
	case s == StateConnecting && sig == SignalRegistered:
		return StateOnline, nil
	case s == StateConnecting && sig == SignalDisconnected:
		return StateClosed, nil
	case s == StateOnline && sig == SignalDisconnected:
		return StateClosed, nil
	default:
		return s, fmt.Errorf("no transition from %s on signal %d", s, sig)
	}
}
