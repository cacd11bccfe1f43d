package session

import (
	"errors"
	"fmt"
	"slices"
)

type State string

const (
	StateIdle       State = "idle"
	StateStarting   State = "starting"
	StateActive     State = "active"
	StateRestarting State = "restarting"
	StateStopping   State = "stopping"
	StateStopped    State = "stopped"
	StateFailed     State = "failed"
)

var ErrInvalidTransition = errors.New("invalid session state transition")

var transitions = map[State][]State{
	StateIdle:       {StateStarting},
	StateStarting:   {StateActive, StateFailed, StateStopping},
	StateActive:     {StateRestarting, StateStopping, StateFailed},
	StateRestarting: {StateActive, StateStopping, StateFailed},
	StateStopping:   {StateStopped},
	StateStopped:    {StateStarting},
	StateFailed:     {StateStarting, StateStopping},
}

func canTransition(from, to State) bool {
	return slices.Contains(transitions[from], to)
}

// live reports whether the session still owns (or is acquiring) a provider stream.
func (s State) live() bool {
	switch s {
	case StateStarting, StateActive, StateRestarting, StateStopping:
		return true
	default:
		return false
	}
}

func transitionError(from, to State) error {
	return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, from, to)
}

type RestartCause string

const (
	CauseSilenceTimeout RestartCause = "silence_timeout"
	CauseStreamLifetime RestartCause = "stream_lifetime"
	CauseTransientError RestartCause = "transient_error"
	CauseStreamEnded    RestartCause = "stream_ended"
	CauseWriteAfterEnd  RestartCause = "write_after_end"
	CauseLanguageChange RestartCause = "language_change"
)

// counted reports whether a restart for this cause is charged against the restart ceiling.
// Planned lifetime rotations and caller reconfiguration are not failures.
func (c RestartCause) counted() bool {
	switch c {
	case CauseStreamLifetime, CauseLanguageChange:
		return false
	default:
		return true
	}
}
