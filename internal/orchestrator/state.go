package orchestrator

import "fmt"

// State is the lifecycle position of one generation.
type State string

const (
	StatePending     State = "PENDING"
	StatePolling     State = "POLLING"
	StateDoneSuccess State = "DONE_SUCCESS"
	StateDoneError   State = "DONE_ERROR"
	StateDoneTimeout State = "DONE_TIMEOUT"
	StateCancelled   State = "CANCELLED"
)

// Terminal reports whether no further transition is possible.
func (s State) Terminal() bool {
	switch s {
	case StateDoneSuccess, StateDoneError, StateDoneTimeout, StateCancelled:
		return true
	default:
		return false
	}
}

// Event drives a State transition.
type Event string

const (
	EventSubmitImage    Event = "submit_image"
	EventSubmitVideo    Event = "submit_video"
	EventSubmitFailed   Event = "submit_failed"
	EventNotDone        Event = "not_done"
	EventNotDoneCeiling Event = "not_done_ceiling"
	EventSuccess        Event = "success"
	EventFailure        Event = "failure"
	EventCancel         Event = "cancel"
)

type transitionKey struct {
	from  State
	event Event
}

var transitions = map[transitionKey]State{
	{StatePending, EventSubmitImage}:    StateDoneSuccess,
	{StatePending, EventSubmitVideo}:    StatePolling,
	{StatePending, EventSubmitFailed}:   StateDoneError,
	{StatePending, EventCancel}:         StateCancelled,
	{StatePolling, EventNotDone}:        StatePolling,
	{StatePolling, EventNotDoneCeiling}: StateDoneTimeout,
	{StatePolling, EventSuccess}:        StateDoneSuccess,
	{StatePolling, EventFailure}:        StateDoneError,
	{StatePolling, EventCancel}:         StateCancelled,
}

// Transition returns the state reached from s on e, or an error if e is not
// valid in s.
func Transition(s State, e Event) (State, error) {
	next, ok := transitions[transitionKey{s, e}]
	if !ok {
		return s, fmt.Errorf("orchestrator: invalid transition %s --%s-->", s, e)
	}
	return next, nil
}

// Records reports whether entering s must produce a history record.
func (s State) Records() bool {
	return s == StateDoneSuccess
}
