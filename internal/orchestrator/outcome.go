package orchestrator

import (
	"time"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
)

// OutcomeKind classifies how a generation ended.
type OutcomeKind string

const (
	OutcomeSuccess        OutcomeKind = "success"
	OutcomeBackendError   OutcomeKind = "backend_error"
	OutcomeTimeout        OutcomeKind = "timeout"
	OutcomeTransportError OutcomeKind = "transport_error"
	OutcomeSubmitError    OutcomeKind = "submit_error"
)

// Event is the state machine event that corresponds to k.
func (k OutcomeKind) Event() Event {
	switch k {
	case OutcomeSuccess:
		return EventSuccess
	case OutcomeTimeout:
		return EventNotDoneCeiling
	case OutcomeSubmitError:
		return EventSubmitFailed
	default:
		return EventFailure
	}
}

// Outcome is the terminal result of one generation, handed to the
// reconciler exactly once per job.
type Outcome struct {
	Kind         OutcomeKind
	GenerationID string
	// Token is empty when the submission itself failed.
	Token     string
	Request   generation.Request
	Artifacts []domain.Artifact
	Usage     *domain.Usage
	// Message is the raw backend error text for BackendError.
	Message string
	// Err is the underlying error for TransportError and SubmitError.
	Err        error
	Attempts   int
	StartedAt  time.Time
	FinishedAt time.Time
	Elapsed    time.Duration
}

func (o Outcome) key() string {
	if o.Token != "" {
		return o.Token
	}
	return o.GenerationID
}

func outcomeFor(h *Handle, kind OutcomeKind, now time.Time) Outcome {
	return Outcome{
		Kind:         kind,
		GenerationID: h.ID(),
		Token:        h.Token(),
		Request:      h.Request(),
		StartedAt:    h.StartedAt(),
		FinishedAt:   now.Round(0),
		Elapsed:      h.Elapsed(now),
	}
}
