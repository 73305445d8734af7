package orchestrator

import (
	"time"

	"genstudio/internal/generation"
)

// Clock supplies the current time. time.Now readings carry a monotonic
// component, which is what durations are computed from.
type Clock interface {
	Now() time.Time
}

type systemClock struct{}

func (systemClock) Now() time.Time { return time.Now() }

// SystemClock is the wall clock.
var SystemClock Clock = systemClock{}

// Handle identifies one generation from submission to its terminal state. It
// is immutable; the request it carries is a private copy of what was
// submitted.
type Handle struct {
	id        string
	token     string
	request   generation.Request
	startedAt time.Time
	started   time.Time
}

// NewHandle captures token and a copy of req, started at now. id is the
// local generation id the presenter knows the operation by.
func NewHandle(id, token string, req generation.Request, now time.Time) *Handle {
	return &Handle{
		id:        id,
		token:     token,
		request:   req.Clone(),
		startedAt: now.Round(0),
		started:   now,
	}
}

// ResumeHandle rebuilds a handle for an operation submitted by another
// process. The original monotonic reading is gone, so elapsed time falls back
// to wall clock arithmetic from startedAt.
func ResumeHandle(id, token string, req generation.Request, startedAt time.Time) *Handle {
	startedAt = startedAt.Round(0)
	return &Handle{
		id:        id,
		token:     token,
		request:   req.Clone(),
		startedAt: startedAt,
		started:   startedAt,
	}
}

// ID is the local generation id.
func (h *Handle) ID() string { return h.id }

// Token is the backend job token.
func (h *Handle) Token() string { return h.token }

// Request returns a copy of the submitted request.
func (h *Handle) Request() generation.Request { return h.request.Clone() }

// StartedAt is the wall-clock submission time, for display.
func (h *Handle) StartedAt() time.Time { return h.startedAt }

// Elapsed returns the time since submission as of now.
func (h *Handle) Elapsed(now time.Time) time.Duration {
	d := now.Sub(h.started)
	if d < 0 {
		return 0
	}
	return d
}
