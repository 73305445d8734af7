package orchestrator

import (
	"context"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
)

// Status is one answer from the backend about a long-running job.
type Status struct {
	Done      bool
	Artifacts []domain.Artifact
	Error     string
	Usage     *domain.Usage
}

// StatusChecker asks the backend how a job is doing. A returned error means
// the check itself failed, not the job.
type StatusChecker interface {
	CheckStatus(ctx context.Context, token string, req generation.Request) (Status, error)
}

// Submission is the backend's answer to a new request. Synchronous backends
// return Artifacts directly; long-running ones return a JobToken to poll.
type Submission struct {
	JobToken  string
	Artifacts []domain.Artifact
	Usage     *domain.Usage
}

// Submitter sends a request to the backend.
type Submitter interface {
	Submit(ctx context.Context, req generation.Request) (Submission, error)
}
