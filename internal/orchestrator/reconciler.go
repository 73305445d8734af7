package orchestrator

import (
	"context"
	"errors"
	"sync"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/history"
	"genstudio/internal/infra"
)

const defaultSeenCapacity = 512

// Presenter shows generation results. Every call names the generation it
// belongs to; implementations ignore calls for a generation they no longer
// display.
type Presenter interface {
	SetInProgress(generationID string, inProgress bool)
	ShowArtifacts(generationID string, artifacts []domain.Artifact)
	ShowError(generationID string, message string)
}

// HistoryRecorder persists the record of a successful generation.
type HistoryRecorder interface {
	Record(ctx context.Context, entry history.Entry) (*history.Record, error)
}

// Reconciler applies terminal outcomes: it updates the presenter and records
// successes. Each job is reconciled at most once.
type Reconciler struct {
	presenter Presenter
	recorder  HistoryRecorder
	logger    infra.Logger
	metrics   *Metrics

	mu       sync.Mutex
	seen     map[string]struct{}
	order    []string
	capacity int
}

// NewReconciler returns a reconciler. recorder may be nil.
func NewReconciler(presenter Presenter, recorder HistoryRecorder, logger infra.Logger, metrics *Metrics) *Reconciler {
	return &Reconciler{
		presenter: presenter,
		recorder:  recorder,
		logger:    logger,
		metrics:   metrics,
		seen:      make(map[string]struct{}),
		capacity:  defaultSeenCapacity,
	}
}

// Reconcile applies out and reports whether it did anything. A second outcome
// for the same job is ignored.
func (r *Reconciler) Reconcile(ctx context.Context, out Outcome) bool {
	if !r.markSeen(out.key()) {
		r.logger.Debug().
			Str("job_token", out.Token).
			Str("kind", string(out.Kind)).
			Msg("orchestrator: outcome already reconciled")
		return false
	}
	r.metrics.outcome(out)
	r.presenter.SetInProgress(out.GenerationID, false)

	if out.Kind == OutcomeSuccess {
		r.presenter.ShowArtifacts(out.GenerationID, out.Artifacts)
		r.record(ctx, out)
		return true
	}

	if out.Err != nil {
		r.logger.Warn().Err(out.Err).
			Str("job_token", out.Token).
			Str("kind", string(out.Kind)).
			Msg("orchestrator: generation failed")
	}
	r.presenter.ShowError(out.GenerationID, messageFor(out))
	return true
}

func (r *Reconciler) record(ctx context.Context, out Outcome) {
	if r.recorder == nil {
		return
	}
	rec, err := r.recorder.Record(ctx, history.Entry{
		JobToken:   out.Token,
		Request:    out.Request,
		Artifacts:  out.Artifacts,
		Usage:      out.Usage,
		StartedAt:  out.StartedAt,
		FinishedAt: out.FinishedAt,
		Elapsed:    out.Elapsed,
	})
	if errors.Is(err, domain.ErrDuplicateOperation) {
		r.logger.Info().Str("job_token", out.Token).Msg("orchestrator: job already recorded")
		return
	}
	if err != nil {
		r.logger.Error().Err(err).
			Str("job_token", out.Token).
			Msg("orchestrator: history record failed")
		return
	}
	r.logger.Debug().Str("record_id", rec.ID).Str("job_token", out.Token).Msg("orchestrator: history recorded")
}

func (r *Reconciler) markSeen(key string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.seen[key]; ok {
		return false
	}
	r.seen[key] = struct{}{}
	r.order = append(r.order, key)
	if len(r.order) > r.capacity {
		delete(r.seen, r.order[0])
		r.order = r.order[1:]
	}
	return true
}

func messageFor(out Outcome) string {
	label := out.Request.ModelLabel
	if label == "" && out.Request.Model != "" {
		label = generation.ModelLabel(out.Request.Model)
	}
	switch out.Kind {
	case OutcomeTimeout:
		return TimeoutMessage(out.Attempts)
	case OutcomeTransportError:
		return TransportMessage
	case OutcomeSubmitError:
		return SubmissionMessage(out.Err, label)
	default:
		return UserMessage(out.Message, label)
	}
}
