package main

import (
	"context"
	"time"

	"genstudio/internal/adapter/repo"
	"genstudio/internal/generation"
	"genstudio/internal/infra"
	"genstudio/internal/orchestrator"
)

type claimer interface {
	ClaimStale(ctx context.Context, staleAfter time.Duration) (*repo.ClaimedOperation, error)
}

type resumer interface {
	Resume(ctx context.Context, token string, req generation.Request, startedAt time.Time) (orchestrator.ViewState, error)
	Wait(ctx context.Context) (orchestrator.ViewState, error)
	Halt()
}

// resumeWorker adopts operations whose owner stopped heartbeating and polls
// them to a terminal state, one at a time.
type resumeWorker struct {
	claimer      claimer
	orchestrator resumer
	staleAfter   time.Duration
	scanInterval time.Duration
	logger       infra.Logger
}

func (w *resumeWorker) Run(ctx context.Context) error {
	w.logger.Info().Dur("stale_after", w.staleAfter).Msg("worker: started")
	for {
		if err := ctx.Err(); err != nil {
			return err
		}
		op, err := w.claimer.ClaimStale(ctx, w.staleAfter)
		if err != nil {
			w.logger.Error().Err(err).Msg("worker: failed to claim operation")
		}
		if err != nil || op == nil {
			if err := sleep(ctx, w.scanInterval); err != nil {
				return err
			}
			continue
		}
		if err := w.drive(ctx, op); err != nil {
			return err
		}
	}
}

func (w *resumeWorker) drive(ctx context.Context, op *repo.ClaimedOperation) error {
	log := w.logger.With().Str("job_token", op.JobToken).Logger()
	log.Info().Time("started_at", op.StartedAt).Msg("worker: resuming operation")
	if _, err := w.orchestrator.Resume(ctx, op.JobToken, op.Request, op.StartedAt); err != nil {
		log.Error().Err(err).Msg("worker: resume failed")
		return nil
	}
	view, err := w.orchestrator.Wait(ctx)
	if err != nil {
		w.orchestrator.Halt()
		return err
	}
	log.Info().
		Str("state", string(view.State)).
		Int("attempts", view.Attempts).
		Str("error", view.Error).
		Msg("worker: operation settled")
	return nil
}

func sleep(ctx context.Context, d time.Duration) error {
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
