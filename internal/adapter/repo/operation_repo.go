package repo

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"genstudio/internal/generation"
	"genstudio/internal/infra"
	"genstudio/internal/orchestrator"
	"genstudio/internal/sqlinline"
)

// ClaimedOperation is a long-running job taken over from another process.
type ClaimedOperation struct {
	JobToken  string
	Request   generation.Request
	StartedAt time.Time
}

// OperationRepositoryPG tracks in-flight jobs in generation_operations. Rows
// are written under owner so a crashed process's jobs can be told apart.
type OperationRepositoryPG struct {
	sql   infra.SQLExecutor
	owner string
}

func NewOperationRepository(sql infra.SQLExecutor, owner string) *OperationRepositoryPG {
	return &OperationRepositoryPG{sql: sql, owner: owner}
}

func (r *OperationRepositoryPG) Track(ctx context.Context, h *orchestrator.Handle) error {
	req := h.Request()
	raw, err := json.Marshal(req)
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}
	_, err = r.sql.Exec(ctx, sqlinline.QTrackOperation,
		h.Token(),
		string(req.Type),
		req.Model,
		raw,
		r.owner,
		h.StartedAt(),
	)
	return err
}

func (r *OperationRepositoryPG) Heartbeat(ctx context.Context, token string, attempts int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QHeartbeatOperation, token, attempts)
	return err
}

func (r *OperationRepositoryPG) Finish(ctx context.Context, token string, state orchestrator.State, message string, attempts int) error {
	_, err := r.sql.Exec(ctx, sqlinline.QFinishOperation, token, string(state), message, attempts)
	return err
}

// ClaimStale takes ownership of the oldest job whose heartbeat is older than
// staleAfter. It returns nil when there is nothing to claim.
func (r *OperationRepositoryPG) ClaimStale(ctx context.Context, staleAfter time.Duration) (*ClaimedOperation, error) {
	var (
		op  ClaimedOperation
		raw []byte
	)
	err := r.sql.QueryRow(ctx, sqlinline.QClaimStaleOperation, int(staleAfter.Seconds()), r.owner).
		Scan(&op.JobToken, &raw, &op.StartedAt)
	if err != nil {
		if infra.IsNoRows(err) {
			return nil, nil
		}
		return nil, err
	}
	if err := json.Unmarshal(raw, &op.Request); err != nil {
		return nil, fmt.Errorf("decode request for %s: %w", op.JobToken, err)
	}
	return &op, nil
}

var _ orchestrator.OperationTracker = (*OperationRepositoryPG)(nil)
