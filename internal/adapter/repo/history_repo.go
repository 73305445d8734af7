package repo

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/history"
	"genstudio/internal/infra"
	"genstudio/internal/sqlinline"
)

// HistoryRepositoryPG stores generation records in generation_history.
type HistoryRepositoryPG struct {
	sql infra.SQLExecutor
}

// NewHistoryRepository creates a history repository backed by PostgreSQL.
func NewHistoryRepository(sql infra.SQLExecutor) *HistoryRepositoryPG {
	return &HistoryRepositoryPG{sql: sql}
}

// Persist inserts rec. A record for a job token that is already stored is
// reported as domain.ErrDuplicateOperation.
func (r *HistoryRepositoryPG) Persist(ctx context.Context, rec *history.Record) error {
	raw, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal history record: %w", err)
	}
	var id string
	err = r.sql.QueryRow(ctx, sqlinline.QInsertHistoryRecord,
		rec.ID,
		rec.JobToken,
		string(rec.Type),
		rec.Model,
		rec.Prompt,
		raw,
		rec.CreatedAt,
	).Scan(&id)
	if err != nil {
		if infra.IsNoRows(err) {
			return fmt.Errorf("job %s: %w", rec.JobToken, domain.ErrDuplicateOperation)
		}
		return err
	}
	return nil
}

// List returns up to limit records, newest first.
func (r *HistoryRepositoryPG) List(ctx context.Context, limit int) ([]history.Record, error) {
	rows, err := r.sql.Query(ctx, sqlinline.QListHistoryRecords, history.ClampLimit(limit))
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	records := make([]history.Record, 0)
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var rec history.Record
		if err := json.Unmarshal(raw, &rec); err != nil {
			return nil, fmt.Errorf("decode history record: %w", err)
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

// Get fetches one record by id.
func (r *HistoryRepositoryPG) Get(ctx context.Context, id string) (*history.Record, error) {
	if _, err := uuid.Parse(id); err != nil {
		return nil, domain.ErrNotFound
	}
	var raw []byte
	if err := r.sql.QueryRow(ctx, sqlinline.QSelectHistoryRecord, id).Scan(&raw); err != nil {
		if infra.IsNoRows(err) {
			return nil, domain.ErrNotFound
		}
		return nil, err
	}
	var rec history.Record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return nil, fmt.Errorf("decode history record: %w", err)
	}
	return &rec, nil
}

// Delete removes one record. Stored artifacts are left in place.
func (r *HistoryRepositoryPG) Delete(ctx context.Context, id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return domain.ErrNotFound
	}
	tag, err := r.sql.Exec(ctx, sqlinline.QDeleteHistoryRecord, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

var _ history.Repository = (*HistoryRepositoryPG)(nil)
