package history

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/infra"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 200

	sidecarTimeout = 30 * time.Second
)

// Store persists records. Persist must be idempotent per JobToken: a second
// record for the same token is not stored and domain.ErrDuplicateOperation
// is returned.
type Store interface {
	Persist(ctx context.Context, rec *Record) error
}

// Repository is the read side used by the HTTP layer.
type Repository interface {
	Store
	List(ctx context.Context, limit int) ([]Record, error)
	Get(ctx context.Context, id string) (*Record, error)
	Delete(ctx context.Context, id string) error
}

// SidecarUploader stores the JSON mirror of a record next to its artifacts.
type SidecarUploader interface {
	UploadSidecar(ctx context.Context, bucket, path string, data []byte) error
}

// Recorder writes the metadata record for every successful generation.
type Recorder struct {
	store   Store
	sidecar SidecarUploader
	bucket  string
	logger  infra.Logger
	newID   func() string
	wg      sync.WaitGroup
}

// NewRecorder returns a recorder. sidecar may be nil, in which case no mirror
// is written.
func NewRecorder(store Store, sidecar SidecarUploader, bucket string, logger infra.Logger) *Recorder {
	return &Recorder{
		store:   store,
		sidecar: sidecar,
		bucket:  bucket,
		logger:  logger,
		newID:   uuid.NewString,
	}
}

// Record builds and persists the record for entry, then mirrors it as a JSON
// sidecar in the background. Only the primary write is reported to the
// caller; a job that was already recorded yields an error wrapping
// domain.ErrDuplicateOperation and no mirror.
func (r *Recorder) Record(ctx context.Context, entry Entry) (*Record, error) {
	rec := BuildRecord(entry, r.newID())
	if err := r.store.Persist(ctx, rec); err != nil {
		return nil, fmt.Errorf("history: persist record: %w", err)
	}
	r.logger.Info().
		Str("record_id", rec.ID).
		Str("job_token", rec.JobToken).
		Int("outputs", len(rec.Outputs)).
		Msg("history: record persisted")
	r.mirror(ctx, rec)
	return rec, nil
}

func (r *Recorder) mirror(ctx context.Context, rec *Record) {
	if r.sidecar == nil {
		return
	}
	data, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		r.logger.Warn().Err(err).Str("record_id", rec.ID).Msg("history: encode sidecar")
		return
	}
	path := SidecarPath(rec)
	r.wg.Add(1)
	go func() {
		defer r.wg.Done()
		mctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sidecarTimeout)
		defer cancel()
		if err := r.sidecar.UploadSidecar(mctx, r.bucket, path, data); err != nil {
			r.logger.Warn().Err(err).
				Str("record_id", rec.ID).
				Str("path", path).
				Msg("history: sidecar mirror failed")
		}
	}()
}

// Wait blocks until pending sidecar uploads have finished.
func (r *Recorder) Wait() {
	r.wg.Wait()
}

// SidecarPath is the object path of rec's JSON mirror.
func SidecarPath(rec *Record) string {
	return fmt.Sprintf("%s/%s/%s.json", rec.Type, rec.CreatedAt.Format("2006/01/02"), rec.ID)
}

// ClampLimit normalizes a list limit from user input.
func ClampLimit(limit int) int {
	switch {
	case limit <= 0:
		return DefaultListLimit
	case limit > MaxListLimit:
		return MaxListLimit
	default:
		return limit
	}
}
