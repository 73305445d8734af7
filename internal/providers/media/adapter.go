package media

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/infra"
	"genstudio/internal/orchestrator"
	"genstudio/internal/providers/genai"
	"genstudio/internal/storage"
)

// persistFailedMessage is what users see when generated bytes could not be
// stored.
const persistFailedMessage = "The generated output could not be saved. Please try again."

var errPersist = errors.New("media: persist artifact")

// persistError reads as persistFailedMessage so the orchestrator can show it
// as is, while errors.Is still matches errPersist.
type persistError struct{}

func (persistError) Error() string { return persistFailedMessage }

func (persistError) Unwrap() error { return errPersist }

// Backend is the subset of the genai client the adapter drives.
type Backend interface {
	GenerateImages(ctx context.Context, req genai.ImageRequest) (*genai.ImageResult, error)
	StartVideo(ctx context.Context, req genai.VideoRequest) (string, error)
	VideoStatus(ctx context.Context, model, name string) (*genai.VideoOperation, error)
}

// Adapter submits requests to the backend and stores inline outputs in blob
// storage, so that artifacts always reach the orchestrator as storage refs.
type Adapter struct {
	backend Backend
	store   storage.BlobStore
	bucket  string
	logger  infra.Logger
	now     func() time.Time
	newID   func() string
}

func NewAdapter(backend Backend, store storage.BlobStore, bucket string, logger infra.Logger) *Adapter {
	return &Adapter{
		backend: backend,
		store:   store,
		bucket:  bucket,
		logger:  logger,
		now:     time.Now,
		newID:   uuid.NewString,
	}
}

// Submit sends req. Images come back synchronously; videos return the
// operation name to poll.
func (a *Adapter) Submit(ctx context.Context, req generation.Request) (orchestrator.Submission, error) {
	switch req.Type {
	case domain.MediaTypeImage:
		id := a.newID()
		res, err := a.backend.GenerateImages(ctx, imageRequest(req, id))
		if err != nil {
			return orchestrator.Submission{}, err
		}
		artifacts, err := a.persistAll(ctx, req, id, res.Assets)
		if err != nil {
			return orchestrator.Submission{}, err
		}
		return orchestrator.Submission{Artifacts: artifacts, Usage: res.Usage}, nil
	case domain.MediaTypeVideo:
		name, err := a.backend.StartVideo(ctx, videoRequest(req, a.newID()))
		if err != nil {
			return orchestrator.Submission{}, err
		}
		return orchestrator.Submission{JobToken: name}, nil
	default:
		return orchestrator.Submission{}, fmt.Errorf("%w: unsupported media type %q", domain.ErrInvalidRequest, req.Type)
	}
}

// CheckStatus asks the backend about the video operation token.
func (a *Adapter) CheckStatus(ctx context.Context, token string, req generation.Request) (orchestrator.Status, error) {
	op, err := a.backend.VideoStatus(ctx, req.Model, token)
	if err != nil {
		return orchestrator.Status{}, err
	}
	if !op.Done {
		return orchestrator.Status{}, nil
	}
	if op.Error != "" {
		return orchestrator.Status{Done: true, Error: op.Error, Usage: op.Usage}, nil
	}
	artifacts, err := a.persistAll(ctx, req, tokenKey(token), op.Assets)
	if err != nil {
		return orchestrator.Status{Done: true, Error: persistFailedMessage}, nil
	}
	return orchestrator.Status{Done: true, Artifacts: artifacts, Usage: op.Usage}, nil
}

func (a *Adapter) persistAll(ctx context.Context, req generation.Request, id string, assets []genai.Asset) ([]domain.Artifact, error) {
	artifacts := make([]domain.Artifact, 0, len(assets))
	for i, asset := range assets {
		art := domain.Artifact{
			Format:   formatForMIME(asset.MimeType),
			Width:    asset.Width,
			Height:   asset.Height,
			Duration: asset.Duration,
			URL:      asset.URI,
		}
		if req.Type == domain.MediaTypeVideo && art.Duration == 0 {
			art.Duration = float64(req.DurationSeconds)
		}
		if len(asset.Data) == 0 {
			if asset.URI == "" {
				continue
			}
			art.StorageRef = asset.URI
			artifacts = append(artifacts, art)
			continue
		}
		key := a.storageKey(req.Type, id, asset.MimeType, i)
		ref, err := a.store.Put(ctx, a.bucket, key, asset.Data, asset.MimeType)
		if err != nil {
			a.logger.Error().Err(err).
				Str("key", key).
				Str("model", req.Model).
				Msg("media: persist artifact failed")
			return nil, persistError{}
		}
		art.StorageRef = ref
		artifacts = append(artifacts, art)
	}
	return artifacts, nil
}

func (a *Adapter) storageKey(mediaType domain.MediaType, id, mime string, index int) string {
	key := fmt.Sprintf("%s/%s/%s-%02d", mediaType, a.now().UTC().Format("2006/01/02"), id, index+1)
	if extensionForMIME(mime) == "" {
		return key + ".bin"
	}
	return ensureExtension(key, mime)
}

func imageRequest(req generation.Request, requestID string) genai.ImageRequest {
	return genai.ImageRequest{
		Model:            req.Model,
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		AspectRatio:      req.AspectRatio,
		SampleCount:      req.SampleCount,
		Seed:             req.Seed,
		EnhancePrompt:    req.EnhancePrompt,
		PersonGeneration: req.PersonGeneration,
		RequestID:        requestID,
	}
}

func videoRequest(req generation.Request, requestID string) genai.VideoRequest {
	return genai.VideoRequest{
		Model:            req.Model,
		Prompt:           req.Prompt,
		NegativePrompt:   req.NegativePrompt,
		AspectRatio:      req.AspectRatio,
		Resolution:       req.Resolution,
		PersonGeneration: req.PersonGeneration,
		DurationSeconds:  req.DurationSeconds,
		SampleCount:      req.SampleCount,
		Seed:             req.Seed,
		GenerateAudio:    req.GenerateAudio,
		EnhancePrompt:    req.EnhancePrompt,
		RequestID:        requestID,
	}
}

// tokenKey derives a stable, path-safe name from an operation token.
func tokenKey(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])[:24]
}

func formatForMIME(mime string) string {
	return strings.TrimPrefix(extensionForMIME(mime), ".")
}

func ensureExtension(key, mime string) string {
	if key == "" {
		return key
	}
	expected := extensionForMIME(mime)
	if expected == "" {
		return key
	}
	if filepath.Ext(key) != "" {
		return key
	}
	return key + expected
}

func extensionForMIME(mime string) string {
	switch strings.ToLower(strings.TrimSpace(mime)) {
	case "image/png":
		return ".png"
	case "image/jpeg", "image/jpg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	case "video/mp4":
		return ".mp4"
	case "video/webm":
		return ".webm"
	default:
		return ""
	}
}

var (
	_ orchestrator.Submitter     = (*Adapter)(nil)
	_ orchestrator.StatusChecker = (*Adapter)(nil)
)
