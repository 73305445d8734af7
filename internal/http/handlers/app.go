package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"genstudio/internal/generation"
	"genstudio/internal/history"
	"genstudio/internal/infra"
	"genstudio/internal/orchestrator"
	"genstudio/internal/storage"
)

const defaultSignedURLTTL = time.Hour

// Generations is the orchestrator surface the API drives.
type Generations interface {
	Generate(ctx context.Context, form generation.FormState) (orchestrator.ViewState, error)
	View() orchestrator.ViewState
	Cancel(ctx context.Context) bool
	Progress() orchestrator.Progress
}

// FileVerifier checks signed local file URLs.
type FileVerifier interface {
	Verify(ref, expires, sig string) error
}

// Pinger reports database reachability.
type Pinger interface {
	Ping(ctx context.Context) error
}

type App struct {
	Generations  Generations
	History      history.Repository
	Blobs        storage.BlobStore
	Files        FileVerifier
	DB           Pinger
	SignedURLTTL time.Duration
	Logger       infra.Logger
}

type errorBody struct {
	Error errorDetail `json:"error"`
}

type errorDetail struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (a *App) json(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func (a *App) error(w http.ResponseWriter, status int, code, message string) {
	a.json(w, status, errorBody{Error: errorDetail{Code: code, Message: message}})
}

func (a *App) signedURLTTL() time.Duration {
	if a.SignedURLTTL <= 0 {
		return defaultSignedURLTTL
	}
	return a.SignedURLTTL
}
