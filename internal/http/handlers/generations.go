package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"genstudio/internal/domain"
	"genstudio/internal/generation"
	"genstudio/internal/middleware"
	"genstudio/internal/orchestrator"
)

type progressResponse struct {
	Active     bool   `json:"active"`
	Attempts   int    `json:"attempts"`
	IntervalMs int64  `json:"intervalMs"`
	JobToken   string `json:"jobToken,omitempty"`
}

type generationResponse struct {
	orchestrator.ViewState
	Poll progressResponse `json:"poll"`
}

func (a *App) generationBody() generationResponse {
	p := a.Generations.Progress()
	return generationResponse{
		ViewState: a.Generations.View(),
		Poll: progressResponse{
			Active:     p.Active,
			Attempts:   p.Attempts,
			IntervalMs: p.Interval.Milliseconds(),
			JobToken:   p.Token,
		},
	}
}

// CreateGeneration starts a generation from the posted form, replacing the
// one in flight. Image results are included in the response; videos are
// followed through CurrentGeneration.
func (a *App) CreateGeneration(w http.ResponseWriter, r *http.Request) {
	var form generation.FormState
	if err := json.NewDecoder(r.Body).Decode(&form); err != nil {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid payload")
		return
	}
	if form.Locale == "" {
		form.Locale = middleware.LocaleFromContext(r.Context())
	}

	// The generation outlives the request that started it.
	_, err := a.Generations.Generate(context.WithoutCancel(r.Context()), form)
	switch {
	case err == nil:
	case errors.Is(err, domain.ErrInvalidRequest), errors.Is(err, domain.ErrUnknownModel):
		a.error(w, http.StatusBadRequest, "invalid_request", err.Error())
		return
	case errors.Is(err, orchestrator.ErrSuperseded):
		a.error(w, http.StatusConflict, "superseded", "the generation was replaced before it was submitted")
		return
	default:
		a.Logger.Error().Err(err).Msg("http: generate")
		a.error(w, http.StatusInternalServerError, "internal", "failed to start generation")
		return
	}
	a.json(w, http.StatusAccepted, a.generationBody())
}

func (a *App) CurrentGeneration(w http.ResponseWriter, r *http.Request) {
	a.json(w, http.StatusOK, a.generationBody())
}

func (a *App) CancelGeneration(w http.ResponseWriter, r *http.Request) {
	if !a.Generations.Cancel(r.Context()) {
		a.error(w, http.StatusNotFound, "not_found", "no generation in flight")
		return
	}
	a.json(w, http.StatusOK, a.generationBody())
}
