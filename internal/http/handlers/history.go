package handlers

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/domain"
	"genstudio/internal/history"
	"genstudio/pkg/zip"
)

func (a *App) ListHistory(w http.ResponseWriter, r *http.Request) {
	limit := history.DefaultListLimit
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			a.error(w, http.StatusBadRequest, "bad_request", "limit must be a number")
			return
		}
		limit = n
	}
	records, err := a.History.List(r.Context(), history.ClampLimit(limit))
	if err != nil {
		a.Logger.Error().Err(err).Msg("http: list history")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load history")
		return
	}
	if records == nil {
		records = []history.Record{}
	}
	a.json(w, http.StatusOK, map[string]any{"items": records})
}

func (a *App) GetHistory(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRecord(w, r)
	if !ok {
		return
	}
	a.json(w, http.StatusOK, rec)
}

func (a *App) DeleteHistory(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	err := a.History.Delete(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("record_id", id).Msg("http: delete history")
		a.error(w, http.StatusInternalServerError, "internal", "failed to delete record")
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// OutputURL signs the stored artifact of one output on demand.
func (a *App) OutputURL(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRecord(w, r)
	if !ok {
		return
	}
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil || index < 0 || index >= len(rec.Outputs) {
		a.error(w, http.StatusNotFound, "not_found", "output not found")
		return
	}
	ref := rec.Outputs[index].ArtifactRef
	if isRemoteRef(ref) {
		a.json(w, http.StatusOK, map[string]any{"url": ref})
		return
	}
	ttl := a.signedURLTTL()
	url, err := a.Blobs.SignedURL(r.Context(), ref, ttl)
	if err != nil {
		a.Logger.Error().Err(err).Str("ref", ref).Msg("http: sign output url")
		a.error(w, http.StatusInternalServerError, "internal", "failed to sign url")
		return
	}
	a.json(w, http.StatusOK, map[string]any{
		"url":       url,
		"expiresAt": time.Now().Add(ttl).UTC(),
	})
}

// ExportHistory streams a zip of the record's stored outputs and its
// metadata.
func (a *App) ExportHistory(w http.ResponseWriter, r *http.Request) {
	rec, ok := a.loadRecord(w, r)
	if !ok {
		return
	}
	meta, err := json.MarshalIndent(rec, "", "  ")
	if err != nil {
		a.error(w, http.StatusInternalServerError, "internal", "failed to encode record")
		return
	}
	assets := []zip.Asset{{Filename: "metadata.json", MIME: "application/json", Data: meta, Modified: rec.CreatedAt}}
	for i, out := range rec.Outputs {
		if isRemoteRef(out.ArtifactRef) {
			continue
		}
		data, err := a.readBlob(r, out.ArtifactRef)
		if err != nil {
			a.Logger.Warn().Err(err).Str("ref", out.ArtifactRef).Msg("http: export skipped output")
			continue
		}
		assets = append(assets, zip.Asset{
			Filename: fmt.Sprintf("output-%02d.%s", i+1, outputExtension(out.Format)),
			MIME:     mimeForFormat(out.Format),
			Data:     data,
			Modified: rec.CreatedAt,
		})
	}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=generation-%s.zip", rec.ID))
	w.WriteHeader(http.StatusOK)
	if err := zip.Write(w, assets); err != nil {
		a.Logger.Error().Err(err).Str("record_id", rec.ID).Msg("http: write export")
	}
}

func (a *App) loadRecord(w http.ResponseWriter, r *http.Request) (*history.Record, bool) {
	id := chi.URLParam(r, "id")
	rec, err := a.History.Get(r.Context(), id)
	if errors.Is(err, domain.ErrNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "record not found")
		return nil, false
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("record_id", id).Msg("http: get history")
		a.error(w, http.StatusInternalServerError, "internal", "failed to load record")
		return nil, false
	}
	return rec, true
}

func (a *App) readBlob(r *http.Request, ref string) ([]byte, error) {
	rc, err := a.Blobs.Open(r.Context(), ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	return io.ReadAll(rc)
}

func isRemoteRef(ref string) bool {
	return strings.Contains(ref, "://")
}

func outputExtension(format string) string {
	if format == "" {
		return "bin"
	}
	return format
}

func mimeForFormat(format string) string {
	switch format {
	case "png":
		return "image/png"
	case "jpg":
		return "image/jpeg"
	case "webp":
		return "image/webp"
	case "mp4":
		return "video/mp4"
	case "webm":
		return "video/webm"
	default:
		return "application/octet-stream"
	}
}
