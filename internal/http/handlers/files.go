package handlers

import (
	"errors"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"

	"github.com/go-chi/chi/v5"

	"genstudio/internal/storage"
)

// ServeFile streams an object from the local file store after checking its
// signature. It is only mounted for the filesystem storage driver.
func (a *App) ServeFile(w http.ResponseWriter, r *http.Request) {
	if a.Files == nil {
		a.error(w, http.StatusNotFound, "not_found", "file serving disabled")
		return
	}
	ref, err := url.PathUnescape(chi.URLParam(r, "*"))
	if err != nil || ref == "" {
		a.error(w, http.StatusBadRequest, "bad_request", "invalid path")
		return
	}
	q := r.URL.Query()
	if err := a.Files.Verify(ref, q.Get("expires"), q.Get("sig")); err != nil {
		a.error(w, http.StatusForbidden, "forbidden", "invalid or expired link")
		return
	}
	rc, err := a.Blobs.Open(r.Context(), ref)
	if errors.Is(err, storage.ErrObjectNotFound) {
		a.error(w, http.StatusNotFound, "not_found", "file not found")
		return
	}
	if err != nil {
		a.Logger.Error().Err(err).Str("ref", ref).Msg("http: open file")
		a.error(w, http.StatusInternalServerError, "internal", "failed to open file")
		return
	}
	defer rc.Close()

	if ct := mime.TypeByExtension(path.Ext(ref)); ct != "" {
		w.Header().Set("Content-Type", ct)
	} else {
		w.Header().Set("Content-Type", "application/octet-stream")
	}
	w.Header().Set("Cache-Control", "private, max-age=300")
	w.WriteHeader(http.StatusOK)
	if _, err := io.Copy(w, rc); err != nil {
		a.Logger.Warn().Err(err).Str("ref", ref).Msg("http: stream file")
	}
}
