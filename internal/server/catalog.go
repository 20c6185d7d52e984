package server

import (
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/Snogger/ai-hairstyle-plugin/internal/blobstore"
)

func (s *Server) handleStyles(w http.ResponseWriter, r *http.Request) {
	gender := strings.ToLower(strings.TrimSpace(r.URL.Query().Get("gender")))
	styles, err := s.catalog.List(r.Context(), gender)
	if err != nil {
		s.logger.Error("style listing failed", "err", err)
		writeError(w, http.StatusInternalServerError, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "data": styles})
}

func (s *Server) handleImage(w http.ResponseWriter, r *http.Request) {
	key := r.PathValue("key")

	blob, mimeType, err := s.blobs.Open(r.Context(), key)
	if errors.Is(err, blobstore.ErrNotFound) || errors.Is(err, blobstore.ErrInvalidKey) {
		http.NotFound(w, r)
		return
	}
	if err != nil {
		s.logger.Error("blob open failed", "key", key, "err", err)
		writeError(w, http.StatusInternalServerError, "service unavailable")
		return
	}
	defer blob.Close()

	w.Header().Set("content-type", mimeType)
	w.Header().Set("cache-control", "private, max-age=3600")
	_, _ = io.Copy(w, blob)
}
