package server

import (
	"context"
	"errors"
	"io"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/Snogger/ai-hairstyle-plugin/internal/gemini"
	"github.com/Snogger/ai-hairstyle-plugin/internal/tryon"
)

type generateResponse struct {
	Success bool              `json:"success"`
	Data    map[string]string `json:"data"`
	Failed  int               `json:"failed,omitempty"`
}

func (s *Server) handleToken(w http.ResponseWriter, r *http.Request) {
	token, err := s.tokens.Issue()
	if err != nil {
		s.logger.Error("token issue failed", "err", err)
		writeError(w, http.StatusInternalServerError, "service unavailable")
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"token": token})
}

func (s *Server) handleGenerate(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)

	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		writeError(w, http.StatusBadRequest, "invalid multipart form")
		return
	}

	if err := s.tokens.Verify(r.FormValue("token")); err != nil {
		writeError(w, http.StatusForbidden, "invalid or expired token")
		return
	}

	styleID, err := strconv.ParseInt(strings.TrimSpace(r.FormValue("style_id")), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid style_id")
		return
	}

	files := r.MultipartForm.File["images"]
	if len(files) == 0 {
		writeError(w, http.StatusBadRequest, "at least one image is required")
		return
	}
	if len(files) > len(tryon.Angles()) {
		writeError(w, http.StatusBadRequest, "at most four images are allowed")
		return
	}

	uploads, err := readUploads(r.Context(), files)
	if err != nil {
		writeError(w, http.StatusBadRequest, "failed to read uploads")
		return
	}

	req := tryon.Request{
		StyleID:    styleID,
		Color:      strings.TrimSpace(r.FormValue("color")),
		UserImages: uploads,
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.requestTimeout)
	defer cancel()

	result, err := s.pipeline.Run(ctx, req)
	if err != nil {
		s.writeRunError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, generateResponse{
		Success: true,
		Data:    s.outcomeURLs(result),
		Failed:  result.Failed,
	})
}

func (s *Server) writeRunError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, tryon.ErrNoImages),
		errors.Is(err, tryon.ErrTooManyImages),
		errors.Is(err, tryon.ErrInvalidColor):
		writeError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, tryon.ErrStyleNotFound):
		writeError(w, http.StatusNotFound, "hairstyle not found")
	default:
		// Upstream detail stays in the logs; the user gets a generic
		// failure.
		s.logger.Error("generation failed", "err", err)
		writeError(w, http.StatusBadGateway, "service unavailable")
	}
}

func (s *Server) outcomeURLs(result tryon.Result) map[string]string {
	out := make(map[string]string, len(result.Outcomes))
	for angle, outcome := range result.Outcomes {
		if outcome.OK() {
			out[string(angle)] = s.publicURL + "/images/" + outcome.Key
		}
	}
	return out
}

func readUploads(ctx context.Context, files []*multipart.FileHeader) ([]gemini.Blob, error) {
	uploads := make([]gemini.Blob, len(files))

	eg, _ := errgroup.WithContext(ctx)
	for i, header := range files {
		i, header := i, header
		eg.Go(func() error {
			f, err := header.Open()
			if err != nil {
				return err
			}
			defer f.Close()

			data, err := io.ReadAll(f)
			if err != nil {
				return err
			}

			uploads[i] = gemini.Blob{
				Data:     data,
				MimeType: sniffMime(header.Header.Get("Content-Type"), data),
			}
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return uploads, nil
}

func sniffMime(declared string, data []byte) string {
	mimeType := strings.TrimSpace(declared)
	if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
		mimeType = strings.TrimSpace(mimeType[:idx])
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = http.DetectContentType(data)
		if idx := strings.IndexByte(mimeType, ';'); idx >= 0 {
			mimeType = strings.TrimSpace(mimeType[:idx])
		}
	}
	if mimeType == "" || mimeType == "application/octet-stream" {
		mimeType = "image/jpeg"
	}
	return mimeType
}
