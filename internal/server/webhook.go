package server

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/Snogger/ai-hairstyle-plugin/internal/catalog"
)

// handleBooking accepts form-submission payloads from the booking popup.
// A submission is a booking when the configured stylist field is present;
// anything else is logged and ignored.
func (s *Server) handleBooking(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadBytes)
	if err := r.ParseMultipartForm(s.maxUploadBytes); err != nil {
		if err := r.ParseForm(); err != nil {
			writeError(w, http.StatusBadRequest, "invalid form payload")
			return
		}
	}

	stylistName := strings.TrimSpace(r.FormValue(s.stylistField))
	if stylistName == "" {
		s.logger.Info("webhook ignored: no stylist field", "field", s.stylistField)
		writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
		return
	}

	subject := "New Booking Request"
	body := bookingBody(r)

	var to []string
	stylist, err := s.catalog.StylistByName(r.Context(), stylistName)
	switch {
	case err == nil:
		to = []string{stylist.Email}
	case errors.Is(err, catalog.ErrStylistNotFound):
		body += "\nStylist: " + stylistName + " (no email on file)"
	default:
		s.logger.Error("stylist lookup failed", "name", stylistName, "err", err)
		writeError(w, http.StatusInternalServerError, "service unavailable")
		return
	}

	attachments, cleanup := s.stageAttachments(r.Context(), r.FormValue("image_keys"))
	defer cleanup()

	if s.mailer != nil {
		if err := s.mailer.SendBooking(r.Context(), to, subject, body, attachments); err != nil {
			s.logger.Error("booking mail failed", "stylist", stylistName, "err", err)
		}
	} else {
		s.logger.Warn("booking received but no mailer configured", "stylist", stylistName)
	}

	if err := s.ledger.RecordBooking(r.Context()); err != nil {
		s.logger.Error("booking counter failed", "err", err)
	}

	s.logger.Info("booking accepted", "stylist", stylistName, "attachments", len(attachments))
	writeJSON(w, http.StatusAccepted, map[string]any{"success": true})
}

func bookingBody(r *http.Request) string {
	keys := make([]string, 0, len(r.Form))
	for k := range r.Form {
		if k == "image_keys" {
			continue
		}
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	b.WriteString("Booking details:\n")
	for _, k := range keys {
		fmt.Fprintf(&b, "%s: %s\n", k, strings.Join(r.Form[k], ", "))
	}
	return b.String()
}

// stageAttachments copies referenced generated images out of the blob
// store into temp files for mailing. The cleanup func removes the temp
// files and the now-consumed blobs.
func (s *Server) stageAttachments(ctx context.Context, rawKeys string) ([]string, func()) {
	var paths []string
	var keys []string

	for _, key := range strings.Split(rawKeys, ",") {
		key = strings.TrimSpace(key)
		if key == "" {
			continue
		}

		blob, _, err := s.blobs.Open(ctx, key)
		if err != nil {
			s.logger.Warn("attachment unavailable", "key", key, "err", err)
			continue
		}

		tmp, err := os.CreateTemp("", "booking-*"+filepath.Ext(key))
		if err != nil {
			blob.Close()
			s.logger.Error("temp file for attachment failed", "err", err)
			continue
		}
		_, copyErr := io.Copy(tmp, blob)
		blob.Close()
		tmp.Close()
		if copyErr != nil {
			os.Remove(tmp.Name())
			continue
		}

		paths = append(paths, tmp.Name())
		keys = append(keys, key)
	}

	cleanup := func() {
		for _, p := range paths {
			os.Remove(p)
		}
		for _, k := range keys {
			if err := s.blobs.Delete(context.Background(), k); err != nil {
				s.logger.Warn("blob cleanup failed", "key", k, "err", err)
			}
		}
	}
	return paths, cleanup
}
