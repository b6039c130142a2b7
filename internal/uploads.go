package internal

import (
	"errors"
	"net/http"

	"github.com/rs/zerolog/hlog"

	"inshokuten-api/internal/events"
	"inshokuten-api/internal/images"
	"inshokuten-api/internal/models"
)

// uploadImage stores the multipart "image" part as "{id}.jpg", replacing any
// earlier image for that id. The item row is not consulted.
func (s *Server) uploadImage(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.UploadMaxBytes)

	file, header, err := r.FormFile("image")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(w, http.StatusRequestEntityTooLarge, "file too large")
			return
		}
		writeError(w, http.StatusBadRequest, "no file uploaded")
		return
	}
	defer file.Close()

	id := r.FormValue("id")
	name := images.FileName(id)
	if id == "" || !images.ValidName(name) {
		writeError(w, http.StatusBadRequest, "invalid id")
		return
	}

	if err := s.Images.Save(r.Context(), name, file); err != nil {
		if errors.Is(err, images.ErrEmpty) {
			writeError(w, http.StatusBadRequest, "empty file")
			return
		}
		hlog.FromRequest(r).Error().Err(err).Str("image", name).Msg("storing image")
		writeError(w, http.StatusInternalServerError, "file processing failed")
		return
	}

	s.Metrics.ObserveUpload(header.Size)
	s.publish(r.Context(), events.New(events.ItemImageUploaded, id, map[string]string{"filename": name}))
	writeJSON(w, http.StatusOK, models.UploadImageResponse{
		Message:  "image uploaded",
		Filename: name,
	})
}
