package upload

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
)

// allowedImageTypes are the multipart content types accepted for intake.
var allowedImageTypes = map[string]bool{
	"image/jpeg": true,
	"image/png":  true,
	"image/gif":  true,
	"image/webp": true,
	"image/heic": true,
}

type uploadResponse struct {
	Status   string `json:"status"`
	Analysis string `json:"analysis,omitempty"`
}

type errorResponse struct {
	Error string `json:"error"`
}

// Register adds the public image intake route to mux.
func (s *Service) Register(mux *http.ServeMux) {
	mux.HandleFunc("POST /upload/{token}", s.handleUpload)
}

// handleUpload receives one multipart image for an upload token, stores it
// and responds with the vision analysis when one could be produced.
func (s *Service) handleUpload(w http.ResponseWriter, r *http.Request) {
	token := r.PathValue("token")
	r.Body = http.MaxBytesReader(w, r.Body, s.maxBytes+1<<20)

	file, header, err := r.FormFile("image")
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "image file is required"})
		return
	}
	defer file.Close()

	if !allowedImageTypes[header.Header.Get("Content-Type")] {
		writeJSON(w, http.StatusBadRequest, errorResponse{
			Error: "File type not supported. Please upload a JPG, PNG, or HEIC image.",
		})
		return
	}

	data, err := io.ReadAll(io.LimitReader(file, s.maxBytes+1))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: "could not read image"})
		return
	}

	errText, err := s.SaveImage(r.Context(), token, data, header.Filename)
	if err != nil {
		slog.Error("image upload failed", "token", token, "error", err)
		writeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
		return
	}
	if errText != "" {
		writeJSON(w, http.StatusBadRequest, errorResponse{Error: errText})
		return
	}

	// The upload already succeeded; analysis is best effort.
	analysis, errText, err := s.Analyze(r.Context(), token)
	if err != nil {
		slog.Warn("image analysis failed", "token", token, "error", err)
	} else if errText != "" {
		slog.Warn("image analysis skipped", "token", token, "reason", errText)
	}

	writeJSON(w, http.StatusOK, uploadResponse{Status: "uploaded", Analysis: analysis})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("response encode failed", "error", err)
	}
}
