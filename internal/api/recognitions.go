package api

import (
	"errors"
	"net/http"
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/enplayer/sr-engine/internal/media"
	"github.com/enplayer/sr-engine/internal/recognize"
)

type RecognitionsHandler struct {
	svc      Service
	mediaDir string
}

func NewRecognitionsHandler(svc Service, mediaDir string) *RecognitionsHandler {
	return &RecognitionsHandler{svc: svc, mediaDir: mediaDir}
}

func (h *RecognitionsHandler) Routes(r chi.Router) {
	r.Post("/recognitions", h.StartRecognition)
	r.Get("/recognitions/current", h.GetCurrent)
	r.Delete("/recognitions/current", h.StopCurrent)
}

type recognitionRequest struct {
	Path string `json:"path"`
	Type string `json:"type"` // "audio" (default) or "video"
	// AudioOutputPath asks a video job to extract into this file and keep
	// it, instead of a scratch WAV.
	AudioOutputPath string `json:"audio_output_path"`
}

// StartRecognition submits a media file for recognition. The result arrives
// through the event stream; the response only acknowledges the job.
func (h *RecognitionsHandler) StartRecognition(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	var req recognitionRequest
	if err := DecodeJSON(r, &req); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.Path) == "" {
		WriteError(w, http.StatusBadRequest, "path is required")
		return
	}
	kind := req.Type
	if kind == "" {
		kind = "audio"
	}
	if kind != "audio" && kind != "video" {
		WriteError(w, http.StatusBadRequest, "type must be audio or video")
		return
	}

	path := media.ResolveInput(h.mediaDir, req.Path)
	if path == "" {
		WriteError(w, http.StatusNotFound, "media file not found")
		return
	}

	var id string
	var err error
	if kind == "video" {
		id, err = h.svc.RecognizeFromVideo(path, req.AudioOutputPath)
	} else {
		id, err = h.svc.RecognizeFile(path)
	}
	if err != nil {
		writeRecognitionError(w, err)
		return
	}

	log.Info().Str("job_id", id).Str("path", path).Str("type", kind).Msg("recognition accepted")
	WriteJSON(w, http.StatusAccepted, map[string]string{"job_id": id})
}

// GetCurrent returns the in-flight job, or the last finished one.
func (h *RecognitionsHandler) GetCurrent(w http.ResponseWriter, r *http.Request) {
	snap := h.svc.Current()
	if snap == nil {
		WriteError(w, http.StatusNotFound, "no recognition job")
		return
	}
	WriteJSON(w, http.StatusOK, snap)
}

// StopCurrent cancels the in-flight job. Stopping when nothing runs is a
// no-op, so the response is 204 either way.
func (h *RecognitionsHandler) StopCurrent(w http.ResponseWriter, r *http.Request) {
	h.svc.Stop()
	w.WriteHeader(http.StatusNoContent)
}

func writeRecognitionError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, recognize.ErrBusy):
		WriteError(w, http.StatusConflict, "a recognition job is already running")
	case errors.Is(err, recognize.ErrClosed):
		WriteError(w, http.StatusServiceUnavailable, "recognition engine is shutting down")
	default:
		var rerr *recognize.Error
		if errors.As(err, &rerr) {
			status := http.StatusBadRequest
			if rerr.Category == recognize.CategoryBackendUnavailable {
				status = http.StatusServiceUnavailable
			}
			WriteErrorDetail(w, status, rerr.Message, string(rerr.Category))
			return
		}
		WriteError(w, http.StatusInternalServerError, "failed to start recognition")
	}
}
