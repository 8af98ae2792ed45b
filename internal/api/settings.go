package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/hlog"

	"github.com/enplayer/sr-engine/internal/settings"
)

type SettingsHandler struct {
	mgr *settings.Manager
}

func NewSettingsHandler(mgr *settings.Manager) *SettingsHandler {
	return &SettingsHandler{mgr: mgr}
}

func (h *SettingsHandler) Routes(r chi.Router) {
	r.Get("/settings", h.GetSettings)
	r.Put("/settings", h.UpdateSettings)
}

func (h *SettingsHandler) GetSettings(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusOK, h.mgr.Current())
}

// UpdateSettings merges the request body over the current profile, so a
// client may send only the fields it wants to change.
func (h *SettingsHandler) UpdateSettings(w http.ResponseWriter, r *http.Request) {
	log := hlog.FromRequest(r)

	s := h.mgr.Current()
	if err := DecodeJSON(r, &s); err != nil {
		WriteError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if err := s.Validate(); err != nil {
		WriteErrorDetail(w, http.StatusUnprocessableEntity, "invalid settings", err.Error())
		return
	}
	if err := h.mgr.Update(s); err != nil {
		log.Error().Err(err).Msg("failed to persist settings")
		WriteError(w, http.StatusInternalServerError, "failed to persist settings")
		return
	}
	WriteJSON(w, http.StatusOK, s)
}
