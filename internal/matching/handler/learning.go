package handler

import (
	"net/http"

	"partidas-service/internal/matching/model"
	"partidas-service/internal/utils"
)

type confirmationRequest struct {
	ClientDescription  string `json:"clientDescription" validate:"required"`
	CatalogDescription string `json:"catalogDescription" validate:"required"`
	CatalogID          string `json:"catalogId"`
}

// Confirm records a user confirmation. 202 once every effect landed in some
// store, 503 when one was lost.
func (h *Handler) Confirm(w http.ResponseWriter, r *http.Request) {
	var req confirmationRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if err := model.Validate(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	out, err := h.learner.RecordConfirmation(r.Context(), req.ClientDescription, req.CatalogDescription, req.CatalogID)
	switch {
	case err == nil:
		utils.WriteJSON(w, http.StatusAccepted, out)
	case isClientError(err):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	default:
		log := h.logger(r)
		log.Error().Err(err).Msg("record confirmation")
		utils.WriteError(w, http.StatusServiceUnavailable, "learning store unavailable")
	}
}

func (h *Handler) Stats(w http.ResponseWriter, r *http.Request) {
	st, err := h.learner.Stats(r.Context())
	if err != nil {
		log := h.logger(r)
		log.Error().Err(err).Msg("learning stats")
		utils.WriteError(w, http.StatusServiceUnavailable, "learning store unavailable")
		return
	}
	utils.WriteJSON(w, http.StatusOK, st)
}
