package handler

import (
	"bytes"
	"fmt"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"partidas-service/internal/export"
	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/utils"
)

type resultsRequest struct {
	Items            []model.MatchResult `json:"items"`
	GlobalPercentage decimal.Decimal     `json:"globalPercentage"`
	Name             string              `json:"name,omitempty"`
}

// Summary totals a reviewed result list.
func (h *Handler) Summary(w http.ResponseWriter, r *http.Request) {
	var req resultsRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	utils.WriteJSON(w, http.StatusOK, service.Summarize(req.Items, req.GlobalPercentage))
}

// Export renders the results as ?format=xlsx (default) or ?format=bc3.
func (h *Handler) Export(w http.ResponseWriter, r *http.Request) {
	var req resultsRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if len(req.Items) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "the budget is empty")
		return
	}
	name := strings.TrimSpace(req.Name)
	if name == "" {
		name = "Presupuesto"
	}
	name = strings.TrimSuffix(name, filepath.Ext(name))

	var (
		buf         bytes.Buffer
		err         error
		contentType string
		ext         string
	)
	switch format := strings.ToLower(r.URL.Query().Get("format")); format {
	case "", "xlsx":
		err = export.XLSX(&buf, req.Items, req.GlobalPercentage)
		contentType, ext = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"
	case "bc3":
		err = export.BC3(&buf, req.Items, name, req.GlobalPercentage, time.Now())
		contentType, ext = "application/octet-stream", ".bc3"
	default:
		utils.WriteError(w, http.StatusBadRequest, "unsupported format: "+format)
		return
	}
	if err != nil {
		log := h.logger(r)
		log.Error().Err(err).Msg("export")
		utils.WriteError(w, http.StatusInternalServerError, "export failed")
		return
	}

	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", name+ext))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}

type autoValidateRequest struct {
	Items         []model.MatchResult `json:"items"`
	MinConfidence int                 `json:"minConfidence"`
}

type autoValidateResponse struct {
	Validated []string            `json:"validated"`
	Items     []model.MatchResult `json:"items"`
}

// AutoValidate promotes SIMILAR results at or above minConfidence.
func (h *Handler) AutoValidate(w http.ResponseWriter, r *http.Request) {
	var req autoValidateRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if req.MinConfidence <= 0 {
		req.MinConfidence = service.AutoValidateMin
	}
	ids := service.AutoValidatable(req.Items, req.MinConfidence)
	utils.WriteJSON(w, http.StatusOK, autoValidateResponse{
		Validated: nonNil(ids),
		Items:     service.AutoValidate(req.Items, ids),
	})
}

type reviewRequest struct {
	Item  model.MatchResult   `json:"item"`
	Entry *model.CatalogEntry `json:"entry,omitempty"`
}

// ConfirmResult validates a suggested match and teaches it to the engine.
func (h *Handler) ConfirmResult(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if req.Item.Entry == nil {
		utils.WriteError(w, http.StatusBadRequest, "result has no catalog entry to confirm")
		return
	}
	h.reviewed(w, r, service.Confirm(req.Item))
}

// LinkResult binds a result to a manually chosen entry and teaches the pair.
func (h *Handler) LinkResult(w http.ResponseWriter, r *http.Request) {
	var req reviewRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if req.Entry == nil {
		utils.WriteError(w, http.StatusBadRequest, "missing entry")
		return
	}
	if err := model.Validate(*req.Entry); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	h.reviewed(w, r, service.Link(req.Item, *req.Entry))
}

type reviewResponse struct {
	Item    model.MatchResult `json:"item"`
	Learned bool              `json:"learned"`
}

// reviewed records the confirmation; a learning failure is logged and
// reported but never undoes the review.
func (h *Handler) reviewed(w http.ResponseWriter, r *http.Request, item model.MatchResult) {
	_, err := h.learner.RecordConfirmation(r.Context(), item.ClientText, item.Entry.Description, item.Entry.ID)
	if err != nil {
		log := h.logger(r)
		log.Warn().Err(err).Str("result", item.ID).Msg("confirmation not learned")
	}
	utils.WriteJSON(w, http.StatusOK, reviewResponse{Item: item, Learned: err == nil})
}
