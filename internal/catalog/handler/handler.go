// Package handler exposes catalog search, edits and spreadsheet import.
package handler

import (
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"partidas-service/internal/catalog"
	"partidas-service/internal/fileio"
	"partidas-service/internal/importer"
	"partidas-service/internal/matching/model"
	"partidas-service/internal/middleware"
	"partidas-service/internal/store"
	"partidas-service/internal/utils"
)

type Handler struct {
	svc         *catalog.Service
	maxUploadMB int
	log         zerolog.Logger
}

func New(svc *catalog.Service, maxUploadMB int, log zerolog.Logger) *Handler {
	return &Handler{svc: svc, maxUploadMB: maxUploadMB, log: log}
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, model.ErrInvalid):
		utils.WriteError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, store.ErrNotFound):
		utils.WriteError(w, http.StatusNotFound, err.Error())
	default:
		log := middleware.Logger(h.log, r)
		log.Error().Err(err).Str("path", r.URL.Path).Msg("catalog")
		utils.WriteError(w, http.StatusServiceUnavailable, "catalog unavailable")
	}
}

// Search lists entries whose code or description contains ?q.
func (h *Handler) Search(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	entries, err := h.svc.Search(r.Context(), q.Get("q"), utils.Atoi(q.Get("limit"), catalog.DefaultSearchLimit))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, entries)
}

func (h *Handler) Create(w http.ResponseWriter, r *http.Request) {
	var e model.CatalogEntry
	if err := utils.DecodeJSON(r, &e); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	e.ID = ""
	created, err := h.svc.Create(r.Context(), e)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusCreated, created)
}

func (h *Handler) Update(w http.ResponseWriter, r *http.Request) {
	var e model.CatalogEntry
	if err := utils.DecodeJSON(r, &e); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	e.ID = chi.URLParam(r, "id")
	if err := h.svc.Update(r.Context(), e); err != nil {
		h.fail(w, r, err)
		return
	}
	utils.WriteJSON(w, http.StatusOK, e)
}

func (h *Handler) Delete(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type importPreview struct {
	Count   int                  `json:"count"`
	Entries []model.CatalogEntry `json:"entries"`
}

// Import loads a price database spreadsheet (multipart "file"). With dry_run
// the parsed entries are returned and nothing is stored.
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	if err := r.ParseMultipartForm(int64(h.maxUploadMB) << 20); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad multipart form: "+err.Error())
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "missing file: "+err.Error())
		return
	}
	defer file.Close()

	rows, err := fileio.ReadAnyMaps(file, header.Filename, utils.Atoi(r.FormValue("header_row"), 0))
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, "failed to read "+header.Filename+": "+err.Error())
		return
	}
	m := importer.DefaultCatalogMapping()
	for key, dst := range map[string]*string{
		"code_col":     &m.CodeKey,
		"nat_col":      &m.NatKey,
		"unit_col":     &m.UnitKey,
		"desc_col":     &m.DescKey,
		"price_col":    &m.PriceKey,
		"category_col": &m.CategoryKey,
	} {
		if v := r.FormValue(key); v != "" {
			*dst = v
		}
	}
	entries := importer.CatalogEntries(rows, m)
	if len(entries) == 0 {
		utils.WriteError(w, http.StatusUnprocessableEntity, "no valid catalog entries found")
		return
	}

	if utils.ToBool(r.FormValue("dry_run"), false) {
		utils.WriteJSON(w, http.StatusOK, importPreview{Count: len(entries), Entries: entries})
		return
	}

	res, err := h.svc.Import(r.Context(), entries)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	h.log.Info().Str("file", header.Filename).Int("created", res.Created).Int("skipped", res.Skipped).Msg("catalog imported")
	utils.WriteJSON(w, http.StatusOK, res)
}
