// Package handler exposes batch matching, scoring, review and learning over HTTP.
package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"

	"partidas-service/internal/fileio"
	"partidas-service/internal/importer"
	"partidas-service/internal/learning"
	"partidas-service/internal/matching/model"
	"partidas-service/internal/matching/service"
	"partidas-service/internal/middleware"
	"partidas-service/internal/utils"
)

// CatalogSource supplies the catalog snapshot for a run.
type CatalogSource interface {
	Snapshot(ctx context.Context) ([]model.CatalogEntry, error)
}

// Learner is the learning engine as the handlers use it.
type Learner interface {
	LoadTables(ctx context.Context) (model.WeightTable, model.SynonymTable)
	RecordConfirmation(ctx context.Context, clientDesc, catalogDesc, catalogID string) (learning.Outcome, error)
	Stats(ctx context.Context) (model.LearningStats, error)
}

type Handler struct {
	matcher     *service.Matcher
	catalog     CatalogSource
	learner     Learner
	chunkSize   int
	maxUploadMB int
	log         zerolog.Logger
}

func New(m *service.Matcher, c CatalogSource, l Learner, chunkSize, maxUploadMB int, log zerolog.Logger) *Handler {
	if chunkSize <= 0 {
		chunkSize = service.DefaultChunkSize
	}
	return &Handler{matcher: m, catalog: c, learner: l, chunkSize: chunkSize, maxUploadMB: maxUploadMB, log: log}
}

func (h *Handler) logger(r *http.Request) zerolog.Logger { return middleware.Logger(h.log, r) }

type matchRequest struct {
	Lines     []model.InputLine `json:"lines"`
	ChunkSize int               `json:"chunkSize"`
}

// streamEvent is one NDJSON line of a /match response.
type streamEvent struct {
	service.Event
	Summary *service.Summary `json:"summary,omitempty"`
}

// Match runs a batch and streams PROGRESS events then COMPLETE or ERROR as
// newline-delimited JSON. Input is a JSON body or a multipart budget file.
func (h *Handler) Match(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := h.logger(r)

	req, err := h.readMatchRequest(r)
	if err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	if len(req.Lines) == 0 {
		utils.WriteError(w, http.StatusBadRequest, "no budget lines to match")
		return
	}

	catalog, err := h.catalog.Snapshot(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("catalog snapshot")
		utils.WriteError(w, http.StatusServiceUnavailable, "catalog unavailable")
		return
	}
	weights, synonyms := h.learner.LoadTables(r.Context())

	run := h.matcher.Submit(r.Context(), service.Batch{
		Lines:     req.Lines,
		Catalog:   catalog,
		Weights:   weights,
		Synonyms:  synonyms,
		ChunkSize: req.ChunkSize,
	})

	w.Header().Set("Content-Type", "application/x-ndjson")
	w.Header().Set("Cache-Control", "no-store")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(http.StatusOK)
	flusher, _ := w.(http.Flusher)
	enc := json.NewEncoder(w)

	for ev := range run.Events() {
		out := streamEvent{Event: ev}
		if ev.Type == service.EventComplete {
			s := service.Summarize(ev.Results, decimal.Zero)
			out.Summary = &s
		}
		if err := enc.Encode(out); err != nil {
			log.Warn().Err(err).Msg("match stream write")
			return
		}
		if flusher != nil {
			flusher.Flush()
		}
	}

	log.Info().
		Int("lines", len(req.Lines)).
		Int("catalog", len(catalog)).
		Dur("elapsed", time.Since(start)).
		Msg("match done")
}

func (h *Handler) readMatchRequest(r *http.Request) (matchRequest, error) {
	var req matchRequest
	if strings.HasPrefix(r.Header.Get("Content-Type"), "multipart/") {
		if err := r.ParseMultipartForm(int64(h.maxUploadMB) << 20); err != nil {
			return req, fmt.Errorf("bad multipart form: %w", err)
		}
		file, header, err := r.FormFile("file")
		if err != nil {
			return req, fmt.Errorf("missing file: %w", err)
		}
		defer file.Close()

		rows, err := fileio.ReadAnyMaps(file, header.Filename, utils.Atoi(r.FormValue("header_row"), 0))
		if err != nil {
			return req, fmt.Errorf("failed to read %s: %w", header.Filename, err)
		}
		req.Lines = importer.BudgetLines(rows, importer.BudgetMapping{
			DescKey: r.FormValue("desc_col"),
			QtyKey:  r.FormValue("qty_col"),
			CodeKey: r.FormValue("code_col"),
			NatKey:  r.FormValue("nat_col"),
		})
		req.ChunkSize = utils.Atoi(r.FormValue("chunk_size"), h.chunkSize)
		return req, nil
	}

	if err := utils.DecodeJSON(r, &req); err != nil {
		return req, fmt.Errorf("bad json: %w", err)
	}
	for i, l := range req.Lines {
		if err := model.Validate(l); err != nil {
			return req, fmt.Errorf("line %d: %w", i+1, err)
		}
	}
	if req.ChunkSize <= 0 {
		req.ChunkSize = h.chunkSize
	}
	return req, nil
}

type similarityRequest struct {
	Query     string `json:"query" validate:"required"`
	Candidate string `json:"candidate" validate:"required"`
}

type similarityResponse struct {
	Score        int          `json:"score"`
	Estado       model.Estado `json:"estado"`
	MatchedWords []string     `json:"matchedWords"`
	SynonymsUsed []string     `json:"synonymsUsed"`
}

// Similarity scores one pair with the current learning tables.
func (h *Handler) Similarity(w http.ResponseWriter, r *http.Request) {
	var req similarityRequest
	if err := utils.DecodeJSON(r, &req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, "bad json: "+err.Error())
		return
	}
	if err := model.Validate(req); err != nil {
		utils.WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	weights, synonyms := h.learner.LoadTables(r.Context())
	sim := service.CalculateSimilarity(req.Query, req.Candidate, weights, synonyms)
	utils.WriteJSON(w, http.StatusOK, similarityResponse{
		Score:        sim.Score,
		Estado:       h.matcher.Thresholds().Classify(sim.Score),
		MatchedWords: nonNil(sim.MatchedWords),
		SynonymsUsed: nonNil(sim.SynonymsUsed),
	})
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

func isClientError(err error) bool {
	return errors.Is(err, model.ErrInvalid)
}
