package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/gutlab/nutriome/internal/loader"
	"github.com/gutlab/nutriome/internal/models"
	"github.com/gutlab/nutriome/internal/services/absorb"
	"github.com/gutlab/nutriome/internal/storage"
)

// DatasetSummary is the registry view of a loaded abundance table.
type DatasetSummary struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Samples      []string  `json:"samples"`
	SpeciesCount int       `json:"species_count"`
	CreatedAt    time.Time `json:"created_at"`
}

func summarize(table *models.AbundanceTable) DatasetSummary {
	return DatasetSummary{
		ID:           table.ID,
		Name:         table.Name,
		Samples:      table.Samples,
		SpeciesCount: table.SpeciesCount(),
		CreatedAt:    table.CreatedAt,
	}
}

// writeModelError maps the model's error taxonomy onto status codes.
// SimulationError is checked before DataError because it wraps one.
func (s *Server) writeModelError(w http.ResponseWriter, err error) {
	var validationErr *models.ValidationError
	var simErr *models.SimulationError
	var dataErr *models.DataError

	switch {
	case errors.Is(err, storage.ErrDatasetNotFound):
		WriteErrorWithCode(w, http.StatusNotFound, err.Error(), "dataset_not_found")
	case errors.As(err, &simErr):
		WriteJSON(w, http.StatusConflict, ErrorResponse{
			Error: simErr.Error(),
			Code:  "simulation_failed",
			Extra: simErr.Baseline,
		})
	case errors.As(err, &validationErr):
		WriteErrorWithCode(w, http.StatusBadRequest, err.Error(), "invalid_request")
	case errors.As(err, &dataErr):
		WriteErrorWithCode(w, http.StatusUnprocessableEntity, err.Error(), "data_error")
	default:
		s.logger.Error().Err(err).Msg("Request failed")
		WriteError(w, http.StatusInternalServerError, "Internal server error")
	}
}

// --- Model reference handlers ---

func (s *Server) handleTraits(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	table := s.app.ProfileService.TraitTable()
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"traits":          models.Traits(),
		"genera":          table.Rows(),
		"default_row":     table.DefaultRow(),
		"unknown_species": s.app.Config.Model.UnknownSpecies,
	})
}

func (s *Server) handleNutrients(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nutrients":    models.Nutrients(),
		"coefficients": s.app.ProfileService.Coefficients(),
	})
}

func (s *Server) handleContributions(w http.ResponseWriter, r *http.Request, nutrient string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	if !models.IsNutrient(nutrient) {
		WriteError(w, http.StatusBadRequest, "Unknown nutrient: "+nutrient)
		return
	}
	datasetID := r.URL.Query().Get("dataset")
	if datasetID == "" {
		WriteError(w, http.StatusBadRequest, "dataset query parameter is required")
		return
	}

	ranked, err := s.app.ProfileService.Contributions(r.Context(), datasetID, models.Nutrient(nutrient), QueryLimit(r))
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"nutrient":      nutrient,
		"dataset":       datasetID,
		"contributions": ranked,
	})
}

// --- Dataset handlers ---

// handleDatasetRoot handles GET (list) and POST (register) on /api/datasets.
func (s *Server) handleDatasetRoot(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		s.handleDatasetList(w, r)
	case http.MethodPost:
		s.handleDatasetCreate(w, r)
	default:
		RequireMethod(w, r, http.MethodGet, http.MethodPost)
	}
}

func (s *Server) handleDatasetList(w http.ResponseWriter, r *http.Request) {
	tables := s.app.Storage.ListDatasets()
	summaries := make([]DatasetSummary, 0, len(tables))
	for _, table := range tables {
		summaries = append(summaries, summarize(table))
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"datasets": summaries})
}

// datasetCreateRequest is the JSON body for POST /api/datasets. TSV
// uploads use the raw body instead, with the name in the query string.
type datasetCreateRequest struct {
	Name   string                        `json:"name"`
	Counts map[string]map[string]float64 `json:"counts"`
}

func (s *Server) handleDatasetCreate(w http.ResponseWriter, r *http.Request) {
	contentType := r.Header.Get("Content-Type")

	var table *models.AbundanceTable
	var err error

	if strings.HasPrefix(contentType, "application/json") {
		var req datasetCreateRequest
		if !DecodeJSON(w, r, &req) {
			return
		}
		table, err = models.NewAbundanceTable("", req.Name, req.Counts)
	} else {
		// anything else is treated as a TSV upload
		body := http.MaxBytesReader(w, r.Body, 8<<20)
		defer body.Close()
		table, err = loader.Parse(body, r.URL.Query().Get("name"))
	}
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	id := s.app.Storage.AddDataset(table)
	s.logger.Info().
		Str("dataset_id", id).
		Str("name", table.Name).
		Msg("Dataset registered via API")

	WriteJSON(w, http.StatusCreated, summarize(table))
}

func (s *Server) handleDatasetGet(w http.ResponseWriter, r *http.Request, datasetID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	table, err := s.app.Storage.GetDataset(datasetID)
	if err != nil {
		s.writeModelError(w, err)
		return
	}
	WriteJSON(w, http.StatusOK, summarize(table))
}

func (s *Server) handleSampleList(w http.ResponseWriter, r *http.Request, datasetID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	table, err := s.app.Storage.GetDataset(datasetID)
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset": table.ID,
		"samples": table.Samples,
		// pseudo-sample averaging raw counts across all samples
		"mean_sample": models.MeanSample,
	})
}

// --- Sample handlers ---

func (s *Server) handleSampleAbundance(w http.ResponseWriter, r *http.Request, datasetID, sample string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	ranked, err := s.app.ProfileService.SampleAbundance(r.Context(), datasetID, sample, QueryLimit(r))
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset":   datasetID,
		"sample":    sample,
		"abundance": ranked,
	})
}

func (s *Server) handleSampleProfile(w http.ResponseWriter, r *http.Request, datasetID, sample string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	profile, err := s.app.ProfileService.SampleProfile(r.Context(), datasetID, sample)
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"dataset": datasetID,
		"sample":  sample,
		"traits":  profile.Traits,
		"scores":  profile.Scores,
	})
}

func (s *Server) handleSampleProfileChart(w http.ResponseWriter, r *http.Request, datasetID, sample string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	profile, err := s.app.ProfileService.SampleProfile(r.Context(), datasetID, sample)
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	png, err := absorb.RenderScoreChart("Nutrient scores: "+sample, profile.Scores)
	if err != nil {
		s.logger.Error().Err(err).Msg("Chart rendering failed")
		WriteError(w, http.StatusInternalServerError, "Chart rendering failed")
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.WriteHeader(http.StatusOK)
	w.Write(png)
}

func (s *Server) handleSimulate(w http.ResponseWriter, r *http.Request, datasetID, sample string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	var req models.PerturbationRequest
	if !DecodeJSON(w, r, &req) {
		return
	}

	result, err := s.app.SimulationService.Simulate(r.Context(), datasetID, sample, req)
	if err != nil {
		s.writeModelError(w, err)
		return
	}

	WriteJSON(w, http.StatusOK, result)
}
