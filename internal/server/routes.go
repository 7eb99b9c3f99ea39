package server

import (
	"net/http"
	"strings"
	"time"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/models"
)

// registerRoutes sets up all REST API routes on the mux.
func (s *Server) registerRoutes(mux *http.ServeMux) {
	// System
	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/version", s.handleVersion)
	mux.HandleFunc("/api/config", s.handleConfig)

	// Model reference
	mux.HandleFunc("/api/traits", s.handleTraits)
	mux.HandleFunc("/api/nutrients/", s.routeNutrients)
	mux.HandleFunc("/api/nutrients", s.handleNutrients)

	// Datasets
	mux.HandleFunc("/api/datasets/", s.routeDatasets)
	mux.HandleFunc("/api/datasets", s.handleDatasetRoot)
}

// routeNutrients dispatches /api/nutrients/{nutrient}/* to the
// appropriate handler.
func (s *Server) routeNutrients(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/nutrients/")
	if path == "" {
		s.handleNutrients(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	nutrient := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch subpath {
	case "contributions":
		s.handleContributions(w, r, nutrient)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// routeDatasets dispatches /api/datasets/{id}/* to the appropriate
// handler. Sample sub-resources nest one level deeper:
// /api/datasets/{id}/samples/{sample}/{abundance|profile|profile/chart|simulate}.
func (s *Server) routeDatasets(w http.ResponseWriter, r *http.Request) {
	path := strings.TrimPrefix(r.URL.Path, "/api/datasets/")
	if path == "" {
		s.handleDatasetRoot(w, r)
		return
	}

	parts := strings.SplitN(path, "/", 2)
	datasetID := parts[0]
	subpath := ""
	if len(parts) > 1 {
		subpath = parts[1]
	}

	switch {
	case subpath == "":
		s.handleDatasetGet(w, r, datasetID)
	case subpath == "samples":
		s.handleSampleList(w, r, datasetID)
	case strings.HasPrefix(subpath, "samples/"):
		s.routeSamples(w, r, datasetID, strings.TrimPrefix(subpath, "samples/"))
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// routeSamples dispatches /api/datasets/{id}/samples/{sample}/* sub-routes.
func (s *Server) routeSamples(w http.ResponseWriter, r *http.Request, datasetID, subpath string) {
	parts := strings.SplitN(subpath, "/", 2)
	sample := parts[0]
	if sample == "" {
		s.handleSampleList(w, r, datasetID)
		return
	}
	action := ""
	if len(parts) > 1 {
		action = parts[1]
	}

	switch action {
	case "abundance":
		s.handleSampleAbundance(w, r, datasetID, sample)
	case "profile":
		s.handleSampleProfile(w, r, datasetID, sample)
	case "profile/chart":
		s.handleSampleProfileChart(w, r, datasetID, sample)
	case "simulate":
		s.handleSimulate(w, r, datasetID, sample)
	default:
		WriteError(w, http.StatusNotFound, "Not found")
	}
}

// --- System handlers ---

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet, http.MethodHead) {
		return
	}
	WriteJSON(w, http.StatusOK, map[string]string{
		"version": common.GetVersion(),
		"build":   common.GetBuild(),
		"commit":  common.GetGitCommit(),
	})
}

func (s *Server) handleConfig(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	cfg := s.app.Config
	uptime := time.Since(s.app.StartupTime).Round(time.Second)

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"environment":       cfg.Environment,
		"logging_level":     cfg.Logging.Level,
		"unknown_species":   cfg.Model.UnknownSpecies,
		"bootstrap_reps":    cfg.Bootstrap.Repetitions,
		"bootstrap_noise":   cfg.Bootstrap.NoiseKind,
		"bootstrap_sigma":   cfg.Bootstrap.NoiseSigma,
		"memo_size":         cfg.Cache.MemoSize,
		"datasets":          len(s.app.Storage.ListDatasets()),
		"nutrients":         models.Nutrients(),
		"startup_data_path": cfg.Data.Path,
		"uptime":            uptime.String(),
		"started_at":        s.app.StartupTime,
	})
}
