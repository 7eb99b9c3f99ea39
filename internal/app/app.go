// Package app wires configuration, storage, and the model services
// into one shared core used by cmd/nutriome-server and the tests.
package app

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/gutlab/nutriome/internal/common"
	"github.com/gutlab/nutriome/internal/interfaces"
	"github.com/gutlab/nutriome/internal/loader"
	"github.com/gutlab/nutriome/internal/models"
	"github.com/gutlab/nutriome/internal/services/absorb"
	"github.com/gutlab/nutriome/internal/services/simulate"
	"github.com/gutlab/nutriome/internal/storage"
)

// App holds all initialized services and storage.
type App struct {
	Config            *common.Config
	Logger            *common.Logger
	Storage           interfaces.DatasetStore
	ProfileService    interfaces.ProfileService
	SimulationService interfaces.SimulationService
	StartupTime       time.Time
}

// getBinaryDir returns the directory containing the executable.
func getBinaryDir() string {
	exe, err := os.Executable()
	if err != nil {
		return "."
	}
	return filepath.Dir(exe)
}

// NewApp initializes configuration, logging, storage, and the model
// services. configPath may be empty, in which case the default
// resolution logic is used.
func NewApp(configPath string) (*App, error) {
	binDir := getBinaryDir()

	// Check provided path, NUTRIOME_CONFIG, then binary dir, then fallback
	if configPath == "" {
		configPath = os.Getenv("NUTRIOME_CONFIG")
	}
	if configPath == "" {
		configPath = filepath.Join(binDir, "nutriome.toml")
		if _, err := os.Stat(configPath); os.IsNotExist(err) {
			configPath = "config/nutriome.toml" // fallback for development
		}
	}

	config, err := common.LoadConfig(configPath)
	if err != nil {
		return nil, fmt.Errorf("failed to load config: %w", err)
	}

	if config.Data.Path != "" && !filepath.IsAbs(config.Data.Path) {
		config.Data.Path = filepath.Join(binDir, config.Data.Path)
	}

	logger := common.NewLoggerFromConfig(config.Logging)

	return NewAppWithConfig(config, logger)
}

// NewAppWithConfig builds the service graph from an already-loaded
// configuration. Used directly by tests.
func NewAppWithConfig(config *common.Config, logger *common.Logger) (*App, error) {
	storageManager, err := storage.NewManager(logger, config.Cache.MemoSize)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	traitTable, err := buildTraitTable(config.Model)
	if err != nil {
		return nil, fmt.Errorf("invalid model.traits configuration: %w", err)
	}

	coeffs, err := buildCoefficients(config.Model)
	if err != nil {
		return nil, fmt.Errorf("invalid model.coefficients configuration: %w", err)
	}

	policy := models.UnknownNeutral
	if config.Model.UnknownSpecies == "reject" {
		policy = models.UnknownReject
	}

	profileService := absorb.NewService(storageManager, traitTable, coeffs, policy, logger)
	simulationService := simulate.NewEngine(storageManager, profileService, simulate.Defaults{
		Repetitions: config.Bootstrap.Repetitions,
		NoiseKind:   config.Bootstrap.NoiseKind,
		NoiseSigma:  config.Bootstrap.NoiseSigma,
		Workers:     config.Bootstrap.Workers,
	}, logger)

	a := &App{
		Config:            config,
		Logger:            logger,
		Storage:           storageManager,
		ProfileService:    profileService,
		SimulationService: simulationService,
		StartupTime:       time.Now().UTC(),
	}

	if config.Data.Path != "" {
		if err := a.loadStartupDataset(); err != nil {
			// Startup data is a convenience; the API can register
			// datasets at runtime either way.
			logger.Warn().Err(err).Str("path", config.Data.Path).Msg("Startup dataset not loaded")
		}
	}

	logger.Info().
		Str("environment", config.Environment).
		Int("genera", len(traitTable.Genera())).
		Str("unknown_species", string(policy)).
		Msg("Application initialized")

	return a, nil
}

func (a *App) loadStartupDataset() error {
	name := a.Config.Data.Name
	if name == "" {
		base := filepath.Base(a.Config.Data.Path)
		name = strings.TrimSuffix(base, filepath.Ext(base))
	}

	table, err := loader.LoadFile(a.Config.Data.Path, name)
	if err != nil {
		return err
	}

	id := a.Storage.AddDataset(table)
	a.Logger.Info().
		Str("dataset_id", id).
		Str("name", name).
		Msg("Startup dataset loaded")
	return nil
}

// buildTraitTable merges configured genus rows over the built-in
// reference table. A configured genus replaces only the traits it
// names; unnamed genera keep their defaults.
func buildTraitTable(cfg common.ModelConfig) (*models.TraitTable, error) {
	if len(cfg.Traits) == 0 && len(cfg.DefaultRow) == 0 {
		return models.DefaultTraitTable(), nil
	}

	rows := models.DefaultTraitTable().Rows()
	for genus, overrides := range cfg.Traits {
		genus = strings.ToLower(strings.TrimSpace(genus))
		if genus == "" {
			return nil, fmt.Errorf("empty genus name")
		}
		row := rows[genus] // zero weights for a new genus
		merged, err := applyTraitOverrides(row, overrides)
		if err != nil {
			return nil, fmt.Errorf("genus %s: %w", genus, err)
		}
		rows[genus] = merged
	}

	var defaultRow *models.TraitWeights
	if len(cfg.DefaultRow) > 0 {
		merged, err := applyTraitOverrides(models.TraitWeights{}, cfg.DefaultRow)
		if err != nil {
			return nil, fmt.Errorf("default_row: %w", err)
		}
		defaultRow = &merged
	}

	return models.NewTraitTable(rows, defaultRow)
}

func applyTraitOverrides(row models.TraitWeights, overrides map[string]float64) (models.TraitWeights, error) {
	for name, value := range overrides {
		switch models.Trait(strings.ToLower(strings.TrimSpace(name))) {
		case models.TraitSCFA:
			row.SCFA = value
		case models.TraitPHReduction:
			row.PHReduction = value
		case models.TraitBarrier:
			row.BarrierSupport = value
		case models.TraitVitamin:
			row.VitaminBiosynthesis = value
		case models.TraitSiderophore:
			row.Siderophore = value
		default:
			return row, fmt.Errorf("unknown trait %q", name)
		}
	}
	return row, nil
}

// buildCoefficients replaces default nutrient rows with configured
// ones. A configured nutrient replaces its whole row.
func buildCoefficients(cfg common.ModelConfig) (models.CoefficientTable, error) {
	coeffs := models.DefaultCoefficients()
	for name, row := range cfg.Coefficients {
		nutrient := models.Nutrient(strings.ToLower(strings.TrimSpace(name)))
		if !models.IsNutrient(string(nutrient)) {
			return nil, fmt.Errorf("unknown nutrient %q", name)
		}
		replacement := make(map[models.Trait]float64, len(row))
		for traitName, coeff := range row {
			trait := models.Trait(strings.ToLower(strings.TrimSpace(traitName)))
			if !models.IsTrait(string(trait)) {
				return nil, fmt.Errorf("nutrient %s: unknown trait %q", nutrient, traitName)
			}
			replacement[trait] = coeff
		}
		coeffs[nutrient] = replacement
	}
	if err := coeffs.Validate(); err != nil {
		return nil, err
	}
	return coeffs, nil
}
