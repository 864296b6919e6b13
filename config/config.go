// Package config provides configuration loading and validation for starcoal.
package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"

	"github.com/tomopfuku/starcoal/coalescent"
	"github.com/tomopfuku/starcoal/species"
)

// Sentinel validation errors.
var (
	ErrNoGeneTrees    = errors.New("no gene trees configured")
	ErrModelKind      = errors.New("model kind must be numeric or analytic")
	ErrDemography     = errors.New("demography must be linear, stepwise or exponential")
	ErrPopulation     = errors.New("initial population must be positive")
	ErrStartTree      = errors.New("start tree must be maximum, uninformed or newick")
	ErrGenerations    = errors.New("generations must be positive")
	ErrFrequency      = errors.New("print and sample frequencies must be positive")
	ErrStepLen        = errors.New("step length must be positive")
	ErrLogLevel       = errors.New("logging level must be debug, info, warn or error")
	ErrLogFormat      = errors.New("logging format must be text or json")
	ErrPriorParameter = errors.New("prior parameters must be positive")
)

// Model kinds.
const (
	ModelNumeric  = "numeric"
	ModelAnalytic = "analytic"
)

// Demography kinds.
const (
	DemographyLinear      = "linear"
	DemographyStepwise    = "stepwise"
	DemographyExponential = "exponential"
)

// Start tree kinds.
const (
	StartMaximum    = "maximum"
	StartUninformed = "uninformed"
	StartNewick     = "newick"
)

// Default configuration values.
const (
	defaultPopulation  = 1.0
	defaultGenerations = 100000
	defaultPrintFreq   = 10000
	defaultSampleFreq  = 1000
	defaultBurninTune  = 10000
	defaultStepLen     = 0.1
	defaultPriorAlpha  = 3.0
	defaultPriorBeta   = 2.0
	defaultScaleSigma  = 1.0
)

// Config holds all configuration for a starcoal run.
type Config struct {
	Species   []species.Species `mapstructure:"species"`
	GeneTrees GeneTreesConfig   `mapstructure:"gene_trees"`
	Model     ModelConfig       `mapstructure:"model"`
	StartTree StartTreeConfig   `mapstructure:"start_tree"`
	MCMC      MCMCConfig        `mapstructure:"mcmc"`
	Output    OutputConfig      `mapstructure:"output"`
	Logging   LoggingConfig     `mapstructure:"logging"`
}

// GeneTreesConfig lists gene trees inline and in files of one newick per line.
type GeneTreesConfig struct {
	Files  []string `mapstructure:"files"`
	Newick []string `mapstructure:"newick"`
}

// ModelConfig selects and parameterises the coalescent model.
type ModelConfig struct {
	Kind              string                 `mapstructure:"kind"`
	InitialPopulation float64                `mapstructure:"initial_population"`
	Demography        string                 `mapstructure:"demography"`
	Components        []coalescent.Component `mapstructure:"components"`
	PriorScale        float64                `mapstructure:"prior_scale"`
	ScalePriorSigma   float64                `mapstructure:"scale_prior_sigma"`
	PopulationPrior   PriorConfig            `mapstructure:"population_prior"`
}

// PriorConfig holds inverse-gamma hyperparameters.
type PriorConfig struct {
	Alpha float64 `mapstructure:"alpha"`
	Beta  float64 `mapstructure:"beta"`
}

// StartTreeConfig selects the starting species tree.
type StartTreeConfig struct {
	Kind   string `mapstructure:"kind"`
	Newick string `mapstructure:"newick"`
}

// MCMCConfig holds the chain settings.
type MCMCConfig struct {
	Generations int     `mapstructure:"generations"`
	PrintFreq   int     `mapstructure:"print_freq"`
	SampleFreq  int     `mapstructure:"sample_freq"`
	BurninTune  int     `mapstructure:"burnin_tune"`
	StepLen     float64 `mapstructure:"step_len"`
	Seed        uint64  `mapstructure:"seed"`
}

// OutputConfig names the output files. Empty means stdout for the trace and
// no summary file.
type OutputConfig struct {
	Trace   string `mapstructure:"trace"`
	Summary string `mapstructure:"summary"`
}

// LoggingConfig holds logging-specific configuration.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// LoadConfig loads configuration from file and environment variables.
func LoadConfig(configPath string) (*Config, error) {
	viperCfg := viper.New()

	setDefaults(viperCfg)

	if configPath != "" {
		viperCfg.SetConfigFile(configPath)
	} else {
		viperCfg.SetConfigName("starcoal")
		viperCfg.SetConfigType("yaml")
		viperCfg.AddConfigPath(".")
		viperCfg.AddConfigPath("./config")
	}

	viperCfg.SetEnvPrefix("STARCOAL")
	viperCfg.AutomaticEnv()
	viperCfg.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	readErr := viperCfg.ReadInConfig()
	if readErr != nil {
		var notFoundErr viper.ConfigFileNotFoundError
		if !errors.As(readErr, &notFoundErr) {
			return nil, fmt.Errorf("failed to read config file: %w", readErr)
		}
	}

	var config Config

	unmarshalErr := viperCfg.Unmarshal(&config)
	if unmarshalErr != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", unmarshalErr)
	}

	validateErr := validateConfig(&config)
	if validateErr != nil {
		return nil, fmt.Errorf("invalid configuration: %w", validateErr)
	}

	return &config, nil
}

// setDefaults sets default configuration values.
func setDefaults(viperCfg *viper.Viper) {
	// Model defaults.
	viperCfg.SetDefault("model.kind", ModelNumeric)
	viperCfg.SetDefault("model.initial_population", defaultPopulation)
	viperCfg.SetDefault("model.demography", DemographyLinear)
	viperCfg.SetDefault("model.prior_scale", 1.0)
	viperCfg.SetDefault("model.scale_prior_sigma", defaultScaleSigma)
	viperCfg.SetDefault("model.population_prior.alpha", defaultPriorAlpha)
	viperCfg.SetDefault("model.population_prior.beta", defaultPriorBeta)

	// Start tree defaults.
	viperCfg.SetDefault("start_tree.kind", StartMaximum)

	// MCMC defaults.
	viperCfg.SetDefault("mcmc.generations", defaultGenerations)
	viperCfg.SetDefault("mcmc.print_freq", defaultPrintFreq)
	viperCfg.SetDefault("mcmc.sample_freq", defaultSampleFreq)
	viperCfg.SetDefault("mcmc.burnin_tune", defaultBurninTune)
	viperCfg.SetDefault("mcmc.step_len", defaultStepLen)
	viperCfg.SetDefault("mcmc.seed", 0)

	// Output defaults.
	viperCfg.SetDefault("output.trace", "")
	viperCfg.SetDefault("output.summary", "")

	// Logging defaults.
	viperCfg.SetDefault("logging.level", "info")
	viperCfg.SetDefault("logging.format", "text")
}

// validateConfig validates the configuration. Species and mixture
// components are checked by the packages that consume them.
func validateConfig(config *Config) error {
	if len(config.GeneTrees.Files)+len(config.GeneTrees.Newick) == 0 {
		return ErrNoGeneTrees
	}

	switch config.Model.Kind {
	case ModelNumeric, ModelAnalytic:
	default:
		return fmt.Errorf("%w: %q", ErrModelKind, config.Model.Kind)
	}

	switch config.Model.Demography {
	case DemographyLinear, DemographyStepwise, DemographyExponential:
	default:
		return fmt.Errorf("%w: %q", ErrDemography, config.Model.Demography)
	}

	if config.Model.InitialPopulation <= 0 {
		return fmt.Errorf("%w: %g", ErrPopulation, config.Model.InitialPopulation)
	}

	if config.Model.PopulationPrior.Alpha <= 0 || config.Model.PopulationPrior.Beta <= 0 || config.Model.ScalePriorSigma <= 0 {
		return fmt.Errorf("%w: %+v sigma=%g", ErrPriorParameter, config.Model.PopulationPrior, config.Model.ScalePriorSigma)
	}

	switch config.StartTree.Kind {
	case StartMaximum, StartUninformed:
	case StartNewick:
		if config.StartTree.Newick == "" {
			return fmt.Errorf("%w: newick start tree is empty", ErrStartTree)
		}
	default:
		return fmt.Errorf("%w: %q", ErrStartTree, config.StartTree.Kind)
	}

	if config.MCMC.Generations <= 0 {
		return fmt.Errorf("%w: %d", ErrGenerations, config.MCMC.Generations)
	}

	if config.MCMC.PrintFreq <= 0 || config.MCMC.SampleFreq <= 0 {
		return fmt.Errorf("%w: print=%d sample=%d", ErrFrequency, config.MCMC.PrintFreq, config.MCMC.SampleFreq)
	}

	if config.MCMC.StepLen <= 0 {
		return fmt.Errorf("%w: %g", ErrStepLen, config.MCMC.StepLen)
	}

	switch strings.ToLower(config.Logging.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("%w: %q", ErrLogLevel, config.Logging.Level)
	}

	switch config.Logging.Format {
	case "text", "json":
	default:
		return fmt.Errorf("%w: %q", ErrLogFormat, config.Logging.Format)
	}

	return nil
}
