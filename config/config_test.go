package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tomopfuku/starcoal/config"
)

const minimalConfig = `
species:
  - name: A
    taxa: [a1, a2]
  - name: B
    taxa: [b1]
gene_trees:
  newick:
    - "((a1:1,a2:1):1,b1:2);"
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "starcoal.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfigDefaults(t *testing.T) {
	t.Parallel()

	cfg, err := config.LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	require.Len(t, cfg.Species, 2)
	assert.Equal(t, "A", cfg.Species[0].Name)
	assert.Equal(t, []string{"a1", "a2"}, cfg.Species[0].Taxa)
	assert.Len(t, cfg.GeneTrees.Newick, 1)

	assert.Equal(t, config.ModelNumeric, cfg.Model.Kind)
	assert.Equal(t, config.DemographyLinear, cfg.Model.Demography)
	assert.InDelta(t, 1.0, cfg.Model.InitialPopulation, 0)
	assert.InDelta(t, 3.0, cfg.Model.PopulationPrior.Alpha, 0)
	assert.Equal(t, config.StartMaximum, cfg.StartTree.Kind)
	assert.Equal(t, 100000, cfg.MCMC.Generations)
	assert.Equal(t, "info", cfg.Logging.Level)
	assert.Equal(t, "text", cfg.Logging.Format)
}

func TestLoadConfigFromFile(t *testing.T) {
	t.Parallel()

	content := minimalConfig + `
model:
  kind: analytic
  demography: exponential
  prior_scale: 2.5
  components:
    - {weight: 0.25, alpha: 2, beta: 1}
    - {weight: 0.75, alpha: 5, beta: 4}
start_tree:
  kind: newick
  newick: "(A:1,B:1);"
mcmc:
  generations: 500
  sample_freq: 50
  seed: 17
logging:
  level: debug
  format: json
`

	cfg, err := config.LoadConfig(writeConfig(t, content))
	require.NoError(t, err)

	assert.Equal(t, config.ModelAnalytic, cfg.Model.Kind)
	assert.InDelta(t, 2.5, cfg.Model.PriorScale, 0)
	require.Len(t, cfg.Model.Components, 2)
	assert.Equal(t, config.DemographyExponential, cfg.Model.Demography)
	assert.InDelta(t, 0.75, cfg.Model.Components[1].Weight, 0)
	assert.InDelta(t, 4., cfg.Model.Components[1].Beta, 0)
	assert.Equal(t, "(A:1,B:1);", cfg.StartTree.Newick)
	assert.Equal(t, 500, cfg.MCMC.Generations)
	assert.Equal(t, 50, cfg.MCMC.SampleFreq)
	assert.Equal(t, uint64(17), cfg.MCMC.Seed)
	assert.Equal(t, "json", cfg.Logging.Format)
}

func TestLoadConfigFromEnvironment(t *testing.T) {
	t.Setenv("STARCOAL_MCMC_GENERATIONS", "250")
	t.Setenv("STARCOAL_MODEL_KIND", "analytic")

	cfg, err := config.LoadConfig(writeConfig(t, minimalConfig))
	require.NoError(t, err)

	assert.Equal(t, 250, cfg.MCMC.Generations)
	assert.Equal(t, config.ModelAnalytic, cfg.Model.Kind)
}

func TestLoadConfigValidation(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name    string
		content string
		want    error
	}{
		{name: "no_gene_trees", content: "species: [{name: A, taxa: [a]}]\n", want: config.ErrNoGeneTrees},
		{name: "model_kind", content: minimalConfig + "model:\n  kind: exact\n", want: config.ErrModelKind},
		{name: "demography", content: minimalConfig + "model:\n  demography: smooth\n", want: config.ErrDemography},
		{name: "population", content: minimalConfig + "model:\n  initial_population: 0\n", want: config.ErrPopulation},
		{name: "prior", content: minimalConfig + "model:\n  population_prior: {alpha: -1}\n", want: config.ErrPriorParameter},
		{name: "start_kind", content: minimalConfig + "start_tree:\n  kind: random\n", want: config.ErrStartTree},
		{name: "start_newick", content: minimalConfig + "start_tree:\n  kind: newick\n", want: config.ErrStartTree},
		{name: "generations", content: minimalConfig + "mcmc:\n  generations: 0\n", want: config.ErrGenerations},
		{name: "frequency", content: minimalConfig + "mcmc:\n  sample_freq: -1\n", want: config.ErrFrequency},
		{name: "step", content: minimalConfig + "mcmc:\n  step_len: 0\n", want: config.ErrStepLen},
		{name: "level", content: minimalConfig + "logging:\n  level: loud\n", want: config.ErrLogLevel},
		{name: "format", content: minimalConfig + "logging:\n  format: xml\n", want: config.ErrLogFormat},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()

			_, err := config.LoadConfig(writeConfig(t, tt.content))
			require.ErrorIs(t, err, tt.want)
		})
	}
}

func TestLoadConfigMissingFile(t *testing.T) {
	t.Parallel()

	_, err := config.LoadConfig(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
