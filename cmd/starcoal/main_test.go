package main

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gopkg.in/yaml.v3"
)

const testConfig = `
species:
  - {name: A, taxa: [a1, a2]}
  - {name: B, taxa: [b1]}
  - {name: C, taxa: [c1, c2]}
gene_trees:
  newick:
    - "(((a1:0.3,a2:0.3):0.9,b1:1.2):0.8,(c1:0.5,c2:0.5):1.5);"
    - "((a1:1.4,(a2:1.0,b1:1.0):0.4):0.6,(c1:0.2,c2:0.2):1.8);"
mcmc:
  generations: 400
  print_freq: 200
  sample_freq: 100
  burnin_tune: 200
  seed: 9
logging:
  level: error
`

func execute(t *testing.T, content string, args ...string) (string, error) {
	t.Helper()

	dir := t.TempDir()
	path := filepath.Join(dir, "starcoal.yaml")
	content = strings.ReplaceAll(content, "$DIR", dir)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	var out, errOut bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(append(args, "--config", path))

	err := cmd.Execute()
	return out.String(), err
}

func TestScoreCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, testConfig, "score")
	require.NoError(t, err)

	lines := strings.Split(strings.TrimSpace(out), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "species tree\t("))
	assert.Equal(t, "newick:1\tcompatible=true", lines[1])
	assert.Equal(t, "newick:2\tcompatible=true", lines[2])
	assert.True(t, strings.HasPrefix(lines[3], "logLikelihood\t"))
	assert.NotContains(t, lines[3], "Inf")
}

func TestScoreCommand_IncompatibleStart(t *testing.T) {
	t.Parallel()

	content := testConfig + `
start_tree:
  kind: newick
  newick: "((A:1.5,B:1.5):0.5,C:2);"
`
	out, err := execute(t, content, "score")
	require.NoError(t, err)
	assert.Contains(t, out, "newick:2\tcompatible=false")
	assert.Contains(t, out, "logLikelihood\t-Inf")
}

func TestRunCommand(t *testing.T) {
	t.Parallel()

	content := testConfig + `
output:
  trace: $DIR/trace.tsv
  summary: $DIR/summary.yaml
`
	dir := t.TempDir()
	content = strings.ReplaceAll(content, "$DIR", dir)

	_, err := execute(t, content, "run")
	require.NoError(t, err)

	trace, err := os.ReadFile(filepath.Join(dir, "trace.tsv"))
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(string(trace)), "\n"), 6)

	raw, err := os.ReadFile(filepath.Join(dir, "summary.yaml"))
	require.NoError(t, err)

	var sum struct {
		LogLikelihood float64 `yaml:"log_likelihood"`
		Tree          struct {
			Newick   string `yaml:"newick"`
			Branches []struct {
				Species []string `yaml:"species"`
			} `yaml:"branches"`
		} `yaml:"tree"`
	}
	require.NoError(t, yaml.Unmarshal(raw, &sum))
	assert.True(t, strings.HasSuffix(sum.Tree.Newick, ";"))
	assert.Len(t, sum.Tree.Branches, 5)
	assert.Less(t, sum.LogLikelihood, 0.)
}

func TestScoreCommand_ExponentialDemography(t *testing.T) {
	t.Parallel()

	linear, err := execute(t, testConfig, "score")
	require.NoError(t, err)
	exponential, err := execute(t, testConfig+"model:\n  demography: exponential\n", "score")
	require.NoError(t, err)

	last := func(out string) string {
		lines := strings.Split(strings.TrimSpace(out), "\n")
		return lines[len(lines)-1]
	}
	assert.True(t, strings.HasPrefix(last(exponential), "logLikelihood\t"))
	assert.NotContains(t, last(exponential), "Inf")
	assert.NotEqual(t, last(linear), last(exponential))
}

func TestRunCommand_AnalyticToStdout(t *testing.T) {
	t.Parallel()

	content := testConfig + `
model:
  kind: analytic
  components:
    - {weight: 1, alpha: 3, beta: 2}
start_tree:
  kind: uninformed
`
	out, err := execute(t, content, "run")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(out, "generation\tlogPrior\tlogLikelihood\tpopPriorScale\n"))
	assert.Contains(t, out, "log_likelihood:")
}

func TestCommandErrors(t *testing.T) {
	t.Parallel()

	_, err := execute(t, testConfig+"model:\n  kind: analytic\n", "score")
	require.Error(t, err, "analytic model needs components")

	_, err = execute(t, strings.Replace(testConfig, "b1:1.2", "z9:1.2", 1), "score")
	require.Error(t, err)
}

func TestVersionCommand(t *testing.T) {
	t.Parallel()

	out, err := execute(t, testConfig, "version")
	require.NoError(t, err)
	assert.Equal(t, "starcoal dev\n", out)
}
