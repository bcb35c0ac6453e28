package model_test

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLoadConfig(t *testing.T) {
	yml := `
version: 0
input:
  roots:
    - /data/analysis_by_run
    - /data/archive
  excluded_runs_list: /etc/qc/excluded.txt
state:
  path: /var/lib/qc/state.db
  backend: sqlite
output:
  path: /var/lib/qc/new_runs.json
collect:
  library_qc:
    enabled: true
    output_dir: /srv/qc
service:
  verbose: true
  schedule:
    every: 1h
`
	cfg, err := model.LoadConfig(strings.NewReader(yml))
	require.NoError(t, err)
	require.Equal(t, []string{"/data/analysis_by_run", "/data/archive"}, cfg.Input.Roots)
	require.Equal(t, model.DefaultCompletionMarker, cfg.Input.CompletionMarker)
	require.Equal(t, model.DefaultPatterns(), cfg.Input.Patterns)
	require.Equal(t, "/etc/qc/excluded.txt", cfg.Input.ExcludedRunsList)
	require.Equal(t, model.StateBackendSQLite, cfg.State.Backend)
	require.True(t, cfg.State.Lock)
	require.Equal(t, "/var/lib/qc/new_runs.json", cfg.Output.Path)
	require.Equal(t, 4, cfg.Collect.Parallelism)
	require.NotNil(t, cfg.Collect.LibraryQC)
	require.True(t, cfg.Collect.LibraryQC.Enabled)
	require.Equal(t, "/srv/qc", cfg.Collect.LibraryQC.OutputDir)
	require.True(t, cfg.Service.Verbose)
	require.Equal(t, model.LogStderr, cfg.Service.Log)
	require.NotNil(t, cfg.Service.Schedule)
	require.Equal(t, "1h", cfg.Service.Schedule.Every)
}

func TestLoadConfig_Defaults(t *testing.T) {
	// JSON is a subset of YAML, configs of the python collector keep working
	js := `{
  "version": 0,
  "input": {
    "roots": ["runs"],
    "completion_marker": "*/CopyComplete.txt",
    "patterns": [{"name": "custom", "regex": "RUN\\d{3}"}]
  },
  "state": {"path": "state.json", "lock": false},
  "output": {"path": "out.json"}
}`
	cfg, err := model.LoadConfig(strings.NewReader(js))
	require.NoError(t, err)

	cwd, err := os.Getwd()
	require.NoError(t, err)
	require.Equal(t, []string{filepath.Join(cwd, "runs")}, cfg.Input.Roots)
	require.Equal(t, "*/CopyComplete.txt", cfg.Input.CompletionMarker)
	require.Equal(t, []model.Pattern{{Name: "custom", Regex: `RUN\d{3}`}}, cfg.Input.Patterns)
	require.Equal(t, model.StateBackendJSON, cfg.State.Backend)
	require.False(t, cfg.State.Lock)
	require.Equal(t, filepath.Join(cwd, "state.json"), cfg.State.Path)
	require.Nil(t, cfg.Collect.LibraryQC)
	require.Nil(t, cfg.Service.Schedule)
	require.False(t, cfg.Service.Verbose)
}

func TestLoadConfig_Fail(t *testing.T) {
	var testCases = []struct {
		scenario string
		given    string
	}{
		{"no roots", `
version: 0
input:
  roots: []
state:
  path: state.json
output:
  path: out.json
`},
		{"missing state", `
version: 0
input:
  roots: [/data]
output:
  path: out.json
`},
		{"unknown backend", `
version: 0
input:
  roots: [/data]
state:
  path: state.json
  backend: redis
output:
  path: out.json
`},
		{"unknown field", `
version: 0
input:
  roots: [/data]
  recursive: true
state:
  path: state.json
output:
  path: out.json
`},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			_, err := model.LoadConfig(strings.NewReader(tt.given))
			require.Error(t, err)
			details := model.ConfigErrDetails(err)
			require.NotEmpty(t, details)
			for _, d := range details {
				require.NotEmpty(t, d.String())
			}
		})
	}
}

func TestLoadExcludedRuns(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "excluded.txt")
	content := "# runs with a broken flowcell\n240101_M00123_0001_000000000-ABCDE\n\n  240102_VH00123_1_AAAAAAAAA  \n"
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))

	excluded, err := model.LoadExcludedRuns(path)
	require.NoError(t, err)
	require.Len(t, excluded, 2)
	require.Contains(t, excluded, "240101_M00123_0001_000000000-ABCDE")
	require.Contains(t, excluded, "240102_VH00123_1_AAAAAAAAA")

	none, err := model.LoadExcludedRuns("")
	require.NoError(t, err)
	require.Empty(t, none)

	_, err = model.LoadExcludedRuns(filepath.Join(t.TempDir(), "missing.txt"))
	require.Error(t, err)
}

func TestCompletionState(t *testing.T) {
	t.Parallel()
	require.Equal(t, "complete", model.StateComplete.String())
	require.Equal(t, "incomplete", model.StateIncomplete.String())
	require.Equal(t, "invalid", model.StateInvalid.String())
	require.Equal(t, "excluded", model.StateExcluded.String())
	b, err := model.StateComplete.MarshalText()
	require.NoError(t, err)
	require.Equal(t, "complete", string(b))
}
