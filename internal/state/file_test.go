package state_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/state"
	"github.com/stretchr/testify/require"
)

func TestFileStore(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "var", "state.json")
	s := state.NewFileStore(path)

	t.Run("bootstrap", func(t *testing.T) {
		k, err := s.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, 0, k.Len())
	})

	t.Run("round trip", func(t *testing.T) {
		require.NoError(t, s.Save(t.Context(), state.NewKnown("RUN003", "RUN001")))
		k, err := s.Load(t.Context())
		require.NoError(t, err)
		require.Equal(t, []string{"RUN001", "RUN003"}, k.IDs())

		b, err := os.ReadFile(path)
		require.NoError(t, err)
		require.JSONEq(t, `{"version":1,"reported_run_ids":["RUN001","RUN003"]}`, string(b))
	})
}

func TestFileStore_Corrupt(t *testing.T) {
	t.Parallel()
	var testCases = []struct {
		scenario string
		given    string
	}{
		{"empty", ""},
		{"truncated", `{"version":1,"reported_run_ids":["RUN0`},
		{"trailing", `{"version":1,"reported_run_ids":[]} {}`},
		{"wrong version", `{"version":7,"reported_run_ids":[]}`},
	}
	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			path := filepath.Join(t.TempDir(), "state.json")
			require.NoError(t, os.WriteFile(path, []byte(tt.given), 0o644))
			_, err := state.NewFileStore(path).Load(t.Context())
			require.ErrorIs(t, err, model.ErrCorruptState)
		})
	}

	t.Run("directory", func(t *testing.T) {
		t.Parallel()
		_, err := state.NewFileStore(t.TempDir()).Load(t.Context())
		require.ErrorIs(t, err, model.ErrCorruptState)
	})
}

func TestFileStore_SaveFailure(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()
	// the parent of the state "directory" is a regular file
	blocker := filepath.Join(dir, "blocker")
	require.NoError(t, os.WriteFile(blocker, nil, 0o644))

	s := state.NewFileStore(filepath.Join(blocker, "state.json"))
	err := s.Save(t.Context(), state.NewKnown("RUN001"))
	require.ErrorIs(t, err, model.ErrStatePersistence)
}

func TestOpen(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	s, err := state.Open(t.Context(), model.State{Path: filepath.Join(dir, "state.json"), Backend: model.StateBackendJSON})
	require.NoError(t, err)
	require.IsType(t, &state.FileStore{}, s)

	s, err = state.Open(t.Context(), model.State{Path: filepath.Join(dir, "state.db"), Backend: model.StateBackendSQLite})
	require.NoError(t, err)
	require.IsType(t, &state.SQLStore{}, s)
	require.NoError(t, s.(*state.SQLStore).Close())

	_, err = state.Open(t.Context(), model.State{Path: filepath.Join(dir, "x"), Backend: "redis"})
	require.Error(t, err)
}
