package libraryqc_test

import (
	"bytes"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"testing/fstest"

	"github.com/BCCDC-PHL/qc-collector/internal/collect/libraryqc"
	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/stretchr/testify/require"
)

func TestLibraries(t *testing.T) {
	t.Parallel()
	fsys := fstest.MapFS{
		"LIB-01/LIB-01_fastp.csv":  {Data: []byte(fastpCSV)},
		"LIB-01/LIB-01_quast.csv":  {Data: []byte(quastCSV)},
		"LIB-01/other.csv":         {Data: []byte("ignored")},
		"nested/x/LIB-9_fastp.csv": {Data: []byte("too deep")},
	}
	libs, err := libraryqc.Libraries(t.Context(), fsys)
	require.NoError(t, err)

	i := func(v int64) *int64 { return &v }
	require.Equal(t, []libraryqc.LibraryQC{
		{LibraryID: "LIB-01", NumBases: i(180000), AssemblyLength: i(5012345), AssemblyNumContigs: i(87), AssemblyN50: i(140000)},
		{LibraryID: "LIB-02"},
	}, libs)

	t.Run("no summaries", func(t *testing.T) {
		libs, err := libraryqc.Libraries(t.Context(), fstest.MapFS{})
		require.NoError(t, err)
		require.NotNil(t, libs)
		require.Empty(t, libs)
	})

	t.Run("broken summary", func(t *testing.T) {
		_, err := libraryqc.Libraries(t.Context(), fstest.MapFS{
			"a/a_fastp.csv": {Data: []byte("total_reads\n1\n")},
		})
		require.ErrorContains(t, err, "a/a_fastp.csv")
	})
}

func TestCollector(t *testing.T) {
	t.Parallel()
	runDir := filepath.Join(t.TempDir(), "RUN001")
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "LIB-01"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "LIB-01", "LIB-01_fastp.csv"), []byte(fastpCSV), 0o644))
	run := model.RunDirectory{ID: "RUN001", Path: runDir, State: model.StateComplete}

	outDir := t.TempDir()
	var buf bytes.Buffer
	c := libraryqc.New(outDir, log.New(&buf, true))
	require.Equal(t, libraryqc.Name, c.Name())

	require.NoError(t, c.Collect(t.Context(), run))
	dst := filepath.Join(outDir, "library-qc", "RUN001_library_qc.json")
	require.Equal(t, dst, c.Path("RUN001"))

	b, err := os.ReadFile(dst)
	require.NoError(t, err)
	var got []map[string]any
	require.NoError(t, json.Unmarshal(b, &got))
	require.Equal(t, []map[string]any{
		{"library_id": "LIB-01", "num_bases": float64(180000)},
		{"library_id": "LIB-02", "num_bases": nil},
	}, got)
	require.Contains(t, buf.String(), `"event_type":"write_library_qc_complete"`)
	require.Contains(t, buf.String(), `"event_type":"collect_outputs_complete"`)

	t.Run("existing document is kept", func(t *testing.T) {
		require.NoError(t, os.WriteFile(dst, []byte("[]\n"), 0o644))
		require.NoError(t, c.Collect(t.Context(), run))
		b, err := os.ReadFile(dst)
		require.NoError(t, err)
		require.Equal(t, "[]\n", string(b))
		require.Contains(t, buf.String(), `"event_type":"write_library_qc_skipped"`)
	})
}

func TestCollector_Fail(t *testing.T) {
	t.Parallel()
	runDir := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(runDir, "LIB"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(runDir, "LIB", "LIB_quast.csv"), []byte("broken\n"), 0o644))

	outDir := t.TempDir()
	c := libraryqc.New(outDir, nil)
	err := c.Collect(t.Context(), model.RunDirectory{ID: "RUN002", Path: runDir})
	require.Error(t, err)
	require.NoFileExists(t, c.Path("RUN002"))
}
