package log_test

import (
	"bytes"
	"encoding/json"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/stretchr/testify/require"
)

func TestEvent(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.New(&buf, false)

	ctx := log.ContextAttrs(t.Context(), slog.String("invocation_id", "abc"))
	log.Event(ctx, logger, slog.LevelInfo, "find_runs_complete", "runs", 3)
	log.Event(ctx, logger, slog.LevelDebug, "directory_skipped", "run_id", "x")

	lines := bytes.Split(bytes.TrimSpace(buf.Bytes()), []byte("\n"))
	require.Len(t, lines, 1, "debug events are filtered out without verbose")

	var got map[string]any
	require.NoError(t, json.Unmarshal(lines[0], &got))
	require.Equal(t, "find_runs_complete", got["msg"])
	require.Equal(t, "find_runs_complete", got[log.EventKey])
	require.Equal(t, float64(3), got["runs"])
	require.Equal(t, "abc", got["invocation_id"])
}

func TestContextAttrs_NoAliasing(t *testing.T) {
	t.Parallel()
	var buf bytes.Buffer
	logger := log.New(&buf, true)

	base := log.ContextAttrs(t.Context(), slog.String("cmd", "run"))
	a := log.ContextAttrs(base, slog.String("root", "A"))
	_ = log.ContextAttrs(base, slog.String("root", "B"))

	logger.InfoContext(a, "x")
	var got map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &got))
	require.Equal(t, "A", got["root"])
	require.Equal(t, "run", got["cmd"])
}

func TestOpen(t *testing.T) {
	t.Parallel()
	for _, dest := range []string{"", "stderr", "stdout", "discard"} {
		w, c, err := log.Open(dest)
		require.NoError(t, err)
		require.NotNil(t, w)
		require.NoError(t, c.Close())
	}

	path := filepath.Join(t.TempDir(), "qc.log")
	w, c, err := log.Open(path)
	require.NoError(t, err)
	_, err = io.WriteString(w, "line\n")
	require.NoError(t, err)
	require.NoError(t, c.Close())
	b, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Equal(t, "line\n", string(b))
}
