package state_test

import (
	"encoding/json"
	"testing"

	"github.com/BCCDC-PHL/qc-collector/internal/state"
	"github.com/stretchr/testify/require"
)

func TestMerge(t *testing.T) {
	t.Parallel()
	prior := state.NewKnown("RUN001")
	merged := state.Merge(prior, "RUN003", "RUN001")

	require.Equal(t, []string{"RUN001"}, prior.IDs(), "Merge must not modify its argument")
	require.Equal(t, []string{"RUN001", "RUN003"}, merged.IDs())
	require.True(t, merged.Contains(prior))
	require.False(t, prior.Contains(merged))
	require.True(t, merged.Has("RUN003"))
	require.Equal(t, 2, merged.Len())

	var zero state.Known
	require.Equal(t, 0, zero.Len())
	require.False(t, zero.Has("RUN001"))
	require.Empty(t, zero.IDs())
	require.Equal(t, []string{"RUN002"}, state.Merge(zero, "RUN002").IDs())
}

func TestMerge_Monotonic(t *testing.T) {
	t.Parallel()
	batches := [][]string{
		{"RUN003", "RUN001"},
		{},
		{"RUN001"},
		{"RUN002", "RUN004"},
	}
	k := state.NewKnown()
	for _, batch := range batches {
		next := state.Merge(k, batch...)
		require.True(t, next.Contains(k))
		k = next
	}
	require.Equal(t, []string{"RUN001", "RUN002", "RUN003", "RUN004"}, k.IDs())
}

func TestKnownJSON(t *testing.T) {
	t.Parallel()
	b, err := json.Marshal(state.NewKnown("RUN002", "RUN001"))
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1,"reported_run_ids":["RUN001","RUN002"]}`, string(b))

	b, err = json.Marshal(state.NewKnown())
	require.NoError(t, err)
	require.JSONEq(t, `{"version":1,"reported_run_ids":[]}`, string(b))

	var k state.Known
	require.NoError(t, json.Unmarshal([]byte(`{"version":1,"reported_run_ids":["RUN009"]}`), &k))
	require.Equal(t, []string{"RUN009"}, k.IDs())

	for _, bad := range []string{
		`{"version":2,"reported_run_ids":[]}`,
		`{"version":1}`,
		`{"version":1,"reported_run_ids":[],"extra":true}`,
		`null`,
		`[]`,
	} {
		require.Error(t, json.Unmarshal([]byte(bad), &k), bad)
	}
}
