package report_test

import (
	"testing"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/report"
	"github.com/BCCDC-PHL/qc-collector/internal/state"
	"github.com/stretchr/testify/require"
)

func complete(id string) model.RunDirectory {
	return model.RunDirectory{ID: id, Path: "/data/" + id, Instrument: "miseq", State: model.StateComplete}
}

func TestReport(t *testing.T) {
	t.Parallel()
	type given struct {
		discovered []model.RunDirectory
		prior      state.Known
	}
	type then struct {
		newRuns []string
		updated []string
	}
	var testCases = []struct {
		scenario string
		given    given
		then     then
	}{
		{
			scenario: "first invocation",
			given:    given{[]model.RunDirectory{complete("RUN001"), complete("RUN003")}, state.NewKnown()},
			then:     then{[]string{"RUN001", "RUN003"}, []string{"RUN001", "RUN003"}},
		},
		{
			scenario: "one new run",
			given:    given{[]model.RunDirectory{complete("RUN001"), complete("RUN002"), complete("RUN003")}, state.NewKnown("RUN001", "RUN003")},
			then:     then{[]string{"RUN002"}, []string{"RUN001", "RUN002", "RUN003"}},
		},
		{
			scenario: "nothing discovered",
			given:    given{nil, state.NewKnown("RUN001")},
			then:     then{[]string{}, []string{"RUN001"}},
		},
		{
			scenario: "known run vanished from disk",
			given:    given{[]model.RunDirectory{complete("RUN002")}, state.NewKnown("RUN001")},
			then:     then{[]string{"RUN002"}, []string{"RUN001", "RUN002"}},
		},
		{
			scenario: "discovery order is kept",
			given:    given{[]model.RunDirectory{complete("RUN009"), complete("RUN001"), complete("RUN009")}, state.Known{}},
			then:     then{[]string{"RUN009", "RUN001"}, []string{"RUN001", "RUN009"}},
		},
		{
			scenario: "incomplete runs are ignored",
			given: given{[]model.RunDirectory{
				{ID: "RUN001", State: model.StateIncomplete},
				{ID: "RUN002", State: model.StateInvalid},
				{ID: "RUN003", State: model.StateExcluded},
			}, state.Known{}},
			then: then{[]string{}, []string{}},
		},
	}

	for _, tt := range testCases {
		t.Run(tt.scenario, func(t *testing.T) {
			t.Parallel()
			priorIDs := tt.given.prior.IDs()
			out, updated := report.Report(tt.given.discovered, tt.given.prior)
			require.Equal(t, tt.then.newRuns, out.IDs())
			require.NotNil(t, out.NewRuns)
			require.NotNil(t, out.Deferred)
			require.Equal(t, tt.then.updated, updated.IDs())
			require.True(t, updated.Contains(tt.given.prior))
			require.Equal(t, priorIDs, tt.given.prior.IDs(), "prior is not modified")
		})
	}
}

func TestReport_Idempotent(t *testing.T) {
	t.Parallel()
	discovered := []model.RunDirectory{complete("RUN001"), complete("RUN003")}

	out, updated := report.Report(discovered, state.NewKnown())
	require.Len(t, out.NewRuns, 2)

	again, updatedAgain := report.Report(discovered, updated)
	require.Empty(t, again.NewRuns)
	require.Equal(t, updated.IDs(), updatedAgain.IDs())
}
