// Package report computes which discovered runs are new to the known runs
// state and publishes the per invocation output artifact.
package report

import (
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/state"
)

// Report returns runs of discovered not present in prior, in the order of
// discovered, and prior merged with their identifiers. Neither argument is
// modified. A run listed twice in discovered is reported once.
func Report(discovered []model.RunDirectory, prior state.Known) (model.InvocationOutput, state.Known) {
	out := model.InvocationOutput{
		NewRuns:  []model.RunDirectory{},
		Deferred: []string{},
	}
	seen := make(map[string]struct{}, len(discovered))
	for _, run := range discovered {
		if run.State != model.StateComplete || prior.Has(run.ID) {
			continue
		}
		if _, ok := seen[run.ID]; ok {
			continue
		}
		seen[run.ID] = struct{}{}
		out.NewRuns = append(out.NewRuns, run)
	}
	return out, state.Merge(prior, out.IDs()...)
}
