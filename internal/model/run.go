package model

import (
	"fmt"
	"time"
)

// CompletionState is the result of classifying a candidate run directory.
type CompletionState int

const (
	StateInvalid CompletionState = iota
	StateIncomplete
	StateComplete
	StateExcluded // well-formed, but listed in the excluded runs list
)

func (s CompletionState) String() string {
	switch s {
	case StateInvalid:
		return "invalid"
	case StateIncomplete:
		return "incomplete"
	case StateComplete:
		return "complete"
	case StateExcluded:
		return "excluded"
	default:
		return fmt.Sprintf("CompletionState(%d)", int(s))
	}
}

func (s CompletionState) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

// RunDirectory is one sequencing run found on disk. It is discovered fresh on
// every scan and never persisted; only its ID ends up in the known runs state.
type RunDirectory struct {
	ID         string          `json:"run_id"`
	Path       string          `json:"path"`
	Instrument string          `json:"sequencer_type,omitempty"`
	State      CompletionState `json:"-"`
}

// InvocationOutput enumerates the runs reported for the first time by one invocation.
type InvocationOutput struct {
	InvocationID string         `json:"invocation_id"`
	GeneratedAt  time.Time      `json:"generated_at"`
	NewRuns      []RunDirectory `json:"new_runs"`
	Deferred     []string       `json:"deferred_run_ids"`
}

// IDs returns identifiers of NewRuns in order.
func (o InvocationOutput) IDs() []string {
	ids := make([]string, 0, len(o.NewRuns))
	for _, r := range o.NewRuns {
		ids = append(ids, r.ID)
	}
	return ids
}
