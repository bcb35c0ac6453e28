// Package state persists the set of run identifiers already reported.
//
// The set is monotonic: identifiers are only ever added. A Store loads the
// set at the start of an invocation and saves it atomically at the end, so a
// crash never leaves a half written artifact behind. Two backends exist:
// FileStore, a JSON document replaced by rename, and SQLStore, a sqlite
// database updated in a single transaction which also journals invocations.
package state

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"
)

// Version of the JSON state document.
const Version = 1

// Store loads and saves Known. Implementations must make Save atomic: after a
// failed Save, Load returns the previously saved value.
type Store interface {
	Load(ctx context.Context) (Known, error)
	Save(ctx context.Context, known Known) error
}

// Journal is implemented by stores which keep track of invocations.
type Journal interface {
	Start(ctx context.Context, uuid string) error
	FinishOK(ctx context.Context, uuid string, newRuns int) error
	FinishErr(ctx context.Context, uuid, reason string) error
}

// Known is the set of reported run identifiers. The zero value is an empty set.
// Known is treated as a value: Merge never modifies its argument.
type Known struct {
	ids map[string]struct{}
}

// NewKnown returns a set holding ids.
func NewKnown(ids ...string) Known {
	return Merge(Known{}, ids...)
}

// Merge returns a new set with union of k and ids.
func Merge(k Known, ids ...string) Known {
	merged := make(map[string]struct{}, len(k.ids)+len(ids))
	for id := range k.ids {
		merged[id] = struct{}{}
	}
	for _, id := range ids {
		merged[id] = struct{}{}
	}
	return Known{ids: merged}
}

func (k Known) Has(id string) bool {
	_, ok := k.ids[id]
	return ok
}

func (k Known) Len() int {
	return len(k.ids)
}

// IDs returns sorted identifiers.
func (k Known) IDs() []string {
	ids := make([]string, 0, len(k.ids))
	for id := range k.ids {
		ids = append(ids, id)
	}
	slices.Sort(ids)
	return ids
}

// Contains reports whether every identifier of other is in k.
func (k Known) Contains(other Known) bool {
	for id := range other.ids {
		if !k.Has(id) {
			return false
		}
	}
	return true
}

type document struct {
	Version        int      `json:"version"`
	ReportedRunIDs []string `json:"reported_run_ids"`
}

func (k Known) MarshalJSON() ([]byte, error) {
	return json.Marshal(document{
		Version:        Version,
		ReportedRunIDs: k.IDs(),
	})
}

func (k *Known) UnmarshalJSON(b []byte) error {
	var doc document
	dec := json.NewDecoder(bytes.NewReader(b))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&doc); err != nil {
		return err
	}
	if doc.Version != Version {
		return fmt.Errorf("unsupported state version %d, expected %d", doc.Version, Version)
	}
	if doc.ReportedRunIDs == nil {
		return fmt.Errorf("reported_run_ids is missing")
	}
	*k = NewKnown(doc.ReportedRunIDs...)
	return nil
}
