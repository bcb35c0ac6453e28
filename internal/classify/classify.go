// Package classify decides whether a candidate directory is a finished
// sequencing run.
//
// A directory is classified in this order:
//   - its name must start with a match of one of the configured run
//     identifier patterns, otherwise it is invalid (model.ErrMalformedRunName)
//   - a well-formed name listed in the excluded runs is excluded
//   - the directory must be stat-able and listable, otherwise it is invalid
//   - the completion marker glob must match at least one file, otherwise
//     the run is incomplete and is re-evaluated on the next scan
//
// Classification only reads the filesystem.
package classify

import (
	"context"
	"errors"
	"fmt"
	"path"
	"path/filepath"
	"regexp"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/walk"
)

type pattern struct {
	name string
	rx   *regexp.Regexp
}

// Classifier is safe for concurrent use once created.
type Classifier struct {
	patterns []pattern
	marker   string
	excluded map[string]struct{}
}

// New compiles the run identifier patterns. Patterns are anchored at the
// start of the directory name only.
func New(patterns []model.Pattern, marker string, excluded map[string]struct{}) (*Classifier, error) {
	if len(patterns) == 0 {
		return nil, errors.New("no run identifier patterns")
	}
	if marker == "" {
		return nil, errors.New("empty completion marker")
	}
	if _, err := path.Match(marker, ""); err != nil {
		return nil, fmt.Errorf("completion marker %q: %w", marker, err)
	}

	compiled := make([]pattern, 0, len(patterns))
	for _, p := range patterns {
		rx, err := regexp.Compile(`^(?:` + p.Regex + `)`)
		if err != nil {
			return nil, fmt.Errorf("compiling pattern %s: %w", p.Name, err)
		}
		compiled = append(compiled, pattern{name: p.Name, rx: rx})
	}
	if excluded == nil {
		excluded = map[string]struct{}{}
	}
	return &Classifier{
		patterns: compiled,
		marker:   marker,
		excluded: excluded,
	}, nil
}

// FromConfig creates a Classifier from the input section of the configuration.
func FromConfig(cfg model.Input) (*Classifier, error) {
	excluded, err := model.LoadExcludedRuns(cfg.ExcludedRunsList)
	if err != nil {
		return nil, err
	}
	patterns := cfg.Patterns
	if len(patterns) == 0 {
		patterns = model.DefaultPatterns()
	}
	marker := cfg.CompletionMarker
	if marker == "" {
		marker = model.DefaultCompletionMarker
	}
	return New(patterns, marker, excluded)
}

// Classify returns the run directory and its completion state. The error is
// non-nil only for model.StateInvalid and explains why.
func (c *Classifier) Classify(ctx context.Context, entry walk.Entry) (model.RunDirectory, error) {
	run := model.RunDirectory{
		ID:    entry.Name(),
		Path:  entry.Path(),
		State: model.StateInvalid,
	}
	if err := ctx.Err(); err != nil {
		return run, err
	}

	run.Instrument = c.instrument(run.ID)
	if run.Instrument == "" {
		return run, fmt.Errorf("%q: %w", run.ID, model.ErrMalformedRunName)
	}

	if _, ok := c.excluded[run.ID]; ok {
		run.State = model.StateExcluded
		return run, nil
	}

	info, err := entry.Stat()
	if err != nil {
		return run, fmt.Errorf("stat run directory: %w", err)
	}
	if !info.IsDir() {
		return run, fmt.Errorf("%s is not a directory", run.Path)
	}
	// fs.Glob swallows I/O errors, so an unreadable directory has to be
	// detected before it would look incomplete
	if _, err := entry.ReadDir(); err != nil {
		return run, fmt.Errorf("listing run directory: %w", err)
	}

	matches, err := entry.Glob(c.marker)
	if err != nil {
		return run, fmt.Errorf("matching completion marker: %w", err)
	}
	if len(matches) == 0 {
		run.State = model.StateIncomplete
		return run, nil
	}
	run.State = model.StateComplete
	return run, nil
}

// ClassifyPath classifies a single directory given by its path.
func (c *Classifier) ClassifyPath(ctx context.Context, p string) (model.RunDirectory, error) {
	entry, err := walk.Open(p)
	if err != nil {
		return model.RunDirectory{ID: filepath.Base(p), Path: p, State: model.StateInvalid}, err
	}
	return c.Classify(ctx, entry)
}

func (c *Classifier) instrument(name string) string {
	for _, p := range c.patterns {
		if p.rx.MatchString(name) {
			return p.name
		}
	}
	return ""
}
