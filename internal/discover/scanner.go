package discover

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/walk"
)

// Classifier decides about a single candidate directory.
type Classifier interface {
	Classify(ctx context.Context, entry walk.Entry) (model.RunDirectory, error)
}

// Scanner finds complete run directories under the configured roots.
type Scanner struct {
	classifier Classifier
	logger     *slog.Logger
	open       func(name string) walk.Root
}

func NewScanner(classifier Classifier, logger *slog.Logger) *Scanner {
	if logger == nil {
		logger = slog.Default()
	}
	return &Scanner{
		classifier: classifier,
		logger:     logger,
		open:       walk.OSRoot,
	}
}

// WithRootOpener replaces how root paths are turned into walk.Root. This
// method exists for a unit testing only.
func (s *Scanner) WithRootOpener(open func(name string) walk.Root) *Scanner {
	s.open = open
	return s
}

// Scan returns complete runs in discovery order: roots in the given order and
// directories in lexical order inside each root. When the same identifier is
// found under more roots, the first one wins.
//
// Roots which can't be listed are skipped; model.ErrAllRootsUnavailable is
// returned only when no root could be listed. Every other problem is local
// to one directory and is only logged.
func (s *Scanner) Scan(ctx context.Context, roots []string) ([]model.RunDirectory, error) {
	log.Event(ctx, s.logger, slog.LevelInfo, "find_runs_start", "roots", roots)

	walkRoots := make([]walk.Root, 0, len(roots))
	for _, r := range roots {
		walkRoots = append(walkRoots, s.open(r))
	}

	var (
		runs     = make([]model.RunDirectory, 0)
		seen     = make(map[string]string)
		rootErrs []error
		counts   = make(map[model.CompletionState]int)
	)

	for entry, err := range walk.Dirs(ctx, walkRoots...) {
		var rootErr *walk.RootError
		if errors.As(err, &rootErr) {
			log.Event(ctx, s.logger, slog.LevelWarn, "root_unavailable",
				"root", rootErr.Root,
				"error", rootErr.Err,
			)
			rootErrs = append(rootErrs, err)
			continue
		}

		var run model.RunDirectory
		if err == nil {
			run, err = s.classifier.Classify(ctx, entry)
		} else {
			run = model.RunDirectory{ID: entry.Name(), Path: entry.Path(), State: model.StateInvalid}
		}
		counts[run.State]++

		switch run.State {
		case model.StateComplete:
		case model.StateInvalid:
			log.Event(ctx, s.logger, slog.LevelWarn, "directory_invalid",
				"analysis_directory_path", run.Path,
				"error", err,
			)
			continue
		default:
			log.Event(ctx, s.logger, slog.LevelDebug, "directory_skipped",
				"analysis_directory_path", run.Path,
				"sequencing_run_id", run.ID,
				"state", run.State,
			)
			continue
		}

		if first, ok := seen[run.ID]; ok {
			log.Event(ctx, s.logger, slog.LevelWarn, "run_conflict",
				"sequencing_run_id", run.ID,
				"analysis_directory_path", run.Path,
				"first_path", first,
			)
			continue
		}
		seen[run.ID] = run.Path

		log.Event(ctx, s.logger, slog.LevelInfo, "analysis_directory_found",
			"sequencing_run_id", run.ID,
			"sequencer_type", run.Instrument,
			"analysis_directory_path", run.Path,
		)
		runs = append(runs, run)
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if len(roots) == 0 {
		return nil, fmt.Errorf("%w: no roots configured", model.ErrAllRootsUnavailable)
	}
	if len(rootErrs) == len(roots) {
		return nil, fmt.Errorf("%w: %w", model.ErrAllRootsUnavailable, errors.Join(rootErrs...))
	}

	log.Event(ctx, s.logger, slog.LevelInfo, "find_runs_complete",
		"complete", len(runs),
		"incomplete", counts[model.StateIncomplete],
		"invalid", counts[model.StateInvalid],
		"excluded", counts[model.StateExcluded],
		"roots_unavailable", len(rootErrs),
	)
	return runs, nil
}
