package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/BCCDC-PHL/qc-collector/internal/durable"
	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/state"
)

// Publisher persists the updated state and makes the output artifact visible.
//
// The artifact is staged first, then the state is saved and only then the
// staged artifact replaces output.path. When either of the last two steps
// fails, prior is saved back so the runs are reported again by the next
// invocation. A failed Save may already have replaced the state.
type Publisher struct {
	path      string
	store     state.Store
	validator Validator
	logger    *slog.Logger
}

func NewPublisher(path string, store state.Store, logger *slog.Logger) (*Publisher, error) {
	validator, err := NewValidator()
	if err != nil {
		return nil, err
	}
	return &Publisher{
		path:      path,
		store:     store,
		validator: validator,
		logger:    logger,
	}, nil
}

func (p *Publisher) Publish(ctx context.Context, out model.InvocationOutput, prior, updated state.Known) error {
	if !updated.Contains(prior) {
		return fmt.Errorf("%w: updated state drops known runs", model.ErrStatePersistence)
	}

	b, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		return fmt.Errorf("%w: encoding: %w", model.ErrOutputPublish, err)
	}
	b = append(b, '\n')
	if err := p.validator.ValidateBytes(b); err != nil {
		return fmt.Errorf("%w: %w", model.ErrOutputPublish, err)
	}

	staged, err := durable.Stage(p.path, b, 0o644)
	if err != nil {
		return fmt.Errorf("%w: %w", model.ErrOutputPublish, err)
	}

	if err := p.store.Save(ctx, updated); err != nil {
		if derr := staged.Discard(); derr != nil {
			err = errors.Join(err, derr)
		}
		// a store that failed before replacing the state still holds prior
		return p.restore(ctx, err, out, prior, errors.Is(err, durable.ErrNotSynced))
	}
	log.Event(ctx, p.logger, slog.LevelDebug, "state_saved",
		"known_runs", updated.Len(),
	)

	if err := staged.Commit(); err != nil {
		return p.restore(ctx, fmt.Errorf("%w: %w", model.ErrOutputPublish, err), out, prior, true)
	}
	log.Event(ctx, p.logger, slog.LevelInfo, "output_published",
		"path", p.path,
		"new_runs", len(out.NewRuns),
		"deferred_runs", len(out.Deferred),
	)
	return nil
}

// restore saves prior back after a failed publish and returns err. When that
// fails too and the state may hold the updated set, the error names the runs
// which may be lost.
func (p *Publisher) restore(ctx context.Context, err error, out model.InvocationOutput, prior state.Known, replaced bool) error {
	// restore even when ctx is already canceled
	serr := p.store.Save(context.WithoutCancel(ctx), prior)
	switch {
	case serr == nil, errors.Is(serr, durable.ErrNotSynced):
	case !replaced:
		return errors.Join(err, fmt.Errorf("restoring prior state: %w", serr))
	default:
		return &model.UnpublishedRunsError{
			RunIDs: out.IDs(),
			Err:    errors.Join(err, fmt.Errorf("restoring prior state: %w", serr)),
		}
	}
	log.Event(ctx, p.logger, slog.LevelWarn, "state_restored",
		"known_runs", prior.Len(),
	)
	return err
}
