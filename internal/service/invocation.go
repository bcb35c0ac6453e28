package service

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"time"

	"github.com/google/uuid"

	"github.com/BCCDC-PHL/qc-collector/internal/classify"
	"github.com/BCCDC-PHL/qc-collector/internal/collect"
	"github.com/BCCDC-PHL/qc-collector/internal/collect/libraryqc"
	"github.com/BCCDC-PHL/qc-collector/internal/discover"
	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/report"
	"github.com/BCCDC-PHL/qc-collector/internal/state"
)

// Invocation is a configured pipeline. Do may be called repeatedly, but
// never concurrently.
type Invocation struct {
	cfg        model.Config
	logger     *slog.Logger
	scanner    *discover.Scanner
	store      state.Store
	journal    state.Journal
	publisher  *report.Publisher
	pipeline   collect.Pipeline
	collectors []collect.Collector
	now        func() time.Time
	newID      func() string
}

type Option func(*Invocation)

func WithLogger(logger *slog.Logger) Option {
	return func(i *Invocation) {
		i.logger = logger
	}
}

// WithStore replaces the store configured by state.backend.
func WithStore(store state.Store) Option {
	return func(i *Invocation) {
		i.store = store
	}
}

// WithCollectors adds collectors run after the configured ones.
func WithCollectors(collectors ...collect.Collector) Option {
	return func(i *Invocation) {
		i.collectors = append(i.collectors, collectors...)
	}
}

// WithClock sets the source of the output generated_at timestamp.
func WithClock(now func() time.Time) Option {
	return func(i *Invocation) {
		i.now = now
	}
}

func NewInvocation(ctx context.Context, cfg model.Config, opts ...Option) (*Invocation, error) {
	if cfg.Version != 0 {
		return nil, fmt.Errorf("config version %d is not supported, expected 0", cfg.Version)
	}
	inv := &Invocation{
		cfg:    cfg,
		logger: slog.Default(),
		now:    time.Now,
		newID:  uuid.NewString,
	}
	for _, opt := range opts {
		opt(inv)
	}

	classifier, err := classify.FromConfig(cfg.Input)
	if err != nil {
		return nil, fmt.Errorf("initializing classifier: %w", err)
	}
	inv.scanner = discover.NewScanner(classifier, inv.logger)

	if inv.store == nil {
		inv.store, err = state.Open(ctx, cfg.State)
		if err != nil {
			return nil, fmt.Errorf("opening state: %w", err)
		}
	}
	inv.journal, _ = inv.store.(state.Journal)

	inv.publisher, err = report.NewPublisher(cfg.Output.Path, inv.store, inv.logger)
	if err != nil {
		inv.close(ctx)
		return nil, fmt.Errorf("initializing publisher: %w", err)
	}

	var collectors []collect.Collector
	if qc := cfg.Collect.LibraryQC; qc != nil && qc.Enabled {
		collectors = append(collectors, libraryqc.New(qc.OutputDir, inv.logger))
	}
	collectors = append(collectors, inv.collectors...)
	inv.pipeline = collect.NewPipeline(inv.logger, cfg.Collect.Parallelism, collectors...)
	return inv, nil
}

// Close releases the store.
func (i *Invocation) Close() error {
	if c, ok := i.store.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

func (i *Invocation) close(ctx context.Context) {
	if err := i.Close(); err != nil {
		slog.ErrorContext(ctx, "closing state store failed", "error", err)
	}
}

// Do runs one invocation. On any error nothing is reported and the known
// runs state is the one saved by the last successful invocation.
func (i *Invocation) Do(ctx context.Context) (model.InvocationOutput, error) {
	id := i.newID()
	ctx = log.ContextAttrs(ctx, slog.String("invocation_id", id))
	start := time.Now()
	log.Event(ctx, i.logger, slog.LevelInfo, "invocation_start",
		"roots", i.cfg.Input.Roots,
		"state_path", i.cfg.State.Path,
		"output_path", i.cfg.Output.Path,
	)

	if i.cfg.State.Lock {
		lock, err := state.Lock(i.cfg.State.Path)
		if err != nil {
			i.failed(ctx, id, err)
			return model.InvocationOutput{}, err
		}
		defer func() {
			if uerr := lock.Unlock(); uerr != nil {
				slog.WarnContext(ctx, "releasing state lock failed", "error", uerr)
			}
		}()
	}

	if i.journal != nil {
		if jerr := i.journal.Start(ctx, id); jerr != nil {
			slog.WarnContext(ctx, "journal start failed", "error", jerr)
		}
	}

	out, known, err := i.do(ctx, id)
	if err != nil {
		i.failed(ctx, id, err)
		return model.InvocationOutput{}, err
	}

	if i.journal != nil {
		if jerr := i.journal.FinishOK(ctx, id, len(out.NewRuns)); jerr != nil {
			slog.WarnContext(ctx, "journal finish failed", "error", jerr)
		}
	}
	log.Event(ctx, i.logger, slog.LevelInfo, "invocation_complete",
		"new_runs", len(out.NewRuns),
		"deferred_runs", len(out.Deferred),
		"known_runs", known,
		"duration", time.Since(start).String(),
	)
	return out, nil
}

func (i *Invocation) do(ctx context.Context, id string) (model.InvocationOutput, int, error) {
	prior, err := i.store.Load(ctx)
	if err != nil {
		return model.InvocationOutput{}, 0, err
	}

	discovered, err := i.scanner.Scan(ctx, i.cfg.Input.Roots)
	if err != nil {
		return model.InvocationOutput{}, 0, err
	}

	out, updated := report.Report(discovered, prior)
	if i.pipeline.Len() > 0 && len(out.NewRuns) > 0 {
		collected, deferred := i.pipeline.Run(ctx, out.NewRuns)
		if err := ctx.Err(); err != nil {
			return model.InvocationOutput{}, 0, err
		}
		if len(deferred) > 0 {
			out, updated = report.Report(collected, prior)
			out.Deferred = deferred
		}
	}

	out.InvocationID = id
	out.GeneratedAt = i.now().UTC()
	if err := i.publisher.Publish(ctx, out, prior, updated); err != nil {
		return model.InvocationOutput{}, 0, err
	}
	return out, updated.Len(), nil
}

func (i *Invocation) failed(ctx context.Context, id string, err error) {
	args := []any{
		"error", err,
		"reason", reason(err),
	}
	var unpublished *model.UnpublishedRunsError
	if errors.As(err, &unpublished) {
		args = append(args, "unpublished_run_ids", unpublished.RunIDs)
	}
	log.Event(ctx, i.logger, slog.LevelError, "invocation_failed", args...)
	if i.journal == nil {
		return
	}
	// journal the failure even when ctx was canceled
	if jerr := i.journal.FinishErr(context.WithoutCancel(ctx), id, err.Error()); jerr != nil {
		slog.WarnContext(ctx, "journal finish failed", "error", jerr)
	}
}

var reasons = []error{
	model.ErrConcurrentInvocation,
	model.ErrAllRootsUnavailable,
	model.ErrCorruptState,
	model.ErrStatePersistence,
	model.ErrOutputPublish,
	context.Canceled,
	context.DeadlineExceeded,
}

// reason classifies err into a short stable string for log queries
func reason(err error) string {
	for _, r := range reasons {
		if errors.Is(err, r) {
			return r.Error()
		}
	}
	return "unknown"
}
