// Package collect runs downstream QC collectors for newly reported runs.
package collect

import (
	"context"
	"errors"
	"log/slog"

	"github.com/BCCDC-PHL/qc-collector/internal/log"
	"github.com/BCCDC-PHL/qc-collector/internal/model"
	"github.com/BCCDC-PHL/qc-collector/internal/parallel"
)

// Collector gathers QC artifacts of a single run. Collect must be safe for
// concurrent use on different runs.
type Collector interface {
	Name() string
	Collect(ctx context.Context, run model.RunDirectory) error
}

// Pipeline applies collectors to runs with bounded parallelism.
type Pipeline struct {
	limit      int
	collectors []Collector
	logger     *slog.Logger
}

func NewPipeline(logger *slog.Logger, limit int, collectors ...Collector) Pipeline {
	return Pipeline{
		limit:      limit,
		collectors: collectors,
		logger:     logger,
	}
}

// Len returns the number of collectors.
func (p Pipeline) Len() int {
	return len(p.collectors)
}

// Run passes every run to the collectors in their order. collected keeps
// the order of runs. A run is deferred when any collector fails on it; the
// remaining collectors are not called for that run.
func (p Pipeline) Run(ctx context.Context, runs []model.RunDirectory) (collected []model.RunDirectory, deferred []string) {
	collected = make([]model.RunDirectory, 0, len(runs))
	deferred = []string{}
	if len(p.collectors) == 0 {
		return append(collected, runs...), deferred
	}

	results := parallel.Map(ctx, p.limit, runs, p.collect)
	for i, r := range results {
		run := runs[i]
		if r.Err != nil {
			log.Event(ctx, p.logger, slog.LevelWarn, "collect_failed",
				"run_id", run.ID,
				"collector", r.Value,
				"error", r.Err,
			)
			deferred = append(deferred, run.ID)
			continue
		}
		collected = append(collected, run)
	}
	return collected, deferred
}

// collect returns the name of the failed collector along with its error
func (p Pipeline) collect(ctx context.Context, run model.RunDirectory) (string, error) {
	for _, c := range p.collectors {
		if err := ctx.Err(); err != nil {
			return c.Name(), err
		}
		if err := c.Collect(ctx, run); err != nil {
			return c.Name(), err
		}
	}
	return "", nil
}

// Run is NewPipeline(nil, limit, collectors...).Run(ctx, runs).
func Run(ctx context.Context, limit int, runs []model.RunDirectory, collectors ...Collector) ([]model.RunDirectory, []string) {
	return NewPipeline(nil, limit, collectors...).Run(ctx, runs)
}

// Func adapts a function to a Collector.
type Func struct {
	ID string
	Fn func(context.Context, model.RunDirectory) error
}

func (f Func) Name() string {
	return f.ID
}

func (f Func) Collect(ctx context.Context, run model.RunDirectory) error {
	if f.Fn == nil {
		return errors.New("collector " + f.ID + " has no function")
	}
	return f.Fn(ctx, run)
}
