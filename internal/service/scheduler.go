package service

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	gocron "github.com/go-co-op/gocron/v2"

	"github.com/BCCDC-PHL/qc-collector/internal/model"
)

// Doer is one unit of scheduled work, usually an *Invocation.
type Doer interface {
	Do(ctx context.Context) (model.InvocationOutput, error)
}

// Watch runs d immediately and then on every tick of schedule until ctx is
// canceled. Failed invocations are logged by d and don't stop the watch.
func Watch(ctx context.Context, d Doer, schedule *model.Schedule) error {
	s, err := newScheduler(ctx, schedule, func() {
		// errors are reported by the invocation_failed event
		_, _ = d.Do(ctx)
	})
	if err != nil {
		return err
	}

	slog.DebugContext(ctx, "starting a scheduler")
	s.Start()
	<-ctx.Done()
	if err := s.Shutdown(); err != nil {
		return fmt.Errorf("shutting down gocron has failed: %w", err)
	}
	return nil
}

func newScheduler(ctx context.Context, cfgp *model.Schedule, task func()) (gocron.Scheduler, error) {
	job, err := jobDefinition(ctx, cfgp)
	if err != nil {
		return nil, err
	}

	s, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("initializing gocron scheduler: %w", err)
	}
	_, err = s.NewJob(
		job,
		gocron.NewTask(task),
		gocron.WithName("invocation"),
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
		gocron.WithStartAt(gocron.WithStartImmediately()),
	)
	if err != nil {
		_ = s.Shutdown()
		return nil, fmt.Errorf("initializing gocron job: %w", err)
	}
	return s, nil
}

func jobDefinition(ctx context.Context, cfgp *model.Schedule) (gocron.JobDefinition, error) {
	if cfgp == nil {
		return nil, fmt.Errorf("service.schedule is nil")
	}
	cfg := *cfgp
	switch {
	case cfg.Cron != "":
		if err := ParseCron(cfg.Cron); err != nil {
			return nil, fmt.Errorf("parsing service.schedule.cron: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "cron", cfg.Cron)
		return gocron.CronJob(cfg.Cron, false), nil
	case cfg.Every != "":
		d, err := ParseEvery(cfg.Every)
		if err != nil {
			return nil, fmt.Errorf("parsing service.schedule.every: %w", err)
		}
		slog.DebugContext(ctx, "successfully parsed", "every", d.String())
		return gocron.DurationJob(d), nil
	default:
		return nil, errors.New("both cron and every are empty")
	}
}

// ValidateSchedule checks schedule without starting anything.
func ValidateSchedule(schedule *model.Schedule) error {
	_, err := jobDefinition(context.Background(), schedule)
	return err
}
