package worker

import (
	"context"
	"time"

	"busline/internal/models"

	"github.com/rs/zerolog"
)

type tripGenerator interface {
	GenerateUpcoming(ctx context.Context) (models.GenerationReport, error)
}

// ScheduleRunner expands schedules once a day at a fixed local hour.
type ScheduleRunner struct {
	generator    tripGenerator
	runHour      int
	runOnStartup bool
	loc          *time.Location
	now          func() time.Time
	logger       *zerolog.Logger
}

func NewScheduleRunner(generator tripGenerator, runHour int, runOnStartup bool, loc *time.Location, logger *zerolog.Logger) *ScheduleRunner {
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleRunner{
		generator:    generator,
		runHour:      runHour,
		runOnStartup: runOnStartup,
		loc:          loc,
		now:          time.Now,
		logger:       logger,
	}
}

// RunOnce reports skipped trips as succeeded: the slot is already served.
func (r *ScheduleRunner) RunOnce(ctx context.Context) BatchResult {
	result := newBatch("schedule")

	report, err := r.generator.GenerateUpcoming(ctx)
	result.Total = report.Created + report.Skipped + report.Failed
	result.Succeeded = report.Created + report.Skipped
	result.Failed = report.Failed
	result.Err = err
	return result
}

func (r *ScheduleRunner) Start(ctx context.Context) {
	r.logger.Info().Int("run_hour", r.runHour).Str("timezone", r.loc.String()).Msg("schedule runner started")
	defer r.logger.Info().Msg("schedule runner stopped")

	if r.runOnStartup {
		r.RunOnce(ctx).log(r.logger)
	}

	// Пересчитываем ожидание каждый раз: сутки не всегда 24 часа
	timer := time.NewTimer(untilNextRun(r.now(), r.runHour, r.loc))
	defer timer.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-timer.C:
			r.RunOnce(ctx).log(r.logger)
			timer.Reset(untilNextRun(r.now(), r.runHour, r.loc))
		}
	}
}

func untilNextRun(now time.Time, hour int, loc *time.Location) time.Duration {
	local := now.In(loc)
	next := time.Date(local.Year(), local.Month(), local.Day(), hour, 0, 0, 0, loc)
	if !next.After(local) {
		next = time.Date(local.Year(), local.Month(), local.Day()+1, hour, 0, 0, 0, loc)
	}
	return next.Sub(now)
}
