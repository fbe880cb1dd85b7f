package service

import (
	"context"
	"fmt"
	"time"

	"busline/internal/domain"
	"busline/internal/events"
	"busline/internal/metrics"
	"busline/internal/models"

	"github.com/rs/zerolog"
)

// ScheduleService expands recurring schedules into concrete trips over a
// rolling horizon. Runs are idempotent: a vehicle never gets two overlapping trips.
type ScheduleService struct {
	repo          domain.Repository
	eventBus      domain.EventPublisher
	daysAhead     int
	maxManualDays int
	loc           *time.Location
	now           func() time.Time
	logger        *zerolog.Logger
}

func NewScheduleService(
	repo domain.Repository,
	eventBus domain.EventPublisher,
	daysAhead, maxManualDays int,
	loc *time.Location,
	logger *zerolog.Logger,
) *ScheduleService {
	if daysAhead <= 0 {
		daysAhead = models.DefaultDaysAhead
	}
	if maxManualDays <= 0 {
		maxManualDays = models.MaxManualDaysAhead
	}
	if loc == nil {
		loc = time.UTC
	}
	return &ScheduleService{
		repo:          repo,
		eventBus:      eventBus,
		daysAhead:     daysAhead,
		maxManualDays: maxManualDays,
		loc:           loc,
		now:           time.Now,
		logger:        logger,
	}
}

func (s *ScheduleService) WithClock(now func() time.Time) *ScheduleService {
	s.now = now
	return s
}

func (s *ScheduleService) GenerateUpcoming(ctx context.Context) (models.GenerationReport, error) {
	return s.GenerateTrips(ctx, s.daysAhead)
}

// GenerateTripsManual runs the expansion for a caller-chosen horizon, capped at
// the configured maximum, and returns the number of trips created.
func (s *ScheduleService) GenerateTripsManual(ctx context.Context, days int) (int, error) {
	if days < 1 {
		return 0, fmt.Errorf("%w: days must be at least 1", domain.ErrValidation)
	}
	if days > s.maxManualDays {
		s.logger.Info().Int("requested", days).Int("max", s.maxManualDays).Msg("manual horizon capped")
		days = s.maxManualDays
	}
	report, err := s.GenerateTrips(ctx, days)
	return report.Created, err
}

// GenerateTrips creates trips for today and the following daysAhead days.
// Failures of single (schedule, date) pairs are counted and logged; only
// context cancellation aborts the run.
func (s *ScheduleService) GenerateTrips(ctx context.Context, daysAhead int) (models.GenerationReport, error) {
	var report models.GenerationReport
	if daysAhead < 0 {
		return report, fmt.Errorf("%w: days ahead must not be negative", domain.ErrValidation)
	}

	now := s.now().In(s.loc)
	today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, s.loc)
	routes := make(map[int64]*models.Route)

	for offset := 0; offset <= daysAhead; offset++ {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		target := today.AddDate(0, 0, offset)

		schedules, err := s.repo.GetSchedulesActiveOn(ctx, target)
		if err != nil {
			s.logger.Error().Err(err).Str("date", target.Format("2006-01-02")).Msg("failed to load schedules")
			report.Failed++
			continue
		}

		for _, schedule := range schedules {
			if !schedule.AppliesOn(target) {
				continue
			}
			created, err := s.generateOne(ctx, schedule, target, routes)
			switch {
			case err != nil:
				report.Failed++
				s.logger.Error().
					Err(err).
					Int64("schedule_id", schedule.ID).
					Str("date", target.Format("2006-01-02")).
					Msg("failed to generate trip")
			case created:
				report.Created++
			default:
				report.Skipped++
			}
		}
	}

	metrics.AddTripsGenerated(report.Created)
	s.logger.Info().
		Int("days_ahead", daysAhead).
		Int("created", report.Created).
		Int("skipped", report.Skipped).
		Int("failed", report.Failed).
		Msg("schedule expansion finished")

	if s.eventBus != nil {
		payload := events.GenerationEventPayload{
			DaysAhead: daysAhead,
			Created:   report.Created,
			Skipped:   report.Skipped,
			Failed:    report.Failed,
		}
		if err := s.eventBus.PublishJSON(events.EventTripsGenerated, payload); err != nil {
			s.logger.Error().Err(err).Msg("publish event error")
		}
	}

	return report, nil
}

func (s *ScheduleService) generateOne(ctx context.Context, schedule *models.TripSchedule, date time.Time, routes map[int64]*models.Route) (bool, error) {
	route, ok := routes[schedule.RouteID]
	if !ok {
		var err error
		route, err = s.repo.GetRoute(ctx, schedule.RouteID)
		if err != nil {
			return false, err
		}
		routes[schedule.RouteID] = route
	}

	departure, err := schedule.DepartureOn(date, s.loc)
	if err != nil {
		return false, err
	}
	arrival := departure.Add(time.Duration(route.DurationMinutes) * time.Minute)

	prices, err := schedule.ParsePricing()
	if err != nil {
		// Рейс создаётся без цен, ошибку только фиксируем
		metrics.IncPricingParseFailure()
		s.logger.Warn().Err(err).Int64("schedule_id", schedule.ID).Msg("schedule pricing is invalid, trip created without prices")
		prices = nil
	}

	scheduleID := schedule.ID
	trip := &models.Trip{
		RouteID:       schedule.RouteID,
		VehicleID:     schedule.VehicleID,
		DepartureTime: departure,
		ArrivalTime:   arrival,
		Status:        models.TripScheduled,
		Prices:        prices,
		ScheduleID:    &scheduleID,
	}

	created, err := s.repo.CreateTripIfNoOverlap(ctx, trip)
	if err != nil {
		return false, err
	}
	if created {
		s.logger.Debug().
			Int64("trip_id", trip.ID).
			Int64("schedule_id", schedule.ID).
			Time("departure", departure).
			Msg("trip generated")
	}
	return created, nil
}
