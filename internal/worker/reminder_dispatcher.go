package worker

import (
	"context"
	"fmt"
	"time"

	"busline/internal/domain"
	"busline/internal/models"

	"github.com/rs/zerolog"
)

type reminderSource interface {
	GetBookingsNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID int64) error
}

// ReminderDispatcher emails passengers whose confirmed trip departs within the lead time.
type ReminderDispatcher struct {
	repo     reminderSource
	mailer   domain.Mailer
	lead     time.Duration
	interval time.Duration
	logger   *zerolog.Logger
}

func NewReminderDispatcher(repo reminderSource, mailer domain.Mailer, lead, interval time.Duration, logger *zerolog.Logger) *ReminderDispatcher {
	if lead <= 0 {
		lead = models.DefaultReminderLeadHours * time.Hour
	}
	if interval <= 0 {
		interval = time.Hour
	}
	return &ReminderDispatcher{
		repo:     repo,
		mailer:   mailer,
		lead:     lead,
		interval: interval,
		logger:   logger,
	}
}

// RunOnce sends one reminder per eligible booking and then sets its flag.
// If the flag write fails after a successful send the next run may repeat it.
func (d *ReminderDispatcher) RunOnce(ctx context.Context, now time.Time) BatchResult {
	result := newBatch("reminder")

	bookings, err := d.repo.GetBookingsNeedingReminder(ctx, now, now.Add(d.lead))
	if err != nil {
		result.Err = err
		return result
	}

	for _, b := range bookings {
		if ctx.Err() != nil {
			break
		}
		result.record(b.ID, d.remind(ctx, b))
	}
	return result
}

func (d *ReminderDispatcher) remind(ctx context.Context, b *models.Booking) error {
	if err := d.mailer.SendReminder(ctx, b, b.PassengerEmail); err != nil {
		d.logger.Warn().Err(err).Int64("booking_id", b.ID).Msg("reminder not sent, will retry next run")
		return fmt.Errorf("send reminder: %w", err)
	}
	if err := d.repo.MarkReminderSent(ctx, b.ID); err != nil {
		d.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("reminder sent but flag not stored, may be sent again")
		return fmt.Errorf("mark reminder sent: %w", err)
	}
	return nil
}

// Start checks once immediately and then every interval until ctx is done.
func (d *ReminderDispatcher) Start(ctx context.Context) {
	d.logger.Info().Dur("interval", d.interval).Dur("lead", d.lead).Msg("reminder dispatcher started")
	defer d.logger.Info().Msg("reminder dispatcher stopped")

	d.RunOnce(ctx, time.Now()).log(d.logger)
	runEvery(ctx, d.interval, func(now time.Time) {
		d.RunOnce(ctx, now).log(d.logger)
	})
}
