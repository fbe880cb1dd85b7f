package worker

import (
	"context"
	"time"

	"busline/internal/models"

	"github.com/rs/zerolog"
)

type expiredSource interface {
	GetExpiredPendingBookings(ctx context.Context, cutoff time.Time) ([]*models.Booking, error)
}

type expiredCanceller interface {
	CancelExpired(ctx context.Context, id int64) (*models.Booking, error)
}

// ExpirationSweeper cancels pending bookings that were not paid in time.
type ExpirationSweeper struct {
	repo     expiredSource
	bookings expiredCanceller
	expiry   time.Duration
	interval time.Duration
	logger   *zerolog.Logger
}

func NewExpirationSweeper(repo expiredSource, bookings expiredCanceller, expiry, interval time.Duration, logger *zerolog.Logger) *ExpirationSweeper {
	if expiry <= 0 {
		expiry = models.DefaultPendingExpiry * time.Second
	}
	if interval <= 0 {
		interval = time.Minute
	}
	return &ExpirationSweeper{repo: repo, bookings: bookings, expiry: expiry, interval: interval, logger: logger}
}

// RunOnce cancels every pending booking created before now minus the expiry window.
func (s *ExpirationSweeper) RunOnce(ctx context.Context, now time.Time) BatchResult {
	result := newBatch("expiration")

	cutoff := now.Add(-s.expiry)
	expired, err := s.repo.GetExpiredPendingBookings(ctx, cutoff)
	if err != nil {
		result.Err = err
		return result
	}

	for _, b := range expired {
		if ctx.Err() != nil {
			break
		}
		booking, err := s.bookings.CancelExpired(ctx, b.ID)
		if err != nil {
			s.logger.Error().Err(err).Int64("booking_id", b.ID).Msg("failed to cancel expired booking")
		} else if booking.Status != models.StatusCancelled {
			s.logger.Info().Int64("booking_id", b.ID).Str("status", booking.Status).Msg("booking settled before expiry, skipped")
		}
		result.record(b.ID, err)
	}
	return result
}

func (s *ExpirationSweeper) Start(ctx context.Context) {
	s.logger.Info().Dur("interval", s.interval).Dur("expiry", s.expiry).Msg("expiration sweeper started")
	defer s.logger.Info().Msg("expiration sweeper stopped")

	runEvery(ctx, s.interval, func(now time.Time) {
		s.RunOnce(ctx, now).log(s.logger)
	})
}
