package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"busline/internal/domain"
	"busline/internal/metrics"
	"busline/internal/models"

	"github.com/rs/zerolog"
)

// SeatLockService guards seats with short-lived holds ahead of a durable booking.
type SeatLockService struct {
	store  domain.SeatLockStore
	repo   domain.Repository
	ttl    time.Duration
	logger *zerolog.Logger
}

func NewSeatLockService(store domain.SeatLockStore, repo domain.Repository, ttl time.Duration, logger *zerolog.Logger) *SeatLockService {
	if ttl <= 0 {
		ttl = models.DefaultSeatLockTTL * time.Second
	}
	return &SeatLockService{
		store:  store,
		repo:   repo,
		ttl:    ttl,
		logger: logger,
	}
}

// TryLock acquires or refreshes the hold of holderID on the seat. A seat held by
// a live booking fails with domain.ErrSeatAlreadyBooked, a seat held by someone
// else with domain.ErrSeatLocked.
func (s *SeatLockService) TryLock(ctx context.Context, tripID int64, seatCode, holderID string) error {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return domain.ErrIdentityRequired
	}
	seat := models.NormalizeSeat(seatCode)
	if seat == "" {
		return fmt.Errorf("%w: seat code is required", domain.ErrValidation)
	}

	booked, err := s.repo.GetBookedSeats(ctx, tripID)
	if err != nil {
		metrics.IncSeatLock("error")
		return fmt.Errorf("failed to load booked seats: %w", err)
	}
	if _, ok := booked[seat]; ok {
		metrics.IncSeatLock("booked")
		return fmt.Errorf("%w: %s", domain.ErrSeatAlreadyBooked, seat)
	}

	ok, err := s.store.TryLock(ctx, tripID, seat, holderID, s.ttl)
	if err != nil {
		metrics.IncSeatLock("error")
		return fmt.Errorf("failed to lock seat: %w", err)
	}
	if !ok {
		metrics.IncSeatLock("locked")
		return fmt.Errorf("%w: %s", domain.ErrSeatLocked, seat)
	}

	metrics.IncSeatLock("granted")
	s.logger.Debug().Int64("trip_id", tripID).Str("seat", seat).Str("holder", holderID).Msg("seat locked")
	return nil
}

// Unlock releases the hold if holderID owns it. Anything else is a no-op.
func (s *SeatLockService) Unlock(ctx context.Context, tripID int64, seatCode, holderID string) error {
	holderID = strings.TrimSpace(holderID)
	if holderID == "" {
		return domain.ErrIdentityRequired
	}
	if err := s.store.Unlock(ctx, tripID, models.NormalizeSeat(seatCode), holderID); err != nil {
		return fmt.Errorf("failed to unlock seat: %w", err)
	}
	return nil
}

func (s *SeatLockService) ListLocks(ctx context.Context, tripID int64) (map[string]string, error) {
	locks, err := s.store.List(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to list seat locks: %w", err)
	}
	return locks, nil
}

// SeatStatus merges durable bookings with live holds. A booked seat is always
// reported as booked even if a stale hold still exists.
func (s *SeatLockService) SeatStatus(ctx context.Context, tripID int64) (map[string]models.SeatState, error) {
	booked, err := s.repo.GetBookedSeats(ctx, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to load booked seats: %w", err)
	}
	locks, err := s.ListLocks(ctx, tripID)
	if err != nil {
		return nil, err
	}

	status := make(map[string]models.SeatState, len(booked)+len(locks))
	for seat, holder := range locks {
		status[seat] = models.SeatState{State: models.SeatLocked, HolderID: holder}
	}
	for seat := range booked {
		status[seat] = models.SeatState{State: models.SeatBooked}
	}
	return status, nil
}

// ReleaseSeats drops the holder's holds on seats. Failures are logged only.
func (s *SeatLockService) ReleaseSeats(ctx context.Context, tripID int64, seats []string, holderID string) {
	if strings.TrimSpace(holderID) == "" {
		return
	}
	for _, seat := range seats {
		if err := s.store.Unlock(ctx, tripID, models.NormalizeSeat(seat), holderID); err != nil {
			s.logger.Warn().Err(err).Int64("trip_id", tripID).Str("seat", seat).Msg("failed to release seat lock")
		}
	}
}
