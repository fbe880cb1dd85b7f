package repository

import (
	"context"
	"sync/atomic"
	"time"

	"busline/internal/domain"

	"github.com/rs/zerolog"
)

const recoveryInterval = time.Minute

// FailoverSeatLockStore serves holds from primary and switches to fallback when
// primary errors. Primary is tried again once recoveryInterval has passed.
// Holds taken on one side are invisible to the other; the live-seat unique
// index still prevents double booking.
type FailoverSeatLockStore struct {
	primary   domain.SeatLockStore
	fallback  domain.SeatLockStore
	logger    *zerolog.Logger
	isDown    atomic.Bool
	lastCheck atomic.Int64
	now       func() time.Time
}

func NewFailoverSeatLockStore(primary, fallback domain.SeatLockStore, logger *zerolog.Logger) *FailoverSeatLockStore {
	return &FailoverSeatLockStore{
		primary:  primary,
		fallback: fallback,
		logger:   logger,
		now:      time.Now,
	}
}

// usePrimary reports whether the call should go to primary: either it is
// healthy or a recovery attempt is due.
func (r *FailoverSeatLockStore) usePrimary() bool {
	if !r.isDown.Load() {
		return true
	}
	last := time.Unix(0, r.lastCheck.Load())
	return r.now().Sub(last) > recoveryInterval
}

func (r *FailoverSeatLockStore) markDown(err error) {
	if !r.isDown.Swap(true) {
		r.logger.Error().Err(err).Msg("Primary seat lock store failed, falling back to memory")
	}
	r.lastCheck.Store(r.now().UnixNano())
}

func (r *FailoverSeatLockStore) markUp() {
	if r.isDown.Swap(false) {
		r.logger.Info().Msg("Primary seat lock store recovered")
	}
}

func (r *FailoverSeatLockStore) TryLock(ctx context.Context, tripID int64, seatCode, holderID string, ttl time.Duration) (bool, error) {
	if r.usePrimary() {
		ok, err := r.primary.TryLock(ctx, tripID, seatCode, holderID, ttl)
		if err == nil {
			r.markUp()
			return ok, nil
		}
		r.markDown(err)
	}
	return r.fallback.TryLock(ctx, tripID, seatCode, holderID, ttl)
}

func (r *FailoverSeatLockStore) Unlock(ctx context.Context, tripID int64, seatCode, holderID string) error {
	// Снимаем в обоих хранилищах: захват мог произойти до переключения
	fallbackErr := r.fallback.Unlock(ctx, tripID, seatCode, holderID)
	if r.usePrimary() {
		err := r.primary.Unlock(ctx, tripID, seatCode, holderID)
		if err == nil {
			r.markUp()
			return fallbackErr
		}
		r.markDown(err)
	}
	return fallbackErr
}

func (r *FailoverSeatLockStore) List(ctx context.Context, tripID int64) (map[string]string, error) {
	locks, err := r.fallback.List(ctx, tripID)
	if err != nil {
		return nil, err
	}
	if r.usePrimary() {
		primaryLocks, err := r.primary.List(ctx, tripID)
		if err == nil {
			r.markUp()
			for seat, holder := range primaryLocks {
				locks[seat] = holder
			}
			return locks, nil
		}
		r.markDown(err)
	}
	return locks, nil
}

// Purge forwards to stores that need explicit reclamation.
func (r *FailoverSeatLockStore) Purge(now time.Time) int {
	removed := 0
	for _, store := range []domain.SeatLockStore{r.primary, r.fallback} {
		if p, ok := store.(domain.Purger); ok {
			removed += p.Purge(now)
		}
	}
	return removed
}
