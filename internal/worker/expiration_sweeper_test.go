package worker

import (
	"context"
	"errors"
	"testing"
	"time"

	"busline/internal/domain"
	"busline/internal/models"
	"busline/internal/repository"
	"busline/internal/service"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type stubExpired struct {
	bookings []*models.Booking
	cutoff   time.Time
	err      error
}

func (s *stubExpired) GetExpiredPendingBookings(_ context.Context, cutoff time.Time) ([]*models.Booking, error) {
	s.cutoff = cutoff
	if s.err != nil {
		return nil, s.err
	}
	var out []*models.Booking
	for _, b := range s.bookings {
		if b.CreatedAt.Before(cutoff) {
			out = append(out, b)
		}
	}
	return out, nil
}

type stubCanceller struct {
	failing   map[int64]bool
	cancelled []int64
}

func (s *stubCanceller) CancelExpired(_ context.Context, id int64) (*models.Booking, error) {
	if s.failing[id] {
		return nil, domain.ErrConcurrentModification
	}
	s.cancelled = append(s.cancelled, id)
	return &models.Booking{ID: id, Status: models.StatusCancelled}, nil
}

func TestExpirationSweeper_Boundary(t *testing.T) {
	now := time.Date(2025, 3, 4, 12, 0, 0, 0, time.UTC)
	src := &stubExpired{bookings: []*models.Booking{
		{ID: 1, CreatedAt: now.Add(-16 * time.Minute)},
		{ID: 2, CreatedAt: now.Add(-10 * time.Minute)},
	}}
	canceller := &stubCanceller{}

	sweeper := NewExpirationSweeper(src, canceller, 15*time.Minute, time.Minute, testLogger())
	result := sweeper.RunOnce(context.Background(), now)

	assert.Equal(t, now.Add(-15*time.Minute), src.cutoff)
	assert.Equal(t, []int64{1}, canceller.cancelled)
	assert.Equal(t, "expiration", result.Name)
	assert.Equal(t, 1, result.Total)
	assert.Equal(t, 1, result.Succeeded)
	assert.NoError(t, result.Err)
}

func TestExpirationSweeper_ItemFailureDoesNotAbort(t *testing.T) {
	now := time.Now()
	src := &stubExpired{bookings: []*models.Booking{
		{ID: 1, CreatedAt: now.Add(-time.Hour)},
		{ID: 2, CreatedAt: now.Add(-time.Hour)},
		{ID: 3, CreatedAt: now.Add(-time.Hour)},
	}}
	canceller := &stubCanceller{failing: map[int64]bool{2: true}}

	result := NewExpirationSweeper(src, canceller, 0, 0, testLogger()).RunOnce(context.Background(), now)

	assert.Equal(t, []int64{1, 3}, canceller.cancelled)
	assert.Equal(t, 3, result.Total)
	assert.Equal(t, 2, result.Succeeded)
	assert.Equal(t, 1, result.Failed)
	require.Len(t, result.Outcomes, 3)
	assert.ErrorIs(t, result.Outcomes[1].Err, domain.ErrConcurrentModification)
}

func TestExpirationSweeper_LoadError(t *testing.T) {
	src := &stubExpired{err: errors.New("db is locked")}
	result := NewExpirationSweeper(src, &stubCanceller{}, 0, 0, testLogger()).RunOnce(context.Background(), time.Now())
	assert.Error(t, result.Err)
	assert.Zero(t, result.Total)
}

func TestExpirationSweeper_WithDatabase(t *testing.T) {
	db := newTestDB(t)
	trip := seedTrip(t, db, time.Now().Add(72*time.Hour))
	ctx := context.Background()

	locks := service.NewSeatLockService(repository.NewMemorySeatLockStore(), db, 10*time.Minute, testLogger())
	bookings := service.NewBookingService(db, locks, nil, "BUS", testLogger())

	req := domain.CreateBookingRequest{
		TripID:    trip.ID,
		Seats:     []models.SeatRequest{{SeatCode: "A1", Price: 1000}},
		Passenger: models.PassengerInfo{Name: "Oleg", Phone: "+79000000000", Email: "oleg@example.com"},
	}
	unpaid, err := bookings.CreateBooking(ctx, req)
	require.NoError(t, err)

	req.Seats = []models.SeatRequest{{SeatCode: "A2", Price: 1000}}
	paid, err := bookings.CreateBooking(ctx, req)
	require.NoError(t, err)
	_, err = bookings.ConfirmBooking(ctx, paid.ID)
	require.NoError(t, err)

	sweeper := NewExpirationSweeper(db, bookings, 15*time.Minute, time.Minute, testLogger())

	// 10 minutes in: still within the payment window
	result := sweeper.RunOnce(ctx, time.Now().Add(10*time.Minute))
	assert.Zero(t, result.Total)

	result = sweeper.RunOnce(ctx, time.Now().Add(16*time.Minute))
	assert.Equal(t, 1, result.Succeeded)

	got, err := db.GetBooking(ctx, unpaid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)

	got, err = db.GetBooking(ctx, paid.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusConfirmed, got.Status)

	// The seat is free again
	assert.NoError(t, locks.TryLock(ctx, trip.ID, "A1", "guest-2"))
}

func TestExpirationSweeper_StartStops(t *testing.T) {
	src := &stubExpired{}
	sweeper := NewExpirationSweeper(src, &stubCanceller{}, time.Minute, time.Millisecond, testLogger())

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	done := make(chan struct{})
	go func() {
		sweeper.Start(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("sweeper did not stop after context cancellation")
	}
}
