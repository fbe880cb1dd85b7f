package database

import (
	"context"
	"errors"
	"testing"
	"time"

	"busline/internal/domain"
	"busline/internal/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newBooking(tripID int64, code string, seats ...string) *models.Booking {
	b := &models.Booking{
		Code:           code,
		TripID:         tripID,
		HolderID:       "guest-1",
		TotalPrice:     float64(len(seats)) * 1000,
		PassengerName:  "Ivan Petrov",
		PassengerPhone: "+79000000000",
		PassengerEmail: "ivan@example.com",
	}
	for _, s := range seats {
		b.Tickets = append(b.Tickets, models.Ticket{SeatCode: s, Price: 1000})
	}
	return b
}

func TestCreateAndGetBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	userID := int64(42)
	booking := newBooking(trip.ID, "BUSCODE0001", "A1", "A2")
	booking.UserID = &userID
	require.NoError(t, db.CreateBooking(ctx, booking))

	assert.NotZero(t, booking.ID)
	assert.Equal(t, models.StatusPending, booking.Status)
	assert.Equal(t, int64(1), booking.Version)
	for _, ticket := range booking.Tickets {
		assert.NotZero(t, ticket.ID)
		assert.Equal(t, booking.ID, ticket.BookingID)
	}

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, booking.Code, got.Code)
	assert.Equal(t, "guest-1", got.HolderID)
	require.NotNil(t, got.UserID)
	assert.Equal(t, userID, *got.UserID)
	assert.Equal(t, []string{"A1", "A2"}, got.SeatCodes())
	assert.Nil(t, got.CancelledAt)

	byCode, err := db.GetBookingByCode(ctx, "BUSCODE0001")
	require.NoError(t, err)
	assert.Equal(t, booking.ID, byCode.ID)

	_, err = db.GetBooking(ctx, 999)
	assert.True(t, errors.Is(err, domain.ErrBookingNotFound))
	_, err = db.GetBookingByCode(ctx, "NOPE")
	assert.True(t, errors.Is(err, domain.ErrBookingNotFound))
}

func TestCreateBooking_SeatConflict(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	require.NoError(t, db.CreateBooking(ctx, newBooking(trip.ID, "BUSCODE0001", "A1")))

	err := db.CreateBooking(ctx, newBooking(trip.ID, "BUSCODE0002", "B1", "A1"))
	assert.True(t, errors.Is(err, domain.ErrSeatAlreadyBooked))
	assert.True(t, errors.Is(err, domain.ErrSeatUnavailable))

	// Nothing of the failed booking survives
	_, err = db.GetBookingByCode(ctx, "BUSCODE0002")
	assert.True(t, errors.Is(err, domain.ErrBookingNotFound))
	seats, err := db.GetBookedSeats(ctx, trip.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 1)
}

func TestCreateBooking_DuplicateCode(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	require.NoError(t, db.CreateBooking(ctx, newBooking(trip.ID, "BUSCODE0001", "A1")))
	err := db.CreateBooking(ctx, newBooking(trip.ID, "BUSCODE0001", "A2"))
	assert.True(t, errors.Is(err, domain.ErrDuplicateBookingCode))
}

func TestUpdateBookingStatus(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	booking := newBooking(trip.ID, "BUSCODE0001", "A1")
	require.NoError(t, db.CreateBooking(ctx, booking))

	stale := *booking

	require.NoError(t, db.UpdateBookingStatus(ctx, booking, models.StatusConfirmed))
	assert.Equal(t, models.StatusConfirmed, booking.Status)
	assert.Equal(t, int64(2), booking.Version)

	err := db.UpdateBookingStatus(ctx, &stale, models.StatusCancelled)
	assert.True(t, errors.Is(err, domain.ErrConcurrentModification))

	booking.RefundAmount = 500
	require.NoError(t, db.UpdateBookingStatus(ctx, booking, models.StatusCancelled))
	require.NotNil(t, booking.CancelledAt)

	got, err := db.GetBooking(ctx, booking.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusCancelled, got.Status)
	assert.Equal(t, 500.0, got.RefundAmount)
	assert.NotNil(t, got.CancelledAt)
	assert.Equal(t, []string{"A1"}, got.SeatCodes())

	seats, err := db.GetBookedSeats(ctx, trip.ID)
	require.NoError(t, err)
	assert.Empty(t, seats)

	// The freed seat can be booked again
	assert.NoError(t, db.CreateBooking(ctx, newBooking(trip.ID, "BUSCODE0002", "A1")))
}

func TestUpdateBookingDetails(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	other := newBooking(trip.ID, "BUSCODE0009", "C1")
	require.NoError(t, db.CreateBooking(ctx, other))

	booking := newBooking(trip.ID, "BUSCODE0001", "A1", "A2")
	require.NoError(t, db.CreateBooking(ctx, booking))

	t.Run("Passenger only", func(t *testing.T) {
		booking.PassengerName = "Anna"
		require.NoError(t, db.UpdateBookingDetails(ctx, booking, false))

		got, err := db.GetBooking(ctx, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, "Anna", got.PassengerName)
		assert.Equal(t, []string{"A1", "A2"}, got.SeatCodes())
		assert.Equal(t, booking.Version, got.Version)
	})

	t.Run("Replace seats", func(t *testing.T) {
		booking.Tickets = []models.Ticket{{SeatCode: "A2", Price: 1000}, {SeatCode: "B3", Price: 1200}}
		booking.TotalPrice = 2200
		require.NoError(t, db.UpdateBookingDetails(ctx, booking, true))

		seats, err := db.GetBookedSeats(ctx, trip.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]int64{"A2": booking.ID, "B3": booking.ID, "C1": other.ID}, seats)
	})

	t.Run("Conflict keeps old seats", func(t *testing.T) {
		version := booking.Version
		booking.Tickets = []models.Ticket{{SeatCode: "C1"}}
		err := db.UpdateBookingDetails(ctx, booking, true)
		assert.True(t, errors.Is(err, domain.ErrSeatAlreadyBooked))
		assert.Equal(t, version, booking.Version)

		got, err := db.GetBooking(ctx, booking.ID)
		require.NoError(t, err)
		assert.Equal(t, []string{"A2", "B3"}, got.SeatCodes())
		assert.Equal(t, 2200.0, got.TotalPrice)
	})

	t.Run("Stale version", func(t *testing.T) {
		stale := *booking
		stale.Version--
		err := db.UpdateBookingDetails(ctx, &stale, false)
		assert.True(t, errors.Is(err, domain.ErrConcurrentModification))
	})
}

func TestGetExpiredPendingBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	pending := newBooking(trip.ID, "BUSCODE0001", "A1")
	require.NoError(t, db.CreateBooking(ctx, pending))
	confirmed := newBooking(trip.ID, "BUSCODE0002", "A2")
	require.NoError(t, db.CreateBooking(ctx, confirmed))
	require.NoError(t, db.UpdateBookingStatus(ctx, confirmed, models.StatusConfirmed))

	expired, err := db.GetExpiredPendingBookings(ctx, time.Now().Add(time.Minute))
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, pending.ID, expired[0].ID)
	assert.Equal(t, []string{"A1"}, expired[0].SeatCodes())

	expired, err = db.GetExpiredPendingBookings(ctx, time.Now().Add(-time.Hour))
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestGetBookingsNeedingReminder(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	now := time.Now()

	soon := seedTrip(t, db, 1, now.Add(20*time.Hour))
	later := seedTrip(t, db, 2, now.Add(72*time.Hour))

	due := newBooking(soon.ID, "BUSCODE0001", "A1")
	require.NoError(t, db.CreateBooking(ctx, due))
	require.NoError(t, db.UpdateBookingStatus(ctx, due, models.StatusConfirmed))

	unpaid := newBooking(soon.ID, "BUSCODE0002", "A2")
	require.NoError(t, db.CreateBooking(ctx, unpaid))

	farAway := newBooking(later.ID, "BUSCODE0003", "A1")
	require.NoError(t, db.CreateBooking(ctx, farAway))
	require.NoError(t, db.UpdateBookingStatus(ctx, farAway, models.StatusConfirmed))

	bookings, err := db.GetBookingsNeedingReminder(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	require.Len(t, bookings, 1)
	assert.Equal(t, due.ID, bookings[0].ID)

	require.NoError(t, db.MarkReminderSent(ctx, due.ID))
	bookings, err = db.GetBookingsNeedingReminder(ctx, now, now.Add(24*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, bookings)

	assert.True(t, errors.Is(db.MarkReminderSent(ctx, 999), domain.ErrBookingNotFound))
}

func TestGetUserBookings(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	userID := int64(7)
	codes := []string{"BUSCODE0001", "BUSCODE0002", "BUSCODE0003"}
	for i, code := range codes {
		b := newBooking(trip.ID, code, string(rune('A'+i))+"1")
		b.UserID = &userID
		require.NoError(t, db.CreateBooking(ctx, b))
	}
	require.NoError(t, db.CreateBooking(ctx, newBooking(trip.ID, "BUSCODE0004", "D1")))

	page, total, err := db.GetUserBookings(ctx, userID, 2, 0)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 2)
	assert.Equal(t, "BUSCODE0003", page[0].Code)
	assert.Equal(t, "BUSCODE0002", page[1].Code)

	page, total, err = db.GetUserBookings(ctx, userID, 2, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, total)
	require.Len(t, page, 1)
	assert.Equal(t, "BUSCODE0001", page[0].Code)
	assert.Equal(t, []string{"A1"}, page[0].SeatCodes())

	page, total, err = db.GetUserBookings(ctx, 999, 10, 0)
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, page)
}
