package domain

import (
	"context"
	"time"

	"busline/internal/models"
)

// Repository is the persistence gateway used by the reservation core.
type Repository interface {
	CreateRoute(ctx context.Context, route *models.Route) error
	GetRoute(ctx context.Context, id int64) (*models.Route, error)

	CreateTrip(ctx context.Context, trip *models.Trip) error
	GetTrip(ctx context.Context, id int64) (*models.Trip, error)
	HasOverlappingTrip(ctx context.Context, vehicleID int64, departure, arrival time.Time) (bool, error)
	CreateTripIfNoOverlap(ctx context.Context, trip *models.Trip) (bool, error)

	CreateSchedule(ctx context.Context, schedule *models.TripSchedule) error
	GetSchedulesActiveOn(ctx context.Context, date time.Time) ([]*models.TripSchedule, error)

	CreateBooking(ctx context.Context, booking *models.Booking) error
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	UpdateBookingStatus(ctx context.Context, booking *models.Booking, status string) error
	UpdateBookingDetails(ctx context.Context, booking *models.Booking, replaceTickets bool) error
	GetBookedSeats(ctx context.Context, tripID int64) (map[string]int64, error)
	GetExpiredPendingBookings(ctx context.Context, cutoff time.Time) ([]*models.Booking, error)
	GetBookingsNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Booking, error)
	MarkReminderSent(ctx context.Context, bookingID int64) error
	GetUserBookings(ctx context.Context, userID int64, limit, offset int) ([]*models.Booking, int, error)
}

// SeatLockStore keeps ephemeral seat holds. TryLock must be atomic per (trip, seat).
type SeatLockStore interface {
	TryLock(ctx context.Context, tripID int64, seatCode, holderID string, ttl time.Duration) (bool, error)
	Unlock(ctx context.Context, tripID int64, seatCode, holderID string) error
	List(ctx context.Context, tripID int64) (map[string]string, error)
}

// Purger is implemented by stores that need explicit reclamation of expired holds.
type Purger interface {
	Purge(now time.Time) int
}

type EventPublisher interface {
	PublishJSON(eventType string, payload interface{}) error
}

// Mailer delivers booking notifications. Callers log failures and move on.
type Mailer interface {
	SendConfirmation(ctx context.Context, booking *models.Booking, recipient string) error
	SendReminder(ctx context.Context, booking *models.Booking, recipient string) error
}

type SeatLockService interface {
	TryLock(ctx context.Context, tripID int64, seatCode, holderID string) error
	Unlock(ctx context.Context, tripID int64, seatCode, holderID string) error
	ListLocks(ctx context.Context, tripID int64) (map[string]string, error)
	SeatStatus(ctx context.Context, tripID int64) (map[string]models.SeatState, error)
	ReleaseSeats(ctx context.Context, tripID int64, seats []string, holderID string)
}

type BookingService interface {
	CreateBooking(ctx context.Context, req CreateBookingRequest) (*models.Booking, error)
	ConfirmBooking(ctx context.Context, id int64) (*models.Booking, error)
	ConfirmBookingByCode(ctx context.Context, code string) (*models.Booking, error)
	CancelBooking(ctx context.Context, id int64) (*models.Booking, error)
	UpdateBooking(ctx context.Context, id int64, info models.PassengerInfo, seats []models.SeatRequest) (*models.Booking, error)
	LookupBooking(ctx context.Context, code, email string) (*models.Booking, error)
	GetBooking(ctx context.Context, id int64) (*models.Booking, error)
	GetUserBookings(ctx context.Context, userID int64, page, size int) (*models.BookingPage, error)
}

type ScheduleService interface {
	GenerateUpcoming(ctx context.Context) (models.GenerationReport, error)
	GenerateTrips(ctx context.Context, daysAhead int) (models.GenerationReport, error)
	GenerateTripsManual(ctx context.Context, days int) (int, error)
}

// CreateBookingRequest carries everything needed to place a pending booking.
type CreateBookingRequest struct {
	TripID     int64                `json:"trip_id"`
	Seats      []models.SeatRequest `json:"seats"`
	Passenger  models.PassengerInfo `json:"passenger"`
	TotalPrice float64              `json:"total_price"`
	UserID     *int64               `json:"user_id,omitempty"`
	HolderID   string               `json:"-"`
}
