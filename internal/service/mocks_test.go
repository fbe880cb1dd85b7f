package service

import (
	"context"
	"io"
	"time"

	"busline/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/mock"
)

func testLogger() *zerolog.Logger {
	logger := zerolog.New(io.Discard)
	return &logger
}

type mockRepo struct {
	mock.Mock
}

func (m *mockRepo) CreateRoute(ctx context.Context, r *models.Route) error {
	return m.Called(ctx, r).Error(0)
}

func (m *mockRepo) GetRoute(ctx context.Context, id int64) (*models.Route, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Route), args.Error(1)
}

func (m *mockRepo) CreateTrip(ctx context.Context, t *models.Trip) error {
	return m.Called(ctx, t).Error(0)
}

func (m *mockRepo) GetTrip(ctx context.Context, id int64) (*models.Trip, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Trip), args.Error(1)
}

func (m *mockRepo) HasOverlappingTrip(ctx context.Context, vehicleID int64, d, a time.Time) (bool, error) {
	args := m.Called(ctx, vehicleID, d, a)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) CreateTripIfNoOverlap(ctx context.Context, t *models.Trip) (bool, error) {
	args := m.Called(ctx, t)
	return args.Bool(0), args.Error(1)
}

func (m *mockRepo) CreateSchedule(ctx context.Context, s *models.TripSchedule) error {
	return m.Called(ctx, s).Error(0)
}

func (m *mockRepo) GetSchedulesActiveOn(ctx context.Context, date time.Time) ([]*models.TripSchedule, error) {
	args := m.Called(ctx, date)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.TripSchedule), args.Error(1)
}

func (m *mockRepo) CreateBooking(ctx context.Context, b *models.Booking) error {
	return m.Called(ctx, b).Error(0)
}

func (m *mockRepo) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	args := m.Called(ctx, code)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*models.Booking), args.Error(1)
}

func (m *mockRepo) UpdateBookingStatus(ctx context.Context, b *models.Booking, status string) error {
	return m.Called(ctx, b, status).Error(0)
}

func (m *mockRepo) UpdateBookingDetails(ctx context.Context, b *models.Booking, replace bool) error {
	return m.Called(ctx, b, replace).Error(0)
}

func (m *mockRepo) GetBookedSeats(ctx context.Context, tripID int64) (map[string]int64, error) {
	args := m.Called(ctx, tripID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(map[string]int64), args.Error(1)
}

func (m *mockRepo) GetExpiredPendingBookings(ctx context.Context, cutoff time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, cutoff)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockRepo) GetBookingsNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	args := m.Called(ctx, from, to)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*models.Booking), args.Error(1)
}

func (m *mockRepo) MarkReminderSent(ctx context.Context, id int64) error {
	return m.Called(ctx, id).Error(0)
}

func (m *mockRepo) GetUserBookings(ctx context.Context, userID int64, limit, offset int) ([]*models.Booking, int, error) {
	args := m.Called(ctx, userID, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]*models.Booking), args.Int(1), args.Error(2)
}

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishJSON(eventType string, payload interface{}) error {
	return m.Called(eventType, payload).Error(0)
}
