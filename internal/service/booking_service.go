package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"busline/internal/domain"
	"busline/internal/events"
	"busline/internal/metrics"
	"busline/internal/models"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

const (
	maxCodeAttempts       = 5
	maxTransitionAttempts = 3
)

// RefundPolicy decides how much of a confirmed booking is returned on cancellation.
type RefundPolicy func(b *models.Booking, t *models.Trip, now time.Time) float64

// DefaultRefundPolicy refunds in full a day ahead, half six hours ahead, nothing later.
func DefaultRefundPolicy(b *models.Booking, t *models.Trip, now time.Time) float64 {
	left := t.DepartureTime.Sub(now)
	switch {
	case left >= 24*time.Hour:
		return b.TotalPrice
	case left >= 6*time.Hour:
		return b.TotalPrice * 0.5
	default:
		return 0
	}
}

var transitions = map[string][]string{
	models.StatusPending:   {models.StatusConfirmed, models.StatusCancelled},
	models.StatusConfirmed: {models.StatusCancelled},
}

func canTransition(from, to string) bool {
	for _, s := range transitions[from] {
		if s == to {
			return true
		}
	}
	return false
}

type BookingService struct {
	repo       domain.Repository
	locks      domain.SeatLockService
	eventBus   domain.EventPublisher
	codePrefix string
	refund     RefundPolicy
	newCode    func() string
	now        func() time.Time
	logger     *zerolog.Logger
}

func NewBookingService(
	repo domain.Repository,
	locks domain.SeatLockService,
	eventBus domain.EventPublisher,
	codePrefix string,
	logger *zerolog.Logger,
) *BookingService {
	if codePrefix == "" {
		codePrefix = models.DefaultBookingCodePrefix
	}
	s := &BookingService{
		repo:       repo,
		locks:      locks,
		eventBus:   eventBus,
		codePrefix: strings.ToUpper(codePrefix),
		refund:     DefaultRefundPolicy,
		now:        time.Now,
		logger:     logger,
	}
	s.newCode = s.generateCode
	return s
}

func (s *BookingService) WithRefundPolicy(p RefundPolicy) *BookingService {
	if p != nil {
		s.refund = p
	}
	return s
}

func (s *BookingService) WithClock(now func() time.Time) *BookingService {
	s.now = now
	return s
}

func (s *BookingService) generateCode() string {
	raw := strings.ReplaceAll(uuid.NewString(), "-", "")
	return s.codePrefix + strings.ToUpper(raw[:8])
}

// CreateBooking validates the request and persists a pending booking with one
// ticket per seat. The caller's holds on those seats are released afterwards
// because the booking now holds them.
func (s *BookingService) CreateBooking(ctx context.Context, req domain.CreateBookingRequest) (*models.Booking, error) {
	seats, err := normalizeSeats(req.Seats)
	if err != nil {
		return nil, err
	}
	if err := validatePassenger(req.Passenger); err != nil {
		return nil, err
	}
	if req.TotalPrice < 0 {
		return nil, fmt.Errorf("%w: total price must not be negative", domain.ErrValidation)
	}
	holderID := strings.TrimSpace(req.HolderID)

	trip, err := s.repo.GetTrip(ctx, req.TripID)
	if err != nil {
		return nil, err
	}
	if !trip.Bookable() {
		return nil, fmt.Errorf("%w: trip %d is %s", domain.ErrTripNotBookable, trip.ID, trip.Status)
	}

	if err := s.checkSeatsFree(ctx, trip.ID, seats, 0, holderID); err != nil {
		return nil, err
	}

	booking := &models.Booking{
		TripID:   trip.ID,
		UserID:   req.UserID,
		HolderID: holderID,
		Status:   models.StatusPending,
	}
	booking.ApplyPassenger(req.Passenger)
	booking.Tickets = buildTickets(seats, booking)
	booking.TotalPrice = req.TotalPrice
	if booking.TotalPrice == 0 {
		booking.TotalPrice = ticketsTotal(booking.Tickets)
	}

	for attempt := 1; ; attempt++ {
		booking.Code = s.newCode()
		err = s.repo.CreateBooking(ctx, booking)
		if err == nil {
			break
		}
		if errors.Is(err, domain.ErrDuplicateBookingCode) && attempt < maxCodeAttempts {
			s.logger.Warn().Str("code", booking.Code).Int("attempt", attempt).Msg("booking code collision, regenerating")
			continue
		}
		if errors.Is(err, domain.ErrSeatUnavailable) {
			s.logger.Info().Int64("trip_id", trip.ID).Err(err).Msg("seat taken while booking")
		}
		return nil, err
	}

	metrics.IncBookingTransition("created")
	s.logger.Info().
		Int64("booking_id", booking.ID).
		Str("code", booking.Code).
		Int64("trip_id", booking.TripID).
		Strs("seats", booking.SeatCodes()).
		Msg("booking created")

	s.locks.ReleaseSeats(ctx, trip.ID, booking.SeatCodes(), holderID)
	s.publishEvent(events.EventBookingCreated, booking, "customer")

	return booking, nil
}

func (s *BookingService) ConfirmBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, func(ctx context.Context) (*models.Booking, error) {
		return s.repo.GetBooking(ctx, id)
	}, models.StatusConfirmed, "payment", "")
}

// ConfirmBookingByCode is the entry point of the payment signal, which only knows the code.
func (s *BookingService) ConfirmBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	if code == "" {
		return nil, fmt.Errorf("%w: booking code is required", domain.ErrValidation)
	}
	return s.transition(ctx, func(ctx context.Context) (*models.Booking, error) {
		return s.repo.GetBookingByCode(ctx, code)
	}, models.StatusConfirmed, "payment", "")
}

func (s *BookingService) CancelBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, func(ctx context.Context) (*models.Booking, error) {
		return s.repo.GetBooking(ctx, id)
	}, models.StatusCancelled, "customer", "")
}

// CancelExpired cancels a booking on behalf of the expiration sweeper. A booking
// that got confirmed in the meantime is returned untouched.
func (s *BookingService) CancelExpired(ctx context.Context, id int64) (*models.Booking, error) {
	return s.transition(ctx, func(ctx context.Context) (*models.Booking, error) {
		return s.repo.GetBooking(ctx, id)
	}, models.StatusCancelled, "expiration", models.StatusPending)
}

// transition applies an optimistic status change. A concurrent writer makes it
// reload and re-evaluate, so racing confirm and cancel settle on one legal outcome.
// With onlyFrom set, bookings in any other state are returned unchanged.
func (s *BookingService) transition(
	ctx context.Context,
	load func(ctx context.Context) (*models.Booking, error),
	target string,
	changedBy string,
	onlyFrom string,
) (*models.Booking, error) {
	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		booking, err := load(ctx)
		if err != nil {
			return nil, err
		}

		if booking.Status == target || (onlyFrom != "" && booking.Status != onlyFrom) {
			return booking, nil
		}
		from := booking.Status
		if !canTransition(from, target) {
			return nil, fmt.Errorf("%w: %s -> %s", domain.ErrInvalidTransition, from, target)
		}

		booking.RefundAmount = 0
		if target == models.StatusCancelled && from == models.StatusConfirmed {
			trip, err := s.repo.GetTrip(ctx, booking.TripID)
			if err != nil {
				return nil, fmt.Errorf("failed to load trip for refund: %w", err)
			}
			booking.RefundAmount = s.refund(booking, trip, s.now())
		}

		err = s.repo.UpdateBookingStatus(ctx, booking, target)
		if errors.Is(err, domain.ErrConcurrentModification) {
			s.logger.Debug().Int64("booking_id", booking.ID).Int("attempt", attempt).Msg("booking changed concurrently, retrying")
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.IncBookingTransition(from + "_to_" + target)
		s.logger.Info().
			Int64("booking_id", booking.ID).
			Str("from", from).
			Str("to", target).
			Str("by", changedBy).
			Float64("refund", booking.RefundAmount).
			Msg("booking status changed")

		switch target {
		case models.StatusConfirmed:
			s.publishEvent(events.EventBookingConfirmed, booking, changedBy)
		case models.StatusCancelled:
			s.locks.ReleaseSeats(ctx, booking.TripID, booking.SeatCodes(), booking.HolderID)
			s.publishEvent(events.EventBookingCancelled, booking, changedBy)
		}
		return booking, nil
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts", domain.ErrConcurrentModification, maxTransitionAttempts)
}

// UpdateBooking changes contact fields of a pending booking and, when seats is
// not nil, swaps its ticket set in one step.
func (s *BookingService) UpdateBooking(ctx context.Context, id int64, info models.PassengerInfo, seats []models.SeatRequest) (*models.Booking, error) {
	if err := validatePassenger(info); err != nil {
		return nil, err
	}
	replace := seats != nil
	var normalized []models.SeatRequest
	if replace {
		var err error
		if normalized, err = normalizeSeats(seats); err != nil {
			return nil, err
		}
	}

	for attempt := 1; attempt <= maxTransitionAttempts; attempt++ {
		booking, err := s.repo.GetBooking(ctx, id)
		if err != nil {
			return nil, err
		}
		if booking.Status != models.StatusPending {
			return nil, fmt.Errorf("%w: cannot update %s booking", domain.ErrInvalidTransition, booking.Status)
		}

		previousSeats := booking.SeatCodes()
		booking.ApplyPassenger(info)
		if replace {
			if err := s.checkSeatsFree(ctx, booking.TripID, normalized, booking.ID, booking.HolderID); err != nil {
				return nil, err
			}
			booking.Tickets = buildTickets(normalized, booking)
			booking.TotalPrice = ticketsTotal(booking.Tickets)
		}

		err = s.repo.UpdateBookingDetails(ctx, booking, replace)
		if errors.Is(err, domain.ErrConcurrentModification) {
			continue
		}
		if err != nil {
			return nil, err
		}

		metrics.IncBookingTransition("updated")
		s.logger.Info().
			Int64("booking_id", booking.ID).
			Bool("seats_replaced", replace).
			Strs("previous_seats", previousSeats).
			Msg("booking updated")

		if replace {
			s.locks.ReleaseSeats(ctx, booking.TripID, booking.SeatCodes(), booking.HolderID)
		}
		s.publishEvent(events.EventBookingUpdated, booking, "customer")
		return booking, nil
	}

	return nil, fmt.Errorf("%w: gave up after %d attempts", domain.ErrConcurrentModification, maxTransitionAttempts)
}

// LookupBooking finds a booking by code and contact email. Any mismatch is
// reported as not found.
func (s *BookingService) LookupBooking(ctx context.Context, code, email string) (*models.Booking, error) {
	code = strings.ToUpper(strings.TrimSpace(code))
	email = strings.TrimSpace(email)
	if code == "" || email == "" {
		return nil, domain.ErrBookingNotFound
	}

	booking, err := s.repo.GetBookingByCode(ctx, code)
	if errors.Is(err, domain.ErrBookingNotFound) {
		return nil, domain.ErrBookingNotFound
	}
	if err != nil {
		return nil, err
	}
	if !strings.EqualFold(strings.TrimSpace(booking.PassengerEmail), email) {
		return nil, domain.ErrBookingNotFound
	}
	return booking, nil
}

func (s *BookingService) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	return s.repo.GetBooking(ctx, id)
}

func (s *BookingService) GetUserBookings(ctx context.Context, userID int64, page, size int) (*models.BookingPage, error) {
	if page < 1 {
		page = 1
	}
	if size < 1 {
		size = models.DefaultPageSize
	}
	if size > models.MaxPageSize {
		size = models.MaxPageSize
	}

	items, total, err := s.repo.GetUserBookings(ctx, userID, size, (page-1)*size)
	if err != nil {
		return nil, err
	}
	return &models.BookingPage{Items: items, Page: page, Size: size, Total: total}, nil
}

// checkSeatsFree rejects seats held by another live booking or by another
// holder's live lock. Seats of ownBookingID count as free.
func (s *BookingService) checkSeatsFree(ctx context.Context, tripID int64, seats []models.SeatRequest, ownBookingID int64, holderID string) error {
	booked, err := s.repo.GetBookedSeats(ctx, tripID)
	if err != nil {
		return fmt.Errorf("failed to load booked seats: %w", err)
	}
	for _, seat := range seats {
		if bookingID, ok := booked[seat.SeatCode]; ok && bookingID != ownBookingID {
			return fmt.Errorf("%w: %s", domain.ErrSeatAlreadyBooked, seat.SeatCode)
		}
	}

	locks, err := s.locks.ListLocks(ctx, tripID)
	if err != nil {
		// Уникальный индекс всё равно не даст занять место дважды
		s.logger.Warn().Err(err).Int64("trip_id", tripID).Msg("seat locks unavailable, relying on durable check")
		return nil
	}
	for _, seat := range seats {
		if holder, ok := locks[seat.SeatCode]; ok && holder != holderID {
			return fmt.Errorf("%w: %s", domain.ErrSeatLocked, seat.SeatCode)
		}
	}
	return nil
}

func normalizeSeats(seats []models.SeatRequest) ([]models.SeatRequest, error) {
	if len(seats) == 0 {
		return nil, fmt.Errorf("%w: at least one seat is required", domain.ErrValidation)
	}
	seen := make(map[string]struct{}, len(seats))
	out := make([]models.SeatRequest, 0, len(seats))
	for _, seat := range seats {
		seat.SeatCode = models.NormalizeSeat(seat.SeatCode)
		if seat.SeatCode == "" {
			return nil, fmt.Errorf("%w: seat code is required", domain.ErrValidation)
		}
		if seat.Price < 0 {
			return nil, fmt.Errorf("%w: seat %s has negative price", domain.ErrValidation, seat.SeatCode)
		}
		if _, dup := seen[seat.SeatCode]; dup {
			return nil, fmt.Errorf("%w: seat %s requested twice", domain.ErrValidation, seat.SeatCode)
		}
		seen[seat.SeatCode] = struct{}{}
		out = append(out, seat)
	}
	return out, nil
}

func validatePassenger(info models.PassengerInfo) error {
	var missing []string
	if strings.TrimSpace(info.Name) == "" {
		missing = append(missing, "name")
	}
	if strings.TrimSpace(info.Phone) == "" {
		missing = append(missing, "phone")
	}
	if strings.TrimSpace(info.Email) == "" {
		missing = append(missing, "email")
	} else if !strings.Contains(info.Email, "@") {
		return fmt.Errorf("%w: invalid email %q", domain.ErrValidation, info.Email)
	}
	if len(missing) > 0 {
		return fmt.Errorf("%w: missing passenger %s", domain.ErrValidation, strings.Join(missing, ", "))
	}
	return nil
}

func buildTickets(seats []models.SeatRequest, booking *models.Booking) []models.Ticket {
	tickets := make([]models.Ticket, 0, len(seats))
	for _, seat := range seats {
		t := models.Ticket{
			TripID:         booking.TripID,
			SeatCode:       seat.SeatCode,
			PassengerName:  strings.TrimSpace(seat.PassengerName),
			PassengerPhone: strings.TrimSpace(seat.PassengerPhone),
			Price:          seat.Price,
		}
		if t.PassengerName == "" {
			t.PassengerName = booking.PassengerName
		}
		if t.PassengerPhone == "" {
			t.PassengerPhone = booking.PassengerPhone
		}
		tickets = append(tickets, t)
	}
	return tickets
}

func ticketsTotal(tickets []models.Ticket) float64 {
	var total float64
	for _, t := range tickets {
		total += t.Price
	}
	return total
}

func (s *BookingService) publishEvent(eventType string, booking *models.Booking, changedBy string) {
	if s.eventBus == nil {
		return
	}

	payload := events.BookingEventPayload{
		BookingID:    booking.ID,
		Code:         booking.Code,
		TripID:       booking.TripID,
		UserID:       booking.UserID,
		Status:       booking.Status,
		Seats:        booking.SeatCodes(),
		TotalPrice:   booking.TotalPrice,
		RefundAmount: booking.RefundAmount,
		Email:        booking.PassengerEmail,
		ChangedBy:    changedBy,
		OccurredAt:   s.now(),
	}

	if err := s.eventBus.PublishJSON(eventType, payload); err != nil {
		s.logger.Error().Err(err).Str("event_type", eventType).Int64("booking_id", booking.ID).Msg("publish event error")
	}
}
