package api

import (
	"errors"
	"net/http"
	"strconv"
	"strings"

	"busline/internal/domain"
	"busline/internal/models"
)

type lockRequest struct {
	SeatCode string `json:"seat_code"`
}

type updateBookingRequest struct {
	Passenger models.PassengerInfo `json:"passenger"`
	Seats     []models.SeatRequest `json:"seats,omitempty"`
}

type paymentConfirmedRequest struct {
	Code string `json:"code"`
}

func (s *HTTPServer) handleLockSeat(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body lockRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	holder := holderID(r)
	seat := models.NormalizeSeat(body.SeatCode)
	if err := s.svc.Locks.TryLock(r.Context(), tripID, seat, holder); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"trip_id":   tripID,
		"seat_code": seat,
		"holder_id": holder,
	})
}

func (s *HTTPServer) handleUnlockSeat(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	seat := models.NormalizeSeat(r.PathValue("seat"))
	if err := s.svc.Locks.Unlock(r.Context(), tripID, seat, holderID(r)); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *HTTPServer) handleListLocks(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	locks, err := s.svc.Locks.ListLocks(r.Context(), tripID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trip_id": tripID, "locks": locks})
}

func (s *HTTPServer) handleSeatStatus(w http.ResponseWriter, r *http.Request) {
	tripID, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	seats, err := s.svc.Locks.SeatStatus(r.Context(), tripID)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"trip_id": tripID, "seats": seats})
}

func (s *HTTPServer) handleCreateBooking(w http.ResponseWriter, r *http.Request) {
	var req domain.CreateBookingRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}

	// Идентичность берём только из заголовков
	req.UserID = nil
	if id, ok := userID(r); ok {
		req.UserID = &id
	}
	req.HolderID = holderID(r)

	booking, err := s.svc.Bookings.CreateBooking(r.Context(), req)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

func (s *HTTPServer) handleLookupBooking(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	booking, err := s.svc.Bookings.LookupBooking(r.Context(), q.Get("code"), q.Get("email"))
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleUpdateBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	var body updateBookingRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	if err := s.authorizeBooking(r, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}

	booking, err := s.svc.Bookings.UpdateBooking(r.Context(), id, body.Passenger, body.Seats)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleCancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	if err := s.authorizeBooking(r, id); err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	booking, err := s.svc.Bookings.CancelBooking(r.Context(), id)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

// authorizeBooking admits the signed-in owner of the booking, or a caller
// presenting the booking code with its contact email (?code=&email=).
// Every mismatch looks like a missing booking.
func (s *HTTPServer) authorizeBooking(r *http.Request, id int64) error {
	ctx := r.Context()
	if caller, ok := userID(r); ok {
		booking, err := s.svc.Bookings.GetBooking(ctx, id)
		if err != nil {
			return err
		}
		if booking.UserID != nil && *booking.UserID == caller {
			return nil
		}
	}

	q := r.URL.Query()
	code, email := strings.TrimSpace(q.Get("code")), strings.TrimSpace(q.Get("email"))
	if code == "" || email == "" {
		return domain.ErrBookingNotFound
	}
	booking, err := s.svc.Bookings.LookupBooking(ctx, code, email)
	if err != nil {
		return err
	}
	if booking.ID != id {
		return domain.ErrBookingNotFound
	}
	return nil
}

func (s *HTTPServer) handleUserBookings(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r, "id")
	if !ok {
		return
	}
	caller, ok := userID(r)
	if !ok {
		s.writeServiceError(w, r, domain.ErrIdentityRequired)
		return
	}
	if caller != id {
		writeError(w, http.StatusForbidden, "bookings of another user")
		return
	}

	page, _ := strconv.Atoi(r.URL.Query().Get("page"))
	size, _ := strconv.Atoi(r.URL.Query().Get("size"))

	result, err := s.svc.Bookings.GetUserBookings(r.Context(), id, page, size)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, result)
}

func (s *HTTPServer) handlePaymentConfirmed(w http.ResponseWriter, r *http.Request) {
	var body paymentConfirmedRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, http.StatusBadRequest, "invalid JSON body")
		return
	}
	booking, err := s.svc.Bookings.ConfirmBookingByCode(r.Context(), body.Code)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, booking)
}

func (s *HTTPServer) handleGenerateSchedules(w http.ResponseWriter, r *http.Request) {
	days, err := strconv.Atoi(strings.TrimSpace(r.URL.Query().Get("days")))
	if err != nil {
		writeError(w, http.StatusBadRequest, "days must be an integer")
		return
	}
	created, err := s.svc.Schedules.GenerateTripsManual(r.Context(), days)
	if err != nil {
		s.writeServiceError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"created": created})
}

// writeServiceError maps domain errors onto status codes. Unknown errors are
// logged and hidden behind a generic message.
func (s *HTTPServer) writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, domain.ErrSeatAlreadyBooked):
		writeError(w, http.StatusConflict, "seat is already booked")
	case errors.Is(err, domain.ErrSeatLocked):
		writeError(w, http.StatusConflict, "seat is being held by another customer")
	case errors.Is(err, domain.ErrBookingNotFound),
		errors.Is(err, domain.ErrTripNotFound),
		errors.Is(err, domain.ErrRouteNotFound):
		writeError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrConcurrentModification):
		writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrValidation),
		errors.Is(err, domain.ErrIdentityRequired):
		writeError(w, http.StatusBadRequest, err.Error())
	default:
		s.requestLogger(r).Error().Err(err).Str("path", r.URL.Path).Msg("request failed")
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

func pathID(w http.ResponseWriter, r *http.Request, name string) (int64, bool) {
	id, err := strconv.ParseInt(r.PathValue(name), 10, 64)
	if err != nil || id <= 0 {
		writeError(w, http.StatusBadRequest, "invalid "+name)
		return 0, false
	}
	return id, true
}

// holderID derives the seat lock identity: a signed-in user wins over a guest session.
func holderID(r *http.Request) string {
	if id := strings.TrimSpace(r.Header.Get(headerUserID)); id != "" {
		return "user:" + id
	}
	if id := strings.TrimSpace(r.Header.Get(headerGuestID)); id != "" {
		return "guest:" + id
	}
	return ""
}

func userID(r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(strings.TrimSpace(r.Header.Get(headerUserID)), 10, 64)
	if err != nil || id <= 0 {
		return 0, false
	}
	return id, true
}
