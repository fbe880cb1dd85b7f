package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"busline/internal/domain"
	"busline/internal/models"
)

const bookingColumns = `id, code, trip_id, user_id, holder_id, status, total_price, refund_amount,
                 passenger_name, passenger_phone, passenger_email, pickup_point, dropoff_point,
                 reminder_sent, created_at, updated_at, cancelled_at, version`

func scanBooking(row rowScanner) (*models.Booking, error) {
	var (
		b           models.Booking
		userID      sql.NullInt64
		cancelledAt sql.NullTime
	)
	err := row.Scan(
		&b.ID, &b.Code, &b.TripID, &userID, &b.HolderID, &b.Status, &b.TotalPrice, &b.RefundAmount,
		&b.PassengerName, &b.PassengerPhone, &b.PassengerEmail, &b.PickupPoint, &b.DropoffPoint,
		&b.ReminderSent, &b.CreatedAt, &b.UpdatedAt, &cancelledAt, &b.Version,
	)
	if err != nil {
		return nil, err
	}
	if userID.Valid {
		b.UserID = &userID.Int64
	}
	if cancelledAt.Valid {
		t := cancelledAt.Time
		b.CancelledAt = &t
	}
	return &b, nil
}

// CreateBooking stores the booking and its tickets atomically. A seat held by
// another live booking fails the whole insert with domain.ErrSeatAlreadyBooked.
func (db *DB) CreateBooking(ctx context.Context, booking *models.Booking) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if booking.Status == "" {
		booking.Status = models.StatusPending
	}
	now := time.Now().UTC()
	query := `INSERT INTO bookings (
				code, trip_id, user_id, holder_id, status, total_price, refund_amount,
				passenger_name, passenger_phone, passenger_email, pickup_point, dropoff_point,
				reminder_sent, created_at, updated_at, version
			) VALUES (?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?, ?, 0, ?, ?, 1)`
	result, err := tx.ExecContext(ctx, query,
		booking.Code,
		booking.TripID,
		booking.UserID,
		booking.HolderID,
		booking.Status,
		booking.TotalPrice,
		booking.PassengerName,
		booking.PassengerPhone,
		booking.PassengerEmail,
		booking.PickupPoint,
		booking.DropoffPoint,
		now,
		now,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("%w: %s", domain.ErrDuplicateBookingCode, booking.Code)
		}
		return fmt.Errorf("failed to insert booking: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	if err := insertTickets(ctx, tx, id, booking.TripID, booking.Tickets); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking: %w", err)
	}

	booking.ID = id
	for i := range booking.Tickets {
		booking.Tickets[i].BookingID = id
		booking.Tickets[i].TripID = booking.TripID
	}
	booking.RefundAmount = 0
	booking.ReminderSent = false
	booking.CreatedAt = now
	booking.UpdatedAt = now
	booking.Version = 1
	return nil
}

func insertTickets(ctx context.Context, tx *sql.Tx, bookingID, tripID int64, tickets []models.Ticket) error {
	query := `INSERT INTO tickets (booking_id, trip_id, seat_code, passenger_name, passenger_phone, price, boarded, active)
              VALUES (?, ?, ?, ?, ?, ?, ?, 1)`
	for i := range tickets {
		t := &tickets[i]
		result, err := tx.ExecContext(ctx, query, bookingID, tripID, t.SeatCode, t.PassengerName, t.PassengerPhone, t.Price, t.Boarded)
		if err != nil {
			if isUniqueViolation(err) {
				return fmt.Errorf("%w: %s", domain.ErrSeatAlreadyBooked, t.SeatCode)
			}
			return fmt.Errorf("failed to insert ticket: %w", err)
		}
		if t.ID, err = result.LastInsertId(); err != nil {
			return fmt.Errorf("failed to get ticket id: %w", err)
		}
	}
	return nil
}

func (db *DB) GetBooking(ctx context.Context, id int64) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE id = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrBookingNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking: %w", err)
	}
	if err := db.attachTickets(ctx, []*models.Booking{booking}); err != nil {
		return nil, err
	}
	return booking, nil
}

func (db *DB) GetBookingByCode(ctx context.Context, code string) (*models.Booking, error) {
	query := `SELECT ` + bookingColumns + ` FROM bookings WHERE code = ?`
	booking, err := scanBooking(db.QueryRowContext(ctx, query, code))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s", domain.ErrBookingNotFound, code)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get booking by code: %w", err)
	}
	if err := db.attachTickets(ctx, []*models.Booking{booking}); err != nil {
		return nil, err
	}
	return booking, nil
}

// UpdateBookingStatus moves the booking to status if nobody changed it since it
// was read. Cancelling also frees the seats in the same transaction.
func (db *DB) UpdateBookingStatus(ctx context.Context, booking *models.Booking, status string) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	var cancelledAt *time.Time
	if status == models.StatusCancelled {
		cancelledAt = &now
	}

	query := `UPDATE bookings
              SET status = ?, refund_amount = ?, cancelled_at = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query, status, booking.RefundAmount, cancelledAt, now, booking.ID, booking.Version)
	if err != nil {
		return fmt.Errorf("failed to update booking status: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}

	if status == models.StatusCancelled {
		if _, err := tx.ExecContext(ctx, `UPDATE tickets SET active = 0 WHERE booking_id = ?`, booking.ID); err != nil {
			return fmt.Errorf("failed to release tickets: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit status update: %w", err)
	}

	booking.Status = status
	booking.Version++
	booking.UpdatedAt = now
	booking.CancelledAt = cancelledAt
	return nil
}

// UpdateBookingDetails writes passenger fields and total. With replaceTickets the
// ticket set is swapped for booking.Tickets; a seat conflict aborts everything.
func (db *DB) UpdateBookingDetails(ctx context.Context, booking *models.Booking, replaceTickets bool) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	now := time.Now().UTC()
	query := `UPDATE bookings
              SET passenger_name = ?, passenger_phone = ?, passenger_email = ?, pickup_point = ?, dropoff_point = ?,
                  total_price = ?, version = version + 1, updated_at = ?
              WHERE id = ? AND version = ?`
	result, err := tx.ExecContext(ctx, query,
		booking.PassengerName,
		booking.PassengerPhone,
		booking.PassengerEmail,
		booking.PickupPoint,
		booking.DropoffPoint,
		booking.TotalPrice,
		now,
		booking.ID,
		booking.Version,
	)
	if err != nil {
		return fmt.Errorf("failed to update booking: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return domain.ErrConcurrentModification
	}

	if replaceTickets {
		if _, err := tx.ExecContext(ctx, `DELETE FROM tickets WHERE booking_id = ?`, booking.ID); err != nil {
			return fmt.Errorf("failed to delete tickets: %w", err)
		}
		if err := insertTickets(ctx, tx, booking.ID, booking.TripID, booking.Tickets); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit booking update: %w", err)
	}

	for i := range booking.Tickets {
		booking.Tickets[i].BookingID = booking.ID
		booking.Tickets[i].TripID = booking.TripID
	}
	booking.Version++
	booking.UpdatedAt = now
	return nil
}

// GetBookedSeats maps every seat held by a live booking to that booking's id.
func (db *DB) GetBookedSeats(ctx context.Context, tripID int64) (map[string]int64, error) {
	query := `SELECT seat_code, booking_id FROM tickets WHERE trip_id = ? AND active = 1`
	rows, err := db.QueryContext(ctx, query, tripID)
	if err != nil {
		return nil, fmt.Errorf("failed to get booked seats: %w", err)
	}
	defer rows.Close()

	seats := make(map[string]int64)
	for rows.Next() {
		var (
			seat      string
			bookingID int64
		)
		if err := rows.Scan(&seat, &bookingID); err != nil {
			return nil, fmt.Errorf("failed to scan booked seat: %w", err)
		}
		seats[seat] = bookingID
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate booked seats: %w", err)
	}
	return seats, nil
}

func (db *DB) GetExpiredPendingBookings(ctx context.Context, cutoff time.Time) ([]*models.Booking, error) {
	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE status = ? AND created_at < ? ORDER BY created_at, id`
	return db.queryBookings(ctx, query, models.StatusPending, cutoff.UTC())
}

// GetBookingsNeedingReminder returns confirmed, not yet reminded bookings whose
// trip departs within [from, to].
func (db *DB) GetBookingsNeedingReminder(ctx context.Context, from, to time.Time) ([]*models.Booking, error) {
	query := `SELECT b.id, b.code, b.trip_id, b.user_id, b.holder_id, b.status, b.total_price, b.refund_amount,
                     b.passenger_name, b.passenger_phone, b.passenger_email, b.pickup_point, b.dropoff_point,
                     b.reminder_sent, b.created_at, b.updated_at, b.cancelled_at, b.version
              FROM bookings b
              JOIN trips t ON t.id = b.trip_id
              WHERE b.status = ? AND b.reminder_sent = 0 AND t.status != ?
                AND t.departure_time >= ? AND t.departure_time <= ?
              ORDER BY t.departure_time, b.id`
	return db.queryBookings(ctx, query, models.StatusConfirmed, models.TripCancelled, from.UTC(), to.UTC())
}

func (db *DB) MarkReminderSent(ctx context.Context, bookingID int64) error {
	query := `UPDATE bookings SET reminder_sent = 1, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, time.Now().UTC(), bookingID)
	if err != nil {
		return fmt.Errorf("failed to mark reminder sent: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", domain.ErrBookingNotFound, bookingID)
	}
	return nil
}

// GetUserBookings returns one page of the user's bookings, newest first, with the total count.
func (db *DB) GetUserBookings(ctx context.Context, userID int64, limit, offset int) ([]*models.Booking, int, error) {
	var total int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM bookings WHERE user_id = ?`, userID).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("failed to count user bookings: %w", err)
	}
	if total == 0 {
		return []*models.Booking{}, 0, nil
	}

	query := `SELECT ` + bookingColumns + `
              FROM bookings WHERE user_id = ? ORDER BY created_at DESC, id DESC LIMIT ? OFFSET ?`
	bookings, err := db.queryBookings(ctx, query, userID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	return bookings, total, nil
}

func (db *DB) queryBookings(ctx context.Context, query string, args ...any) ([]*models.Booking, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query bookings: %w", err)
	}

	bookings := []*models.Booking{}
	for rows.Next() {
		b, err := scanBooking(rows)
		if err != nil {
			_ = rows.Close()
			return nil, fmt.Errorf("failed to scan booking: %w", err)
		}
		bookings = append(bookings, b)
	}
	if err := rows.Err(); err != nil {
		_ = rows.Close()
		return nil, fmt.Errorf("failed to iterate bookings: %w", err)
	}
	// Одно соединение: курсор нужно закрыть до запроса билетов
	_ = rows.Close()

	if err := db.attachTickets(ctx, bookings); err != nil {
		return nil, err
	}
	return bookings, nil
}

func (db *DB) attachTickets(ctx context.Context, bookings []*models.Booking) error {
	if len(bookings) == 0 {
		return nil
	}

	ids := make([]any, 0, len(bookings))
	byID := make(map[int64]*models.Booking, len(bookings))
	for _, b := range bookings {
		b.Tickets = []models.Ticket{}
		ids = append(ids, b.ID)
		byID[b.ID] = b
	}

	query := `SELECT id, booking_id, trip_id, seat_code, passenger_name, passenger_phone, price, boarded
              FROM tickets WHERE booking_id IN (` + placeholders(len(ids)) + `) ORDER BY id`
	rows, err := db.QueryContext(ctx, query, ids...)
	if err != nil {
		return fmt.Errorf("failed to get tickets: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var t models.Ticket
		if err := rows.Scan(&t.ID, &t.BookingID, &t.TripID, &t.SeatCode, &t.PassengerName, &t.PassengerPhone, &t.Price, &t.Boarded); err != nil {
			return fmt.Errorf("failed to scan ticket: %w", err)
		}
		if b, ok := byID[t.BookingID]; ok {
			b.Tickets = append(b.Tickets, t)
		}
	}
	return rows.Err()
}
