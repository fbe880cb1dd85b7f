package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"busline/internal/domain"
	"busline/internal/models"
)

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// CreateRoute rejects routes without a positive duration: a zero-length trip
// never overlaps anything and repeated expansion would duplicate it.
func (db *DB) CreateRoute(ctx context.Context, route *models.Route) error {
	if route.DurationMinutes <= 0 {
		return fmt.Errorf("%w: route duration must be positive, got %d", domain.ErrValidation, route.DurationMinutes)
	}
	query := `INSERT INTO routes (origin, destination, duration_minutes) VALUES (?, ?, ?)`
	result, err := db.ExecContext(ctx, query, route.Origin, route.Destination, route.DurationMinutes)
	if err != nil {
		return fmt.Errorf("failed to create route: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	route.ID = id
	return nil
}

func (db *DB) GetRoute(ctx context.Context, id int64) (*models.Route, error) {
	var route models.Route
	query := `SELECT id, origin, destination, duration_minutes FROM routes WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(&route.ID, &route.Origin, &route.Destination, &route.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrRouteNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return &route, nil
}

func (db *DB) CreateTrip(ctx context.Context, trip *models.Trip) error {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	if err := insertTrip(ctx, tx, trip); err != nil {
		return err
	}
	return tx.Commit()
}

// CreateTripIfNoOverlap inserts the trip unless the vehicle already runs an
// overlapping trip. Check and insert share one transaction.
func (db *DB) CreateTripIfNoOverlap(ctx context.Context, trip *models.Trip) (bool, error) {
	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	overlap, err := hasOverlap(ctx, tx, trip.VehicleID, trip.DepartureTime, trip.ArrivalTime)
	if err != nil {
		return false, err
	}
	if overlap {
		return false, nil
	}

	if err := insertTrip(ctx, tx, trip); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("failed to commit trip: %w", err)
	}
	return true, nil
}

func (db *DB) HasOverlappingTrip(ctx context.Context, vehicleID int64, departure, arrival time.Time) (bool, error) {
	return hasOverlap(ctx, db, vehicleID, departure, arrival)
}

func hasOverlap(ctx context.Context, q querier, vehicleID int64, departure, arrival time.Time) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM trips
                WHERE vehicle_id = ? AND departure_time < ? AND arrival_time > ?
              )`
	var exists bool
	if err := q.QueryRowContext(ctx, query, vehicleID, arrival.UTC(), departure.UTC()).Scan(&exists); err != nil {
		return false, fmt.Errorf("failed to check trip overlap: %w", err)
	}
	return exists, nil
}

func insertTrip(ctx context.Context, tx *sql.Tx, trip *models.Trip) error {
	if trip.Status == "" {
		trip.Status = models.TripScheduled
	}
	now := time.Now().UTC()
	query := `INSERT INTO trips (route_id, vehicle_id, departure_time, arrival_time, status, schedule_id, created_at, updated_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := tx.ExecContext(ctx, query,
		trip.RouteID,
		trip.VehicleID,
		trip.DepartureTime.UTC(),
		trip.ArrivalTime.UTC(),
		trip.Status,
		trip.ScheduleID,
		now,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to insert trip: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}

	for i, price := range trip.Prices {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO trip_prices (trip_id, position, seat_type, price) VALUES (?, ?, ?, ?)`,
			id, i, price.SeatType, price.Price,
		)
		if err != nil {
			return fmt.Errorf("failed to insert trip price: %w", err)
		}
	}

	trip.ID = id
	trip.CreatedAt = now
	trip.UpdatedAt = now
	return nil
}

func (db *DB) GetTrip(ctx context.Context, id int64) (*models.Trip, error) {
	var (
		trip       models.Trip
		scheduleID sql.NullInt64
	)
	query := `SELECT id, route_id, vehicle_id, departure_time, arrival_time, status, schedule_id, created_at, updated_at
              FROM trips WHERE id = ?`
	err := db.QueryRowContext(ctx, query, id).Scan(
		&trip.ID, &trip.RouteID, &trip.VehicleID, &trip.DepartureTime, &trip.ArrivalTime,
		&trip.Status, &scheduleID, &trip.CreatedAt, &trip.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %d", domain.ErrTripNotFound, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get trip: %w", err)
	}
	if scheduleID.Valid {
		trip.ScheduleID = &scheduleID.Int64
	}

	rows, err := db.QueryContext(ctx, `SELECT seat_type, price FROM trip_prices WHERE trip_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to get trip prices: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var p models.TripPrice
		if err := rows.Scan(&p.SeatType, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan trip price: %w", err)
		}
		trip.Prices = append(trip.Prices, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate trip prices: %w", err)
	}
	return &trip, nil
}

// UpdateTripStatus is used by operational tooling and tests; bookings are not touched.
func (db *DB) UpdateTripStatus(ctx context.Context, id int64, status string) error {
	query := `UPDATE trips SET status = ?, updated_at = ? WHERE id = ?`
	result, err := db.ExecContext(ctx, query, status, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to update trip status: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", domain.ErrTripNotFound, id)
	}
	return nil
}

func (db *DB) CountTripsForSchedule(ctx context.Context, scheduleID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM trips WHERE schedule_id = ?`, scheduleID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count trips: %w", err)
	}
	return count, nil
}

func (db *DB) CreateSchedule(ctx context.Context, s *models.TripSchedule) error {
	if s.Recurrence == "" {
		s.Recurrence = models.RecurrenceNone
	}
	var endDate any
	if s.EndDate != nil {
		endDate = s.EndDate.Format(dateLayout)
	}
	days := make([]string, 0, len(s.WeeklyDays))
	for _, d := range s.WeeklyDays {
		days = append(days, models.NormalizeWeekday(d))
	}

	now := time.Now().UTC()
	query := `INSERT INTO trip_schedules (route_id, vehicle_id, departure_time, recurrence, weekly_days, start_date, end_date, active, pricing, created_at)
              VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	result, err := db.ExecContext(ctx, query,
		s.RouteID,
		s.VehicleID,
		s.DepartureTime,
		strings.ToUpper(s.Recurrence),
		strings.Join(days, ","),
		s.StartDate.Format(dateLayout),
		endDate,
		s.Active,
		s.Pricing,
		now,
	)
	if err != nil {
		return fmt.Errorf("failed to create schedule: %w", err)
	}
	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	s.ID = id
	s.CreatedAt = now
	return nil
}

// GetSchedulesActiveOn returns active recurring schedules whose validity window covers date.
func (db *DB) GetSchedulesActiveOn(ctx context.Context, date time.Time) ([]*models.TripSchedule, error) {
	day := date.Format(dateLayout)
	query := `SELECT id, route_id, vehicle_id, departure_time, recurrence, weekly_days, start_date, end_date, active, pricing, created_at
              FROM trip_schedules
              WHERE active = 1 AND recurrence != ? AND start_date <= ? AND (end_date IS NULL OR end_date >= ?)
              ORDER BY id`
	rows, err := db.QueryContext(ctx, query, models.RecurrenceNone, day, day)
	if err != nil {
		return nil, fmt.Errorf("failed to get active schedules: %w", err)
	}
	defer rows.Close()

	var schedules []*models.TripSchedule
	for rows.Next() {
		var (
			s         models.TripSchedule
			weekly    string
			startDate string
			endDate   sql.NullString
		)
		err := rows.Scan(&s.ID, &s.RouteID, &s.VehicleID, &s.DepartureTime, &s.Recurrence, &weekly,
			&startDate, &endDate, &s.Active, &s.Pricing, &s.CreatedAt)
		if err != nil {
			return nil, fmt.Errorf("failed to scan schedule: %w", err)
		}
		if weekly != "" {
			s.WeeklyDays = strings.Split(weekly, ",")
		}
		s.StartDate, err = time.Parse(dateLayout, startDate)
		if err != nil {
			return nil, fmt.Errorf("failed to parse schedule start date %s: %w", startDate, err)
		}
		if endDate.Valid {
			end, err := time.Parse(dateLayout, endDate.String)
			if err != nil {
				return nil, fmt.Errorf("failed to parse schedule end date %s: %w", endDate.String, err)
			}
			s.EndDate = &end
		}
		schedules = append(schedules, &s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate schedules: %w", err)
	}
	return schedules, nil
}

// GetRouteByEndpoints finds a route by its origin and destination, ignoring case.
func (db *DB) GetRouteByEndpoints(ctx context.Context, origin, destination string) (*models.Route, error) {
	var route models.Route
	query := `SELECT id, origin, destination, duration_minutes FROM routes
              WHERE origin = ? COLLATE NOCASE AND destination = ? COLLATE NOCASE
              ORDER BY id LIMIT 1`
	err := db.QueryRowContext(ctx, query, strings.TrimSpace(origin), strings.TrimSpace(destination)).
		Scan(&route.ID, &route.Origin, &route.Destination, &route.DurationMinutes)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%w: %s - %s", domain.ErrRouteNotFound, origin, destination)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get route: %w", err)
	}
	return &route, nil
}

// UpdateRouteDuration is used when seed data changes a route's travel time.
func (db *DB) UpdateRouteDuration(ctx context.Context, id int64, minutes int) error {
	if minutes <= 0 {
		return fmt.Errorf("%w: route duration must be positive, got %d", domain.ErrValidation, minutes)
	}
	result, err := db.ExecContext(ctx, `UPDATE routes SET duration_minutes = ? WHERE id = ?`, minutes, id)
	if err != nil {
		return fmt.Errorf("failed to update route: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %d", domain.ErrRouteNotFound, id)
	}
	return nil
}

// HasSchedule reports whether an identical schedule is already stored.
func (db *DB) HasSchedule(ctx context.Context, s *models.TripSchedule) (bool, error) {
	query := `SELECT EXISTS (
                SELECT 1 FROM trip_schedules
                WHERE route_id = ? AND vehicle_id = ? AND departure_time = ? AND recurrence = ? AND start_date = ?
              )`
	var exists bool
	err := db.QueryRowContext(ctx, query,
		s.RouteID, s.VehicleID, s.DepartureTime, strings.ToUpper(s.Recurrence), s.StartDate.Format(dateLayout),
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("failed to check schedule: %w", err)
	}
	return exists, nil
}
