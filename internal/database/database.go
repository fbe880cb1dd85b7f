package database

import (
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/mattn/go-sqlite3"
	"github.com/rs/zerolog"
)

const dateLayout = "2006-01-02"

// DB is the SQLite-backed persistence gateway. A single connection serializes
// writers, so check-then-insert transactions are atomic.
type DB struct {
	*sql.DB
	logger *zerolog.Logger
}

func NewDB(path string, logger *zerolog.Logger) (*DB, error) {
	if path != ":memory:" {
		// Создаем директорию для БД, если её нет
		dir := filepath.Dir(path)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	dsn := path + "?_busy_timeout=5000&_foreign_keys=on&_journal_mode=WAL&_txlock=immediate"
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := sqlDB.Ping(); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}

	if err := createTables(sqlDB); err != nil {
		_ = sqlDB.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	logger.Info().Str("path", path).Msg("database initialized")
	return &DB{DB: sqlDB, logger: logger}, nil
}

// NewWithConn wraps an already opened connection without touching the schema.
func NewWithConn(sqlDB *sql.DB, logger *zerolog.Logger) *DB {
	return &DB{DB: sqlDB, logger: logger}
}

func createTables(db *sql.DB) error {
	queries := []string{
		`CREATE TABLE IF NOT EXISTS routes (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            origin TEXT NOT NULL,
            destination TEXT NOT NULL,
            duration_minutes INTEGER NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS trip_schedules (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            route_id INTEGER NOT NULL REFERENCES routes(id),
            vehicle_id INTEGER NOT NULL,
            departure_time TEXT NOT NULL,
            recurrence TEXT NOT NULL DEFAULT 'NONE',
            weekly_days TEXT NOT NULL DEFAULT '',
            start_date TEXT NOT NULL,
            end_date TEXT,
            active BOOLEAN NOT NULL DEFAULT 1,
            pricing TEXT NOT NULL DEFAULT '',
            created_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS trips (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            route_id INTEGER NOT NULL REFERENCES routes(id),
            vehicle_id INTEGER NOT NULL,
            departure_time DATETIME NOT NULL,
            arrival_time DATETIME NOT NULL,
            status TEXT NOT NULL DEFAULT 'scheduled',
            schedule_id INTEGER REFERENCES trip_schedules(id),
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS trip_prices (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            trip_id INTEGER NOT NULL REFERENCES trips(id) ON DELETE CASCADE,
            position INTEGER NOT NULL,
            seat_type TEXT NOT NULL,
            price REAL NOT NULL
        )`,
		`CREATE TABLE IF NOT EXISTS bookings (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            code TEXT NOT NULL UNIQUE,
            trip_id INTEGER NOT NULL REFERENCES trips(id),
            user_id INTEGER,
            holder_id TEXT NOT NULL DEFAULT '',
            status TEXT NOT NULL DEFAULT 'pending',
            total_price REAL NOT NULL,
            refund_amount REAL NOT NULL DEFAULT 0,
            passenger_name TEXT NOT NULL,
            passenger_phone TEXT NOT NULL,
            passenger_email TEXT NOT NULL,
            pickup_point TEXT NOT NULL DEFAULT '',
            dropoff_point TEXT NOT NULL DEFAULT '',
            reminder_sent BOOLEAN NOT NULL DEFAULT 0,
            created_at DATETIME NOT NULL,
            updated_at DATETIME NOT NULL,
            cancelled_at DATETIME,
            version INTEGER NOT NULL DEFAULT 1
        )`,
		`CREATE TABLE IF NOT EXISTS tickets (
            id INTEGER PRIMARY KEY AUTOINCREMENT,
            booking_id INTEGER NOT NULL REFERENCES bookings(id),
            trip_id INTEGER NOT NULL REFERENCES trips(id),
            seat_code TEXT NOT NULL,
            passenger_name TEXT NOT NULL DEFAULT '',
            passenger_phone TEXT NOT NULL DEFAULT '',
            price REAL NOT NULL DEFAULT 0,
            boarded BOOLEAN NOT NULL DEFAULT 0,
            active BOOLEAN NOT NULL DEFAULT 1
        )`,

		// Место занято не более чем одной живой бронью
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_tickets_live_seat ON tickets(trip_id, seat_code) WHERE active = 1`,

		`CREATE INDEX IF NOT EXISTS idx_tickets_booking_id ON tickets(booking_id)`,
		`CREATE INDEX IF NOT EXISTS idx_trips_vehicle_departure ON trips(vehicle_id, departure_time)`,
		`CREATE INDEX IF NOT EXISTS idx_trip_prices_trip_id ON trip_prices(trip_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_status_created ON bookings(status, created_at)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_user_id ON bookings(user_id)`,
		`CREATE INDEX IF NOT EXISTS idx_bookings_trip_id ON bookings(trip_id)`,
		`CREATE INDEX IF NOT EXISTS idx_schedules_active ON trip_schedules(active, start_date)`,
	}

	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			return fmt.Errorf("error executing query %s: %w", query, err)
		}
	}
	return nil
}

func isUniqueViolation(err error) bool {
	var sqliteErr sqlite3.Error
	return errors.As(err, &sqliteErr) && sqliteErr.ExtendedCode == sqlite3.ErrConstraintUnique
}

type rowScanner interface {
	Scan(dest ...any) error
}

func placeholders(n int) string {
	if n <= 0 {
		return ""
	}
	return strings.Repeat("?,", n-1) + "?"
}
