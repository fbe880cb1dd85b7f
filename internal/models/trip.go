package models

import "time"

type Route struct {
	ID              int64  `json:"id"`
	Origin          string `json:"origin"`
	Destination     string `json:"destination"`
	DurationMinutes int    `json:"duration_minutes"`
}

type Trip struct {
	ID            int64       `json:"id"`
	RouteID       int64       `json:"route_id"`
	VehicleID     int64       `json:"vehicle_id"`
	DepartureTime time.Time   `json:"departure_time"`
	ArrivalTime   time.Time   `json:"arrival_time"`
	Status        string      `json:"status"`
	Prices        []TripPrice `json:"prices"`
	ScheduleID    *int64      `json:"schedule_id,omitempty"`
	CreatedAt     time.Time   `json:"created_at"`
	UpdatedAt     time.Time   `json:"updated_at"`
}

type TripPrice struct {
	SeatType string  `json:"seat_type"`
	Price    float64 `json:"price"`
}

// Bookable reports whether new bookings may still be placed on the trip.
func (t *Trip) Bookable() bool {
	switch t.Status {
	case TripCancelled, TripDeparted, TripRunning, TripCompleted:
		return false
	default:
		return true
	}
}

// Overlaps uses a half-open interval test: touching trips do not overlap.
func (t *Trip) Overlaps(departure, arrival time.Time) bool {
	return t.DepartureTime.Before(arrival) && t.ArrivalTime.After(departure)
}

// SeatState is the merged view of a seat: durably booked or held by a live lock.
type SeatState struct {
	State    string `json:"state"`
	HolderID string `json:"holder_id,omitempty"`
}

type SeatLock struct {
	TripID    int64     `json:"trip_id"`
	SeatCode  string    `json:"seat_code"`
	HolderID  string    `json:"holder_id"`
	ExpiresAt time.Time `json:"expires_at"`
}

// GenerationReport summarizes one schedule expansion run.
type GenerationReport struct {
	Created int `json:"created"`
	Skipped int `json:"skipped"`
	Failed  int `json:"failed"`
}
