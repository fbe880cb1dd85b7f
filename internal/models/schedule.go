package models

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"
)

// TripSchedule is a recurrence template expanded into concrete trips.
type TripSchedule struct {
	ID            int64      `json:"id"`
	RouteID       int64      `json:"route_id"`
	VehicleID     int64      `json:"vehicle_id"`
	DepartureTime string     `json:"departure_time"` // HH:MM
	Recurrence    string     `json:"recurrence"`
	WeeklyDays    []string   `json:"weekly_days,omitempty"`
	StartDate     time.Time  `json:"start_date"`
	EndDate       *time.Time `json:"end_date,omitempty"`
	Active        bool       `json:"active"`
	Pricing       string     `json:"pricing"`
	CreatedAt     time.Time  `json:"created_at"`
}

var weekdayCodes = map[time.Weekday]string{
	time.Monday:    "MON",
	time.Tuesday:   "TUE",
	time.Wednesday: "WED",
	time.Thursday:  "THU",
	time.Friday:    "FRI",
	time.Saturday:  "SAT",
	time.Sunday:    "SUN",
}

// WeekdayCode returns the three-letter code used in WeeklyDays.
func WeekdayCode(d time.Weekday) string {
	return weekdayCodes[d]
}

// NormalizeWeekday accepts "mon", "Monday", "MONDAY" and returns "MON".
func NormalizeWeekday(raw string) string {
	s := strings.ToUpper(strings.TrimSpace(raw))
	if len(s) > 3 {
		s = s[:3]
	}
	return s
}

// AppliesOn decides whether the schedule produces a trip on the given date.
func (s *TripSchedule) AppliesOn(date time.Time) bool {
	switch s.Recurrence {
	case RecurrenceDaily:
		return true
	case RecurrenceWeekly:
		code := WeekdayCode(date.Weekday())
		for _, d := range s.WeeklyDays {
			if NormalizeWeekday(d) == code {
				return true
			}
		}
		return false
	default:
		return false
	}
}

// DepartureOn combines the time of day with the calendar date of day in loc.
func (s *TripSchedule) DepartureOn(day time.Time, loc *time.Location) (time.Time, error) {
	clock, err := time.Parse("15:04", strings.TrimSpace(s.DepartureTime))
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid departure time %q: %w", s.DepartureTime, err)
	}
	return time.Date(day.Year(), day.Month(), day.Day(), clock.Hour(), clock.Minute(), 0, 0, loc), nil
}

// ParsePricing decodes the serialized per-seat-type price list.
func (s *TripSchedule) ParsePricing() ([]TripPrice, error) {
	if strings.TrimSpace(s.Pricing) == "" {
		return nil, nil
	}
	var prices []TripPrice
	if err := json.Unmarshal([]byte(s.Pricing), &prices); err != nil {
		return nil, fmt.Errorf("parse pricing: %w", err)
	}
	for i, p := range prices {
		if strings.TrimSpace(p.SeatType) == "" {
			return nil, fmt.Errorf("parse pricing: entry %d has no seat_type", i)
		}
	}
	return prices, nil
}
