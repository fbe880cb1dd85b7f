package models

import (
	"strings"
	"time"
)

type Booking struct {
	ID             int64      `json:"id"`
	Code           string     `json:"code"`
	TripID         int64      `json:"trip_id"`
	UserID         *int64     `json:"user_id,omitempty"`
	HolderID       string     `json:"-"`
	Status         string     `json:"status"` // pending, confirmed, cancelled
	TotalPrice     float64    `json:"total_price"`
	RefundAmount   float64    `json:"refund_amount"`
	PassengerName  string     `json:"passenger_name"`
	PassengerPhone string     `json:"passenger_phone"`
	PassengerEmail string     `json:"passenger_email"`
	PickupPoint    string     `json:"pickup_point,omitempty"`
	DropoffPoint   string     `json:"dropoff_point,omitempty"`
	ReminderSent   bool       `json:"reminder_sent"`
	Tickets        []Ticket   `json:"tickets"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
	CancelledAt    *time.Time `json:"cancelled_at,omitempty"`
	Version        int64      `json:"version"`
}

// Ticket is one seat inside a booking. It holds the seat while the booking is live.
type Ticket struct {
	ID             int64   `json:"id"`
	BookingID      int64   `json:"booking_id"`
	TripID         int64   `json:"trip_id"`
	SeatCode       string  `json:"seat_code"`
	PassengerName  string  `json:"passenger_name"`
	PassengerPhone string  `json:"passenger_phone"`
	Price          float64 `json:"price"`
	Boarded        bool    `json:"boarded"`
}

// PassengerInfo holds the contact fields of a booking.
type PassengerInfo struct {
	Name         string `json:"name"`
	Phone        string `json:"phone"`
	Email        string `json:"email"`
	PickupPoint  string `json:"pickup_point,omitempty"`
	DropoffPoint string `json:"dropoff_point,omitempty"`
}

type SeatRequest struct {
	SeatCode       string  `json:"seat_code"`
	PassengerName  string  `json:"passenger_name"`
	PassengerPhone string  `json:"passenger_phone"`
	Price          float64 `json:"price"`
}

type BookingPage struct {
	Items []*Booking `json:"items"`
	Page  int        `json:"page"`
	Size  int        `json:"size"`
	Total int        `json:"total"`
}

// IsLive reports whether the booking still holds its seats.
func (b *Booking) IsLive() bool {
	return b.Status != StatusCancelled
}

func (b *Booking) SeatCodes() []string {
	seats := make([]string, 0, len(b.Tickets))
	for _, t := range b.Tickets {
		seats = append(seats, t.SeatCode)
	}
	return seats
}

func (b *Booking) ApplyPassenger(info PassengerInfo) {
	b.PassengerName = strings.TrimSpace(info.Name)
	b.PassengerPhone = strings.TrimSpace(info.Phone)
	b.PassengerEmail = strings.TrimSpace(info.Email)
	b.PickupPoint = strings.TrimSpace(info.PickupPoint)
	b.DropoffPoint = strings.TrimSpace(info.DropoffPoint)
}

// NormalizeSeat canonicalizes a seat code ("  b2 " -> "B2").
func NormalizeSeat(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}
