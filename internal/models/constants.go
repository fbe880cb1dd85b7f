package models

const (
	StatusPending   = "pending"
	StatusConfirmed = "confirmed"
	StatusCancelled = "cancelled"
)

const (
	TripScheduled = "scheduled"
	TripDelayed   = "delayed"
	TripBoarding  = "boarding"
	TripDeparted  = "departed"
	TripRunning   = "running"
	TripCompleted = "completed"
	TripCancelled = "cancelled"
)

const (
	RecurrenceNone   = "NONE"
	RecurrenceDaily  = "DAILY"
	RecurrenceWeekly = "WEEKLY"
)

const (
	SeatBooked = "BOOKED"
	SeatLocked = "LOCKED"
)

const (
	// DefaultSeatLockTTL время удержания места до оформления брони
	DefaultSeatLockTTL = 10 * 60 // 10 минут в секундах

	// DefaultPendingExpiry через сколько неоплаченная бронь отменяется
	DefaultPendingExpiry = 15 * 60 // 15 минут в секундах

	// DefaultDaysAhead горизонт генерации рейсов по расписанию
	DefaultDaysAhead = 7

	// MaxManualDaysAhead ограничение горизонта для ручного запуска
	MaxManualDaysAhead = 90

	// DefaultReminderLeadHours за сколько часов до отправления шлём напоминание
	DefaultReminderLeadHours = 24

	// DefaultPageSize размер страницы списка броней
	DefaultPageSize = 10

	// MaxPageSize верхняя граница размера страницы
	MaxPageSize = 100

	// DefaultBookingCodePrefix префикс кода брони
	DefaultBookingCodePrefix = "BUS"
)
