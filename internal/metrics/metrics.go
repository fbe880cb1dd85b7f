package metrics

import (
	"sync"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	once sync.Once

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busline",
			Name:      "http_requests_total",
			Help:      "HTTP requests by endpoint.",
		},
		[]string{"endpoint"},
	)

	seatLockAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busline",
			Name:      "seat_lock_attempts_total",
			Help:      "Seat lock attempts by result (granted, booked, locked, error).",
		},
		[]string{"result"},
	)

	bookingTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busline",
			Name:      "booking_transitions_total",
			Help:      "Booking lifecycle transitions.",
		},
		[]string{"transition"},
	)

	sweeperItems = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "busline",
			Name:      "sweeper_items_total",
			Help:      "Items processed by periodic sweepers.",
		},
		[]string{"sweeper", "result"},
	)

	tripsGenerated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "busline",
			Name:      "trips_generated_total",
			Help:      "Trips created from schedules.",
		},
	)

	pricingParseFailures = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "busline",
			Name:      "schedule_pricing_parse_failures_total",
			Help:      "Trips generated without pricing because the schedule pricing could not be parsed.",
		},
	)
)

// Register registers Prometheus metrics. Safe to call multiple times.
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			httpRequests,
			seatLockAttempts,
			bookingTransitions,
			sweeperItems,
			tripsGenerated,
			pricingParseFailures,
		)
	})
}

// IncHTTP increments the counter for an endpoint label.
func IncHTTP(endpoint string) {
	httpRequests.WithLabelValues(endpoint).Inc()
}

func IncSeatLock(result string) {
	seatLockAttempts.WithLabelValues(result).Inc()
}

func IncBookingTransition(transition string) {
	bookingTransitions.WithLabelValues(transition).Inc()
}

func IncSweeperItem(sweeper, result string) {
	sweeperItems.WithLabelValues(sweeper, result).Inc()
}

func AddSweeperItems(sweeper, result string, n int) {
	sweeperItems.WithLabelValues(sweeper, result).Add(float64(n))
}

func AddTripsGenerated(n int) {
	tripsGenerated.Add(float64(n))
}

func IncPricingParseFailure() {
	pricingParseFailures.Inc()
}
