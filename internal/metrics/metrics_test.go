package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestMetrics(t *testing.T) {
	// Register should be safe to call multiple times
	Register()
	Register()

	assert.NotPanics(t, func() {
		IncHTTP("test_endpoint")
	})

	before := testutil.ToFloat64(seatLockAttempts.WithLabelValues("granted"))
	IncSeatLock("granted")
	assert.Equal(t, before+1, testutil.ToFloat64(seatLockAttempts.WithLabelValues("granted")))

	beforeTrips := testutil.ToFloat64(tripsGenerated)
	AddTripsGenerated(3)
	assert.Equal(t, beforeTrips+3, testutil.ToFloat64(tripsGenerated))

	assert.NotPanics(t, func() {
		IncBookingTransition("pending_to_confirmed")
		IncSweeperItem("expiration", "ok")
		AddSweeperItems("lock_janitor", "ok", 2)
		IncPricingParseFailure()
	})
}
