package database

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"busline/internal/domain"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestConcurrentSeatBooking(t *testing.T) {
	db := setupTestDB(t)
	ctx := context.Background()
	trip := seedTrip(t, db, 1, time.Now().Add(48*time.Hour))

	const numGoroutines = 10
	var wg sync.WaitGroup
	wg.Add(numGoroutines)

	results := make(chan error, numGoroutines)

	for i := 0; i < numGoroutines; i++ {
		go func(id int) {
			defer wg.Done()
			booking := newBooking(trip.ID, fmt.Sprintf("BUSRACE%04d", id), "A1")
			results <- db.CreateBooking(ctx, booking)
		}(i)
	}

	wg.Wait()
	close(results)

	successCount := 0
	conflictCount := 0
	for err := range results {
		switch {
		case err == nil:
			successCount++
		case errors.Is(err, domain.ErrSeatAlreadyBooked):
			conflictCount++
		default:
			t.Errorf("unexpected error: %v", err)
		}
	}

	assert.Equal(t, 1, successCount, "exactly one booking must win the seat")
	assert.Equal(t, numGoroutines-1, conflictCount)

	seats, err := db.GetBookedSeats(ctx, trip.ID)
	require.NoError(t, err)
	assert.Len(t, seats, 1)
}
