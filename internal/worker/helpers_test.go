package worker

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"busline/internal/database"
	"busline/internal/models"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
)

func testLogger() *zerolog.Logger {
	l := zerolog.New(io.Discard)
	return &l
}

func newTestDB(t *testing.T) *database.DB {
	t.Helper()
	db, err := database.NewDB(filepath.Join(t.TempDir(), "busline.db"), testLogger())
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func seedTrip(t *testing.T, db *database.DB, departure time.Time) *models.Trip {
	t.Helper()
	ctx := context.Background()
	route := &models.Route{Origin: "Samara", Destination: "Saratov", DurationMinutes: 360}
	require.NoError(t, db.CreateRoute(ctx, route))
	trip := &models.Trip{RouteID: route.ID, VehicleID: 1, DepartureTime: departure, ArrivalTime: departure.Add(6 * time.Hour)}
	require.NoError(t, db.CreateTrip(ctx, trip))
	return trip
}
