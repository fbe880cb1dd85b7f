package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"busline/internal/config"
	"busline/internal/database"
	"busline/internal/domain"
	"busline/internal/models"
	"busline/internal/service"

	"github.com/rs/zerolog"
	"gopkg.in/yaml.v3"
)

// SeedFile lists routes with their recurring schedules.
type SeedFile struct {
	Routes []SeedRoute `yaml:"routes"`
}

type SeedRoute struct {
	Origin          string         `yaml:"origin"`
	Destination     string         `yaml:"destination"`
	DurationMinutes int            `yaml:"duration_minutes"`
	Schedules       []SeedSchedule `yaml:"schedules"`
}

type SeedSchedule struct {
	VehicleID     int64       `yaml:"vehicle_id"`
	DepartureTime string      `yaml:"departure_time"`
	Recurrence    string      `yaml:"recurrence"`
	WeeklyDays    []string    `yaml:"weekly_days"`
	StartDate     string      `yaml:"start_date"`
	EndDate       string      `yaml:"end_date"`
	Pricing       []SeedPrice `yaml:"pricing"`
}

type SeedPrice struct {
	SeatType string  `yaml:"seat_type"`
	Price    float64 `yaml:"price"`
}

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.RFC3339}).With().Timestamp().Logger()

	defaultConfig := os.Getenv("CONFIG_PATH")
	if defaultConfig == "" {
		defaultConfig = "configs/config.yaml"
	}
	var (
		configPath = flag.String("config", defaultConfig, "path to config.yaml")
		seedPath   = flag.String("seed", "", "optional routes/schedules yaml to load before expanding")
		days       = flag.Int("days", 0, "days ahead to expand (default: schedule.days_ahead)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		return fmt.Errorf("open db: %w", err)
	}
	defer db.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	if *seedPath != "" {
		if err := seed(ctx, db, *seedPath, &logger); err != nil {
			return err
		}
	}

	horizon := *days
	if horizon == 0 {
		horizon = cfg.Schedule.DaysAhead
	}

	svc := service.NewScheduleService(db, nil, cfg.Schedule.DaysAhead, cfg.Schedule.MaxManualDays, loc, &logger)
	created, err := svc.GenerateTripsManual(ctx, horizon)
	if err != nil {
		return fmt.Errorf("expand schedules: %w", err)
	}

	logger.Info().Int("days", horizon).Int("created", created).Msg("expansion complete")
	return nil
}

func seed(ctx context.Context, db *database.DB, path string, logger *zerolog.Logger) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read seed: %w", err)
	}
	var file SeedFile
	if err = yaml.Unmarshal(data, &file); err != nil {
		return fmt.Errorf("parse seed: %w", err)
	}
	if len(file.Routes) == 0 {
		return fmt.Errorf("no routes in seed file")
	}

	routesCreated, schedulesCreated := 0, 0
	for _, r := range file.Routes {
		if r.Origin == "" || r.Destination == "" || r.DurationMinutes <= 0 {
			logger.Warn().Str("origin", r.Origin).Str("destination", r.Destination).Msg("incomplete route skipped")
			continue
		}

		route, err := db.GetRouteByEndpoints(ctx, r.Origin, r.Destination)
		switch {
		case errors.Is(err, domain.ErrRouteNotFound):
			route = &models.Route{Origin: r.Origin, Destination: r.Destination, DurationMinutes: r.DurationMinutes}
			if err = db.CreateRoute(ctx, route); err != nil {
				return fmt.Errorf("create route %s - %s: %w", r.Origin, r.Destination, err)
			}
			routesCreated++
		case err != nil:
			return fmt.Errorf("get route %s - %s: %w", r.Origin, r.Destination, err)
		case route.DurationMinutes != r.DurationMinutes:
			if err = db.UpdateRouteDuration(ctx, route.ID, r.DurationMinutes); err != nil {
				return fmt.Errorf("update route %d: %w", route.ID, err)
			}
		}

		for _, s := range r.Schedules {
			schedule, err := s.toModel(route.ID)
			if err != nil {
				return fmt.Errorf("route %s - %s: %w", r.Origin, r.Destination, err)
			}
			exists, err := db.HasSchedule(ctx, schedule)
			if err != nil {
				return err
			}
			if exists {
				continue
			}
			if err = db.CreateSchedule(ctx, schedule); err != nil {
				return fmt.Errorf("create schedule: %w", err)
			}
			schedulesCreated++
		}
	}

	logger.Info().Int("routes_created", routesCreated).Int("schedules_created", schedulesCreated).Msg("seed loaded")
	return nil
}

func (s SeedSchedule) toModel(routeID int64) (*models.TripSchedule, error) {
	start, err := time.Parse("2006-01-02", s.StartDate)
	if err != nil {
		return nil, fmt.Errorf("invalid start_date %q: %w", s.StartDate, err)
	}
	schedule := &models.TripSchedule{
		RouteID:       routeID,
		VehicleID:     s.VehicleID,
		DepartureTime: s.DepartureTime,
		Recurrence:    s.Recurrence,
		WeeklyDays:    s.WeeklyDays,
		StartDate:     start,
		Active:        true,
	}
	if s.EndDate != "" {
		end, err := time.Parse("2006-01-02", s.EndDate)
		if err != nil {
			return nil, fmt.Errorf("invalid end_date %q: %w", s.EndDate, err)
		}
		schedule.EndDate = &end
	}
	if len(s.Pricing) > 0 {
		prices := make([]models.TripPrice, 0, len(s.Pricing))
		for _, p := range s.Pricing {
			prices = append(prices, models.TripPrice{SeatType: p.SeatType, Price: p.Price})
		}
		raw, err := json.Marshal(prices)
		if err != nil {
			return nil, fmt.Errorf("encode pricing: %w", err)
		}
		schedule.Pricing = string(raw)
	}
	return schedule, nil
}
