package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"busline/internal/api"
	"busline/internal/config"
	"busline/internal/database"
	"busline/internal/domain"
	"busline/internal/events"
	"busline/internal/logging"
	"busline/internal/metrics"
	"busline/internal/notify"
	"busline/internal/repository"
	"busline/internal/service"
	"busline/internal/worker"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	cfg, logger, closer, err := loadConfigAndLogger()
	if err != nil {
		return err
	}
	if closer != nil {
		defer (func() { _ = closer.Close() })()
	}

	loc, err := cfg.Schedule.Location()
	if err != nil {
		return fmt.Errorf("schedule timezone: %w", err)
	}

	db, err := database.NewDB(cfg.Database.Path, &logger)
	if err != nil {
		logger.Error().Err(err).Str("db_path", cfg.Database.Path).Msg("init database")
		return err
	}
	defer db.Close()

	store, redisClient, err := initLockStore(cfg, &logger)
	if err != nil {
		return err
	}
	if redisClient != nil {
		defer func() { _ = repository.Close(redisClient) }()
	}

	bus := events.NewEventBus(&logger)
	mailer := notify.NewMailer(cfg.Email, logging.Component(&logger, "mailer"))
	notifier := notify.NewNotifier(db, mailer, logging.Component(&logger, "notifier"))
	notifier.Subscribe(bus)

	locks := service.NewSeatLockService(store, db, cfg.Booking.SeatLockTTL, logging.Component(&logger, "seat_locks"))
	bookings := service.NewBookingService(db, locks, bus, cfg.Booking.CodePrefix, logging.Component(&logger, "bookings"))
	schedules := service.NewScheduleService(db, bus, cfg.Schedule.DaysAhead, cfg.Schedule.MaxManualDays, loc, logging.Component(&logger, "schedules"))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	startMetrics(ctx, cfg, &logger)

	var wg sync.WaitGroup
	background := func(fn func(context.Context)) {
		wg.Add(1)
		go func() {
			defer wg.Done()
			fn(ctx)
		}()
	}

	background(worker.NewExpirationSweeper(db, bookings, cfg.Booking.PendingExpiry, cfg.Booking.ExpirySweepInterval,
		logging.Component(&logger, "expiration_sweeper")).Start)
	background(worker.NewReminderDispatcher(db, mailer, cfg.Reminder.LeadTime, cfg.Reminder.Interval,
		logging.Component(&logger, "reminder_dispatcher")).Start)
	background(worker.NewScheduleRunner(schedules, cfg.Schedule.RunHour, cfg.Schedule.RunOnStartup, loc,
		logging.Component(&logger, "schedule_runner")).Start)
	if purger, ok := store.(domain.Purger); ok {
		background(worker.NewLockJanitor(purger, cfg.Booking.LockSweepInterval, logging.Component(&logger, "lock_janitor")).Start)
	}
	background(database.NewBackupService(db, cfg.Database.Path, cfg.Backup, logging.Component(&logger, "backup")).Start)

	httpServer := api.NewHTTPServer(cfg.API, api.Services{
		Locks:     locks,
		Bookings:  bookings,
		Schedules: schedules,
		Storage:   db,
	}, &logger)

	err = serveHTTP(ctx, httpServer, cfg, &logger)

	stop()
	wg.Wait()
	notifier.Wait()
	logger.Info().Msg("busline stopped")
	return err
}

func loadConfigAndLogger() (*config.Config, zerolog.Logger, io.Closer, error) {
	configPath := os.Getenv("CONFIG_PATH")
	if configPath == "" {
		configPath = "configs/config.yaml"
	}

	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("load config: %w", err)
	}

	baseLogger, closer, err := logging.New(cfg.Logging, cfg.App)
	if err != nil {
		return nil, zerolog.Logger{}, nil, fmt.Errorf("init logger: %w", err)
	}
	return cfg, *baseLogger, closer, nil
}

// initLockStore builds the seat lock store selected by booking.lock_store.
func initLockStore(cfg *config.Config, logger *zerolog.Logger) (domain.SeatLockStore, *redis.Client, error) {
	if cfg.Booking.LockStore == "memory" {
		logger.Info().Msg("seat locks kept in memory (single instance)")
		return repository.NewMemorySeatLockStore(), nil, nil
	}

	client := repository.NewRedisClient(cfg.Redis)
	pingCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	pingErr := repository.Ping(pingCtx, client)

	if cfg.Booking.LockStore == "redis" {
		if pingErr != nil {
			_ = client.Close()
			return nil, nil, pingErr
		}
		logger.Info().Str("addr", cfg.Redis.Address).Msg("seat locks kept in redis")
		return repository.NewRedisSeatLockStore(client), client, nil
	}

	if pingErr != nil {
		logger.Warn().Err(pingErr).Msg("redis unavailable at startup, failover store begins on memory")
	}
	store := repository.NewFailoverSeatLockStore(
		repository.NewRedisSeatLockStore(client),
		repository.NewMemorySeatLockStore(),
		logging.Component(logger, "lock_store"),
	)
	logger.Info().Str("addr", cfg.Redis.Address).Msg("seat locks kept in redis with memory failover")
	return store, client, nil
}

func startMetrics(ctx context.Context, cfg *config.Config, logger *zerolog.Logger) {
	if !cfg.Monitoring.PrometheusEnabled {
		return
	}

	metrics.Register()
	port := cfg.Monitoring.PrometheusPort
	if port == 0 {
		port = 9090
	}
	go startMetricsServer(ctx, port, logger)
}

func serveHTTP(ctx context.Context, httpServer *api.HTTPServer, cfg *config.Config, logger *zerolog.Logger) error {
	errCh := make(chan error, 1)
	if cfg.API.Enabled {
		go func() {
			errCh <- httpServer.Start()
		}()
		logger.Info().Int("http_port", cfg.API.HTTP.Port).Msg("API server started")
	} else {
		logger.Warn().Msg("HTTP API is disabled, running background workers only")
	}

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			logger.Error().Err(err).Msg("http server stopped")
			return err
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	return nil
}

func startMetricsServer(ctx context.Context, port int, logger *zerolog.Logger) {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{Addr: fmt.Sprintf(":%d", port), Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 3*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		logger.Error().Err(err).Msg("metrics server error")
	}
}
