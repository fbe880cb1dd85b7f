package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"
	_ "time/tzdata" // schedules may name any IANA zone

	"busline/internal/models"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

type Config struct {
	App        AppConfig        `yaml:"app"`
	Database   DatabaseConfig   `yaml:"database"`
	Redis      RedisConfig      `yaml:"redis"`
	Backup     BackupConfig     `yaml:"backup"`
	Monitoring MonitoringConfig `yaml:"monitoring"`
	Logging    LoggingConfig    `yaml:"logging"`
	API        APIConfig        `yaml:"api"`
	Booking    BookingConfig    `yaml:"booking"`
	Reminder   ReminderConfig   `yaml:"reminder"`
	Schedule   ScheduleConfig   `yaml:"schedule"`
	Email      EmailConfig      `yaml:"email"`
}

type AppConfig struct {
	Name        string `yaml:"name"`
	Environment string `yaml:"environment"`
	Version     string `yaml:"version"`
}

type DatabaseConfig struct {
	Path string `yaml:"path"`
}

type RedisConfig struct {
	Address  string `yaml:"address"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
	PoolSize int    `yaml:"pool_size"`
}

type BackupConfig struct {
	Enabled       bool          `yaml:"enabled"`
	Interval      time.Duration `yaml:"interval"`
	RetentionDays int           `yaml:"retention_days"`
	StoragePath   string        `yaml:"storage_path"`
}

type MonitoringConfig struct {
	PrometheusEnabled bool `yaml:"prometheus_enabled"`
	PrometheusPort    int  `yaml:"prometheus_port"`
}

type LoggingConfig struct {
	Level      string `yaml:"level"`
	Format     string `yaml:"format"`
	Output     string `yaml:"output"`
	FilePath   string `yaml:"file_path"`
	MaxSizeMB  int    `yaml:"max_size_mb"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAgeDays int    `yaml:"max_age_days"`
}

type APIConfig struct {
	Enabled   bool               `yaml:"enabled"`
	HTTP      APIHTTPConfig      `yaml:"http"`
	Auth      APIAuthConfig      `yaml:"auth"`
	RateLimit APIRateLimitConfig `yaml:"rate_limit"`
}

type APIHTTPConfig struct {
	Port int `yaml:"port"`
}

type APIAuthConfig struct {
	HeaderAPIKey string         `yaml:"header_api_key"`
	APIKeys      []APIClientKey `yaml:"api_keys"`
}

type APIClientKey struct {
	Key         string   `yaml:"key"`
	Name        string   `yaml:"name"`
	Permissions []string `yaml:"permissions"`
}

type APIRateLimitConfig struct {
	RPS   float64 `yaml:"rps"`
	Burst int     `yaml:"burst"`
}

// BookingConfig drives the seat lock layer and the pending booking lifecycle.
type BookingConfig struct {
	LockStore           string        `yaml:"lock_store"` // memory, redis, failover
	SeatLockTTL         time.Duration `yaml:"seat_lock_ttl"`
	LockSweepInterval   time.Duration `yaml:"lock_sweep_interval"`
	PendingExpiry       time.Duration `yaml:"pending_expiry"`
	ExpirySweepInterval time.Duration `yaml:"expiry_sweep_interval"`
	CodePrefix          string        `yaml:"code_prefix"`
}

// ReminderConfig has no startup toggle: the dispatcher always checks once at start.
type ReminderConfig struct {
	Interval time.Duration `yaml:"interval"`
	LeadTime time.Duration `yaml:"lead_time"`
}

type ScheduleConfig struct {
	DaysAhead     int    `yaml:"days_ahead"`
	MaxManualDays int    `yaml:"max_manual_days"`
	RunHour       int    `yaml:"run_hour"`
	RunOnStartup  bool   `yaml:"run_on_startup"`
	Timezone      string `yaml:"timezone"`
}

type EmailConfig struct {
	SMTPHost     string        `yaml:"smtp_host"`
	SMTPPort     int           `yaml:"smtp_port"`
	Username     string        `yaml:"username"`
	Password     string        `yaml:"password"`
	From         string        `yaml:"from"`
	MaxRetries   int           `yaml:"max_retries"`
	InitialDelay time.Duration `yaml:"initial_delay"`
}

// Enabled reports whether SMTP delivery is configured.
func (e EmailConfig) Enabled() bool {
	return e.SMTPHost != "" && e.From != ""
}

func Load(configPath string) (*Config, error) {
	// .env необязателен: в контейнере переменные приходят из окружения
	if err := godotenv.Load(".env"); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	data, err := os.ReadFile(configPath)
	if err != nil {
		return nil, err
	}

	// Предварительная замена переменных окружения в YAML
	expandedData := []byte(os.ExpandEnv(string(data)))

	var config Config
	if err := yaml.Unmarshal(expandedData, &config); err != nil {
		return nil, err
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &config, nil
}

func (c *Config) Validate() error {
	if c.Database.Path == "" {
		return errors.New("database path is required")
	}

	switch c.Booking.LockStore {
	case "memory":
	case "redis", "failover":
		if c.Redis.Address == "" {
			return fmt.Errorf("lock_store %q requires redis.address", c.Booking.LockStore)
		}
	default:
		return fmt.Errorf("unknown lock_store %q", c.Booking.LockStore)
	}

	if c.Schedule.RunHour < 0 || c.Schedule.RunHour > 23 {
		return fmt.Errorf("schedule.run_hour must be within 0..23, got %d", c.Schedule.RunHour)
	}
	if c.Schedule.DaysAhead > c.Schedule.MaxManualDays {
		return fmt.Errorf("schedule.days_ahead %d exceeds max_manual_days %d", c.Schedule.DaysAhead, c.Schedule.MaxManualDays)
	}
	if _, err := c.Schedule.Location(); err != nil {
		return fmt.Errorf("schedule.timezone: %w", err)
	}

	return nil
}

// Location resolves the operating timezone of schedules.
func (s ScheduleConfig) Location() (*time.Location, error) {
	if s.Timezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(s.Timezone)
}

func (c *Config) applyDefaults() {
	if c.App.Name == "" {
		c.App.Name = "busline"
	}
	if c.API.HTTP.Port == 0 {
		c.API.HTTP.Port = 8080
	}
	if c.API.Auth.HeaderAPIKey == "" {
		c.API.Auth.HeaderAPIKey = "x-api-key"
	}
	if c.Monitoring.PrometheusEnabled && c.Monitoring.PrometheusPort == 0 {
		c.Monitoring.PrometheusPort = 9090
	}

	// Booking defaults
	c.Booking.LockStore = strings.ToLower(strings.TrimSpace(c.Booking.LockStore))
	if c.Booking.LockStore == "" {
		c.Booking.LockStore = "memory"
	}
	if c.Booking.SeatLockTTL <= 0 {
		c.Booking.SeatLockTTL = models.DefaultSeatLockTTL * time.Second
	}
	if c.Booking.LockSweepInterval <= 0 {
		c.Booking.LockSweepInterval = time.Minute
	}
	if c.Booking.PendingExpiry <= 0 {
		c.Booking.PendingExpiry = models.DefaultPendingExpiry * time.Second
	}
	if c.Booking.ExpirySweepInterval <= 0 {
		c.Booking.ExpirySweepInterval = time.Minute
	}
	if c.Booking.CodePrefix == "" {
		c.Booking.CodePrefix = models.DefaultBookingCodePrefix
	}

	// Reminder defaults
	if c.Reminder.Interval <= 0 {
		c.Reminder.Interval = time.Hour
	}
	if c.Reminder.LeadTime <= 0 {
		c.Reminder.LeadTime = models.DefaultReminderLeadHours * time.Hour
	}

	// Schedule defaults
	if c.Schedule.DaysAhead <= 0 {
		c.Schedule.DaysAhead = models.DefaultDaysAhead
	}
	if c.Schedule.MaxManualDays <= 0 {
		c.Schedule.MaxManualDays = models.MaxManualDaysAhead
	}

	if c.Email.SMTPPort == 0 {
		c.Email.SMTPPort = 587
	}
	if c.Email.MaxRetries == 0 {
		c.Email.MaxRetries = 3
	}
	if c.Email.InitialDelay == 0 {
		c.Email.InitialDelay = time.Second
	}

	if c.Backup.Interval <= 0 {
		c.Backup.Interval = 24 * time.Hour
	}
	if c.Backup.StoragePath == "" {
		c.Backup.StoragePath = "./data/backups"
	}
}
