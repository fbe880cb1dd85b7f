package database

import (
	"context"
	"database/sql"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"busline/internal/config"

	"github.com/rs/zerolog"
)

const (
	snapshotPrefix = "busline_"
	snapshotLayout = "20060102_150405.000"
)

// BackupService takes periodic online snapshots of the booking database and
// prunes the ones past retention.
type BackupService struct {
	db     *DB
	dbPath string
	cfg    config.BackupConfig
	now    func() time.Time
	logger *zerolog.Logger
}

func NewBackupService(db *DB, dbPath string, cfg config.BackupConfig, logger *zerolog.Logger) *BackupService {
	if cfg.Interval <= 0 {
		cfg.Interval = 24 * time.Hour
	}
	return &BackupService{db: db, dbPath: dbPath, cfg: cfg, now: time.Now, logger: logger}
}

func (s *BackupService) Start(ctx context.Context) {
	if !s.cfg.Enabled {
		s.logger.Info().Msg("backups disabled")
		return
	}
	s.logger.Info().Dur("interval", s.cfg.Interval).Int("retention_days", s.cfg.RetentionDays).Msg("backup service started")

	s.cycle(ctx)

	ticker := time.NewTicker(s.cfg.Interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.cycle(ctx)
		}
	}
}

func (s *BackupService) cycle(ctx context.Context) {
	path, err := s.Snapshot(ctx)
	if err != nil {
		s.logger.Error().Err(err).Msg("snapshot failed")
		return
	}
	removed := s.Prune(s.now())
	s.logger.Info().Str("path", path).Int("pruned", removed).Msg("snapshot stored")
}

// Snapshot writes a consistent copy of the database and returns its path.
// VACUUM INTO is preferred; a checkpointed file copy is the fallback.
func (s *BackupService) Snapshot(ctx context.Context) (string, error) {
	if err := os.MkdirAll(s.cfg.StoragePath, 0o755); err != nil {
		return "", fmt.Errorf("failed to create backup directory: %w", err)
	}
	path := filepath.Join(s.cfg.StoragePath, snapshotPrefix+s.now().UTC().Format(snapshotLayout)+".db")

	// VACUUM INTO не принимает параметры, кавычки экранируем сами
	quoted := strings.ReplaceAll(path, "'", "''")
	if _, err := s.db.ExecContext(ctx, fmt.Sprintf("VACUUM INTO '%s'", quoted)); err != nil {
		s.logger.Warn().Err(err).Msg("VACUUM INTO failed, copying database file")
		if err := s.copySnapshot(ctx, path); err != nil {
			return "", err
		}
	}

	if err := verifySnapshot(ctx, path); err != nil {
		_ = os.Remove(path)
		return "", err
	}
	return path, nil
}

func (s *BackupService) copySnapshot(ctx context.Context, path string) error {
	// Без checkpoint свежие брони остаются только в -wal файле
	if _, err := s.db.ExecContext(ctx, "PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Warn().Err(err).Msg("wal checkpoint failed before copy")
	}

	src, err := os.Open(s.dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database file: %w", err)
	}
	defer src.Close()

	dst, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create backup file: %w", err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return fmt.Errorf("failed to copy database file: %w", err)
	}
	return dst.Close()
}

func verifySnapshot(ctx context.Context, path string) error {
	snap, err := sql.Open("sqlite3", path)
	if err != nil {
		return fmt.Errorf("failed to open snapshot: %w", err)
	}
	defer snap.Close()

	var result string
	if err := snap.QueryRowContext(ctx, "PRAGMA quick_check").Scan(&result); err != nil {
		return fmt.Errorf("failed to check snapshot %s: %w", path, err)
	}
	if result != "ok" {
		return fmt.Errorf("snapshot %s is corrupt: %s", path, result)
	}
	return nil
}

// Prune removes snapshots whose embedded timestamp is older than the retention
// window. Foreign files in the directory are left alone.
func (s *BackupService) Prune(now time.Time) int {
	if s.cfg.RetentionDays <= 0 {
		return 0
	}
	entries, err := os.ReadDir(s.cfg.StoragePath)
	if err != nil {
		s.logger.Error().Err(err).Msg("failed to read backup directory")
		return 0
	}

	cutoff := now.UTC().AddDate(0, 0, -s.cfg.RetentionDays)
	removed := 0
	for _, entry := range entries {
		takenAt, ok := snapshotTime(entry)
		if !ok || !takenAt.Before(cutoff) {
			continue
		}
		if err := os.Remove(filepath.Join(s.cfg.StoragePath, entry.Name())); err != nil {
			s.logger.Warn().Err(err).Str("file", entry.Name()).Msg("failed to delete old snapshot")
			continue
		}
		removed++
	}
	return removed
}

func snapshotTime(entry os.DirEntry) (time.Time, bool) {
	name := entry.Name()
	if entry.IsDir() || !strings.HasPrefix(name, snapshotPrefix) || !strings.HasSuffix(name, ".db") {
		return time.Time{}, false
	}
	stamp := strings.TrimSuffix(strings.TrimPrefix(name, snapshotPrefix), ".db")
	t, err := time.Parse(snapshotLayout, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return t, true
}
