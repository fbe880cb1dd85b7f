package worker

import (
	"context"
	"time"

	"busline/internal/domain"
	"busline/internal/metrics"

	"github.com/rs/zerolog"
)

// LockJanitor reclaims expired holds from stores that do not expire keys on their own.
type LockJanitor struct {
	purger   domain.Purger
	interval time.Duration
	logger   *zerolog.Logger
}

func NewLockJanitor(purger domain.Purger, interval time.Duration, logger *zerolog.Logger) *LockJanitor {
	if interval <= 0 {
		interval = time.Minute
	}
	return &LockJanitor{purger: purger, interval: interval, logger: logger}
}

func (j *LockJanitor) RunOnce(now time.Time) int {
	n := j.purger.Purge(now)
	if n > 0 {
		metrics.AddSweeperItems("lock_janitor", "ok", n)
		j.logger.Debug().Int("purged", n).Msg("expired seat locks purged")
	}
	return n
}

func (j *LockJanitor) Start(ctx context.Context) {
	runEvery(ctx, j.interval, func(now time.Time) {
		j.RunOnce(now)
	})
}
