package worker

import (
	"context"
	"time"

	"busline/internal/metrics"

	"github.com/rs/zerolog"
)

// ItemOutcome is the result of processing one entity in a sweep.
type ItemOutcome struct {
	ID  int64
	Err error
}

// BatchResult summarizes one sweep. A failing item never aborts the batch;
// Err is set only when the batch could not be loaded at all.
type BatchResult struct {
	Name      string
	Total     int
	Succeeded int
	Failed    int
	Outcomes  []ItemOutcome
	Err       error
}

func newBatch(name string) BatchResult {
	return BatchResult{Name: name}
}

func (r *BatchResult) record(id int64, err error) {
	r.Total++
	r.Outcomes = append(r.Outcomes, ItemOutcome{ID: id, Err: err})
	if err != nil {
		r.Failed++
		metrics.IncSweeperItem(r.Name, "failed")
		return
	}
	r.Succeeded++
	metrics.IncSweeperItem(r.Name, "ok")
}

func (r BatchResult) log(logger *zerolog.Logger) {
	if r.Err != nil {
		logger.Error().Err(r.Err).Str("sweeper", r.Name).Msg("sweep failed")
		return
	}
	if r.Total == 0 {
		logger.Debug().Str("sweeper", r.Name).Msg("sweep: nothing to do")
		return
	}
	logger.Info().
		Str("sweeper", r.Name).
		Int("total", r.Total).
		Int("succeeded", r.Succeeded).
		Int("failed", r.Failed).
		Msg("sweep finished")
}

// runEvery calls fn every interval until ctx is done.
func runEvery(ctx context.Context, interval time.Duration, fn func(now time.Time)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			fn(now)
		}
	}
}
