package worker

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
	"github.com/talecraft/api/internal/metrics"
	"github.com/talecraft/api/internal/model"
	"github.com/talecraft/api/internal/repository"
)

// Reclaimer fails jobs that have been generating for longer than the timeout
type Reclaimer struct {
	repo    repository.FairytaleRepository
	timeout time.Duration
	metrics *metrics.Pipeline
	log     zerolog.Logger
	now     func() time.Time
}

func NewReclaimer(repo repository.FairytaleRepository, timeout time.Duration, m *metrics.Pipeline, log zerolog.Logger) *Reclaimer {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Reclaimer{
		repo:    repo,
		timeout: timeout,
		metrics: m,
		log:     log.With().Str("component", "reclaimer").Logger(),
		now:     time.Now,
	}
}

// WithClock replaces the time source
func (r *Reclaimer) WithClock(now func() time.Time) *Reclaimer {
	r.now = now
	return r
}

// Sweep moves every stale generating job to failed and returns how many moved.
// Jobs that changed status between the scan and the write are left alone.
func (r *Reclaimer) Sweep(ctx context.Context) (int, error) {
	cutoff := r.now().Add(-r.timeout)

	stuck, err := r.repo.FindStuck(ctx, model.StatusGenerating, cutoff)
	if err != nil {
		return 0, fmt.Errorf("failed to find stuck fairytales: %w", err)
	}

	reason := fmt.Sprintf("generation did not finish within %s", r.timeout)
	reclaimed := 0
	for _, f := range stuck {
		ok, err := r.repo.CompareAndSetStatus(ctx, f.ID, model.StatusGenerating, model.StatusFailed, reason)
		if err != nil {
			r.log.Error().Err(err).Str("job_id", f.ID).Msg("failed to reclaim fairytale")
			continue
		}
		if !ok {
			continue
		}
		reclaimed++
		r.log.Warn().Str("job_id", f.ID).Time("created_at", f.CreatedAt).Msg("stuck fairytale marked failed")
	}

	r.metrics.Reclaimed(reclaimed)
	if len(stuck) > 0 {
		r.log.Info().Int("candidates", len(stuck)).Int("reclaimed", reclaimed).Msg("sweep finished")
	}
	return reclaimed, nil
}
