package jobs

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"monasterywatch/internal/config"
)

// StaleComparisonFailer is the repository slice the sweep needs.
type StaleComparisonFailer interface {
	FailStale(ctx context.Context, olderThan time.Time) (int64, error)
}

// Scheduler runs the reconciliation sweep: a crash mid-workflow can strand
// a comparison in processing forever, so records older than the configured
// threshold are periodically forced to failed.
type Scheduler struct {
	cron        *cron.Cron
	comparisons StaleComparisonFailer
	cfg         config.JobsConfig
	log         zerolog.Logger
}

func NewScheduler(comparisons StaleComparisonFailer, cfg config.JobsConfig, log zerolog.Logger) *Scheduler {
	c := cron.New(cron.WithSeconds())
	return &Scheduler{
		cron:        c,
		comparisons: comparisons,
		cfg:         cfg,
		log:         log,
	}
}

func (s *Scheduler) Start() error {
	if _, err := s.cron.AddFunc(s.cfg.SweepSchedule, s.sweepStale); err != nil {
		return err
	}

	s.cron.Start()
	return nil
}

// Stop waits for any in-flight sweep to finish, up to a short grace period.
func (s *Scheduler) Stop() {
	stopCtx := s.cron.Stop()
	select {
	case <-stopCtx.Done():
	case <-time.After(5 * time.Second):
		s.log.Warn().Msg("scheduler stop timed out")
	}
}

func (s *Scheduler) sweepStale() {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	cutoff := time.Now().Add(-s.cfg.StaleAfter)
	swept, err := s.comparisons.FailStale(ctx, cutoff)
	if err != nil {
		s.log.Error().Err(err).Msg("stale comparison sweep failed")
		return
	}
	if swept > 0 {
		s.log.Warn().Int64("count", swept).Msg("stale processing comparisons marked failed")
	}
}
