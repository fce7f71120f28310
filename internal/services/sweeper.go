package services

import (
	"context"
	"time"

	"carpool/pkg/logger"
)

// Sweeper periodically releases pending participations that were never paid.
type Sweeper struct {
	participations ParticipationService
	ttl            time.Duration
	interval       time.Duration
	log            *logger.Logger
}

func NewSweeper(participations ParticipationService, ttl, interval time.Duration, log *logger.Logger) *Sweeper {
	if interval <= 0 {
		interval = time.Minute
	}
	return &Sweeper{
		participations: participations,
		ttl:            ttl,
		interval:       interval,
		log:            logOrDiscard(log).WithField("component", "sweeper"),
	}
}

// RunOnce performs a single release pass.
func (s *Sweeper) RunOnce(ctx context.Context) (int, error) {
	return s.participations.ReleaseStalePending(ctx, s.ttl)
}

// Run sweeps on every tick until ctx is cancelled. Errors are logged and the
// loop keeps going.
func (s *Sweeper) Run(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	s.log.WithFields(map[string]interface{}{
		"ttl":      s.ttl.String(),
		"interval": s.interval.String(),
	}).Info("Stale participation sweeper started")

	for {
		select {
		case <-ctx.Done():
			s.log.Info("Stale participation sweeper stopped")
			return
		case <-ticker.C:
			if _, err := s.RunOnce(ctx); err != nil && ctx.Err() == nil {
				s.log.WithError(err).Error("Stale participation sweep failed")
			}
		}
	}
}
