package scheduler

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

type reviewExpirer interface {
	ExpireOverdue(ctx context.Context, now time.Time) (int, error)
}

type paymentReconciler interface {
	ReconcileStale(ctx context.Context, olderThan time.Duration) (int, error)
}

// Scheduler periodically closes booking requests past their approval deadline
// and re-verifies payments that have been pending for too long.
type Scheduler struct {
	approvals      reviewExpirer
	payments       paymentReconciler
	interval       time.Duration
	reconcileAfter time.Duration
}

func New(
	approvals reviewExpirer,
	payments paymentReconciler,
	interval time.Duration,
	reconcileAfter time.Duration,
) *Scheduler {
	return &Scheduler{
		approvals:      approvals,
		payments:       payments,
		interval:       interval,
		reconcileAfter: reconcileAfter,
	}
}

func (s *Scheduler) Start(ctx context.Context) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	log.Info().
		Dur("interval", s.interval).
		Dur("reconcile_after", s.reconcileAfter).
		Msg("scheduler started")

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("scheduler stopped")
			return
		case <-ticker.C:
			s.tick(ctx)
		}
	}
}

func (s *Scheduler) tick(ctx context.Context) {
	expired, err := s.approvals.ExpireOverdue(ctx, time.Now().UTC())
	if err != nil {
		log.Error().Err(err).Msg("failed to expire overdue booking requests")
	} else if expired > 0 {
		log.Info().Int("count", expired).Msg("booking requests expired")
	}

	settled, err := s.payments.ReconcileStale(ctx, s.reconcileAfter)
	if err != nil {
		log.Error().Err(err).Msg("failed to reconcile stale payments")
		return
	}
	if settled > 0 {
		log.Info().Int("count", settled).Msg("stale payments settled")
	}
}
