package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/smallbiznis/fidelio/internal/clock"
	membershipdomain "github.com/smallbiznis/fidelio/internal/membership/domain"
	"github.com/smallbiznis/fidelio/internal/metrics"
	programdomain "github.com/smallbiznis/fidelio/internal/program/domain"
	"github.com/smallbiznis/fidelio/internal/sweeplease"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var ErrInvalidConfig = errors.New("scheduler: missing required dependency")

type Params struct {
	fx.In

	Log           *zap.Logger
	Clock         clock.Clock
	MembershipSvc membershipdomain.Service
	ProgramSvc    programdomain.Service
	Lease         *sweeplease.Lease `optional:"true"`
	Metrics       *metrics.Metrics  `optional:"true"`
	Config        Config            `optional:"true"`
}

// Scheduler runs the periodic tier sweep: re-evaluate every active
// membership against its current rolling window, so tiers decay on time
// alone even when no order ever arrives for the customer again.
type Scheduler struct {
	log           *zap.Logger
	cfg           Config
	clock         clock.Clock
	membershipSvc membershipdomain.Service
	programSvc    programdomain.Service
	lease         *sweeplease.Lease
	metrics       *metrics.Metrics
}

func New(p Params) (*Scheduler, error) {
	if p.Log == nil || p.Clock == nil || p.MembershipSvc == nil || p.ProgramSvc == nil {
		return nil, ErrInvalidConfig
	}
	return &Scheduler{
		log:           p.Log.Named("scheduler").With(zap.String("component", "scheduler")),
		cfg:           p.Config.withDefaults(),
		clock:         p.Clock,
		membershipSvc: p.MembershipSvc,
		programSvc:    p.ProgramSvc,
		lease:         p.Lease,
		metrics:       p.Metrics,
	}, nil
}

func (s *Scheduler) RunOnce(parent context.Context) error {
	ctx, cancel := context.WithTimeout(parent, s.cfg.JobTimeout)
	defer cancel()

	err := s.SweepTiersJob(ctx)
	if err == nil {
		return nil
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		s.log.Warn("sweep timed out",
			zap.Duration("timeout", s.cfg.JobTimeout),
			zap.Error(err),
		)
		return nil
	}
	return fmt.Errorf("sweep_tiers: %w", err)
}

func (s *Scheduler) RunForever(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RunInterval)
	defer ticker.Stop()

	for {
		if err := s.RunOnce(ctx); err != nil {
			s.log.Warn("sweep run failed", zap.Error(err))
		}

		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}
	}
}

// SweepTiersJob claims batches of stale active memberships and re-evaluates
// each one. Per-customer errors are logged and joined, never aborting the
// rest of the batch.
func (s *Scheduler) SweepTiersJob(ctx context.Context) error {
	cfg, err := s.programSvc.Get(ctx)
	if err != nil {
		return err
	}
	if !cfg.IsEnabled || !cfg.EvaluatesDaily() {
		return nil
	}

	token, owner, err := s.lease.TryAcquire(ctx)
	if err != nil {
		return err
	}
	if !owner {
		s.log.Debug("sweep lease held elsewhere, skipping pass")
		return nil
	}
	defer func() {
		if err := s.lease.Release(context.WithoutCancel(ctx), token); err != nil {
			s.log.Warn("sweep lease release failed", zap.Error(err))
		}
	}()

	start := time.Now()
	cutoff := s.clock.Now()
	var (
		jobErr  error
		swept   int
		failed  int
		changed int
	)
	for {
		if ctx.Err() != nil {
			return errors.Join(jobErr, ctx.Err())
		}

		batch, err := s.membershipSvc.ClaimDue(ctx, cutoff, s.cfg.BatchSize)
		if err != nil {
			return errors.Join(jobErr, err)
		}
		if len(batch) == 0 {
			break
		}

		for _, member := range batch {
			_, moved, err := s.membershipSvc.Reevaluate(ctx, member.CustomerID, s.clock.Now())
			if err != nil {
				failed++
				jobErr = errors.Join(jobErr, fmt.Errorf("customer %s: %w", member.CustomerID, err))
				s.log.Warn("sweep evaluation failed",
					zap.String("customer_id", member.CustomerID),
					zap.Error(err),
				)
				continue
			}
			swept++
			if moved {
				changed++
			}
		}
	}

	s.log.Info("tier sweep finished",
		zap.Int("members_swept", swept),
		zap.Int("tiers_changed", changed),
		zap.Int("failed", failed),
	)
	s.metrics.RecordSweep(swept, failed, time.Since(start))
	return jobErr
}
