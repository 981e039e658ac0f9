package swaps

import (
	"context"
	"fmt"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/sirupsen/logrus"

	"github.com/platinummonkey/tenantcart/pkg/async"
	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/observability"
)

// Swap results recorded in metrics
const (
	ResultApplied = "applied"
	ResultSkipped = "skipped"
	ResultFailed  = "failed"
)

// MembershipStore loads and saves memberships
type MembershipStore interface {
	GetMembership(ctx context.Context, id int64) (*billing.Membership, error)
	UpdateMembership(ctx context.Context, m *billing.Membership) error
}

// Runner applies due swaps
type Runner struct {
	swaps       Store
	memberships MembershipStore
	metrics     *observability.Metrics
	logger      *logrus.Logger
	workers     int
	batchSize   int
	timeout     time.Duration
	now         func() time.Time
	cron        *cron.Cron
}

// Option configures a Runner
type Option func(*Runner)

// WithLogger sets the runner's logger
func WithLogger(logger *logrus.Logger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithMetrics records swap outcomes
func WithMetrics(m *observability.Metrics) Option {
	return func(r *Runner) { r.metrics = m }
}

// WithWorkers sets how many swaps are applied concurrently
func WithWorkers(n int) Option {
	return func(r *Runner) { r.workers = n }
}

// WithBatchSize caps the swaps picked up per run
func WithBatchSize(n int) Option {
	return func(r *Runner) { r.batchSize = n }
}

// WithClock overrides time.Now
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// NewRunner creates a swap runner
func NewRunner(swaps Store, memberships MembershipStore, opts ...Option) *Runner {
	r := &Runner{
		swaps:       swaps,
		memberships: memberships,
		workers:     4,
		batchSize:   100,
		timeout:     30 * time.Second,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.logger == nil {
		r.logger = logrus.New()
	}
	return r
}

// RunOnce applies every swap due now and returns how many were applied.
func (r *Runner) RunOnce(ctx context.Context) (int, error) {
	due, err := r.swaps.ListDue(ctx, r.now(), r.batchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}
	r.logger.Infof("Applying %d scheduled swaps", len(due))

	results := make(chan string, len(due))
	errs := async.Batch(ctx, due, r.workers, r.timeout, func(ctx context.Context, s *Swap) error {
		result, err := r.apply(ctx, s)
		results <- result
		r.metrics.RecordSwap(result)
		return err
	})
	close(results)

	applied := 0
	for result := range results {
		if result == ResultApplied {
			applied++
		}
	}
	for _, err := range errs {
		r.logger.WithError(err).Error("Failed to apply scheduled swap")
	}
	return applied, nil
}

func (r *Runner) apply(ctx context.Context, s *Swap) (string, error) {
	log := r.logger.WithFields(logrus.Fields{"swap_id": s.ID, "membership_id": s.MembershipID})

	m, err := r.memberships.GetMembership(ctx, s.MembershipID)
	if err != nil {
		r.markFailed(ctx, s, err.Error())
		return ResultFailed, fmt.Errorf("failed to load membership for swap %d: %w", s.ID, err)
	}
	if !m.IsActive() && !m.IsTrialing() {
		log.Infof("Skipping swap, membership is %s", m.Status)
		r.markFailed(ctx, s, fmt.Sprintf("membership is %s", m.Status))
		return ResultSkipped, nil
	}

	s.ApplyTo(m)
	m.UpdatedAt = r.now()
	if err := r.memberships.UpdateMembership(ctx, m); err != nil {
		r.markFailed(ctx, s, err.Error())
		return ResultFailed, fmt.Errorf("failed to update membership for swap %d: %w", s.ID, err)
	}
	if err := r.swaps.MarkApplied(ctx, s.ID); err != nil {
		return ResultFailed, fmt.Errorf("failed to mark swap %d applied: %w", s.ID, err)
	}
	log.Infof("Swapped membership to plan %d", s.PlanID)
	return ResultApplied, nil
}

func (r *Runner) markFailed(ctx context.Context, s *Swap, reason string) {
	if err := r.swaps.MarkFailed(ctx, s.ID, reason); err != nil {
		r.logger.WithError(err).WithField("swap_id", s.ID).Warn("Failed to mark swap failed")
	}
}

// Start runs RunOnce on a cron schedule until Stop is called.
func (r *Runner) Start(ctx context.Context, schedule string) error {
	c := cron.New()
	_, err := c.AddFunc(schedule, func() {
		if _, err := r.RunOnce(ctx); err != nil {
			r.logger.WithError(err).Error("Scheduled swap run failed")
		}
	})
	if err != nil {
		return fmt.Errorf("failed to schedule swap runs: %w", err)
	}
	r.cron = c
	c.Start()
	r.logger.Infof("Swap runner started with schedule %q", schedule)
	return nil
}

// Stop halts the schedule. The returned context is done once a running job
// has finished.
func (r *Runner) Stop() context.Context {
	if r.cron == nil {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		return ctx
	}
	return r.cron.Stop()
}
