package swaps

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
)

// Status is the lifecycle of a scheduled swap
type Status string

const (
	StatusPending   Status = "pending"
	StatusApplied   Status = "applied"
	StatusFailed    Status = "failed"
	StatusCancelled Status = "cancelled"
)

// Swap is a membership change deferred to the end of the current cycle
type Swap struct {
	ID            int64                `json:"id"`
	MembershipID  int64                `json:"membership_id"`
	PlanID        int64                `json:"plan_id"`
	AddonProducts map[int64]int        `json:"addon_products,omitempty"`
	Amount        decimal.Decimal      `json:"amount"`
	Duration      int                  `json:"duration"`
	DurationUnit  billing.DurationUnit `json:"duration_unit"`
	BillingCycles int                  `json:"billing_cycles"`
	ScheduledFor  time.Time            `json:"scheduled_for"`
	Status        Status               `json:"status"`
	Error         string               `json:"error,omitempty"`
	CreatedAt     time.Time            `json:"created_at"`
	UpdatedAt     time.Time            `json:"updated_at"`
}

// ApplyTo rewrites the membership to the swapped arrangement.
func (s *Swap) ApplyTo(m *billing.Membership) {
	m.PlanID = s.PlanID
	m.AddonProducts = s.AddonProducts
	m.Amount = s.Amount
	m.Duration = s.Duration
	m.DurationUnit = s.DurationUnit
	m.BillingCycles = s.BillingCycles
	m.Recurring = s.Duration > 0
}

// Store persists scheduled swaps
type Store interface {
	// ScheduleSwap records s and cancels any other pending swap of the
	// same membership.
	ScheduleSwap(ctx context.Context, s *Swap) error
	ListDue(ctx context.Context, now time.Time, limit int) ([]*Swap, error)
	MarkApplied(ctx context.Context, id int64) error
	MarkFailed(ctx context.Context, id int64, reason string) error
}
