package billing

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// MembershipStatus represents the status of a membership
type MembershipStatus string

const (
	MembershipStatusPending   MembershipStatus = "pending"
	MembershipStatusActive    MembershipStatus = "active"
	MembershipStatusTrialing  MembershipStatus = "trialing"
	MembershipStatusExpired   MembershipStatus = "expired"
	MembershipStatusOnHold    MembershipStatus = "on-hold"
	MembershipStatusCancelled MembershipStatus = "cancelled"
)

// PaymentStatus represents the status of a payment
type PaymentStatus string

const (
	PaymentStatusPending   PaymentStatus = "pending"
	PaymentStatusCompleted PaymentStatus = "completed"
	PaymentStatusFailed    PaymentStatus = "failed"
	PaymentStatusCancelled PaymentStatus = "cancelled"
	PaymentStatusRefunded  PaymentStatus = "refunded"
)

// Customer is the paying account behind memberships and payments
type Customer struct {
	ID         int64     `json:"id"`
	Email      string    `json:"email"`
	Username   string    `json:"username,omitempty"`
	Verified   bool      `json:"verified"`
	HasTrialed bool      `json:"has_trialed"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// Membership is a customer's subscription to a plan plus optional addons
type Membership struct {
	ID            int64            `json:"id"`
	CustomerID    int64            `json:"customer_id"`
	PlanID        int64            `json:"plan_id"`
	AddonProducts map[int64]int    `json:"addon_products,omitempty"`
	Currency      string           `json:"currency"`
	Amount        decimal.Decimal  `json:"amount"`
	InitialAmount decimal.Decimal  `json:"initial_amount"`
	Duration      int              `json:"duration"`
	DurationUnit  DurationUnit     `json:"duration_unit"`
	BillingCycles int              `json:"billing_cycles"`
	TimesBilled   int              `json:"times_billed"`
	Recurring     bool             `json:"recurring"`
	AutoRenew     bool             `json:"auto_renew"`
	Status        MembershipStatus `json:"status"`
	DiscountCode  string           `json:"discount_code,omitempty"`
	GatewayID     string           `json:"gateway_id,omitempty"`

	DateCreated    time.Time  `json:"date_created"`
	DateRenewed    *time.Time `json:"date_renewed,omitempty"`
	DateExpiration *time.Time `json:"date_expiration,omitempty"`
	DateTrialEnd   *time.Time `json:"date_trial_end,omitempty"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

// IsActive reports whether the membership is in good standing.
func (m *Membership) IsActive() bool {
	return m.Status == MembershipStatusActive
}

// IsTrialing reports whether the membership is in its trial window.
func (m *Membership) IsTrialing() bool {
	return m.Status == MembershipStatusTrialing
}

// IsLifetime reports whether the membership never renews.
func (m *Membership) IsLifetime() bool {
	return !m.Recurring || m.Duration <= 0
}

// Period returns the membership's billing period.
func (m *Membership) Period() Period {
	return Period{Duration: m.Duration, DurationUnit: m.DurationUnit, BillingCycles: m.BillingCycles}
}

// DaysInCycle returns the normalised length of one billing cycle.
func (m *Membership) DaysInCycle() int {
	return DaysInCycle(m.Duration, m.DurationUnit)
}

// RemainingDaysInCycle returns the whole days left before expiration, clamped
// to the cycle length. Memberships without an expiration have none left.
func (m *Membership) RemainingDaysInCycle(now time.Time) int {
	if m.DateExpiration == nil {
		return 0
	}
	left := m.DateExpiration.Sub(now)
	if left <= 0 {
		return 0
	}
	days := int(left.Hours() / 24)
	if cycle := m.DaysInCycle(); cycle > 0 && days > cycle {
		days = cycle
	}
	return days
}

// CycleStartedOn reports whether the membership was created or last renewed
// on the same calendar day as now.
func (m *Membership) CycleStartedOn(now time.Time) bool {
	if m.DateRenewed != nil {
		return sameDay(*m.DateRenewed, now)
	}
	return sameDay(m.DateCreated, now)
}

// Payment records an attempt to charge a customer for a cart
type Payment struct {
	ID               int64           `json:"id"`
	CustomerID       int64           `json:"customer_id"`
	MembershipID     int64           `json:"membership_id"`
	Status           PaymentStatus   `json:"status"`
	Currency         string          `json:"currency"`
	CartType         string          `json:"cart_type"`
	GatewayID        string          `json:"gateway_id,omitempty"`
	GatewayPaymentID string          `json:"gateway_payment_id,omitempty"`
	DiscountCode     string          `json:"discount_code,omitempty"`
	Subtotal         decimal.Decimal `json:"subtotal"`
	DiscountTotal    decimal.Decimal `json:"discount_total"`
	TaxTotal         decimal.Decimal `json:"tax_total"`
	Total            decimal.Decimal `json:"total"`
	LineItems        []*LineItem     `json:"line_items"`
	Fingerprint      string          `json:"fingerprint,omitempty"`
	CreatedAt        time.Time       `json:"created_at"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// IsCompleted reports whether the payment has been collected.
func (p *Payment) IsCompleted() bool {
	return p.Status == PaymentStatusCompleted
}

// DiscountCode is a promotional code a customer can apply to a cart
type DiscountCode struct {
	ID                int64           `json:"id"`
	Code              string          `json:"code"`
	Name              string          `json:"name,omitempty"`
	Value             decimal.Decimal `json:"value"`
	Type              AdjustmentType  `json:"type"`
	AppliesToRenewals bool            `json:"applies_to_renewals"`
	SetupFeeValue     decimal.Decimal `json:"setup_fee_value"`
	SetupFeeType      AdjustmentType  `json:"setup_fee_type"`
	Active            bool            `json:"active"`
	StartsAt          *time.Time      `json:"starts_at,omitempty"`
	ExpiresAt         *time.Time      `json:"expires_at,omitempty"`
	MaxUses           int             `json:"max_uses"`
	Uses              int             `json:"uses"`
	AllowedProducts   []int64         `json:"allowed_products,omitempty"`
}

// IsValid reports whether the code may be used for productID at now. A code
// with no allowed products applies to every product.
func (d *DiscountCode) IsValid(productID int64, now time.Time) bool {
	if !d.Active {
		return false
	}
	if d.StartsAt != nil && now.Before(*d.StartsAt) {
		return false
	}
	if d.ExpiresAt != nil && now.After(*d.ExpiresAt) {
		return false
	}
	if d.MaxUses > 0 && d.Uses >= d.MaxUses {
		return false
	}
	if len(d.AllowedProducts) == 0 {
		return true
	}
	for _, id := range d.AllowedProducts {
		if id == productID {
			return true
		}
	}
	return false
}

// Label is the human readable description of the discount.
func (d *DiscountCode) Label() string {
	if d.Name != "" {
		return d.Name
	}
	return d.Code
}

// CustomerRepository persists customers
type CustomerRepository interface {
	GetCustomer(ctx context.Context, id int64) (*Customer, error)
	CreateCustomer(ctx context.Context, c *Customer) error
	UpdateCustomer(ctx context.Context, c *Customer) error
}

// MembershipRepository persists memberships
type MembershipRepository interface {
	GetMembership(ctx context.Context, id int64) (*Membership, error)
	CreateMembership(ctx context.Context, m *Membership) error
	UpdateMembership(ctx context.Context, m *Membership) error
}

// PaymentRepository persists payments
type PaymentRepository interface {
	GetPayment(ctx context.Context, id int64) (*Payment, error)
	CreatePayment(ctx context.Context, p *Payment) error
	UpdatePayment(ctx context.Context, p *Payment) error
	ListPendingPayments(ctx context.Context, customerID int64) ([]*Payment, error)
	GetLastPendingPayment(ctx context.Context, membershipID int64) (*Payment, error)
	CancelPayment(ctx context.Context, id int64) error
}

// DiscountCodeRepository looks up discount codes
type DiscountCodeRepository interface {
	GetDiscountCodeByCode(ctx context.Context, code string) (*DiscountCode, error)
}
