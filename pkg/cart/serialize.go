package cart

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
)

// Summary is the wire form of a cart
type Summary struct {
	Type                 Type                 `json:"cart_type"`
	Valid                bool                 `json:"valid"`
	CustomerID           int64                `json:"customer_id,omitempty"`
	MembershipID         int64                `json:"membership_id,omitempty"`
	PaymentID            int64                `json:"payment_id,omitempty"`
	PlanID               int64                `json:"plan_id,omitempty"`
	Currency             string               `json:"currency"`
	Country              string               `json:"country,omitempty"`
	Duration             int                  `json:"duration,omitempty"`
	DurationUnit         billing.DurationUnit `json:"duration_unit,omitempty"`
	BillingCycles        int                  `json:"billing_cycles,omitempty"`
	DiscountCode         string               `json:"discount_code,omitempty"`
	LineItems            []*billing.LineItem  `json:"line_items"`
	Subtotal             decimal.Decimal      `json:"subtotal"`
	TotalDiscounts       decimal.Decimal      `json:"total_discounts"`
	TotalTaxes           decimal.Decimal      `json:"total_taxes"`
	TotalFees            decimal.Decimal      `json:"total_fees"`
	TotalCredits         decimal.Decimal      `json:"total_credits"`
	Total                decimal.Decimal      `json:"total"`
	RecurringTotal       decimal.Decimal      `json:"recurring_total"`
	HasTrial             bool                 `json:"has_trial"`
	ShouldCollectPayment bool                 `json:"should_collect_payment"`
	BillingStartDate     *time.Time           `json:"billing_start_date,omitempty"`
	NextChargeDate       *time.Time           `json:"next_charge_date,omitempty"`
	ScheduledSwap        bool                 `json:"scheduled_swap,omitempty"`
	Errors               Errors               `json:"errors,omitempty"`
}

// Summary snapshots the cart's computed state.
func (c *Cart) Summary() Summary {
	s := Summary{
		Type:                 c.cartType,
		Valid:                c.IsValid(),
		PlanID:               c.planID,
		Currency:             c.currency,
		Country:              c.country,
		Duration:             c.duration,
		DurationUnit:         c.durationUnit,
		BillingCycles:        c.billingCycles,
		LineItems:            c.LineItems(),
		Subtotal:             c.Subtotal(),
		TotalDiscounts:       c.TotalDiscounts(),
		TotalTaxes:           c.TotalTaxes(),
		TotalFees:            c.TotalFees(),
		TotalCredits:         c.TotalCredits(),
		Total:                c.Total(),
		RecurringTotal:       c.RecurringTotal(),
		HasTrial:             c.HasTrial(),
		ShouldCollectPayment: c.ShouldCollectPayment(),
		BillingStartDate:     c.BillingStartDate(),
		NextChargeDate:       c.NextChargeDate(),
		ScheduledSwap:        c.scheduledSwap,
		Errors:               c.errors,
	}
	if c.customer != nil {
		s.CustomerID = c.customer.ID
	}
	if c.membership != nil {
		s.MembershipID = c.membership.ID
	}
	if c.payment != nil {
		s.PaymentID = c.payment.ID
	}
	if c.discount != nil {
		s.DiscountCode = c.discount.Code
	}
	return s
}

// MarshalJSON encodes the cart as its Summary.
func (c *Cart) MarshalJSON() ([]byte, error) {
	return json.Marshal(c.Summary())
}

// Fingerprint identifies what the cart charges for. Two carts with the same
// customer, membership, lines and totals share a fingerprint regardless of
// line item identifiers.
func (c *Cart) Fingerprint() string {
	var b strings.Builder
	var customerID, membershipID int64
	if c.customer != nil {
		customerID = c.customer.ID
	}
	if c.membership != nil {
		membershipID = c.membership.ID
	}
	fmt.Fprintf(&b, "%d|%d|%s|%s|%d|%s|%d\n", customerID, membershipID, c.cartType, c.currency, c.duration, c.durationUnit, c.billingCycles)

	lines := make([]string, 0, len(c.items))
	for _, item := range c.items {
		lines = append(lines, fmt.Sprintf("%s|%d|%s|%d|%s|%s",
			item.Type, item.ProductID, item.UnitPrice.String(), item.Quantity, item.DiscountTotal.String(), item.Total.String()))
	}
	sort.Strings(lines)
	b.WriteString(strings.Join(lines, "\n"))
	fmt.Fprintf(&b, "\n%s", c.Total().String())

	sum := sha256.Sum256([]byte(b.String()))
	return hex.EncodeToString(sum[:])
}
