package cart

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
)

// prorate credits the unused part of the membership's current cycle as a
// negative credit line. Trialing memberships have paid nothing to credit.
func (b *builder) prorate(ctx context.Context) {
	c := b.cart
	m := c.membership
	if m == nil || m.IsTrialing() {
		return
	}

	// the time-based credit never exceeds what the membership costs; a setup
	// fee paid on top of it is refunded separately
	credit := decimal.Min(b.unusedCredit(m), m.Amount)
	credit = credit.Add(b.setupFeeCredit(ctx, m)).Round(c.settings.Precision)
	if !credit.IsPositive() {
		return
	}

	due := c.Total()
	item := billing.NewLineItem(billing.LineItemCredit)
	item.Title = "Credit"
	item.Description = "Prorated amount based on the previous membership"
	item.UnitPrice = credit.Neg()
	c.AddLineItem(ctx, item)
	c.prorationCredit = decimal.Min(credit, due)
}

// unusedCredit is the value of the days left in the cycle. A cycle that
// started today is fully unused; lifetime memberships credit what was paid.
func (b *builder) unusedCredit(m *billing.Membership) decimal.Decimal {
	if m.IsLifetime() {
		if m.InitialAmount.IsPositive() {
			return m.InitialAmount
		}
		return m.Amount
	}
	cycle := m.DaysInCycle()
	if cycle <= 0 {
		return decimal.Zero
	}
	unused := m.RemainingDaysInCycle(b.cart.now)
	if m.CycleStartedOn(b.cart.now) {
		unused = cycle
	}
	return m.Amount.Mul(decimal.NewFromInt(int64(unused))).Div(decimal.NewFromInt(int64(cycle)))
}

// setupFeeCredit refunds the setup fee already paid, up to the new plan's
// fee, when the cart charges the new plan's fee again.
func (b *builder) setupFeeCredit(ctx context.Context, m *billing.Membership) decimal.Decimal {
	c := b.cart
	if c.plan == nil || !c.plan.HasSetupFee() || !c.chargesSetupFee(c.planID) {
		return decimal.Zero
	}
	if m.TimesBilled == 0 && c.cartType != TypeUpgrade {
		return decimal.Zero
	}
	old, err := b.deps.Products.GetProduct(ctx, m.PlanID)
	if err != nil || !old.HasSetupFee() {
		return decimal.Zero
	}

	fee := decimal.Min(old.SetupFee, c.plan.SetupFee)
	item := billing.NewLineItem(billing.LineItemFee)
	item.UnitPrice = fee
	item.Taxable = old.Taxable
	item.TaxCategory = old.TaxCategory
	c.applyTaxes(ctx, item)
	item.Recalculate()
	return item.Total
}

func (c *Cart) chargesSetupFee(productID int64) bool {
	for _, item := range c.items {
		if item.Type == billing.LineItemFee && item.ProductID == productID {
			return true
		}
	}
	return false
}
