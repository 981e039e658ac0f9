package cart

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/catalog"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// Build prices a checkout attempt. The returned Errors are also available
// from the cart; a nil slice means the cart may be submitted.
func Build(ctx context.Context, req Request, deps Deps) (*Cart, Errors) {
	c := newCart(req, &deps)
	b := &builder{cart: c, req: req, deps: &deps, log: deps.logger()}
	b.build(ctx)

	if len(c.errors) > 0 {
		b.log.WithFields(map[string]any{
			"cart_type": string(c.cartType),
			"errors":    c.errors.Codes(),
		}).Debug("cart built with errors")
		return c, c.errors
	}
	b.log.Debugf("built %s cart with %d line items", c.cartType, len(c.items))
	return c, nil
}

type builder struct {
	cart *Cart
	req  Request
	deps *Deps
	log  *observability.Logger

	// products recovered from a pending payment
	recovered []ProductRef
}

type resolvedProduct struct {
	product  *catalog.Product
	quantity int
}

func (b *builder) build(ctx context.Context) {
	if !b.loadCustomer(ctx) || !b.loadDiscountCode(ctx) {
		return
	}
	if b.buildFromPayment(ctx) {
		return
	}
	if b.buildFromMembership(ctx) {
		return
	}
	b.buildNew(ctx)
}

func (b *builder) lookupFailed(what string, err error) {
	b.log.WithError(err).Warnf("failed to load %s", what)
	b.cart.AddError(CodeLookupFailed, fmt.Sprintf("The %s could not be loaded.", what))
}

func (b *builder) loadCustomer(ctx context.Context) bool {
	if b.req.CustomerID == 0 {
		return true
	}
	customer, err := b.deps.Customers.GetCustomer(ctx, b.req.CustomerID)
	if errors.Is(err, storage.ErrNotFound) {
		b.cart.AddError(CodeCustomerNotFound, "The customer could not be found.")
		return false
	}
	if err != nil {
		b.lookupFailed("customer", err)
		return false
	}
	b.cart.customer = customer
	return true
}

func (b *builder) loadDiscountCode(ctx context.Context) bool {
	if b.req.DiscountCode == "" {
		return true
	}
	code, err := b.deps.Discounts.GetDiscountCodeByCode(ctx, b.req.DiscountCode)
	if errors.Is(err, storage.ErrNotFound) {
		b.cart.AddError(CodeDiscountCodeNotFound, fmt.Sprintf("The discount code %s does not exist.", b.req.DiscountCode))
		return false
	}
	if err != nil {
		b.lookupFailed("discount code", err)
		return false
	}
	b.cart.discount = code
	return true
}

func (b *builder) ownedByCustomer(customerID int64) bool {
	return b.cart.customer != nil && b.cart.customer.ID == customerID
}

func (b *builder) loadMembership(ctx context.Context, id int64) (*billing.Membership, bool) {
	m, err := b.deps.Memberships.GetMembership(ctx, id)
	if errors.Is(err, storage.ErrNotFound) {
		b.cart.AddError(CodeMembershipNotFound, "The membership could not be found.")
		return nil, false
	}
	if err != nil {
		b.lookupFailed("membership", err)
		return nil, false
	}
	return m, true
}

// buildFromPayment recovers a pending payment. It returns true when the cart
// is complete: either rebuilt as a retry or rejected with an error.
func (b *builder) buildFromPayment(ctx context.Context) bool {
	if b.req.PaymentID == 0 {
		return false
	}
	c := b.cart
	payment, err := b.deps.Payments.GetPayment(ctx, b.req.PaymentID)
	if errors.Is(err, storage.ErrNotFound) {
		c.AddError(CodePaymentNotFound, "The payment could not be found.")
		return true
	}
	if err != nil {
		b.lookupFailed("payment", err)
		return true
	}
	if !b.ownedByCustomer(payment.CustomerID) {
		c.AddError(CodeLacksPermission, "You are not allowed to pay this payment.")
		return true
	}

	m, ok := b.loadMembership(ctx, payment.MembershipID)
	if !ok {
		return true
	}
	if !b.ownedByCustomer(m.CustomerID) {
		c.AddError(CodeLacksPermission, "You are not allowed to change this membership.")
		return true
	}
	c.membership = m

	items, products := b.recoverLineItems(ctx, payment, m)
	for _, p := range products {
		b.recovered = append(b.recovered, ProductRef{ID: p.product.ID, Quantity: p.quantity})
	}

	if payment.IsCompleted() {
		// nothing to pay again; the recovered products seed a membership change
		return false
	}
	if !c.settings.retryAllowed(payment.Status) {
		c.AddError(CodeInvalidStatus, fmt.Sprintf("A %s payment cannot be paid again.", payment.Status))
		return true
	}
	c.payment = payment
	if m.IsActive() || m.IsTrialing() {
		return false
	}

	c.cartType = TypeRetry
	c.duration = m.Duration
	c.durationUnit = m.DurationUnit
	if b.req.AutoRenew == nil {
		c.autoRenew = m.AutoRenew
	}
	if code := payment.DiscountCode; code != "" && c.discount == nil {
		if d, err := b.deps.Discounts.GetDiscountCodeByCode(ctx, code); err == nil {
			c.discount = d
		}
	}
	for _, p := range products {
		c.trackProduct(p.product, p.quantity)
	}
	for _, item := range items {
		c.storeLineItem(item)
	}
	return true
}

// recoverLineItems clones the payment's lines and re-prices recurring
// product lines for the membership's current period.
func (b *builder) recoverLineItems(ctx context.Context, payment *billing.Payment, m *billing.Membership) ([]*billing.LineItem, []resolvedProduct) {
	c := b.cart
	items := make([]*billing.LineItem, 0, len(payment.LineItems))
	var products []resolvedProduct

	// payments keep their lines most recent first
	for i := len(payment.LineItems) - 1; i >= 0; i-- {
		item := payment.LineItems[i].Clone()
		items = append(items, item)
		if item.Type != billing.LineItemProduct || item.ProductID == 0 {
			continue
		}
		product, err := b.deps.Products.GetProduct(ctx, item.ProductID)
		if err != nil {
			b.log.WithError(err).WithField("product_id", item.ProductID).Warn("recovered line item references an unknown product")
			continue
		}
		if product.Recurring && m.Duration > 0 && (item.Duration != m.Duration || item.DurationUnit != m.DurationUnit) {
			if v, ok := product.GetPriceVariation(m.Duration, m.DurationUnit); ok {
				item.UnitPrice = v.Amount
				item.Duration = v.Duration
				item.DurationUnit = v.DurationUnit
			}
		}
		if product.IsPlan() {
			c.planID = product.ID
			c.plan = product
			c.billingCycles = item.BillingCycles
		}
		products = append(products, resolvedProduct{product: product, quantity: item.Quantity})
	}
	return items, products
}

func (b *builder) productRefs() []ProductRef {
	if len(b.req.Products) > 0 {
		return b.req.Products
	}
	return b.recovered
}

// resolveProducts loads every referenced product, plans first, without
// touching the cart's lines.
func (b *builder) resolveProducts(ctx context.Context, refs []ProductRef) ([]resolvedProduct, bool) {
	resolved := make([]resolvedProduct, 0, len(refs))
	for _, ref := range refs {
		p, ok := b.cart.lookupProduct(ctx, ref)
		if !ok {
			return nil, false
		}
		qty := ref.Quantity
		if qty <= 0 {
			qty = 1
		}
		resolved = append(resolved, resolvedProduct{product: p, quantity: qty})
	}
	sort.SliceStable(resolved, func(i, j int) bool {
		return resolved[i].product.IsPlan() && !resolved[j].product.IsPlan()
	})
	return resolved, true
}

func (b *builder) addProducts(ctx context.Context, products []resolvedProduct) bool {
	for _, rp := range products {
		if !b.cart.addProduct(ctx, rp.product, rp.quantity, false) {
			return false
		}
	}
	return true
}

func findPlan(products []resolvedProduct) *catalog.Product {
	for _, rp := range products {
		if rp.product.IsPlan() {
			return rp.product
		}
	}
	return nil
}

func withoutProduct(products []resolvedProduct, id int64) []resolvedProduct {
	out := make([]resolvedProduct, 0, len(products))
	for _, rp := range products {
		if rp.product.ID != id {
			out = append(out, rp)
		}
	}
	return out
}

// targetPeriod is the period the plan will be billed on after the change.
func (b *builder) targetPeriod(plan *catalog.Product) (int, billing.DurationUnit) {
	if !plan.Recurring {
		return 0, ""
	}
	if b.req.hasPeriod() {
		return b.req.Duration, b.req.DurationUnit
	}
	return plan.Duration, plan.DurationUnit
}

// reuseMembershipDiscount carries the membership's code into the change
// when it keeps applying to renewals.
func (b *builder) reuseMembershipDiscount(ctx context.Context, m *billing.Membership) {
	c := b.cart
	if c.discount != nil || m.DiscountCode == "" {
		return
	}
	d, err := b.deps.Discounts.GetDiscountCodeByCode(ctx, m.DiscountCode)
	if err != nil {
		return
	}
	if d.AppliesToRenewals {
		c.discount = d
	}
}

// buildFromMembership handles changes to an existing membership. It returns
// false when the attempt should be treated as a fresh purchase.
func (b *builder) buildFromMembership(ctx context.Context) bool {
	c := b.cart
	m := c.membership
	if m == nil && b.req.MembershipID == 0 {
		return false
	}
	c.cartType = TypeUpgrade
	if b.req.MembershipID != 0 && (m == nil || m.ID != b.req.MembershipID) {
		loaded, ok := b.loadMembership(ctx, b.req.MembershipID)
		if !ok {
			return true
		}
		m = loaded
	}
	if !b.ownedByCustomer(m.CustomerID) {
		c.AddError(CodeLacksPermission, "You are not allowed to change this membership.")
		return true
	}
	c.membership = m
	if b.req.AutoRenew == nil {
		c.autoRenew = m.AutoRenew
	}

	refs := b.productRefs()
	if len(refs) == 0 {
		if c.payment != nil {
			return false
		}
		c.AddError(CodeNoChanges, "This cart proposes no changes to the current membership.")
		return true
	}

	b.reuseMembershipDiscount(ctx, m)
	c.planID, c.plan, c.billingCycles = 0, nil, 0

	products, ok := b.resolveProducts(ctx, refs)
	if !ok {
		return true
	}
	plan := findPlan(products)
	if plan == nil {
		return b.buildAddon(ctx, m, products)
	}

	duration, unit := b.targetPeriod(plan)
	planChange := m.PlanID != plan.ID || m.Duration != duration || m.DurationUnit != unit
	if !planChange {
		if len(products) > 1 {
			return b.buildAddon(ctx, m, withoutProduct(products, plan.ID))
		}
		c.reset()
		c.AddError(CodeNoChanges, "This cart proposes no changes to the current membership.")
		return true
	}

	if !b.checkEntitlements(ctx, m, plan.Limits) {
		return true
	}

	c.duration, c.durationUnit = duration, unit
	if !b.addProducts(ctx, products) {
		return true
	}

	if !c.HasRecurring() && !m.IsLifetime() {
		c.cartType = TypeUpgrade
		b.prorate(ctx)
		return true
	}
	b.classifyPlanChange(ctx, m)
	return true
}

// buildAddon adds products on top of the current plan, keeping the
// membership's period and pricing.
func (b *builder) buildAddon(ctx context.Context, m *billing.Membership, addons []resolvedProduct) bool {
	c := b.cart
	c.cartType = TypeAddon
	c.duration = m.Duration
	c.durationUnit = m.DurationUnit
	c.billingCycles = m.BillingCycles
	c.periodLocked = true

	plan, err := b.deps.Products.GetProduct(ctx, m.PlanID)
	if err != nil {
		c.AddError(CodeMissingProduct, "The membership's plan does not exist.")
		return true
	}
	// the current plan is added back at the membership's price so the credit
	// for the unused cycle nets out against it
	planCopy := *plan
	planCopy.Amount = m.Amount
	if plan.Recurring && m.Duration > 0 {
		planCopy.Duration = m.Duration
		planCopy.DurationUnit = m.DurationUnit
	}
	if !c.addProduct(ctx, &planCopy, 1, m.TimesBilled > 0) {
		return true
	}
	if !b.addProducts(ctx, addons) {
		return true
	}
	b.prorate(ctx)
	return true
}

// checkEntitlements reports whether every site of the membership fits the
// new plan's limits. Each overage is recorded as its own error.
func (b *builder) checkEntitlements(ctx context.Context, m *billing.Membership, limits catalog.Limits) bool {
	if b.deps.Sites == nil || b.deps.Entitlements == nil {
		return true
	}
	c := b.cart
	list, err := b.deps.Sites.GetSites(ctx, m.ID)
	if err != nil {
		b.log.WithError(err).WithMembership(m.ID).Error("failed to list sites for entitlement check")
		c.AddError(CodeEntitlementCheckFailed, "The sites of this membership could not be checked against the new plan.")
		return false
	}
	ok := true
	for _, site := range list {
		posts, err := b.deps.Entitlements.CheckAllPostTypes(ctx, site, limits)
		if err != nil {
			b.log.WithError(err).WithField("site_id", site.ID).Error("failed to check post limits")
			c.AddError(CodeEntitlementCheckFailed, fmt.Sprintf("Site %s could not be checked against the new plan.", site.Title))
			return false
		}
		for _, o := range posts {
			c.addErrorData(CodeOverlimitsPosts, o.Error(), o)
			ok = false
		}
		domains, err := b.deps.Entitlements.CheckAllDomains(ctx, site.ID, limits)
		if err != nil {
			b.log.WithError(err).WithField("site_id", site.ID).Error("failed to check domain limits")
			c.AddError(CodeEntitlementCheckFailed, fmt.Sprintf("Site %s could not be checked against the new plan.", site.Title))
			return false
		}
		for _, o := range domains {
			c.addErrorData(CodeOverlimitsDomains, o.Error(), o)
			ok = false
		}
	}
	return ok
}

func pricePerDay(amount decimal.Decimal, days int) decimal.Decimal {
	if days <= 0 {
		return amount
	}
	return amount.Div(decimal.NewFromInt(int64(days)))
}

// classifyPlanChange compares the daily price of the new arrangement with
// the current one.
func (b *builder) classifyPlanChange(ctx context.Context, m *billing.Membership) {
	c := b.cart
	recurring := c.RecurringTotal()
	oldDays := m.DaysInCycle()
	newDays := billing.DaysInCycle(c.duration, c.durationUnit)
	oldPerDay := pricePerDay(m.Amount, oldDays)
	newPerDay := pricePerDay(recurring, newDays)

	// a different cycle length is compared against the old plan priced on
	// the new cycle when such a variation exists
	comparable := oldPerDay
	if oldDays != newDays {
		if old, err := b.deps.Products.GetProduct(ctx, m.PlanID); err == nil {
			if v, ok := old.GetPriceVariation(c.duration, c.durationUnit); ok {
				comparable = pricePerDay(v.Amount, newDays)
			}
		}
	}

	// moving to a shorter cycle that costs more per day never applies
	// mid-cycle, whichever way the plans compare
	inGoodStanding := m.IsActive() || m.IsTrialing()
	if inGoodStanding && newPerDay.GreaterThan(oldPerDay) && newDays < oldDays {
		c.reset()
		c.AddError(CodeNoChanges, "A shorter billing period can only be selected once the current one ends.")
		return
	}

	downgrade := newPerDay.LessThan(comparable)
	if !downgrade && m.PlanID == c.planID {
		downgrade = recurring.LessThan(m.Amount)
	}
	if !downgrade {
		c.cartType = TypeUpgrade
		b.prorate(ctx)
		return
	}

	c.cartType = TypeDowngrade
	if inGoodStanding {
		b.addScheduledSwapCredit(ctx)
		return
	}
	b.prorate(ctx)
}

// addScheduledSwapCredit zeroes the amount due; the new plan is charged when
// the current cycle ends.
func (b *builder) addScheduledSwapCredit(ctx context.Context) {
	c := b.cart
	c.scheduledSwap = true
	total := c.Total()
	if !total.IsPositive() {
		return
	}
	credit := billing.NewLineItem(billing.LineItemCredit)
	credit.Title = "Scheduled Swap Credit"
	credit.Description = "The plan change takes effect at the end of the current billing cycle"
	credit.UnitPrice = total.Neg()
	c.AddLineItem(ctx, credit)
}

// buildNew prices a fresh purchase.
func (b *builder) buildNew(ctx context.Context) {
	c := b.cart
	c.cartType = TypeNew
	c.planID, c.plan, c.billingCycles = 0, nil, 0

	products, ok := b.resolveProducts(ctx, b.productRefs())
	if !ok {
		return
	}
	if plan := findPlan(products); plan != nil {
		duration, unit := b.targetPeriod(plan)
		c.duration, c.durationUnit = duration, unit
	} else if b.req.hasPeriod() {
		c.duration, c.durationUnit = b.req.Duration, b.req.DurationUnit
	}
	if !b.addProducts(ctx, products) {
		return
	}
	b.cancelConflictingPayments(ctx)
}

// cancelConflictingPayments cancels the customer's other pending payments
// whose totals differ from this cart. Payments within the tolerance are left
// for reuse.
func (b *builder) cancelConflictingPayments(ctx context.Context) {
	c := b.cart
	if c.customer == nil || b.deps.ReadOnly {
		return
	}
	pending, err := b.deps.Payments.ListPendingPayments(ctx, c.customer.ID)
	if err != nil {
		b.log.WithError(err).WithCustomer(c.customer.ID).Warn("failed to list pending payments")
		return
	}
	total := c.Total()
	for _, p := range pending {
		if c.payment != nil && p.ID == c.payment.ID {
			continue
		}
		if p.Total.Sub(total).Abs().LessThanOrEqual(c.settings.PendingPaymentTolerance) {
			continue
		}
		if err := b.deps.Payments.CancelPayment(ctx, p.ID); err != nil {
			b.log.WithError(err).WithField("payment_id", p.ID).Warn("failed to cancel pending payment")
			continue
		}
		c.cancelledPayments = append(c.cancelledPayments, p.ID)
	}
}
