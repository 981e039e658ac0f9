package cart

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/catalog"
)

// Type classifies a checkout attempt
type Type string

const (
	TypeNew       Type = "new"
	TypeRetry     Type = "retry"
	TypeUpgrade   Type = "upgrade"
	TypeDowngrade Type = "downgrade"
	TypeAddon     Type = "addon"
)

// IsMembershipChange reports whether the cart alters an existing membership.
func (t Type) IsMembershipChange() bool {
	return t == TypeUpgrade || t == TypeDowngrade || t == TypeAddon
}

// Cart is the priced result of a checkout attempt
type Cart struct {
	deps     *Deps
	settings Settings
	now      time.Time

	cartType   Type
	customer   *billing.Customer
	membership *billing.Membership
	payment    *billing.Payment
	discount   *billing.DiscountCode

	country  string
	state    string
	city     string
	currency string

	duration      int
	durationUnit  billing.DurationUnit
	billingCycles int
	periodLocked  bool
	autoRenew     bool

	planID     int64
	plan       *catalog.Product
	products   []*catalog.Product
	quantities map[int64]int

	items map[string]*billing.LineItem
	order []string

	errors Errors

	prorationCredit   decimal.Decimal
	scheduledSwap     bool
	cancelledPayments []int64
}

func newCart(req Request, deps *Deps) *Cart {
	currency := req.Currency
	if currency == "" {
		currency = deps.Settings.Currency
	}
	autoRenew := true
	if req.AutoRenew != nil {
		autoRenew = *req.AutoRenew
	}
	return &Cart{
		deps:       deps,
		settings:   deps.Settings,
		now:        deps.now(),
		cartType:   TypeNew,
		country:    req.Country,
		state:      req.State,
		city:       req.City,
		currency:   currency,
		autoRenew:  autoRenew,
		quantities: make(map[int64]int),
		items:      make(map[string]*billing.LineItem),
	}
}

func (c *Cart) Type() Type { return c.cartType }
func (c *Cart) Customer() *billing.Customer { return c.customer }
func (c *Cart) Membership() *billing.Membership { return c.membership }
func (c *Cart) Payment() *billing.Payment { return c.payment }
func (c *Cart) DiscountCode() *billing.DiscountCode { return c.discount }
func (c *Cart) Currency() string { return c.currency }
func (c *Cart) Country() string { return c.country }
func (c *Cart) AutoRenew() bool { return c.autoRenew }
func (c *Cart) PlanID() int64 { return c.planID }
func (c *Cart) Plan() *catalog.Product { return c.plan }
func (c *Cart) Now() time.Time { return c.now }
func (c *Cart) Errors() Errors { return c.errors }

// Products returns the catalog products in the cart, plan first.
func (c *Cart) Products() []*catalog.Product {
	return append([]*catalog.Product(nil), c.products...)
}

// Quantity returns how many units of a product the cart holds.
func (c *Cart) Quantity(productID int64) int {
	return c.quantities[productID]
}

// AddonQuantities returns the quantities of every non-plan product.
func (c *Cart) AddonQuantities() map[int64]int {
	out := make(map[int64]int)
	for _, p := range c.products {
		if p.ID != c.planID {
			out[p.ID] = c.quantities[p.ID]
		}
	}
	return out
}

// Period is the billing period of the cart's recurring lines.
func (c *Cart) Period() billing.Period {
	return billing.Period{Duration: c.duration, DurationUnit: c.durationUnit, BillingCycles: c.billingCycles}
}

// ProrationCredit is the part of the proration credit that reduced the
// amount due. It is zero when the cart was not prorated. A credit larger than
// the charge still shows in full on its line item and in TotalCredits.
func (c *Cart) ProrationCredit() decimal.Decimal { return c.prorationCredit }

// HasScheduledSwap reports whether the change must wait for the end of the
// current billing cycle.
func (c *Cart) HasScheduledSwap() bool { return c.scheduledSwap }

// CancelledPayments lists the pending payments this build cancelled.
func (c *Cart) CancelledPayments() []int64 {
	return append([]int64(nil), c.cancelledPayments...)
}

// AddError records a build error.
func (c *Cart) AddError(code, message string) {
	c.errors = append(c.errors, Error{Code: code, Message: message})
}

func (c *Cart) addErrorData(code, message string, data any) {
	c.errors = append(c.errors, Error{Code: code, Message: message, Data: data})
}

// LineItems returns the line items, most recently added first.
func (c *Cart) LineItems() []*billing.LineItem {
	items := make([]*billing.LineItem, 0, len(c.order))
	for i := len(c.order) - 1; i >= 0; i-- {
		items = append(items, c.items[c.order[i]])
	}
	return items
}

// LineItemsByType returns the line items of one type, most recent first.
func (c *Cart) LineItemsByType(t billing.LineItemType) []*billing.LineItem {
	var items []*billing.LineItem
	for _, item := range c.LineItems() {
		if item.Type == t {
			items = append(items, item)
		}
	}
	return items
}

// AddLineItem prices an item against the cart's discount code and tax
// location and stores it.
func (c *Cart) AddLineItem(ctx context.Context, item *billing.LineItem) {
	c.applyDiscount(item)
	c.applyTaxes(ctx, item)
	c.storeLineItem(item)
}

func (c *Cart) storeLineItem(item *billing.LineItem) {
	item.Recalculate()
	if _, ok := c.items[item.ID]; !ok {
		c.order = append(c.order, item.ID)
	}
	c.items[item.ID] = item
}

func (c *Cart) applyDiscount(item *billing.LineItem) {
	d := c.discount
	if d == nil || !item.Discountable || !d.IsValid(item.ProductID, c.now) {
		return
	}
	switch item.Type {
	case billing.LineItemProduct:
		if !d.Value.IsPositive() {
			return
		}
		item.DiscountRate = d.Value
		item.DiscountType = d.Type
		item.ApplyDiscountToRenewals = d.AppliesToRenewals
	case billing.LineItemFee:
		if !d.SetupFeeValue.IsPositive() {
			return
		}
		item.DiscountRate = d.SetupFeeValue
		item.DiscountType = d.SetupFeeType
		item.ApplyDiscountToRenewals = false
	default:
		return
	}
	item.DiscountLabel = d.Label()
}

func (c *Cart) applyTaxes(ctx context.Context, item *billing.LineItem) {
	if !c.settings.TaxesEnabled || !item.Taxable || c.country == "" || c.deps.Taxes == nil {
		return
	}
	rates, err := c.deps.Taxes.ApplicableTaxRates(ctx, c.country, item.TaxCategory, c.state, c.city)
	if err != nil {
		c.AddError(CodeTaxRatesUnavailable, fmt.Sprintf("Tax rates for %s could not be loaded.", c.country))
		return
	}
	if len(rates) == 0 {
		return
	}
	item.TaxRate = rates[0].Rate
	item.TaxType = billing.AdjustmentPercentage
	item.TaxLabel = rates[0].Title
	item.TaxInclusive = c.settings.TaxInclusive
}

// AddProduct resolves a product reference and adds it to the cart.
func (c *Cart) AddProduct(ctx context.Context, ref ProductRef) bool {
	p, ok := c.lookupProduct(ctx, ref)
	if !ok {
		return false
	}
	qty := ref.Quantity
	if qty <= 0 {
		qty = 1
	}
	return c.addProduct(ctx, p, qty, false)
}

func (c *Cart) lookupProduct(ctx context.Context, ref ProductRef) (*catalog.Product, bool) {
	var (
		p   *catalog.Product
		err error
	)
	switch {
	case ref.ID != 0:
		p, err = c.deps.Products.GetProduct(ctx, ref.ID)
	case ref.Slug != "":
		p, err = c.deps.Products.GetProductBySlug(ctx, ref.Slug)
	default:
		err = catalog.ErrProductNotFound
	}
	if err != nil || !p.Active {
		name := ref.Slug
		if name == "" {
			name = fmt.Sprint(ref.ID)
		}
		c.AddError(CodeMissingProduct, fmt.Sprintf("The product %s does not exist.", name))
		return nil, false
	}
	return p, true
}

// addProduct prices p for the cart's period and appends its product line and,
// unless skipped, its setup fee line.
func (c *Cart) addProduct(ctx context.Context, p *catalog.Product, qty int, skipSetupFee bool) bool {
	if p.Recurring {
		if c.duration > 0 && (c.duration != p.Duration || c.durationUnit != p.DurationUnit) {
			variation, ok := p.GetAsVariation(c.duration, c.durationUnit)
			if !ok {
				c.AddError(CodeMissingPriceVariations, fmt.Sprintf("%s is not available for the selected billing period.", p.Name))
				return false
			}
			p = variation
		}
		if c.duration == 0 {
			c.duration = p.Duration
			c.durationUnit = p.DurationUnit
		}
	}

	if p.IsPlan() {
		if c.planID != 0 && c.planID != p.ID {
			c.AddError(CodePlanAlreadyAdded, "This cart already contains a plan.")
			return false
		}
		c.planID = p.ID
		c.plan = p
		if !c.periodLocked {
			c.billingCycles = p.BillingCycles
		}
	}

	cycles := p.BillingCycles
	if c.planID != 0 || c.periodLocked {
		cycles = c.billingCycles
	}

	item := billing.NewLineItem(billing.LineItemProduct)
	item.ProductID = p.ID
	item.ProductSlug = p.Slug
	item.Title = p.Name
	item.Description = p.Description
	item.UnitPrice = p.Amount
	item.Quantity = qty
	item.Recurring = p.Recurring
	if p.Recurring {
		item.Duration = p.Duration
		item.DurationUnit = p.DurationUnit
		item.BillingCycles = cycles
	}
	item.Taxable = p.Taxable
	item.TaxCategory = p.TaxCategory
	item.Discountable = true
	c.AddLineItem(ctx, item)

	c.trackProduct(p, qty)

	if p.HasSetupFee() && !skipSetupFee {
		fee := billing.NewLineItem(billing.LineItemFee)
		fee.ProductID = p.ID
		fee.ProductSlug = p.Slug
		fee.Title = "Signup Fee - " + p.Name
		fee.Description = "Signup Fee"
		fee.UnitPrice = p.SetupFee
		fee.Taxable = p.Taxable
		fee.TaxCategory = p.TaxCategory
		fee.Discountable = true
		c.AddLineItem(ctx, fee)
	}
	return true
}

func (c *Cart) trackProduct(p *catalog.Product, qty int) {
	if _, ok := c.quantities[p.ID]; !ok {
		c.products = append(c.products, p)
	}
	c.quantities[p.ID] += qty
	sort.SliceStable(c.products, func(i, j int) bool {
		return c.products[i].IsPlan() && !c.products[j].IsPlan()
	})
}

// reset discards every line and product so the cart can be rejected cleanly.
func (c *Cart) reset() {
	c.items = make(map[string]*billing.LineItem)
	c.order = nil
	c.products = nil
	c.quantities = make(map[int64]int)
	c.planID = 0
	c.plan = nil
	c.prorationCredit = decimal.Zero
	c.scheduledSwap = false
}

// HasRecurring reports whether any line renews.
func (c *Cart) HasRecurring() bool {
	for _, item := range c.items {
		if item.Recurring {
			return true
		}
	}
	return false
}

// IsValid reports whether the cart has no errors and every recurring line
// shares one billing period.
func (c *Cart) IsValid() bool {
	if len(c.errors) > 0 {
		return false
	}
	var ref *billing.Period
	for _, item := range c.items {
		if !item.Recurring {
			continue
		}
		p := item.Period()
		if ref == nil {
			ref = &p
			continue
		}
		if *ref != p {
			return false
		}
	}
	return true
}

// HasTrial reports whether the first charge is deferred by a trial. Only new
// or retried carts qualify and only for customers who never trialed.
func (c *Cart) HasTrial() bool {
	if c.cartType != TypeNew && c.cartType != TypeRetry {
		return false
	}
	if c.customer != nil && c.customer.HasTrialed {
		return false
	}
	if c.membership != nil && c.cartType == TypeRetry && c.membership.DateTrialEnd == nil {
		return false
	}
	for _, p := range c.products {
		if p.HasTrial() {
			return true
		}
	}
	return false
}

// TrialProduct returns the first product that carries a trial.
func (c *Cart) TrialProduct() *catalog.Product {
	for _, p := range c.products {
		if p.HasTrial() {
			return p
		}
	}
	return nil
}

// IsFree reports whether nothing is due now or on renewal.
func (c *Cart) IsFree() bool {
	return c.Total().IsZero() && c.RecurringTotal().IsZero()
}

// ShouldCollectPayment reports whether a gateway has to collect a payment
// method. Free carts and scheduled swaps never need one; trials may skip it
// when allowed.
func (c *Cart) ShouldCollectPayment() bool {
	if c.IsFree() || c.scheduledSwap {
		return false
	}
	if c.HasTrial() && c.settings.AllowTrialWithoutPaymentMethod {
		return false
	}
	return true
}

// BillingStartDate is when the first real charge happens. It is nil unless
// the cart has a trial.
func (c *Cart) BillingStartDate() *time.Time {
	if !c.HasTrial() {
		return nil
	}
	p := c.TrialProduct()
	start := p.TrialDurationUnit.AddTo(c.now, p.TrialDuration)
	return &start
}

// NextChargeDate is when the cart will next be charged after checkout.
func (c *Cart) NextChargeDate() *time.Time {
	if start := c.BillingStartDate(); start != nil {
		return start
	}
	if !c.HasRecurring() || c.duration <= 0 {
		return nil
	}
	next := c.durationUnit.AddTo(c.now, c.duration)
	return &next
}
