package catalog

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
)

// ErrProductNotFound is returned when a product does not exist
var ErrProductNotFound = errors.New("product not found")

// Kind separates plans from the addons purchased alongside them
type Kind string

const (
	KindPlan  Kind = "plan"
	KindAddon Kind = "addon"
)

// Variation prices a product on an alternate billing period
type Variation struct {
	Duration     int                  `json:"duration"`
	DurationUnit billing.DurationUnit `json:"duration_unit"`
	Amount       decimal.Decimal      `json:"amount"`
}

// Limits are the per-site entitlements granted by a plan. A post type that is
// not listed is unlimited; a nil CustomDomains is unlimited.
type Limits struct {
	PostTypes     map[string]int64 `json:"post_types,omitempty"`
	CustomDomains *int64           `json:"custom_domains,omitempty"`
}

// Product is a purchasable plan or addon
type Product struct {
	ID                int64                `json:"id"`
	Slug              string               `json:"slug"`
	Name              string               `json:"name"`
	Description       string               `json:"description,omitempty"`
	Kind              Kind                 `json:"kind"`
	Amount            decimal.Decimal      `json:"amount"`
	SetupFee          decimal.Decimal      `json:"setup_fee"`
	Duration          int                  `json:"duration"`
	DurationUnit      billing.DurationUnit `json:"duration_unit"`
	Recurring         bool                 `json:"recurring"`
	BillingCycles     int                  `json:"billing_cycles"`
	TrialDuration     int                  `json:"trial_duration"`
	TrialDurationUnit billing.DurationUnit `json:"trial_duration_unit,omitempty"`
	Taxable           bool                 `json:"taxable"`
	TaxCategory       string               `json:"tax_category,omitempty"`
	Active            bool                 `json:"active"`
	Variations        []Variation          `json:"variations,omitempty"`
	Limits            Limits               `json:"limits"`
}

// IsPlan reports whether the product is a plan.
func (p *Product) IsPlan() bool {
	return p.Kind == KindPlan
}

// HasSetupFee reports whether a one-time fee is charged with the first payment.
func (p *Product) HasSetupFee() bool {
	return p.SetupFee.IsPositive()
}

// HasTrial reports whether the product starts with a free trial.
func (p *Product) HasTrial() bool {
	return p.TrialDuration > 0 && p.TrialDurationUnit.Valid()
}

// Period returns the product's own billing period.
func (p *Product) Period() billing.Period {
	return billing.Period{Duration: p.Duration, DurationUnit: p.DurationUnit, BillingCycles: p.BillingCycles}
}

// GetPriceVariation returns the variation for a period. The product's own
// period counts as a variation priced at its base amount.
func (p *Product) GetPriceVariation(duration int, unit billing.DurationUnit) (Variation, bool) {
	if p.Duration == duration && p.DurationUnit == unit {
		return Variation{Duration: p.Duration, DurationUnit: p.DurationUnit, Amount: p.Amount}, true
	}
	for _, v := range p.Variations {
		if v.Duration == duration && v.DurationUnit == unit {
			return v, true
		}
	}
	return Variation{}, false
}

// GetAsVariation returns a copy of the product priced for the given period.
func (p *Product) GetAsVariation(duration int, unit billing.DurationUnit) (*Product, bool) {
	v, ok := p.GetPriceVariation(duration, unit)
	if !ok {
		return nil, false
	}
	c := *p
	c.Amount = v.Amount
	c.Duration = v.Duration
	c.DurationUnit = v.DurationUnit
	return &c, true
}

// Repository looks up products
type Repository interface {
	GetProduct(ctx context.Context, id int64) (*Product, error)
	GetProductBySlug(ctx context.Context, slug string) (*Product, error)
}
