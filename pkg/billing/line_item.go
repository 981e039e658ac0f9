package billing

import (
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// LineItemType classifies a cart or payment line
type LineItemType string

const (
	LineItemProduct  LineItemType = "product"
	LineItemFee      LineItemType = "fee"
	LineItemDiscount LineItemType = "discount"
	LineItemCredit   LineItemType = "credit"
)

// AdjustmentType says how a rate is applied to an amount
type AdjustmentType string

const (
	AdjustmentPercentage AdjustmentType = "percentage"
	AdjustmentAbsolute   AdjustmentType = "absolute"
)

var hundred = decimal.NewFromInt(100)

// LineItem is a single priced line of a cart or payment.
//
// Subtotal, DiscountTotal, TaxTotal and Total are derived by Recalculate and
// should not be set directly.
type LineItem struct {
	ID          string       `json:"id"`
	Type        LineItemType `json:"type"`
	ProductID   int64        `json:"product_id,omitempty"`
	ProductSlug string       `json:"product_slug,omitempty"`
	Title       string       `json:"title"`
	Description string       `json:"description,omitempty"`

	UnitPrice decimal.Decimal `json:"unit_price"`
	Quantity  int             `json:"quantity"`

	Recurring     bool         `json:"recurring"`
	Duration      int          `json:"duration,omitempty"`
	DurationUnit  DurationUnit `json:"duration_unit,omitempty"`
	BillingCycles int          `json:"billing_cycles,omitempty"`

	Taxable      bool            `json:"taxable"`
	TaxCategory  string          `json:"tax_category,omitempty"`
	TaxRate      decimal.Decimal `json:"tax_rate"`
	TaxType      AdjustmentType  `json:"tax_type"`
	TaxLabel     string          `json:"tax_label,omitempty"`
	TaxInclusive bool            `json:"tax_inclusive"`

	Discountable            bool            `json:"discountable"`
	DiscountRate            decimal.Decimal `json:"discount_rate"`
	DiscountType            AdjustmentType  `json:"discount_type"`
	DiscountLabel           string          `json:"discount_label,omitempty"`
	ApplyDiscountToRenewals bool            `json:"apply_discount_to_renewals"`

	Subtotal      decimal.Decimal `json:"subtotal"`
	DiscountTotal decimal.Decimal `json:"discount_total"`
	TaxTotal      decimal.Decimal `json:"tax_total"`
	Total         decimal.Decimal `json:"total"`
}

// NewLineItem creates a line item of the given type with a fresh identifier.
func NewLineItem(t LineItemType) *LineItem {
	item := &LineItem{
		ID:                      fmt.Sprintf("LN_%s_%s", strings.ToUpper(string(t)), uuid.NewString()),
		Type:                    t,
		Quantity:                1,
		TaxType:                 AdjustmentPercentage,
		DiscountType:            AdjustmentPercentage,
		ApplyDiscountToRenewals: true,
	}
	item.Recalculate()
	return item
}

// Period returns the billing period the line renews on.
func (li *LineItem) Period() Period {
	return Period{Duration: li.Duration, DurationUnit: li.DurationUnit, BillingCycles: li.BillingCycles}
}

// Recalculate derives the line's totals from its attributes. It has no other
// side effects, so calling it repeatedly yields the same totals.
func (li *LineItem) Recalculate() {
	qty := li.Quantity
	if qty <= 0 {
		qty = 1
	}
	subtotal := li.UnitPrice.Mul(decimal.NewFromInt(int64(qty)))

	discount := decimal.Zero
	if li.Discountable && li.DiscountRate.IsPositive() && subtotal.IsPositive() {
		discount = adjustment(subtotal, li.DiscountRate, li.DiscountType)
		if discount.GreaterThan(subtotal) {
			discount = subtotal
		}
	}

	taxable := subtotal.Sub(discount)

	tax := decimal.Zero
	if li.Taxable && li.TaxRate.IsPositive() && taxable.IsPositive() {
		switch {
		case li.TaxType == AdjustmentAbsolute:
			tax = li.TaxRate
		case li.TaxInclusive:
			tax = taxable.Sub(taxable.Div(decimal.NewFromInt(1).Add(li.TaxRate.Div(hundred))))
		default:
			tax = taxable.Mul(li.TaxRate).Div(hundred)
		}
	}

	total := taxable
	if !li.TaxInclusive {
		total = total.Add(tax)
	}

	li.Subtotal = subtotal
	li.DiscountTotal = discount
	li.TaxTotal = tax
	li.Total = total
}

// RenewalTotal is what the line will cost on the next renewal. Discounts that
// do not apply to renewals are dropped.
func (li *LineItem) RenewalTotal() decimal.Decimal {
	if li.ApplyDiscountToRenewals || li.DiscountTotal.IsZero() {
		return li.Total
	}
	renewal := *li
	renewal.Discountable = false
	renewal.Recalculate()
	return renewal.Total
}

// Clone returns a copy of the line item with the same identifier.
func (li *LineItem) Clone() *LineItem {
	c := *li
	return &c
}

func adjustment(amount, rate decimal.Decimal, t AdjustmentType) decimal.Decimal {
	if t == AdjustmentAbsolute {
		return rate
	}
	return amount.Mul(rate).Div(hundred)
}

// ApplyAdjustment applies a percentage or absolute reduction to amount and
// never returns less than zero.
func ApplyAdjustment(amount, rate decimal.Decimal, t AdjustmentType) decimal.Decimal {
	reduced := amount.Sub(adjustment(amount, rate, t))
	if reduced.IsNegative() {
		return decimal.Zero
	}
	return reduced
}
