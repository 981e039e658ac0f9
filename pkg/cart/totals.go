package cart

import (
	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
)

// round clamps at zero and rounds to the store precision. Totals are summed
// unrounded and rounded once, here.
func (c *Cart) round(d decimal.Decimal) decimal.Decimal {
	if d.IsNegative() {
		d = decimal.Zero
	}
	return d.Round(c.settings.Precision)
}

func (c *Cart) sum(include func(*billing.LineItem) bool, value func(*billing.LineItem) decimal.Decimal) decimal.Decimal {
	total := decimal.Zero
	for _, id := range c.order {
		item := c.items[id]
		if include(item) {
			total = total.Add(value(item))
		}
	}
	return total
}

func all(*billing.LineItem) bool { return true }

func ofType(types ...billing.LineItemType) func(*billing.LineItem) bool {
	return func(item *billing.LineItem) bool {
		for _, t := range types {
			if item.Type == t {
				return true
			}
		}
		return false
	}
}

// Total is the amount due now.
func (c *Cart) Total() decimal.Decimal {
	return c.round(c.sum(all, func(item *billing.LineItem) decimal.Decimal { return item.Total }))
}

// Subtotal sums product and fee lines before discounts and taxes.
func (c *Cart) Subtotal() decimal.Decimal {
	return c.round(c.sum(ofType(billing.LineItemProduct, billing.LineItemFee),
		func(item *billing.LineItem) decimal.Decimal { return item.Subtotal }))
}

// TotalTaxes sums the tax on every line.
func (c *Cart) TotalTaxes() decimal.Decimal {
	return c.round(c.sum(all, func(item *billing.LineItem) decimal.Decimal { return item.TaxTotal }))
}

// TotalDiscounts sums per-line discounts and standalone discount lines.
func (c *Cart) TotalDiscounts() decimal.Decimal {
	perLine := c.sum(all, func(item *billing.LineItem) decimal.Decimal { return item.DiscountTotal })
	lines := c.sum(ofType(billing.LineItemDiscount), func(item *billing.LineItem) decimal.Decimal { return item.Total.Abs() })
	return c.round(perLine.Add(lines))
}

// TotalFees sums the fee lines.
func (c *Cart) TotalFees() decimal.Decimal {
	return c.round(c.sum(ofType(billing.LineItemFee), func(item *billing.LineItem) decimal.Decimal { return item.Total }))
}

// TotalCredits sums the credit lines as a positive amount.
func (c *Cart) TotalCredits() decimal.Decimal {
	return c.round(c.sum(ofType(billing.LineItemCredit), func(item *billing.LineItem) decimal.Decimal { return item.Total.Abs() }))
}

// RecurringTotal is what the cart will cost on each renewal.
func (c *Cart) RecurringTotal() decimal.Decimal {
	return c.round(c.sum(func(item *billing.LineItem) bool { return item.Recurring },
		func(item *billing.LineItem) decimal.Decimal { return item.RenewalTotal() }))
}
