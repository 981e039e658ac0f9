package cart_test

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/cart"
	"github.com/platinummonkey/tenantcart/pkg/cart/carttest"
	"github.com/platinummonkey/tenantcart/pkg/tax"
)

func TestCart_DiscountsTaxesAndFees(t *testing.T) {
	store := newStore()
	plan := carttest.Plan(10, "business", "100", 1, billing.DurationMonth)
	plan.SetupFee = carttest.Money("25")
	plan.Taxable = true
	store.AddProduct(plan)
	store.AddDiscount(&billing.DiscountCode{
		Code:   "WELCOME10",
		Value:  carttest.Money("10"),
		Type:   billing.AdjustmentPercentage,
		Active: true,
	})

	deps := store.Deps(now)
	deps.Settings.TaxesEnabled = true
	deps.Taxes = tax.NewStaticResolver([]tax.Rate{{Title: "VAT", Rate: carttest.Money("20"), Country: "GB"}})

	c, errs := cart.Build(context.Background(), cart.Request{
		CustomerID:   customerID,
		Products:     []cart.ProductRef{{ID: plan.ID}},
		DiscountCode: "WELCOME10",
		Country:      "GB",
	}, deps)
	require.Empty(t, errs)

	assert.Equal(t, "125.00", c.Subtotal().StringFixed(2))
	assert.Equal(t, "10.00", c.TotalDiscounts().StringFixed(2))
	assert.Equal(t, "23.00", c.TotalTaxes().StringFixed(2))
	assert.Equal(t, "30.00", c.TotalFees().StringFixed(2))
	assert.Equal(t, "138.00", c.Total().StringFixed(2))
	assert.Equal(t, "120.00", c.RecurringTotal().StringFixed(2), "the discount does not renew")

	fees := c.LineItemsByType(billing.LineItemFee)
	require.Len(t, fees, 1)
	assert.Equal(t, "Signup Fee - business", fees[0].Title)
	assert.Equal(t, "VAT", fees[0].TaxLabel)

	items := c.LineItems()
	require.Len(t, items, 2)
	assert.Equal(t, billing.LineItemFee, items[0].Type, "most recent line first")
}

func TestCart_TaxInclusivePricing(t *testing.T) {
	store := newStore()
	plan := carttest.Plan(10, "business", "120", 1, billing.DurationMonth)
	plan.Taxable = true
	store.AddProduct(plan)

	deps := store.Deps(now)
	deps.Settings.TaxesEnabled = true
	deps.Settings.TaxInclusive = true
	deps.Taxes = tax.NewStaticResolver([]tax.Rate{{Title: "VAT", Rate: carttest.Money("20"), Country: "GB"}})

	c, errs := cart.Build(context.Background(), cart.Request{
		CustomerID: customerID,
		Products:   []cart.ProductRef{{ID: plan.ID}},
		Country:    "GB",
	}, deps)
	require.Empty(t, errs)

	assert.Equal(t, "120.00", c.Total().StringFixed(2))
	assert.Equal(t, "20.00", c.TotalTaxes().StringFixed(2))
}

func TestCart_Trials(t *testing.T) {
	store := newStore()
	plan := carttest.Plan(10, "basic", "10", 1, billing.DurationMonth)
	plan.TrialDuration = 14
	plan.TrialDurationUnit = billing.DurationDay
	store.AddProduct(plan)

	c, errs := build(t, store, cart.Request{Products: []cart.ProductRef{{ID: plan.ID}}})
	require.Empty(t, errs)

	assert.True(t, c.HasTrial())
	require.NotNil(t, c.BillingStartDate())
	assert.Equal(t, now.AddDate(0, 0, 14), *c.BillingStartDate())
	assert.Equal(t, now.AddDate(0, 0, 14), *c.NextChargeDate())
	assert.True(t, c.ShouldCollectPayment())

	store.Customers[customerID].HasTrialed = true
	c, errs = build(t, store, cart.Request{Products: []cart.ProductRef{{ID: plan.ID}}})
	require.Empty(t, errs)

	assert.False(t, c.HasTrial())
	assert.Nil(t, c.BillingStartDate())
	assert.Equal(t, now.AddDate(0, 1, 0), *c.NextChargeDate())
}

func TestCart_TrialWithoutPaymentMethod(t *testing.T) {
	store := newStore()
	plan := carttest.Plan(10, "basic", "10", 1, billing.DurationMonth)
	plan.TrialDuration = 7
	plan.TrialDurationUnit = billing.DurationDay
	store.AddProduct(plan)

	deps := store.Deps(now)
	deps.Settings.AllowTrialWithoutPaymentMethod = true
	c, errs := cart.Build(context.Background(), cart.Request{CustomerID: customerID, Products: []cart.ProductRef{{ID: plan.ID}}}, deps)
	require.Empty(t, errs)

	assert.False(t, c.ShouldCollectPayment())
	assert.False(t, c.IsFree())
}

func TestCart_FreeCart(t *testing.T) {
	store := newStore()
	store.AddProduct(carttest.Plan(10, "hobby", "0", 1, billing.DurationMonth))

	c, errs := build(t, store, cart.Request{Products: []cart.ProductRef{{ID: 10}}})
	require.Empty(t, errs)

	assert.True(t, c.IsFree())
	assert.False(t, c.ShouldCollectPayment())
}

func TestCart_MixedPeriodsAreInvalid(t *testing.T) {
	store := newStore()
	store.AddProduct(carttest.Plan(10, "basic", "10", 1, billing.DurationMonth))

	c, errs := build(t, store, cart.Request{Products: []cart.ProductRef{{ID: 10}}})
	require.Empty(t, errs)
	require.True(t, c.IsValid())

	yearly := billing.NewLineItem(billing.LineItemProduct)
	yearly.Title = "Priority support"
	yearly.UnitPrice = carttest.Money("50")
	yearly.Recurring = true
	yearly.Duration = 1
	yearly.DurationUnit = billing.DurationYear
	c.AddLineItem(context.Background(), yearly)

	assert.False(t, c.IsValid())
	assert.Equal(t, "60.00", c.Total().StringFixed(2))
}

func TestCart_AddProduct(t *testing.T) {
	store := newStore()
	store.AddProduct(carttest.Plan(10, "basic", "10", 1, billing.DurationMonth))
	store.AddProduct(carttest.Addon(20, "storage", "5", 1, billing.DurationMonth))

	c, errs := build(t, store, cart.Request{Products: []cart.ProductRef{{ID: 10}}})
	require.Empty(t, errs)

	assert.True(t, c.AddProduct(context.Background(), cart.ProductRef{Slug: "storage", Quantity: 3}))
	assert.Equal(t, 3, c.Quantity(20))
	assert.Equal(t, "25.00", c.Total().StringFixed(2))

	assert.False(t, c.AddProduct(context.Background(), cart.ProductRef{Slug: "missing"}))
	assert.Equal(t, []string{cart.CodeMissingProduct}, c.Errors().Codes())
}

func TestCart_MarshalJSON(t *testing.T) {
	store := newStore()
	store.AddProduct(carttest.Plan(10, "basic", "10", 1, billing.DurationMonth))

	c, errs := build(t, store, cart.Request{Products: []cart.ProductRef{{ID: 10}}})
	require.Empty(t, errs)

	data, err := json.Marshal(c)
	require.NoError(t, err)

	var got map[string]any
	require.NoError(t, json.Unmarshal(data, &got))
	assert.Equal(t, "new", got["cart_type"])
	assert.Equal(t, "10", got["total"])
	assert.Equal(t, true, got["valid"])
	assert.Len(t, got["line_items"], 1)
	assert.NotContains(t, got, "errors")
}

func TestErrors(t *testing.T) {
	errs := cart.Errors{
		{Code: cart.CodeMissingProduct, Message: "The product x does not exist."},
		{Code: cart.CodeNoChanges, Message: "Nothing to do."},
	}

	assert.True(t, errs.Has(cart.CodeNoChanges))
	assert.False(t, errs.Has(cart.CodeInvalidStatus))
	assert.Equal(t, "missing-product: The product x does not exist.; no_changes: Nothing to do.", errs.Error())
}
