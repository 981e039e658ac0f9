package cart

import "github.com/platinummonkey/tenantcart/pkg/billing"

// ProductRef names a product by ID or slug
type ProductRef struct {
	ID       int64  `json:"id,omitempty"`
	Slug     string `json:"slug,omitempty"`
	Quantity int    `json:"quantity,omitempty"`
}

// Request holds the raw inputs of a checkout attempt
type Request struct {
	CustomerID   int64                `json:"customer_id,omitempty"`
	MembershipID int64                `json:"membership_id,omitempty"`
	PaymentID    int64                `json:"payment_id,omitempty"`
	Products     []ProductRef         `json:"products,omitempty"`
	DiscountCode string               `json:"discount_code,omitempty"`
	Country      string               `json:"country,omitempty"`
	State        string               `json:"state,omitempty"`
	City         string               `json:"city,omitempty"`
	Currency     string               `json:"currency,omitempty"`
	Duration     int                  `json:"duration,omitempty"`
	DurationUnit billing.DurationUnit `json:"duration_unit,omitempty"`
	AutoRenew    *bool                `json:"auto_renew,omitempty"`
}

func (r Request) hasPeriod() bool {
	return r.Duration > 0 && r.DurationUnit.Valid()
}
