package cart

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/catalog"
	"github.com/platinummonkey/tenantcart/pkg/observability"
	"github.com/platinummonkey/tenantcart/pkg/sites"
	"github.com/platinummonkey/tenantcart/pkg/tax"
)

// Settings are the store-wide pricing options the engine honours
type Settings struct {
	Currency                       string
	Precision                      int32
	TaxesEnabled                   bool
	TaxInclusive                   bool
	AllowTrialWithoutPaymentMethod bool
	RetryAllowedStatuses           []billing.PaymentStatus
	PendingPaymentTolerance        decimal.Decimal
}

// DefaultSettings returns USD pricing with two decimals and no taxes
func DefaultSettings() Settings {
	return Settings{
		Currency:                "USD",
		Precision:               2,
		RetryAllowedStatuses:    []billing.PaymentStatus{billing.PaymentStatusPending},
		PendingPaymentTolerance: decimal.RequireFromString("0.01"),
	}
}

func (s Settings) retryAllowed(status billing.PaymentStatus) bool {
	for _, allowed := range s.RetryAllowedStatuses {
		if allowed == status {
			return true
		}
	}
	return false
}

// CustomerFinder loads customers
type CustomerFinder interface {
	GetCustomer(ctx context.Context, id int64) (*billing.Customer, error)
}

// MembershipFinder loads memberships
type MembershipFinder interface {
	GetMembership(ctx context.Context, id int64) (*billing.Membership, error)
}

// PaymentFinder loads payments and cancels superseded ones
type PaymentFinder interface {
	GetPayment(ctx context.Context, id int64) (*billing.Payment, error)
	ListPendingPayments(ctx context.Context, customerID int64) ([]*billing.Payment, error)
	CancelPayment(ctx context.Context, id int64) error
}

// DiscountFinder resolves discount codes
type DiscountFinder interface {
	GetDiscountCodeByCode(ctx context.Context, code string) (*billing.DiscountCode, error)
}

// SiteLister lists the sites of a membership
type SiteLister interface {
	GetSites(ctx context.Context, membershipID int64) ([]*sites.Site, error)
}

// EntitlementChecker compares site usage with plan limits
type EntitlementChecker interface {
	CheckAllPostTypes(ctx context.Context, site *sites.Site, limits catalog.Limits) ([]sites.Overlimit, error)
	CheckAllDomains(ctx context.Context, siteID int64, limits catalog.Limits) ([]sites.Overlimit, error)
}

// Deps are the collaborators Build reads from. Taxes, Sites and Entitlements
// are optional.
type Deps struct {
	Products     catalog.Repository
	Customers    CustomerFinder
	Memberships  MembershipFinder
	Payments     PaymentFinder
	Discounts    DiscountFinder
	Taxes        tax.Resolver
	Sites        SiteLister
	Entitlements EntitlementChecker

	Settings Settings
	Now      func() time.Time
	Logger   *observability.Logger

	// ReadOnly builds without cancelling conflicting pending payments, for
	// previews.
	ReadOnly bool
}

func (d *Deps) now() time.Time {
	if d.Now != nil {
		return d.Now()
	}
	return time.Now()
}

func (d *Deps) logger() *observability.Logger {
	if d.Logger != nil {
		return d.Logger
	}
	return observability.NewNopLogger()
}
