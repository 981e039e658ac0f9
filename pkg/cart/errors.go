package cart

import "strings"

// Error codes produced while building a cart
const (
	CodeCustomerNotFound       = "customer_not_found"
	CodePaymentNotFound        = "payment_not_found"
	CodeMembershipNotFound     = "membership_not_found"
	CodeLacksPermission        = "lacks_permission"
	CodeInvalidStatus          = "invalid_status"
	CodeNoChanges              = "no_changes"
	CodeOverlimitsPosts        = "overlimits_posts"
	CodeOverlimitsDomains      = "overlimits_domains"
	CodeEntitlementCheckFailed = "entitlement_check_failed"
	CodeMissingProduct         = "missing-product"
	CodeMissingPriceVariations = "missing-price-variations"
	CodePlanAlreadyAdded       = "plan-already-added"
	CodeDiscountCodeNotFound   = "discount_code_not_found"
	CodeTaxRatesUnavailable    = "tax_rates_unavailable"
	CodeLookupFailed           = "lookup_failed"
)

// Error is a single reason a cart could not be priced
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Errors is the ordered list of problems found while building or submitting
// a cart. It implements error so it can travel through ordinary error returns.
type Errors []Error

func (e Errors) Error() string {
	parts := make([]string, len(e))
	for i, err := range e {
		parts[i] = err.Code + ": " + err.Message
	}
	return strings.Join(parts, "; ")
}

// Has reports whether an error with the given code is present.
func (e Errors) Has(code string) bool {
	for _, err := range e {
		if err.Code == code {
			return true
		}
	}
	return false
}

// Codes returns the error codes in order.
func (e Errors) Codes() []string {
	codes := make([]string, len(e))
	for i, err := range e {
		codes[i] = err.Code
	}
	return codes
}
