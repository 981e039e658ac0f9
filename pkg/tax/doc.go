// Package tax resolves the tax rates that apply to a line item.
//
// Rates are matched on country and tax category, optionally narrowed by state
// and city. The most specific match comes first; the cart applies only the
// first rate returned.
//
// FileResolver loads rates from a YAML file and can watch it for changes:
//
//	rates:
//	  - title: VAT
//	    country: DE
//	    rate: 19
//	  - title: NYC Sales Tax
//	    country: US
//	    state: NY
//	    city: New York
//	    category: digital
//	    rate: 8.875
package tax
