// Package cart prices a checkout attempt.
//
// # Overview
//
// Build turns an immutable Request into a Cart. It classifies the attempt as
// one of five types, evaluated in this order with the first match winning:
//
//  1. retry     a pending payment is being paid again
//  2. upgrade   a membership moves to a more expensive arrangement
//     downgrade a membership moves to a cheaper one
//     addon     products are added without changing the plan
//  3. new       a fresh purchase
//
// Failures never panic or return early through the call stack. They are
// accumulated on the cart as Errors and Build returns them alongside the cart;
// a cart with errors must not be charged.
//
//	c, errs := cart.Build(ctx, req, deps)
//	if len(errs) > 0 {
//		return errs
//	}
//	fmt.Println(c.Type(), c.Total())
//
// # Pricing
//
// Each line item carries its own discount and tax attributes and recomputes its
// totals on demand. Cart totals sum the line items, clamp at zero and round to
// the configured precision once, when read.
//
// # Proration
//
// Upgrades, addons and immediate downgrades credit the unused part of the
// current cycle as a negative credit line. Downgrades of a membership in good
// standing are not prorated; they carry a Scheduled Swap Credit that zeroes
// the amount due and the change is applied at the end of the cycle.
package cart
