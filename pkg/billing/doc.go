// Package billing holds the persistent billing records behind the cart engine:
// customers, memberships, payments, discount codes and the priced line items
// they carry.
//
// # Overview
//
// Everything here is data plus pure arithmetic. LineItem.Recalculate derives a
// line's subtotal, discount, tax and total from its attributes and may be called
// any number of times. Amounts use shopspring/decimal and are only rounded by
// the cart when totals are reported.
//
// # Billing periods
//
// Period lengths are normalised to days for proration and price-per-day
// comparisons:
//
//	day   = 1
//	week  = 7
//	month = 30
//	year  = 365
//
// # Persistence
//
// PostgresStore implements every repository in this package over a
// storage.DBTX, so the checkout processor can run it inside a transaction:
//
//	store := billing.NewPostgresStore(tx)
//	if err := store.CreateMembership(ctx, m); err != nil {
//		return err
//	}
package billing
