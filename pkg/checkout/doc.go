// Package checkout turns a priced cart into persisted billing records.
//
// # Overview
//
// Processor.ProcessOrder runs one checkout attempt:
//
//	build cart -> validate -> resolve gateway -> create entities -> dispatch
//
// Customer, membership, pending site, scheduled swap and payment are created
// in a single transaction through a TxRunner. A failure or panic anywhere in
// that sequence rolls everything back and surfaces as an
// exception-order-submission error. The gateway is called only after the
// transaction has committed.
//
// Carts that need no payment method are forced onto the free gateway, which
// activates memberships immediately instead of charging.
//
// # HTTP
//
// Handler exposes the processor and cart previews over gorilla/mux:
//
//	POST   /v1/cart/preview
//	POST   /v1/checkout
//	GET    /v1/checkout/drafts/{session}
//	PUT    /v1/checkout/drafts/{session}
//	DELETE /v1/checkout/drafts/{session}
package checkout
