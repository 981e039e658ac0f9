// Package swaps applies plan downgrades at the end of a billing cycle.
//
// A downgrade of a membership in good standing is not charged immediately.
// Checkout records a Swap carrying the new plan, addons and price, scheduled
// for the membership's expiration. The Runner picks up due swaps on a cron
// schedule and rewrites the membership, skipping memberships that are no
// longer active or trialing.
package swaps
