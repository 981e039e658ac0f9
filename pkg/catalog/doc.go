// Package catalog provides the purchasable products: plans, addons and their
// per-period price variations.
//
// # Overview
//
// A Product carries its base price and billing period plus optional Variations
// that price the same product on a different period. GetAsVariation returns a
// copy of the product re-priced to a requested period, or false when the product
// is not sold on that period.
//
// Plans also carry Limits, the entitlements a site on that plan may use.
//
// # Repositories
//
// PostgresRepository reads products from the products table. CachedRepository
// wraps any Repository with an expirable LRU and collapses concurrent misses
// for the same key into one lookup.
package catalog
