// Package sites tracks the tenant sites attached to memberships and checks
// their usage against plan entitlements.
//
// # Entitlements
//
// A plan's catalog.Limits cap posts per post type and the number of custom
// domains on each site. The Checker enumerates every overage instead of
// stopping at the first one, so a downgrade can report everything the
// customer must clean up:
//
//	overs, err := checker.CheckAllPostTypes(ctx, site, plan.Limits)
//	for _, o := range overs {
//		fmt.Println(o.Error())
//	}
package sites
