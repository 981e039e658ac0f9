package sites

import (
	"context"
	"fmt"
	"sort"

	"github.com/platinummonkey/tenantcart/pkg/catalog"
)

// Checker compares site usage with plan limits
type Checker struct {
	usage UsageStore
}

// NewChecker creates a new entitlement checker
func NewChecker(usage UsageStore) *Checker {
	return &Checker{usage: usage}
}

// CheckAllPostTypes returns one Overlimit per post type above its limit,
// ordered by post type.
func (c *Checker) CheckAllPostTypes(ctx context.Context, site *Site, limits catalog.Limits) ([]Overlimit, error) {
	if len(limits.PostTypes) == 0 {
		return nil, nil
	}

	counts, err := c.usage.CountPosts(ctx, site.ID)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}

	types := make([]string, 0, len(limits.PostTypes))
	for postType := range limits.PostTypes {
		types = append(types, postType)
	}
	sort.Strings(types)

	var overs []Overlimit
	for _, postType := range types {
		limit := limits.PostTypes[postType]
		if limit < 0 {
			continue
		}
		if current := counts[postType]; current > limit {
			overs = append(overs, Overlimit{
				SiteID:   site.ID,
				Resource: ResourcePostTypePrefix + postType,
				Current:  current,
				Limit:    limit,
			})
		}
	}
	return overs, nil
}

// CheckAllDomains returns an Overlimit when the site maps more custom domains
// than the plan allows.
func (c *Checker) CheckAllDomains(ctx context.Context, siteID int64, limits catalog.Limits) ([]Overlimit, error) {
	if limits.CustomDomains == nil || *limits.CustomDomains < 0 {
		return nil, nil
	}

	current, err := c.usage.CountCustomDomains(ctx, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to count domains: %w", err)
	}

	if current > *limits.CustomDomains {
		return []Overlimit{{
			SiteID:   siteID,
			Resource: ResourceDomains,
			Current:  current,
			Limit:    *limits.CustomDomains,
		}}, nil
	}
	return nil, nil
}
