package sites

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// Status represents the lifecycle of a site
type Status string

const (
	StatusPending Status = "pending"
	StatusActive  Status = "active"
)

// Site is a tenant site hosted under a membership
type Site struct {
	ID           int64     `json:"id"`
	CustomerID   int64     `json:"customer_id"`
	MembershipID int64     `json:"membership_id"`
	Title        string    `json:"title"`
	Path         string    `json:"path"`
	Status       Status    `json:"status"`
	CreatedAt    time.Time `json:"created_at"`
}

// Resource names used in Overlimit
const (
	ResourceDomains        = "domains"
	ResourcePostTypePrefix = "post_type:"
)

// Overlimit describes a site resource above its entitlement
type Overlimit struct {
	SiteID   int64
	Resource string
	Current  int64
	Limit    int64
}

func (e *Overlimit) Error() string {
	return fmt.Sprintf("site %d uses %d %s, the plan allows %d", e.SiteID, e.Current, e.label(), e.Limit)
}

// IsPostType reports whether the overage concerns posts.
func (e *Overlimit) IsPostType() bool {
	return strings.HasPrefix(e.Resource, ResourcePostTypePrefix)
}

func (e *Overlimit) label() string {
	if e.IsPostType() {
		return strings.TrimPrefix(e.Resource, ResourcePostTypePrefix) + " posts"
	}
	return "custom " + e.Resource
}

// IsOverlimit checks if an error is an entitlement overage
func IsOverlimit(err error) bool {
	_, ok := err.(*Overlimit)
	return ok
}

// UsageStore reports what a site currently uses
type UsageStore interface {
	CountPosts(ctx context.Context, siteID int64) (map[string]int64, error)
	CountCustomDomains(ctx context.Context, siteID int64) (int64, error)
}

// Repository persists sites
type Repository interface {
	GetSites(ctx context.Context, membershipID int64) ([]*Site, error)
	CreatePendingSite(ctx context.Context, site *Site) error
}
