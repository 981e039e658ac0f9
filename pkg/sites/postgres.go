package sites

import (
	"context"
	"fmt"

	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// PostgresStore implements Repository and UsageStore using PostgreSQL
type PostgresStore struct {
	db storage.DBTX
}

// NewPostgresStore creates a new PostgreSQL-backed site store
func NewPostgresStore(db storage.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

// GetSites lists the sites of a membership
func (s *PostgresStore) GetSites(ctx context.Context, membershipID int64) ([]*Site, error) {
	query := `
		SELECT id, customer_id, membership_id, title, path, status, created_at
		FROM sites
		WHERE membership_id = $1
		ORDER BY id
	`
	rows, err := s.db.QueryContext(ctx, query, membershipID)
	if err != nil {
		return nil, fmt.Errorf("failed to list sites: %w", err)
	}
	defer rows.Close()

	var sites []*Site
	for rows.Next() {
		site := &Site{}
		if err := rows.Scan(&site.ID, &site.CustomerID, &site.MembershipID, &site.Title, &site.Path, &site.Status, &site.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan site: %w", err)
		}
		sites = append(sites, site)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate sites: %w", err)
	}
	return sites, nil
}

// CreatePendingSite inserts a site that becomes active once its membership is paid
func (s *PostgresStore) CreatePendingSite(ctx context.Context, site *Site) error {
	site.Status = StatusPending
	query := `
		INSERT INTO sites (customer_id, membership_id, title, path, status, created_at)
		VALUES ($1, $2, $3, $4, $5, NOW())
		RETURNING id, created_at
	`
	err := s.db.QueryRowContext(ctx, query, site.CustomerID, site.MembershipID, site.Title, site.Path, site.Status).
		Scan(&site.ID, &site.CreatedAt)
	if err != nil {
		return fmt.Errorf("failed to create site: %w", err)
	}
	return nil
}

// CountPosts counts a site's published posts grouped by post type
func (s *PostgresStore) CountPosts(ctx context.Context, siteID int64) (map[string]int64, error) {
	query := `
		SELECT post_type, COUNT(*)
		FROM site_posts
		WHERE site_id = $1 AND status = 'publish'
		GROUP BY post_type
	`
	rows, err := s.db.QueryContext(ctx, query, siteID)
	if err != nil {
		return nil, fmt.Errorf("failed to count posts: %w", err)
	}
	defer rows.Close()

	counts := make(map[string]int64)
	for rows.Next() {
		var postType string
		var n int64
		if err := rows.Scan(&postType, &n); err != nil {
			return nil, fmt.Errorf("failed to scan post count: %w", err)
		}
		counts[postType] = n
	}
	return counts, rows.Err()
}

// CountCustomDomains counts a site's active custom domains
func (s *PostgresStore) CountCustomDomains(ctx context.Context, siteID int64) (int64, error) {
	var n int64
	err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM site_domains WHERE site_id = $1 AND active = TRUE`, siteID).Scan(&n)
	if err != nil {
		return 0, fmt.Errorf("failed to count domains: %w", err)
	}
	return n, nil
}
