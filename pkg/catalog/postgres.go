package catalog

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// PostgresRepository reads products from PostgreSQL
type PostgresRepository struct {
	db storage.DBTX
}

// NewPostgresRepository creates a new PostgreSQL-backed product repository
func NewPostgresRepository(db storage.DBTX) *PostgresRepository {
	return &PostgresRepository{db: db}
}

const productQuery = `
	SELECT id, slug, name, description, kind, amount, setup_fee, duration, duration_unit,
	       recurring, billing_cycles, trial_duration, trial_duration_unit, taxable,
	       tax_category, active, variations, limits
	FROM products
`

// GetProduct retrieves a product by ID
func (r *PostgresRepository) GetProduct(ctx context.Context, id int64) (*Product, error) {
	return r.getOne(ctx, productQuery+`WHERE id = $1`, id)
}

// GetProductBySlug retrieves a product by slug
func (r *PostgresRepository) GetProductBySlug(ctx context.Context, slug string) (*Product, error) {
	return r.getOne(ctx, productQuery+`WHERE slug = $1`, slug)
}

func (r *PostgresRepository) getOne(ctx context.Context, query string, arg any) (*Product, error) {
	p := &Product{}
	var variationsJSON, limitsJSON []byte
	err := r.db.QueryRowContext(ctx, query, arg).Scan(
		&p.ID, &p.Slug, &p.Name, &p.Description, &p.Kind, &p.Amount, &p.SetupFee, &p.Duration,
		&p.DurationUnit, &p.Recurring, &p.BillingCycles, &p.TrialDuration, &p.TrialDurationUnit,
		&p.Taxable, &p.TaxCategory, &p.Active, &variationsJSON, &limitsJSON,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("%v: %w", arg, ErrProductNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get product: %w", err)
	}

	if len(variationsJSON) > 0 {
		if err := json.Unmarshal(variationsJSON, &p.Variations); err != nil {
			return nil, fmt.Errorf("failed to unmarshal variations: %w", err)
		}
	}
	if len(limitsJSON) > 0 {
		if err := json.Unmarshal(limitsJSON, &p.Limits); err != nil {
			return nil, fmt.Errorf("failed to unmarshal limits: %w", err)
		}
	}

	return p, nil
}
