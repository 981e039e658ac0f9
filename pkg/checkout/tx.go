package checkout

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/platinummonkey/tenantcart/pkg/billing"
	"github.com/platinummonkey/tenantcart/pkg/sites"
	"github.com/platinummonkey/tenantcart/pkg/storage"
	"github.com/platinummonkey/tenantcart/pkg/swaps"
)

// Stores are the repositories written during order submission
type Stores struct {
	Customers   billing.CustomerRepository
	Memberships billing.MembershipRepository
	Payments    billing.PaymentRepository
	Sites       sites.Repository
	Swaps       swaps.Store
}

// NewPostgresStores binds every repository to db, which may be a transaction
func NewPostgresStores(db storage.DBTX) Stores {
	billingStore := billing.NewPostgresStore(db)
	return Stores{
		Customers:   billingStore,
		Memberships: billingStore,
		Payments:    billingStore,
		Sites:       sites.NewPostgresStore(db),
		Swaps:       swaps.NewPostgresStore(db),
	}
}

// TxRunner runs fn atomically. Returning an error from fn discards every
// write it made.
type TxRunner interface {
	RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error
}

// PostgresTxRunner runs submissions in a database transaction
type PostgresTxRunner struct {
	db *sql.DB
}

// NewPostgresTxRunner creates a transaction runner on db
func NewPostgresTxRunner(db *sql.DB) *PostgresTxRunner {
	return &PostgresTxRunner{db: db}
}

func (r *PostgresTxRunner) RunInTx(ctx context.Context, fn func(ctx context.Context, stores Stores) error) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to start transaction: %w", err)
	}
	defer tx.Rollback()

	if err := fn(ctx, NewPostgresStores(tx)); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}
