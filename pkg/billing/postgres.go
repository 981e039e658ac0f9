package billing

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// PostgresStore implements the billing repositories using PostgreSQL
type PostgresStore struct {
	db storage.DBTX
}

// NewPostgresStore creates a store over a connection or transaction.
func NewPostgresStore(db storage.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

type rowScanner interface {
	Scan(dest ...any) error
}

// GetCustomer retrieves a customer by ID
func (s *PostgresStore) GetCustomer(ctx context.Context, id int64) (*Customer, error) {
	query := `
		SELECT id, email, username, verified, has_trialed, created_at, updated_at
		FROM customers
		WHERE id = $1
	`
	c := &Customer{}
	err := s.db.QueryRowContext(ctx, query, id).Scan(
		&c.ID, &c.Email, &c.Username, &c.Verified, &c.HasTrialed, &c.CreatedAt, &c.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("customer %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get customer: %w", err)
	}
	return c, nil
}

// CreateCustomer inserts a customer and fills in its ID
func (s *PostgresStore) CreateCustomer(ctx context.Context, c *Customer) error {
	query := `
		INSERT INTO customers (email, username, verified, has_trialed, created_at, updated_at)
		VALUES ($1, $2, $3, $4, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err := s.db.QueryRowContext(ctx, query, c.Email, c.Username, c.Verified, c.HasTrialed).
		Scan(&c.ID, &c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create customer: %w", err)
	}
	return nil
}

// UpdateCustomer persists the mutable customer flags
func (s *PostgresStore) UpdateCustomer(ctx context.Context, c *Customer) error {
	query := `
		UPDATE customers
		SET username = $1, verified = $2, has_trialed = $3, updated_at = NOW()
		WHERE id = $4
	`
	result, err := s.db.ExecContext(ctx, query, c.Username, c.Verified, c.HasTrialed, c.ID)
	if err != nil {
		return fmt.Errorf("failed to update customer: %w", err)
	}
	return expectOneRow(result, "customer", c.ID)
}

const membershipColumns = `id, customer_id, plan_id, addon_products, currency, amount, initial_amount,
		       duration, duration_unit, billing_cycles, times_billed, recurring, auto_renew,
		       status, discount_code, gateway_id, date_created, date_renewed, date_expiration,
		       date_trial_end, updated_at`

func scanMembership(row rowScanner) (*Membership, error) {
	m := &Membership{}
	var addonsJSON []byte
	err := row.Scan(
		&m.ID, &m.CustomerID, &m.PlanID, &addonsJSON, &m.Currency, &m.Amount, &m.InitialAmount,
		&m.Duration, &m.DurationUnit, &m.BillingCycles, &m.TimesBilled, &m.Recurring, &m.AutoRenew,
		&m.Status, &m.DiscountCode, &m.GatewayID, &m.DateCreated, &m.DateRenewed, &m.DateExpiration,
		&m.DateTrialEnd, &m.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(addonsJSON) > 0 {
		if err := json.Unmarshal(addonsJSON, &m.AddonProducts); err != nil {
			return nil, fmt.Errorf("failed to unmarshal addon products: %w", err)
		}
	}
	return m, nil
}

// GetMembership retrieves a membership by ID
func (s *PostgresStore) GetMembership(ctx context.Context, id int64) (*Membership, error) {
	query := `SELECT ` + membershipColumns + ` FROM memberships WHERE id = $1`
	m, err := scanMembership(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("membership %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get membership: %w", err)
	}
	return m, nil
}

// CreateMembership inserts a membership and fills in its ID
func (s *PostgresStore) CreateMembership(ctx context.Context, m *Membership) error {
	addonsJSON, err := json.Marshal(m.AddonProducts)
	if err != nil {
		return fmt.Errorf("failed to marshal addon products: %w", err)
	}
	if m.DateCreated.IsZero() {
		m.DateCreated = time.Now()
	}

	query := `
		INSERT INTO memberships (
			customer_id, plan_id, addon_products, currency, amount, initial_amount,
			duration, duration_unit, billing_cycles, times_billed, recurring, auto_renew,
			status, discount_code, gateway_id, date_created, date_renewed, date_expiration,
			date_trial_end, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18, $19, NOW())
		RETURNING id, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		m.CustomerID, m.PlanID, addonsJSON, m.Currency, m.Amount, m.InitialAmount,
		m.Duration, m.DurationUnit, m.BillingCycles, m.TimesBilled, m.Recurring, m.AutoRenew,
		m.Status, m.DiscountCode, m.GatewayID, m.DateCreated, m.DateRenewed, m.DateExpiration,
		m.DateTrialEnd,
	).Scan(&m.ID, &m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create membership: %w", err)
	}
	return nil
}

// UpdateMembership persists every mutable membership column
func (s *PostgresStore) UpdateMembership(ctx context.Context, m *Membership) error {
	addonsJSON, err := json.Marshal(m.AddonProducts)
	if err != nil {
		return fmt.Errorf("failed to marshal addon products: %w", err)
	}

	query := `
		UPDATE memberships
		SET plan_id = $1, addon_products = $2, amount = $3, initial_amount = $4,
		    duration = $5, duration_unit = $6, billing_cycles = $7, times_billed = $8,
		    recurring = $9, auto_renew = $10, status = $11, discount_code = $12,
		    gateway_id = $13, date_renewed = $14, date_expiration = $15, date_trial_end = $16,
		    updated_at = NOW()
		WHERE id = $17
	`
	result, err := s.db.ExecContext(ctx, query,
		m.PlanID, addonsJSON, m.Amount, m.InitialAmount,
		m.Duration, m.DurationUnit, m.BillingCycles, m.TimesBilled,
		m.Recurring, m.AutoRenew, m.Status, m.DiscountCode,
		m.GatewayID, m.DateRenewed, m.DateExpiration, m.DateTrialEnd,
		m.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update membership: %w", err)
	}
	return expectOneRow(result, "membership", m.ID)
}

const paymentColumns = `id, customer_id, membership_id, status, currency, cart_type, gateway_id,
		       gateway_payment_id, discount_code, subtotal, discount_total, tax_total, total,
		       line_items, fingerprint, created_at, updated_at`

func scanPayment(row rowScanner) (*Payment, error) {
	p := &Payment{}
	var itemsJSON []byte
	err := row.Scan(
		&p.ID, &p.CustomerID, &p.MembershipID, &p.Status, &p.Currency, &p.CartType, &p.GatewayID,
		&p.GatewayPaymentID, &p.DiscountCode, &p.Subtotal, &p.DiscountTotal, &p.TaxTotal, &p.Total,
		&itemsJSON, &p.Fingerprint, &p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	if len(itemsJSON) > 0 {
		if err := json.Unmarshal(itemsJSON, &p.LineItems); err != nil {
			return nil, fmt.Errorf("failed to unmarshal line items: %w", err)
		}
	}
	return p, nil
}

// GetPayment retrieves a payment by ID
func (s *PostgresStore) GetPayment(ctx context.Context, id int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + ` FROM payments WHERE id = $1`
	p, err := scanPayment(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("payment %d: %w", id, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get payment: %w", err)
	}
	return p, nil
}

// CreatePayment inserts a payment and fills in its ID
func (s *PostgresStore) CreatePayment(ctx context.Context, p *Payment) error {
	itemsJSON, err := json.Marshal(p.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		INSERT INTO payments (
			customer_id, membership_id, status, currency, cart_type, gateway_id,
			gateway_payment_id, discount_code, subtotal, discount_total, tax_total, total,
			line_items, fingerprint, created_at, updated_at
		)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, NOW(), NOW())
		RETURNING id, created_at, updated_at
	`
	err = s.db.QueryRowContext(ctx, query,
		p.CustomerID, p.MembershipID, p.Status, p.Currency, p.CartType, p.GatewayID,
		p.GatewayPaymentID, p.DiscountCode, p.Subtotal, p.DiscountTotal, p.TaxTotal, p.Total,
		itemsJSON, p.Fingerprint,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to create payment: %w", err)
	}
	return nil
}

// UpdatePayment persists status, totals and line items of a payment
func (s *PostgresStore) UpdatePayment(ctx context.Context, p *Payment) error {
	itemsJSON, err := json.Marshal(p.LineItems)
	if err != nil {
		return fmt.Errorf("failed to marshal line items: %w", err)
	}

	query := `
		UPDATE payments
		SET status = $1, cart_type = $2, gateway_id = $3, gateway_payment_id = $4,
		    discount_code = $5, subtotal = $6, discount_total = $7, tax_total = $8,
		    total = $9, line_items = $10, fingerprint = $11, updated_at = NOW()
		WHERE id = $12
	`
	result, err := s.db.ExecContext(ctx, query,
		p.Status, p.CartType, p.GatewayID, p.GatewayPaymentID,
		p.DiscountCode, p.Subtotal, p.DiscountTotal, p.TaxTotal,
		p.Total, itemsJSON, p.Fingerprint, p.ID,
	)
	if err != nil {
		return fmt.Errorf("failed to update payment: %w", err)
	}
	return expectOneRow(result, "payment", p.ID)
}

// ListPendingPayments lists a customer's pending payments, newest first
func (s *PostgresStore) ListPendingPayments(ctx context.Context, customerID int64) ([]*Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE customer_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
	`
	rows, err := s.db.QueryContext(ctx, query, customerID, PaymentStatusPending)
	if err != nil {
		return nil, fmt.Errorf("failed to list pending payments: %w", err)
	}
	defer rows.Close()

	var payments []*Payment
	for rows.Next() {
		p, err := scanPayment(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan payment: %w", err)
		}
		payments = append(payments, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate payments: %w", err)
	}
	return payments, nil
}

// GetLastPendingPayment returns the newest pending payment of a membership
func (s *PostgresStore) GetLastPendingPayment(ctx context.Context, membershipID int64) (*Payment, error) {
	query := `SELECT ` + paymentColumns + `
		FROM payments
		WHERE membership_id = $1 AND status = $2
		ORDER BY created_at DESC, id DESC
		LIMIT 1
	`
	p, err := scanPayment(s.db.QueryRowContext(ctx, query, membershipID, PaymentStatusPending))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("pending payment for membership %d: %w", membershipID, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get pending payment: %w", err)
	}
	return p, nil
}

// CancelPayment moves a pending payment to cancelled. Payments in any other
// status are left untouched.
func (s *PostgresStore) CancelPayment(ctx context.Context, id int64) error {
	query := `UPDATE payments SET status = $1, updated_at = NOW() WHERE id = $2 AND status = $3`
	result, err := s.db.ExecContext(ctx, query, PaymentStatusCancelled, id, PaymentStatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel payment: %w", err)
	}
	return expectOneRow(result, "pending payment", id)
}

// GetDiscountCodeByCode retrieves a discount code, case-insensitively
func (s *PostgresStore) GetDiscountCodeByCode(ctx context.Context, code string) (*DiscountCode, error) {
	query := `
		SELECT id, code, name, value, type, applies_to_renewals, setup_fee_value, setup_fee_type,
		       active, starts_at, expires_at, max_uses, uses, allowed_products
		FROM discount_codes
		WHERE LOWER(code) = LOWER($1)
	`
	d := &DiscountCode{}
	err := s.db.QueryRowContext(ctx, query, code).Scan(
		&d.ID, &d.Code, &d.Name, &d.Value, &d.Type, &d.AppliesToRenewals, &d.SetupFeeValue,
		&d.SetupFeeType, &d.Active, &d.StartsAt, &d.ExpiresAt, &d.MaxUses, &d.Uses,
		pq.Array(&d.AllowedProducts),
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("discount code %q: %w", code, storage.ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get discount code: %w", err)
	}
	return d, nil
}

func expectOneRow(result sql.Result, what string, id int64) error {
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("%s %d: %w", what, id, storage.ErrNotFound)
	}
	return nil
}
