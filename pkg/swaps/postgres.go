package swaps

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/platinummonkey/tenantcart/pkg/storage"
)

// PostgresStore implements Store on the scheduled_swaps table
type PostgresStore struct {
	db storage.DBTX
}

// NewPostgresStore creates a swap store over a database or transaction
func NewPostgresStore(db storage.DBTX) *PostgresStore {
	return &PostgresStore{db: db}
}

func (s *PostgresStore) ScheduleSwap(ctx context.Context, swap *Swap) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_swaps SET status = $1, updated_at = NOW()
		WHERE membership_id = $2 AND status = $3
	`, StatusCancelled, swap.MembershipID, StatusPending)
	if err != nil {
		return fmt.Errorf("failed to cancel pending swaps: %w", err)
	}

	addons, err := json.Marshal(swap.AddonProducts)
	if err != nil {
		return fmt.Errorf("failed to encode addon products: %w", err)
	}

	swap.Status = StatusPending
	err = s.db.QueryRowContext(ctx, `
		INSERT INTO scheduled_swaps (membership_id, plan_id, addon_products, amount, duration, duration_unit, billing_cycles, scheduled_for, status)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id, created_at, updated_at
	`, swap.MembershipID, swap.PlanID, addons, swap.Amount, swap.Duration, swap.DurationUnit,
		swap.BillingCycles, swap.ScheduledFor, swap.Status,
	).Scan(&swap.ID, &swap.CreatedAt, &swap.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to schedule swap: %w", err)
	}
	return nil
}

func (s *PostgresStore) ListDue(ctx context.Context, now time.Time, limit int) ([]*Swap, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, membership_id, plan_id, addon_products, amount, duration, duration_unit,
			billing_cycles, scheduled_for, status, error, created_at, updated_at
		FROM scheduled_swaps
		WHERE status = $1 AND scheduled_for <= $2
		ORDER BY scheduled_for, id
		LIMIT $3
	`, StatusPending, now, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list due swaps: %w", err)
	}
	defer rows.Close()

	var due []*Swap
	for rows.Next() {
		var (
			swap   Swap
			addons []byte
		)
		if err := rows.Scan(&swap.ID, &swap.MembershipID, &swap.PlanID, &addons, &swap.Amount,
			&swap.Duration, &swap.DurationUnit, &swap.BillingCycles, &swap.ScheduledFor,
			&swap.Status, &swap.Error, &swap.CreatedAt, &swap.UpdatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan swap: %w", err)
		}
		if len(addons) > 0 {
			if err := json.Unmarshal(addons, &swap.AddonProducts); err != nil {
				return nil, fmt.Errorf("failed to decode addon products of swap %d: %w", swap.ID, err)
			}
		}
		due = append(due, &swap)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate swaps: %w", err)
	}
	return due, nil
}

func (s *PostgresStore) MarkApplied(ctx context.Context, id int64) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_swaps SET status = $1, error = '', updated_at = NOW()
		WHERE id = $2
	`, StatusApplied, id)
	if err != nil {
		return fmt.Errorf("failed to mark swap applied: %w", err)
	}
	return expectOneRow(result, id)
}

func (s *PostgresStore) MarkFailed(ctx context.Context, id int64, reason string) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE scheduled_swaps SET status = $1, error = $2, updated_at = NOW()
		WHERE id = $3
	`, StatusFailed, reason, id)
	if err != nil {
		return fmt.Errorf("failed to mark swap failed: %w", err)
	}
	return expectOneRow(result, id)
}

func expectOneRow(result sql.Result, id int64) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return fmt.Errorf("swap %d: %w", id, storage.ErrNotFound)
	}
	return nil
}
