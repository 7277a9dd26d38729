package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kratos-host/provisioning-service/internal/models"
)

type SubscriptionRepository struct {
	pool *pgxpool.Pool
}

func NewSubscriptionRepository(pool *pgxpool.Pool) *SubscriptionRepository {
	return &SubscriptionRepository{pool: pool}
}

// Upsert writes the provider's view of a subscription, keyed by the
// external subscription id. The provider is the source of truth, so a
// re-delivered or out-of-order event simply converges the row. A fresh
// internal id is generated per row; the conflict arm never touches it,
// so redelivery keeps the first-inserted id.
func (r *SubscriptionRepository) Upsert(ctx context.Context, sub *models.Subscription) error {
	if sub.ID == "" {
		sub.ID = uuid.New().String()
	}

	query := `
		INSERT INTO provisioning.subscriptions (
			id, stripe_subscription_id, order_id, user_id, service_id, status,
			current_period_start, current_period_end, cancel_at_period_end, canceled_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
		ON CONFLICT (stripe_subscription_id) DO UPDATE SET
			status = EXCLUDED.status,
			current_period_start = EXCLUDED.current_period_start,
			current_period_end = EXCLUDED.current_period_end,
			cancel_at_period_end = EXCLUDED.cancel_at_period_end,
			canceled_at = EXCLUDED.canceled_at,
			updated_at = now()
	`

	_, err := r.pool.Exec(ctx, query,
		sub.ID, sub.StripeSubscriptionID, sub.OrderID, sub.UserID, sub.ServiceID,
		sub.Status, sub.CurrentPeriodStart, sub.CurrentPeriodEnd,
		sub.CancelAtPeriodEnd, sub.CanceledAt,
	)
	if err != nil {
		return fmt.Errorf("upsert subscription: %w", err)
	}
	return nil
}

// GetByOrderID retrieves the subscription mirroring an order
func (r *SubscriptionRepository) GetByOrderID(ctx context.Context, orderID string) (*models.Subscription, error) {
	query := selectSubscription + ` WHERE order_id = $1`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, orderID))
}

// GetByStripeID retrieves a subscription by the external id
func (r *SubscriptionRepository) GetByStripeID(ctx context.Context, stripeID string) (*models.Subscription, error) {
	query := selectSubscription + ` WHERE stripe_subscription_id = $1`
	return r.scanSubscription(r.pool.QueryRow(ctx, query, stripeID))
}

// SetCancelFlags records a pending cancel awaiting provider sweep
func (r *SubscriptionRepository) SetCancelFlags(ctx context.Context, stripeID string, canceledAt time.Time) error {
	query := `
		UPDATE provisioning.subscriptions
		SET cancel_at_period_end = true, canceled_at = $1, updated_at = now()
		WHERE stripe_subscription_id = $2
	`
	if _, err := r.pool.Exec(ctx, query, canceledAt, stripeID); err != nil {
		return fmt.Errorf("set cancel flags: %w", err)
	}
	return nil
}

// ClearCancelFlags removes a pending cancel after reactivation
func (r *SubscriptionRepository) ClearCancelFlags(ctx context.Context, stripeID string) error {
	query := `
		UPDATE provisioning.subscriptions
		SET cancel_at_period_end = false, canceled_at = NULL, updated_at = now()
		WHERE stripe_subscription_id = $1
	`
	if _, err := r.pool.Exec(ctx, query, stripeID); err != nil {
		return fmt.Errorf("clear cancel flags: %w", err)
	}
	return nil
}

// ListExpiredPendingTermination finds subscriptions whose period has
// elapsed and whose order asked for end-of-period termination, joined
// with the service holding the remote server id. Input for the
// termination sweep.
func (r *SubscriptionRepository) ListExpiredPendingTermination(ctx context.Context, now time.Time) ([]models.TerminationCandidate, error) {
	query := `
		SELECT s.order_id, o.service_id, s.stripe_subscription_id,
		       sv.remote_server_id, s.current_period_end
		FROM provisioning.subscriptions s
		JOIN provisioning.orders o ON o.id = s.order_id
		JOIN provisioning.services sv ON sv.id = o.service_id
		WHERE s.cancel_at_period_end = true
		  AND s.current_period_end < $1
		  AND o.terminate_at_period_end = true
		  AND sv.status != $2
	`

	rows, err := r.pool.Query(ctx, query, now, models.ServiceStatusCancelled)
	if err != nil {
		return nil, fmt.Errorf("query expired subscriptions: %w", err)
	}
	defer rows.Close()

	var candidates []models.TerminationCandidate
	for rows.Next() {
		var c models.TerminationCandidate
		if err := rows.Scan(&c.OrderID, &c.ServiceID, &c.StripeSubscriptionID,
			&c.RemoteServerID, &c.CurrentPeriodEnd); err != nil {
			return nil, fmt.Errorf("scan termination candidate: %w", err)
		}
		candidates = append(candidates, c)
	}
	return candidates, rows.Err()
}

const selectSubscription = `
	SELECT id, stripe_subscription_id, order_id, user_id, service_id, status,
	       current_period_start, current_period_end, cancel_at_period_end,
	       canceled_at, created_at, updated_at
	FROM provisioning.subscriptions
`

func (r *SubscriptionRepository) scanSubscription(row pgx.Row) (*models.Subscription, error) {
	sub := &models.Subscription{}
	err := row.Scan(
		&sub.ID, &sub.StripeSubscriptionID, &sub.OrderID, &sub.UserID, &sub.ServiceID,
		&sub.Status, &sub.CurrentPeriodStart, &sub.CurrentPeriodEnd,
		&sub.CancelAtPeriodEnd, &sub.CanceledAt, &sub.CreatedAt, &sub.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan subscription: %w", err)
	}
	return sub, nil
}
