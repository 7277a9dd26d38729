package repository

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kratos-host/provisioning-service/internal/models"
)

var ErrNotFound = errors.New("not found")

type OrderRepository struct {
	pool *pgxpool.Pool
}

func NewOrderRepository(pool *pgxpool.Pool) *OrderRepository {
	return &OrderRepository{pool: pool}
}

// GetByID retrieves an order with its items
func (r *OrderRepository) GetByID(ctx context.Context, id string) (*models.Order, error) {
	query := `
		SELECT id, user_id, status, total_amount, service_id, auto_renew,
		       terminate_at_period_end, cancelled_at, created_at, updated_at
		FROM provisioning.orders
		WHERE id = $1
	`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	items, err := r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// GetForUser retrieves an order only if it belongs to the user
func (r *OrderRepository) GetForUser(ctx context.Context, id, userID string) (*models.Order, error) {
	query := `
		SELECT id, user_id, status, total_amount, service_id, auto_renew,
		       terminate_at_period_end, cancelled_at, created_at, updated_at
		FROM provisioning.orders
		WHERE id = $1 AND user_id = $2
	`

	order, err := r.scanOrder(r.pool.QueryRow(ctx, query, id, userID))
	if err != nil {
		return nil, err
	}

	items, err := r.getItems(ctx, order.ID)
	if err != nil {
		return nil, err
	}
	order.Items = items

	return order, nil
}

// Transition moves an order from one status to another. The update is
// conditional on the current status so concurrent transitions cannot
// skip states; it reports whether the row actually moved.
func (r *OrderRepository) Transition(ctx context.Context, id, from, to string) (bool, error) {
	query := `UPDATE provisioning.orders SET status = $1, updated_at = now() WHERE id = $2 AND status = $3`

	tag, err := r.pool.Exec(ctx, query, to, id, from)
	if err != nil {
		return false, fmt.Errorf("transition order: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// SetService links the placeholder service created at checkout
func (r *OrderRepository) SetService(ctx context.Context, id, serviceID string) error {
	query := `UPDATE provisioning.orders SET service_id = $1, updated_at = now() WHERE id = $2`
	if _, err := r.pool.Exec(ctx, query, serviceID, id); err != nil {
		return fmt.Errorf("set order service: %w", err)
	}
	return nil
}

// SetCancelled marks an order cancelled immediately
func (r *OrderRepository) SetCancelled(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE provisioning.orders
		SET status = $1, cancelled_at = $2, updated_at = now()
		WHERE id = $3
	`
	if _, err := r.pool.Exec(ctx, query, models.OrderStatusCancelled, at, id); err != nil {
		return fmt.Errorf("cancel order: %w", err)
	}
	return nil
}

// SetTerminateAtPeriodEnd flags an order for deferred termination
func (r *OrderRepository) SetTerminateAtPeriodEnd(ctx context.Context, id string, terminate bool) error {
	query := `UPDATE provisioning.orders SET terminate_at_period_end = $1, updated_at = now() WHERE id = $2`
	if _, err := r.pool.Exec(ctx, query, terminate, id); err != nil {
		return fmt.Errorf("set terminate flag: %w", err)
	}
	return nil
}

// SetReactivated clears cancellation state and restores ACTIVE status
func (r *OrderRepository) SetReactivated(ctx context.Context, id string) error {
	query := `
		UPDATE provisioning.orders
		SET status = $1, terminate_at_period_end = false, cancelled_at = NULL, updated_at = now()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, query, models.OrderStatusActive, id); err != nil {
		return fmt.Errorf("reactivate order: %w", err)
	}
	return nil
}

// SetAutoRenew toggles the auto-renew flag
func (r *OrderRepository) SetAutoRenew(ctx context.Context, id string, autoRenew bool) error {
	query := `UPDATE provisioning.orders SET auto_renew = $1, updated_at = now() WHERE id = $2`
	if _, err := r.pool.Exec(ctx, query, autoRenew, id); err != nil {
		return fmt.Errorf("set auto renew: %w", err)
	}
	return nil
}

func (r *OrderRepository) getItems(ctx context.Context, orderID string) ([]models.OrderItem, error) {
	query := `
		SELECT id, order_id, plan_id, plan_name, service_type, configuration, unit_price, quantity
		FROM provisioning.order_items
		WHERE order_id = $1
		ORDER BY created_at
	`

	rows, err := r.pool.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	var items []models.OrderItem
	for rows.Next() {
		var item models.OrderItem
		var configJSON []byte
		err := rows.Scan(&item.ID, &item.OrderID, &item.PlanID, &item.PlanName,
			&item.ServiceType, &configJSON, &item.UnitPrice, &item.Quantity)
		if err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		if len(configJSON) > 0 {
			if err := json.Unmarshal(configJSON, &item.Configuration); err != nil {
				return nil, fmt.Errorf("decode item configuration: %w", err)
			}
		}
		items = append(items, item)
	}
	return items, rows.Err()
}

func (r *OrderRepository) scanOrder(row pgx.Row) (*models.Order, error) {
	order := &models.Order{}
	err := row.Scan(
		&order.ID, &order.UserID, &order.Status, &order.TotalAmount, &order.ServiceID,
		&order.AutoRenew, &order.TerminateAtPeriodEnd, &order.CancelledAt,
		&order.CreatedAt, &order.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan order: %w", err)
	}
	return order, nil
}
