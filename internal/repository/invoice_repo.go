package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kratos-host/provisioning-service/internal/models"
)

type InvoiceRepository struct {
	pool *pgxpool.Pool
}

func NewInvoiceRepository(pool *pgxpool.Pool) *InvoiceRepository {
	return &InvoiceRepository{pool: pool}
}

// UpsertByStripeID writes one row per provider invoice, keyed by the
// external invoice id. Redelivered webhook events hit the conflict arm
// and converge the existing row instead of duplicating it. A fresh
// internal id is generated per row; the conflict arm never touches it,
// so redelivery keeps the first-inserted id.
func (r *InvoiceRepository) UpsertByStripeID(ctx context.Context, inv *models.Invoice) error {
	if inv.ID == "" {
		inv.ID = uuid.New().String()
	}

	query := `
		INSERT INTO provisioning.invoices (
			id, stripe_invoice_id, order_id, user_id, amount, status,
			period_start, period_end, paid_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		ON CONFLICT (stripe_invoice_id) DO UPDATE SET
			amount = EXCLUDED.amount,
			status = EXCLUDED.status,
			period_start = EXCLUDED.period_start,
			period_end = EXCLUDED.period_end,
			paid_at = EXCLUDED.paid_at,
			updated_at = now()
	`

	_, err := r.pool.Exec(ctx, query,
		inv.ID, inv.StripeInvoiceID, inv.OrderID, inv.UserID,
		inv.Amount, inv.Status, inv.PeriodStart, inv.PeriodEnd, inv.PaidAt,
	)
	if err != nil {
		return fmt.Errorf("upsert invoice: %w", err)
	}
	return nil
}

// GetByStripeID retrieves an invoice by the external id
func (r *InvoiceRepository) GetByStripeID(ctx context.Context, stripeInvoiceID string) (*models.Invoice, error) {
	query := `
		SELECT id, stripe_invoice_id, order_id, user_id, amount, status,
		       period_start, period_end, paid_at, created_at, updated_at
		FROM provisioning.invoices
		WHERE stripe_invoice_id = $1
	`

	inv := &models.Invoice{}
	err := r.pool.QueryRow(ctx, query, stripeInvoiceID).Scan(
		&inv.ID, &inv.StripeInvoiceID, &inv.OrderID, &inv.UserID,
		&inv.Amount, &inv.Status, &inv.PeriodStart, &inv.PeriodEnd,
		&inv.PaidAt, &inv.CreatedAt, &inv.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan invoice: %w", err)
	}
	return inv, nil
}
