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

type ServiceRepository struct {
	pool *pgxpool.Pool
}

func NewServiceRepository(pool *pgxpool.Pool) *ServiceRepository {
	return &ServiceRepository{pool: pool}
}

// Create inserts a new service record
func (r *ServiceRepository) Create(ctx context.Context, svc *models.Service) error {
	configJSON, err := json.Marshal(svc.Config)
	if err != nil {
		return fmt.Errorf("encode service config: %w", err)
	}

	query := `
		INSERT INTO provisioning.services (
			id, type, user_id, status, config, remote_server_id, node_id,
			pending_cancellation, termination_date
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`

	_, err = r.pool.Exec(ctx, query,
		svc.ID, svc.Type, svc.UserID, svc.Status, configJSON,
		svc.RemoteServerID, svc.NodeID, svc.PendingCancellation, svc.TerminationDate,
	)
	if err != nil {
		return fmt.Errorf("insert service: %w", err)
	}
	return nil
}

// GetByID retrieves a service by ID
func (r *ServiceRepository) GetByID(ctx context.Context, id string) (*models.Service, error) {
	query := selectService + ` WHERE id = $1`
	return r.scanService(r.pool.QueryRow(ctx, query, id))
}

// GetForUser retrieves a service only if it belongs to the user
func (r *ServiceRepository) GetForUser(ctx context.Context, id, userID string) (*models.Service, error) {
	query := selectService + ` WHERE id = $1 AND user_id = $2`
	return r.scanService(r.pool.QueryRow(ctx, query, id, userID))
}

// GetPendingByUserAndType retrieves the oldest PENDING service for a
// user and product family.
func (r *ServiceRepository) GetPendingByUserAndType(ctx context.Context, userID, serviceType string) (*models.Service, error) {
	query := selectService + `
		WHERE user_id = $1 AND type = $2 AND status = $3
		ORDER BY created_at
		LIMIT 1
	`
	return r.scanService(r.pool.QueryRow(ctx, query, userID, serviceType, models.ServiceStatusPending))
}

// ActivatePendingByUserAndType promotes the user's oldest PENDING
// service of the given type to ACTIVE with the remote server identity,
// as a single conditional update. The PENDING gate is the concurrency
/// unit: only one caller can win the row, so a redelivered payment
// event cannot activate (or double-provision) twice. Returns
// ErrNotFound when no PENDING service exists.
func (r *ServiceRepository) ActivatePendingByUserAndType(ctx context.Context, userID, serviceType string, remoteServerID, nodeID int) (*models.Service, error) {
	query := `
		UPDATE provisioning.services
		SET status = $1, remote_server_id = $2, node_id = $3, updated_at = now()
		WHERE id = (
			SELECT id FROM provisioning.services
			WHERE user_id = $4 AND type = $5 AND status = $6
			ORDER BY created_at
			LIMIT 1
		) AND status = $6
		RETURNING id, type, user_id, status, config, remote_server_id, node_id,
		          pending_cancellation, termination_date, created_at, updated_at
	`

	return r.scanService(r.pool.QueryRow(ctx, query,
		models.ServiceStatusActive, remoteServerID, nodeID,
		userID, serviceType, models.ServiceStatusPending,
	))
}

// UpdateStatus updates only the status
func (r *ServiceRepository) UpdateStatus(ctx context.Context, id, status string) error {
	query := `UPDATE provisioning.services SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := r.pool.Exec(ctx, query, status, id); err != nil {
		return fmt.Errorf("update service status: %w", err)
	}
	return nil
}

// MarkCancelled sets the terminal CANCELLED status with the
// termination timestamp.
func (r *ServiceRepository) MarkCancelled(ctx context.Context, id string, at time.Time) error {
	query := `
		UPDATE provisioning.services
		SET status = $1, termination_date = $2, pending_cancellation = false, updated_at = now()
		WHERE id = $3
	`
	if _, err := r.pool.Exec(ctx, query, models.ServiceStatusCancelled, at, id); err != nil {
		return fmt.Errorf("mark service cancelled: %w", err)
	}
	return nil
}

// SetPendingCancellation flags a service for end-of-period termination
func (r *ServiceRepository) SetPendingCancellation(ctx context.Context, id string, terminationDate time.Time) error {
	query := `
		UPDATE provisioning.services
		SET pending_cancellation = true, termination_date = $1, updated_at = now()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, query, terminationDate, id); err != nil {
		return fmt.Errorf("set pending cancellation: %w", err)
	}
	return nil
}

// ClearPendingCancellation removes the deferred-termination flag
func (r *ServiceRepository) ClearPendingCancellation(ctx context.Context, id string) error {
	query := `
		UPDATE provisioning.services
		SET pending_cancellation = false, termination_date = NULL, updated_at = now()
		WHERE id = $1
	`
	if _, err := r.pool.Exec(ctx, query, id); err != nil {
		return fmt.Errorf("clear pending cancellation: %w", err)
	}
	return nil
}

const selectService = `
	SELECT id, type, user_id, status, config, remote_server_id, node_id,
	       pending_cancellation, termination_date, created_at, updated_at
	FROM provisioning.services
`

func (r *ServiceRepository) scanService(row pgx.Row) (*models.Service, error) {
	svc := &models.Service{}
	var configJSON []byte
	err := row.Scan(
		&svc.ID, &svc.Type, &svc.UserID, &svc.Status, &configJSON,
		&svc.RemoteServerID, &svc.NodeID, &svc.PendingCancellation, &svc.TerminationDate,
		&svc.CreatedAt, &svc.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("scan service: %w", err)
	}
	if len(configJSON) > 0 {
		if err := json.Unmarshal(configJSON, &svc.Config); err != nil {
			return nil, fmt.Errorf("decode service config: %w", err)
		}
	}
	return svc, nil
}
