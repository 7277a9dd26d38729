package repository

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kratos-host/provisioning-service/internal/models"
)

// DeploymentRepository persists the append-only provisioning audit log
type DeploymentRepository struct {
	pool *pgxpool.Pool
}

func NewDeploymentRepository(pool *pgxpool.Pool) *DeploymentRepository {
	return &DeploymentRepository{pool: pool}
}

// Create inserts a new deployment record
func (r *DeploymentRepository) Create(ctx context.Context, dep *models.ServiceDeployment) error {
	query := `
		INSERT INTO provisioning.service_deployments (id, service_id, status, logs)
		VALUES ($1, $2, $3, $4)
	`
	if _, err := r.pool.Exec(ctx, query, dep.ID, dep.ServiceID, dep.Status, dep.Logs); err != nil {
		return fmt.Errorf("insert deployment: %w", err)
	}
	return nil
}

// AppendLog adds one line to a deployment's log without touching
// earlier entries.
func (r *DeploymentRepository) AppendLog(ctx context.Context, deploymentID, line string) error {
	query := `
		UPDATE provisioning.service_deployments
		SET logs = array_append(logs, $1), updated_at = now()
		WHERE id = $2
	`
	if _, err := r.pool.Exec(ctx, query, line, deploymentID); err != nil {
		return fmt.Errorf("append deployment log: %w", err)
	}
	return nil
}

// UpdateStatus records the deployment outcome
func (r *DeploymentRepository) UpdateStatus(ctx context.Context, deploymentID, status string) error {
	query := `UPDATE provisioning.service_deployments SET status = $1, updated_at = now() WHERE id = $2`
	if _, err := r.pool.Exec(ctx, query, status, deploymentID); err != nil {
		return fmt.Errorf("update deployment status: %w", err)
	}
	return nil
}
