package db

import (
	"context"
	"fmt"
	"log"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/kratos-host/provisioning-service/internal/config"
)

// New connects a pgx pool and pins the search path to the service
// schema.
func New(cfg *config.Config) (*pgxpool.Pool, error) {
	ctx := context.Background()

	poolConfig, err := pgxpool.ParseConfig(cfg.Database.DSN())
	if err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	poolConfig.MaxConns = 25
	poolConfig.MinConns = 5

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		return nil, fmt.Errorf("ping: %w", err)
	}

	schema := cfg.Database.Schema
	if _, err := pool.Exec(ctx, fmt.Sprintf("SET search_path TO %s, public", schema)); err != nil {
		return nil, fmt.Errorf("set search_path: %w", err)
	}

	log.Printf("[db] Connected to PostgreSQL: %s/%s (schema: %s)",
		cfg.Database.Host, cfg.Database.DBName, schema)

	return pool, nil
}
