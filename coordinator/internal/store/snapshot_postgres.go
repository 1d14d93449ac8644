package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"go.uber.org/zap"
)

// PostgresSnapshotStore keeps the snapshot in one row of coordinator_snapshots.
type PostgresSnapshotStore struct {
	pool          *pgxpool.Pool
	coordinatorID string
	logger        *zap.Logger
}

// NewPostgresSnapshotStore connects to PostgreSQL and ensures the snapshot table exists.
func NewPostgresSnapshotStore(
	host string,
	port int,
	database, user, password string,
	maxConns, minConns int,
	connMaxLifetime time.Duration,
	coordinatorID string,
	logger *zap.Logger,
) (*PostgresSnapshotStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%d dbname=%s user=%s password=%s pool_max_conns=%d pool_min_conns=%d",
		host, port, database, user, password, maxConns, minConns,
	)

	config, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("failed to parse connection string: %w", err)
	}
	if connMaxLifetime > 0 {
		config.MaxConnLifetime = connMaxLifetime
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	schema := `
		CREATE TABLE IF NOT EXISTS coordinator_snapshots (
			coordinator_id TEXT PRIMARY KEY,
			snapshot       JSONB NOT NULL,
			updated_at     TIMESTAMPTZ NOT NULL DEFAULT NOW()
		)
	`
	if _, err := pool.Exec(ctx, schema); err != nil {
		pool.Close()
		return nil, fmt.Errorf("failed to create snapshot table: %w", err)
	}

	return &PostgresSnapshotStore{
		pool:          pool,
		coordinatorID: coordinatorID,
		logger:        logger,
	}, nil
}

// Load reads this coordinator's snapshot row. A missing row yields an empty snapshot.
func (s *PostgresSnapshotStore) Load(ctx context.Context) (Snapshot, error) {
	query := `
		SELECT snapshot
		FROM coordinator_snapshots
		WHERE coordinator_id = $1
	`

	var data []byte
	err := s.pool.QueryRow(ctx, query, s.coordinatorID).Scan(&data)
	if errors.Is(err, pgx.ErrNoRows) {
		return Snapshot{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to load snapshot: %w", err)
	}
	return decodeSnapshot(data)
}

// Save upserts this coordinator's snapshot row.
func (s *PostgresSnapshotStore) Save(ctx context.Context, snap Snapshot) error {
	data, err := encodeSnapshot(s.coordinatorID, snap)
	if err != nil {
		return err
	}

	query := `
		INSERT INTO coordinator_snapshots (coordinator_id, snapshot, updated_at)
		VALUES ($1, $2, NOW())
		ON CONFLICT (coordinator_id)
		DO UPDATE SET snapshot = EXCLUDED.snapshot, updated_at = EXCLUDED.updated_at
	`
	if _, err := s.pool.Exec(ctx, query, s.coordinatorID, data); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Ping checks the database connection.
func (s *PostgresSnapshotStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool.
func (s *PostgresSnapshotStore) Close() error {
	s.pool.Close()
	return nil
}
