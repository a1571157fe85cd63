package storage

import (
	"context"
	"fmt"
	"time"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/models"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// PostgresAlertStore is an AlertStore backed by a pgx connection pool
type PostgresAlertStore struct {
	pool *pgxpool.Pool
}

// OpenPostgresAlertStore migrates the configured database and connects a pool
func OpenPostgresAlertStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresAlertStore, error) {
	if err := RunMigrations(DriverPostgres, cfg.URL()); err != nil {
		return nil, err
	}
	return NewPostgresAlertStore(ctx, cfg)
}

// NewPostgresAlertStore connects to an already migrated database
func NewPostgresAlertStore(ctx context.Context, cfg config.PostgresConfig) (*PostgresAlertStore, error) {
	connString := fmt.Sprintf(
		"host=%s port=%s user=%s password=%s dbname=%s sslmode=disable pool_max_conns=%d",
		cfg.Host,
		cfg.Port,
		cfg.User,
		cfg.Password,
		cfg.Database,
		cfg.MaxConnections,
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, fmt.Errorf("unable to parse connection string: %w", err)
	}

	poolConfig.MaxConns = int32(cfg.MaxConnections) // #nosec G115 - MaxConnections is validated in config
	poolConfig.MinConns = 1
	poolConfig.MaxConnLifetime = time.Hour
	poolConfig.MaxConnIdleTime = 30 * time.Minute
	poolConfig.HealthCheckPeriod = time.Minute

	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, fmt.Errorf("unable to create connection pool: %w", err)
	}

	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("unable to ping database: %w", err)
	}

	return &PostgresAlertStore{pool: pool}, nil
}

// Insert appends an assessment
func (s *PostgresAlertStore) Insert(ctx context.Context, a *models.Assessment) (int64, error) {
	if err := validateAssessment(a); err != nil {
		return 0, err
	}
	rawContext, err := encodeContext(a)
	if err != nil {
		return 0, err
	}

	var id int64
	err = s.pool.QueryRow(ctx, `
		INSERT INTO alerts (timestamp, wallet_address, chain_id, risk, opportunity, score, explanation, recommended_action, context)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING id`,
		a.Timestamp.UnixMilli(),
		a.WalletAddress,
		int64(a.ChainID),
		a.Risk,
		a.Opportunity,
		a.Score,
		a.Explanation,
		a.RecommendedAction,
		rawContext,
	).Scan(&id)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}
	return id, nil
}

// QueryRecent returns assessments newest first
func (s *PostgresAlertStore) QueryRecent(ctx context.Context, limit, offset int) ([]*models.Assessment, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.pool.Query(ctx,
		"SELECT "+alertColumns+" FROM alerts ORDER BY timestamp DESC, id DESC LIMIT $1 OFFSET $2",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return collectPgxRows(rows)
}

// QueryByWallet returns one wallet's assessments newest first
func (s *PostgresAlertStore) QueryByWallet(ctx context.Context, address string, limit int) ([]*models.Assessment, error) {
	limit, _ = normalizePage(limit, 0)
	rows, err := s.pool.Query(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE wallet_address = $1 ORDER BY timestamp DESC, id DESC LIMIT $2",
		address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for wallet: %w", err)
	}
	return collectPgxRows(rows)
}

// Stats counts assessments per score band
func (s *PostgresAlertStore) Stats(ctx context.Context) (*models.AlertStats, error) {
	var stats models.AlertStats
	err := s.pool.QueryRow(ctx, `
		SELECT
			COUNT(*),
			COUNT(*) FILTER (WHERE score >= $1),
			COUNT(*) FILTER (WHERE score >= $2 AND score < $1),
			COUNT(*) FILTER (WHERE score < $2)
		FROM alerts`,
		models.HighRiskThreshold,
		models.MediumRiskThreshold,
	).Scan(&stats.Total, &stats.HighRisk, &stats.MediumRisk, &stats.LowRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to compute alert stats: %w", err)
	}
	return &stats, nil
}

// Ping checks if the database is reachable
func (s *PostgresAlertStore) Ping(ctx context.Context) error {
	return s.pool.Ping(ctx)
}

// Close closes the connection pool
func (s *PostgresAlertStore) Close() error {
	if s.pool != nil {
		s.pool.Close()
	}
	return nil
}

func collectPgxRows(rows pgx.Rows) ([]*models.Assessment, error) {
	defer rows.Close()

	alerts := make([]*models.Assessment, 0)
	for rows.Next() {
		a, err := scanAssessment(rows)
		if err != nil {
			return nil, err
		}
		alerts = append(alerts, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate alerts: %w", err)
	}
	return alerts, nil
}
