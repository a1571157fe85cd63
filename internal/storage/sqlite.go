package storage

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"

	"github.com/chainsage-alerts/internal/models"
	_ "modernc.org/sqlite"
)

// SQLiteAlertStore is an AlertStore backed by a local SQLite file
type SQLiteAlertStore struct {
	db   *sql.DB
	path string
}

// sqliteDSN enables WAL and waits on a locked database instead of failing
func sqliteDSN(path string) string {
	return fmt.Sprintf("file:%s?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)&_pragma=foreign_keys(1)", path)
}

// OpenSQLiteAlertStore migrates the database at path and opens it.
// The parent directory is created when missing.
func OpenSQLiteAlertStore(ctx context.Context, path string) (*SQLiteAlertStore, error) {
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("failed to create database directory: %w", err)
		}
	}

	// Migrations run on their own connection; the migrate driver closes it
	if err := RunMigrations(DriverSQLite, SQLiteMigrationURL(path)); err != nil {
		return nil, err
	}

	db, err := sql.Open("sqlite", sqliteDSN(path))
	if err != nil {
		return nil, fmt.Errorf("unable to open sqlite database: %w", err)
	}
	// SQLite allows a single writer
	db.SetMaxOpenConns(1)

	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("unable to ping sqlite database: %w", err)
	}

	return &SQLiteAlertStore{db: db, path: path}, nil
}

// Insert appends an assessment
func (s *SQLiteAlertStore) Insert(ctx context.Context, a *models.Assessment) (int64, error) {
	if err := validateAssessment(a); err != nil {
		return 0, err
	}
	rawContext, err := encodeContext(a)
	if err != nil {
		return 0, err
	}

	res, err := s.db.ExecContext(ctx, `
		INSERT INTO alerts (timestamp, wallet_address, chain_id, risk, opportunity, score, explanation, recommended_action, context)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		a.Timestamp.UnixMilli(),
		a.WalletAddress,
		int64(a.ChainID),
		a.Risk,
		a.Opportunity,
		a.Score,
		a.Explanation,
		a.RecommendedAction,
		string(rawContext),
	)
	if err != nil {
		return 0, fmt.Errorf("failed to insert alert: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("failed to read alert id: %w", err)
	}
	return id, nil
}

// QueryRecent returns assessments newest first
func (s *SQLiteAlertStore) QueryRecent(ctx context.Context, limit, offset int) ([]*models.Assessment, error) {
	limit, offset = normalizePage(limit, offset)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+alertColumns+" FROM alerts ORDER BY timestamp DESC, id DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts: %w", err)
	}
	return collectSQLRows(rows)
}

// QueryByWallet returns one wallet's assessments newest first
func (s *SQLiteAlertStore) QueryByWallet(ctx context.Context, address string, limit int) ([]*models.Assessment, error) {
	limit, _ = normalizePage(limit, 0)
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+alertColumns+" FROM alerts WHERE wallet_address = ? ORDER BY timestamp DESC, id DESC LIMIT ?",
		address, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to query alerts for wallet: %w", err)
	}
	return collectSQLRows(rows)
}

// Stats counts assessments per score band
func (s *SQLiteAlertStore) Stats(ctx context.Context) (*models.AlertStats, error) {
	var stats models.AlertStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(CASE WHEN score >= ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN score >= ? AND score < ? THEN 1 ELSE 0 END), 0),
			COALESCE(SUM(CASE WHEN score < ? THEN 1 ELSE 0 END), 0)
		FROM alerts`,
		models.HighRiskThreshold,
		models.MediumRiskThreshold, models.HighRiskThreshold,
		models.MediumRiskThreshold,
	).Scan(&stats.Total, &stats.HighRisk, &stats.MediumRisk, &stats.LowRisk)
	if err != nil {
		return nil, fmt.Errorf("failed to compute alert stats: %w", err)
	}
	return &stats, nil
}

// Ping checks the database is reachable
func (s *SQLiteAlertStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Close closes the database
func (s *SQLiteAlertStore) Close() error {
	if s.db != nil {
		return s.db.Close()
	}
	return nil
}

func collectSQLRows(rows *sql.Rows) ([]*models.Assessment, error) {
	defer func() {
		_ = rows.Close()
	}()

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
