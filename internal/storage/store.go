// Package storage persists assessments and caches the latest one per wallet.
package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/chainsage-alerts/internal/config"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/types"
)

// DefaultQueryLimit is used when a query asks for zero or fewer rows
const DefaultQueryLimit = 50

// AlertStore is the append-only assessment log
type AlertStore interface {
	// Insert appends an assessment and returns the id the store assigned
	Insert(ctx context.Context, assessment *models.Assessment) (int64, error)
	// QueryRecent returns assessments newest first
	QueryRecent(ctx context.Context, limit, offset int) ([]*models.Assessment, error)
	// QueryByWallet returns one wallet's assessments newest first
	QueryByWallet(ctx context.Context, address string, limit int) ([]*models.Assessment, error)
	// Stats counts assessments per score band
	Stats(ctx context.Context) (*models.AlertStats, error)
	Close() error
}

// OpenAlertStore migrates and opens the store selected by cfg.Driver
func OpenAlertStore(ctx context.Context, cfg config.StoreConfig) (AlertStore, error) {
	switch cfg.Driver {
	case DriverSQLite:
		return OpenSQLiteAlertStore(ctx, cfg.SQLitePath)
	case DriverPostgres:
		return OpenPostgresAlertStore(ctx, cfg.Postgres)
	default:
		return nil, fmt.Errorf("unsupported store driver %q", cfg.Driver)
	}
}

const alertColumns = "id, timestamp, wallet_address, chain_id, risk, opportunity, score, explanation, recommended_action, context"

// rowScanner is satisfied by both database/sql and pgx rows
type rowScanner interface {
	Scan(dest ...any) error
}

func scanAssessment(row rowScanner) (*models.Assessment, error) {
	var (
		a          models.Assessment
		tsMillis   int64
		chainID    int64
		rawContext []byte
	)
	if err := row.Scan(
		&a.ID,
		&tsMillis,
		&a.WalletAddress,
		&chainID,
		&a.Risk,
		&a.Opportunity,
		&a.Score,
		&a.Explanation,
		&a.RecommendedAction,
		&rawContext,
	); err != nil {
		return nil, fmt.Errorf("failed to scan alert: %w", err)
	}

	a.Timestamp = time.UnixMilli(tsMillis).UTC()
	a.ChainID = types.ChainID(chainID)
	if len(rawContext) > 0 {
		if err := json.Unmarshal(rawContext, &a.Context); err != nil {
			return nil, fmt.Errorf("failed to decode context of alert %d: %w", a.ID, err)
		}
	}
	return &a, nil
}

func encodeContext(a *models.Assessment) ([]byte, error) {
	raw, err := json.Marshal(a.Context)
	if err != nil {
		return nil, fmt.Errorf("failed to encode alert context: %w", err)
	}
	return raw, nil
}

func validateAssessment(a *models.Assessment) error {
	if a == nil {
		return fmt.Errorf("assessment is nil")
	}
	if a.WalletAddress == "" {
		return fmt.Errorf("assessment has no wallet address")
	}
	if a.Score < 0 || a.Score > 100 {
		return fmt.Errorf("assessment score %d out of range", a.Score)
	}
	return nil
}

func normalizePage(limit, offset int) (int, int) {
	if limit <= 0 {
		limit = DefaultQueryLimit
	}
	if offset < 0 {
		offset = 0
	}
	return limit, offset
}
