package models

import (
	"time"

	"github.com/chainsage-alerts/internal/types"
	"github.com/shopspring/decimal"
)

// Assessment is the persisted output of one pipeline pass (an alert)
type Assessment struct {
	ID                int64             `json:"id,omitempty" db:"id"`
	Timestamp         time.Time         `json:"timestamp" db:"timestamp"`
	WalletAddress     string            `json:"wallet_address" db:"wallet_address"`
	ChainID           types.ChainID     `json:"chain_id" db:"chain_id"`
	Risk              string            `json:"risk" db:"risk"`
	Opportunity       string            `json:"opportunity" db:"opportunity"`
	Score             int               `json:"score" db:"score"`
	Explanation       string            `json:"explanation" db:"explanation"`
	RecommendedAction string            `json:"recommended_action" db:"recommended_action"`
	Context           AssessmentContext `json:"context" db:"context"`
}

// AssessmentContext is the snapshot-derived detail stored alongside an assessment
type AssessmentContext struct {
	Wallet       string          `json:"wallet"`
	TotalValue   decimal.Decimal `json:"totalValue"`
	ActiveChains int             `json:"activeChains"`
	TotalChains  int             `json:"totalChains"`
	ChainDetails []ChainDetail   `json:"chainDetails"`
}

// ChainDetail is the per-chain line of an assessment context
type ChainDetail struct {
	ChainID   types.ChainID `json:"chainId"`
	ChainName string        `json:"chainName"`
	Balance   string        `json:"balance"` // Display value, "0" when the fetch failed
	Symbol    string        `json:"symbol"`  // "N/A" when the fetch failed
}

// AlertStats summarizes stored assessments by score band
type AlertStats struct {
	Total      int64 `json:"total"`
	HighRisk   int64 `json:"highRisk"`   // score >= 70
	MediumRisk int64 `json:"mediumRisk"` // 40 <= score < 70
	LowRisk    int64 `json:"lowRisk"`    // score < 40
}

// Score band boundaries used by AlertStats
const (
	HighRiskThreshold   = 70
	MediumRiskThreshold = 40
)
