package service

import (
	"fmt"
	"strings"
	"time"

	"github.com/chainsage-alerts/internal/chains"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/types"
	"github.com/shopspring/decimal"
)

const (
	highValueRiskNote   = " | High value wallet - security critical"
	highValueActionNote = " | Enable multi-sig or hardware wallet"
	highValueExplain    = " High value holdings make this wallet a security-critical target."
	highValueBonus      = 15
)

var (
	dustThreshold      = decimal.RequireFromString("0.01")
	highValueThreshold = decimal.NewFromInt(1)
)

// Scorer turns a portfolio snapshot into an assessment using a fixed rule table.
// It does no I/O; only the timestamp depends on the clock.
type Scorer struct {
	registry *chains.Registry
	now      func() time.Time
}

// NewScorer creates a scorer that names chains through registry
func NewScorer(registry *chains.Registry) *Scorer {
	return &Scorer{
		registry: registry,
		now:      time.Now,
	}
}

// rule is the base-case outcome of the decision table
type rule struct {
	risk        string
	opportunity string
	score       int
	explanation string
	action      string
}

// Score evaluates the decision table in priority order; the first matching row wins
func (s *Scorer) Score(snapshot types.PortfolioSnapshot) *models.Assessment {
	details := s.chainDetails(snapshot)
	total := snapshot.TotalValueUSD

	var r rule
	switch {
	case total.IsZero():
		r = rule{
			risk:        "No funds detected",
			opportunity: "Consider funding wallet to start trading",
			score:       10,
			explanation: "Wallet has zero balance across all monitored chains. This could indicate a new wallet or complete withdrawal.",
			action:      "Fund wallet with assets to begin operations",
		}
	case total.LessThan(dustThreshold):
		r = rule{
			risk:        "Very low balance - dust amounts only",
			opportunity: "Minimal exposure to market volatility",
			score:       25,
			explanation: fmt.Sprintf("Wallet contains minimal funds (%s total). Low risk but also low opportunity.", total.StringFixed(6)),
			action:      "Consider consolidating dust or adding more funds",
		}
	case snapshot.ActiveChains == 1 && snapshot.TotalChains > 1:
		r = rule{
			risk:        "Single chain concentration",
			opportunity: "Diversify across multiple chains for better opportunities",
			score:       55,
			explanation: fmt.Sprintf("All funds concentrated on %s. Single point of failure risk.", firstFundedChain(details)),
			action:      "Consider diversifying assets across Ethereum, Polygon, and other L2s",
		}
	case snapshot.ActiveChains > 1:
		r = rule{
			risk:        "Multi-chain management complexity",
			opportunity: "Well-diversified cross-chain portfolio",
			score:       35,
			explanation: fmt.Sprintf("Assets spread across %d chains. Good diversification but requires monitoring multiple networks.", snapshot.ActiveChains),
			action:      "Monitor gas fees and bridge opportunities between chains",
		}
	default:
		r = rule{
			risk:        "Standard portfolio risk",
			opportunity: "Explore DeFi yield opportunities",
			score:       45,
			explanation: fmt.Sprintf("Wallet has %s in assets. Standard risk profile.", total.StringFixed(4)),
			action:      "Consider staking or liquidity provision for passive income",
		}
	}

	if total.GreaterThan(highValueThreshold) {
		r.score += highValueBonus
		r.risk += highValueRiskNote
		r.action += highValueActionNote
		r.explanation += highValueExplain
	}

	if funded := fundedBalances(details); len(funded) > 0 {
		r.explanation += " Active balances: " + strings.Join(funded, ", ") + "."
	}

	var chainID types.ChainID
	if len(snapshot.Chains) > 0 {
		chainID = snapshot.Chains[0].ChainID
	}

	return &models.Assessment{
		Timestamp:         s.now(),
		WalletAddress:     snapshot.Address,
		ChainID:           chainID,
		Risk:              r.risk,
		Opportunity:       r.opportunity,
		Score:             ClampScore(r.score),
		Explanation:       r.explanation,
		RecommendedAction: r.action,
		Context: models.AssessmentContext{
			Wallet:       snapshot.Address,
			TotalValue:   total,
			ActiveChains: snapshot.ActiveChains,
			TotalChains:  snapshot.TotalChains,
			ChainDetails: details,
		},
	}
}

// chainDetails lists every chain in snapshot order. Failed fetches show balance "0" and symbol "N/A".
func (s *Scorer) chainDetails(snapshot types.PortfolioSnapshot) []models.ChainDetail {
	details := make([]models.ChainDetail, 0, len(snapshot.Chains))
	for _, rec := range snapshot.Chains {
		d := models.ChainDetail{
			ChainID:   rec.ChainID,
			ChainName: s.registry.Info(rec.ChainID).Name,
			Balance:   "0",
			Symbol:    "N/A",
		}
		if b := rec.Balance(); b != nil {
			if b.DisplayValue != "" {
				d.Balance = b.DisplayValue
			}
			if b.Symbol != "" {
				d.Symbol = b.Symbol
			}
		}
		details = append(details, d)
	}
	return details
}

func isFunded(d models.ChainDetail) bool {
	amount, err := decimal.NewFromString(d.Balance)
	return err == nil && amount.IsPositive()
}

func firstFundedChain(details []models.ChainDetail) string {
	for _, d := range details {
		if isFunded(d) {
			return d.ChainName
		}
	}
	return "an unknown chain"
}

func fundedBalances(details []models.ChainDetail) []string {
	var out []string
	for _, d := range details {
		if isFunded(d) {
			out = append(out, fmt.Sprintf("%s: %s %s", d.ChainName, d.Balance, d.Symbol))
		}
	}
	return out
}

// ClampScore limits a score to [0, 100]
func ClampScore(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}
