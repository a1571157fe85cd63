package api

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/chainsage-alerts/internal/config"
	apperrors "github.com/chainsage-alerts/internal/errors"
	"github.com/chainsage-alerts/internal/logging"
	"github.com/chainsage-alerts/internal/metrics"
	"github.com/chainsage-alerts/internal/models"
	"github.com/chainsage-alerts/internal/storage"
	"github.com/gorilla/mux"
)

const (
	defaultAlertLimit = 50
	maxWalletLimit    = 100
	maxAlertLimit     = 1000
)

// queryInt parses a non-negative integer query parameter, falling back to def
func queryInt(r *http.Request, name string, def int) int {
	raw := r.URL.Query().Get(name)
	if raw == "" {
		return def
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return def
	}
	return v
}

func (s *Server) handleGetAlerts(w http.ResponseWriter, r *http.Request) {
	limit := queryInt(r, "limit", defaultAlertLimit)
	if limit == 0 {
		limit = defaultAlertLimit
	}
	if limit > maxAlertLimit {
		limit = maxAlertLimit
	}
	offset := queryInt(r, "offset", 0)

	alerts, err := s.alerts.QueryRecent(r.Context(), limit, offset)
	if err != nil {
		respondServiceError(w, r, apperrors.NewDatabaseError("query alerts", err))
		return
	}
	respondAlerts(w, alerts)
}

func (s *Server) handleGetWalletAlerts(w http.ResponseWriter, r *http.Request) {
	address := mux.Vars(r)["address"]
	if !config.IsWalletAddress(address) {
		respondServiceError(w, r, apperrors.NewInvalidAddressError(address))
		return
	}

	limit := queryInt(r, "limit", defaultAlertLimit)
	if limit == 0 {
		limit = defaultAlertLimit
	}
	if limit > maxWalletLimit {
		limit = maxWalletLimit
	}

	alerts, err := s.alerts.QueryByWallet(r.Context(), address, limit)
	if err != nil {
		respondServiceError(w, r, apperrors.NewDatabaseError("query wallet alerts", err))
		return
	}
	respondAlerts(w, alerts)
}

// handleGetLatestAlert returns the newest assessment for ?wallet= or the monitored wallet,
// preferring the cache over the store
func (s *Server) handleGetLatestAlert(w http.ResponseWriter, r *http.Request) {
	wallet := r.URL.Query().Get("wallet")
	if wallet == "" {
		wallet = s.agent.Status().WalletAddress
	}
	if !config.IsWalletAddress(wallet) {
		respondServiceError(w, r, apperrors.NewInvalidAddressError(wallet))
		return
	}

	if s.latest != nil {
		alert, err := s.latest.GetLatest(r.Context(), wallet)
		switch {
		case err == nil:
			metrics.RecordCacheLookup("hit")
			respondJSON(w, http.StatusOK, map[string]interface{}{
				"success": true,
				"source":  "cache",
				"alert":   alert,
			})
			return
		case errors.Is(err, storage.ErrCacheMiss):
			metrics.RecordCacheLookup("miss")
		default:
			metrics.RecordCacheLookup("error")
			logging.FromContext(r.Context()).WithError(err).Warn("Latest assessment cache unavailable")
		}
	}

	alerts, err := s.alerts.QueryByWallet(r.Context(), wallet, 1)
	if err != nil {
		respondServiceError(w, r, apperrors.NewDatabaseError("query latest alert", err))
		return
	}
	if len(alerts) == 0 {
		respondServiceError(w, r, apperrors.NewNotFoundError("alert", wallet))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"source":  "store",
		"alert":   alerts[0],
	})
}

func (s *Server) handleGetStats(w http.ResponseWriter, r *http.Request) {
	stats, err := s.alerts.Stats(r.Context())
	if err != nil {
		respondServiceError(w, r, apperrors.NewDatabaseError("compute stats", err))
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"stats":   stats,
	})
}

func respondAlerts(w http.ResponseWriter, alerts []*models.Assessment) {
	if alerts == nil {
		alerts = []*models.Assessment{}
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"success": true,
		"count":   len(alerts),
		"alerts":  alerts,
	})
}
