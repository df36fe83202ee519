package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/tradeworks/equity-screener/internal/storage"
	"github.com/tradeworks/equity-screener/pkg/logger"
)

const (
	defaultMinStrength = 0.7
	defaultLimit       = 100
	maxLimit           = 1000
)

// SignalHandler serves persisted signal decisions
type SignalHandler struct {
	decisions storage.DecisionStorage
}

// NewSignalHandler creates a new signal handler
func NewSignalHandler(decisions storage.DecisionStorage) *SignalHandler {
	return &SignalHandler{
		decisions: decisions,
	}
}

// GetRecommendations handles GET /api/recommendations.
// Returns today's accepted signals at or above the strength floor,
// newest first.
func (h *SignalHandler) GetRecommendations(w http.ResponseWriter, r *http.Request) {
	filter := storage.DecisionFilter{
		AcceptedOnly: true,
		MinStrength:  defaultMinStrength,
		StartTime:    startOfDay(time.Now().UTC()),
		Limit:        defaultLimit,
	}

	if strengthStr := r.URL.Query().Get("min_strength"); strengthStr != "" {
		if strength, err := parseFloat(strengthStr); err == nil && strength >= 0 && strength <= 1 {
			filter.MinStrength = strength
		} else {
			respondWithError(w, http.StatusBadRequest, "min_strength must be between 0 and 1")
			return
		}
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := parseInt(limitStr); err == nil && limit > 0 && limit <= maxLimit {
			filter.Limit = limit
		}
	}

	recommendations, err := h.decisions.GetDecisions(r.Context(), filter)
	if err != nil {
		logger.Error("Failed to retrieve recommendations", logger.ErrorField(err))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve recommendations")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"recommendations": recommendations,
		"count":           len(recommendations),
		"min_strength":    filter.MinStrength,
	})
}

// GetSymbolSignals handles GET /api/signals/{symbol}.
// Returns the decision history for one symbol, newest first.
func (h *SignalHandler) GetSymbolSignals(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	symbol := vars["symbol"]

	filter := storage.DecisionFilter{
		Symbol: symbol,
		Limit:  defaultLimit,
	}

	if r.URL.Query().Get("accepted") == "true" {
		filter.AcceptedOnly = true
	}

	if limitStr := r.URL.Query().Get("limit"); limitStr != "" {
		if limit, err := parseInt(limitStr); err == nil && limit > 0 && limit <= maxLimit {
			filter.Limit = limit
		}
	}

	if offsetStr := r.URL.Query().Get("offset"); offsetStr != "" {
		if offset, err := parseInt(offsetStr); err == nil && offset >= 0 {
			filter.Offset = offset
		}
	}

	if startStr := r.URL.Query().Get("start_time"); startStr != "" {
		if start, err := time.Parse(time.RFC3339, startStr); err == nil {
			filter.StartTime = start
		}
	}

	if endStr := r.URL.Query().Get("end_time"); endStr != "" {
		if end, err := time.Parse(time.RFC3339, endStr); err == nil {
			filter.EndTime = end
		}
	}

	signals, err := h.decisions.GetDecisions(r.Context(), filter)
	if err != nil {
		logger.Error("Failed to retrieve signals",
			logger.ErrorField(err),
			logger.String("symbol", symbol))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve signals")
		return
	}

	respondWithJSON(w, http.StatusOK, map[string]interface{}{
		"symbol":  symbol,
		"signals": signals,
		"count":   len(signals),
		"limit":   filter.Limit,
		"offset":  filter.Offset,
	})
}

// GetDecision handles GET /api/decisions/{id}
func (h *SignalHandler) GetDecision(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	decisionID := vars["id"]

	decision, err := h.decisions.GetDecision(r.Context(), decisionID)
	if err != nil {
		logger.Error("Failed to retrieve decision",
			logger.ErrorField(err),
			logger.String("decision_id", decisionID))
		respondWithError(w, http.StatusInternalServerError, "Failed to retrieve decision")
		return
	}

	if decision == nil {
		respondWithError(w, http.StatusNotFound, "Decision not found")
		return
	}

	respondWithJSON(w, http.StatusOK, decision)
}

// startOfDay returns midnight of the given day
func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}
