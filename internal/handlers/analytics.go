package handlers

import (
	"encoding/json"
	"log"
	"net/http"
	"strconv"

	"github.com/lipaqr/lipaqr-gobackend/internal/services"
)

type AnalyticsHandler struct {
	service *services.AnalyticsService
}

func NewAnalyticsHandler(service *services.AnalyticsService) *AnalyticsHandler {
	return &AnalyticsHandler{service: service}
}

// GetSummary handles GET /api/analytics
func (h *AnalyticsHandler) GetSummary(w http.ResponseWriter, r *http.Request) {
	merchantID, err := authMerchantID(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusUnauthorized)
		return
	}

	days := 30
	if d := r.URL.Query().Get("days"); d != "" {
		parsed, err := strconv.Atoi(d)
		if err != nil || parsed < 1 {
			writeError(w, "days must be a positive integer", http.StatusBadRequest)
			return
		}
		days = parsed
	}

	summary, err := h.service.Summarize(r.Context(), merchantID, days)
	if err != nil {
		log.Printf("Failed to build analytics for merchant %s: %v", merchantID, err)
		writeError(w, "failed to build analytics", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(summary)
}
