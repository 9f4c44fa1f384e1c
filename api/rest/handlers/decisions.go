package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"predictive-node/core/audit"
	"predictive-node/core/models"

	"github.com/gorilla/mux"
)

// DecisionReader exposes recorded heuristic evaluations
type DecisionReader interface {
	RecentDecisions(ctx context.Context, key models.DeviceKey, limit int) ([]audit.DecisionRow, error)
}

// DecisionHandler handles decision audit HTTP requests
type DecisionHandler struct {
	decisions DecisionReader
}

// NewDecisionHandler creates a new decision handler
func NewDecisionHandler(decisions DecisionReader) *DecisionHandler {
	return &DecisionHandler{decisions: decisions}
}

// GetDecisions handles GET /api/v1/decisions/{gateway}/{sensor}
func (h *DecisionHandler) GetDecisions(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	key := models.DeviceKey{
		GatewayName: vars["gateway"],
		SensorName:  vars["sensor"],
	}

	limit := 50
	if limitParam := r.URL.Query().Get("limit"); limitParam != "" {
		if n, err := strconv.Atoi(limitParam); err == nil && n > 0 {
			limit = n
		}
	}

	rows, err := h.decisions.RecentDecisions(r.Context(), key, limit)
	if err != nil {
		http.Error(w, "Failed to fetch decisions: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"gateway_name": key.GatewayName,
		"sensor_name":  key.SensorName,
		"items":        rows,
	})
}
