package handlers

import (
	"encoding/json"
	"errors"
	"net/http"

	"predictive-node/core/correlator"
	"predictive-node/core/models"
	"predictive-node/core/repository"
	"predictive-node/core/router"

	"github.com/gorilla/mux"
)

// PredictionHandler handles prediction task HTTP requests
type PredictionHandler struct {
	router     *router.TaskRouter
	tasks      repository.TaskStore
	correlator *correlator.Correlator
}

// NewPredictionHandler creates a new prediction handler
func NewPredictionHandler(r *router.TaskRouter, tasks repository.TaskStore, c *correlator.Correlator) *PredictionHandler {
	return &PredictionHandler{router: r, tasks: tasks, correlator: c}
}

// SubmitPredictionRequest represents the request to submit a reading
type SubmitPredictionRequest struct {
	GatewayName string    `json:"gateway_name"`
	SensorName  string    `json:"sensor_name"`
	Reading     []float64 `json:"reading"`
	LowBattery  bool      `json:"low_battery"`
}

// SubmitPredictionResponse represents the response after accepting a reading
type SubmitPredictionResponse struct {
	Handle string `json:"handle"`
	Status string `json:"status"`
}

// SubmitPrediction handles POST /api/v1/predict
func (h *PredictionHandler) SubmitPrediction(w http.ResponseWriter, r *http.Request) {
	var req SubmitPredictionRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if req.GatewayName == "" || req.SensorName == "" {
		http.Error(w, "gateway_name and sensor_name are required", http.StatusBadRequest)
		return
	}
	if len(req.Reading) == 0 {
		http.Error(w, "reading is required", http.StatusBadRequest)
		return
	}

	handle, err := h.router.SubmitPrediction(r.Context(), models.PredictionTask{
		GatewayName: req.GatewayName,
		SensorName:  req.SensorName,
		Reading:     req.Reading,
		LowBattery:  req.LowBattery,
	})
	if err != nil {
		http.Error(w, "Failed to submit prediction: "+err.Error(), http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(SubmitPredictionResponse{
		Handle: handle,
		Status: string(models.TaskStatusPending),
	})
}

// GetPrediction handles GET /api/v1/predict/{id}
func (h *PredictionHandler) GetPrediction(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)
	handle := vars["id"]

	rec, ok, err := h.tasks.GetTask(r.Context(), handle)
	if err != nil {
		http.Error(w, "Failed to fetch task: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "Task not found", http.StatusNotFound)
		return
	}

	response := map[string]interface{}{
		"handle": rec.Handle,
		"status": rec.Status,
		"timestamps": map[string]interface{}{
			"created_at": rec.CreatedAt,
			"updated_at": rec.UpdatedAt,
		},
	}
	if rec.Result != nil {
		response["result"] = rec.Result
	}
	if rec.FailureReason != "" {
		response["failure_reason"] = rec.FailureReason
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(response)
}

// PutResult handles PUT /api/v1/model/prediction/result
func (h *PredictionHandler) PutResult(w http.ResponseWriter, r *http.Request) {
	var report correlator.ResultReport
	if err := json.NewDecoder(r.Body).Decode(&report); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if report.GatewayName == "" || report.SensorName == "" {
		http.Error(w, "gateway_name and sensor_name are required", http.StatusBadRequest)
		return
	}

	annotated, err := h.correlator.HandleResult(r.Context(), report)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrAlreadyFinal):
			http.Error(w, "Result already recorded", http.StatusConflict)
		case errors.Is(err, repository.ErrNotFound):
			http.Error(w, "Task not found", http.StatusNotFound)
		case errors.Is(err, correlator.ErrSinkDelivery):
			http.Error(w, "Result recorded but not delivered downstream", http.StatusBadGateway)
		default:
			http.Error(w, "Failed to process result: "+err.Error(), http.StatusInternalServerError)
		}
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(annotated)
}
