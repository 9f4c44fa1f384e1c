package handlers

import (
	"encoding/json"
	"net/http"
	"time"

	"predictive-node/core/models"
	"predictive-node/core/repository"
	"predictive-node/core/router"
)

// ModelHandler handles model distribution HTTP requests
type ModelHandler struct {
	router *router.TaskRouter
	tasks  repository.TaskStore
}

// NewModelHandler creates a new model handler
func NewModelHandler(r *router.TaskRouter, tasks repository.TaskStore) *ModelHandler {
	return &ModelHandler{router: r, tasks: tasks}
}

// PublishModelResponse represents the response after accepting a model
type PublishModelResponse struct {
	Version      string `json:"version"`
	QueuesTotal  int    `json:"queues_total"`
	QueuesFilled int    `json:"queues_filled"`
}

// PublishModel handles POST /api/v1/model
func (h *ModelHandler) PublishModel(w http.ResponseWriter, r *http.Request) {
	var artifact models.ModelArtifact
	if err := json.NewDecoder(r.Body).Decode(&artifact); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}
	if artifact.ModelB64 == "" {
		http.Error(w, "model_b64 is required", http.StatusBadRequest)
		return
	}
	if artifact.ByteSize <= 0 {
		http.Error(w, "model_bytesize must be positive", http.StatusBadRequest)
		return
	}
	artifact.CreatedAt = time.Now().UTC()

	if h.tasks != nil {
		if err := h.tasks.SaveArtifact(r.Context(), artifact); err != nil {
			http.Error(w, "Failed to store model: "+err.Error(), http.StatusInternalServerError)
			return
		}
	}

	reached, err := h.router.BroadcastModelUpdate(r.Context(), artifact)
	if err != nil && reached == 0 {
		http.Error(w, "Failed to broadcast model: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.respond(w, artifact, reached)
}

// RebroadcastModel handles POST /api/v1/model/rebroadcast
func (h *ModelHandler) RebroadcastModel(w http.ResponseWriter, r *http.Request) {
	if h.tasks == nil {
		http.Error(w, "No model store configured", http.StatusNotFound)
		return
	}

	artifact, ok, err := h.tasks.LatestArtifact(r.Context())
	if err != nil {
		http.Error(w, "Failed to load model: "+err.Error(), http.StatusInternalServerError)
		return
	}
	if !ok {
		http.Error(w, "No model published yet", http.StatusNotFound)
		return
	}

	reached, err := h.router.BroadcastModelUpdate(r.Context(), artifact)
	if err != nil && reached == 0 {
		http.Error(w, "Failed to broadcast model: "+err.Error(), http.StatusInternalServerError)
		return
	}

	h.respond(w, artifact, reached)
}

func (h *ModelHandler) respond(w http.ResponseWriter, artifact models.ModelArtifact, reached int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusAccepted)
	json.NewEncoder(w).Encode(PublishModelResponse{
		Version:      artifact.Version,
		QueuesTotal:  h.router.WorkerCount(),
		QueuesFilled: reached,
	})
}
