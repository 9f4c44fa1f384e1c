package routes

import (
	"encoding/json"
	"net/http"

	"predictive-node/api/rest/handlers"
	"predictive-node/core/correlator"
	"predictive-node/core/repository"
	"predictive-node/core/router"

	"github.com/gorilla/mux"
)

// SetupRoutes configures all API routes. decisions may be nil when no
// audit backend is configured.
func SetupRoutes(
	r *mux.Router,
	taskRouter *router.TaskRouter,
	tasks repository.TaskStore,
	corr *correlator.Correlator,
	decisions handlers.DecisionReader,
) {
	modelHandler := handlers.NewModelHandler(taskRouter, tasks)
	predictionHandler := handlers.NewPredictionHandler(taskRouter, tasks, corr)

	api := r.PathPrefix("/api/v1").Subrouter()

	// Model distribution endpoints
	api.HandleFunc("/model", modelHandler.PublishModel).Methods("POST")
	api.HandleFunc("/model/rebroadcast", modelHandler.RebroadcastModel).Methods("POST")

	// Prediction endpoints
	api.HandleFunc("/predict", predictionHandler.SubmitPrediction).Methods("POST")
	api.HandleFunc("/predict/{id}", predictionHandler.GetPrediction).Methods("GET")
	api.HandleFunc("/model/prediction/result", predictionHandler.PutResult).Methods("PUT")

	// Decision audit endpoints
	if decisions != nil {
		decisionHandler := handlers.NewDecisionHandler(decisions)
		api.HandleFunc("/decisions/{gateway}/{sensor}", decisionHandler.GetDecisions).Methods("GET")
	}

	r.HandleFunc("/health", func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}).Methods("GET")
}
