package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"predictive-node/api/rest/handlers"
	"predictive-node/api/rest/routes"
	"predictive-node/config"
	"predictive-node/core/audit"
	"predictive-node/core/broker"
	"predictive-node/core/commands"
	"predictive-node/core/correlator"
	"predictive-node/core/heuristic"
	"predictive-node/core/policy"
	"predictive-node/core/repository"
	"predictive-node/core/router"
	"predictive-node/core/state"

	"github.com/gorilla/mux"
)

func main() {
	cfg := config.Load()

	if cfg.PolicyFile != "" {
		p, err := policy.LoadFile(cfg.PolicyFile)
		if err != nil {
			log.Fatalf("Failed to load placement policy: %v", err)
		}
		p.Apply(cfg)
		log.Printf("Applied placement policy from %s", cfg.PolicyFile)
	}

	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Broker and decision state share a Redis instance, separate databases
	taskBroker := broker.NewRedisBroker(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisBrokerDB, cfg.StoreTimeout)
	defer taskBroker.Close()

	kv := state.NewRedisKV(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisHistoryDB, cfg.StoreTimeout)
	defer kv.Close()

	decisionStore := state.NewDecisionStore(kv, cfg.HistoryLength)

	// Task records: Postgres when configured, in-memory otherwise
	var tasks repository.TaskStore
	if cfg.DatabaseURL != "" {
		db, err := repository.NewDB(cfg.DatabaseURL)
		if err != nil {
			log.Fatalf("Failed to connect to database: %v", err)
		}
		defer db.Close()
		if err := db.InitSchema(); err != nil {
			log.Fatalf("Failed to initialize schema: %v", err)
		}
		tasks = repository.NewPostgresTaskStore(db)
		log.Println("Database connected successfully")
	} else {
		tasks = repository.NewMemoryTaskStore()
		log.Println("No DATABASE_URL set, keeping task records in memory")
	}

	selector := heuristic.NewSelector(
		decisionStore,
		heuristic.NewBrokerDepth(taskBroker, broker.PredictionQueue),
		heuristic.Config{
			HistoryLength:     cfg.HistoryLength,
			MaxQueueSize:      cfg.MaxQueueSize,
			NormalThreshold:   cfg.NormalThreshold,
			AbnormalThreshold: cfg.AbnormalThreshold,
			AbnormalLabels:    cfg.AbnormalLabels,
			ServingTier:       cfg.ServingTier,
		},
	)

	// Optional backends
	var decisionLog *audit.DecisionLog
	if cfg.ClickHouseAddr != "" {
		dl, err := audit.NewDecisionLog(cfg.ClickHouseAddr, cfg.ClickHouseDB, cfg.ClickHouseUser, cfg.ClickHousePass)
		if err != nil {
			log.Fatalf("Failed to connect to ClickHouse: %v", err)
		}
		defer dl.Close()
		decisionLog = dl
	}

	var tierPublisher *commands.TierPublisher
	if cfg.MQTTBroker != "" {
		tp, err := commands.NewTierPublisher(cfg.MQTTBroker, cfg.MQTTClientID, cfg.MQTTUsername, cfg.MQTTPassword)
		if err != nil {
			log.Fatalf("Failed to connect to MQTT broker: %v", err)
		}
		defer tp.Close()
		tierPublisher = tp
	}

	var sink correlator.Sink
	if cfg.SinkURL != "" {
		sink = correlator.NewHTTPSink(cfg.SinkURL)
	}

	var auditor correlator.Auditor
	if decisionLog != nil {
		auditor = decisionLog
	}
	var publisher correlator.CommandPublisher
	if tierPublisher != nil {
		publisher = tierPublisher
	}

	corr := correlator.NewCorrelator(selector, tasks, sink, publisher, auditor, cfg.ServingTier, cfg.AdaptiveInference)
	taskRouter := router.NewTaskRouter(taskBroker, tasks, cfg.WorkerCount)

	var decisions handlers.DecisionReader
	if decisionLog != nil {
		decisions = decisionLog
	}

	r := mux.NewRouter()
	routes.SetupRoutes(r, taskRouter, tasks, corr, decisions)

	server := &http.Server{
		Addr:    ":" + cfg.ServerPort,
		Handler: r,
	}

	// Graceful shutdown
	go func() {
		log.Printf("Starting server on port %s (adaptive inference: %v, serving tier: %s)",
			cfg.ServerPort, cfg.AdaptiveInference, cfg.ServingTier)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("Server failed to start: %v", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down server...")
	if err := server.Shutdown(context.Background()); err != nil {
		log.Fatalf("Server forced to shutdown: %v", err)
	}
	log.Println("Server exited")
}
