package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"

	"predictive-node/config"
	"predictive-node/core/broker"
	"predictive-node/inference"
	"predictive-node/worker"
)

func main() {
	cfg := config.Load()
	if err := cfg.Validate(); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	taskBroker := broker.NewRedisBroker(cfg.RedisAddr(), cfg.RedisPassword, cfg.RedisBrokerDB, cfg.StoreTimeout)
	defer taskBroker.Close()

	engine := inference.NewLinearModel()
	reporter := worker.NewHTTPReporter(cfg.CallbackURL)
	w := worker.New(cfg.WorkerIndex, taskBroker, engine, reporter, cfg.ServingTier)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		w.Run(ctx)
		close(done)
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Println("Shutting down worker...")
	cancel()
	<-done
	log.Println("Worker exited")
}
