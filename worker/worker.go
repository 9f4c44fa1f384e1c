package worker

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"net/http"
	"time"

	"predictive-node/core/broker"
	"predictive-node/core/correlator"
	"predictive-node/core/models"
	"predictive-node/inference"
)

// Reporter delivers one result report back to the node. Each consumed
// task produces exactly one report.
type Reporter interface {
	Report(ctx context.Context, report correlator.ResultReport) error
}

// HTTPReporter sends result reports with an HTTP PUT to the node's
// result endpoint.
type HTTPReporter struct {
	url    string
	client *http.Client
}

// NewHTTPReporter creates a reporter targeting the given callback URL.
func NewHTTPReporter(url string) *HTTPReporter {
	return &HTTPReporter{
		url:    url,
		client: &http.Client{Timeout: 10 * time.Second},
	}
}

func (r *HTTPReporter) Report(ctx context.Context, report correlator.ResultReport) error {
	payload, err := json.Marshal(report)
	if err != nil {
		return fmt.Errorf("encode result report: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPut, r.url, bytes.NewReader(payload))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		return fmt.Errorf("deliver result report: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("result report rejected: status %d", resp.StatusCode)
	}
	return nil
}

// Worker consumes one dedicated model queue and the shared prediction
// queue. Model updates are applied between tasks, never mid-prediction.
type Worker struct {
	index       int
	broker      broker.Broker
	engine      inference.Engine
	reporter    Reporter
	servingTier models.Tier
	pollTimeout time.Duration
}

// New creates a worker bound to model queue index.
func New(index int, b broker.Broker, engine inference.Engine, reporter Reporter, servingTier models.Tier) *Worker {
	return &Worker{
		index:       index,
		broker:      b,
		engine:      engine,
		reporter:    reporter,
		servingTier: servingTier,
		pollTimeout: time.Second,
	}
}

// Run consumes queues until the context is cancelled.
func (w *Worker) Run(ctx context.Context) {
	log.Printf("Worker %d: consuming %s and %s", w.index, broker.ModelQueue(w.index), broker.PredictionQueue)
	for {
		if ctx.Err() != nil {
			log.Printf("Worker %d: stopping", w.index)
			return
		}
		if err := w.checkModelQueue(ctx); err != nil {
			log.Printf("Worker %d: model queue: %v", w.index, err)
		}
		if err := w.checkPredictionQueue(ctx); err != nil {
			log.Printf("Worker %d: prediction queue: %v", w.index, err)
		}
	}
}

// checkModelQueue applies at most one pending model update.
func (w *Worker) checkModelQueue(ctx context.Context) error {
	payload, ok, err := w.broker.Dequeue(ctx, broker.ModelQueue(w.index), 50*time.Millisecond)
	if err != nil || !ok {
		return err
	}

	var artifact models.ModelArtifact
	if err := json.Unmarshal(payload, &artifact); err != nil {
		return fmt.Errorf("decode model update: %w", err)
	}

	raw, err := artifact.Decode()
	if err != nil {
		if errors.Is(err, models.ErrSizeMismatch) {
			return fmt.Errorf("model %s rejected, keeping active model: %w", artifact.Version, err)
		}
		return fmt.Errorf("model %s unusable: %w", artifact.Version, err)
	}

	if err := w.engine.Load(raw); err != nil {
		return fmt.Errorf("activate model %s: %w", artifact.Version, err)
	}
	log.Printf("Worker %d: activated model %s (%d bytes)", w.index, artifact.Version, len(raw))
	return nil
}

// checkPredictionQueue consumes at most one prediction task and reports
// its outcome. The report is sent exactly once; a report delivery failure
// is logged, never retried.
func (w *Worker) checkPredictionQueue(ctx context.Context) error {
	payload, ok, err := w.broker.Dequeue(ctx, broker.PredictionQueue, w.pollTimeout)
	if err != nil || !ok {
		return err
	}

	var task models.PredictionTask
	if err := json.Unmarshal(payload, &task); err != nil {
		return fmt.Errorf("decode prediction task: %w", err)
	}

	report := correlator.ResultReport{
		Handle:      task.Handle,
		GatewayName: task.GatewayName,
		SensorName:  task.SensorName,
		LowBattery:  task.LowBattery,
		SourceLayer: w.servingTier,
	}

	label, err := w.engine.Predict(task.Reading)
	if err != nil {
		report.Failure = err.Error()
		log.Printf("Worker %d: task %s failed: %v", w.index, task.Handle, err)
	} else {
		report.Prediction = label
	}

	if err := w.reporter.Report(ctx, report); err != nil {
		log.Printf("Worker %d: report for task %s not delivered: %v", w.index, task.Handle, err)
	}
	return nil
}
