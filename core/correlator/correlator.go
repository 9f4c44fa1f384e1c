package correlator

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"predictive-node/core/heuristic"
	"predictive-node/core/models"
	"predictive-node/core/repository"
)

// ErrSinkDelivery wraps a failed delivery to the result sink. The result
// itself is already finalized when this is returned.
var ErrSinkDelivery = errors.New("result delivery failed")

// ResultReport is what a worker sends back after consuming one task.
// Failure carries the worker-side error message when inference could not
// run; Prediction is meaningless in that case.
type ResultReport struct {
	Handle      string      `json:"handle,omitempty"`
	GatewayName string      `json:"gateway_name"`
	SensorName  string      `json:"sensor_name"`
	Prediction  int         `json:"prediction"`
	LowBattery  bool        `json:"low_battery"`
	SourceLayer models.Tier `json:"inference_layer"`
	Failure     string      `json:"failure,omitempty"`
}

// Device returns the report's device key.
func (r ResultReport) Device() models.DeviceKey {
	return models.DeviceKey{GatewayName: r.GatewayName, SensorName: r.SensorName}
}

// CommandPublisher pushes a tier verdict down to the device.
type CommandPublisher interface {
	PublishTier(key models.DeviceKey, verdict models.Tier) error
}

// Auditor records heuristic evaluations for later inspection.
type Auditor interface {
	SaveDecision(ctx context.Context, key models.DeviceKey, d heuristic.Decision, lowBattery bool) error
}

// Correlator ties a worker's result back to its submitted task, runs the
// tier heuristic exactly once per delivered result, and forwards the
// annotated outcome downstream.
type Correlator struct {
	selector *heuristic.Selector
	tasks    repository.TaskStore
	sink     Sink
	commands CommandPublisher
	audit    Auditor

	servingTier models.Tier
	adaptive    bool
}

// NewCorrelator creates a correlator. tasks, sink, commands and audit may
// each be nil; the corresponding step is skipped.
func NewCorrelator(
	selector *heuristic.Selector,
	tasks repository.TaskStore,
	sink Sink,
	commands CommandPublisher,
	audit Auditor,
	servingTier models.Tier,
	adaptive bool,
) *Correlator {
	return &Correlator{
		selector:    selector,
		tasks:       tasks,
		sink:        sink,
		commands:    commands,
		audit:       audit,
		servingTier: servingTier,
		adaptive:    adaptive,
	}
}

// HandleResult processes one result delivery. For tracked handles a
// duplicate delivery is rejected with repository.ErrAlreadyFinal before
// the heuristic runs, so rolling decision state advances at most once per
// task. A sink failure is reported via ErrSinkDelivery but never rolls the
// task back.
func (c *Correlator) HandleResult(ctx context.Context, report ResultReport) (models.AnnotatedResult, error) {
	tracked := c.tasks != nil && report.Handle != ""

	if tracked {
		rec, ok, err := c.tasks.GetTask(ctx, report.Handle)
		if err != nil {
			return models.AnnotatedResult{}, fmt.Errorf("look up task %s: %w", report.Handle, err)
		}
		if !ok {
			return models.AnnotatedResult{}, fmt.Errorf("task %s: %w", report.Handle, repository.ErrNotFound)
		}
		if rec.Status.Final() {
			return models.AnnotatedResult{}, fmt.Errorf("task %s already %s: %w", report.Handle, rec.Status, repository.ErrAlreadyFinal)
		}
	}

	if report.Failure != "" {
		if tracked {
			if err := c.tasks.FailTask(ctx, report.Handle, report.Failure); err != nil {
				return models.AnnotatedResult{}, fmt.Errorf("mark task %s failed: %w", report.Handle, err)
			}
		}
		log.Printf("Correlator: task %s failed on %s: %s", report.Handle, report.Device(), report.Failure)
		return models.AnnotatedResult{}, nil
	}

	annotated := models.AnnotatedResult{
		Result: models.PredictionResult{
			GatewayName: report.GatewayName,
			SensorName:  report.SensorName,
			Prediction:  report.Prediction,
			LowBattery:  report.LowBattery,
		},
		SourceLayer: report.SourceLayer,
		CompletedAt: time.Now().UTC(),
	}

	if c.adaptive {
		key := report.Device()
		decision, err := c.selector.Decide(ctx, key, report.LowBattery, report.Prediction)
		if err != nil {
			// Corrupt state still yields a usable gateway verdict.
			log.Printf("Correlator: %v", err)
		}

		verdict := decision.Verdict
		annotated.NextLayer = &verdict

		if c.audit != nil {
			if err := c.audit.SaveDecision(ctx, key, decision, report.LowBattery); err != nil {
				log.Printf("Correlator: decision audit for %s failed: %v", key, err)
			}
		}

		if c.commands != nil && verdict != c.servingTier {
			if err := c.commands.PublishTier(key, verdict); err != nil {
				log.Printf("Correlator: tier command for %s failed: %v", key, err)
			}
		}
	}

	if tracked {
		if err := c.tasks.CompleteTask(ctx, report.Handle, annotated); err != nil {
			return models.AnnotatedResult{}, fmt.Errorf("complete task %s: %w", report.Handle, err)
		}
	}

	if c.sink != nil {
		if err := c.sink.Deliver(ctx, annotated); err != nil {
			log.Printf("Correlator: sink delivery for %s failed: %v", report.Device(), err)
			return annotated, fmt.Errorf("%w: %v", ErrSinkDelivery, err)
		}
	}

	return annotated, nil
}
