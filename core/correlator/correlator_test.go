package correlator

import (
	"context"
	"errors"
	"testing"

	"predictive-node/core/heuristic"
	"predictive-node/core/models"
	"predictive-node/core/repository"
	"predictive-node/core/state"
)

type fixedDepth struct{ depth int }

func (f fixedDepth) Depth(context.Context) (int, error) { return f.depth, nil }

type captureSink struct {
	delivered []models.AnnotatedResult
	fail      bool
}

func (s *captureSink) Deliver(_ context.Context, result models.AnnotatedResult) error {
	if s.fail {
		return errors.New("sink unreachable")
	}
	s.delivered = append(s.delivered, result)
	return nil
}

type captureCommands struct {
	published []models.Tier
}

func (c *captureCommands) PublishTier(_ models.DeviceKey, verdict models.Tier) error {
	c.published = append(c.published, verdict)
	return nil
}

type fixture struct {
	kv       *state.MemoryKV
	tasks    *repository.MemoryTaskStore
	sink     *captureSink
	commands *captureCommands
	corr     *Correlator
}

func newFixture(t *testing.T, historyLength int, adaptive bool) *fixture {
	t.Helper()
	kv := state.NewMemoryKV()
	store := state.NewDecisionStore(kv, historyLength)
	selector := heuristic.NewSelector(store, fixedDepth{}, heuristic.Config{
		HistoryLength:     historyLength,
		MaxQueueSize:      10,
		NormalThreshold:   1,
		AbnormalThreshold: 3,
		AbnormalLabels:    []int{2, 3},
		ServingTier:       models.TierGateway,
	})

	f := &fixture{
		kv:       kv,
		tasks:    repository.NewMemoryTaskStore(),
		sink:     &captureSink{},
		commands: &captureCommands{},
	}
	f.corr = NewCorrelator(selector, f.tasks, f.sink, f.commands, nil, models.TierGateway, adaptive)
	return f
}

func (f *fixture) submit(t *testing.T, handle string) {
	t.Helper()
	task := models.PredictionTask{
		Handle:      handle,
		GatewayName: "gw-1",
		SensorName:  "vib-2",
		Reading:     []float64{0.7},
	}
	if err := f.tasks.CreateTask(context.Background(), task); err != nil {
		t.Fatalf("create task: %v", err)
	}
}

func report(handle string, prediction int) ResultReport {
	return ResultReport{
		Handle:      handle,
		GatewayName: "gw-1",
		SensorName:  "vib-2",
		Prediction:  prediction,
		SourceLayer: models.TierGateway,
	}
}

func TestResultCompletesTaskAndDelivers(t *testing.T) {
	f := newFixture(t, 4, true)
	f.submit(t, "h1")

	annotated, err := f.corr.HandleResult(context.Background(), report("h1", 0))
	if err != nil {
		t.Fatalf("handle result: %v", err)
	}
	if annotated.NextLayer == nil || *annotated.NextLayer != models.TierGateway {
		t.Fatalf("expected gateway verdict during warm-up, got %+v", annotated.NextLayer)
	}

	rec, _, _ := f.tasks.GetTask(context.Background(), "h1")
	if rec.Status != models.TaskStatusSuccess {
		t.Fatalf("expected SUCCESS, got %s", rec.Status)
	}
	if len(f.sink.delivered) != 1 {
		t.Fatalf("expected one sink delivery, got %d", len(f.sink.delivered))
	}
	// Verdict matches the serving tier, so nothing is pushed down.
	if len(f.commands.published) != 0 {
		t.Fatalf("unexpected tier command: %v", f.commands.published)
	}
}

func TestDuplicateDeliveryRejectedBeforeHeuristic(t *testing.T) {
	f := newFixture(t, 4, true)
	f.submit(t, "h1")
	ctx := context.Background()

	if _, err := f.corr.HandleResult(ctx, report("h1", 0)); err != nil {
		t.Fatalf("first delivery: %v", err)
	}
	if _, err := f.corr.HandleResult(ctx, report("h1", 0)); !errors.Is(err, repository.ErrAlreadyFinal) {
		t.Fatalf("expected ErrAlreadyFinal, got %v", err)
	}

	// The warm-up counter advanced exactly once.
	raw, ok, err := f.kv.Get(ctx, "counter:gw-1:vib-2")
	if err != nil || !ok {
		t.Fatalf("counter missing: ok=%v err=%v", ok, err)
	}
	if string(raw) != "1" {
		t.Fatalf("expected counter 1 after duplicate, got %s", raw)
	}
	if len(f.sink.delivered) != 1 {
		t.Fatalf("expected one sink delivery, got %d", len(f.sink.delivered))
	}
}

func TestDisabledAdaptivePassesRawResultThrough(t *testing.T) {
	f := newFixture(t, 4, false)
	f.submit(t, "h1")
	ctx := context.Background()

	annotated, err := f.corr.HandleResult(ctx, report("h1", 0))
	if err != nil {
		t.Fatalf("handle result: %v", err)
	}
	if annotated.NextLayer != nil {
		t.Fatalf("expected no verdict when adaptive inference is off, got %v", *annotated.NextLayer)
	}

	if _, ok, _ := f.kv.Get(ctx, "counter:gw-1:vib-2"); ok {
		t.Fatal("decision state must not advance when adaptive inference is off")
	}
	if len(f.commands.published) != 0 {
		t.Fatalf("unexpected tier command: %v", f.commands.published)
	}
}

func TestHandoffPublishesTierCommand(t *testing.T) {
	// No warm-up and no abnormal history: the verdict moves to the sensor.
	f := newFixture(t, 0, true)
	f.submit(t, "h1")

	annotated, err := f.corr.HandleResult(context.Background(), report("h1", 0))
	if err != nil {
		t.Fatalf("handle result: %v", err)
	}
	if annotated.NextLayer == nil || *annotated.NextLayer != models.TierSensor {
		t.Fatalf("expected sensor verdict, got %+v", annotated.NextLayer)
	}
	if len(f.commands.published) != 1 || f.commands.published[0] != models.TierSensor {
		t.Fatalf("expected one sensor tier command, got %v", f.commands.published)
	}
}

func TestFailureReportMarksTaskFailed(t *testing.T) {
	f := newFixture(t, 4, true)
	f.submit(t, "h1")
	ctx := context.Background()

	r := report("h1", 0)
	r.Failure = "model is not loaded"
	if _, err := f.corr.HandleResult(ctx, r); err != nil {
		t.Fatalf("handle failure report: %v", err)
	}

	rec, _, _ := f.tasks.GetTask(ctx, "h1")
	if rec.Status != models.TaskStatusFailure || rec.FailureReason != "model is not loaded" {
		t.Fatalf("failure not recorded: %+v", rec)
	}
	if len(f.sink.delivered) != 0 {
		t.Fatal("failed task must not reach the sink")
	}
	if _, ok, _ := f.kv.Get(ctx, "counter:gw-1:vib-2"); ok {
		t.Fatal("failed task must not advance decision state")
	}
}

func TestSinkFailureDoesNotRollBackTask(t *testing.T) {
	f := newFixture(t, 4, true)
	f.sink.fail = true
	f.submit(t, "h1")
	ctx := context.Background()

	if _, err := f.corr.HandleResult(ctx, report("h1", 0)); !errors.Is(err, ErrSinkDelivery) {
		t.Fatalf("expected ErrSinkDelivery, got %v", err)
	}

	rec, _, _ := f.tasks.GetTask(ctx, "h1")
	if rec.Status != models.TaskStatusSuccess {
		t.Fatalf("task must stay SUCCESS after sink failure, got %s", rec.Status)
	}
}

func TestUnknownHandleRejected(t *testing.T) {
	f := newFixture(t, 4, true)

	if _, err := f.corr.HandleResult(context.Background(), report("missing", 0)); !errors.Is(err, repository.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}
