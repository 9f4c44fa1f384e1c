package heuristic

import (
	"context"
	"errors"
	"testing"

	"predictive-node/core/models"
	"predictive-node/core/state"
)

type fixedDepth struct {
	depth int
	err   error
}

func (f *fixedDepth) Depth(context.Context) (int, error) {
	return f.depth, f.err
}

type faultyKV struct {
	*state.MemoryKV
	failGet bool
	failSet bool
}

func (f *faultyKV) Get(ctx context.Context, key string) ([]byte, bool, error) {
	if f.failGet {
		return nil, false, errors.New("kv unavailable")
	}
	return f.MemoryKV.Get(ctx, key)
}

func (f *faultyKV) Set(ctx context.Context, key string, value []byte) error {
	if f.failSet {
		return errors.New("kv unavailable")
	}
	return f.MemoryKV.Set(ctx, key, value)
}

func testConfig() Config {
	return Config{
		HistoryLength:     4,
		MaxQueueSize:      10,
		NormalThreshold:   1,
		AbnormalThreshold: 3,
		AbnormalLabels:    []int{2, 3},
		ServingTier:       models.TierGateway,
	}
}

func newTestSelector(cfg Config, depth *fixedDepth) (*Selector, *state.DecisionStore) {
	store := state.NewDecisionStore(state.NewMemoryKV(), cfg.HistoryLength)
	return NewSelector(store, depth, cfg), store
}

var device = models.DeviceKey{GatewayName: "gw-1", SensorName: "vib-2"}

const (
	normalLabel   = 0
	abnormalLabel = 2
)

func TestWarmupThenSensorHandoff(t *testing.T) {
	// Four normal readings on a fresh device: three warm-up gateway
	// verdicts, then the window is trusted and the device self-serves.
	s, _ := newTestSelector(testConfig(), &fixedDepth{depth: 0})
	ctx := context.Background()

	want := []models.Tier{models.TierGateway, models.TierGateway, models.TierGateway, models.TierSensor}
	for i, expected := range want {
		d, err := s.Decide(ctx, device, false, normalLabel)
		if err != nil {
			t.Fatalf("reading %d: %v", i+1, err)
		}
		if d.Verdict != expected {
			t.Fatalf("reading %d: expected %s, got %s", i+1, expected, d.Verdict)
		}
	}
}

func TestWarmupRestartsAfterHandoff(t *testing.T) {
	s, _ := newTestSelector(testConfig(), &fixedDepth{depth: 0})
	ctx := context.Background()

	for i := 0; i < 4; i++ {
		if _, err := s.Decide(ctx, device, false, normalLabel); err != nil {
			t.Fatalf("reading %d: %v", i+1, err)
		}
	}

	// The sensor verdict reset the state; a fifth reading is back in
	// warm-up regardless of the battery flag.
	d, err := s.Decide(ctx, device, true, normalLabel)
	if err != nil {
		t.Fatalf("fifth reading: %v", err)
	}
	if d.Verdict != models.TierGateway {
		t.Fatalf("expected gateway during restarted warm-up, got %s", d.Verdict)
	}
	if d.Counter != 1 {
		t.Fatalf("expected counter restarted at 1, got %d", d.Counter)
	}
}

func TestSaturationDominatesEverything(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestSelector(cfg, &fixedDepth{depth: cfg.MaxQueueSize})
	ctx := context.Background()

	// Fresh device, empty history, low battery: saturation still wins.
	d, err := s.Decide(ctx, device, true, abnormalLabel)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Verdict != models.TierCloud {
		t.Fatalf("expected cloud under saturation, got %s", d.Verdict)
	}
}

func TestWarmupDominatesSigma(t *testing.T) {
	s, _ := newTestSelector(testConfig(), &fixedDepth{depth: 0})
	ctx := context.Background()

	// Abnormal readings during warm-up still hold at the gateway.
	for i := 0; i < 3; i++ {
		d, err := s.Decide(ctx, device, false, abnormalLabel)
		if err != nil {
			t.Fatalf("reading %d: %v", i+1, err)
		}
		if d.Verdict != models.TierGateway {
			t.Fatalf("reading %d: expected gateway during warm-up, got %s", i+1, d.Verdict)
		}
	}
}

func TestAbnormalBandHoldsAtGateway(t *testing.T) {
	s, _ := newTestSelector(testConfig(), &fixedDepth{depth: 0})
	ctx := context.Background()

	// Window fills with exactly phi_g=1 abnormal flags: mixed signal.
	labels := []int{abnormalLabel, normalLabel, normalLabel, normalLabel}
	var d Decision
	var err error
	for i, label := range labels {
		d, err = s.Decide(ctx, device, false, label)
		if err != nil {
			t.Fatalf("reading %d: %v", i+1, err)
		}
	}
	if d.AbnormalCount != 1 {
		t.Fatalf("expected sigma 1, got %d", d.AbnormalCount)
	}
	if d.Verdict != models.TierGateway {
		t.Fatalf("expected gateway in the mixed band, got %s", d.Verdict)
	}
	if d.Reset {
		t.Fatal("verdict matching the serving tier must not reset state")
	}
}

func TestPersistentlyAbnormalEscalatesToCloud(t *testing.T) {
	s, _ := newTestSelector(testConfig(), &fixedDepth{depth: 0})
	ctx := context.Background()

	var d Decision
	var err error
	for i := 0; i < 4; i++ {
		d, err = s.Decide(ctx, device, false, abnormalLabel)
		if err != nil {
			t.Fatalf("reading %d: %v", i+1, err)
		}
	}
	if d.AbnormalCount < 3 {
		t.Fatalf("expected sigma >= psi_g, got %d", d.AbnormalCount)
	}
	if d.Verdict != models.TierCloud {
		t.Fatalf("expected cloud escalation, got %s", d.Verdict)
	}
	if !d.Reset {
		t.Fatal("handoff to cloud must reset decision state")
	}
}

func TestLowBatteryHoldsSensorHandoff(t *testing.T) {
	s, _ := newTestSelector(testConfig(), &fixedDepth{depth: 0})
	ctx := context.Background()

	var d Decision
	var err error
	for i := 0; i < 4; i++ {
		d, err = s.Decide(ctx, device, true, normalLabel)
		if err != nil {
			t.Fatalf("reading %d: %v", i+1, err)
		}
	}
	if d.Verdict != models.TierGateway {
		t.Fatalf("low battery must hold at gateway, got %s", d.Verdict)
	}
}

func TestMonotoneConservatismInSigma(t *testing.T) {
	// For fixed q < psi_q and u >= m, the verdict as a function of sigma
	// never skips gateway between sensor and cloud.
	cfg := testConfig()
	s := NewSelector(nil, nil, cfg)

	rank := func(t models.Tier) int { return int(t) }
	prev := -1
	for sigma := 0; sigma <= cfg.HistoryLength; sigma++ {
		v := s.verdict(cfg.HistoryLength, sigma, 0, false)
		if rank(v) < prev {
			t.Fatalf("verdict regressed at sigma=%d: %s", sigma, v)
		}
		if rank(v)-prev > 1 && prev >= 0 {
			t.Fatalf("verdict skipped a tier at sigma=%d", sigma)
		}
		prev = rank(v)
	}
}

func TestZeroHistoryLengthDecidesImmediately(t *testing.T) {
	cfg := testConfig()
	cfg.HistoryLength = 0
	cfg.NormalThreshold = 0
	cfg.AbnormalThreshold = 0
	s, _ := newTestSelector(cfg, &fixedDepth{depth: 0})

	// m=0: no warm-up, empty window, sigma=0 >= psi_g=0 -> cloud.
	d, err := s.Decide(context.Background(), device, false, normalLabel)
	if err != nil {
		t.Fatalf("decide: %v", err)
	}
	if d.Verdict != models.TierCloud {
		t.Fatalf("expected immediate decision from empty window, got %s", d.Verdict)
	}
}

func TestStoreFailureFallsBackToGateway(t *testing.T) {
	cfg := testConfig()
	kv := &faultyKV{MemoryKV: state.NewMemoryKV(), failGet: true}
	store := state.NewDecisionStore(kv, cfg.HistoryLength)
	s := NewSelector(store, &fixedDepth{depth: 0}, cfg)

	d, err := s.Decide(context.Background(), device, false, normalLabel)
	if err != nil {
		t.Fatalf("transient store failure must not surface an error, got %v", err)
	}
	if d.Verdict != models.TierGateway || !d.Degraded {
		t.Fatalf("expected degraded gateway verdict, got %+v", d)
	}
}

func TestDepthFailureFallsBackToGateway(t *testing.T) {
	cfg := testConfig()
	s, _ := newTestSelector(cfg, &fixedDepth{err: errors.New("broker unreachable")})

	d, err := s.Decide(context.Background(), device, false, normalLabel)
	if err != nil {
		t.Fatalf("oracle failure must not surface an error, got %v", err)
	}
	if d.Verdict != models.TierGateway || !d.Degraded {
		t.Fatalf("expected degraded gateway verdict, got %+v", d)
	}
}

func TestCorruptStateIsSurfacedNotHealed(t *testing.T) {
	cfg := testConfig()
	kv := state.NewMemoryKV()
	store := state.NewDecisionStore(kv, cfg.HistoryLength)
	s := NewSelector(store, &fixedDepth{depth: 0}, cfg)
	ctx := context.Background()

	// Seed a history longer than the counter can account for.
	seed := []byte("[true,true,true]")
	if err := kv.Set(ctx, "history:gw-1:vib-2", seed); err != nil {
		t.Fatalf("seed: %v", err)
	}

	d, err := s.Decide(ctx, device, false, normalLabel)
	if !errors.Is(err, ErrStateCorrupt) {
		t.Fatalf("expected ErrStateCorrupt, got %v", err)
	}
	if d.Verdict != models.TierGateway {
		t.Fatalf("corrupt state must still yield a conservative gateway verdict, got %s", d.Verdict)
	}
}
