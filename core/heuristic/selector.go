package heuristic

import (
	"context"
	"errors"
	"fmt"
	"log"

	"predictive-node/core/models"
	"predictive-node/core/state"
)

// ErrStateCorrupt indicates the warm-up counter fell behind the history
// length, which can only happen through store corruption or logic drift.
// The reading still receives a gateway verdict; the condition is surfaced
// for operator attention, never silently corrected.
var ErrStateCorrupt = errors.New("decision state corrupt: counter behind history length")

// DepthOracle reports the current backlog of the shared prediction queue.
type DepthOracle interface {
	Depth(ctx context.Context) (int, error)
}

// BrokerDepth adapts a broker queue into a DepthOracle.
type BrokerDepth struct {
	broker interface {
		Depth(ctx context.Context, queue string) (int, error)
	}
	queue string
}

// NewBrokerDepth creates a depth oracle over the named broker queue.
func NewBrokerDepth(b interface {
	Depth(ctx context.Context, queue string) (int, error)
}, queue string) *BrokerDepth {
	return &BrokerDepth{broker: b, queue: queue}
}

func (b *BrokerDepth) Depth(ctx context.Context) (int, error) {
	return b.broker.Depth(ctx, b.queue)
}

// Config holds the heuristic constants.
type Config struct {
	HistoryLength     int // m
	MaxQueueSize      int // psi_q
	NormalThreshold   int // phi_g
	AbnormalThreshold int // psi_g
	AbnormalLabels    []int
	ServingTier       models.Tier
}

// Decision is one heuristic evaluation: the verdict plus the observations
// it was derived from.
type Decision struct {
	Verdict       models.Tier
	Counter       int  // u: readings since last reset
	AbnormalCount int  // sigma: abnormal flags retained in the window
	QueueDepth    int  // q: backlog snapshot
	Reset         bool // state was cleared because serving moves off this node
	Degraded      bool // an I/O failure forced the conservative fallback
}

// Selector decides, per completed reading, which tier should execute the
// device's next inference.
type Selector struct {
	store    *state.DecisionStore
	oracle   DepthOracle
	cfg      Config
	abnormal map[int]struct{}
}

// NewSelector creates a tier selector. cfg is assumed validated at startup.
func NewSelector(store *state.DecisionStore, oracle DepthOracle, cfg Config) *Selector {
	abnormal := make(map[int]struct{}, len(cfg.AbnormalLabels))
	for _, label := range cfg.AbnormalLabels {
		abnormal[label] = struct{}{}
	}
	return &Selector{store: store, oracle: oracle, cfg: cfg, abnormal: abnormal}
}

// Decide runs one heuristic evaluation for the device. Transient store or
// oracle failures degrade to a gateway verdict without surfacing an error;
// inference can always proceed here. The only returned error is
// ErrStateCorrupt, and even then the decision carries a usable gateway
// verdict.
func (s *Selector) Decide(ctx context.Context, key models.DeviceKey, lowBattery bool, label int) (Decision, error) {
	_, isAbnormal := s.abnormal[label]

	u, err := s.store.IncrementCounter(ctx, key)
	if err != nil {
		log.Printf("Heuristic: counter update failed for %s, holding at gateway: %v", key, err)
		return Decision{Verdict: models.TierGateway, Degraded: true}, nil
	}

	history, err := s.store.AppendHistory(ctx, key, isAbnormal)
	if err != nil {
		log.Printf("Heuristic: history update failed for %s, holding at gateway: %v", key, err)
		return Decision{Verdict: models.TierGateway, Counter: u, Degraded: true}, nil
	}

	if u < len(history) {
		d := Decision{Verdict: models.TierGateway, Counter: u, AbnormalCount: sum(history)}
		return d, fmt.Errorf("%w: counter=%d history=%d device=%s", ErrStateCorrupt, u, len(history), key)
	}

	sigma := sum(history)

	q, err := s.oracle.Depth(ctx)
	if err != nil {
		log.Printf("Heuristic: queue depth unavailable for %s, holding at gateway: %v", key, err)
		return Decision{Verdict: models.TierGateway, Counter: u, AbnormalCount: sigma, Degraded: true}, nil
	}

	d := Decision{
		Verdict:       s.verdict(u, sigma, q, lowBattery),
		Counter:       u,
		AbnormalCount: sigma,
		QueueDepth:    q,
	}

	if d.Verdict != s.cfg.ServingTier {
		if err := s.store.Reset(ctx, key); err != nil {
			log.Printf("Heuristic: state reset failed for %s: %v", key, err)
			d.Degraded = true
		} else {
			d.Reset = true
		}
	}

	return d, nil
}

// verdict is the decision table, evaluated top to bottom, first match wins.
func (s *Selector) verdict(u, sigma, q int, lowBattery bool) models.Tier {
	m := s.cfg.HistoryLength
	psiQ := s.cfg.MaxQueueSize
	phiG := s.cfg.NormalThreshold
	psiG := s.cfg.AbnormalThreshold

	switch {
	case q >= psiQ:
		// Backlog saturation overrides everything; shed load upward.
		return models.TierCloud
	case u < m:
		// Not enough history to trust a downward decision.
		return models.TierGateway
	case sigma < phiG:
		if lowBattery {
			return models.TierGateway
		}
		return models.TierSensor
	case sigma < psiG:
		// Mixed signal, hold here.
		return models.TierGateway
	default:
		// Persistently abnormal, escalate for heavier processing.
		return models.TierCloud
	}
}

func sum(history []bool) int {
	n := 0
	for _, abnormal := range history {
		if abnormal {
			n++
		}
	}
	return n
}
