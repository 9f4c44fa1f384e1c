package models

// Tier identifies a location capable of running inference, ordered by
// increasing computational capability and latency.
type Tier int

const (
	TierSensor  Tier = 0
	TierGateway Tier = 1
	TierCloud   Tier = 2

	// TierError marks an invalid heuristic state.
	TierError Tier = -1
)

// String returns the tier name used in logs and device commands.
func (t Tier) String() string {
	switch t {
	case TierSensor:
		return "sensor"
	case TierGateway:
		return "gateway"
	case TierCloud:
		return "cloud"
	default:
		return "error"
	}
}

// Valid reports whether t is one of the three serving tiers.
func (t Tier) Valid() bool {
	return t == TierSensor || t == TierGateway || t == TierCloud
}
