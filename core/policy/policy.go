package policy

import (
	"fmt"
	"os"

	"predictive-node/config"

	"gopkg.in/yaml.v3"
)

// Policy is an optional YAML override for the placement heuristic. Fields
// left unset keep the environment-configured value.
type Policy struct {
	HistoryLength     *int  `yaml:"history_length"`
	MaxQueueSize      *int  `yaml:"max_queue_size"`
	NormalThreshold   *int  `yaml:"normal_threshold"`
	AbnormalThreshold *int  `yaml:"abnormal_threshold"`
	AbnormalLabels    []int `yaml:"abnormal_labels"`
	Adaptive          *bool `yaml:"adaptive"`
}

// LoadFile reads and parses a placement policy file.
func LoadFile(path string) (*Policy, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read placement policy: %w", err)
	}
	return Parse(data)
}

// Parse parses a YAML placement policy.
func Parse(data []byte) (*Policy, error) {
	var p Policy
	if err := yaml.Unmarshal(data, &p); err != nil {
		return nil, fmt.Errorf("parse placement policy: %w", err)
	}
	return &p, nil
}

// Apply overlays the policy onto cfg. The caller validates cfg afterwards;
// a policy that inverts the thresholds still refuses startup.
func (p *Policy) Apply(cfg *config.Config) {
	if p.HistoryLength != nil {
		cfg.HistoryLength = *p.HistoryLength
	}
	if p.MaxQueueSize != nil {
		cfg.MaxQueueSize = *p.MaxQueueSize
	}
	if p.NormalThreshold != nil {
		cfg.NormalThreshold = *p.NormalThreshold
	}
	if p.AbnormalThreshold != nil {
		cfg.AbnormalThreshold = *p.AbnormalThreshold
	}
	if len(p.AbnormalLabels) > 0 {
		cfg.AbnormalLabels = p.AbnormalLabels
	}
	if p.Adaptive != nil {
		cfg.AdaptiveInference = *p.Adaptive
	}
}
