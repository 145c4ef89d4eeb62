// Package policy turns the risk policy document into compiled, validated
// runtime state: device rules become CEL programs, weights and budgets are
// sanity checked, and everything the engine consults at request time hangs
// off one ParsedConfig.
package policy

import (
	"errors"
	"fmt"
	"io"

	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RuleApplications = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cerber_device_rule_hits",
		Help: "The number of times each device rule has matched",
	}, []string{"rule", "action"})
)

type ParsedConfig struct {
	orig *config.Config

	DeviceRules []*DeviceRule
	Scoring     config.Scoring
	Fusion      config.Fusion
	Challenges  config.Challenges
	Sessions    config.Sessions
	Tokens      config.Tokens
	RateLimits  map[string]config.RateBudget
	Store       config.Store
}

func NewParsedConfig(orig *config.Config) *ParsedConfig {
	return &ParsedConfig{
		orig:       orig,
		Scoring:    orig.Scoring,
		Fusion:     orig.Fusion,
		Challenges: orig.Challenges,
		Sessions:   orig.Sessions,
		Tokens:     orig.Tokens,
		RateLimits: orig.RateLimits,
		Store:      orig.Store,
	}
}

func ParseConfig(fin io.Reader, fname string) (*ParsedConfig, error) {
	c, err := config.Load(fin, fname)
	if err != nil {
		return nil, err
	}

	var validationErrs []error

	result := NewParsedConfig(c)

	for _, rule := range c.DeviceRules {
		parsed, err := NewDeviceRule(rule)
		if err != nil {
			validationErrs = append(validationErrs, fmt.Errorf("while processing device rule %s: %w", rule.Name, err))
			continue
		}

		result.DeviceRules = append(result.DeviceRules, parsed)
	}

	if len(validationErrs) > 0 {
		return nil, fmt.Errorf("errors validating policy config %s: %w", fname, errors.Join(validationErrs...))
	}

	return result, nil
}
