// Package config holds the risk policy document: every threshold, weight,
// TTL, and budget the verification engine consults lives here so the risk
// posture can be audited and tuned without code changes.
package config

import (
	"errors"
	"fmt"
	"io"

	"github.com/CerberHQ/cerber"
	"k8s.io/apimachinery/pkg/util/yaml"
)

var (
	ErrNoDeviceRuleName       = errors.New("config.DeviceRule: must set name")
	ErrNoDeviceRuleExpression = errors.New("config.DeviceRule: must set expression")
	ErrUnknownAction          = errors.New("config.DeviceRule: unknown action")
	ErrWeightNeedsDelta       = errors.New("config.DeviceRule: WEIGH action needs a nonzero weight")
	ErrBadFusionWeights       = errors.New("config.Fusion: profile weights must sum to 1.0")
	ErrBadThresholdOrder      = errors.New("config.Fusion: reject threshold must be below accept threshold")
	ErrBadDecoyRate           = errors.New("config.Challenges: decoy rate must be 0 (disabled) or >= 2")
	ErrBadRateBudget          = errors.New("config.RateBudget: max and window must be positive")
	ErrBadSessionWeights      = errors.New("config.Sessions: behavior and device weights must sum to 1.0")
)

// Action is what a matching device rule does to the device trust score.
type Action string

const (
	ActionUnknown Action = ""
	// ActionAllow lifts the device score to at least the allow floor.
	ActionAllow Action = "ALLOW"
	// ActionDeny drops the device score to the deny ceiling.
	ActionDeny Action = "DENY"
	// ActionWeigh adjusts the device score by the rule's weight.
	ActionWeigh Action = "WEIGH"
)

func (a Action) Valid() error {
	switch a {
	case ActionAllow, ActionDeny, ActionWeigh:
		return nil
	default:
		return fmt.Errorf("%w: %q", ErrUnknownAction, a)
	}
}

// DeviceRule is one CEL expression evaluated against the client descriptor
// and network origin during device trust scoring. This is the extension
// point for real fingerprinting signals; the built-in automation keyword
// checks stay in code.
type DeviceRule struct {
	Name       string            `json:"name" yaml:"name"`
	Expression *ExpressionOrList `json:"expression" yaml:"expression"`
	Action     Action            `json:"action" yaml:"action"`
	Weight     int               `json:"weight,omitempty" yaml:"weight,omitempty"`
}

func (d DeviceRule) Valid() error {
	var errs []error

	if d.Name == "" {
		errs = append(errs, ErrNoDeviceRuleName)
	}

	if d.Expression == nil {
		errs = append(errs, ErrNoDeviceRuleExpression)
	} else if err := d.Expression.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := d.Action.Valid(); err != nil {
		errs = append(errs, err)
	}

	if d.Action == ActionWeigh && d.Weight == 0 {
		errs = append(errs, ErrWeightNeedsDelta)
	}

	if len(errs) != 0 {
		return fmt.Errorf("config: device rule %q is not valid: %w", d.Name, errors.Join(errs...))
	}

	return nil
}

// Scoring configures the individual signal scorers.
type Scoring struct {
	// MissingSignalScore is what the behavior scorer returns when no
	// telemetry arrived at all. Deliberately low: absent telemetry is
	// evidence of automation, not missing-data neutrality.
	MissingSignalScore int `json:"missing_signal_score" yaml:"missing_signal_score"`

	// DecoySemanticScore is the fixed semantic score for any nonempty
	// selection on a decoy challenge.
	DecoySemanticScore int `json:"decoy_semantic_score" yaml:"decoy_semantic_score"`

	// TwoFlagCap and ThreeFlagCap cap the behavior score once the attempt
	// has accumulated that many suspicion flags, so one gamed signal can't
	// buy back another discriminative one.
	TwoFlagCap   int `json:"two_flag_cap" yaml:"two_flag_cap"`
	ThreeFlagCap int `json:"three_flag_cap" yaml:"three_flag_cap"`

	// DeviceBase is the starting device trust score before keyword checks
	// and device rules apply.
	DeviceBase int `json:"device_base" yaml:"device_base"`
}

// SuspicionFloors mark attempts for the audit trail. A sub-score under its
// floor, or every sub-score over Perfection at once, sets the suspicious
// flag independent of pass/fail.
type SuspicionFloors struct {
	Behavior   int `json:"behavior" yaml:"behavior"`
	Semantic   int `json:"semantic" yaml:"semantic"`
	Device     int `json:"device" yaml:"device"`
	Perfection int `json:"perfection" yaml:"perfection"`
}

// StandardProfile fuses scores on the explicit challenge path.
type StandardProfile struct {
	Behavior float64 `json:"behavior" yaml:"behavior"`
	Semantic float64 `json:"semantic" yaml:"semantic"`
	Device   float64 `json:"device" yaml:"device"`

	GridPass   int `json:"grid_pass" yaml:"grid_pass"`
	PuzzlePass int `json:"puzzle_pass" yaml:"puzzle_pass"`
}

// LowFrictionProfile fuses scores on the checkbox-only path. Scores under
// RejectBelow fail outright, scores under AcceptAt escalate to a puzzle,
// the rest pass without a visible challenge.
type LowFrictionProfile struct {
	Ensemble float64 `json:"ensemble" yaml:"ensemble"`
	Behavior float64 `json:"behavior" yaml:"behavior"`
	Device   float64 `json:"device" yaml:"device"`

	RejectBelow int `json:"reject_below" yaml:"reject_below"`
	AcceptAt    int `json:"accept_at" yaml:"accept_at"`
}

type Fusion struct {
	Standard    StandardProfile    `json:"standard" yaml:"standard"`
	LowFriction LowFrictionProfile `json:"low_friction" yaml:"low_friction"`
	Suspicion   SuspicionFloors    `json:"suspicion" yaml:"suspicion"`
}

func sumsToOne(weights ...float64) bool {
	var total float64
	for _, w := range weights {
		total += w
	}
	return total > 0.999 && total < 1.001
}

func (f Fusion) Valid() error {
	var errs []error

	if !sumsToOne(f.Standard.Behavior, f.Standard.Semantic, f.Standard.Device) {
		errs = append(errs, fmt.Errorf("%w: standard profile", ErrBadFusionWeights))
	}

	if !sumsToOne(f.LowFriction.Ensemble, f.LowFriction.Behavior, f.LowFriction.Device) {
		errs = append(errs, fmt.Errorf("%w: low-friction profile", ErrBadFusionWeights))
	}

	if f.LowFriction.RejectBelow >= f.LowFriction.AcceptAt {
		errs = append(errs, ErrBadThresholdOrder)
	}

	if len(errs) != 0 {
		return errors.Join(errs...)
	}

	return nil
}

// Challenges configures the challenge orchestrator.
type Challenges struct {
	// DecoyRate marks 1 in N created grid challenges as a decoy with no
	// valid positive answer. 0 disables decoys.
	DecoyRate int `json:"decoy_rate" yaml:"decoy_rate"`

	// GridTTLSeconds and PuzzleTTLSeconds bound how long each challenge
	// tier stays solvable.
	GridTTLSeconds   int `json:"grid_ttl_seconds" yaml:"grid_ttl_seconds"`
	PuzzleTTLSeconds int `json:"puzzle_ttl_seconds" yaml:"puzzle_ttl_seconds"`

	// GridSize is how many candidates an image grid offers; GridCorrect is
	// how many of them come from the prompt category.
	GridSize    int `json:"grid_size" yaml:"grid_size"`
	GridCorrect int `json:"grid_correct" yaml:"grid_correct"`
}

func (c Challenges) Valid() error {
	if c.DecoyRate == 1 || c.DecoyRate < 0 {
		return fmt.Errorf("%w: got %d", ErrBadDecoyRate, c.DecoyRate)
	}

	return nil
}

// RateBudget is the admission budget for one action class.
type RateBudget struct {
	Max      int   `json:"max" yaml:"max"`
	WindowMS int64 `json:"window_ms" yaml:"window_ms"`
}

func (rb RateBudget) Valid() error {
	if rb.Max <= 0 || rb.WindowMS <= 0 {
		return fmt.Errorf("%w: max=%d window_ms=%d", ErrBadRateBudget, rb.Max, rb.WindowMS)
	}

	return nil
}

// Sessions configures the checkbox widget session path.
type Sessions struct {
	TTLSeconds     int     `json:"ttl_seconds" yaml:"ttl_seconds"`
	PassFloor      int     `json:"pass_floor" yaml:"pass_floor"`
	BehaviorWeight float64 `json:"behavior_weight" yaml:"behavior_weight"`
	DeviceWeight   float64 `json:"device_weight" yaml:"device_weight"`
}

func (s Sessions) Valid() error {
	if !sumsToOne(s.BehaviorWeight, s.DeviceWeight) {
		return ErrBadSessionWeights
	}

	return nil
}

// Tokens configures the token authority.
type Tokens struct {
	TTLSeconds int `json:"ttl_seconds" yaml:"ttl_seconds"`

	// BindOrigin restricts verify tokens to the network origin that earned
	// them.
	BindOrigin bool `json:"bind_origin" yaml:"bind_origin"`
}

type Config struct {
	Store       Store                 `json:"store" yaml:"store"`
	DeviceRules []DeviceRule          `json:"device_rules" yaml:"device_rules"`
	Scoring     Scoring               `json:"scoring" yaml:"scoring"`
	Fusion      Fusion                `json:"fusion" yaml:"fusion"`
	Challenges  Challenges            `json:"challenges" yaml:"challenges"`
	Sessions    Sessions              `json:"sessions" yaml:"sessions"`
	Tokens      Tokens                `json:"tokens" yaml:"tokens"`
	RateLimits  map[string]RateBudget `json:"rate_limits" yaml:"rate_limits"`
}

func (c *Config) Valid() error {
	var errs []error

	if err := c.Store.Valid(); err != nil {
		errs = append(errs, err)
	}

	for _, rule := range c.DeviceRules {
		if err := rule.Valid(); err != nil {
			errs = append(errs, err)
		}
	}

	if err := c.Fusion.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Challenges.Valid(); err != nil {
		errs = append(errs, err)
	}

	if err := c.Sessions.Valid(); err != nil {
		errs = append(errs, err)
	}

	for class, budget := range c.RateLimits {
		if err := budget.Valid(); err != nil {
			errs = append(errs, fmt.Errorf("rate limit class %q: %w", class, err))
		}
	}

	if len(errs) != 0 {
		return fmt.Errorf("config is not valid: %w", errors.Join(errs...))
	}

	return nil
}

// Default is the risk posture shipped with the daemon. Every field can be
// overridden by the policy document.
func Default() *Config {
	return &Config{
		Store: Store{Backend: "memory"},
		Scoring: Scoring{
			MissingSignalScore: 10,
			DecoySemanticScore: 15,
			TwoFlagCap:         55,
			ThreeFlagCap:       35,
			DeviceBase:         70,
		},
		Fusion: Fusion{
			Standard: StandardProfile{
				Behavior:   0.5,
				Semantic:   0.4,
				Device:     0.1,
				GridPass:   75,
				PuzzlePass: 70,
			},
			LowFriction: LowFrictionProfile{
				Ensemble:    0.40,
				Behavior:    0.35,
				Device:      0.25,
				RejectBelow: 50,
				AcceptAt:    80,
			},
			Suspicion: SuspicionFloors{
				Behavior:   30,
				Semantic:   30,
				Device:     40,
				Perfection: 95,
			},
		},
		Challenges: Challenges{
			DecoyRate:        cerber.DefaultDecoyRate,
			GridTTLSeconds:   int(cerber.DefaultChallengeTTL.Seconds()),
			PuzzleTTLSeconds: int(cerber.EscalatedChallengeTTL.Seconds()),
			GridSize:         9,
			GridCorrect:      4,
		},
		Sessions: Sessions{
			TTLSeconds:     int(cerber.SessionTTL.Seconds()),
			PassFloor:      60,
			BehaviorWeight: 0.6,
			DeviceWeight:   0.4,
		},
		Tokens: Tokens{
			TTLSeconds: int(cerber.VerifyTokenTTL.Seconds()),
			BindOrigin: true,
		},
		RateLimits: map[string]RateBudget{
			"start":  {Max: 10, WindowMS: 60_000},
			"solve":  {Max: 5, WindowMS: 60_000},
			"verify": {Max: 10, WindowMS: 60_000},
			"redeem": {Max: 30, WindowMS: 60_000},
		},
	}
}

// Load reads a YAML (or JSON) policy document, filling anything the
// document leaves unset from Default.
func Load(fin io.Reader, fname string) (*Config, error) {
	result := Default()

	if err := yaml.NewYAMLOrJSONDecoder(fin, 1024).Decode(result); err != nil {
		return nil, fmt.Errorf("can't parse policy config %s: %w", fname, err)
	}

	if err := result.Valid(); err != nil {
		return nil, fmt.Errorf("errors validating policy config %s: %w", fname, err)
	}

	return result, nil
}
