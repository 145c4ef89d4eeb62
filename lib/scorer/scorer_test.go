package scorer

import (
	"math"
	"slices"
	"testing"

	"github.com/CerberHQ/cerber/lib/policy"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/signal"
)

func jitterTrajectory(n int) []signal.Sample {
	result := make([]signal.Sample, n)
	for i := range result {
		jitter := float64(i%3) * 2.5
		result[i] = signal.Sample{
			T: float64(i)*17 + jitter,
			X: float64(i)*10 + jitter,
			Y: float64(i)*4 - jitter,
		}
	}
	return result
}

func lineTrajectory(n int) []signal.Sample {
	result := make([]signal.Sample, n)
	for i := range result {
		result[i] = signal.Sample{T: float64(i) * 10, X: float64(i) * 5, Y: float64(i) * 5}
	}
	return result
}

func humanSignal() *signal.Behavior {
	return &signal.Behavior{
		Version:         signal.VersionStructured,
		Trajectory:      jitterTrajectory(20),
		ClickLatency:    800,
		HoverDuration:   400,
		PointerVelocity: 300,
		ScrollVelocity:  20,
	}
}

func scriptedSignal() *signal.Behavior {
	return &signal.Behavior{
		Version:      signal.VersionStructured,
		Trajectory:   lineTrajectory(20),
		ClickLatency: 10,
	}
}

func TestBehavior(t *testing.T) {
	scoring := config.Default().Scoring

	t.Run("no telemetry", func(t *testing.T) {
		result := Behavior(nil, scoring)

		if result.Score != scoring.MissingSignalScore {
			t.Errorf("want %d, got %d", scoring.MissingSignalScore, result.Score)
		}
		if !slices.Contains(result.Flags, "no-telemetry") {
			t.Errorf("missing no-telemetry flag: %v", result.Flags)
		}
	})

	t.Run("human-plausible telemetry", func(t *testing.T) {
		result := Behavior(humanSignal(), scoring)

		if result.Score != 100 {
			t.Errorf("want 100, got %d", result.Score)
		}
		if len(result.Flags) != 0 {
			t.Errorf("unexpected flags: %v", result.Flags)
		}
	})

	t.Run("scripted straight line", func(t *testing.T) {
		result := Behavior(scriptedSignal(), scoring)

		if result.Score > scoring.ThreeFlagCap {
			t.Errorf("scripted motion escaped the three-flag cap: score %d, flags %v", result.Score, result.Flags)
		}
		if len(result.Flags) < 3 {
			t.Errorf("want at least 3 flags, got %v", result.Flags)
		}
		if !slices.Contains(result.Flags, "straight-line-motion") {
			t.Errorf("missing straight-line-motion flag: %v", result.Flags)
		}
	})

	t.Run("empty trajectory", func(t *testing.T) {
		sig := humanSignal()
		sig.Trajectory = nil

		result := Behavior(sig, scoring)

		if result.Score > scoring.ThreeFlagCap {
			t.Errorf("missing trajectory escaped the three-flag cap: score %d", result.Score)
		}
		if !slices.Contains(result.Flags, "no-trajectory") {
			t.Errorf("missing no-trajectory flag: %v", result.Flags)
		}
	})

	t.Run("two flags cap the score", func(t *testing.T) {
		sig := humanSignal()
		sig.ClickLatency = 10
		sig.HoverDuration = 0

		result := Behavior(sig, scoring)

		if len(result.Flags) != 2 {
			t.Fatalf("want exactly 2 flags, got %v", result.Flags)
		}
		if result.Score != scoring.TwoFlagCap {
			t.Errorf("want %d, got %d", scoring.TwoFlagCap, result.Score)
		}
	})
}

func TestSemantic(t *testing.T) {
	scoring := config.Default().Scoring

	for _, tt := range []struct {
		name     string
		correct  []int
		selected []int
		decoy    bool
		want     int
	}{
		{name: "exact match", correct: []int{1, 3, 5}, selected: []int{1, 3, 5}, want: 100},
		{name: "partial overlap", correct: []int{1, 3, 5}, selected: []int{1, 2}, want: 25},
		{name: "nothing selected", correct: []int{1, 3, 5}, selected: nil, want: 0},
		{name: "full miss", correct: []int{1, 3, 5}, selected: []int{2, 4}, want: 0},
		{name: "order does not matter", correct: []int{5, 1, 3}, selected: []int{3, 5, 1}, want: 100},
		{name: "repeated correct index counts once", correct: []int{1, 3, 5}, selected: []int{1, 1, 1}, want: 33},
		{name: "repeated wrong index counts once", correct: []int{1, 3, 5}, selected: []int{7, 7}, want: 0},
		{name: "long repeat stays in range", correct: []int{1, 3, 5}, selected: []int{1, 1, 1, 1, 1, 1, 1, 1, 1}, want: 33},
		{name: "decoy with selection", correct: nil, selected: []int{0}, decoy: true, want: scoring.DecoySemanticScore},
		{name: "decoy left empty", correct: nil, selected: nil, decoy: true, want: 100},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := Semantic(tt.correct, tt.selected, tt.decoy, scoring); got != tt.want {
				t.Errorf("want %d, got %d", tt.want, got)
			}
		})
	}
}

func TestPuzzleAccuracy(t *testing.T) {
	for _, tt := range []struct {
		reported float64
		want     int
	}{
		{reported: 87.4, want: 87},
		{reported: 87.5, want: 88},
		{reported: -5, want: 0},
		{reported: 150, want: 100},
		{reported: math.NaN(), want: 0},
	} {
		if got := PuzzleAccuracy(tt.reported); got != tt.want {
			t.Errorf("PuzzleAccuracy(%v): want %d, got %d", tt.reported, tt.want, got)
		}
	}
}

const browserDescriptor = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/122.0.0.0 Safari/537.36"
const headlessDescriptor = "Mozilla/5.0 (X11; Linux x86_64) HeadlessChrome/122.0.0.0 Safari/537.36"

func TestDeviceTrust(t *testing.T) {
	scoring := config.Default().Scoring

	t.Run("mainstream browser", func(t *testing.T) {
		result := DeviceTrust(t.Context(), browserDescriptor, "198.51.100.7", scoring, nil)

		if result.Score != scoring.DeviceBase+10 {
			t.Errorf("want %d, got %d", scoring.DeviceBase+10, result.Score)
		}
		if len(result.Flags) != 0 {
			t.Errorf("unexpected flags: %v", result.Flags)
		}
	})

	t.Run("empty descriptor", func(t *testing.T) {
		result := DeviceTrust(t.Context(), "", "198.51.100.7", scoring, nil)

		if result.Score != scoring.DeviceBase-30 {
			t.Errorf("want %d, got %d", scoring.DeviceBase-30, result.Score)
		}
		if !slices.Contains(result.Flags, "no-descriptor") {
			t.Errorf("missing no-descriptor flag: %v", result.Flags)
		}
	})

	t.Run("automation signature", func(t *testing.T) {
		result := DeviceTrust(t.Context(), headlessDescriptor, "198.51.100.7", scoring, nil)

		if !slices.Contains(result.Flags, "automation-signature") {
			t.Errorf("missing automation-signature flag: %v", result.Flags)
		}
		if result.Score >= scoring.DeviceBase {
			t.Errorf("automation signature did not lower the score: %d", result.Score)
		}
	})
}

func mustRule(t *testing.T, cfg config.DeviceRule) *policy.DeviceRule {
	t.Helper()

	rule, err := policy.NewDeviceRule(cfg)
	if err != nil {
		t.Fatal(err)
	}
	return rule
}

func TestDeviceTrustRules(t *testing.T) {
	scoring := config.Default().Scoring

	t.Run("deny pins the score", func(t *testing.T) {
		rule := mustRule(t, config.DeviceRule{
			Name:       "headless-browsers",
			Action:     config.ActionDeny,
			Expression: &config.ExpressionOrList{Expression: `userAgent.contains("Headless")`},
		})

		result := DeviceTrust(t.Context(), headlessDescriptor, "198.51.100.7", scoring, []*policy.DeviceRule{rule})

		if result.Score > 5 {
			t.Errorf("denied descriptor scored %d", result.Score)
		}
		if !slices.Contains(result.Flags, "device-rule/headless-browsers") {
			t.Errorf("missing rule flag: %v", result.Flags)
		}
	})

	t.Run("allow lifts the score", func(t *testing.T) {
		rule := mustRule(t, config.DeviceRule{
			Name:       "trusted-monitor",
			Action:     config.ActionAllow,
			Expression: &config.ExpressionOrList{Expression: `origin == "203.0.113.1"`},
		})

		result := DeviceTrust(t.Context(), browserDescriptor, "203.0.113.1", scoring, []*policy.DeviceRule{rule})

		if result.Score < 90 {
			t.Errorf("allowed descriptor scored %d", result.Score)
		}
	})

	t.Run("weigh shifts the score", func(t *testing.T) {
		rule := mustRule(t, config.DeviceRule{
			Name:       "http-libraries",
			Action:     config.ActionWeigh,
			Weight:     -20,
			Expression: &config.ExpressionOrList{Expression: `userAgent.contains("Chrome")`},
		})

		result := DeviceTrust(t.Context(), browserDescriptor, "198.51.100.7", scoring, []*policy.DeviceRule{rule})

		if result.Score != scoring.DeviceBase+10-20 {
			t.Errorf("want %d, got %d", scoring.DeviceBase+10-20, result.Score)
		}
	})

	t.Run("non-matching rule does nothing", func(t *testing.T) {
		rule := mustRule(t, config.DeviceRule{
			Name:       "headless-browsers",
			Action:     config.ActionDeny,
			Expression: &config.ExpressionOrList{Expression: `userAgent.contains("Headless")`},
		})

		result := DeviceTrust(t.Context(), browserDescriptor, "198.51.100.7", scoring, []*policy.DeviceRule{rule})

		if result.Score != scoring.DeviceBase+10 {
			t.Errorf("want %d, got %d", scoring.DeviceBase+10, result.Score)
		}
	})
}

func TestEnsemble(t *testing.T) {
	human := Ensemble(humanSignal())
	scripted := Ensemble(scriptedSignal())
	missing := Ensemble(nil)

	if human.Score <= scripted.Score {
		t.Errorf("human telemetry (%d) should outscore scripted (%d)", human.Score, scripted.Score)
	}
	if scripted.Score <= missing.Score {
		t.Errorf("scripted telemetry (%d) should outscore missing (%d)", scripted.Score, missing.Score)
	}
	if missing.Score > 30 {
		t.Errorf("missing telemetry scored %d", missing.Score)
	}
	if human.Score < 50 {
		t.Errorf("human telemetry scored %d", human.Score)
	}

	for _, result := range []EnsembleResult{human, scripted, missing} {
		if result.Confidence < 0 || result.Confidence > 100 {
			t.Errorf("confidence out of range: %+v", result)
		}
		for _, sub := range []int{result.Linear, result.Anomaly, result.Heuristic} {
			if sub < 0 || sub > 100 {
				t.Errorf("sub-score out of range: %+v", result)
			}
		}
	}
}

func TestConfidence(t *testing.T) {
	for _, tt := range []struct {
		name                       string
		linear, anomaly, heuristic int
		want                       int
	}{
		{name: "unanimous models", linear: 70, anomaly: 70, heuristic: 70, want: 100},
		// variance of {75, 70, 65} is 16.67, rounded to 17
		{name: "mild disagreement", linear: 75, anomaly: 70, heuristic: 65, want: 83},
		// variance of {80, 100, 50} is 422, clamped to zero confidence
		{name: "strong disagreement", linear: 80, anomaly: 100, heuristic: 50, want: 0},
	} {
		t.Run(tt.name, func(t *testing.T) {
			if got := confidence(tt.linear, tt.anomaly, tt.heuristic); got != tt.want {
				t.Errorf("want %d, got %d", tt.want, got)
			}
		})
	}
}
