package scorer

import (
	"math"

	"github.com/CerberHQ/cerber/lib/signal"
)

// EnsembleResult carries the blended behavior score plus the three model
// outputs that produced it, so the audit trail can show its work.
type EnsembleResult struct {
	Score      int
	Confidence int
	Linear     int
	Anomaly    int
	Heuristic  int
}

// linearWeights weight the normalized feature vector components in the
// same order signal.Features.Vector emits them: trajectory length,
// curvature, timing variance, click latency, hover duration, pointer
// velocity, scroll velocity.
var linearWeights = [7]float64{0.20, 0.15, 0.15, 0.15, 0.10, 0.15, 0.10}

const (
	linearBias  = 2.0
	linearScale = 4.0
)

// Ensemble blends three independent reads of the same telemetry: a linear
// model over the normalized feature vector, an anomaly detector that only
// subtracts, and a coarse heuristic. The blend is 50% linear, 30% anomaly,
// 20% heuristic. Confidence falls with disagreement between the three.
//
// A nil sig scores as all-zero features, which the linear model reads as
// maximally bot-like. Callers that want the "no telemetry at all" policy
// score should use Behavior instead; Ensemble is the second opinion for
// telemetry that was present but looks off.
func Ensemble(sig *signal.Behavior) EnsembleResult {
	var f signal.Features
	if sig != nil {
		f = sig.Features()
	}

	linear := linearModel(f)
	anomaly := anomalyModel(f)
	heuristic := heuristicModel(f)

	blended := 0.5*float64(linear) + 0.3*float64(anomaly) + 0.2*float64(heuristic)

	return EnsembleResult{
		Score:      clampScore(int(math.Round(blended))),
		Confidence: confidence(linear, anomaly, heuristic),
		Linear:     linear,
		Anomaly:    anomaly,
		Heuristic:  heuristic,
	}
}

// confidence is 100 minus the variance across the three model outputs,
// clamped. Variance, not its square root: mild disagreement costs little
// and real disagreement zeroes the confidence out.
func confidence(linear, anomaly, heuristic int) int {
	mean := float64(linear+anomaly+heuristic) / 3
	variance := (sq(float64(linear)-mean) + sq(float64(anomaly)-mean) + sq(float64(heuristic)-mean)) / 3

	return clampScore(100 - int(math.Round(variance)))
}

// linearModel runs a fixed logistic regression over the feature vector.
// The weights are hand-tuned, not trained: each normalized feature pushes
// the bot probability down in proportion to how human-typical it is.
func linearModel(f signal.Features) int {
	vec := f.Vector()

	var dot float64
	for i, w := range linearWeights {
		dot += w * vec[i]
	}

	botProb := sigmoid(linearBias - linearScale*dot)

	return clampScore(int(math.Round(100 * (1 - botProb))))
}

// anomalyModel starts from a perfect score and subtracts a penalty per
// physically implausible reading. It never rewards.
func anomalyModel(f signal.Features) int {
	score := 100

	if f.TimingVariance < 1 {
		score -= 30
	}
	if f.ClickLatency < 50 {
		score -= 25
	}
	if f.TrajectoryLen < 2 {
		score -= 35
	}
	if f.PointerVelocity > 5000 {
		score -= 20
	}

	return clampScore(score)
}

// heuristicModel is the coarse fallback read: a handful of broad
// plausibility checks, no normalization.
func heuristicModel(f signal.Features) int {
	score := 50

	if f.TrajectoryLen >= 5 {
		score += 20
	}
	if f.ClickLatency >= 200 {
		score += 15
	}
	if f.HoverDuration > 0 {
		score += 15
	}

	return clampScore(score)
}

func sigmoid(x float64) float64 {
	return 1 / (1 + math.Exp(-x))
}

func sq(x float64) float64 { return x * x }
