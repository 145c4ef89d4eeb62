// Package fusion blends sub-scores into a final score and verdict. Like
// the scorers it is pure arithmetic: policy weights in, verdict out, so
// the same inputs always produce the same outcome.
package fusion

import (
	"math"

	"github.com/CerberHQ/cerber/lib/policy/config"
)

// Verdict is the engine's decision for one verification attempt.
type Verdict string

const (
	// VerdictAccept passes the attempt and mints a verify token.
	VerdictAccept Verdict = "accept"
	// VerdictEscalate demands a harder challenge before deciding.
	VerdictEscalate Verdict = "escalate"
	// VerdictReject fails the attempt outright.
	VerdictReject Verdict = "reject"
)

// Inputs are the sub-scores available to a fusion profile. Not every
// profile reads every field.
type Inputs struct {
	Behavior int
	Semantic int
	Device   int
	Ensemble int
}

// Outcome is the fused result. Suspicious is an audit marker, not part of
// the verdict: a suspicious attempt can still pass.
type Outcome struct {
	Score      int
	Verdict    Verdict
	Suspicious bool
}

// Standard fuses the explicit-challenge sub-scores. passThreshold comes
// from the profile for the challenge mode that was solved (grid or
// puzzle); fusion itself does not know which mode ran.
func Standard(in Inputs, cfg config.Fusion, passThreshold int) Outcome {
	p := cfg.Standard

	score := blend(
		weighted{float64(in.Behavior), p.Behavior},
		weighted{float64(in.Semantic), p.Semantic},
		weighted{float64(in.Device), p.Device},
	)

	verdict := VerdictReject
	if score >= passThreshold {
		verdict = VerdictAccept
	}

	return Outcome{
		Score:      score,
		Verdict:    verdict,
		Suspicious: suspicious(cfg.Suspicion, floorCheck{in.Behavior, cfg.Suspicion.Behavior}, floorCheck{in.Semantic, cfg.Suspicion.Semantic}, floorCheck{in.Device, cfg.Suspicion.Device}),
	}
}

// LowFriction fuses the checkbox-path sub-scores. No semantic score
// exists on this path; the ensemble's second opinion takes its place.
// Scores under RejectBelow fail, scores under AcceptAt escalate to a
// visible challenge, the rest pass silently.
func LowFriction(in Inputs, cfg config.Fusion) Outcome {
	p := cfg.LowFriction

	score := blend(
		weighted{float64(in.Ensemble), p.Ensemble},
		weighted{float64(in.Behavior), p.Behavior},
		weighted{float64(in.Device), p.Device},
	)

	var verdict Verdict
	switch {
	case score < p.RejectBelow:
		verdict = VerdictReject
	case score < p.AcceptAt:
		verdict = VerdictEscalate
	default:
		verdict = VerdictAccept
	}

	return Outcome{
		Score:      score,
		Verdict:    verdict,
		Suspicious: suspicious(cfg.Suspicion, floorCheck{in.Behavior, cfg.Suspicion.Behavior}, floorCheck{in.Device, cfg.Suspicion.Device}, floorCheck{in.Ensemble, cfg.Suspicion.Behavior}),
	}
}

type weighted struct {
	score  float64
	weight float64
}

func blend(parts ...weighted) int {
	var total float64
	for _, part := range parts {
		total += part.score * part.weight
	}

	score := int(math.Round(total))
	if score < 0 {
		score = 0
	}
	if score > 100 {
		score = 100
	}
	return score
}

type floorCheck struct {
	score int
	floor int
}

// suspicious marks an attempt when any sub-score sits under its floor, or
// when every sub-score clears the perfection bar at once. Uniformly
// perfect signals are a replay signature, not a very good human.
func suspicious(floors config.SuspicionFloors, checks ...floorCheck) bool {
	allPerfect := true
	for _, c := range checks {
		if c.score < c.floor {
			return true
		}
		if c.score <= floors.Perfection {
			allPerfect = false
		}
	}

	return allPerfect
}
