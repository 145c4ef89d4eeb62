package scorer

import (
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/signal"
)

// Behavior scores pointer telemetry. Base 50, independent additive
// rewards for human-plausible ranges (capped at 100), penalties for
// scripted-motion signatures, then a hard cap once enough suspicion flags
// accumulate.
//
// A nil sig means the client sent no telemetry at all. That returns the
// configured low score, not a neutral 50: absent telemetry is itself
// evidence of automation.
func Behavior(sig *signal.Behavior, cfg config.Scoring) Result {
	if sig == nil {
		return Result{
			Score: cfg.MissingSignalScore,
			Flags: []string{"no-telemetry"},
		}
	}

	f := sig.Features()

	score := 50
	var reward, penalty int
	var flags []string

	flag := func(name string) { flags = append(flags, name) }

	switch {
	case f.TrajectoryLen >= 5 && f.TrajectoryLen <= 50:
		reward += 10
	case f.TrajectoryLen > 100:
		flag("trajectory-too-long")
		penalty += 10
	case f.TrajectoryLen < 3 && f.TrajectoryLen > 0:
		flag("trajectory-too-short")
	}

	if f.TrajectoryLen == 0 {
		// No pointer path at all. Three flags on purpose: this alone
		// drops the attempt into the hard-capped bucket.
		flag("no-trajectory")
		flag("no-trajectory")
		flag("no-trajectory")
		penalty += 30
	}

	if f.TrajectoryLen >= 3 {
		if f.CurvatureMean > 0.05 && f.CurvatureMean < 1.5 {
			reward += 10
		}
		if f.StraightFraction > 0.7 {
			flag("straight-line-motion")
			penalty += 20
		}

		if f.TimingVariance > 10 && f.TimingVariance < 10000 {
			reward += 10
		}
		if f.TimingVariance < 1 {
			flag("constant-timing")
			penalty += 20
		}
	}

	if f.ClickLatency > 500 && f.ClickLatency < 10000 {
		reward += 15
	}
	if f.ClickLatency < 100 {
		flag("instant-click")
		penalty += 15
	}

	if f.HoverDuration > 100 && f.HoverDuration < 5000 {
		reward += 10
	}
	if f.HoverDuration == 0 {
		flag("no-hover")
		penalty += 10
	}

	if f.PointerVelocity > 50 && f.PointerVelocity < 2000 {
		reward += 10
	}
	if f.PointerVelocity == 0 {
		flag("no-pointer-motion")
		penalty += 15
	}

	if f.ScrollVelocity > 0 && f.ScrollVelocity < 1000 {
		reward += 5
	}

	score += reward
	if score > 100 {
		score = 100
	}
	score -= penalty
	score = clampScore(score)

	// Flag capping overrides the additive result.
	switch {
	case len(flags) >= 3:
		score = min(score, cfg.ThreeFlagCap)
	case len(flags) >= 2:
		score = min(score, cfg.TwoFlagCap)
	}

	return Result{Score: score, Flags: flags}
}
