package signal

import "math"

// Features are the derived measurements scorers work from. All trajectory
// math happens here once; scorers only compare against thresholds.
type Features struct {
	TrajectoryLen    int
	CurvatureMean    float64 // mean absolute turn angle between consecutive triplets, radians
	StraightFraction float64 // fraction of segments with near-zero turn angle
	TimingVariance   float64 // variance of inter-sample deltas, ms²
	ClickLatency     float64
	HoverDuration    float64
	PointerVelocity  float64
	ScrollVelocity   float64
}

// straightEpsilon is the turn angle under which a segment counts as a
// straight line.
const straightEpsilon = 0.01

// Features derives measurements from a behavior signal. Safe on any
// input: out-of-range values pass through to be judged by thresholds, and
// degenerate trajectories produce zero-valued features instead of errors.
func (b *Behavior) Features() Features {
	f := Features{
		TrajectoryLen:   len(b.Trajectory),
		ClickLatency:    b.ClickLatency,
		HoverDuration:   b.HoverDuration,
		PointerVelocity: b.PointerVelocity,
		ScrollVelocity:  b.ScrollVelocity,
	}

	f.CurvatureMean, f.StraightFraction = curvature(b.Trajectory)
	f.TimingVariance = timingVariance(b.Trajectory)

	return f
}

// curvature measures how much the pointer path bends: for every
// consecutive triplet of samples it takes the absolute angle between the
// two segments. A human hand wobbles; scripted motion interpolates
// straight lines.
func curvature(traj []Sample) (mean, straightFrac float64) {
	if len(traj) < 3 {
		return 0, 0
	}

	var total float64
	var straight int
	segments := len(traj) - 2

	for i := 0; i+2 < len(traj); i++ {
		a, b, c := traj[i], traj[i+1], traj[i+2]

		theta1 := math.Atan2(b.Y-a.Y, b.X-a.X)
		theta2 := math.Atan2(c.Y-b.Y, c.X-b.X)

		delta := math.Abs(theta2 - theta1)
		if delta > math.Pi {
			delta = 2*math.Pi - delta
		}

		total += delta
		if delta < straightEpsilon {
			straight++
		}
	}

	return total / float64(segments), float64(straight) / float64(segments)
}

// timingVariance is the variance of the deltas between sample timestamps.
// Near-perfectly-constant timing is a scripted-motion signature.
func timingVariance(traj []Sample) float64 {
	if len(traj) < 3 {
		return 0
	}

	deltas := make([]float64, 0, len(traj)-1)
	var sum float64
	for i := 1; i < len(traj); i++ {
		d := traj[i].T - traj[i-1].T
		deltas = append(deltas, d)
		sum += d
	}

	mean := sum / float64(len(deltas))

	var variance float64
	for _, d := range deltas {
		variance += (d - mean) * (d - mean)
	}

	return variance / float64(len(deltas))
}

func clip01(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}

// Vector flattens the features into the fixed [0,1]-clipped input the
// ensemble model consumes: trajectory length, curvature, timing variance,
// click latency, hover duration, pointer velocity, scroll activity. Each
// component is normalized so 1.0 reads as "plausibly human".
func (f Features) Vector() [7]float64 {
	return [7]float64{
		clip01(float64(f.TrajectoryLen) / 50),
		clip01(f.CurvatureMean / 1.5),
		clip01(f.TimingVariance / 10000),
		clip01(f.ClickLatency / 10000),
		clip01(f.HoverDuration / 5000),
		clip01(f.PointerVelocity / 2000),
		clip01(f.ScrollVelocity / 500),
	}
}
