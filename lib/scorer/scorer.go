// Package scorer holds the stateless scoring functions. Every function
// here is pure: raw signals in, a 0-100 score out, no store access and no
// shared state, so callers may run them concurrently and in any order.
//
// None of this is machine learning. The arithmetic is a documented
// placeholder heuristic chosen to be reproducible; the device rule hook in
// the policy package is the intended extension point for anything
// smarter.
package scorer

// Result is a sub-score plus the suspicion flags that were raised while
// computing it. Flags feed the audit trail and cap the score: a bot
// cannot buy back one discriminative signal by gaming another.
type Result struct {
	Score int
	Flags []string
}

func clampScore(v int) int {
	if v < 0 {
		return 0
	}
	if v > 100 {
		return 100
	}
	return v
}
