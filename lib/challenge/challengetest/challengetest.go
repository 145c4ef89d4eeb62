// Package challengetest holds the conformance suite every challenge mode
// must pass.
package challengetest

import (
	"testing"

	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/challenge"
	"github.com/CerberHQ/cerber/lib/policy/config"
)

// Common runs the mode-independent invariants against one challenge
// mode.
func Common(t *testing.T, mode challenge.Mode) {
	t.Helper()

	cat, err := catalog.NewDefault(42)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default()

	t.Run("build", func(t *testing.T) {
		content, err := mode.Build(t.Context(), cat, cfg.Challenges, false)
		if err != nil {
			t.Fatal(err)
		}

		if len(content.CandidateSet) == 0 {
			t.Error("built challenge has no candidates")
		}
		if content.Decoy {
			t.Error("non-decoy build marked itself a decoy")
		}

		seen := map[int]struct{}{}
		for _, idx := range content.CorrectSubset {
			if idx < 0 || idx >= len(content.CandidateSet) {
				t.Errorf("correct index %d outside candidate set of %d", idx, len(content.CandidateSet))
			}
			if _, ok := seen[idx]; ok {
				t.Errorf("correct index %d appears twice", idx)
			}
			seen[idx] = struct{}{}
		}
	})

	t.Run("decoy build", func(t *testing.T) {
		content, err := mode.Build(t.Context(), cat, cfg.Challenges, true)
		if err != nil {
			t.Fatal(err)
		}

		if content.Decoy && len(content.CorrectSubset) != 0 {
			t.Errorf("decoy build has %d correct answers", len(content.CorrectSubset))
		}
	})

	t.Run("score bounds", func(t *testing.T) {
		content, err := mode.Build(t.Context(), cat, cfg.Challenges, false)
		if err != nil {
			t.Fatal(err)
		}

		ch := challenge.Challenge{
			CandidateSet:  content.CandidateSet,
			CorrectSubset: content.CorrectSubset,
		}

		for _, sol := range []challenge.Solution{
			{},
			{Selections: []int{0, 1, 2}},
			{Selections: []int{-7, 9000}},
			{ReportedAccuracy: -50},
			{ReportedAccuracy: 9000},
		} {
			score := mode.Score(ch, sol, cfg.Scoring)
			if score < 0 || score > 100 {
				t.Errorf("solution %+v scored out of range: %d", sol, score)
			}
		}
	})

	t.Run("knobs", func(t *testing.T) {
		if mode.TTL(cfg.Challenges) <= 0 {
			t.Error("mode TTL is not positive")
		}
		if mode.PassThreshold(cfg.Fusion.Standard) <= 0 {
			t.Error("mode pass threshold is not positive")
		}
	})
}
