package scorer

import (
	"math"

	"github.com/CerberHQ/cerber/lib/policy/config"
)

// Semantic scores an image-grid selection by Jaccard similarity between
// the selected index set and the correct index set:
//
//	round(100 × |selected ∩ correct| / |selected ∪ correct|)
//
// On a decoy challenge no selection is ever correct, so any nonempty
// selection collapses to the fixed decoy score regardless of overlap.
func Semantic(correct, selected []int, isDecoy bool, cfg config.Scoring) int {
	if isDecoy && len(selected) > 0 {
		return cfg.DecoySemanticScore
	}

	intersection := 0
	union := map[int]struct{}{}

	correctSet := map[int]struct{}{}
	for _, idx := range correct {
		correctSet[idx] = struct{}{}
		union[idx] = struct{}{}
	}

	// The score is defined over index sets: repeating a known-correct
	// index must not count it twice.
	selectedSet := map[int]struct{}{}
	for _, idx := range selected {
		if _, dup := selectedSet[idx]; dup {
			continue
		}
		selectedSet[idx] = struct{}{}

		if _, ok := correctSet[idx]; ok {
			intersection++
		}
		union[idx] = struct{}{}
	}

	if len(union) == 0 {
		// Nothing to select and nothing selected. Only reachable on a
		// decoy, where an empty selection is the right answer.
		return 100
	}

	return int(math.Round(100 * float64(intersection) / float64(len(union))))
}

// PuzzleAccuracy passes the client-reported placement accuracy through as
// the semantic score, clamped to the valid range. The presentation layer
// computes the metric; the server only bounds it.
func PuzzleAccuracy(reported float64) int {
	if math.IsNaN(reported) {
		return 0
	}

	return clampScore(int(math.Round(reported)))
}
