// Package puzzle is the escalation challenge mode: the client slides a
// puzzle piece into place and the presentation layer reports a placement
// accuracy metric. Harder to script than grid selection, so the risk
// fusion engine escalates to it.
package puzzle

import (
	"context"
	"time"

	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/challenge"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/scorer"
)

func init() {
	challenge.Register(challenge.ModePuzzle, Impl{})
}

type Impl struct{}

// Build picks one catalog item as the puzzle image. Puzzles have no
// selection answer and cannot express a decoy; the flag is ignored.
func (Impl) Build(ctx context.Context, cat catalog.Interface, cfg config.Challenges, decoy bool) (challenge.Content, error) {
	category := cat.RandomCategory()

	items, err := cat.RandomItems(category, 1)
	if err != nil {
		return challenge.Content{}, err
	}

	return challenge.Content{
		Prompt:       "puzzle",
		CandidateSet: []string{items[0].ID},
	}, nil
}

func (Impl) Score(ch challenge.Challenge, sol challenge.Solution, scoring config.Scoring) int {
	return scorer.PuzzleAccuracy(sol.ReportedAccuracy)
}

func (Impl) PassThreshold(profile config.StandardProfile) int {
	return profile.PuzzlePass
}

func (Impl) TTL(cfg config.Challenges) time.Duration {
	return time.Duration(cfg.PuzzleTTLSeconds) * time.Second
}
