// Package imagegrid is the first-tier challenge mode: a grid of catalog
// items where the client selects everything matching the prompt
// category.
package imagegrid

import (
	"context"
	"math/rand/v2"
	"time"

	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/challenge"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/scorer"
)

func init() {
	challenge.Register(challenge.ModeImageGrid, Impl{})
}

type Impl struct{}

// Build draws GridCorrect items from a random category and fills the
// rest of the grid with distractors. A decoy build fills the whole grid
// with distractors, so no selection can ever be correct.
func (Impl) Build(ctx context.Context, cat catalog.Interface, cfg config.Challenges, decoy bool) (challenge.Content, error) {
	category := cat.RandomCategory()

	correct := cfg.GridCorrect
	if decoy {
		correct = 0
	}

	var cells []catalog.Item

	if correct > 0 {
		matching, err := cat.RandomItems(category, correct)
		if err != nil {
			return challenge.Content{}, err
		}
		cells = append(cells, matching...)
	}

	distractors, err := cat.RandomDistractors(category, cfg.GridSize-correct)
	if err != nil {
		return challenge.Content{}, err
	}
	cells = append(cells, distractors...)

	rand.Shuffle(len(cells), func(i, j int) {
		cells[i], cells[j] = cells[j], cells[i]
	})

	result := challenge.Content{
		Prompt:       category,
		CandidateSet: make([]string, len(cells)),
		Decoy:        decoy,
	}

	for i, cell := range cells {
		result.CandidateSet[i] = cell.ID
		if cell.Category == category {
			result.CorrectSubset = append(result.CorrectSubset, i)
		}
	}

	return result, nil
}

func (Impl) Score(ch challenge.Challenge, sol challenge.Solution, scoring config.Scoring) int {
	return scorer.Semantic(ch.CorrectSubset, sol.Selections, ch.IsDecoy, scoring)
}

func (Impl) PassThreshold(profile config.StandardProfile) int {
	return profile.GridPass
}

func (Impl) TTL(cfg config.Challenges) time.Duration {
	return time.Duration(cfg.GridTTLSeconds) * time.Second
}
