package imagegrid

import (
	"strings"
	"testing"

	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/challenge"
	"github.com/CerberHQ/cerber/lib/challenge/challengetest"
	"github.com/CerberHQ/cerber/lib/policy/config"
)

func TestConformance(t *testing.T) {
	challengetest.Common(t, Impl{})
}

func TestBuild(t *testing.T) {
	cat, err := catalog.NewDefault(42)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().Challenges

	content, err := Impl{}.Build(t.Context(), cat, cfg, false)
	if err != nil {
		t.Fatal(err)
	}

	if len(content.CandidateSet) != cfg.GridSize {
		t.Errorf("want %d candidates, got %d", cfg.GridSize, len(content.CandidateSet))
	}
	if len(content.CorrectSubset) != cfg.GridCorrect {
		t.Errorf("want %d correct answers, got %d", cfg.GridCorrect, len(content.CorrectSubset))
	}

	// Item IDs carry their category, so the correct subset must be
	// exactly the prompt-category cells.
	for i, id := range content.CandidateSet {
		matches := strings.HasPrefix(id, content.Prompt+"/")
		inCorrect := false
		for _, idx := range content.CorrectSubset {
			if idx == i {
				inCorrect = true
			}
		}

		if matches != inCorrect {
			t.Errorf("cell %d (%s): matches prompt %q = %v but in correct subset = %v", i, id, content.Prompt, matches, inCorrect)
		}
	}
}

func TestBuildDecoy(t *testing.T) {
	cat, err := catalog.NewDefault(42)
	if err != nil {
		t.Fatal(err)
	}

	cfg := config.Default().Challenges

	content, err := Impl{}.Build(t.Context(), cat, cfg, true)
	if err != nil {
		t.Fatal(err)
	}

	if !content.Decoy {
		t.Error("decoy build not marked as decoy")
	}
	if len(content.CorrectSubset) != 0 {
		t.Errorf("decoy grid has %d correct answers", len(content.CorrectSubset))
	}
	if len(content.CandidateSet) != cfg.GridSize {
		t.Errorf("want %d candidates, got %d", cfg.GridSize, len(content.CandidateSet))
	}

	for _, id := range content.CandidateSet {
		if strings.HasPrefix(id, content.Prompt+"/") {
			t.Errorf("decoy grid contains prompt-category item %s", id)
		}
	}
}

func TestScoreDecoy(t *testing.T) {
	scoring := config.Default().Scoring

	ch := challenge.Challenge{Mode: challenge.ModeImageGrid, IsDecoy: true}

	if got := (Impl{}).Score(ch, challenge.Solution{Selections: []int{0, 4, 8}}, scoring); got != scoring.DecoySemanticScore {
		t.Errorf("decoy selection: want %d, got %d", scoring.DecoySemanticScore, got)
	}

	if got := (Impl{}).Score(ch, challenge.Solution{}, scoring); got != 100 {
		t.Errorf("empty selection on decoy: want 100, got %d", got)
	}
}
