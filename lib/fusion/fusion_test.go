package fusion

import (
	"testing"

	"github.com/CerberHQ/cerber/lib/policy/config"
)

func TestStandard(t *testing.T) {
	cfg := config.Default().Fusion

	for _, tt := range []struct {
		name      string
		in        Inputs
		threshold int
		want      Verdict
		score     int
	}{
		{
			name:      "clear pass",
			in:        Inputs{Behavior: 90, Semantic: 100, Device: 80},
			threshold: cfg.Standard.GridPass,
			want:      VerdictAccept,
			score:     93,
		},
		{
			name:      "just under the grid threshold",
			in:        Inputs{Behavior: 74, Semantic: 74, Device: 74},
			threshold: cfg.Standard.GridPass,
			want:      VerdictReject,
			score:     74,
		},
		{
			name:      "exactly at the grid threshold",
			in:        Inputs{Behavior: 75, Semantic: 75, Device: 75},
			threshold: cfg.Standard.GridPass,
			want:      VerdictAccept,
			score:     75,
		},
		{
			name:      "good behavior cannot carry a failed grid",
			in:        Inputs{Behavior: 100, Semantic: 0, Device: 100},
			threshold: cfg.Standard.GridPass,
			want:      VerdictReject,
			score:     60,
		},
		{
			name:      "puzzle threshold is softer",
			in:        Inputs{Behavior: 72, Semantic: 72, Device: 72},
			threshold: cfg.Standard.PuzzlePass,
			want:      VerdictAccept,
			score:     72,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			out := Standard(tt.in, cfg, tt.threshold)

			if out.Score != tt.score {
				t.Errorf("want score %d, got %d", tt.score, out.Score)
			}
			if out.Verdict != tt.want {
				t.Errorf("want verdict %s, got %s", tt.want, out.Verdict)
			}
		})
	}
}

func TestLowFrictionBoundaries(t *testing.T) {
	cfg := config.Default().Fusion

	// Equal sub-scores fuse to exactly that score, which pins the
	// threshold boundaries.
	for _, tt := range []struct {
		score int
		want  Verdict
	}{
		{score: 49, want: VerdictReject},
		{score: 50, want: VerdictEscalate},
		{score: 79, want: VerdictEscalate},
		{score: 80, want: VerdictAccept},
	} {
		in := Inputs{Ensemble: tt.score, Behavior: tt.score, Device: tt.score}
		out := LowFriction(in, cfg)

		if out.Score != tt.score {
			t.Errorf("equal inputs %d fused to %d", tt.score, out.Score)
		}
		if out.Verdict != tt.want {
			t.Errorf("score %d: want verdict %s, got %s", tt.score, tt.want, out.Verdict)
		}
	}
}

func TestFusionMonotone(t *testing.T) {
	cfg := config.Default().Fusion

	base := Inputs{Ensemble: 40, Behavior: 40, Device: 40}
	prev := LowFriction(base, cfg).Score

	for behavior := 41; behavior <= 100; behavior++ {
		in := base
		in.Behavior = behavior

		got := LowFriction(in, cfg).Score
		if got < prev {
			t.Fatalf("raising behavior to %d lowered the fused score from %d to %d", behavior, prev, got)
		}
		prev = got
	}
}

func TestSuspicious(t *testing.T) {
	cfg := config.Default().Fusion

	for _, tt := range []struct {
		name string
		in   Inputs
		want bool
	}{
		{
			name: "ordinary pass",
			in:   Inputs{Behavior: 80, Semantic: 90, Device: 70},
			want: false,
		},
		{
			name: "behavior under the floor",
			in:   Inputs{Behavior: 20, Semantic: 90, Device: 70},
			want: true,
		},
		{
			name: "device under the floor",
			in:   Inputs{Behavior: 80, Semantic: 90, Device: 35},
			want: true,
		},
		{
			name: "uniformly perfect",
			in:   Inputs{Behavior: 100, Semantic: 100, Device: 100},
			want: true,
		},
		{
			name: "just above the perfection bar",
			in:   Inputs{Behavior: 96, Semantic: 96, Device: 96},
			want: true,
		},
		{
			name: "one score at the perfection bar",
			in:   Inputs{Behavior: 96, Semantic: 95, Device: 96},
			want: false,
		},
	} {
		t.Run(tt.name, func(t *testing.T) {
			out := Standard(tt.in, cfg, cfg.Standard.GridPass)

			if out.Suspicious != tt.want {
				t.Errorf("want suspicious=%v, got %v", tt.want, out.Suspicious)
			}
		})
	}
}
