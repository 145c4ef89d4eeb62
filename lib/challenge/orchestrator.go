package challenge

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Issued = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cerber_challenges_issued",
		Help: "Challenges issued by mode.",
	}, []string{"mode"})

	DecoysIssued = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cerber_decoy_challenges_issued",
		Help: "Challenges issued with no valid positive answer.",
	})
)

// recordGrace keeps expired challenge records readable a little past
// their expiry so a late solve rejects as expired, not as unknown.
const recordGrace = 5 * time.Minute

// Orchestrator creates, retrieves, and consumes challenges.
type Orchestrator struct {
	challenges *store.JSON[Challenge]
	cat        catalog.Interface
	cfg        config.Challenges
}

func NewOrchestrator(backend store.Interface, cat catalog.Interface, cfg config.Challenges) *Orchestrator {
	return &Orchestrator{
		challenges: &store.JSON[Challenge]{Underlying: backend, Prefix: "challenge:"},
		cat:        cat,
		cfg:        cfg,
	}
}

// Create mints a challenge of the given mode for a site. One in
// DecoyRate grid-style challenges is a decoy with no correct positive
// answer, to catch automation that selects a fixed pattern regardless of
// content.
func (o *Orchestrator) Create(ctx context.Context, siteID, mode string) (Challenge, error) {
	m, ok := GetMode(mode)
	if !ok {
		return Challenge{}, fmt.Errorf("%w: %q", ErrUnknownMode, mode)
	}

	decoy := o.cfg.DecoyRate > 0 && rand.IntN(o.cfg.DecoyRate) == 0

	content, err := m.Build(ctx, o.cat, o.cfg, decoy)
	if err != nil {
		return Challenge{}, fmt.Errorf("challenge: can't build %s content: %w", mode, err)
	}

	if content.Decoy && len(content.CorrectSubset) != 0 {
		return Challenge{}, fmt.Errorf("challenge: mode %s built a decoy with %d correct answers", mode, len(content.CorrectSubset))
	}

	for _, idx := range content.CorrectSubset {
		if idx < 0 || idx >= len(content.CandidateSet) {
			return Challenge{}, fmt.Errorf("challenge: mode %s built correct index %d outside candidate set of %d", mode, idx, len(content.CandidateSet))
		}
	}

	now := time.Now()
	ttl := m.TTL(o.cfg)

	result := Challenge{
		ID:            uuid.NewString(),
		SiteID:        siteID,
		Mode:          mode,
		Prompt:        content.Prompt,
		CandidateSet:  content.CandidateSet,
		CorrectSubset: content.CorrectSubset,
		IsDecoy:       content.Decoy,
		CreatedAt:     now,
		ExpiresAt:     now.Add(ttl),
	}

	if err := o.challenges.Set(ctx, result.ID, result, ttl+recordGrace); err != nil {
		return Challenge{}, fmt.Errorf("challenge: can't persist: %w", err)
	}

	Issued.WithLabelValues(mode).Inc()
	if content.Decoy {
		DecoysIssued.Inc()
	}

	return result, nil
}

// Get retrieves a live challenge. Expired challenges reject distinctly
// from unknown ones.
func (o *Orchestrator) Get(ctx context.Context, id string) (Challenge, error) {
	result, err := o.challenges.Get(ctx, id)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return Challenge{}, fmt.Errorf("%w: %s", ErrNotFound, id)
	case err != nil:
		return Challenge{}, err
	}

	if time.Now().After(result.ExpiresAt) {
		return Challenge{}, fmt.Errorf("%w: %s", ErrExpired, id)
	}

	return result, nil
}

// Consume removes a challenge after it has been decided, so the same
// challenge id cannot be solved twice.
func (o *Orchestrator) Consume(ctx context.Context, id string) error {
	return o.challenges.Delete(ctx, id)
}

// Score delegates solution scoring to the challenge's mode.
func (o *Orchestrator) Score(ch Challenge, sol Solution, scoring config.Scoring) (int, error) {
	m, ok := GetMode(ch.Mode)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, ch.Mode)
	}

	return m.Score(ch, sol, scoring), nil
}

// PassThreshold delegates to the challenge's mode.
func (o *Orchestrator) PassThreshold(ch Challenge, profile config.StandardProfile) (int, error) {
	m, ok := GetMode(ch.Mode)
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownMode, ch.Mode)
	}

	return m.PassThreshold(profile), nil
}
