// Package audit keeps the append-only trail: one VerificationAttempt per
// solve, one Redemption per token redemption step that decided anything.
// Records are written best-effort; a broken audit store degrades
// observability, never availability.
package audit

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/CerberHQ/cerber/lib/store"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	Attempts = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cerber_verification_attempts",
		Help: "Verification attempts by outcome.",
	}, []string{"outcome"})

	SuspiciousAttempts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "cerber_suspicious_attempts",
		Help: "Verification attempts that tripped a suspicion floor.",
	})

	Redemptions = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "cerber_token_redemptions",
		Help: "Token redemption decisions by reason.",
	}, []string{"reason"})
)

// retainFor bounds how long audit records stay queryable in the store.
const retainFor = 7 * 24 * time.Hour

// Attempt is one scored verification attempt, never mutated after write.
type Attempt struct {
	ChallengeID      string          `json:"challenge_id"`
	ClientOrigin     string          `json:"client_origin"`
	ClientDescriptor string          `json:"client_descriptor"`
	Selections       []int           `json:"selections,omitempty"`
	BehaviorSignal   json.RawMessage `json:"behavior_signal,omitempty"`
	BehaviorScore    int             `json:"behavior_score"`
	SemanticScore    int             `json:"semantic_score"`
	DeviceScore      int             `json:"device_score"`
	EnsembleScore    int             `json:"ensemble_score,omitempty"`
	FusedScore       int             `json:"fused_score"`
	Outcome          string          `json:"outcome"`
	Suspicious       bool            `json:"suspicious"`
	CreatedAt        time.Time       `json:"created_at"`
}

// Redemption is the decision record for one token redemption call.
type Redemption struct {
	TokenID   string    `json:"token_id"`
	Origin    string    `json:"origin"`
	Outcome   string    `json:"outcome"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

type Recorder struct {
	attempts    *store.JSON[Attempt]
	redemptions *store.JSON[Redemption]
}

func NewRecorder(backend store.Interface) *Recorder {
	return &Recorder{
		attempts:    &store.JSON[Attempt]{Underlying: backend, Prefix: "audit:attempt:"},
		redemptions: &store.JSON[Redemption]{Underlying: backend, Prefix: "audit:redeem:"},
	}
}

// RecordAttempt appends one attempt record and bumps the counters.
func (r *Recorder) RecordAttempt(ctx context.Context, attempt Attempt) {
	attempt.CreatedAt = time.Now()

	Attempts.WithLabelValues(attempt.Outcome).Inc()
	if attempt.Suspicious {
		SuspiciousAttempts.Inc()
	}

	if err := r.attempts.Set(ctx, uuid.NewString(), attempt, retainFor); err != nil {
		slog.Error("can't write attempt audit record", "challengeID", attempt.ChallengeID, "err", err)
	}
}

// RecordRedemption appends one redemption decision and bumps the counter.
func (r *Recorder) RecordRedemption(ctx context.Context, redemption Redemption) {
	redemption.CreatedAt = time.Now()

	reason := redemption.Reason
	if reason == "" {
		reason = redemption.Outcome
	}
	Redemptions.WithLabelValues(reason).Inc()

	if err := r.redemptions.Set(ctx, uuid.NewString(), redemption, retainFor); err != nil {
		slog.Error("can't write redemption audit record", "tokenID", redemption.TokenID, "err", err)
	}
}
