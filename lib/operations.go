package lib

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/CerberHQ/cerber/lib/audit"
	"github.com/CerberHQ/cerber/lib/challenge"
	"github.com/CerberHQ/cerber/lib/fusion"
	"github.com/CerberHQ/cerber/lib/scorer"
	"github.com/CerberHQ/cerber/lib/session"
	"github.com/CerberHQ/cerber/lib/signal"
	"github.com/CerberHQ/cerber/lib/token"
	"github.com/google/uuid"
)

// StartChallengeResponse is what a client needs to render and solve a
// challenge. It never carries the correct subset or the decoy flag.
type StartChallengeResponse struct {
	ChallengeID    string    `json:"challenge_id"`
	Mode           string    `json:"mode"`
	Prompt         string    `json:"prompt"`
	CandidateSet   []string  `json:"candidate_set"`
	ChallengeToken string    `json:"challenge_token"`
	ExpiresAt      time.Time `json:"expires_at"`
}

// StartChallenge mints a first-tier challenge for a site.
func (s *Server) StartChallenge(ctx context.Context, siteID, origin string) (StartChallengeResponse, error) {
	if err := s.admit(ctx, origin, "start"); err != nil {
		return StartChallengeResponse{}, err
	}

	identity, err := s.sites.Active(ctx, siteID)
	if err != nil {
		return StartChallengeResponse{}, err
	}

	return s.mintChallenge(ctx, identity.ID, challenge.ModeImageGrid)
}

func (s *Server) mintChallenge(ctx context.Context, siteID, mode string) (StartChallengeResponse, error) {
	identity, err := s.sites.Get(ctx, siteID)
	if err != nil {
		return StartChallengeResponse{}, err
	}

	ch, err := s.orchestrator.Create(ctx, siteID, mode)
	if err != nil {
		return StartChallengeResponse{}, err
	}

	bearer, err := token.IssueChallengeToken(identity, ch.ID, time.Until(ch.ExpiresAt))
	if err != nil {
		return StartChallengeResponse{}, err
	}

	return StartChallengeResponse{
		ChallengeID:    ch.ID,
		Mode:           ch.Mode,
		Prompt:         ch.Prompt,
		CandidateSet:   ch.CandidateSet,
		ChallengeToken: bearer,
		ExpiresAt:      ch.ExpiresAt,
	}, nil
}

// SolveChallengeRequest is a client's answer to a challenge.
type SolveChallengeRequest struct {
	ChallengeID      string          `json:"challenge_id"`
	ChallengeToken   string          `json:"challenge_token"`
	Descriptor       string          `json:"descriptor"`
	Selections       []int           `json:"selections,omitempty"`
	ReportedAccuracy float64         `json:"reported_accuracy,omitempty"`
	BehaviorSignal   json.RawMessage `json:"behavior_signal,omitempty"`
}

// SolveChallengeResponse carries the decision. On escalation the new
// challenge payload is threaded explicitly; there is no implicit
// server-side "current challenge" state for a client.
type SolveChallengeResponse struct {
	Success     bool                    `json:"success"`
	Score       int                     `json:"score"`
	VerifyToken string                  `json:"verify_token,omitempty"`
	Escalation  *StartChallengeResponse `json:"escalation,omitempty"`
}

// SolveChallenge scores a solution and decides. A failed image grid
// escalates to a puzzle; a failed puzzle rejects outright. The solved
// challenge is consumed either way.
func (s *Server) SolveChallenge(ctx context.Context, req SolveChallengeRequest, origin string) (SolveChallengeResponse, error) {
	if err := s.admit(ctx, origin, "solve"); err != nil {
		return SolveChallengeResponse{}, err
	}

	ch, err := s.orchestrator.Get(ctx, req.ChallengeID)
	if err != nil {
		return SolveChallengeResponse{}, err
	}

	identity, err := s.sites.Get(ctx, ch.SiteID)
	if err != nil {
		return SolveChallengeResponse{}, err
	}

	if err := token.VerifyChallengeToken(identity, req.ChallengeToken, ch.ID); err != nil {
		return SolveChallengeResponse{}, err
	}

	sig := s.parseSignal(req.BehaviorSignal)

	behavior := scorer.Behavior(sig, s.policy.Scoring)
	device := scorer.DeviceTrust(ctx, req.Descriptor, origin, s.policy.Scoring, s.policy.DeviceRules)

	semantic, err := s.orchestrator.Score(ch, challenge.Solution{
		Selections:       req.Selections,
		ReportedAccuracy: req.ReportedAccuracy,
	}, s.policy.Scoring)
	if err != nil {
		return SolveChallengeResponse{}, err
	}

	threshold, err := s.orchestrator.PassThreshold(ch, s.policy.Fusion.Standard)
	if err != nil {
		return SolveChallengeResponse{}, err
	}

	out := fusion.Standard(fusion.Inputs{
		Behavior: behavior.Score,
		Semantic: semantic,
		Device:   device.Score,
	}, s.policy.Fusion, threshold)

	outcome := "fail"
	if out.Verdict == fusion.VerdictAccept {
		outcome = "success"
	}

	s.auditor.RecordAttempt(ctx, audit.Attempt{
		ChallengeID:      ch.ID,
		ClientOrigin:     origin,
		ClientDescriptor: req.Descriptor,
		Selections:       req.Selections,
		BehaviorSignal:   req.BehaviorSignal,
		BehaviorScore:    behavior.Score,
		SemanticScore:    semantic,
		DeviceScore:      device.Score,
		FusedScore:       out.Score,
		Outcome:          outcome,
		Suspicious:       out.Suspicious,
	})

	// A decided challenge is consumed whether or not it passed, so the
	// same challenge id cannot be replayed with better telemetry.
	if err := s.orchestrator.Consume(ctx, ch.ID); err != nil {
		slog.Error("can't consume challenge", "challengeID", ch.ID, "err", err)
	}

	if out.Verdict == fusion.VerdictAccept {
		bearer, _, err := s.authority.Issue(ctx, identity, ch.ID, out.Score, origin)
		if err != nil {
			return SolveChallengeResponse{}, err
		}

		return SolveChallengeResponse{Success: true, Score: out.Score, VerifyToken: bearer}, nil
	}

	if ch.Mode == challenge.ModeImageGrid {
		escalation, err := s.mintChallenge(ctx, ch.SiteID, challenge.ModePuzzle)
		if err != nil {
			return SolveChallengeResponse{}, err
		}

		return SolveChallengeResponse{Score: out.Score, Escalation: &escalation}, nil
	}

	return SolveChallengeResponse{Score: out.Score}, nil
}

// LowFrictionResponse is the checkbox-path decision.
type LowFrictionResponse struct {
	Accepted    bool                    `json:"accepted"`
	Score       int                     `json:"score"`
	Confidence  int                     `json:"confidence"`
	VerifyToken string                  `json:"verify_token,omitempty"`
	Escalation  *StartChallengeResponse `json:"escalation,omitempty"`
}

// LowFrictionVerify runs the checkbox-only path: no explicit challenge,
// just telemetry. Middling scores escalate to a puzzle instead of
// deciding either way.
func (s *Server) LowFrictionVerify(ctx context.Context, siteID, origin, descriptor string, rawSignal json.RawMessage) (LowFrictionResponse, error) {
	if err := s.admit(ctx, origin, "verify"); err != nil {
		return LowFrictionResponse{}, err
	}

	identity, err := s.sites.Active(ctx, siteID)
	if err != nil {
		return LowFrictionResponse{}, err
	}

	sig := s.parseSignal(rawSignal)

	behavior := scorer.Behavior(sig, s.policy.Scoring)
	device := scorer.DeviceTrust(ctx, descriptor, origin, s.policy.Scoring, s.policy.DeviceRules)
	ensemble := scorer.Ensemble(sig)

	out := fusion.LowFriction(fusion.Inputs{
		Behavior: behavior.Score,
		Device:   device.Score,
		Ensemble: ensemble.Score,
	}, s.policy.Fusion)

	outcome := map[fusion.Verdict]string{
		fusion.VerdictAccept:   "success",
		fusion.VerdictEscalate: "escalate",
		fusion.VerdictReject:   "fail",
	}[out.Verdict]

	s.auditor.RecordAttempt(ctx, audit.Attempt{
		ClientOrigin:     origin,
		ClientDescriptor: descriptor,
		BehaviorSignal:   rawSignal,
		BehaviorScore:    behavior.Score,
		DeviceScore:      device.Score,
		EnsembleScore:    ensemble.Score,
		FusedScore:       out.Score,
		Outcome:          outcome,
		Suspicious:       out.Suspicious,
	})

	result := LowFrictionResponse{Score: out.Score, Confidence: ensemble.Confidence}

	switch out.Verdict {
	case fusion.VerdictAccept:
		bearer, _, err := s.authority.Issue(ctx, identity, "low-friction/"+uuid.NewString(), out.Score, origin)
		if err != nil {
			return LowFrictionResponse{}, err
		}

		result.Accepted = true
		result.VerifyToken = bearer
	case fusion.VerdictEscalate:
		escalation, err := s.mintChallenge(ctx, identity.ID, challenge.ModePuzzle)
		if err != nil {
			return LowFrictionResponse{}, err
		}

		result.Escalation = &escalation
	}

	return result, nil
}

// RedeemTokenResponse is the server-to-server redemption result. The
// relying party is trusted, so the rejection reason comes back, unlike
// client-facing failures.
type RedeemTokenResponse struct {
	Valid     bool   `json:"valid"`
	Score     int    `json:"score,omitempty"`
	SubjectID string `json:"subject_id,omitempty"`
	Reason    string `json:"reason,omitempty"`
}

// RedeemToken consumes a verify token exactly once.
func (s *Server) RedeemToken(ctx context.Context, bearer, origin string) (RedeemTokenResponse, error) {
	if err := s.admit(ctx, origin, "redeem"); err != nil {
		return RedeemTokenResponse{}, err
	}

	redemption, err := s.authority.Redeem(ctx, bearer, origin)
	if err != nil {
		return RedeemTokenResponse{Reason: token.ReasonFor(err)}, nil
	}

	return RedeemTokenResponse{
		Valid:     true,
		Score:     redemption.Score,
		SubjectID: redemption.SubjectID,
	}, nil
}

// InitSessionResponse opens the checkbox widget flow.
type InitSessionResponse struct {
	SessionID string    `json:"session_id"`
	Nonce     string    `json:"nonce"`
	ExpiresAt time.Time `json:"expires_at"`
}

func (s *Server) InitCheckboxSession(ctx context.Context, siteID, origin string) (InitSessionResponse, error) {
	if err := s.admit(ctx, origin, "start"); err != nil {
		return InitSessionResponse{}, err
	}

	sess, err := s.sessions.Init(ctx, siteID)
	if err != nil {
		return InitSessionResponse{}, err
	}

	return InitSessionResponse{
		SessionID: sess.ID,
		Nonce:     sess.Nonce,
		ExpiresAt: sess.ExpiresAt,
	}, nil
}

// RedeemSessionResponse is the checkbox redemption result. A failed
// score is not an error: the session stays open for a better attempt.
type RedeemSessionResponse struct {
	Success     bool   `json:"success"`
	Score       int    `json:"score"`
	VerifyToken string `json:"verify_token,omitempty"`
}

func (s *Server) RedeemCheckboxSession(ctx context.Context, nonce, origin, descriptor string, rawSignal json.RawMessage) (RedeemSessionResponse, error) {
	if err := s.admit(ctx, origin, "verify"); err != nil {
		return RedeemSessionResponse{}, err
	}

	sig := s.parseSignal(rawSignal)

	behavior := scorer.Behavior(sig, s.policy.Scoring)
	device := scorer.DeviceTrust(ctx, descriptor, origin, s.policy.Scoring, s.policy.DeviceRules)

	_, bearer, score, err := s.sessions.Redeem(ctx, nonce, origin, behavior.Score, device.Score)

	outcome := "success"
	if err != nil {
		outcome = "fail"
	}

	s.auditor.RecordAttempt(ctx, audit.Attempt{
		ClientOrigin:     origin,
		ClientDescriptor: descriptor,
		BehaviorSignal:   rawSignal,
		BehaviorScore:    behavior.Score,
		DeviceScore:      device.Score,
		FusedScore:       score,
		Outcome:          outcome,
	})

	switch {
	case err == nil:
		return RedeemSessionResponse{Success: true, Score: score, VerifyToken: bearer}, nil
	case errors.Is(err, session.ErrBelowFloor):
		// Not an error to the caller: the session stays redeemable.
		return RedeemSessionResponse{Score: score}, nil
	default:
		return RedeemSessionResponse{}, err
	}
}

// admit asks the rate governor for one unit of budget.
func (s *Server) admit(ctx context.Context, origin, class string) error {
	decision, err := s.governor.Admit(ctx, origin, class)
	if err != nil {
		return err
	}

	if !decision.Allowed {
		return fmt.Errorf("%w: class %s, retry after %s", ErrRateLimited, class, time.Until(decision.ResetAt).Round(time.Second))
	}

	return nil
}

// parseSignal decodes telemetry, degrading to "no telemetry" instead of
// failing: malformed input lowers the score, it does not crash the flow.
func (s *Server) parseSignal(raw json.RawMessage) *signal.Behavior {
	sig, err := signal.Parse(raw)
	if err != nil {
		slog.Debug("can't parse behavior signal", "err", err)
		return nil
	}

	return sig
}
