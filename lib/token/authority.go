package token

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/CerberHQ/cerber/lib/audit"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/site"
	"github.com/CerberHQ/cerber/lib/store"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var TokensIssued = promauto.NewCounter(prometheus.CounterOpts{
	Name: "cerber_tokens_issued",
	Help: "Verify tokens minted after a passed verification.",
})

// Authority issues and redeems verify tokens for all sites.
type Authority struct {
	sites   *site.Registry
	records *store.JSON[Record]
	auditor *audit.Recorder
	cfg     config.Tokens
}

func NewAuthority(backend store.Interface, sites *site.Registry, auditor *audit.Recorder, cfg config.Tokens) *Authority {
	return &Authority{
		sites:   sites,
		records: &store.JSON[Record]{Underlying: backend, Prefix: "token:"},
		auditor: auditor,
		cfg:     cfg,
	}
}

// Issue mints a verify token for a passed verification: a signed bearer
// string for the client and a persisted record for redemption.
func (a *Authority) Issue(ctx context.Context, identity site.Identity, subjectID string, score int, origin string) (string, Record, error) {
	now := time.Now()
	ttl := time.Duration(a.cfg.TTLSeconds) * time.Second

	record := Record{
		TokenID:   uuid.NewString(),
		SubjectID: subjectID,
		SiteID:    identity.ID,
		Score:     score,
		IssuedAt:  now,
		ExpiresAt: now.Add(ttl),
	}

	if a.cfg.BindOrigin {
		record.BoundOrigin = origin
	}

	bearer, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"jti":   record.TokenID,
		"sub":   record.SubjectID,
		"site":  record.SiteID,
		"score": record.Score,
		"iat":   now.Unix(),
		"nbf":   now.Add(-30 * time.Second).Unix(),
		"exp":   record.ExpiresAt.Unix(),
	}).SignedString(identity.SigningKey)
	if err != nil {
		return "", Record{}, fmt.Errorf("token: can't sign: %w", err)
	}

	if err := a.records.Set(ctx, record.TokenID, record, ttl); err != nil {
		return "", Record{}, fmt.Errorf("token: can't persist record: %w", err)
	}

	TokensIssued.Inc()

	return bearer, record, nil
}

// Redemption is what a relying party gets back for a valid token.
type Redemption struct {
	TokenID   string `json:"token_id"`
	SubjectID string `json:"subject_id"`
	SiteID    string `json:"site_id"`
	Score     int    `json:"score"`
}

// Redeem validates and consumes a verify token. The checks run in a
// fixed order so every rejection has exactly one reason: record exists,
// not used, not expired, signature verifies, payload matches the record,
// origin matches the binding, then the atomic used flip. Exactly one of
// two concurrent redemptions can win the flip.
func (a *Authority) Redeem(ctx context.Context, bearer, origin string) (Redemption, error) {
	reject := func(tokenID string, err error) (Redemption, error) {
		a.auditor.RecordRedemption(ctx, audit.Redemption{
			TokenID: tokenID,
			Origin:  origin,
			Outcome: "rejected",
			Reason:  ReasonFor(err),
		})
		return Redemption{}, err
	}

	claims := jwt.MapClaims{}
	if _, _, err := jwt.NewParser().ParseUnverified(bearer, claims); err != nil {
		return reject("", fmt.Errorf("%w: %w", ErrNoRecord, err))
	}

	tokenID, _ := claims["jti"].(string)
	if tokenID == "" {
		return reject("", fmt.Errorf("%w: bearer carries no token id", ErrNoRecord))
	}

	record, err := a.records.Get(ctx, tokenID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return reject(tokenID, ErrNoRecord)
	case err != nil:
		return reject(tokenID, err)
	}

	if record.Used {
		return reject(tokenID, ErrAlreadyUsed)
	}

	if time.Now().After(record.ExpiresAt) {
		return reject(tokenID, ErrExpired)
	}

	identity, err := a.sites.Get(ctx, record.SiteID)
	if err != nil {
		return reject(tokenID, err)
	}

	if err := a.verifySignature(bearer, identity); err != nil {
		return reject(tokenID, err)
	}

	if err := crossCheck(claims, record); err != nil {
		return reject(tokenID, err)
	}

	if record.BoundOrigin != "" && record.BoundOrigin != origin {
		return reject(tokenID, fmt.Errorf("%w: bound to different origin", ErrOriginMismatch))
	}

	err = a.records.Swap(ctx, tokenID, func(old Record, found bool) (Record, time.Duration, error) {
		if !found {
			return Record{}, 0, ErrNoRecord
		}
		if old.Used {
			return Record{}, 0, ErrAlreadyUsed
		}

		old.Used = true

		// The used record stays until its natural expiry so replays get
		// rejected as already-used rather than not-found.
		ttl := time.Until(old.ExpiresAt)
		if ttl <= 0 {
			return Record{}, 0, ErrExpired
		}

		return old, ttl, nil
	})
	if err != nil {
		return reject(tokenID, err)
	}

	a.auditor.RecordRedemption(ctx, audit.Redemption{
		TokenID: tokenID,
		Origin:  origin,
		Outcome: "redeemed",
	})

	return Redemption{
		TokenID:   record.TokenID,
		SubjectID: record.SubjectID,
		SiteID:    record.SiteID,
		Score:     record.Score,
	}, nil
}

func (a *Authority) verifySignature(bearer string, identity site.Identity) error {
	_, err := jwt.Parse(bearer, func(*jwt.Token) (any, error) {
		return identity.VerifyKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case err != nil:
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	return nil
}

// crossCheck rejects a valid signature over the wrong context: every
// signed field must agree with the persisted record.
func crossCheck(claims jwt.MapClaims, record Record) error {
	sub, _ := claims["sub"].(string)
	if sub != record.SubjectID {
		return fmt.Errorf("%w: subject", ErrPayloadMismatch)
	}

	siteID, _ := claims["site"].(string)
	if siteID != record.SiteID {
		return fmt.Errorf("%w: site", ErrPayloadMismatch)
	}

	score, ok := claims["score"].(float64)
	if !ok || int(score) != record.Score {
		return fmt.Errorf("%w: score", ErrPayloadMismatch)
	}

	return nil
}
