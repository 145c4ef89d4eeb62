package token

import (
	"errors"
	"fmt"
	"time"

	"github.com/CerberHQ/cerber/lib/site"
	"github.com/golang-jwt/jwt/v5"
)

// Challenge tokens bind {challengeID, siteID} for the issue/solve round
// trip so a solution can't be submitted against a stale or foreign
// challenge. They are stateless: the challenge record itself carries all
// the state, the token only proves the pairing was minted here.

func IssueChallengeToken(identity site.Identity, challengeID string, ttl time.Duration) (string, error) {
	now := time.Now()

	bearer, err := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"sub":  challengeID,
		"site": identity.ID,
		"iat":  now.Unix(),
		"nbf":  now.Add(-30 * time.Second).Unix(),
		"exp":  now.Add(ttl).Unix(),
	}).SignedString(identity.SigningKey)
	if err != nil {
		return "", fmt.Errorf("token: can't sign challenge token: %w", err)
	}

	return bearer, nil
}

// VerifyChallengeToken checks that bearer was minted by identity for
// exactly this challenge.
func VerifyChallengeToken(identity site.Identity, bearer, challengeID string) error {
	parsed, err := jwt.Parse(bearer, func(*jwt.Token) (any, error) {
		return identity.VerifyKey, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodEdDSA.Alg()}))

	switch {
	case errors.Is(err, jwt.ErrTokenExpired):
		return ErrExpired
	case err != nil:
		return fmt.Errorf("%w: %w", ErrBadSignature, err)
	}

	claims, ok := parsed.Claims.(jwt.MapClaims)
	if !ok {
		return fmt.Errorf("%w: unexpected claims shape", ErrPayloadMismatch)
	}

	if sub, _ := claims["sub"].(string); sub != challengeID {
		return fmt.Errorf("%w: challenge", ErrPayloadMismatch)
	}

	if siteID, _ := claims["site"].(string); siteID != identity.ID {
		return fmt.Errorf("%w: site", ErrPayloadMismatch)
	}

	return nil
}
