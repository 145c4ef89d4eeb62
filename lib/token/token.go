// Package token is the token authority: it mints the signed bearer
// credentials the engine hands out and redeems verify tokens exactly
// once. The persisted record, not the bearer string, is the source of
// truth; the signature only proves the bearer matches what was recorded.
package token

import (
	"errors"
	"time"
)

var (
	// ErrNoRecord means no persisted record backs the bearer. Forged and
	// out-of-system tokens land here, as do tokens swept after expiry.
	ErrNoRecord = errors.New("token: no matching record")

	// ErrAlreadyUsed means the token was redeemed before.
	ErrAlreadyUsed = errors.New("token: already used")

	// ErrExpired means the record's expiry has passed.
	ErrExpired = errors.New("token: expired")

	// ErrBadSignature means the bearer's signature does not verify
	// against the issuing site's public key.
	ErrBadSignature = errors.New("token: bad signature")

	// ErrPayloadMismatch means the signed payload disagrees with the
	// persisted record. A valid signature over the wrong context lands
	// here, never at ErrBadSignature.
	ErrPayloadMismatch = errors.New("token: payload does not match record")

	// ErrOriginMismatch means the token is origin-bound and the redeeming
	// origin is not the one that earned it.
	ErrOriginMismatch = errors.New("token: origin mismatch")
)

// Record is the persisted half of a verify token.
type Record struct {
	TokenID     string    `json:"token_id"`
	SubjectID   string    `json:"subject_id"`
	SiteID      string    `json:"site_id"`
	Score       int       `json:"score"`
	Used        bool      `json:"used"`
	IssuedAt    time.Time `json:"issued_at"`
	ExpiresAt   time.Time `json:"expires_at"`
	BoundOrigin string    `json:"bound_origin,omitempty"`
}

// ReasonFor maps a redemption error to its audit label. Anything outside
// the redemption taxonomy is an internal failure.
func ReasonFor(err error) string {
	switch {
	case errors.Is(err, ErrNoRecord):
		return "no-record"
	case errors.Is(err, ErrAlreadyUsed):
		return "already-used"
	case errors.Is(err, ErrExpired):
		return "expired"
	case errors.Is(err, ErrBadSignature):
		return "bad-signature"
	case errors.Is(err, ErrPayloadMismatch):
		return "payload-mismatch"
	case errors.Is(err, ErrOriginMismatch):
		return "origin-mismatch"
	default:
		return "internal"
	}
}
