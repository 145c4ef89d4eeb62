// Package challenge manages the challenge lifecycle: creating a
// challenge from catalog content, retrieving it for a solve, and letting
// it expire. Challenge modes (image-grid, puzzle) plug in through a
// registry so the orchestrator never branches on mode internals.
package challenge

import (
	"context"
	"errors"
	"time"

	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/policy/config"
)

var (
	ErrUnknownMode = errors.New("challenge: unknown mode")
	ErrNotFound    = errors.New("challenge: no such challenge")
	ErrExpired     = errors.New("challenge: expired")
)

// Mode names. ModeImageGrid is the first tier; ModePuzzle is what
// escalation mints.
const (
	ModeImageGrid = "image-grid"
	ModePuzzle    = "puzzle"
)

// Challenge is one issued challenge. Immutable after creation.
type Challenge struct {
	ID            string    `json:"id"`
	SiteID        string    `json:"site_id"`
	Mode          string    `json:"mode"`
	Prompt        string    `json:"prompt"`
	CandidateSet  []string  `json:"candidate_set"`
	CorrectSubset []int     `json:"correct_subset"`
	IsDecoy       bool      `json:"is_decoy"`
	CreatedAt     time.Time `json:"created_at"`
	ExpiresAt     time.Time `json:"expires_at"`
}

// Content is what a mode builds for a new challenge. Decoy reports
// whether the mode honored a requested decoy build; a decoy Content must
// have an empty CorrectSubset.
type Content struct {
	Prompt        string
	CandidateSet  []string
	CorrectSubset []int
	Decoy         bool
}

// Solution is a client's answer. Selections applies to grid modes,
// ReportedAccuracy to placement modes.
type Solution struct {
	Selections       []int   `json:"selections,omitempty"`
	ReportedAccuracy float64 `json:"reported_accuracy,omitempty"`
}

// Mode is one challenge variant.
type Mode interface {
	// Build draws content from the catalog. A decoy build must return an
	// empty CorrectSubset; modes that cannot express a decoy ignore the
	// flag.
	Build(ctx context.Context, cat catalog.Interface, cfg config.Challenges, decoy bool) (Content, error)

	// Score computes the semantic sub-score for a solution against a
	// challenge of this mode. Pure; out-of-range input clamps.
	Score(ch Challenge, sol Solution, scoring config.Scoring) int

	// PassThreshold picks the fused-score threshold for this mode.
	PassThreshold(profile config.StandardProfile) int

	// TTL is how long a challenge of this mode stays solvable.
	TTL(cfg config.Challenges) time.Duration
}
