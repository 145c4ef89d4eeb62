// Package cerber contains protocol-level constants shared between the
// verification engine, the daemon, and tests.
package cerber

import "time"

var (
	// Version is the current revision, set at build time with -ldflags.
	Version = "devel"
)

const (
	// APIPrefix is where all verification API routes are mounted.
	APIPrefix = "/.cerberhq/cerber/api/"

	// DefaultChallengeTTL is how long a first-tier challenge stays solvable.
	DefaultChallengeTTL = 60 * time.Second

	// EscalatedChallengeTTL is how long an escalated (puzzle) challenge
	// stays solvable. Puzzles take longer to place than grids take to tap.
	EscalatedChallengeTTL = 120 * time.Second

	// VerifyTokenTTL is how long a relying party has to redeem a verify
	// token after issuance.
	VerifyTokenTTL = 150 * time.Second

	// SessionTTL is how long a checkbox widget session stays redeemable.
	SessionTTL = 5 * time.Minute

	// DefaultDecoyRate marks 1 in N created challenges as a decoy with no
	// valid positive answer. Roughly 0.5%.
	DefaultDecoyRate = 200

	// CleanupInterval is how often background sweeps for expired records run.
	CleanupInterval = 5 * time.Minute
)
