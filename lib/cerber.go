// Package lib wires the verification engine together: the Server owns
// the store, the site registry, the challenge orchestrator, the token
// authority, the session manager, and the rate governor, and exposes the
// six public operations plus their JSON HTTP bindings.
package lib

import (
	"crypto/rand"
	"encoding/binary"
	"errors"
	"fmt"
	"net/http"

	"github.com/CerberHQ/cerber"
	"github.com/CerberHQ/cerber/lib/audit"
	"github.com/CerberHQ/cerber/lib/catalog"
	"github.com/CerberHQ/cerber/lib/challenge"
	_ "github.com/CerberHQ/cerber/lib/challenge/imagegrid"
	_ "github.com/CerberHQ/cerber/lib/challenge/puzzle"
	"github.com/CerberHQ/cerber/lib/policy"
	"github.com/CerberHQ/cerber/lib/ratelimit"
	"github.com/CerberHQ/cerber/lib/session"
	"github.com/CerberHQ/cerber/lib/site"
	"github.com/CerberHQ/cerber/lib/store"
	"github.com/CerberHQ/cerber/lib/token"
)

// ErrRateLimited is returned when the rate governor denies an operation.
var ErrRateLimited = errors.New("cerber: rate limited")

// Server is the verification engine. Construct with New.
type Server struct {
	policy       *policy.ParsedConfig
	store        store.Interface
	sites        *site.Registry
	orchestrator *challenge.Orchestrator
	authority    *token.Authority
	sessions     *session.Manager
	governor     *ratelimit.Governor
	auditor      *audit.Recorder

	mux *http.ServeMux
}

func New(opts Options) (*Server, error) {
	if opts.Policy == nil {
		return nil, errors.New("cerber: Options.Policy is required")
	}
	if opts.Store == nil {
		return nil, errors.New("cerber: Options.Store is required")
	}

	cat := opts.Catalog
	if cat == nil {
		seed := opts.CatalogSeed
		if seed == 0 {
			var buf [8]byte
			if _, err := rand.Read(buf[:]); err != nil {
				return nil, fmt.Errorf("cerber: can't seed catalog: %w", err)
			}
			seed = binary.LittleEndian.Uint64(buf[:])
		}

		var err error
		cat, err = catalog.NewDefault(seed)
		if err != nil {
			return nil, err
		}
	}

	sites := site.NewRegistry(opts.Store)
	auditor := audit.NewRecorder(opts.Store)
	authority := token.NewAuthority(opts.Store, sites, auditor, opts.Policy.Tokens)

	result := &Server{
		policy:       opts.Policy,
		store:        opts.Store,
		sites:        sites,
		orchestrator: challenge.NewOrchestrator(opts.Store, cat, opts.Policy.Challenges),
		authority:    authority,
		sessions:     session.NewManager(opts.Store, sites, authority, opts.Policy.Sessions),
		governor:     ratelimit.NewGovernor(opts.Store, opts.Policy.RateLimits),
		auditor:      auditor,
		mux:          http.NewServeMux(),
	}

	result.registerRoutes()

	return result, nil
}

// Sites exposes the tenant registry for onboarding tooling.
func (s *Server) Sites() *site.Registry { return s.sites }

func (s *Server) registerRoutes() {
	s.mux.HandleFunc("POST "+cerber.APIPrefix+"challenge/start", s.handleStartChallenge)
	s.mux.HandleFunc("POST "+cerber.APIPrefix+"challenge/solve", s.handleSolveChallenge)
	s.mux.HandleFunc("POST "+cerber.APIPrefix+"verify/low-friction", s.handleLowFrictionVerify)
	s.mux.HandleFunc("POST "+cerber.APIPrefix+"token/redeem", s.handleRedeemToken)
	s.mux.HandleFunc("POST "+cerber.APIPrefix+"session/init", s.handleInitSession)
	s.mux.HandleFunc("POST "+cerber.APIPrefix+"session/redeem", s.handleRedeemSession)
	s.mux.HandleFunc("GET /healthz", s.handleHealthz)
}

func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mux.ServeHTTP(w, r)
}
