package lib

import (
	"encoding/json"
	"errors"
	"net"
	"net/http"

	"github.com/CerberHQ/cerber"
	"github.com/CerberHQ/cerber/internal"
	"github.com/CerberHQ/cerber/lib/challenge"
	"github.com/CerberHQ/cerber/lib/session"
	"github.com/CerberHQ/cerber/lib/site"
	"github.com/CerberHQ/cerber/lib/token"
)

// maxBodyBytes bounds request bodies. Behavior signals are small; a
// megabyte is already generous.
const maxBodyBytes = 1 << 20

type errorResponse struct {
	Error string `json:"error"`
}

func encodeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)

	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		encodeJSON(w, http.StatusBadRequest, errorResponse{Error: "malformed request body"})
		return false
	}

	return true
}

// clientIP is the redeeming/solving network origin. The daemon's XFF
// middleware rewrites RemoteAddr to the real client address before
// requests reach the engine.
func clientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}

	return host
}

// respondError maps engine errors onto HTTP. Client-facing messages stay
// generic; the audit trail and logs keep the specific reason.
func (s *Server) respondError(w http.ResponseWriter, r *http.Request, err error) {
	lg := internal.GetRequestLogger(r)

	switch {
	case errors.Is(err, ErrRateLimited):
		encodeJSON(w, http.StatusTooManyRequests, errorResponse{Error: "rate limited, slow down"})
	case errors.Is(err, site.ErrNotFound), errors.Is(err, site.ErrInactive):
		encodeJSON(w, http.StatusNotFound, errorResponse{Error: "unknown site"})
	case errors.Is(err, challenge.ErrNotFound), errors.Is(err, session.ErrNotFound):
		encodeJSON(w, http.StatusNotFound, errorResponse{Error: "verification failed, try again"})
	case errors.Is(err, challenge.ErrExpired), errors.Is(err, session.ErrExpired):
		encodeJSON(w, http.StatusGone, errorResponse{Error: "expired, start over"})
	case errors.Is(err, session.ErrAlreadyVerified),
		errors.Is(err, token.ErrBadSignature),
		errors.Is(err, token.ErrPayloadMismatch),
		errors.Is(err, token.ErrExpired):
		lg.Warn("rejected verification request", "err", err)
		encodeJSON(w, http.StatusForbidden, errorResponse{Error: "verification failed, try again"})
	default:
		lg.Error("internal error handling request", "err", err)
		encodeJSON(w, http.StatusInternalServerError, errorResponse{Error: "internal error"})
	}
}

func (s *Server) handleStartChallenge(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID string `json:"site_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.StartChallenge(r.Context(), req.SiteID, clientIP(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	encodeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleSolveChallenge(w http.ResponseWriter, r *http.Request) {
	var req SolveChallengeRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Descriptor == "" {
		req.Descriptor = r.UserAgent()
	}

	resp, err := s.SolveChallenge(r.Context(), req, clientIP(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	encodeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleLowFrictionVerify(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID         string          `json:"site_id"`
		Descriptor     string          `json:"descriptor"`
		BehaviorSignal json.RawMessage `json:"behavior_signal,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Descriptor == "" {
		req.Descriptor = r.UserAgent()
	}

	resp, err := s.LowFrictionVerify(r.Context(), req.SiteID, clientIP(r), req.Descriptor, req.BehaviorSignal)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	encodeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRedeemToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.RedeemToken(r.Context(), req.Token, clientIP(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	encodeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleInitSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		SiteID string `json:"site_id"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	resp, err := s.InitCheckboxSession(r.Context(), req.SiteID, clientIP(r))
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	encodeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleRedeemSession(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Nonce          string          `json:"nonce"`
		Descriptor     string          `json:"descriptor"`
		BehaviorSignal json.RawMessage `json:"behavior_signal,omitempty"`
	}
	if !decodeJSON(w, r, &req) {
		return
	}

	if req.Descriptor == "" {
		req.Descriptor = r.UserAgent()
	}

	resp, err := s.RedeemCheckboxSession(r.Context(), req.Nonce, clientIP(r), req.Descriptor, req.BehaviorSignal)
	if err != nil {
		s.respondError(w, r, err)
		return
	}

	encodeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/plain")
	w.WriteHeader(http.StatusOK)
	w.Write([]byte("OK: " + cerber.Version))
}
