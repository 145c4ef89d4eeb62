// Package ratelimit is the admission governor: a fixed-window counter
// per (origin, action class) with per-class budgets from the risk
// policy. Window state lives in the shared store so every replica sees
// the same counts; the increment rides the store's atomic Swap so two
// concurrent requests can never both slip past the ceiling.
//
// Expired windows are reaped by the store backends' own cleanup sweeps;
// the governor never blocks a request on cleanup.
package ratelimit

import (
	"context"
	"errors"
	"time"

	"github.com/CerberHQ/cerber/internal"
	"github.com/CerberHQ/cerber/lib/policy/config"
	"github.com/CerberHQ/cerber/lib/store"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var Denials = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "cerber_ratelimit_denials",
	Help: "Requests denied by the rate governor, by action class.",
}, []string{"class"})

// errLimited aborts the Swap without writing when the window is full.
var errLimited = errors.New("ratelimit: over budget")

// Decision is the governor's answer for one request.
type Decision struct {
	Allowed   bool
	Remaining int
	ResetAt   time.Time
}

type window struct {
	Count     int       `json:"count"`
	ExpiresAt time.Time `json:"expires_at"`
}

// Governor admits or denies requests per (origin, action class).
type Governor struct {
	windows *store.JSON[window]
	budgets map[string]config.RateBudget
}

func NewGovernor(backend store.Interface, budgets map[string]config.RateBudget) *Governor {
	return &Governor{
		windows: &store.JSON[window]{Underlying: backend, Prefix: "rate:"},
		budgets: budgets,
	}
}

// Admit counts one action and reports whether it fits the class budget.
// Classes with no configured budget are admitted unconditionally.
func (g *Governor) Admit(ctx context.Context, origin, class string) (Decision, error) {
	budget, ok := g.budgets[class]
	if !ok {
		return Decision{Allowed: true, Remaining: -1}, nil
	}

	key := internal.FastHash(origin + "|" + class)
	windowDur := time.Duration(budget.WindowMS) * time.Millisecond

	var result Decision

	err := g.windows.Swap(ctx, key, func(old window, found bool) (window, time.Duration, error) {
		now := time.Now()

		if !found || now.After(old.ExpiresAt) {
			fresh := window{Count: 1, ExpiresAt: now.Add(windowDur)}
			result = Decision{Allowed: true, Remaining: budget.Max - 1, ResetAt: fresh.ExpiresAt}
			return fresh, windowDur, nil
		}

		if old.Count >= budget.Max {
			result = Decision{Allowed: false, Remaining: 0, ResetAt: old.ExpiresAt}
			return window{}, 0, errLimited
		}

		old.Count++
		result = Decision{Allowed: true, Remaining: budget.Max - old.Count, ResetAt: old.ExpiresAt}
		return old, time.Until(old.ExpiresAt), nil
	})

	switch {
	case errors.Is(err, errLimited):
		Denials.WithLabelValues(class).Inc()
		return result, nil
	case err != nil:
		return Decision{}, err
	}

	return result, nil
}
