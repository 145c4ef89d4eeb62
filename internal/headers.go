package internal

import (
	"log/slog"
	"net/http"

	"github.com/sebest/xff"
)

// ClientIPMiddleware rewrites RemoteAddr to the real client address from
// X-Forwarded-For, ignoring untrusted hops. Origin binding and rate
// limiting key off RemoteAddr, so this must run before the engine sees
// the request.
func ClientIPMiddleware(next http.Handler) http.Handler {
	xffmw, err := xff.Default()
	if err != nil {
		slog.Error("can't construct XFF middleware, proxied client IPs will be wrong", "err", err)
		return next
	}

	return xffmw.Handler(next)
}
