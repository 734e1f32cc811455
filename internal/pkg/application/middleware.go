package application

import (
	"errors"
	"net"
	"net/http"

	"github.com/google/uuid"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/application/auth"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/logging"
	"github.com/iot-for-tillgenglighet/fleet-registry/internal/pkg/infrastructure/ratelimit"
)

func authenticate(log logging.Logger, verifier *auth.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, err := verifier.FromAuthorizationHeader(r.Header.Get("Authorization"))
			if err != nil {
				status := http.StatusForbidden
				if errors.Is(err, auth.ErrMissingToken) || errors.Is(err, auth.ErrInvalidScheme) {
					status = http.StatusUnauthorized
				}
				writeError(w, status, err.Error())
				return
			}

			next.ServeHTTP(w, r.WithContext(auth.WithIdentity(r.Context(), identity)))
		})
	}
}

func requireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			identity, ok := auth.FromContext(r.Context())
			if !ok || !identity.HasRole(roles...) {
				writeError(w, http.StatusForbidden, "insufficient permissions")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

//rateLimit rejects requests from callers that exceeded their budget. Requests are let
//through when the counter store cannot be reached.
func rateLimit(log logging.Logger, limiter *ratelimit.Limiter) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if limiter == nil {
				next.ServeHTTP(w, r)
				return
			}

			allowed, err := limiter.Allow(r.Context(), callerOf(r))
			if err != nil {
				log.Warnf("Rate limit check failed: %s", err.Error())
			} else if !allowed {
				writeError(w, http.StatusTooManyRequests, "too many requests")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}

func callerOf(r *http.Request) string {
	if identity, ok := auth.FromContext(r.Context()); ok && identity.UserID != uuid.Nil {
		return identity.UserID.String()
	}

	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
