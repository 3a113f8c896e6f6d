package middleware

import (
	"net/http"
	"strings"

	"stencil/internal/ims"
	"stencil/internal/pkg/errors"
	"stencil/internal/pkg/logger"
)

// bearerToken extracts the bearer token from the Authorization header, or
// "" when the request is anonymous.
func bearerToken(r *http.Request) string {
	h := r.Header.Get("Authorization")
	if h == "" {
		return ""
	}
	parts := strings.SplitN(h, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return ""
	}
	return strings.TrimSpace(parts[1])
}

// Auth validates the bearer token through the identity verifier and stores
// the claims and raw token on the request context. Requests without a
// token are rejected.
func Auth(log *logger.Logger, verifier ims.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				WriteErrorResponse(w, errors.CodeUnauthorized, "missing bearer token", nil)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				HandleError(w, r, log, err)
				return
			}

			ctx := ims.ContextWithAuth(r.Context(), claims, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// OptionalAuth validates a bearer token when one is supplied and otherwise
// lets the request through anonymously. Used on read paths where a token
// only enables entitlement annotation.
func OptionalAuth(log *logger.Logger, verifier ims.Verifier) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}

			claims, err := verifier.Verify(r.Context(), token)
			if err != nil {
				HandleError(w, r, log, err)
				return
			}

			ctx := ims.ContextWithAuth(r.Context(), claims, token)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}
