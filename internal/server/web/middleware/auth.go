package middleware

import (
	"context"
	"net/http"
	"strings"

	"github.com/pandeptwidyaop/hookrelay/internal/server/credential"
	pkgerrors "github.com/pandeptwidyaop/hookrelay/pkg/errors"
	"github.com/pandeptwidyaop/hookrelay/pkg/logger"
)

// Verifier checks bearer tokens and accounts for authenticated calls.
type Verifier interface {
	Verify(ctx context.Context, token, operation string) credential.Result
	RecordCall(identity, operation string)
}

// AuthMiddleware gates control-plane routes on a bearer token.
type AuthMiddleware struct {
	verifier Verifier
}

// NewAuthMiddleware creates a new auth middleware
func NewAuthMiddleware(verifier Verifier) *AuthMiddleware {
	return &AuthMiddleware{
		verifier: verifier,
	}
}

// Protect wraps a handler with bearer authentication for operation.
// Missing, invalid or unverifiable tokens get 401 before next runs.
func (m *AuthMiddleware) Protect(operation string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			writeError(w, http.StatusUnauthorized, "Missing or malformed authorization header")
			return
		}

		result := m.verifier.Verify(r.Context(), token, operation)
		if !result.Valid {
			logger.WarnEvent().
				Err(pkgerrors.ErrUnauthorized).
				Str("operation", operation).
				Str("reason", result.Error).
				Str("request_id", GetRequestID(r.Context())).
				Msg("Rejected bearer token")

			// The authority's reason stays in the log
			writeError(w, http.StatusUnauthorized, "Invalid token")
			return
		}

		m.verifier.RecordCall(result.Identity, operation)

		ctx := SetPrincipalInContext(r.Context(), &Principal{
			Token:     token,
			Identity:  result.Identity,
			Operation: operation,
		})
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ProtectFunc is Protect for handler functions.
func (m *AuthMiddleware) ProtectFunc(operation string, next http.HandlerFunc) http.Handler {
	return m.Protect(operation, next)
}

func bearerToken(header string) (string, bool) {
	parts := strings.SplitN(strings.TrimSpace(header), " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return "", false
	}
	token := strings.TrimSpace(parts[1])
	return token, token != ""
}
