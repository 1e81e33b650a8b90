package middleware

import (
	"context"
	"encoding/json"
	"net/http"
)

// contextKey is a custom type for context keys to avoid collisions
type contextKey string

const (
	principalContextKey contextKey = "principal"
	requestIDContextKey contextKey = "request_id"
	accessLogContextKey contextKey = "access_log"
)

// Principal is the verified caller of a control-plane request.
type Principal struct {
	Token     string
	Identity  string
	Operation string
}

// SetPrincipalInContext stores the verified caller. The access logger
// wrapping the request, if any, picks up the identity too.
func SetPrincipalInContext(ctx context.Context, p *Principal) context.Context {
	if entry, ok := ctx.Value(accessLogContextKey).(*accessLogEntry); ok {
		entry.identity = p.Identity
		entry.operation = p.Operation
	}
	return context.WithValue(ctx, principalContextKey, p)
}

// GetPrincipalFromContext retrieves the verified caller, or nil.
func GetPrincipalFromContext(ctx context.Context) *Principal {
	if p, ok := ctx.Value(principalContextKey).(*Principal); ok {
		return p
	}
	return nil
}

func writeError(w http.ResponseWriter, status int, message string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(map[string]string{"error": message})
}
