package auth

import (
	"context"
	"net/http"
	"strings"

	"github.com/meggy-ai/meggy/internal/observability"
)

type contextKey struct{}

// UserID returns the authenticated user ID the middleware stored on the
// request context, or "" when the request was not authenticated.
func UserID(ctx context.Context) string {
	id, _ := ctx.Value(contextKey{}).(string)
	return id
}

// WithUserID is used by tests and the websocket handshake path to inject an
// already-verified user ID.
func WithUserID(ctx context.Context, userID string) context.Context {
	return context.WithValue(ctx, contextKey{}, userID)
}

// Middleware authenticates requests with a Bearer access token and puts the
// user ID on the context. Unauthenticated requests get a 401 JSON body in
// the same shape the rest of the API uses.
func Middleware(tm *TokenManager, metrics *observability.Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token, ok := bearerToken(r)
			if !ok {
				unauthorized(w, "missing bearer token", metrics, "missing_token")
				return
			}
			userID, err := tm.ParseAccess(token)
			if err != nil {
				unauthorized(w, "invalid or expired token", metrics, "invalid_token")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithUserID(r.Context(), userID)))
		})
	}
}

// bearerToken also accepts ?access_token= for websocket clients that cannot
// set headers.
func bearerToken(r *http.Request) (string, bool) {
	header := r.Header.Get("Authorization")
	if strings.HasPrefix(header, "Bearer ") {
		token := strings.TrimPrefix(header, "Bearer ")
		return token, token != ""
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, true
	}
	return "", false
}

func unauthorized(w http.ResponseWriter, msg string, metrics *observability.Metrics, reason string) {
	if metrics != nil {
		metrics.AuthFailures.WithLabelValues(reason).Inc()
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusUnauthorized)
	w.Write([]byte(`{"error":"` + msg + `","code":401}`))
}
