package server

import (
	"context"
	"net/http"

	"github.com/tjfontaine/propertychat/internal/auth"
)

type apiKeyContextKey struct{}

// AuthMiddleware rejects requests without a valid bearer API key. Rejections
// carry no body. A nil authenticator disables the check.
func AuthMiddleware(authenticator *auth.Authenticator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		if authenticator == nil {
			return next
		}
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			apiKey, err := auth.ExtractAPIKey(r)
			if err != nil {
				AddError(r.Context(), err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			key, err := authenticator.ValidateAPIKey(apiKey)
			if err != nil {
				AddError(r.Context(), err)
				w.WriteHeader(http.StatusUnauthorized)
				return
			}

			AddLogField(r.Context(), "api_key", key.Description)
			ctx := context.WithValue(r.Context(), apiKeyContextKey{}, key)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAPIKey returns the authenticated key, if any.
func GetAPIKey(ctx context.Context) (auth.Key, bool) {
	k, ok := ctx.Value(apiKeyContextKey{}).(auth.Key)
	return k, ok
}
