package middleware

import (
	"net/http"

	"github.com/dashgate/dashgate/pkg/auth"
	"github.com/dashgate/dashgate/pkg/contextkeys"
	"github.com/dashgate/dashgate/pkg/httputil"
	"github.com/dashgate/dashgate/pkg/observability"
)

// Authenticate runs the resolver against each request and stores the
// resolved identity on the context. Requests that fail resolution get a
// 401 and never reach the handler.
func Authenticate(resolver auth.Resolver) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user, err := resolver.Resolve(r.Context(), r)
			if err != nil || user == nil {
				logger := observability.FromContext(r.Context())
				if err != nil {
					logger.WithError(err).Debug("authentication failed")
				}
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			ctx := contextkeys.WithAuth(r.Context(), &auth.Context{User: user})
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// GetAuthContext extracts the auth context from a request, or nil when the
// request was not authenticated.
func GetAuthContext(r *http.Request) *auth.Context {
	v := r.Context().Value(contextkeys.AuthKey)
	if v == nil {
		return nil
	}
	authCtx, ok := v.(*auth.Context)
	if !ok {
		return nil
	}
	return authCtx
}

// GetUser extracts the resolved user from a request, or nil.
func GetUser(r *http.Request) *auth.User {
	authCtx := GetAuthContext(r)
	if authCtx == nil {
		return nil
	}
	return authCtx.User
}
