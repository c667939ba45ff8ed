package rbac

import (
	"errors"
	"net/http"

	"github.com/dashgate/dashgate/pkg/httputil"
	"github.com/dashgate/dashgate/pkg/middleware"
	"github.com/dashgate/dashgate/pkg/observability"
)

// Guard produces route middleware that enforces capabilities. Decision
// order is fixed: unauthenticated requests get 401, superadmins pass,
// an unresolvable page gets 404 (a registry problem, not an access
// decision), a missing capability gets 403, and a store failure gets 500.
// Deny is never treated as an error.
type Guard struct {
	evaluator *Evaluator
}

// NewGuard creates a guard over the evaluator.
func NewGuard(evaluator *Evaluator) *Guard {
	return &Guard{evaluator: evaluator}
}

// RequirePermission guards a route with a single capability. The page is
// resolved from the request URL path.
func (g *Guard) RequirePermission(cap Capability) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request) ([]Capability, string) {
		return []Capability{cap}, r.URL.Path
	})
}

// RequireAnyPermission guards a route with an any-of capability set.
func (g *Guard) RequireAnyPermission(caps ...Capability) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request) ([]Capability, string) {
		return caps, r.URL.Path
	})
}

// RequirePermissionForPage guards a route whose page identity differs
// from its own URL, e.g. API endpoints serving a named admin page.
func (g *Guard) RequirePermissionForPage(pageURL string, caps ...Capability) func(http.Handler) http.Handler {
	return g.require(func(r *http.Request) ([]Capability, string) {
		return caps, pageURL
	})
}

func (g *Guard) require(resolve func(*http.Request) ([]Capability, string)) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			user := middleware.GetUser(r)
			if user == nil {
				httputil.WriteUnauthorized(w, "authentication required")
				return
			}

			// The bypass must fire before the page lookup so superadmins
			// reach pages that were never registered.
			if user.IsSuperadmin() {
				next.ServeHTTP(w, r)
				return
			}

			caps, pageURL := resolve(r)
			page, err := g.evaluator.Store().GetPageByURL(r.Context(), pageURL)
			if errors.Is(err, ErrPageNotFound) {
				httputil.WriteNotFound(w, "unknown resource")
				return
			}
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("page lookup failed")
				httputil.WriteInternalError(w, "permission check unavailable")
				return
			}

			allowed, err := g.evaluator.AllowAny(r.Context(), user, page.ID, caps...)
			if err != nil {
				observability.FromContext(r.Context()).WithError(err).Error("permission check failed")
				httputil.WriteInternalError(w, "permission check unavailable")
				return
			}
			if !allowed {
				httputil.WriteForbidden(w, "permission denied")
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
