package session

import (
	"context"
	"net/http"

	"go.uber.org/zap"

	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/httputil"
	"github.com/Hemansh-X797/Conclave-Of-The-Noble-Souls-Website-sub002/internal/app/policy"
)

type ctxKey struct{}

// FromContext returns the validation result stored by Require.
func FromContext(ctx context.Context) (Result, bool) {
	res, ok := ctx.Value(ctxKey{}).(Result)
	return res, ok
}

// WithResult stores res on ctx.
func WithResult(ctx context.Context, res Result) context.Context {
	return context.WithValue(ctx, ctxKey{}, res)
}

// Require rejects requests without a valid session with 401. full selects
// the depth of the check.
func (m *Manager) Require(full bool, logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := TokenFromRequest(r)
			var res Result
			if full {
				res = m.Full(r.Context(), token)
			} else {
				res = m.Quick(token)
			}

			if !res.Valid {
				if res.Reason == ReasonServerError {
					logger.Error("session validation failed", zap.Error(res.Err))
					httputil.JSONError(w, http.StatusInternalServerError, string(res.Reason), "could not validate session")
					return
				}
				httputil.JSONError(w, http.StatusUnauthorized, string(res.Reason), "authentication required")
				return
			}
			next.ServeHTTP(w, r.WithContext(WithResult(r.Context(), res)))
		})
	}
}

// RequirePermission must run after Require. It responds 403 when allow
// returns false.
func RequirePermission(allow func(policy.Permissions) bool) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			res, ok := FromContext(r.Context())
			if !ok || !allow(res.Permissions) {
				httputil.JSONError(w, http.StatusForbidden, "forbidden", "insufficient permissions")
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Staff and Admin are predicates for RequirePermission.
func Staff(p policy.Permissions) bool { return p.IsStaff }
func Admin(p policy.Permissions) bool { return p.IsAdmin }
