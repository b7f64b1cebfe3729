package identity

import (
	"context"
	"net/http"

	"parley/internal/pkg/auth/jwt"
	"parley/internal/pkg/errs"
	"parley/internal/pkg/resp"
)

type contextKey string

const identityKey contextKey = "identity"

// WithIdentity stores id in ctx.
func WithIdentity(ctx context.Context, id Identity) context.Context {
	return context.WithValue(ctx, identityKey, id)
}

// FromContext returns the identity stored by Middleware, or Anonymous.
func FromContext(ctx context.Context) Identity {
	if id, ok := ctx.Value(identityKey).(Identity); ok && id != nil {
		return id
	}
	return Anonymous{}
}

// Middleware resolves the request credential with mode. In Strict mode a
// failure is answered immediately with the resolver's error.
func Middleware(res *Resolver, mode Mode) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			id, err := res.Resolve(r.Context(), jwt.TokenFromRequest(r), mode)
			if err != nil {
				resp.RespondErr(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), id)))
		})
	}
}

// RequireUser returns the Authenticated identity from ctx, or the error to send:
// ErrUnauthorized for Anonymous and ErrForbidden for Guest.
func RequireUser(ctx context.Context) (Authenticated, error) {
	return Require(FromContext(ctx))
}

// Require narrows id to Authenticated. Guests get Forbidden, anonymous callers Unauthorized.
func Require(id Identity) (Authenticated, error) {
	switch v := id.(type) {
	case Authenticated:
		return v, nil
	case Guest:
		return Authenticated{}, errs.NewError(errs.ErrForbidden)
	}
	return Authenticated{}, errs.NewError(errs.ErrUnauthorized)
}
