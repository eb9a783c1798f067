package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/kadmin/kadmin/jwt"
)

// HeaderTokenRefresh marks a request as part of the refresh flow. The
// auth guard waives the expiry verdict for marked requests so an expired
// token can reach the refresh endpoint; nothing else changes.
const HeaderTokenRefresh = "X-Token-Refresh"

// TokenVerifier validates access tokens. Satisfied by jwt.Manager and by
// the engine's ParseAccess.
type TokenVerifier interface {
	ParseAccess(token string) (*jwt.AccessClaims, error)
}

type claimsContextKey struct{}

// ClaimsFromContext returns the access claims the auth guard attached.
func ClaimsFromContext(ctx context.Context) (*jwt.AccessClaims, bool) {
	claims, ok := ctx.Value(claimsContextKey{}).(*jwt.AccessClaims)
	return claims, ok
}

// AuthGuard verifies the bearer token and attaches its claims to the
// request context. Verdicts: missing or malformed credentials are 401,
// a structurally sound but expired token is 40001 so the client can try
// the refresh flow, and everything else invalid is 401 requiring a
// fresh login.
func AuthGuard(verifier TokenVerifier) Guard {
	return func(r *http.Request) (*http.Request, *Response) {
		if strings.EqualFold(r.Header.Get(HeaderTokenRefresh), "true") {
			return r, nil
		}

		token, ok := bearerToken(r.Header.Get("Authorization"))
		if !ok {
			verdict := Fail(CodeUnauthorized, "missing credentials")
			return r, &verdict
		}

		claims, err := verifier.ParseAccess(token)
		if err != nil {
			if errors.Is(err, jwt.ErrTokenExpired) {
				verdict := Fail(CodeTokenExpired, "access token expired")
				return r, &verdict
			}
			verdict := Fail(CodeUnauthorized, "invalid credentials")
			return r, &verdict
		}

		ctx := context.WithValue(r.Context(), claimsContextKey{}, claims)
		return r.WithContext(ctx), nil
	}
}

func bearerToken(value string) (string, bool) {
	const bearer = "Bearer "
	if !strings.HasPrefix(value, bearer) {
		return "", false
	}
	token := value[len(bearer):]
	if token == "" {
		return "", false
	}
	return token, true
}
