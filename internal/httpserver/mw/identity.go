package mw

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	"github.com/MrSnakeDoc/linkvault/internal/logger"
)

type identityKey struct{}

var errNoToken = errors.New("missing bearer token")

// IdentityFrom returns the identity stored by Identity, or "".
func IdentityFrom(ctx context.Context) string {
	id, _ := ctx.Value(identityKey{}).(string)
	return id
}

// WithIdentity returns ctx carrying identity.
func WithIdentity(ctx context.Context, identity string) context.Context {
	return context.WithValue(ctx, identityKey{}, identity)
}

// Identity authenticates requests with an HS256 JWT and stores its
// subject as the request identity. The token is read from the
// Authorization header, or from the access_token query parameter since
// browsers cannot set headers on websocket upgrades.
func Identity(secret []byte, log logger.Logger) func(http.Handler) http.Handler {
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithExpirationRequired(),
	)
	keyFunc := func(*jwt.Token) (any, error) { return secret, nil }

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			raw, err := bearerToken(r)
			if err != nil {
				w.Header().Set("WWW-Authenticate", `Bearer realm="linkvault"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			var claims jwt.RegisteredClaims
			if _, err := parser.ParseWithClaims(raw, &claims, keyFunc); err != nil {
				log.Debug("identity: token rejected",
					logger.String("path", r.URL.Path),
					logger.Error(err))
				w.Header().Set("WWW-Authenticate", `Bearer realm="linkvault", error="invalid_token"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}
			if claims.Subject == "" {
				w.Header().Set("WWW-Authenticate", `Bearer realm="linkvault", error="invalid_token"`)
				http.Error(w, http.StatusText(http.StatusUnauthorized), http.StatusUnauthorized)
				return
			}

			if sw, ok := w.(*statusWriter); ok {
				sw.identity = claims.Subject
			}
			next.ServeHTTP(w, r.WithContext(WithIdentity(r.Context(), claims.Subject)))
		})
	}
}

// IssueToken signs an identity token for subject. Used by the token
// command and tests.
func IssueToken(secret []byte, subject string, claims jwt.RegisteredClaims) (string, error) {
	claims.Subject = subject
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

func bearerToken(r *http.Request) (string, error) {
	if h := r.Header.Get("Authorization"); h != "" {
		scheme, token, ok := strings.Cut(h, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(token) == "" {
			return "", errNoToken
		}
		return strings.TrimSpace(token), nil
	}
	if token := r.URL.Query().Get("access_token"); token != "" {
		return token, nil
	}
	return "", errNoToken
}
