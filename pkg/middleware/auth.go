package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"slices"
	"strings"

	"github.com/golang-jwt/jwt/v5"

	apperrors "github.com/utafrali/shopindex/pkg/errors"
	"github.com/utafrali/shopindex/pkg/httputil"
	"github.com/utafrali/shopindex/pkg/logger"
)

// RoleAdmin is the authority required for administrative endpoints.
const RoleAdmin = "ROLE_ADMIN"

type claimsKey struct{}

// Claims is the caller identity extracted from a bearer token.
type Claims struct {
	Subject string
	Roles   []string
}

// HasRole reports whether the caller holds role.
func (c *Claims) HasRole(role string) bool {
	return c != nil && slices.Contains(c.Roles, role)
}

// TokenValidator validates a raw bearer token and returns its claims.
type TokenValidator func(token string) (*Claims, error)

// tokenClaims accepts authorities either as a comma separated "auth" claim
// or as a "roles" array.
type tokenClaims struct {
	Auth  string   `json:"auth,omitempty"`
	Roles []string `json:"roles,omitempty"`
	jwt.RegisteredClaims
}

// HMACValidator validates HMAC-signed tokens with secret. Tokens must carry
// an expiry. An empty secret rejects every token.
func HMACValidator(secret string) TokenValidator {
	if secret == "" {
		return func(string) (*Claims, error) {
			return nil, errors.New("token validation is not configured")
		}
	}
	key := []byte(secret)
	parser := jwt.NewParser(
		jwt.WithValidMethods([]string{"HS256", "HS384", "HS512"}),
		jwt.WithExpirationRequired(),
	)

	return func(raw string) (*Claims, error) {
		var tc tokenClaims
		token, err := parser.ParseWithClaims(raw, &tc, func(*jwt.Token) (any, error) {
			return key, nil
		})
		if err != nil {
			return nil, fmt.Errorf("parse token: %w", err)
		}
		if !token.Valid {
			return nil, errors.New("token is not valid")
		}

		claims := &Claims{Subject: tc.Subject}
		for _, a := range strings.Split(tc.Auth, ",") {
			if a = strings.TrimSpace(a); a != "" {
				claims.Roles = append(claims.Roles, a)
			}
		}
		claims.Roles = append(claims.Roles, tc.Roles...)
		return claims, nil
	}
}

// Auth requires a valid bearer token and stores the caller's claims in the
// request context.
func Auth(validate TokenValidator) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			scheme, token, ok := strings.Cut(r.Header.Get("Authorization"), " ")
			if !ok || !strings.EqualFold(scheme, "bearer") || token == "" {
				writeAuthError(w, r, apperrors.Unauthorized("missing or malformed bearer token"))
				return
			}

			claims, err := validate(token)
			if err != nil {
				logger.FromContext(r.Context()).WarnContext(r.Context(), "rejected bearer token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				writeAuthError(w, r, apperrors.Unauthorized("invalid or expired token"))
				return
			}

			ctx := context.WithValue(r.Context(), claimsKey{}, claims)
			if claims.Subject != "" {
				ctx = logger.WithUserID(ctx, claims.Subject)
				if l := logger.FromContext(ctx); l != slog.Default() {
					ctx = logger.NewContext(ctx, l.With(slog.String("user_id", claims.Subject)))
				}
			}
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// RequireRole lets the request through when the caller holds any of roles.
// It must run after Auth.
func RequireRole(roles ...string) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			claims := ClaimsFromContext(r.Context())
			if !slices.ContainsFunc(roles, claims.HasRole) {
				writeAuthError(w, r, apperrors.Forbidden("insufficient permissions"))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// ClaimsFromContext returns the claims stored by Auth, or nil.
func ClaimsFromContext(ctx context.Context) *Claims {
	c, _ := ctx.Value(claimsKey{}).(*Claims)
	return c
}

// UserIDFromContext returns the authenticated subject, or "".
func UserIDFromContext(ctx context.Context) string {
	if c := ClaimsFromContext(ctx); c != nil {
		return c.Subject
	}
	return ""
}

func writeAuthError(w http.ResponseWriter, r *http.Request, err *apperrors.AppError) {
	if err.Status == http.StatusUnauthorized {
		w.Header().Set("WWW-Authenticate", `Bearer realm="shopindex"`)
	}
	httputil.WriteError(w, r, err, nil)
}
