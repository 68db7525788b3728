package middleware

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strconv"
	"strings"

	"github.com/golang-jwt/jwt/v5"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	apperrors "github.com/rajkumarkushi/sartree-ecommerce/pkg/errors"
	"github.com/rajkumarkushi/sartree-ecommerce/pkg/httputil"
)

type contextKeyType string

const (
	userIDKey contextKeyType = "user_id"
	tokenKey  contextKeyType = "bearer_token"
)

var errNoSubject = errors.New("token carries no user_id or sub claim")

// OptionalAuth resolves an optional Bearer token into a user ID. Requests
// without an Authorization header pass through anonymously; a header that is
// malformed or carries an invalid token is rejected with 401.
func OptionalAuth(secret string, logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			authHeader := r.Header.Get("Authorization")
			if authHeader == "" {
				next.ServeHTTP(w, r)
				return
			}

			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || !strings.EqualFold(parts[0], "bearer") || parts[1] == "" {
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid authorization header format"), logger)
				return
			}

			userID, err := ParseUserID(parts[1], secret)
			if err != nil {
				logger.WarnContext(r.Context(), "invalid JWT token",
					slog.String("path", r.URL.Path),
					slog.String("error", err.Error()),
				)
				httputil.WriteError(w, r, apperrors.Unauthorized("invalid or expired token"), logger)
				return
			}

			trace.SpanFromContext(r.Context()).SetAttributes(attribute.String("cart.user_id", userID))

			ctx := context.WithValue(r.Context(), userIDKey, userID)
			ctx = context.WithValue(ctx, tokenKey, parts[1])
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ParseUserID validates an HMAC-signed token and returns its user_id claim,
// falling back to sub. Numeric IDs are rendered without a fraction.
func ParseUserID(tokenString, secret string) (string, error) {
	token, err := jwt.Parse(tokenString, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrSignatureInvalid
		}
		return []byte(secret), nil
	})
	if err != nil {
		return "", err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", jwt.ErrTokenInvalidClaims
	}

	for _, name := range []string{"user_id", "sub"} {
		if id := claimString(claims[name]); id != "" {
			return id, nil
		}
	}
	return "", errNoSubject
}

func claimString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	default:
		return ""
	}
}

// UserIDFromContext returns the authenticated user ID, or "" for anonymous
// requests.
func UserIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(userIDKey).(string); ok {
		return id
	}
	return ""
}

// TokenFromContext returns the raw bearer token accepted by OptionalAuth.
func TokenFromContext(ctx context.Context) string {
	if token, ok := ctx.Value(tokenKey).(string); ok {
		return token
	}
	return ""
}
