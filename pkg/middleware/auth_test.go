package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rajkumarkushi/sartree-ecommerce/pkg/logger"
)

const testSecret = "test-secret-key-for-jwt-signing"

func signToken(t *testing.T, method jwt.SigningMethod, secret string, claims jwt.MapClaims) string {
	t.Helper()
	s, err := jwt.NewWithClaims(method, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return s
}

// identityHandler echoes the resolved user ID and token.
func identityHandler() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]string{
			"user_id": UserIDFromContext(r.Context()),
			"token":   TokenFromContext(r.Context()),
		})
	})
}

func serveAuth(t *testing.T, authHeader string) (*httptest.ResponseRecorder, map[string]string) {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, "/api/v1/storefront/cart", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	rr := httptest.NewRecorder()
	OptionalAuth(testSecret, logger.Discard())(identityHandler()).ServeHTTP(rr, req)

	var body map[string]string
	if rr.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	}
	return rr, body
}

func TestOptionalAuth_Anonymous(t *testing.T) {
	rr, body := serveAuth(t, "")
	assert.Equal(t, http.StatusOK, rr.Code)
	assert.Empty(t, body["user_id"])
	assert.Empty(t, body["token"])
}

func TestOptionalAuth_ValidTokens(t *testing.T) {
	exp := jwt.NewNumericDate(time.Now().Add(time.Hour))
	tests := []struct {
		name   string
		claims jwt.MapClaims
		want   string
	}{
		{"string user_id", jwt.MapClaims{"user_id": "user-123", "exp": exp}, "user-123"},
		{"numeric user_id", jwt.MapClaims{"user_id": 42, "exp": exp}, "42"},
		{"sub fallback", jwt.MapClaims{"sub": "user-456", "exp": exp}, "user-456"},
		{"user_id wins over sub", jwt.MapClaims{"user_id": "a", "sub": "b", "exp": exp}, "a"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			token := signToken(t, jwt.SigningMethodHS256, testSecret, tt.claims)
			rr, body := serveAuth(t, "Bearer "+token)
			require.Equal(t, http.StatusOK, rr.Code)
			assert.Equal(t, tt.want, body["user_id"])
			assert.Equal(t, token, body["token"])
		})
	}
}

func TestOptionalAuth_Rejected(t *testing.T) {
	expired := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{
		"user_id": "u", "exp": jwt.NewNumericDate(time.Now().Add(-time.Hour)),
	})
	wrongSecret := signToken(t, jwt.SigningMethodHS256, "other-secret", jwt.MapClaims{"user_id": "u"})
	noSubject := signToken(t, jwt.SigningMethodHS256, testSecret, jwt.MapClaims{"email": "a@b.c"})

	tests := []struct {
		name   string
		header string
	}{
		{"basic scheme", "Basic dXNlcjpwYXNz"},
		{"bearer without token", "Bearer "},
		{"garbage token", "Bearer not.a.jwt"},
		{"expired", "Bearer " + expired},
		{"wrong secret", "Bearer " + wrongSecret},
		{"no subject", "Bearer " + noSubject},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr, _ := serveAuth(t, tt.header)
			assert.Equal(t, http.StatusUnauthorized, rr.Code)
			assert.Contains(t, rr.Body.String(), "UNAUTHORIZED")
		})
	}
}

func TestParseUserID_RejectsNonHMAC(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"user_id": "u"})
	s, err := token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)

	_, err = ParseUserID(s, testSecret)
	require.Error(t, err)
}
