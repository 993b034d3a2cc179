package middleware

import (
	"crypto/rand"
	"crypto/rsa"
	"encoding/base64"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testKeyID = "test-key"

// newJWKSServer publishes the public half of key as a one-entry JWKS.
func newJWKSServer(t *testing.T, key *rsa.PrivateKey) *httptest.Server {
	t.Helper()

	n := base64.RawURLEncoding.EncodeToString(key.N.Bytes())
	e := base64.RawURLEncoding.EncodeToString(big.NewInt(int64(key.E)).Bytes())
	body := fmt.Sprintf(`{"keys":[{"kty":"RSA","kid":%q,"use":"sig","alg":"RS256","n":%q,"e":%q}]}`,
		testKeyID, n, e)

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}))
	t.Cleanup(srv.Close)
	return srv
}

func signToken(t *testing.T, key *rsa.PrivateKey, claims jwt.MapClaims) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodRS256, claims)
	token.Header["kid"] = testKeyID
	signed, err := token.SignedString(key)
	require.NoError(t, err)
	return signed
}

func TestJWKSVerifierValidate(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key)

	verifier, err := NewJWKSVerifier(srv.URL, zap.NewNop())
	require.NoError(t, err)
	defer verifier.Shutdown()

	t.Run("valid token maps to session", func(t *testing.T) {
		signed := signToken(t, key, jwt.MapClaims{
			"sub":   "user-1",
			"email": "user1@example.com",
			"role":  "doctor",
			"exp":   time.Now().Add(time.Hour).Unix(),
		})

		session, err := verifier.Validate(signed)
		require.NoError(t, err)
		assert.Equal(t, "user-1", session.UserID)
		assert.Equal(t, "user1@example.com", session.Email)
		assert.Equal(t, "doctor", session.Role)
		assert.WithinDuration(t, time.Now().Add(time.Hour), session.ExpiresAt, time.Minute)
	})

	t.Run("missing role defaults to patient", func(t *testing.T) {
		signed := signToken(t, key, jwt.MapClaims{
			"sub": "user-2",
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		session, err := verifier.Validate(signed)
		require.NoError(t, err)
		assert.Equal(t, "patient", session.Role)
	})

	t.Run("missing subject rejected", func(t *testing.T) {
		signed := signToken(t, key, jwt.MapClaims{
			"exp": time.Now().Add(time.Hour).Unix(),
		})

		_, err := verifier.Validate(signed)
		assert.Error(t, err)
	})

	t.Run("expired token rejected", func(t *testing.T) {
		signed := signToken(t, key, jwt.MapClaims{
			"sub": "user-3",
			"exp": time.Now().Add(-time.Hour).Unix(),
		})

		_, err := verifier.Validate(signed)
		assert.Error(t, err)
	})

	t.Run("garbage token rejected", func(t *testing.T) {
		_, err := verifier.Validate("not.a.jwt")
		assert.Error(t, err)
	})
}

func TestJWKSVerifierShutdownStopsRefresh(t *testing.T) {
	key, err := rsa.GenerateKey(rand.Reader, 2048)
	require.NoError(t, err)
	srv := newJWKSServer(t, key)

	verifier, err := NewJWKSVerifier(srv.URL, zap.NewNop())
	require.NoError(t, err)

	verifier.Shutdown()

	// Keys fetched before shutdown still verify; only the refresh loop stops.
	signed := signToken(t, key, jwt.MapClaims{
		"sub": "user-4",
		"exp": time.Now().Add(time.Hour).Unix(),
	})
	session, err := verifier.Validate(signed)
	require.NoError(t, err)
	assert.Equal(t, "user-4", session.UserID)
}
