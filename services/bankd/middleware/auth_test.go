package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	ethcommon "github.com/ethereum/go-ethereum/common"
	jwt "github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

const testSecret = "topsecret"

var subject = ethcommon.HexToAddress("0xa1")

func sign(t *testing.T, secret string, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return token
}

func claimsFor(scope string) jwt.MapClaims {
	return jwt.MapClaims{
		"sub":   subject.Hex(),
		"scope": scope,
		"iss":   "bank-issuer",
		"exp":   time.Now().Add(time.Hour).Unix(),
	}
}

func newTestAuth(t *testing.T) *Authenticator {
	t.Helper()
	auth, err := NewAuthenticator(AuthConfig{HMACSecret: testSecret, Issuer: "bank-issuer"}, nil)
	require.NoError(t, err)
	return auth
}

func TestNewAuthenticatorRequiresSecret(t *testing.T) {
	_, err := NewAuthenticator(AuthConfig{}, nil)
	require.Error(t, err)
}

func TestVerify(t *testing.T) {
	auth := newTestAuth(t)

	principal, err := auth.Verify(sign(t, testSecret, claimsFor("bank:admin bank:read")))
	require.NoError(t, err)
	require.Equal(t, subject, principal.Subject)
	require.True(t, principal.Admin)
	require.Equal(t, []string{"bank:admin", "bank:read"}, principal.Scopes)

	principal, err = auth.Verify(sign(t, testSecret, claimsFor("")))
	require.NoError(t, err)
	require.False(t, principal.Admin)

	_, err = auth.Verify(sign(t, "other", claimsFor("")))
	require.Error(t, err)

	expired := claimsFor("")
	expired["exp"] = time.Now().Add(-time.Hour).Unix()
	_, err = auth.Verify(sign(t, testSecret, expired))
	require.Error(t, err)

	noExp := claimsFor("")
	delete(noExp, "exp")
	_, err = auth.Verify(sign(t, testSecret, noExp))
	require.Error(t, err)

	wrongIssuer := claimsFor("")
	wrongIssuer["iss"] = "elsewhere"
	_, err = auth.Verify(sign(t, testSecret, wrongIssuer))
	require.Error(t, err)

	badSubject := claimsFor("")
	badSubject["sub"] = "alice"
	_, err = auth.Verify(sign(t, testSecret, badSubject))
	require.Error(t, err)
}

func TestRequire(t *testing.T) {
	auth := newTestAuth(t)
	var seen *Principal
	handler := func(admin bool) http.Handler {
		return auth.Require(admin)(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			seen, _ = PrincipalFromContext(r.Context())
			w.WriteHeader(http.StatusNoContent)
		}))
	}

	tests := []struct {
		name   string
		admin  bool
		header string
		want   int
	}{
		{name: "missing", header: "", want: http.StatusUnauthorized},
		{name: "malformed", header: "Token abc", want: http.StatusUnauthorized},
		{name: "invalid", header: "Bearer abc", want: http.StatusUnauthorized},
		{name: "user", header: "Bearer " + sign(t, testSecret, claimsFor("")), want: http.StatusNoContent},
		{name: "user on admin route", admin: true, header: "Bearer " + sign(t, testSecret, claimsFor("")), want: http.StatusForbidden},
		{name: "admin", admin: true, header: "Bearer " + sign(t, testSecret, claimsFor("bank:admin")), want: http.StatusNoContent},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			seen = nil
			req := httptest.NewRequest(http.MethodPost, "/v1/adjust", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			res := httptest.NewRecorder()
			handler(tt.admin).ServeHTTP(res, req)
			require.Equal(t, tt.want, res.Code)
			if tt.want == http.StatusNoContent {
				require.NotNil(t, seen)
				require.Equal(t, subject, seen.Subject)
			}
		})
	}
}
