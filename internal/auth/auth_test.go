package auth

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"
)

var testConfig = Config{Secret: "s3cret", Issuer: "wellness-test"}

func sign(t *testing.T, claims jwt.MapClaims) string {
	t.Helper()
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(testConfig.Secret))
	require.NoError(t, err)
	return token
}

func TestParseNormalizesScopes(t *testing.T) {
	token := sign(t, jwt.MapClaims{
		"sub":    "athlete-1",
		"iss":    "wellness-test",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": "metrics:read  sync:write",
	})

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, "athlete-1", claims.Subject)
	require.True(t, claims.HasScope(ScopeMetricsRead))
	require.True(t, claims.HasScope(ScopeSyncWrite))
	require.False(t, claims.HasScope("admin"))
}

func TestParseRejectsBadTokens(t *testing.T) {
	_, err := Parse("  ", testConfig)
	require.ErrorIs(t, err, ErrMissingToken)

	expired := sign(t, jwt.MapClaims{"sub": "a", "iss": "wellness-test", "exp": time.Now().Add(-time.Minute).Unix()})
	_, err = Parse(expired, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noExpiry := sign(t, jwt.MapClaims{"sub": "a", "iss": "wellness-test"})
	_, err = Parse(noExpiry, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	wrongIssuer := sign(t, jwt.MapClaims{"sub": "a", "iss": "other", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = Parse(wrongIssuer, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)

	noSubject := sign(t, jwt.MapClaims{"iss": "wellness-test", "exp": time.Now().Add(time.Hour).Unix()})
	_, err = Parse(noSubject, testConfig)
	require.ErrorIs(t, err, ErrInvalidToken)
}

func TestParseScopesFromArray(t *testing.T) {
	token := sign(t, jwt.MapClaims{
		"sub":    "athlete-1",
		"iss":    "wellness-test",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []string{"sync:write", " metrics:read", "sync:write", ""},
	})

	claims, err := Parse(token, testConfig)
	require.NoError(t, err)
	require.Equal(t, []Scope{ScopeMetricsRead, ScopeSyncWrite}, claims.Scopes)
}

func TestParseAthleteClaim(t *testing.T) {
	exp := time.Now().Add(time.Hour).Unix()

	claims, err := Parse(sign(t, jwt.MapClaims{"sub": "svc-sync", "iss": "wellness-test", "exp": exp, "athlete_id": "a-42"}), testConfig)
	require.NoError(t, err)
	require.Equal(t, "svc-sync", claims.Subject)
	require.Equal(t, "a-42", claims.Athlete)

	claims, err = Parse(sign(t, jwt.MapClaims{"sub": "a-42", "iss": "wellness-test", "exp": exp}), testConfig)
	require.NoError(t, err)
	require.Equal(t, "a-42", claims.Athlete, "subject stands in for a missing athlete_id")

	pinned := testConfig
	pinned.Athlete = "a-42"
	_, err = Parse(sign(t, jwt.MapClaims{"sub": "a-7", "iss": "wellness-test", "exp": exp}), pinned)
	require.ErrorIs(t, err, ErrWrongAthlete)
}

func TestAuthorize(t *testing.T) {
	_, err := Authorize(context.Background(), ScopeMetricsRead)
	require.ErrorIs(t, err, ErrMissingToken)

	reader := WithClaims(context.Background(), &Claims{Subject: "a", Scopes: []Scope{ScopeMetricsRead}})
	_, err = Authorize(reader, ScopeMetricsRead)
	require.NoError(t, err)
	_, err = Authorize(reader, ScopeSyncWrite)
	require.ErrorIs(t, err, ErrForbidden)

	admin := WithClaims(context.Background(), &Claims{Subject: "ops", Scopes: []Scope{ScopeAdmin}})
	claims, err := Authorize(admin, ScopeSyncWrite)
	require.NoError(t, err)
	require.Equal(t, "ops", claims.Subject)
}

func TestMiddlewareSkipsPublicPaths(t *testing.T) {
	var seen *Claims
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen, _ = FromContext(r.Context())
		w.WriteHeader(http.StatusNoContent)
	})
	handler := NewMiddleware(testConfig, PublicPaths).Wrap(next)

	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.Nil(t, seen)

	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/v1/daily-metrics", nil))
	require.Equal(t, http.StatusUnauthorized, rec.Code)

	req := httptest.NewRequest(http.MethodGet, "/v1/daily-metrics", nil)
	req.Header.Set("Authorization", "Bearer "+sign(t, jwt.MapClaims{
		"sub":    "athlete-1",
		"iss":    "wellness-test",
		"exp":    time.Now().Add(time.Hour).Unix(),
		"scopes": []Scope{ScopeMetricsRead},
	}))
	rec = httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	require.Equal(t, http.StatusNoContent, rec.Code)
	require.NotNil(t, seen)
	require.True(t, seen.HasScope(ScopeMetricsRead))
}
