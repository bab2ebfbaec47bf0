package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func cloudAuthContext() AuthContext {
	return AuthContext{
		Mode: DeploymentCloud,
		Cloud: &CloudAuth{
			CustomerID:   "acme",
			ClientID:     "client-1",
			ClientSecret: "secret",
			Region:       "us",
		},
	}
}

func TestGetTokenCloud(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)

		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/cctrustoauth2/acme/tokens/clients", r.URL.Path)

		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.PostForm.Get("grant_type"))
		assert.Equal(t, "client-1", r.PostForm.Get("client_id"))
		assert.Equal(t, "secret", r.PostForm.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": "tok-abc",
			"token_type":   "bearer",
			"expires_in":   3600,
		})
	}))
	defer server.Close()

	provider := NewTokenProvider(
		WithTokenHTTPClient(server.Client()),
		WithCloudEndpoint(server.URL),
	)

	token, err := provider.GetToken(context.Background(), cloudAuthContext())
	require.NoError(t, err)
	assert.Equal(t, "tok-abc", token.Value)
	assert.Equal(t, "CWSAuth bearer=tok-abc", token.AuthorizationHeader())

	// Second call is served from the cache
	token2, err := provider.GetToken(context.Background(), cloudAuthContext())
	require.NoError(t, err)
	assert.Equal(t, token.Value, token2.Value)
	assert.Equal(t, int32(1), atomic.LoadInt32(&requests))
}

func TestGetTokenRefreshNearExpiry(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{
			"access_token": map[int32]string{1: "tok-1", 2: "tok-2"}[n],
			"expires_in":   120,
		})
	}))
	defer server.Close()

	now := time.Now()
	clock := func() time.Time { return now }

	provider := NewTokenProvider(
		WithTokenHTTPClient(server.Client()),
		WithCloudEndpoint(server.URL),
		WithTokenClock(func() time.Time { return clock() }),
	)

	token, err := provider.GetToken(context.Background(), cloudAuthContext())
	require.NoError(t, err)
	assert.Equal(t, "tok-1", token.Value)

	// Advance to within the refresh margin of expiry; the cached token
	// must be replaced even though it has not technically expired.
	now = now.Add(90 * time.Second)
	token, err = provider.GetToken(context.Background(), cloudAuthContext())
	require.NoError(t, err)
	assert.Equal(t, "tok-2", token.Value)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGetTokenInvalidate(t *testing.T) {
	var requests int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&requests, 1)
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	}))
	defer server.Close()

	provider := NewTokenProvider(
		WithTokenHTTPClient(server.Client()),
		WithCloudEndpoint(server.URL),
	)

	_, err := provider.GetToken(context.Background(), cloudAuthContext())
	require.NoError(t, err)

	provider.Invalidate(cloudAuthContext())

	_, err = provider.GetToken(context.Background(), cloudAuthContext())
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&requests))
}

func TestGetTokenCloudFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer server.Close()

	provider := NewTokenProvider(
		WithTokenHTTPClient(server.Client()),
		WithCloudEndpoint(server.URL),
	)

	_, err := provider.GetToken(context.Background(), cloudAuthContext())
	require.Error(t, err)

	authErr, ok := AsAuthError(err)
	require.True(t, ok, "expected an AuthError, got %T", err)
	assert.Equal(t, DeploymentCloud, authErr.Mode)
	assert.Contains(t, authErr.Error(), "401")
}

func TestGetTokenOnPrem(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, onPremTokenPath, r.URL.Path)

		user, pass, ok := r.BasicAuth()
		require.True(t, ok)
		assert.Equal(t, `CORP\svc-monitor`, user)
		assert.Equal(t, "hunter2", pass)

		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"token": "sess-1", "expiresIn": 1800})
	}))
	defer server.Close()

	provider := NewTokenProvider(WithTokenHTTPClient(server.Client()))

	auth := AuthContext{
		Mode: DeploymentOnPrem,
		OnPrem: &OnPremAuth{
			DDCHost:  server.URL,
			Domain:   "CORP",
			Username: "svc-monitor",
			Password: "hunter2",
		},
	}

	token, err := provider.GetToken(context.Background(), auth)
	require.NoError(t, err)
	assert.Equal(t, "sess-1", token.Value)
	assert.Equal(t, "Bearer sess-1", token.AuthorizationHeader())
}

func TestTokenValid(t *testing.T) {
	now := time.Now()

	tests := []struct {
		name   string
		token  Token
		expect bool
	}{
		{"empty token", Token{}, false},
		{"fresh token", Token{Value: "t", ExpiresAt: now.Add(time.Hour)}, true},
		{"expired token", Token{Value: "t", ExpiresAt: now.Add(-time.Minute)}, false},
		{"inside refresh margin", Token{Value: "t", ExpiresAt: now.Add(30 * time.Second)}, false},
		{"just outside refresh margin", Token{Value: "t", ExpiresAt: now.Add(61 * time.Second)}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expect, tt.token.Valid(now))
		})
	}
}
