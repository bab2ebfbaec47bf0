package monitor

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingSleeper captures backoff delays instead of waiting them out
type recordingSleeper struct {
	mu     sync.Mutex
	delays []time.Duration
}

func (rs *recordingSleeper) sleep(_ context.Context, d time.Duration) error {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	rs.delays = append(rs.delays, d)
	return nil
}

func (rs *recordingSleeper) recorded() []time.Duration {
	rs.mu.Lock()
	defer rs.mu.Unlock()
	return append([]time.Duration(nil), rs.delays...)
}

// newTestExecutor wires an executor against a test server that handles
// both the token exchange and data requests.
func newTestExecutor(t *testing.T, dataHandler http.HandlerFunc, opts ...ExecutorOption) (*RequestExecutor, *httptest.Server) {
	t.Helper()

	mux := http.NewServeMux()
	mux.HandleFunc("/cctrustoauth2/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	mux.HandleFunc("/monitorodata/", dataHandler)

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tokens := NewTokenProvider(
		WithTokenHTTPClient(server.Client()),
		WithCloudEndpoint(server.URL),
	)

	base := []ExecutorOption{WithHTTPClient(server.Client())}
	exec := NewRequestExecutor(tokens, NewRateGate(), append(base, opts...)...)
	return exec, server
}

func TestExecutorSuccess(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "CWSAuth bearer=tok", r.Header.Get("Authorization"))
		assert.Equal(t, "acme", r.Header.Get("Citrix-CustomerId"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"value": [{"Id": 1}]}`))
	})

	page, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Machines")
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
}

func TestExecutorRetriesOn429(t *testing.T) {
	sleeper := &recordingSleeper{}
	var calls int32

	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) <= 2 {
			w.Header().Set("Retry-After", "2")
			w.WriteHeader(http.StatusTooManyRequests)
			return
		}
		_, _ = w.Write([]byte(`{"value": []}`))
	}, WithSleeper(sleeper.sleep))

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Sessions")
	require.NoError(t, err)
	assert.Equal(t, int32(3), atomic.LoadInt32(&calls))

	// The service's Retry-After hint must override the computed delay
	delays := sleeper.recorded()
	require.Len(t, delays, 2)
	for _, d := range delays {
		assert.Equal(t, 2*time.Second, d)
	}
}

func TestExecutorRateLimitExhaustion(t *testing.T) {
	sleeper := &recordingSleeper{}
	var calls int32

	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithSleeper(sleeper.sleep), WithBackoff(time.Millisecond, 10*time.Millisecond, 3))

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Sessions")
	require.Error(t, err)

	rlErr, ok := AsRateLimitExceededError(err)
	require.True(t, ok, "expected a RateLimitExceededError, got %T", err)
	assert.Equal(t, 3, rlErr.Attempts)

	// Initial attempt plus three retries
	assert.Equal(t, int32(4), atomic.LoadInt32(&calls))
	assert.Len(t, sleeper.recorded(), 3)
}

func TestExecutorBackoffDelaysGrow(t *testing.T) {
	sleeper := &recordingSleeper{}

	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		// No Retry-After header: the executor computes its own schedule
		w.WriteHeader(http.StatusTooManyRequests)
	}, WithSleeper(sleeper.sleep), WithBackoff(100*time.Millisecond, time.Second, 4))

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Sessions")
	require.Error(t, err)

	delays := sleeper.recorded()
	require.Len(t, delays, 4)
	for i := 1; i < len(delays); i++ {
		assert.GreaterOrEqual(t, delays[i], delays[i-1])
	}
}

func TestExecutorRefreshesTokenOnceOn401(t *testing.T) {
	var dataCalls, tokenCalls int32

	mux := http.NewServeMux()
	mux.HandleFunc("/cctrustoauth2/", func(w http.ResponseWriter, r *http.Request) {
		n := atomic.AddInt32(&tokenCalls, 1)
		w.Header().Set("Content-Type", "application/json")
		token := "tok-stale"
		if n > 1 {
			token = "tok-fresh"
		}
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": token, "expires_in": 3600})
	})
	mux.HandleFunc("/monitorodata/", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&dataCalls, 1)
		if r.Header.Get("Authorization") != "CWSAuth bearer=tok-fresh" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		_, _ = w.Write([]byte(`{"value": []}`))
	})

	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tokens := NewTokenProvider(WithTokenHTTPClient(server.Client()), WithCloudEndpoint(server.URL))
	exec := NewRequestExecutor(tokens, NewRateGate(), WithHTTPClient(server.Client()))

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Machines")
	require.NoError(t, err)
	assert.Equal(t, int32(2), atomic.LoadInt32(&dataCalls))
	assert.Equal(t, int32(2), atomic.LoadInt32(&tokenCalls))
}

func TestExecutorAuthErrorAfterFailedRefresh(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusForbidden)
	})

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Machines")
	require.Error(t, err)

	authErr, ok := AsAuthError(err)
	require.True(t, ok, "expected an AuthError, got %T", err)
	assert.Contains(t, authErr.Message, "403")
}

func TestExecutorRemoteError(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte(`{"error": {"code": "BadRequest", "message": "unknown entity"}}`))
	})

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Nope")
	require.Error(t, err)

	remErr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, http.StatusBadRequest, remErr.StatusCode)
	assert.Equal(t, "BadRequest", remErr.Code)
	assert.Equal(t, "unknown entity", remErr.Message)
}

func TestExecutorErrorEnvelopeAt200(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"error": {"code": "QueryTooComplex", "message": "narrow the filter"}}`))
	})

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Sessions")
	require.Error(t, err)

	remErr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Equal(t, "QueryTooComplex", remErr.Code)
}

func TestExecutorTimeout(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"value": []}`))
	}, WithRequestTimeout(20*time.Millisecond))

	_, err := exec.Do(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Sessions")
	require.Error(t, err)

	toErr, ok := AsTimeoutError(err)
	require.True(t, ok, "expected a TimeoutError, got %T", err)
	assert.Equal(t, 20*time.Millisecond, toErr.Limit)
}

func TestExecutorCallerCancellationWins(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
	})

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	_, err := exec.Do(ctx, cloudAuthContext(), server.URL+"/monitorodata/Sessions")
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestExecutorNetworkError(t *testing.T) {
	// A server that only exists to mint tokens
	mux := http.NewServeMux()
	mux.HandleFunc("/cctrustoauth2/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{"access_token": "tok", "expires_in": 3600})
	})
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)

	tokens := NewTokenProvider(WithTokenHTTPClient(server.Client()), WithCloudEndpoint(server.URL))
	exec := NewRequestExecutor(tokens, NewRateGate(), WithHTTPClient(server.Client()))

	// Nothing listens on this port
	_, err := exec.Do(context.Background(), cloudAuthContext(), "http://127.0.0.1:1/monitorodata/Machines")
	require.Error(t, err)

	_, ok := AsNetworkError(err)
	assert.True(t, ok, "expected a NetworkError, got %T", err)
}

func TestExecutorDoText(t *testing.T) {
	exec, server := newTestExecutor(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte("1337"))
	})

	body, err := exec.DoText(context.Background(), cloudAuthContext(), server.URL+"/monitorodata/Sessions/$count")
	require.NoError(t, err)
	assert.Equal(t, "1337", body)
}
