package monitor

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"time"

	"github.com/VDIOps/CitrixMonMCP/global"
)

const (
	// requestTimeout matches the service's own 30-second query ceiling
	requestTimeout = 30 * time.Second

	// Backoff defaults for 429 responses
	defaultBackoffBase = 1 * time.Second
	defaultBackoffMax  = 20 * time.Second
	defaultMaxRetries  = 5
)

// RequestExecutor issues one HTTP request at a time per tenant: it
// obtains a token, acquires the tenant's RateGate permit, applies the
// 30s ceiling, classifies the response, and retries 429s with backoff.
// Each retry attempt independently acquires and releases the permit, so
// a waiting query from another caller can interleave between attempts.
type RequestExecutor struct {
	httpClient  *http.Client
	tokens      *TokenProvider
	gate        *RateGate
	logger      global.Logger
	sleep       Sleeper
	now         func() time.Time
	timeout     time.Duration
	backoffBase time.Duration
	backoffMax  time.Duration
	maxRetries  int
}

// ExecutorOption defines a configuration option for the RequestExecutor
type ExecutorOption func(*RequestExecutor)

// WithHTTPClient sets the HTTP client used for query requests
func WithHTTPClient(client *http.Client) ExecutorOption {
	return func(e *RequestExecutor) {
		e.httpClient = client
	}
}

// WithExecutorLogger sets the logger for the executor
func WithExecutorLogger(logger global.Logger) ExecutorOption {
	return func(e *RequestExecutor) {
		e.logger = logger
	}
}

// WithSleeper sets the sleep function used between 429 retries; tests
// inject one to run the backoff state machine without real delays.
func WithSleeper(sleep Sleeper) ExecutorOption {
	return func(e *RequestExecutor) {
		e.sleep = sleep
	}
}

// WithExecutorClock sets the time source; used in tests
func WithExecutorClock(now func() time.Time) ExecutorOption {
	return func(e *RequestExecutor) {
		e.now = now
	}
}

// WithRequestTimeout overrides the per-request ceiling; used in tests
func WithRequestTimeout(d time.Duration) ExecutorOption {
	return func(e *RequestExecutor) {
		e.timeout = d
	}
}

// WithBackoff configures the 429 retry budget
func WithBackoff(base, max time.Duration, maxRetries int) ExecutorOption {
	return func(e *RequestExecutor) {
		e.backoffBase = base
		e.backoffMax = max
		e.maxRetries = maxRetries
	}
}

// NewRequestExecutor creates a new RequestExecutor
func NewRequestExecutor(tokens *TokenProvider, gate *RateGate, opts ...ExecutorOption) *RequestExecutor {
	e := &RequestExecutor{
		httpClient:  &http.Client{},
		tokens:      tokens,
		gate:        gate,
		sleep:       defaultSleeper,
		now:         time.Now,
		timeout:     requestTimeout,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		maxRetries:  defaultMaxRetries,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// Do executes one GET against the service and maps the JSON payload.
// The OData error-envelope-at-200 quirk is handled by the mapper.
func (e *RequestExecutor) Do(ctx context.Context, auth AuthContext, rawURL string) (*Page, error) {
	body, err := e.fetch(ctx, auth, rawURL)
	if err != nil {
		return nil, err
	}
	mapper := NewMapper(e.logger)
	return mapper.MapPage(http.StatusOK, body)
}

// DoText executes one GET and returns the raw body. Used for the
// /$count endpoint, which returns a bare number rather than JSON.
func (e *RequestExecutor) DoText(ctx context.Context, auth AuthContext, rawURL string) (string, error) {
	body, err := e.fetch(ctx, auth, rawURL)
	if err != nil {
		return "", err
	}
	return string(body), nil
}

// fetch runs the full request flow: token, permit, timeout, response
// classification, 429 backoff, and a single 401/403 token refresh.
// It returns the body only for 2xx responses.
func (e *RequestExecutor) fetch(ctx context.Context, auth AuthContext, rawURL string) ([]byte, error) {
	bo := newBackoff(e.backoffBase, e.backoffMax, e.maxRetries)
	authRetried := false
	var lastDelay time.Duration

	for {
		token, err := e.tokens.GetToken(ctx, auth)
		if err != nil {
			return nil, err
		}

		var status int
		var header http.Header
		var body []byte

		err = e.gate.WithPermit(ctx, auth.TenantID(), func() error {
			status, header, body = 0, nil, nil
			return e.attempt(ctx, auth, token, rawURL, &status, &header, &body)
		})
		if err != nil {
			return nil, err
		}

		switch {
		case status >= 200 && status < 300:
			return body, nil

		case status == http.StatusTooManyRequests:
			delay, ok := bo.next(parseRetryAfter(header, e.now()))
			if !ok {
				return nil, &RateLimitExceededError{Attempts: bo.attempts(), LastDelay: lastDelay}
			}
			lastDelay = delay
			if e.logger != nil {
				e.logger.Warningf("Rate limited by service (attempt %d/%d), retrying in %v",
					bo.attempts(), e.maxRetries, delay)
			}
			if err := e.sleep(ctx, delay); err != nil {
				return nil, err
			}

		case status == http.StatusUnauthorized || status == http.StatusForbidden:
			if authRetried {
				return nil, NewAuthError(auth.Mode,
					fmt.Sprintf("request rejected with HTTP %d after token refresh", status), nil)
			}
			// The cached token may have been revoked; refresh once
			if e.logger != nil {
				e.logger.Infof("Request rejected with HTTP %d, refreshing token and retrying once", status)
			}
			e.tokens.Invalidate(auth)
			authRetried = true

		default:
			return nil, remoteErrorFromBody(status, body)
		}
	}
}

// attempt performs a single HTTP round trip under the permit
func (e *RequestExecutor) attempt(ctx context.Context, auth AuthContext, token Token, rawURL string,
	status *int, header *http.Header, body *[]byte) error {

	reqCtx, cancel := context.WithTimeout(ctx, e.timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(reqCtx, http.MethodGet, rawURL, nil)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", token.AuthorizationHeader())
	req.Header.Set("Accept", "application/json")
	if auth.Mode == DeploymentCloud {
		req.Header.Set("Citrix-CustomerId", auth.Cloud.CustomerID)
	}

	if e.logger != nil {
		e.logger.Debugf("GET %s", rawURL)
	}

	resp, err := e.httpClient.Do(req)
	if err != nil {
		// Caller cancellation wins over timeout classification
		if ctx.Err() != nil {
			return ctx.Err()
		}
		var netErr net.Error
		if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
			return &TimeoutError{URL: rawURL, Limit: e.timeout, Cause: err}
		}
		return &NetworkError{URL: rawURL, Message: err.Error(), Cause: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		return &NetworkError{URL: rawURL, Message: "failed to read response body", Cause: err}
	}

	*status = resp.StatusCode
	*header = resp.Header
	*body = data

	if e.logger != nil {
		e.logger.Debugf("GET %s -> HTTP %d (%d bytes)", rawURL, resp.StatusCode, len(data))
	}
	return nil
}

// remoteErrorFromBody builds a RemoteError, lifting code/message out of
// an OData error envelope when the body carries one.
func remoteErrorFromBody(statusCode int, body []byte) *RemoteError {
	var envelope struct {
		Error *odataError `json:"error"`
	}
	if err := json.Unmarshal(body, &envelope); err == nil && envelope.Error != nil {
		return &RemoteError{
			StatusCode: statusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}
	return &RemoteError{StatusCode: statusCode, Body: truncateBody(body)}
}
