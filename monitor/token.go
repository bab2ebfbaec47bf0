package monitor

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/VDIOps/CitrixMonMCP/global"
)

// tokenRefreshMargin is how long before expiry a cached token is
// considered stale. It leaves room for a request that is already in
// flight to complete before the token actually expires.
const tokenRefreshMargin = 60 * time.Second

// onPremTokenPath is the controller endpoint that exchanges domain
// credentials for a session bearer credential.
const onPremTokenPath = "/Citrix/Monitor/Auth/v1/Tokens"

// Token is a bearer credential. Tokens are invalidated and replaced,
// never mutated in place.
type Token struct {
	Value     string
	Scheme    string // "CWSAuth bearer" for cloud, "Bearer" for on-prem
	ExpiresAt time.Time
}

// Valid reports whether the token is usable for at least the refresh margin
func (t Token) Valid(now time.Time) bool {
	return t.Value != "" && now.Add(tokenRefreshMargin).Before(t.ExpiresAt)
}

// AuthorizationHeader returns the value for the Authorization header.
// Citrix Cloud uses the non-standard "CWSAuth bearer=TOKEN" form.
func (t Token) AuthorizationHeader() string {
	if t.Scheme == "CWSAuth bearer" {
		return fmt.Sprintf("CWSAuth bearer=%s", t.Value)
	}
	return fmt.Sprintf("%s %s", t.Scheme, t.Value)
}

// tokenEntry serializes acquisition per credential identity so that two
// callers never fetch concurrently for the same identity, while fetches
// for different identities proceed independently.
type tokenEntry struct {
	mu    sync.Mutex
	token Token
}

// TokenProvider obtains and caches bearer credentials per AuthContext
// identity. It is safe for concurrent use by multiple tenants.
type TokenProvider struct {
	httpClient *http.Client
	logger     global.Logger
	now        func() time.Time

	// cloudEndpoint overrides the regional identity host; used in tests
	cloudEndpoint string

	mu      sync.Mutex
	entries map[string]*tokenEntry
}

// TokenOption defines a configuration option for the TokenProvider
type TokenOption func(*TokenProvider)

// WithTokenHTTPClient sets the HTTP client used for token exchanges
func WithTokenHTTPClient(client *http.Client) TokenOption {
	return func(p *TokenProvider) {
		p.httpClient = client
	}
}

// WithTokenLogger sets the logger for the token provider
func WithTokenLogger(logger global.Logger) TokenOption {
	return func(p *TokenProvider) {
		p.logger = logger
	}
}

// WithTokenClock sets the time source; used in tests
func WithTokenClock(now func() time.Time) TokenOption {
	return func(p *TokenProvider) {
		p.now = now
	}
}

// WithCloudEndpoint overrides the region-derived identity host; used in tests
func WithCloudEndpoint(endpoint string) TokenOption {
	return func(p *TokenProvider) {
		p.cloudEndpoint = endpoint
	}
}

// NewTokenProvider creates a new TokenProvider
func NewTokenProvider(opts ...TokenOption) *TokenProvider {
	p := &TokenProvider{
		httpClient: &http.Client{Timeout: 30 * time.Second},
		now:        time.Now,
		entries:    make(map[string]*tokenEntry),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// entry returns the per-identity entry, creating it on first use
func (p *TokenProvider) entry(identity string) *tokenEntry {
	p.mu.Lock()
	defer p.mu.Unlock()
	e, ok := p.entries[identity]
	if !ok {
		e = &tokenEntry{}
		p.entries[identity] = e
	}
	return e
}

// GetToken returns a valid token for the credential identity, fetching a
// new one if the cache is empty or within the refresh margin of expiry.
// Replacement is atomic from the caller's perspective: concurrent
// callers see either the old valid token or the new one.
func (p *TokenProvider) GetToken(ctx context.Context, auth AuthContext) (Token, error) {
	e := p.entry(auth.Identity())

	e.mu.Lock()
	defer e.mu.Unlock()

	if e.token.Valid(p.now()) {
		return e.token, nil
	}

	var token Token
	var err error
	switch auth.Mode {
	case DeploymentCloud:
		token, err = p.fetchCloudToken(ctx, auth.Cloud)
	case DeploymentOnPrem:
		token, err = p.fetchOnPremToken(ctx, auth.OnPrem)
	default:
		return Token{}, NewConfigurationError("deployment", fmt.Sprintf("unknown deployment mode %q", auth.Mode))
	}
	if err != nil {
		return Token{}, err
	}

	if p.logger != nil {
		p.logger.Debugf("Acquired %s token for %s (expires %s)",
			auth.Mode, auth.TenantID(), token.ExpiresAt.Format(time.RFC3339))
	}

	e.token = token
	return token, nil
}

// Invalidate drops the cached token for the credential identity. Used by
// the executor after a 401/403 so the next attempt fetches a fresh one.
func (p *TokenProvider) Invalidate(auth AuthContext) {
	e := p.entry(auth.Identity())
	e.mu.Lock()
	e.token = Token{}
	e.mu.Unlock()

	if p.logger != nil {
		p.logger.Debugf("Invalidated cached token for %s", auth.TenantID())
	}
}

// cloudTokenResponse is the body of a successful client-credentials exchange
type cloudTokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int    `json:"expires_in"`
}

// fetchCloudToken performs an OAuth2 client-credentials exchange against
// the region-specific Citrix Cloud identity endpoint.
func (p *TokenProvider) fetchCloudToken(ctx context.Context, auth *CloudAuth) (Token, error) {
	endpoint := p.cloudEndpoint
	if endpoint == "" {
		endpoint = CloudEndpoint(auth.Region)
	}
	tokenURL := fmt.Sprintf("%s/cctrustoauth2/%s/tokens/clients", endpoint, auth.CustomerID)

	form := url.Values{}
	form.Set("grant_type", "client_credentials")
	form.Set("client_id", auth.ClientID)
	form.Set("client_secret", auth.ClientSecret)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return Token{}, NewAuthError(DeploymentCloud, "failed to build token request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Token{}, NewAuthError(DeploymentCloud, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, NewAuthError(DeploymentCloud, "failed to read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Token{}, NewAuthError(DeploymentCloud,
			fmt.Sprintf("token endpoint returned HTTP %d", resp.StatusCode), nil)
	}

	var tokenResp cloudTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return Token{}, NewAuthError(DeploymentCloud, "failed to decode token response", err)
	}
	if tokenResp.AccessToken == "" {
		return Token{}, NewAuthError(DeploymentCloud, "token response did not include access_token", nil)
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return Token{
		Value:     tokenResp.AccessToken,
		Scheme:    "CWSAuth bearer",
		ExpiresAt: p.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}

// onPremTokenResponse is the body of a successful controller negotiation
type onPremTokenResponse struct {
	Token     string `json:"token"`
	ExpiresIn int    `json:"expiresIn"`
}

// fetchOnPremToken negotiates a session credential with the configured
// delivery controller using domain-qualified credentials.
func (p *TokenProvider) fetchOnPremToken(ctx context.Context, auth *OnPremAuth) (Token, error) {
	tokenURL := auth.DDCHost + onPremTokenPath

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, nil)
	if err != nil {
		return Token{}, NewAuthError(DeploymentOnPrem, "failed to build token request", err)
	}

	user := auth.Username
	if auth.Domain != "" {
		user = auth.Domain + `\` + auth.Username
	}
	req.SetBasicAuth(user, auth.Password)
	req.Header.Set("Accept", "application/json")

	resp, err := p.httpClient.Do(req)
	if err != nil {
		return Token{}, NewAuthError(DeploymentOnPrem, "token request failed", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Token{}, NewAuthError(DeploymentOnPrem, "failed to read token response", err)
	}

	if resp.StatusCode != http.StatusOK {
		return Token{}, NewAuthError(DeploymentOnPrem,
			fmt.Sprintf("controller returned HTTP %d", resp.StatusCode), nil)
	}

	var tokenResp onPremTokenResponse
	if err := json.Unmarshal(body, &tokenResp); err != nil {
		return Token{}, NewAuthError(DeploymentOnPrem, "failed to decode token response", err)
	}
	if tokenResp.Token == "" {
		return Token{}, NewAuthError(DeploymentOnPrem, "controller response did not include a token", nil)
	}

	expiresIn := tokenResp.ExpiresIn
	if expiresIn <= 0 {
		expiresIn = 3600
	}

	return Token{
		Value:     tokenResp.Token,
		Scheme:    "Bearer",
		ExpiresAt: p.now().Add(time.Duration(expiresIn) * time.Second),
	}, nil
}
