package monitor

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/VDIOps/CitrixMonMCP/global"
)

// defaultMaxRecords caps how many records one tool invocation may pull
// across pages. A Query.Top below this still wins.
const defaultMaxRecords = 1000

// Client is the facade over the query execution layer. One Client
// serves one tenant; independent tenants get independent Clients and
// share nothing beyond the process.
type Client struct {
	auth       AuthContext
	baseURL    string
	exec       *RequestExecutor
	pager      *Paginator
	mapper     *Mapper
	maxRecords int
	logger     global.Logger
	now        func() time.Time
}

// clientConfig collects the knobs applied by Options
type clientConfig struct {
	logger        global.Logger
	httpClient    *http.Client
	baseURL       string
	cloudEndpoint string
	waitPolicy    WaitPolicy
	maxWait       time.Duration
	maxRecords    int
	sleep         Sleeper
	timeout       time.Duration
	backoffBase   time.Duration
	backoffMax    time.Duration
	maxRetries    int
	now           func() time.Time
}

// Option defines a configuration option for the Client
type Option func(*clientConfig)

// WithLogger sets the logger for the client and all layers beneath it
func WithLogger(logger global.Logger) Option {
	return func(c *clientConfig) {
		c.logger = logger
	}
}

// WithClientHTTPClient overrides the HTTP client; used in tests
func WithClientHTTPClient(client *http.Client) Option {
	return func(c *clientConfig) {
		c.httpClient = client
	}
}

// WithBaseURL overrides the deployment-derived OData base URL
func WithBaseURL(baseURL string) Option {
	return func(c *clientConfig) {
		c.baseURL = strings.TrimRight(baseURL, "/")
	}
}

// WithClientCloudEndpoint overrides the identity host; used in tests
func WithClientCloudEndpoint(endpoint string) Option {
	return func(c *clientConfig) {
		c.cloudEndpoint = endpoint
	}
}

// WithClientWaitPolicy sets how overlapping queries for the tenant queue
func WithClientWaitPolicy(policy WaitPolicy, maxWait time.Duration) Option {
	return func(c *clientConfig) {
		c.waitPolicy = policy
		c.maxWait = maxWait
	}
}

// WithMaxRecords caps the records collected per invocation (0 = no cap)
func WithMaxRecords(n int) Option {
	return func(c *clientConfig) {
		c.maxRecords = n
	}
}

// WithClientSleeper overrides the backoff sleep; used in tests
func WithClientSleeper(sleep Sleeper) Option {
	return func(c *clientConfig) {
		c.sleep = sleep
	}
}

// WithClientTimeout overrides the per-request ceiling; used in tests
func WithClientTimeout(d time.Duration) Option {
	return func(c *clientConfig) {
		c.timeout = d
	}
}

// WithClientBackoff configures the 429 retry budget
func WithClientBackoff(base, max time.Duration, maxRetries int) Option {
	return func(c *clientConfig) {
		c.backoffBase = base
		c.backoffMax = max
		c.maxRetries = maxRetries
	}
}

// WithClientClock sets the time source; used in tests
func WithClientClock(now func() time.Time) Option {
	return func(c *clientConfig) {
		c.now = now
	}
}

// New resolves the configuration into an AuthContext and assembles the
// full execution stack: token provider, rate gate, executor, paginator.
func New(cfg Config, opts ...Option) (*Client, error) {
	auth, err := ResolveCredentials(cfg)
	if err != nil {
		return nil, err
	}

	cc := &clientConfig{
		waitPolicy:  WaitBlock,
		maxWait:     30 * time.Second,
		maxRecords:  defaultMaxRecords,
		sleep:       defaultSleeper,
		timeout:     requestTimeout,
		backoffBase: defaultBackoffBase,
		backoffMax:  defaultBackoffMax,
		maxRetries:  defaultMaxRetries,
		now:         time.Now,
	}
	for _, opt := range opts {
		opt(cc)
	}

	httpClient := cc.httpClient
	if httpClient == nil {
		transport := http.DefaultTransport
		if !cfg.VerifySSL {
			if cc.logger != nil {
				cc.logger.Warning("TLS certificate verification is disabled")
			}
			transport = &http.Transport{
				TLSClientConfig: &tls.Config{InsecureSkipVerify: true},
			}
		}
		httpClient = &http.Client{Transport: transport}
	}

	tokenOpts := []TokenOption{
		WithTokenHTTPClient(httpClient),
		WithTokenLogger(cc.logger),
		WithTokenClock(cc.now),
	}
	if cc.cloudEndpoint != "" {
		tokenOpts = append(tokenOpts, WithCloudEndpoint(cc.cloudEndpoint))
	}
	tokens := NewTokenProvider(tokenOpts...)

	gate := NewRateGate(
		WithWaitPolicy(cc.waitPolicy),
		WithMaxWait(cc.maxWait),
		WithGateLogger(cc.logger),
	)

	exec := NewRequestExecutor(tokens, gate,
		WithHTTPClient(httpClient),
		WithExecutorLogger(cc.logger),
		WithSleeper(cc.sleep),
		WithExecutorClock(cc.now),
		WithRequestTimeout(cc.timeout),
		WithBackoff(cc.backoffBase, cc.backoffMax, cc.maxRetries),
	)

	baseURL := cc.baseURL
	if baseURL == "" {
		baseURL = auth.BaseURL()
	}

	return &Client{
		auth:       auth,
		baseURL:    baseURL,
		exec:       exec,
		pager:      NewPaginator(exec, cc.logger),
		mapper:     NewMapper(cc.logger),
		maxRecords: cc.maxRecords,
		logger:     cc.logger,
		now:        cc.now,
	}, nil
}

// Auth returns the resolved credential context
func (c *Client) Auth() AuthContext {
	return c.auth
}

// BaseURL returns the OData base URL in use
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Mapper returns the response mapper, exposed for output shaping
func (c *Client) Mapper() *Mapper {
	return c.mapper
}

// Query executes an OData query with automatic pagination
func (c *Client) Query(ctx context.Context, q Query) (*ResultSet, error) {
	return c.pager.Collect(ctx, c.auth, c.baseURL, q, c.maxRecords)
}

// QuerySingle fetches one entity by key, e.g. Machines(42) or
// Sessions('guid'). Returns nil without error when the entity does not
// exist. The key must already be OData-rendered (quoted for strings).
func (c *Client) QuerySingle(ctx context.Context, entity EntityKind, key string, expand []string) (Entity, error) {
	u := fmt.Sprintf("%s/%s(%s)", c.baseURL, entity, key)
	if len(expand) > 0 {
		params := url.Values{}
		params.Set("$expand", strings.Join(expand, ","))
		u += "?" + params.Encode()
	}

	page, err := c.exec.Do(ctx, c.auth, u)
	if err != nil {
		if remErr, ok := AsRemoteError(err); ok && remErr.IsNotFound() {
			return nil, nil
		}
		return nil, err
	}
	if len(page.Records) == 0 {
		return nil, nil
	}
	return page.Records[0], nil
}

// Aggregate executes an OData $apply aggregation query
func (c *Client) Aggregate(ctx context.Context, entity EntityKind, apply string) (*ResultSet, error) {
	if strings.TrimSpace(apply) == "" {
		return nil, NewValidationError("apply", apply, "aggregation expression is required")
	}
	return c.Query(ctx, Query{Entity: entity, Apply: apply})
}

// Count returns the number of entities matching the filter using the
// raw /$count endpoint, which responds with a bare number.
func (c *Client) Count(ctx context.Context, entity EntityKind, filter string) (int64, error) {
	u := fmt.Sprintf("%s/%s/$count", c.baseURL, entity)
	if filter != "" {
		params := url.Values{}
		params.Set("$filter", filter)
		u += "?" + params.Encode()
	}

	body, err := c.exec.DoText(ctx, c.auth, u)
	if err != nil {
		return 0, err
	}
	n, err := strconv.ParseInt(strings.TrimSpace(body), 10, 64)
	if err != nil {
		return 0, &RemoteError{StatusCode: http.StatusOK,
			Message: fmt.Sprintf("count endpoint returned a non-numeric body: %q", strings.TrimSpace(body))}
	}
	return n, nil
}

// combineFilters joins filter clauses with "and"
func combineFilters(clauses []string) string {
	var nonEmpty []string
	for _, c := range clauses {
		if c != "" {
			nonEmpty = append(nonEmpty, c)
		}
	}
	return strings.Join(nonEmpty, " and ")
}

// odataString renders a string literal, doubling embedded quotes
func odataString(s string) string {
	return "'" + strings.ReplaceAll(s, "'", "''") + "'"
}

// sinceFilter builds a "Field ge <timestamp>" clause for the last N days
func (c *Client) sinceFilter(field string, days int) string {
	if days <= 0 {
		days = 7
	}
	start := c.now().UTC().AddDate(0, 0, -days)
	return fmt.Sprintf("%s ge %s", field, start.Format("2006-01-02T15:04:05Z"))
}

// entityID extracts a numeric identifier from a loosely typed record
func entityID(e Entity, field string) (int64, bool) {
	v, ok := e[field]
	if !ok {
		return 0, false
	}
	switch n := v.(type) {
	case float64:
		return int64(n), true
	case int64:
		return n, true
	case int:
		return int64(n), true
	default:
		return 0, false
	}
}

//
// Machines
//

// MachineFilter narrows a machine listing
type MachineFilter struct {
	Filter            string
	RegistrationState string
	PowerState        string
	InMaintenance     *bool
}

// ListMachines lists machines (VDAs) with optional filters
func (c *Client) ListMachines(ctx context.Context, f MachineFilter) (*ResultSet, error) {
	clauses := []string{f.Filter}
	if f.RegistrationState != "" {
		clauses = append(clauses, fmt.Sprintf("CurrentRegistrationState eq %s", odataString(f.RegistrationState)))
	}
	if f.PowerState != "" {
		clauses = append(clauses, fmt.Sprintf("CurrentPowerState eq %s", odataString(f.PowerState)))
	}
	if f.InMaintenance != nil {
		clauses = append(clauses, fmt.Sprintf("IsInMaintenanceMode eq %t", *f.InMaintenance))
	}
	return c.Query(ctx, Query{Entity: EntityMachines, Filter: combineFilters(clauses)})
}

// GetMachine fetches a machine by ID
func (c *Client) GetMachine(ctx context.Context, machineID int64) (Entity, error) {
	return c.QuerySingle(ctx, EntityMachines, strconv.FormatInt(machineID, 10), nil)
}

// GetMachineByName fetches a machine by name
func (c *Client) GetMachineByName(ctx context.Context, name string) (Entity, error) {
	result, err := c.Query(ctx, Query{
		Entity: EntityMachines,
		Filter: fmt.Sprintf("Name eq %s", odataString(name)),
		Top:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	return result.Records[0], nil
}

// resolveMachineID turns an optional name into a machine ID
func (c *Client) resolveMachineID(ctx context.Context, machineID int64, name string) (int64, error) {
	if name != "" {
		machine, err := c.GetMachineByName(ctx, name)
		if err != nil {
			return 0, err
		}
		if machine != nil {
			if id, ok := entityID(machine, "Id"); ok {
				return id, nil
			}
		}
		return 0, nil
	}
	return machineID, nil
}

// GetMachineMetrics returns resource utilization samples for a machine,
// newest first. Accepts either an ID or a name.
func (c *Client) GetMachineMetrics(ctx context.Context, machineID int64, name string) (*ResultSet, error) {
	id, err := c.resolveMachineID(ctx, machineID, name)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return &ResultSet{}, nil
	}
	return c.Query(ctx, Query{
		Entity:  EntityResourceUtilization,
		Filter:  fmt.Sprintf("MachineId eq %d", id),
		OrderBy: []Order{Desc("CreatedDate")},
	})
}

// GetMachineFailures returns failure logs for a machine, newest first
func (c *Client) GetMachineFailures(ctx context.Context, machineID int64, name string) (*ResultSet, error) {
	id, err := c.resolveMachineID(ctx, machineID, name)
	if err != nil {
		return nil, err
	}
	if id == 0 {
		return &ResultSet{}, nil
	}
	return c.Query(ctx, Query{
		Entity:  EntityMachineFailureLogs,
		Filter:  fmt.Sprintf("MachineId eq %d", id),
		OrderBy: []Order{Desc("FailureStartDate")},
	})
}

//
// Sessions
//

// SessionFilter narrows a session listing
type SessionFilter struct {
	Filter      string
	ActiveOnly  bool
	UserName    string
	MachineName string
}

// ListSessions lists sessions with user and machine expanded, newest first
func (c *Client) ListSessions(ctx context.Context, f SessionFilter) (*ResultSet, error) {
	clauses := []string{f.Filter}
	if f.ActiveOnly {
		clauses = append(clauses, "EndDate eq null")
	}
	if f.UserName != "" {
		clauses = append(clauses, fmt.Sprintf("User/UserName eq %s", odataString(f.UserName)))
	}
	if f.MachineName != "" {
		clauses = append(clauses, fmt.Sprintf("Machine/Name eq %s", odataString(f.MachineName)))
	}
	return c.Query(ctx, Query{
		Entity:  EntitySessions,
		Filter:  combineFilters(clauses),
		Expand:  []string{"User", "Machine"},
		OrderBy: []Order{Desc("StartDate")},
	})
}

// GetSession fetches a session by key (GUID)
func (c *Client) GetSession(ctx context.Context, sessionKey string) (Entity, error) {
	return c.QuerySingle(ctx, EntitySessions, odataString(sessionKey), []string{"User", "Machine"})
}

// GetLogonMetrics returns the logon duration breakdown for a session
func (c *Client) GetLogonMetrics(ctx context.Context, sessionKey string) (*ResultSet, error) {
	return c.Query(ctx, Query{
		Entity: EntityLogOnMetrics,
		Filter: fmt.Sprintf("SessionKey eq %s", odataString(sessionKey)),
	})
}

// SessionCount counts sessions matching the filter
func (c *Client) SessionCount(ctx context.Context, filter string, activeOnly bool) (int64, error) {
	if activeOnly {
		if filter != "" {
			filter = fmt.Sprintf("(%s) and EndDate eq null", filter)
		} else {
			filter = "EndDate eq null"
		}
	}
	return c.Count(ctx, EntitySessions, filter)
}

//
// Connections
//

// ListConnections lists connections (initial connects and reconnects)
func (c *Client) ListConnections(ctx context.Context, filter, sessionKey string) (*ResultSet, error) {
	clauses := []string{filter}
	if sessionKey != "" {
		clauses = append(clauses, fmt.Sprintf("SessionKey eq %s", odataString(sessionKey)))
	}
	return c.Query(ctx, Query{
		Entity:  EntityConnections,
		Filter:  combineFilters(clauses),
		OrderBy: []Order{Desc("LogOnStartDate")},
	})
}

// GetConnectionFailures returns connection failure logs for the last N days
func (c *Client) GetConnectionFailures(ctx context.Context, filter, deliveryGroup string, days int) (*ResultSet, error) {
	clauses := []string{filter}
	if deliveryGroup != "" {
		clauses = append(clauses, fmt.Sprintf("DesktopGroup/Name eq %s", odataString(deliveryGroup)))
	}
	clauses = append(clauses, c.sinceFilter("FailureDate", days))
	return c.Query(ctx, Query{
		Entity:  EntityConnectionFailureLogs,
		Filter:  combineFilters(clauses),
		Expand:  []string{"DesktopGroup"},
		OrderBy: []Order{Desc("FailureDate")},
	})
}

// GetFailureSummary returns failure summary counts for the last N days
func (c *Client) GetFailureSummary(ctx context.Context, deliveryGroup string, days int) (*ResultSet, error) {
	var clauses []string
	if deliveryGroup != "" {
		clauses = append(clauses, fmt.Sprintf("DesktopGroup/Name eq %s", odataString(deliveryGroup)))
	}
	clauses = append(clauses, c.sinceFilter("SummaryDate", days))
	return c.Query(ctx, Query{
		Entity:  EntityFailureLogSummaries,
		Filter:  combineFilters(clauses),
		Expand:  []string{"DesktopGroup"},
		OrderBy: []Order{Desc("SummaryDate")},
	})
}

//
// Applications
//

// ListApplications lists published applications
func (c *Client) ListApplications(ctx context.Context, filter string) (*ResultSet, error) {
	return c.Query(ctx, Query{Entity: EntityApplications, Filter: filter})
}

// ListAppInstances lists running application instances
func (c *Client) ListAppInstances(ctx context.Context, appID int64, appName string, activeOnly bool) (*ResultSet, error) {
	var clauses []string
	if appID > 0 {
		clauses = append(clauses, fmt.Sprintf("ApplicationId eq %d", appID))
	}
	if appName != "" {
		clauses = append(clauses, fmt.Sprintf("Application/Name eq %s", odataString(appName)))
	}
	if activeOnly {
		clauses = append(clauses, "EndDate eq null")
	}
	return c.Query(ctx, Query{
		Entity:  EntityApplicationInstances,
		Filter:  combineFilters(clauses),
		Expand:  []string{"Application"},
		OrderBy: []Order{Desc("StartDate")},
	})
}

// GetAppErrors returns application faults for the last N days
func (c *Client) GetAppErrors(ctx context.Context, appName string, days int) (*ResultSet, error) {
	var clauses []string
	if appName != "" {
		clauses = append(clauses, fmt.Sprintf("Application/Name eq %s", odataString(appName)))
	}
	clauses = append(clauses, c.sinceFilter("CreatedDate", days))
	return c.Query(ctx, Query{
		Entity:  EntityApplicationFaults,
		Filter:  combineFilters(clauses),
		Expand:  []string{"Application"},
		OrderBy: []Order{Desc("CreatedDate")},
	})
}

//
// Users
//

// ListUsers lists users
func (c *Client) ListUsers(ctx context.Context, filter string) (*ResultSet, error) {
	return c.Query(ctx, Query{Entity: EntityUsers, Filter: filter})
}

// GetUser fetches a user by ID
func (c *Client) GetUser(ctx context.Context, userID int64) (Entity, error) {
	return c.QuerySingle(ctx, EntityUsers, strconv.FormatInt(userID, 10), nil)
}

// GetUserByName fetches a user by username
func (c *Client) GetUserByName(ctx context.Context, username string) (Entity, error) {
	result, err := c.Query(ctx, Query{
		Entity: EntityUsers,
		Filter: fmt.Sprintf("UserName eq %s", odataString(username)),
		Top:    1,
	})
	if err != nil {
		return nil, err
	}
	if len(result.Records) == 0 {
		return nil, nil
	}
	return result.Records[0], nil
}

// GetUserSessions returns session history for a user, newest first.
// Accepts either an ID or a username.
func (c *Client) GetUserSessions(ctx context.Context, userID int64, username string) (*ResultSet, error) {
	if username != "" {
		user, err := c.GetUserByName(ctx, username)
		if err != nil {
			return nil, err
		}
		if user == nil {
			return &ResultSet{}, nil
		}
		if id, ok := entityID(user, "Id"); ok {
			userID = id
		}
	}
	if userID == 0 {
		return &ResultSet{}, nil
	}
	return c.Query(ctx, Query{
		Entity:  EntitySessions,
		Filter:  fmt.Sprintf("UserId eq %d", userID),
		Expand:  []string{"Machine"},
		OrderBy: []Order{Desc("StartDate")},
	})
}

//
// Infrastructure
//

// ListDeliveryGroups lists delivery groups
func (c *Client) ListDeliveryGroups(ctx context.Context) (*ResultSet, error) {
	return c.Query(ctx, Query{Entity: EntityDesktopGroups})
}

// ListHypervisors lists hypervisors/hosts
func (c *Client) ListHypervisors(ctx context.Context) (*ResultSet, error) {
	return c.Query(ctx, Query{Entity: EntityHypervisors})
}

// GetLoadIndexes returns load index samples, newest first, optionally
// narrowed to one machine by ID or name.
func (c *Client) GetLoadIndexes(ctx context.Context, machineID int64, machineName string) (*ResultSet, error) {
	id, err := c.resolveMachineID(ctx, machineID, machineName)
	if err != nil {
		return nil, err
	}
	filter := ""
	if id > 0 {
		filter = fmt.Sprintf("MachineId eq %d", id)
	}
	return c.Query(ctx, Query{
		Entity:  EntityLoadIndexes,
		Filter:  filter,
		OrderBy: []Order{Desc("CreatedDate")},
	})
}
