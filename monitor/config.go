// Package monitor implements the query execution layer for the Citrix
// Monitor Service OData API. It handles dual-mode authentication (cloud
// and on-prem), per-tenant admission control, rate-limit backoff,
// transparent pagination, and response normalization so that the tool
// layer can ask bounded questions without knowing OData mechanics or the
// service's operational limits.
package monitor

import (
	"fmt"
	"os"
	"strings"
)

// DeploymentMode selects between Citrix Cloud (DaaS) and on-prem (CVAD)
type DeploymentMode string

const (
	DeploymentCloud  DeploymentMode = "cloud"
	DeploymentOnPrem DeploymentMode = "onprem"
)

// Regional API endpoints for Citrix Cloud
var cloudEndpoints = map[string]string{
	"us":   "https://api-us.cloud.com",
	"eu":   "https://api-eu.cloud.com",
	"ap-s": "https://api-ap-s.cloud.com",
	"jp":   "https://api.citrixcloud.jp",
}

// CloudEndpoint returns the regional API host for a Citrix Cloud region,
// falling back to the US endpoint for unknown regions.
func CloudEndpoint(region string) string {
	if endpoint, ok := cloudEndpoints[strings.ToLower(region)]; ok {
		return endpoint
	}
	return cloudEndpoints["us"]
}

// Config holds the raw deployment configuration as loaded from the
// environment. The core never reads environment variables directly;
// everything flows through ResolveCredentials.
type Config struct {
	Deployment   string
	Region       string
	CustomerID   string
	ClientID     string
	ClientSecret string
	DDCHost      string
	Domain       string
	Username     string
	Password     string
	VerifySSL    bool
}

// ConfigFromEnv loads a Config from CITRIX_* environment variables
func ConfigFromEnv() Config {
	verifySSL := true
	if v := os.Getenv("CITRIX_VERIFY_SSL"); v != "" {
		verifySSL = strings.ToLower(v) == "true"
	}

	return Config{
		Deployment:   os.Getenv("CITRIX_DEPLOYMENT"),
		Region:       os.Getenv("CITRIX_REGION"),
		CustomerID:   os.Getenv("CITRIX_CUSTOMER_ID"),
		ClientID:     os.Getenv("CITRIX_CLIENT_ID"),
		ClientSecret: os.Getenv("CITRIX_CLIENT_SECRET"),
		DDCHost:      os.Getenv("CITRIX_DDC_HOST"),
		Domain:       os.Getenv("CITRIX_DOMAIN"),
		Username:     os.Getenv("CITRIX_USERNAME"),
		Password:     os.Getenv("CITRIX_PASSWORD"),
		VerifySSL:    verifySSL,
	}
}

// CloudAuth holds cloud (DaaS) credentials
type CloudAuth struct {
	CustomerID   string
	ClientID     string
	ClientSecret string
	Region       string
}

// OnPremAuth holds on-prem (CVAD) controller credentials
type OnPremAuth struct {
	DDCHost  string
	Domain   string
	Username string
	Password string
}

// AuthContext is a tagged union of the two credential variants. It is
// immutable once resolved; TokenProvider dispatches on Mode, never on
// runtime type inspection.
type AuthContext struct {
	Mode   DeploymentMode
	Cloud  *CloudAuth
	OnPrem *OnPremAuth
}

// Identity returns a stable cache key for this credential identity.
// Token caching and rate gating are both keyed by it.
func (a AuthContext) Identity() string {
	switch a.Mode {
	case DeploymentCloud:
		return fmt.Sprintf("cloud:%s:%s:%s", a.Cloud.CustomerID, a.Cloud.ClientID, a.Cloud.Region)
	case DeploymentOnPrem:
		return fmt.Sprintf("onprem:%s:%s\\%s", a.OnPrem.DDCHost, a.OnPrem.Domain, a.OnPrem.Username)
	default:
		return "unknown"
	}
}

// TenantID returns the tenant identity used for rate limiting. The
// service enforces one concurrent query per customer, so the tenant is
// the customer (cloud) or the controller deployment (on-prem).
func (a AuthContext) TenantID() string {
	switch a.Mode {
	case DeploymentCloud:
		return a.Cloud.CustomerID
	case DeploymentOnPrem:
		return a.OnPrem.DDCHost
	default:
		return "unknown"
	}
}

// BaseURL returns the OData base URL for the configured deployment
func (a AuthContext) BaseURL() string {
	switch a.Mode {
	case DeploymentCloud:
		return CloudEndpoint(a.Cloud.Region) + "/monitorodata"
	case DeploymentOnPrem:
		return strings.TrimRight(a.OnPrem.DDCHost, "/") + "/Citrix/Monitor/OData/v4/Data"
	default:
		return ""
	}
}

// ResolveCredentials validates a Config and produces an AuthContext.
// It is a pure function: no I/O, no retries. Missing or contradictory
// fields (cloud mixed with on-prem) produce a ConfigurationError.
func ResolveCredentials(cfg Config) (AuthContext, error) {
	mode := DeploymentMode(strings.ToLower(cfg.Deployment))
	if mode == "" {
		mode = DeploymentCloud
	}

	switch mode {
	case DeploymentCloud:
		if cfg.DDCHost != "" || cfg.Username != "" || cfg.Password != "" {
			return AuthContext{}, NewConfigurationError("deployment",
				"cloud deployment must not set on-prem credentials (CITRIX_DDC_HOST, CITRIX_USERNAME, CITRIX_PASSWORD)")
		}
		if cfg.CustomerID == "" {
			return AuthContext{}, NewConfigurationError("CITRIX_CUSTOMER_ID", "required for cloud deployment")
		}
		if cfg.ClientID == "" {
			return AuthContext{}, NewConfigurationError("CITRIX_CLIENT_ID", "required for cloud deployment")
		}
		if cfg.ClientSecret == "" {
			return AuthContext{}, NewConfigurationError("CITRIX_CLIENT_SECRET", "required for cloud deployment")
		}
		region := strings.ToLower(cfg.Region)
		if region == "" {
			region = "us"
		}
		return AuthContext{
			Mode: DeploymentCloud,
			Cloud: &CloudAuth{
				CustomerID:   cfg.CustomerID,
				ClientID:     cfg.ClientID,
				ClientSecret: cfg.ClientSecret,
				Region:       region,
			},
		}, nil

	case DeploymentOnPrem:
		if cfg.CustomerID != "" || cfg.ClientID != "" || cfg.ClientSecret != "" {
			return AuthContext{}, NewConfigurationError("deployment",
				"on-prem deployment must not set cloud credentials (CITRIX_CUSTOMER_ID, CITRIX_CLIENT_ID, CITRIX_CLIENT_SECRET)")
		}
		if cfg.DDCHost == "" {
			return AuthContext{}, NewConfigurationError("CITRIX_DDC_HOST", "required for on-prem deployment")
		}
		if cfg.Username == "" || cfg.Password == "" {
			return AuthContext{}, NewConfigurationError("CITRIX_USERNAME", "username and password are required for on-prem deployment")
		}
		return AuthContext{
			Mode: DeploymentOnPrem,
			OnPrem: &OnPremAuth{
				DDCHost:  strings.TrimRight(cfg.DDCHost, "/"),
				Domain:   cfg.Domain,
				Username: cfg.Username,
				Password: cfg.Password,
			},
		}, nil

	default:
		return AuthContext{}, NewConfigurationError("CITRIX_DEPLOYMENT",
			fmt.Sprintf("unknown deployment mode %q (expected cloud or onprem)", cfg.Deployment))
	}
}
