// Package citrix exposes the Citrix Monitor Service query layer as MCP
// tools. Each tool maps to one Client operation; handlers translate the
// loosely typed MCP arguments, run the query, and render JSON results.
package citrix

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/VDIOps/CitrixMonMCP/monitor"
)

// Ensure Provider implements the required interface
var _ global.ToolProvider = (*Provider)(nil)

// Provider implements global.ToolProvider for the Monitor Service tools
type Provider struct {
	client *monitor.Client
	logger global.Logger
}

// Option defines a configuration option for the Provider
type Option func(*Provider)

// WithLogger sets the logger for the provider
func WithLogger(logger global.Logger) Option {
	return func(p *Provider) {
		p.logger = logger
	}
}

// New creates a new Provider backed by the given client
func New(client *monitor.Client, opts ...Option) *Provider {
	p := &Provider{client: client}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// RegisterTools implements the global.ToolProvider interface
func (p *Provider) RegisterTools() []global.ToolDefinition {
	tools := global.NewTools()
	tools = append(tools, p.machineTools()...)
	tools = append(tools, p.sessionTools()...)
	tools = append(tools, p.connectionTools()...)
	tools = append(tools, p.applicationTools()...)
	tools = append(tools, p.userTools()...)
	tools = append(tools, p.infrastructureTools()...)
	tools = append(tools, p.queryTools()...)

	if p.logger != nil {
		p.logger.Infof("Registered %d Citrix Monitor tools", len(tools))
	}
	return tools
}

// contextFrom extracts the request context the MCP server passes through
// options, falling back to Background when running outside a server.
func contextFrom(options map[string]any) context.Context {
	if v, exists := options["__mcp_context"]; exists {
		if ctx, ok := v.(context.Context); ok {
			return ctx
		}
	}
	return context.Background()
}

// optString returns a string option, or the empty string when absent
func optString(options map[string]any, name string) string {
	if v, ok := options[name]; ok {
		if s, ok := v.(string); ok {
			return strings.TrimSpace(s)
		}
	}
	return ""
}

// optInt returns an integer option. MCP clients send numbers as JSON
// floats, so both representations are accepted.
func optInt(options map[string]any, name string, def int) int {
	if v, ok := options[name]; ok {
		switch n := v.(type) {
		case float64:
			return int(n)
		case int:
			return n
		case int64:
			return int(n)
		case string:
			var parsed int
			if _, err := fmt.Sscanf(strings.TrimSpace(n), "%d", &parsed); err == nil {
				return parsed
			}
		}
	}
	return def
}

// optBool returns a boolean option, tolerating string renditions
func optBool(options map[string]any, name string, def bool) bool {
	if v, ok := options[name]; ok {
		switch b := v.(type) {
		case bool:
			return b
		case string:
			switch strings.ToLower(strings.TrimSpace(b)) {
			case "true", "yes", "1":
				return true
			case "false", "no", "0":
				return false
			}
		}
	}
	return def
}

// resultJSON renders any value as indented JSON for the MCP client
func resultJSON(v any) (string, error) {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to encode result: %w", err)
	}
	return string(data), nil
}

// resultSetJSON renders a ResultSet with its pagination metadata
func resultSetJSON(rs *monitor.ResultSet) (string, error) {
	records := rs.Records
	if records == nil {
		records = []monitor.Entity{}
	}
	return resultJSON(map[string]any{
		"records":       records,
		"total_fetched": rs.TotalFetched,
		"truncated":     rs.Truncated,
	})
}

// entityJSON renders a single entity, or a not-found message for nil
func entityJSON(e monitor.Entity, notFound string) (string, error) {
	if e == nil {
		return resultJSON(map[string]any{"found": false, "message": notFound})
	}
	return resultJSON(e)
}
