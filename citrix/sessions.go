package citrix

import (
	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/VDIOps/CitrixMonMCP/monitor"
)

// sessionTools returns the session tools
func (p *Provider) sessionTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name: "citrix_session_list",
			Description: "List sessions with user and machine details, newest first. " +
				"By default only active sessions are returned.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
				{Name: "active_only", Description: "Only sessions without an end date",
					Type: "boolean", Default: true},
				{Name: "user_name", Description: "Filter by user name (DOMAIN\\user)", Type: "string"},
				{Name: "machine_name", Description: "Filter by machine name", Type: "string"},
			},
			Handler: p.handleSessionList,
		},
		{
			Name:        "citrix_session_details",
			Description: "Get one session by its session key (GUID), with user and machine expanded.",
			Parameters: []global.Parameter{
				{Name: "session_key", Description: "Session key (GUID)", Required: true, Type: "string"},
			},
			Handler: p.handleSessionDetails,
		},
		{
			Name: "citrix_session_logon_metrics",
			Description: "Get the logon duration breakdown (brokering, GPO, profile load, " +
				"interactive) for a session.",
			Parameters: []global.Parameter{
				{Name: "session_key", Description: "Session key (GUID)", Required: true, Type: "string"},
			},
			Handler: p.handleSessionLogonMetrics,
		},
		{
			Name:        "citrix_session_count",
			Description: "Count sessions matching a filter without fetching them.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
				{Name: "active_only", Description: "Only sessions without an end date",
					Type: "boolean", Default: true},
			},
			Handler: p.handleSessionCount,
		},
	}
}

func (p *Provider) handleSessionList(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListSessions(ctx, monitor.SessionFilter{
		Filter:      optString(options, "filter"),
		ActiveOnly:  optBool(options, "active_only", true),
		UserName:    optString(options, "user_name"),
		MachineName: optString(options, "machine_name"),
	})
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleSessionDetails(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	key := optString(options, "session_key")
	if key == "" {
		return "", monitor.NewValidationError("session_key", key, "session_key is required")
	}

	session, err := p.client.GetSession(ctx, key)
	if err != nil {
		return "", err
	}
	return entityJSON(session, "session not found")
}

func (p *Provider) handleSessionLogonMetrics(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	key := optString(options, "session_key")
	if key == "" {
		return "", monitor.NewValidationError("session_key", key, "session_key is required")
	}

	result, err := p.client.GetLogonMetrics(ctx, key)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleSessionCount(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	count, err := p.client.SessionCount(ctx,
		optString(options, "filter"),
		optBool(options, "active_only", true))
	if err != nil {
		return "", err
	}
	return resultJSON(map[string]any{"count": count})
}
