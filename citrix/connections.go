package citrix

import (
	"github.com/VDIOps/CitrixMonMCP/global"
)

// connectionTools returns the connection and failure tools
func (p *Provider) connectionTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name: "citrix_connection_list",
			Description: "List connections (initial connects and reconnects), newest first. " +
				"Optionally scoped to one session.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
				{Name: "session_key", Description: "Only connections for this session", Type: "string"},
			},
			Handler: p.handleConnectionList,
		},
		{
			Name: "citrix_connection_failures",
			Description: "List connection failures over a recent window, newest first, with the " +
				"delivery group expanded.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
				{Name: "delivery_group", Description: "Only failures in this delivery group", Type: "string"},
				{Name: "days", Description: "Lookback window in days", Type: "number", Default: 7},
			},
			Handler: p.handleConnectionFailures,
		},
		{
			Name: "citrix_failure_summary",
			Description: "Get aggregated failure counts per delivery group over a recent window, " +
				"newest first.",
			Parameters: []global.Parameter{
				{Name: "delivery_group", Description: "Only summaries for this delivery group", Type: "string"},
				{Name: "days", Description: "Lookback window in days", Type: "number", Default: 7},
			},
			Handler: p.handleFailureSummary,
		},
	}
}

func (p *Provider) handleConnectionList(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListConnections(ctx,
		optString(options, "filter"),
		optString(options, "session_key"))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleConnectionFailures(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.GetConnectionFailures(ctx,
		optString(options, "filter"),
		optString(options, "delivery_group"),
		optInt(options, "days", 7))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleFailureSummary(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.GetFailureSummary(ctx,
		optString(options, "delivery_group"),
		optInt(options, "days", 7))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}
