package citrix

import (
	"github.com/VDIOps/CitrixMonMCP/global"
)

// applicationTools returns the published-application tools
func (p *Provider) applicationTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name:        "citrix_app_list",
			Description: "List published applications in the Citrix site.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
			},
			Handler: p.handleAppList,
		},
		{
			Name: "citrix_app_instances",
			Description: "List running application instances, newest first. " +
				"Optionally scoped to one application by ID or name.",
			Parameters: []global.Parameter{
				{Name: "application_id", Description: "Numeric application ID", Type: "number"},
				{Name: "application_name", Description: "Application name", Type: "string"},
				{Name: "active_only", Description: "Only instances without an end date",
					Type: "boolean", Default: true},
			},
			Handler: p.handleAppInstances,
		},
		{
			Name: "citrix_app_errors",
			Description: "List application faults and errors over a recent window, newest first. " +
				"Optionally scoped to one application by name.",
			Parameters: []global.Parameter{
				{Name: "application_name", Description: "Application name", Type: "string"},
				{Name: "days", Description: "Lookback window in days", Type: "number", Default: 7},
			},
			Handler: p.handleAppErrors,
		},
	}
}

func (p *Provider) handleAppList(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListApplications(ctx, optString(options, "filter"))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleAppInstances(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListAppInstances(ctx,
		int64(optInt(options, "application_id", 0)),
		optString(options, "application_name"),
		optBool(options, "active_only", true))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleAppErrors(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.GetAppErrors(ctx,
		optString(options, "application_name"),
		optInt(options, "days", 7))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}
