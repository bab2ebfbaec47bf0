package citrix

import (
	"github.com/VDIOps/CitrixMonMCP/global"
)

// infrastructureTools returns the site infrastructure tools
func (p *Provider) infrastructureTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name:        "citrix_delivery_groups",
			Description: "List delivery groups in the Citrix site.",
			Handler:     p.handleDeliveryGroups,
		},
		{
			Name:        "citrix_hypervisors",
			Description: "List hypervisor hosts configured in the site.",
			Handler:     p.handleHypervisors,
		},
		{
			Name: "citrix_load_index",
			Description: "Get load index samples, newest first. Optionally scoped to one " +
				"machine by ID or name.",
			Parameters: []global.Parameter{
				{Name: "machine_id", Description: "Numeric machine ID", Type: "number"},
				{Name: "machine_name", Description: "Machine name (DOMAIN\\NAME)", Type: "string"},
			},
			Handler: p.handleLoadIndex,
		},
	}
}

func (p *Provider) handleDeliveryGroups(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListDeliveryGroups(ctx)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleHypervisors(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListHypervisors(ctx)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleLoadIndex(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.GetLoadIndexes(ctx,
		int64(optInt(options, "machine_id", 0)),
		optString(options, "machine_name"))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}
