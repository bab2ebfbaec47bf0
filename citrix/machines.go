package citrix

import (
	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/VDIOps/CitrixMonMCP/monitor"
)

// machineTools returns the machine (VDA) tools
func (p *Provider) machineTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name: "citrix_machine_list",
			Description: "List machines (VDAs) in the Citrix site. Supports filtering by " +
				"registration state, power state, and maintenance mode, plus a raw OData $filter.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
				{Name: "registration_state", Description: "Filter by registration state",
					Type: "string", Enum: []interface{}{"Registered", "Unregistered"}},
				{Name: "power_state", Description: "Filter by power state",
					Type: "string", Enum: []interface{}{"On", "Off", "Suspended", "Unknown"}},
				{Name: "in_maintenance", Description: "Filter by maintenance mode", Type: "boolean"},
			},
			Handler: p.handleMachineList,
		},
		{
			Name: "citrix_machine_status",
			Description: "Get details for one machine by ID or name, including registration, " +
				"power state, and maintenance mode.",
			Parameters: []global.Parameter{
				{Name: "machine_id", Description: "Numeric machine ID", Type: "number"},
				{Name: "machine_name", Description: "Machine name (DOMAIN\\NAME)", Type: "string"},
			},
			Handler: p.handleMachineStatus,
		},
		{
			Name: "citrix_machine_metrics",
			Description: "Get resource utilization samples (CPU, memory) for a machine, " +
				"newest first. Identify the machine by ID or name.",
			Parameters: []global.Parameter{
				{Name: "machine_id", Description: "Numeric machine ID", Type: "number"},
				{Name: "machine_name", Description: "Machine name (DOMAIN\\NAME)", Type: "string"},
			},
			Handler: p.handleMachineMetrics,
		},
		{
			Name: "citrix_machine_failures",
			Description: "Get failure log entries for a machine, newest first. " +
				"Identify the machine by ID or name.",
			Parameters: []global.Parameter{
				{Name: "machine_id", Description: "Numeric machine ID", Type: "number"},
				{Name: "machine_name", Description: "Machine name (DOMAIN\\NAME)", Type: "string"},
			},
			Handler: p.handleMachineFailures,
		},
	}
}

func (p *Provider) handleMachineList(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	f := monitor.MachineFilter{
		Filter:            optString(options, "filter"),
		RegistrationState: optString(options, "registration_state"),
		PowerState:        optString(options, "power_state"),
	}
	if _, ok := options["in_maintenance"]; ok {
		v := optBool(options, "in_maintenance", false)
		f.InMaintenance = &v
	}

	result, err := p.client.ListMachines(ctx, f)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleMachineStatus(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	name := optString(options, "machine_name")
	id := optInt(options, "machine_id", 0)
	if name == "" && id == 0 {
		return "", monitor.NewValidationError("machine_id", nil, "machine_id or machine_name is required")
	}

	var machine monitor.Entity
	var err error
	if name != "" {
		machine, err = p.client.GetMachineByName(ctx, name)
	} else {
		machine, err = p.client.GetMachine(ctx, int64(id))
	}
	if err != nil {
		return "", err
	}
	return entityJSON(machine, "machine not found")
}

func (p *Provider) handleMachineMetrics(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	name := optString(options, "machine_name")
	id := optInt(options, "machine_id", 0)
	if name == "" && id == 0 {
		return "", monitor.NewValidationError("machine_id", nil, "machine_id or machine_name is required")
	}

	result, err := p.client.GetMachineMetrics(ctx, int64(id), name)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleMachineFailures(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	name := optString(options, "machine_name")
	id := optInt(options, "machine_id", 0)
	if name == "" && id == 0 {
		return "", monitor.NewValidationError("machine_id", nil, "machine_id or machine_name is required")
	}

	result, err := p.client.GetMachineFailures(ctx, int64(id), name)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}
