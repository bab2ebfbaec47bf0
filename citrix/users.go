package citrix

import (
	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/VDIOps/CitrixMonMCP/monitor"
)

// userTools returns the user tools
func (p *Provider) userTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name:        "citrix_user_list",
			Description: "List users known to the Citrix site.",
			Parameters: []global.Parameter{
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
			},
			Handler: p.handleUserList,
		},
		{
			Name:        "citrix_user_details",
			Description: "Get one user by ID or username.",
			Parameters: []global.Parameter{
				{Name: "user_id", Description: "Numeric user ID", Type: "number"},
				{Name: "user_name", Description: "Username (DOMAIN\\user)", Type: "string"},
			},
			Handler: p.handleUserDetails,
		},
		{
			Name: "citrix_user_sessions",
			Description: "Get session history for a user, newest first, with machine details. " +
				"Identify the user by ID or username.",
			Parameters: []global.Parameter{
				{Name: "user_id", Description: "Numeric user ID", Type: "number"},
				{Name: "user_name", Description: "Username (DOMAIN\\user)", Type: "string"},
			},
			Handler: p.handleUserSessions,
		},
	}
}

func (p *Provider) handleUserList(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	result, err := p.client.ListUsers(ctx, optString(options, "filter"))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleUserDetails(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	name := optString(options, "user_name")
	id := optInt(options, "user_id", 0)
	if name == "" && id == 0 {
		return "", monitor.NewValidationError("user_id", nil, "user_id or user_name is required")
	}

	var user monitor.Entity
	var err error
	if name != "" {
		user, err = p.client.GetUserByName(ctx, name)
	} else {
		user, err = p.client.GetUser(ctx, int64(id))
	}
	if err != nil {
		return "", err
	}
	return entityJSON(user, "user not found")
}

func (p *Provider) handleUserSessions(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	name := optString(options, "user_name")
	id := optInt(options, "user_id", 0)
	if name == "" && id == 0 {
		return "", monitor.NewValidationError("user_id", nil, "user_id or user_name is required")
	}

	result, err := p.client.GetUserSessions(ctx, int64(id), name)
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}
