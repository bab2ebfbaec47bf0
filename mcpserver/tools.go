package mcpserver

import (
	"context"

	"github.com/mark3labs/mcp-go/mcp"
)

// AddTools registers every tool from every provider with the server
func (s *MCPServer) AddTools() {
	total := 0
	for _, provider := range s.toolProviders {
		for _, toolDef := range provider.RegisterTools() {
			toolOptions := []mcp.ToolOption{
				mcp.WithDescription(toolDef.Description),
			}

			for _, param := range toolDef.Parameters {
				options := []mcp.PropertyOption{mcp.Description(param.Description)}
				if param.Required {
					options = append(options, mcp.Required())
				}
				if len(param.Enum) > 0 {
					values := make([]string, 0, len(param.Enum))
					for _, v := range param.Enum {
						if s, ok := v.(string); ok {
							values = append(values, s)
						}
					}
					options = append(options, mcp.Enum(values...))
				}

				var toolOption mcp.ToolOption
				switch param.Type {
				case "number":
					if def, ok := param.Default.(float64); ok {
						options = append(options, mcp.DefaultNumber(def))
					} else if def, ok := param.Default.(int); ok {
						options = append(options, mcp.DefaultNumber(float64(def)))
					}
					toolOption = mcp.WithNumber(param.Name, options...)
				case "boolean":
					if def, ok := param.Default.(bool); ok {
						options = append(options, mcp.DefaultBool(def))
					}
					toolOption = mcp.WithBoolean(param.Name, options...)
				case "array":
					toolOption = mcp.WithArray(param.Name, options...)
				case "object":
					toolOption = mcp.WithObject(param.Name, options...)
				default:
					if def, ok := param.Default.(string); ok {
						options = append(options, mcp.DefaultString(def))
					}
					toolOption = mcp.WithString(param.Name, options...)
				}
				toolOptions = append(toolOptions, toolOption)
			}

			tool := mcp.NewTool(toolDef.Name, toolOptions...)

			// The handler signature is map-based; the request context is
			// smuggled through the options so handlers can honor
			// cancellation and deadlines.
			s.srv.AddTool(tool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
				options := make(map[string]any)
				for k, v := range req.GetArguments() {
					options[k] = v
				}
				options["__mcp_context"] = ctx

				result, err := toolDef.Handler(options)
				if err != nil {
					return mcp.NewToolResultError(err.Error()), nil
				}
				return mcp.NewToolResultText(result), nil
			})
			total++
		}
	}

	if s.logger != nil {
		s.logger.Infof("Registered %d tools with the MCP server", total)
	}
}
