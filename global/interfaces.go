package global

// Logger is the logging interface used throughout the application.
// mlogger satisfies it; every component accepts a nil logger and stays quiet.
type Logger interface {
	Debug(string)
	Debugf(format string, v ...interface{})
	Info(string)
	Infof(format string, v ...interface{})
	Warning(string)
	Warningf(format string, v ...interface{})
	Error(string)
	Errorf(format string, v ...interface{})
	Fatalf(format string, v ...interface{})
}

// Parameter represents a parameter for a tool
type Parameter struct {
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Required    bool          `json:"required"`
	Type        string        `json:"type"` // "string", "number", "boolean", "array", "object"
	Default     interface{}   `json:"default"`
	Enum        []interface{} `json:"enum"`
}

// ToolDefinition represents the structure of a tool
type ToolDefinition struct {
	Name        string
	Description string
	Parameters  []Parameter
	Handler     ToolHandler
}

// ToolHandler defines the function signature for our tool handler
type ToolHandler func(options map[string]any) (string, error)

// ToolProvider defines an interface for providing tools
type ToolProvider interface {
	RegisterTools() []ToolDefinition
}

// NewTools is a helper function that returns an empty slice of ToolDefinition
//
//goland:noinspection GoUnusedExportedFunction
func NewTools() []ToolDefinition {
	return []ToolDefinition{}
}

// ContextKey is a type for context keys to avoid collisions
type ContextKey string

const (
	// ToolNameKey is the key used to store the MCP tool name in request contexts
	ToolNameKey ContextKey = "tool_name"
)
