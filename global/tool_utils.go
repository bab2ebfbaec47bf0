package global

import (
	"fmt"
	"strings"
)

// ParseToolName extracts the provider prefix and operation from a tool name.
// Tool names follow the format: {prefix}_{operation}
// For example: "citrix_machine_list" -> ("citrix", "machine_list")
func ParseToolName(toolName string) (prefix string, operation string, err error) {
	if toolName == "" {
		return "", "", fmt.Errorf("tool name cannot be empty")
	}

	firstUnderscore := strings.Index(toolName, "_")
	if firstUnderscore == -1 {
		return "", "", fmt.Errorf("invalid tool name format: %s (expected format: prefix_operation)", toolName)
	}

	prefix = toolName[:firstUnderscore]
	operation = toolName[firstUnderscore+1:]

	if prefix == "" {
		return "", "", fmt.Errorf("prefix cannot be empty in tool: %s", toolName)
	}

	if operation == "" {
		return "", "", fmt.Errorf("operation cannot be empty in tool: %s", toolName)
	}

	return prefix, operation, nil
}

// BuildToolName constructs a tool name from a provider prefix and operation
func BuildToolName(prefix, operation string) string {
	return fmt.Sprintf("%s_%s", prefix, operation)
}
