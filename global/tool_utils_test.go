package global

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseToolName(t *testing.T) {
	tests := []struct {
		name            string
		toolName        string
		expectPrefix    string
		expectOperation string
		expectError     bool
	}{
		{"simple", "citrix_machine_list", "citrix", "machine_list", false},
		{"multiple underscores", "citrix_session_logon_metrics", "citrix", "session_logon_metrics", false},
		{"empty", "", "", "", true},
		{"no underscore", "citrix", "", "", true},
		{"empty prefix", "_machine_list", "", "", true},
		{"empty operation", "citrix_", "", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prefix, operation, err := ParseToolName(tt.toolName)
			if tt.expectError {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expectPrefix, prefix)
			assert.Equal(t, tt.expectOperation, operation)
		})
	}
}

func TestBuildToolName(t *testing.T) {
	assert.Equal(t, "citrix_machine_list", BuildToolName("citrix", "machine_list"))

	// Round trip
	prefix, operation, err := ParseToolName(BuildToolName("citrix", "query_raw"))
	require.NoError(t, err)
	assert.Equal(t, "citrix", prefix)
	assert.Equal(t, "query_raw", operation)
}
