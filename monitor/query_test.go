package monitor

import (
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryValues(t *testing.T) {
	tests := []struct {
		name        string
		query       Query
		expect      url.Values
		expectError string
	}{
		{
			name:   "entity only",
			query:  Query{Entity: EntityMachines},
			expect: url.Values{},
		},
		{
			name: "full query",
			query: Query{
				Entity:  EntitySessions,
				Filter:  "EndDate eq null",
				Select:  []string{"SessionKey", "StartDate"},
				OrderBy: []Order{Desc("StartDate"), Asc("SessionKey")},
				Expand:  []string{"User", "Machine"},
				Top:     50,
				Skip:    10,
				Count:   true,
			},
			expect: url.Values{
				"$filter":  {"EndDate eq null"},
				"$select":  {"SessionKey,StartDate"},
				"$orderby": {"StartDate desc,SessionKey asc"},
				"$expand":  {"User,Machine"},
				"$top":     {"50"},
				"$skip":    {"10"},
				"$count":   {"true"},
			},
		},
		{
			name:  "top clamped to the page ceiling",
			query: Query{Entity: EntityMachines, Top: 500},
			expect: url.Values{
				"$top": {"100"},
			},
		},
		{
			name:  "aggregation",
			query: Query{Entity: EntityConnectionFailureLogs, Apply: "groupby((FailureCategory),aggregate($count as Count))"},
			expect: url.Values{
				"$apply": {"groupby((FailureCategory),aggregate($count as Count))"},
			},
		},
		{
			name:  "orderby direction defaults to asc",
			query: Query{Entity: EntityMachines, OrderBy: []Order{{Field: "Name"}}},
			expect: url.Values{
				"$orderby": {"Name asc"},
			},
		},
		{
			name:        "missing entity",
			query:       Query{},
			expectError: "entity is required",
		},
		{
			name:        "negative top",
			query:       Query{Entity: EntityMachines, Top: -1},
			expectError: "must not be negative",
		},
		{
			name:        "negative skip",
			query:       Query{Entity: EntityMachines, Skip: -5},
			expectError: "must not be negative",
		},
		{
			name:        "blank filter",
			query:       Query{Entity: EntityMachines, Filter: "   "},
			expectError: "must not be blank",
		},
		{
			name:        "blank orderby field",
			query:       Query{Entity: EntityMachines, OrderBy: []Order{{Field: "  "}}},
			expectError: "field must not be blank",
		},
		{
			name:        "bad orderby direction",
			query:       Query{Entity: EntityMachines, OrderBy: []Order{{Field: "Name", Direction: "sideways"}}},
			expectError: "direction must be asc or desc",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			values, err := tt.query.Values()

			if tt.expectError != "" {
				require.Error(t, err)
				assert.Contains(t, err.Error(), tt.expectError)
				_, ok := AsValidationError(err)
				assert.True(t, ok, "expected a ValidationError, got %T", err)
				return
			}

			require.NoError(t, err)
			assert.Equal(t, tt.expect, values)
		})
	}
}

func TestQueryURL(t *testing.T) {
	q := Query{
		Entity:  EntityLogOnMetrics,
		Filter:  "LogOnDuration gt 60000",
		OrderBy: []Order{Desc("LogOnDuration")},
		Top:     10,
	}

	u, err := q.URL("https://api-us.cloud.com/monitorodata/")
	require.NoError(t, err)

	parsed, err := url.Parse(u)
	require.NoError(t, err)
	assert.Equal(t, "/monitorodata/LogOnMetrics", parsed.Path)

	params := parsed.Query()
	assert.Equal(t, "LogOnDuration gt 60000", params.Get("$filter"))
	assert.Equal(t, "LogOnDuration desc", params.Get("$orderby"))
	assert.Equal(t, "10", params.Get("$top"))
}

func TestQueryURLNoParams(t *testing.T) {
	u, err := Query{Entity: EntityHypervisors}.URL("https://ddc.corp.local/Citrix/Monitor/OData/v4/Data")
	require.NoError(t, err)
	assert.Equal(t, "https://ddc.corp.local/Citrix/Monitor/OData/v4/Data/Hypervisors", u)
}
