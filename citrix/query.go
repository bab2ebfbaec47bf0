package citrix

import (
	"strings"

	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/VDIOps/CitrixMonMCP/monitor"
)

// queryTools returns the generic query tools for entity sets the
// purpose-built tools do not cover.
func (p *Provider) queryTools() []global.ToolDefinition {
	return []global.ToolDefinition{
		{
			Name:        "citrix_entity_count",
			Description: "Count entities in any Monitor Service entity set, optionally filtered.",
			Parameters: []global.Parameter{
				{Name: "entity", Description: "Entity set name (e.g. Machines, Sessions)",
					Required: true, Type: "string"},
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
			},
			Handler: p.handleEntityCount,
		},
		{
			Name: "citrix_aggregate",
			Description: "Run an OData $apply aggregation against any entity set, e.g. " +
				"\"groupby((FailureCategory),aggregate($count as Count))\".",
			Parameters: []global.Parameter{
				{Name: "entity", Description: "Entity set name", Required: true, Type: "string"},
				{Name: "apply", Description: "OData $apply expression", Required: true, Type: "string"},
			},
			Handler: p.handleAggregate,
		},
		{
			Name: "citrix_query_raw",
			Description: "Run an arbitrary OData query against any Monitor Service entity set. " +
				"Results can be reshaped with an optional jq transform expression.",
			Parameters: []global.Parameter{
				{Name: "entity", Description: "Entity set name", Required: true, Type: "string"},
				{Name: "filter", Description: "Raw OData $filter expression", Type: "string"},
				{Name: "select", Description: "Comma-separated fields for $select", Type: "string"},
				{Name: "orderby", Description: "OData $orderby clause (e.g. \"StartDate desc\")", Type: "string"},
				{Name: "expand", Description: "Comma-separated navigation properties for $expand", Type: "string"},
				{Name: "top", Description: "Maximum records to return", Type: "number"},
				{Name: "skip", Description: "Records to skip", Type: "number"},
				{Name: "transform", Description: "jq expression applied to the records", Type: "string"},
			},
			Handler: p.handleQueryRaw,
		},
	}
}

func (p *Provider) handleEntityCount(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	entity := optString(options, "entity")
	if entity == "" {
		return "", monitor.NewValidationError("entity", entity, "entity is required")
	}

	count, err := p.client.Count(ctx, monitor.EntityKind(entity), optString(options, "filter"))
	if err != nil {
		return "", err
	}
	return resultJSON(map[string]any{"entity": entity, "count": count})
}

func (p *Provider) handleAggregate(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	entity := optString(options, "entity")
	if entity == "" {
		return "", monitor.NewValidationError("entity", entity, "entity is required")
	}

	result, err := p.client.Aggregate(ctx, monitor.EntityKind(entity), optString(options, "apply"))
	if err != nil {
		return "", err
	}
	return resultSetJSON(result)
}

func (p *Provider) handleQueryRaw(options map[string]any) (string, error) {
	ctx := contextFrom(options)

	entity := optString(options, "entity")
	if entity == "" {
		return "", monitor.NewValidationError("entity", entity, "entity is required")
	}

	q := monitor.Query{
		Entity: monitor.EntityKind(entity),
		Filter: optString(options, "filter"),
		Select: splitList(optString(options, "select")),
		Expand: splitList(optString(options, "expand")),
		Top:    optInt(options, "top", 0),
		Skip:   optInt(options, "skip", 0),
	}
	for _, clause := range splitList(optString(options, "orderby")) {
		q.OrderBy = append(q.OrderBy, parseOrder(clause))
	}

	result, err := p.client.Query(ctx, q)
	if err != nil {
		return "", err
	}

	if expr := optString(options, "transform"); expr != "" {
		records := make([]any, 0, len(result.Records))
		for _, r := range result.Records {
			records = append(records, map[string]any(r))
		}
		transformed, err := p.client.Mapper().Transform(records, expr)
		if err != nil {
			return "", err
		}
		return resultJSON(map[string]any{
			"records":       transformed,
			"total_fetched": result.TotalFetched,
			"truncated":     result.Truncated,
		})
	}
	return resultSetJSON(result)
}

// splitList splits a comma-separated parameter into trimmed elements
func splitList(s string) []string {
	if s == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	var out []string
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
}

// parseOrder parses one "Field [asc|desc]" clause
func parseOrder(clause string) monitor.Order {
	fields := strings.Fields(clause)
	o := monitor.Order{Direction: monitor.SortAsc}
	if len(fields) > 0 {
		o.Field = fields[0]
	}
	if len(fields) > 1 && strings.EqualFold(fields[1], "desc") {
		o.Direction = monitor.SortDesc
	}
	return o
}
