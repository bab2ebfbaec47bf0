package monitor

import (
	"fmt"
	"net/url"
	"strconv"
	"strings"
)

// EntityKind names an OData entity set exposed by the Monitor Service
type EntityKind string

//goland:noinspection GoUnusedConst
const (
	EntityMachines              EntityKind = "Machines"
	EntitySessions              EntityKind = "Sessions"
	EntityConnections           EntityKind = "Connections"
	EntityApplications          EntityKind = "Applications"
	EntityApplicationInstances  EntityKind = "ApplicationInstances"
	EntityApplicationFaults     EntityKind = "ApplicationFaults"
	EntityUsers                 EntityKind = "Users"
	EntityDesktopGroups         EntityKind = "DesktopGroups"
	EntityHypervisors           EntityKind = "Hypervisors"
	EntityResourceUtilization   EntityKind = "ResourceUtilization"
	EntityMachineFailureLogs    EntityKind = "MachineFailureLogs"
	EntityConnectionFailureLogs EntityKind = "ConnectionFailureLogs"
	EntityFailureLogSummaries   EntityKind = "FailureLogSummaries"
	EntityLogOnMetrics          EntityKind = "LogOnMetrics"
	EntityLoadIndexes           EntityKind = "LoadIndexes"
)

// maxPageSize is the service's fixed page ceiling. A larger caller-level
// Top is satisfied across multiple pages by the Paginator.
const maxPageSize = 100

// SortDirection is an $orderby direction
type SortDirection string

const (
	SortAsc  SortDirection = "asc"
	SortDesc SortDirection = "desc"
)

// Order is one (field, direction) pair of an $orderby clause
type Order struct {
	Field     string
	Direction SortDirection
}

// Desc is a convenience constructor for a descending sort
func Desc(field string) Order {
	return Order{Field: field, Direction: SortDesc}
}

// Asc is a convenience constructor for an ascending sort
func Asc(field string) Order {
	return Order{Field: field, Direction: SortAsc}
}

// Query is a structured description of one OData query. It is immutable:
// constructed once per tool invocation and never modified afterwards.
//
// Top, when set, bounds the final ResultSet size regardless of the
// service's 100-record page ceiling. Filter syntax is the caller's
// responsibility; the builder passes it through verbatim.
type Query struct {
	Entity  EntityKind
	Filter  string
	Select  []string
	OrderBy []Order
	Expand  []string
	Top     int // 0 = unset
	Skip    int // 0 = unset
	Count   bool
	Apply   string // raw aggregation expression
}

// Validate checks the structural invariants of the query
func (q Query) Validate() error {
	if q.Entity == "" {
		return NewValidationError("entity", q.Entity, "entity is required")
	}
	if q.Top < 0 {
		return NewValidationError("top", q.Top, "must not be negative")
	}
	if q.Skip < 0 {
		return NewValidationError("skip", q.Skip, "must not be negative")
	}
	// Filter is passed through as-is, but a supplied-yet-blank filter is
	// always a caller bug rather than a meaningful query.
	if q.Filter != "" && strings.TrimSpace(q.Filter) == "" {
		return NewValidationError("filter", q.Filter, "must not be blank when supplied")
	}
	for _, o := range q.OrderBy {
		if strings.TrimSpace(o.Field) == "" {
			return NewValidationError("orderby", o.Field, "field must not be blank")
		}
		if o.Direction != "" && o.Direction != SortAsc && o.Direction != SortDesc {
			return NewValidationError("orderby", o.Direction, "direction must be asc or desc")
		}
	}
	return nil
}

// Values translates the query into OData v4 query-string parameters.
// The per-request $top is clamped to the service's page ceiling; the
// caller-level Top still governs the total ResultSet size.
func (q Query) Values() (url.Values, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}

	params := url.Values{}
	if q.Filter != "" {
		params.Set("$filter", q.Filter)
	}
	if len(q.Select) > 0 {
		params.Set("$select", strings.Join(q.Select, ","))
	}
	if len(q.OrderBy) > 0 {
		clauses := make([]string, 0, len(q.OrderBy))
		for _, o := range q.OrderBy {
			dir := o.Direction
			if dir == "" {
				dir = SortAsc
			}
			clauses = append(clauses, fmt.Sprintf("%s %s", o.Field, dir))
		}
		params.Set("$orderby", strings.Join(clauses, ","))
	}
	if len(q.Expand) > 0 {
		params.Set("$expand", strings.Join(q.Expand, ","))
	}
	if q.Top > 0 {
		top := q.Top
		if top > maxPageSize {
			top = maxPageSize
		}
		params.Set("$top", strconv.Itoa(top))
	}
	if q.Skip > 0 {
		params.Set("$skip", strconv.Itoa(q.Skip))
	}
	if q.Count {
		params.Set("$count", "true")
	}
	if q.Apply != "" {
		params.Set("$apply", q.Apply)
	}
	return params, nil
}

// URL renders the full request URL for the first page of the query
func (q Query) URL(baseURL string) (string, error) {
	params, err := q.Values()
	if err != nil {
		return "", err
	}
	u := strings.TrimRight(baseURL, "/") + "/" + string(q.Entity)
	if encoded := params.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u, nil
}
