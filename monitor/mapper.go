package monitor

import (
	"encoding/json"
	"fmt"

	"github.com/VDIOps/CitrixMonMCP/global"
	"github.com/itchyny/gojq"
)

// Entity is one loosely structured record. The field set varies by
// EntityKind and service version, so it is not statically fixed.
type Entity map[string]any

// Page is one HTTP response's worth of decoded records plus the
// continuation link, if any.
type Page struct {
	Records  []Entity
	NextLink string
	Count    *int64
}

// odataEnvelope covers the three payload shapes the service produces:
// an entity collection, an aggregation result (same envelope, different
// record shape), and an error envelope.
type odataEnvelope struct {
	Value    json.RawMessage `json:"value"`
	NextLink string          `json:"@odata.nextLink"`
	Count    *int64          `json:"@odata.count"`
	Error    *odataError     `json:"error"`
}

type odataError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// Mapper normalizes raw OData payloads into Pages
type Mapper struct {
	logger global.Logger
}

// NewMapper creates a new Mapper
func NewMapper(logger global.Logger) *Mapper {
	return &Mapper{logger: logger}
}

// MapPage decodes one response body. An error envelope is mapped to
// RemoteError even when the HTTP status was 200 (a known service
// quirk). A body without a "value" array is treated as a single entity,
// which is what the service returns for a by-key lookup.
func (m *Mapper) MapPage(statusCode int, body []byte) (*Page, error) {
	var envelope odataEnvelope
	if err := json.Unmarshal(body, &envelope); err != nil {
		return nil, &RemoteError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("failed to decode response body: %v", err),
			Body:       truncateBody(body),
		}
	}

	if envelope.Error != nil {
		if m.logger != nil {
			m.logger.Warningf("Service returned error envelope at HTTP %d: %s %s",
				statusCode, envelope.Error.Code, envelope.Error.Message)
		}
		return nil, &RemoteError{
			StatusCode: statusCode,
			Code:       envelope.Error.Code,
			Message:    envelope.Error.Message,
		}
	}

	page := &Page{NextLink: envelope.NextLink, Count: envelope.Count}

	if envelope.Value != nil {
		if err := json.Unmarshal(envelope.Value, &page.Records); err != nil {
			return nil, &RemoteError{
				StatusCode: statusCode,
				Message:    fmt.Sprintf("failed to decode value array: %v", err),
				Body:       truncateBody(body),
			}
		}
		return page, nil
	}

	// No "value" array: a single entity returned by key lookup
	var single Entity
	if err := json.Unmarshal(body, &single); err != nil {
		return nil, &RemoteError{
			StatusCode: statusCode,
			Message:    fmt.Sprintf("failed to decode entity: %v", err),
			Body:       truncateBody(body),
		}
	}
	if len(single) > 0 {
		page.Records = []Entity{single}
	}
	return page, nil
}

// Transform applies a jq expression to the data using gojq. Used by the
// raw query tool so callers can shape large result sets before they are
// returned over MCP.
func (m *Mapper) Transform(data any, expression string) (any, error) {
	if expression == "" {
		return data, nil
	}

	query, err := gojq.Parse(expression)
	if err != nil {
		return nil, fmt.Errorf("invalid transform expression: %w", err)
	}

	iter := query.Run(data)
	v, ok := iter.Next()
	if !ok {
		return nil, fmt.Errorf("transform produced no output")
	}
	if err, isErr := v.(error); isErr {
		return nil, fmt.Errorf("transform execution failed: %w", err)
	}
	return v, nil
}

// truncateBody keeps error diagnostics readable
func truncateBody(body []byte) string {
	const limit = 1000
	if len(body) > limit {
		return string(body[:limit]) + "... [truncated]"
	}
	return string(body)
}
