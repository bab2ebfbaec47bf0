package monitor

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMapPageCollection(t *testing.T) {
	body := []byte(`{
		"@odata.count": 2,
		"@odata.nextLink": "https://api-us.cloud.com/monitorodata/Machines?$skip=100",
		"value": [
			{"Id": 1, "Name": "CORP\\VDA-001"},
			{"Id": 2, "Name": "CORP\\VDA-002"}
		]
	}`)

	page, err := NewMapper(nil).MapPage(200, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, "CORP\\VDA-001", page.Records[0]["Name"])
	assert.Equal(t, "https://api-us.cloud.com/monitorodata/Machines?$skip=100", page.NextLink)
	require.NotNil(t, page.Count)
	assert.Equal(t, int64(2), *page.Count)
}

func TestMapPageEmptyCollection(t *testing.T) {
	page, err := NewMapper(nil).MapPage(200, []byte(`{"value": []}`))
	require.NoError(t, err)
	assert.Empty(t, page.Records)
	assert.Empty(t, page.NextLink)
}

func TestMapPageAggregation(t *testing.T) {
	body := []byte(`{
		"value": [
			{"FailureCategory": "Machine", "Count": 12},
			{"FailureCategory": "Connection", "Count": 3}
		]
	}`)

	page, err := NewMapper(nil).MapPage(200, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 2)
	assert.Equal(t, float64(12), page.Records[0]["Count"])
}

func TestMapPageSingleEntity(t *testing.T) {
	body := []byte(`{"Id": 42, "Name": "CORP\\VDA-042"}`)

	page, err := NewMapper(nil).MapPage(200, body)
	require.NoError(t, err)
	require.Len(t, page.Records, 1)
	assert.Equal(t, float64(42), page.Records[0]["Id"])
}

func TestMapPageErrorEnvelopeAtHTTP200(t *testing.T) {
	// The service sometimes wraps errors in a 200 response
	body := []byte(`{"error": {"code": "InvalidFilter", "message": "Could not parse $filter"}}`)

	_, err := NewMapper(nil).MapPage(200, body)
	require.Error(t, err)

	remErr, ok := AsRemoteError(err)
	require.True(t, ok, "expected a RemoteError, got %T", err)
	assert.Equal(t, 200, remErr.StatusCode)
	assert.Equal(t, "InvalidFilter", remErr.Code)
	assert.Equal(t, "Could not parse $filter", remErr.Message)
}

func TestMapPageMalformedBody(t *testing.T) {
	_, err := NewMapper(nil).MapPage(200, []byte(`<html>gateway error</html>`))
	require.Error(t, err)

	remErr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Contains(t, remErr.Message, "failed to decode")
	assert.Contains(t, remErr.Body, "<html>")
}

func TestMapPageTruncatesLongBodies(t *testing.T) {
	long := strings.Repeat("x", 5000)
	_, err := NewMapper(nil).MapPage(200, []byte(long))
	require.Error(t, err)

	remErr, ok := AsRemoteError(err)
	require.True(t, ok)
	assert.Less(t, len(remErr.Body), 1100)
	assert.Contains(t, remErr.Body, "[truncated]")
}

func TestTransform(t *testing.T) {
	mapper := NewMapper(nil)
	data := []any{
		map[string]any{"Name": "VDA-001", "LoadIndex": float64(9000)},
		map[string]any{"Name": "VDA-002", "LoadIndex": float64(200)},
	}

	out, err := mapper.Transform(data, `[.[] | select(.LoadIndex > 1000) | .Name]`)
	require.NoError(t, err)
	assert.Equal(t, []any{"VDA-001"}, out)
}

func TestTransformEmptyExpressionIsIdentity(t *testing.T) {
	mapper := NewMapper(nil)
	data := []any{map[string]any{"a": float64(1)}}

	out, err := mapper.Transform(data, "")
	require.NoError(t, err)
	assert.Equal(t, data, out)
}

func TestTransformInvalidExpression(t *testing.T) {
	_, err := NewMapper(nil).Transform(nil, `.[ bad`)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid transform expression")
}
