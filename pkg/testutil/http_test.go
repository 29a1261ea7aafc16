package testutil

import (
	"net/http"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNDJSONRoundTrip(t *testing.T) {
	body := NDJSON(t, map[string]any{"fingerprint": "aa"}, map[string]any{"fingerprint": "bb", "n": 1})
	assert.Equal(t, 2, strings.Count(body, "\n"))

	req := NewNDJSONRequest(t, http.MethodPost, "/v1/enrich", body)
	assert.Equal(t, ContentTypeNDJSON, req.Header.Get("Content-Type"))

	lines := DecodeNDJSON(t, strings.NewReader(body+"\n"))
	assert.Equal(t, []map[string]any{
		{"fingerprint": "aa"},
		{"fingerprint": "bb", "n": 1.0},
	}, lines)
}
