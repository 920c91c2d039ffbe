package content

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestService_QuoteFromList(t *testing.T) {
	s := NewService()
	for i := 0; i < 20; i++ {
		assert.Contains(t, s.Quotes(), s.Quote())
	}
}

func TestService_QuoteVaries(t *testing.T) {
	s := NewService()
	seen := make(map[string]struct{})
	for i := 0; i < 200; i++ {
		seen[s.Quote()] = struct{}{}
	}
	assert.Greater(t, len(seen), 1)
}

func TestHandler_Quote(t *testing.T) {
	s := NewService()
	s.pick = func(int) int { return 2 }

	rec := httptest.NewRecorder()
	NewHandler(s).Quote(rec, httptest.NewRequest(http.MethodGet, "/content/quote", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, defaultQuotes[2], body["quote"])
}
