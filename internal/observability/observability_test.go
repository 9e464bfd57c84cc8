package observability

import (
	"log/slog"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	t.Parallel()

	assert.Equal(t, slog.LevelDebug, ParseLevel("debug"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("info"))
	assert.Equal(t, slog.LevelWarn, ParseLevel("warn"))
	assert.Equal(t, slog.LevelError, ParseLevel("error"))
	assert.Equal(t, slog.LevelInfo, ParseLevel("bogus"))
}

func TestNewMetricsIsolatedRegistries(t *testing.T) {
	t.Parallel()

	// Private registries: constructing twice must not panic on duplicate
	// registration.
	first := NewMetrics()
	second := NewMetrics()

	first.CommitsWritten.Inc()
	second.TokensMoved.Add(3)

	recorder := httptest.NewRecorder()
	request := httptest.NewRequest("GET", "/metrics", nil)
	first.Handler().ServeHTTP(recorder, request)

	require.Equal(t, 200, recorder.Code)
	body := recorder.Body.String()
	assert.Contains(t, body, "timelinetree_commits_written_total 1")
	assert.Contains(t, body, "timelinetree_tokens_moved_total 0")
}
