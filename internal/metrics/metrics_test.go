package metrics

import (
	"errors"
	"io"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCollector_Stats(t *testing.T) {
	c := NewCollector(4)
	for i := 1; i <= 6; i++ {
		status := 200
		if i%3 == 0 {
			status = 429
		}
		c.Record(time.Duration(i)*time.Millisecond, status)
	}

	s := c.GetStats()
	assert.EqualValues(t, 6, s.TotalRequests)
	assert.EqualValues(t, 2, s.TotalErrors)
	assert.InDelta(t, 1.0/3, s.ErrorRate, 1e-9)
	assert.EqualValues(t, 4, s.StatusCounts[200])
	assert.EqualValues(t, 2, s.StatusCounts[429])
	// reservoir keeps 3..6ms
	assert.Equal(t, "4ms", s.P50Latency)
	assert.Equal(t, "6ms", s.P99Latency)
}

func TestCollector_Empty(t *testing.T) {
	s := NewCollector(10).GetStats()
	assert.Zero(t, s.ErrorRate)
	assert.Equal(t, "0s", s.P95Latency)
}

func TestCollector_Handler(t *testing.T) {
	c := NewCollector(10)
	c.Record(time.Millisecond, 200)
	c.RecordAdmission("guest", false)
	c.RecordToolCall("sentiment", errors.New("boom"))

	rec := httptest.NewRecorder()
	c.Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)

	assert.Contains(t, string(body), `textgate_http_requests_total{code="200"} 1`)
	assert.Contains(t, string(body), `textgate_ratelimit_admissions_total{outcome="denied",tier="guest"} 1`)
	assert.Contains(t, string(body), `textgate_tool_invocations_total{outcome="error",tool="sentiment"} 1`)
}
