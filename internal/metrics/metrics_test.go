package metrics

import (
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestInitIsIdempotent(t *testing.T) {
	Init()
	Init()

	// Observations after a double Init must not panic.
	ObserveCycle("timer", "completed", 250*time.Millisecond)
	ObserveConversations(3, 1, 0)
	SetConsecutiveErrors(2)
	SetSchedulerRunning(true)
	SetSchedulerRunning(false)
	ObserveHTTPRequest("GET", "/api/scheduler/status", 200, 5*time.Millisecond)
}

func TestHandlerServesMetrics(t *testing.T) {
	Init()
	ObserveCycle("manual", "failed", time.Second)

	rec := httptest.NewRecorder()
	req := httptest.NewRequest("GET", "/metrics", nil)
	Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	require.Contains(t, rec.Body.String(), "buddichain_cycles_total")
}

func TestStatusText(t *testing.T) {
	t.Parallel()

	require.Equal(t, "2xx", statusText(204))
	require.Equal(t, "4xx", statusText(409))
	require.Equal(t, "5xx", statusText(503))
}
