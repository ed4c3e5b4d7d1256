package metrics

import (
	"io"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCountersAreRegistered(t *testing.T) {
	before := testutil.ToFloat64(RealtimeActions.WithLabelValues("send", "dropped"))
	RealtimeActions.WithLabelValues("send", "dropped").Inc()
	assert.Equal(t, before+1, testutil.ToFloat64(RealtimeActions.WithLabelValues("send", "dropped")))

	rec := httptest.NewRecorder()
	Handler().ServeHTTP(rec, httptest.NewRequest("GET", "/metrics", nil))
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "campus_realtime_actions_total")
	assert.Contains(t, string(body), "campus_realtime_state")
}
