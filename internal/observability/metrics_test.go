package observability

import (
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func counterValue(t *testing.T, m *Metrics, name string, labels map[string]string) float64 {
	t.Helper()
	families, err := m.Gatherer().Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, metric := range mf.GetMetric() {
			matched := 0
			for _, lp := range metric.GetLabel() {
				if labels[lp.GetName()] == lp.GetValue() {
					matched++
				}
			}
			if matched == len(labels) {
				return metric.GetCounter().GetValue()
			}
		}
	}
	return 0
}

func TestObserveUpstreamAndResult(t *testing.T) {
	m := NewMetrics()
	m.ObserveUpstream("chat_completions", 200, 1500*time.Millisecond)
	m.ObserveUpstream("chat_completions", 200, time.Second)
	m.ObserveUpstream("", 0, time.Second)
	m.ObserveResult("success")
	m.ObserveResult("timeout")

	require.Equal(t, 2.0, counterValue(t, m, "audiocaption_upstream_requests_total", map[string]string{"endpoint": "chat_completions", "status": "200"}))
	require.Equal(t, 1.0, counterValue(t, m, "audiocaption_upstream_requests_total", map[string]string{"endpoint": "unknown", "status": "0"}))
	require.Equal(t, 1.0, counterValue(t, m, "audiocaption_results_total", map[string]string{"kind": "timeout"}))
}

func TestObserveHTTP(t *testing.T) {
	m := NewMetrics()
	m.ObserveHTTP("/v1/chat/completions", "POST", 200, time.Millisecond)
	m.ObserveHTTP("", "", 404, time.Millisecond)

	require.Equal(t, 1.0, counterValue(t, m, "audiocaption_mock_http_requests_total", map[string]string{"route": "/v1/chat/completions", "method": "POST", "status": "200"}))
	require.Equal(t, 1.0, counterValue(t, m, "audiocaption_mock_http_requests_total", map[string]string{"route": "unknown", "method": "UNKNOWN", "status": "404"}))
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	m.ObserveUpstream("x", 200, time.Second)
	m.ObserveHTTP("x", "GET", 200, time.Second)
	m.ObserveResult("success")
}

func TestWriteTextfile(t *testing.T) {
	m := NewMetrics()
	m.ObserveResult("http_status")
	path := filepath.Join(t.TempDir(), "caption.prom")

	require.NoError(t, m.WriteTextfile(path))
	data, err := os.ReadFile(path)
	require.NoError(t, err)
	require.Contains(t, string(data), `audiocaption_results_total{kind="http_status"} 1`)
}

func TestHandlerServesRegistry(t *testing.T) {
	m := NewMetrics()
	m.ObserveResult("success")
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	require.Contains(t, rec.Body.String(), "audiocaption_results_total")
}
