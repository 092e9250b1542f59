package telemetry

import (
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestMetricsIncrementAndScrape(t *testing.T) {
	m := New("aeronet_test")
	m.ConnectionsAccepted.Inc()
	m.ConnectionsClosed.WithLabelValues("client_eof").Inc()
	m.ZeroCopySubmitted.Add(3)
	m.WebSocketMessages.WithLabelValues("text").Inc()

	req := httptest.NewRequest("GET", "/metrics", nil)
	rec := httptest.NewRecorder()
	m.Handler().ServeHTTP(rec, req)

	require.Equal(t, 200, rec.Code)
	body := rec.Body.String()
	require.Contains(t, body, "aeronet_test_connections_accepted_total 1")
	require.Contains(t, body, `aeronet_test_connections_closed_total{reason="client_eof"} 1`)
	require.Contains(t, body, "aeronet_test_zerocopy_submitted_total 3")
}

func TestNewRegistersDistinctRegistries(t *testing.T) {
	a := New("a")
	b := New("b")
	require.NotEqual(t, a.Registry(), b.Registry())
}
