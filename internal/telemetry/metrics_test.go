package telemetry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gather(t *testing.T, reg *prometheus.Registry, name string) *dto.MetricFamily {
	t.Helper()
	families, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range families {
		if mf.GetName() == name {
			return mf
		}
	}
	t.Fatalf("metric %s not found", name)
	return nil
}

func TestCollector_RecordTokenFetch(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordTokenFetch(true, 10*time.Millisecond)
	c.RecordTokenFetch(true, 20*time.Millisecond)
	c.RecordTokenFetch(false, 5*time.Millisecond)

	mf := gather(t, reg, "sso_token_fetch_total")
	counts := map[string]float64{}
	for _, m := range mf.GetMetric() {
		counts[m.GetLabel()[0].GetValue()] = m.GetCounter().GetValue()
	}
	assert.Equal(t, 2.0, counts["success"])
	assert.Equal(t, 1.0, counts["failure"])

	hist := gather(t, reg, "sso_token_fetch_duration_seconds")
	assert.Equal(t, uint64(3), hist.GetMetric()[0].GetHistogram().GetSampleCount())
}

func TestCollector_RecordProviderRequest(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordProviderRequest("GetUser", 200, time.Millisecond)
	c.RecordProviderRequest("GetUser", 404, time.Millisecond)
	c.RecordProviderRequest("GetUser", 404, time.Millisecond)

	mf := gather(t, reg, "sso_provider_requests_total")
	assert.Len(t, mf.GetMetric(), 2)
}

func TestCollector_RecordRoleChanges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.RecordRoleChanges(2, 1)
	c.RecordRoleChanges(1, 0)

	assert.Equal(t, 3.0, gather(t, reg, "sso_role_mappings_added_total").GetMetric()[0].GetCounter().GetValue())
	assert.Equal(t, 1.0, gather(t, reg, "sso_role_mappings_removed_total").GetMetric()[0].GetCounter().GetValue())
}

func TestHandler_ServesMetrics(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)
	c.RecordRoleChanges(1, 1)

	rec := httptest.NewRecorder()
	Handler(reg).ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	require.Equal(t, http.StatusOK, rec.Code)
	body, err := io.ReadAll(rec.Body)
	require.NoError(t, err)
	assert.Contains(t, string(body), "sso_role_mappings_added_total 1")
}
