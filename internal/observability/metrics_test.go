package observability

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/couchcryptid/storm-data-maxprecip/internal/config"
)

func TestNewMetricsForTesting_Unregistered(t *testing.T) {
	a := NewMetricsForTesting()
	b := NewMetricsForTesting()

	a.ScansTotal.WithLabelValues(ScanGridded).Inc()
	a.ScansTotal.WithLabelValues(ScanGridded).Inc()
	b.ScansTotal.WithLabelValues(ScanCached).Inc()

	assert.Equal(t, 2.0, testutil.ToFloat64(a.ScansTotal.WithLabelValues(ScanGridded)))
	assert.Equal(t, 0.0, testutil.ToFloat64(b.ScansTotal.WithLabelValues(ScanGridded)))
}

func TestMetrics_RegisterOnFreshRegistry(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewMetricsForTesting()
	for _, c := range m.Collectors() {
		require.NoError(t, reg.Register(c))
	}

	m.ScansTotal.WithLabelValues(ScanFailed).Inc()
	m.MaxAccum.WithLabelValues("fiuta").Set(42.5)

	n, err := testutil.GatherAndCount(reg, "maxprecip_scans_total", "maxprecip_max_accumulation_mm")
	require.NoError(t, err)
	assert.Equal(t, 2, n)
}

func TestMetrics_Push(t *testing.T) {
	var (
		mu   sync.Mutex
		path string
		body string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		mu.Lock()
		path = r.URL.Path
		body = string(b)
		mu.Unlock()
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	m := NewMetricsForTesting()
	m.ProductsWritten.Add(2)

	require.NoError(t, m.Push(context.Background(), srv.URL, "fiuta"))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "/metrics/job/maxprecip/site/fiuta", path)
	assert.NotEmpty(t, body)
}

func TestMetrics_PushError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewMetricsForTesting().Push(context.Background(), srv.URL, "")
	require.Error(t, err)
	assert.True(t, strings.Contains(err.Error(), "push metrics"))
}

func TestNewLogger(t *testing.T) {
	logger := NewLogger(&config.Config{LogLevel: "debug", LogFormat: "text"})
	require.NotNil(t, logger)
	assert.NotNil(t, RunLogger(logger, "run-1"))
}
