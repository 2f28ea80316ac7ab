package push

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/golang/snappy"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/prometheus/prompb"
	"github.com/smallbiznis/retailsales/internal/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testRegistry(t *testing.T) *prometheus.Registry {
	t.Helper()
	registry := prometheus.NewRegistry()
	committed := prometheus.NewCounterVec(prometheus.CounterOpts{
		Name: "retailsales_rollup_periods_committed_total",
		Help: "test",
	}, []string{"table"})
	duration := prometheus.NewHistogram(prometheus.HistogramOpts{
		Name: "retailsales_rollup_period_duration_seconds",
		Help: "test",
	})
	registry.MustRegister(committed, duration)
	committed.WithLabelValues("category_daily").Add(3)
	duration.Observe(0.5)
	return registry
}

func TestBuildRemoteWriteSeries(t *testing.T) {
	families, err := testRegistry(t).Gather()
	require.NoError(t, err)

	series := buildRemoteWriteSeries(families, 1000)
	require.Len(t, series, 3)

	byName := map[string]prompb.TimeSeries{}
	for _, s := range series {
		for _, l := range s.Labels {
			if l.Name == "__name__" {
				byName[l.Value] = s
			}
		}
	}
	counter := byName["retailsales_rollup_periods_committed_total"]
	require.Len(t, counter.Samples, 1)
	assert.Equal(t, 3.0, counter.Samples[0].Value)
	assert.Equal(t, int64(1000), counter.Samples[0].Timestamp)
	assert.Equal(t, "__name__", counter.Labels[0].Name)
	assert.Equal(t, "table", counter.Labels[1].Name)

	assert.Equal(t, 1.0, byName["retailsales_rollup_period_duration_seconds_count"].Samples[0].Value)
	assert.Equal(t, 0.5, byName["retailsales_rollup_period_duration_seconds_sum"].Samples[0].Value)
}

func TestRemoteWritePusherSendsSnappyProtobuf(t *testing.T) {
	var (
		mu       sync.Mutex
		received prompb.WriteRequest
		auth     string
	)
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, err := io.ReadAll(r.Body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		raw, err := snappy.Decode(nil, body)
		if err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		mu.Lock()
		defer mu.Unlock()
		auth = r.Header.Get("Authorization")
		if err := received.Unmarshal(raw); err != nil {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	pusher := NewRemoteWritePusher(srv.URL, "secret")
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, "Bearer secret", auth)
	assert.Len(t, received.Timeseries, 3)
}

func TestRemoteWritePusherReportsHTTPFailure(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	err := NewRemoteWritePusher(srv.URL, "").Push(context.Background(), testRegistry(t))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "500")
}

func TestPushgatewayPusherUsesJobPath(t *testing.T) {
	var path string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		path = r.URL.Path
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	pusher := NewPushgatewayPusher(srv.URL, "retailsales", map[string]string{"environment": "test", "empty": ""})
	require.NoError(t, pusher.Push(context.Background(), testRegistry(t)))
	assert.True(t, strings.HasPrefix(path, "/metrics/job/retailsales"), path)
	assert.Contains(t, path, "environment/test")
	assert.NotContains(t, path, "empty")
}

func TestNewPusherDisabledWithoutEndpoint(t *testing.T) {
	assert.Nil(t, NewPusher(config.Config{}, zap.NewNop()))
	assert.Nil(t, NewPusher(config.Config{Metrics: config.MetricsPushConfig{Exporter: "statsd", Endpoint: "x"}}, zap.NewNop()))

	p := NewPusher(config.Config{AppName: "retailsales", Metrics: config.MetricsPushConfig{
		Exporter: ExporterPushgateway,
		Endpoint: "http://localhost:9091",
	}}, zap.NewNop())
	assert.IsType(t, &PushgatewayPusher{}, p)
}
