package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/edgetts/internal/breaker"
)

func gaugeValue(t *testing.T, g prometheus.Gauge) float64 {
	t.Helper()
	var m dto.Metric
	require.NoError(t, g.Write(&m))
	return m.GetGauge().GetValue()
}

func TestObserve_SetsAllGauges(t *testing.T) {
	reg := prometheus.NewRegistry()
	c := NewCollector(reg)

	c.Observe(3, 2, 1, breaker.StateHalfOpen)

	assert.Equal(t, float64(3), gaugeValue(t, c.activeConnections))
	assert.Equal(t, float64(2), gaugeValue(t, c.queuedRequests))
	assert.Equal(t, float64(1), gaugeValue(t, c.breakerFailures))
	assert.Equal(t, float64(1), gaugeValue(t, c.breakerState))
}

func TestBreakerStateValue_Mapping(t *testing.T) {
	assert.Equal(t, float64(0), breakerStateValue(breaker.StateClosed))
	assert.Equal(t, float64(1), breakerStateValue(breaker.StateHalfOpen))
	assert.Equal(t, float64(2), breakerStateValue(breaker.StateOpen))
}
