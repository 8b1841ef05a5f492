package edgetts

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rapidaai/edgetts/config"
)

func testConfig() *config.AppConfig {
	return &config.AppConfig{
		MaxConnections:    4,
		PoolingEnabled:    false,
		ConnTimeoutMs:     1000,
		TotalTimeoutMs:    2000,
		GracefulCloseMs:   500,
		MaxRetries:        2,
		BaseRetryMs:       100,
		MaxRetryMs:        400,
		BreakerFailures:   3,
		BreakerRecoveryMs: 5000,
		BreakerProbes:     2,
		MaxBufferBytes:    1024,
		WarnThreshold:     0.5,
		CleanupMs:         1000,
		MaxTextChars:      10,
		MaxSSMLBytes:      100,
	}
}

func TestCoordinatorConfigFrom_MapsEveryField(t *testing.T) {
	cc := coordinatorConfigFrom(testConfig())

	assert.Equal(t, 4, cc.MaxConnections)
	assert.False(t, cc.QueueEnabled)

	assert.Equal(t, int64(1000*1e6), cc.Connection.ConnectTimeout.Nanoseconds())
	assert.Equal(t, int64(2000*1e6), cc.Connection.TotalTimeout.Nanoseconds())
	assert.Equal(t, int64(500*1e6), cc.Connection.GracefulCloseTimeout.Nanoseconds())

	assert.Equal(t, 2, cc.Retry.MaxRetries)
	assert.Equal(t, int64(100*1e6), cc.Retry.BaseDelay.Nanoseconds())
	assert.Equal(t, int64(400*1e6), cc.Retry.MaxDelay.Nanoseconds())

	assert.Equal(t, 3, cc.Breaker.FailureThreshold)
	assert.Equal(t, 2, cc.Breaker.TestRequestLimit)

	assert.Equal(t, 1024, cc.Buffer.MaxBufferBytes)
	assert.Equal(t, 0.5, cc.Buffer.WarnThreshold)

	assert.Equal(t, 10, cc.SSML.MaxTextChars)
	assert.Equal(t, 100, cc.SSML.MaxSSMLBytes)
}

func TestNew_BuildsUsableClient(t *testing.T) {
	client := New(testConfig(), nil)
	st := client.Status()
	assert.Equal(t, 0, st.ActiveConnections)
}

func TestNewWithDefaults_BuildsUsableClient(t *testing.T) {
	client := NewWithDefaults(nil)
	st := client.Status()
	assert.Equal(t, 0, st.ActiveConnections)
}

func TestLifecycleObserver_OnBackgroundStopsActiveConnections(t *testing.T) {
	client := NewWithDefaults(nil)
	observer := client.LifecycleObserver()
	require.NotNil(t, observer)

	observer.OnBackground()
	observer.OnForeground()
	assert.Equal(t, 0, client.Status().ActiveConnections)
}
