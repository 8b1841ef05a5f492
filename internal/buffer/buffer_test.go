package buffer

import (
	"testing"
	"time"

	"github.com/rapidaai/edgetts/internal/edgeerr"
	"github.com/rapidaai/edgetts/pkg/commons"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newService(cfg Config) *Service {
	return NewService(cfg, commons.NewNopLogger())
}

func TestCreate_DuplicateRejected(t *testing.T) {
	s := newService(DefaultConfig())
	require.NoError(t, s.Create("a", false))
	err := s.Create("a", false)
	require.Error(t, err)
	e, _ := edgeerr.As(err)
	assert.Equal(t, edgeerr.KindBufferDuplicateId, e.Kind)
}

func TestCreate_AllowExistingIsIdempotent(t *testing.T) {
	s := newService(DefaultConfig())
	require.NoError(t, s.Create("a", false))
	require.NoError(t, s.Create("a", true))
}

func TestAppend_PreservesOrderAndTotalSize(t *testing.T) {
	s := newService(DefaultConfig())
	require.NoError(t, s.Create("a", false))
	require.NoError(t, s.Append("a", []byte("abc")))
	require.NoError(t, s.Append("a", []byte("def")))

	merged, err := s.Merged("a")
	require.NoError(t, err)
	assert.Equal(t, "abcdef", string(merged))

	info := s.Info("a")
	assert.Equal(t, 6, info.Size)
	assert.Equal(t, 2, info.ChunkCount)
}

func TestAppend_RejectsExactlyAtCapBoundary(t *testing.T) {
	cfg := DefaultConfig()
	cfg.MaxBufferBytes = 10
	s := newService(cfg)
	require.NoError(t, s.Create("a", false))

	require.NoError(t, s.Append("a", make([]byte, 10)))
	info := s.Info("a")
	assert.Equal(t, 10, info.Size)

	err := s.Append("a", []byte{0x01})
	require.Error(t, err)
	e, _ := edgeerr.As(err)
	assert.Equal(t, edgeerr.KindBufferLimitExceeded, e.Kind)
}

func TestAppend_NoOpAfterCompleted(t *testing.T) {
	s := newService(DefaultConfig())
	require.NoError(t, s.Create("a", false))
	require.NoError(t, s.MarkCompleted("a"))
	require.NoError(t, s.Append("a", []byte("late")))

	info := s.Info("a")
	assert.Equal(t, 0, info.Size)
}

func TestCleanup_IdempotentSecondCallReturnsFalse(t *testing.T) {
	s := newService(DefaultConfig())
	require.NoError(t, s.Create("a", false))
	assert.True(t, s.Cleanup("a"))
	assert.False(t, s.Cleanup("a"))
}

func TestInfo_UnknownIdDoesNotError(t *testing.T) {
	s := newService(DefaultConfig())
	info := s.Info("missing")
	assert.False(t, info.Exists)
}

func TestSweep_ReapsCompletedAndStale(t *testing.T) {
	s := newService(DefaultConfig())
	require.NoError(t, s.Create("completed", false))
	require.NoError(t, s.MarkCompleted("completed"))

	require.NoError(t, s.Create("stale", false))
	s.buffers["stale"].lastActivity = time.Now().Add(-time.Hour)

	require.NoError(t, s.Create("fresh", false))

	reaped := s.Sweep(time.Minute)
	assert.Equal(t, 2, reaped)
	assert.True(t, s.Info("fresh").Exists)
	assert.False(t, s.Info("completed").Exists)
	assert.False(t, s.Info("stale").Exists)
}

func TestValidateChunk_SizeGuards(t *testing.T) {
	cfg := DefaultConfig()
	s := newService(cfg)

	require.Error(t, s.ValidateChunk(nil))
	require.Error(t, s.ValidateChunk(make([]byte, cfg.MinChunkSize-1)))
	require.NoError(t, s.ValidateChunk(make([]byte, cfg.MinChunkSize)))
	require.NoError(t, s.ValidateChunk(make([]byte, cfg.MaxChunkSize)))
	require.Error(t, s.ValidateChunk(make([]byte, cfg.MaxChunkSize+1)))
}
