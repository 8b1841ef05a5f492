// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package buffer implements the per-connection StreamingBuffer service: a
// process-wide ConnectionId -> buffer table with byte caps, activity
// timestamps, and a completion/cleanup lifecycle (spec.md §4.5). Mutations
// are serialized through a single mutex, matching the "shared resource
// accessed only via the service interface" rule in spec.md §5.
package buffer

import (
	"sync"
	"time"

	"github.com/rapidaai/edgetts/internal/edgeerr"
	"github.com/rapidaai/edgetts/pkg/commons"
)

// State is a StreamingBuffer's lifecycle state.
type State string

const (
	StateActive    State = "active"
	StateCompleted State = "completed"
	StateCleaning  State = "cleaning"
)

const (
	// DefaultMaxBufferBytes is MAX_BUFFER_BYTES's default (spec.md §6).
	DefaultMaxBufferBytes = 16_777_216
	// DefaultWarnThreshold is WARN_THRESHOLD's default.
	DefaultWarnThreshold = 0.80
	// DefaultMinChunkSize and DefaultMaxChunkSize are the protocol-
	// conformance guards from spec.md §4.5.
	DefaultMinChunkSize = 256
	DefaultMaxChunkSize = 32_768
)

// Config bounds one Service's buffers.
type Config struct {
	MaxBufferBytes int
	WarnThreshold  float64
	MinChunkSize   int
	MaxChunkSize   int
}

func DefaultConfig() Config {
	return Config{
		MaxBufferBytes: DefaultMaxBufferBytes,
		WarnThreshold:  DefaultWarnThreshold,
		MinChunkSize:   DefaultMinChunkSize,
		MaxChunkSize:   DefaultMaxChunkSize,
	}
}

// Info is the read-only snapshot returned by Service.Info.
type Info struct {
	Exists       bool
	Size         int
	ChunkCount   int
	State        State
	LastActivity time.Time
}

type entry struct {
	chunks       [][]byte
	totalSize    int
	state        State
	lastActivity time.Time
}

// Service owns the process-wide ConnectionId -> buffer table.
type Service struct {
	cfg    Config
	logger commons.Logger

	mu      sync.Mutex
	buffers map[string]*entry
}

func NewService(cfg Config, logger commons.Logger) *Service {
	return &Service{cfg: cfg, logger: logger, buffers: make(map[string]*entry)}
}

// Create allocates a new buffer for id. Unless allowExisting is set, a
// duplicate id is Buffer.DuplicateId.
func (s *Service) Create(id string, allowExisting bool) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.buffers[id]; ok {
		if allowExisting {
			return nil
		}
		return edgeerr.New(edgeerr.KindBufferDuplicateId, "buffer already exists for "+id)
	}
	s.buffers[id] = &entry{state: StateActive, lastActivity: time.Now()}
	return nil
}

// Append adds bytes to the buffer for id, in arrival order. It rejects the
// append if the buffer isn't active, or if appending would cross
// MaxBufferBytes.
func (s *Service) Append(id string, data []byte) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buffers[id]
	if !ok {
		return edgeerr.New(edgeerr.KindProtocolUnknownSession, "no buffer for "+id)
	}
	if e.state != StateActive {
		return nil
	}
	if e.totalSize+len(data) > s.cfg.MaxBufferBytes {
		return edgeerr.New(edgeerr.KindBufferLimitExceeded, "buffer would exceed max size for "+id)
	}

	e.chunks = append(e.chunks, data)
	e.totalSize += len(data)
	e.lastActivity = time.Now()

	if s.cfg.WarnThreshold > 0 {
		threshold := int(float64(s.cfg.MaxBufferBytes) * s.cfg.WarnThreshold)
		if e.totalSize >= threshold && e.totalSize-len(data) < threshold {
			s.logger.Warnf("buffer %s crossed %.0f%% of max size (%d/%d bytes)",
				id, s.cfg.WarnThreshold*100, e.totalSize, s.cfg.MaxBufferBytes)
		}
	}
	return nil
}

// Merged returns a contiguous copy of all appended chunks, in append order.
func (s *Service) Merged(id string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buffers[id]
	if !ok {
		return nil, edgeerr.New(edgeerr.KindProtocolUnknownSession, "no buffer for "+id)
	}

	merged := make([]byte, 0, e.totalSize)
	for _, c := range e.chunks {
		merged = append(merged, c...)
	}
	return merged, nil
}

// MarkCompleted transitions the buffer to completed; further Append calls
// become no-ops.
func (s *Service) MarkCompleted(id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buffers[id]
	if !ok {
		return edgeerr.New(edgeerr.KindProtocolUnknownSession, "no buffer for "+id)
	}
	e.state = StateCompleted
	e.lastActivity = time.Now()
	return nil
}

// Cleanup removes the buffer for id, passing through the "cleaning" state.
// It is idempotent: the second call on the same id returns false.
func (s *Service) Cleanup(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buffers[id]
	if !ok {
		return false
	}
	e.state = StateCleaning
	delete(s.buffers, id)
	return true
}

// Info returns a snapshot of the buffer for id without erroring on an
// unknown id.
func (s *Service) Info(id string) Info {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.buffers[id]
	if !ok {
		return Info{Exists: false}
	}
	return Info{
		Exists:       true,
		Size:         e.totalSize,
		ChunkCount:   len(e.chunks),
		State:        e.state,
		LastActivity: e.lastActivity,
	}
}

// Sweep reaps every buffer that is completed, or whose last activity is
// older than staleAfter, skipping anything already cleaning. It is meant to
// run periodically from a single timer-driven goroutine (spec.md §5).
func (s *Service) Sweep(staleAfter time.Duration) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	reaped := 0
	for id, e := range s.buffers {
		if e.state == StateCleaning {
			continue
		}
		if e.state == StateCompleted || now.Sub(e.lastActivity) > staleAfter {
			delete(s.buffers, id)
			reaped++
		}
	}
	if reaped > 0 {
		s.logger.Debugf("buffer sweeper reaped %d stale buffer(s)", reaped)
	}
	return reaped
}

// ValidateChunk applies the protocol-conformance size guards from
// spec.md §4.5 (not correctness requirements of the MP3 format).
func (s *Service) ValidateChunk(data []byte) error {
	if len(data) == 0 {
		return edgeerr.New(edgeerr.KindBufferLimitExceeded, "empty audio chunk")
	}
	if len(data) < s.cfg.MinChunkSize {
		return edgeerr.New(edgeerr.KindBufferLimitExceeded, "audio chunk below minimum size")
	}
	if len(data) > s.cfg.MaxChunkSize {
		return edgeerr.New(edgeerr.KindBufferLimitExceeded, "audio chunk above maximum size")
	}
	return nil
}
