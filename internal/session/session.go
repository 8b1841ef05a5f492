// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package session implements the in-flight synthesis state spec.md §3
// describes: accumulated audio chunks, accumulated boundaries, a
// promise-like completion channel, and the forward-only boundary cursor.
// A Session is owned exclusively by the coordinator; other components are
// handed its id, never the struct itself (spec.md §9).
package session

import (
	"context"
	"sync"
	"time"

	"github.com/rapidaai/edgetts/internal/boundary"
)

// BoundaryEvent is the public shape handed to onBoundary callbacks: a
// character span in the original text, never mutated once emitted.
type BoundaryEvent struct {
	CharIndex  int
	CharLength int
	OffsetMs   int64
	DurationMs int64
}

// Outcome is the single value ever written to a Session's completion
// channel: either Audio is populated and Err is nil, or vice versa.
type Outcome struct {
	Audio []byte
	Err   error
}

// Session is one in-flight synthesis.
type Session struct {
	ID         string
	Text       string
	CreatedAt  time.Time
	RetryCount int

	mu          sync.Mutex
	audioChunks [][]byte
	boundaries  []BoundaryEvent
	resolver    *boundary.Resolver

	done      chan Outcome
	closeOnce sync.Once
}

// New creates a Session for a synthesis of text, identified by id
// (ConnectionId == SessionId, spec.md §3).
func New(id, text string) *Session {
	return &Session{
		ID:        id,
		Text:      text,
		CreatedAt: time.Now(),
		resolver:  boundary.NewResolver(text),
		done:      make(chan Outcome, 1),
	}
}

// AppendAudio records one inbound audio chunk in wire arrival order. The
// caller is also responsible for appending the same bytes to the
// StreamingBuffer keyed by ID, keeping the two in sync (spec.md §8).
func (s *Session) AppendAudio(chunk []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audioChunks = append(s.audioChunks, chunk)
}

// TotalAudioBytes returns the sum of all appended audio chunk lengths.
func (s *Session) TotalAudioBytes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	total := 0
	for _, c := range s.audioChunks {
		total += len(c)
	}
	return total
}

// MergedAudio returns a contiguous copy of all audio chunks in arrival
// order.
func (s *Session) MergedAudio() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()
	merged := make([]byte, 0, 0)
	for _, c := range s.audioChunks {
		merged = append(merged, c...)
	}
	return merged
}

// AddBoundary resolves a raw server-reported word boundary into a character
// span (spec.md §4.6), appends it, and returns it for delivery via
// onBoundary. Boundaries are appended in arrival order and are never
// retroactively reordered.
func (s *Session) AddBoundary(word string, reportedLength int, offsetMs, durationMs int64) BoundaryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	charIndex, charLength := s.resolver.Resolve(word, reportedLength)
	ev := BoundaryEvent{CharIndex: charIndex, CharLength: charLength, OffsetMs: offsetMs, DurationMs: durationMs}
	s.boundaries = append(s.boundaries, ev)
	return ev
}

// Boundaries returns a copy of the boundaries accumulated so far.
func (s *Session) Boundaries() []BoundaryEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]BoundaryEvent, len(s.boundaries))
	copy(out, s.boundaries)
	return out
}

// Finish resolves the completion channel exactly once; subsequent calls
// are no-ops, enforcing "exactly one of {resolve, reject}, exactly once"
// (spec.md §3).
func (s *Session) Finish(audio []byte, err error) {
	s.closeOnce.Do(func() {
		s.done <- Outcome{Audio: audio, Err: err}
		close(s.done)
	})
}

// Wait blocks until Finish is called or ctx is cancelled.
func (s *Session) Wait(ctx context.Context) (Outcome, error) {
	select {
	case o := <-s.done:
		return o, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
