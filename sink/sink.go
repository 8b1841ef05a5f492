// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package sink defines the AudioSink boundary (spec.md §4.5, §9): decoding
// and playing the synthesized MP3 stream on the host is explicitly out of
// scope for this module, but the contract an external player implements,
// and the MP3 frame-sync validity check the coordinator applies before
// handing a stream off, both belong here.
package sink

import "github.com/rapidaai/edgetts/internal/edgeerr"

// Mode selects how a Session's audio reaches the sink: ModeStreaming
// delivers chunks as they arrive off the wire, ModeBatch delivers the full
// merged buffer once at turn.end. spec.md §4.5 requires both be
// supported, selected at construction.
type Mode int

const (
	ModeBatch Mode = iota
	ModeStreaming
)

// Events are the playback callbacks an AudioSink reports back through;
// the Coordinator fans these into its own onStart/onDone/onError
// callbacks (spec.md §9).
type Events struct {
	OnStarted     func(sessionId string)
	OnProgress    func(sessionId string, bytesWritten int)
	OnCompleted   func(sessionId string)
	OnInterrupted func(sessionId string)
	OnError       func(sessionId string, err error)
}

// AudioSink is the interface this module hands synthesized audio to. A
// real implementation decodes and plays MP3 on the host; this module only
// defines the contract and a default batch adapter for tests and headless
// callers.
type AudioSink interface {
	Mode() Mode
	Prepare(sessionId string) error
	Append(sessionId string, chunk []byte) error
	Finalize(sessionId string, merged []byte) error
	Interrupt(sessionId string) error
}

// BatchSink is the default AudioSink: it ignores incremental Append calls
// and validates + delivers the full stream once, at Finalize.
type BatchSink struct {
	events Events
}

func NewBatchSink(events Events) *BatchSink {
	return &BatchSink{events: events}
}

func (s *BatchSink) Mode() Mode { return ModeBatch }

func (s *BatchSink) Prepare(sessionId string) error {
	if s.events.OnStarted != nil {
		s.events.OnStarted(sessionId)
	}
	return nil
}

// Append is a no-op in batch mode; the full stream arrives via Finalize.
func (s *BatchSink) Append(sessionId string, chunk []byte) error {
	return nil
}

func (s *BatchSink) Finalize(sessionId string, merged []byte) error {
	if err := ValidateMP3(merged); err != nil {
		if s.events.OnError != nil {
			s.events.OnError(sessionId, err)
		}
		return err
	}
	if s.events.OnProgress != nil {
		s.events.OnProgress(sessionId, len(merged))
	}
	if s.events.OnCompleted != nil {
		s.events.OnCompleted(sessionId)
	}
	return nil
}

func (s *BatchSink) Interrupt(sessionId string) error {
	if s.events.OnInterrupted != nil {
		s.events.OnInterrupted(sessionId)
	}
	return nil
}

// DetectMP3 tests the frame-sync pattern at the start of an MP3 elementary
// stream: a leading 0xFF byte followed by a byte whose top three bits are
// set (spec.md §4.5).
func DetectMP3(data []byte) bool {
	if len(data) < 2 {
		return false
	}
	return data[0] == 0xFF && data[1]&0xE0 == 0xE0
}

// ValidateMP3 rejects an empty buffer or one missing the MP3 frame-sync
// pattern.
func ValidateMP3(data []byte) error {
	if len(data) == 0 {
		return edgeerr.New(edgeerr.KindAudioNoAudioReceived, "no audio bytes to validate")
	}
	if !DetectMP3(data) {
		return edgeerr.New(edgeerr.KindAudioInvalidMP3, "audio stream missing MP3 frame-sync pattern")
	}
	return nil
}
