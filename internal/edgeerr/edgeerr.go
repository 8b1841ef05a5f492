// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package edgeerr implements the error taxonomy the synthesis pipeline uses
// instead of ad hoc fmt.Errorf strings: every failure belongs to one of a
// fixed set of namespaced Kinds, which is what the coordinator's retry and
// circuit-breaker policy switches on.
package edgeerr

import "fmt"

// Kind is a namespaced error classification, e.g. "Config.TextTooLong".
type Kind string

const (
	KindConfigEmptyText        Kind = "Config.EmptyText"
	KindConfigTextTooLong      Kind = "Config.TextTooLong"
	KindConfigInvalidVoice     Kind = "Config.InvalidVoice"
	KindConfigInvalidParameter Kind = "Config.InvalidParameter"

	KindAuthSkewAdjustment Kind = "Auth.SkewAdjustment"

	KindNetworkTimeout         Kind = "Network.Timeout"
	KindNetworkTransient       Kind = "Network.Transient"
	KindNetworkSocketError     Kind = "Network.SocketError"
	KindNetworkUnexpectedClose Kind = "Network.UnexpectedClose"

	KindProtocolMalformedText       Kind = "Protocol.MalformedText"
	KindProtocolMalformedBinary     Kind = "Protocol.MalformedBinary"
	KindProtocolUnknownSession      Kind = "Protocol.UnknownSession"
	KindProtocolUnexpectedResponse  Kind = "Protocol.UnexpectedResponse"
	KindProtocolCircuitOpen         Kind = "Protocol.CircuitOpen"
	KindProtocolPoolFull            Kind = "Protocol.PoolFull"
	KindProtocolCancelled           Kind = "Protocol.Cancelled"
	KindProtocolMaxRetriesExceeded  Kind = "Protocol.MaxRetriesExceeded"
	KindProtocolSessionNotFound     Kind = "Protocol.SessionNotFound"

	KindBufferDuplicateId   Kind = "Buffer.DuplicateId"
	KindBufferLimitExceeded Kind = "Buffer.LimitExceeded"

	KindAudioNoAudioReceived Kind = "Audio.NoAudioReceived"
	KindAudioInvalidMP3      Kind = "Audio.InvalidMP3"
)

// Error is the structured {kind, message, cause} error the spec requires.
type Error struct {
	Kind    Kind
	Message string
	Cause   error
}

func New(kind Kind, message string) *Error {
	return &Error{Kind: kind, Message: message}
}

func Wrap(kind Kind, message string, cause error) *Error {
	return &Error{Kind: kind, Message: message, Cause: cause}
}

func (e *Error) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Message)
}

func (e *Error) Unwrap() error {
	return e.Cause
}

// Retryable reports whether the coordinator's retry policy applies to this
// error kind (spec.md §7: every Network.* kind is retry-eligible; nothing
// else is).
func (e *Error) Retryable() bool {
	switch e.Kind {
	case KindNetworkTransient, KindNetworkTimeout, KindNetworkSocketError, KindNetworkUnexpectedClose:
		return true
	default:
		return false
	}
}

// CountsAgainstBreaker reports whether a terminal failure of this kind
// should increment the circuit breaker's failure count (spec.md §7):
// malformed-protocol and exhausted-retry failures do; admission rejections
// and cancellations never do.
func (e *Error) CountsAgainstBreaker() bool {
	switch e.Kind {
	case KindProtocolCircuitOpen, KindProtocolPoolFull, KindProtocolCancelled, KindProtocolSessionNotFound:
		return false
	case KindConfigEmptyText, KindConfigTextTooLong, KindConfigInvalidVoice, KindConfigInvalidParameter:
		return false
	case KindAuthSkewAdjustment:
		return false
	default:
		return true
	}
}

// Is implements errors.Is support by Kind equality, so callers can write
// errors.Is(err, edgeerr.New(edgeerr.KindNetworkTimeout, "")).
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok {
		return false
	}
	return e.Kind == t.Kind
}

// As extracts *Error from a generic error, if possible.
func As(err error) (*Error, bool) {
	e, ok := err.(*Error)
	return e, ok
}
