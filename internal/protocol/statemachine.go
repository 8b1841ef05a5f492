// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package protocol implements the pure connection/synthesis state machine
// from spec.md §4.4: Disconnected -> Connecting -> Connected ->
// Synthesizing -> (TurnEnded | Errored) -> Disconnected. The machine never
// performs I/O; it only validates that an inbound wire event is legal in
// the current state and computes the next state, the way connection.go
// drives it.
package protocol

import (
	"sync"

	"github.com/rapidaai/edgetts/internal/edgeerr"
)

// State is one of the Edge TTS connection lifecycle states.
type State string

const (
	StateDisconnected State = "disconnected"
	StateConnecting   State = "connecting"
	StateConnected    State = "connected"
	StateSynthesizing State = "synthesizing"
	StateTurnEnded    State = "turn_ended"
	StateErrored      State = "errored"
)

// Event is a trigger the owning connection feeds into the machine: either
// an outbound action it just took (Connect, Close) or an inbound message
// path it just decoded (turn.start, audio, audio.metadata, response,
// turn.end).
type Event string

const (
	EventConnect       Event = "connect"
	EventSocketOpen    Event = "socket_open"
	EventTurnStart     Event = "turn.start"
	EventAudio         Event = "audio"
	EventAudioMetadata Event = "audio.metadata"
	EventResponse      Event = "response"
	EventTurnEnd       Event = "turn.end"
	EventClose         Event = "close"
	EventError         Event = "error"
)

var transitions = map[State]map[Event]State{
	StateDisconnected: {
		EventConnect: StateConnecting,
		EventClose:   StateDisconnected,
	},
	StateConnecting: {
		EventSocketOpen: StateConnected,
		EventError:      StateErrored,
		EventClose:      StateDisconnected,
	},
	// Edge TTS may emit an audio frame before turn.start (spec.md §4.4);
	// EventAudio from Connected is treated as an implicit turn start.
	StateConnected: {
		EventTurnStart: StateSynthesizing,
		EventAudio:     StateSynthesizing,
		EventError:     StateErrored,
		EventClose:     StateDisconnected,
	},
	StateSynthesizing: {
		// turn.start may still arrive after an implicit start triggered
		// by an early audio frame; treat it as a no-op re-confirmation.
		EventTurnStart:     StateSynthesizing,
		EventAudio:         StateSynthesizing,
		EventAudioMetadata: StateSynthesizing,
		EventResponse:      StateSynthesizing,
		EventTurnEnd:       StateTurnEnded,
		EventError:         StateErrored,
		EventClose:         StateDisconnected,
	},
	StateTurnEnded: {
		EventConnect: StateConnecting,
		EventClose:   StateDisconnected,
		EventError:   StateErrored,
	},
	StateErrored: {
		EventConnect: StateConnecting,
		EventClose:   StateDisconnected,
	},
}

// Machine is a single connection's state machine. It is safe for
// concurrent use; the owning connection's receive-loop and its
// timeout/close paths may both feed it events.
type Machine struct {
	mu    sync.Mutex
	state State
}

// NewMachine returns a Machine starting at Disconnected.
func NewMachine() *Machine {
	return &Machine{state: StateDisconnected}
}

// State returns the current state.
func (m *Machine) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// Handle applies ev to the current state. An event illegal in the current
// state leaves the state unchanged and returns Protocol.UnexpectedResponse.
func (m *Machine) Handle(ev Event) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	next, ok := transitions[m.state][ev]
	if !ok {
		return m.state, edgeerr.New(edgeerr.KindProtocolUnexpectedResponse,
			"event "+string(ev)+" is not valid in state "+string(m.state))
	}
	m.state = next
	return next, nil
}
