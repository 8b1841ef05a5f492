// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package connection owns the gorilla/websocket connection to Edge TTS and
// drives it through the protocol state machine, the StreamingBuffer, and
// the Session, implementing spec.md §4.4's single-connection synthesis
// pipeline end to end.
package connection

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/rapidaai/edgetts/internal/auth"
	"github.com/rapidaai/edgetts/internal/boundary"
	"github.com/rapidaai/edgetts/internal/buffer"
	"github.com/rapidaai/edgetts/internal/codec"
	"github.com/rapidaai/edgetts/internal/edgeerr"
	"github.com/rapidaai/edgetts/internal/protocol"
	"github.com/rapidaai/edgetts/internal/session"
	"github.com/rapidaai/edgetts/internal/ssml"
	"github.com/rapidaai/edgetts/pkg/commons"
)

// Options bounds one Connection's timeouts (spec.md §6).
type Options struct {
	ConnectTimeout       time.Duration
	TotalTimeout         time.Duration
	GracefulCloseTimeout time.Duration
}

func DefaultOptions() Options {
	return Options{
		ConnectTimeout:       10 * time.Second,
		TotalTimeout:         30 * time.Second,
		GracefulCloseTimeout: 1 * time.Second,
	}
}

// Callbacks are invoked from the connection's receive-loop goroutine;
// implementations must not block.
type Callbacks struct {
	OnBoundary   func(session.BoundaryEvent)
	OnAudioChunk func([]byte)
}

// Dialer is the subset of websocket.Dialer this package needs, so tests can
// substitute a fake.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

var defaultDialer Dialer = &websocket.Dialer{HandshakeTimeout: 10 * time.Second}

// Connection is one Edge TTS WebSocket connection, synthesizing exactly one
// request before it is discarded (spec.md §4.4: connections aren't reused
// across requests).
type Connection struct {
	id     string
	logger commons.Logger
	bufSvc *buffer.Service
	opts   Options
	dialer Dialer

	machine *protocol.Machine

	urlFunc    func(id string, now time.Time) string
	headerFunc func(id string, now time.Time) http.Header

	writeMu sync.Mutex
	conn    *websocket.Conn
}

// New builds a Connection identified by id (also the ConnectionId and
// SessionId, spec.md §3).
func New(id string, logger commons.Logger, bufSvc *buffer.Service, opts Options) *Connection {
	return &Connection{
		id:         id,
		logger:     logger,
		bufSvc:     bufSvc,
		opts:       opts,
		dialer:     defaultDialer,
		machine:    protocol.NewMachine(),
		urlFunc:    auth.BuildURL,
		headerFunc: auth.Headers,
	}
}

// State returns the underlying state machine's current state.
func (c *Connection) State() protocol.State {
	return c.machine.State()
}

// SetConnectTarget overrides how the connection resolves its dial URL and
// handshake headers. Production callers never need this; it exists so
// coordinator-level tests can point a Connection at an in-process fake
// server instead of the real Edge TTS endpoint.
func (c *Connection) SetConnectTarget(urlFunc func(id string, now time.Time) string, headerFunc func(id string, now time.Time) http.Header) {
	if urlFunc != nil {
		c.urlFunc = urlFunc
	}
	if headerFunc != nil {
		c.headerFunc = headerFunc
	}
}

// Synthesize drives one full request/response cycle: dial, send the speech
// config and SSML frames, consume the turn until turn.end or an error, and
// return the completed Session. The returned error is nil exactly when the
// Session resolved successfully.
func (c *Connection) Synthesize(ctx context.Context, text string, opts ssml.Options, ssmlCfg ssml.Config, cb Callbacks) (*session.Session, error) {
	sess := session.New(c.id, text)

	if err := c.bufSvc.Create(c.id, false); err != nil {
		sess.Finish(nil, err)
		return sess, err
	}

	doc, err := ssml.Build(text, opts, ssmlCfg)
	if err != nil {
		sess.Finish(nil, err)
		return sess, err
	}

	ctx, cancel := context.WithTimeout(ctx, c.opts.TotalTimeout)
	defer cancel()

	if err := c.connect(ctx); err != nil {
		sess.Finish(nil, err)
		return sess, err
	}
	defer c.close()

	now := time.Now()
	if err := c.send(codec.EncodeSpeechConfig(c.id, now)); err != nil {
		sess.Finish(nil, err)
		return sess, err
	}
	if err := c.send(codec.EncodeSSML(c.id, now, doc)); err != nil {
		sess.Finish(nil, err)
		return sess, err
	}

	if err := c.receiveLoop(ctx, sess, cb); err != nil {
		c.machine.Handle(protocol.EventError)
		c.bufSvc.Cleanup(c.id)
		sess.Finish(nil, err)
		return sess, err
	}

	outcome, err := sess.Wait(ctx)
	if err != nil {
		return sess, err
	}
	return sess, outcome.Err
}

func (c *Connection) connect(ctx context.Context) error {
	if _, err := c.machine.Handle(protocol.EventConnect); err != nil {
		return err
	}

	dialCtx, cancel := context.WithTimeout(ctx, c.opts.ConnectTimeout)
	defer cancel()

	wsURL := c.urlFunc(c.id, time.Now())
	headers := c.headerFunc(c.id, time.Now())

	conn, _, err := c.dialer.DialContext(dialCtx, wsURL, headers)
	if err != nil {
		c.machine.Handle(protocol.EventError)
		return edgeerr.Wrap(edgeerr.KindNetworkSocketError, "failed to dial edge tts websocket", err)
	}
	c.conn = conn

	if _, err := c.machine.Handle(protocol.EventSocketOpen); err != nil {
		return err
	}
	return nil
}

func (c *Connection) send(frame []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()

	if c.conn == nil {
		return edgeerr.New(edgeerr.KindNetworkSocketError, "connection not established")
	}
	if err := c.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
		return edgeerr.Wrap(edgeerr.KindNetworkTransient, "failed to write frame", err)
	}
	return nil
}

func (c *Connection) close() {
	if c.conn == nil {
		return
	}
	c.writeMu.Lock()
	deadline := time.Now().Add(c.opts.GracefulCloseTimeout)
	c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""), deadline)
	c.writeMu.Unlock()
	c.conn.Close()
	c.machine.Handle(protocol.EventClose)
}

// wordBoundaryMessage mirrors the "audio.metadata" JSON body Edge TTS sends;
// only WordBoundary entries are resolved (spec.md §4.6).
type wordBoundaryMessage struct {
	Metadata []struct {
		Type string `json:"Type"`
		Data struct {
			Offset   int64 `json:"Offset"`
			Duration int64 `json:"Duration"`
			Text     struct {
				Text   string `json:"Text"`
				Length int    `json:"Length"`
			} `json:"text"`
		} `json:"Data"`
	} `json:"Metadata"`
}

func (c *Connection) receiveLoop(ctx context.Context, sess *session.Session, cb Callbacks) error {
	for {
		select {
		case <-ctx.Done():
			return edgeerr.Wrap(edgeerr.KindNetworkTimeout, "synthesis deadline exceeded", ctx.Err())
		default:
		}

		msgType, raw, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return edgeerr.New(edgeerr.KindNetworkUnexpectedClose, "connection closed before turn.end")
			}
			return edgeerr.Wrap(edgeerr.KindNetworkTransient, "websocket read error", err)
		}

		switch msgType {
		case websocket.TextMessage:
			frame, err := codec.DecodeText(raw)
			if err != nil {
				return err
			}
			done, err := c.handleTextFrame(frame, sess, cb)
			if err != nil {
				return err
			}
			if done {
				return nil
			}
		case websocket.BinaryMessage:
			frame, err := codec.DecodeBinary(raw)
			if err != nil {
				return err
			}
			if _, err := c.machine.Handle(protocol.EventAudio); err != nil {
				return err
			}
			if err := c.bufSvc.Append(c.id, frame.Body); err != nil {
				return err
			}
			sess.AppendAudio(frame.Body)
			if cb.OnAudioChunk != nil {
				cb.OnAudioChunk(frame.Body)
			}
		}
	}
}

// handleTextFrame dispatches one decoded text frame by its Path header,
// returning done=true once turn.end is seen.
func (c *Connection) handleTextFrame(frame *codec.Frame, sess *session.Session, cb Callbacks) (bool, error) {
	switch codec.Path(frame.Headers) {
	case "turn.start":
		if _, err := c.machine.Handle(protocol.EventTurnStart); err != nil {
			return false, err
		}
		return false, nil
	case "response":
		if _, err := c.machine.Handle(protocol.EventResponse); err != nil {
			return false, err
		}
		return false, nil
	case "audio.metadata":
		if _, err := c.machine.Handle(protocol.EventAudioMetadata); err != nil {
			return false, err
		}
		var meta wordBoundaryMessage
		if err := json.Unmarshal(frame.Body, &meta); err != nil {
			return false, edgeerr.Wrap(edgeerr.KindProtocolMalformedText, "malformed audio.metadata body", err)
		}
		for _, m := range meta.Metadata {
			// speech.config sets sentenceBoundaryEnabled:false; spec.md
			// §4.6 only ever resolves WordBoundary entries.
			if m.Type != "WordBoundary" {
				continue
			}
			offsetMs := boundary.TicksToMs(boundary.Compensate(m.Data.Offset))
			durationMs := boundary.TicksToMs(m.Data.Duration)
			ev := sess.AddBoundary(m.Data.Text.Text, m.Data.Text.Length, offsetMs, durationMs)
			if cb.OnBoundary != nil {
				cb.OnBoundary(ev)
			}
		}
		return false, nil
	case "turn.end":
		if _, err := c.machine.Handle(protocol.EventTurnEnd); err != nil {
			return true, err
		}
		if err := c.bufSvc.MarkCompleted(c.id); err != nil {
			return true, err
		}
		merged, err := c.bufSvc.Merged(c.id)
		if err != nil {
			return true, err
		}
		c.bufSvc.Cleanup(c.id)
		if len(merged) == 0 {
			sess.Finish(nil, edgeerr.New(edgeerr.KindAudioNoAudioReceived, "turn ended with no audio chunks"))
			return true, nil
		}
		sess.Finish(merged, nil)
		return true, nil
	default:
		return false, edgeerr.New(edgeerr.KindProtocolUnexpectedResponse, "unexpected response path "+codec.Path(frame.Headers))
	}
}
