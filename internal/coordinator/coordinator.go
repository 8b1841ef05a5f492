// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package coordinator implements the Connection Coordinator from
// spec.md §4.7: admission control over a bounded connection pool, retry on
// transient failure, and the circuit breaker that short-circuits admission
// once the backend looks unhealthy.
package coordinator

import (
	"context"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/rapidaai/edgetts/internal/breaker"
	"github.com/rapidaai/edgetts/internal/buffer"
	"github.com/rapidaai/edgetts/internal/connection"
	"github.com/rapidaai/edgetts/internal/edgeerr"
	"github.com/rapidaai/edgetts/internal/idgen"
	"github.com/rapidaai/edgetts/internal/session"
	"github.com/rapidaai/edgetts/internal/ssml"
	"github.com/rapidaai/edgetts/lifecycle"
	"github.com/rapidaai/edgetts/pkg/commons"
	"github.com/rapidaai/edgetts/sink"
)

// Config bounds a Coordinator's admission, retry, and breaker policy.
type Config struct {
	MaxConnections int
	QueueEnabled   bool

	Breaker breaker.Config
	Retry   RetryConfig

	Connection connection.Options
	SSML       ssml.Config
	Buffer     buffer.Config

	// NewSink builds the AudioSink a single Synthesize call hands its
	// stream to, wired to that call's own Events closures. Defaults to
	// wrapping sink.NewBatchSink.
	NewSink func(events sink.Events) sink.AudioSink
}

// RetryConfig mirrors the RETRY_* environment variables (spec.md §6).
type RetryConfig struct {
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	MaxRetries int
}

// DefaultConfig returns the pool defaults from spec.md §6: a single
// connection, no queueing, so at most one synthesis is active and
// additional requests fail fast.
func DefaultConfig() Config {
	return Config{
		MaxConnections: 1,
		QueueEnabled:   false,
		Breaker:        breaker.DefaultConfig(),
		Retry: RetryConfig{
			BaseDelay:  breaker.DefaultBaseDelay,
			MaxDelay:   breaker.DefaultMaxDelay,
			MaxRetries: breaker.DefaultMaxRetries,
		},
		Connection: connection.DefaultOptions(),
		SSML:       ssml.DefaultConfig(),
		Buffer:     buffer.DefaultConfig(),
		NewSink: func(events sink.Events) sink.AudioSink {
			return sink.NewBatchSink(events)
		},
	}
}

// Callbacks are the coordinator-level lifecycle hooks, each tagged with the
// ConnectionId they apply to (spec.md §4.7).
type Callbacks struct {
	OnStart      func(id string)
	OnBoundary   func(id string, ev session.BoundaryEvent)
	OnAudioChunk func(id string, chunk []byte)
	OnDone       func(id string, audio []byte)
	OnError      func(id string, err error)
	OnStopped    func(id string)
	OnPause      func(id string)
	OnResume     func(id string)
}

// Status is a point-in-time snapshot of the coordinator's pool.
type Status struct {
	ActiveConnections int
	Queued            int
	BreakerState      breaker.State
	FailureCount      int
}

// activeConn is what the coordinator tracks per in-flight Synthesize call:
// the cancel func a Stop needs, and the pause/resume hooks an externally
// invoked Pause/Resume must reach, since those are called from a different
// goroutine than the one running Synthesize.
type activeConn struct {
	cancel context.CancelFunc

	mu      sync.Mutex
	stopped bool
	paused  bool

	onPause  func(id string)
	onResume func(id string)
}

// Coordinator is the top-level scheduler the rest of this package's
// consumers talk to: it owns the connection pool, the StreamingBuffer
// table, the circuit breaker, and the retry policy.
type Coordinator struct {
	cfg    Config
	logger commons.Logger
	bufSvc *buffer.Service
	sem    *semaphore.Weighted
	br     *breaker.Breaker
	retry  *breaker.RetryPolicy

	mu     sync.Mutex
	active map[string]*activeConn
	queued int

	shutdownCtx    context.Context
	shutdownCancel context.CancelFunc
	shutdownOnce   sync.Once

	// testURL, when set, overrides every Connection's dial target. It
	// exists for this package's own tests, which run against an
	// in-process fake server instead of the real Edge TTS endpoint.
	testURL string
}

// New builds a Coordinator ready to accept Synthesize calls.
func New(cfg Config, logger commons.Logger) *Coordinator {
	if cfg.NewSink == nil {
		cfg.NewSink = func(events sink.Events) sink.AudioSink {
			return sink.NewBatchSink(events)
		}
	}
	shutdownCtx, shutdownCancel := context.WithCancel(context.Background())
	return &Coordinator{
		cfg:            cfg,
		logger:         logger,
		bufSvc:         buffer.NewService(cfg.Buffer, logger),
		sem:            semaphore.NewWeighted(int64(cfg.MaxConnections)),
		br:             breaker.New(cfg.Breaker),
		retry:          breaker.NewRetryPolicy(cfg.Retry.BaseDelay, cfg.Retry.MaxDelay, cfg.Retry.MaxRetries),
		active:         make(map[string]*activeConn),
		shutdownCtx:    shutdownCtx,
		shutdownCancel: shutdownCancel,
	}
}

// Status reports the coordinator's current pool occupancy and breaker
// state.
func (co *Coordinator) Status() Status {
	co.mu.Lock()
	defer co.mu.Unlock()
	return Status{
		ActiveConnections: len(co.active),
		Queued:            co.queued,
		BreakerState:      co.br.State(),
		FailureCount:      co.br.FailureCount(),
	}
}

// Synthesize admits, connects, and retries a single synthesis request,
// following spec.md §4.7's admission/retry/breaker policy end to end. It
// returns once the request has either completed or exhausted its retries.
// onStart fires at most once per call, right before the first audio byte
// is handed to the AudioSink; onDone fires after the AudioSink reports
// playback finished (spec.md §8, §9).
func (co *Coordinator) Synthesize(ctx context.Context, text string, opts ssml.Options, cb Callbacks) (*session.Session, error) {
	if co.shutdownCtx.Err() != nil {
		return nil, edgeerr.New(edgeerr.KindProtocolCancelled, "coordinator is shutting down")
	}
	if !co.br.Allow() {
		return nil, edgeerr.New(edgeerr.KindProtocolCircuitOpen, "circuit breaker is open")
	}

	if err := co.acquire(ctx); err != nil {
		return nil, err
	}
	defer co.sem.Release(1)

	var pendingAudio []byte
	var startOnce sync.Once
	audioSink := co.cfg.NewSink(sink.Events{
		OnStarted: func(sessionId string) {
			if cb.OnStart != nil {
				cb.OnStart(sessionId)
			}
		},
		OnCompleted: func(sessionId string) {
			if cb.OnDone != nil {
				cb.OnDone(sessionId, pendingAudio)
			}
		},
		OnInterrupted: func(sessionId string) {
			if cb.OnStopped != nil {
				cb.OnStopped(sessionId)
			}
		},
		OnError: func(sessionId string, err error) {
			if cb.OnError != nil {
				cb.OnError(sessionId, err)
			}
		},
	})

	var sess *session.Session
	for attempt := 0; ; attempt++ {
		id := idgen.NewConnectionId()
		connCtx, cancel := context.WithCancel(ctx)
		ac := co.track(id, cancel, cb.OnPause, cb.OnResume)

		conn := connection.New(id, co.logger, co.bufSvc, co.cfg.Connection)
		if co.testURL != "" {
			conn.SetConnectTarget(
				func(string, time.Time) string { return co.testURL },
				func(string, time.Time) http.Header { return http.Header{} },
			)
		}

		var err error
		sess, err = conn.Synthesize(connCtx, text, opts, co.cfg.SSML, connection.Callbacks{
			OnBoundary: func(ev session.BoundaryEvent) {
				if cb.OnBoundary != nil {
					cb.OnBoundary(id, ev)
				}
			},
			OnAudioChunk: func(chunk []byte) {
				startOnce.Do(func() { audioSink.Prepare(id) })
				if audioSink.Mode() == sink.ModeStreaming {
					audioSink.Append(id, chunk)
				}
				if cb.OnAudioChunk != nil {
					cb.OnAudioChunk(id, chunk)
				}
			},
		})
		sess.RetryCount = attempt
		cancel()

		ac.mu.Lock()
		stopped := ac.stopped
		ac.mu.Unlock()
		co.untrack(id)

		if stopped {
			co.bufSvc.Cleanup(id)
			if ferr := audioSink.Interrupt(id); ferr != nil && cb.OnError != nil {
				cb.OnError(id, ferr)
			}
			return sess, edgeerr.New(edgeerr.KindProtocolCancelled, "synthesis stopped")
		}

		if err == nil {
			co.br.RecordSuccess()
			pendingAudio = sess.MergedAudio()
			if ferr := audioSink.Finalize(id, pendingAudio); ferr != nil {
				return sess, ferr
			}
			return sess, nil
		}

		e, _ := edgeerr.As(err)
		if e == nil || !e.Retryable() {
			if e != nil && e.CountsAgainstBreaker() {
				co.br.RecordFailure()
			}
			if cb.OnError != nil {
				cb.OnError(id, err)
			}
			return sess, err
		}

		delay, ok := co.retry.NextDelay(attempt)
		if !ok {
			if e.CountsAgainstBreaker() {
				co.br.RecordFailure()
			}
			maxErr := edgeerr.Wrap(edgeerr.KindProtocolMaxRetriesExceeded, "exhausted retries", err)
			if cb.OnError != nil {
				cb.OnError(id, maxErr)
			}
			return sess, maxErr
		}

		select {
		case <-ctx.Done():
			if cb.OnError != nil {
				cb.OnError(id, ctx.Err())
			}
			return sess, ctx.Err()
		case <-time.After(delay):
		}
	}
}

// Stop cancels the in-flight connection identified by id and fires
// onStopped. It is idempotent: stopping an already-stopped or unknown id
// is a no-op error, never a panic.
func (co *Coordinator) Stop(id string) error {
	co.mu.Lock()
	ac, ok := co.active[id]
	co.mu.Unlock()
	if !ok {
		return edgeerr.New(edgeerr.KindProtocolSessionNotFound, "no active connection with id "+id)
	}

	ac.mu.Lock()
	if ac.stopped {
		ac.mu.Unlock()
		return nil
	}
	ac.stopped = true
	ac.mu.Unlock()

	ac.cancel()
	return nil
}

// Pause marks the in-flight connection identified by id as paused and
// fires onPause. Resume reverses it. Pausing an unknown or already
// stopped id is a no-op error.
func (co *Coordinator) Pause(id string) error {
	ac, err := co.lookupActive(id)
	if err != nil {
		return err
	}
	ac.mu.Lock()
	if ac.stopped || ac.paused {
		ac.mu.Unlock()
		return nil
	}
	ac.paused = true
	onPause := ac.onPause
	ac.mu.Unlock()

	if onPause != nil {
		onPause(id)
	}
	return nil
}

// Resume reverses a prior Pause on id.
func (co *Coordinator) Resume(id string) error {
	ac, err := co.lookupActive(id)
	if err != nil {
		return err
	}
	ac.mu.Lock()
	if ac.stopped || !ac.paused {
		ac.mu.Unlock()
		return nil
	}
	ac.paused = false
	onResume := ac.onResume
	ac.mu.Unlock()

	if onResume != nil {
		onResume(id)
	}
	return nil
}

func (co *Coordinator) lookupActive(id string) (*activeConn, error) {
	co.mu.Lock()
	ac, ok := co.active[id]
	co.mu.Unlock()
	if !ok {
		return nil, edgeerr.New(edgeerr.KindProtocolSessionNotFound, "no active connection with id "+id)
	}
	return ac, nil
}

// Shutdown stops accepting new admissions, rejects anything still queued
// with Protocol.Cancelled, and stops every in-flight connection. It is
// idempotent.
func (co *Coordinator) Shutdown(onStopped func(id string)) {
	co.shutdownOnce.Do(func() {
		co.shutdownCancel()
	})
	co.StopAll(onStopped)
}

func (co *Coordinator) acquire(ctx context.Context) error {
	mergedCtx, cancel := mergeContexts(ctx, co.shutdownCtx)
	defer cancel()

	if !co.cfg.QueueEnabled {
		if !co.sem.TryAcquire(1) {
			return edgeerr.New(edgeerr.KindProtocolPoolFull, "connection pool is full")
		}
		return nil
	}

	co.mu.Lock()
	co.queued++
	co.mu.Unlock()
	defer func() {
		co.mu.Lock()
		co.queued--
		co.mu.Unlock()
	}()

	if err := co.sem.Acquire(mergedCtx, 1); err != nil {
		if co.shutdownCtx.Err() != nil {
			return edgeerr.Wrap(edgeerr.KindProtocolCancelled, "coordinator is shutting down", err)
		}
		return edgeerr.Wrap(edgeerr.KindProtocolCancelled, "admission cancelled while queued", err)
	}
	return nil
}

// mergeContexts returns a context cancelled when either a or b is done.
func mergeContexts(a, b context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(a)
	go func() {
		select {
		case <-b.Done():
			cancel()
		case <-ctx.Done():
		}
	}()
	return ctx, cancel
}

func (co *Coordinator) track(id string, cancel context.CancelFunc, onPause, onResume func(string)) *activeConn {
	ac := &activeConn{cancel: cancel, onPause: onPause, onResume: onResume}
	co.mu.Lock()
	co.active[id] = ac
	co.mu.Unlock()
	return ac
}

func (co *Coordinator) untrack(id string) {
	co.mu.Lock()
	defer co.mu.Unlock()
	delete(co.active, id)
}

// StopAll cancels every in-flight connection concurrently and waits for
// them to unwind, reporting onStopped for each (spec.md §4.7).
func (co *Coordinator) StopAll(onStopped func(id string)) {
	co.mu.Lock()
	conns := make(map[string]*activeConn, len(co.active))
	for id, ac := range co.active {
		conns[id] = ac
	}
	co.mu.Unlock()

	var eg errgroup.Group
	for id, ac := range conns {
		id, ac := id, ac
		eg.Go(func() error {
			ac.mu.Lock()
			ac.stopped = true
			ac.mu.Unlock()
			ac.cancel()
			if onStopped != nil {
				onStopped(id)
			}
			return nil
		})
	}
	_ = eg.Wait()
}

// LifecycleHandler returns the lifecycle.AppLifecycleObserver a host wires
// into its app-backgrounding notifications (spec.md §4.7, §9): going to
// background stops every in-flight synthesis.
func (co *Coordinator) LifecycleHandler() lifecycle.AppLifecycleObserver {
	return &lifecycleHandler{co: co}
}

type lifecycleHandler struct {
	co *Coordinator
}

func (h *lifecycleHandler) OnBackground() {
	h.co.StopAll(nil)
}

// OnForeground is a no-op: backgrounded synthesis is fully torn down, not
// paused, so there is nothing to resume until the next Synthesize call.
func (h *lifecycleHandler) OnForeground() {}

// StartSweeper runs the StreamingBuffer table's periodic sweep (spec.md
// §4.5) at the given interval until ctx is cancelled. Buffers left
// completed or idle past staleAfter are reclaimed each tick.
func (co *Coordinator) StartSweeper(ctx context.Context, interval, staleAfter time.Duration) {
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n := co.bufSvc.Sweep(staleAfter)
				if n > 0 {
					co.logger.Debugf("buffer sweep reclaimed %d stale buffers", n)
				}
			}
		}
	}()
}
