// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package edgetts is the composition root wiring the Connection
// Coordinator, SSML builder, and StreamingBuffer table into a single
// entry point (spec.md §4). It is deliberately thin: the façade API,
// audio decoding/playback, persistence, and telemetry dashboards spec.md
// §9 names as out of scope stay out of scope here too — this file only
// assembles the core synthesis pipeline for an embedding host to drive.
package edgetts

import (
	"context"

	"github.com/rapidaai/edgetts/config"
	"github.com/rapidaai/edgetts/internal/coordinator"
	"github.com/rapidaai/edgetts/internal/session"
	"github.com/rapidaai/edgetts/internal/ssml"
	"github.com/rapidaai/edgetts/lifecycle"
	"github.com/rapidaai/edgetts/pkg/commons"
)

// Client is the synthesis pipeline's entry point: one Client owns one
// connection pool, breaker, and StreamingBuffer table (spec.md §4.7).
type Client struct {
	coord  *coordinator.Coordinator
	logger commons.Logger
}

// New builds a Client from an AppConfig loaded via config.Load. A nil
// logger falls back to a no-op logger.
func New(cfg *config.AppConfig, logger commons.Logger) *Client {
	if logger == nil {
		logger = commons.NewNopLogger()
	}
	return &Client{
		coord:  coordinator.New(coordinatorConfigFrom(cfg), logger),
		logger: logger,
	}
}

// NewWithDefaults builds a Client from coordinator.DefaultConfig, for
// callers that don't need environment-driven configuration.
func NewWithDefaults(logger commons.Logger) *Client {
	if logger == nil {
		logger = commons.NewNopLogger()
	}
	return &Client{coord: coordinator.New(coordinator.DefaultConfig(), logger), logger: logger}
}

func coordinatorConfigFrom(cfg *config.AppConfig) coordinator.Config {
	def := coordinator.DefaultConfig()
	def.MaxConnections = cfg.MaxConnections
	def.QueueEnabled = cfg.PoolingEnabled

	def.Connection.ConnectTimeout = cfg.ConnTimeout()
	def.Connection.TotalTimeout = cfg.TotalTimeout()
	def.Connection.GracefulCloseTimeout = cfg.GracefulClose()

	def.Retry.BaseDelay = cfg.BaseRetry()
	def.Retry.MaxDelay = cfg.MaxRetry()
	def.Retry.MaxRetries = cfg.MaxRetries

	def.Breaker.FailureThreshold = cfg.BreakerFailures
	def.Breaker.RecoveryTimeout = cfg.BreakerRecovery()
	def.Breaker.TestRequestLimit = cfg.BreakerProbes

	def.Buffer.MaxBufferBytes = cfg.MaxBufferBytes
	def.Buffer.WarnThreshold = cfg.WarnThreshold

	def.SSML.MaxTextChars = cfg.MaxTextChars
	def.SSML.MaxSSMLBytes = cfg.MaxSSMLBytes
	return def
}

// Speak synthesizes text through the connection pool and returns the
// merged MP3 once the underlying session completes or its context is
// cancelled (spec.md §4.7).
func (c *Client) Speak(ctx context.Context, text string, opts ssml.Options, cb coordinator.Callbacks) (*session.Session, error) {
	return c.coord.Synthesize(ctx, text, opts, cb)
}

// Status reports the pool's current occupancy and breaker state.
func (c *Client) Status() coordinator.Status {
	return c.coord.Status()
}

// StopAll cancels every in-flight synthesis request, for use on shutdown
// or an app-lifecycle OnBackground transition.
func (c *Client) StopAll(onStopped func(id string)) {
	c.coord.StopAll(onStopped)
}

// Stop cancels one in-flight synthesis request by ConnectionId.
func (c *Client) Stop(id string) error {
	return c.coord.Stop(id)
}

// Pause suspends one in-flight synthesis request by ConnectionId.
func (c *Client) Pause(id string) error {
	return c.coord.Pause(id)
}

// Resume reverses a prior Pause on id.
func (c *Client) Resume(id string) error {
	return c.coord.Resume(id)
}

// Shutdown stops accepting new Speak calls, rejects anything still
// queued, and stops every in-flight request. It is idempotent.
func (c *Client) Shutdown(onStopped func(id string)) {
	c.coord.Shutdown(onStopped)
}

// LifecycleObserver returns the lifecycle.AppLifecycleObserver a host
// wires into its app-backgrounding notifications.
func (c *Client) LifecycleObserver() lifecycle.AppLifecycleObserver {
	return c.coord.LifecycleHandler()
}

// StartSweeper begins the StreamingBuffer table's periodic cleanup, using
// cfg.Cleanup() as both the tick interval and the staleness threshold. It
// runs until ctx is cancelled; callers typically tie ctx to process
// lifetime.
func (c *Client) StartSweeper(ctx context.Context, cfg *config.AppConfig) {
	c.coord.StartSweeper(ctx, cfg.Cleanup(), cfg.Cleanup())
}
