// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package breaker implements the Connection Coordinator's circuit breaker
// and retry backoff policy (spec.md §4.7): Closed/Open/HalfOpen state with
// a failure threshold and recovery timeout, plus exponential backoff for
// retry scheduling via cenkalti/backoff.
package breaker

import (
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// State is a circuit breaker's open/closed/probing state.
type State string

const (
	StateClosed   State = "closed"
	StateOpen     State = "open"
	StateHalfOpen State = "half_open"
)

const (
	// DefaultFailureThreshold is BREAKER_FAILURES's default (spec.md §6).
	DefaultFailureThreshold = 5
	// DefaultRecoveryTimeout is BREAKER_RECOVERY_MS's default.
	DefaultRecoveryTimeout = 30 * time.Second
	// DefaultTestRequestLimit is BREAKER_PROBES's default: how many
	// requests are allowed through while HalfOpen before deciding.
	DefaultTestRequestLimit = 3
)

// Config bounds a Breaker's behavior.
type Config struct {
	FailureThreshold int
	RecoveryTimeout  time.Duration
	TestRequestLimit int
}

func DefaultConfig() Config {
	return Config{
		FailureThreshold: DefaultFailureThreshold,
		RecoveryTimeout:  DefaultRecoveryTimeout,
		TestRequestLimit: DefaultTestRequestLimit,
	}
}

// Breaker tracks a rolling count of consecutive failures and opens once
// FailureThreshold is reached, following spec.md §4.7.
type Breaker struct {
	cfg Config

	mu              sync.Mutex
	state           State
	failureCount    int
	successCount    int
	lastFailureTime time.Time
	probesInFlight  int
}

func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg, state: StateClosed}
}

// Allow reports whether a new connection attempt may proceed, and moves
// Open -> HalfOpen once RecoveryTimeout has elapsed.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateClosed:
		return true
	case StateOpen:
		if time.Since(b.lastFailureTime) >= b.cfg.RecoveryTimeout {
			b.state = StateHalfOpen
			b.probesInFlight = 0
			b.successCount = 0
		} else {
			return false
		}
		fallthrough
	case StateHalfOpen:
		if b.probesInFlight >= b.cfg.TestRequestLimit {
			return false
		}
		b.probesInFlight++
		return true
	}
	return false
}

// RecordSuccess reports a successful connection attempt. In HalfOpen,
// enough consecutive successes close the breaker again.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case StateHalfOpen:
		b.successCount++
		if b.successCount >= b.cfg.TestRequestLimit {
			b.state = StateClosed
			b.failureCount = 0
			b.successCount = 0
			b.probesInFlight = 0
		}
	case StateClosed:
		b.failureCount = 0
	}
}

// RecordFailure reports a failed connection attempt that counts against
// the breaker (edgeerr.CountsAgainstBreaker()). A HalfOpen failure reopens
// immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.lastFailureTime = time.Now()

	switch b.state {
	case StateHalfOpen:
		b.state = StateOpen
		b.probesInFlight = 0
		b.successCount = 0
	case StateClosed:
		b.failureCount++
		if b.failureCount >= b.cfg.FailureThreshold {
			b.state = StateOpen
		}
	}
}

// State returns the current breaker state.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// FailureCount returns the current consecutive failure count.
func (b *Breaker) FailureCount() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failureCount
}

// RetryPolicy computes exponential retry delays for transient errors
// (spec.md §4.7), built on cenkalti/backoff's ExponentialBackOff.
type RetryPolicy struct {
	base    time.Duration
	max     time.Duration
	retries int
}

const (
	DefaultBaseDelay  = 1 * time.Second
	DefaultMaxDelay   = 10 * time.Second
	DefaultMaxRetries = 3
)

// NewRetryPolicy builds a RetryPolicy with the given base/max delay and
// retry budget.
func NewRetryPolicy(base, max time.Duration, maxRetries int) *RetryPolicy {
	return &RetryPolicy{base: base, max: max, retries: maxRetries}
}

func DefaultRetryPolicy() *RetryPolicy {
	return NewRetryPolicy(DefaultBaseDelay, DefaultMaxDelay, DefaultMaxRetries)
}

// NextDelay returns the backoff delay for the given zero-based attempt
// number, or false once attempt has exhausted the retry budget. Delays are
// computed by driving cenkalti/backoff's ExponentialBackOff through
// attempt+1 calls to NextBackOff, its own stateful iterator, rather than
// reimplementing the curve.
func (p *RetryPolicy) NextDelay(attempt int) (time.Duration, bool) {
	if attempt >= p.retries {
		return 0, false
	}

	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = p.base
	eb.MaxInterval = p.max
	eb.Multiplier = 2
	eb.RandomizationFactor = 0
	eb.MaxElapsedTime = 0

	var delay time.Duration
	for i := 0; i <= attempt; i++ {
		delay = eb.NextBackOff()
	}
	return delay, true
}

// MaxRetries returns the configured retry budget.
func (p *RetryPolicy) MaxRetries() int {
	return p.retries
}
