// Copyright (c) 2023-2025 RapidaAI
// Author: Prashant Srivastav <prashant@rapida.ai>
//
// Licensed under GPL-2.0 with Rapida Additional Terms.
// See LICENSE.md or contact sales@rapida.ai for commercial usage.

// Package lifecycle generalizes the React-Native app-state subscription
// the source synthesis library relied on (spec.md §9 REDESIGN FLAGS) into
// a host-agnostic observer: the core only ever reacts to
// onBackground/onForeground, whatever platform API produced them.
package lifecycle

// AppLifecycleObserver is implemented by the host embedding this module.
// onBackground should pause non-essential work (outstanding retries, the
// buffer sweeper); onForeground resumes it.
type AppLifecycleObserver interface {
	OnBackground()
	OnForeground()
}

// NopObserver implements AppLifecycleObserver with no-ops, for hosts that
// have no notion of foreground/background (e.g. the status daemon).
type NopObserver struct{}

func (NopObserver) OnBackground() {}
func (NopObserver) OnForeground() {}
