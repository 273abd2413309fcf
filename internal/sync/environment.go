// Slurmdeck - Batch Job Monitoring Dashboard
// Copyright 2026 Tom F. (tomtom215)
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/tomtom215/slurmdeck

package sync

import "sync"

// Environment reports whether anyone is watching and when they interact.
// The dashboard WebSocket hub implements it in production.
type Environment interface {
	// Foreground reports whether a viewer is currently attached.
	Foreground() bool
	// OnActivity registers fn to run on every viewer interaction.
	OnActivity(fn func())
	// OnVisibilityChange registers fn to run when Foreground flips.
	OnVisibilityChange(fn func(foreground bool))
}

// ManualEnvironment is an Environment driven by explicit calls. The zero
// value is backgrounded.
type ManualEnvironment struct {
	mu         sync.Mutex
	foreground bool
	activity   []func()
	visibility []func(bool)
}

// NewManualEnvironment returns an environment starting in the given state.
func NewManualEnvironment(foreground bool) *ManualEnvironment {
	return &ManualEnvironment{foreground: foreground}
}

func (e *ManualEnvironment) Foreground() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.foreground
}

func (e *ManualEnvironment) OnActivity(fn func()) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.activity = append(e.activity, fn)
}

func (e *ManualEnvironment) OnVisibilityChange(fn func(bool)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.visibility = append(e.visibility, fn)
}

// Activity fires the activity callbacks.
func (e *ManualEnvironment) Activity() {
	e.mu.Lock()
	fns := append([]func(){}, e.activity...)
	e.mu.Unlock()
	for _, fn := range fns {
		fn()
	}
}

// SetForeground changes visibility and fires the callbacks if it flipped.
func (e *ManualEnvironment) SetForeground(fg bool) {
	e.mu.Lock()
	changed := e.foreground != fg
	e.foreground = fg
	fns := append([]func(bool){}, e.visibility...)
	e.mu.Unlock()
	if !changed {
		return
	}
	for _, fn := range fns {
		fn(fg)
	}
}
