package maplib

import (
	"log/slog"
	"sync"
)

// LoadState is the SDK lifecycle.
type LoadState int

const (
	NotLoaded LoadState = iota
	Loading
	Ready
)

func (s LoadState) String() string {
	switch s {
	case Loading:
		return "loading"
	case Ready:
		return "ready"
	default:
		return "not_loaded"
	}
}

// ScriptInserter injects the SDK script into the page and arranges for
// onLoad to run once the SDK reports ready.
type ScriptInserter func(src string, onLoad func())

// SDKLoader loads a map SDK exactly once and fires every registered ready
// callback exactly once. One loader exists per SDK per page session.
type SDKLoader struct {
	mu     sync.Mutex
	src    string
	insert ScriptInserter
	state  LoadState
	queue  []func()
}

// NewSDKLoader creates a loader for the script at src.
func NewSDKLoader(src string, insert ScriptInserter) *SDKLoader {
	return &SDKLoader{src: src, insert: insert}
}

// Source returns the script URL.
func (l *SDKLoader) Source() string { return l.src }

// State returns the current lifecycle state.
func (l *SDKLoader) State() LoadState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// EnsureLoaded runs cb once the SDK is ready. The first call inserts the
// script; calls made while loading are queued; calls made after ready run cb
// immediately on the caller's goroutine.
func (l *SDKLoader) EnsureLoaded(cb func()) {
	l.mu.Lock()
	switch l.state {
	case Ready:
		l.mu.Unlock()
		cb()
		return
	case Loading:
		l.queue = append(l.queue, cb)
		l.mu.Unlock()
		return
	}
	l.state = Loading
	l.queue = append(l.queue, cb)
	l.mu.Unlock()

	slog.Debug("inserting map sdk script", "src", l.src)
	if l.insert == nil {
		l.Ready()
		return
	}
	l.insert(l.src, l.Ready)
}

// Ready marks the SDK loaded and drains the queue in registration order.
// Calling it again is a no-op.
func (l *SDKLoader) Ready() {
	l.mu.Lock()
	if l.state == Ready {
		l.mu.Unlock()
		return
	}
	l.state = Ready
	queued := l.queue
	l.queue = nil
	l.mu.Unlock()

	for _, cb := range queued {
		cb()
	}
}
