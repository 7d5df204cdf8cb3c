// Package corestate holds the small set of process-wide mutable state Titan
// needs to share across the admin thread and every worker thread: the
// running/shutdown flags and the published metrics source borrow.
package corestate

import (
	"sync/atomic"
)

// MetricsSource is the narrow contract the admin listener uses to render
// /metrics. It is implemented by whatever upstream/circuit-breaker manager
// worker 0 owns; Titan's core only shuttles the pointer across threads.
type MetricsSource interface {
	// Render returns a Prometheus text-exposition body and its content type.
	Render() (body []byte, contentType string)
}

// State is the small immutable handle passed to the orchestrator and every
// worker at construction, per spec.md §9 ("avoid module-level singletons").
// Its fields are themselves atomics, so the handle can be shared by value
// (as a pointer) without any additional locking.
type State struct {
	serverRunning    atomic.Bool
	gracefulShutdown atomic.Bool
	metricsSource    atomic.Pointer[MetricsSource]
}

// New returns a fresh State with ServerRunning true and GracefulShutdown false.
func New() *State {
	s := &State{}
	s.serverRunning.Store(true)
	return s
}

// Running reports whether the server should keep accepting/processing work.
func (s *State) Running() bool { return s.serverRunning.Load() }

// SetRunning flips the running flag. Intended to be called only from a
// signal handler or test code — it must not allocate.
func (s *State) SetRunning(v bool) { s.serverRunning.Store(v) }

// GracefulShutdown reports whether a graceful drain has been requested.
func (s *State) GracefulShutdown() bool { return s.gracefulShutdown.Load() }

// SetGracefulShutdown flips the graceful-shutdown flag.
func (s *State) SetGracefulShutdown(v bool) { s.gracefulShutdown.Store(v) }

// RequestShutdown is the single supported way to induce shutdown outside of
// the core: it sets GracefulShutdown true and Running false, matching
// spec.md §6's SIGTERM/SIGINT contract.
func (s *State) RequestShutdown() {
	s.gracefulShutdown.Store(true)
	s.serverRunning.Store(false)
}

// PublishMetricsSource publishes worker-0's metrics source with release
// semantics so the admin thread can observe it with MetricsSource's acquire
// load.
func (s *State) PublishMetricsSource(src MetricsSource) {
	s.metricsSource.Store(&src)
}

// MetricsSource returns the published metrics source, or nil if none has
// been published yet (e.g. admin started before worker 0 finished init).
func (s *State) MetricsSource() MetricsSource {
	p := s.metricsSource.Load()
	if p == nil {
		return nil
	}
	return *p
}
