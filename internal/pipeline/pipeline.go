// Package pipeline defines the external collaborator contract the worker
// event loop drives (spec.md §6). Request parsing, routing, upstream
// selection, circuit breaking and JWKS fetching all live outside the core —
// they are out of scope per spec.md §1 — but the core must still compile and
// run end to end, so this package also ships EchoPipeline, a minimal default
// that proves the contract out without implementing any of that excluded
// machinery.
package pipeline

import "github.com/hackstrix/titan/internal/corestate"

// AcceptInfo describes a freshly accepted client connection.
type AcceptInfo struct {
	FD         int
	ClientIP   string
	ClientPort int
}

// BackendEvent describes a readiness notification on a backend-facing fd.
type BackendEvent struct {
	FD       int
	Readable bool
	Writable bool
	Error    bool
}

// Pipeline is the contract the worker event loop drives on every iteration
// (spec.md §6, "Pipeline (consumed)"). Implementations own all protocol
// parsing, routing, upstream selection, and backend fd registration; the
// core never inspects connection bytes itself.
type Pipeline interface {
	// OnAccept is called once per accepted client connection.
	OnAccept(info AcceptInfo)
	// OnReadable is called when a client fd reports readable data.
	OnReadable(fd int)
	// OnClose is called when a client fd is being torn down, by any cause
	// (peer hang-up, error, or forced shutdown).
	OnClose(fd int)
	// OnBackendEvent is called when a backend-facing fd reports readiness.
	OnBackendEvent(ev BackendEvent)
	// ProcessBackendOperations lets the pipeline progress any connection
	// that accumulated work without direct readiness (e.g. queued writes),
	// once per loop iteration.
	ProcessBackendOperations()

	// ListenFD returns the client-facing listening socket this pipeline's
	// worker should accept connections on.
	ListenFD() int
	// BackendReadinessFD returns the fd the backend poller should also
	// watch for pipeline-internal wakeups (e.g. an eventfd signalling a
	// queued write became ready). A negative value means none.
	BackendReadinessFD() int
	// UpstreamManager returns the metrics source to publish for worker 0,
	// or nil if this pipeline does not expose one.
	UpstreamManager() corestate.MetricsSource
}
