// Package worker implements the dual-readiness event loop each worker
// thread runs: one readiness set for accepted client sockets, a second for
// outgoing backend sockets, alternating between draining both every
// iteration (spec.md §4.1). Grounded on
// original_source/src/runtime/orchestrator.cpp's run_worker_thread and the
// teacher's WorkerState lifecycle idiom in worker.go.
package worker

import (
	"fmt"
	"runtime"
	"time"

	"github.com/rs/zerolog"

	"github.com/hackstrix/titan/internal/affinity"
	"github.com/hackstrix/titan/internal/corestate"
	"github.com/hackstrix/titan/internal/logging"
	"github.com/hackstrix/titan/internal/pipeline"
	"github.com/hackstrix/titan/internal/poller"
	"github.com/hackstrix/titan/internal/revocation"
	"github.com/hackstrix/titan/internal/socketutil"
)

// Metrics is the narrow counters sink the event loop drives directly,
// mirroring Pipeline's optional-collaborator style (spec.md §1 item 4,
// "emits metrics"). A nil Metrics in Config is replaced with a no-op.
type Metrics interface {
	ConnectionAccepted()
	ConnectionClosed(reason string)
	SetActiveConnections(n int)
	RevocationApplied(n int)
	SetRevocationListSize(n int)
	EventLoopIteration()
	BackendEvent(kind string)
}

type noopMetrics struct{}

func (noopMetrics) ConnectionAccepted()            {}
func (noopMetrics) ConnectionClosed(reason string) {}
func (noopMetrics) SetActiveConnections(n int)     {}
func (noopMetrics) RevocationApplied(n int)        {}
func (noopMetrics) SetRevocationListSize(n int)    {}
func (noopMetrics) EventLoopIteration()            {}
func (noopMetrics) BackendEvent(kind string)       {}

// State is the lifecycle state of a Worker, mirroring the teacher's
// WorkerState enum (steel-infra-assessment/orchestrator/worker.go) adapted
// from a subprocess-supervision lifecycle to an in-process event-loop one.
type State int32

const (
	StateStarting State = iota
	StateRunning
	StateDraining
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateStarting:
		return "starting"
	case StateRunning:
		return "running"
	case StateDraining:
		return "draining"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

// defaultShutdownTimeout and pollIntervalMS match spec.md §4.1's
// graceful-shutdown contract and original_source's
// SHUTDOWN_TIMEOUT_MS/POLL_INTERVAL_MS; pollTimeoutMS is the 1 ms
// steady-state poll timeout.
const (
	defaultShutdownTimeout = 30 * time.Second
	pollIntervalMS         = 100
	pollTimeoutMS          = 1
)

// Config wires everything one Worker needs to run independently of every
// other worker (spec.md §5, "shared-nothing").
type Config struct {
	ID              int
	ListenFD        int
	Pipeline        pipeline.Pipeline
	RevocationQueue *revocation.Queue
	RevocationList  *revocation.List
	Global          *corestate.State
	Logger          zerolog.Logger
	PinToCore       bool
	GracefulTimeout time.Duration
	// Metrics is optional; a nil value runs with a no-op sink.
	Metrics Metrics
}

// Worker owns one listen fd, one client poller, one backend poller, and the
// pipeline instance driving them. Nothing here is shared with any other
// Worker.
type Worker struct {
	cfg    Config
	client poller.Poller
	backend poller.Poller

	active map[int]struct{}
	state  State
}

// New constructs a Worker and its two readiness sets. The listen fd is
// registered on the client poller edge-triggered, matching
// original_source/src/runtime/orchestrator.cpp's EPOLLIN|EPOLLET
// registration in run_worker_thread.
func New(cfg Config) (*Worker, error) {
	if cfg.GracefulTimeout <= 0 {
		cfg.GracefulTimeout = defaultShutdownTimeout
	}
	if cfg.Metrics == nil {
		cfg.Metrics = noopMetrics{}
	}

	client, err := poller.New()
	if err != nil {
		return nil, fmt.Errorf("worker %d: create client poller: %w", cfg.ID, err)
	}

	backend, err := poller.New()
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("worker %d: create backend poller: %w", cfg.ID, err)
	}

	if err := client.Register(cfg.ListenFD, poller.InterestReadable); err != nil {
		_ = client.Close()
		_ = backend.Close()
		return nil, fmt.Errorf("worker %d: register listen fd: %w", cfg.ID, err)
	}

	if fd := cfg.Pipeline.BackendReadinessFD(); fd >= 0 {
		if err := backend.Register(fd, poller.InterestReadable); err != nil {
			_ = client.Close()
			_ = backend.Close()
			return nil, fmt.Errorf("worker %d: register backend readiness fd: %w", cfg.ID, err)
		}
	}

	return &Worker{
		cfg:     cfg,
		client:  client,
		backend: backend,
		active:  make(map[int]struct{}),
		state:   StateStarting,
	}, nil
}

// Run pins the calling OS thread to a logical core (if requested) and runs
// the event loop until Global.Running() becomes false, then drains
// in-flight connections before returning. Run calls runtime.LockOSThread
// itself for its whole duration, so the affinity pin is durable.
func (w *Worker) Run() error {
	runtime.LockOSThread()
	defer runtime.UnlockOSThread()

	if w.cfg.PinToCore {
		if err := affinity.PinThreadToCore(uint32(w.cfg.ID)); err != nil {
			w.cfg.Logger.Warn().Err(err).Int("worker_id", w.cfg.ID).Msg("failed to pin thread to core")
		}
	}

	w.state = StateRunning
	w.cfg.Logger.Info().Int("worker_id", w.cfg.ID).Msg("worker started")

	clientBuf := make([]poller.Event, poller.MaxEvents)
	backendBuf := make([]poller.Event, poller.MaxEvents)

	for w.cfg.Global.Running() {
		w.cfg.Metrics.EventLoopIteration()
		w.syncRevocations()
		w.pollClientOnce(clientBuf, pollTimeoutMS)
		w.pollBackendOnce(backendBuf, pollTimeoutMS)
		w.cfg.Pipeline.ProcessBackendOperations()
	}

	w.drain(clientBuf, backendBuf)

	for fd := range w.active {
		w.cfg.Pipeline.OnClose(fd)
		w.cfg.Metrics.ConnectionClosed("shutdown")
	}
	w.active = nil
	w.cfg.Metrics.SetActiveConnections(0)

	_ = w.client.Close()
	_ = w.backend.Close()
	w.state = StateStopped
	w.cfg.Logger.Info().Int("worker_id", w.cfg.ID).Msg("worker stopped")
	return nil
}

func (w *Worker) pollClientOnce(buf []poller.Event, timeoutMS int) {
	events, err := w.client.Wait(timeoutMS, buf)
	if err != nil {
		w.cfg.Logger.Error().Err(err).Int("worker_id", w.cfg.ID).Msg("client poll failed")
		return
	}

	for _, ev := range events {
		if ev.FD == w.cfg.ListenFD {
			w.acceptLoop()
			continue
		}
		w.dispatchClientEvent(ev)
	}
}

func (w *Worker) dispatchClientEvent(ev poller.Event) {
	if ev.Flags&poller.Error != 0 {
		w.closeClient(ev.FD, "error")
		return
	}
	if ev.Flags&poller.PeerClosed != 0 {
		w.closeClient(ev.FD, "peer_closed")
		return
	}
	if ev.Flags&poller.Readable != 0 {
		w.cfg.Pipeline.OnReadable(ev.FD)
	}
}

// acceptLoop drains the listen socket until accept would block, per the
// edge-triggered discipline spec.md §4.1 requires. Each accepted connection
// is tagged with a fresh correlation ID for log correlation, replacing the
// original's generate_correlation_id call on connection accept
// (src/gateway/logging.hpp).
func (w *Worker) acceptLoop() {
	for {
		fd, sa, err := socketutil.Accept4Nonblocking(w.cfg.ListenFD)
		if err != nil {
			return
		}

		ip, port := sockaddrToIPPort(sa)
		correlationID := logging.GenerateCorrelationID()
		logging.WithCorrelationID(correlationID).Debug().
			Int("worker_id", w.cfg.ID).
			Str("client_ip", ip).
			Int("client_port", port).
			Msg("connection accepted")

		w.cfg.Pipeline.OnAccept(pipeline.AcceptInfo{FD: fd, ClientIP: ip, ClientPort: port})

		if err := w.client.Register(fd, poller.InterestReadable); err != nil {
			w.cfg.Pipeline.OnClose(fd)
			continue
		}
		w.active[fd] = struct{}{}
		w.cfg.Metrics.ConnectionAccepted()
		w.cfg.Metrics.SetActiveConnections(len(w.active))
	}
}

func (w *Worker) closeClient(fd int, reason string) {
	_ = w.client.Deregister(fd)
	delete(w.active, fd)
	w.cfg.Pipeline.OnClose(fd)
	w.cfg.Metrics.ConnectionClosed(reason)
	w.cfg.Metrics.SetActiveConnections(len(w.active))
}

func (w *Worker) pollBackendOnce(buf []poller.Event, timeoutMS int) {
	events, err := w.backend.Wait(timeoutMS, buf)
	if err != nil {
		w.cfg.Logger.Error().Err(err).Int("worker_id", w.cfg.ID).Msg("backend poll failed")
		return
	}

	for _, ev := range events {
		w.cfg.Pipeline.OnBackendEvent(pipeline.BackendEvent{
			FD:       ev.FD,
			Readable: ev.Flags&poller.Readable != 0,
			Writable: ev.Flags&poller.Writable != 0,
			Error:    ev.Flags&poller.Error != 0,
		})
		w.cfg.Metrics.BackendEvent(backendEventKind(ev.Flags))
	}
}

// backendEventKind picks one label for a backend readiness event,
// prioritizing error over readability over writability.
func backendEventKind(flags poller.EventFlags) string {
	switch {
	case flags&poller.Error != 0:
		return "error"
	case flags&poller.Readable != 0:
		return "readable"
	case flags&poller.Writable != 0:
		return "writable"
	default:
		return "other"
	}
}

// syncRevocations folds any pending broadcaster entries into this worker's
// revocation list once per loop iteration, before any client reads are
// dispatched, and reports the applied count and resulting list size.
func (w *Worker) syncRevocations() {
	n := w.cfg.RevocationList.SyncFromQueue(w.cfg.RevocationQueue)
	if n == 0 {
		return
	}
	w.cfg.Metrics.RevocationApplied(n)
	w.cfg.Metrics.SetRevocationListSize(w.cfg.RevocationList.Size())
}

// drain implements spec.md §4.1's graceful-shutdown contract: deregister the
// listen socket, keep servicing existing connections at a relaxed cadence
// until the active set empties or the timeout elapses.
func (w *Worker) drain(clientBuf, backendBuf []poller.Event) {
	if !w.cfg.Global.GracefulShutdown() || len(w.active) == 0 {
		return
	}

	w.state = StateDraining
	w.cfg.Logger.Info().Int("worker_id", w.cfg.ID).Int("active", len(w.active)).
		Msg("draining active connections")

	_ = w.client.Deregister(w.cfg.ListenFD)

	deadline := time.Now().Add(w.cfg.GracefulTimeout)
	for len(w.active) > 0 && time.Now().Before(deadline) {
		w.pollClientOnceDuringDrain(clientBuf)
		w.pollBackendOnce(backendBuf, pollTimeoutMS)
		w.cfg.Pipeline.ProcessBackendOperations()
	}

	if len(w.active) == 0 {
		w.cfg.Logger.Info().Int("worker_id", w.cfg.ID).Msg("all connections drained")
	} else {
		w.cfg.Logger.Warn().Int("worker_id", w.cfg.ID).Int("remaining", len(w.active)).
			Msg("shutdown timeout reached, forcing close")
	}
}

func (w *Worker) pollClientOnceDuringDrain(buf []poller.Event) {
	events, err := w.client.Wait(pollIntervalMS, buf)
	if err != nil {
		return
	}
	for _, ev := range events {
		w.dispatchClientEvent(ev)
	}
}

// ActiveClientCount reports how many client fds are currently tracked, for
// tests and diagnostics.
func (w *Worker) ActiveClientCount() int {
	return len(w.active)
}

// CurrentState reports the worker's lifecycle state.
func (w *Worker) CurrentState() State {
	return w.state
}
