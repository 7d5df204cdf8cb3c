// Package orchestrator owns the lifecycle of every worker, the admin
// listener, and the shared revocation/metrics state, grounded on
// original_source/src/runtime/orchestrator.cpp's run_multi_threaded_server
// and the teacher's Pool goroutine-spawn-and-join idiom
// (steel-infra-assessment/orchestrator/pool.go).
package orchestrator

import (
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hackstrix/titan/internal/admin"
	"github.com/hackstrix/titan/internal/affinity"
	"github.com/hackstrix/titan/internal/config"
	"github.com/hackstrix/titan/internal/corestate"
	"github.com/hackstrix/titan/internal/logging"
	"github.com/hackstrix/titan/internal/pipeline"
	"github.com/hackstrix/titan/internal/revocation"
	"github.com/hackstrix/titan/internal/socketutil"
	"github.com/hackstrix/titan/internal/worker"
)

// PipelineFactory builds the per-worker Pipeline given the worker's listen
// fd and its revocation collaborators. The orchestrator never constructs a
// Pipeline itself — routing, upstream selection and JWT validation are
// external collaborators (spec.md §1, §6).
type PipelineFactory func(workerID int, listenFD int, list *revocation.List, queue *revocation.Queue) pipeline.Pipeline

// Orchestrator owns GlobalState, the revocation broadcaster, the admin
// listener, and every worker for one running instance of Titan.
type Orchestrator struct {
	cfg             config.Config
	pipelineFactory PipelineFactory
	global          *corestate.State
	broadcaster     *revocation.Broadcaster
	adminAddr       atomic.Value // string
}

// New constructs an Orchestrator. pipelineFactory must not be nil; it is the
// seam by which the real router/upstream-manager/JWT stack (or
// pipeline.EchoPipeline for a default install) joins the core.
func New(cfg config.Config, pipelineFactory PipelineFactory) *Orchestrator {
	return &Orchestrator{
		cfg:             cfg,
		pipelineFactory: pipelineFactory,
		global:          corestate.New(),
		broadcaster:     revocation.NewBroadcaster(),
	}
}

// Global returns the shared GlobalState handle, for tests and signal
// handlers that need to call RequestShutdown.
func (o *Orchestrator) Global() *corestate.State {
	return o.global
}

// Broadcaster returns the revocation fan-out broadcaster, so an external
// caller (e.g. the admin listener wiring, or a test) can push revocations.
func (o *Orchestrator) Broadcaster() *revocation.Broadcaster {
	return o.broadcaster
}

// AdminAddr returns the admin listener's bound address, or "" if the admin
// listener is disabled or has not finished binding yet.
func (o *Orchestrator) AdminAddr() string {
	v, _ := o.adminAddr.Load().(string)
	return v
}

// RunMultiWorker chooses N = config.server.worker_threads or the logical
// CPU count, starts the admin listener (if enabled), spawns N workers, and
// blocks until every worker has exited. It returns the first error any
// worker returned (e.g. a failed listen-socket bind), or nil. Matches
// run_multi_threaded_server's ordering: admin starts before workers; workers
// are joined before admin is stopped (spec.md §4.2).
func (o *Orchestrator) RunMultiWorker() error {
	numWorkers := o.cfg.Server.WorkerThreads
	if numWorkers <= 0 {
		numWorkers = affinity.CPUCount()
	}

	var adminServer *admin.Server
	if o.cfg.Metrics.Enabled {
		adminServer = admin.New(admin.Config{
			Address:     "127.0.0.1",
			Port:        o.cfg.Metrics.Port,
			MetricsPath: o.cfg.Metrics.Path,
			Global:      o.global,
			Queue:       o.broadcaster,
			Metrics:     metricsAdapter{},
			Logger:      logging.WithComponent("admin"),
		})
		if err := adminServer.Start(); err != nil {
			logging.Logger.Error().Err(err).Msg("failed to start admin server, continuing without metrics")
			adminServer = nil
		} else {
			o.adminAddr.Store(adminServer.Addr().String())
			logging.Logger.Info().Str("addr", adminServer.Addr().String()).Msg("admin server listening")
			go adminServer.Run()
		}
	}

	var (
		wg       sync.WaitGroup
		errMu    sync.Mutex
		firstErr error
	)
	for i := 0; i < numWorkers; i++ {
		wg.Add(1)
		go func(id int) {
			defer wg.Done()
			if err := o.runOneWorker(id); err != nil {
				logging.WithWorkerID(id).Error().Err(err).Msg("worker exited with error")
				errMu.Lock()
				if firstErr == nil {
					firstErr = err
				}
				errMu.Unlock()
			}
		}(i)
	}
	wg.Wait()

	if adminServer != nil {
		adminServer.Stop()
	}

	return firstErr
}

// RunSingle is the degenerate single-worker case: one event loop on the
// calling goroutine, no admin thread spawned by this call (callers that want
// metrics in single mode should start one separately).
func (o *Orchestrator) RunSingle() error {
	return o.runOneWorker(0)
}

func (o *Orchestrator) runOneWorker(id int) error {
	listenFD, err := socketutil.CreateListeningSocket(socketutil.ListenOptions{
		Address:   o.cfg.Server.ListenAddress,
		Port:      o.cfg.Server.ListenPort,
		ReusePort: o.cfg.Server.ReusePort,
	})
	if err != nil {
		return fmt.Errorf("orchestrator: worker %d: create listening socket: %w", id, err)
	}

	list := revocation.NewList()
	queue := o.broadcaster.Register()
	pl := o.pipelineFactory(id, listenFD, list, queue)

	var metricsSink worker.Metrics
	if src := pl.UpstreamManager(); src != nil {
		if sink, ok := src.(worker.Metrics); ok {
			metricsSink = sink
		}
		if id == 0 {
			o.global.PublishMetricsSource(src)
		}
	}

	w, err := worker.New(worker.Config{
		ID:              id,
		ListenFD:        listenFD,
		Pipeline:        pl,
		RevocationQueue: queue,
		RevocationList:  list,
		Global:          o.global,
		Logger:          logging.WithWorkerID(id),
		PinToCore:       true,
		GracefulTimeout: time.Duration(o.cfg.Shutdown.GracefulTimeoutMS) * time.Millisecond,
		Metrics:         metricsSink,
	})
	if err != nil {
		socketutil.CloseFD(listenFD)
		return fmt.Errorf("orchestrator: worker %d: %w", id, err)
	}

	return w.Run()
}

// metricsAdapter bridges corestate.MetricsSource (an interface the pipeline
// exposes) to admin.MetricsRenderer. Titan ships no gateway-level circuit
// breaker metrics in the core (spec.md §1 names it an external collaborator),
// so this renders the published source directly, and while no source has
// been published yet it returns a body holding only a comment line.
type metricsAdapter struct{}

func (metricsAdapter) Render(source corestate.MetricsSource) ([]byte, string) {
	if source == nil {
		return []byte("# no metrics source published yet\n"), "text/plain; version=0.0.4"
	}
	return source.Render()
}
