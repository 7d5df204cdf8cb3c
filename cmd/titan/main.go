// Command titan is Titan's process entrypoint: parse config, wire the
// ambient stack, construct an Orchestrator, and run until SIGINT/SIGTERM,
// adapted from the teacher's flag-parsing-plus-signal-handling main.go.
package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/hackstrix/titan/internal/config"
	"github.com/hackstrix/titan/internal/corestate"
	"github.com/hackstrix/titan/internal/logging"
	"github.com/hackstrix/titan/internal/metrics"
	"github.com/hackstrix/titan/internal/orchestrator"
	"github.com/hackstrix/titan/internal/pipeline"
	"github.com/hackstrix/titan/internal/revocation"
)

func main() {
	fs := flag.NewFlagSet("titan", flag.ExitOnError)
	cfg, err := config.ParseFlags(fs, os.Args[1:], config.Default())
	if err != nil {
		fmt.Fprintln(os.Stderr, "titan:", err)
		os.Exit(1)
	}

	logging.Init(logging.Config{
		Level:      cfg.LogLevel(),
		JSONOutput: cfg.Logging.JSON,
	})

	logging.Logger.Info().
		Int("worker_threads", cfg.Server.WorkerThreads).
		Str("listen_address", cfg.Server.ListenAddress).
		Uint16("listen_port", cfg.Server.ListenPort).
		Bool("metrics_enabled", cfg.Metrics.Enabled).
		Msg("starting titan")

	o := orchestrator.New(cfg, echoPipelineWithMetrics)

	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		sig := <-sigCh
		logging.Logger.Info().Str("signal", sig.String()).Msg("shutdown requested")
		o.Global().RequestShutdown()
	}()

	var runErr error
	if cfg.Server.WorkerThreads == 1 {
		runErr = o.RunSingle()
	} else {
		runErr = o.RunMultiWorker()
	}

	if runErr != nil {
		logging.Logger.Error().Err(runErr).Msg("titan exited with error")
		os.Exit(1)
	}
	logging.Logger.Info().Msg("titan stopped")
}

// echoPipelineWithMetrics wires the shipped default Pipeline (EchoPipeline)
// together with a per-worker metrics.Collector, standing in for the
// real router/upstream-manager/JWT-validation stack the core treats as an
// external collaborator (spec.md §1, §6). A production install replaces this
// factory with one that builds the actual request pipeline.
func echoPipelineWithMetrics(workerID int, listenFD int, list *revocation.List, queue *revocation.Queue) pipeline.Pipeline {
	collector := metrics.NewCollector(workerID)
	return metricsEchoPipeline{
		EchoPipeline: pipeline.NewEchoPipeline(listenFD, list, queue),
		collector:    collector,
	}
}

// metricsEchoPipeline adapts a metrics.Collector into the
// corestate.MetricsSource contract so worker 0 can publish it for the admin
// listener's /metrics route.
type metricsEchoPipeline struct {
	*pipeline.EchoPipeline
	collector *metrics.Collector
}

func (p metricsEchoPipeline) UpstreamManager() corestate.MetricsSource {
	return p.collector
}
