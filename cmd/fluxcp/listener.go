package main

import (
	"context"
	"os"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcp/fluxcp/internal/config"
	"github.com/fluxcp/fluxcp/internal/metrics"
	"github.com/fluxcp/fluxcp/internal/registry"
	"github.com/fluxcp/fluxcp/internal/session"
)

// stdioBootstrap is the responder's bootstrap channel: its own standard
// input/output, inherited from the remoting shell that spawned it (spec
// §1: "the core consumes a pair of byte channels... to the remote
// process's standard input/output").
type stdioBootstrap struct{}

func (stdioBootstrap) Read(p []byte) (int, error)  { return os.Stdin.Read(p) }
func (stdioBootstrap) Write(p []byte) (int, error) { return os.Stdout.Write(p) }

func runListener(cfg *config.Config, destDir string) error {
	if destDir == "" {
		destDir = "."
	}

	reg := registry.New()
	log := cfg.Logger("main")

	var coll *metrics.Collector
	if cfg.MetricsAddr != "" {
		var promReg *prometheus.Registry
		coll, promReg = metrics.NewCollector()
		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()
		go func() {
			if err := metrics.Serve(ctx, reg, cfg.Logger("metrics"), cfg.MetricsAddr, promReg); err != nil {
				log.WithError(err).Warn("metrics server exited")
			}
		}()
	}

	orch := &session.Orchestrator{Cfg: cfg, Reg: reg, Bootstrap: stdioBootstrap{}, Metrics: coll}

	start := time.Now()
	err := orch.RunResponder(destDir)
	log.Infof("fluxcp: transfer finished in %s", time.Since(start))
	return err
}
