package main

import (
	"context"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fluxcp/fluxcp/internal/config"
	"github.com/fluxcp/fluxcp/internal/metrics"
	"github.com/fluxcp/fluxcp/internal/registry"
	"github.com/fluxcp/fluxcp/internal/session"
	"github.com/fluxcp/fluxcp/internal/walker"
)

// execBootstrap wraps a spawned remote peer's stdin/stdout as the
// bootstrap channel the session orchestrator exchanges the key over
// (spec §1, §4.8).
type execBootstrap struct {
	w io.WriteCloser
	r io.ReadCloser
}

func (b *execBootstrap) Read(p []byte) (int, error)  { return b.r.Read(p) }
func (b *execBootstrap) Write(p []byte) (int, error) { return b.w.Write(p) }

func runInitiator(cfg *config.Config, target string, sources []string) error {
	if len(sources) == 0 {
		return fmt.Errorf("fluxcp: -r requires at least one source path")
	}

	host, dest, err := splitTarget(target)
	if err != nil {
		return err
	}
	cfg.Host = host
	cfg.Dest = dest

	log := cfg.Logger("main")

	remoteCmd := exec.Command("ssh", host, remoteCommandLine(cfg, dest)...)
	stdin, err := remoteCmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("fluxcp: remote stdin pipe: %w", err)
	}
	stdout, err := remoteCmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("fluxcp: remote stdout pipe: %w", err)
	}
	if err := remoteCmd.Start(); err != nil {
		return fmt.Errorf("fluxcp: spawn remote peer: %w", err)
	}

	reg := registry.New()

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

	orch := &session.Orchestrator{
		Cfg:       cfg,
		Reg:       reg,
		Bootstrap: &execBootstrap{w: stdin, r: stdout},
		Metrics:   coll,
	}

	local, err := walker.Walk(sources, walker.Options{FullRoot: cfg.FullRoot})
	if err != nil {
		return fmt.Errorf("fluxcp: walk sources: %w", err)
	}

	start := time.Now()
	transferErr := orch.RunInitiator(local)
	log.Infof("fluxcp: transfer finished in %s", time.Since(start))

	stdin.Close()
	waitErr := remoteCmd.Wait()
	if transferErr != nil {
		return transferErr
	}
	return waitErr
}

// remoteCommandLine rebuilds the flags the spawned remote peer needs to
// run as the responder, mirroring this process's own CLI surface (spec
// §6) so the two sides agree on cipher/thread-count/port.
func remoteCommandLine(cfg *config.Config, dest string) []string {
	args := []string{"fluxcp", "-l", dest, "-p", strconv.Itoa(cfg.Port)}
	if cfg.Encrypt {
		args = append(args, "-n", "--crypto-threads", strconv.Itoa(cfg.CryptoThreads), "--cipher", cfg.Cipher.String())
	}
	if cfg.Timeout > 0 {
		args = append(args, "--timeout", strconv.Itoa(int(cfg.Timeout/time.Second)))
	}
	if cfg.AllFiles {
		args = append(args, "--all-files")
	}
	if cfg.FullRoot {
		args = append(args, "--full-root")
	}
	return args
}

func splitTarget(target string) (host, dest string, err error) {
	idx := strings.Index(target, ":")
	if idx <= 0 {
		return "", "", fmt.Errorf("fluxcp: -r target must be host:dest, got %q", target)
	}
	return target[:idx], target[idx+1:], nil
}
