// Package metrics implements the monitor thread SPEC_FULL.md §2.5 gives a
// body to: spec.md §5 names an optional "monitor" thread in the TRANSPORT
// class without detailing it. This exposes transfer throughput and
// crypto sub-block counters via github.com/prometheus/client_golang.
package metrics

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/registry"
)

// Collector holds the counters internal/transport and internal/crypto
// update as a transfer progresses, via the ByteCounter/SubBlockCounter
// interfaces those packages define (BytesSent/BytesReceived/
// SubBlocksCrypto all satisfy Add(float64)). internal/session wires a
// Collector's fields into SenderThread/ReceiverThread/Pool.Counter when
// an Orchestrator's Metrics field is set.
type Collector struct {
	BytesSent       prometheus.Counter
	BytesReceived   prometheus.Counter
	SubBlocksCrypto prometheus.Counter
}

// NewCollector registers a fresh set of counters against its own
// registry, so multiple transfers in the same process (tests, mainly)
// don't collide on Prometheus's global default registry.
func NewCollector() (*Collector, *prometheus.Registry) {
	reg := prometheus.NewRegistry()
	factory := promauto.With(reg)
	return &Collector{
		BytesSent: factory.NewCounter(prometheus.CounterOpts{
			Name: "fluxcp_bytes_sent_total",
			Help: "Total bytes written to the reliable UDP transport.",
		}),
		BytesReceived: factory.NewCounter(prometheus.CounterOpts{
			Name: "fluxcp_bytes_received_total",
			Help: "Total bytes read from the reliable UDP transport.",
		}),
		SubBlocksCrypto: factory.NewCounter(prometheus.CounterOpts{
			Name: "fluxcp_crypto_subblocks_total",
			Help: "Total sub-blocks processed by the crypto worker pool.",
		}),
	}, reg
}

// Serve runs the monitor thread: an HTTP server exposing promReg on addr
// until ctx is canceled. Registered under the Transport class per
// spec.md §5's thread table ("optionally 1 monitor" under TRANSPORT).
func Serve(ctx context.Context, reg *registry.Registry, log *logrus.Entry, addr string, promReg *prometheus.Registry) error {
	h, err := reg.Spawn("monitor", registry.Transport)
	if err != nil {
		return err
	}
	defer reg.Unregister(h)

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(promReg, promhttp.HandlerOpts{}))
	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)
	go func() { errCh <- srv.ListenAndServe() }()

	select {
	case <-ctx.Done():
		return srv.Close()
	case err := <-errCh:
		if err == http.ErrServerClosed {
			return nil
		}
		log.WithError(err).Error("monitor: http server failed")
		return err
	}
}
