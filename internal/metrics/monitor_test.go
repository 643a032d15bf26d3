package metrics

import (
	"bytes"
	"context"
	"io"
	"net/http"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcp/fluxcp/internal/registry"
)

func TestServeExposesCounters(t *testing.T) {
	coll, promReg := NewCollector()
	coll.BytesSent.Add(42)

	reg := registry.New()
	log := logrus.NewEntry(logrus.New())

	ctx, cancel := context.WithCancel(context.Background())
	const addr = "127.0.0.1:19214"

	done := make(chan error, 1)
	go func() { done <- Serve(ctx, reg, log, addr, promReg) }()

	// Give the listener a moment to come up before scraping it.
	time.Sleep(100 * time.Millisecond)

	resp, err := http.Get("http://" + addr + "/metrics")
	require.NoError(t, err)
	defer resp.Body.Close()
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.True(t, bytes.Contains(body, []byte("fluxcp_bytes_sent_total 42")))

	cancel()
	require.NoError(t, <-done)
}
