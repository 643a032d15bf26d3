package session

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcp/fluxcp/internal/config"
	"github.com/fluxcp/fluxcp/internal/registry"
	"github.com/fluxcp/fluxcp/internal/walker"
)

func testConfig(port int) *config.Config {
	log := logrus.New()
	log.SetOutput(bytes.NewBuffer(nil))
	return &config.Config{
		Port:    port,
		Host:    "127.0.0.1",
		Timeout: 0,
		Log:     log,
	}
}

func TestInitiatorResponderPlaintextTransfer(t *testing.T) {
	srcRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("hello session"), 0o644))

	local, err := walker.Walk([]string{srcRoot}, walker.Options{})
	require.NoError(t, err)

	dstRoot := t.TempDir()

	const port = 19213

	respReg := registry.New()
	resp := &Orchestrator{Cfg: testConfig(port), Reg: respReg}

	respDone := make(chan error, 1)
	go func() { respDone <- resp.RunResponder(dstRoot) }()

	// Give the responder a moment to bind before the initiator dials.
	time.Sleep(100 * time.Millisecond)

	initReg := registry.New()
	init := &Orchestrator{Cfg: testConfig(port), Reg: initReg}
	require.NoError(t, init.RunInitiator(local))

	select {
	case err := <-respDone:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("responder did not finish")
	}

	data, err := os.ReadFile(filepath.Join(dstRoot, "a.txt"))
	require.NoError(t, err)
	assert.Equal(t, "hello session", string(data))
}

// TestInitiatorResponderSkipsUnchangedFile exercises the pre-flight
// FILELIST manifest exchange end to end: a second transfer of a file whose
// mtime the responder already has on disk must not retransmit it, even
// with no checkpoint log in play.
func TestInitiatorResponderSkipsUnchangedFile(t *testing.T) {
	srcRoot := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(srcRoot, "a.txt"), []byte("original"), 0o644))

	local, err := walker.Walk([]string{srcRoot}, walker.Options{})
	require.NoError(t, err)

	dstRoot := t.TempDir()

	const port = 19215
	runOnce := func(l *walker.FileList) {
		respReg := registry.New()
		resp := &Orchestrator{Cfg: testConfig(port), Reg: respReg}
		respDone := make(chan error, 1)
		go func() { respDone <- resp.RunResponder(dstRoot) }()
		time.Sleep(100 * time.Millisecond)

		initReg := registry.New()
		init := &Orchestrator{Cfg: testConfig(port), Reg: initReg}
		require.NoError(t, init.RunInitiator(l))

		select {
		case err := <-respDone:
			require.NoError(t, err)
		case <-time.After(5 * time.Second):
			t.Fatal("responder did not finish")
		}
	}

	runOnce(local)

	dstFile := filepath.Join(dstRoot, "a.txt")
	data, err := os.ReadFile(dstFile)
	require.NoError(t, err)
	assert.Equal(t, "original", string(data))

	// Mutate the destination without touching its mtime, then re-walk the
	// (unchanged) source and transfer again: the manifest exchange should
	// make the sender skip a.txt, leaving the mutation in place.
	fi, err := os.Stat(dstFile)
	require.NoError(t, err)
	mt := fi.ModTime()
	require.NoError(t, os.WriteFile(dstFile, []byte("mutated-after-first-run"), 0o644))
	require.NoError(t, os.Chtimes(dstFile, mt, mt))

	local2, err := walker.Walk([]string{srcRoot}, walker.Options{})
	require.NoError(t, err)

	runOnce(local2)

	data, err = os.ReadFile(dstFile)
	require.NoError(t, err)
	assert.Equal(t, "mutated-after-first-run", string(data))
}
