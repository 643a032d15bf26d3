// Package session implements the orchestrator (spec §4.8): role
// selection, key exchange over the bootstrap channel, pipe/pool/transport
// wiring, running the role's protocol driver, and shutdown.
package session

import (
	"bytes"
	"crypto/rand"
	"crypto/sha1"
	"errors"
	"fmt"
	"io"
	"net"
	"time"

	"golang.org/x/crypto/pbkdf2"
	"golang.org/x/sync/errgroup"

	"github.com/fluxcp/fluxcp/internal/config"
	"github.com/fluxcp/fluxcp/internal/crypto"
	"github.com/fluxcp/fluxcp/internal/frame"
	"github.com/fluxcp/fluxcp/internal/metrics"
	"github.com/fluxcp/fluxcp/internal/receiver"
	"github.com/fluxcp/fluxcp/internal/registry"
	"github.com/fluxcp/fluxcp/internal/sender"
	"github.com/fluxcp/fluxcp/internal/transport"
	"github.com/fluxcp/fluxcp/internal/walker"
)

// sessionKeyLen is the fixed session key length spec §4.8 names.
const sessionKeyLen = 16

// pbkdf2Iterations is the responder's PBKDF2 iteration count, at least the
// 1000 spec §4.8 requires.
const pbkdf2Iterations = 100_000

// maxDialAttempts bounds the client's connect retry loop (spec §4.8, §9).
const maxDialAttempts = 25

// ErrNoSessionKey is returned when encryption is enabled but no session
// key was exchanged. Spec §9's Open Question on the source's "password"
// fallback is resolved here: this is always a fatal configuration error,
// never a silent substitution.
var ErrNoSessionKey = errors.New("session: encryption enabled but no session key available")

// Orchestrator wires together the bootstrap handshake, the transport
// thread pair, the crypto pools, and the role's protocol driver.
type Orchestrator struct {
	Cfg       *config.Config
	Reg       *registry.Registry
	Bootstrap io.ReadWriter // duplex channel to the peer's control handshake

	// Metrics, if set, receives live byte/sub-block counts from the
	// transport threads and crypto pools this orchestrator wires up (spec
	// §5's optional monitor thread). Left nil, nothing is recorded.
	Metrics *metrics.Collector
}

// RunInitiator drives the sending side of a transfer: it reads (or,
// reads nothing and skips, if encryption is off) the session key off the
// bootstrap channel, dials the responder's transport, exchanges the
// pre-flight FILELIST manifest (spec.md §2 item 5, §4.7), streams local
// against the manifest the responder sends back through the sender
// protocol driver, then tears down.
func (o *Orchestrator) RunInitiator(local *walker.FileList) error {
	log := o.Cfg.Logger("session")

	var checkpoints *walker.CheckpointSet
	var checkpointW io.WriteCloser
	if o.Cfg.CheckpointLog != "" {
		cs, err := walker.LoadCheckpoint(o.Cfg.CheckpointLog)
		if err != nil {
			return err
		}
		checkpoints = cs
		f, err := walker.OpenCheckpointLog(o.Cfg.CheckpointLog)
		if err != nil {
			return err
		}
		checkpointW = f
		defer f.Close()
	}

	key, err := o.exchangeKeyInitiator()
	if err != nil {
		return err
	}

	conn, err := o.dialWithRetry()
	if err != nil {
		return err
	}
	defer conn.Close()

	encPool, decPool, err := o.buildPools(key)
	if err != nil {
		return err
	}
	if encPool != nil {
		defer encPool.Close()
	}
	if decPool != nil {
		defer decPool.Close()
	}

	outR, outW := io.Pipe()
	inR, inW := io.Pipe()

	sentinel := transport.NewSentinel()
	var g errgroup.Group
	g.Go(func() error {
		transport.Watchdog(o.Reg, log, sentinel, o.Cfg.Timeout)
		return nil
	})

	var sentCounter, receivedCounter transport.ByteCounter
	if o.Metrics != nil {
		sentCounter = o.Metrics.BytesSent
		receivedCounter = o.Metrics.BytesReceived
	}

	senderDone := make(chan error, 1)
	g.Go(func() error {
		err := transport.SenderThread(o.Reg, log, outR, conn, encPool, sentCounter)
		senderDone <- err
		return err
	})
	g.Go(func() error {
		return transport.ReceiverThread(o.Reg, log, conn, inW, decPool, sentinel, receivedCounter)
	})

	teardown := func(err error) error {
		outW.Close()
		<-senderDone
		o.Reg.BeginShutdown()
		conn.Close()
		_ = g.Wait()
		return err
	}

	remoteManifest, err := sendManifest(outW, inR, local)
	if err != nil {
		return teardown(fmt.Errorf("session: pre-flight manifest exchange: %w", err))
	}

	drv := &sender.Driver{
		Out:         outW,
		In:          inR,
		Checkpoints: checkpoints,
		CheckpointW: checkpointW,
		Log:         log,
		Opt:         sender.Options{AllFiles: o.Cfg.AllFiles},
	}
	driverErr := drv.Run(local, remoteManifest)

	// By the time Run returns, the responder has already acked COMPLETE,
	// so sender_thread has nothing left in flight; closing outW just EOFs
	// its next read.
	return teardown(driverErr)
}

// RunResponder drives the receiving side: it generates (or skips, if
// encryption is off) the session key, writes it to the bootstrap channel,
// listens and accepts the transport connection, and runs the receiver
// protocol driver to completion.
func (o *Orchestrator) RunResponder(destRoot string) error {
	log := o.Cfg.Logger("session")

	key, err := o.exchangeKeyResponder()
	if err != nil {
		return err
	}

	listener, err := transport.ListenServer(fmt.Sprintf(":%d", o.Cfg.Port))
	if err != nil {
		return err
	}
	defer listener.Close()

	conn, err := transport.Accept(listener)
	if err != nil {
		return err
	}
	defer conn.Close()

	encPool, decPool, err := o.buildPools(key)
	if err != nil {
		return err
	}
	if encPool != nil {
		defer encPool.Close()
	}
	if decPool != nil {
		defer decPool.Close()
	}

	outR, outW := io.Pipe()
	inR, inW := io.Pipe()

	sentinel := transport.NewSentinel()
	var g errgroup.Group
	g.Go(func() error {
		transport.Watchdog(o.Reg, log, sentinel, o.Cfg.Timeout)
		return nil
	})

	var sentCounter, receivedCounter transport.ByteCounter
	if o.Metrics != nil {
		sentCounter = o.Metrics.BytesSent
		receivedCounter = o.Metrics.BytesReceived
	}

	senderDone := make(chan error, 1)
	g.Go(func() error {
		err := transport.SenderThread(o.Reg, log, outR, conn, encPool, sentCounter)
		senderDone <- err
		return err
	})
	g.Go(func() error {
		return transport.ReceiverThread(o.Reg, log, conn, inW, decPool, sentinel, receivedCounter)
	})

	teardown := func(err error) error {
		// Whatever the driver or manifest exchange last wrote to outW (an ACK
		// or a FILELIST reply) is still in flight inside sender_thread's pipe
		// read; wait for sender_thread to actually push it onto the wire
		// before tearing the connection down (closing outW first drains that
		// last frame, then EOFs the thread once it's through).
		outW.Close()
		<-senderDone
		inR.Close()
		o.Reg.BeginShutdown()
		conn.Close()
		_ = g.Wait()
		return err
	}

	if err := recvAndReplyManifest(outW, inR, destRoot); err != nil {
		return teardown(fmt.Errorf("session: pre-flight manifest exchange: %w", err))
	}

	drv := &receiver.Driver{
		Out:  outW,
		In:   inR,
		Root: destRoot,
		Log:  log,
	}
	driverErr := drv.Run()
	return teardown(driverErr)
}

// buildPools constructs the encrypt/decrypt crypto pools when encryption
// is enabled, deriving each suite's key from the shared session key via
// HKDF (see internal/crypto.DeriveKey). Returns (nil, nil, nil) when
// encryption is off.
func (o *Orchestrator) buildPools(sessionKey []byte) (enc, dec *crypto.Pool, err error) {
	if !o.Cfg.Encrypt {
		return nil, nil, nil
	}
	if len(sessionKey) == 0 {
		return nil, nil, ErrNoSessionKey
	}

	encKey, err := crypto.DeriveKey(o.Cfg.Cipher, sessionKey, "fluxcp-encrypt")
	if err != nil {
		return nil, nil, err
	}
	decKey, err := crypto.DeriveKey(o.Cfg.Cipher, sessionKey, "fluxcp-encrypt")
	if err != nil {
		return nil, nil, err
	}

	enc, err = crypto.NewPool(o.Reg, o.Cfg.Cipher, encKey, crypto.Encrypt, o.Cfg.CryptoThreads)
	if err != nil {
		return nil, nil, err
	}
	dec, err = crypto.NewPool(o.Reg, o.Cfg.Cipher, decKey, crypto.Decrypt, o.Cfg.CryptoThreads)
	if err != nil {
		return nil, nil, err
	}
	if o.Metrics != nil {
		enc.Counter = o.Metrics.SubBlocksCrypto
		dec.Counter = o.Metrics.SubBlocksCrypto
	}
	return enc, dec, nil
}

// exchangeKeyInitiator reads the fixed-length session key the responder
// wrote to the bootstrap channel (spec §4.8). A no-encryption transfer
// skips the handshake entirely.
func (o *Orchestrator) exchangeKeyInitiator() ([]byte, error) {
	if !o.Cfg.Encrypt {
		return nil, nil
	}
	key := make([]byte, sessionKeyLen)
	if _, err := io.ReadFull(o.Bootstrap, key); err != nil {
		return nil, fmt.Errorf("session: read session key: %w", err)
	}
	return key, nil
}

// exchangeKeyResponder generates a session key with a cryptographic PRNG
// (PBKDF2-HMAC-SHA1 over a random salt, spec §4.8) and writes it to the
// bootstrap channel.
func (o *Orchestrator) exchangeKeyResponder() ([]byte, error) {
	if !o.Cfg.Encrypt {
		return nil, nil
	}
	salt := make([]byte, 16)
	if _, err := rand.Read(salt); err != nil {
		return nil, fmt.Errorf("session: read random salt: %w", err)
	}
	// The PBKDF2 password input is itself random so the derived key carries
	// no memorable secret; PBKDF2 here serves only as the PRNG construction
	// spec §4.8 specifies, not password-based key derivation in the usual
	// sense.
	password := make([]byte, 32)
	if _, err := rand.Read(password); err != nil {
		return nil, fmt.Errorf("session: read random password material: %w", err)
	}
	key := pbkdf2.Key(password, salt, pbkdf2Iterations, sessionKeyLen, sha1.New)

	if _, err := o.Bootstrap.Write(key); err != nil {
		return nil, fmt.Errorf("session: write session key: %w", err)
	}
	if f, ok := o.Bootstrap.(flusher); ok {
		if err := f.Flush(); err != nil {
			return nil, fmt.Errorf("session: flush session key: %w", err)
		}
	}
	return key, nil
}

type flusher interface {
	Flush() error
}

// sendManifest runs the initiator's half of the pre-flight FILELIST
// exchange (spec.md §2 item 5, §4.7's FILELIST row): it writes local as a
// single FILELIST frame over the already-wired outbound pipe, then blocks
// for the responder's FILELIST reply, which reports what the responder
// already has on disk for each of those paths.
func sendManifest(outW io.Writer, inR io.Reader, local *walker.FileList) (*walker.FileList, error) {
	if err := writeFileListFrame(outW, local); err != nil {
		return nil, fmt.Errorf("write local manifest: %w", err)
	}
	remote, err := readFileListFrame(inR)
	if err != nil {
		return nil, fmt.Errorf("read remote manifest: %w", err)
	}
	return remote, nil
}

// recvAndReplyManifest runs the responder's half: it reads the initiator's
// FILELIST frame, stats each announced path under destRoot via
// receiver.StatManifest, and writes the result back as its own FILELIST
// frame.
func recvAndReplyManifest(outW io.Writer, inR io.Reader, destRoot string) error {
	remote, err := readFileListFrame(inR)
	if err != nil {
		return fmt.Errorf("read sender manifest: %w", err)
	}
	reply := receiver.StatManifest(destRoot, remote)
	if err := writeFileListFrame(outW, reply); err != nil {
		return fmt.Errorf("write local manifest: %w", err)
	}
	return nil
}

// writeFileListFrame packs list and sends it as a single FILELIST frame.
func writeFileListFrame(w io.Writer, list *walker.FileList) error {
	var buf bytes.Buffer
	if err := walker.Pack(&buf, list); err != nil {
		return fmt.Errorf("pack file list: %w", err)
	}
	h := frame.NewDataHeader(frame.FileList, uint64(buf.Len()))
	if err := frame.WriteHeader(w, h); err != nil {
		return fmt.Errorf("write FILELIST header: %w", err)
	}
	if _, err := w.Write(buf.Bytes()); err != nil {
		return fmt.Errorf("write FILELIST payload: %w", err)
	}
	return nil
}

// readFileListFrame reads and unpacks a single FILELIST frame.
func readFileListFrame(r io.Reader) (*walker.FileList, error) {
	h, err := frame.ReadHeader(r)
	if err != nil {
		return nil, fmt.Errorf("read FILELIST header: %w", err)
	}
	if h.Kind != frame.FileList {
		return nil, fmt.Errorf("expected FILELIST frame, got %s", h.Kind)
	}
	payload := make([]byte, h.DataLen)
	if err := frame.ReadData(r, payload, int(h.DataLen)); err != nil {
		return nil, fmt.Errorf("read FILELIST payload: %w", err)
	}
	return walker.Unpack(bytes.NewReader(payload))
}

// dialWithRetry loops DialServer up to maxDialAttempts times on
// transport.ErrNoServer before giving up (spec §4.8, §9).
func (o *Orchestrator) dialWithRetry() (net.Conn, error) {
	addr := fmt.Sprintf("%s:%d", o.Cfg.Host, o.Cfg.Port)
	var lastErr error
	for attempt := 1; attempt <= maxDialAttempts; attempt++ {
		conn, err := transport.DialServer(addr)
		if err == nil {
			return conn, nil
		}
		if !errors.Is(err, transport.ErrNoServer) {
			return nil, err
		}
		lastErr = err
		time.Sleep(200 * time.Millisecond)
	}
	return nil, fmt.Errorf("session: %w after %d attempts: %v", transport.ErrNoServer, maxDialAttempts, lastErr)
}
