package transport

import (
	"bytes"
	"io"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/require"

	"github.com/fluxcp/fluxcp/internal/crypto"
	"github.com/fluxcp/fluxcp/internal/registry"
)

func TestSenderReceiverRoundTripPlain(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	reg := registry.New()
	log := logrus.NewEntry(logrus.New())

	in, out := io.Pipe()
	sentinel := NewSentinel()

	payload := bytes.Repeat([]byte("payload"), 1000)

	done := make(chan error, 1)
	go func() {
		_, werr := in.Write(payload)
		in.Close()
		done <- werr
	}()

	received := make(chan []byte, 1)
	go func() {
		var buf bytes.Buffer
		pr, pw := io.Pipe()
		go func() {
			_ = ReceiverThread(reg, log, serverConn, pw, nil, sentinel, nil)
			pw.Close()
		}()
		_, _ = io.Copy(&buf, pr)
		received <- buf.Bytes()
	}()

	go func() {
		_ = SenderThread(reg, log, out, clientConn, nil, nil)
	}()

	require.NoError(t, <-done)
	clientConn.Close()

	select {
	case got := <-received:
		require.Equal(t, payload, got)
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for receiver")
	}
}

func TestSenderReceiverRoundTripEncrypted(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	reg := registry.New()
	log := logrus.NewEntry(logrus.New())

	key, err := crypto.DeriveKey(crypto.AES128CFB, make([]byte, 16), "test")
	require.NoError(t, err)
	encPool, err := crypto.NewPool(reg, crypto.AES128CFB, key, crypto.Encrypt, 2)
	require.NoError(t, err)
	decPool, err := crypto.NewPool(reg, crypto.AES128CFB, key, crypto.Decrypt, 2)
	require.NoError(t, err)

	in, out := io.Pipe()
	sentinel := NewSentinel()
	payload := []byte("hello, encrypted world")

	go func() {
		_, _ = in.Write(payload)
		in.Close()
	}()

	pr, pw := io.Pipe()
	go func() {
		_ = ReceiverThread(reg, log, serverConn, pw, decPool, sentinel, nil)
		pw.Close()
	}()
	go func() {
		_ = SenderThread(reg, log, out, clientConn, encPool, nil)
	}()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, pr)
	require.Equal(t, payload, buf.Bytes())

	reg.BeginShutdown()
	encPool.Close()
	decPool.Close()
}

// counter is a minimal ByteCounter/crypto.SubBlockCounter double for
// assertions, since both interfaces only need Add(float64).
type counter struct {
	mu    sync.Mutex
	total float64
}

func (c *counter) Add(v float64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.total += v
}

func (c *counter) value() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.total
}

func TestSenderReceiverReportByteCounters(t *testing.T) {
	clientConn, serverConn := net.Pipe()
	defer clientConn.Close()
	defer serverConn.Close()

	reg := registry.New()
	log := logrus.NewEntry(logrus.New())

	in, out := io.Pipe()
	sentinel := NewSentinel()
	payload := bytes.Repeat([]byte("x"), 256)

	sent := &counter{}
	received := &counter{}

	go func() {
		_, _ = in.Write(payload)
		in.Close()
	}()

	pr, pw := io.Pipe()
	go func() {
		_ = ReceiverThread(reg, log, serverConn, pw, nil, sentinel, received)
		pw.Close()
	}()
	go func() {
		_ = SenderThread(reg, log, out, clientConn, nil, sent)
	}()

	var buf bytes.Buffer
	_, _ = io.Copy(&buf, pr)
	require.Equal(t, payload, buf.Bytes())

	require.Equal(t, float64(len(payload)), sent.value())
	require.Equal(t, float64(len(payload)), received.value())

	clientConn.Close()
}
