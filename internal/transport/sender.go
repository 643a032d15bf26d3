package transport

import (
	"encoding/binary"
	"errors"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/crypto"
	"github.com/fluxcp/fluxcp/internal/frame"
	"github.com/fluxcp/fluxcp/internal/registry"
)

// ErrConnectionLost is returned when the socket reports a terminal error;
// it is treated as a clean (if unwanted) end of the sender/receiver loop
// rather than a panic-worthy condition (spec §7).
var ErrConnectionLost = errors.New("transport: connection lost")

// lengthPrefixLen is the size of the in-the-clear framing prefix that
// precedes every encrypted block on the wire (spec §4.4).
const lengthPrefixLen = 4

// ByteCounter receives a running total of payload bytes moved across the
// transport socket. A *prometheus.Counter satisfies this through its own
// Add method; this package never imports the metrics package directly, it
// just reports through whatever counter the caller wires in.
type ByteCounter interface {
	Add(float64)
}

// SenderThread reads framed bytes from the local outbound pipe, optionally
// encrypts them, and pushes them to the reliable UDP socket (spec §4.4).
// It registers itself under the Transport class and unregisters on exit.
// sent, if non-nil, is incremented by the payload byte count of every
// successful send.
func SenderThread(reg *registry.Registry, log *logrus.Entry, pipeIn io.Reader, conn net.Conn, pool *crypto.Pool, sent ByteCounter) error {
	h, err := reg.Spawn("sender_thread", registry.Transport)
	if err != nil {
		return err
	}
	defer reg.Unregister(h)

	scratch := make([]byte, frame.BlockPayloadLen)
	cipherBuf := make([]byte, frame.BlockPayloadLen)

	for {
		if reg.ShouldExit(registry.Transport) {
			return nil
		}

		n, readErr := pipeIn.Read(scratch)
		if n > 0 {
			if err := sendOne(conn, pool, cipherBuf, scratch[:n]); err != nil {
				log.WithError(err).Error("sender_thread: send failed")
				reg.BeginShutdown()
				return err
			}
			if sent != nil {
				sent.Add(float64(n))
			}
		}
		if readErr != nil {
			if readErr == io.EOF {
				log.Debug("sender_thread: local pipe closed")
				return nil
			}
			log.WithError(readErr).Error("sender_thread: pipe read failed")
			reg.BeginShutdown()
			return readErr
		}
	}
}

// sendOne encrypts (if pool != nil) and transmits one chunk read from the
// local pipe, retrying short writes until the whole frame is out. The
// 4-byte length prefix carries the payload length and is always sent in
// the clear; only the payload bytes that follow it are ever encrypted
// (spec §4.4: "the next block length, not the transferred length").
func sendOne(conn net.Conn, pool *crypto.Pool, cipherBuf, payload []byte) error {
	if pool == nil {
		return writeFull(conn, payload)
	}

	blob := cipherBuf[:len(payload)]
	copy(blob, payload)
	if err := pool.Process(blob); err != nil {
		return err
	}

	var lenBuf [lengthPrefixLen]byte
	binary.LittleEndian.PutUint32(lenBuf[:], uint32(len(payload)))
	if err := writeFull(conn, lenBuf[:]); err != nil {
		return err
	}
	return writeFull(conn, blob)
}

// writeFull retries short writes until buf is fully sent, treating any
// socket error as terminal (spec §4.4, §7).
func writeFull(w io.Writer, buf []byte) error {
	for len(buf) > 0 {
		n, err := w.Write(buf)
		if err != nil {
			return ErrConnectionLost
		}
		buf = buf[n:]
	}
	return nil
}
