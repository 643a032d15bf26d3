package transport

import (
	"encoding/binary"
	"io"
	"net"

	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/crypto"
	"github.com/fluxcp/fluxcp/internal/frame"
	"github.com/fluxcp/fluxcp/internal/registry"
)

// ReceiverThread pulls bytes from the reliable UDP socket, optionally
// decrypts them, and writes framed bytes into the local inbound pipe (spec
// §4.4). progressed is raised on every successful read so Watchdog can
// detect stalls. received, if non-nil, is incremented by the payload byte
// count of every successful read.
func ReceiverThread(reg *registry.Registry, log *logrus.Entry, conn net.Conn, pipeOut io.Writer, pool *crypto.Pool, progressed *Sentinel, received ByteCounter) error {
	h, err := reg.Spawn("receiver_thread", registry.Transport)
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

		var payload []byte
		var err error
		if pool != nil {
			payload, err = recvEncrypted(conn, pool, cipherBuf)
		} else {
			payload, err = recvPlain(conn, scratch)
		}
		if err != nil {
			if err == io.EOF {
				log.Debug("receiver_thread: connection closed")
				return nil
			}
			log.WithError(err).Error("receiver_thread: recv failed")
			reg.BeginShutdown()
			return err
		}
		if len(payload) == 0 {
			continue
		}
		if _, err := pipeOut.Write(payload); err != nil {
			log.WithError(err).Error("receiver_thread: local pipe write failed")
			reg.BeginShutdown()
			return err
		}
		if received != nil {
			received.Add(float64(len(payload)))
		}
		progressed.Raise()
	}
}

// recvEncrypted reads the clear-text 4-byte payload-length prefix, then
// reads exactly that many (encrypted) bytes and decrypts them in place
// (spec §4.4: "read exactly 4 bytes for the next block length (not the
// transferred length)" — the length field itself is never encrypted).
func recvEncrypted(conn net.Conn, pool *crypto.Pool, cipherBuf []byte) ([]byte, error) {
	var lenBuf [lengthPrefixLen]byte
	if err := readFull(conn, lenBuf[:]); err != nil {
		return nil, err
	}
	payloadLen := binary.LittleEndian.Uint32(lenBuf[:])
	if int(payloadLen) > len(cipherBuf) {
		return nil, ErrConnectionLost
	}
	blob := cipherBuf[:payloadLen]
	if err := readFull(conn, blob); err != nil {
		return nil, err
	}
	if err := pool.Process(blob); err != nil {
		return nil, err
	}
	return blob, nil
}

// recvPlain reads whatever is available up to len(scratch) and returns it
// verbatim: with encryption off there is no wire framing, only a raw byte
// relay (spec §4.4).
func recvPlain(conn net.Conn, scratch []byte) ([]byte, error) {
	n, err := conn.Read(scratch)
	if n > 0 {
		return scratch[:n], nil
	}
	if err != nil {
		if err == io.EOF {
			return nil, io.EOF
		}
		return nil, ErrConnectionLost
	}
	return nil, nil
}

func readFull(r io.Reader, buf []byte) error {
	_, err := io.ReadFull(r, buf)
	if err != nil {
		if err == io.EOF || err == io.ErrUnexpectedEOF {
			return io.EOF
		}
		return ErrConnectionLost
	}
	return nil
}
