// Package receiver implements the receiver protocol driver (spec §4.7): a
// state machine dispatching on the frame kind read from the inbound pipe,
// materializing directories and files under a destination root.
package receiver

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/frame"
)

// state names the receiver's expectation for the next frame (spec §4.7).
type state int

const (
	stateIdle state = iota
	stateExpectSizePayload
	stateExpectData
	stateDone
)

// Driver drives frames off the inbound pipe into the destination tree.
type Driver struct {
	Out  io.Writer // acked control frames go back to the sender
	In   io.Reader
	Root string
	Log  *logrus.Entry

	state        state
	block        *frame.Block
	curPath      string
	curMtimeSec  uint32
	curMtimeNsec uint64
	curSize      int64
	curFile      *os.File
	written      int64
}

// Run processes frames until COMPLETE, acknowledges it, and returns.
func (d *Driver) Run() error {
	d.block = frame.NewBlock()
	d.state = stateIdle

	for d.state != stateDone {
		h, err := frame.ReadHeader(d.In)
		if err == io.EOF {
			return fmt.Errorf("receiver: connection closed before COMPLETE")
		}
		if err != nil {
			return err
		}
		if err := d.dispatch(h); err != nil {
			return err
		}
	}
	return nil
}

func (d *Driver) dispatch(h frame.Header) error {
	switch h.Kind {
	case frame.Dirname:
		return d.handleDirname(h)
	case frame.Filename:
		return d.handleFilename(h)
	case frame.FSize:
		return d.handleFSize(h)
	case frame.Data:
		return d.handleData(h)
	case frame.DataComplete:
		return d.handleDataComplete()
	case frame.Complete:
		return d.handleComplete()
	case frame.FileList:
		return d.handleFileList(h)
	case frame.Control:
		d.Log.Debugf("receiver: ignoring unsolicited CONTROL(%s)", h.CtrlMsg)
		return nil
	default:
		d.Log.Warnf("receiver: ignoring unrecognized frame kind %s", h.Kind)
		return d.discardPayload(h)
	}
}

func (d *Driver) handleDirname(h frame.Header) error {
	path, err := d.readPath(h)
	if err != nil {
		return err
	}
	dest := filepath.Join(d.Root, path)
	if err := mkdirParents(dest); err != nil {
		return fmt.Errorf("receiver: mkdir %s: %w", dest, err)
	}
	d.Log.Debugf("receiver: created directory %s", dest)
	return nil
}

func (d *Driver) handleFilename(h frame.Header) error {
	path, err := d.readPath(h)
	if err != nil {
		return err
	}
	d.curPath = path
	d.curMtimeSec = h.MtimeSec
	d.curMtimeNsec = h.MtimeNsec
	d.state = stateExpectSizePayload
	return nil
}

func (d *Driver) handleFSize(h frame.Header) error {
	if h.DataLen != 8 {
		return fmt.Errorf("receiver: F_SIZE payload must be 8 bytes, got %d", h.DataLen)
	}
	var buf [8]byte
	if err := frame.ReadData(d.In, buf[:], 8); err != nil {
		return fmt.Errorf("receiver: read F_SIZE payload: %w", err)
	}
	var size uint64
	for i := 7; i >= 0; i-- {
		size = size<<8 | uint64(buf[i])
	}
	d.curSize = int64(size)

	dest := filepath.Join(d.Root, d.curPath)
	if err := mkdirParents(filepath.Dir(dest)); err != nil {
		return fmt.Errorf("receiver: mkdir parents for %s: %w", dest, err)
	}
	f, err := os.OpenFile(dest, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, 0o644)
	if err != nil {
		return fmt.Errorf("receiver: create %s: %w", dest, err)
	}
	d.curFile = f
	d.written = 0
	d.state = stateExpectData
	return nil
}

func (d *Driver) handleData(h frame.Header) error {
	if d.curFile == nil {
		return fmt.Errorf("receiver: DATA frame with no open destination file")
	}
	n := int(h.DataLen)
	if err := frame.ReadData(d.In, d.block.Data[:n], n); err != nil {
		return fmt.Errorf("receiver: read DATA payload: %w", err)
	}
	if _, err := d.curFile.Write(d.block.Data[:n]); err != nil {
		return fmt.Errorf("receiver: write %s: %w", d.curPath, err)
	}
	d.written += int64(n)
	return nil
}

// handleDataComplete closes the current file, truncating it to the F_SIZE
// announced earlier (spec §4.7: "truncate to the announced size on
// DATA_COMPLETE," covering senders whose file shrank mid-transfer) and
// restores its modification time.
func (d *Driver) handleDataComplete() error {
	if d.curFile == nil {
		return fmt.Errorf("receiver: DATA_COMPLETE with no open destination file")
	}
	if d.written != d.curSize {
		if err := d.curFile.Truncate(d.curSize); err != nil {
			return fmt.Errorf("receiver: truncate %s: %w", d.curPath, err)
		}
	}
	path := d.curFile.Name()
	if err := d.curFile.Close(); err != nil {
		return fmt.Errorf("receiver: close %s: %w", path, err)
	}
	mt := time.Unix(int64(d.curMtimeSec), int64(d.curMtimeNsec))
	if err := os.Chtimes(path, mt, mt); err != nil {
		d.Log.WithError(err).Warnf("receiver: failed to restore mtime on %s", path)
	}
	d.Log.Infof("receiver: received %s (%d bytes)", d.curPath, d.written)
	d.curFile = nil
	d.state = stateIdle
	return nil
}

func (d *Driver) handleComplete() error {
	d.state = stateDone
	return frame.WriteHeader(d.Out, frame.NewControlHeader(frame.Ack))
}

// handleFileList drains and discards a FILELIST payload seen mid-stream.
// The real pre-flight manifest exchange (StatManifest) runs once, over the
// data connection, before Driver.Run is ever called; a FILELIST
// reaching the running driver is a resend or a protocol error from an
// older peer. Drain it rather than desyncing the stream.
func (d *Driver) handleFileList(h frame.Header) error {
	d.Log.Warnf("receiver: ignoring unexpected FILELIST frame mid-stream")
	return d.discardPayload(h)
}

func (d *Driver) discardPayload(h frame.Header) error {
	if h.DataLen == 0 {
		return nil
	}
	_, err := io.CopyN(io.Discard, d.In, int64(h.DataLen))
	return err
}

func (d *Driver) readPath(h frame.Header) (string, error) {
	buf := make([]byte, h.DataLen)
	if err := frame.ReadData(d.In, buf, int(h.DataLen)); err != nil {
		return "", fmt.Errorf("receiver: read path payload: %w", err)
	}
	if n := len(buf); n > 0 && buf[n-1] == 0 {
		buf = buf[:n-1]
	}
	return string(buf), nil
}

// mkdirParents creates path and all missing parents, tolerating EEXIST
// (spec §4.7) the way os.MkdirAll already does.
func mkdirParents(path string) error {
	return os.MkdirAll(path, 0o755)
}
