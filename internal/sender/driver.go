// Package sender implements the sender protocol driver (spec §4.6): it
// walks the local FileList in order, issuing DIRNAME/FILENAME/F_SIZE/
// DATA/DATA_COMPLETE frames, then waits for the receiver's COMPLETE ack.
package sender

import (
	"fmt"
	"io"
	"os"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/fluxcp/fluxcp/internal/frame"
	"github.com/fluxcp/fluxcp/internal/walker"
)

// Options configures driver behavior per the CLI surface (spec §6).
type Options struct {
	AllFiles bool // send character devices and FIFOs instead of skipping them
}

// Driver drives the local FileList across the outbound pipe.
type Driver struct {
	Out         io.Writer
	In          io.Reader
	Checkpoints *walker.CheckpointSet
	CheckpointW io.Writer // nil disables checkpoint logging
	Opt         Options
	Log         *logrus.Entry

	block *frame.Block
}

// Run streams local in walker order against remote (the pre-flight
// manifest, or nil if the pre-flight is disabled), then emits COMPLETE and
// blocks for the receiver's CONTROL(ACK).
func (d *Driver) Run(local *walker.FileList, remote *walker.FileList) error {
	d.block = frame.NewBlock()

	for _, entry := range local.All() {
		if err := d.sendEntry(entry, remote); err != nil {
			return err
		}
	}

	if err := frame.WriteHeader(d.Out, frame.NewDataHeader(frame.Complete, 0)); err != nil {
		return fmt.Errorf("sender: write COMPLETE: %w", err)
	}
	return d.awaitAck()
}

func (d *Driver) sendEntry(entry *walker.FileEntry, remote *walker.FileList) error {
	switch entry.Kind {
	case walker.Directory:
		return d.sendDirname(entry)
	case walker.Regular:
		return d.sendRegularFile(entry, remote)
	case walker.CharDevice, walker.Fifo:
		if d.Opt.AllFiles {
			return d.sendRegularFile(entry, remote)
		}
		d.Log.Warnf("sender: skipping %s (%s); pass --all-files to send it", entry.Path, entry.Kind)
		return nil
	default:
		d.Log.Warnf("sender: skipping %s (%s): unsupported kind", entry.Path, entry.Kind)
		return nil
	}
}

func (d *Driver) sendDirname(entry *walker.FileEntry) error {
	path := append([]byte(entry.RelativePath()), 0)
	return d.writeHeaderAndPayload(frame.Dirname, path, 0, 0)
}

func (d *Driver) sendRegularFile(entry *walker.FileEntry, remote *walker.FileList) error {
	if d.skip(entry, remote) {
		d.Log.Infof("sender: skipping %s (already transferred)", entry.RelativePath())
		return nil
	}

	f, err := os.Open(entry.Path)
	if err != nil {
		return fmt.Errorf("sender: open %s: %w", entry.Path, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return fmt.Errorf("sender: stat %s: %w", entry.Path, err)
	}
	size := fi.Size()

	relPath := append([]byte(entry.RelativePath()), 0)
	if err := d.writeHeaderAndPayload(frame.Filename, relPath, entry.MtimeSec, entry.MtimeNsec); err != nil {
		return err
	}

	if err := d.writeUint64Frame(frame.FSize, uint64(size)); err != nil {
		return err
	}

	if d.Log.Logger.IsLevelEnabled(logrus.DebugLevel) {
		d.Log.Debugf("sender: sending %s (%d bytes)", entry.RelativePath(), size)
	}

	start := time.Now()
	if err := d.streamFile(f); err != nil {
		return err
	}

	if err := frame.WriteHeader(d.Out, frame.NewDataHeader(frame.DataComplete, 0)); err != nil {
		return fmt.Errorf("sender: write DATA_COMPLETE: %w", err)
	}
	d.Log.Debugf("sender: sent %s (%d bytes) in %s", entry.RelativePath(), size, time.Since(start))

	if d.CheckpointW != nil {
		if err := walker.AppendEntry(d.CheckpointW, entry); err != nil {
			d.Log.WithError(err).Warn("sender: failed to append checkpoint entry")
		}
	}
	return nil
}

// streamFile reads entry's content to EOF and emits it as successive DATA
// frames of up to BlockPayloadLen (spec §4.6). A file whose size changes
// between the F_SIZE frame and EOF is still transmitted in full and
// terminated by DATA_COMPLETE; the receiver truncates to the F_SIZE value.
func (d *Driver) streamFile(f *os.File) error {
	for {
		n, err := f.Read(d.block.Data[:frame.BlockPayloadLen])
		if n > 0 {
			h := frame.NewDataHeader(frame.Data, uint64(n))
			if werr := frame.WriteBlock(d.Out, d.block, h, n); werr != nil {
				return fmt.Errorf("sender: write DATA: %w", werr)
			}
		}
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("sender: read %s: %w", f.Name(), err)
		}
	}
}

// skip reports whether entry should not be retransmitted: it's already in
// the checkpoint log, or the remote pre-flight manifest carries a matching
// (path, mtime) (spec §4.6).
func (d *Driver) skip(entry *walker.FileEntry, remote *walker.FileList) bool {
	if d.Checkpoints != nil && d.Checkpoints.IsInCheckpoint(entry) {
		return true
	}
	if remote == nil {
		return false
	}
	other := remote.Find(entry.RelativePath())
	return other != nil && other.MtimeSec == entry.MtimeSec
}

func (d *Driver) writeHeaderAndPayload(kind frame.Kind, payload []byte, mtimeSec uint32, mtimeNsec uint64) error {
	h := frame.Header{Kind: kind, DataLen: uint64(len(payload)), MtimeSec: mtimeSec, MtimeNsec: mtimeNsec}
	if err := frame.WriteHeader(d.Out, h); err != nil {
		return fmt.Errorf("sender: write %s header: %w", kind, err)
	}
	if _, err := d.Out.Write(payload); err != nil {
		return fmt.Errorf("sender: write %s payload: %w", kind, err)
	}
	return nil
}

func (d *Driver) writeUint64Frame(kind frame.Kind, v uint64) error {
	var payload [8]byte
	for i := 0; i < 8; i++ {
		payload[i] = byte(v >> (8 * i))
	}
	return d.writeHeaderAndPayload(kind, payload[:], 0, 0)
}

// awaitAck blocks until a CONTROL(ACK) frame arrives on the inbound pipe,
// per spec §4.6.
func (d *Driver) awaitAck() error {
	for {
		h, err := frame.ReadHeader(d.In)
		if err != nil {
			return fmt.Errorf("sender: await ack: %w", err)
		}
		if h.Kind == frame.Control && h.CtrlMsg == frame.Ack {
			return nil
		}
	}
}
