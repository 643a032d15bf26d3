package walker

import (
	"encoding/binary"
	"fmt"
	"io"
)

// Pack serializes list as a length-prefixed sequence of records: for each
// entry, (path-length, path, root-length, root, kind, size, mtime-sec,
// mtime-nsec) (spec §4.5). Used for the pre-flight FILELIST exchange.
func Pack(w io.Writer, list *FileList) error {
	entries := list.All()
	if err := writeUint32(w, uint32(len(entries))); err != nil {
		return err
	}
	for _, e := range entries {
		if err := packEntry(w, e); err != nil {
			return err
		}
	}
	return nil
}

func packEntry(w io.Writer, e *FileEntry) error {
	if err := writeString(w, e.Path); err != nil {
		return err
	}
	if err := writeString(w, e.Root); err != nil {
		return err
	}
	if err := writeUint32(w, uint32(e.Kind)); err != nil {
		return err
	}
	if err := writeUint64(w, uint64(e.Size)); err != nil {
		return err
	}
	if err := writeUint32(w, e.MtimeSec); err != nil {
		return err
	}
	return writeUint64(w, e.MtimeNsec)
}

// Unpack is the inverse of Pack.
func Unpack(r io.Reader) (*FileList, error) {
	count, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	list := NewFileList()
	for i := uint32(0); i < count; i++ {
		e, err := unpackEntry(r)
		if err != nil {
			return nil, fmt.Errorf("walker: unpack entry %d: %w", i, err)
		}
		list.Append(e)
	}
	return list, nil
}

func unpackEntry(r io.Reader) (*FileEntry, error) {
	path, err := readString(r)
	if err != nil {
		return nil, err
	}
	root, err := readString(r)
	if err != nil {
		return nil, err
	}
	kind, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	size, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	mtimeSec, err := readUint32(r)
	if err != nil {
		return nil, err
	}
	mtimeNsec, err := readUint64(r)
	if err != nil {
		return nil, err
	}
	return &FileEntry{
		Path:      path,
		Root:      root,
		Kind:      Kind(kind),
		Size:      int64(size),
		MtimeSec:  mtimeSec,
		MtimeNsec: mtimeNsec,
	}, nil
}

func writeUint32(w io.Writer, v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeUint64(w io.Writer, v uint64) error {
	var b [8]byte
	binary.LittleEndian.PutUint64(b[:], v)
	_, err := w.Write(b[:])
	return err
}

func writeString(w io.Writer, s string) error {
	if err := writeUint32(w, uint32(len(s))); err != nil {
		return err
	}
	_, err := io.WriteString(w, s)
	return err
}

func readUint32(r io.Reader) (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func readUint64(r io.Reader) (uint64, error) {
	var b [8]byte
	if _, err := io.ReadFull(r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b[:]), nil
}

func readString(r io.Reader) (string, error) {
	n, err := readUint32(r)
	if err != nil {
		return "", err
	}
	buf := make([]byte, n)
	if _, err := io.ReadFull(r, buf); err != nil {
		return "", err
	}
	return string(buf), nil
}
