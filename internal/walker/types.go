// Package walker implements directory traversal, the FileList data model,
// its wire packing for the pre-flight exchange, and the checkpoint log
// (spec §3, §4.5). Grounded in the teacher's backend/local, which walks
// and stats the local filesystem the same way (stat-derived Kind, symlink
// handling, mtime in (sec, nsec) resolution).
package walker

import "time"

// Kind is the filesystem entry kind, set once at construction from a stat
// observation (spec §3: "kind is set once, at construction").
type Kind int

const (
	Regular Kind = iota
	Directory
	Symlink
	BlockDevice
	CharDevice
	Fifo
	Socket
	Unknown
)

func (k Kind) String() string {
	switch k {
	case Regular:
		return "regular"
	case Directory:
		return "directory"
	case Symlink:
		return "symlink"
	case BlockDevice:
		return "block-device"
	case CharDevice:
		return "character-device"
	case Fifo:
		return "fifo"
	case Socket:
		return "socket"
	default:
		return "unknown"
	}
}

// FileEntry is one observed filesystem entry (spec §3). Root is the
// top-level path the walker started from; the relative destination is
// derived by stripping Root (plus one separator) from Path, unless
// FullRoot is set, in which case the absolute Path is preserved verbatim.
type FileEntry struct {
	Path      string
	Root      string
	FullRoot  bool
	Kind      Kind
	Size      int64
	MtimeSec  uint32
	MtimeNsec uint64
}

// ModTime returns the entry's modification time at nanosecond resolution.
func (e *FileEntry) ModTime() time.Time {
	return time.Unix(int64(e.MtimeSec), int64(e.MtimeNsec))
}

// RelativePath is the destination path the sender announces in a
// FILENAME/DIRNAME frame: the full path in full-root mode, otherwise Path
// with Root and one separator stripped (spec §4.6).
func (e *FileEntry) RelativePath() string {
	if e.FullRoot {
		return e.Path
	}
	rel := e.Path[len(e.Root):]
	for len(rel) > 0 && rel[0] == '/' {
		rel = rel[1:]
	}
	return rel
}
