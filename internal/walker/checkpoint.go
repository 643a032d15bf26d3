package walker

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// CheckpointSet maps a path to the modification time (seconds) observed
// the last time it was completed (spec §3). Populated from a prior
// transfer's log; consulted by the sender to skip unchanged files on
// resume.
type CheckpointSet struct {
	mtimeByPath map[string]int64
	// IgnoreModification makes IsInCheckpoint ignore the recorded mtime:
	// a path present in the log is always considered already transferred.
	IgnoreModification bool
}

// LoadCheckpoint parses path, greedily, stopping at the first malformed
// line (spec §6: "Parsed greedily until EOF; malformed lines terminate
// parsing"). A missing file is not an error: it just means no checkpoint
// exists yet.
func LoadCheckpoint(path string) (*CheckpointSet, error) {
	cs := &CheckpointSet{mtimeByPath: make(map[string]int64)}
	f, err := os.Open(path)
	if os.IsNotExist(err) {
		return cs, nil
	}
	if err != nil {
		return nil, fmt.Errorf("walker: open checkpoint %s: %w", path, err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	for scanner.Scan() {
		line := scanner.Text()
		p, mtime, ok := parseCheckpointLine(line)
		if !ok {
			break
		}
		cs.mtimeByPath[p] = mtime
	}
	return cs, nil
}

func parseCheckpointLine(line string) (path string, mtimeSec int64, ok bool) {
	idx := strings.LastIndex(line, " ")
	if idx < 0 || idx == len(line)-1 {
		return "", 0, false
	}
	mtime, err := strconv.ParseInt(line[idx+1:], 10, 64)
	if err != nil {
		return "", 0, false
	}
	return line[:idx], mtime, true
}

// IsInCheckpoint reports whether entry should be skipped: its path
// matches a checkpoint record and either the mtime matches or
// IgnoreModification is set (spec §4.5).
func (cs *CheckpointSet) IsInCheckpoint(e *FileEntry) bool {
	mtime, ok := cs.mtimeByPath[e.RelativePath()]
	if !ok {
		return false
	}
	return cs.IgnoreModification || mtime == int64(e.MtimeSec)
}

// AppendEntry appends one completed regular file to the checkpoint log, as
// "<path> <mtime-sec>\n" (spec §6).
func AppendEntry(w io.Writer, e *FileEntry) error {
	_, err := fmt.Fprintf(w, "%s %d\n", e.RelativePath(), e.MtimeSec)
	return err
}

// OpenCheckpointLog opens path for appending, creating it if necessary.
func OpenCheckpointLog(path string) (*os.File, error) {
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}
