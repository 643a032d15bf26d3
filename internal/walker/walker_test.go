package walker

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWalkDirectoryTree(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.MkdirAll(filepath.Join(root, "sub"), 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(root, "x"), []byte("abc"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(root, "sub", "y"), nil, 0o644))

	list, err := Walk([]string{root}, Options{})
	require.NoError(t, err)

	var kinds []Kind
	for _, e := range list.All() {
		kinds = append(kinds, e.Kind)
	}
	assert.Contains(t, kinds, Directory)
	assert.Contains(t, kinds, Regular)

	x := findByPath(list, filepath.Join(root, "x"))
	require.NotNil(t, x)
	assert.Equal(t, int64(3), x.Size)
	assert.Equal(t, "x", x.RelativePath())
}

func findByPath(list *FileList, path string) *FileEntry {
	for _, e := range list.All() {
		if e.Path == path {
			return e
		}
	}
	return nil
}

func TestPackUnpackRoundTrip(t *testing.T) {
	list := NewFileList()
	list.Append(&FileEntry{Path: "/src/a", Root: "/src", Kind: Regular, Size: 10, MtimeSec: 5, MtimeNsec: 6})
	list.Append(&FileEntry{Path: "/src/sub", Root: "/src", Kind: Directory})

	var buf bytes.Buffer
	require.NoError(t, Pack(&buf, list))

	got, err := Unpack(&buf)
	require.NoError(t, err)
	require.Equal(t, list.Len(), got.Len())
	assert.Equal(t, list.All()[0].Path, got.All()[0].Path)
	assert.Equal(t, list.All()[0].Size, got.All()[0].Size)
}

func TestCheckpointResumeSkipsUnchangedFiles(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "t.log")

	f, err := OpenCheckpointLog(logPath)
	require.NoError(t, err)
	entry := &FileEntry{Path: "/src/x", Root: "/src", Kind: Regular, MtimeSec: 100}
	require.NoError(t, AppendEntry(f, entry))
	require.NoError(t, f.Close())

	cs, err := LoadCheckpoint(logPath)
	require.NoError(t, err)

	assert.True(t, cs.IsInCheckpoint(entry))

	modified := &FileEntry{Path: "/src/x", Root: "/src", Kind: Regular, MtimeSec: 200}
	assert.False(t, cs.IsInCheckpoint(modified))

	cs.IgnoreModification = true
	assert.True(t, cs.IsInCheckpoint(modified))
}

func TestLoadCheckpointMissingFileIsEmpty(t *testing.T) {
	cs, err := LoadCheckpoint(filepath.Join(t.TempDir(), "missing.log"))
	require.NoError(t, err)
	assert.False(t, cs.IsInCheckpoint(&FileEntry{Path: "/x", Root: "/"}))
}

func TestLoadCheckpointStopsAtMalformedLine(t *testing.T) {
	dir := t.TempDir()
	logPath := filepath.Join(dir, "t.log")
	require.NoError(t, os.WriteFile(logPath, []byte("a 1\nb 2\nnotanumber\nc 3\n"), 0o644))

	cs, err := LoadCheckpoint(logPath)
	require.NoError(t, err)
	assert.True(t, cs.IsInCheckpoint(&FileEntry{Path: "a", Root: "", MtimeSec: 1}))
	assert.True(t, cs.IsInCheckpoint(&FileEntry{Path: "b", Root: "", MtimeSec: 2}))
	assert.False(t, cs.IsInCheckpoint(&FileEntry{Path: "c", Root: "", MtimeSec: 3}))
}
