package receiver

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxcp/fluxcp/internal/walker"
)

func TestStatManifestReportsExistingFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "present.txt"), []byte("hi"), 0o644))
	mt := time.Unix(1_700_000_000, 0)
	require.NoError(t, os.Chtimes(filepath.Join(root, "present.txt"), mt, mt))

	remote := walker.NewFileList()
	remote.Append(&walker.FileEntry{Path: "present.txt", FullRoot: true, Kind: walker.Regular})
	remote.Append(&walker.FileEntry{Path: "missing.txt", FullRoot: true, Kind: walker.Regular})

	reply := StatManifest(root, remote)

	present := reply.Find("present.txt")
	require.NotNil(t, present)
	assert.Equal(t, uint32(1_700_000_000), present.MtimeSec)
	assert.Equal(t, int64(2), present.Size)

	assert.Nil(t, reply.Find("missing.txt"))
}

func TestStatManifestSkipsDirectoriesAndUnsupportedKinds(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(root, "sub"), 0o755))

	remote := walker.NewFileList()
	remote.Append(&walker.FileEntry{Path: "sub", FullRoot: true, Kind: walker.Directory})

	reply := StatManifest(root, remote)
	assert.Equal(t, 0, reply.Len())
}
