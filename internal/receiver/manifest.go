package receiver

import (
	"os"
	"path/filepath"

	"github.com/fluxcp/fluxcp/internal/walker"
)

// StatManifest builds the responder's half of the pre-flight FILELIST
// exchange (spec.md §2 item 5, §4.7's FILELIST row): for every regular,
// character-device or FIFO entry the sender announced, stat the
// corresponding path under destRoot and, if anything other than a
// directory already sits there, report its current size and mtime back.
// Entries with no existing destination file are left out of the result
// entirely, so the sender's Driver.skip (which calls FileList.Find) always
// decides to transfer them rather than comparing against a fabricated
// zero-value mtime.
func StatManifest(destRoot string, remote *walker.FileList) *walker.FileList {
	result := walker.NewFileList()
	for _, entry := range remote.All() {
		switch entry.Kind {
		case walker.Regular, walker.CharDevice, walker.Fifo:
		default:
			continue
		}

		relPath := entry.RelativePath()
		fi, err := os.Stat(filepath.Join(destRoot, relPath))
		if err != nil || fi.IsDir() {
			continue
		}

		mt := fi.ModTime()
		result.Append(&walker.FileEntry{
			Path:      relPath,
			FullRoot:  true,
			Kind:      entry.Kind,
			Size:      fi.Size(),
			MtimeSec:  uint32(mt.Unix()),
			MtimeNsec: uint64(mt.Nanosecond()),
		})
	}
	return result
}
