package walker

// FileList is an ordered, append-only sequence of FileEntry (spec §3): "an
// ordered sequence of FileEntry with head, tail, and count." A slice gives
// us exactly that shape — append-only growth, forward-only range
// iteration, O(1) length — without hand-rolling a linked list the stdlib
// slice already models. The list owns its entries: nothing outside this
// package should mutate one in place after Append.
type FileList struct {
	entries []*FileEntry
}

// NewFileList returns an empty list.
func NewFileList() *FileList {
	return &FileList{}
}

// Append adds an entry to the tail of the list.
func (l *FileList) Append(e *FileEntry) {
	l.entries = append(l.entries, e)
}

// Len returns the count of entries.
func (l *FileList) Len() int {
	return len(l.entries)
}

// Head returns the first entry, or nil if the list is empty.
func (l *FileList) Head() *FileEntry {
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[0]
}

// Tail returns the last entry, or nil if the list is empty.
func (l *FileList) Tail() *FileEntry {
	if len(l.entries) == 0 {
		return nil
	}
	return l.entries[len(l.entries)-1]
}

// All returns the entries in insertion order. Callers must treat the
// returned slice as read-only.
func (l *FileList) All() []*FileEntry {
	return l.entries
}

// Find returns the first entry whose RelativePath matches relPath, or nil.
// Used by the sender driver to look an entry up in the responder's
// pre-flight manifest (spec §4.6).
func (l *FileList) Find(relPath string) *FileEntry {
	for _, e := range l.entries {
		if e.RelativePath() == relPath {
			return e
		}
	}
	return nil
}
