package btreefs

import "io/fs"

// EntryType is the on-disk type tag stored in a stat block: exactly two
// kinds, directories and regular files.
type EntryType int32

const (
	// EntryDir marks a directory entry.
	EntryDir EntryType = 2
	// EntryFile marks a regular file entry.
	EntryFile EntryType = 4
)

func (t EntryType) String() string {
	switch t {
	case EntryDir:
		return "dir"
	case EntryFile:
		return "file"
	default:
		return "unknown"
	}
}

// IsDir reports whether t is EntryDir.
func (t EntryType) IsDir() bool {
	return t == EntryDir
}

// Mode returns the fs.FileMode bit for this type, with no permission
// bits set.
func (t EntryType) Mode() fs.FileMode {
	if t == EntryDir {
		return fs.ModeDir
	}
	return 0
}
