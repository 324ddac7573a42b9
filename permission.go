package btreefs

import "io/fs"

// defaultPerm is the permission triplet assigned to new entries when no
// explicit mode is given: owner rwx, group r-x, other r-x (spec.md §4.6).
var defaultPerm = [3]byte{7, 5, 5}

// permToMode converts a stored octal permission triplet (one octal digit
// per byte: owner, group, other) plus an entry type into an fs.FileMode,
// mirroring the teacher's UnixToMode.
func permToMode(perm [3]byte, t EntryType) fs.FileMode {
	res := fs.FileMode(perm[0])<<6 | fs.FileMode(perm[1])<<3 | fs.FileMode(perm[2])
	res |= t.Mode()
	return res
}

// modeToPerm extracts the octal permission triplet from an fs.FileMode,
// mirroring the teacher's ModeToUnix.
func modeToPerm(mode fs.FileMode) [3]byte {
	perm := mode.Perm()
	return [3]byte{
		byte(perm>>6) & 07,
		byte(perm>>3) & 07,
		byte(perm) & 07,
	}
}
