package btreefs

import "errors"

// Package-specific error variables that can be used with errors.Is() for error handling.
var (
	// ErrInvalidMagic is returned when the superblock signature does not match.
	ErrInvalidMagic = errors.New("btreefs: invalid or missing superblock magic")

	// ErrInvalidSize is returned when the backing file is too small to hold
	// a superblock, its mirror, the free bitmap, and at least one inode block.
	ErrInvalidSize = errors.New("btreefs: backing file too small for image layout")

	// ErrNoSpace is returned when the free-block bitmap has no more free blocks.
	ErrNoSpace = errors.New("btreefs: no free blocks left in image")

	// ErrNoInodes is returned when the inode table has no free slots left.
	ErrNoInodes = errors.New("btreefs: no free inodes left in image")

	// ErrExists is returned by Create/Mkdir when an entry with the same
	// (parent, name, type) already exists.
	ErrExists = errors.New("btreefs: entry already exists")

	// ErrNotFound is returned when a lookup required for an operation misses.
	ErrNotFound = errors.New("btreefs: entry not found")

	// ErrNotDirectory is returned when a directory-only operation targets a file.
	ErrNotDirectory = errors.New("btreefs: not a directory")

	// ErrClosed is returned by Close when the session is already closed.
	ErrClosed = errors.New("btreefs: session is closed")
)
