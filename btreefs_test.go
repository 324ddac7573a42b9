package btreefs_test

import (
	"bytes"
	"crypto/rand"
	"os"
	"path/filepath"
	"testing"

	"github.com/Layman806/Btreefilesystem"
)

func newImage(t *testing.T, size int64) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "image.fs")
	if err := btreefs.Format(path, "test", btreefs.WithSize(size)); err != nil {
		t.Fatalf("Format: %s", err)
	}
	return path
}

func mustMount(t *testing.T, path string) *btreefs.Session {
	t.Helper()
	s, err := btreefs.Mount(path)
	if err != nil {
		t.Fatalf("Mount: %s", err)
	}
	return s
}

// S1: format a 1 MiB image, list(1) is empty.
func TestFormatEmptyRootListing(t *testing.T) {
	path := newImage(t, 1<<20)
	s := mustMount(t, path)
	defer s.Close()

	entries, err := s.List(1)
	if err != nil {
		t.Fatalf("List(1): %s", err)
	}
	if len(entries) != 0 {
		t.Errorf("expected empty root listing, got %d entries", len(entries))
	}
}

// S2: mkdir "a" and "b" under root, list(1) returns both, both type dir.
func TestMkdirListing(t *testing.T) {
	path := newImage(t, 1<<20)
	s := mustMount(t, path)
	defer s.Close()

	if _, err := s.Mkdir("a", 1); err != nil {
		t.Fatalf("Mkdir a: %s", err)
	}
	if _, err := s.Mkdir("b", 1); err != nil {
		t.Fatalf("Mkdir b: %s", err)
	}

	entries, err := s.List(1)
	if err != nil {
		t.Fatalf("List(1): %s", err)
	}

	var names []string
	for _, e := range entries {
		names = append(names, e.Name)
		if e.Type != btreefs.EntryDir {
			t.Errorf("entry %q: expected dir, got %s", e.Name, e.Type)
		}
	}
	if len(names) != 2 || names[0] != "a" || names[1] != "b" {
		t.Errorf("expected [a b], got %v", names)
	}
}

// S3: create 400 files under root, count and force at least one split.
func TestBulkCreateForcesSplit(t *testing.T) {
	path := newImage(t, 16<<20)
	s := mustMount(t, path)
	defer s.Close()

	const n = 400
	for i := 0; i < n; i++ {
		name := "f" + itoa(i)
		if _, err := s.Create(name, 1, btreefs.EntryFile); err != nil {
			t.Fatalf("Create %s: %s", name, err)
		}
	}

	entries, err := s.List(1)
	if err != nil {
		t.Fatalf("List(1): %s", err)
	}
	if len(entries) != n {
		t.Fatalf("expected %d entries, got %d", n, len(entries))
	}
}

// S4: import/extract a small file, verify byte equality and stat fields.
func TestImportExtractSmall(t *testing.T) {
	path := newImage(t, 4<<20)
	s := mustMount(t, path)
	defer s.Close()

	data := make([]byte, 5000)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand.Read: %s", err)
	}
	hostIn := filepath.Join(t.TempDir(), "x")
	if err := os.WriteFile(hostIn, data, 0o644); err != nil {
		t.Fatalf("WriteFile: %s", err)
	}

	size, err := s.Import(hostIn, 1, "x")
	if err != nil {
		t.Fatalf("Import: %s", err)
	}
	if size != int64(len(data)) {
		t.Errorf("Import returned size %d, want %d", size, len(data))
	}

	hostOut := filepath.Join(t.TempDir(), "y")
	outSize, err := s.Extract(1, "x", hostOut)
	if err != nil {
		t.Fatalf("Extract: %s", err)
	}
	if outSize != int64(len(data)) {
		t.Errorf("Extract returned size %d, want %d", outSize, len(data))
	}

	got, err := os.ReadFile(hostOut)
	if err != nil {
		t.Fatalf("ReadFile: %s", err)
	}
	if !bytes.Equal(got, data) {
		t.Errorf("extracted content mismatch")
	}
}

// S6: creating the same (name, type) twice under the same parent fails.
func TestCreateDuplicateRejected(t *testing.T) {
	path := newImage(t, 1<<20)
	s := mustMount(t, path)
	defer s.Close()

	if _, err := s.Create("a", 1, btreefs.EntryFile); err != nil {
		t.Fatalf("first Create: %s", err)
	}
	if _, err := s.Create("a", 1, btreefs.EntryFile); err != btreefs.ErrExists {
		t.Errorf("expected ErrExists, got %v", err)
	}
}

func itoa(i int) string {
	if i == 0 {
		return "0"
	}
	neg := i < 0
	if neg {
		i = -i
	}
	var buf [20]byte
	pos := len(buf)
	for i > 0 {
		pos--
		buf[pos] = byte('0' + i%10)
		i /= 10
	}
	if neg {
		pos--
		buf[pos] = '-'
	}
	return string(buf[pos:])
}
