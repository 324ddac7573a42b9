package btreefs

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io/fs"
	"reflect"
	"time"
)

// timeFieldSize is the fixed width of each of the three textual
// timestamp fields, matching the original C source's 25-byte
// asctime()-style "Www Mmm dd hh:mm:ss yyyy\n" buffers (24 chars plus
// the trailing newline/NUL).
const timeFieldSize = 25

const timeLayout = "Mon Jan  2 15:04:05 2006"

// rootDirID is the id of the filesystem root directory.
const rootDirID uint32 = 1

// defaultUID and defaultGID are the owners stamped onto every new entry.
const (
	defaultUID uint16 = 1000
	defaultGID uint16 = 100
)

// Key identifies one B+ tree entry: all entries under the same
// directory share DirID, and ID is the entry's own unique id.
type Key struct {
	DirID uint32
	ID    uint32
}

// less reports whether k sorts before other, by (DirID, ID) composite
// ordering.
func (k Key) less(other Key) bool {
	if k.DirID != other.DirID {
		return k.DirID < other.DirID
	}
	return k.ID < other.ID
}

func (k Key) equal(other Key) bool {
	return k.DirID == other.DirID && k.ID == other.ID
}

// statBlock is the per-entry metadata record: one 4096-byte block per
// directory or file entry, pointed to by f[0] of the inode that the
// B+ tree leaf link for that entry's key names.
type statBlock struct {
	K              Key
	Inode          Offset
	Type           EntryType
	LastBlock      int32
	LastBlockBytes int32
	UID            uint16
	GID            uint16
	Name           [256]byte
	CTime          [timeFieldSize]byte
	LTime          [timeFieldSize]byte
	MTime          [timeFieldSize]byte
	Perm           [3]byte
	Blocks         int32
}

func (st *statBlock) binarySize() int {
	v := reflect.ValueOf(st).Elem()
	sz := 0
	for i := 0; i < v.NumField(); i++ {
		sz += int(v.Field(i).Type().Size())
	}
	return sz
}

func (st *statBlock) marshalBinary() []byte {
	buf := make([]byte, 0, st.binarySize())
	w := bytes.NewBuffer(buf)
	v := reflect.ValueOf(st).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Write(w, binary.LittleEndian, v.Field(i).Interface()); err != nil {
			panic(fmt.Sprintf("btreefs: stat block field %s is not fixed-size: %v", v.Type().Field(i).Name, err))
		}
	}
	out := make([]byte, BlockSize)
	copy(out, w.Bytes())
	return out
}

func (st *statBlock) unmarshalBinary(data []byte) error {
	r := bytes.NewReader(data)
	v := reflect.ValueOf(st).Elem()
	for i := 0; i < v.NumField(); i++ {
		if err := binary.Read(r, binary.LittleEndian, v.Field(i).Addr().Interface()); err != nil {
			return fmt.Errorf("btreefs: decoding stat block field %s: %w", v.Type().Field(i).Name, err)
		}
	}
	return nil
}

// nameString returns the NUL-trimmed entry name.
func (st *statBlock) nameString() string {
	n := bytes.IndexByte(st.Name[:], 0)
	if n < 0 {
		n = len(st.Name)
	}
	return string(st.Name[:n])
}

func (st *statBlock) setName(name string) error {
	if len(name) >= len(st.Name) {
		return fmt.Errorf("btreefs: name %q too long (max %d bytes)", name, len(st.Name)-1)
	}
	var buf [256]byte
	copy(buf[:], name)
	st.Name = buf
	return nil
}

// mode returns the stat block's fs.FileMode, combining its permission
// triplet and entry type, mirroring the teacher's Inode.Mode()
// convenience accessor.
func (st *statBlock) mode() fs.FileMode {
	return permToMode(st.Perm, st.Type)
}

// newStatBlock builds a fresh stat block for a new entry, stamping all
// three timestamps to now, exactly as the original source's init_stat
// stamps ctime/ltime/mtime identically at creation time.
func newStatBlock(k Key, inodeOff Offset, typ EntryType, name string, now time.Time) (*statBlock, error) {
	st := &statBlock{
		K:     k,
		Inode: inodeOff,
		Type:  typ,
		Perm:  defaultPerm,
		UID:   defaultUID,
		GID:   defaultGID,
	}
	if err := st.setName(name); err != nil {
		return nil, err
	}
	stamp := formatTime(now)
	st.CTime = stamp
	st.LTime = stamp
	st.MTime = stamp
	return st, nil
}

func formatTime(t time.Time) [timeFieldSize]byte {
	var out [timeFieldSize]byte
	copy(out[:], t.Format(timeLayout))
	return out
}

// readStatBlock reads and decodes the stat block at off.
func readStatBlock(dev *blockDevice, off Offset) (*statBlock, error) {
	buf := make([]byte, BlockSize)
	if err := dev.readAt(buf, off); err != nil {
		return nil, err
	}
	st := &statBlock{}
	if err := st.unmarshalBinary(buf); err != nil {
		return nil, err
	}
	return st, nil
}

// writeStatBlock encodes and writes st at off.
func writeStatBlock(dev *blockDevice, off Offset, st *statBlock) error {
	return dev.writeAtOffset(st.marshalBinary(), off)
}
