package btreefs

import (
	"fmt"
	"io"
	"io/fs"
	"os"
	"time"
)

// DirEntry is one directory listing row, combining the B+ tree key
// with the fields callers actually want from its stat block.
type DirEntry struct {
	ID    uint32
	Type  EntryType
	Name  string
	Mode  fs.FileMode
	MTime string
}

// create is shared by Create and Mkdir: it allocates an id, an inode,
// and a stat block for a new entry under parentID, inserts its B+ tree
// key, and for directories also creates the synthetic ".." entry
// pointing back at the parent.
func (s *Session) create(name string, parentID uint32, typ EntryType) (uint32, Offset, error) {
	if _, _, found, err := s.Lookup(parentID, name, typ); err != nil {
		return 0, 0, err
	} else if found {
		return 0, 0, ErrExists
	}

	id, err := s.sb.nextID()
	if err != nil {
		return 0, 0, err
	}

	inodeOff, err := s.createEntryInode(Key{DirID: parentID, ID: id}, typ, name)
	if err != nil {
		return 0, 0, err
	}

	if typ == EntryDir {
		if _, err := s.createEntryInode(Key{DirID: id, ID: parentID}, typ, ".."); err != nil {
			return 0, 0, err
		}
	}

	return id, inodeOff, nil
}

// createEntryInode allocates and wires together one inode + stat block
// + B+ tree key for key, exactly mirroring new_empty_file_dir's body
// (minus the existence check, which the caller already did).
func (s *Session) createEntryInode(key Key, typ EntryType, name string) (Offset, error) {
	inodeOff, err := allocateInode(s.dev, s.sb)
	if err != nil {
		return 0, err
	}

	statOff, err := allocateBlock(s.dev, s.sb)
	if err != nil {
		return 0, err
	}
	statByteOff := statOff.Offset()

	// st.Inode records the owning inode slot's offset, not the stat
	// block's own offset (spec.md §3: "inode: byte offset of the owning
	// inode slot").
	st, err := newStatBlock(key, inodeOff, typ, name, time.Now())
	if err != nil {
		return 0, err
	}
	if err := writeStatBlock(s.dev, statByteOff, st); err != nil {
		return 0, err
	}

	in := emptyInode()
	in.f[inodeStatSlot] = statByteOff
	if err := writeInode(s.dev, inodeOff, in); err != nil {
		return 0, err
	}

	if err := insertEntry(s.dev, s.sb, key, inodeOff); err != nil {
		return 0, err
	}
	return inodeOff, nil
}

// Create adds a new entry named name under parentID with the given
// type, returning its freshly assigned id.
func (s *Session) Create(name string, parentID uint32, typ EntryType) (uint32, error) {
	id, _, err := s.create(name, parentID, typ)
	return id, err
}

// Mkdir creates a new, empty directory under parentID, wired with its
// synthetic ".." entry.
func (s *Session) Mkdir(name string, parentID uint32) (uint32, error) {
	id, _, err := s.create(name, parentID, EntryDir)
	return id, err
}

// List returns every entry directly under dirID, in B+ tree key order,
// mirroring ls's directory scan.
func (s *Session) List(dirID uint32) ([]DirEntry, error) {
	keys, links, err := rangeScanDir(s.dev, s.sb, dirID)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(keys))
	for i, key := range keys {
		in, err := readInode(s.dev, links[i])
		if err != nil {
			return nil, err
		}
		st, err := readStatBlock(s.dev, in.f[inodeStatSlot])
		if err != nil {
			return nil, err
		}
		entries = append(entries, DirEntry{
			ID:    key.ID,
			Type:  st.Type,
			Name:  st.nameString(),
			Mode:  st.mode(),
			MTime: string(st.MTime[:]),
		})
	}
	return entries, nil
}

// Lookup finds the entry named name of type typ under parentID,
// mirroring find()'s name+type scan of a directory's entries.
func (s *Session) Lookup(parentID uint32, name string, typ EntryType) (id uint32, inode Offset, found bool, err error) {
	keys, links, err := rangeScanDir(s.dev, s.sb, parentID)
	if err != nil {
		return 0, 0, false, err
	}
	for i, key := range keys {
		in, err := readInode(s.dev, links[i])
		if err != nil {
			return 0, 0, false, err
		}
		st, err := readStatBlock(s.dev, in.f[inodeStatSlot])
		if err != nil {
			return 0, 0, false, err
		}
		if st.Type == typ && st.nameString() == name {
			return key.ID, links[i], true, nil
		}
	}
	return 0, 0, false, nil
}

const (
	directBlocksPerInode = inodeDirectLast - inodeDirectFirst + 1
	indirectLinksPerNode = BlockSize / 4 // int32 link per entry
)

// Import copies the host file at hostPath into a new file entry named
// name under parentID, filling direct, then single-indirect, then
// double-indirect block pointers as the direct region fills up,
// mirroring import()'s three-tier block-filling loop.
func (s *Session) Import(hostPath string, parentID uint32, name string) (int64, error) {
	f, err := os.Open(hostPath)
	if err != nil {
		return 0, fmt.Errorf("btreefs: opening %s: %w", hostPath, err)
	}
	defer f.Close()

	fi, err := f.Stat()
	if err != nil {
		return 0, err
	}
	size := fi.Size()

	blocksReq := size / BlockSize
	lastBlockBytes := int32(BlockSize)
	if size%BlockSize != 0 {
		blocksReq++
		lastBlockBytes = int32(size % BlockSize)
	}

	_, inodeOff, err := s.create(name, parentID, EntryFile)
	if err != nil {
		return 0, err
	}

	in, err := readInode(s.dev, inodeOff)
	if err != nil {
		return 0, err
	}

	var lastBlock Offset
	count := int64(0)
	readBlock := func() ([]byte, error) {
		buf := make([]byte, BlockSize)
		if _, rerr := io.ReadFull(f, buf); rerr != nil && rerr != io.ErrUnexpectedEOF && rerr != io.EOF {
			return nil, rerr
		}
		return buf, nil
	}

	writeDataBlock := func() (BlockIndex, error) {
		blk, err := allocateBlock(s.dev, s.sb)
		if err != nil {
			return 0, err
		}
		buf, err := readBlock()
		if err != nil {
			return 0, err
		}
		if err := s.dev.writeBlock(blk, buf); err != nil {
			return 0, err
		}
		count++
		lastBlock = blk.Offset()
		return blk, nil
	}

	for i := inodeDirectFirst; i <= inodeDirectLast && count < blocksReq; i++ {
		blk, err := writeDataBlock()
		if err != nil {
			return 0, err
		}
		in.f[i] = blk.Offset()
	}

	if count < blocksReq {
		indirectOff, err := s.fillIndirect(writeDataBlock, blocksReq, &count)
		if err != nil {
			return 0, err
		}
		in.f[inodeSingleIndirct] = indirectOff
	}

	if count < blocksReq {
		dIndirectBlk, err := allocateBlock(s.dev, s.sb)
		if err != nil {
			return 0, err
		}
		dIndirect := make([]int32, indirectLinksPerNode)
		for i := range dIndirect {
			dIndirect[i] = int32(offsetNone)
		}
		for i := 0; i < indirectLinksPerNode && count < blocksReq; i++ {
			indirectOff, err := s.fillIndirect(writeDataBlock, blocksReq, &count)
			if err != nil {
				return 0, err
			}
			dIndirect[i] = int32(indirectOff)
		}
		if err := writeInt32Table(s.dev, dIndirectBlk.Offset(), dIndirect); err != nil {
			return 0, err
		}
		in.f[inodeDoubleIndirct] = dIndirectBlk.Offset()
	}

	if err := writeInode(s.dev, inodeOff, in); err != nil {
		return 0, err
	}

	st, err := readStatBlock(s.dev, in.f[inodeStatSlot])
	if err != nil {
		return 0, err
	}
	st.LastBlock = int32(lastBlock)
	st.LastBlockBytes = lastBlockBytes
	st.Blocks = int32(blocksReq)
	if err := writeStatBlock(s.dev, in.f[inodeStatSlot], st); err != nil {
		return 0, err
	}

	return size, nil
}

// fillIndirect allocates one indirect block and fills it with up to
// indirectLinksPerNode freshly written data blocks, stopping early
// once count reaches blocksReq.
func (s *Session) fillIndirect(writeDataBlock func() (BlockIndex, error), blocksReq int64, count *int64) (Offset, error) {
	indirectBlk, err := allocateBlock(s.dev, s.sb)
	if err != nil {
		return 0, err
	}
	table := make([]int32, indirectLinksPerNode)
	for i := range table {
		table[i] = int32(offsetNone)
	}
	for i := 0; i < indirectLinksPerNode && *count < blocksReq; i++ {
		blk, err := writeDataBlock()
		if err != nil {
			return 0, err
		}
		table[i] = int32(blk.Offset())
	}
	if err := writeInt32Table(s.dev, indirectBlk.Offset(), table); err != nil {
		return 0, err
	}
	return indirectBlk.Offset(), nil
}

// writeInt32Table writes a block's worth of little-endian int32
// pointer slots (used for single/double indirect blocks, which are
// just raw int arrays on disk rather than a Go struct).
func writeInt32Table(dev *blockDevice, off Offset, table []int32) error {
	buf := make([]byte, BlockSize)
	for i, v := range table {
		b := buf[i*4 : i*4+4]
		b[0] = byte(v)
		b[1] = byte(v >> 8)
		b[2] = byte(v >> 16)
		b[3] = byte(v >> 24)
	}
	return dev.writeAtOffset(buf, off)
}

func readInt32Table(dev *blockDevice, off Offset) ([]int32, error) {
	buf := make([]byte, BlockSize)
	if err := dev.readAt(buf, off); err != nil {
		return nil, err
	}
	table := make([]int32, indirectLinksPerNode)
	for i := range table {
		b := buf[i*4 : i*4+4]
		table[i] = int32(b[0]) | int32(b[1])<<8 | int32(b[2])<<16 | int32(b[3])<<24
	}
	return table, nil
}

// Extract writes the file entry named name under parentID out to
// hostPath, walking direct, then single-indirect, then
// double-indirect block pointers and truncating the final block to
// its stored byte count, mirroring extract()'s reverse walk.
func (s *Session) Extract(parentID uint32, name string, hostPath string) (int64, error) {
	_, inodeOff, found, err := s.Lookup(parentID, name, EntryFile)
	if err != nil {
		return 0, err
	}
	if !found {
		return 0, ErrNotFound
	}

	in, err := readInode(s.dev, inodeOff)
	if err != nil {
		return 0, err
	}
	st, err := readStatBlock(s.dev, in.f[inodeStatSlot])
	if err != nil {
		return 0, err
	}

	out, err := os.Create(hostPath)
	if err != nil {
		return 0, fmt.Errorf("btreefs: creating %s: %w", hostPath, err)
	}
	defer out.Close()

	lastBlockOff := Offset(st.LastBlock)
	remaining := int64(st.Blocks)
	var written int64

	writeOne := func(dataOff Offset) (bool, error) {
		buf := make([]byte, BlockSize)
		if err := s.dev.readAt(buf, dataOff); err != nil {
			return false, err
		}
		n := BlockSize
		done := dataOff == lastBlockOff
		if done {
			n = int(st.LastBlockBytes)
		}
		if _, err := out.Write(buf[:n]); err != nil {
			return false, err
		}
		written += int64(n)
		remaining--
		return done, nil
	}

	for i := inodeDirectFirst; i <= inodeDirectLast && in.f[i].Valid() && remaining > 0; i++ {
		done, err := writeOne(in.f[i])
		if err != nil {
			return 0, err
		}
		if done {
			return written, nil
		}
	}

	if in.f[inodeSingleIndirct].Valid() && remaining > 0 {
		table, err := readInt32Table(s.dev, in.f[inodeSingleIndirct])
		if err != nil {
			return 0, err
		}
		for _, raw := range table {
			off := Offset(raw)
			if !off.Valid() || remaining <= 0 {
				break
			}
			done, err := writeOne(off)
			if err != nil {
				return 0, err
			}
			if done {
				return written, nil
			}
		}
	}

	if in.f[inodeDoubleIndirct].Valid() && remaining > 0 {
		dTable, err := readInt32Table(s.dev, in.f[inodeDoubleIndirct])
		if err != nil {
			return 0, err
		}
		for _, rawIndirect := range dTable {
			indirectOff := Offset(rawIndirect)
			if !indirectOff.Valid() || remaining <= 0 {
				break
			}
			table, err := readInt32Table(s.dev, indirectOff)
			if err != nil {
				return 0, err
			}
			for _, raw := range table {
				off := Offset(raw)
				if !off.Valid() || remaining <= 0 {
					break
				}
				done, err := writeOne(off)
				if err != nil {
					return 0, err
				}
				if done {
					return written, nil
				}
			}
		}
	}

	return written, nil
}
