package btreefs

import (
	"bytes"
	"encoding/binary"
)

// inodeSlotCount is the number of int32 pointer slots in one inode:
// f[0] stat block offset, f[1..13] direct data blocks, f[14] single
// indirect, f[15] double indirect.
const inodeSlotCount = 16

const (
	inodeStatSlot      = 0
	inodeDirectFirst   = 1
	inodeDirectLast    = 13
	inodeSingleIndirct = 14
	inodeDoubleIndirct = 15
)

// inode is one 64-byte on-disk inode: 16 signed 32-bit slots. f[0] is
// the stat block offset (offsetNone if the slot is free); unused slots
// store offsetNone.
type inode struct {
	f [inodeSlotCount]Offset
}

func (in *inode) marshalBinary() []byte {
	buf := make([]byte, 0, inodeSize)
	w := bytes.NewBuffer(buf)
	binary.Write(w, binary.LittleEndian, in.f)
	return w.Bytes()
}

func (in *inode) unmarshalBinary(data []byte) error {
	return binary.Read(bytes.NewReader(data), binary.LittleEndian, &in.f)
}

// emptyInode returns a freshly zeroed (all slots offsetNone) inode.
func emptyInode() *inode {
	in := &inode{}
	for i := range in.f {
		in.f[i] = offsetNone
	}
	return in
}

// initInodes zero-fills (f[0] = offsetNone for every slot) the whole
// reserved inode region. The region's blocks were already marked
// allocated by initBitmap in the same format() pass.
func initInodes(dev *blockDevice, sb *Superblock) error {
	empty := emptyInode()
	slotBuf := empty.marshalBinary()

	block := make([]byte, BlockSize)
	for i := 0; i < inodesPerBlock; i++ {
		copy(block[i*inodeSize:(i+1)*inodeSize], slotBuf)
	}

	inodeBlocks := ceilDiv(int64(sb.NInodes), inodesPerBlock)
	start := BlockIndex(2 + sb.FreeBlocksMap)
	for i := int64(0); i < inodeBlocks; i++ {
		if err := dev.writeBlock(start+BlockIndex(i), block); err != nil {
			return err
		}
	}
	return nil
}

// allocateInode linearly scans the inode region for the first free slot
// (f[0] == offsetNone) and returns its byte offset. The caller is
// responsible for writing a populated inode there next.
func allocateInode(dev *blockDevice, sb *Superblock) (Offset, error) {
	start := sb.inodeRegionStart()

	buf := make([]byte, inodeSize)
	for i := int32(0); i < sb.NInodes; i++ {
		off := start + Offset(int64(i)*inodeSize)
		if err := dev.readAt(buf, off); err != nil {
			return 0, err
		}
		if int32(binary.LittleEndian.Uint32(buf[:4])) == -1 {
			return off, nil
		}
	}
	return 0, ErrNoInodes
}

// readInode reads the inode record located at off.
func readInode(dev *blockDevice, off Offset) (*inode, error) {
	buf := make([]byte, inodeSize)
	if err := dev.readAt(buf, off); err != nil {
		return nil, err
	}
	in := &inode{}
	if err := in.unmarshalBinary(buf); err != nil {
		return nil, err
	}
	return in, nil
}

// writeInode writes in at offset off.
func writeInode(dev *blockDevice, off Offset, in *inode) error {
	return dev.writeAtOffset(in.marshalBinary(), off)
}
