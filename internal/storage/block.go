package storage

import (
	"encoding/binary"
	"hash/crc32"
	"io"
	"os"

	"github.com/google/uuid"

	"github.com/turingworks/prismdb/internal/errorx"
)

// On-disk format constants. The file begins with a 64-byte header followed
// by fixed-size blocks.
const (
	FileMagic     = "PRSM"
	BlockMagic    = "PRSB"
	FormatVersion = 1
	HeaderSize    = 64
	BlockSize     = 256 * 1024
	// blockHeaderSize covers magic, version, kind, id, payload length,
	// checksum, and the next-block chain pointer.
	blockHeaderSize = 4 + 2 + 2 + 8 + 4 + 4 + 8
	// BlockPayloadCap is the usable payload bytes per block.
	BlockPayloadCap = BlockSize - blockHeaderSize
)

// BlockKind tags the role of a block.
type BlockKind uint16

const (
	BlockData BlockKind = iota
	BlockMetadata
	BlockFreeList
	BlockOverflow
)

var crcTable = crc32.MakeTable(crc32.Castagnoli)

// FileHeader is the fixed 64-byte database file header.
type FileHeader struct {
	Version    uint32
	Flags      uint32
	DatabaseID uuid.UUID
	RootBlock  uint64
	BlockCount uint64
}

func (h *FileHeader) encode() []byte {
	buf := make([]byte, HeaderSize)
	copy(buf, FileMagic)
	binary.LittleEndian.PutUint32(buf[4:], h.Version)
	binary.LittleEndian.PutUint32(buf[8:], h.Flags)
	copy(buf[12:], h.DatabaseID[:])
	binary.LittleEndian.PutUint64(buf[28:], h.RootBlock)
	binary.LittleEndian.PutUint64(buf[36:], h.BlockCount)
	return buf
}

func decodeHeader(buf []byte) (*FileHeader, error) {
	if len(buf) < HeaderSize {
		return nil, errorx.IOf("file too small for header")
	}
	if string(buf[:4]) != FileMagic {
		return nil, errorx.IOf("bad file magic %q", buf[:4])
	}
	h := &FileHeader{
		Version:    binary.LittleEndian.Uint32(buf[4:]),
		Flags:      binary.LittleEndian.Uint32(buf[8:]),
		RootBlock:  binary.LittleEndian.Uint64(buf[28:]),
		BlockCount: binary.LittleEndian.Uint64(buf[36:]),
	}
	copy(h.DatabaseID[:], buf[12:28])
	if h.Version > FormatVersion {
		return nil, errorx.IOf("unsupported format version %d (supported up to %d)", h.Version, FormatVersion)
	}
	return h, nil
}

// BlockWriter appends fixed-size blocks to a database file.
type BlockWriter struct {
	f      *os.File
	nextID uint64
}

// NewBlockWriter creates (truncating) a database file and reserves the
// header region.
func NewBlockWriter(path string) (*BlockWriter, error) {
	f, err := os.Create(path)
	if err != nil {
		return nil, errorx.IOf("create database file %s", path).WithCause(err)
	}
	if _, err := f.Write(make([]byte, HeaderSize)); err != nil {
		f.Close()
		return nil, errorx.IOf("reserve header in %s", path).WithCause(err)
	}
	return &BlockWriter{f: f}, nil
}

// writeOne writes one block and returns its id.
func (w *BlockWriter) writeOne(kind BlockKind, payload []byte, next uint64) (uint64, error) {
	if len(payload) > BlockPayloadCap {
		return 0, errorx.Internalf("block payload %d exceeds capacity %d", len(payload), BlockPayloadCap)
	}
	id := w.nextID
	buf := make([]byte, BlockSize)
	copy(buf, BlockMagic)
	binary.LittleEndian.PutUint16(buf[4:], FormatVersion)
	binary.LittleEndian.PutUint16(buf[6:], uint16(kind))
	binary.LittleEndian.PutUint64(buf[8:], id)
	binary.LittleEndian.PutUint32(buf[16:], uint32(len(payload)))
	binary.LittleEndian.PutUint32(buf[20:], crc32.Checksum(payload, crcTable))
	binary.LittleEndian.PutUint64(buf[24:], next)
	copy(buf[blockHeaderSize:], payload)
	off := int64(HeaderSize) + int64(id)*BlockSize
	if _, err := w.f.WriteAt(buf, off); err != nil {
		return 0, errorx.IOf("write block %d", id).WithCause(err)
	}
	w.nextID++
	return id, nil
}

// WriteChain writes a payload of any size as a chain of blocks and returns
// the id of the chain head. Continuation blocks carry the Overflow kind and
// link forward via next_block_id.
func (w *BlockWriter) WriteChain(kind BlockKind, payload []byte) (uint64, error) {
	var parts [][]byte
	for len(payload) > BlockPayloadCap {
		parts = append(parts, payload[:BlockPayloadCap])
		payload = payload[BlockPayloadCap:]
	}
	parts = append(parts, payload)
	// Blocks are laid out head-first; each part's next pointer is the id
	// the following part will receive.
	head := uint64(0)
	for i, part := range parts {
		k := kind
		if i > 0 {
			k = BlockOverflow
		}
		next := uint64(0)
		if i < len(parts)-1 {
			// This part is about to take w.nextID; its successor
			// takes the following id.
			next = w.nextID + 1
		}
		id, err := w.writeOne(k, part, next)
		if err != nil {
			return 0, err
		}
		if i == 0 {
			head = id
		}
	}
	return head, nil
}

// Finish writes the file header and closes the file.
func (w *BlockWriter) Finish(dbID uuid.UUID, rootBlock uint64) error {
	h := FileHeader{
		Version:    FormatVersion,
		DatabaseID: dbID,
		RootBlock:  rootBlock,
		BlockCount: w.nextID,
	}
	if _, err := w.f.WriteAt(h.encode(), 0); err != nil {
		w.f.Close()
		return errorx.IOf("write file header").WithCause(err)
	}
	if err := w.f.Sync(); err != nil {
		w.f.Close()
		return errorx.IOf("sync database file").WithCause(err)
	}
	return w.f.Close()
}

// BlockReader reads blocks from a database file.
type BlockReader struct {
	f      *os.File
	header *FileHeader
}

// OpenBlockReader opens a database file and validates its header.
func OpenBlockReader(path string) (*BlockReader, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errorx.IOf("open database file %s", path).WithCause(err)
	}
	buf := make([]byte, HeaderSize)
	if _, err := io.ReadFull(f, buf); err != nil {
		f.Close()
		return nil, errorx.IOf("read file header").WithCause(err)
	}
	h, err := decodeHeader(buf)
	if err != nil {
		f.Close()
		return nil, err
	}
	return &BlockReader{f: f, header: h}, nil
}

// Header returns the validated file header.
func (r *BlockReader) Header() *FileHeader { return r.header }

// readOne reads and verifies one block, returning payload and next id.
func (r *BlockReader) readOne(id uint64) ([]byte, uint64, error) {
	if id >= r.header.BlockCount {
		return nil, 0, errorx.IOf("block %d beyond block count %d", id, r.header.BlockCount)
	}
	buf := make([]byte, BlockSize)
	off := int64(HeaderSize) + int64(id)*BlockSize
	if _, err := r.f.ReadAt(buf, off); err != nil {
		return nil, 0, errorx.IOf("read block %d", id).WithCause(err)
	}
	if string(buf[:4]) != BlockMagic {
		return nil, 0, errorx.IOf("bad block magic in block %d", id)
	}
	gotID := binary.LittleEndian.Uint64(buf[8:])
	if gotID != id {
		return nil, 0, errorx.IOf("block id mismatch: want %d, stored %d", id, gotID)
	}
	length := binary.LittleEndian.Uint32(buf[16:])
	if int(length) > BlockPayloadCap {
		return nil, 0, errorx.IOf("block %d payload length %d exceeds capacity", id, length)
	}
	payload := buf[blockHeaderSize : blockHeaderSize+int(length)]
	if crc32.Checksum(payload, crcTable) != binary.LittleEndian.Uint32(buf[20:]) {
		return nil, 0, errorx.IOf("checksum mismatch in block %d", id)
	}
	next := binary.LittleEndian.Uint64(buf[24:])
	return payload, next, nil
}

// ReadChain reads a block chain starting at head and returns the
// concatenated payload.
func (r *BlockReader) ReadChain(head uint64) ([]byte, error) {
	var out []byte
	id := head
	for {
		payload, next, err := r.readOne(id)
		if err != nil {
			return nil, err
		}
		out = append(out, payload...)
		if next == 0 {
			return out, nil
		}
		id = next
	}
}

// Close closes the underlying file.
func (r *BlockReader) Close() error { return r.f.Close() }
