// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package sqpack

import (
	"bytes"
	"fmt"
	"io"

	"github.com/klauspost/compress/flate"
)

// EntryHeader starts every entry in a data file.
type EntryHeader struct {
	HeaderSize       uint32 // bytes, including block locators
	Type             EntryType
	DecompressedSize uint32
	AllocatedUnits   uint32 // 128-byte units occupied by header and blocks
	BlockCount       uint32
}

// AllocatedSize is the number of bytes the entry occupies in its data file.
func (h *EntryHeader) AllocatedSize() int64 {
	return int64(h.AllocatedUnits) * Alignment
}

func (h *EntryHeader) MarshalTo(b []byte) error {
	if len(b) < EntryHeaderSize {
		return fmt.Errorf("entryHeaderBytes too short: %d < %d", len(b), EntryHeaderSize)
	}
	b = b[:EntryHeaderSize]
	clear(b)

	le.PutUint32(b[0x00:0x04], h.HeaderSize)
	le.PutUint32(b[0x04:0x08], uint32(h.Type))
	le.PutUint32(b[0x08:0x0C], h.DecompressedSize)
	le.PutUint32(b[0x10:0x14], h.AllocatedUnits)
	le.PutUint32(b[0x14:0x18], h.BlockCount)
	return nil
}

func (h *EntryHeader) UnmarshalBytes(b []byte) error {
	if len(b) < EntryHeaderSize {
		return fmt.Errorf("%w: entry header too short: %d < %d", ErrFormat, len(b), EntryHeaderSize)
	}

	h.HeaderSize = le.Uint32(b[0x00:0x04])
	h.Type = EntryType(le.Uint32(b[0x04:0x08]))
	h.DecompressedSize = le.Uint32(b[0x08:0x0C])
	h.AllocatedUnits = le.Uint32(b[0x10:0x14])
	h.BlockCount = le.Uint32(b[0x14:0x18])

	if h.HeaderSize < EntryHeaderSize || h.HeaderSize%Alignment != 0 {
		return fmt.Errorf("%w: bad entry header size %d", ErrFormat, h.HeaderSize)
	}
	if h.Type < EntryEmpty || h.Type > EntryTexture {
		return fmt.Errorf("%w: unknown entry type %d", ErrFormat, h.Type)
	}
	if h.AllocatedSize() < int64(h.HeaderSize) {
		return fmt.Errorf("%w: entry allocation %d smaller than its header %d", ErrFormat, h.AllocatedSize(), h.HeaderSize)
	}
	return nil
}

// BlockLocator follows the entry header of binary entries, one per block.
type BlockLocator struct {
	Offset           uint32 // relative to the end of the entry header
	Size             uint16 // bytes occupied, including block header and padding
	DecompressedSize uint16
}

func (l *BlockLocator) MarshalTo(b []byte) {
	_ = b[BlockLocatorSize-1]
	le.PutUint32(b[0:4], l.Offset)
	le.PutUint16(b[4:6], l.Size)
	le.PutUint16(b[6:8], l.DecompressedSize)
}

func (l *BlockLocator) UnmarshalBytes(b []byte) {
	_ = b[BlockLocatorSize-1]
	l.Offset = le.Uint32(b[0:4])
	l.Size = le.Uint16(b[4:6])
	l.DecompressedSize = le.Uint16(b[6:8])
}

// BlockHeader precedes every block's payload.
type BlockHeader struct {
	CompressedSize   uint32 // StoredBlockMarker for uncompressed blocks
	DecompressedSize uint32
}

func (h *BlockHeader) Stored() bool {
	return h.CompressedSize == StoredBlockMarker
}

// PayloadSize is the number of payload bytes following the header.
func (h *BlockHeader) PayloadSize() int64 {
	if h.Stored() {
		return int64(h.DecompressedSize)
	}
	return int64(h.CompressedSize)
}

func (h *BlockHeader) MarshalTo(b []byte) {
	_ = b[BlockHeaderSize-1]
	le.PutUint32(b[0:4], BlockHeaderSize)
	le.PutUint32(b[4:8], 0)
	le.PutUint32(b[8:12], h.CompressedSize)
	le.PutUint32(b[12:16], h.DecompressedSize)
}

func (h *BlockHeader) UnmarshalBytes(b []byte) error {
	if len(b) < BlockHeaderSize {
		return fmt.Errorf("%w: block header too short: %d", ErrFormat, len(b))
	}
	if size := le.Uint32(b[0:4]); size != BlockHeaderSize {
		return fmt.Errorf("%w: bad block header size %d", ErrFormat, size)
	}
	h.CompressedSize = le.Uint32(b[8:12])
	h.DecompressedSize = le.Uint32(b[12:16])
	if h.DecompressedSize > BlockDataSize {
		return fmt.Errorf("%w: block decompresses to %d bytes (max %d)", ErrFormat, h.DecompressedSize, BlockDataSize)
	}
	return nil
}

// BlockCount returns the number of blocks needed for size payload bytes.
func BlockCount(size int64) int {
	return int((size + BlockDataSize - 1) / BlockDataSize)
}

// BinaryHeaderSize is the aligned size of a binary entry header with
// blocks block locators.
func BinaryHeaderSize(blocks int) int64 {
	return Align(EntryHeaderSize + int64(blocks)*BlockLocatorSize)
}

// BlockCompressor deflates block payloads, reusing its encoder state.
type BlockCompressor struct {
	w   *flate.Writer
	buf bytes.Buffer
}

func NewBlockCompressor(level int) (*BlockCompressor, error) {
	c := &BlockCompressor{}
	w, err := flate.NewWriter(&c.buf, level)
	if err != nil {
		return nil, fmt.Errorf("flate.NewWriter: %w", err)
	}
	c.w = w
	return c, nil
}

// Compress returns the raw deflate stream for src.  The result is a new
// slice owned by the caller.
func (c *BlockCompressor) Compress(src []byte) ([]byte, error) {
	c.buf.Reset()
	c.w.Reset(&c.buf)
	if _, err := c.w.Write(src); err != nil {
		return nil, fmt.Errorf("flate.Write: %w", err)
	}
	if err := c.w.Close(); err != nil {
		return nil, fmt.Errorf("flate.Close: %w", err)
	}
	return bytes.Clone(c.buf.Bytes()), nil
}

// DecodeEntry returns the decompressed payload of the entry stored in b,
// which holds at least the entry's allocated bytes.
func DecodeEntry(b []byte) ([]byte, error) {
	var h EntryHeader
	if err := h.UnmarshalBytes(b); err != nil {
		return nil, err
	}
	if int64(len(b)) < h.AllocatedSize() {
		return nil, fmt.Errorf("%w: entry truncated: %d < %d", ErrFormat, len(b), h.AllocatedSize())
	}
	b = b[:h.AllocatedSize()]

	switch h.Type {
	case EntryEmpty:
		return []byte{}, nil
	case EntryBinary:
		return decodeBinary(&h, b)
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedEntry, h.Type)
	}
}

func decodeBinary(h *EntryHeader, b []byte) ([]byte, error) {
	if EntryHeaderSize+int64(h.BlockCount)*BlockLocatorSize > int64(h.HeaderSize) {
		return nil, fmt.Errorf("%w: %d block locators don't fit a %d byte header", ErrFormat, h.BlockCount, h.HeaderSize)
	}

	if int64(h.DecompressedSize) > int64(h.BlockCount)*BlockDataSize {
		return nil, fmt.Errorf("%w: %d bytes don't fit %d blocks", ErrFormat, h.DecompressedSize, h.BlockCount)
	}

	out := make([]byte, 0, h.DecompressedSize)
	for i := 0; i < int(h.BlockCount); i++ {
		var loc BlockLocator
		loc.UnmarshalBytes(b[EntryHeaderSize+i*BlockLocatorSize:])

		start := int64(h.HeaderSize) + int64(loc.Offset)
		if start+BlockHeaderSize > int64(len(b)) {
			return nil, fmt.Errorf("%w: block %d at %d beyond entry end %d", ErrFormat, i, start, len(b))
		}
		var bh BlockHeader
		if err := bh.UnmarshalBytes(b[start:]); err != nil {
			return nil, fmt.Errorf("block %d: %w", i, err)
		}
		payloadStart := start + BlockHeaderSize
		payloadEnd := payloadStart + bh.PayloadSize()
		if payloadEnd > int64(len(b)) {
			return nil, fmt.Errorf("%w: block %d payload beyond entry end", ErrFormat, i)
		}
		payload := b[payloadStart:payloadEnd]

		if bh.Stored() {
			out = append(out, payload...)
			continue
		}
		block := make([]byte, bh.DecompressedSize)
		fr := flate.NewReader(bytes.NewReader(payload))
		_, err := io.ReadFull(fr, block)
		_ = fr.Close()
		if err != nil {
			return nil, fmt.Errorf("%w: inflating block %d: %s", ErrFormat, i, err)
		}
		out = append(out, block...)
	}

	if len(out) != int(h.DecompressedSize) {
		return nil, fmt.Errorf("%w: decoded %d bytes, header says %d", ErrFormat, len(out), h.DecompressedSize)
	}
	return out, nil
}
