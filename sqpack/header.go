// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package sqpack

import (
	"bytes"
	"crypto/sha1"
	"fmt"
)

// Header is the 0x400-byte header at the start of every SqPack file.
//
//	0x000  magic "SqPack\0\0"
//	0x008  platform
//	0x00C  header size (0x400)
//	0x010  version (1)
//	0x014  file type
//	0x3C0  SHA-1 of [0x000, 0x3C0)
type Header struct {
	Platform uint8
	Type     FileType
}

func (h *Header) MarshalTo(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("headerBytes too short: %d < %d", len(b), HeaderSize)
	}
	b = b[:HeaderSize]
	clear(b)

	copy(b[:len(magic)], magic[:])
	b[0x08] = h.Platform
	le.PutUint32(b[0x0C:0x10], HeaderSize)
	le.PutUint32(b[0x10:0x14], headerVersion)
	le.PutUint32(b[0x14:0x18], uint32(h.Type))
	putDigest(b)

	return nil
}

func (h *Header) UnmarshalBytes(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: header too short: %d < %d", ErrFormat, len(b), HeaderSize)
	}
	b = b[:HeaderSize]

	if !bytes.Equal(b[:len(magic)], magic[:]) {
		return fmt.Errorf("%w: bad magic %q -- not a SqPack file", ErrFormat, b[:len(magic)])
	}
	if size := le.Uint32(b[0x0C:0x10]); size != HeaderSize {
		return fmt.Errorf("%w: unexpected header size %#x", ErrFormat, size)
	}
	if version := le.Uint32(b[0x10:0x14]); version != headerVersion {
		return fmt.Errorf("%w: can only read v%d files; found v%d", ErrFormat, headerVersion, version)
	}
	if err := verifyDigest(b); err != nil {
		return fmt.Errorf("SqPack header: %w", err)
	}

	h.Platform = b[0x08]
	h.Type = FileType(le.Uint32(b[0x14:0x18]))
	return nil
}

// SegmentDescriptor locates a table inside an index file.  Digest is the
// SHA-1 of the table bytes.
type SegmentDescriptor struct {
	Offset uint32
	Size   uint32
	Digest [sha1.Size]byte
}

func (d *SegmentDescriptor) marshalTo(b []byte) {
	_ = b[descriptorSize-1]
	le.PutUint32(b[0:4], d.Offset)
	le.PutUint32(b[4:8], d.Size)
	copy(b[8:8+sha1.Size], d.Digest[:])
}

func (d *SegmentDescriptor) unmarshalBytes(b []byte) {
	_ = b[descriptorSize-1]
	d.Offset = le.Uint32(b[0:4])
	d.Size = le.Uint32(b[4:8])
	copy(d.Digest[:], b[8:8+sha1.Size])
}

// slice returns the table bytes d points at, validating bounds, record
// size and digest.
func (d *SegmentDescriptor) slice(file []byte, recordSize int, name string) ([]byte, error) {
	if d.Size == 0 {
		return nil, nil
	}
	end := uint64(d.Offset) + uint64(d.Size)
	if end > uint64(len(file)) {
		return nil, fmt.Errorf("%w: %s table [%d, %d) beyond file end %d", ErrFormat, name, d.Offset, end, len(file))
	}
	if d.Size%uint32(recordSize) != 0 {
		return nil, fmt.Errorf("%w: %s table size %d not a multiple of %d", ErrFormat, name, d.Size, recordSize)
	}
	table := file[d.Offset:end]
	if d.Digest != ([sha1.Size]byte{}) {
		if digest := sha1.Sum(table); digest != d.Digest {
			return nil, fmt.Errorf("%w: %s table digest failed (%x != %x)", ErrFormat, name, digest, d.Digest)
		}
	}
	return table, nil
}

func newSegmentDescriptor(table []byte, offset int) SegmentDescriptor {
	return SegmentDescriptor{
		Offset: uint32(offset),
		Size:   uint32(len(table)),
		Digest: sha1.Sum(table),
	}
}

const (
	indexVersionOff       = 0x04
	filesDescriptorOff    = 0x08
	dataFileCountOff      = 0x50
	synonymsDescriptorOff = 0x54
	emptyDescriptorOff    = 0x9C
	foldersDescriptorOff  = 0xE4
	indexTypeOff          = 0x12C
)

// IndexHeader follows the SqPack header in .index and .index2 files.
//
//	0x000  header size (0x400)
//	0x004  version (1)
//	0x008  file records: offset, size, SHA-1
//	0x050  number of data files
//	0x054  synonym records: offset, size, SHA-1
//	0x09C  empty blocks: offset, size, SHA-1
//	0x0E4  folder records: offset, size, SHA-1
//	0x12C  index type
//	0x3C0  SHA-1 of [0x000, 0x3C0)
//
// Record counts are not stored; they follow from each table's size.
type IndexHeader struct {
	Files       SegmentDescriptor
	DataFiles   uint32
	Synonyms    SegmentDescriptor
	EmptyBlocks SegmentDescriptor
	Folders     SegmentDescriptor
	Type        IndexType
}

func (h *IndexHeader) MarshalTo(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("headerBytes too short: %d < %d", len(b), HeaderSize)
	}
	b = b[:HeaderSize]
	clear(b)

	le.PutUint32(b[0:4], HeaderSize)
	le.PutUint32(b[indexVersionOff:indexVersionOff+4], headerVersion)
	h.Files.marshalTo(b[filesDescriptorOff:])
	le.PutUint32(b[dataFileCountOff:dataFileCountOff+4], h.DataFiles)
	h.Synonyms.marshalTo(b[synonymsDescriptorOff:])
	h.EmptyBlocks.marshalTo(b[emptyDescriptorOff:])
	h.Folders.marshalTo(b[foldersDescriptorOff:])
	le.PutUint32(b[indexTypeOff:indexTypeOff+4], uint32(h.Type))
	putDigest(b)

	return nil
}

func (h *IndexHeader) UnmarshalBytes(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: index header too short: %d < %d", ErrFormat, len(b), HeaderSize)
	}
	b = b[:HeaderSize]

	if size := le.Uint32(b[0:4]); size != HeaderSize {
		return fmt.Errorf("%w: unexpected index header size %#x", ErrFormat, size)
	}
	if version := le.Uint32(b[indexVersionOff : indexVersionOff+4]); version != headerVersion {
		return fmt.Errorf("%w: can only read v%d indexes; found v%d", ErrFormat, headerVersion, version)
	}
	if err := verifyDigest(b); err != nil {
		return fmt.Errorf("index header: %w", err)
	}

	h.Files.unmarshalBytes(b[filesDescriptorOff:])
	h.DataFiles = le.Uint32(b[dataFileCountOff : dataFileCountOff+4])
	h.Synonyms.unmarshalBytes(b[synonymsDescriptorOff:])
	h.EmptyBlocks.unmarshalBytes(b[emptyDescriptorOff:])
	h.Folders.unmarshalBytes(b[foldersDescriptorOff:])
	h.Type = IndexType(le.Uint32(b[indexTypeOff : indexTypeOff+4]))

	if h.DataFiles == 0 || h.DataFiles > MaxDataFiles {
		return fmt.Errorf("%w: index declares %d data files", ErrFormat, h.DataFiles)
	}
	return nil
}

// DataHeader follows the SqPack header in .datN files.
//
//	0x000  header size (0x400)
//	0x004  version (1)
//	0x008  0x10
//	0x010  bytes of entries
//	0x018  span index
//	0x020  maximum file size
//	0x3C0  SHA-1 of [0x000, 0x3C0)
type DataHeader struct {
	DataSize    uint64 // bytes of entries following the headers
	SpanIndex   uint32 // N in .datN
	MaxFileSize uint64
}

func (h *DataHeader) MarshalTo(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("headerBytes too short: %d < %d", len(b), HeaderSize)
	}
	b = b[:HeaderSize]
	clear(b)

	le.PutUint32(b[0x00:0x04], HeaderSize)
	le.PutUint32(b[0x04:0x08], headerVersion)
	le.PutUint32(b[0x08:0x0C], 0x10)
	le.PutUint64(b[0x10:0x18], h.DataSize)
	le.PutUint32(b[0x18:0x1C], h.SpanIndex)
	le.PutUint64(b[0x20:0x28], h.MaxFileSize)
	putDigest(b)

	return nil
}

func (h *DataHeader) UnmarshalBytes(b []byte) error {
	if len(b) < HeaderSize {
		return fmt.Errorf("%w: data header too short: %d < %d", ErrFormat, len(b), HeaderSize)
	}
	b = b[:HeaderSize]

	if size := le.Uint32(b[0:4]); size != HeaderSize {
		return fmt.Errorf("%w: unexpected data header size %#x", ErrFormat, size)
	}
	if err := verifyDigest(b); err != nil {
		return fmt.Errorf("data header: %w", err)
	}

	h.DataSize = le.Uint64(b[0x10:0x18])
	h.SpanIndex = le.Uint32(b[0x18:0x1C])
	h.MaxFileSize = le.Uint64(b[0x20:0x28])
	return nil
}

// DataFileHeaders returns the DataStart bytes that begin data file
// spanIndex holding dataSize bytes of entries.
func DataFileHeaders(spanIndex int, dataSize, maxFileSize int64) []byte {
	b := make([]byte, DataStart)
	h := Header{Type: FileTypeData}
	dh := DataHeader{
		DataSize:    uint64(dataSize),
		SpanIndex:   uint32(spanIndex),
		MaxFileSize: uint64(maxFileSize),
	}
	// both only fail on short buffers
	_ = h.MarshalTo(b[:HeaderSize])
	_ = dh.MarshalTo(b[HeaderSize:])
	return b
}

func putDigest(b []byte) {
	digest := sha1.Sum(b[:digestOffset])
	copy(b[digestOffset:digestOffset+digestFieldSize], digest[:])
}

// verifyDigest checks the SHA-1 that ends a header.  Headers written
// without one carry zeros there.
func verifyDigest(b []byte) error {
	var expected [sha1.Size]byte
	copy(expected[:], b[digestOffset:digestOffset+sha1.Size])
	if expected == ([sha1.Size]byte{}) {
		return nil
	}
	if digest := sha1.Sum(b[:digestOffset]); digest != expected {
		return fmt.Errorf("%w: digest failed (%x != %x)", ErrFormat, digest, expected)
	}
	return nil
}
