// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package sqpack

import (
	"encoding/binary"
	"errors"
)

const (
	HeaderSize = 0x400
	// DataStart is the offset of the first entry in a data file.
	DataStart = 2 * HeaderSize
	Alignment = 0x80

	MaxDataFiles           = 8
	DefaultMaxDataFileSize = 2_000_000_000

	BlockDataSize     = 16000
	BlockHeaderSize   = 16
	StoredBlockMarker = 32000

	EntryHeaderSize  = 0x18
	BlockLocatorSize = 8

	FileRecordSize   = 16
	FolderRecordSize = 16
	Index2RecordSize = 8

	// SynonymRecordSize is the size of a synonym table record in both
	// index kinds.
	SynonymRecordSize = 0x100
	// MaxSynonymPath is the longest path a synonym record can hold.
	MaxSynonymPath = SynonymRecordSize - synonymPathOffset - 1

	headerVersion     = 1
	digestOffset      = 0x3C0
	digestFieldSize   = 0x40
	descriptorSize    = 8 + digestFieldSize
	synonymPathOffset = 0x10

	maxLocatorOffset = 1 << 35
)

var (
	magic = [8]byte{'S', 'q', 'P', 'a', 'c', 'k'}
	le    = binary.LittleEndian
)

var (
	// ErrFormat is returned when a file is not a SqPack file or is corrupted.
	ErrFormat = errors.New("sqpack: invalid format")
	// ErrOutOfRange is returned for reads outside a data file.
	ErrOutOfRange = errors.New("sqpack: out of range")
	// ErrNotFound is returned when a key is not present in the index.
	ErrNotFound = errors.New("sqpack: not found")
	// ErrUnsupportedEntry is returned when decoding model or texture entries.
	ErrUnsupportedEntry = errors.New("sqpack: unsupported entry type")
)

// FileType is stored in the SqPack header of every file.
type FileType uint32

const (
	FileTypeData  FileType = 1
	FileTypeIndex FileType = 2
)

// IndexType distinguishes the primary and secondary index.
type IndexType uint32

const (
	IndexType1 IndexType = 0
	IndexType2 IndexType = 2
)

// EntryType is the layout of an entry's payload.
type EntryType uint32

const (
	EntryEmpty   EntryType = 1
	EntryBinary  EntryType = 2
	EntryModel   EntryType = 3
	EntryTexture EntryType = 4
)

func (t EntryType) String() string {
	switch t {
	case EntryEmpty:
		return "empty"
	case EntryBinary:
		return "binary"
	case EntryModel:
		return "model"
	case EntryTexture:
		return "texture"
	default:
		return "unknown"
	}
}

// Align rounds n up to the next multiple of Alignment.
func Align(n int64) int64 {
	return (n + Alignment - 1) &^ (Alignment - 1)
}
