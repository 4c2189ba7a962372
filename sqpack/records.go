// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package sqpack

import (
	"bytes"
	"cmp"
	"fmt"
	"slices"
	"sort"
)

// Locator packs a data file number and entry offset into 32 bits.
type Locator uint32

// NewLocator returns the locator of the entry at offset in data file
// dataFile.  offset must be Alignment-aligned.
func NewLocator(dataFile int, offset int64) (Locator, error) {
	if dataFile < 0 || dataFile >= MaxDataFiles {
		return 0, fmt.Errorf("%w: data file %d (max %d)", ErrOutOfRange, dataFile, MaxDataFiles)
	}
	if offset < 0 || offset >= maxLocatorOffset || offset%Alignment != 0 {
		return 0, fmt.Errorf("%w: offset %d not locatable", ErrOutOfRange, offset)
	}
	return Locator(uint32(offset/8) | uint32(dataFile)<<1), nil
}

func (l Locator) DataFile() int {
	return int(l>>1) & 0x7
}

func (l Locator) Offset() int64 {
	return int64(l&^0xF) * 8
}

// SynonymLocator marks an index record whose key is shared by several
// paths.  The entries themselves are listed in the synonym table.
const SynonymLocator Locator = 1

func (l Locator) Synonym() bool {
	return l&1 != 0
}

// withoutSynonym clears the synonym bit so index and index2 locators of
// the same entry compare equal.
func (l Locator) withoutSynonym() Locator {
	return l &^ 1
}

// FileRecord is one entry of the primary index.
type FileRecord struct {
	NameHash uint32
	PathHash uint32
	Locator  Locator
}

// Key is the primary index sort key.
func (r FileRecord) Key() uint64 {
	return uint64(r.PathHash)<<32 | uint64(r.NameHash)
}

// Index2Record is one entry of the secondary index.
type Index2Record struct {
	FullHash uint32
	Locator  Locator
}

// FolderRecord points at the run of file records sharing a directory hash.
type FolderRecord struct {
	PathHash   uint32
	FileOffset uint32 // absolute offset of the first file record in the index
	FileSize   uint32 // bytes of file records
}

// SynonymRecord is one entry of a synonym table.  Hash is the record's
// index key: FileRecord.Key in the primary index, the full path hash in
// the secondary index.  Index numbers the records sharing a hash.
type SynonymRecord struct {
	Hash    uint64
	Locator Locator
	Index   uint32
	Path    string
}

// fileTable is a read-only view into encoded primary index records.
type fileTable []byte

func (t fileTable) Len() int {
	return len(t) / FileRecordSize
}

func (t fileTable) At(i int) FileRecord {
	b := t[i*FileRecordSize : (i+1)*FileRecordSize]
	return FileRecord{
		NameHash: le.Uint32(b[0:4]),
		PathHash: le.Uint32(b[4:8]),
		Locator:  Locator(le.Uint32(b[8:12])),
	}
}

// index2Table is a read-only view into encoded secondary index records.
type index2Table []byte

func (t index2Table) Len() int {
	return len(t) / Index2RecordSize
}

func (t index2Table) At(i int) Index2Record {
	b := t[i*Index2RecordSize : (i+1)*Index2RecordSize]
	return Index2Record{
		FullHash: le.Uint32(b[0:4]),
		Locator:  Locator(le.Uint32(b[4:8])),
	}
}

// folderTable is a read-only view into encoded folder records.
type folderTable []byte

func (t folderTable) Len() int {
	return len(t) / FolderRecordSize
}

func (t folderTable) At(i int) FolderRecord {
	b := t[i*FolderRecordSize : (i+1)*FolderRecordSize]
	return FolderRecord{
		PathHash:   le.Uint32(b[0:4]),
		FileOffset: le.Uint32(b[4:8]),
		FileSize:   le.Uint32(b[8:12]),
	}
}

// synonymTable is a read-only view into encoded synonym records.
type synonymTable []byte

func (t synonymTable) Len() int {
	return len(t) / SynonymRecordSize
}

func (t synonymTable) At(i int) SynonymRecord {
	b := t[i*SynonymRecordSize : (i+1)*SynonymRecordSize]
	path := b[synonymPathOffset:]
	if n := bytes.IndexByte(path, 0); n >= 0 {
		path = path[:n]
	}
	return SynonymRecord{
		Hash:    le.Uint64(b[0:8]),
		Locator: Locator(le.Uint32(b[8:12])),
		Index:   le.Uint32(b[12:16]),
		Path:    string(path),
	}
}

func (t synonymTable) hashAt(i int) uint64 {
	return le.Uint64(t[i*SynonymRecordSize:])
}

// lookup returns the records listed under hash.
func (t synonymTable) lookup(hash uint64) []SynonymRecord {
	n := t.Len()
	i := sort.Search(n, func(i int) bool {
		return t.hashAt(i) >= hash
	})
	var out []SynonymRecord
	for ; i < n && t.hashAt(i) == hash; i++ {
		out = append(out, t.At(i))
	}
	return out
}

// encodeSynonyms sorts synonyms by hash and checks that each belongs to
// an index record carrying the synonym bit.
func encodeSynonyms(synonyms []SynonymRecord, marked map[uint64]bool) ([]byte, error) {
	synonyms = slices.Clone(synonyms)
	slices.SortStableFunc(synonyms, func(a, b SynonymRecord) int {
		return cmp.Or(cmp.Compare(a.Hash, b.Hash), cmp.Compare(a.Index, b.Index))
	})

	table := make([]byte, len(synonyms)*SynonymRecordSize)
	for i, r := range synonyms {
		if !marked[r.Hash] {
			return nil, fmt.Errorf("synonym %q: no synonym index record for hash %x", r.Path, r.Hash)
		}
		if r.Path == "" || len(r.Path) > MaxSynonymPath {
			return nil, fmt.Errorf("%w: synonym path %q (max %d bytes)", ErrOutOfRange, r.Path, MaxSynonymPath)
		}
		b := table[i*SynonymRecordSize:]
		le.PutUint64(b[0:8], r.Hash)
		le.PutUint32(b[8:12], uint32(r.Locator))
		le.PutUint32(b[12:16], r.Index)
		copy(b[synonymPathOffset:], r.Path)
	}
	return table, nil
}

// BuildIndex1 encodes a complete .index file for records, which are
// sorted by key.  Duplicate keys are an error.  Records with
// SynonymLocator must have their entries listed in synonyms.
func BuildIndex1(records []FileRecord, synonyms []SynonymRecord, dataFiles int) ([]byte, error) {
	records = slices.Clone(records)
	slices.SortFunc(records, func(a, b FileRecord) int {
		return cmp.Compare(a.Key(), b.Key())
	})

	files := make([]byte, len(records)*FileRecordSize)
	var folders []FolderRecord
	for i, r := range records {
		if i > 0 && records[i-1].Key() == r.Key() {
			return nil, fmt.Errorf("duplicate index key %016x", r.Key())
		}
		b := files[i*FileRecordSize:]
		le.PutUint32(b[0:4], r.NameHash)
		le.PutUint32(b[4:8], r.PathHash)
		le.PutUint32(b[8:12], uint32(r.Locator))

		if n := len(folders); n == 0 || folders[n-1].PathHash != r.PathHash {
			folders = append(folders, FolderRecord{
				PathHash:   r.PathHash,
				FileOffset: uint32(DataStart + i*FileRecordSize),
			})
		}
		folders[len(folders)-1].FileSize += FileRecordSize
	}

	marked := make(map[uint64]bool)
	for _, r := range records {
		if r.Locator.Synonym() {
			marked[r.Key()] = true
		}
	}
	synonymBytes, err := encodeSynonyms(synonyms, marked)
	if err != nil {
		return nil, err
	}

	folderBytes := make([]byte, len(folders)*FolderRecordSize)
	for i, f := range folders {
		b := folderBytes[i*FolderRecordSize:]
		le.PutUint32(b[0:4], f.PathHash)
		le.PutUint32(b[4:8], f.FileOffset)
		le.PutUint32(b[8:12], f.FileSize)
	}

	return buildIndex(IndexType1, files, synonymBytes, folderBytes, dataFiles)
}

// BuildIndex2 encodes a complete .index2 file for records, which are
// sorted by full path hash.  Duplicate hashes are an error.  Records
// with SynonymLocator must have their entries listed in synonyms.
func BuildIndex2(records []Index2Record, synonyms []SynonymRecord, dataFiles int) ([]byte, error) {
	records = slices.Clone(records)
	slices.SortFunc(records, func(a, b Index2Record) int {
		return cmp.Compare(a.FullHash, b.FullHash)
	})

	files := make([]byte, len(records)*Index2RecordSize)
	for i, r := range records {
		if i > 0 && records[i-1].FullHash == r.FullHash {
			return nil, fmt.Errorf("duplicate index2 hash %08x", r.FullHash)
		}
		b := files[i*Index2RecordSize:]
		le.PutUint32(b[0:4], r.FullHash)
		le.PutUint32(b[4:8], uint32(r.Locator))
	}

	marked := make(map[uint64]bool)
	for _, r := range records {
		if r.Locator.Synonym() {
			marked[uint64(r.FullHash)] = true
		}
	}
	synonymBytes, err := encodeSynonyms(synonyms, marked)
	if err != nil {
		return nil, err
	}

	return buildIndex(IndexType2, files, synonymBytes, nil, dataFiles)
}

func buildIndex(t IndexType, files, synonyms, folders []byte, dataFiles int) ([]byte, error) {
	if dataFiles <= 0 || dataFiles > MaxDataFiles {
		return nil, fmt.Errorf("%w: %d data files", ErrOutOfRange, dataFiles)
	}
	filesEnd := DataStart + len(files)
	synonymsEnd := filesEnd + len(synonyms)
	size := synonymsEnd + len(folders)
	if uint64(size) > 1<<32-1 {
		return nil, fmt.Errorf("%w: index too large (%d bytes)", ErrOutOfRange, size)
	}

	b := make([]byte, size)
	h := Header{Type: FileTypeIndex}
	ih := IndexHeader{
		Files:       newSegmentDescriptor(files, DataStart),
		DataFiles:   uint32(dataFiles),
		Synonyms:    newSegmentDescriptor(synonyms, filesEnd),
		EmptyBlocks: newSegmentDescriptor(nil, synonymsEnd),
		Folders:     newSegmentDescriptor(folders, synonymsEnd),
		Type:        t,
	}
	if err := h.MarshalTo(b[:HeaderSize]); err != nil {
		return nil, err
	}
	if err := ih.MarshalTo(b[HeaderSize:DataStart]); err != nil {
		return nil, err
	}
	copy(b[DataStart:], files)
	copy(b[filesEnd:], synonyms)
	copy(b[synonymsEnd:], folders)
	return b, nil
}
