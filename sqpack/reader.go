// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package sqpack

import (
	"errors"
	"fmt"
	"iter"
	"sort"
	"strings"

	"github.com/xivalex/vpack/internal/mmap"
	"github.com/xivalex/vpack/pathhash"
)

// Entry is one file of an existing container.
type Entry struct {
	Key     pathhash.Key
	Segment int   // data file number
	Offset  int64 // absolute offset in the data file
	Size    int64 // allocated bytes, from the entry header

	// Unpaired is set when no index2 record shares this entry's locator,
	// in which case Key.FullHash is zero.
	Unpaired bool

	// Synonym is set for entries listed in the synonym table because
	// another path shares their index key.  Path is their normalized
	// logical path; it is empty for ordinary records.
	Synonym bool
	Path    string
}

// Reader provides access to an existing container.  It is safe for
// concurrent use until Close is called.
type Reader struct {
	path      string
	index1    *mmap.File
	index2    *mmap.File
	files     fileTable
	files2    index2Table
	synonyms  synonymTable
	synonyms2 synonymTable
	folders   folderTable
	dat       []*mmap.File
}

// Open opens the container whose primary index is at indexPath (ending in
// ".index"), along with the .index2 and .datN files next to it.
func Open(indexPath string) (r *Reader, err error) {
	base, ok := strings.CutSuffix(indexPath, ".index")
	if !ok {
		return nil, fmt.Errorf("index path %q doesn't end in .index", indexPath)
	}

	r = &Reader{path: indexPath}
	defer func() {
		if err != nil {
			_ = r.Close()
			r = nil
		}
	}()

	var h1, h2 IndexHeader
	if r.index1, err = mmap.Open(indexPath); err != nil {
		return nil, err
	}
	if h1, err = parseIndex(r.index1, IndexType1); err != nil {
		return nil, fmt.Errorf("%s: %w", indexPath, err)
	}
	if r.index2, err = mmap.Open(base + ".index2"); err != nil {
		return nil, err
	}
	if h2, err = parseIndex(r.index2, IndexType2); err != nil {
		return nil, fmt.Errorf("%s.index2: %w", base, err)
	}
	if h1.DataFiles != h2.DataFiles {
		return nil, fmt.Errorf("%w: index declares %d data files, index2 %d", ErrFormat, h1.DataFiles, h2.DataFiles)
	}

	if err = r.loadTables(h1, h2); err != nil {
		return nil, fmt.Errorf("%s: %w", indexPath, err)
	}

	for i := range int(h1.DataFiles) {
		path := fmt.Sprintf("%s.dat%d", base, i)
		f, err := openDataFile(path, i)
		if err != nil {
			return nil, err
		}
		r.dat = append(r.dat, f)
	}

	return r, nil
}

func parseIndex(f *mmap.File, want IndexType) (IndexHeader, error) {
	var ih IndexHeader
	b := make([]byte, DataStart)
	if n, _ := f.ReadAt(b, 0); n != DataStart {
		return ih, fmt.Errorf("%w: file too short: %d < %d", ErrFormat, f.Len(), DataStart)
	}

	var h Header
	if err := h.UnmarshalBytes(b[:HeaderSize]); err != nil {
		return ih, err
	}
	if h.Type != FileTypeIndex {
		return ih, fmt.Errorf("%w: file type %d is not an index", ErrFormat, h.Type)
	}
	if err := ih.UnmarshalBytes(b[HeaderSize:]); err != nil {
		return ih, err
	}
	if ih.Type != want {
		return ih, fmt.Errorf("%w: index type %d, expected %d", ErrFormat, ih.Type, want)
	}
	return ih, nil
}

func readAll(f *mmap.File) ([]byte, error) {
	if data := f.Data(); data != nil || f.Len() == 0 {
		return data, nil
	}
	// no direct mapping on this platform
	b := make([]byte, f.Len())
	if _, err := f.ReadAt(b, 0); err != nil {
		return nil, fmt.Errorf("ReadAt: %w", err)
	}
	return b, nil
}

func (r *Reader) loadTables(h1, h2 IndexHeader) error {
	data1, err := readAll(r.index1)
	if err != nil {
		return err
	}
	data2, err := readAll(r.index2)
	if err != nil {
		return err
	}

	files, err := h1.Files.slice(data1, FileRecordSize, "file")
	if err != nil {
		return err
	}
	folders, err := h1.Folders.slice(data1, FolderRecordSize, "folder")
	if err != nil {
		return err
	}
	synonyms, err := h1.Synonyms.slice(data1, SynonymRecordSize, "synonym")
	if err != nil {
		return err
	}
	files2, err := h2.Files.slice(data2, Index2RecordSize, "index2 file")
	if err != nil {
		return err
	}
	synonyms2, err := h2.Synonyms.slice(data2, SynonymRecordSize, "index2 synonym")
	if err != nil {
		return err
	}
	r.files = fileTable(files)
	r.folders = folderTable(folders)
	r.synonyms = synonymTable(synonyms)
	r.files2 = index2Table(files2)
	r.synonyms2 = synonymTable(synonyms2)

	for i := 1; i < r.files.Len(); i++ {
		if prev, cur := r.files.At(i-1).Key(), r.files.At(i).Key(); prev >= cur {
			return fmt.Errorf("%w: file records not strictly ascending at %d (%016x >= %016x)", ErrFormat, i, prev, cur)
		}
	}
	for i := 1; i < r.files2.Len(); i++ {
		if prev, cur := r.files2.At(i-1).FullHash, r.files2.At(i).FullHash; prev >= cur {
			return fmt.Errorf("%w: index2 records not strictly ascending at %d (%08x >= %08x)", ErrFormat, i, prev, cur)
		}
	}
	for _, t := range []synonymTable{r.synonyms, r.synonyms2} {
		for i := 1; i < t.Len(); i++ {
			if prev, cur := t.hashAt(i-1), t.hashAt(i); prev > cur {
				return fmt.Errorf("%w: synonym records not ascending at %d (%x > %x)", ErrFormat, i, prev, cur)
			}
		}
	}
	return nil
}

func openDataFile(path string, spanIndex int) (*mmap.File, error) {
	f, err := mmap.Open(path)
	if err != nil {
		return nil, err
	}

	b := make([]byte, DataStart)
	if n, _ := f.ReadAt(b, 0); n != DataStart {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w: data file too short: %d < %d", path, ErrFormat, f.Len(), DataStart)
	}
	var h Header
	var dh DataHeader
	if err := h.UnmarshalBytes(b[:HeaderSize]); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if err := dh.UnmarshalBytes(b[HeaderSize:]); err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	if h.Type != FileTypeData {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w: file type %d is not data", path, ErrFormat, h.Type)
	}
	if int(dh.SpanIndex) != spanIndex {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w: span index %d, expected %d", path, ErrFormat, dh.SpanIndex, spanIndex)
	}
	if DataStart+dh.DataSize > uint64(f.Len()) {
		_ = f.Close()
		return nil, fmt.Errorf("%s: %w: %d data bytes declared in a %d byte file", path, ErrFormat, dh.DataSize, f.Len())
	}
	return f, nil
}

// Path returns the path of the primary index.
func (r *Reader) Path() string {
	return r.path
}

// NumSegments returns the number of data files.
func (r *Reader) NumSegments() int {
	return len(r.dat)
}

// SegmentSize returns the size in bytes of data file segment.
func (r *Reader) SegmentSize(segment int) int64 {
	if segment < 0 || segment >= len(r.dat) {
		return 0
	}
	return r.dat[segment].Len()
}

// Len returns the number of primary index records.
func (r *Reader) Len() int {
	return r.files.Len()
}

// NumFolders returns the number of folder records in the primary index.
func (r *Reader) NumFolders() int {
	return r.folders.Len()
}

// ReadRaw fills p with the bytes at offset in data file segment.  The
// whole range must lie inside the file.
func (r *Reader) ReadRaw(segment int, offset int64, p []byte) (int, error) {
	if segment < 0 || segment >= len(r.dat) {
		return 0, fmt.Errorf("%w: data file %d (have %d)", ErrOutOfRange, segment, len(r.dat))
	}
	size := r.dat[segment].Len()
	if offset < 0 || offset > size || int64(len(p)) > size-offset {
		return 0, fmt.Errorf("%w: [%d, %d) in dat%d of %d bytes", ErrOutOfRange, offset, offset+int64(len(p)), segment, size)
	}
	n, err := r.dat[segment].ReadAt(p, offset)
	if err != nil {
		return n, fmt.Errorf("dat%d ReadAt(%d, len: %d): %w", segment, offset, len(p), err)
	}
	return n, nil
}

func (r *Reader) entryAt(key pathhash.Key, loc Locator) (Entry, error) {
	e := Entry{
		Key:     key,
		Segment: loc.DataFile(),
		Offset:  loc.Offset(),
	}
	if e.Segment >= len(r.dat) {
		return Entry{}, fmt.Errorf("%w: record %s points at missing dat%d", ErrFormat, key, e.Segment)
	}

	var hb [EntryHeaderSize]byte
	if _, err := r.ReadRaw(e.Segment, e.Offset, hb[:]); err != nil {
		return Entry{}, fmt.Errorf("%w: record %s: %s", ErrFormat, key, err)
	}
	var h EntryHeader
	if err := h.UnmarshalBytes(hb[:]); err != nil {
		return Entry{}, fmt.Errorf("record %s: %w", key, err)
	}
	e.Size = h.AllocatedSize()
	if e.Offset+e.Size > r.dat[e.Segment].Len() {
		return Entry{}, fmt.Errorf("%w: record %s: entry of %d bytes at %d overruns dat%d", ErrFormat, key, e.Size, e.Offset, e.Segment)
	}
	return e, nil
}

// synonymEntries resolves the primary synonym records listed under hash.
func (r *Reader) synonymEntries(hash uint64) ([]Entry, error) {
	var entries []Entry
	for _, syn := range r.synonyms.lookup(hash) {
		if syn.Path == "" {
			continue
		}
		path, err := pathhash.Normalize(syn.Path)
		if err != nil {
			return nil, fmt.Errorf("%w: synonym %q: %s", ErrFormat, syn.Path, err)
		}
		key := pathhash.MustHash(path)
		if key.Index1() != hash {
			return nil, fmt.Errorf("%w: synonym %q hashes to %016x, listed under %016x", ErrFormat, path, key.Index1(), hash)
		}
		e, err := r.entryAt(key, syn.Locator)
		if err != nil {
			return nil, err
		}
		e.Synonym = true
		e.Path = path
		entries = append(entries, e)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("%w: synonym record %016x has no synonym table entries", ErrFormat, hash)
	}
	return entries, nil
}

// Entries returns every entry in index order (ascending key).  Index and
// index2 records are paired by locator.  Entries sharing a key are
// resolved through the synonym table, in table order.  The sequence stops
// after the first error; ranging over it again re-reads the index.
func (r *Reader) Entries() iter.Seq2[Entry, error] {
	return func(yield func(Entry, error) bool) {
		fullHashes := make(map[Locator]uint32, r.files2.Len())
		for i := range r.files2.Len() {
			rec := r.files2.At(i)
			if !rec.Locator.Synonym() {
				fullHashes[rec.Locator] = rec.FullHash
			}
		}
		for i := range r.synonyms2.Len() {
			syn := r.synonyms2.At(i)
			fullHashes[syn.Locator.withoutSynonym()] = uint32(syn.Hash)
		}

		for i := range r.files.Len() {
			rec := r.files.At(i)
			if rec.Locator.Synonym() {
				entries, err := r.synonymEntries(rec.Key())
				if err != nil {
					yield(Entry{}, err)
					return
				}
				for _, e := range entries {
					if !yield(e, nil) {
						return
					}
				}
				continue
			}

			e, err := r.entryAt(pathhash.Key{PathHash: rec.PathHash, NameHash: rec.NameHash}, rec.Locator)
			if err != nil {
				yield(Entry{}, err)
				return
			}
			if fullHash, ok := fullHashes[rec.Locator.withoutSynonym()]; ok {
				e.Key.FullHash = fullHash
			} else {
				e.Unpaired = true
			}
			if !yield(e, nil) {
				return
			}
		}
	}
}

// Index2Only counts index2 records without a matching primary record.
// Synonym table entries are counted individually.
func (r *Reader) Index2Only() int {
	locators := make(map[Locator]struct{}, r.files.Len())
	for i := range r.files.Len() {
		if loc := r.files.At(i).Locator; !loc.Synonym() {
			locators[loc] = struct{}{}
		}
	}
	for i := range r.synonyms.Len() {
		locators[r.synonyms.At(i).Locator.withoutSynonym()] = struct{}{}
	}

	n := 0
	for i := range r.files2.Len() {
		loc := r.files2.At(i).Locator
		if loc.Synonym() {
			continue
		}
		if _, ok := locators[loc]; !ok {
			n++
		}
	}
	for i := range r.synonyms2.Len() {
		if _, ok := locators[r.synonyms2.At(i).Locator.withoutSynonym()]; !ok {
			n++
		}
	}
	return n
}

// Lookup finds the entry for key by binary search over the primary index.
// When several paths share key's primary hash, the one whose full hash
// matches is returned.
func (r *Reader) Lookup(key pathhash.Key) (Entry, error) {
	return r.lookup(key, "")
}

func (r *Reader) lookup(key pathhash.Key, path string) (Entry, error) {
	k := key.Index1()
	n := r.files.Len()
	i := sort.Search(n, func(i int) bool {
		return r.files.At(i).Key() >= k
	})
	if i == n || r.files.At(i).Key() != k {
		return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
	}

	rec := r.files.At(i)
	if !rec.Locator.Synonym() {
		e, err := r.entryAt(key, rec.Locator)
		if err != nil {
			return Entry{}, err
		}
		return e, nil
	}

	entries, err := r.synonymEntries(k)
	if err != nil {
		return Entry{}, err
	}
	for _, e := range entries {
		if (path != "" && e.Path == path) || (path == "" && e.Key.FullHash == key.FullHash) {
			return e, nil
		}
	}
	return Entry{}, fmt.Errorf("%w: %s", ErrNotFound, key)
}

// ReadEntry returns the stored (still encoded) bytes of e.
func (r *Reader) ReadEntry(e Entry) ([]byte, error) {
	b := make([]byte, e.Size)
	if _, err := r.ReadRaw(e.Segment, e.Offset, b); err != nil {
		return nil, err
	}
	return b, nil
}

// ReadFile looks up path and returns its decoded contents.
func (r *Reader) ReadFile(path string) ([]byte, error) {
	normalized, err := pathhash.Normalize(path)
	if err != nil {
		return nil, err
	}
	e, err := r.lookup(pathhash.MustHash(normalized), normalized)
	if err != nil {
		return nil, err
	}
	b, err := r.ReadEntry(e)
	if err != nil {
		return nil, err
	}
	return DecodeEntry(b)
}

// Close releases all mappings.  The Reader must not be used afterward.
func (r *Reader) Close() error {
	var errs []error
	for _, f := range append([]*mmap.File{r.index1, r.index2}, r.dat...) {
		if f == nil {
			continue
		}
		if err := f.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	r.dat = nil
	return errors.Join(errs...)
}
