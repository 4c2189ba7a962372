// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xivalex/vpack/pathhash"
	"github.com/xivalex/vpack/sqpack"
)

func TestNewBuilder_Options(t *testing.T) {
	for _, opt := range []Option{
		WithLogger(nil),
		WithMaxSegmentSize(sqpack.DataStart),
		WithMaxSegmentSize(1 << 36),
		WithCompressionLevel(42),
		WithChunkSize(0),
	} {
		_, err := NewBuilder(opt)
		assert.Error(t, err)
	}

	b, err := NewBuilder(WithMaxSegmentSize(1<<20), WithCompressionLevel(9), WithChunkSize(4096))
	require.NoError(t, err)
	assert.Zero(t, b.Len())
	require.NoError(t, b.Close())
}

func TestBuilder_InvalidPaths(t *testing.T) {
	b := newTestBuilder(t)
	local := writeFile(t, t.TempDir(), "f.bin", []byte("x"))

	for _, path := range []string{"", "/a.tex", "a/", "a//b.tex", strings.Repeat("a", pathhash.MaxPathLength+1)} {
		assert.ErrorIs(t, b.AddEntryFromBuffer(path, nil), ErrInvalidPath, path)
		assert.ErrorIs(t, b.AddEntryFromFile(path, local), ErrInvalidPath, path)
	}
	assert.Zero(t, b.Len())

	err := b.AddEntryFromFile("a/b.tex", filepath.Join(t.TempDir(), "missing"))
	assert.ErrorIs(t, err, ErrSourceRead)
	err = b.AddEntryFromFile("a/b.tex", t.TempDir())
	assert.ErrorIs(t, err, ErrSourceRead)
	assert.Zero(t, b.Len())
}

// a 50,000 byte entry imported from a container and a 200 byte override
// share one data file when it is large enough for both
func TestFreeze_OriginalAndOverrideShareSegment(t *testing.T) {
	dir := t.TempDir()
	indexPath := writeContainer(t, dir, "source", []testFile{
		{"a/b.tex", make([]byte, 50000)},
	})
	override := writeFile(t, dir, "c.tex", make([]byte, 200))

	origSize := sqpack.BinaryHeaderSize(4) +
		3*sqpack.Align(sqpack.BlockHeaderSize+sqpack.BlockDataSize) +
		sqpack.Align(sqpack.BlockHeaderSize+2000)
	overrideSize := sqpack.BinaryHeaderSize(1) + sqpack.Align(sqpack.BlockHeaderSize+200)
	fits := sqpack.DataStart + origSize + overrideSize

	for _, tc := range []struct {
		maxSize  int64
		segments int
	}{
		{DefaultMaxSegmentSize, 1},
		{fits, 1},
		{fits - 1, 2},
	} {
		b := newTestBuilder(t, WithMaxSegmentSize(tc.maxSize))
		require.NoError(t, b.AddEntriesFromSqPack(indexPath, false, true))
		require.NoError(t, b.AddEntryFromFile("a/c.tex", override))
		require.Equal(t, 2, b.Len())

		p, err := b.Freeze(false)
		require.NoError(t, err)
		assert.Equal(t, tc.segments, p.NumOfDataFiles(), "max size %d", tc.maxSize)

		a, ok := p.Lookup(pathhash.MustHash("a/b.tex"))
		require.True(t, ok)
		assert.Equal(t, KindOriginal, a.Kind)
		assert.Equal(t, origSize, a.Size)
		c, ok := p.Lookup(pathhash.MustHash("a/c.tex"))
		require.True(t, ok)
		assert.Equal(t, KindOverride, c.Kind)
		assert.Equal(t, "a/c.tex", c.Path)
		assert.Equal(t, overrideSize, c.Size)

		var total int64
		for i := range p.NumOfDataFiles() {
			total += p.DataSize(i) - sqpack.DataStart
			assert.LessOrEqual(t, p.DataSize(i), tc.maxSize)
		}
		assert.Equal(t, origSize+overrideSize, total)
		require.NoError(t, p.Close())
	}
}

func TestAddEntryFromFile_ReplacesImportedEntry(t *testing.T) {
	dir := t.TempDir()
	files := sampleFiles()
	indexPath := writeContainer(t, dir, "source", append(files, testFile{"a/b.tex", []byte("original")}))
	override := writeFile(t, dir, "override.tex", []byte("replacement"))

	b := newTestBuilder(t)
	require.NoError(t, b.AddEntriesFromSqPack(indexPath, false, true))
	n := b.Len()
	require.Equal(t, len(files)+1, n)

	require.NoError(t, b.AddEntryFromFile("A/B.TEX", override))
	assert.Equal(t, n, b.Len())
	// twice is the same as once
	require.NoError(t, b.AddEntryFromFile("a\\b.tex", override))
	assert.Equal(t, n, b.Len())

	p, err := b.Freeze(false)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()
	assert.Equal(t, n, p.Len())

	e, ok := p.Lookup(pathhash.MustHash("a/b.tex"))
	require.True(t, ok)
	assert.Equal(t, KindOverride, e.Kind)
	assert.Equal(t, "a/b.tex", e.Path)

	out := t.TempDir()
	require.NoError(t, p.Export(t.Context(), out, "merged"))
	r := openContainer(t, filepath.Join(out, "merged.index"))
	assert.Equal(t, n, r.Len())
	contents, err := r.ReadFile("a/b.tex")
	require.NoError(t, err)
	assert.Equal(t, "replacement", string(contents))
	for _, f := range files {
		contents, err := r.ReadFile(f.path)
		require.NoError(t, err)
		assert.Equal(t, len(f.contents), len(contents), f.path)
		assert.True(t, string(f.contents) == string(contents), f.path)
	}
}

func TestAddEntryFromFile_Idempotent(t *testing.T) {
	dir := t.TempDir()
	local := writeFile(t, dir, "x.bin", []byte("same"))

	once := newTestBuilder(t)
	require.NoError(t, once.AddEntryFromFile("x/y.bin", local))
	twice := newTestBuilder(t)
	require.NoError(t, twice.AddEntryFromFile("x/y.bin", local))
	require.NoError(t, twice.AddEntryFromFile("X/Y.BIN", local))

	p1, err := once.Freeze(false)
	require.NoError(t, err)
	p2, err := twice.Freeze(false)
	require.NoError(t, err)
	assert.Equal(t, p1.Entries(), p2.Entries())
	assert.Equal(t, readSegment(t, p1, 0, 4096), readSegment(t, p2, 0, 4096))

	var idx1, idx2 safeBuffer
	_, err = p1.WriteIndex1(&idx1)
	require.NoError(t, err)
	_, err = p2.WriteIndex1(&idx2)
	require.NoError(t, err)
	assert.Equal(t, idx1.Bytes(), idx2.Bytes())
}

func TestImport_OverridesAlwaysWin(t *testing.T) {
	dir := t.TempDir()
	first := writeContainer(t, dir, "first", []testFile{{"a/b.tex", []byte("first")}, {"only/first.tex", []byte("1")}})
	second := writeContainer(t, dir, "second", []testFile{{"a/b.tex", []byte("second")}, {"only/second.tex", []byte("2")}})

	read := func(t *testing.T, p *Pack, path string) string {
		out := t.TempDir()
		require.NoError(t, p.Export(t.Context(), out, "out"))
		r := openContainer(t, filepath.Join(out, "out.index"))
		b, err := r.ReadFile(path)
		require.NoError(t, err)
		return string(b)
	}

	for _, tc := range []struct {
		name            string
		replaceExisting bool
		override        bool
		want            string
	}{
		{"keep first", false, false, "first"},
		{"replace with second", true, false, "second"},
		{"override before imports", false, true, "override"},
		{"override survives replace", true, true, "override"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			b := newTestBuilder(t)
			if tc.override {
				require.NoError(t, b.AddEntryFromBuffer("a/b.tex", []byte("override")))
			}
			require.NoError(t, b.AddEntriesFromSqPack(first, tc.replaceExisting, true))
			require.NoError(t, b.AddEntriesFromSqPack(second, tc.replaceExisting, true))
			assert.Equal(t, 3, b.Len())

			p, err := b.Freeze(false)
			require.NoError(t, err)
			defer func() {
				require.NoError(t, p.Close())
			}()
			assert.Equal(t, tc.want, read(t, p, "a/b.tex"))
			assert.Equal(t, "1", read(t, p, "only/first.tex"))
			assert.Equal(t, "2", read(t, p, "only/second.tex"))
		})
	}
}

func TestImportFromArchive_CallerOwnsReader(t *testing.T) {
	files := sampleFiles()
	indexPath := writeContainer(t, t.TempDir(), "source", files)
	r := openContainer(t, indexPath)

	b := newTestBuilder(t)
	require.NoError(t, b.ImportFromArchive(r, false, true))
	assert.Equal(t, len(files), b.Len())
	p, err := b.Freeze(false)
	require.NoError(t, err)
	require.NoError(t, p.Close())

	// still open
	_, err = r.ReadFile(files[0].path)
	assert.NoError(t, err)
}

// dropIndex2Record rewrites the secondary index of the container without
// the record for path.
func dropIndex2Record(t *testing.T, indexPath, path string) {
	r, err := sqpack.Open(indexPath)
	require.NoError(t, err)
	drop := pathhash.MustHash(path)
	var records []sqpack.Index2Record
	for e, err := range r.Entries() {
		require.NoError(t, err)
		if e.Key == drop {
			continue
		}
		loc, err := sqpack.NewLocator(e.Segment, e.Offset)
		require.NoError(t, err)
		records = append(records, sqpack.Index2Record{FullHash: e.Key.FullHash, Locator: loc})
	}
	segments := r.NumSegments()
	require.NoError(t, r.Close())

	index2, err := sqpack.BuildIndex2(records, nil, segments)
	require.NoError(t, err)
	index2Path := indexPath + "2"
	require.NoError(t, os.Remove(index2Path))
	require.NoError(t, os.WriteFile(index2Path, index2, 0644))
}

func TestImport_UnpairedRecords(t *testing.T) {
	files := sampleFiles()
	indexPath := writeContainer(t, t.TempDir(), "unpaired", files)
	dropIndex2Record(t, indexPath, files[0].path)

	b := newTestBuilder(t)
	err := b.AddEntriesFromSqPack(indexPath, false, true)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Zero(t, b.Len())

	var logs safeBuffer
	b = newTestBuilder(t, WithLogger(testLogger(&logs)))
	require.NoError(t, b.AddEntriesFromSqPack(indexPath, false, false))
	assert.Equal(t, len(files)-1, b.Len())
	assert.Contains(t, logs.String(), "skipping entry without index2 record")

	p, err := b.Freeze(false)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()
	_, ok := p.Lookup(pathhash.MustHash(files[0].path))
	assert.False(t, ok)
}

func TestImport_BadContainer(t *testing.T) {
	dir := t.TempDir()
	indexPath := writeContainer(t, dir, "bad", sampleFiles())

	b := newTestBuilder(t)
	_, err := os.Stat(indexPath)
	require.NoError(t, err)
	assert.Error(t, b.AddEntriesFromSqPack(filepath.Join(dir, "missing.index"), false, true))

	require.NoError(t, os.Remove(datPath(indexPath, 0)))
	require.NoError(t, os.WriteFile(datPath(indexPath, 0), []byte("not a data file"), 0644))
	err = b.AddEntriesFromSqPack(indexPath, false, true)
	assert.ErrorIs(t, err, ErrFormat)
	assert.Zero(t, b.Len())
}

// collidingNames returns two distinct paths in one directory that share
// a key.  The names have the same length, so the full hashes match too.
func collidingNames() (string, string) {
	return "chara/29iglcy1a8.bin", "chara/bx6ab_8zsw.bin"
}

func TestAddEntry_Collision(t *testing.T) {
	a, c := collidingNames()
	require.NotEqual(t, a, c)
	require.Equal(t, pathhash.MustHash(a).Index1(), pathhash.MustHash(c).Index1())

	b := newTestBuilder(t)
	require.NoError(t, b.AddEntryFromBuffer(a, []byte("a")))
	err := b.AddEntryFromBuffer(c, []byte("c"))
	require.ErrorIs(t, err, ErrCollision)

	var collision *CollisionError
	require.ErrorAs(t, err, &collision)
	assert.Equal(t, a, collision.Existing)
	assert.Equal(t, c, collision.Incoming)

	local := writeFile(t, t.TempDir(), "c.tex", []byte("c"))
	assert.ErrorIs(t, b.AddEntryFromFile(c, local), ErrCollision)
	assert.Equal(t, 1, b.Len())

	// imported entries only carry their hashes
	imported := &CollisionError{Key: pathhash.MustHash(c), Incoming: c}
	assert.Contains(t, imported.Error(), "<imported entry>")
}

func TestImport_CollisionWithOverride(t *testing.T) {
	// same primary key, different full hash
	imported, local := "chara/9jd5ofces.tex", "chara/32il9f4xt8.tex"
	ki, kl := pathhash.MustHash(imported), pathhash.MustHash(local)
	require.Equal(t, ki.Index1(), kl.Index1())
	require.NotEqual(t, ki.FullHash, kl.FullHash)

	indexPath := writeContainer(t, t.TempDir(), "source", []testFile{
		{imported, []byte("imported")},
		{"exd/root.exl", []byte("root")},
	})

	b := newTestBuilder(t)
	require.NoError(t, b.AddEntryFromBuffer(local, []byte("override")))

	for _, replaceExisting := range []bool{false, true} {
		err := b.AddEntriesFromSqPack(indexPath, replaceExisting, true)
		require.ErrorIs(t, err, ErrCollision)

		var collision *CollisionError
		require.ErrorAs(t, err, &collision)
		assert.Equal(t, local, collision.Existing)
		assert.Empty(t, collision.Incoming)
		// nothing from the container was added
		assert.Equal(t, 1, b.Len())
	}

	p, err := b.Freeze(false)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()
	e, ok := p.LookupPath(local)
	require.True(t, ok)
	assert.Equal(t, KindSynthetic, e.Kind)
	_, ok = p.Lookup(ki)
	assert.False(t, ok)
}

func TestImport_ReplaceExistingCollision(t *testing.T) {
	dir := t.TempDir()
	first := writeContainer(t, dir, "first", []testFile{
		{"chara/9jd5ofces.tex", []byte("first")},
	})
	second := writeContainer(t, dir, "second", []testFile{
		{"chara/32il9f4xt8.tex", []byte("second")},
		{"exd/root.exl", []byte("root")},
	})

	b := newTestBuilder(t)
	require.NoError(t, b.AddEntriesFromSqPack(first, false, true))
	// a different path under the same key is never silently replaced
	assert.ErrorIs(t, b.AddEntriesFromSqPack(second, true, true), ErrCollision)
	assert.ErrorIs(t, b.AddEntriesFromSqPack(second, false, true), ErrCollision)
	assert.Equal(t, 1, b.Len())

	// the same path is, when asked to
	third := writeContainer(t, dir, "third", []testFile{
		{"chara/9jd5ofces.tex", []byte("third")},
	})
	require.NoError(t, b.AddEntriesFromSqPack(third, true, true))
	assert.Equal(t, 1, b.Len())

	p, err := b.Freeze(false)
	require.NoError(t, err)
	out := t.TempDir()
	require.NoError(t, p.Export(t.Context(), out, "merged"))
	require.NoError(t, p.Close())

	r := openContainer(t, filepath.Join(out, "merged.index"))
	contents, err := r.ReadFile("chara/9jd5ofces.tex")
	require.NoError(t, err)
	assert.Equal(t, "third", string(contents))
}

func TestImportFromArchive_NilReader(t *testing.T) {
	b := newTestBuilder(t)
	assert.Error(t, b.ImportFromArchive(nil, false, true))
	assert.Zero(t, b.Len())

	// the builder is still usable
	require.NoError(t, b.AddEntryFromBuffer("a/b.tex", nil))
	assert.Equal(t, 1, b.Len())
}

// writeSynonymContainer writes a container holding a and c, which share
// every hash, through the synonym tables.
func writeSynonymContainer(t *testing.T, dir, name string, a, c testFile) string {
	// lay the payloads out under unrelated paths, then point new indexes at them
	indexPath := writeContainer(t, dir, name, []testFile{
		{"layout/a.bin", a.contents},
		{"layout/c.bin", c.contents},
	})
	r, err := sqpack.Open(indexPath)
	require.NoError(t, err)
	locs := make(map[pathhash.Key]sqpack.Locator)
	for e, err := range r.Entries() {
		require.NoError(t, err)
		loc, err := sqpack.NewLocator(e.Segment, e.Offset)
		require.NoError(t, err)
		locs[e.Key] = loc
	}
	require.NoError(t, r.Close())
	la, lc := locs[pathhash.MustHash("layout/a.bin")], locs[pathhash.MustHash("layout/c.bin")]

	k := pathhash.MustHash(a.path)
	require.Equal(t, k, pathhash.MustHash(c.path))
	index1, err := sqpack.BuildIndex1(
		[]sqpack.FileRecord{{NameHash: k.NameHash, PathHash: k.PathHash, Locator: sqpack.SynonymLocator}},
		[]sqpack.SynonymRecord{
			{Hash: k.Index1(), Locator: la, Index: 0, Path: a.path},
			{Hash: k.Index1(), Locator: lc, Index: 1, Path: c.path},
		}, 1)
	require.NoError(t, err)
	index2, err := sqpack.BuildIndex2(
		[]sqpack.Index2Record{{FullHash: k.FullHash, Locator: sqpack.SynonymLocator}},
		[]sqpack.SynonymRecord{
			{Hash: uint64(k.FullHash), Locator: la, Index: 0, Path: a.path},
			{Hash: uint64(k.FullHash), Locator: lc, Index: 1, Path: c.path},
		}, 1)
	require.NoError(t, err)

	// exported files are read-only
	for path, b := range map[string][]byte{indexPath: index1, indexPath + "2": index2} {
		require.NoError(t, os.Remove(path))
		require.NoError(t, os.WriteFile(path, b, 0644))
	}
	return indexPath
}

func TestImport_Synonyms(t *testing.T) {
	a, c := collidingNames()
	dir := t.TempDir()
	indexPath := writeSynonymContainer(t, dir, "synonyms",
		testFile{a, []byte("first")},
		testFile{c, []byte("second")})

	b := newTestBuilder(t)
	require.NoError(t, b.AddEntriesFromSqPack(indexPath, false, true))
	assert.Equal(t, 2, b.Len())

	// importing again keeps both
	require.NoError(t, b.AddEntriesFromSqPack(indexPath, true, true))
	assert.Equal(t, 2, b.Len())

	// an override replaces just its own path
	require.NoError(t, b.AddEntryFromBuffer(strings.ToUpper(c), []byte("replaced")))
	assert.Equal(t, 2, b.Len())

	p, err := b.Freeze(false)
	require.NoError(t, err)
	ea, ok := p.LookupPath(a)
	require.True(t, ok)
	assert.Equal(t, KindOriginal, ea.Kind)
	assert.Equal(t, a, ea.Path)
	ec, ok := p.LookupPath(c)
	require.True(t, ok)
	assert.Equal(t, KindSynthetic, ec.Kind)
	assert.NotEqual(t, ea.Offset, ec.Offset)

	out := t.TempDir()
	require.NoError(t, p.Export(t.Context(), out, "merged"))
	require.NoError(t, p.Close())

	r := openContainer(t, filepath.Join(out, "merged.index"))
	assert.Equal(t, 1, r.Len())
	assert.Zero(t, r.Index2Only())
	for path, want := range map[string]string{a: "first", c: "replaced"} {
		contents, err := r.ReadFile(path)
		require.NoError(t, err, path)
		assert.Equal(t, want, string(contents), path)
	}
}

func TestFreeze_FullHashCollision(t *testing.T) {
	var a, c string
	seen := make(map[uint32]string)
	for i := 0; a == "" && i < 1<<21; i++ {
		path := fmt.Sprintf("d%d/f%d.tex", i, i)
		k := pathhash.MustHash(path)
		if prev, ok := seen[k.FullHash]; ok && pathhash.MustHash(prev).Index1() != k.Index1() {
			a, c = prev, path
		}
		seen[k.FullHash] = path
	}
	require.NotEmpty(t, a)

	b := newTestBuilder(t)
	require.NoError(t, b.AddEntryFromBuffer(a, []byte("a")))
	require.NoError(t, b.AddEntryFromBuffer(c, []byte("c")))

	_, err := b.Freeze(false)
	assert.ErrorIs(t, err, ErrCollision)

	// still open
	assert.Equal(t, 2, b.Len())
	require.NoError(t, b.AddEntryFromBuffer("x/y.tex", nil))
	assert.Equal(t, 3, b.Len())
}

func TestFreeze_Limits(t *testing.T) {
	// a 112 byte payload occupies 256 bytes
	small := make([]byte, 112)
	maxSize := int64(sqpack.DataStart + 256)

	b := newTestBuilder(t, WithMaxSegmentSize(maxSize))
	require.NoError(t, b.AddEntryFromBuffer("big/one.bin", make([]byte, 113)))
	_, err := b.Freeze(false)
	assert.ErrorIs(t, err, ErrEntryTooLarge)
	require.NoError(t, b.AddEntryFromBuffer("big/one.bin", small))

	for i := range sqpack.MaxDataFiles - 1 {
		require.NoError(t, b.AddEntryFromBuffer(fmt.Sprintf("small/%d.bin", i), small))
	}
	p, err := b.Freeze(false)
	require.NoError(t, err)
	assert.Equal(t, sqpack.MaxDataFiles, p.NumOfDataFiles())
	for i := range p.NumOfDataFiles() {
		assert.Equal(t, maxSize, p.DataSize(i))
	}
	require.NoError(t, p.Close())

	b = newTestBuilder(t, WithMaxSegmentSize(maxSize))
	for i := range sqpack.MaxDataFiles + 1 {
		require.NoError(t, b.AddEntryFromBuffer(fmt.Sprintf("small/%d.bin", i), small))
	}
	_, err = b.Freeze(false)
	assert.ErrorIs(t, err, ErrTooManySegments)
}

func TestBuilder_Frozen(t *testing.T) {
	dir := t.TempDir()
	indexPath := writeContainer(t, dir, "source", sampleFiles())
	local := writeFile(t, dir, "f.bin", []byte("f"))

	b := newTestBuilder(t)
	p, err := b.Freeze(false)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()
	// an empty pack is still a valid container
	assert.Equal(t, 1, p.NumOfDataFiles())
	assert.Equal(t, int64(sqpack.DataStart), p.DataSize(0))

	assert.ErrorIs(t, b.AddEntryFromBuffer("a/b.tex", nil), ErrFrozen)
	assert.ErrorIs(t, b.AddEntryFromFile("a/b.tex", local), ErrFrozen)
	assert.ErrorIs(t, b.AddEntriesFromSqPack(indexPath, true, true), ErrFrozen)
	assert.ErrorIs(t, b.ImportFromArchive(nil, true, true), ErrFrozen)
	_, err = b.AddEntriesFromDir(dir)
	assert.ErrorIs(t, err, ErrFrozen)
	_, err = b.Freeze(true)
	assert.ErrorIs(t, err, ErrFrozen)

	closed := newTestBuilder(t)
	require.NoError(t, closed.AddEntriesFromSqPack(indexPath, false, true))
	require.NoError(t, closed.Close())
	assert.ErrorIs(t, closed.AddEntryFromBuffer("a/b.tex", nil), ErrFrozen)
}

func TestAddEntriesFromDir(t *testing.T) {
	root := t.TempDir()
	files := sampleFiles()
	for _, f := range files {
		writeFile(t, root, strings.ToUpper(f.path), f.contents)
	}

	b := newTestBuilder(t)
	n, err := b.AddEntriesFromDir(root)
	require.NoError(t, err)
	assert.Equal(t, len(files), n)
	assert.Equal(t, len(files), b.Len())

	p, err := b.Freeze(true)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()
	for _, f := range files {
		e, ok := p.Lookup(pathhash.MustHash(f.path))
		require.True(t, ok, f.path)
		assert.Equal(t, f.path, e.Path)
	}

	// paths that differ only by case collide
	writeFile(t, root, "exd/ROOT.exl", []byte("dup"))
	b = newTestBuilder(t)
	_, err = b.AddEntriesFromDir(root)
	assert.ErrorIs(t, err, ErrCollision)
	assert.Zero(t, b.Len())

	_, err = b.AddEntriesFromDir(filepath.Join(root, "missing"))
	assert.ErrorIs(t, err, ErrSourceRead)
}
