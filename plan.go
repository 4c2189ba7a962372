// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"cmp"
	"fmt"
	"io"
	"os"
	"slices"
	"time"

	"github.com/tidwall/btree"

	"github.com/xivalex/vpack/pathhash"
	"github.com/xivalex/vpack/sqpack"
)

// PlannedEntry is the position of one entry in a Pack.
type PlannedEntry struct {
	Key  pathhash.Key
	Path string // empty for entries imported from a container
	Kind SourceKind

	Segment int
	Offset  int64
	Size    int64 // bytes occupied in the data file, a multiple of 128
}

// entryImage is an entry's bytes as spans relative to the entry start.
type entryImage struct {
	spans []span
	size  int64
}

// plan lays out every entry of catalog, in key order, into as few data
// files as strictly ascending packing allows.
func plan(catalog *btree.BTreeG[*descriptor], compress bool, o *options) (*Pack, error) {
	start := time.Now()

	var c *sqpack.BlockCompressor
	if compress {
		var err error
		if c, err = sqpack.NewBlockCompressor(o.compressionLevel); err != nil {
			return nil, err
		}
	}

	var (
		entries  []PlannedEntry
		segments = []segment{{}}
		placed   = make([]placement, 0, catalog.Len())
		offset   = int64(sqpack.DataStart)
		err      error
	)
	catalog.Scan(func(d *descriptor) bool {
		var img entryImage
		if img, err = d.image(c); err != nil {
			return false
		}
		if sqpack.DataStart+img.size > o.maxSegmentSize {
			err = fmt.Errorf("%w: %s needs %d bytes, data files hold at most %d", ErrEntryTooLarge, d.name(), img.size, o.maxSegmentSize-sqpack.DataStart)
			return false
		}
		if offset+img.size > o.maxSegmentSize {
			if len(segments) == sqpack.MaxDataFiles {
				err = fmt.Errorf("%w: more than %d data files of %d bytes needed", ErrTooManySegments, sqpack.MaxDataFiles, o.maxSegmentSize)
				return false
			}
			segments[len(segments)-1].size = offset
			segments = append(segments, segment{})
			offset = sqpack.DataStart
		}

		n := len(segments) - 1
		var loc sqpack.Locator
		if loc, err = sqpack.NewLocator(n, offset); err != nil {
			return false
		}
		for _, s := range img.spans {
			s.off += offset
			segments[n].spans = append(segments[n].spans, s)
		}
		entries = append(entries, PlannedEntry{
			Key:     d.key,
			Path:    d.path,
			Kind:    d.kind,
			Segment: n,
			Offset:  offset,
			Size:    img.size,
		})
		placed = append(placed, placement{d: d, loc: loc})

		offset = sqpack.Align(offset + img.size)
		return true
	})
	if err != nil {
		return nil, err
	}
	segments[len(segments)-1].size = offset

	for i := range segments {
		s := &segments[i]
		headers := sqpack.DataFileHeaders(i, s.size-sqpack.DataStart, o.maxSegmentSize)
		s.spans = append([]span{{size: sqpack.DataStart, src: bytesSource(headers)}}, s.spans...)
	}

	records, err := newIndexRecords(placed)
	if err != nil {
		return nil, err
	}
	index1, err := sqpack.BuildIndex1(records.files, records.synonyms, len(segments))
	if err != nil {
		return nil, fmt.Errorf("sqpack.BuildIndex1: %w", err)
	}
	index2, err := sqpack.BuildIndex2(records.files2, records.synonyms2, len(segments))
	if err != nil {
		return nil, fmt.Errorf("sqpack.BuildIndex2: %w", err)
	}

	o.logger.Info("planned layout",
		"entries", len(entries),
		"segments", len(segments),
		"compress", compress,
		"duration", time.Since(start))

	return &Pack{
		logger:    o.logger,
		chunkSize: o.chunkSize,
		segments:  segments,
		entries:   entries,
		index1:    index1,
		index2:    index2,
	}, nil
}

// placement is where an entry landed.
type placement struct {
	d   *descriptor
	loc sqpack.Locator
}

// indexRecords are the records of both indexes.  Keys shared by several
// paths get a synonym record in the main table and one synonym table
// entry per path.
type indexRecords struct {
	files     []sqpack.FileRecord
	synonyms  []sqpack.SynonymRecord
	files2    []sqpack.Index2Record
	synonyms2 []sqpack.SynonymRecord
}

// runs calls f for each run of consecutive placements sharing a key.
func runs(placed []placement, key func(placement) uint64, f func([]placement) error) error {
	for i := 0; i < len(placed); {
		j := i + 1
		for j < len(placed) && key(placed[j]) == key(placed[i]) {
			j++
		}
		if err := f(placed[i:j]); err != nil {
			return err
		}
		i = j
	}
	return nil
}

// newIndexRecords builds index records for placed, which is in catalog
// order.  Entries sharing a full hash must all come from synonym tables.
func newIndexRecords(placed []placement) (*indexRecords, error) {
	r := &indexRecords{
		files:  make([]sqpack.FileRecord, 0, len(placed)),
		files2: make([]sqpack.Index2Record, 0, len(placed)),
	}

	index1 := func(p placement) uint64 { return p.d.key.Index1() }
	_ = runs(placed, index1, func(group []placement) error {
		k := group[0].d.key
		rec := sqpack.FileRecord{NameHash: k.NameHash, PathHash: k.PathHash, Locator: group[0].loc}
		if len(group) > 1 {
			rec.Locator = sqpack.SynonymLocator
			for i, p := range group {
				r.synonyms = append(r.synonyms, sqpack.SynonymRecord{Hash: k.Index1(), Locator: p.loc, Index: uint32(i), Path: p.d.path})
			}
		}
		r.files = append(r.files, rec)
		return nil
	})

	byFullHash := slices.Clone(placed)
	slices.SortStableFunc(byFullHash, func(a, b placement) int {
		return cmp.Compare(a.d.key.FullHash, b.d.key.FullHash)
	})
	fullHash := func(p placement) uint64 { return uint64(p.d.key.FullHash) }
	err := runs(byFullHash, fullHash, func(group []placement) error {
		k := group[0].d.key
		rec := sqpack.Index2Record{FullHash: k.FullHash, Locator: group[0].loc}
		if len(group) > 1 {
			for _, p := range group {
				if !p.d.synonym {
					return &CollisionError{Key: group[1].d.key, Existing: group[0].d.path, Incoming: group[1].d.path}
				}
			}
			rec.Locator = sqpack.SynonymLocator
			for i, p := range group {
				r.synonyms2 = append(r.synonyms2, sqpack.SynonymRecord{Hash: uint64(k.FullHash), Locator: p.loc, Index: uint32(i), Path: p.d.path})
			}
		}
		r.files2 = append(r.files2, rec)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return r, nil
}

// image returns the bytes d occupies in a data file.  Originals are passed
// through; everything else is wrapped in a binary entry, with blocks
// deflated by c when it is non-nil and deflating makes them smaller.
func (d *descriptor) image(c *sqpack.BlockCompressor) (entryImage, error) {
	var payload source
	switch d.kind {
	case KindOriginal:
		return entryImage{
			spans: []span{{size: d.size, src: rawSource{archive: d.archive, segment: d.segment}, srcOff: d.offset}},
			size:  d.size,
		}, nil
	case KindSynthetic:
		payload = bytesSource(d.buf)
	case KindOverride:
		payload = fileSource(d.localPath)
	}

	var chunks *chunkReader
	if c != nil {
		var err error
		if chunks, err = d.chunks(); err != nil {
			return entryImage{}, err
		}
		defer chunks.close()
	}

	blocks := sqpack.BlockCount(d.size)
	headerSize := sqpack.BinaryHeaderSize(blocks)
	header := make([]byte, headerSize)
	blockHeaders := make([]byte, blocks*sqpack.BlockHeaderSize)

	img := entryImage{spans: make([]span, 0, 1+2*blocks)}
	img.spans = append(img.spans, span{size: headerSize, src: bytesSource(header)})

	off := headerSize
	for i := range blocks {
		start := int64(i) * sqpack.BlockDataSize
		n := min(sqpack.BlockDataSize, d.size-start)

		bh := sqpack.BlockHeader{CompressedSize: sqpack.StoredBlockMarker, DecompressedSize: uint32(n)}
		data := span{off: off + sqpack.BlockHeaderSize, size: n, src: payload, srcOff: start}
		if chunks != nil {
			raw, err := chunks.next(n)
			if err != nil {
				return entryImage{}, err
			}
			compressed, err := c.Compress(raw)
			if err != nil {
				return entryImage{}, fmt.Errorf("%s: %w", d.name(), err)
			}
			if int64(len(compressed)) < n {
				bh.CompressedSize = uint32(len(compressed))
				data.size = int64(len(compressed))
				data.src = bytesSource(compressed)
				data.srcOff = 0
			}
		}

		bhBytes := blockHeaders[i*sqpack.BlockHeaderSize : (i+1)*sqpack.BlockHeaderSize]
		bh.MarshalTo(bhBytes)
		blockSize := sqpack.Align(sqpack.BlockHeaderSize + data.size)
		loc := sqpack.BlockLocator{
			Offset:           uint32(off - headerSize),
			Size:             uint16(blockSize),
			DecompressedSize: uint16(n),
		}
		loc.MarshalTo(header[sqpack.EntryHeaderSize+i*sqpack.BlockLocatorSize:])

		img.spans = append(img.spans, span{off: off, size: sqpack.BlockHeaderSize, src: bytesSource(bhBytes)}, data)
		off += blockSize
	}

	h := sqpack.EntryHeader{
		HeaderSize:       uint32(headerSize),
		Type:             sqpack.EntryBinary,
		DecompressedSize: uint32(d.size),
		AllocatedUnits:   uint32(off / sqpack.Alignment),
		BlockCount:       uint32(blocks),
	}
	if err := h.MarshalTo(header); err != nil {
		return entryImage{}, err
	}
	img.size = off
	return img, nil
}

// chunkReader reads a payload front to back in block sized pieces.
type chunkReader struct {
	f    *os.File
	buf  []byte
	data []byte // unread synthetic payload
	path string
}

func (d *descriptor) chunks() (*chunkReader, error) {
	if d.kind == KindSynthetic {
		return &chunkReader{data: d.buf}, nil
	}
	f, err := os.Open(d.localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	return &chunkReader{f: f, buf: make([]byte, sqpack.BlockDataSize), path: d.localPath}, nil
}

func (r *chunkReader) next(n int64) ([]byte, error) {
	if r.f == nil {
		b := r.data[:n]
		r.data = r.data[n:]
		return b, nil
	}
	b := r.buf[:n]
	if _, err := io.ReadFull(r.f, b); err != nil {
		return nil, fmt.Errorf("%w: %s: %w", ErrSourceRead, r.path, err)
	}
	return b, nil
}

func (r *chunkReader) close() {
	if r.f != nil {
		_ = r.f.Close()
	}
}
