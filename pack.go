// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sort"

	"github.com/xivalex/vpack/pathhash"
	"github.com/xivalex/vpack/sqpack"
)

// segment is the planned contents of one data file.  spans are sorted,
// don't overlap, and the bytes between them are zero.
type segment struct {
	spans []span
	size  int64
}

// Pack is a frozen, planned container.  It serves reads of the data files
// and indexes the container would consist of without writing them out, and
// is safe for concurrent use until Close is called.
type Pack struct {
	logger    *slog.Logger
	chunkSize int
	segments  []segment
	entries   []PlannedEntry // ascending key order
	index1    []byte
	index2    []byte
	readers   []*sqpack.Reader
}

// NumOfDataFiles returns the number of planned data files.
func (p *Pack) NumOfDataFiles() int {
	return len(p.segments)
}

// DataSize returns the size in bytes of data file segment.
func (p *Pack) DataSize(segment int) int64 {
	if segment < 0 || segment >= len(p.segments) {
		return 0
	}
	return p.segments[segment].size
}

func (p *Pack) Index1Size() int64 {
	return int64(len(p.index1))
}

func (p *Pack) Index2Size() int64 {
	return int64(len(p.index2))
}

// Len returns the number of entries.
func (p *Pack) Len() int {
	return len(p.entries)
}

// Entries returns the planned position of every entry in key order.
func (p *Pack) Entries() []PlannedEntry {
	return slices.Clone(p.entries)
}

// Lookup returns the planned position of the entry for key.  If several
// synonym paths share key, the first in path order is returned.
func (p *Pack) Lookup(key pathhash.Key) (PlannedEntry, bool) {
	return p.lookup(key, "")
}

// LookupPath returns the planned position of the entry for path.
func (p *Pack) LookupPath(path string) (PlannedEntry, bool) {
	normalized, err := pathhash.Normalize(path)
	if err != nil {
		return PlannedEntry{}, false
	}
	return p.lookup(pathhash.MustHash(normalized), normalized)
}

func (p *Pack) lookup(key pathhash.Key, path string) (PlannedEntry, bool) {
	k := key.Index1()
	i := sort.Search(len(p.entries), func(i int) bool {
		return p.entries[i].Key.Index1() >= k
	})
	for ; i < len(p.entries) && p.entries[i].Key.Index1() == k; i++ {
		e := p.entries[i]
		if e.Key == key && (path == "" || e.Path == "" || e.Path == path) {
			return e, true
		}
	}
	return PlannedEntry{}, false
}

// ReadData fills buf with the bytes of data file segment starting at
// offset, and returns how many it filled.  Reads are short only at the end
// of the file; at or past the end it returns 0 and no error.  An empty buf
// also returns 0 and no error at any offset, so detecting the end takes a
// non-empty buf.
func (p *Pack) ReadData(segment int, offset int64, buf []byte) (int, error) {
	if segment < 0 || segment >= len(p.segments) {
		return 0, fmt.Errorf("%w: data file %d (have %d)", ErrOutOfRange, segment, len(p.segments))
	}
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, offset)
	}
	seg := &p.segments[segment]
	if offset >= seg.size {
		return 0, nil
	}
	buf = buf[:min(int64(len(buf)), seg.size-offset)]
	clear(buf)
	end := offset + int64(len(buf))

	var h fileHandles
	defer h.close()

	i := sort.Search(len(seg.spans), func(i int) bool {
		return seg.spans[i].end() > offset
	})
	for ; i < len(seg.spans) && seg.spans[i].off < end; i++ {
		s := seg.spans[i]
		lo, hi := max(offset, s.off), min(end, s.end())
		if err := s.src.readAt(&h, buf[lo-offset:hi-offset], s.srcOff+lo-s.off); err != nil {
			return 0, err
		}
	}
	return len(buf), nil
}

// ReadIndex1 is ReadData for the primary index.
func (p *Pack) ReadIndex1(offset int64, buf []byte) (int, error) {
	return readBuffer(p.index1, offset, buf)
}

// ReadIndex2 is ReadData for the secondary index.
func (p *Pack) ReadIndex2(offset int64, buf []byte) (int, error) {
	return readBuffer(p.index2, offset, buf)
}

func readBuffer(b []byte, offset int64, buf []byte) (int, error) {
	if offset < 0 {
		return 0, fmt.Errorf("%w: negative offset %d", ErrOutOfRange, offset)
	}
	if offset >= int64(len(b)) {
		return 0, nil
	}
	return copy(buf, b[offset:]), nil
}

// Close releases the containers the Builder opened.  Containers passed to
// ImportFromArchive are left to their owner.
func (p *Pack) Close() error {
	var errs []error
	for _, r := range p.readers {
		errs = append(errs, r.Close())
	}
	p.readers = nil
	return errors.Join(errs...)
}
