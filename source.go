// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/xivalex/vpack/pathhash"
	"github.com/xivalex/vpack/sqpack"
)

// SourceKind says where an entry's bytes come from.
type SourceKind uint8

const (
	// KindOriginal entries are copied unchanged from an existing container.
	KindOriginal SourceKind = iota + 1
	// KindOverride entries are read from a local file when requested.
	KindOverride
	// KindSynthetic entries are held in memory.
	KindSynthetic
)

func (k SourceKind) String() string {
	switch k {
	case KindOriginal:
		return "original"
	case KindOverride:
		return "override"
	case KindSynthetic:
		return "synthetic"
	default:
		return "unknown"
	}
}

// descriptor is the catalog's record of one entry.  Which fields are set
// depends on kind.
type descriptor struct {
	kind SourceKind
	key  pathhash.Key
	path string // normalized logical path; empty for originals not in a synonym table

	// synonym entries share their primary key with other paths
	synonym bool

	// original
	archive *sqpack.Reader
	segment int
	offset  int64

	// override
	localPath string

	// synthetic
	buf []byte

	// allocated bytes for originals, payload bytes otherwise
	size int64
}

func (d *descriptor) name() string {
	if d.path != "" {
		return d.path
	}
	return d.key.String()
}

// source supplies bytes for a span.  off is relative to the start of the
// source, and p never extends past its end.
type source interface {
	readAt(h *fileHandles, p []byte, off int64) error
}

type bytesSource []byte

func (s bytesSource) readAt(_ *fileHandles, p []byte, off int64) error {
	copy(p, s[off:])
	return nil
}

type rawSource struct {
	archive *sqpack.Reader
	segment int
}

func (s rawSource) readAt(_ *fileHandles, p []byte, off int64) error {
	if _, err := s.archive.ReadRaw(s.segment, off, p); err != nil {
		return fmt.Errorf("%w: %s: %w", ErrSourceRead, s.archive.Path(), err)
	}
	return nil
}

// fileSource reads an override file.  A file that shrank after it was
// added leaves the rest of p zeroed.
type fileSource string

func (s fileSource) readAt(h *fileHandles, p []byte, off int64) error {
	f, err := h.open(string(s))
	if err != nil {
		return fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	if _, err := f.ReadAt(p, off); err != nil && !errors.Is(err, io.EOF) {
		return fmt.Errorf("%w: %s: %w", ErrSourceRead, s, err)
	}
	return nil
}

// fileHandles keeps override files open for the duration of one read.
type fileHandles struct {
	files map[string]*os.File
}

func (h *fileHandles) open(path string) (*os.File, error) {
	if f, ok := h.files[path]; ok {
		return f, nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if h.files == nil {
		h.files = make(map[string]*os.File)
	}
	h.files[path] = f
	return f, nil
}

func (h *fileHandles) close() {
	for _, f := range h.files {
		_ = f.Close()
	}
	h.files = nil
}

// span places size bytes of src, starting at srcOff, at off.
type span struct {
	off    int64
	size   int64
	src    source
	srcOff int64
}

func (s span) end() int64 {
	return s.off + s.size
}
