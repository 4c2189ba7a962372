// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build !unix

package mmap

import (
	"fmt"
	"sync/atomic"

	xmmap "golang.org/x/exp/mmap"
)

// File is a read-only memory mapping of an entire file.
type File struct {
	r      *xmmap.ReaderAt
	closed atomic.Bool
}

// Open maps the file at path into memory.
func Open(path string) (*File, error) {
	r, err := xmmap.Open(path)
	if err != nil {
		return nil, fmt.Errorf("mmap.Open(%s): %w", path, err)
	}
	return &File{r: r}, nil
}

// Len returns the size of the mapped file in bytes.
func (f *File) Len() int64 {
	return int64(f.r.Len())
}

// Data is unavailable on this platform; it always returns nil.
func (f *File) Data() []byte {
	return nil
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	n, err := f.r.ReadAt(p, off)
	if n == len(p) {
		err = nil
	}
	return n, err
}

// Close unmaps the file.  Calling Close more than once is a no-op.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	return f.r.Close()
}
