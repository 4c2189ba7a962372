// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package mmap provides read-only memory-mapped access to files.
package mmap

import (
	"errors"
	"fmt"
	"io"
)

var errClosed = errors.New("mmap: closed")

// ReadAt implements io.ReaderAt over the mapped bytes.  Reads that extend
// past the end of the file return the bytes available and io.EOF.
func (f *File) ReadAt(p []byte, off int64) (int, error) {
	if f.closed.Load() {
		return 0, errClosed
	}
	if off < 0 {
		return 0, fmt.Errorf("mmap: invalid offset %d", off)
	}
	if off >= f.Len() {
		if len(p) == 0 {
			return 0, nil
		}
		return 0, io.EOF
	}
	n, err := f.readAt(p, off)
	if err == nil && n < len(p) {
		err = io.EOF
	}
	return n, err
}

var _ io.ReaderAt = (*File)(nil)
