// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

//go:build unix

package mmap

import (
	"fmt"
	"os"
	"sync/atomic"

	"golang.org/x/sys/unix"
)

// File is a read-only memory mapping of an entire file.
type File struct {
	data   []byte
	closed atomic.Bool
}

// Open maps the file at path into memory.  Archive access is random by
// nature, so the kernel is advised not to read ahead.
func Open(path string) (*File, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("os.Open(%s): %w", path, err)
	}
	defer func() {
		_ = f.Close()
	}()

	stats, err := f.Stat()
	if err != nil {
		return nil, fmt.Errorf("f.Stat: %w", err)
	}
	size := stats.Size()
	if size == 0 {
		// mmap(2) rejects zero-length mappings
		return &File{}, nil
	}
	if size != int64(int(size)) {
		return nil, fmt.Errorf("file %s too large to map (%d bytes)", path, size)
	}

	data, err := unix.Mmap(int(f.Fd()), 0, int(size), unix.PROT_READ, unix.MAP_SHARED)
	if err != nil {
		return nil, fmt.Errorf("unix.Mmap(%s): %w", path, err)
	}
	if err := unix.Madvise(data, unix.MADV_RANDOM); err != nil {
		_ = unix.Munmap(data)
		return nil, fmt.Errorf("madvise: %w", err)
	}

	return &File{data: data}, nil
}

// Len returns the size of the mapped file in bytes.
func (f *File) Len() int64 {
	return int64(len(f.data))
}

// Data returns the mapped bytes.  They MUST NOT be written to, and are
// invalid after Close.
func (f *File) Data() []byte {
	return f.data
}

func (f *File) readAt(p []byte, off int64) (int, error) {
	return copy(p, f.data[off:]), nil
}

// Close unmaps the file.  Calling Close more than once is a no-op.
func (f *File) Close() error {
	if f.closed.Swap(true) {
		return nil
	}
	data := f.data
	f.data = nil
	if data == nil {
		return nil
	}
	return unix.Munmap(data)
}
