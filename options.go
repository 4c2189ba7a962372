// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"fmt"
	"io"
	"log/slog"

	"github.com/klauspost/compress/flate"

	"github.com/xivalex/vpack/sqpack"
)

const (
	DefaultMaxSegmentSize = sqpack.DefaultMaxDataFileSize
	DefaultChunkSize      = 1 << 20

	// the locator offset field is 32 bits of 8-byte units
	maxSegmentSizeLimit = 1 << 35
)

// Option configures a Builder.
type Option func(*options)

type options struct {
	logger           *slog.Logger
	maxSegmentSize   int64
	compressionLevel int
	chunkSize        int
}

// WithLogger sets an optional logger for progress updates.  If not
// provided, no logging output will be produced.
func WithLogger(logger *slog.Logger) Option {
	return func(opts *options) {
		opts.logger = logger
	}
}

// WithMaxSegmentSize bounds the size in bytes of each planned data file,
// headers included.
func WithMaxSegmentSize(size int64) Option {
	return func(opts *options) {
		opts.maxSegmentSize = size
	}
}

// WithCompressionLevel sets the deflate level used by Freeze(true).
func WithCompressionLevel(level int) Option {
	return func(opts *options) {
		opts.compressionLevel = level
	}
}

// WithChunkSize sets the buffer size the serializer reads and writes with.
func WithChunkSize(size int) Option {
	return func(opts *options) {
		opts.chunkSize = size
	}
}

func newOptions(opts []Option) (options, error) {
	o := options{
		logger:           slog.New(slog.NewTextHandler(io.Discard, nil)),
		maxSegmentSize:   DefaultMaxSegmentSize,
		compressionLevel: flate.DefaultCompression,
		chunkSize:        DefaultChunkSize,
	}
	for _, opt := range opts {
		opt(&o)
	}

	if o.logger == nil {
		return o, fmt.Errorf("nil logger")
	}
	if o.maxSegmentSize <= sqpack.DataStart || o.maxSegmentSize > maxSegmentSizeLimit {
		return o, fmt.Errorf("max segment size %d out of range (%d, %d]", o.maxSegmentSize, sqpack.DataStart, int64(maxSegmentSizeLimit))
	}
	if o.compressionLevel < flate.HuffmanOnly || o.compressionLevel > flate.BestCompression {
		return o, fmt.Errorf("invalid compression level %d", o.compressionLevel)
	}
	if o.chunkSize <= 0 {
		return o, fmt.Errorf("chunk size must be positive, not %d", o.chunkSize)
	}
	return o, nil
}
