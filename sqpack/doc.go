// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package sqpack reads and encodes the SqPack container format.
//
// A container is a set of files sharing a base name: a primary index
// (.index), a secondary index (.index2), and up to eight data files
// (.dat0 through .dat7).  Every file starts with the same 0x400-byte
// SqPack header, followed by a 0x400-byte header specific to the file
// type:
//
//	.index / .index2          .datN
//	┌───────────────────┐     ┌───────────────────┐
//	│ SqPack header     │     │ SqPack header     │
//	├───────────────────┤     ├───────────────────┤
//	│ index header      │     │ data header       │
//	├───────────────────┤     ├───────────────────┤ 0x800
//	│ file records      │     │ entry             │
//	│ (sorted by hash)  │     │ entry             │
//	├───────────────────┤     │ ...               │
//	│ synonym records   │     │                   │
//	├───────────────────┤     │                   │
//	│ folder records    │     │                   │
//	└───────────────────┘     └───────────────────┘
//
// Index records locate an entry with a 32-bit locator:
//
//	 31                               4   3   1   0
//	+----------------------------------+-------+---+
//	| offset / 128                     | file  | s |
//	+----------------------------------+-------+---+
//
// When several paths share an index key, the index record carries only the
// synonym bit and the synonym table lists each path with its own locator.
//
// Entries are 128-byte aligned.  Each starts with an entry header giving
// its type, decompressed size and the number of 128-byte units it
// occupies, so an entry's stored size is known without decoding it.
// Binary entries split their payload into blocks of at most 16,000 bytes,
// each stored raw or as a raw deflate stream.
//
// Every header ends with a SHA-1 digest of its first 0x3C0 bytes, and
// the index header records a SHA-1 digest of each table.  An all-zero
// digest means none was recorded and is not checked.
package sqpack
