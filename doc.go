// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package vpack overlays replacement files onto SqPack containers.
//
// A Builder collects entries from existing containers, local files and
// memory.  Freeze lays them out as a new container and returns a Pack,
// which serves byte ranges of the new .index, .index2 and .datN files
// without writing them, or writes them out with Export.
//
//	b, err := vpack.NewBuilder()
//	...
//	err = b.AddEntriesFromSqPack("sqpack/ffxiv/000000.win32.index", false, true)
//	err = b.AddEntryFromFile("exd/root.exl", "mods/root.exl")
//	p, err := b.Freeze(false)
//	...
//	n, err := p.ReadData(0, offset, buf)
package vpack
