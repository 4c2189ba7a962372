// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// gen-testdata writes a container of random files, for exercising tools
// against containers larger than the ones unit tests build.
package main

import (
	"context"
	crand "crypto/rand"
	"encoding/binary"
	"flag"
	"fmt"
	"log/slog"
	"math/rand"
	"os"

	"github.com/xivalex/vpack"
)

const (
	prefix    = "pref_"
	suffixLen = 16
)

var (
	outDir  = flag.String("out", ".", "directory to write the container to")
	name    = flag.String("name", "testdata.win32", "base name of the container files")
	nFiles  = flag.Int("n", 10000, "number of files")
	maxSize = flag.Int("max-size", 64*1024, "largest file size in bytes")
	seed    = flag.Int64("seed", 0, "random seed (0 picks one)")
)

func newRand(seed int64) *rand.Rand {
	if seed == 0 {
		var seedBytes [8]byte
		_, _ = crand.Read(seedBytes[:])
		seed = int64(binary.LittleEndian.Uint64(seedBytes[:]))
	}
	return rand.New(rand.NewSource(seed))
}

func main() {
	flag.Parse()
	logger := slog.New(slog.NewTextHandler(os.Stderr, nil))

	if err := run(logger); err != nil {
		logger.Error("gen-testdata failed", "err", err)
		os.Exit(1)
	}
}

func run(logger *slog.Logger) error {
	rng := newRand(*seed)
	b, err := vpack.NewBuilder(vpack.WithLogger(logger))
	if err != nil {
		return err
	}
	defer func() {
		_ = b.Close()
	}()

	for i := 0; i < *nFiles; i++ {
		var buf [suffixLen / 2]byte
		if _, err := rng.Read(buf[:]); err != nil {
			return err
		}
		path := fmt.Sprintf("gen/%02x/%s%x.bin", buf[0], prefix, buf)
		contents := make([]byte, rng.Intn(*maxSize+1))
		// odd files are all zeros and compress well
		if i%2 == 0 {
			_, _ = rng.Read(contents)
		}
		if err := b.AddEntryFromBuffer(path, contents); err != nil {
			return err
		}
		fmt.Println(path)
	}

	p, err := b.Freeze(true)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()
	return p.Export(context.Background(), *outDir, *name)
}
