// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/xivalex/vpack/sqpack"
)

type safeBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (s *safeBuffer) String() string {
	s.mu.Lock()
	defer s.mu.Unlock()

	return string(s.buf)
}

func (s *safeBuffer) Bytes() []byte {
	s.mu.Lock()
	defer s.mu.Unlock()

	return bytes.Clone(s.buf)
}

func (s *safeBuffer) Write(p []byte) (n int, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.buf = append(s.buf, p...)
	return len(p), nil
}

var _ io.Writer = &safeBuffer{}

type testWriter struct {
	inner            io.Writer
	writeShouldError bool
}

func (c *testWriter) Write(p []byte) (n int, err error) {
	if c.writeShouldError {
		return 0, errors.New("write failed")
	}
	return c.inner.Write(p)
}

var _ io.Writer = &testWriter{}

type testFile struct {
	path     string
	contents []byte
}

func newRand(seed int64) *rand.Rand {
	return rand.New(rand.NewSource(seed))
}

func randomBytes(rng *rand.Rand, n int) []byte {
	b := make([]byte, n)
	_, _ = rng.Read(b)
	return b
}

// sampleFiles mixes sizes around the block size with an empty file and a
// compressible one.
func sampleFiles() []testFile {
	rng := newRand(1)
	return []testFile{
		{"exd/root.exl", []byte("EXLT,2\nAchievement,209\nAction,4\n")},
		{"common/font/axis_12.fdt", randomBytes(rng, sqpack.BlockDataSize)},
		{"common/font/axis_14.fdt", randomBytes(rng, sqpack.BlockDataSize+1)},
		{"chara/equipment/e0001/texture/v01_c0101e0001_top_d.tex", randomBytes(rng, 3*sqpack.BlockDataSize+77)},
		{"ui/uld/title.uld", nil},
		{"shader/sm5/shpk/character.shpk", bytes.Repeat([]byte("shader "), 5000)},
	}
}

func newTestBuilder(t testing.TB, opts ...Option) *Builder {
	b, err := NewBuilder(opts...)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = b.Close()
	})
	return b
}

// writeContainer exports files as a new container dir/name and returns
// the path of its primary index.
func writeContainer(t testing.TB, dir, name string, files []testFile, opts ...Option) string {
	b := newTestBuilder(t, opts...)
	for _, f := range files {
		require.NoError(t, b.AddEntryFromBuffer(f.path, f.contents))
	}
	p, err := b.Freeze(false)
	require.NoError(t, err)
	defer func() {
		require.NoError(t, p.Close())
	}()
	require.NoError(t, p.Export(context.Background(), dir, name))
	return filepath.Join(dir, name+".index")
}

func openContainer(t testing.TB, indexPath string) *sqpack.Reader {
	r, err := sqpack.Open(indexPath)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = r.Close()
	})
	return r
}

// readSegment reads all of data file segment with reads of chunk bytes.
func readSegment(t testing.TB, p *Pack, segment, chunk int) []byte {
	var out []byte
	buf := make([]byte, chunk)
	for {
		n, err := p.ReadData(segment, int64(len(out)), buf)
		require.NoError(t, err)
		if n == 0 {
			return out
		}
		out = append(out, buf[:n]...)
	}
}

func writeFile(t testing.TB, dir, name string, contents []byte) string {
	path := filepath.Join(dir, filepath.FromSlash(name))
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, contents, 0644))
	return path
}

func testLogger(logs *safeBuffer) *slog.Logger {
	return slog.New(slog.NewTextHandler(logs, &slog.HandlerOptions{Level: slog.LevelDebug}))
}

func datPath(indexPath string, i int) string {
	return fmt.Sprintf("%s.dat%d", indexPath[:len(indexPath)-len(".index")], i)
}
