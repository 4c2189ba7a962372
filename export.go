// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"golang.org/x/sync/errgroup"
)

type readFunc func(offset int64, buf []byte) (int, error)

// WriteData writes data file segment to w, returning the bytes written.
func (p *Pack) WriteData(w io.Writer, segment int) (int64, error) {
	if segment < 0 || segment >= len(p.segments) {
		return 0, fmt.Errorf("%w: data file %d (have %d)", ErrOutOfRange, segment, len(p.segments))
	}
	return p.copyTo(context.Background(), w, func(offset int64, buf []byte) (int, error) {
		return p.ReadData(segment, offset, buf)
	})
}

// WriteIndex1 writes the primary index to w.
func (p *Pack) WriteIndex1(w io.Writer) (int64, error) {
	return p.copyTo(context.Background(), w, p.ReadIndex1)
}

// WriteIndex2 writes the secondary index to w.
func (p *Pack) WriteIndex2(w io.Writer) (int64, error) {
	return p.copyTo(context.Background(), w, p.ReadIndex2)
}

// copyTo drains read into w in chunks, stopping between chunks once ctx
// is done.
func (p *Pack) copyTo(ctx context.Context, w io.Writer, read readFunc) (int64, error) {
	buf := make([]byte, p.chunkSize)
	var written int64
	for {
		if err := ctx.Err(); err != nil {
			return written, err
		}
		n, err := read(written, buf)
		if err != nil {
			return written, err
		}
		if n == 0 {
			return written, nil
		}
		m, err := w.Write(buf[:n])
		written += int64(m)
		if err != nil {
			return written, fmt.Errorf("%w: %w", ErrSinkWrite, err)
		}
		if m != n {
			return written, fmt.Errorf("%w: %w", ErrSinkWrite, io.ErrShortWrite)
		}
	}
}

// Export writes the container to dir as name.index, name.index2 and
// name.dat0 onward, one file per goroutine.  Each file is written to a
// temporary file and renamed into place once complete.
func (p *Pack) Export(ctx context.Context, dir, name string) error {
	start := time.Now()
	base := filepath.Join(dir, name)

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return p.exportFile(ctx, base+".index", p.ReadIndex1)
	})
	g.Go(func() error {
		return p.exportFile(ctx, base+".index2", p.ReadIndex2)
	})
	for i := range p.segments {
		g.Go(func() error {
			return p.exportFile(ctx, fmt.Sprintf("%s.dat%d", base, i), func(offset int64, buf []byte) (int, error) {
				return p.ReadData(i, offset, buf)
			})
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	p.logger.Info("exported container", "path", base, "segments", len(p.segments), "duration", time.Since(start))
	return nil
}

func (p *Pack) exportFile(ctx context.Context, path string, read readFunc) (err error) {
	dir := filepath.Dir(path)
	f, err := os.CreateTemp(dir, "vpack-export.*.tmp")
	if err != nil {
		return fmt.Errorf("%w: CreateTemp failed (may need permissions for dir %q): %w", ErrSinkWrite, dir, err)
	}
	defer func() {
		if err != nil {
			_ = f.Close()
			_ = os.Remove(f.Name())
		}
	}()

	n, err := p.copyTo(ctx, f, read)
	if err != nil {
		return fmt.Errorf("%s: %w", path, err)
	}
	if err = f.Sync(); err != nil {
		return fmt.Errorf("%w: f.Sync: %w", ErrSinkWrite, err)
	}
	if err = f.Close(); err != nil {
		return fmt.Errorf("%w: f.Close: %w", ErrSinkWrite, err)
	}
	// make the file read-only
	if err = os.Chmod(f.Name(), 0444); err != nil {
		return fmt.Errorf("%w: os.Chmod(0444): %w", ErrSinkWrite, err)
	}
	if err = os.Rename(f.Name(), path); err != nil {
		return fmt.Errorf("%w: os.Rename: %w", ErrSinkWrite, err)
	}

	p.logger.Debug("wrote file", "path", path, "bytes", n)
	return nil
}
