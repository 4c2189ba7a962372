// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"bytes"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"os"
	"time"

	"github.com/tidwall/btree"

	"github.com/xivalex/vpack/pathhash"
	"github.com/xivalex/vpack/sqpack"
)

// Builder collects the entries of a new container: originals imported from
// existing containers plus overrides from local files or memory.  A
// Builder is not safe for concurrent use.  Once Freeze succeeds every
// mutator fails with ErrFrozen.
type Builder struct {
	opts    options
	logger  *slog.Logger
	catalog *btree.BTreeG[*descriptor]
	readers []*sqpack.Reader // opened by AddEntriesFromSqPack; owned
	frozen  bool
}

// NewBuilder creates an empty Builder.
func NewBuilder(opts ...Option) (*Builder, error) {
	o, err := newOptions(opts)
	if err != nil {
		return nil, fmt.Errorf("vpack.NewBuilder: %w", err)
	}
	return &Builder{
		opts:    o,
		logger:  o.logger,
		catalog: newCatalog(),
	}, nil
}

// Len returns the number of entries in the catalog.
func (b *Builder) Len() int {
	return b.catalog.Len()
}

// AddEntriesFromSqPack opens the container at indexPath and imports every
// entry in it.  The container stays open until the Pack built from this
// Builder (or the Builder itself, if never frozen) is closed.
//
// Entries added from files or buffers always win over imported ones.
// replaceExisting controls whether this container's entries replace
// entries imported from earlier containers.  With strict, index records
// that don't appear in both indexes are an error; otherwise they are
// skipped with a warning.
func (b *Builder) AddEntriesFromSqPack(indexPath string, replaceExisting, strict bool) error {
	if b.frozen {
		return ErrFrozen
	}
	r, err := sqpack.Open(indexPath)
	if err != nil {
		return err
	}
	if err := b.importFrom(r, replaceExisting, strict); err != nil {
		_ = r.Close()
		return err
	}
	b.readers = append(b.readers, r)
	return nil
}

// ImportFromArchive is like AddEntriesFromSqPack for a container the caller
// opened.  The caller keeps ownership of r and must keep it open until the
// resulting Pack is closed.
func (b *Builder) ImportFromArchive(r *sqpack.Reader, replaceExisting, strict bool) error {
	if b.frozen {
		return ErrFrozen
	}
	if r == nil {
		return errors.New("vpack.ImportFromArchive: nil reader")
	}
	return b.importFrom(r, replaceExisting, strict)
}

func (b *Builder) importFrom(r *sqpack.Reader, replaceExisting, strict bool) error {
	start := time.Now()

	// collect everything first so a bad container leaves the catalog alone
	var pending []*descriptor
	skipped := 0
	for e, err := range r.Entries() {
		if err != nil {
			return fmt.Errorf("%s: %w", r.Path(), err)
		}
		if e.Unpaired {
			if strict {
				return fmt.Errorf("%w: %s: entry %s has no index2 record", ErrFormat, r.Path(), e.Key)
			}
			b.logger.Warn("skipping entry without index2 record", "archive", r.Path(), "key", e.Key.String())
			skipped++
			continue
		}
		pending = append(pending, &descriptor{
			kind:    KindOriginal,
			key:     e.Key,
			archive: r,
			segment: e.Segment,
			offset:  e.Offset,
			size:    e.Size,
			path:    e.Path,
			synonym: e.Synonym,
		})
	}
	if n := r.Index2Only(); n > 0 {
		if strict {
			return fmt.Errorf("%w: %s: %d index2 records have no index record", ErrFormat, r.Path(), n)
		}
		b.logger.Warn("ignoring index2 records without index record", "archive", r.Path(), "count", n)
		skipped += n
	}

	// apply to a copy so a collision leaves the catalog alone
	work := b.catalog.Copy()
	added, replaced, kept := 0, 0, 0
	for _, d := range pending {
		outcome, err := importEntry(work, d, replaceExisting)
		if err != nil {
			return fmt.Errorf("%s: %w", r.Path(), err)
		}
		switch outcome {
		case importAdded:
			added++
		case importReplaced:
			replaced++
		case importKept:
			kept++
		}
	}
	b.catalog = work

	b.logger.Info("imported container",
		"archive", r.Path(),
		"added", added,
		"replaced", replaced,
		"kept", kept,
		"skipped", skipped,
		"duration", time.Since(start))
	return nil
}

// AddEntryFromFile adds or replaces the entry for logicalPath with the
// contents of localPath.  The file's size is fixed now and its contents
// are read when needed, so it must not change until the Pack is closed.
func (b *Builder) AddEntryFromFile(logicalPath, localPath string) error {
	if b.frozen {
		return ErrFrozen
	}
	d, err := newFileDescriptor(logicalPath, localPath)
	if err != nil {
		return err
	}
	return b.put(d)
}

func newFileDescriptor(logicalPath, localPath string) (*descriptor, error) {
	normalized, err := pathhash.Normalize(logicalPath)
	if err != nil {
		return nil, err
	}
	fi, err := os.Stat(localPath)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrSourceRead, err)
	}
	if !fi.Mode().IsRegular() {
		return nil, fmt.Errorf("%w: %s is not a regular file", ErrSourceRead, localPath)
	}
	if fi.Size() > math.MaxUint32 {
		return nil, fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, localPath, fi.Size())
	}
	return &descriptor{
		kind:      KindOverride,
		key:       pathhash.MustHash(normalized),
		path:      normalized,
		localPath: localPath,
		size:      fi.Size(),
	}, nil
}

// AddEntryFromBuffer adds or replaces the entry for logicalPath with a copy
// of buf.
func (b *Builder) AddEntryFromBuffer(logicalPath string, buf []byte) error {
	if b.frozen {
		return ErrFrozen
	}
	normalized, err := pathhash.Normalize(logicalPath)
	if err != nil {
		return err
	}
	if int64(len(buf)) > math.MaxUint32 {
		return fmt.Errorf("%w: %s is %d bytes", ErrEntryTooLarge, normalized, len(buf))
	}
	return b.put(&descriptor{
		kind: KindSynthetic,
		key:  pathhash.MustHash(normalized),
		path: normalized,
		buf:  bytes.Clone(buf),
		size: int64(len(buf)),
	})
}

func (b *Builder) put(d *descriptor) error {
	prev, err := insert(b.catalog, d)
	if err != nil {
		return err
	}
	if prev != nil {
		b.logger.Debug("replaced entry", "path", d.path, "was", prev.kind.String(), "now", d.kind.String())
	}
	return nil
}

// Freeze plans the layout of every entry and returns the Pack serving it.
// With compress, blocks of file and buffer entries are deflated now; if
// that fails, or planning fails, the Builder is left unchanged and open.
// On success the Pack takes over the containers the Builder opened.
func (b *Builder) Freeze(compress bool) (*Pack, error) {
	if b.frozen {
		return nil, ErrFrozen
	}
	p, err := plan(b.catalog.Copy(), compress, &b.opts)
	if err != nil {
		return nil, err
	}
	p.readers = b.readers
	b.readers = nil
	b.frozen = true
	return p, nil
}

// Close releases the containers opened by AddEntriesFromSqPack if the
// Builder was never frozen.  Afterward the Builder can't be modified.
func (b *Builder) Close() error {
	b.frozen = true
	var errs []error
	for _, r := range b.readers {
		errs = append(errs, r.Close())
	}
	b.readers = nil
	return errors.Join(errs...)
}
