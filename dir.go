// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"fmt"
	"io/fs"
	"path/filepath"
)

type stringSet map[string]struct{}

func (set stringSet) Contains(s string) bool {
	_, ok := set[s]
	return ok
}

func (set stringSet) Add(s string) {
	set[s] = struct{}{}
}

// AddEntriesFromDir adds every regular file under root as an entry whose
// logical path is its path relative to root.  Either all files are added
// or, on error, none are.  Two files whose paths differ only in case are a
// collision.
func (b *Builder) AddEntriesFromDir(root string) (int, error) {
	if b.frozen {
		return 0, ErrFrozen
	}

	work := b.catalog.Copy()
	added := 0
	seen := make(stringSet)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return fmt.Errorf("%w: %w", ErrSourceRead, err)
		}
		if !d.Type().IsRegular() {
			return nil
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return fmt.Errorf("filepath.Rel: %w", err)
		}
		logical := filepath.ToSlash(rel)
		desc, err := newFileDescriptor(logical, path)
		if err != nil {
			return err
		}
		if seen.Contains(desc.path) {
			return &CollisionError{Key: desc.key, Existing: desc.path, Incoming: logical}
		}
		seen.Add(desc.path)
		if _, err := insert(work, desc); err != nil {
			return err
		}
		added++
		return nil
	})
	if err != nil {
		return 0, err
	}

	b.catalog = work
	b.logger.Info("added directory", "root", root, "files", added)
	return added, nil
}
