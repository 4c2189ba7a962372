// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"github.com/tidwall/btree"

	"github.com/xivalex/vpack/pathhash"
)

// The catalog is ordered by primary key, then path.  A primary key holds
// a single entry unless every entry under it came from a synonym table,
// so entries whose path is unknown are always alone under their key.

func newCatalog() *btree.BTreeG[*descriptor] {
	return btree.NewBTreeGOptions(lessDescriptor, btree.Options{NoLocks: true})
}

func lessDescriptor(a, b *descriptor) bool {
	if ka, kb := a.key.Index1(), b.key.Index1(); ka != kb {
		return ka < kb
	}
	return a.path < b.path
}

// sameKey returns the entries of c stored under key's primary key.
func sameKey(c *btree.BTreeG[*descriptor], key pathhash.Key) []*descriptor {
	var group []*descriptor
	c.Ascend(&descriptor{key: key}, func(d *descriptor) bool {
		if d.key.Index1() != key.Index1() {
			return false
		}
		group = append(group, d)
		return true
	})
	return group
}

// sameFile reports whether a and b describe the same logical path.  When
// either path is unknown only the hashes can be compared.
func sameFile(a, b *descriptor) bool {
	if a.path != "" && b.path != "" {
		return a.path == b.path
	}
	return a.key == b.key
}

// insert adds d to c, replacing the entry for the same path.  Any other
// entry under d's primary key is a collision.  It returns the replaced
// entry, if any.
func insert(c *btree.BTreeG[*descriptor], d *descriptor) (*descriptor, error) {
	group := sameKey(c, d.key)
	for _, prev := range group {
		if sameFile(prev, d) {
			c.Delete(prev)
			d.synonym = prev.synonym
			c.Set(d)
			return prev, nil
		}
	}
	if len(group) > 0 {
		return nil, &CollisionError{Key: d.key, Existing: group[0].path, Incoming: d.path}
	}
	c.Set(d)
	return nil, nil
}

type importOutcome int

const (
	importAdded importOutcome = iota
	importReplaced
	importKept
)

// importEntry adds the imported entry d to c.  An entry for the same path
// is replaced only if it is itself imported and replaceExisting is set.
// A different path under d's primary key is a collision unless both
// came from synonym tables.
func importEntry(c *btree.BTreeG[*descriptor], d *descriptor, replaceExisting bool) (importOutcome, error) {
	group := sameKey(c, d.key)
	for _, prev := range group {
		if !sameFile(prev, d) {
			continue
		}
		if prev.kind != KindOriginal || !replaceExisting {
			if d.synonym && !prev.synonym {
				marked := *prev
				marked.synonym = true
				if marked.path == "" {
					c.Delete(prev)
					marked.path = d.path
				}
				c.Set(&marked)
			}
			return importKept, nil
		}
		c.Delete(prev)
		if d.path == "" {
			d.path = prev.path
		}
		d.synonym = d.synonym || prev.synonym
		c.Set(d)
		return importReplaced, nil
	}

	if len(group) == 0 {
		c.Set(d)
		return importAdded, nil
	}
	if d.synonym {
		allSynonyms := true
		for _, prev := range group {
			allSynonyms = allSynonyms && prev.synonym
		}
		if allSynonyms {
			c.Set(d)
			return importAdded, nil
		}
	}
	return 0, &CollisionError{Key: d.key, Existing: group[0].path, Incoming: d.path}
}
