// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// Package pathhash computes the keys SqPack indexes use to locate files.
//
// A logical path like "chara/equipment/e0001/texture/v01_c0101e0001_top_d.tex"
// is normalized (forward slashes, ASCII lower-case), split at the last
// separator, and the directory, file name and full path are each hashed
// with a CRC-32 variant that skips the final bit inversion.
package pathhash

import (
	"errors"
	"fmt"
	"hash/crc32"
	"strings"
)

// MaxPathLength is the longest logical path, in bytes, that can be hashed.
const MaxPathLength = 512

// ErrInvalidPath is returned for empty, oversized or malformed logical paths.
var ErrInvalidPath = errors.New("pathhash: invalid path")

// Key identifies a logical path inside an index.
type Key struct {
	PathHash uint32 // hash of the directory component
	NameHash uint32 // hash of the file name component
	FullHash uint32 // hash of the whole path, used by index2
}

// Index1 returns the 64-bit sort key of the primary index: directory hash
// in the high half, file name hash in the low half.
func (k Key) Index1() uint64 {
	return uint64(k.PathHash)<<32 | uint64(k.NameHash)
}

func (k Key) String() string {
	return fmt.Sprintf("%08x/%08x (%08x)", k.PathHash, k.NameHash, k.FullHash)
}

// Sum returns the SqPack CRC-32 of b.
func Sum(b []byte) uint32 {
	return ^crc32.ChecksumIEEE(b)
}

// SumString returns the SqPack CRC-32 of s.
func SumString(s string) uint32 {
	return ^crc32.Update(0, crc32.IEEETable, []byte(s))
}

// Normalize converts path to the canonical form that is hashed: backslashes
// become forward slashes and ASCII letters are lower-cased.  Non-ASCII
// bytes are left alone.
func Normalize(path string) (string, error) {
	if path == "" {
		return "", fmt.Errorf("%w: empty", ErrInvalidPath)
	}
	if len(path) > MaxPathLength {
		return "", fmt.Errorf("%w: %d bytes long (max %d)", ErrInvalidPath, len(path), MaxPathLength)
	}

	b := []byte(path)
	for i, c := range b {
		switch {
		case c == '\\':
			b[i] = '/'
		case 'A' <= c && c <= 'Z':
			b[i] = c + ('a' - 'A')
		}
	}
	normalized := string(b)

	if strings.HasPrefix(normalized, "/") || strings.HasSuffix(normalized, "/") || strings.Contains(normalized, "//") {
		return "", fmt.Errorf("%w: %q has an empty component", ErrInvalidPath, path)
	}
	return normalized, nil
}

// Hash normalizes path and computes its Key.
func Hash(path string) (Key, error) {
	normalized, err := Normalize(path)
	if err != nil {
		return Key{}, err
	}
	return hashNormalized(normalized), nil
}

// MustHash is like Hash but panics on an invalid path.  It is intended for
// constant paths.
func MustHash(path string) Key {
	k, err := Hash(path)
	if err != nil {
		panic(err)
	}
	return k
}

func hashNormalized(path string) Key {
	dir, name := "", path
	if i := strings.LastIndexByte(path, '/'); i >= 0 {
		dir, name = path[:i], path[i+1:]
	}
	return Key{
		PathHash: SumString(dir),
		NameHash: SumString(name),
		FullHash: SumString(path),
	}
}
