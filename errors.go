// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

package vpack

import (
	"errors"
	"fmt"
	"strconv"

	"github.com/xivalex/vpack/pathhash"
	"github.com/xivalex/vpack/sqpack"
)

var (
	ErrInvalidPath = pathhash.ErrInvalidPath
	ErrFormat      = sqpack.ErrFormat
	ErrOutOfRange  = sqpack.ErrOutOfRange

	ErrCollision       = errors.New("vpack: distinct paths share a hash key")
	ErrEntryTooLarge   = errors.New("vpack: entry doesn't fit in a data file")
	ErrTooManySegments = errors.New("vpack: too many data files")
	ErrFrozen          = errors.New("vpack: builder is frozen")
	ErrSourceRead      = errors.New("vpack: source read failed")
	ErrSinkWrite       = errors.New("vpack: sink write failed")
)

// CollisionError reports two logical paths that map to the same key.  A
// path is empty when it isn't known, as for entries imported from an
// existing container.
type CollisionError struct {
	Key      pathhash.Key
	Existing string
	Incoming string
}

func (e *CollisionError) Error() string {
	return fmt.Sprintf("vpack: %s collides with %s on key %s", describePath(e.Incoming), describePath(e.Existing), e.Key)
}

func describePath(path string) string {
	if path == "" {
		return "<imported entry>"
	}
	return strconv.Quote(path)
}

func (e *CollisionError) Unwrap() error {
	return ErrCollision
}
