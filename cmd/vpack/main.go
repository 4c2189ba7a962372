// Copyright 2026 The vpack Authors. All rights reserved.
// Use of this source code is governed by the MIT License
// that can be found in the LICENSE file.

// vpack merges a directory of replacement files into a SqPack container.
//
// Usage:
//
//	vpack export [flags] <container.index>   write the merged container
//	vpack ls <container.index>               list the entries of a container
//	vpack cat <container.index> <path>       print one file of a container
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"

	"github.com/xivalex/vpack"
	"github.com/xivalex/vpack/sqpack"
)

func usage() {
	fmt.Fprintf(os.Stderr, "usage: vpack export|ls|cat [flags] <container.index> [path]\n")
	os.Exit(2)
}

func main() {
	if len(os.Args) < 2 {
		usage()
	}

	var err error
	switch cmd, args := os.Args[1], os.Args[2:]; cmd {
	case "export":
		err = export(args)
	case "ls":
		err = ls(args)
	case "cat":
		err = cat(args)
	default:
		usage()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "vpack %s: %s\n", os.Args[1], err)
		os.Exit(1)
	}
}

func export(args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	overrides := fs.String("overrides", "", "directory of replacement files")
	outDir := fs.String("out", "", "directory to write the merged container to (required)")
	name := fs.String("name", "", "base name of the merged container (default: the input's)")
	compress := fs.Bool("compress", false, "deflate replacement files")
	maxSize := fs.Int64("max-segment-size", vpack.DefaultMaxSegmentSize, "maximum size of each .dat file")
	verbose := fs.Bool("v", false, "log progress")
	_ = fs.Parse(args)

	if fs.NArg() != 1 || *outDir == "" {
		fs.Usage()
		return errors.New("need one container and -out")
	}
	indexPath := fs.Arg(0)
	if *name == "" {
		*name = strings.TrimSuffix(filepath.Base(indexPath), ".index")
	}

	level := slog.LevelWarn
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	b, err := vpack.NewBuilder(vpack.WithLogger(logger), vpack.WithMaxSegmentSize(*maxSize))
	if err != nil {
		return err
	}
	defer func() {
		_ = b.Close()
	}()

	if err := b.AddEntriesFromSqPack(indexPath, false, false); err != nil {
		return err
	}
	if *overrides != "" {
		if _, err := b.AddEntriesFromDir(*overrides); err != nil {
			return err
		}
	}

	p, err := b.Freeze(*compress)
	if err != nil {
		return err
	}
	defer func() {
		_ = p.Close()
	}()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()
	return p.Export(ctx, *outDir, *name)
}

func ls(args []string) error {
	if len(args) != 1 {
		usage()
	}
	r, err := sqpack.Open(args[0])
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()

	for e, err := range r.Entries() {
		if err != nil {
			return err
		}
		fmt.Printf("%s\tdat%d\t%#x\t%d\t%s\n", e.Key, e.Segment, e.Offset, e.Size, e.Path)
	}
	return nil
}

func cat(args []string) error {
	if len(args) != 2 {
		usage()
	}
	r, err := sqpack.Open(args[0])
	if err != nil {
		return err
	}
	defer func() {
		_ = r.Close()
	}()

	contents, err := r.ReadFile(args[1])
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(contents)
	return err
}
