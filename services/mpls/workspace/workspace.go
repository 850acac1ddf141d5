// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package workspace holds the Java documents of one project.
//
// Each document is kept as an immutable text snapshot plus its parsed
// compilation unit. A Snapshot freezes the whole set together with a
// symbol table so that cross-file rules see one consistent view.
package workspace

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path"
	"path/filepath"
	"runtime"
	"sort"
	"strings"
	"sync"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"

	"github.com/AleutianAI/mpls/services/mpls/javasrc"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// JavaExtension is the extension of the files a workspace loads.
const JavaExtension = ".java"

// Options configures a Workspace.
type Options struct {
	// Exclude holds glob patterns. A directory or file is skipped when a
	// pattern matches its name or its slash path relative to the root.
	Exclude []string

	// MaxFileSize is passed to the parser. Zero keeps the parser default.
	MaxFileSize int64

	// Concurrency bounds parallel parsing during Load. Zero uses GOMAXPROCS.
	Concurrency int
}

// entry is one document and its parse.
type entry struct {
	doc  *text.Document
	unit *javasrc.CompilationUnit
}

// Workspace is the set of Java documents under a root directory.
//
// Thread Safety:
//
//	Safe for concurrent use. Concurrent loads of the same file are
//	collapsed into one read and parse.
type Workspace struct {
	root   string
	opts   Options
	parser *javasrc.Parser

	mu         sync.RWMutex
	entries    map[string]entry
	generation uint64
	snapshot   *Snapshot

	flight singleflight.Group
}

// New creates an empty workspace rooted at root.
func New(root string, opts Options) (*Workspace, error) {
	abs, err := filepath.Abs(root)
	if err != nil {
		return nil, fmt.Errorf("resolve workspace root: %w", err)
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = runtime.GOMAXPROCS(0)
	}
	var parserOpts []javasrc.ParserOption
	if opts.MaxFileSize > 0 {
		parserOpts = append(parserOpts, javasrc.WithMaxFileSize(opts.MaxFileSize))
	}
	return &Workspace{
		root:    abs,
		opts:    opts,
		parser:  javasrc.NewParser(parserOpts...),
		entries: make(map[string]entry),
	}, nil
}

// Root returns the absolute workspace directory.
func (w *Workspace) Root() string {
	return w.root
}

// Excluded reports whether path, absolute or relative to the root,
// matches an exclude pattern. A pattern matches when it matches any
// single segment of the relative path or any leading run of segments,
// so everything below an excluded directory is excluded too.
func (w *Workspace) Excluded(p string) bool {
	if filepath.IsAbs(p) {
		rel, err := filepath.Rel(w.root, p)
		if err != nil {
			return false
		}
		p = rel
	}
	rel := filepath.ToSlash(p)
	if rel == "." {
		return false
	}
	segments := strings.Split(rel, "/")
	for _, pattern := range w.opts.Exclude {
		for i, segment := range segments {
			if ok, _ := path.Match(pattern, segment); ok {
				return true
			}
			if ok, _ := path.Match(pattern, strings.Join(segments[:i+1], "/")); ok {
				return true
			}
		}
	}
	return false
}

// Load walks the root and parses every Java file not excluded.
//
// Description:
//
//	Files are read and parsed in parallel. A file that cannot be read
//	or parsed is logged and skipped. Files already loaded with the same
//	content keep their snapshot and version.
//
// Outputs:
//
//	int - Number of documents held after the walk
//	error - Walk failure or ctx error
func (w *Workspace) Load(ctx context.Context) (int, error) {
	var files []string
	err := filepath.WalkDir(w.root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			slog.Debug("skipping unreadable path", slog.String("path", p), slog.String("error", err.Error()))
			if d != nil && d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if p != w.root && w.Excluded(p) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if !d.IsDir() && strings.EqualFold(filepath.Ext(p), JavaExtension) {
			files = append(files, p)
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("walk %s: %w", w.root, err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(w.opts.Concurrency)
	for _, f := range files {
		g.Go(func() error {
			if _, err := w.LoadFile(gctx, f); err != nil {
				if ctxErr := gctx.Err(); ctxErr != nil {
					return ctxErr
				}
				slog.Warn("skipping java file",
					slog.String("path", f),
					slog.String("error", err.Error()),
				)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return 0, err
	}

	slog.Info("workspace loaded",
		slog.String("root", w.root),
		slog.Int("files", len(files)),
		slog.Int("documents", w.Len()),
	)
	return w.Len(), nil
}

// LoadFile reads one file from disk and stores it.
func (w *Workspace) LoadFile(ctx context.Context, file string) (*text.Document, error) {
	uri, err := URIFromPath(file)
	if err != nil {
		return nil, err
	}
	v, err, _ := w.flight.Do(uri, func() (interface{}, error) {
		content, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("read %s: %w", file, err)
		}
		return w.Set(ctx, uri, string(content))
	})
	if err != nil {
		return nil, err
	}
	return v.(*text.Document), nil
}

// Set stores content as the current text of uri.
//
// Description:
//
//	The content is parsed and a new snapshot is stored with the next
//	version number, starting at 1. Content identical to the current
//	snapshot is not parsed again and keeps its version.
//
// Outputs:
//
//	*text.Document - The current snapshot of uri
//	error - A parser error or ctx error; the previous snapshot is kept
func (w *Workspace) Set(ctx context.Context, uri, content string) (*text.Document, error) {
	hash := contentHash(content)

	w.mu.RLock()
	prev, ok := w.entries[uri]
	w.mu.RUnlock()
	if ok && prev.unit.Hash == hash {
		return prev.doc, nil
	}

	unit, err := w.parser.Parse(ctx, uri, []byte(content))
	if err != nil {
		return nil, err
	}

	w.mu.Lock()
	defer w.mu.Unlock()
	version := int32(1)
	if cur, ok := w.entries[uri]; ok {
		if cur.unit.Hash == hash {
			return cur.doc, nil
		}
		version = cur.doc.Version() + 1
	}
	doc := text.NewDocument(uri, version, content)
	w.entries[uri] = entry{doc: doc, unit: unit}
	w.invalidateLocked()
	return doc, nil
}

// Remove drops uri. It reports whether the document was held.
func (w *Workspace) Remove(uri string) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, ok := w.entries[uri]; !ok {
		return false
	}
	delete(w.entries, uri)
	w.invalidateLocked()
	return true
}

// Len returns the number of documents.
func (w *Workspace) Len() int {
	w.mu.RLock()
	defer w.mu.RUnlock()
	return len(w.entries)
}

// Document returns the current snapshot and parse of uri.
func (w *Workspace) Document(uri string) (*text.Document, *javasrc.CompilationUnit, error) {
	w.mu.RLock()
	defer w.mu.RUnlock()
	e, ok := w.entries[uri]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return e.doc, e.unit, nil
}

// Snapshot returns a frozen view of every document.
//
// The view is rebuilt only after a change; callers share it read-only.
func (w *Workspace) Snapshot() *Snapshot {
	w.mu.RLock()
	if s := w.snapshot; s != nil {
		w.mu.RUnlock()
		return s
	}
	w.mu.RUnlock()

	w.mu.Lock()
	defer w.mu.Unlock()
	if w.snapshot != nil {
		return w.snapshot
	}

	entries := make(map[string]entry, len(w.entries))
	units := make([]*javasrc.CompilationUnit, 0, len(w.entries))
	for uri, e := range w.entries {
		entries[uri] = e
		units = append(units, e.unit)
	}
	w.snapshot = &Snapshot{
		Generation: w.generation,
		Symbols:    javasrc.NewSymbolTable(units...),
		entries:    entries,
	}
	return w.snapshot
}

func (w *Workspace) invalidateLocked() {
	w.generation++
	w.snapshot = nil
}

func contentHash(content string) string {
	sum := sha256.Sum256([]byte(content))
	return hex.EncodeToString(sum[:])
}

// =============================================================================
// SNAPSHOT
// =============================================================================

// Snapshot is an immutable view of the workspace at one generation.
type Snapshot struct {
	// Generation increases with every change to the workspace.
	Generation uint64

	// Symbols indexes every unit of the snapshot.
	Symbols *javasrc.SymbolTable

	entries map[string]entry
}

// Document returns the snapshot and parse of uri.
func (s *Snapshot) Document(uri string) (*text.Document, *javasrc.CompilationUnit, error) {
	e, ok := s.entries[uri]
	if !ok {
		return nil, nil, fmt.Errorf("%w: %s", ErrDocumentNotFound, uri)
	}
	return e.doc, e.unit, nil
}

// URIs returns the document URIs in order.
func (s *Snapshot) URIs() []string {
	uris := make([]string, 0, len(s.entries))
	for uri := range s.entries {
		uris = append(uris, uri)
	}
	sort.Strings(uris)
	return uris
}

// Len returns the number of documents.
func (s *Snapshot) Len() int {
	return len(s.entries)
}
