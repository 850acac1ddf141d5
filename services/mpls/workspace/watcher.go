// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package workspace

import (
	"context"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is how long the watcher waits for more events on the
// same file before reloading it.
const DefaultDebounce = 100 * time.Millisecond

// ChangeHandler is called after a batch of documents changed. Removed
// documents are listed in removed.
type ChangeHandler func(changed, removed []string)

// Watcher keeps a Workspace in sync with the file system.
//
// Thread Safety:
//
//	Run must be called once; the handler runs on the watcher goroutine.
type Watcher struct {
	ws       *Workspace
	fsw      *fsnotify.Watcher
	debounce time.Duration
	handler  ChangeHandler
}

// NewWatcher creates a watcher over every non-excluded directory of ws.
func NewWatcher(ws *Workspace, debounce time.Duration, handler ChangeHandler) (*Watcher, error) {
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("create file watcher: %w", err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}
	w := &Watcher{ws: ws, fsw: fsw, debounce: debounce, handler: handler}
	if err := w.addRecursive(ws.Root()); err != nil {
		fsw.Close()
		return nil, err
	}
	return w, nil
}

func (w *Watcher) addRecursive(root string) error {
	return filepath.WalkDir(root, func(p string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if p != w.ws.Root() && w.ws.Excluded(p) {
			return filepath.SkipDir
		}
		return w.fsw.Add(p)
	})
}

// Run processes file events until ctx is done, then closes the watcher.
func (w *Watcher) Run(ctx context.Context) error {
	defer w.fsw.Close()

	pending := make(map[string]fsnotify.Op)
	var timer *time.Timer
	var timerC <-chan time.Time

	for {
		select {
		case <-ctx.Done():
			if timer != nil {
				timer.Stop()
			}
			return nil

		case event, ok := <-w.fsw.Events:
			if !ok {
				return nil
			}
			if w.ws.Excluded(event.Name) {
				continue
			}
			if event.Has(fsnotify.Create) {
				if info, err := os.Stat(event.Name); err == nil && info.IsDir() {
					if err := w.addRecursive(event.Name); err != nil {
						slog.Warn("failed to watch directory",
							slog.String("path", event.Name),
							slog.String("error", err.Error()),
						)
					}
					continue
				}
			}
			if !strings.EqualFold(filepath.Ext(event.Name), JavaExtension) {
				continue
			}
			pending[event.Name] |= event.Op
			if timer == nil {
				timer = time.NewTimer(w.debounce)
				timerC = timer.C
			}

		case <-timerC:
			w.flush(ctx, pending)
			pending = make(map[string]fsnotify.Op)
			timer, timerC = nil, nil

		case err, ok := <-w.fsw.Errors:
			if !ok {
				return nil
			}
			slog.Warn("file watcher error", slog.String("error", err.Error()))
		}
	}
}

// flush reloads or drops every pending file. A file that no longer
// exists is removed whatever events were seen for it.
func (w *Watcher) flush(ctx context.Context, pending map[string]fsnotify.Op) {
	paths := make([]string, 0, len(pending))
	for p := range pending {
		paths = append(paths, p)
	}
	sort.Strings(paths)

	var changed, removed []string
	for _, p := range paths {
		uri, err := URIFromPath(p)
		if err != nil {
			continue
		}
		if _, err := os.Stat(p); err != nil {
			if w.ws.Remove(uri) {
				removed = append(removed, uri)
			}
			continue
		}
		before, _, _ := w.ws.Document(uri)
		doc, err := w.ws.LoadFile(ctx, p)
		if err != nil {
			slog.Warn("failed to reload java file",
				slog.String("path", p),
				slog.String("error", err.Error()),
			)
			continue
		}
		if before == nil || before.Version() != doc.Version() {
			changed = append(changed, uri)
		}
	}

	if len(changed)+len(removed) == 0 {
		return
	}
	slog.Debug("workspace files changed",
		slog.Int("changed", len(changed)),
		slog.Int("removed", len(removed)),
	)
	if w.handler != nil {
		w.handler(changed, removed)
	}
}
