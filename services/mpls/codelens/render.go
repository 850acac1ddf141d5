// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package codelens

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/AleutianAI/mpls/services/mpls/lsp"
	"github.com/AleutianAI/mpls/services/mpls/text"
)

// ErrNoCommand indicates a clicked lens has no command, even after resolve.
var ErrNoCommand = errors.New("code lens has no command")

// Element is one piece of an inlay: a Spacer or a Label.
type Element interface {
	// Width is the element width in columns.
	Width() int
}

// Spacer is blank space.
type Spacer struct {
	Columns int
}

// Width implements Element.
func (s Spacer) Width() int { return s.Columns }

// Label is the clickable title of one lens.
type Label struct {
	Text   string
	Result PendingResult

	dispatcher Dispatcher
	executor   CommandExecutor
}

// Width implements Element; titles are measured in runes.
func (l *Label) Width() int { return len([]rune(l.Text)) }

// Inlay is the block rendered above the line of one offset group.
type Inlay struct {
	// Offset is the byte offset the group is anchored to.
	Offset int

	// Position is Offset mapped onto the document.
	Position text.Position

	// ShowAbove places the block on its own line above the anchor.
	ShowAbove bool

	// RelatesToPrecedingText keeps the block with the text before the anchor.
	RelatesToPrecedingText bool

	// Priority orders inlays at the same offset; always 0.
	Priority int

	// Elements are the leading spacer and the labels with their spacers.
	Elements []Element
}

// Labels returns the clickable labels of the inlay in order.
func (in Inlay) Labels() []*Label {
	var out []*Label
	for _, e := range in.Elements {
		if l, ok := e.(*Label); ok {
			out = append(out, l)
		}
	}
	return out
}

// Renderer turns an aggregation outcome into inlays.
//
// Thread Safety:
//
//	Render is meant to run on the rendering goroutine; labels hop back to
//	it through Dispatcher when a click completes.
type Renderer struct {
	Dispatcher Dispatcher
	Executor   CommandExecutor
}

// NewRenderer creates a renderer that executes commands on their server.
func NewRenderer(dispatcher Dispatcher) *Renderer {
	return &Renderer{Dispatcher: dispatcher, Executor: ServerExecutor{}}
}

// Render builds one inlay per offset group in offset order.
//
// Description:
//
//	Each inlay starts with a spacer as wide as the group's column,
//	followed by a label and a one-column spacer per result. Results
//	without a command title get no label; their group still gets an
//	inlay holding the leading spacer.
func (r *Renderer) Render(doc *text.Document, outcome *Outcome) ([]Inlay, error) {
	if outcome == nil {
		return nil, nil
	}
	dispatcher := r.Dispatcher
	if dispatcher == nil {
		dispatcher = ImmediateDispatcher{}
	}
	executor := r.Executor
	if executor == nil {
		executor = ServerExecutor{}
	}

	inlays := make([]Inlay, 0, len(outcome.Offsets))
	for _, offset := range outcome.Offsets {
		pos, err := doc.OffsetToPosition(offset)
		if err != nil {
			return nil, fmt.Errorf("inlay at offset %d: %w", offset, err)
		}

		elements := []Element{Spacer{Columns: pos.Character}}
		for _, res := range outcome.Groups[offset] {
			title := lensTitle(res.Lens)
			if title == "" {
				continue
			}
			elements = append(elements,
				&Label{Text: title, Result: res, dispatcher: dispatcher, executor: executor},
				Spacer{Columns: 1},
			)
		}

		inlays = append(inlays, Inlay{
			Offset:                 offset,
			Position:               pos,
			ShowAbove:              true,
			RelatesToPrecedingText: true,
			Priority:               0,
			Elements:               elements,
		})
	}
	return inlays, nil
}

func lensTitle(lens lsp.CodeLens) string {
	if lens.Command == nil {
		return ""
	}
	return lens.Command.Title
}

// Click executes the label's command without blocking the caller.
//
// Description:
//
//	When the owning server advertises codeLens resolve support, one
//	codeLens/resolve request is issued and the resolved command is run;
//	otherwise the command embedded in the lens is run as is. Resolution
//	happens once per click and is never cached. The command runs via the
//	Dispatcher. The returned channel receives the outcome and is then
//	closed.
func (l *Label) Click(ctx context.Context) <-chan error {
	done := make(chan error, 1)
	go func() {
		server := l.Result.Server
		caps := server.Capabilities()

		path := "direct"
		cmd := l.Result.Lens.Command
		if caps.CodeLensResolveProvider() {
			path = "resolve"
			resolved, err := server.ResolveCodeLens(ctx, l.Result.Lens)
			if err != nil {
				l.finish(done, path, fmt.Errorf("resolve code lens: %w", err))
				return
			}
			cmd = resolved.Command
		}
		if cmd == nil || cmd.Command == "" {
			l.finish(done, path, ErrNoCommand)
			return
		}

		command := *cmd
		l.dispatcher.Post(func() {
			var err error
			defer func() {
				if r := recover(); r != nil {
					err = fmt.Errorf("execute %s: panic: %v", command.Command, r)
				}
				l.finish(done, path, err)
			}()
			err = l.executor.Execute(ctx, server, command)
		})
	}()
	return done
}

func (l *Label) finish(done chan<- error, path string, err error) {
	status := "ok"
	if err != nil {
		status = "error"
		slog.Warn("Code lens command failed",
			slog.String("server", l.Result.Server.Name()),
			slog.String("title", l.Text),
			slog.String("error", err.Error()),
		)
	}
	clicks.WithLabelValues(path, status).Inc()
	done <- err
	close(done)
}
