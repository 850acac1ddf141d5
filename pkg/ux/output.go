// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

// Package ux provides terminal output styling for the mpls CLI.
package ux

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-isatty"
)

// Palette
var (
	ColorTealBright  = lipgloss.Color("#2CD7C7")
	ColorTealPrimary = lipgloss.Color("#20B9B4")
	ColorTealDeep    = lipgloss.Color("#16858E")
	ColorSlate       = lipgloss.Color("#2C4A54")

	ColorSuccess = lipgloss.Color("#2CD7C7")
	ColorWarning = lipgloss.Color("#F4D03F")
	ColorError   = lipgloss.Color("#E74C3C")
)

// Styles provides pre-configured lipgloss styles
var Styles = struct {
	Title     lipgloss.Style
	Bold      lipgloss.Style
	Muted     lipgloss.Style
	Success   lipgloss.Style
	Warning   lipgloss.Style
	Error     lipgloss.Style
	Highlight lipgloss.Style
	Lens      lipgloss.Style
	Box       lipgloss.Style
}{
	Title:     lipgloss.NewStyle().Bold(true).Foreground(ColorTealBright),
	Bold:      lipgloss.NewStyle().Bold(true),
	Muted:     lipgloss.NewStyle().Foreground(ColorSlate),
	Success:   lipgloss.NewStyle().Foreground(ColorSuccess),
	Warning:   lipgloss.NewStyle().Foreground(ColorWarning),
	Error:     lipgloss.NewStyle().Foreground(ColorError),
	Highlight: lipgloss.NewStyle().Foreground(ColorTealBright).Bold(true),
	Lens:      lipgloss.NewStyle().Foreground(ColorTealPrimary).Underline(true),
	Box: lipgloss.NewStyle().
		Border(lipgloss.RoundedBorder()).
		BorderForeground(ColorTealDeep).
		Padding(0, 1),
}

// Icon is a status glyph.
type Icon string

const (
	IconSuccess Icon = "✓"
	IconWarning Icon = "⚠"
	IconError   Icon = "✗"
	IconArrow   Icon = "→"
)

// render styles the icon in styled mode.
func (i Icon) render(mode Mode) string {
	if mode != ModeStyled {
		return string(i)
	}
	switch i {
	case IconSuccess:
		return Styles.Success.Render(string(i))
	case IconWarning:
		return Styles.Warning.Render(string(i))
	case IconError:
		return Styles.Error.Render(string(i))
	default:
		return string(i)
	}
}

// =============================================================================
// Mode
// =============================================================================

// Mode controls how richly output is rendered.
type Mode string

const (
	// ModeStyled uses colors, icons and boxes.
	ModeStyled Mode = "styled"

	// ModePlain uses icons without colors.
	ModePlain Mode = "plain"

	// ModeMachine writes JSON or line-oriented text for scripts.
	ModeMachine Mode = "machine"
)

// ParseMode converts a flag value to a Mode. "auto" and "" detect the
// mode from w.
func ParseMode(s string, w io.Writer) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "auto":
		return DetectMode(w), nil
	case "styled", "color":
		return ModeStyled, nil
	case "plain", "text":
		return ModePlain, nil
	case "machine", "json":
		return ModeMachine, nil
	default:
		return "", fmt.Errorf("unknown output mode %q", s)
	}
}

// DetectMode returns ModeStyled when w is a terminal and ModeMachine
// otherwise.
func DetectMode(w io.Writer) Mode {
	f, ok := w.(*os.File)
	if !ok {
		return ModeMachine
	}
	if isatty.IsTerminal(f.Fd()) || isatty.IsCygwinTerminal(f.Fd()) {
		return ModeStyled
	}
	return ModeMachine
}

// =============================================================================
// Printer
// =============================================================================

// Printer writes CLI output in one mode.
type Printer struct {
	w    io.Writer
	mode Mode
}

// NewPrinter creates a printer writing to w.
func NewPrinter(w io.Writer, mode Mode) *Printer {
	return &Printer{w: w, mode: mode}
}

// Mode returns the output mode.
func (p *Printer) Mode() Mode {
	return p.mode
}

// Writer returns the underlying writer.
func (p *Printer) Writer() io.Writer {
	return p.w
}

// JSON writes v as indented JSON.
func (p *Printer) JSON(v any) error {
	enc := json.NewEncoder(p.w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// Title prints a title. Machine output has no titles.
func (p *Printer) Title(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.w, text)
	default:
		fmt.Fprintln(p.w, Styles.Title.Render(text))
	}
}

// Success prints a success message with a checkmark.
func (p *Printer) Success(text string) {
	p.status("OK", IconSuccess, Styles.Success, text)
}

// Warning prints a warning message.
func (p *Printer) Warning(text string) {
	p.status("WARN", IconWarning, Styles.Warning, text)
}

// Error prints an error message.
func (p *Printer) Error(text string) {
	p.status("ERROR", IconError, Styles.Error, text)
}

func (p *Printer) status(prefix string, icon Icon, style lipgloss.Style, text string) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "%s: %s\n", prefix, text)
	case ModePlain:
		fmt.Fprintf(p.w, "%s %s\n", icon, text)
	default:
		fmt.Fprintf(p.w, "%s %s\n", icon.render(p.mode), style.Render(text))
	}
}

// Muted prints secondary text. Machine output omits it.
func (p *Printer) Muted(text string) {
	switch p.mode {
	case ModeMachine:
	case ModePlain:
		fmt.Fprintln(p.w, text)
	default:
		fmt.Fprintln(p.w, Styles.Muted.Render(text))
	}
}

// Box prints content in a rounded box under a title.
func (p *Printer) Box(title, content string) {
	if p.mode != ModeStyled {
		fmt.Fprintf(p.w, "%s\n%s\n", title, content)
		return
	}
	fmt.Fprintln(p.w, Styles.Box.Render(Styles.Title.Render(title)+"\n"+content))
}

// Summary prints a count line such as "3 warnings in 2 files".
func (p *Printer) Summary(warnings, files int) {
	switch p.mode {
	case ModeMachine:
		fmt.Fprintf(p.w, "SUMMARY: warnings=%d files=%d\n", warnings, files)
	case ModePlain:
		fmt.Fprintf(p.w, "\n%d %s in %d %s\n", warnings, plural(warnings, "warning"), files, plural(files, "file"))
	default:
		fmt.Fprintf(p.w, "\n%s %s in %s %s\n",
			Styles.Warning.Render(fmt.Sprintf("%d", warnings)), Styles.Muted.Render(plural(warnings, "warning")),
			Styles.Bold.Render(fmt.Sprintf("%d", files)), Styles.Muted.Render(plural(files, "file")),
		)
	}
}

func plural(n int, word string) string {
	if n == 1 {
		return word
	}
	return word + "s"
}
