// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package ux

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/mattn/go-runewidth"
)

// MaxLineWidth bounds rendered lens rows.
const MaxLineWidth = 120

// Finding is one diagnostic in a report.
type Finding struct {
	// Location is "path:line:column" with 1-based line and column.
	Location string
	Severity string
	Code     string
	Message  string
}

// Findings prints the findings of one file.
//
// Machine mode prints one "location: severity: message [code]" line per
// finding. The other modes print the file as a heading followed by the
// findings with their locations aligned.
func (p *Printer) Findings(file string, findings []Finding) {
	if p.mode == ModeMachine {
		for _, f := range findings {
			fmt.Fprintf(p.w, "%s: %s: %s%s\n", f.Location, f.Severity, f.Message, codeSuffix(f.Code))
		}
		return
	}

	p.Title(file)
	if len(findings) == 0 {
		p.Success("no problems")
		return
	}

	width := 0
	for _, f := range findings {
		if w := runewidth.StringWidth(f.Location); w > width {
			width = w
		}
	}
	for _, f := range findings {
		loc := runewidth.FillRight(f.Location, width)
		if p.mode == ModePlain {
			fmt.Fprintf(p.w, "  %s %s  %s%s\n", IconWarning, loc, f.Message, codeSuffix(f.Code))
			continue
		}
		fmt.Fprintf(p.w, "  %s %s  %s%s\n",
			IconWarning.render(p.mode), Styles.Muted.Render(loc), f.Message, Styles.Muted.Render(codeSuffix(f.Code)))
	}
}

func codeSuffix(code string) string {
	if code == "" {
		return ""
	}
	return " [" + code + "]"
}

// Diff prints a unified diff, coloring added and removed lines in
// styled mode.
func (p *Printer) Diff(diff string) {
	added := color.New(color.FgGreen)
	removed := color.New(color.FgRed)
	hunk := color.New(color.FgCyan)
	header := color.New(color.Bold)
	for _, c := range []*color.Color{added, removed, hunk, header} {
		if p.mode == ModeStyled {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}

	for _, line := range strings.SplitAfter(diff, "\n") {
		if line == "" {
			continue
		}
		switch {
		case strings.HasPrefix(line, "+++"), strings.HasPrefix(line, "---"):
			header.Fprint(p.w, line)
		case strings.HasPrefix(line, "@@"):
			hunk.Fprint(p.w, line)
		case strings.HasPrefix(line, "+"):
			added.Fprint(p.w, line)
		case strings.HasPrefix(line, "-"):
			removed.Fprint(p.w, line)
		default:
			fmt.Fprint(p.w, line)
		}
	}
	if !strings.HasSuffix(diff, "\n") && diff != "" {
		fmt.Fprintln(p.w)
	}
}

// LensRow is one rendered inlay above a source line.
type LensRow struct {
	// Line is the 0-based source line the lenses sit above.
	Line int

	// Source is the text of that line.
	Source string

	// Indent is the leading spacer width in columns.
	Indent int

	// Titles are the lens labels in order.
	Titles []string
}

// Lenses prints each row as it would appear in an editor: the labels
// indented to the source column and joined by " | ", then the source
// line with its number.
func (p *Printer) Lenses(rows []LensRow) {
	if p.mode == ModeMachine {
		for _, r := range rows {
			fmt.Fprintf(p.w, "%d:%d\t%s\n", r.Line+1, r.Indent+1, strings.Join(r.Titles, "\t"))
		}
		return
	}

	gutter := len(fmt.Sprint(maxLine(rows) + 1))
	for _, r := range rows {
		pad := strings.Repeat(" ", gutter+3+r.Indent)
		labels := Truncate(strings.Join(r.Titles, " | "), MaxLineWidth-runewidth.StringWidth(pad))
		num := fmt.Sprintf("%*d", gutter, r.Line+1)
		if p.mode == ModeStyled {
			labels = Styles.Lens.Render(labels)
			num = Styles.Muted.Render(num)
		}
		fmt.Fprintf(p.w, "%s%s\n", pad, labels)
		fmt.Fprintf(p.w, "%s | %s\n", num, r.Source)
	}
}

func maxLine(rows []LensRow) int {
	m := 0
	for _, r := range rows {
		if r.Line > m {
			m = r.Line
		}
	}
	return m
}

// Truncate shortens s to width display columns, ending in "...".
func Truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	if width <= 3 {
		return runewidth.Truncate(s, width, "")
	}
	return runewidth.Truncate(s, width, "...")
}
