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
	"sync"
	"time"
)

var spinnerFrames = []string{"⠋", "⠙", "⠹", "⠸", "⠼", "⠴", "⠦", "⠧", "⠇", "⠏"}

// Spinner is an animated progress indicator. It only animates in
// styled mode; other modes print nothing until the final status.
type Spinner struct {
	p       *Printer
	message string

	mu      sync.Mutex
	running bool
	stop    chan struct{}
	done    chan struct{}
}

// NewSpinner creates a spinner printing through p.
func (p *Printer) NewSpinner(message string) *Spinner {
	return &Spinner{p: p, message: message}
}

// Start begins the animation. Calling Start on a running spinner is a no-op.
func (s *Spinner) Start() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running || s.p.mode != ModeStyled {
		return
	}
	s.running = true
	s.stop = make(chan struct{})
	s.done = make(chan struct{})

	go func() {
		ticker := time.NewTicker(80 * time.Millisecond)
		defer ticker.Stop()
		frame := 0
		for {
			select {
			case <-s.stop:
				fmt.Fprint(s.p.w, "\r\033[K")
				close(s.done)
				return
			case <-ticker.C:
				s.mu.Lock()
				msg := s.message
				s.mu.Unlock()
				fmt.Fprintf(s.p.w, "\r%s %s", Styles.Highlight.Render(spinnerFrames[frame]), msg)
				frame = (frame + 1) % len(spinnerFrames)
			}
		}
	}()
}

// Stop halts the animation and clears its line.
func (s *Spinner) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	stop, done := s.stop, s.done
	s.mu.Unlock()

	close(stop)
	<-done
}

// UpdateMessage changes the message while running.
func (s *Spinner) UpdateMessage(message string) {
	s.mu.Lock()
	s.message = message
	s.mu.Unlock()
}

// WithSpinner runs fn behind a spinner and reports its outcome. Machine
// mode reports nothing; the caller owns error output there.
func (p *Printer) WithSpinner(message string, fn func() error) error {
	spin := p.NewSpinner(message)
	spin.Start()
	err := fn()
	spin.Stop()

	if p.mode == ModeMachine {
		return err
	}
	if err != nil {
		p.Error(fmt.Sprintf("%s: %v", message, err))
		return err
	}
	p.Success(message)
	return nil
}
