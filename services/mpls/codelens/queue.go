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
	"sync"
	"time"
)

// resultQueue is an unbounded FIFO shared by the dispatch tasks and the
// drain loop.
//
// Thread Safety:
//
//	Safe for concurrent use.
type resultQueue struct {
	mu     sync.Mutex
	items  []PendingResult
	signal chan struct{}
}

func newResultQueue() *resultQueue {
	return &resultQueue{signal: make(chan struct{}, 1)}
}

// Push appends results in order. Never blocks.
func (q *resultQueue) Push(results ...PendingResult) {
	if len(results) == 0 {
		return
	}
	q.mu.Lock()
	q.items = append(q.items, results...)
	q.mu.Unlock()

	select {
	case q.signal <- struct{}{}:
	default:
	}
}

// Poll removes the oldest result, waiting up to timeout for one to arrive.
func (q *resultQueue) Poll(timeout time.Duration) (PendingResult, bool) {
	if r, ok := q.tryPop(); ok {
		return r, true
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	for {
		select {
		case <-q.signal:
			if r, ok := q.tryPop(); ok {
				return r, true
			}
		case <-timer.C:
			return q.tryPop()
		}
	}
}

func (q *resultQueue) tryPop() (PendingResult, bool) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		return PendingResult{}, false
	}
	r := q.items[0]
	q.items[0] = PendingResult{}
	q.items = q.items[1:]
	if len(q.items) > 0 {
		// Keep the signal armed for the next Poll.
		select {
		case q.signal <- struct{}{}:
		default:
		}
	}
	return r, true
}

// Len returns the number of queued results.
func (q *resultQueue) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}
