// Package jobs runs heterogeneous background work under a fixed concurrency
// ceiling with per-job identity dedup, cooperative cancellation and
// suspend/resume. Jobs never retry here; whoever cares re-submits an
// equivalent job.
package jobs

import (
	"context"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Job is one unit of background work. ID is content-derived (for example
// "ack-<messageId>") so re-submission before completion is a no-op. Run must
// honor ctx at safe points; cancellation is cooperative.
type Job struct {
	ID     string
	Action string
	Run    func(ctx context.Context) error
}

// Exempt id prefixes bypass dedup: each such submission represents an
// independent condition worth executing individually.
var exemptPrefixes = []string{"refresh-", "file-", "attachment-"}

func isExempt(id string) bool {
	for _, p := range exemptPrefixes {
		if strings.HasPrefix(id, p) {
			return true
		}
	}
	return false
}

type entry struct {
	job       Job
	cancel    context.CancelFunc
	cancelled bool
}

// Queue is the bounded-concurrency job runner.
type Queue struct {
	logger      *zap.Logger
	connected   func() bool
	authed      func() bool
	concurrency int

	mu        sync.Mutex
	index     map[string]*entry // queued or running, not cancelled, non-exempt
	pending   []*entry
	running   int
	suspended bool
	closed    bool
	wg        sync.WaitGroup
}

// New creates a queue with the given worker ceiling. connected and authed
// supply the transport connection flag and the authentication flag.
func New(concurrency int, connected, authed func() bool, logger *zap.Logger) *Queue {
	if concurrency <= 0 {
		concurrency = 1
	}
	if connected == nil {
		connected = func() bool { return false }
	}
	if authed == nil {
		authed = func() bool { return true }
	}
	return &Queue{
		logger:      logger,
		connected:   connected,
		authed:      authed,
		concurrency: concurrency,
		index:       make(map[string]*entry),
	}
}

// Submit queues a job. It rejects when not authenticated, when the queue is
// closed, or when a non-cancelled job with the same non-exempt id is already
// queued or running. A suspended queue with a live transport connection is an
// anomaly (stuck suspend flag): it is logged and the queue self-heals by
// resuming.
func (q *Queue) Submit(job Job) bool {
	if job.Run == nil || job.ID == "" {
		return false
	}
	if !q.authed() {
		return false
	}

	q.mu.Lock()
	if q.closed {
		q.mu.Unlock()
		return false
	}
	exempt := isExempt(job.ID)
	if !exempt {
		if _, dup := q.index[job.ID]; dup {
			q.mu.Unlock()
			q.logger.Warn("duplicate job rejected", zap.String("job_id", job.ID))
			return false
		}
	}
	e := &entry{job: job}
	if !exempt {
		q.index[job.ID] = e
	}
	q.pending = append(q.pending, e)

	if q.suspended && q.connected() {
		q.logger.Error("job queue suspended while transport connected, resuming",
			zap.Int("pending", len(q.pending)))
		q.suspended = false
	}
	q.dispatchLocked()
	q.mu.Unlock()
	return true
}

// Cancel requests cooperative cancellation of a job by id. Queued jobs are
// dropped; a running job keeps going until it observes its context.
func (q *Queue) Cancel(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	e, ok := q.index[jobID]
	if !ok || e.cancelled {
		return false
	}
	e.cancelled = true
	if e.cancel != nil {
		e.cancel()
	}
	delete(q.index, jobID)
	return true
}

// CancelAll cancels every queued and running job. Used on logout/session
// teardown.
func (q *Queue) CancelAll() {
	q.mu.Lock()
	for _, e := range q.pending {
		e.cancelled = true
	}
	q.pending = nil
	for id, e := range q.index {
		e.cancelled = true
		if e.cancel != nil {
			e.cancel()
		}
		delete(q.index, id)
	}
	q.mu.Unlock()
}

// Suspend stops dispatching new jobs. Running jobs continue unless they
// check cancellation.
func (q *Queue) Suspend() {
	q.mu.Lock()
	q.suspended = true
	q.mu.Unlock()
}

// Resume allows dispatching again.
func (q *Queue) Resume() {
	q.mu.Lock()
	q.suspended = false
	q.dispatchLocked()
	q.mu.Unlock()
}

// Close cancels everything and waits for running jobs to finish.
func (q *Queue) Close() {
	q.mu.Lock()
	q.closed = true
	q.mu.Unlock()
	q.CancelAll()
	q.wg.Wait()
}

// Pending returns the number of jobs waiting for a worker.
func (q *Queue) Pending() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.pending)
}

// Exists reports whether a non-cancelled job with the id is queued or
// running.
func (q *Queue) Exists(jobID string) bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	_, ok := q.index[jobID]
	return ok
}

func (q *Queue) dispatchLocked() {
	for !q.suspended && q.running < q.concurrency && len(q.pending) > 0 {
		e := q.pending[0]
		q.pending = q.pending[1:]
		if e.cancelled {
			continue
		}
		ctx, cancel := context.WithCancel(context.Background())
		e.cancel = cancel
		q.running++
		q.wg.Add(1)
		go q.execute(ctx, e)
	}
}

func (q *Queue) execute(ctx context.Context, e *entry) {
	defer q.wg.Done()
	start := time.Now()
	err := e.job.Run(ctx)

	q.mu.Lock()
	if cur, ok := q.index[e.job.ID]; ok && cur == e {
		delete(q.index, e.job.ID)
	}
	q.running--
	q.dispatchLocked()
	q.mu.Unlock()

	if e.cancel != nil {
		e.cancel()
	}
	switch {
	case ctx.Err() != nil:
		q.logger.Info("job cancelled", zap.String("job_id", e.job.ID))
	case err != nil:
		// Failures are swallowed: retry is the re-submitter's concern.
		q.logger.Warn("job failed", zap.String("job_id", e.job.ID),
			zap.String("action", e.job.Action), zap.Error(err))
	default:
		q.logger.Debug("job completed", zap.String("job_id", e.job.ID),
			zap.Duration("took", time.Since(start)))
	}
}
