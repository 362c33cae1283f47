// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package writer holds the ingest-writer pipeline: a single background
// task that buffers structured messages in memory, periodically commits
// them in bulk to the analytical database with retry, and exposes the
// in-flight buffer for the read path to splice into live queries.
package writer

import (
	"context"
	"sync"
	"time"

	"github.com/go-co-op/gocron/v2"

	"github.com/chatlogd/chatlogd/internal/message"
	"github.com/chatlogd/chatlogd/internal/metrics"
	"github.com/chatlogd/chatlogd/internal/store"
	"github.com/chatlogd/chatlogd/pkg/clog"
)

// Config bounds the writer's channel, flush cadence, and retry policy.
type Config struct {
	ChannelCapacity int
	FlushInterval   time.Duration
	Retry           RetryConfig
}

// DefaultConfig matches the defaults of internal/config.Keys.
func DefaultConfig() Config {
	return Config{
		ChannelCapacity: 1000,
		FlushInterval:   15 * time.Second,
		Retry:           DefaultRetryConfig(),
	}
}

// Writer is the single ingest-writer task for a process. There must be
// exactly one per store, since the ordering guarantee ("batches do not
// interleave at the database") depends on a single flush goroutine.
type Writer struct {
	cfg     Config
	store   *store.Store
	metrics *metrics.Handles

	submit   chan message.Structured
	buf      *ringBuffer
	sched    gocron.Scheduler
	shutdown chan struct{}
	done     chan struct{}

	// flushMu serializes flushOnce: gocron's WithSingletonMode keeps the
	// scheduled job from overlapping itself, but Shutdown also calls
	// flushOnce directly, outside the scheduler's control. Without this,
	// a slow retry-bound flush racing a second flushOnce could Clear a
	// prefix-by-count out from under each other and drop messages.
	flushMu sync.Mutex
}

// New constructs a Writer bound to st. Call Start to begin consuming
// Submit'd messages; a Writer that is never started just accumulates
// nothing, since nothing drains the channel.
func New(st *store.Store, m *metrics.Handles, cfg Config) *Writer {
	return &Writer{
		cfg:      cfg,
		store:    st,
		metrics:  m,
		submit:   make(chan message.Structured, cfg.ChannelCapacity),
		buf:      newRingBuffer(),
		shutdown: make(chan struct{}),
		done:     make(chan struct{}),
	}
}

// Start spawns the ingest-consuming goroutine and the gocron-scheduled
// periodic flush, mirroring the teacher's archiver.Start/archivingWorker
// split: one goroutine drains the channel into the buffer, a separate
// scheduled job moves the buffer into the database.
func (w *Writer) Start(ctx context.Context) error {
	sched, err := gocron.NewScheduler()
	if err != nil {
		return err
	}
	w.sched = sched

	if _, err := w.sched.NewJob(
		gocron.DurationJob(w.cfg.FlushInterval),
		gocron.NewTask(func() {
			if err := w.flushOnce(ctx); err != nil {
				clog.Errorf("writer: scheduled flush failed: %v", err)
			}
		}),
		// A flush can sit inside withRetry for MaxAttempts*Delay, well
		// past one tick during a DB outage. Reschedule rather than run
		// a second flush concurrently: only one writer task touches
		// the buffer at a time, per spec.md's "batches do not
		// interleave" invariant.
		gocron.WithSingletonMode(gocron.LimitModeReschedule),
	); err != nil {
		return err
	}

	go w.consumeLoop()
	w.sched.Start()
	return nil
}

func (w *Writer) consumeLoop() {
	defer close(w.done)
	for {
		select {
		case m, ok := <-w.submit:
			if !ok {
				return
			}
			w.buf.Append(m)
			if w.metrics != nil {
				w.metrics.BufferedMessages.Set(float64(w.buf.Len()))
			}
		case <-w.shutdown:
			// drain whatever is still queued before exiting, so a
			// shutdown doesn't drop messages sitting in the channel.
			for {
				select {
				case m := <-w.submit:
					w.buf.Append(m)
				default:
					return
				}
			}
		}
	}
}

// Submit enqueues m for buffering. It blocks when the channel is full,
// which is the backpressure spec.md's suspension-point list calls out.
func (w *Writer) Submit(ctx context.Context, m message.Structured) error {
	select {
	case w.submit <- m:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Snapshot returns the buffer rows matching the given range/channel/user,
// for internal/logsstream to splice into a live query.
func (w *Writer) Snapshot(from, to int64, channelID, userID string) []message.Structured {
	return w.buf.SnapshotRange(from, to, channelID, userID)
}

// SnapshotByKind is Snapshot generalised to the same ChannelKind/UserKind
// distinction store.RangeQuery uses, so internal/logsstream can splice in
// buffer rows that agree with a query issued by login rather than ID.
func (w *Writer) SnapshotByKind(from, to int64, channelKind store.ChannelKind, channelVal string, userKind store.UserKind, userVal string) []message.Structured {
	return w.buf.SnapshotRangeByKind(from, to, channelKind, channelVal, userKind, userVal)
}

// flushOnce implements the buffer discipline of spec.md §4.2: take the
// shared lock to snapshot the current prefix, release it (new messages
// keep arriving), perform the database round trip under retry, then take
// the exclusive lock only to drop the rows that were part of the
// snapshot — anything appended meanwhile survives into the next batch.
func (w *Writer) flushOnce(ctx context.Context) error {
	w.flushMu.Lock()
	defer w.flushMu.Unlock()

	batch := w.buf.Snapshot()
	if len(batch) == 0 {
		return nil
	}

	ins := store.NewBulkInserter(w.store, store.DefaultInserterConfig())
	err := withRetry(ctx, w.cfg.Retry, func() error {
		for _, m := range batch {
			if err := ins.Write(ctx, m); err != nil {
				return err
			}
		}
		return ins.Commit(ctx)
	})

	if w.metrics != nil {
		w.metrics.FlushTotal.Inc()
		if err != nil {
			w.metrics.FlushFailedTotal.Inc()
		} else {
			w.metrics.FlushedRows.Add(float64(len(batch)))
		}
	}

	if endErr := ins.End(ctx); endErr != nil && err == nil {
		err = endErr
	}
	if err != nil {
		// Retries are exhausted; the batch stays in the buffer (we
		// never cleared it) and the next scheduled tick retries from
		// scratch, per spec.md's "no data is dropped" guarantee.
		return err
	}

	w.buf.Clear(len(batch))
	if w.metrics != nil {
		w.metrics.BufferedMessages.Set(float64(w.buf.Len()))
	}
	return nil
}

// Shutdown signals the consume loop to drain and stop, performs one
// final bounded flush, and waits for both to finish.
func (w *Writer) Shutdown(ctx context.Context) error {
	close(w.shutdown)
	<-w.done

	if w.sched != nil {
		if err := w.sched.Shutdown(); err != nil {
			clog.Warnf("writer: scheduler shutdown: %v", err)
		}
	}

	return w.flushOnce(ctx)
}
