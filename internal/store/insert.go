// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"sync"
	"time"

	sq "github.com/Masterminds/squirrel"

	"github.com/chatlogd/chatlogd/internal/message"
)

// InserterConfig bounds the lifetime of a BulkInserter: how long a single
// Write/Commit may take, how long End may take to drain whatever is left,
// how many buffered rows force an implicit flush, and how often a
// time-based flush runs even if MaxRows is never reached.
type InserterConfig struct {
	WriteDeadline time.Duration
	EndDeadline   time.Duration
	MaxRows       int
	FlushPeriod   time.Duration
}

// DefaultInserterConfig matches spec.md §4.5 step 4: 30s per-write
// deadline, 180s end deadline, and a 15s flush tick.
func DefaultInserterConfig() InserterConfig {
	return InserterConfig{
		WriteDeadline: 30 * time.Second,
		EndDeadline:   180 * time.Second,
		MaxRows:       5000,
		FlushPeriod:   15 * time.Second,
	}
}

// BulkInserter accumulates rows in memory and flushes them to
// message_structured in batches, either because MaxRows was reached,
// because the flush-period timer fired, or because the caller explicitly
// asked for a transactional boundary via Commit. It is not safe for
// concurrent use by multiple goroutines; the migration engine gives each
// (channel, year, month) task its own inserter, mirroring the teacher's
// per-job Transaction in internal/repository/transaction.go.
type BulkInserter struct {
	store  *Store
	cfg    InserterConfig
	pend   []message.Structured
	mu     sync.Mutex
	ticker *time.Ticker
	stop   chan struct{}
	wg     sync.WaitGroup

	flushErr error
	flushMu  sync.Mutex
}

// NewBulkInserter starts a BulkInserter bound to st, with a background
// goroutine that forces a flush every cfg.FlushPeriod even if MaxRows
// is never reached (so a slow trickle of rows doesn't sit unflushed
// indefinitely).
func NewBulkInserter(st *Store, cfg InserterConfig) *BulkInserter {
	ins := &BulkInserter{
		store:  st,
		cfg:    cfg,
		pend:   make([]message.Structured, 0, cfg.MaxRows),
		ticker: time.NewTicker(cfg.FlushPeriod),
		stop:   make(chan struct{}),
	}

	ins.wg.Add(1)
	go ins.tickLoop()

	return ins
}

func (b *BulkInserter) tickLoop() {
	defer b.wg.Done()
	for {
		select {
		case <-b.ticker.C:
			if err := b.Commit(context.Background()); err != nil {
				b.setFlushErr(err)
			}
		case <-b.stop:
			return
		}
	}
}

func (b *BulkInserter) setFlushErr(err error) {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	if b.flushErr == nil {
		b.flushErr = err
	}
}

// Err returns the first background flush error observed by the periodic
// ticker, if any. End also returns it once its own final flush succeeds,
// so a ticker-driven flush failure surfaces through End's error.
func (b *BulkInserter) Err() error {
	b.flushMu.Lock()
	defer b.flushMu.Unlock()
	return b.flushErr
}

// Write appends m to the pending batch, flushing immediately (under
// cfg.WriteDeadline) if the batch has reached MaxRows.
func (b *BulkInserter) Write(ctx context.Context, m message.Structured) error {
	b.mu.Lock()
	b.pend = append(b.pend, m)
	full := len(b.pend) >= b.cfg.MaxRows
	b.mu.Unlock()

	if full {
		return b.Commit(ctx)
	}
	return nil
}

// Commit flushes the pending batch as a single bulk insert, forcing a
// transactional boundary. An empty batch is a no-op.
func (b *BulkInserter) Commit(ctx context.Context) error {
	b.mu.Lock()
	if len(b.pend) == 0 {
		b.mu.Unlock()
		return nil
	}
	batch := b.pend
	b.pend = make([]message.Structured, 0, b.cfg.MaxRows)
	b.mu.Unlock()

	wctx, cancel := context.WithTimeout(ctx, b.cfg.WriteDeadline)
	defer cancel()

	return b.insertBatch(wctx, batch)
}

// End flushes any residual rows, bounded by cfg.EndDeadline, then stops
// the periodic flush goroutine. It is the caller's responsibility to not
// call Write after End.
func (b *BulkInserter) End(ctx context.Context) error {
	close(b.stop)
	b.ticker.Stop()
	b.wg.Wait()

	ectx, cancel := context.WithTimeout(ctx, b.cfg.EndDeadline)
	defer cancel()

	b.mu.Lock()
	batch := b.pend
	b.pend = nil
	b.mu.Unlock()

	if len(batch) > 0 {
		if err := b.insertBatch(ectx, batch); err != nil {
			return err
		}
	}
	return b.Err()
}

func (b *BulkInserter) insertBatch(ctx context.Context, batch []message.Structured) error {
	ib := sq.Insert("message_structured").Columns(messageColumns...)
	for _, m := range batch {
		ib = ib.Values(messageValues(m)...)
	}

	query, args, err := ib.ToSql()
	if err != nil {
		return fmt.Errorf("store: build bulk insert: %w", err)
	}

	if _, err := b.store.DB.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("store: bulk insert %d rows: %w", len(batch), err)
	}
	return nil
}
