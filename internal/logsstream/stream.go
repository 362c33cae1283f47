// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package logsstream composes a lazy sequence of structured messages from
// one of three sources — a single store cursor, a sequential concatenation
// of cursors (multi-month queries), or a pre-materialised slice — with the
// writer's in-memory buffer spliced in at the correct end. It is the pull
// iterator behind every response encoder in internal/respond: nothing here
// materialises the whole result, the way internal/importer's ar.Iter(false)
// hands callers one row at a time instead of a slice.
package logsstream

import (
	"context"
	"errors"

	"github.com/chatlogd/chatlogd/internal/message"
	"github.com/chatlogd/chatlogd/internal/store"
)

// ErrNotFound is produced eagerly by a constructor when both the store and
// the buffer contributed zero rows — the enclosing HTTP adapter turns this
// into a 404, per spec.md §7.
var ErrNotFound = errors.New("logsstream: no messages in range")

// source is the pull-iterator contract every construction variant
// implements: one more message, or end-of-stream, or a decode error.
type source interface {
	next(ctx context.Context) (message.Structured, bool, error)
	close() error
}

// Stream is a composable, lazily-evaluated sequence of structured
// messages. Build one with FromCursor/FromMultiQuery/FromSlice, splice in
// the writer's buffer with WithBuffer, cap it with WithLimit, then drain it
// with Next. Range, offset and ordering are decided by the store query that
// feeds it (see BuildRangeStream). A Stream is single-use and not safe for
// concurrent use.
type Stream struct {
	src     source
	limit   int
	hasLim  bool
	emitted int
}

// Next advances the stream. false with a nil error means end-of-stream;
// cancelling ctx makes the next call return ctx.Err() once the underlying
// cursor notices — the Go mapping of "dropping the LogsStream cancels
// cleanly at the next suspension point".
func (s *Stream) Next(ctx context.Context) (message.Structured, bool, error) {
	if s.hasLim && s.emitted >= s.limit {
		return message.Structured{}, false, nil
	}
	if err := ctx.Err(); err != nil {
		return message.Structured{}, false, err
	}

	m, ok, err := s.src.next(ctx)
	if err != nil || !ok {
		return message.Structured{}, false, err
	}
	s.emitted++
	return m, true, nil
}

// Close releases any cursors held by the stream. Safe to call more than
// once; safe to call without having drained the stream.
func (s *Stream) Close() error {
	if s.src == nil {
		return nil
	}
	return s.src.close()
}

// WithLimit stops the stream after n emitted messages when has is true; a
// limit of 0 then emits nothing. has == false means unlimited, which is
// also how the zero value of Stream behaves.
func (s *Stream) WithLimit(n int, has bool) *Stream {
	s.hasLim = has
	s.limit = n
	return s
}

// --- cursor source -------------------------------------------------------

// cursorSource adapts a single store.Cursor, pre-fetching the first row so
// constructors can decide NotFound eagerly.
type cursorSource struct {
	cur       store.Cursor
	pending   message.Structured
	hasPend   bool
	exhausted bool
}

func newCursorSource(cur store.Cursor) (*cursorSource, error) {
	cs := &cursorSource{cur: cur}
	m, ok, err := cur.Next()
	if err != nil {
		return nil, err
	}
	if ok {
		cs.pending, cs.hasPend = m, true
	} else {
		cs.exhausted = true
	}
	return cs, nil
}

func (cs *cursorSource) next(ctx context.Context) (message.Structured, bool, error) {
	if cs.hasPend {
		m := cs.pending
		cs.hasPend = false
		return m, true, nil
	}
	if cs.exhausted {
		return message.Structured{}, false, nil
	}
	return cs.cur.Next()
}

func (cs *cursorSource) close() error { return cs.cur.Close() }

// FromCursor wraps a single database cursor, pre-fetching its first row.
// The only error it returns is one from that first fetch; an empty cursor
// still yields a Stream. ErrNotFound is decided later by BuildRangeStream,
// after the buffer is spliced in — an empty store cursor with a non-empty
// buffer is not NotFound.
func FromCursor(cur store.Cursor) (*Stream, error) {
	cs, err := newCursorSource(cur)
	if err != nil {
		cur.Close()
		return nil, err
	}
	return &Stream{src: cs}, nil
}

// --- multi-cursor (multi-month) source -----------------------------------

// multiSource consumes an ordered list of cursors sequentially, advancing
// to the next as soon as one reports end-of-stream — the construction
// variant used for queries spanning more than one toYYYYMM partition.
type multiSource struct {
	curs []store.Cursor
	idx  int
}

func (ms *multiSource) next(ctx context.Context) (message.Structured, bool, error) {
	for ms.idx < len(ms.curs) {
		m, ok, err := ms.curs[ms.idx].Next()
		if err != nil {
			return message.Structured{}, false, err
		}
		if ok {
			return m, true, nil
		}
		ms.curs[ms.idx].Close()
		ms.idx++
	}
	return message.Structured{}, false, nil
}

func (ms *multiSource) close() error {
	var firstErr error
	for ; ms.idx < len(ms.curs); ms.idx++ {
		if err := ms.curs[ms.idx].Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

// FromMultiQuery concatenates curs in order. An empty slice behaves like an
// exhausted stream (callers combine this with WithBuffer before treating it
// as NotFound).
func FromMultiQuery(curs []store.Cursor) (*Stream, error) {
	ms := &multiSource{curs: curs}
	// Pre-probe for eager NotFound the same way FromCursor does, without
	// losing the first row: peek via a provided-slice adapter isn't
	// available here, so multi-query NotFound is instead decided by the
	// caller after splicing in the buffer (see BuildRangeStream).
	return &Stream{src: ms}, nil
}

// --- provided (pre-materialised) source -----------------------------------

type sliceSource struct {
	rows []message.Structured
	idx  int
}

func (ss *sliceSource) next(ctx context.Context) (message.Structured, bool, error) {
	if ss.idx >= len(ss.rows) {
		return message.Structured{}, false, nil
	}
	m := ss.rows[ss.idx]
	ss.idx++
	return m, true, nil
}

func (ss *sliceSource) close() error { return nil }

// FromSlice wraps a pre-materialised result, e.g. a short user-log query
// that is entirely buffer or entirely one small cursor fetch already
// collected into memory.
func FromSlice(rows []message.Structured) *Stream {
	return &Stream{src: &sliceSource{rows: rows}}
}

// --- buffer splice ---------------------------------------------------------

// bufferFirstSource drains a prepended buffer slice before falling through
// to inner — used in reverse queries, where the buffer holds the newest
// rows and must be emitted before the (DESC-ordered) store cursor.
type bufferFirstSource struct {
	buf   []message.Structured
	idx   int
	inner source
}

func (b *bufferFirstSource) next(ctx context.Context) (message.Structured, bool, error) {
	if b.idx < len(b.buf) {
		m := b.buf[b.idx]
		b.idx++
		return m, true, nil
	}
	return b.inner.next(ctx)
}

func (b *bufferFirstSource) close() error { return b.inner.close() }

// bufferLastSource drains inner first, then the appended buffer slice —
// used in non-reverse queries, where the buffer holds the newest rows and
// must be emitted after the (ASC-ordered) store cursor.
type bufferLastSource struct {
	inner   source
	buf     []message.Structured
	idx     int
	drained bool
}

func (b *bufferLastSource) next(ctx context.Context) (message.Structured, bool, error) {
	if !b.drained {
		m, ok, err := b.inner.next(ctx)
		if err != nil {
			return message.Structured{}, false, err
		}
		if ok {
			return m, true, nil
		}
		b.drained = true
	}
	if b.idx < len(b.buf) {
		m := b.buf[b.idx]
		b.idx++
		return m, true, nil
	}
	return message.Structured{}, false, nil
}

func (b *bufferLastSource) close() error { return b.inner.close() }

// WithBuffer splices buf into the stream: prepended (and reversed, since
// the buffer is kept in ascending append order but a reverse query needs
// newest-first) when reverse is true, appended otherwise. This preserves
// global time order across buffer+store without a merge pass, per
// spec.md §4.3.
func (s *Stream) WithBuffer(buf []message.Structured, reverse bool) *Stream {
	if len(buf) == 0 {
		return s
	}

	ordered := buf
	if reverse {
		ordered = make([]message.Structured, len(buf))
		for i, m := range buf {
			ordered[len(buf)-1-i] = m
		}
		s.src = &bufferFirstSource{buf: ordered, inner: s.src}
	} else {
		s.src = &bufferLastSource{inner: s.src, buf: ordered}
	}
	return s
}
