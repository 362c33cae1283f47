// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logsstream

import (
	"context"

	"github.com/chatlogd/chatlogd/internal/message"
	"github.com/chatlogd/chatlogd/internal/store"
)

// BufferSource is the narrow slice of *writer.Writer that BuildRangeStream
// needs: enough to splice in not-yet-flushed rows, nothing that would let
// this package keep a standing handle back to the writer (design note 9's
// "no cyclic references from buffer slices back to the writer").
type BufferSource interface {
	SnapshotByKind(from, to int64, channelKind store.ChannelKind, channelVal string, userKind store.UserKind, userVal string) []message.Structured
}

// pushbackSource re-emits one already-fetched row before falling through
// to inner. Used so BuildRangeStream can eagerly probe a composed stream
// for ErrNotFound without losing the first row it found.
type pushbackSource struct {
	m       message.Structured
	pending bool
	inner   source
}

func (p *pushbackSource) next(ctx context.Context) (message.Structured, bool, error) {
	if p.pending {
		p.pending = false
		return p.m, true, nil
	}
	return p.inner.next(ctx)
}

func (p *pushbackSource) close() error { return p.inner.close() }

// BuildRangeStream is the one entry point the HTTP layer uses: it issues
// the appropriate store query (single-cursor or multi-month), splices in
// the writer's buffer at the correct end, applies the offset/limit
// composition rules of spec.md §4.3, and probes eagerly for ErrNotFound.
func BuildRangeStream(ctx context.Context, st *store.Store, buf BufferSource, rq store.RangeQuery) (*Stream, error) {
	bufRows := buf.SnapshotByKind(rq.From, rq.To, rq.ChannelKind, rq.ChannelID, rq.UserKind, rq.UserID)

	storeRQ := rq
	var bufForEmit []message.Structured

	if rq.Reverse {
		// Buffer contributes first (newest side); offset consumes from
		// the buffer before it ever reaches the store query, and the
		// buffer's eventual emitted count reduces the store-side limit,
		// per spec.md's "its count counts against limit for the store
		// segment".
		skip := 0
		if rq.HasOffset {
			skip = int(rq.Offset)
			if skip > len(bufRows) {
				skip = len(bufRows)
			}
		}
		bufForEmit = bufRows[:len(bufRows)-skip]

		if rq.HasOffset {
			remaining := int(rq.Offset) - skip
			if remaining < 0 {
				remaining = 0
			}
			storeRQ.Offset = uint64(remaining)
			storeRQ.HasOffset = remaining > 0
		}

		if rq.HasLimit {
			reduced := int(rq.Limit) - len(bufForEmit)
			if reduced < 0 {
				reduced = 0
			}
			storeRQ.Limit = uint64(reduced)
		}
	} else {
		// Buffer contributes last; offset passes straight through to the
		// store query, and the stream-level limit (applied below) already
		// truncates across store+buffer without any store-side reduction.
		bufForEmit = bufRows
	}

	var (
		stream *Stream
		err    error
	)
	if store.SpansMultipleMonths(rq.From, rq.To) {
		curs, qerr := st.QueryMonths(ctx, storeRQ)
		if qerr != nil {
			return nil, qerr
		}
		stream, err = FromMultiQuery(curs)
		// QueryMonths opens its per-month cursors without the store-side
		// offset, so it is skipped here across the concatenated cursors.
		if err == nil && storeRQ.HasOffset {
			for i := uint64(0); i < storeRQ.Offset; i++ {
				_, ok, serr := stream.src.next(ctx)
				if serr != nil {
					stream.Close()
					return nil, serr
				}
				if !ok {
					break
				}
			}
		}
	} else {
		cur, qerr := st.Query(ctx, storeRQ)
		if qerr != nil {
			return nil, qerr
		}
		stream, err = FromCursor(cur)
	}
	if err != nil {
		return nil, err
	}

	stream.WithBuffer(bufForEmit, rq.Reverse)
	if rq.HasLimit {
		stream.WithLimit(int(rq.Limit), true)
	}

	return probeNotFound(ctx, stream)
}

// probeNotFound pulls one row off stream; if the stream is empty it closes
// it and returns ErrNotFound, otherwise the row is pushed back so the
// caller sees it on its own first Next call.
func probeNotFound(ctx context.Context, s *Stream) (*Stream, error) {
	m, ok, err := s.src.next(ctx)
	if err != nil {
		s.Close()
		return nil, err
	}
	if !ok {
		s.Close()
		return nil, ErrNotFound
	}
	s.src = &pushbackSource{m: m, pending: true, inner: s.src}
	return s, nil
}
