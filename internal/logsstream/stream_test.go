// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package logsstream

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlogd/chatlogd/internal/message"
	"github.com/chatlogd/chatlogd/internal/store"
)

func msgAt(ts int64) message.Structured {
	return message.Structured{ChannelID: "1", Timestamp: ts}
}

func drain(t *testing.T, s *Stream) []int64 {
	t.Helper()
	var out []int64
	for {
		m, ok, err := s.Next(context.Background())
		require.NoError(t, err)
		if !ok {
			break
		}
		out = append(out, m.Timestamp)
	}
	return out
}

func TestFromSliceDrainsInOrder(t *testing.T) {
	s := FromSlice([]message.Structured{msgAt(1), msgAt(2), msgAt(3)})
	assert.Equal(t, []int64{1, 2, 3}, drain(t, s))
}

func TestWithBufferAppendsNonReverse(t *testing.T) {
	s := FromSlice([]message.Structured{msgAt(100), msgAt(200), msgAt(300)})
	s.WithBuffer([]message.Structured{msgAt(400), msgAt(500)}, false)
	assert.Equal(t, []int64{100, 200, 300, 400, 500}, drain(t, s))
}

func TestWithBufferPrependsReversedUnderReverse(t *testing.T) {
	// Scenario 4 from spec.md §8: store has 100,200,300 (already DESC:
	// 300,200,100 is how a reverse store query would return them); buffer
	// holds 400,500 in ascending append order.
	s := FromSlice([]message.Structured{msgAt(300), msgAt(200), msgAt(100)})
	s.WithBuffer([]message.Structured{msgAt(400), msgAt(500)}, true)
	s.WithLimit(4, true)
	assert.Equal(t, []int64{500, 400, 300, 200}, drain(t, s))
}

func TestWithLimitTruncatesAcrossBufferAndStore(t *testing.T) {
	s := FromSlice([]message.Structured{msgAt(1), msgAt(2)})
	s.WithBuffer([]message.Structured{msgAt(3), msgAt(4)}, false)
	s.WithLimit(3, true)
	assert.Equal(t, []int64{1, 2, 3}, drain(t, s))
}

func TestEmptyBufferIsNoop(t *testing.T) {
	s := FromSlice([]message.Structured{msgAt(1)})
	s.WithBuffer(nil, false)
	assert.Equal(t, []int64{1}, drain(t, s))
}

func TestStreamCloseIsIdempotent(t *testing.T) {
	s := FromSlice(nil)
	require.NoError(t, s.Close())
	require.NoError(t, s.Close())
}

type fakeCursor struct {
	rows   []message.Structured
	idx    int
	closed bool
}

func (f *fakeCursor) Next() (message.Structured, bool, error) {
	if f.idx >= len(f.rows) {
		return message.Structured{}, false, nil
	}
	m := f.rows[f.idx]
	f.idx++
	return m, true, nil
}

func (f *fakeCursor) Close() error {
	f.closed = true
	return nil
}

func TestFromCursorDrainsAndCloseReleasesCursor(t *testing.T) {
	fc := &fakeCursor{rows: []message.Structured{msgAt(1), msgAt(2)}}
	s, err := FromCursor(fc)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, drain(t, s))
	require.NoError(t, s.Close())
	assert.True(t, fc.closed)
}

func TestFromMultiQueryConcatenatesSequentially(t *testing.T) {
	a := &fakeCursor{rows: []message.Structured{msgAt(1), msgAt(2)}}
	b := &fakeCursor{rows: []message.Structured{msgAt(3)}}
	s, err := FromMultiQuery([]store.Cursor{a, b})
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, drain(t, s))
	assert.True(t, a.closed)
	assert.True(t, b.closed)
}
