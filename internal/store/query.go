// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"context"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
)

// ChannelKind selects whether a query's channel identifier names a login
// or a numeric ID column. UserKind does the same for the user side.
type ChannelKind int

const (
	ChannelByLogin ChannelKind = iota
	ChannelByID
)

type UserKind int

const (
	UserByLogin UserKind = iota
	UserByID
)

// RangeQuery describes one half-open [From, To) millisecond window over
// message_structured, optionally narrowed to a single user, with the
// composition knobs logsstream needs to merge store rows with the
// writer's in-memory buffer.
type RangeQuery struct {
	ChannelID    string
	ChannelKind  ChannelKind
	UserID       string // empty: no user filter
	UserKind     UserKind
	From, To     int64 // ms, half-open
	Limit        uint64
	HasLimit     bool
	Offset       uint64
	HasOffset    bool
	Reverse      bool
}

func (rq RangeQuery) channelColumn() string {
	if rq.ChannelKind == ChannelByID {
		return "channel_id"
	}
	return "channel_login"
}

func (rq RangeQuery) userColumn() string {
	if rq.UserKind == UserByID {
		return "user_id"
	}
	return "user_login"
}

func (rq RangeQuery) toSelect() sq.SelectBuilder {
	q := sq.Select(messageColumns...).
		From("message_structured FINAL").
		Where(sq.Eq{rq.channelColumn(): rq.ChannelID}).
		Where(sq.GtOrEq{"timestamp": time.UnixMilli(rq.From).UTC()}).
		Where(sq.Lt{"timestamp": time.UnixMilli(rq.To).UTC()})

	if rq.UserID != "" {
		q = q.Where(sq.Eq{rq.userColumn(): rq.UserID})
	}

	if rq.Reverse {
		q = q.OrderBy("timestamp DESC")
	} else {
		q = q.OrderBy("timestamp ASC")
	}

	if rq.HasOffset {
		q = q.Offset(rq.Offset)
	}
	if rq.HasLimit {
		q = q.Limit(rq.Limit)
	}

	return q
}

// monthsSpanned splits [from, to) into the calendar months it touches, so
// callers can open one cursor per `toYYYYMM(timestamp)` partition instead
// of forcing ClickHouse to scan every partition for a single query.
func monthsSpanned(from, to int64) []time.Time {
	start := time.UnixMilli(from).UTC()
	// to is exclusive; the last touched month is the one containing
	// (to - 1ms), so an exact month boundary doesn't pull in an empty
	// trailing month.
	lastInstant := time.UnixMilli(to - 1).UTC()
	if to <= from {
		lastInstant = start
	}

	cur := time.Date(start.Year(), start.Month(), 1, 0, 0, 0, 0, time.UTC)
	last := time.Date(lastInstant.Year(), lastInstant.Month(), 1, 0, 0, 0, 0, time.UTC)

	var months []time.Time
	for !cur.After(last) {
		months = append(months, cur)
		cur = cur.AddDate(0, 1, 0)
	}
	return months
}

// SpansMultipleMonths reports whether [from, to) touches more than one
// calendar month, the condition internal/logsstream uses to decide between
// the single-Cursor and MultiQuery construction variants.
func SpansMultipleMonths(from, to int64) bool {
	return len(monthsSpanned(from, to)) > 1
}

// Query runs rq against message_structured and returns a single cursor.
// The caller (internal/logsstream) is responsible for deciding whether a
// range spans more than one calendar month and using QueryMonths instead.
func (s *Store) Query(ctx context.Context, rq RangeQuery) (Cursor, error) {
	query, args, err := rq.toSelect().ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build range query: %w", err)
	}

	rows, err := s.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: range query: %w", err)
	}
	return newRowsCursor(rows), nil
}

// QueryMonths splits rq's [From, To) range at calendar-month boundaries
// and opens one cursor per month, in chronological (or, if rq.Reverse,
// reverse-chronological) order — the MultiQuery construction variant of
// the logs stream, used whenever a query spans a `toYYYYMM` partition
// boundary so each cursor only ever touches one partition.
func (s *Store) QueryMonths(ctx context.Context, rq RangeQuery) ([]Cursor, error) {
	months := monthsSpanned(rq.From, rq.To)
	if rq.Reverse {
		for i, j := 0, len(months)-1; i < j; i, j = i+1, j-1 {
			months[i], months[j] = months[j], months[i]
		}
	}

	cursors := make([]Cursor, 0, len(months))
	for _, m := range months {
		segFrom := m.UnixMilli()
		segTo := m.AddDate(0, 1, 0).UnixMilli()
		if segFrom < rq.From {
			segFrom = rq.From
		}
		if segTo > rq.To {
			segTo = rq.To
		}

		seg := rq
		seg.From, seg.To = segFrom, segTo
		// limit/offset only apply to the stream as a whole; logsstream
		// applies them across the concatenated cursors, not per-segment.
		seg.HasLimit, seg.HasOffset = false, false

		cur, err := s.Query(ctx, seg)
		if err != nil {
			for _, c := range cursors {
				c.Close()
			}
			return nil, err
		}
		cursors = append(cursors, cur)
	}
	return cursors, nil
}

// ChannelLogDates returns the year -> month -> days map of days with any
// logged message for channelID, read from the channel_log_dates
// projection maintained by a materialized view over message_structured.
func (s *Store) ChannelLogDates(ctx context.Context, channelID string) (ChannelLogDateMap, error) {
	query, args, err := sq.Select("day").
		From("channel_log_dates").
		Where(sq.Eq{"channel_id": channelID}).
		GroupBy("day").
		OrderBy("day ASC").
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("store: build channel log dates query: %w", err)
	}

	rows, err := s.DB.QueryxContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("store: channel log dates: %w", err)
	}
	defer rows.Close()

	out := ChannelLogDateMap{}
	for rows.Next() {
		var day time.Time
		if err := rows.Scan(&day); err != nil {
			return nil, fmt.Errorf("store: scan channel log date: %w", err)
		}
		out.add(day.Year(), int(day.Month()), day.Day())
	}
	return out, rows.Err()
}

// ChannelLogDateMap is year -> month -> sorted days, exactly the shape
// the legacy on-disk layout's directory tree describes.
type ChannelLogDateMap map[int]map[int][]int

func (m ChannelLogDateMap) add(year, month, day int) {
	if m[year] == nil {
		m[year] = map[int][]int{}
	}
	m[year][month] = append(m[year][month], day)
}
