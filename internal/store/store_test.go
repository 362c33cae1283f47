// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlogd/chatlogd/internal/message"
)

func TestQuotedColumnsMatchesMessageColumns(t *testing.T) {
	got := quotedColumns()
	for _, col := range messageColumns {
		assert.Contains(t, got, col)
	}
}

func TestMessageValuesRoundTripsThroughScanMessage(t *testing.T) {
	m := message.Structured{
		ChannelID:    "22484632",
		ChannelLogin: "forsen",
		Timestamp:    1489263601000,
		ID:           uuid.New(),
		Type:         message.TypePrivMsg,
		UserID:       "62541963",
		UserLogin:    "snusbot",
		DisplayName:  "Snusbot",
		Color:        message.Color{R: 1, G: 2, B: 3, Valid: true},
		UserType:     "",
		Badges:       []string{"subscriber/12"},
		BadgeInfo:    "subscriber/12",
		Text:         "prasoc won 10 points",
		Flags:        message.FlagSubscriber,
		ExtraTags:    map[string]string{"foo": "bar"},
	}

	values := messageValues(m)
	require.Len(t, values, len(messageColumns))

	rt := &fakeRow{values: values}
	got, err := scanMessage(rt)
	require.NoError(t, err)

	assert.Equal(t, m.ChannelID, got.ChannelID)
	assert.Equal(t, m.ChannelLogin, got.ChannelLogin)
	assert.Equal(t, m.Timestamp, got.Timestamp)
	assert.Equal(t, m.ID, got.ID)
	assert.Equal(t, m.Type, got.Type)
	assert.Equal(t, m.UserID, got.UserID)
	assert.Equal(t, m.Color, got.Color)
	assert.Equal(t, m.Flags, got.Flags)
	assert.Equal(t, m.ExtraTags, got.ExtraTags)
}

// fakeRow plays the role of the clickhouse-go driver for scanMessage's
// unit test: it assigns each positional value produced by messageValues
// directly into scanMessage's destination pointers, the same way
// database/sql's row scanning would for matching column types.
type fakeRow struct {
	values []any
}

func (r *fakeRow) Scan(dest ...any) error {
	for i, d := range dest {
		switch dp := d.(type) {
		case *string:
			*dp = r.values[i].(string)
		case *int64:
			*dp = r.values[i].(int64)
		case *uint8:
			*dp = r.values[i].(uint8)
		case *uint16:
			*dp = r.values[i].(uint16)
		case *[]string:
			*dp = r.values[i].([]string)
		case *map[string]string:
			*dp = r.values[i].(map[string]string)
		case *time.Time:
			*dp = r.values[i].(time.Time)
		case *uuid.UUID:
			*dp = r.values[i].(uuid.UUID)
		}
	}
	return nil
}

func TestRangeQueryToSelectSQL(t *testing.T) {
	rq := RangeQuery{
		ChannelID:   "forsen",
		ChannelKind: ChannelByLogin,
		From:        1489263600000,
		To:          1489263700000,
		HasLimit:    true,
		Limit:       100,
	}

	sql, args, err := rq.toSelect().ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "message_structured FINAL")
	assert.Contains(t, sql, "channel_login")
	assert.Contains(t, sql, "ORDER BY timestamp ASC")
	assert.Contains(t, sql, "LIMIT")
	assert.Len(t, args, 3)
}

func TestRangeQueryReverseOrdersDescending(t *testing.T) {
	rq := RangeQuery{ChannelID: "1", ChannelKind: ChannelByID, From: 0, To: 1000, Reverse: true}
	sql, _, err := rq.toSelect().ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "ORDER BY timestamp DESC")
}

func TestRangeQueryUserFilterUsesUserKind(t *testing.T) {
	rq := RangeQuery{
		ChannelID:   "forsen",
		ChannelKind: ChannelByLogin,
		UserID:      "62541963",
		UserKind:    UserByID,
		From:        0, To: 1000,
	}
	sql, _, err := rq.toSelect().ToSql()
	require.NoError(t, err)
	assert.Contains(t, sql, "user_id")
}

func TestMonthsSpannedSingleMonth(t *testing.T) {
	from := time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC).UnixMilli()
	to := time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC).UnixMilli()

	months := monthsSpanned(from, to)
	require.Len(t, months, 1)
	assert.Equal(t, time.March, months[0].Month())
}

func TestMonthsSpannedCrossesBoundary(t *testing.T) {
	from := time.Date(2024, 1, 15, 0, 0, 0, 0, time.UTC).UnixMilli()
	to := time.Date(2024, 3, 10, 0, 0, 0, 0, time.UTC).UnixMilli()

	months := monthsSpanned(from, to)
	require.Len(t, months, 3)
	assert.Equal(t, time.January, months[0].Month())
	assert.Equal(t, time.February, months[1].Month())
	assert.Equal(t, time.March, months[2].Month())
}

func TestMonthsSpannedExactMonthBoundaryExcludesTrailing(t *testing.T) {
	from := time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).UnixMilli()
	to := time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC).UnixMilli()

	months := monthsSpanned(from, to)
	require.Len(t, months, 1)
	assert.Equal(t, time.January, months[0].Month())
}

func TestChannelLogDateMapAdd(t *testing.T) {
	m := ChannelLogDateMap{}
	m.add(2024, 3, 5)
	m.add(2024, 3, 6)
	m.add(2024, 4, 1)

	assert.Equal(t, []int{5, 6}, m[2024][3])
	assert.Equal(t, []int{1}, m[2024][4])
}
