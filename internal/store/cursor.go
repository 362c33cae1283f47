// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"github.com/jmoiron/sqlx"

	"github.com/chatlogd/chatlogd/internal/message"
)

// Cursor is a forward-only, single-row-at-a-time view over a range query
// result. internal/logsstream wraps one (or a concatenation of several,
// for multi-month queries) behind its pull-iterator Stream type.
type Cursor interface {
	// Next advances the cursor and reports whether a row is available.
	// false with a nil error means the cursor is exhausted.
	Next() (message.Structured, bool, error)
	Close() error
}

// rowsCursor adapts *sqlx.Rows (as returned by Store.DB.QueryxContext for a
// squirrel-built query) to the Cursor interface.
type rowsCursor struct {
	rows *sqlx.Rows
}

func newRowsCursor(rows *sqlx.Rows) Cursor {
	return &rowsCursor{rows: rows}
}

func (c *rowsCursor) Next() (message.Structured, bool, error) {
	if !c.rows.Next() {
		return message.Structured{}, false, c.rows.Err()
	}
	m, err := scanMessage(c.rows)
	if err != nil {
		return message.Structured{}, false, err
	}
	return m, true, nil
}

func (c *rowsCursor) Close() error {
	return c.rows.Close()
}
