// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package store

import (
	"strings"
	"time"

	"github.com/chatlogd/chatlogd/internal/message"
)

// messageColumns is the full column list of message_structured, used by
// both the bulk inserter and the range-query cursors so their row shapes
// never drift apart.
var messageColumns = []string{
	"channel_id", "channel_login", "timestamp", "id", "message_type",
	"user_id", "user_login", "display_name",
	"color_r", "color_g", "color_b", "color_set",
	"user_type", "badges", "badge_info", "client_nonce", "emotes",
	"automod_flags", "text", "message_flags", "extra_tags",
}

// scanner is the subset of *sql.Rows/*sql.Row used to decode one row.
type scanner interface {
	Scan(dest ...any) error
}

func scanMessage(row scanner) (message.Structured, error) {
	var m message.Structured
	var badges []string
	var extraTags map[string]string
	var colorR, colorG, colorB, colorSet uint8
	var msgType uint8
	var flags uint16
	var ts time.Time

	err := row.Scan(
		&m.ChannelID, &m.ChannelLogin, &ts, &m.ID, &msgType,
		&m.UserID, &m.UserLogin, &m.DisplayName,
		&colorR, &colorG, &colorB, &colorSet,
		&m.UserType, &badges, &m.BadgeInfo, &m.ClientNonce, &m.Emotes,
		&m.AutomodFlags, &m.Text, &flags, &extraTags,
	)
	if err != nil {
		return message.Structured{}, err
	}

	m.Timestamp = ts.UnixMilli()
	m.Type = message.Type(msgType)
	m.Flags = message.Flags(flags)
	m.Badges = badges
	m.ExtraTags = extraTags
	if colorSet != 0 {
		m.Color = message.Color{R: colorR, G: colorG, B: colorB, Valid: true}
	}

	return m, nil
}

// messageValues returns the positional values to bind for an INSERT,
// matching the order of messageColumns exactly.
func messageValues(m message.Structured) []any {
	var colorR, colorG, colorB, colorSet uint8
	if m.Color.Valid {
		colorR, colorG, colorB, colorSet = m.Color.R, m.Color.G, m.Color.B, 1
	}

	return []any{
		m.ChannelID, m.ChannelLogin, time.UnixMilli(m.Timestamp).UTC(), m.ID, uint8(m.Type),
		m.UserID, m.UserLogin, m.DisplayName,
		colorR, colorG, colorB, colorSet,
		m.UserType, m.Badges, m.BadgeInfo, m.ClientNonce, m.Emotes,
		m.AutomodFlags, m.Text, uint16(m.Flags), m.ExtraTags,
	}
}

func quotedColumns() string {
	return strings.Join(messageColumns, ", ")
}
