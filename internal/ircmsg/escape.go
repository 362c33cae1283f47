// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ircmsg

import (
	"strings"

	"github.com/chatlogd/chatlogd/internal/message"
)

// unescapeTagValue reverses IRCv3 tag-value escaping (`\:` -> `;`,
// `\s` -> space, `\r`, `\n`, `\\` -> `\`). Stored values keep the escaped
// wire form so the raw-IRC encoder can round-trip byte-for-byte; JSON
// responses call this to present human-friendly text instead.
func unescapeTagValue(v string) string {
	if !strings.ContainsRune(v, '\\') {
		return v
	}
	var b strings.Builder
	b.Grow(len(v))
	for i := 0; i < len(v); i++ {
		c := v[i]
		if c != '\\' || i == len(v)-1 {
			b.WriteByte(c)
			continue
		}
		i++
		switch v[i] {
		case ':':
			b.WriteByte(';')
		case 's':
			b.WriteByte(' ')
		case 'r':
			b.WriteByte('\r')
		case 'n':
			b.WriteByte('\n')
		case '\\':
			b.WriteByte('\\')
		default:
			b.WriteByte(v[i])
		}
	}
	return b.String()
}

// UnescapeTags returns a copy of m with DisplayName, Badges, BadgeInfo and
// ExtraTags unescaped. It does not mutate m; it is only ever called by
// the JSON response encoders right before serialisation.
func UnescapeTags(m message.Structured) message.Structured {
	out := m
	out.DisplayName = unescapeTagValue(m.DisplayName)
	out.BadgeInfo = unescapeTagValue(m.BadgeInfo)
	if len(m.Badges) > 0 {
		badges := make([]string, len(m.Badges))
		for i, b := range m.Badges {
			badges[i] = unescapeTagValue(b)
		}
		out.Badges = badges
	}
	if len(m.ExtraTags) > 0 {
		extra := make(map[string]string, len(m.ExtraTags))
		for k, v := range m.ExtraTags {
			extra[k] = unescapeTagValue(v)
		}
		out.ExtraTags = extra
	}
	return out
}
