// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ircmsg implements the codec: pure, allocation-conscious
// functions converting between raw IRC lines and message.Structured.
// No I/O happens in this package.
package ircmsg

import (
	"strconv"
	"strings"

	"github.com/google/uuid"

	"github.com/chatlogd/chatlogd/internal/message"
)

const actionWrapper = "\x01ACTION "
const actionWrapperEnd = "\x01"

// rawLine is the {tags, prefix, command, params, trailing} split of one
// IRC line, mirroring the wire grammar directly.
type rawLine struct {
	tags     string // everything between '@' and the first unescaped space, may be empty
	hasTags  bool
	prefix   string // everything between ':' and the next space, may be empty
	command  string
	params   []string
	trailing string
	hasTrail bool
}

func splitLine(raw string) (rawLine, error) {
	var rl rawLine
	s := raw

	if strings.HasPrefix(s, "@") {
		idx := strings.IndexByte(s, ' ')
		if idx < 0 {
			return rl, parseErr(raw, "tags without a message body")
		}
		rl.tags = s[1:idx]
		rl.hasTags = true
		s = strings.TrimLeft(s[idx+1:], " ")
	}

	if strings.HasPrefix(s, ":") {
		idx := strings.IndexByte(s, ' ')
		if idx < 0 {
			return rl, parseErr(raw, "prefix without a command")
		}
		rl.prefix = s[1:idx]
		s = strings.TrimLeft(s[idx+1:], " ")
	}

	// Split off the trailing parameter, introduced by " :" (or starting
	// the remainder with ':').
	body := s
	if i := strings.Index(s, " :"); i >= 0 {
		body = s[:i]
		rl.trailing = s[i+2:]
		rl.hasTrail = true
	} else if strings.HasPrefix(s, ":") {
		body = ""
		rl.trailing = s[1:]
		rl.hasTrail = true
	}

	fields := strings.Fields(body)
	if len(fields) == 0 {
		return rl, parseErr(raw, "missing command")
	}
	rl.command = strings.ToUpper(fields[0])
	rl.params = fields[1:]
	return rl, nil
}

func parseTags(tags string) map[string]string {
	if tags == "" {
		return nil
	}
	parts := strings.Split(tags, ";")
	out := make(map[string]string, len(parts))
	for _, p := range parts {
		if p == "" {
			continue
		}
		if eq := strings.IndexByte(p, '='); eq >= 0 {
			out[p[:eq]] = p[eq+1:]
		} else {
			out[p] = ""
		}
	}
	return out
}

// splitPrefix returns the nick portion of a `nick!user@host` prefix. If
// there is no '!', the whole prefix is treated as the nick (server
// messages, e.g. JOIN/PART relayed without full hostmask).
func splitPrefix(prefix string) string {
	if i := strings.IndexByte(prefix, '!'); i >= 0 {
		return prefix[:i]
	}
	return prefix
}

func parseColor(v string) message.Color {
	if len(v) != 7 || v[0] != '#' {
		return message.Color{}
	}
	n, err := strconv.ParseUint(v[1:], 16, 32)
	if err != nil {
		return message.Color{}
	}
	return message.Color{R: uint8(n >> 16), G: uint8(n >> 8), B: uint8(n), Valid: true}
}

func parseBadges(v string) []string {
	if v == "" {
		return nil
	}
	return strings.Split(v, ",")
}

func boolTag(v string) bool {
	return v == "1"
}

// Parse converts one UnstructuredMessage into a canonical Structured
// message. The command string is mapped to a message.Type; unknown
// commands become message.TypeOther. Every tag is routed through the
// promotion table; everything left over lands in ExtraTags. Tag values
// are stored exactly as they appear on the wire (still `\:`/`\s`-escaped)
// — unescaping happens lazily, see UnescapeTags.
func Parse(u message.Unstructured) (message.Structured, error) {
	rl, err := splitLine(u.Raw)
	if err != nil {
		return message.Structured{}, err
	}

	tags := parseTags(rl.tags)
	m := message.Structured{
		ChannelID: u.RoomID,
		UserID:    u.UserID,
		Timestamp: u.Timestamp,
		Type:      message.TypeFromCommand(rl.command),
		ExtraTags: make(map[string]string),
	}

	if rl.prefix != "" {
		m.UserLogin = splitPrefix(rl.prefix)
	}

	for _, p := range rl.params {
		if strings.HasPrefix(p, "#") {
			m.ChannelLogin = strings.TrimPrefix(p, "#")
			break
		}
	}

	var flags message.Flags
	for tag, val := range tags {
		switch tag {
		case "room-id":
			m.ChannelID = val
		case "user-id":
			m.UserID = val
		case "display-name":
			m.DisplayName = val
		case "color":
			m.Color = parseColor(val)
		case "user-type":
			m.UserType = val
		case "badges":
			m.Badges = parseBadges(val)
		case "badge-info":
			m.BadgeInfo = val
		case "client-nonce":
			m.ClientNonce = val
		case "emotes":
			m.Emotes = val
		case "flags":
			m.AutomodFlags = val
		case "id":
			if parsed, err := uuid.Parse(val); err == nil {
				m.ID = parsed
			}
		case "tmi-sent-ts":
			if ts, err := strconv.ParseInt(val, 10, 64); err == nil {
				m.Timestamp = ts
			}
		case "subscriber":
			flags = flags.Set(message.FlagSubscriber, boolTag(val))
		case "turbo":
			flags = flags.Set(message.FlagTurbo, boolTag(val))
		case "mod":
			flags = flags.Set(message.FlagMod, boolTag(val))
		case "first-msg":
			flags = flags.Set(message.FlagFirstMsg, boolTag(val))
		case "returning-chatter":
			flags = flags.Set(message.FlagReturningChatter, boolTag(val))
		default:
			m.ExtraTags[tag] = val
		}
	}

	text := rl.trailing
	if strings.HasPrefix(text, actionWrapper) && strings.HasSuffix(text, actionWrapperEnd) {
		text = strings.TrimSuffix(strings.TrimPrefix(text, actionWrapper), actionWrapperEnd)
		flags = flags.Set(message.FlagAction, true)
	}
	m.Text = text
	m.Flags = flags

	if m.Type == message.TypePrivMsg && m.UserID == "" {
		// Preserve upstream behaviour: an empty user-id PRIVMSG is kept,
		// not rejected, just logged by the caller.
	}

	return m, nil
}
