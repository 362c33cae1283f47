// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ircmsg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/chatlogd/chatlogd/internal/message"
)

// hostSuffix is the synthetic hostmask suffix used when re-emitting a
// prefix, matching Twitch's own tmi.twitch.tv convention.
const hostSuffix = "tmi.twitch.tv"

func boolStr(v bool) string {
	if v {
		return "1"
	}
	return "0"
}

type tagKV struct {
	key, val string
}

// promotedTags returns the fixed-order promoted-column tags, in the same
// order as the promotion switch in Parse.
func promotedTags(m message.Structured) []tagKV {
	var tags []tagKV
	add := func(k, v string) {
		if v != "" {
			tags = append(tags, tagKV{k, v})
		}
	}

	add("room-id", m.ChannelID)
	add("user-id", m.UserID)
	add("display-name", m.DisplayName)
	if m.Color.Valid {
		add("color", fmt.Sprintf("#%02x%02x%02x", m.Color.R, m.Color.G, m.Color.B))
	}
	add("user-type", m.UserType)
	if len(m.Badges) > 0 {
		add("badges", strings.Join(m.Badges, ","))
	}
	add("badge-info", m.BadgeInfo)
	add("client-nonce", m.ClientNonce)
	add("emotes", m.Emotes)
	add("flags", m.AutomodFlags)
	if m.ID != uuid.Nil {
		add("id", m.ID.String())
	}
	tags = append(tags, tagKV{"tmi-sent-ts", strconv.FormatInt(m.Timestamp, 10)})
	tags = append(tags,
		tagKV{"subscriber", boolStr(m.Flags.Has(message.FlagSubscriber))},
		tagKV{"turbo", boolStr(m.Flags.Has(message.FlagTurbo))},
		tagKV{"mod", boolStr(m.Flags.Has(message.FlagMod))},
		tagKV{"first-msg", boolStr(m.Flags.Has(message.FlagFirstMsg))},
		tagKV{"returning-chatter", boolStr(m.Flags.Has(message.FlagReturningChatter))},
	)
	return tags
}

// ToRawIRC re-emits a Structured message as a raw IRC line. Tags are
// emitted in a stable order: promoted columns first (fixed order), then
// ExtraTags sorted by key (their original relative order is not
// preserved — see the round-trip invariant's note on extra_tags).
func ToRawIRC(m message.Structured) string {
	tags := promotedTags(m)

	extraKeys := make([]string, 0, len(m.ExtraTags))
	for k := range m.ExtraTags {
		extraKeys = append(extraKeys, k)
	}
	sort.Strings(extraKeys)
	for _, k := range extraKeys {
		tags = append(tags, tagKV{k, m.ExtraTags[k]})
	}

	var b strings.Builder
	b.WriteByte('@')
	for i, t := range tags {
		if i > 0 {
			b.WriteByte(';')
		}
		b.WriteString(t.key)
		b.WriteByte('=')
		b.WriteString(t.val)
	}

	login := m.UserLogin
	if login == "" {
		login = m.UserID
	}
	fmt.Fprintf(&b, " :%s!%s@%s.%s", login, login, login, hostSuffix)
	fmt.Fprintf(&b, " %s", m.Type.String())
	if m.ChannelLogin != "" {
		fmt.Fprintf(&b, " #%s", m.ChannelLogin)
	}

	if m.Text != "" || m.Type == message.TypePrivMsg {
		text := m.Text
		if m.Flags.Has(message.FlagAction) {
			text = actionWrapper + text + actionWrapperEnd
		}
		b.WriteString(" :")
		b.WriteString(text)
	}

	return b.String()
}

// FormatHuman renders a Structured message as a human-readable log line,
// e.g. "[2024-01-01 00:00:00] #channel display: text". Used by the text
// response encoder.
func FormatHuman(m message.Structured) string {
	ts := time.UnixMilli(m.Timestamp).UTC().Format("2006-01-02 15:04:05")
	name := m.DisplayName
	if name == "" {
		name = m.UserLogin
	}

	text := m.Text
	if m.Flags.Has(message.FlagAction) {
		text = "* " + name + " " + text
		return fmt.Sprintf("[%s] #%s %s", ts, m.ChannelLogin, text)
	}

	switch m.Type {
	case message.TypePrivMsg:
		return fmt.Sprintf("[%s] #%s %s: %s", ts, m.ChannelLogin, name, text)
	case message.TypeClearChat:
		if name == "" {
			return fmt.Sprintf("[%s] #%s chat cleared", ts, m.ChannelLogin)
		}
		return fmt.Sprintf("[%s] #%s %s was purged", ts, m.ChannelLogin, name)
	case message.TypeClearMsg:
		return fmt.Sprintf("[%s] #%s a message from %s was deleted", ts, m.ChannelLogin, name)
	case message.TypeUserNotice:
		return fmt.Sprintf("[%s] #%s %s (usernotice): %s", ts, m.ChannelLogin, name, text)
	case message.TypeNotice:
		return fmt.Sprintf("[%s] #%s notice: %s", ts, m.ChannelLogin, text)
	case message.TypeJoin:
		return fmt.Sprintf("[%s] #%s %s joined", ts, m.ChannelLogin, name)
	case message.TypePart:
		return fmt.Sprintf("[%s] #%s %s left", ts, m.ChannelLogin, name)
	default:
		return fmt.Sprintf("[%s] #%s %s: %s", ts, m.ChannelLogin, name, text)
	}
}
