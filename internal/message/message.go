// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package message holds the canonical chat-event types shared by the
// codec, the writer, the logs stream and the migration engine.
package message

import (
	"github.com/google/uuid"
)

// Type discriminates the kind of IRC line a Structured message was built from.
type Type uint8

const (
	TypePrivMsg Type = iota
	TypeClearChat
	TypeClearMsg
	TypeUserNotice
	TypeNotice
	TypeJoin
	TypePart
	TypeOther
)

func (t Type) String() string {
	switch t {
	case TypePrivMsg:
		return "PRIVMSG"
	case TypeClearChat:
		return "CLEARCHAT"
	case TypeClearMsg:
		return "CLEARMSG"
	case TypeUserNotice:
		return "USERNOTICE"
	case TypeNotice:
		return "NOTICE"
	case TypeJoin:
		return "JOIN"
	case TypePart:
		return "PART"
	default:
		return "OTHER"
	}
}

// TypeFromCommand maps an IRC command word to a message Type. Unknown
// commands become TypeOther.
func TypeFromCommand(cmd string) Type {
	switch cmd {
	case "PRIVMSG":
		return TypePrivMsg
	case "CLEARCHAT":
		return TypeClearChat
	case "CLEARMSG":
		return TypeClearMsg
	case "USERNOTICE":
		return TypeUserNotice
	case "NOTICE":
		return TypeNotice
	case "JOIN":
		return TypeJoin
	case "PART":
		return TypePart
	default:
		return TypeOther
	}
}

// Flags is a 16-bit bitset of boolean tags promoted out of ExtraTags.
type Flags uint16

const (
	FlagAction Flags = 1 << iota
	FlagSubscriber
	FlagTurbo
	FlagMod
	FlagFirstMsg
	FlagReturningChatter
)

func (f Flags) Has(bit Flags) bool { return f&bit != 0 }

func (f Flags) Set(bit Flags, v bool) Flags {
	if v {
		return f | bit
	}
	return f &^ bit
}

// Color is an optional 24-bit RGB value parsed from a `#rrggbb` tag.
type Color struct {
	R, G, B uint8
	Valid   bool
}

// Unstructured is the transient parser input: one raw IRC line plus the
// room/user/arrival-time context the chat-client adapter attaches to it.
type Unstructured struct {
	RoomID    string
	UserID    string
	Timestamp int64 // ms, ingest arrival time; used if the line has no tmi-sent-ts tag
	Raw       string
}

// Structured is the canonical, column-promoted representation of a chat
// event: one row in message_structured. Treat as an immutable value once
// constructed; never mutate a Structured after it leaves the codec.
type Structured struct {
	ChannelID    string
	ChannelLogin string
	Timestamp    int64 // ms, primary-key suffix
	ID           uuid.UUID
	Type         Type
	UserID       string
	UserLogin    string
	DisplayName  string
	Color        Color
	UserType     string
	Badges       []string
	BadgeInfo    string
	ClientNonce  string
	Emotes       string
	AutomodFlags string
	Text         string
	Flags        Flags
	// ExtraTags holds every tag not promoted to a column above, keyed by
	// tag name, value still in its escaped wire form.
	ExtraTags map[string]string
}

// Key returns the storage primary key (channel_id, user_id, timestamp).
func (m Structured) Key() (string, string, int64) {
	return m.ChannelID, m.UserID, m.Timestamp
}
