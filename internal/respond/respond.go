// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package respond adapts a logsstream.Stream to one of four byte-stream
// response formats, without ever materialising the whole result in memory.
// Format dispatch is a plain switch over a sum-type enum — design note 9
// rules out an interface tower here, the same way internal/writer keeps a
// single concrete type instead of a pluggable sink interface.
package respond

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"runtime"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/chatlogd/chatlogd/internal/ircmsg"
	"github.com/chatlogd/chatlogd/internal/logsstream"
	"github.com/chatlogd/chatlogd/internal/message"
)

// Format selects the encoding Encode produces, chosen by the query flags
// of spec.md §6 (json, json_basic, raw, ndjson, default text).
type Format int

const (
	Text Format = iota
	Raw
	JSONFull
	JSONBasic
	NDJSON
)

// DefaultChunkSize is the number of messages serialised together by one
// worker-pool round, per spec.md §4.4.
const DefaultChunkSize = 3000

// fullMessage is the JSON shape for JSONFull: every column, tags unescaped.
type fullMessage struct {
	ChannelID    string            `json:"channelId"`
	ChannelLogin string            `json:"channelLogin"`
	Timestamp    int64             `json:"timestamp"`
	ID           string            `json:"id,omitempty"`
	Type         string            `json:"type"`
	UserID       string            `json:"userId,omitempty"`
	UserLogin    string            `json:"username,omitempty"`
	DisplayName  string            `json:"displayName,omitempty"`
	Color        string            `json:"color,omitempty"`
	UserType     string            `json:"userType,omitempty"`
	Badges       []string          `json:"badges,omitempty"`
	BadgeInfo    string            `json:"badgeInfo,omitempty"`
	ClientNonce  string            `json:"clientNonce,omitempty"`
	Emotes       string            `json:"emotes,omitempty"`
	AutomodFlags string            `json:"automodFlags,omitempty"`
	Text         string            `json:"text"`
	Action       bool              `json:"action"`
	Subscriber   bool              `json:"subscriber"`
	Turbo        bool              `json:"turbo"`
	Mod          bool              `json:"mod"`
	FirstMsg     bool              `json:"firstMsg"`
	Returning    bool              `json:"returningChatter"`
	ExtraTags    map[string]string `json:"tags,omitempty"`
}

// basicMessage is the JSON shape for JSONBasic: just enough to render a
// line of chat, trading completeness for a smaller payload.
type basicMessage struct {
	Timestamp   int64  `json:"timestamp"`
	ChannelID   string `json:"channelId"`
	Username    string `json:"username"`
	DisplayName string `json:"displayName,omitempty"`
	Text        string `json:"text"`
}

func toFullMessage(m message.Structured) fullMessage {
	u := ircmsg.UnescapeTags(m)
	fm := fullMessage{
		ChannelID:    u.ChannelID,
		ChannelLogin: u.ChannelLogin,
		Timestamp:    u.Timestamp,
		Type:         u.Type.String(),
		UserID:       u.UserID,
		UserLogin:    u.UserLogin,
		DisplayName:  u.DisplayName,
		UserType:     u.UserType,
		Badges:       u.Badges,
		BadgeInfo:    u.BadgeInfo,
		ClientNonce:  u.ClientNonce,
		Emotes:       u.Emotes,
		AutomodFlags: u.AutomodFlags,
		Text:         u.Text,
		Action:       u.Flags.Has(message.FlagAction),
		Subscriber:   u.Flags.Has(message.FlagSubscriber),
		Turbo:        u.Flags.Has(message.FlagTurbo),
		Mod:          u.Flags.Has(message.FlagMod),
		FirstMsg:     u.Flags.Has(message.FlagFirstMsg),
		Returning:    u.Flags.Has(message.FlagReturningChatter),
		ExtraTags:    u.ExtraTags,
	}
	if u.ID != uuid.Nil {
		fm.ID = u.ID.String()
	}
	if u.Color.Valid {
		fm.Color = fmt.Sprintf("#%02X%02X%02X", u.Color.R, u.Color.G, u.Color.B)
	}
	return fm
}

func toBasicMessage(m message.Structured) basicMessage {
	u := ircmsg.UnescapeTags(m)
	name := u.DisplayName
	if name == "" {
		name = u.UserLogin
	}
	return basicMessage{
		Timestamp:   u.Timestamp,
		ChannelID:   u.ChannelID,
		Username:    u.UserLogin,
		DisplayName: name,
		Text:        u.Text,
	}
}

func marshalOne(m message.Structured, format Format) ([]byte, error) {
	switch format {
	case JSONFull:
		return json.Marshal(toFullMessage(m))
	case JSONBasic:
		return json.Marshal(toBasicMessage(m))
	default:
		return nil, fmt.Errorf("respond: marshalOne called with non-JSON format %d", format)
	}
}

// readChunk pulls up to n messages off s. io.EOF-equivalent end-of-stream
// is reported by a short (possibly empty) final slice and a nil error.
func readChunk(ctx context.Context, s *logsstream.Stream, n int) ([]message.Structured, error) {
	chunk := make([]message.Structured, 0, n)
	for len(chunk) < n {
		m, ok, err := s.Next(ctx)
		if err != nil {
			return chunk, err
		}
		if !ok {
			break
		}
		chunk = append(chunk, m)
	}
	return chunk, nil
}

// encodeChunkJSON serialises every message in chunk concurrently on a
// bounded worker pool and returns the encoded messages in chunk order; the
// caller writes them out. The cross-chunk sequence is preserved by the
// caller's outer loop over readChunk, never by this function.
func encodeChunkJSON(ctx context.Context, chunk []message.Structured, format Format) ([][]byte, error) {
	out := make([][]byte, len(chunk))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))

	for i, m := range chunk {
		i, m := i, m
		g.Go(func() error {
			if gctx.Err() != nil {
				return gctx.Err()
			}
			b, err := marshalOne(m, format)
			if err != nil {
				return err
			}
			out[i] = b
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

// Encode drains s and writes it to w in the given format. It streams: at
// most one chunk's worth of messages is held in memory at a time.
func Encode(ctx context.Context, w io.Writer, s *logsstream.Stream, format Format) error {
	switch format {
	case Raw:
		return encodeRaw(ctx, w, s)
	case Text:
		return encodeText(ctx, w, s)
	case NDJSON:
		return encodeNDJSON(ctx, w, s)
	case JSONFull, JSONBasic:
		return encodeJSONArray(ctx, w, s, format)
	default:
		return fmt.Errorf("respond: unknown format %d", format)
	}
}

func encodeRaw(ctx context.Context, w io.Writer, s *logsstream.Stream) error {
	for {
		m, ok, err := s.Next(ctx)
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}
		if _, err := io.WriteString(w, ircmsg.ToRawIRC(m)+"\r\n"); err != nil {
			return err
		}
	}
}

func encodeNDJSON(ctx context.Context, w io.Writer, s *logsstream.Stream) error {
	for {
		chunk, err := readChunk(ctx, s, DefaultChunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}
		lines, err := encodeChunkJSON(ctx, chunk, JSONFull)
		if err != nil {
			return err
		}
		for _, line := range lines {
			if _, err := w.Write(line); err != nil {
				return err
			}
			if _, err := io.WriteString(w, "\r\n"); err != nil {
				return err
			}
		}
		if len(chunk) < DefaultChunkSize {
			return nil
		}
	}
}

func encodeText(ctx context.Context, w io.Writer, s *logsstream.Stream) error {
	first := true
	for {
		chunk, err := readChunk(ctx, s, DefaultChunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			return nil
		}

		lines := make([]string, len(chunk))
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(runtime.GOMAXPROCS(0))
		for i, m := range chunk {
			i, m := i, m
			g.Go(func() error {
				if gctx.Err() != nil {
					return gctx.Err()
				}
				lines[i] = ircmsg.FormatHuman(m)
				return nil
			})
		}
		if err := g.Wait(); err != nil {
			return err
		}

		for _, line := range lines {
			if !first {
				if _, err := io.WriteString(w, "\n"); err != nil {
					return err
				}
			}
			first = false
			if _, err := io.WriteString(w, line); err != nil {
				return err
			}
		}

		if len(chunk) < DefaultChunkSize {
			return nil
		}
	}
}

// encodeJSONArray writes `{"messages":[...]}`, comma-joining chunks and
// the messages within them, without ever holding more than one chunk's
// serialised forms in memory. Open Question (c) from spec.md §9 is
// resolved here: an empty stream still produces a valid
// `{"messages":[]}` body (see DESIGN.md) rather than no body at all.
func encodeJSONArray(ctx context.Context, w io.Writer, s *logsstream.Stream, format Format) error {
	if _, err := io.WriteString(w, `{"messages":[`); err != nil {
		return err
	}

	first := true
	for {
		chunk, err := readChunk(ctx, s, DefaultChunkSize)
		if err != nil {
			return err
		}
		if len(chunk) == 0 {
			break
		}

		encoded, err := encodeChunkJSON(ctx, chunk, format)
		if err != nil {
			return err
		}

		for _, b := range encoded {
			if !first {
				if _, err := io.WriteString(w, ","); err != nil {
					return err
				}
			}
			first = false
			if _, err := w.Write(b); err != nil {
				return err
			}
		}

		if len(chunk) < DefaultChunkSize {
			break
		}
	}

	_, err := io.WriteString(w, `]}`)
	return err
}
