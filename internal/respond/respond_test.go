// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package respond

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlogd/chatlogd/internal/logsstream"
	"github.com/chatlogd/chatlogd/internal/message"
)

func sampleMessages() []message.Structured {
	return []message.Structured{
		{ChannelID: "1", ChannelLogin: "forsen", Timestamp: 100, Type: message.TypePrivMsg, UserLogin: "bob", Text: "hi"},
		{ChannelID: "1", ChannelLogin: "forsen", Timestamp: 200, Type: message.TypePrivMsg, UserLogin: "alice", Text: "yo"},
	}
}

func TestEncodeRaw(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(sampleMessages())
	require.NoError(t, Encode(context.Background(), &buf, s, Raw))
	out := buf.String()
	assert.Contains(t, out, "PRIVMSG #forsen :hi\r\n")
	assert.Contains(t, out, "PRIVMSG #forsen :yo\r\n")
}

func TestEncodeText(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(sampleMessages())
	require.NoError(t, Encode(context.Background(), &buf, s, Text))
	lines := bytes.Split(buf.Bytes(), []byte("\n"))
	require.Len(t, lines, 2)
	assert.Contains(t, string(lines[0]), "bob")
	assert.Contains(t, string(lines[1]), "alice")
}

func TestEncodeNDJSON(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(sampleMessages())
	require.NoError(t, Encode(context.Background(), &buf, s, NDJSON))
	lines := bytes.Split(bytes.TrimRight(buf.Bytes(), "\r\n"), []byte("\r\n"))
	require.Len(t, lines, 2)
	var m fullMessage
	require.NoError(t, json.Unmarshal(lines[0], &m))
	assert.Equal(t, "bob", m.UserLogin)
}

func TestEncodeJSONArrayFull(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(sampleMessages())
	require.NoError(t, Encode(context.Background(), &buf, s, JSONFull))

	var decoded struct {
		Messages []fullMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "bob", decoded.Messages[0].UserLogin)
	assert.Equal(t, "alice", decoded.Messages[1].UserLogin)
}

func TestEncodeJSONArrayBasic(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(sampleMessages())
	require.NoError(t, Encode(context.Background(), &buf, s, JSONBasic))

	var decoded struct {
		Messages []basicMessage `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(buf.Bytes(), &decoded))
	require.Len(t, decoded.Messages, 2)
	assert.Equal(t, "hi", decoded.Messages[0].Text)
}

func TestEncodeJSONArrayEmptyStreamProducesEmptyArray(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(nil)
	require.NoError(t, Encode(context.Background(), &buf, s, JSONFull))
	assert.JSONEq(t, `{"messages":[]}`, buf.String())
}

func TestEncodeUnknownFormat(t *testing.T) {
	var buf bytes.Buffer
	s := logsstream.FromSlice(sampleMessages())
	err := Encode(context.Background(), &buf, s, Format(99))
	require.Error(t, err)
}
