// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package migrate

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlogd/chatlogd/internal/message"
)

type fakeWriter struct {
	rows []message.Structured
}

func (f *fakeWriter) Write(ctx context.Context, m message.Structured) error {
	f.rows = append(f.rows, m)
	return nil
}

func TestRunDaySkipsUnparseableLinesAndCountsThem(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channel.txt")
	lines := "@room-id=1;tmi-sent-ts=100 :bob!bob@bob.tmi.twitch.tv PRIVMSG #chan :hi\n" +
		"@tags-without-body\n" +
		"@room-id=1;tmi-sent-ts=200 :alice!alice@alice.tmi.twitch.tv PRIVMSG #chan :yo\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	m := &Migrator{}
	fw := &fakeWriter{}
	rows, parseErrs, err := m.runDay(context.Background(), dayFile{Path: path, Channel: "1", Year: 2024, Month: 1, Day: 1}, fw)
	require.NoError(t, err)
	assert.Equal(t, int64(2), rows)
	assert.Equal(t, int64(1), parseErrs)
	require.Len(t, fw.rows, 2)
	assert.Equal(t, "hi", fw.rows[0].Text)
	assert.Equal(t, "yo", fw.rows[1].Text)
}

func TestRunDaySkipsBlankLines(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "channel.txt")
	lines := "@room-id=1;tmi-sent-ts=100 :bob!bob@bob.tmi.twitch.tv PRIVMSG #chan :hi\n\n\n"
	require.NoError(t, os.WriteFile(path, []byte(lines), 0o644))

	m := &Migrator{}
	fw := &fakeWriter{}
	rows, parseErrs, err := m.runDay(context.Background(), dayFile{Path: path}, fw)
	require.NoError(t, err)
	assert.Equal(t, int64(1), rows)
	assert.Equal(t, int64(0), parseErrs)
}
