// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package migrate

import (
	"bytes"
	"os"
	"path/filepath"
	"testing"

	"github.com/klauspost/compress/gzip"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeLegacyTree(t *testing.T) string {
	t.Helper()
	root := t.TempDir()

	plainDir := filepath.Join(root, "111", "2024", "1", "2")
	require.NoError(t, os.MkdirAll(plainDir, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(plainDir, "channel.txt"), []byte("line one\nline two\n"), 0o644))

	gzDir := filepath.Join(root, "111", "2024", "1", "3")
	require.NoError(t, os.MkdirAll(gzDir, 0o755))
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("gzipped line\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	require.NoError(t, os.WriteFile(filepath.Join(gzDir, "channel.txt.gz"), buf.Bytes(), 0o644))

	otherChannel := filepath.Join(root, "222", "2024", "2", "1")
	require.NoError(t, os.MkdirAll(otherChannel, 0o755))
	require.NoError(t, os.WriteFile(filepath.Join(otherChannel, "channel.txt"), []byte("other\n"), 0o644))

	return root
}

func TestDiscoverGroupsByChannelYearMonth(t *testing.T) {
	root := writeLegacyTree(t)

	groups, totalBytes, err := discover(root, nil)
	require.NoError(t, err)
	assert.Greater(t, totalBytes, int64(0))

	key := monthKey{Channel: "111", Year: 2024, Month: 1}
	require.Contains(t, groups, key)
	assert.Len(t, groups[key], 2)
	assert.Equal(t, 2, groups[key][0].Day)
	assert.Equal(t, 3, groups[key][1].Day)
	assert.True(t, groups[key][1].Gzip)

	assert.Contains(t, groups, monthKey{Channel: "222", Year: 2024, Month: 2})
}

func TestDiscoverRespectsAllowlist(t *testing.T) {
	root := writeLegacyTree(t)

	groups, _, err := discover(root, []string{"222"})
	require.NoError(t, err)
	assert.NotContains(t, groups, monthKey{Channel: "111", Year: 2024, Month: 1})
	assert.Contains(t, groups, monthKey{Channel: "222", Year: 2024, Month: 2})
}

func TestResolveDayFilePrefersPlainOverGzip(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "channel.txt"), []byte("a\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "channel.txt.gz"), []byte("b"), 0o644))

	df, ok, err := resolveDayFile(dir, "1", 2024, 1, 1)
	require.NoError(t, err)
	require.True(t, ok)
	assert.False(t, df.Gzip)
	assert.Equal(t, filepath.Join(dir, "channel.txt"), df.Path)
}

func TestResolveDayFileMissingReturnsNotOK(t *testing.T) {
	dir := t.TempDir()
	_, ok, err := resolveDayFile(dir, "1", 2024, 1, 1)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestOpenLinesDecompressesGzip(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	gw := gzip.NewWriter(&buf)
	_, err := gw.Write([]byte("hello\nworld\n"))
	require.NoError(t, err)
	require.NoError(t, gw.Close())
	path := filepath.Join(dir, "channel.txt.gz")
	require.NoError(t, os.WriteFile(path, buf.Bytes(), 0o644))

	scanner, closer, err := openLines(dayFile{Path: path, Gzip: true})
	require.NoError(t, err)
	defer closer.Close()

	var lines []string
	for scanner.Scan() {
		lines = append(lines, scanner.Text())
	}
	require.NoError(t, scanner.Err())
	assert.Equal(t, []string{"hello", "world"}, lines)
}
