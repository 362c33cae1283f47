// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInitMissingFileKeepsDefaults(t *testing.T) {
	Keys = ProgramConfig{Addr: ":8080", FlushRetryCount: 20}
	Init(filepath.Join(t.TempDir(), "missing.json"))
	assert.Equal(t, ":8080", Keys.Addr)
	assert.Equal(t, 20, Keys.FlushRetryCount)
}

func TestInitOverlaysFile(t *testing.T) {
	Keys = ProgramConfig{Addr: ":8080", FlushRetryCount: 20}
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"addr":":9090","flush-retry-count":5}`), 0o644))

	Init(path)
	assert.Equal(t, ":9090", Keys.Addr)
	assert.Equal(t, 5, Keys.FlushRetryCount)
}
