// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ingest

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestChannelIDFromSubjectWildcardPrefix(t *testing.T) {
	got := channelIDFromSubject("chatlogd.ingest.>", "chatlogd.ingest.22484632")
	assert.Equal(t, "22484632", got)
}

func TestChannelIDFromSubjectCustomPrefix(t *testing.T) {
	got := channelIDFromSubject("rooms.>", "rooms.forsen")
	assert.Equal(t, "forsen", got)
}
