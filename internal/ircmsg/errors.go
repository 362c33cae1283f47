// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package ircmsg

import "fmt"

// ParseError wraps a raw line that could not be parsed as a valid IRC
// message. Callers log-and-drop (ingest) or log-and-skip (migration) —
// it is never fatal.
type ParseError struct {
	Raw    string
	Reason string
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("ircmsg: parse error (%s): %q", e.Reason, e.Raw)
}

func parseErr(raw, reason string) error {
	return &ParseError{Raw: raw, Reason: reason}
}
