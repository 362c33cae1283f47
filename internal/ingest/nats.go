// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

// Package ingest is the optional multi-process ingest path: chat-reader
// instances (the out-of-scope upstream chat-protocol client) publish raw
// IRC lines onto a NATS subject instead of calling Submit in-process, and
// a Subscriber here decodes and feeds them into the writer. This mirrors
// the teacher's pkg/nats.Client plus internal/memorystore's
// ReceiveNats/DecodeLine split, adapted from InfluxDB line-protocol
// metrics to raw IRC chat lines. Disabled (Subscriber is nil) when no
// NATS address is configured — chatlogd's primary ingest path is a direct
// in-process Submit call from the chat client, not this package.
package ingest

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/chatlogd/chatlogd/internal/config"
	"github.com/chatlogd/chatlogd/internal/ircmsg"
	"github.com/chatlogd/chatlogd/internal/message"
	"github.com/chatlogd/chatlogd/internal/metrics"
	"github.com/chatlogd/chatlogd/pkg/clog"
)

// Sink is the part of writer.Writer this package depends on; satisfied by
// *writer.Writer. Declared here instead of imported so ingest never needs
// to know about writer's flush/retry machinery.
type Sink interface {
	Submit(ctx context.Context, m message.Structured) error
}

// Subscriber wraps a NATS connection and tracks its subscriptions,
// the same shape as the teacher's pkg/nats.Client.
type Subscriber struct {
	conn    *nats.Conn
	sub     *nats.Subscription
	subject string

	mu sync.Mutex
}

// Connect opens a NATS connection per cfg. An empty cfg.Address means
// "ingest over NATS disabled"; Connect returns (nil, nil) in that case so
// callers can treat a nil *Subscriber as "nothing to start or close".
func Connect(cfg config.NatsConfig) (*Subscriber, error) {
	if cfg.Address == "" {
		return nil, nil
	}

	var opts []nats.Option
	if cfg.Username != "" && cfg.Password != "" {
		opts = append(opts, nats.UserInfo(cfg.Username, cfg.Password))
	}
	if cfg.CredsFilePath != "" {
		opts = append(opts, nats.UserCredentials(cfg.CredsFilePath))
	}
	opts = append(opts,
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				clog.Warnf("ingest: nats disconnected: %v", err)
			}
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			clog.Infof("ingest: nats reconnected to %s", nc.ConnectedUrl())
		}),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			clog.Errorf("ingest: nats error: %v", err)
		}),
	)

	nc, err := nats.Connect(cfg.Address, opts...)
	if err != nil {
		return nil, fmt.Errorf("ingest: nats connect: %w", err)
	}

	subject := cfg.Subject
	if subject == "" {
		subject = "chatlogd.ingest.>"
	}

	clog.Infof("ingest: nats connected to %s, subject %q", cfg.Address, subject)
	return &Subscriber{conn: nc, subject: subject}, nil
}

// channelIDFromSubject extracts the trailing token of a
// "chatlogd.ingest.<channelId>"-shaped subject, the way a chat-reader
// publishes one subject per room it watches.
func channelIDFromSubject(prefix, subject string) string {
	trimmed := strings.TrimPrefix(prefix, ">")
	trimmed = strings.TrimSuffix(trimmed, ".>")
	rest := strings.TrimPrefix(subject, trimmed)
	return strings.TrimPrefix(rest, ".")
}

// Start subscribes to the configured subject and feeds every decoded raw
// line into sink via ircmsg.Parse, incrementing m.ParseErrorsTotal on a
// malformed line and logging-and-dropping it — ingest parse failures are
// never fatal, per spec.md §4.1.
func (s *Subscriber) Start(ctx context.Context, sink Sink, m *metrics.Handles) error {
	if s == nil {
		return nil
	}

	sub, err := s.conn.Subscribe(s.subject, func(msg *nats.Msg) {
		u := message.Unstructured{
			RoomID: channelIDFromSubject(s.subject, msg.Subject),
			// Arrival wall-clock; ircmsg.Parse only overrides this with
			// the tmi-sent-ts tag's value when that tag is present, per
			// spec.md's "timestamp is authoritative" rule.
			Timestamp: time.Now().UnixMilli(),
			Raw:       string(msg.Data),
		}
		structured, perr := ircmsg.Parse(u)
		if perr != nil {
			if m != nil {
				m.ParseErrorsTotal.Inc()
			}
			clog.Warnf("ingest: dropping unparsable line on %q: %v", msg.Subject, perr)
			return
		}
		if structured.Type == message.TypePrivMsg && structured.UserID == "" {
			clog.Warnf("ingest: keeping PRIVMSG without user-id on %q", msg.Subject)
		}

		if err := sink.Submit(ctx, structured); err != nil {
			clog.Errorf("ingest: submit failed for channel %s: %v", structured.ChannelID, err)
		}
	})
	if err != nil {
		return fmt.Errorf("ingest: subscribe to %q: %w", s.subject, err)
	}

	s.mu.Lock()
	s.sub = sub
	s.mu.Unlock()
	return nil
}

// Close unsubscribes and closes the underlying NATS connection. Safe to
// call on a nil *Subscriber.
func (s *Subscriber) Close() {
	if s == nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.sub != nil {
		if err := s.sub.Unsubscribe(); err != nil {
			clog.Warnf("ingest: unsubscribe: %v", err)
		}
	}
	if s.conn != nil {
		s.conn.Close()
	}
}
