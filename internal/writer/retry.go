// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package writer

import (
	"context"
	"time"

	"github.com/chatlogd/chatlogd/pkg/clog"
)

// RetryConfig bounds the flush retry loop. There is no backoff library in
// this stack, so the loop is the teacher's plain for-loop-with-sleep
// idiom rather than a borrowed dependency.
type RetryConfig struct {
	MaxAttempts int
	Delay       time.Duration
}

// DefaultRetryConfig is 20 attempts, 5s apart, per spec.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{MaxAttempts: 20, Delay: 5 * time.Second}
}

// withRetry calls fn up to cfg.MaxAttempts times, sleeping cfg.Delay
// between attempts, and returns the last error if every attempt fails.
// It returns early if ctx is canceled between attempts.
func withRetry(ctx context.Context, cfg RetryConfig, fn func() error) error {
	var lastErr error
	for attempt := 1; attempt <= cfg.MaxAttempts; attempt++ {
		if err := fn(); err != nil {
			lastErr = err
			clog.Warnf("writer: flush attempt %d/%d failed: %v", attempt, cfg.MaxAttempts, err)

			if attempt == cfg.MaxAttempts {
				break
			}
			select {
			case <-time.After(cfg.Delay):
			case <-ctx.Done():
				return ctx.Err()
			}
			continue
		}
		return nil
	}
	return lastErr
}
