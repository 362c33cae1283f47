// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package migrate

import (
	"context"
	"fmt"
	"os"

	"github.com/chatlogd/chatlogd/internal/store"
)

const acknowledgeEnvVar = "ACKNOWLEDGE_STRUCTURE_MIGRATION"

// FatalError marks the migration safety gate having tripped: the process
// should print the message and exit non-zero before doing any work,
// matching the teacher's log.Fatal idiom for an unsupported schema
// version in internal/repository/migration.go.
type FatalError struct {
	msg string
}

func (e *FatalError) Error() string { return e.msg }

// CheckSafetyGate aborts the migration if message_structured already has
// more than one partition and the operator has not set
// ACKNOWLEDGE_STRUCTURE_MIGRATION=1, per spec.md §4.5.1: re-running the
// legacy importer against a populated table can inflate storage up to
// 1.5x, so this is opt-in, not a silent no-op.
func CheckSafetyGate(ctx context.Context, st *store.Store) error {
	if os.Getenv(acknowledgeEnvVar) == "1" {
		return nil
	}

	n, err := countPartitionsFn(ctx, st)
	if err != nil {
		return fmt.Errorf("migrate: checking safety gate: %w", err)
	}
	if n <= 1 {
		return nil
	}

	return &FatalError{msg: fmt.Sprintf(
		"migrate: message_structured already has %d partitions; re-running the "+
			"legacy importer can inflate storage up to 1.5x via merge overhead. "+
			"Set %s=1 to proceed anyway.", n, acknowledgeEnvVar)}
}

// countPartitionsFn is a seam for testing CheckSafetyGate without a live
// ClickHouse connection.
var countPartitionsFn = countPartitions

func countPartitions(ctx context.Context, st *store.Store) (int, error) {
	var n int
	const q = `SELECT count(DISTINCT partition) FROM system.parts WHERE table = 'message_structured' AND active`
	if err := st.DB.GetContext(ctx, &n, q); err != nil {
		return 0, err
	}
	return n, nil
}
