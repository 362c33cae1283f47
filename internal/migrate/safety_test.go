// Copyright (c) chatlogd contributors.
// All rights reserved. This file is part of chatlogd.
// Use of this source code is governed by a MIT-style
// license that can be found in the LICENSE file.

package migrate

import (
	"context"
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/chatlogd/chatlogd/internal/store"
)

func withCountPartitions(t *testing.T, n int, err error) {
	t.Helper()
	orig := countPartitionsFn
	countPartitionsFn = func(ctx context.Context, st *store.Store) (int, error) { return n, err }
	t.Cleanup(func() { countPartitionsFn = orig })
}

func TestCheckSafetyGateAbortsOnMultiplePartitionsWithoutAck(t *testing.T) {
	os.Unsetenv(acknowledgeEnvVar)
	withCountPartitions(t, 2, nil)

	err := CheckSafetyGate(context.Background(), nil)
	require.Error(t, err)
	var fe *FatalError
	assert.ErrorAs(t, err, &fe)
}

func TestCheckSafetyGateProceedsWithAck(t *testing.T) {
	os.Setenv(acknowledgeEnvVar, "1")
	defer os.Unsetenv(acknowledgeEnvVar)
	withCountPartitions(t, 2, nil)

	err := CheckSafetyGate(context.Background(), nil)
	assert.NoError(t, err)
}

func TestCheckSafetyGateProceedsWithSinglePartition(t *testing.T) {
	os.Unsetenv(acknowledgeEnvVar)
	withCountPartitions(t, 1, nil)

	err := CheckSafetyGate(context.Background(), nil)
	assert.NoError(t, err)
}

func TestCheckSafetyGateProceedsWithZeroPartitions(t *testing.T) {
	os.Unsetenv(acknowledgeEnvVar)
	withCountPartitions(t, 0, nil)

	err := CheckSafetyGate(context.Background(), nil)
	assert.NoError(t, err)
}
