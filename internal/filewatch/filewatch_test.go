// Copyright 2018-present the CoreDHCP Authors. All rights reserved
// This source code is licensed under the MIT license found in the
// LICENSE file in the root directory of this source tree.

package filewatch

import (
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func watched(t *testing.T) (string, *atomic.Int32) {
	t.Helper()
	name := filepath.Join(t.TempDir(), "leases")
	require.NoError(t, os.WriteFile(name, []byte("v1\n"), 0644))
	var calls atomic.Int32
	w, err := Watch(name, func() { calls.Add(1) })
	require.NoError(t, err)
	t.Cleanup(func() { w.Close() })
	return name, &calls
}

func TestWatchWrite(t *testing.T) {
	name, calls := watched(t)
	require.NoError(t, os.WriteFile(name, []byte("v2\n"), 0644))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatchReplacedByRename(t *testing.T) {
	name, calls := watched(t)

	tmp := name + ".tmp"
	require.NoError(t, os.WriteFile(tmp, []byte("v2\n"), 0644))
	require.NoError(t, os.Rename(tmp, name))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 20*time.Millisecond)

	// the watch is still in place for the new file
	before := calls.Load()
	require.NoError(t, os.WriteFile(name, []byte("v3\n"), 0644))
	assert.Eventually(t, func() bool { return calls.Load() > before }, 2*time.Second, 20*time.Millisecond)
}

func TestWatchRemovedThenCreated(t *testing.T) {
	name, calls := watched(t)

	require.NoError(t, os.Remove(name))
	// nothing to reload yet
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())

	require.NoError(t, os.WriteFile(name, []byte("v2\n"), 0644))
	assert.Eventually(t, func() bool { return calls.Load() > 0 }, 2*time.Second, 20*time.Millisecond)
}

func TestWatchIgnoresOtherFiles(t *testing.T) {
	name, calls := watched(t)
	require.NoError(t, os.WriteFile(filepath.Join(filepath.Dir(name), "other"), []byte("x\n"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}

func TestWatchMissingDirectory(t *testing.T) {
	_, err := Watch(filepath.Join(t.TempDir(), "nope", "leases"), func() {})
	assert.Error(t, err)
}

func TestCloseStopsCallbacks(t *testing.T) {
	name := filepath.Join(t.TempDir(), "leases")
	var calls atomic.Int32
	w, err := Watch(name, func() { calls.Add(1) })
	require.NoError(t, err)
	require.NoError(t, w.Close())

	require.NoError(t, os.WriteFile(name, []byte("v1\n"), 0644))
	time.Sleep(100 * time.Millisecond)
	assert.Zero(t, calls.Load())
}
