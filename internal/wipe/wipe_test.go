// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wipe

import (
	"context"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestTrigger_DisarmedIgnoresFire(t *testing.T) {
	tr := NewTrigger()
	var fired int
	tr.OnTriggered(func(Event) { fired++ })

	require.False(t, tr.Armed())
	require.False(t, tr.Fire())
	require.Zero(t, fired)
}

func TestTrigger_FiresHandlersInOrder(t *testing.T) {
	tr := NewTrigger()
	tr.Arm(true)

	var order []string
	tr.OnTriggered(func(Event) { order = append(order, "wipe") })
	tr.OnTriggered(func(ev Event) {
		require.False(t, ev.At.IsZero())
		order = append(order, "lock")
	})

	require.True(t, tr.Fire())
	require.Equal(t, []string{"wipe", "lock"}, order)

	tr.Arm(false)
	require.False(t, tr.Fire())
	require.Len(t, order, 2)
}

func TestSequenceDetector(t *testing.T) {
	var fired int
	d := NewSequenceDetector("ctrl+x", 3, 1500*time.Millisecond, func() bool { fired++; return true })
	base := time.Unix(1700000000, 0)

	require.False(t, d.Key("ctrl+x", base))
	require.False(t, d.Key("ctrl+x", base.Add(500*time.Millisecond)))
	require.True(t, d.Key("ctrl+x", base.Add(time.Second)))
	require.Equal(t, 1, fired)

	// Count restarts after firing.
	require.False(t, d.Key("ctrl+x", base.Add(1100*time.Millisecond)))
}

func TestSequenceDetector_WindowExpires(t *testing.T) {
	var fired int
	d := NewSequenceDetector("ctrl+x", 3, time.Second, func() bool { fired++; return true })
	base := time.Unix(1700000000, 0)

	d.Key("ctrl+x", base)
	d.Key("ctrl+x", base.Add(900*time.Millisecond))
	require.False(t, d.Key("ctrl+x", base.Add(2*time.Second)), "first press fell out of the window")
	require.Zero(t, fired)
}

func TestSequenceDetector_OtherKeyResets(t *testing.T) {
	var fired int
	d := NewSequenceDetector("ctrl+x", 3, time.Second, func() bool { fired++; return true })
	base := time.Unix(1700000000, 0)

	d.Key("ctrl+x", base)
	d.Key("ctrl+x", base.Add(100*time.Millisecond))
	d.Key("1", base.Add(200*time.Millisecond))
	require.False(t, d.Key("ctrl+x", base.Add(300*time.Millisecond)))
	require.Zero(t, fired)
	require.True(t, d.Matches("ctrl+x"))
	require.False(t, d.Matches("x"))
}

func TestFileWatcher_FiresOnCreate(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panic")

	tr := NewTrigger()
	tr.Arm(true)
	var fired atomic.Int32
	tr.OnTriggered(func(Event) { fired.Add(1) })

	w, err := NewFileWatcher(path, tr)
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	w.Start(ctx)
	defer w.Close()

	require.NoError(t, os.WriteFile(path, nil, 0600))
	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		_, err := os.Stat(path)
		return os.IsNotExist(err)
	}, 5*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_FiresForExistingFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "panic")
	require.NoError(t, os.WriteFile(path, nil, 0600))

	tr := NewTrigger()
	tr.Arm(true)
	var fired atomic.Int32
	tr.OnTriggered(func(Event) { fired.Add(1) })

	w, err := NewFileWatcher(path, tr)
	require.NoError(t, err)
	w.Start(context.Background())
	defer w.Close()

	require.Eventually(t, func() bool { return fired.Load() >= 1 }, 5*time.Second, 10*time.Millisecond)
}

func TestFileWatcher_IgnoresOtherFiles(t *testing.T) {
	dir := t.TempDir()
	tr := NewTrigger()
	tr.Arm(true)
	var fired atomic.Int32
	tr.OnTriggered(func(Event) { fired.Add(1) })

	w, err := NewFileWatcher(filepath.Join(dir, "panic"), tr)
	require.NoError(t, err)
	w.Start(context.Background())

	require.NoError(t, os.WriteFile(filepath.Join(dir, "other"), nil, 0600))
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, w.Close())
	require.Zero(t, fired.Load())
}
