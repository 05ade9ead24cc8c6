// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package wipe

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync/atomic"

	"github.com/fsnotify/fsnotify"
)

// FileWatcher fires the trigger when a trigger file appears. It is the
// out-of-band gesture: anything that can create a file (a shortcut, a
// remote shell, a home automation hook) can wipe without touching the app.
// The trigger file is removed after firing so it fires once.
type FileWatcher struct {
	path    string
	trigger *Trigger
	watcher *fsnotify.Watcher
	started atomic.Bool
	done    chan struct{}
}

// NewFileWatcher watches the directory containing path. If the file already
// exists it fires once Start runs.
func NewFileWatcher(path string, trigger *Trigger) (*FileWatcher, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve trigger path: %w", err)
	}
	dir := filepath.Dir(abs)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create trigger directory: %w", err)
	}

	w, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := w.Add(dir); err != nil {
		w.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", dir, err)
	}
	return &FileWatcher{path: abs, trigger: trigger, watcher: w, done: make(chan struct{})}, nil
}

// Start runs the watch loop until ctx is done or Close is called.
func (f *FileWatcher) Start(ctx context.Context) {
	if f.started.CompareAndSwap(false, true) {
		go f.loop(ctx)
	}
}

func (f *FileWatcher) loop(ctx context.Context) {
	defer close(f.done)

	if _, err := os.Stat(f.path); err == nil {
		f.fire()
	}

	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-f.watcher.Events:
			if !ok {
				return
			}
			if filepath.Clean(ev.Name) != f.path {
				continue
			}
			if ev.Has(fsnotify.Create) || ev.Has(fsnotify.Write) {
				f.fire()
			}
		case _, ok := <-f.watcher.Errors:
			if !ok {
				return
			}
		}
	}
}

func (f *FileWatcher) fire() {
	if err := os.Remove(f.path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return
	}
	f.trigger.Fire()
}

// Close stops watching and waits for the loop to exit if it was started.
func (f *FileWatcher) Close() error {
	err := f.watcher.Close()
	if f.started.Load() {
		<-f.done
	}
	return err
}
